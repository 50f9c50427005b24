package shortcode_test

import (
	"regexp"
	"sync"
	"testing"

	"github.com/SergeiKhy/url-analytics/internal/shortcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate_LengthAndAlphabet(t *testing.T) {
	gen := shortcode.NewGenerator(7)
	pattern := regexp.MustCompile(`^[A-Za-z0-9]{7}$`)

	for i := 0; i < 1000; i++ {
		code, err := gen.Generate()
		require.NoError(t, err)
		assert.Regexp(t, pattern, code)
		assert.True(t, shortcode.Valid(code, 7))
	}
}

func TestGenerate_DefaultLength(t *testing.T) {
	gen := shortcode.NewGenerator(0)
	code, err := gen.Generate()
	require.NoError(t, err)
	assert.Len(t, code, shortcode.DefaultLength)
}

func TestGenerate_ConcurrentUnique(t *testing.T) {
	gen := shortcode.NewGenerator(7)

	const workers, perWorker = 10, 1000
	var (
		mu    sync.Mutex
		codes = make(map[string]struct{}, workers*perWorker)
		wg    sync.WaitGroup
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				code, err := gen.Generate()
				assert.NoError(t, err)
				mu.Lock()
				codes[code] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	// 10k draws from 62^7 collide with probability ~1e-5.
	assert.Len(t, codes, workers*perWorker)
}

func TestValid(t *testing.T) {
	assert.True(t, shortcode.Valid("aZ09bcd", 7))
	assert.False(t, shortcode.Valid("short", 7))
	assert.False(t, shortcode.Valid("abc-def", 7))
	assert.False(t, shortcode.Valid("abcdéfg", 7))
	assert.False(t, shortcode.Valid("", 7))
}
