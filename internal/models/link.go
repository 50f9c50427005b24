package models

import (
	"time"
)

// Link maps a short code to its destination. ShortCode, OriginalURL, OwnerID
// and CreatedAt never change after insert; ClickCount is written only by the
// click processor.
type Link struct {
	ID          int64      `json:"id"`
	ShortCode   string     `json:"shortCode"`
	OriginalURL string     `json:"originalUrl"`
	OwnerID     string     `json:"ownerId"`
	CreatedAt   time.Time  `json:"createdAt"`
	ClickCount  int64      `json:"clickCount"`
	DeletedAt   *time.Time `json:"-"`
}

func (l *Link) Deleted() bool {
	return l.DeletedAt != nil
}

type CreateLinkInput struct {
	OriginalURL string `json:"originalUrl" binding:"required"`
}

// Page is one slice of an ordered listing. Number is zero-based.
type Page[T any] struct {
	Content       []T   `json:"content"`
	TotalElements int64 `json:"totalElements"`
	TotalPages    int   `json:"totalPages"`
	Size          int   `json:"size"`
	Number        int   `json:"number"`
	First         bool  `json:"first"`
	Last          bool  `json:"last"`
}

func NewPage[T any](content []T, total int64, number, size int) *Page[T] {
	if content == nil {
		content = []T{}
	}
	totalPages := 0
	if size > 0 {
		totalPages = int((total + int64(size) - 1) / int64(size))
	}
	return &Page[T]{
		Content:       content,
		TotalElements: total,
		TotalPages:    totalPages,
		Size:          size,
		Number:        number,
		First:         number == 0,
		Last:          number >= totalPages-1,
	}
}
