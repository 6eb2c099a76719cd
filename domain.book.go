package main

import (
	"context"
	"errors"
)

var ErrBookNotFound = errors.New("book not found")

// Book represents a catalog entry for one title. Available is stored as-is
// and only recomputed by a quantity update.
type Book struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Author      string `json:"author"`
	ISBN        string `json:"isbn"`
	Description string `json:"description"`
	Quantity    int    `json:"quantity"`
	Available   bool   `json:"available"`
}

// BookStorage defines possible operations on book entity.
type BookStorage interface {
	Save(ctx context.Context, book Book) (Book, error)
	GetOne(ctx context.Context, id int64) (Book, error)
	GetAll(ctx context.Context) ([]Book, error)
	GetByAuthor(ctx context.Context, author string) ([]Book, error)
	SearchByTitle(ctx context.Context, fragment string) ([]Book, error)
	GetAvailable(ctx context.Context) ([]Book, error)
	GetInStock(ctx context.Context, min int) ([]Book, error)
	GetByISBN(ctx context.Context, isbn string) (Book, error)
	Delete(ctx context.Context, id int64) error
	Modify(ctx context.Context, id int64, fn func(*Book) error) (Book, error)
}

// BookArchive keeps the last-known state of each book outside the main store.
type BookArchive interface {
	Put(ctx context.Context, book Book) error
	Remove(ctx context.Context, id int64) error
	GetOne(ctx context.Context, id int64) (Book, error)
	GetAll(ctx context.Context) ([]Book, error)
}
