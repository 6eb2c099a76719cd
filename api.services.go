package main

import (
	"context"

	"go.uber.org/zap"
)

type BookServiceProvider interface {
	Save(ctx context.Context, book Book) (Book, error)
	FindByID(ctx context.Context, id int64) (Book, error)
	FindAll(ctx context.Context) ([]Book, error)
	FindByAuthor(ctx context.Context, author string) ([]Book, error)
	SearchByTitle(ctx context.Context, fragment string) ([]Book, error)
	FindByISBN(ctx context.Context, isbn string) (Book, error)
	FindAvailable(ctx context.Context) ([]Book, error)
	FindInStock(ctx context.Context, min int) ([]Book, error)
	UpdateQuantity(ctx context.Context, id int64, quantity int) (Book, error)
	Delete(ctx context.Context, id int64) error
}

type BookService struct {
	logger  *zap.Logger
	clock   Clocker
	storage BookStorage
	queue   Queuer
}

func NewBookService(logger *zap.Logger, clock Clocker, storage BookStorage, queue Queuer) *BookService {
	return &BookService{
		logger:  logger,
		clock:   clock,
		storage: storage,
		queue:   queue,
	}
}

// publish pushes the change event. Failures are only logged.
func (bs *BookService) publish(ctx context.Context, kind string, book Book) {
	event := BookEvent{Kind: kind, Book: book, At: bs.clock.Now()}
	if err := bs.queue.Push(ctx, EventsQueue, event); err != nil {
		bs.logger.Error("service: failed to push event to queue", zap.String("kind", kind), zap.Int64("book.id", book.ID), zap.Error(err))
	}
}

func (bs *BookService) Save(ctx context.Context, book Book) (Book, error) {
	saved, err := bs.storage.Save(ctx, book)
	if err != nil {
		return saved, err
	}
	bs.publish(ctx, SavedEvent, saved)
	return saved, nil
}

func (bs *BookService) FindByID(ctx context.Context, id int64) (Book, error) {
	return bs.storage.GetOne(ctx, id)
}

func (bs *BookService) FindAll(ctx context.Context) ([]Book, error) {
	return bs.storage.GetAll(ctx)
}

func (bs *BookService) FindByAuthor(ctx context.Context, author string) ([]Book, error) {
	return bs.storage.GetByAuthor(ctx, author)
}

func (bs *BookService) SearchByTitle(ctx context.Context, fragment string) ([]Book, error) {
	return bs.storage.SearchByTitle(ctx, fragment)
}

func (bs *BookService) FindByISBN(ctx context.Context, isbn string) (Book, error) {
	return bs.storage.GetByISBN(ctx, isbn)
}

func (bs *BookService) FindAvailable(ctx context.Context) ([]Book, error) {
	return bs.storage.GetAvailable(ctx)
}

// FindInStock returns books holding more than min copies.
func (bs *BookService) FindInStock(ctx context.Context, min int) ([]Book, error) {
	return bs.storage.GetInStock(ctx, min)
}

// UpdateQuantity sets the copies count and recomputes availability from it.
// Negative values are stored as given and mark the book unavailable.
func (bs *BookService) UpdateQuantity(ctx context.Context, id int64, quantity int) (Book, error) {
	book, err := bs.storage.Modify(ctx, id, func(b *Book) error {
		b.Quantity = quantity
		b.Available = quantity > 0
		return nil
	})
	if err != nil {
		return book, err
	}
	bs.publish(ctx, QuantityEvent, book)
	return book, nil
}

func (bs *BookService) Delete(ctx context.Context, id int64) error {
	if err := bs.storage.Delete(ctx, id); err != nil {
		return err
	}
	bs.publish(ctx, DeletedEvent, Book{ID: id})
	return nil
}
