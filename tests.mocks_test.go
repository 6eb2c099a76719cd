package main

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// This file contains mocks definitions needed to perform unit tests.

type MockBookStorage struct {
	SaveFunc          func(ctx context.Context, book Book) (Book, error)
	GetOneFunc        func(ctx context.Context, id int64) (Book, error)
	GetAllFunc        func(ctx context.Context) ([]Book, error)
	GetByAuthorFunc   func(ctx context.Context, author string) ([]Book, error)
	SearchByTitleFunc func(ctx context.Context, fragment string) ([]Book, error)
	GetAvailableFunc  func(ctx context.Context) ([]Book, error)
	GetInStockFunc    func(ctx context.Context, min int) ([]Book, error)
	GetByISBNFunc     func(ctx context.Context, isbn string) (Book, error)
	DeleteFunc        func(ctx context.Context, id int64) error
	ModifyFunc        func(ctx context.Context, id int64, fn func(*Book) error) (Book, error)
}

func (m *MockBookStorage) Save(ctx context.Context, book Book) (Book, error) {
	return m.SaveFunc(ctx, book)
}

func (m *MockBookStorage) GetOne(ctx context.Context, id int64) (Book, error) {
	return m.GetOneFunc(ctx, id)
}

func (m *MockBookStorage) GetAll(ctx context.Context) ([]Book, error) {
	return m.GetAllFunc(ctx)
}

func (m *MockBookStorage) GetByAuthor(ctx context.Context, author string) ([]Book, error) {
	return m.GetByAuthorFunc(ctx, author)
}

func (m *MockBookStorage) SearchByTitle(ctx context.Context, fragment string) ([]Book, error) {
	return m.SearchByTitleFunc(ctx, fragment)
}

func (m *MockBookStorage) GetAvailable(ctx context.Context) ([]Book, error) {
	return m.GetAvailableFunc(ctx)
}

func (m *MockBookStorage) GetInStock(ctx context.Context, min int) ([]Book, error) {
	return m.GetInStockFunc(ctx, min)
}

func (m *MockBookStorage) GetByISBN(ctx context.Context, isbn string) (Book, error) {
	return m.GetByISBNFunc(ctx, isbn)
}

func (m *MockBookStorage) Delete(ctx context.Context, id int64) error {
	return m.DeleteFunc(ctx, id)
}

func (m *MockBookStorage) Modify(ctx context.Context, id int64, fn func(*Book) error) (Book, error) {
	return m.ModifyFunc(ctx, id, fn)
}

// memoryBookStorage is a map based BookStorage with the same observable
// behavior as the postgres one. It backs the end to end handler tests.
type memoryBookStorage struct {
	mu     sync.Mutex
	books  map[int64]Book
	lastID int64
}

func newMemoryBookStorage() *memoryBookStorage {
	return &memoryBookStorage{books: make(map[int64]Book)}
}

func (s *memoryBookStorage) Save(_ context.Context, book Book) (Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.books[book.ID]; !ok || book.ID == 0 {
		s.lastID++
		book.ID = s.lastID
	}
	s.books[book.ID] = book
	return book, nil
}

func (s *memoryBookStorage) GetOne(_ context.Context, id int64) (Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	book, ok := s.books[id]
	if !ok {
		return Book{}, ErrBookNotFound
	}
	return book, nil
}

func (s *memoryBookStorage) filter(keep func(Book) bool) []Book {
	s.mu.Lock()
	defer s.mu.Unlock()
	books := []Book{}
	for _, b := range s.books {
		if keep(b) {
			books = append(books, b)
		}
	}
	sort.Slice(books, func(i, j int) bool { return books[i].ID < books[j].ID })
	return books
}

func (s *memoryBookStorage) GetAll(_ context.Context) ([]Book, error) {
	return s.filter(func(Book) bool { return true }), nil
}

func (s *memoryBookStorage) GetByAuthor(_ context.Context, author string) ([]Book, error) {
	return s.filter(func(b Book) bool { return b.Author == author }), nil
}

func (s *memoryBookStorage) SearchByTitle(_ context.Context, fragment string) ([]Book, error) {
	fragment = strings.ToLower(fragment)
	return s.filter(func(b Book) bool { return strings.Contains(strings.ToLower(b.Title), fragment) }), nil
}

func (s *memoryBookStorage) GetAvailable(_ context.Context) ([]Book, error) {
	return s.filter(func(b Book) bool { return b.Available }), nil
}

func (s *memoryBookStorage) GetInStock(_ context.Context, min int) ([]Book, error) {
	return s.filter(func(b Book) bool { return b.Quantity > min }), nil
}

func (s *memoryBookStorage) GetByISBN(_ context.Context, isbn string) (Book, error) {
	books := s.filter(func(b Book) bool { return b.ISBN == isbn })
	if len(books) == 0 {
		return Book{}, ErrBookNotFound
	}
	return books[0], nil
}

func (s *memoryBookStorage) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.books, id)
	return nil
}

func (s *memoryBookStorage) Modify(_ context.Context, id int64, fn func(*Book) error) (Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	book, ok := s.books[id]
	if !ok {
		return Book{}, ErrBookNotFound
	}
	if err := fn(&book); err != nil {
		return Book{}, err
	}
	book.ID = id
	s.books[id] = book
	return book, nil
}

// MockQueuer records pushed events when PushFunc is not set.
type MockQueuer struct {
	PushFunc func(ctx context.Context, qid string, event BookEvent) error
	PopFunc  func(ctx context.Context, qids ...string) (string, BookEvent, error)

	mu     sync.Mutex
	qids   []string
	pushed []BookEvent
}

func (m *MockQueuer) Push(ctx context.Context, qid string, event BookEvent) error {
	if m.PushFunc != nil {
		return m.PushFunc(ctx, qid, event)
	}
	m.mu.Lock()
	m.qids = append(m.qids, qid)
	m.pushed = append(m.pushed, event)
	m.mu.Unlock()
	return nil
}

func (m *MockQueuer) Pop(ctx context.Context, qids ...string) (string, BookEvent, error) {
	return m.PopFunc(ctx, qids...)
}

func (m *MockQueuer) Pushed() []BookEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]BookEvent(nil), m.pushed...)
}

func (m *MockQueuer) PushedTo() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.qids...)
}

// MockClocker implements a fake TickerClocker.
type MockClocker struct {
	MockNow time.Time
}

// NewMockClocker returns a mocked instance with fixed time.
func NewMockClocker() *MockClocker {
	return &MockClocker{time.Date(2023, 0o7, 0o2, 0o0, 0o0, 0o0, 0o00000000, time.UTC)}
}

// Now returns an already defined time to be used as mock. This
// equals to `Sun, 02 Jul 2023 00:00:00 UTC` in time.RFC1123 format.
func (mck *MockClocker) Now() time.Time {
	return mck.MockNow
}

// NewTicker returns a real ticker. Tests only rely on its stop.
func (mck *MockClocker) NewTicker(d time.Duration) *time.Ticker {
	return time.NewTicker(d)
}

// MockUIDHandler implements a fake UIDHandler.
type MockUIDHandler struct {
	MockedUID string
	Valid     bool
}

// NewMockUIDHandler returns a mocked instance with predictable id.
func NewMockUIDHandler(id string, valid bool) *MockUIDHandler {
	return &MockUIDHandler{MockedUID: id, Valid: valid}
}

// Generate constructs a predictable id to be used as mock.
func (muid *MockUIDHandler) Generate(prefix string) string {
	return prefix + ":" + muid.MockedUID
}

// IsValid mocks IsValid behavior by providing configured status.
func (muid *MockUIDHandler) IsValid(_, _ string) bool {
	return muid.Valid
}
