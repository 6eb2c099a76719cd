package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const (
	DefaultBooksTable = "books"
	dialectPostgres   = "postgres"

	colID          = "id"
	colTitle       = "title"
	colAuthor      = "author"
	colISBN        = "isbn"
	colDescription = "description"
	colQuantity    = "quantity"
	colAvailable   = "available"
)

var bookColumns = []interface{}{colID, colTitle, colAuthor, colISBN, colDescription, colQuantity, colAvailable}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type postgresBookStorage struct {
	logger  *zap.Logger
	pool    *pgxpool.Pool
	table   string
	dialect goqu.DialectWrapper
}

// NewPostgresBookStorage provides an instance of postgres-based book storage.
func NewPostgresBookStorage(logger *zap.Logger, pool *pgxpool.Pool, table string) *postgresBookStorage {
	if table == "" {
		table = DefaultBooksTable
	}
	return &postgresBookStorage{
		logger:  logger,
		pool:    pool,
		table:   table,
		dialect: goqu.Dialect(dialectPostgres),
	}
}

// GetPostgresPool provides a ready to use and tested postgres connections pool.
func GetPostgresPool(ctx context.Context, config *PostgresConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(config.DSN)
	if err != nil {
		return nil, fmt.Errorf("invalid dsn %s: %v", RedactDSN(config.DSN), err)
	}
	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}
	if config.MinConns > 0 {
		poolConfig.MinConns = config.MinConns
	}
	if config.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = config.MaxConnLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %v", err)
	}

	timeout := config.ConnectTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err = pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("test connection to %s failed: %v", RedactDSN(config.DSN), err)
	}
	return pool, nil
}

// EnsureSchema creates the books table and its lookup indexes if missing.
func (ps *postgresBookStorage) EnsureSchema(ctx context.Context) error {
	table := pgx.Identifier{ps.table}.Sanitize()
	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id BIGSERIAL PRIMARY KEY,
			title TEXT NOT NULL,
			author TEXT NOT NULL,
			isbn TEXT NOT NULL,
			description TEXT,
			quantity INTEGER NOT NULL DEFAULT 0,
			available BOOLEAN NOT NULL DEFAULT TRUE
		)`, table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (isbn)`, pgx.Identifier{ps.table + "_isbn_idx"}.Sanitize(), table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (author)`, pgx.Identifier{ps.table + "_author_idx"}.Sanitize(), table),
	}
	for _, stmt := range statements {
		if _, err := ps.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// Save inserts a new book when it has no id. Otherwise it overwrites the
// stored record, or inserts a fresh one when that id does not exist.
func (ps *postgresBookStorage) Save(ctx context.Context, book Book) (Book, error) {
	if book.ID != 0 {
		query, args, err := ps.buildUpdateQuery(book)
		if err != nil {
			return book, fmt.Errorf("build update query: %w", err)
		}
		tag, err := ps.pool.Exec(ctx, query, args...)
		if err != nil {
			return book, fmt.Errorf("update book %d: %w", book.ID, err)
		}
		if tag.RowsAffected() == 1 {
			return book, nil
		}
		ps.logger.Debug("storage: no book to overwrite, inserting", zap.Int64("book.id", book.ID))
	}

	query, args, err := ps.buildInsertQuery(book)
	if err != nil {
		return book, fmt.Errorf("build insert query: %w", err)
	}
	if err = ps.pool.QueryRow(ctx, query, args...).Scan(&book.ID); err != nil {
		return book, fmt.Errorf("insert book: %w", err)
	}
	return book, nil
}

// GetOne retrieves a book record based on its ID.
func (ps *postgresBookStorage) GetOne(ctx context.Context, id int64) (Book, error) {
	return ps.getOne(ctx, ps.pool, id, false)
}

// GetAll retrieves the list of all books ordered by id.
func (ps *postgresBookStorage) GetAll(ctx context.Context) ([]Book, error) {
	return ps.list(ctx, ps.selectBooks())
}

// GetByAuthor retrieves books whose author matches exactly.
func (ps *postgresBookStorage) GetByAuthor(ctx context.Context, author string) ([]Book, error) {
	return ps.list(ctx, ps.selectBooks().Where(goqu.C(colAuthor).Eq(author)))
}

// SearchByTitle retrieves books whose title contains the fragment, ignoring case.
func (ps *postgresBookStorage) SearchByTitle(ctx context.Context, fragment string) ([]Book, error) {
	return ps.list(ctx, ps.selectBooks().Where(goqu.C(colTitle).ILike(ContainsPattern(fragment))))
}

// GetAvailable retrieves books flagged as available.
func (ps *postgresBookStorage) GetAvailable(ctx context.Context) ([]Book, error) {
	return ps.list(ctx, ps.selectBooks().Where(goqu.C(colAvailable).IsTrue()))
}

// GetInStock retrieves books with a quantity strictly above min.
func (ps *postgresBookStorage) GetInStock(ctx context.Context, min int) ([]Book, error) {
	return ps.list(ctx, ps.selectBooks().Where(goqu.C(colQuantity).Gt(min)))
}

// GetByISBN retrieves the lowest id book carrying the isbn.
func (ps *postgresBookStorage) GetByISBN(ctx context.Context, isbn string) (Book, error) {
	books, err := ps.list(ctx, ps.selectBooks().Where(goqu.C(colISBN).Eq(isbn)).Limit(2))
	if err != nil {
		return Book{}, err
	}
	if len(books) == 0 {
		return Book{}, ErrBookNotFound
	}
	if len(books) > 1 {
		ps.logger.Warn("storage: isbn shared by several books, using lowest id",
			zap.String("book.isbn", isbn),
			zap.Int64("book.id", books[0].ID),
		)
	}
	return books[0], nil
}

// Delete removes a book record based on its ID. Missing records are ignored.
func (ps *postgresBookStorage) Delete(ctx context.Context, id int64) error {
	query, args, err := ps.dialect.Delete(ps.table).Where(goqu.C(colID).Eq(id)).Prepared(true).ToSQL()
	if err != nil {
		return fmt.Errorf("build delete query: %w", err)
	}
	if _, err = ps.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("delete book %d: %w", id, err)
	}
	return nil
}

// Modify locks the book row, applies fn then persists the result in a single transaction.
func (ps *postgresBookStorage) Modify(ctx context.Context, id int64, fn func(*Book) error) (Book, error) {
	tx, err := ps.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Book{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if rerr := tx.Rollback(ctx); rerr != nil && !errors.Is(rerr, pgx.ErrTxClosed) {
			ps.logger.Error("storage: failed to rollback transaction", zap.Int64("book.id", id), zap.Error(rerr))
		}
	}()

	book, err := ps.getOne(ctx, tx, id, true)
	if err != nil {
		return Book{}, err
	}

	if err = fn(&book); err != nil {
		return Book{}, err
	}
	book.ID = id

	query, args, err := ps.buildUpdateQuery(book)
	if err != nil {
		return Book{}, fmt.Errorf("build update query: %w", err)
	}
	if _, err = tx.Exec(ctx, query, args...); err != nil {
		return Book{}, fmt.Errorf("update book %d: %w", id, err)
	}

	if err = tx.Commit(ctx); err != nil {
		return Book{}, fmt.Errorf("commit transaction: %w", err)
	}
	return book, nil
}

func (ps *postgresBookStorage) selectBooks() *goqu.SelectDataset {
	return ps.dialect.From(ps.table).Select(bookColumns...).Order(goqu.C(colID).Asc())
}

func (ps *postgresBookStorage) getOne(ctx context.Context, q querier, id int64, lock bool) (Book, error) {
	ds := ps.dialect.From(ps.table).Select(bookColumns...).Where(goqu.C(colID).Eq(id))
	if lock {
		ds = ds.ForUpdate(exp.Wait)
	}
	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return Book{}, fmt.Errorf("build select query: %w", err)
	}

	book, err := scanBook(q.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return Book{}, ErrBookNotFound
	}
	if err != nil {
		return Book{}, fmt.Errorf("get book %d: %w", id, err)
	}
	return book, nil
}

func (ps *postgresBookStorage) list(ctx context.Context, ds *goqu.SelectDataset) ([]Book, error) {
	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build select query: %w", err)
	}
	ps.logger.Debug("storage: executing query", zap.String("sql", query))

	rows, err := ps.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query books: %w", err)
	}
	books, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Book, error) {
		return scanBook(row)
	})
	if err != nil {
		return nil, fmt.Errorf("scan books: %w", err)
	}
	if books == nil {
		books = []Book{}
	}
	return books, nil
}

func (ps *postgresBookStorage) buildInsertQuery(book Book) (string, []interface{}, error) {
	return ps.dialect.Insert(ps.table).
		Rows(bookRecord(book)).
		Returning(goqu.C(colID)).
		Prepared(true).
		ToSQL()
}

func (ps *postgresBookStorage) buildUpdateQuery(book Book) (string, []interface{}, error) {
	return ps.dialect.Update(ps.table).
		Set(bookRecord(book)).
		Where(goqu.C(colID).Eq(book.ID)).
		Prepared(true).
		ToSQL()
}

func bookRecord(book Book) goqu.Record {
	var description interface{}
	if book.Description != "" {
		description = book.Description
	}
	return goqu.Record{
		colTitle:       book.Title,
		colAuthor:      book.Author,
		colISBN:        book.ISBN,
		colDescription: description,
		colQuantity:    book.Quantity,
		colAvailable:   book.Available,
	}
}

func scanBook(row pgx.Row) (Book, error) {
	var book Book
	var description *string
	err := row.Scan(&book.ID, &book.Title, &book.Author, &book.ISBN, &description, &book.Quantity, &book.Available)
	if description != nil {
		book.Description = *description
	}
	return book, err
}

// ContainsPattern turns a fragment into a LIKE pattern matching it anywhere,
// with the LIKE wildcards of the fragment taken literally.
func ContainsPattern(fragment string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(fragment)
	return "%" + escaped + "%"
}
