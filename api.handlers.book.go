package main

import (
	"errors"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
)

// sendError writes the error envelope and logs any failure to do so.
func (api *APIHandler) sendError(w http.ResponseWriter, r *http.Request, status int, message string, data interface{}) {
	requestID := GetValueFromContext(r.Context(), ContextRequestID)
	errResp := NewAPIError(requestID, status, message, data)
	if err := WriteErrorResponse(r.Context(), w, errResp); err != nil {
		api.GetLoggerFromContext(r.Context()).Error("failed to send error response", zap.Error(err))
	}
}

// send writes a success json document and logs any failure to do so.
func (api *APIHandler) send(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	if err := WriteResponse(r.Context(), w, status, data); err != nil {
		api.GetLoggerFromContext(r.Context()).Error("failed to send response", zap.Error(err))
	}
}

// sendEmpty replies with the status code only.
func (api *APIHandler) sendEmpty(w http.ResponseWriter, r *http.Request, status int) {
	if err := WriteEmptyResponse(r.Context(), w, status); err != nil {
		api.GetLoggerFromContext(r.Context()).Error("failed to send response", zap.Int("status", status), zap.Error(err))
	}
}

// sendOne replies with the book or 404 when absent.
func (api *APIHandler) sendOne(w http.ResponseWriter, r *http.Request, book Book, err error, action string, fields ...zap.Field) {
	logger := api.GetLoggerFromContext(r.Context()).With(fields...)
	if errors.Is(err, ErrBookNotFound) {
		logger.Info("book does not exist")
		api.sendEmpty(w, r, http.StatusNotFound)
		return
	}
	if err != nil {
		logger.Error("failed to "+action, zap.Error(err))
		api.sendError(w, r, http.StatusInternalServerError, "failed to "+action, EmptyData)
		return
	}
	logger.Info("success to "+action)
	api.send(w, r, http.StatusOK, book)
}

// sendList replies with the books array.
func (api *APIHandler) sendList(w http.ResponseWriter, r *http.Request, books []Book, err error, action string, fields ...zap.Field) {
	logger := api.GetLoggerFromContext(r.Context()).With(fields...)
	if err != nil {
		logger.Error("failed to "+action, zap.Error(err))
		api.sendError(w, r, http.StatusInternalServerError, "failed to "+action, EmptyData)
		return
	}
	if books == nil {
		books = []Book{}
	}
	logger.Info("success to "+action, zap.Int("books.total", len(books)))
	api.send(w, r, http.StatusOK, books)
}

// CreateBook stores the book of the request body. A body carrying the id
// of an existing book overwrites that record.
func (api *APIHandler) CreateBook(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	logger := api.GetLoggerFromContext(r.Context())
	var req BookRequest
	if err := DecodeCreateBookRequestBody(r, &req); err != nil {
		logger.Error("failed to decode book", zap.Error(err))
		api.sendError(w, r, http.StatusBadRequest, "failed to create the book", "invalid json body")
		return
	}

	if err := ValidateCreateBookRequestBody(&req); err != nil {
		logger.Error("failed to validate book", zap.Error(err))
		api.sendError(w, r, http.StatusBadRequest, "failed to create the book", err.Error())
		return
	}

	book, err := api.bookService.Save(r.Context(), req.ToBook())
	if err != nil {
		logger.Error("failed to create book", zap.Error(err))
		api.sendError(w, r, http.StatusInternalServerError, "failed to create the book", EmptyData)
		return
	}
	logger.Info("success to create book", zap.Int64("book.id", book.ID))
	api.send(w, r, http.StatusCreated, book)
}

// GetAllBooks lists the whole catalog.
func (api *APIHandler) GetAllBooks(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	books, err := api.bookService.FindAll(r.Context())
	api.sendList(w, r, books, err, "get all books")
}

// GetOneBook fetches a book by id.
func (api *APIHandler) GetOneBook(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := ParseBookID(ps.ByName("id"))
	if err != nil {
		api.sendError(w, r, http.StatusBadRequest, "book id provided is not valid", err.Error())
		return
	}
	book, err := api.bookService.FindByID(r.Context(), id)
	api.sendOne(w, r, book, err, "get book", zap.Int64("book.id", id))
}

// GetBooksByAuthor lists books whose author matches exactly.
func (api *APIHandler) GetBooksByAuthor(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	author := ps.ByName("value")
	books, err := api.bookService.FindByAuthor(r.Context(), author)
	api.sendList(w, r, books, err, "get books by author", zap.String("book.author", author))
}

// SearchBooksByTitle lists books whose title contains the title query parameter.
func (api *APIHandler) SearchBooksByTitle(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	q := r.URL.Query()
	if !q.Has("title") {
		api.sendError(w, r, http.StatusBadRequest, "failed to search books", missingFieldError("title").Error())
		return
	}
	title := q.Get("title")
	books, err := api.bookService.SearchByTitle(r.Context(), title)
	api.sendList(w, r, books, err, "search books by title", zap.String("book.title", title))
}

// GetBookByISBN fetches a book by isbn.
func (api *APIHandler) GetBookByISBN(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	isbn := ps.ByName("value")
	book, err := api.bookService.FindByISBN(r.Context(), isbn)
	api.sendOne(w, r, book, err, "get book by isbn", zap.String("book.isbn", isbn))
}

// GetAvailableBooks lists books flagged as available.
func (api *APIHandler) GetAvailableBooks(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	books, err := api.bookService.FindAvailable(r.Context())
	api.sendList(w, r, books, err, "get available books")
}

// GetBooksInStock lists books holding more copies than the min query
// parameter, which defaults to zero.
func (api *APIHandler) GetBooksInStock(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	min := 0
	if r.URL.Query().Has("min") {
		var err error
		if min, err = ParseIntQueryParam(r, "min"); err != nil {
			api.sendError(w, r, http.StatusBadRequest, "failed to get books in stock", err.Error())
			return
		}
	}
	books, err := api.bookService.FindInStock(r.Context(), min)
	api.sendList(w, r, books, err, "get books in stock", zap.Int("stock.min", min))
}

// UpdateBookQuantity sets the number of copies of a book.
func (api *APIHandler) UpdateBookQuantity(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := ParseBookID(ps.ByName("id"))
	if err != nil {
		api.sendError(w, r, http.StatusBadRequest, "book id provided is not valid", err.Error())
		return
	}
	quantity, err := ParseIntQueryParam(r, "quantity")
	if err != nil {
		api.sendError(w, r, http.StatusBadRequest, "failed to update the quantity", err.Error())
		return
	}
	book, err := api.bookService.UpdateQuantity(r.Context(), id, quantity)
	api.sendOne(w, r, book, err, "update book quantity", zap.Int64("book.id", id), zap.Int("book.quantity", quantity))
}

// DeleteOneBook removes a book. Deleting a missing book succeeds as well.
func (api *APIHandler) DeleteOneBook(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	logger := api.GetLoggerFromContext(r.Context())
	id, err := ParseBookID(ps.ByName("id"))
	if err != nil {
		api.sendError(w, r, http.StatusBadRequest, "book id provided is not valid", err.Error())
		return
	}
	if err = api.bookService.Delete(r.Context(), id); err != nil {
		logger.Error("failed to delete book", zap.Int64("book.id", id), zap.Error(err))
		api.sendError(w, r, http.StatusInternalServerError, "failed to delete the book", EmptyData)
		return
	}
	logger.Info("success to delete book", zap.Int64("book.id", id))
	api.sendEmpty(w, r, http.StatusNoContent)
}
