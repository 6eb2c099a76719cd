package main

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
)

// SetupBookRoutes injects book related the api endpoints. The router cannot hold a
// static segment next to a parameter one, so the named lookups under /api/books
// are dispatched by DispatchBookLookup and DispatchBookFieldLookup.
func (api *APIHandler) SetupBookRoutes(router *httprouter.Router, m *MiddlewareMap) *httprouter.Router {
	router.GET("/", m.public(api.Index))
	router.GET("/status", m.public(api.Status))
	router.POST("/api/books", m.public(api.CreateBook))
	router.GET("/api/books", m.public(api.GetAllBooks))
	router.GET("/api/books/:id", m.public(api.DispatchBookLookup))
	router.GET("/api/books/:id/:value", m.public(api.DispatchBookFieldLookup))
	router.PUT("/api/books/:id/quantity", m.public(api.UpdateBookQuantity))
	router.DELETE("/api/books/:id", m.public(api.DeleteOneBook))
	return router
}

// DispatchBookLookup serves /api/books/available, /api/books/search,
// /api/books/stock and /api/books/{id}.
func (api *APIHandler) DispatchBookLookup(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	switch ps.ByName("id") {
	case "available":
		api.GetAvailableBooks(w, r, ps)
	case "search":
		api.SearchBooksByTitle(w, r, ps)
	case "stock":
		api.GetBooksInStock(w, r, ps)
	default:
		api.GetOneBook(w, r, ps)
	}
}

// DispatchBookFieldLookup serves /api/books/author/{author} and /api/books/isbn/{isbn}.
func (api *APIHandler) DispatchBookFieldLookup(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	switch ps.ByName("id") {
	case "author":
		api.GetBooksByAuthor(w, r, ps)
	case "isbn":
		api.GetBookByISBN(w, r, ps)
	default:
		api.NotFound().ServeHTTP(w, r)
	}
}
