package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	custommiddleware "github.com/mmeshcher/bookstore/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware книжного магазина.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))
	r.Use(custommiddleware.Metrics(h.metrics))

	r.Get("/healthz", h.Health)
	r.Method(http.MethodGet, "/metrics", h.metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", h.Register)
		r.Post("/auth/login", h.Login)

		r.Get("/books", h.ListBooks)
		r.Get("/books/{id}", h.GetBook)

		r.Get("/books/search", h.SearchBooks(byTitle))
		r.Get("/books/search/author", h.SearchBooks(byAuthor))
		r.Get("/books/search/publisher", h.SearchBooks(byPublisher))
		r.Get("/books/search/isbn", h.SearchBooks(byISBN))
		r.Get("/books/filter/price", h.SearchBooks(byPriceRange))
		r.Get("/books/filter/inventory", h.SearchBooks(byMinInventory))

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Post("/books", h.CreateBook)
			r.Put("/books/{id}", h.UpdateBook)
			r.Delete("/books/{id}", h.DeleteBook)

			r.Post("/purchase/checkout", h.Checkout)
			r.Get("/purchase/history", h.GetPurchaseHistory)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
