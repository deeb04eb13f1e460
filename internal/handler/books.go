package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/bookstore/internal/middleware"
	"github.com/mmeshcher/bookstore/internal/model"
	"github.com/mmeshcher/bookstore/internal/repository"
	"github.com/mmeshcher/bookstore/internal/service"
)

const invalidSearchMessage = "Invalid search parameters."

type bookResponse struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Author      string      `json:"author"`
	ISBN        string      `json:"isbn"`
	Publisher   string      `json:"publisher"`
	Description string      `json:"description"`
	Price       json.Number `json:"price"`
	Inventory   int         `json:"inventory"`
}

func newBookResponse(b model.Book) bookResponse {
	return bookResponse{
		ID:          b.ID,
		Title:       b.Title,
		Author:      b.Author,
		ISBN:        b.ISBN,
		Publisher:   b.Publisher,
		Description: b.Description,
		Price:       json.Number(b.Price.String()),
		Inventory:   b.Inventory,
	}
}

func (h *Handler) writeBooks(w http.ResponseWriter, books []model.Book) {
	resp := make([]bookResponse, 0, len(books))
	for _, b := range books {
		resp = append(resp, newBookResponse(b))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// ListBooks возвращает каталог.
func (h *Handler) ListBooks(w http.ResponseWriter, r *http.Request) {
	books, err := h.service.ListBooks(r.Context())
	if err != nil {
		h.logger.Error("list books error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.writeBooks(w, books)
}

// GetBook возвращает карточку книги с текущим остатком.
func (h *Handler) GetBook(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	b, err := h.service.GetBook(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrBookNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("get book error", zap.Error(err), zap.String("bookID", id))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, newBookResponse(*b))
}

type bookRequest struct {
	Title       string          `json:"title"`
	Author      string          `json:"author"`
	ISBN        string          `json:"isbn"`
	Publisher   string          `json:"publisher"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Inventory   int             `json:"inventory"`
}

func (req bookRequest) book(id string) model.Book {
	return model.Book{
		ID:          id,
		Title:       req.Title,
		Author:      req.Author,
		ISBN:        req.ISBN,
		Publisher:   req.Publisher,
		Description: req.Description,
		Price:       req.Price,
		Inventory:   req.Inventory,
	}
}

// CreateBook добавляет книгу в каталог. Доступно только администраторам.
func (h *Handler) CreateBook(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.GetPrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req bookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	b, err := h.service.CreateBook(r.Context(), p.Username, req.book(""))
	if err != nil {
		h.writeCatalogError(w, err, "create book error", p.Username)
		return
	}

	h.writeJSON(w, http.StatusCreated, newBookResponse(*b))
}

// UpdateBook перезаписывает карточку книги, включая остаток. Доступно только администраторам.
func (h *Handler) UpdateBook(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.GetPrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req bookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	b, err := h.service.UpdateBook(r.Context(), p.Username, req.book(chi.URLParam(r, "id")))
	if err != nil {
		h.writeCatalogError(w, err, "update book error", p.Username)
		return
	}

	h.writeJSON(w, http.StatusOK, newBookResponse(*b))
}

// DeleteBook удаляет книгу из каталога. Доступно только администраторам.
func (h *Handler) DeleteBook(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.GetPrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	if err := h.service.DeleteBook(r.Context(), p.Username, chi.URLParam(r, "id")); err != nil {
		h.writeCatalogError(w, err, "delete book error", p.Username)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeCatalogError(w http.ResponseWriter, err error, msg, username string) {
	switch {
	case errors.Is(err, service.ErrForbidden):
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
	case errors.Is(err, service.ErrInvalidBook):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, repository.ErrBookNotFound):
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	case errors.Is(err, repository.ErrBookExists):
		http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
	default:
		h.logger.Error(msg, zap.Error(err), zap.String("username", username))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// filterFunc строит фильтр каталога из параметров запроса.
type filterFunc func(r *http.Request) (model.BookFilter, error)

// SearchBooks возвращает обработчик поиска по каталогу с заданным разбором параметров.
func (h *Handler) SearchBooks(parse filterFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := parse(r)
		if err != nil {
			writeText(w, http.StatusBadRequest, invalidSearchMessage)
			return
		}

		books, err := h.service.SearchBooks(r.Context(), f)
		if err != nil {
			if errors.Is(err, service.ErrInvalidFilter) {
				writeText(w, http.StatusBadRequest, invalidSearchMessage)
				return
			}
			h.logger.Error("search books error", zap.Error(err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}

		h.writeBooks(w, books)
	}
}

func byTitle(r *http.Request) (model.BookFilter, error) {
	return model.BookFilter{Title: r.URL.Query().Get("keyword")}, nil
}

func byAuthor(r *http.Request) (model.BookFilter, error) {
	return model.BookFilter{Author: r.URL.Query().Get("author")}, nil
}

func byPublisher(r *http.Request) (model.BookFilter, error) {
	return model.BookFilter{Publisher: r.URL.Query().Get("publisher")}, nil
}

func byISBN(r *http.Request) (model.BookFilter, error) {
	return model.BookFilter{ISBN: r.URL.Query().Get("isbn")}, nil
}

func byPriceRange(r *http.Request) (model.BookFilter, error) {
	var (
		f   model.BookFilter
		err error
	)
	q := r.URL.Query()
	if f.MinPrice, err = optionalDecimal(q.Get("minPrice")); err != nil {
		return f, err
	}
	if f.MaxPrice, err = optionalDecimal(q.Get("maxPrice")); err != nil {
		return f, err
	}
	return f, nil
}

func byMinInventory(r *http.Request) (model.BookFilter, error) {
	raw := r.URL.Query().Get("minInventory")
	if raw == "" {
		return model.BookFilter{}, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return model.BookFilter{}, err
	}
	return model.BookFilter{MinInventory: &n}, nil
}

func optionalDecimal(raw string) (*decimal.Decimal, error) {
	if raw == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
