package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/bookstore/internal/middleware"
	"github.com/mmeshcher/bookstore/internal/model"
	"github.com/mmeshcher/bookstore/internal/repository"
	"github.com/mmeshcher/bookstore/internal/service"
	"github.com/mmeshcher/bookstore/internal/validation"
)

const checkoutSuccessMessage = "Checkout successful."

type cartItemRequest struct {
	BookID   string `json:"bookId"`
	Quantity int    `json:"quantity"`
}

// Checkout оформляет покупку содержимого корзины текущего пользователя.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.GetPrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req []cartItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeText(w, http.StatusBadRequest, "Invalid cart.")
		return
	}

	items := make([]model.CartItem, 0, len(req))
	for _, it := range req {
		items = append(items, model.CartItem{BookID: it.BookID, Quantity: it.Quantity})
	}

	_, err := h.service.Checkout(r.Context(), p.Username, items)
	if err != nil {
		if msg, ok := checkoutRejection(err); ok {
			writeText(w, http.StatusBadRequest, msg)
			return
		}
		h.logger.Error("checkout error", zap.Error(err), zap.String("username", p.Username))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeText(w, http.StatusOK, checkoutSuccessMessage)
}

// checkoutRejection возвращает текст отказа для ошибок, вызванных содержимым запроса.
func checkoutRejection(err error) (string, bool) {
	var (
		notFound     *repository.BookNotFoundError
		insufficient *repository.InsufficientInventoryError
	)

	switch {
	case errors.Is(err, service.ErrInvalidRole):
		return "User not found or invalid role.", true
	case errors.As(err, &notFound):
		return "Book with ID " + notFound.BookID + " not found.", true
	case errors.As(err, &insufficient):
		return "Not enough inventory for book: " + insufficient.Title, true
	case errors.Is(err, validation.ErrEmptyCart):
		return "Cart is empty.", true
	case errors.Is(err, validation.ErrInvalidCartItem):
		return "Invalid cart item.", true
	default:
		return "", false
	}
}

type purchaseItemResponse struct {
	BookID        string      `json:"bookId"`
	Quantity      int         `json:"quantity"`
	Title         string      `json:"title"`
	Author        string      `json:"author"`
	ISBN          string      `json:"isbn"`
	PurchasePrice json.Number `json:"purchasePrice"`
}

type purchaseResponse struct {
	ID           int64                  `json:"id"`
	PurchaseDate string                 `json:"purchaseDate"`
	Items        []purchaseItemResponse `json:"items"`
}

// GetPurchaseHistory возвращает историю покупок текущего пользователя.
func (h *Handler) GetPurchaseHistory(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.GetPrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	purchases, err := h.service.GetPurchaseHistory(r.Context(), p.Username)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h.logger.Error("get purchase history error", zap.Error(err), zap.String("username", p.Username))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	resp := make([]purchaseResponse, 0, len(purchases))
	for _, pur := range purchases {
		items := make([]purchaseItemResponse, 0, len(pur.Items))
		for _, it := range pur.Items {
			items = append(items, purchaseItemResponse{
				BookID:        it.BookID,
				Quantity:      it.Quantity,
				Title:         it.Title,
				Author:        it.Author,
				ISBN:          it.ISBN,
				PurchasePrice: json.Number(it.PurchasePrice.String()),
			})
		}
		resp = append(resp, purchaseResponse{
			ID:           pur.ID,
			PurchaseDate: pur.PurchaseDate.Format(time.RFC3339),
			Items:        items,
		})
	}

	h.writeJSON(w, http.StatusOK, resp)
}
