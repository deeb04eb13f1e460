package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mmeshcher/bookstore/internal/metrics"
	"github.com/mmeshcher/bookstore/internal/middleware"
	"github.com/mmeshcher/bookstore/internal/model"
	"github.com/mmeshcher/bookstore/internal/repository"
	"github.com/mmeshcher/bookstore/internal/service"
)

type testStore struct {
	repo   *repository.MemoryRepository
	auth   *middleware.AuthMiddleware
	router http.Handler
}

func newTestStore(t *testing.T) *testStore {
	t.Helper()

	repo := repository.NewMemoryRepository()
	m := metrics.New(prometheus.NewRegistry())
	svc := service.NewService(repo, nil, zap.NewNop(),
		service.WithAdmins("root"),
		service.WithMetrics(m),
		service.WithClock(func() time.Time { return time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC) }),
	)
	auth := middleware.NewAuthMiddleware("router-secret", time.Hour)

	require.NoError(t, repo.CreateBook(context.Background(), model.Book{
		ID:        "B1",
		Title:     "Dune",
		Author:    "Frank Herbert",
		ISBN:      "9780441172719",
		Price:     decimal.RequireFromString("9.99"),
		Inventory: 5,
	}))

	return &testStore{
		repo:   repo,
		auth:   auth,
		router: NewHandler(svc, zap.NewNop(), auth, m).SetupRouter(),
	}
}

func (s *testStore) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()

	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, r)
	return rec
}

func (s *testStore) signUp(t *testing.T, username string) string {
	t.Helper()

	reg, _ := json.Marshal(registerRequest{
		Username:  username,
		Password:  "secret",
		Email:     username + "@example.com",
		FirstName: "Test",
		LastName:  "User",
	})
	rec := s.do(t, http.MethodPost, "/api/auth/register", "", string(reg))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	login, _ := json.Marshal(loginRequest{Username: username, Password: "secret"})
	rec = s.do(t, http.MethodPost, "/api/auth/login", "", string(login))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp loginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Token
}

func (s *testStore) inventory(t *testing.T, id string) int {
	t.Helper()

	b, err := s.repo.GetBook(context.Background(), id)
	require.NoError(t, err)
	return b.Inventory
}

func TestRouter_CheckoutAndHistory(t *testing.T) {
	s := newTestStore(t)
	token := s.signUp(t, "alice")

	rec := s.do(t, http.MethodGet, "/api/purchase/history", token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/api/purchase/checkout", token, `[{"bookId":"B1","quantity":2}]`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Checkout successful.", rec.Body.String())
	assert.Equal(t, 3, s.inventory(t, "B1"))

	rec = s.do(t, http.MethodGet, "/api/purchase/history", token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{
		"id": 1,
		"purchaseDate": "2024-05-01T10:00:00Z",
		"items": [{
			"bookId": "B1",
			"quantity": 2,
			"title": "Dune",
			"author": "Frank Herbert",
			"isbn": "9780441172719",
			"purchasePrice": 9.99
		}]
	}]`, rec.Body.String())
}

func TestRouter_CheckoutIsAtomic(t *testing.T) {
	s := newTestStore(t)
	token := s.signUp(t, "alice")

	rec := s.do(t, http.MethodPost, "/api/purchase/checkout", token,
		`[{"bookId":"B1","quantity":2},{"bookId":"B1","quantity":4}]`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Not enough inventory for book: Dune", rec.Body.String())
	assert.Equal(t, 5, s.inventory(t, "B1"))

	rec = s.do(t, http.MethodGet, "/api/purchase/history", token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestRouter_CheckoutUnknownBook(t *testing.T) {
	s := newTestStore(t)
	token := s.signUp(t, "alice")

	rec := s.do(t, http.MethodPost, "/api/purchase/checkout", token,
		`[{"bookId":"B1","quantity":1},{"bookId":"NOPE","quantity":1}]`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Book with ID NOPE not found.", rec.Body.String())
	assert.Equal(t, 5, s.inventory(t, "B1"))
}

func TestRouter_AdminCannotCheckout(t *testing.T) {
	s := newTestStore(t)
	token := s.signUp(t, "root")

	rec := s.do(t, http.MethodPost, "/api/purchase/checkout", token, `[{"bookId":"B1","quantity":1}]`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "User not found or invalid role.", rec.Body.String())
	assert.Equal(t, 5, s.inventory(t, "B1"))
}

func TestRouter_UnknownUserWithValidToken(t *testing.T) {
	s := newTestStore(t)

	token, err := s.auth.IssueToken(model.User{ID: 42, Username: "ghost", Role: model.RoleCustomer})
	require.NoError(t, err)

	rec := s.do(t, http.MethodPost, "/api/purchase/checkout", token, `[{"bookId":"B1","quantity":1}]`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "User not found or invalid role.", rec.Body.String())

	rec = s.do(t, http.MethodGet, "/api/purchase/history", token, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestRouter_RequiresAuthentication(t *testing.T) {
	s := newTestStore(t)

	rec := s.do(t, http.MethodPost, "/api/purchase/checkout", "", `[{"bookId":"B1","quantity":1}]`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/purchase/history", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, 5, s.inventory(t, "B1"))
}

func TestRouter_Catalog(t *testing.T) {
	s := newTestStore(t)
	admin := s.signUp(t, "root")
	customer := s.signUp(t, "alice")

	book := `{"title":"Neuromancer","author":"William Gibson","isbn":"0-441-56959-5","price":7.5,"inventory":2}`

	rec := s.do(t, http.MethodPost, "/api/books", customer, book)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/books", admin, book)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created bookResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "0441569595", created.ISBN)

	rec = s.do(t, http.MethodGet, "/api/books/"+created.ID, "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/books/missing", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/books", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var books []bookResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &books))
	require.Len(t, books, 2)
	assert.Equal(t, "Dune", books[0].Title)
	assert.Equal(t, "Neuromancer", books[1].Title)
}

func TestRouter_MetricsEndpoint(t *testing.T) {
	s := newTestStore(t)
	token := s.signUp(t, "alice")

	s.do(t, http.MethodPost, "/api/purchase/checkout", token, `[{"bookId":"B1","quantity":1}]`)

	rec := s.do(t, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "bookstore_purchase_books_sold_total 1")
	assert.Contains(t, body, `route="/api/purchase/checkout"`)
}

func TestRouter_GzipResponse(t *testing.T) {
	s := newTestStore(t)

	r := httptest.NewRequest(http.MethodGet, "/api/books", nil)
	r.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, r)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))
	assert.False(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("[")))
}

func TestRouter_AdminRestocksAndDeletes(t *testing.T) {
	s := newTestStore(t)
	admin := s.signUp(t, "root")
	customer := s.signUp(t, "alice")

	rec := s.do(t, http.MethodPost, "/api/purchase/checkout", customer, `[{"bookId":"B1","quantity":5}]`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, s.inventory(t, "B1"))

	restock := `{"title":"Dune","author":"Frank Herbert","isbn":"9780441172719","publisher":"Ace",` +
		`"description":"Desert planet","price":10.99,"inventory":4}`

	rec = s.do(t, http.MethodPut, "/api/books/B1", customer, restock)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodPut, "/api/books/B1", "", restock)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodPut, "/api/books/B1", admin, restock)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{
		"id": "B1",
		"title": "Dune",
		"author": "Frank Herbert",
		"isbn": "9780441172719",
		"publisher": "Ace",
		"description": "Desert planet",
		"price": 10.99,
		"inventory": 4
	}`, rec.Body.String())
	assert.Equal(t, 4, s.inventory(t, "B1"))

	rec = s.do(t, http.MethodPut, "/api/books/NOPE", admin, restock)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/purchase/checkout", customer, `[{"bookId":"B1","quantity":1}]`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodDelete, "/api/books/B1", customer, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodDelete, "/api/books/B1", admin, "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/books/B1", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/purchase/checkout", customer, `[{"bookId":"B1","quantity":1}]`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Book with ID B1 not found.", rec.Body.String())

	rec = s.do(t, http.MethodGet, "/api/purchase/history", customer, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var history []purchaseResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	require.Len(t, history, 2)
	assert.Equal(t, json.Number("10.99"), history[0].Items[0].PurchasePrice)
	assert.Equal(t, json.Number("9.99"), history[1].Items[0].PurchasePrice)
}

func TestRouter_SearchAndFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.repo.CreateBook(ctx, model.Book{
		ID:        "B2",
		Title:     "Neuromancer",
		Author:    "William Gibson",
		ISBN:      "0441569595",
		Publisher: "Ace",
		Price:     decimal.RequireFromString("7.50"),
		Inventory: 0,
	}))

	tests := []struct {
		name    string
		target  string
		wantIDs []string
	}{
		{name: "title", target: "/api/books/search?keyword=DUNE", wantIDs: []string{"B1"}},
		{name: "author", target: "/api/books/search/author?author=gibson", wantIDs: []string{"B2"}},
		{name: "publisher", target: "/api/books/search/publisher?publisher=ace", wantIDs: []string{"B2"}},
		{name: "isbn with hyphens", target: "/api/books/search/isbn?isbn=0-441-56959-5", wantIDs: []string{"B2"}},
		{name: "price range", target: "/api/books/filter/price?minPrice=8&maxPrice=10", wantIDs: []string{"B1"}},
		{name: "in stock", target: "/api/books/filter/inventory?minInventory=1", wantIDs: []string{"B1"}},
		{name: "no match", target: "/api/books/search?keyword=Foundation", wantIDs: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodGet, tt.target, "", "")
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			var books []bookResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &books))

			ids := make([]string, 0, len(books))
			for _, b := range books {
				ids = append(ids, b.ID)
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}

	rec := s.do(t, http.MethodGet, "/api/books/filter/price?minPrice=10&maxPrice=1", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid search parameters.", rec.Body.String())
}

func TestRouter_QuantityAboveStorableRange(t *testing.T) {
	s := newTestStore(t)
	token := s.signUp(t, "alice")

	rec := s.do(t, http.MethodPost, "/api/purchase/checkout", token, `[{"bookId":"B1","quantity":2147483648}]`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid cart item.", rec.Body.String())
	assert.Equal(t, 5, s.inventory(t, "B1"))
}

func TestRouter_UnknownPathsShareMetricsSeries(t *testing.T) {
	s := newTestStore(t)

	for i := 0; i < 5; i++ {
		rec := s.do(t, http.MethodGet, fmt.Sprintf("/scan-%d", i), "", "")
		require.Equal(t, http.StatusNotFound, rec.Code)
	}

	rec := s.do(t, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `bookstore_http_requests_total{route="unmatched",status="404"} 5`)
	assert.NotContains(t, rec.Body.String(), "/scan-")
}
