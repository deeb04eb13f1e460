package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/mmeshcher/bookstore/internal/model"
)

// MemoryRepository хранит данные в памяти процесса.
// Используется, когда адрес БД не задан, и в тестах.
type MemoryRepository struct {
	mu sync.Mutex

	users     map[string]model.User
	nextUser  int64
	books     map[string]model.Book
	purchases []model.Purchase
	outbox    []OutboxEvent
	sent      map[int64]bool

	outboxEnabled bool
}

// NewMemoryRepository создаёт пустое хранилище в памяти.
func NewMemoryRepository(opts ...Option) *MemoryRepository {
	return &MemoryRepository{
		users:         make(map[string]model.User),
		books:         make(map[string]model.Book),
		sent:          make(map[int64]bool),
		outboxEnabled: newSettings(opts).outbox,
	}
}

// Close ничего не делает.
func (m *MemoryRepository) Close() error { return nil }

// Ping всегда успешен.
func (m *MemoryRepository) Ping(ctx context.Context) error { return nil }

// CreateUser создаёт нового пользователя.
func (m *MemoryRepository) CreateUser(ctx context.Context, u model.User) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[u.Username]; ok {
		return 0, fmt.Errorf("%w: %s", ErrUserExists, u.Username)
	}

	m.nextUser++
	u.ID = m.nextUser
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	m.users[u.Username] = u
	return u.ID, nil
}

// GetUserByUsername возвращает пользователя по имени.
func (m *MemoryRepository) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[username]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}

// CreateBook добавляет книгу в каталог.
func (m *MemoryRepository) CreateBook(ctx context.Context, b model.Book) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.books[b.ID]; ok {
		return fmt.Errorf("%w: %s", ErrBookExists, b.ID)
	}
	m.books[b.ID] = b
	return nil
}

// UpdateBook перезаписывает карточку книги вместе с остатком.
func (m *MemoryRepository) UpdateBook(ctx context.Context, b model.Book) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.books[b.ID]; !ok {
		return &BookNotFoundError{BookID: b.ID}
	}
	m.books[b.ID] = b
	return nil
}

// DeleteBook удаляет книгу из каталога.
func (m *MemoryRepository) DeleteBook(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.books[id]; !ok {
		return &BookNotFoundError{BookID: id}
	}
	delete(m.books, id)
	return nil
}

// GetBook возвращает книгу по идентификатору.
func (m *MemoryRepository) GetBook(ctx context.Context, id string) (*model.Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.books[id]
	if !ok {
		return nil, &BookNotFoundError{BookID: id}
	}
	return &b, nil
}

// ListBooks возвращает весь каталог, отсортированный по названию.
func (m *MemoryRepository) ListBooks(ctx context.Context) ([]model.Book, error) {
	return m.SearchBooks(ctx, model.BookFilter{})
}

// SearchBooks возвращает книги, подходящие под фильтр, отсортированные по названию.
func (m *MemoryRepository) SearchBooks(ctx context.Context, f model.BookFilter) ([]model.Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	res := make([]model.Book, 0, len(m.books))
	for _, b := range m.books {
		if f.Match(b) {
			res = append(res, b)
		}
	}
	slices.SortFunc(res, func(a, b model.Book) int {
		if c := strings.Compare(a.Title, b.Title); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return res, nil
}

// CreatePurchase списывает остатки и сохраняет покупку атомарно.
// Изменения копятся в staged и применяются только после проверки всех позиций.
func (m *MemoryRepository) CreatePurchase(ctx context.Context, user model.User, items []model.CartItem, purchasedAt time.Time) (*model.Purchase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	staged := make(map[string]model.Book)
	p := model.Purchase{
		ID:           int64(len(m.purchases) + 1),
		UserID:       user.ID,
		PurchaseDate: purchasedAt,
		Items:        make([]model.PurchaseItem, 0, len(items)),
	}

	for _, it := range items {
		b, ok := staged[it.BookID]
		if !ok {
			b, ok = m.books[it.BookID]
			if !ok {
				return nil, &BookNotFoundError{BookID: it.BookID}
			}
		}
		if b.Inventory < it.Quantity {
			return nil, &InsufficientInventoryError{
				BookID:    b.ID,
				Title:     b.Title,
				Requested: it.Quantity,
				Available: b.Inventory,
			}
		}
		b.Inventory -= it.Quantity
		staged[b.ID] = b
		p.Items = append(p.Items, model.NewPurchaseItem(b, it.Quantity))
	}

	var pending *OutboxEvent
	if m.outboxEnabled {
		event := newPurchaseEvent(user.Username, &p, items)
		payload, err := json.Marshal(event)
		if err != nil {
			return nil, fmt.Errorf("marshal purchase event: %w", err)
		}
		pending = &OutboxEvent{
			ID:        int64(len(m.outbox) + 1),
			EventID:   event.EventID,
			EventType: EventPurchaseCompleted,
			Key:       user.Username,
			Payload:   payload,
			CreatedAt: time.Now().UTC(),
		}
	}

	for id, b := range staged {
		m.books[id] = b
	}
	m.purchases = append(m.purchases, p)
	if pending != nil {
		m.outbox = append(m.outbox, *pending)
	}

	res := p
	res.Items = slices.Clone(p.Items)
	return &res, nil
}

// GetPurchasesByUser возвращает историю покупок пользователя, новые первыми.
func (m *MemoryRepository) GetPurchasesByUser(ctx context.Context, userID int64) ([]model.Purchase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var res []model.Purchase
	for i := len(m.purchases) - 1; i >= 0; i-- {
		p := m.purchases[i]
		if p.UserID != userID {
			continue
		}
		p.Items = slices.Clone(p.Items)
		res = append(res, p)
	}
	slices.SortStableFunc(res, func(a, b model.Purchase) int {
		return b.PurchaseDate.Compare(a.PurchaseDate)
	})
	return res, nil
}

// GetPendingEvents возвращает неотправленные события в порядке их записи.
func (m *MemoryRepository) GetPendingEvents(ctx context.Context, limit int) ([]OutboxEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var res []OutboxEvent
	for _, e := range m.outbox {
		if len(res) == limit {
			break
		}
		if !m.sent[e.ID] {
			res = append(res, e)
		}
	}
	return res, nil
}

// MarkEventsSent отмечает события как отправленные.
func (m *MemoryRepository) MarkEventsSent(ctx context.Context, ids []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range ids {
		m.sent[id] = true
	}
	return nil
}
