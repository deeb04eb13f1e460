// Package model содержит доменные сущности книжного магазина.
package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Role описывает роль пользователя.
type Role string

const (
	RoleCustomer Role = "CUSTOMER"
	RoleAdmin    Role = "ADMIN"
)

// Valid сообщает, является ли значение одной из известных ролей.
func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleAdmin:
		return true
	default:
		return false
	}
}

// User представляет зарегистрированного пользователя магазина.
type User struct {
	ID           int64
	Username     string
	PasswordHash []byte
	Email        string
	FirstName    string
	LastName     string
	Role         Role
	CreatedAt    time.Time
}

// Book описывает позицию каталога и её складской остаток.
type Book struct {
	ID          string
	Title       string
	Author      string
	ISBN        string
	Publisher   string
	Description string
	Price       decimal.Decimal
	Inventory   int
}

// BookFilter задаёт условия поиска по каталогу. Пустые поля выборку не ограничивают.
// Строковые условия сравниваются по вхождению без учёта регистра, ISBN точно.
type BookFilter struct {
	Title        string
	Author       string
	Publisher    string
	ISBN         string
	MinPrice     *decimal.Decimal
	MaxPrice     *decimal.Decimal
	MinInventory *int
}

// Empty сообщает, что фильтр не задаёт ни одного условия.
func (f BookFilter) Empty() bool {
	return f.Title == "" && f.Author == "" && f.Publisher == "" && f.ISBN == "" &&
		f.MinPrice == nil && f.MaxPrice == nil && f.MinInventory == nil
}

// Match проверяет книгу на соответствие фильтру.
func (f BookFilter) Match(b Book) bool {
	switch {
	case f.Title != "" && !containsFold(b.Title, f.Title):
		return false
	case f.Author != "" && !containsFold(b.Author, f.Author):
		return false
	case f.Publisher != "" && !containsFold(b.Publisher, f.Publisher):
		return false
	case f.ISBN != "" && b.ISBN != f.ISBN:
		return false
	case f.MinPrice != nil && b.Price.LessThan(*f.MinPrice):
		return false
	case f.MaxPrice != nil && b.Price.GreaterThan(*f.MaxPrice):
		return false
	case f.MinInventory != nil && b.Inventory < *f.MinInventory:
		return false
	default:
		return true
	}
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// CartItem описывает позицию корзины, присланную клиентом.
type CartItem struct {
	BookID   string `json:"bookId"`
	Quantity int    `json:"quantity"`
}

// PurchaseItem хранит снимок книги на момент покупки.
type PurchaseItem struct {
	BookID        string
	Title         string
	Author        string
	ISBN          string
	Quantity      int
	PurchasePrice decimal.Decimal
}

// NewPurchaseItem фиксирует данные книги в строке покупки.
func NewPurchaseItem(b Book, quantity int) PurchaseItem {
	return PurchaseItem{
		BookID:        b.ID,
		Title:         b.Title,
		Author:        b.Author,
		ISBN:          b.ISBN,
		Quantity:      quantity,
		PurchasePrice: b.Price,
	}
}

// Purchase описывает оформленную покупку пользователя.
type Purchase struct {
	ID           int64
	UserID       int64
	PurchaseDate time.Time
	Items        []PurchaseItem
}

// Total возвращает сумму покупки.
func (p Purchase) Total() decimal.Decimal {
	total := decimal.Zero
	for _, it := range p.Items {
		total = total.Add(it.PurchasePrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return total
}

// PurchaseEvent публикуется во внешнюю шину после успешного оформления покупки.
type PurchaseEvent struct {
	EventID      string          `json:"eventId"`
	PurchaseID   int64           `json:"purchaseId"`
	Username     string          `json:"username"`
	PurchaseDate time.Time       `json:"purchaseDate"`
	Total        decimal.Decimal `json:"total"`
	Items        []CartItem      `json:"items"`
}
