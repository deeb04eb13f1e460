package validation

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/mmeshcher/bookstore/internal/model"
)

var (
	// ErrEmptyCart возвращается для корзины без позиций.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrInvalidCartItem возвращается для позиции без книги или с количеством вне допустимого диапазона.
	ErrInvalidCartItem = errors.New("invalid cart item")
)

// MaxQuantity ограничивает количество в позиции и остаток книги размером столбца INTEGER.
const MaxQuantity = math.MaxInt32

// ValidateCart проверяет форму корзины до обращения к каталогу.
func ValidateCart(items []model.CartItem) error {
	if len(items) == 0 {
		return ErrEmptyCart
	}
	for i, it := range items {
		if strings.TrimSpace(it.BookID) == "" {
			return fmt.Errorf("%w: item %d has no book id", ErrInvalidCartItem, i)
		}
		if it.Quantity <= 0 || it.Quantity > MaxQuantity {
			return fmt.Errorf("%w: item %d has quantity %d", ErrInvalidCartItem, i, it.Quantity)
		}
	}
	return nil
}
