package repository

import (
	"errors"
	"fmt"
)

var (
	// ErrUserExists возвращается при попытке создать пользователя с уже существующим именем.
	ErrUserExists = errors.New("user already exists")
	// ErrUserNotFound возвращается, если пользователь не найден.
	ErrUserNotFound = errors.New("user not found")
	// ErrBookExists возвращается при попытке добавить книгу с уже занятым идентификатором.
	ErrBookExists = errors.New("book already exists")
	// ErrBookNotFound возвращается, если книга отсутствует в каталоге.
	ErrBookNotFound = errors.New("book not found")
	// ErrInsufficientInventory возвращается, если остатка книги не хватает для покупки.
	ErrInsufficientInventory = errors.New("insufficient inventory")
)

// BookNotFoundError уточняет ErrBookNotFound идентификатором отсутствующей книги.
type BookNotFoundError struct {
	BookID string
}

func (e *BookNotFoundError) Error() string {
	return fmt.Sprintf("book %q not found", e.BookID)
}

// Is позволяет сравнивать ошибку с ErrBookNotFound через errors.Is.
func (e *BookNotFoundError) Is(target error) bool {
	return target == ErrBookNotFound
}

// InsufficientInventoryError уточняет ErrInsufficientInventory данными книги.
type InsufficientInventoryError struct {
	BookID    string
	Title     string
	Requested int
	Available int
}

func (e *InsufficientInventoryError) Error() string {
	return fmt.Sprintf("insufficient inventory for book %q: requested %d, available %d", e.Title, e.Requested, e.Available)
}

// Is позволяет сравнивать ошибку с ErrInsufficientInventory через errors.Is.
func (e *InsufficientInventoryError) Is(target error) bool {
	return target == ErrInsufficientInventory
}
