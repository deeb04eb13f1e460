package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/mmeshcher/bookstore/internal/model"
	"github.com/mmeshcher/bookstore/internal/repository"
	"github.com/mmeshcher/bookstore/internal/validation"
)

// Checkout оформляет покупку корзины пользователем с ролью CUSTOMER.
// Остатки списываются в порядке позиций корзины; при любой ошибке не меняется ничего.
func (s *Service) Checkout(ctx context.Context, username string, items []model.CartItem) (*model.Purchase, error) {
	user, err := s.repo.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			s.metrics.CheckoutRejected("invalid_role")
			return nil, ErrInvalidRole
		}
		return nil, err
	}
	if !canCheckout(user.Role) {
		s.metrics.CheckoutRejected("invalid_role")
		return nil, ErrInvalidRole
	}

	if err := validation.ValidateCart(items); err != nil {
		s.metrics.CheckoutRejected("invalid_cart")
		return nil, err
	}

	purchase, err := s.repo.CreatePurchase(ctx, *user, items, s.now().UTC())
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrBookNotFound):
			s.metrics.CheckoutRejected("book_not_found")
		case errors.Is(err, repository.ErrInsufficientInventory):
			s.metrics.CheckoutRejected("insufficient_inventory")
		default:
			s.metrics.CheckoutRejected("error")
		}
		s.logger.Info("checkout rejected", zap.String("username", username), zap.Error(err))
		return nil, err
	}

	quantity := 0
	for _, it := range purchase.Items {
		quantity += it.Quantity
	}
	s.metrics.CheckoutCompleted(quantity)

	s.logger.Info("checkout completed",
		zap.String("username", username),
		zap.Int64("purchaseID", purchase.ID),
		zap.Int("items", len(purchase.Items)),
		zap.Int("quantity", quantity),
		zap.String("total", purchase.Total().StringFixed(2)),
	)

	return purchase, nil
}

// GetPurchaseHistory возвращает все покупки пользователя.
// Для неизвестного пользователя возвращается repository.ErrUserNotFound.
func (s *Service) GetPurchaseHistory(ctx context.Context, username string) ([]model.Purchase, error) {
	user, err := s.repo.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	return s.repo.GetPurchasesByUser(ctx, user.ID)
}
