// Package service реализует бизнес-логику книжного магазина.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/mmeshcher/bookstore/internal/events"
	"github.com/mmeshcher/bookstore/internal/metrics"
	"github.com/mmeshcher/bookstore/internal/model"
	"github.com/mmeshcher/bookstore/internal/repository"
	"github.com/mmeshcher/bookstore/internal/validation"
)

var (
	// ErrInvalidCredentials возвращается при неверной паре имя/пароль.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidRole возвращается, если пользователь не найден или его роль не допускает операцию.
	ErrInvalidRole = errors.New("user not found or invalid role")
	// ErrForbidden возвращается, если операция требует роли администратора.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidUser возвращается для неполных регистрационных данных.
	ErrInvalidUser = errors.New("invalid user data")
	// ErrInvalidBook возвращается для некорректной карточки книги.
	ErrInvalidBook = errors.New("invalid book data")
	// ErrInvalidFilter возвращается для пустых или противоречивых условий поиска.
	ErrInvalidFilter = errors.New("invalid search filter")
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	Ping(ctx context.Context) error
	CreateUser(ctx context.Context, u model.User) (int64, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	CreateBook(ctx context.Context, b model.Book) error
	UpdateBook(ctx context.Context, b model.Book) error
	DeleteBook(ctx context.Context, id string) error
	GetBook(ctx context.Context, id string) (*model.Book, error)
	ListBooks(ctx context.Context) ([]model.Book, error)
	SearchBooks(ctx context.Context, f model.BookFilter) ([]model.Book, error)
	CreatePurchase(ctx context.Context, user model.User, items []model.CartItem, purchasedAt time.Time) (*model.Purchase, error)
	GetPurchasesByUser(ctx context.Context, userID int64) ([]model.Purchase, error)
	GetPendingEvents(ctx context.Context, limit int) ([]repository.OutboxEvent, error)
	MarkEventsSent(ctx context.Context, ids []int64) error
}

// EventPublisher отправляет события во внешнюю шину.
type EventPublisher interface {
	Publish(ctx context.Context, events []events.Event) error
}

// Service содержит бизнес-логику книжного магазина.
type Service struct {
	repo      Repository
	publisher EventPublisher
	logger    *zap.Logger
	metrics   *metrics.Metrics
	admins    map[string]struct{}
	now       func() time.Time
}

// Option настраивает Service.
type Option func(*Service)

// WithAdmins задаёт имена пользователей, получающих роль ADMIN при регистрации.
func WithAdmins(usernames ...string) Option {
	return func(s *Service) {
		for _, u := range usernames {
			if u = strings.TrimSpace(u); u != "" {
				s.admins[u] = struct{}{}
			}
		}
	}
}

// WithMetrics подключает метрики оформления покупок.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService создаёт новый сервис. publisher может быть nil, тогда события не отправляются.
func NewService(repo Repository, publisher EventPublisher, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
		admins:    make(map[string]struct{}),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// Ping проверяет доступность хранилища.
func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

// RegisterUser регистрирует нового пользователя.
func (s *Service) RegisterUser(ctx context.Context, u model.User, password string) (*model.User, error) {
	u.Username = strings.TrimSpace(u.Username)
	if u.Username == "" || password == "" || u.Email == "" || u.FirstName == "" || u.LastName == "" {
		return nil, ErrInvalidUser
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u.PasswordHash = hashed

	u.Role = model.RoleCustomer
	if _, ok := s.admins[u.Username]; ok {
		u.Role = model.RoleAdmin
	}
	u.CreatedAt = s.now().UTC()

	id, err := s.repo.CreateUser(ctx, u)
	if err != nil {
		return nil, err
	}
	u.ID = id
	return &u, nil
}

// AuthenticateUser проверяет имя и пароль пользователя.
func (s *Service) AuthenticateUser(ctx context.Context, username, password string) (*model.User, error) {
	u, err := s.repo.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return u, nil
}

// ListBooks возвращает каталог.
func (s *Service) ListBooks(ctx context.Context) ([]model.Book, error) {
	return s.repo.ListBooks(ctx)
}

// GetBook возвращает книгу по идентификатору.
func (s *Service) GetBook(ctx context.Context, id string) (*model.Book, error) {
	return s.repo.GetBook(ctx, id)
}

// CreateBook добавляет книгу в каталог от имени администратора.
func (s *Service) CreateBook(ctx context.Context, username string, b model.Book) (*model.Book, error) {
	if err := s.requireCatalogManager(ctx, username); err != nil {
		return nil, err
	}
	if err := normalizeBook(&b); err != nil {
		return nil, err
	}
	if b.ID == "" {
		b.ID = uuid.NewString()
	}

	if err := s.repo.CreateBook(ctx, b); err != nil {
		return nil, err
	}

	s.logger.Info("book created",
		zap.String("bookID", b.ID),
		zap.String("title", b.Title),
		zap.Int("inventory", b.Inventory),
		zap.String("by", username),
	)
	return &b, nil
}

// UpdateBook перезаписывает карточку книги, в том числе остаток. Доступно только администраторам.
func (s *Service) UpdateBook(ctx context.Context, username string, b model.Book) (*model.Book, error) {
	if err := s.requireCatalogManager(ctx, username); err != nil {
		return nil, err
	}
	if err := normalizeBook(&b); err != nil {
		return nil, err
	}

	if err := s.repo.UpdateBook(ctx, b); err != nil {
		return nil, err
	}

	s.logger.Info("book updated",
		zap.String("bookID", b.ID),
		zap.Int("inventory", b.Inventory),
		zap.String("by", username),
	)
	return &b, nil
}

// DeleteBook удаляет книгу из каталога. Доступно только администраторам.
func (s *Service) DeleteBook(ctx context.Context, username, id string) error {
	if err := s.requireCatalogManager(ctx, username); err != nil {
		return err
	}
	if err := s.repo.DeleteBook(ctx, id); err != nil {
		return err
	}

	s.logger.Info("book deleted", zap.String("bookID", id), zap.String("by", username))
	return nil
}

// SearchBooks ищет книги по фильтру. Хотя бы одно условие обязательно.
func (s *Service) SearchBooks(ctx context.Context, f model.BookFilter) ([]model.Book, error) {
	f.Title = strings.TrimSpace(f.Title)
	f.Author = strings.TrimSpace(f.Author)
	f.Publisher = strings.TrimSpace(f.Publisher)
	f.ISBN = validation.NormalizeISBN(strings.TrimSpace(f.ISBN))

	switch {
	case f.Empty():
		return nil, fmt.Errorf("%w: no conditions", ErrInvalidFilter)
	case f.MinPrice != nil && f.MinPrice.IsNegative(), f.MaxPrice != nil && f.MaxPrice.IsNegative():
		return nil, fmt.Errorf("%w: negative price", ErrInvalidFilter)
	case f.MinPrice != nil && f.MaxPrice != nil && f.MinPrice.GreaterThan(*f.MaxPrice):
		return nil, fmt.Errorf("%w: min price above max price", ErrInvalidFilter)
	case f.MinInventory != nil && (*f.MinInventory < 0 || *f.MinInventory > validation.MaxQuantity):
		return nil, fmt.Errorf("%w: inventory %d", ErrInvalidFilter, *f.MinInventory)
	}

	return s.repo.SearchBooks(ctx, f)
}

func (s *Service) requireCatalogManager(ctx context.Context, username string) error {
	u, err := s.repo.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrForbidden
		}
		return err
	}
	if !canManageCatalog(u.Role) {
		return ErrForbidden
	}
	return nil
}

// normalizeBook проверяет карточку книги и приводит ISBN к виду без разделителей.
func normalizeBook(b *model.Book) error {
	b.Title = strings.TrimSpace(b.Title)
	b.Author = strings.TrimSpace(b.Author)
	b.Publisher = strings.TrimSpace(b.Publisher)
	switch {
	case b.Title == "" || b.Author == "":
		return fmt.Errorf("%w: title and author are required", ErrInvalidBook)
	case !validation.IsValidISBN(b.ISBN):
		return fmt.Errorf("%w: isbn %q", ErrInvalidBook, b.ISBN)
	case b.Price.IsNegative():
		return fmt.Errorf("%w: negative price", ErrInvalidBook)
	case b.Inventory < 0 || b.Inventory > validation.MaxQuantity:
		return fmt.Errorf("%w: inventory %d", ErrInvalidBook, b.Inventory)
	}
	b.ISBN = validation.NormalizeISBN(b.ISBN)
	return nil
}

func canCheckout(r model.Role) bool {
	switch r {
	case model.RoleCustomer:
		return true
	case model.RoleAdmin:
		return false
	default:
		return false
	}
}

func canManageCatalog(r model.Role) bool {
	switch r {
	case model.RoleAdmin:
		return true
	case model.RoleCustomer:
		return false
	default:
		return false
	}
}
