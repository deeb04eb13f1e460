package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mmeshcher/bookstore/internal/model"
)

const bookColumns = `id, title, author, isbn, publisher, description, price, inventory`

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// CreateBook добавляет книгу в каталог.
func (r *PostgresRepository) CreateBook(ctx context.Context, b model.Book) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO books (`+bookColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		b.ID, b.Title, b.Author, b.ISBN, b.Publisher, b.Description, b.Price, b.Inventory,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("%w: %s", ErrBookExists, b.ID)
		}
		return fmt.Errorf("insert book: %w", err)
	}
	return nil
}

// UpdateBook перезаписывает карточку книги вместе с остатком.
func (r *PostgresRepository) UpdateBook(ctx context.Context, b model.Book) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE books
		 SET title = $2, author = $3, isbn = $4, publisher = $5, description = $6, price = $7, inventory = $8
		 WHERE id = $1`,
		b.ID, b.Title, b.Author, b.ISBN, b.Publisher, b.Description, b.Price, b.Inventory,
	)
	if err != nil {
		return fmt.Errorf("update book: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &BookNotFoundError{BookID: b.ID}
	}
	return nil
}

// DeleteBook удаляет книгу из каталога. История покупок хранит свои снимки и не меняется.
func (r *PostgresRepository) DeleteBook(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM books WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete book: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &BookNotFoundError{BookID: id}
	}
	return nil
}

// GetBook возвращает книгу по идентификатору.
func (r *PostgresRepository) GetBook(ctx context.Context, id string) (*model.Book, error) {
	b, err := scanBook(r.pool.QueryRow(ctx, `SELECT `+bookColumns+` FROM books WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &BookNotFoundError{BookID: id}
		}
		return nil, fmt.Errorf("get book: %w", err)
	}
	return b, nil
}

// ListBooks возвращает весь каталог, отсортированный по названию.
func (r *PostgresRepository) ListBooks(ctx context.Context) ([]model.Book, error) {
	return r.queryBooks(ctx, "")
}

// SearchBooks возвращает книги, подходящие под фильтр, отсортированные по названию.
func (r *PostgresRepository) SearchBooks(ctx context.Context, f model.BookFilter) ([]model.Book, error) {
	where, args := bookFilterSQL(f)
	return r.queryBooks(ctx, where, args...)
}

func (r *PostgresRepository) queryBooks(ctx context.Context, where string, args ...any) ([]model.Book, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+bookColumns+` FROM books`+where+` ORDER BY title, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("select books: %w", err)
	}
	defer rows.Close()

	var res []model.Book
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, fmt.Errorf("scan book: %w", err)
		}
		res = append(res, *b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

func bookFilterSQL(f model.BookFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.Title != "" {
		add(`title ILIKE '%%' || $%d::text || '%%'`, likeEscaper.Replace(f.Title))
	}
	if f.Author != "" {
		add(`author ILIKE '%%' || $%d::text || '%%'`, likeEscaper.Replace(f.Author))
	}
	if f.Publisher != "" {
		add(`publisher ILIKE '%%' || $%d::text || '%%'`, likeEscaper.Replace(f.Publisher))
	}
	if f.ISBN != "" {
		add(`isbn = $%d`, f.ISBN)
	}
	if f.MinPrice != nil {
		add(`price >= $%d`, *f.MinPrice)
	}
	if f.MaxPrice != nil {
		add(`price <= $%d`, *f.MaxPrice)
	}
	if f.MinInventory != nil {
		add(`inventory >= $%d`, *f.MinInventory)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// decrementInventory уменьшает остаток книги, только если его хватает.
// Строка книги остаётся заблокированной до конца транзакции.
func decrementInventory(ctx context.Context, tx pgx.Tx, bookID string, quantity int) (*model.Book, error) {
	b, err := scanBook(tx.QueryRow(ctx,
		`UPDATE books SET inventory = inventory - $2
		 WHERE id = $1 AND inventory >= $2
		 RETURNING `+bookColumns,
		bookID, quantity,
	))
	if err == nil {
		return b, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("decrement inventory: %w", err)
	}

	var (
		title     string
		available int
	)
	err = tx.QueryRow(ctx, `SELECT title, inventory FROM books WHERE id = $1`, bookID).Scan(&title, &available)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &BookNotFoundError{BookID: bookID}
		}
		return nil, fmt.Errorf("select book: %w", err)
	}

	return nil, &InsufficientInventoryError{
		BookID:    bookID,
		Title:     title,
		Requested: quantity,
		Available: available,
	}
}

func scanBook(row pgx.Row) (*model.Book, error) {
	var b model.Book
	if err := row.Scan(&b.ID, &b.Title, &b.Author, &b.ISBN, &b.Publisher, &b.Description, &b.Price, &b.Inventory); err != nil {
		return nil, err
	}
	return &b, nil
}
