// Package sqlstore implements commerce.Service on SQLite using
// modernc.org/sqlite. The schema matches the one the product import tooling
// writes to: products, carts and cart_items.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ggoodman/mcp-sse-commerce/commerce"
)

var (
	_ commerce.Service       = (*Store)(nil)
	_ commerce.CatalogWriter = (*Store)(nil)
)

const timeLayout = time.RFC3339Nano

// Store is a SQLite-backed commerce backend.
type Store struct {
	db  *sql.DB
	log *slog.Logger
	now func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// Open opens (creating if needed) the database at path and ensures the
// schema exists. Use ":memory:" for a throwaway database.
func Open(path string, opts ...Option) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// A single connection keeps ":memory:" databases coherent and serializes
	// writers, which SQLite does anyway.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA foreign_keys=ON"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	s := NewFromDB(db, opts...)
	if err := s.createSchema(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	s.log.Info("sqlstore.open", slog.String("path", path))
	return s, nil
}

// NewFromDB wraps an existing handle without touching the schema.
func NewFromDB(db *sql.DB, opts ...Option) *Store {
	s := &Store{
		db:  db,
		log: slog.Default().With(slog.String("component", "sqlstore")),
		now: time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) createSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS products (
			id                  INTEGER PRIMARY KEY,
			tipo_prenda         TEXT NOT NULL DEFAULT '',
			talla               TEXT NOT NULL DEFAULT '',
			color               TEXT NOT NULL DEFAULT '',
			cantidad_disponible INTEGER NOT NULL DEFAULT 0,
			precio_50_u_cents   INTEGER NOT NULL DEFAULT 0,
			precio_100_u_cents  INTEGER NOT NULL DEFAULT 0,
			precio_200_u_cents  INTEGER NOT NULL DEFAULT 0,
			disponible          INTEGER NOT NULL DEFAULT 1,
			categoria           TEXT NOT NULL DEFAULT '',
			descripcion         TEXT NOT NULL DEFAULT ''
		);

		CREATE TABLE IF NOT EXISTS carts (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			conversation_id TEXT NOT NULL UNIQUE,
			created_at      TEXT NOT NULL,
			updated_at      TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS cart_items (
			id               INTEGER PRIMARY KEY AUTOINCREMENT,
			cart_id          INTEGER NOT NULL REFERENCES carts(id) ON DELETE CASCADE,
			product_id       INTEGER NOT NULL REFERENCES products(id),
			qty              INTEGER NOT NULL,
			unit_price_cents INTEGER NOT NULL,
			UNIQUE (cart_id, product_id)
		);

		CREATE INDEX IF NOT EXISTS idx_cart_items_cart ON cart_items(cart_id);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

const productColumns = `id, tipo_prenda, talla, color, cantidad_disponible,
	precio_50_u_cents, precio_100_u_cents, precio_200_u_cents,
	disponible, categoria, descripcion`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(r rowScanner) (commerce.Product, error) {
	var p commerce.Product
	var disponible int
	err := r.Scan(&p.ID, &p.TipoPrenda, &p.Talla, &p.Color, &p.CantidadDisponible,
		&p.Precio50UCents, &p.Precio100UCents, &p.Precio200UCents,
		&disponible, &p.Categoria, &p.Descripcion)
	p.Disponible = disponible == 1
	return p, err
}

func (s *Store) UpsertProducts(ctx context.Context, products []commerce.Product) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			tipo_prenda = excluded.tipo_prenda,
			talla = excluded.talla,
			color = excluded.color,
			cantidad_disponible = excluded.cantidad_disponible,
			precio_50_u_cents = excluded.precio_50_u_cents,
			precio_100_u_cents = excluded.precio_100_u_cents,
			precio_200_u_cents = excluded.precio_200_u_cents,
			disponible = excluded.disponible,
			categoria = excluded.categoria,
			descripcion = excluded.descripcion`)
	if err != nil {
		return fmt.Errorf("prepare upsert product: %w", err)
	}
	defer stmt.Close()

	for _, p := range products {
		disponible := 0
		if p.Disponible {
			disponible = 1
		}
		if _, err := stmt.ExecContext(ctx, p.ID, p.TipoPrenda, p.Talla, p.Color, p.CantidadDisponible,
			p.Precio50UCents, p.Precio100UCents, p.Precio200UCents,
			disponible, p.Categoria, p.Descripcion); err != nil {
			return fmt.Errorf("upsert product %d: %w", p.ID, err)
		}
	}
	return tx.Commit()
}

func (s *Store) FindProduct(ctx context.Context, id int64) (*commerce.Product, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = ? LIMIT 1`, id)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, commerce.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find product %d: %w", id, err)
	}
	return &p, nil
}

func (s *Store) SearchProducts(ctx context.Context, query string, limit int) ([]commerce.Product, error) {
	q := strings.TrimSpace(query)

	var rows *sql.Rows
	var err error
	if q == "" {
		rows, err = s.db.QueryContext(ctx, `
			SELECT `+productColumns+` FROM products
			WHERE disponible = 1
			ORDER BY id DESC
			LIMIT ?`, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT `+productColumns+` FROM products
			WHERE disponible = 1 AND (
				tipo_prenda LIKE ?1 OR
				categoria   LIKE ?1 OR
				color       LIKE ?1 OR
				talla       LIKE ?1 OR
				descripcion LIKE ?1
			)
			ORDER BY id DESC
			LIMIT ?2`, "%"+q+"%", limit)
	}
	if err != nil {
		return nil, fmt.Errorf("search products: %w", err)
	}
	defer rows.Close()

	out := make([]commerce.Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) GetOrCreateCart(ctx context.Context, conversationID string) (*commerce.Cart, bool, error) {
	now := s.now().UTC().Format(timeLayout)
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO carts (conversation_id, created_at, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(conversation_id) DO NOTHING`, conversationID, now, now)
	if err != nil {
		return nil, false, fmt.Errorf("create cart: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("create cart: %w", err)
	}

	c, err := s.FindCartByConversation(ctx, conversationID)
	if err != nil {
		return nil, false, err
	}
	return c, n == 1, nil
}

func (s *Store) scanCart(row *sql.Row) (*commerce.Cart, error) {
	var c commerce.Cart
	var updated string
	if err := row.Scan(&c.ID, &c.ConversationID, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, commerce.ErrNotFound
		}
		return nil, fmt.Errorf("scan cart: %w", err)
	}
	t, err := time.Parse(timeLayout, updated)
	if err != nil {
		return nil, fmt.Errorf("parse cart updated_at: %w", err)
	}
	c.UpdatedAt = t
	return &c, nil
}

func (s *Store) GetCart(ctx context.Context, id int64) (*commerce.Cart, error) {
	return s.scanCart(s.db.QueryRowContext(ctx,
		`SELECT id, conversation_id, updated_at FROM carts WHERE id = ? LIMIT 1`, id))
}

func (s *Store) FindCartByConversation(ctx context.Context, conversationID string) (*commerce.Cart, error) {
	return s.scanCart(s.db.QueryRowContext(ctx,
		`SELECT id, conversation_id, updated_at FROM carts WHERE conversation_id = ? LIMIT 1`, conversationID))
}

// touch bumps the cart's updated_at within tx and reports ErrNotFound for
// unknown carts.
func (s *Store) touch(ctx context.Context, tx *sql.Tx, cartID int64) error {
	res, err := tx.ExecContext(ctx, `UPDATE carts SET updated_at = ? WHERE id = ?`,
		s.now().UTC().Format(timeLayout), cartID)
	if err != nil {
		return fmt.Errorf("touch cart %d: %w", cartID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("touch cart %d: %w", cartID, err)
	}
	if n == 0 {
		return commerce.ErrNotFound
	}
	return nil
}

func (s *Store) UpsertCartItem(ctx context.Context, cartID, productID int64, qty int, unitPriceCents int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if err := s.touch(ctx, tx, cartID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO cart_items (cart_id, product_id, qty, unit_price_cents) VALUES (?, ?, ?, ?)
		ON CONFLICT(cart_id, product_id) DO UPDATE SET
			qty = excluded.qty,
			unit_price_cents = excluded.unit_price_cents`,
		cartID, productID, qty, unitPriceCents); err != nil {
		return fmt.Errorf("upsert cart item: %w", err)
	}
	return tx.Commit()
}

func (s *Store) RemoveCartItem(ctx context.Context, cartID, productID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if err := s.touch(ctx, tx, cartID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM cart_items WHERE cart_id = ? AND product_id = ?`, cartID, productID); err != nil {
		return fmt.Errorf("remove cart item: %w", err)
	}
	return tx.Commit()
}

func (s *Store) SummarizeCart(ctx context.Context, cartID int64) (*commerce.CartSummary, error) {
	if _, err := s.GetCart(ctx, cartID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT ci.product_id, ci.qty, ci.unit_price_cents,
		       p.tipo_prenda, p.talla, p.color, p.categoria, p.descripcion
		FROM cart_items ci
		JOIN products p ON p.id = ci.product_id
		WHERE ci.cart_id = ?
		ORDER BY ci.id ASC`, cartID)
	if err != nil {
		return nil, fmt.Errorf("summarize cart %d: %w", cartID, err)
	}
	defer rows.Close()

	var lines []commerce.CartLine
	for rows.Next() {
		var l commerce.CartLine
		if err := rows.Scan(&l.ProductID, &l.Qty, &l.UnitPriceCents,
			&l.TipoPrenda, &l.Talla, &l.Color, &l.Categoria, &l.Descripcion); err != nil {
			return nil, fmt.Errorf("scan cart line: %w", err)
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("summarize cart %d: %w", cartID, err)
	}
	return commerce.Summarize(cartID, lines), nil
}
