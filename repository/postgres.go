package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"flowermarket-svc/models"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const (
	productColumns = "id, store_id, name, price, stock, is_active, created_at, updated_at"
	marketQuery    = `SELECT p.id, p.store_id, p.name, p.price, p.stock, p.is_active, p.created_at, p.updated_at, s.name
		FROM products p
		JOIN stores s ON s.id = p.store_id
		WHERE p.is_active
		ORDER BY p.created_at DESC, p.id DESC`
	orderColumns   = "id, product_id, store_id, user_id, quantity, total_price, status, shipping_address, customer_phone, payment_method, created_at, updated_at"
	notifColumns   = "id, title, message, type, user_id, is_read, created_at"

	orderViewQuery = `SELECT o.id, o.product_id, o.store_id, o.user_id, o.quantity, o.total_price, o.status,
		o.shipping_address, o.customer_phone, o.payment_method, o.created_at, o.updated_at,
		COALESCE(p.name, ''), COALESCE(s.name, '')
		FROM orders o
		LEFT JOIN products p ON p.id = o.product_id
		LEFT JOIN stores s ON s.id = o.store_id`

	// A viewer sees rows addressed to them, and admins also see broadcasts.
	visibleToViewer = "(user_id = $1 OR ($2 AND type = 'Admin' AND user_id IS NULL))"
)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type PostgresRepository struct {
	db *sql.DB
	q  queries
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db, q: queries{db}}
}

func (r *PostgresRepository) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	sqlTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(&queries{sqlTx}); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetProduct(ctx context.Context, id int) (*models.Product, error) {
	return r.q.GetProduct(ctx, id)
}

func (r *PostgresRepository) ListActiveProducts(ctx context.Context) ([]models.ProductView, error) {
	rows, err := r.db.QueryContext(ctx, marketQuery)
	if err != nil {
		return nil, fmt.Errorf("list active products: %w", err)
	}
	defer rows.Close()

	views := []models.ProductView{}
	for rows.Next() {
		var v models.ProductView
		if err := rows.Scan(&v.ID, &v.StoreID, &v.Name, &v.Price, &v.Stock, &v.IsActive,
			&v.CreatedAt, &v.UpdatedAt, &v.StoreName); err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, rows.Err()
}

func (r *PostgresRepository) ListProductsByStore(ctx context.Context, storeID int) ([]models.Product, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+productColumns+" FROM products WHERE store_id = $1 ORDER BY created_at DESC, id DESC", storeID,
	)
	if err != nil {
		return nil, fmt.Errorf("list store products: %w", err)
	}
	defer rows.Close()

	products := []models.Product{}
	for rows.Next() {
		var p models.Product
		if err := rows.Scan(&p.ID, &p.StoreID, &p.Name, &p.Price, &p.Stock, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (r *PostgresRepository) GetUser(ctx context.Context, id string) (*models.User, error) {
	return r.q.GetUser(ctx, id)
}

func (r *PostgresRepository) GetStoreByOwner(ctx context.Context, prestataireID string) (*models.Store, error) {
	return r.q.GetStoreByOwner(ctx, prestataireID)
}

func (r *PostgresRepository) ListOrdersByUser(ctx context.Context, userID string) ([]models.OrderView, error) {
	return r.listOrders(ctx, orderViewQuery+" WHERE o.user_id = $1 ORDER BY o.created_at DESC, o.id DESC", userID)
}

func (r *PostgresRepository) ListOrdersByStore(ctx context.Context, storeID int) ([]models.OrderView, error) {
	return r.listOrders(ctx, orderViewQuery+" WHERE o.store_id = $1 ORDER BY o.created_at DESC, o.id DESC", storeID)
}

func (r *PostgresRepository) listOrders(ctx context.Context, query string, arg any) ([]models.OrderView, error) {
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	views := []models.OrderView{}
	for rows.Next() {
		var v models.OrderView
		var addr, phone, method sql.NullString
		if err := rows.Scan(&v.ID, &v.ProductID, &v.StoreID, &v.UserID, &v.Quantity, &v.TotalPrice, &v.Status,
			&addr, &phone, &method, &v.CreatedAt, &v.UpdatedAt, &v.ProductName, &v.StoreName); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		v.ShippingAddress, v.CustomerPhone, v.PaymentMethod = addr.String, phone.String, method.String
		views = append(views, v)
	}
	return views, rows.Err()
}

func (r *PostgresRepository) ListUnreadNotifications(ctx context.Context, v models.Viewer) ([]models.Notification, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+notifColumns+" FROM notifications WHERE "+visibleToViewer+" AND is_read = FALSE ORDER BY created_at DESC",
		v.UserID, v.Role == models.RoleAdmin,
	)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	notes := []models.Notification{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		notes = append(notes, *n)
	}
	return notes, rows.Err()
}

func (r *PostgresRepository) CountUnreadForUser(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND is_read = FALSE", userID,
	).Scan(&count)
	return count, err
}

func (r *PostgresRepository) CountUnreadBroadcast(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM notifications WHERE user_id IS NULL AND type = 'Admin' AND is_read = FALSE",
	).Scan(&count)
	return count, err
}

func (r *PostgresRepository) MarkNotificationRead(ctx context.Context, id uuid.UUID, v models.Viewer) error {
	// Placeholders shift by one because the id comes first.
	result, err := r.db.ExecContext(ctx,
		"UPDATE notifications SET is_read = TRUE WHERE id = $1 AND (user_id = $2 OR ($3 AND type = 'Admin' AND user_id IS NULL))",
		id, v.UserID, v.Role == models.RoleAdmin,
	)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	return requireRow(result)
}

func (r *PostgresRepository) ListAdminPushTokens(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT expo_push_token FROM users WHERE role = 'Admin' AND expo_push_token IS NOT NULL AND expo_push_token <> ''",
	)
	if err != nil {
		return nil, fmt.Errorf("list admin tokens: %w", err)
	}
	defer rows.Close()

	var tokens []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

// queries implements Tx on top of either the pool or an open transaction.
type queries struct {
	db queryer
}

func (q *queries) LockProduct(ctx context.Context, id int) (*models.Product, error) {
	return q.product(ctx, "SELECT "+productColumns+" FROM products WHERE id = $1 FOR UPDATE", id)
}

func (q *queries) GetProduct(ctx context.Context, id int) (*models.Product, error) {
	return q.product(ctx, "SELECT "+productColumns+" FROM products WHERE id = $1", id)
}

func (q *queries) product(ctx context.Context, query string, id int) (*models.Product, error) {
	var p models.Product
	err := q.db.QueryRowContext(ctx, query, id).Scan(
		&p.ID, &p.StoreID, &p.Name, &p.Price, &p.Stock, &p.IsActive, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (q *queries) AdjustStock(ctx context.Context, productID, delta int) (int, error) {
	var stock int
	err := q.db.QueryRowContext(ctx,
		"UPDATE products SET stock = stock + $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2 AND stock + $1 >= 0 RETURNING stock",
		delta, productID,
	).Scan(&stock)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrInsufficientStock
	}
	if err != nil {
		return 0, fmt.Errorf("adjust stock: %w", err)
	}
	return stock, nil
}

func (q *queries) InsertProduct(ctx context.Context, p *models.Product) error {
	err := q.db.QueryRowContext(ctx,
		"INSERT INTO products (store_id, name, price, stock, is_active, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id",
		p.StoreID, p.Name, p.Price, p.Stock, p.IsActive, p.CreatedAt, p.UpdatedAt,
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

func (q *queries) UpdateProduct(ctx context.Context, p *models.Product) error {
	result, err := q.db.ExecContext(ctx,
		"UPDATE products SET name = $1, price = $2, stock = $3, is_active = $4, updated_at = $5 WHERE id = $6",
		p.Name, p.Price, p.Stock, p.IsActive, p.UpdatedAt, p.ID,
	)
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}
	return requireRow(result)
}

func (q *queries) DeleteProduct(ctx context.Context, id int) error {
	result, err := q.db.ExecContext(ctx, "DELETE FROM products WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	return requireRow(result)
}

func (q *queries) ProductHasOrders(ctx context.Context, id int) (bool, error) {
	var exists bool
	err := q.db.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM orders WHERE product_id = $1)", id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("product orders: %w", err)
	}
	return exists, nil
}

func (q *queries) InsertOrder(ctx context.Context, o *models.Order) error {
	err := q.db.QueryRowContext(ctx,
		`INSERT INTO orders (product_id, store_id, user_id, quantity, total_price, status, shipping_address, customer_phone, payment_method, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11) RETURNING id`,
		o.ProductID, o.StoreID, o.UserID, o.Quantity, o.TotalPrice, o.Status,
		o.ShippingAddress, o.CustomerPhone, o.PaymentMethod, o.CreatedAt, o.UpdatedAt,
	).Scan(&o.ID)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (q *queries) LockOrder(ctx context.Context, id int) (*models.Order, error) {
	var o models.Order
	var addr, phone, method sql.NullString
	err := q.db.QueryRowContext(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE id = $1 FOR UPDATE", id,
	).Scan(&o.ID, &o.ProductID, &o.StoreID, &o.UserID, &o.Quantity, &o.TotalPrice, &o.Status,
		&addr, &phone, &method, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	o.ShippingAddress, o.CustomerPhone, o.PaymentMethod = addr.String, phone.String, method.String
	return &o, nil
}

func (q *queries) UpdateOrderStatus(ctx context.Context, id int, status models.OrderStatus, at time.Time) error {
	result, err := q.db.ExecContext(ctx,
		"UPDATE orders SET status = $1, updated_at = $2 WHERE id = $3", status, at, id,
	)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	return requireRow(result)
}

func (q *queries) GetStore(ctx context.Context, id int) (*models.Store, error) {
	return q.store(ctx, "SELECT id, prestataire_id, name FROM stores WHERE id = $1", id)
}

func (q *queries) GetStoreByOwner(ctx context.Context, prestataireID string) (*models.Store, error) {
	return q.store(ctx, "SELECT id, prestataire_id, name FROM stores WHERE prestataire_id = $1", prestataireID)
}

func (q *queries) store(ctx context.Context, query string, arg any) (*models.Store, error) {
	var s models.Store
	var owner sql.NullString
	if err := q.db.QueryRowContext(ctx, query, arg).Scan(&s.ID, &owner, &s.Name); err != nil {
		return nil, notFound(err)
	}
	s.PrestataireID = owner.String
	return &s, nil
}

func (q *queries) InsertStore(ctx context.Context, s *models.Store) error {
	err := q.db.QueryRowContext(ctx,
		"INSERT INTO stores (prestataire_id, name) VALUES ($1, $2) RETURNING id", s.PrestataireID, s.Name,
	).Scan(&s.ID)
	if err != nil {
		return duplicate(fmt.Errorf("insert store: %w", err))
	}
	return nil
}

func (q *queries) GetUser(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	err := q.db.QueryRowContext(ctx,
		"SELECT id, full_name, email, role, is_approved, COALESCE(expo_push_token, ''), created_at FROM users WHERE id = $1", id,
	).Scan(&u.ID, &u.FullName, &u.Email, &u.Role, &u.IsApproved, &u.ExpoPushToken, &u.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

func (q *queries) InsertUser(ctx context.Context, u *models.User) error {
	_, err := q.db.ExecContext(ctx,
		"INSERT INTO users (id, full_name, email, role, is_approved, expo_push_token, created_at) VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7)",
		u.ID, u.FullName, u.Email, u.Role, u.IsApproved, u.ExpoPushToken, u.CreatedAt,
	)
	if err != nil {
		return duplicate(fmt.Errorf("insert user: %w", err))
	}
	return nil
}

func (q *queries) SetUserApproved(ctx context.Context, id string) error {
	result, err := q.db.ExecContext(ctx, "UPDATE users SET is_approved = TRUE WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("approve user: %w", err)
	}
	return requireRow(result)
}

func (q *queries) InsertNotification(ctx context.Context, n *models.Notification) error {
	_, err := q.db.ExecContext(ctx,
		"INSERT INTO notifications ("+notifColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7)",
		n.ID, n.Title, n.Message, n.Type, n.UserID, n.IsRead, n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (q *queries) HasNotification(ctx context.Context, userID, title string) (bool, error) {
	var exists bool
	err := q.db.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM notifications WHERE user_id = $1 AND title = $2)", userID, title,
	).Scan(&exists)
	return exists, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNotification(row rowScanner) (*models.Notification, error) {
	var n models.Notification
	var userID sql.NullString
	if err := row.Scan(&n.ID, &n.Title, &n.Message, &n.Type, &userID, &n.IsRead, &n.CreatedAt); err != nil {
		return nil, fmt.Errorf("scan notification: %w", err)
	}
	if userID.Valid {
		n.UserID = &userID.String
	}
	return &n, nil
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func requireRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

const uniqueViolation = "23505"

func duplicate(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return ErrDuplicate
	}
	return err
}
