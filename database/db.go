package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"flowermarket-svc/config"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id VARCHAR(128) PRIMARY KEY,
	full_name VARCHAR(255) NOT NULL DEFAULT '',
	email VARCHAR(255) NOT NULL UNIQUE,
	role VARCHAR(32) NOT NULL,
	is_approved BOOLEAN NOT NULL DEFAULT FALSE,
	expo_push_token VARCHAR(255),
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS stores (
	id SERIAL PRIMARY KEY,
	prestataire_id VARCHAR(128) UNIQUE REFERENCES users(id),
	name VARCHAR(255) NOT NULL
);

CREATE TABLE IF NOT EXISTS products (
	id SERIAL PRIMARY KEY,
	store_id INTEGER NOT NULL REFERENCES stores(id),
	name VARCHAR(255) NOT NULL,
	price DECIMAL(10, 2) NOT NULL,
	stock INTEGER NOT NULL DEFAULT 0 CHECK (stock >= 0),
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS orders (
	id SERIAL PRIMARY KEY,
	product_id INTEGER NOT NULL REFERENCES products(id),
	store_id INTEGER NOT NULL REFERENCES stores(id),
	user_id VARCHAR(128) NOT NULL,
	quantity INTEGER NOT NULL CHECK (quantity > 0),
	total_price DECIMAL(12, 2) NOT NULL,
	status VARCHAR(32) NOT NULL,
	shipping_address TEXT,
	customer_phone VARCHAR(64),
	payment_method VARCHAR(64),
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_orders_user ON orders (user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_orders_store ON orders (store_id, created_at DESC);

CREATE TABLE IF NOT EXISTS notifications (
	id UUID PRIMARY KEY,
	title VARCHAR(255) NOT NULL,
	message TEXT NOT NULL,
	type VARCHAR(32) NOT NULL,
	user_id VARCHAR(128),
	is_read BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_notifications_user_unread ON notifications (user_id, is_read);
CREATE INDEX IF NOT EXISTS idx_notifications_broadcast_unread ON notifications (is_read) WHERE user_id IS NULL;
`

func InitDB(cfg *config.Config, logger *zap.Logger) (*sql.DB, error) {
	psqlInfo := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName)

	db, err := sql.Open("postgres", psqlInfo)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("Database connection established", zap.String("host", cfg.DBHost), zap.String("database", cfg.DBName))
	return db, nil
}

// Migrate creates the tables if they do not exist yet.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	return nil
}
