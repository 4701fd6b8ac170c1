package db

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DSN builds a connection string from discrete settings.
func DSN(user, password, host, port, name string) string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(user, password),
		Host:   host + ":" + port,
		Path:   "/" + name,
	}
	return u.String()
}

// Connect opens a pool and pings it.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}
	slog.Info("connected to postgres", "host", pool.Config().ConnConfig.Host, "database", pool.Config().ConnConfig.Database)
	return pool, nil
}

// EnsureSchema creates the trade tables when missing. It is safe to run on
// every start.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	steps := []struct {
		name string
		fn   func(context.Context, *pgxpool.Pool) error
	}{
		{"listings", ensureListingsTable},
		{"bids", ensureBidsTable},
		{"orders", ensureOrdersTable},
		{"notifications", ensureNotificationsTable},
	}
	for _, s := range steps {
		if err := s.fn(ctx, pool); err != nil {
			return fmt.Errorf("ensure %s schema: %w", s.name, err)
		}
	}
	slog.Info("database schema ensured")
	return nil
}

func ensureListingsTable(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS waste_listings (
            id TEXT PRIMARY KEY,
            seller_id TEXT NOT NULL,
            title TEXT NOT NULL,
            description TEXT NOT NULL DEFAULT '',
            category TEXT NOT NULL DEFAULT '',
            condition TEXT NOT NULL DEFAULT '',
            quantity_amount DOUBLE PRECISION NOT NULL CHECK (quantity_amount > 0),
            quantity_unit TEXT NOT NULL,
            price_per_unit DOUBLE PRECISION NOT NULL DEFAULT 0,
            currency TEXT NOT NULL DEFAULT 'USD',
            negotiable BOOLEAN NOT NULL DEFAULT FALSE,
            price_type TEXT NOT NULL CHECK (price_type IN ('fixed', 'bids', 'negotiable')),
            min_bid DOUBLE PRECISION NULL,
            reserve_price DOUBLE PRECISION NULL,
            status TEXT NOT NULL DEFAULT 'active'
                CHECK (status IN ('active', 'pending', 'sold', 'expired', 'cancelled')),
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );
        CREATE INDEX IF NOT EXISTS idx_listings_status_created ON waste_listings(status, created_at DESC);
        CREATE INDEX IF NOT EXISTS idx_listings_seller ON waste_listings(seller_id);
    `)
	return err
}

// ensureBidsTable also adds a partial unique index so no listing can ever
// hold two accepted bids.
func ensureBidsTable(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS bids (
            id TEXT PRIMARY KEY,
            listing_id TEXT NOT NULL REFERENCES waste_listings(id) ON DELETE CASCADE,
            bidder_id TEXT NOT NULL,
            amount DOUBLE PRECISION NOT NULL CHECK (amount > 0),
            quantity_amount DOUBLE PRECISION NOT NULL,
            quantity_unit TEXT NOT NULL,
            message TEXT NOT NULL DEFAULT '',
            status TEXT NOT NULL DEFAULT 'pending'
                CHECK (status IN ('pending', 'accepted', 'rejected', 'withdrawn', 'expired')),
            expires_at TIMESTAMPTZ NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );
        CREATE INDEX IF NOT EXISTS idx_bids_listing_status ON bids(listing_id, status);
        CREATE UNIQUE INDEX IF NOT EXISTS idx_bids_one_accepted ON bids(listing_id) WHERE status = 'accepted';
    `)
	return err
}

func ensureOrdersTable(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
        CREATE SEQUENCE IF NOT EXISTS order_number_seq;
        CREATE TABLE IF NOT EXISTS orders (
            id TEXT PRIMARY KEY,
            order_number TEXT NOT NULL UNIQUE,
            buyer_id TEXT NOT NULL,
            seller_id TEXT NOT NULL,
            listing_id TEXT NOT NULL REFERENCES waste_listings(id),
            bid_id TEXT NULL REFERENCES bids(id),
            quantity_amount DOUBLE PRECISION NOT NULL,
            quantity_unit TEXT NOT NULL,
            total_amount DOUBLE PRECISION NOT NULL,
            currency TEXT NOT NULL,
            status TEXT NOT NULL CHECK (status IN (
                'pending', 'placed', 'accepted', 'pickup_scheduled', 'in_transit', 'delivered',
                'completed', 'cancelled', 'confirmed', 'processing', 'refunded'
            )),
            payment_status TEXT NOT NULL DEFAULT 'pending'
                CHECK (payment_status IN ('pending', 'paid', 'failed', 'refunded')),
            payment_method TEXT NOT NULL,
            payment_id TEXT NOT NULL DEFAULT '',
            delivery JSONB NOT NULL DEFAULT '{}',
            negotiation JSONB NOT NULL DEFAULT '{}',
            escrow_hold BOOLEAN NOT NULL DEFAULT FALSE,
            dispute JSONB NOT NULL DEFAULT '{}',
            dispute_open BOOLEAN NOT NULL DEFAULT FALSE,
            dispute_opened_at TIMESTAMPTZ NULL,
            timeline JSONB NOT NULL DEFAULT '[]',
            reviews JSONB NOT NULL DEFAULT '{}',
            notes TEXT NOT NULL DEFAULT '',
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );
        CREATE UNIQUE INDEX IF NOT EXISTS idx_orders_bid ON orders(bid_id) WHERE bid_id IS NOT NULL;
        CREATE INDEX IF NOT EXISTS idx_orders_buyer_created ON orders(buyer_id, created_at DESC);
        CREATE INDEX IF NOT EXISTS idx_orders_seller_created ON orders(seller_id, created_at DESC);
        CREATE INDEX IF NOT EXISTS idx_orders_dispute ON orders(dispute_opened_at DESC) WHERE dispute_opened_at IS NOT NULL;
    `)
	return err
}

// ensureNotificationsTable creates the in-app notification inbox. Users
// live in the identity service, so user_id carries no foreign key.
func ensureNotificationsTable(ctx context.Context, pool *pgxpool.Pool) error {
	var exists bool
	err := pool.QueryRow(ctx, `
        SELECT EXISTS (
            SELECT 1 FROM information_schema.tables
            WHERE table_schema = 'public' AND table_name = 'notifications'
        )`).Scan(&exists)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	_, err = pool.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS notifications (
            id TEXT PRIMARY KEY,
            user_id TEXT NOT NULL,
            type TEXT NOT NULL,
            title TEXT NOT NULL,
            body TEXT NOT NULL DEFAULT '',
            reference TEXT NULL,
            metadata JSONB NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            read_at TIMESTAMPTZ NULL
        );
        CREATE INDEX IF NOT EXISTS idx_notifications_user_created ON notifications(user_id, created_at);
        CREATE INDEX IF NOT EXISTS idx_notifications_user_unread ON notifications(user_id) WHERE read_at IS NULL;
    `)
	return err
}
