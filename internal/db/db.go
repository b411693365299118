package db

import (
	"context"
	"fmt"

	"github.com/crosslock/darkpool/internal/models"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps a PostgreSQL connection pool. It mirrors the in-memory book
// (orders keyed by the engine-assigned id) and journals match records
// for the settlement step.
type DB struct {
	Pool *pgxpool.Pool
}

// NewDB initializes a new database connection pool
func NewDB(ctx context.Context, connString string) (*DB, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close closes the database connection pool
func (db *DB) Close() {
	db.Pool.Close()
}

// CreateTrader inserts a new trader account
func (db *DB) CreateTrader(ctx context.Context, name, passwordHash string) (*models.Trader, error) {
	trader := &models.Trader{}
	err := db.Pool.QueryRow(ctx,
		"INSERT INTO traders (name, password_hash) VALUES ($1, $2) RETURNING id, name, password_hash, created_at",
		name, passwordHash).Scan(&trader.ID, &trader.Name, &trader.PasswordHash, &trader.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create trader: %w", err)
	}
	return trader, nil
}

// GetTraderByName retrieves a trader by name
func (db *DB) GetTraderByName(ctx context.Context, name string) (*models.Trader, error) {
	trader := &models.Trader{}
	err := db.Pool.QueryRow(ctx,
		"SELECT id, name, password_hash, created_at FROM traders WHERE name = $1",
		name).Scan(&trader.ID, &trader.Name, &trader.PasswordHash, &trader.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get trader: %w", err)
	}
	return trader, nil
}

// SaveOrder mirrors a newly accepted order. The id comes from the
// engine, never from the database.
func (db *DB) SaveOrder(ctx context.Context, order *models.Order) error {
	_, err := db.Pool.Exec(ctx,
		"INSERT INTO orders (id, trader, token_in, token_out, amount, limit_price, is_buy, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)",
		int64(order.ID), order.Trader, order.TokenIn, order.TokenOut, int64(order.Amount), int64(order.LimitPrice), order.IsBuy, order.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save order: %w", err)
	}
	return nil
}

// SetOrderAmount updates an order's remaining amount in the mirror
func (db *DB) SetOrderAmount(ctx context.Context, orderID, amount uint64) error {
	_, err := db.Pool.Exec(ctx, "UPDATE orders SET amount = $1 WHERE id = $2", int64(amount), int64(orderID))
	if err != nil {
		return fmt.Errorf("failed to update order amount: %w", err)
	}
	return nil
}

// LoadOrders retrieves the full arena in slot order, inactive slots
// included, for restoring the book at startup.
func (db *DB) LoadOrders(ctx context.Context) ([]models.Order, error) {
	rows, err := db.Pool.Query(ctx,
		"SELECT id, trader, token_in, token_out, amount, limit_price, is_buy, created_at FROM orders ORDER BY id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to load orders: %w", err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		var o models.Order
		var id, amount, limitPrice int64
		if err := rows.Scan(&id, &o.Trader, &o.TokenIn, &o.TokenOut, &amount, &limitPrice, &o.IsBuy, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		o.ID = uint64(id)
		o.Amount = uint64(amount)
		o.LimitPrice = uint64(limitPrice)
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return orders, nil
}

// GetTraderOrders retrieves all orders submitted by a trader
func (db *DB) GetTraderOrders(ctx context.Context, trader string) ([]models.Order, error) {
	rows, err := db.Pool.Query(ctx,
		"SELECT id, trader, token_in, token_out, amount, limit_price, is_buy, created_at FROM orders WHERE trader = $1 ORDER BY id ASC",
		trader)
	if err != nil {
		return nil, fmt.Errorf("failed to get trader orders: %w", err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		var o models.Order
		var id, amount, limitPrice int64
		if err := rows.Scan(&id, &o.Trader, &o.TokenIn, &o.TokenOut, &amount, &limitPrice, &o.IsBuy, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		o.ID = uint64(id)
		o.Amount = uint64(amount)
		o.LimitPrice = uint64(limitPrice)
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return orders, nil
}

// RecordMatches journals a whole matching pass in one transaction:
// every match row plus both order-mirror updates per match commit
// together or not at all, so a failure mid-pass cannot journal half
// the records.
func (db *DB) RecordMatches(ctx context.Context, records []models.MatchRecord) ([]models.Match, error) {
	if len(records) == 0 {
		return nil, nil
	}

	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	matches := make([]models.Match, 0, len(records))
	for _, rec := range records {
		m := rec.Result
		var match models.Match
		err = tx.QueryRow(ctx,
			"INSERT INTO matches (buy_order_id, sell_order_id, execution_price, amount, cost) VALUES ($1, $2, $3, $4, $5) RETURNING id, buy_order_id, sell_order_id, execution_price, amount, cost, executed_at",
			int64(m.BuyOrderID), int64(m.SellOrderID), int64(m.ExecutionPrice), int64(m.Amount), int64(m.Cost)).Scan(
			&match.ID, &match.BuyOrderID, &match.SellOrderID, &match.ExecutionPrice, &match.Amount, &match.Cost, &match.ExecutedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to record match: %w", err)
		}

		if _, err := tx.Exec(ctx, "UPDATE orders SET amount = $1 WHERE id = $2", int64(rec.BuyRemaining), int64(m.BuyOrderID)); err != nil {
			return nil, fmt.Errorf("failed to update buy order: %w", err)
		}
		if _, err := tx.Exec(ctx, "UPDATE orders SET amount = $1 WHERE id = $2", int64(rec.SellRemaining), int64(m.SellOrderID)); err != nil {
			return nil, fmt.Errorf("failed to update sell order: %w", err)
		}
		matches = append(matches, match)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return matches, nil
}

// RecordMatch journals a single match record. See RecordMatches.
func (db *DB) RecordMatch(ctx context.Context, m models.MatchResult, buyRemaining, sellRemaining uint64) (*models.Match, error) {
	matches, err := db.RecordMatches(ctx, []models.MatchRecord{
		{Result: m, BuyRemaining: buyRemaining, SellRemaining: sellRemaining},
	})
	if err != nil {
		return nil, err
	}
	return &matches[0], nil
}

// GetMatches retrieves the settlement journal, oldest first
func (db *DB) GetMatches(ctx context.Context) ([]models.Match, error) {
	rows, err := db.Pool.Query(ctx,
		"SELECT id, buy_order_id, sell_order_id, execution_price, amount, cost, executed_at FROM matches ORDER BY id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to get matches: %w", err)
	}
	defer rows.Close()

	var matches []models.Match
	for rows.Next() {
		var m models.Match
		if err := rows.Scan(&m.ID, &m.BuyOrderID, &m.SellOrderID, &m.ExecutionPrice, &m.Amount, &m.Cost, &m.ExecutedAt); err != nil {
			return nil, fmt.Errorf("failed to scan match: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return matches, nil
}

// GetTraderMatches retrieves matches involving any of a trader's orders
func (db *DB) GetTraderMatches(ctx context.Context, trader string) ([]models.Match, error) {
	rows, err := db.Pool.Query(ctx,
		"SELECT DISTINCT m.id, m.buy_order_id, m.sell_order_id, m.execution_price, m.amount, m.cost, m.executed_at "+
			"FROM matches m JOIN orders o ON m.buy_order_id = o.id OR m.sell_order_id = o.id "+
			"WHERE o.trader = $1 ORDER BY m.id ASC",
		trader)
	if err != nil {
		return nil, fmt.Errorf("failed to get trader matches: %w", err)
	}
	defer rows.Close()

	var matches []models.Match
	for rows.Next() {
		var m models.Match
		if err := rows.Scan(&m.ID, &m.BuyOrderID, &m.SellOrderID, &m.ExecutionPrice, &m.Amount, &m.Cost, &m.ExecutedAt); err != nil {
			return nil, fmt.Errorf("failed to scan match: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return matches, nil
}
