package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/outcomex/market-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const eventColumns = `id, title, status, shares_yes, shares_no, b::TEXT,
	        buy_yes_price::TEXT, buy_no_price::TEXT,
	        sell_yes_price::TEXT, sell_no_price::TEXT,
	        created_at, last_trade_at`

func (s *PostgresStore) CreateEvent(ctx context.Context, e *model.Event) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO events (id, title, status, shares_yes, shares_no, b,
		                     buy_yes_price, buy_no_price, sell_yes_price, sell_no_price,
		                     created_at, last_trade_at)
		 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7::NUMERIC, $8::NUMERIC, $9::NUMERIC, $10::NUMERIC, $11, $12)`,
		e.ID, e.Title, e.Status, e.SharesYes, e.SharesNo, e.B.String(),
		e.Quotes.BuyYes.String(), e.Quotes.BuyNo.String(),
		e.Quotes.SellYes.String(), e.Quotes.SellNo.String(),
		e.CreatedAt, e.LastTradeAt,
	)
	return err
}

func (s *PostgresStore) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1`, id)

	e, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("event %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get event %s: %w", id, err)
	}
	return e, nil
}

func (s *PostgresStore) ListEvents(ctx context.Context) ([]model.Event, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+eventColumns+` FROM events ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

func (s *PostgresStore) GetOrCreateAccount(ctx context.Context, userID string) (*model.Account, error) {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO accounts (user_id, cash) VALUES ($1, 0)
		 ON CONFLICT (user_id) DO NOTHING`, userID)
	if err != nil {
		return nil, err
	}

	var a model.Account
	var cash string
	err = s.pool.QueryRow(ctx,
		`SELECT user_id, cash::TEXT FROM accounts WHERE user_id = $1`, userID).
		Scan(&a.UserID, &cash)
	if err != nil {
		return nil, fmt.Errorf("get account %s: %w", userID, err)
	}
	a.Cash, _ = decimal.NewFromString(cash)
	return &a, nil
}

func (s *PostgresStore) GetOrCreatePosition(ctx context.Context, userID, eventID string, outcome model.Outcome) (*model.Position, error) {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO positions (id, user_id, event_id, outcome,
		                        held, bought, sold,
		                        avg_buy_price, avg_sell_price, rewarded_total)
		 VALUES (gen_random_uuid(), $1, $2, $3, 0, 0, 0, 0, 0, 0)
		 ON CONFLICT (user_id, event_id, outcome) DO NOTHING`,
		userID, eventID, outcome)
	if err != nil {
		return nil, err
	}

	row := s.pool.QueryRow(ctx,
		`SELECT `+positionColumns+`
		 FROM positions WHERE user_id = $1 AND event_id = $2 AND outcome = $3`,
		userID, eventID, outcome)

	p, err := scanPosition(row)
	if err != nil {
		return nil, fmt.Errorf("get position %s/%s/%s: %w", userID, eventID, outcome, err)
	}
	return p, nil
}

const positionColumns = `id, user_id, event_id, outcome, held, bought, sold,
	        avg_buy_price::TEXT, avg_sell_price::TEXT, rewarded_total::TEXT`

func (s *PostgresStore) GetUserPositions(ctx context.Context, userID string) ([]model.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionColumns+` FROM positions WHERE user_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanPositions(rows)
}

func (s *PostgresStore) GetEventPositions(ctx context.Context, eventID string) ([]model.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionColumns+` FROM positions WHERE event_id = $1`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanPositions(rows)
}

func (s *PostgresStore) GetLedgerEntriesByUser(ctx context.Context, userID string) ([]model.LedgerEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, event_id, kind, quantity, price::TEXT, created_at
		 FROM ledger_entries WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanLedgerEntries(rows)
}

func (s *PostgresStore) GetLedgerEntriesByEvent(ctx context.Context, eventID string) ([]model.LedgerEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, event_id, kind, quantity, price::TEXT, created_at
		 FROM ledger_entries WHERE event_id = $1 ORDER BY created_at`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanLedgerEntries(rows)
}

// Apply commits a change set in one database transaction.
func (s *PostgresStore) Apply(ctx context.Context, cs *ChangeSet) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if cs.Event != nil {
		tag, err := tx.Exec(ctx,
			`UPDATE events
			 SET status = $2, shares_yes = $3, shares_no = $4,
			     buy_yes_price = $5::NUMERIC, buy_no_price = $6::NUMERIC,
			     sell_yes_price = $7::NUMERIC, sell_no_price = $8::NUMERIC,
			     last_trade_at = $9
			 WHERE id = $1`,
			cs.Event.ID, cs.Event.Status, cs.Event.SharesYes, cs.Event.SharesNo,
			cs.Event.Quotes.BuyYes.String(), cs.Event.Quotes.BuyNo.String(),
			cs.Event.Quotes.SellYes.String(), cs.Event.Quotes.SellNo.String(),
			cs.Event.LastTradeAt,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("event %s: %w", cs.Event.ID, ErrNotFound)
		}
	}

	for _, p := range cs.Positions {
		_, err := tx.Exec(ctx,
			`UPDATE positions
			 SET held = $2, bought = $3, sold = $4,
			     avg_buy_price = $5::NUMERIC, avg_sell_price = $6::NUMERIC,
			     rewarded_total = $7::NUMERIC
			 WHERE id = $1`,
			p.ID, p.Held, p.Bought, p.Sold,
			p.AvgBuyPrice.String(), p.AvgSellPrice.String(), p.RewardedTotal.String(),
		)
		if err != nil {
			return err
		}
	}

	for _, a := range cs.Accounts {
		_, err := tx.Exec(ctx,
			`UPDATE accounts SET cash = $2::NUMERIC WHERE user_id = $1`,
			a.UserID, a.Cash.String())
		if err != nil {
			return err
		}
	}

	for _, e := range cs.Entries {
		_, err := tx.Exec(ctx,
			`INSERT INTO ledger_entries (id, user_id, event_id, kind, quantity, price, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7)`,
			e.ID, e.UserID, e.EventID, e.Kind, e.Quantity, e.Price.String(), e.CreatedAt,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// --- Row scanning ---

type pgxRow interface {
	Scan(dest ...interface{}) error
}

type pgxRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanEvent(row pgxRow) (*model.Event, error) {
	var e model.Event
	var b, buyYes, buyNo, sellYes, sellNo string

	if err := row.Scan(&e.ID, &e.Title, &e.Status, &e.SharesYes, &e.SharesNo, &b,
		&buyYes, &buyNo, &sellYes, &sellNo,
		&e.CreatedAt, &e.LastTradeAt); err != nil {
		return nil, err
	}

	e.B, _ = decimal.NewFromString(b)
	e.Quotes.BuyYes, _ = decimal.NewFromString(buyYes)
	e.Quotes.BuyNo, _ = decimal.NewFromString(buyNo)
	e.Quotes.SellYes, _ = decimal.NewFromString(sellYes)
	e.Quotes.SellNo, _ = decimal.NewFromString(sellNo)

	return &e, nil
}

func scanPosition(row pgxRow) (*model.Position, error) {
	var p model.Position
	var avgBuy, avgSell, rewarded string

	if err := row.Scan(&p.ID, &p.UserID, &p.EventID, &p.Outcome,
		&p.Held, &p.Bought, &p.Sold,
		&avgBuy, &avgSell, &rewarded); err != nil {
		return nil, err
	}

	p.AvgBuyPrice, _ = decimal.NewFromString(avgBuy)
	p.AvgSellPrice, _ = decimal.NewFromString(avgSell)
	p.RewardedTotal, _ = decimal.NewFromString(rewarded)

	return &p, nil
}

func scanPositions(rows pgxRows) ([]model.Position, error) {
	var positions []model.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, *p)
	}
	return positions, rows.Err()
}

func scanLedgerEntries(rows pgxRows) ([]model.LedgerEntry, error) {
	var entries []model.LedgerEntry
	for rows.Next() {
		var e model.LedgerEntry
		var priceS string

		if err := rows.Scan(&e.ID, &e.UserID, &e.EventID, &e.Kind,
			&e.Quantity, &priceS, &e.CreatedAt); err != nil {
			return nil, err
		}

		e.Price, _ = decimal.NewFromString(priceS)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
