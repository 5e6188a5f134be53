package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	insertAlertSQL = `INSERT INTO alerts (
        symbol,
        kind,
        price,
        level,
        rationale,
        fired_at,
        channels
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7
    )
    ON CONFLICT (symbol, fired_at) DO UPDATE
    SET kind      = EXCLUDED.kind,
        price     = EXCLUDED.price,
        level     = EXCLUDED.level,
        rationale = EXCLUDED.rationale,
        channels  = EXCLUDED.channels
    RETURNING id, symbol, kind, price::text, level::text, rationale, fired_at, channels, created_at;`

	listRecentAlertsSQL = `SELECT
        id,
        symbol,
        kind,
        price::text,
        level::text,
        rationale,
        fired_at,
        channels,
        created_at
    FROM alerts
    WHERE ($1 = '' OR symbol = $1)
    ORDER BY fired_at DESC
    LIMIT $2;`

	deleteAlertsBeforeSQL = `DELETE FROM alerts WHERE fired_at < $1;`

	upsertAlertStateSQL = `INSERT INTO alert_states (
        symbol,
        armed,
        last_fired_at,
        updated_at
    ) VALUES (
        $1,$2,$3,NOW()
    )
    ON CONFLICT (symbol) DO UPDATE
    SET armed         = EXCLUDED.armed,
        last_fired_at = EXCLUDED.last_fired_at,
        updated_at    = EXCLUDED.updated_at;`

	loadAlertStatesSQL = `SELECT symbol, armed, last_fired_at, updated_at FROM alert_states ORDER BY symbol;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// AlertStore defines operations for alert auditing.
type AlertStore interface {
	InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error)
	ListRecentAlerts(ctx context.Context, symbol string, limit int) ([]AlertRecord, error)
	DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error
}

// StateStore persists per-symbol debounce state between runs.
type StateStore interface {
	SaveAlertState(ctx context.Context, state AlertStateRecord) error
	LoadAlertStates(ctx context.Context) ([]AlertStateRecord, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to alerts and alert states.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// best effort: the lock dies with the session anyway
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// InsertAlert persists an alert emission.
func (s *Store) InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return AlertRecord{}, err
	}

	row := pool.QueryRow(ctx, insertAlertSQL,
		alert.Symbol,
		alert.Kind,
		alert.Price.String(),
		alert.Level.String(),
		alert.Rationale,
		alert.FiredAt,
		alert.Channels,
	)

	rec, scanErr := scanAlert(row)
	if scanErr != nil {
		return AlertRecord{}, fmt.Errorf("insert alert: %w", scanErr)
	}
	return rec, nil
}

// ListRecentAlerts lists most recent alerts, optionally for one symbol.
func (s *Store) ListRecentAlerts(ctx context.Context, symbol string, limit int) ([]AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentAlertsSQL, symbol, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent alerts: %w", queryErr)
	}
	defer rows.Close()

	alerts := make([]AlertRecord, 0, limit)
	for rows.Next() {
		rec, scanErr := scanAlert(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		alerts = append(alerts, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

// DeleteAlertsBefore deletes historical alerts.
func (s *Store) DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteAlertsBeforeSQL, olderThan); execErr != nil {
		return fmt.Errorf("delete alerts before: %w", execErr)
	}
	return nil
}

// SaveAlertState upserts the debounce state of one symbol.
func (s *Store) SaveAlertState(ctx context.Context, state AlertStateRecord) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	var lastFired interface{}
	if state.LastFiredAt != nil {
		lastFired = *state.LastFiredAt
	}

	if _, execErr := pool.Exec(ctx, upsertAlertStateSQL, state.Symbol, state.Armed, lastFired); execErr != nil {
		return fmt.Errorf("upsert alert state: %w", execErr)
	}
	return nil
}

// LoadAlertStates loads every persisted debounce state.
func (s *Store) LoadAlertStates(ctx context.Context) ([]AlertStateRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, loadAlertStatesSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("load alert states: %w", queryErr)
	}
	defer rows.Close()

	states := make([]AlertStateRecord, 0)
	for rows.Next() {
		var (
			rec       AlertStateRecord
			lastFired sql.NullTime
		)
		if err := rows.Scan(&rec.Symbol, &rec.Armed, &lastFired, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		if lastFired.Valid {
			ts := lastFired.Time
			rec.LastFiredAt = &ts
		}
		states = append(states, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return states, nil
}

func scanAlert(row pgx.Row) (AlertRecord, error) {
	var (
		rec      AlertRecord
		priceStr string
		levelStr string
	)
	if err := row.Scan(
		&rec.ID,
		&rec.Symbol,
		&rec.Kind,
		&priceStr,
		&levelStr,
		&rec.Rationale,
		&rec.FiredAt,
		&rec.Channels,
		&rec.CreatedAt,
	); err != nil {
		return AlertRecord{}, err
	}

	var convErr error
	rec.Price, convErr = decimal.NewFromString(priceStr)
	if convErr != nil {
		return AlertRecord{}, fmt.Errorf("parse price: %w", convErr)
	}
	rec.Level, convErr = decimal.NewFromString(levelStr)
	if convErr != nil {
		return AlertRecord{}, fmt.Errorf("parse level: %w", convErr)
	}
	return rec, nil
}

var (
	_ AlertStore     = (*Store)(nil)
	_ StateStore     = (*Store)(nil)
	_ AdvisoryLocker = (*Store)(nil)
)
