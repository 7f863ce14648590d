package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/web3-frozen/yield-monitor/internal/market"
)

const alertColumns = `a.id::text, a.pool_id::text, a.alert_type, a.previous_value, a.current_value,
	a.change_percent, a.ai_analysis, a.sources, a.status, a.created_at`

func alertDest(a *market.Alert) []any {
	return []any{&a.ID, &a.PoolID, &a.Kind, &a.PreviousValue, &a.CurrentValue,
		&a.ChangePercent, &a.Analysis, &a.Sources, &a.Status, &a.CreatedAt}
}

// scanAlertWithPool reads alertColumns followed by poolColumns.
func scanAlertWithPool(row pgx.Row) (market.Alert, error) {
	var (
		a market.Alert
		p market.Pool
	)
	if err := row.Scan(append(alertDest(&a), poolDest(&p)...)...); err != nil {
		return a, err
	}
	a.Pool = &p
	return a, nil
}

// InsertAlert persists a new alert and fills in its id, status and timestamp.
func (s *Store) InsertAlert(ctx context.Context, a *market.Alert) error {
	if a.Sources == nil {
		a.Sources = []string{}
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO alerts (pool_id, alert_type, previous_value, current_value, change_percent)
		VALUES ($1::uuid, $2, $3, $4, $5)
		RETURNING id::text, status, created_at`,
		a.PoolID, string(a.Kind), a.PreviousValue, a.CurrentValue, a.ChangePercent).
		Scan(&a.ID, &a.Status, &a.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert alert %s/%s: %w", a.PoolID, a.Kind, err)
	}
	return nil
}

// HasRecentAlert reports whether an alert of kind exists for the pool since the given time.
func (s *Store) HasRecentAlert(ctx context.Context, poolID string, kind market.AlertKind, since time.Time) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM alerts
			WHERE pool_id = $1::uuid AND alert_type = $2 AND created_at >= $3
		)`, poolID, string(kind), since).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("recent alert %s/%s: %w", poolID, kind, err)
	}
	return exists, nil
}

// GetAlert returns an alert joined with its pool.
func (s *Store) GetAlert(ctx context.Context, id string) (*market.Alert, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+alertColumns+`, `+poolColumns+`
		FROM alerts a
		JOIN pools p ON p.id = a.pool_id
		WHERE a.id = $1::uuid`, id)
	a, err := scanAlertWithPool(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get alert %s: %w", id, err)
	}
	return &a, nil
}

// DismissAlert marks an alert dismissed.
func (s *Store) DismissAlert(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE alerts SET status = 'dismissed' WHERE id = $1::uuid`, id)
	if err != nil {
		return fmt.Errorf("dismiss alert %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveAnalysis stores an explanation for an alert and marks it reviewed.
func (s *Store) SaveAnalysis(ctx context.Context, id, analysis string, sources []string) error {
	if sources == nil {
		sources = []string{}
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE alerts SET ai_analysis = $2, sources = $3, status = 'reviewed'
		WHERE id = $1::uuid`, id, analysis, sources)
	if err != nil {
		return fmt.Errorf("save analysis %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AlertFilter narrows ListAlerts. Zero values mean no filter.
type AlertFilter struct {
	Status market.AlertStatus
	Kind   market.AlertKind
	Limit  int
}

// ListAlerts returns alerts newest first, each joined with its pool.
func (s *Store) ListAlerts(ctx context.Context, f AlertFilter) ([]market.Alert, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+alertColumns+`, `+poolColumns+`
		FROM alerts a
		JOIN pools p ON p.id = a.pool_id
		WHERE ($1::text = '' OR a.status = $1::text)
		  AND ($2::text = '' OR a.alert_type = $2::text)
		ORDER BY a.created_at DESC
		LIMIT $3`, string(f.Status), string(f.Kind), f.Limit)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (market.Alert, error) {
		return scanAlertWithPool(row)
	})
}

// ImpliedDrop is a recent implied APY drop with the pool's latest underlying APY.
type ImpliedDrop struct {
	market.Alert
	UnderlyingAPY *float64 `json:"underlying_apy"`
}

// DropOrder selects how ImpliedDrops are sorted.
type DropOrder string

const (
	// DropsByChange puts the steepest drop first.
	DropsByChange DropOrder = "change"
	// DropsByTime puts the newest first.
	DropsByTime DropOrder = "time"
	// DropsByAPY puts the lowest current implied APY first.
	DropsByAPY DropOrder = "apy"
)

var dropOrderSQL = map[DropOrder]string{
	DropsByChange: "a.change_percent ASC, a.created_at DESC",
	DropsByTime:   "a.created_at DESC",
	DropsByAPY:    "a.current_value ASC, a.created_at DESC",
}

// ImpliedDrops lists undismissed negative implied_spike alerts created since
// the given time.
func (s *Store) ImpliedDrops(ctx context.Context, since time.Time, order DropOrder) ([]ImpliedDrop, error) {
	orderBy, ok := dropOrderSQL[order]
	if !ok {
		orderBy = dropOrderSQL[DropsByChange]
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+alertColumns+`, `+poolColumns+`, lr.underlying_apy
		FROM alerts a
		JOIN pools p ON p.id = a.pool_id
		LEFT JOIN LATERAL (
			SELECT underlying_apy FROM rate_snapshots
			WHERE pool_id = a.pool_id
			ORDER BY recorded_at DESC, id DESC
			LIMIT 1
		) lr ON true
		WHERE a.alert_type = 'implied_spike'
		  AND a.change_percent < 0
		  AND a.status <> 'dismissed'
		  AND a.created_at >= $1
		ORDER BY `+orderBy, since)
	if err != nil {
		return nil, fmt.Errorf("implied drops: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (ImpliedDrop, error) {
		var (
			d ImpliedDrop
			p market.Pool
		)
		dest := append(alertDest(&d.Alert), poolDest(&p)...)
		dest = append(dest, &d.UnderlyingAPY)
		if err := row.Scan(dest...); err != nil {
			return d, err
		}
		d.Pool = &p
		return d, nil
	})
}
