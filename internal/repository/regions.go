package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mr1hm/go-hazard-watch/internal/models"
)

func (s *SQLiteDB) AddRegion(ctx context.Context, r *models.Region) error {
	var lastUpdated sql.NullString
	if r.LastUpdated != nil {
		lastUpdated = sql.NullString{String: formatTime(*r.LastUpdated), Valid: true}
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO regions (name, area, lat, lng, risk_score, last_updated) VALUES (?, ?, ?, ?, ?, ?)`,
		r.Name, r.Area, r.Latitude, r.Longitude, r.RiskScore, lastUpdated,
	)
	if err != nil {
		return fmt.Errorf("insert region %q: %w", r.Name, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("region id: %w", err)
	}
	r.ID = id
	return nil
}

func (s *SQLiteDB) GetRegion(ctx context.Context, id int64) (*models.Region, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, area, lat, lng, risk_score, last_updated FROM regions WHERE id = ?`, id)

	r, err := scanRegion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get region %d: %w", id, err)
	}
	return r, nil
}

// ListRegions returns regions in insertion order, which is the order the
// cycle walks them in.
func (s *SQLiteDB) ListRegions(ctx context.Context) ([]models.Region, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, area, lat, lng, risk_score, last_updated FROM regions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list regions: %w", err)
	}
	defer rows.Close()

	var out []models.Region
	for rows.Next() {
		r, err := scanRegion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan region: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (s *SQLiteDB) UpdateRegionRisk(ctx context.Context, id int64, score int, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE regions SET risk_score = ?, last_updated = ? WHERE id = ?`,
		score, formatTime(at), id,
	)
	if err != nil {
		return fmt.Errorf("update region %d risk: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRegion(sc scanner) (*models.Region, error) {
	var (
		r           models.Region
		area        sql.NullString
		lastUpdated sql.NullString
	)
	if err := sc.Scan(&r.ID, &r.Name, &area, &r.Latitude, &r.Longitude, &r.RiskScore, &lastUpdated); err != nil {
		return nil, err
	}
	r.Area = area.String

	t, err := parseNullTime(lastUpdated)
	if err != nil {
		return nil, err
	}
	r.LastUpdated = t
	return &r, nil
}
