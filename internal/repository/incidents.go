package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mr1hm/go-hazard-watch/internal/models"
)

const incidentColumns = `i.id, i.type, i.severity, i.region_id, COALESCE(r.name, ''), i.location,
	i.lat, i.lng, i.affected_people, i.description, i.source, i.status, i.reported_at, i.resolved_at`

const incidentFrom = ` FROM incidents i LEFT JOIN regions r ON r.id = i.region_id`

func (s *SQLiteDB) AddIncident(ctx context.Context, inc *models.Incident) error {
	if inc.Status == "" {
		inc.Status = models.IncidentStatusActive
	}
	if inc.ReportedAt.IsZero() {
		inc.ReportedAt = time.Now()
	}

	var lat, lng sql.NullFloat64
	if inc.Coordinates != nil {
		lat = sql.NullFloat64{Float64: inc.Coordinates.Latitude, Valid: true}
		lng = sql.NullFloat64{Float64: inc.Coordinates.Longitude, Valid: true}
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO incidents (type, severity, region_id, location, lat, lng, affected_people, description, source, status, reported_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(inc.Type), string(inc.Severity), nullInt64(inc.RegionID), inc.Location, lat, lng,
		inc.AffectedPeople, inc.Description, inc.Source, string(inc.Status), formatTime(inc.ReportedAt),
	)
	if err != nil {
		return fmt.Errorf("insert incident: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("incident id: %w", err)
	}
	inc.ID = id
	return nil
}

func (s *SQLiteDB) GetIncident(ctx context.Context, id int64) (*models.Incident, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+incidentColumns+incidentFrom+` WHERE i.id = ?`, id)

	inc, err := scanIncident(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get incident %d: %w", id, err)
	}
	return inc, nil
}

// ListIncidents returns newest first.
func (s *SQLiteDB) ListIncidents(ctx context.Context, opts IncidentFilter) ([]models.Incident, error) {
	var (
		where []string
		args  []any
	)
	if opts.Status != nil {
		where = append(where, "i.status = ?")
		args = append(args, string(*opts.Status))
	}
	if opts.Type != nil {
		where = append(where, "i.type = ?")
		args = append(args, string(*opts.Type))
	}
	if opts.RegionID != nil {
		where = append(where, "i.region_id = ?")
		args = append(args, *opts.RegionID)
	}

	query := `SELECT ` + incidentColumns + incidentFrom
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY i.reported_at DESC, i.id DESC"

	limit := opts.Limit
	if limit <= 0 {
		limit = -1 // sqlite: no limit
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	defer rows.Close()

	var out []models.Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("scan incident: %w", err)
		}
		out = append(out, *inc)
	}
	return out, rows.Err()
}

// ResolveIncident moves an active incident to resolved. Resolving an
// already resolved incident is a no-op; resolved never reverts.
func (s *SQLiteDB) ResolveIncident(ctx context.Context, id int64, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE incidents SET status = ?, resolved_at = ? WHERE id = ? AND status = ?`,
		string(models.IncidentStatusResolved), formatTime(at), id, string(models.IncidentStatusActive),
	)
	if err != nil {
		return fmt.Errorf("resolve incident %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	exists, err := s.exists(ctx, `SELECT EXISTS(SELECT 1 FROM incidents WHERE id = ?)`, id)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return nil
}

// HasActiveAtPoint matches on coordinates rounded to two decimal places.
func (s *SQLiteDB) HasActiveAtPoint(ctx context.Context, t models.DisasterType, lat, lng float64) (bool, error) {
	return s.exists(ctx,
		`SELECT EXISTS(SELECT 1 FROM incidents
		 WHERE type = ? AND status = ? AND ROUND(lat, 2) = ROUND(?, 2) AND ROUND(lng, 2) = ROUND(?, 2))`,
		string(t), string(models.IncidentStatusActive), lat, lng,
	)
}

func (s *SQLiteDB) HasActiveInLatitudeBand(ctx context.Context, t models.DisasterType, minLat, maxLat float64) (bool, error) {
	return s.exists(ctx,
		`SELECT EXISTS(SELECT 1 FROM incidents WHERE type = ? AND status = ? AND lat BETWEEN ? AND ?)`,
		string(t), string(models.IncidentStatusActive), minLat, maxLat,
	)
}

func (s *SQLiteDB) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&exists); err != nil {
		return false, fmt.Errorf("exists query: %w", err)
	}
	return exists, nil
}

func scanIncident(sc scanner) (*models.Incident, error) {
	var (
		inc        models.Incident
		typ        string
		severity   string
		status     string
		regionID   sql.NullInt64
		location   sql.NullString
		desc       sql.NullString
		lat, lng   sql.NullFloat64
		reportedAt string
		resolvedAt sql.NullString
	)
	err := sc.Scan(&inc.ID, &typ, &severity, &regionID, &inc.RegionName, &location,
		&lat, &lng, &inc.AffectedPeople, &desc, &inc.Source, &status, &reportedAt, &resolvedAt)
	if err != nil {
		return nil, err
	}

	inc.Type = models.DisasterType(typ)
	inc.Severity = models.Severity(severity)
	inc.Status = models.IncidentStatus(status)
	inc.RegionID = int64Ptr(regionID)
	inc.Location = location.String
	inc.Description = desc.String
	if lat.Valid && lng.Valid {
		inc.Coordinates = &models.Coordinates{Latitude: lat.Float64, Longitude: lng.Float64}
	}

	if inc.ReportedAt, err = parseTime(reportedAt); err != nil {
		return nil, err
	}
	if inc.ResolvedAt, err = parseNullTime(resolvedAt); err != nil {
		return nil, err
	}
	return &inc, nil
}
