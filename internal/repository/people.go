package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mr1hm/go-hazard-watch/internal/models"
)

func (s *SQLiteDB) AddRefuge(ctx context.Context, r *models.Refuge) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO refuges (name, region_id, lat, lng, capacity, type) VALUES (?, ?, ?, ?, ?, ?)`,
		r.Name, r.RegionID, r.Latitude, r.Longitude, r.Capacity, r.Type,
	)
	if err != nil {
		return fmt.Errorf("insert refuge %q: %w", r.Name, err)
	}
	if r.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("refuge id: %w", err)
	}
	return nil
}

func (s *SQLiteDB) RefugesForRegion(ctx context.Context, regionID int64) ([]models.Refuge, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, region_id, COALESCE(lat, 0), COALESCE(lng, 0), capacity, type
		 FROM refuges WHERE region_id = ? ORDER BY id`, regionID)
	if err != nil {
		return nil, fmt.Errorf("list refuges for region %d: %w", regionID, err)
	}
	defer rows.Close()

	var out []models.Refuge
	for rows.Next() {
		var r models.Refuge
		if err := rows.Scan(&r.ID, &r.Name, &r.RegionID, &r.Latitude, &r.Longitude, &r.Capacity, &r.Type); err != nil {
			return nil, fmt.Errorf("scan refuge: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

const workerColumns = `w.id, w.name, COALESCE(w.role, ''), COALESCE(w.phone, ''), w.region_id,
	COALESCE(r.name, ''), w.status, w.current_incident_id`

const workerFrom = ` FROM workers w LEFT JOIN regions r ON r.id = w.region_id`

func (s *SQLiteDB) AddWorker(ctx context.Context, w *models.Worker) error {
	if w.Status == "" {
		w.Status = models.WorkerStatusAvailable
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO workers (name, role, phone, region_id, status, current_incident_id) VALUES (?, ?, ?, ?, ?, ?)`,
		w.Name, w.Role, w.Phone, nullInt64(w.RegionID), string(w.Status), nullInt64(w.CurrentIncidentID),
	)
	if err != nil {
		return fmt.Errorf("insert worker %q: %w", w.Name, err)
	}
	if w.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("worker id: %w", err)
	}
	return nil
}

func (s *SQLiteDB) GetWorker(ctx context.Context, id int64) (*models.Worker, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+workerColumns+workerFrom+` WHERE w.id = ?`, id)
	w, err := scanWorker(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get worker %d: %w", id, err)
	}
	return w, nil
}

func (s *SQLiteDB) ListWorkers(ctx context.Context) ([]models.Worker, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+workerColumns+workerFrom+` ORDER BY w.id`)
	if err != nil {
		return nil, fmt.Errorf("list workers: %w", err)
	}
	defer rows.Close()

	var out []models.Worker
	for rows.Next() {
		w, err := scanWorker(rows)
		if err != nil {
			return nil, fmt.Errorf("scan worker: %w", err)
		}
		out = append(out, *w)
	}
	return out, rows.Err()
}

// PhonesForRegion returns the raw, non-empty phone numbers of responders
// assigned to the region.
func (s *SQLiteDB) PhonesForRegion(ctx context.Context, regionID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT phone FROM workers WHERE region_id = ? AND phone IS NOT NULL AND phone != '' ORDER BY id`, regionID)
	if err != nil {
		return nil, fmt.Errorf("phones for region %d: %w", regionID, err)
	}
	defer rows.Close()

	var phones []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		phones = append(phones, p)
	}
	return phones, rows.Err()
}

func (s *SQLiteDB) DispatchWorker(ctx context.Context, workerID, incidentID int64) error {
	ok, err := s.exists(ctx, `SELECT EXISTS(SELECT 1 FROM incidents WHERE id = ?)`, incidentID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("incident %d: %w", incidentID, ErrNotFound)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE workers SET status = ?, current_incident_id = ? WHERE id = ?`,
		string(models.WorkerStatusDeployed), incidentID, workerID,
	)
	if err != nil {
		return fmt.Errorf("dispatch worker %d: %w", workerID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("worker %d: %w", workerID, ErrNotFound)
	}
	return nil
}

func scanWorker(sc scanner) (*models.Worker, error) {
	var (
		w         models.Worker
		status    string
		regionID  sql.NullInt64
		currentID sql.NullInt64
	)
	if err := sc.Scan(&w.ID, &w.Name, &w.Role, &w.Phone, &regionID, &w.RegionName, &status, &currentID); err != nil {
		return nil, err
	}
	w.Status = models.WorkerStatus(status)
	w.RegionID = int64Ptr(regionID)
	w.CurrentIncidentID = int64Ptr(currentID)
	return &w, nil
}
