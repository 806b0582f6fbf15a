package repository

import (
	"context"
	"fmt"

	"github.com/mr1hm/go-hazard-watch/internal/models"
)

func (s *SQLiteDB) AddAlert(ctx context.Context, a *models.AlertRecord) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO alerts (incident_id, message_en, message_sw, recipients_count, delivered_count, sent_at, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.IncidentID, a.MessageEN, a.MessageSW, a.RecipientCount, a.DeliveredCount,
		formatTime(a.SentAt), string(a.Status),
	)
	if err != nil {
		return fmt.Errorf("insert alert for incident %d: %w", a.IncidentID, err)
	}
	if a.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("alert id: %w", err)
	}
	return nil
}

func (s *SQLiteDB) ListAlerts(ctx context.Context, limit int) ([]models.AlertRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, incident_id, message_en, message_sw, recipients_count, delivered_count, sent_at, status
		 FROM alerts ORDER BY sent_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	var out []models.AlertRecord
	for rows.Next() {
		var (
			a      models.AlertRecord
			sentAt string
			status string
		)
		if err := rows.Scan(&a.ID, &a.IncidentID, &a.MessageEN, &a.MessageSW,
			&a.RecipientCount, &a.DeliveredCount, &sentAt, &status); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		if a.SentAt, err = parseTime(sentAt); err != nil {
			return nil, err
		}
		a.Status = models.AlertStatus(status)
		out = append(out, a)
	}
	return out, rows.Err()
}
