package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// GetCache returns the payload stored under key if it has not expired.
func (s *SQLiteDB) GetCache(ctx context.Context, key string) ([]byte, bool, error) {
	var (
		payload   []byte
		expiresAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT payload, expires_at FROM ai_cache WHERE cache_key = ?`, key).Scan(&payload, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get cache %q: %w", key, err)
	}

	exp, err := parseTime(expiresAt)
	if err != nil {
		return nil, false, err
	}
	if !time.Now().Before(exp) {
		return nil, false, nil
	}
	return payload, true, nil
}

func (s *SQLiteDB) SetCache(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ai_cache (cache_key, payload, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(cache_key) DO UPDATE SET payload = excluded.payload, expires_at = excluded.expires_at`,
		key, value, formatTime(time.Now().Add(ttl)),
	)
	if err != nil {
		return fmt.Errorf("set cache %q: %w", key, err)
	}
	return nil
}
