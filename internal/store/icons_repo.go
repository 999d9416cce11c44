package store

import (
	"context"
	"fmt"
	"time"
)

// RecordIcon upserts an icon-cache row keyed by the resolved executable
// path. Callers treat failures as non-fatal.
func (s *Store) RecordIcon(ctx context.Context, exePath, processName string) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO icon_cache (exe_path, process_name, first_seen_at)
		VALUES (?, ?, ?)
		ON CONFLICT(exe_path) DO UPDATE SET process_name = excluded.process_name
	`, exePath, processName, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("record icon: %w", err)
	}
	return nil
}

// IconEntry is one cached executable discovered by the tracker.
type IconEntry struct {
	ExePath     string
	ProcessName string
	FirstSeenAt time.Time
}

// ListIcons returns all cached executables for UI display.
func (s *Store) ListIcons(ctx context.Context) ([]IconEntry, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT exe_path, process_name, first_seen_at
		FROM icon_cache
		ORDER BY first_seen_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list icons: %w", err)
	}
	defer rows.Close()
	var entries []IconEntry
	for rows.Next() {
		var (
			entry     IconEntry
			firstSeen string
		)
		if err := rows.Scan(&entry.ExePath, &entry.ProcessName, &firstSeen); err != nil {
			return nil, fmt.Errorf("scan icon: %w", err)
		}
		if t, err := time.Parse(time.RFC3339Nano, firstSeen); err == nil {
			entry.FirstSeenAt = t
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
