package usage

import (
	"context"
	"database/sql"
	"fmt"
)

// Feature names the independently quota-gated capabilities.
type Feature string

const (
	FeatureIdentification Feature = "identification"
	FeatureHealth         Feature = "health"
	FeatureChat           Feature = "chat"
)

// FreeLimits is the number of free uses an anonymous session gets per feature.
var FreeLimits = map[Feature]int{
	FeatureIdentification: 3,
	FeatureHealth:         1,
	FeatureChat:           1,
}

// Known reports whether the feature participates in quota gating at all.
func Known(f Feature) bool {
	_, ok := FreeLimits[f]
	return ok
}

// Ledger tracks per-feature usage counts for anonymous sessions. Counters
// are persisted so they outlive both the client page and the server process;
// they are keyed by the session token, not by chat or message. Counts only
// ever grow while a session stays anonymous; ResetAll is reserved for the
// authentication transition handler.
type Ledger struct {
	db *sql.DB
}

// NewLedger prepares the counters table on the shared database handle.
func NewLedger(db *sql.DB) (*Ledger, error) {
	schema := `
    CREATE TABLE IF NOT EXISTS usage_counters (
        session_id TEXT NOT NULL,
        feature TEXT NOT NULL,
        count INTEGER NOT NULL DEFAULT 0,
        PRIMARY KEY (session_id, feature)
    );
    `
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to initialize usage schema: %w", err)
	}
	return &Ledger{db: db}, nil
}

// Increment bumps the counter for one feature and returns the new count.
func (l *Ledger) Increment(ctx context.Context, sessionID string, feature Feature) (int, error) {
	_, err := l.db.ExecContext(ctx, `
        INSERT INTO usage_counters (session_id, feature, count) VALUES (?, ?, 1)
        ON CONFLICT (session_id, feature) DO UPDATE SET count = count + 1`,
		sessionID, string(feature))
	if err != nil {
		return 0, fmt.Errorf("failed to increment usage: %w", err)
	}
	return l.Count(ctx, sessionID, feature)
}

// Count returns the current usage count for a feature; a session that never
// used the feature counts as zero.
func (l *Ledger) Count(ctx context.Context, sessionID string, feature Feature) (int, error) {
	var count int
	err := l.db.QueryRowContext(ctx,
		"SELECT count FROM usage_counters WHERE session_id = ? AND feature = ?",
		sessionID, string(feature)).Scan(&count)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to query usage: %w", err)
	}
	return count, nil
}

// Remaining returns how many free uses are left, never below zero.
func (l *Ledger) Remaining(ctx context.Context, sessionID string, feature Feature) (int, error) {
	count, err := l.Count(ctx, sessionID, feature)
	if err != nil {
		return 0, err
	}
	remaining := FreeLimits[feature] - count
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// ReachedLimit reports whether the session exhausted its free uses.
func (l *Ledger) ReachedLimit(ctx context.Context, sessionID string, feature Feature) (bool, error) {
	count, err := l.Count(ctx, sessionID, feature)
	if err != nil {
		return false, err
	}
	return count >= FreeLimits[feature], nil
}

// ResetAll zeroes every counter for the session. Called exactly once, by the
// authentication transition handler, never by feature usage itself.
func (l *Ledger) ResetAll(ctx context.Context, sessionID string) error {
	_, err := l.db.ExecContext(ctx,
		"DELETE FROM usage_counters WHERE session_id = ?", sessionID)
	if err != nil {
		return fmt.Errorf("failed to reset usage: %w", err)
	}
	return nil
}
