package storage

import (
	"context"
	"fmt"

	"github.com/Veraticus/digital-asset-harvester/internal/model"
)

// ProcessedEmail records the terminal state reached for one message.
type ProcessedEmail struct {
	MessageID string
	State     string
	Reason    string
}

// MarkProcessed records messages as handled by runID. Records without a
// Message-ID cannot be recognized later and are skipped.
func (s *SQLiteStorage) MarkProcessed(ctx context.Context, runID string, records []ProcessedEmail) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO processed_emails (message_id, state, reason, run_id, processed_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(message_id) DO UPDATE SET
			state = excluded.state,
			reason = excluded.reason,
			run_id = excluded.run_id,
			processed_at = excluded.processed_at
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, r := range records {
		if r.MessageID == "" {
			continue
		}
		if _, err := stmt.ExecContext(ctx, r.MessageID, r.State, r.Reason, runID); err != nil {
			return fmt.Errorf("failed to mark %s processed: %w", r.MessageID, err)
		}
	}

	return tx.Commit()
}

// IsProcessed reports whether messageID was recorded by an earlier run.
func (s *SQLiteStorage) IsProcessed(ctx context.Context, messageID string) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}
	if err := validateString(messageID, "messageID"); err != nil {
		return false, err
	}

	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM processed_emails WHERE message_id = ?", messageID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check processed state: %w", err)
	}
	return n > 0, nil
}

// FilterUnprocessed drops emails whose Message-ID was already recorded.
// Emails without a Message-ID are always kept.
func (s *SQLiteStorage) FilterUnprocessed(ctx context.Context, emails []model.RawEmail) ([]model.RawEmail, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	stmt, err := s.db.PrepareContext(ctx, "SELECT COUNT(*) FROM processed_emails WHERE message_id = ?")
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	out := make([]model.RawEmail, 0, len(emails))
	for _, email := range emails {
		if email.MessageID == "" {
			out = append(out, email)
			continue
		}
		var n int
		if err := stmt.QueryRowContext(ctx, email.MessageID).Scan(&n); err != nil {
			return nil, fmt.Errorf("failed to check %s: %w", email.MessageID, err)
		}
		if n == 0 {
			out = append(out, email)
		}
	}
	return out, nil
}
