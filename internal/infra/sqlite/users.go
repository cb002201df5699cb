package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/studyforge/studyforge/internal/domain"
)

// ─── Users ──────────────────────────────────────────────────────────────────

// UpsertUser creates a user or renames an existing one.
func (d *DB) UpsertUser(ctx context.Context, u domain.User) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO users (id, display_name, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET display_name = excluded.display_name`,
		u.ID, u.DisplayName, toMillis(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// DisplayName returns a user's display name, falling back to the ID.
func (d *DB) DisplayName(ctx context.Context, userID string) (string, error) {
	var name string
	err := d.db.QueryRowContext(ctx, `SELECT display_name FROM users WHERE id = ?`, userID).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return userID, nil
	}
	if err != nil {
		return "", fmt.Errorf("get display name: %w", err)
	}
	return name, nil
}

// ─── XP Ledger ──────────────────────────────────────────────────────────────

// AwardXP records an award once per (user, source, ref) and returns the
// user's new total. duplicate is true when the award was already recorded.
func (d *DB) AwardXP(ctx context.Context, userID string, amount int64, source domain.XPSource, ref string, at time.Time) (total int64, duplicate bool, err error) {
	err = d.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO xp_ledger (user_id, source, ref, amount, created_at) VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(user_id, source, ref) DO NOTHING`,
			userID, string(source), ref, amount, toMillis(at),
		)
		if err != nil {
			return fmt.Errorf("insert ledger: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			duplicate = true
		} else if _, err := tx.ExecContext(ctx,
			`INSERT INTO user_xp (user_id, xp, updated_at) VALUES (?, ?, ?)
			 ON CONFLICT(user_id) DO UPDATE SET xp = xp + excluded.xp, updated_at = excluded.updated_at`,
			userID, amount, toMillis(at),
		); err != nil {
			return fmt.Errorf("update total: %w", err)
		}

		err = tx.QueryRowContext(ctx, `SELECT COALESCE((SELECT xp FROM user_xp WHERE user_id = ?), 0)`, userID).Scan(&total)
		if err != nil {
			return fmt.Errorf("read total: %w", err)
		}
		return nil
	})
	return total, duplicate, err
}

// GetXP returns a user's XP total (0 for unknown users).
func (d *DB) GetXP(ctx context.Context, userID string) (int64, error) {
	var xp int64
	err := d.db.QueryRowContext(ctx, `SELECT xp FROM user_xp WHERE user_id = ?`, userID).Scan(&xp)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get xp: %w", err)
	}
	return xp, nil
}

// TopXP returns the users with the most XP.
func (d *DB) TopXP(ctx context.Context, limit int) ([]domain.XPStanding, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT x.user_id, COALESCE(u.display_name, x.user_id), x.xp
		 FROM user_xp x LEFT JOIN users u ON u.id = x.user_id
		 ORDER BY x.xp DESC, x.updated_at ASC
		 LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("top xp: %w", err)
	}
	defer rows.Close()

	var out []domain.XPStanding
	for rows.Next() {
		var s domain.XPStanding
		if err := rows.Scan(&s.UserID, &s.DisplayName, &s.XP); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
