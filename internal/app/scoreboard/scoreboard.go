// Package scoreboard keeps the XP ledger and level curve that challenge
// rewards feed into.
package scoreboard

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/studyforge/studyforge/internal/domain"
	"github.com/studyforge/studyforge/internal/infra/metrics"
)

// MaxLevel caps the level curve.
const MaxLevel = 100

// Ledger persists XP awards.
type Ledger interface {
	AwardXP(ctx context.Context, userID string, amount int64, source domain.XPSource, ref string, at time.Time) (int64, bool, error)
	GetXP(ctx context.Context, userID string) (int64, error)
	TopXP(ctx context.Context, limit int) ([]domain.XPStanding, error)
}

// Service awards XP and reports levels.
type Service struct {
	ledger Ledger
	log    *slog.Logger
	now    func() time.Time
}

// New creates a scoreboard over ledger.
func New(ledger Ledger, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{ledger: ledger, log: log.With(slog.String("component", "scoreboard")), now: time.Now}
}

// XPForLevel returns the cumulative XP required to reach a given level.
// Uses an exponential curve: 100 * 1.2^(level-1) for level >= 2.
func XPForLevel(level int) int64 {
	if level <= 1 {
		return 0
	}
	return int64(100 * math.Pow(1.2, float64(level-1)))
}

// LevelForXP returns the level for a given XP amount.
func LevelForXP(xp int64) int {
	level := 1
	for level < MaxLevel {
		if xp < XPForLevel(level+1) {
			return level
		}
		level++
	}
	return MaxLevel
}

// Award adds amount once per (userID, source, ref). A repeated award reports
// Duplicate and leaves the total unchanged.
func (s *Service) Award(ctx context.Context, userID string, amount int64, source domain.XPSource, ref string) (domain.XPAward, error) {
	if amount <= 0 {
		return domain.XPAward{}, fmt.Errorf("%w, got %d", domain.ErrNonPositiveXP, amount)
	}

	total, dup, err := s.ledger.AwardXP(ctx, userID, amount, source, ref, s.now())
	if err != nil {
		return domain.XPAward{}, fmt.Errorf("award xp: %w", err)
	}

	award := domain.XPAward{UserID: userID, Total: total, Level: LevelForXP(total), Duplicate: dup}
	if dup {
		return award, nil
	}
	award.Amount = amount
	award.LeveledUp = award.Level > LevelForXP(total-amount)
	metrics.XPAwarded.WithLabelValues(string(source)).Add(float64(amount))

	if award.LeveledUp {
		s.log.Info("level up", slog.String("user", userID), slog.Int("level", award.Level))
	}
	return award, nil
}

// Standing returns a user's XP and level.
func (s *Service) Standing(ctx context.Context, userID string) (domain.UserLevel, error) {
	xp, err := s.ledger.GetXP(ctx, userID)
	if err != nil {
		return domain.UserLevel{}, fmt.Errorf("get xp: %w", err)
	}
	return levelOf(userID, xp), nil
}

// Top returns the highest XP totals with competition ranks.
func (s *Service) Top(ctx context.Context, limit int) ([]domain.XPStanding, error) {
	rows, err := s.ledger.TopXP(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("top xp: %w", err)
	}
	for i := range rows {
		rows[i].Level = LevelForXP(rows[i].XP)
		if i > 0 && rows[i].XP == rows[i-1].XP {
			rows[i].Rank = rows[i-1].Rank
		} else {
			rows[i].Rank = i + 1
		}
	}
	return rows, nil
}

func levelOf(userID string, xp int64) domain.UserLevel {
	ul := domain.UserLevel{UserID: userID, CurrentXP: xp, Level: LevelForXP(xp)}
	if ul.Level < MaxLevel {
		ul.ToNext = XPForLevel(ul.Level+1) - xp
	}
	return ul
}
