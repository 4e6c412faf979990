package services

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/cppla/pawtrail/models"
)

const streakBonusEvery = 7

// advanceStreakTx moves the user's daily streak onto dateKey at most once.
// The conditional update is the idempotency guard: it only matches while the
// stored day is older than dateKey. Every 7th consecutive day pays a bonus
// keyed by the ISO week, so reruns cannot pay it twice.
func (l *EventLedger) advanceStreakTx(tx *gorm.DB, userID uint, dateKey string) (bool, int, error) {
	yesterday := l.clock.ShiftDay(dateKey, -1)
	now := l.clock.Now()

	res := tx.Exec(`UPDATE users
SET daily_streak = CASE WHEN last_daily_key = ? THEN daily_streak + 1 ELSE 1 END,
    last_daily_key = ?,
    last_daily_at = ?,
    updated_at = ?
WHERE id = ? AND COALESCE(last_daily_key, '') < ? AND deleted_at IS NULL`,
		yesterday, dateKey, now, now, userID, dateKey)
	if res.Error != nil {
		return false, 0, res.Error
	}
	if res.RowsAffected == 0 {
		return false, 0, nil
	}

	var u models.User
	if err := tx.Select("id", "daily_streak").First(&u, userID).Error; err != nil {
		return true, 0, err
	}
	if u.DailyStreak%streakBonusEvery != 0 || l.bonuses.Streak <= 0 {
		return true, 0, nil
	}
	awarded, err := l.awardBonusTx(tx, userID, EventStreak7Days, "streak:"+l.clock.WeekKey(dateKey), l.bonuses.Streak)
	if err != nil || !awarded {
		return true, 0, err
	}
	return true, l.bonuses.Streak, nil
}

// StreakEngine derives streak continuity and pays the one-time bonuses.
type StreakEngine struct {
	db       *gorm.DB
	clock    *DayClock
	ledger   *EventLedger
	missions *MissionTracker
}

// NewStreakEngine creates a streak engine sharing the ledger's store.
func NewStreakEngine(db *gorm.DB, clock *DayClock, ledger *EventLedger, missions *MissionTracker) *StreakEngine {
	return &StreakEngine{db: db, clock: clock, ledger: ledger, missions: missions}
}

// AdvanceStreak advances the streak for today; a second call on the same day
// is a no-op.
func (s *StreakEngine) AdvanceStreak(ctx context.Context, userID uint) (RegisterResult, error) {
	var result RegisterResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		advanced, bonus, err := s.ledger.advanceStreakTx(tx, userID, s.clock.Today())
		if err != nil {
			return err
		}
		result.StreakAdvanced = advanced
		result.BonusPoints = bonus
		return nil
	})
	return result, err
}

// DailyCompletionBonus pays the all-missions-done bonus for dateKey once.
// Days with no missions never qualify.
func (s *StreakEngine) DailyCompletionBonus(ctx context.Context, userID uint, dateKey string) (RegisterResult, error) {
	set, err := s.missions.Find(ctx, userID, dateKey)
	if errors.Is(err, ErrNotFound) {
		return RegisterResult{}, nil
	}
	if err != nil {
		return RegisterResult{}, err
	}
	if !set.AllCompleted() {
		return RegisterResult{}, nil
	}
	return s.ledger.RegisterDayIndependentBonus(ctx, userID, EventDailyAllCompleted, "day:"+dateKey, s.ledger.bonuses.DailyCompletion)
}

// WeeklyPerfectBonus pays the larger weekly bonus when the streak sits on a
// multiple of 7 and each of the last 7 days had every mission completed.
func (s *StreakEngine) WeeklyPerfectBonus(ctx context.Context, userID uint) (RegisterResult, error) {
	var u models.User
	if err := s.db.WithContext(ctx).Select("id", "daily_streak", "last_daily_key").First(&u, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return RegisterResult{}, fmt.Errorf("%w: user %d", ErrNotFound, userID)
		}
		return RegisterResult{}, err
	}
	if u.DailyStreak == 0 || u.DailyStreak%streakBonusEvery != 0 {
		return RegisterResult{}, nil
	}

	today := s.clock.Today()
	days := make([]string, 0, streakBonusEvery)
	for i := 0; i < streakBonusEvery; i++ {
		days = append(days, s.clock.ShiftDay(today, -i))
	}
	sets, err := s.missions.FindMany(ctx, userID, days)
	if err != nil {
		return RegisterResult{}, err
	}
	for _, day := range days {
		set, ok := sets[day]
		if !ok || !set.AllCompleted() {
			return RegisterResult{}, nil
		}
	}
	return s.ledger.RegisterDayIndependentBonus(ctx, userID, EventWeeklyPerfect, "week:"+s.clock.WeekKey(today), s.ledger.bonuses.WeeklyPerfect)
}
