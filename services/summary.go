package services

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/cppla/pawtrail/models"
	"github.com/cppla/pawtrail/utils"
)

// DailySummary is the user's balance and today's mission state.
type DailySummary struct {
	DateKey             string                     `json:"date_key"`
	Points              int                        `json:"points"`
	Coins               int                        `json:"coins"`
	DailyStreak         int                        `json:"daily_streak"`
	Missions            []models.DailyMission      `json:"missions"`
	BonusesAwardedToday []models.GamificationEvent `json:"bonuses_awarded_today"`
}

// SummaryService assembles the daily summary and settles the summary-time
// bonuses, which are idempotent however often the summary is polled.
type SummaryService struct {
	db       *gorm.DB
	clock    *DayClock
	missions *MissionTracker
	streak   *StreakEngine
}

// NewSummaryService creates a summary service.
func NewSummaryService(db *gorm.DB, clock *DayClock, missions *MissionTracker, streak *StreakEngine) *SummaryService {
	return &SummaryService{db: db, clock: clock, missions: missions, streak: streak}
}

// GetDailySummary returns today's summary for userID.
func (s *SummaryService) GetDailySummary(ctx context.Context, userID uint) (*DailySummary, error) {
	db := s.db.WithContext(ctx)
	if err := db.Select("id").First(&models.User{}, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: user %d", ErrNotFound, userID)
		}
		return nil, err
	}

	today := s.clock.Today()
	set, err := s.missions.Ensure(ctx, userID, today)
	if err != nil {
		return nil, err
	}

	if _, err := s.streak.DailyCompletionBonus(ctx, userID, today); err != nil {
		return nil, err
	}
	if _, err := s.streak.WeeklyPerfectBonus(ctx, userID); err != nil {
		return nil, err
	}

	var u models.User
	if err := db.First(&u, userID).Error; err != nil {
		return nil, err
	}

	var bonuses []models.GamificationEvent
	if err := db.Where("user_id = ? AND awarded_on = ? AND date_key IS NULL", userID, today).
		Order("id ASC").
		Find(&bonuses).Error; err != nil {
		return nil, err
	}

	utils.Sugar.Debugw("daily summary", "user_id", userID, "date", today, "missions", len(set.Missions), "bonuses", len(bonuses))

	return &DailySummary{
		DateKey:             today,
		Points:              u.Points,
		Coins:               u.Coins,
		DailyStreak:         u.DailyStreak,
		Missions:            set.Missions,
		BonusesAwardedToday: bonuses,
	}, nil
}
