package services

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/crypto/blake2b"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/pawtrail/models"
	"github.com/cppla/pawtrail/utils"
)

// Event keys understood by the mission catalog and bonus engine.
const (
	EventWalkCompleted   = "WALK_COMPLETED"
	EventWalkDistance1KM = "WALK_DISTANCE_1KM"
	EventExploreNewPOI   = "EXPLORE_NEW_POI"
	EventReadArticle     = "READ_ARTICLE"
	EventExpenseRecorded = "EXPENSE_RECORDED"

	EventArticleFirstRead  = "ARTICLE_FIRST_READ"
	EventDailyAllCompleted = "DAILY_ALL_COMPLETED"
	EventStreak7Days       = "STREAK_7_DAYS"
	EventWeeklyPerfect     = "WEEKLY_PERFECT"
)

var eventKeyPattern = regexp.MustCompile(`^[A-Z0-9_]{1,64}$`)

// RegisterResult is the definite outcome of a ledger registration.
type RegisterResult struct {
	Duplicated     bool `json:"duplicated"`
	PointsAdded    int  `json:"points_added"`
	StreakAdvanced bool `json:"streak_advanced"`
	BonusPoints    int  `json:"bonus_points"`
}

// BonusConfig holds the fixed bonus amounts.
type BonusConfig struct {
	DailyCompletion  int
	Streak           int
	WeeklyPerfect    int
	ArticleFirstRead int
}

// EventLedger records reward events exactly once per unique hash and credits
// the matching daily mission in the same transaction.
type EventLedger struct {
	db       *gorm.DB
	clock    *DayClock
	missions *MissionTracker
	bonuses  BonusConfig
}

// NewEventLedger wires a ledger over db.
func NewEventLedger(db *gorm.DB, clock *DayClock, missions *MissionTracker, bonuses BonusConfig) *EventLedger {
	return &EventLedger{db: db, clock: clock, missions: missions, bonuses: bonuses}
}

// UniqueHash is the deterministic ledger key for the given fields.
func UniqueHash(userID uint, eventKey string, targetID, dateKey *string) string {
	target, day := "none", "none"
	if targetID != nil {
		target = *targetID
	}
	if dateKey != nil {
		day = *dateKey
	}
	raw := strings.Join([]string{strconv.FormatUint(uint64(userID), 10), eventKey, target, day}, "|")
	sum := blake2b.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Register credits eventKey for today.
func (l *EventLedger) Register(ctx context.Context, userID uint, eventKey string, targetID *string) (RegisterResult, error) {
	today := l.clock.Today()
	return l.RegisterOn(ctx, userID, eventKey, targetID, &today)
}

// RegisterOn credits eventKey scoped to dateKey. A nil dateKey records a
// day-independent event that completes no mission.
func (l *EventLedger) RegisterOn(ctx context.Context, userID uint, eventKey string, targetID, dateKey *string) (RegisterResult, error) {
	if err := validateEvent(userID, eventKey, targetID); err != nil {
		return RegisterResult{}, err
	}
	return l.register(ctx, userID, eventKey, targetID, dateKey, 0)
}

// RegisterDayIndependentBonus grants points at most once for the lifetime of
// (userID, eventKey, targetID).
func (l *EventLedger) RegisterDayIndependentBonus(ctx context.Context, userID uint, eventKey, targetID string, points int) (RegisterResult, error) {
	if err := validateEvent(userID, eventKey, &targetID); err != nil {
		return RegisterResult{}, err
	}
	if points < 0 {
		return RegisterResult{}, fmt.Errorf("%w: negative bonus", ErrValidation)
	}
	return l.register(ctx, userID, eventKey, &targetID, nil, points)
}

// clientEvents are the actions a client may report directly. Walk milestones
// are fired only by the walk service once their thresholds are met.
var clientEvents = map[string]bool{
	EventReadArticle:     true,
	EventExpenseRecorded: true,
}

// RegisterUserAction records an action reported by the client. Reading an
// article also pays the lifetime first-read bonus for that article.
func (l *EventLedger) RegisterUserAction(ctx context.Context, userID uint, eventKey string, targetID *string) (RegisterResult, error) {
	if !clientEvents[eventKey] {
		return RegisterResult{}, fmt.Errorf("%w: event %q cannot be reported directly", ErrValidation, eventKey)
	}
	res, err := l.Register(ctx, userID, eventKey, targetID)
	if err != nil {
		return res, err
	}
	if eventKey != EventReadArticle || targetID == nil || l.bonuses.ArticleFirstRead <= 0 {
		return res, nil
	}
	bonus, err := l.RegisterDayIndependentBonus(ctx, userID, EventArticleFirstRead, "article:"+*targetID, l.bonuses.ArticleFirstRead)
	if err != nil {
		return res, err
	}
	res.BonusPoints += bonus.PointsAdded
	return res, nil
}

func (l *EventLedger) register(ctx context.Context, userID uint, eventKey string, targetID, dateKey *string, bonus int) (RegisterResult, error) {
	db := l.db.WithContext(ctx)
	if err := db.Select("id").First(&models.User{}, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return RegisterResult{}, fmt.Errorf("%w: user %d", ErrNotFound, userID)
		}
		return RegisterResult{}, err
	}

	var setID uint
	if dateKey != nil {
		set, err := l.missions.Ensure(ctx, userID, *dateKey)
		if err != nil {
			return RegisterResult{}, err
		}
		setID = set.ID
	}

	var result RegisterResult
	err := db.Transaction(func(tx *gorm.DB) error {
		result = RegisterResult{}
		missionPoints := 0
		if setID != 0 {
			pts, err := completeMission(tx, setID, eventKey, l.clock)
			if err != nil {
				return err
			}
			missionPoints = pts
		}

		if err := insertEvent(tx, l.clock, userID, eventKey, targetID, dateKey, missionPoints+bonus); err != nil {
			return err
		}
		if err := creditUser(tx, userID, missionPoints+bonus); err != nil {
			return err
		}
		result.PointsAdded = missionPoints + bonus

		if missionPoints > 0 {
			advanced, streakBonus, err := l.advanceStreakTx(tx, userID, *dateKey)
			if err != nil {
				return err
			}
			result.StreakAdvanced = advanced
			result.BonusPoints = streakBonus
		}
		return nil
	})
	if errors.Is(err, errDuplicateEvent) {
		return RegisterResult{Duplicated: true}, nil
	}
	if err != nil {
		utils.Sugar.Errorw("ledger register failed", "user_id", userID, "event", eventKey, "err", err)
		return RegisterResult{}, err
	}
	return result, nil
}

// completeMission flips the first open mission for eventKey and returns its
// points, or 0 when nothing is left to complete. The locking read sees rows
// committed by concurrent events and holds the row until commit, so the
// conditional update below only guards the completed flag.
func completeMission(tx *gorm.DB, setID uint, eventKey string, clock *DayClock) (int, error) {
	var m models.DailyMission
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("set_id = ? AND event_key = ? AND completed = ?", setID, eventKey, false).
		Order("position ASC").
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	res := tx.Model(&models.DailyMission{}).
		Where("id = ? AND completed = ?", m.ID, false).
		Updates(map[string]interface{}{"completed": true, "completed_at": clock.Now()})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected != 1 {
		return 0, nil
	}
	return m.Points, nil
}

func insertEvent(tx *gorm.DB, clock *DayClock, userID uint, eventKey string, targetID, dateKey *string, points int) error {
	ev := models.GamificationEvent{
		UserID:     userID,
		EventKey:   eventKey,
		TargetID:   targetID,
		DateKey:    dateKey,
		UniqueHash: UniqueHash(userID, eventKey, targetID, dateKey),
		Points:     points,
		AwardedOn:  clock.Today(),
	}
	if err := tx.Create(&ev).Error; err != nil {
		if isDuplicateKey(err) {
			return errDuplicateEvent
		}
		return err
	}
	return nil
}

// creditUser adds points to both balances with a single atomic increment.
func creditUser(tx *gorm.DB, userID uint, points int) error {
	if points == 0 {
		return nil
	}
	res := tx.Model(&models.User{}).Where("id = ?", userID).Updates(map[string]interface{}{
		"points": gorm.Expr("points + ?", points),
		"coins":  gorm.Expr("coins + ?", points),
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: user %d", ErrNotFound, userID)
	}
	return nil
}

// awardBonusTx grants a lifetime bonus inside an open transaction. The insert
// runs under a savepoint so a duplicate leaves the outer transaction usable.
func (l *EventLedger) awardBonusTx(tx *gorm.DB, userID uint, eventKey, targetID string, points int) (bool, error) {
	err := tx.Transaction(func(sp *gorm.DB) error {
		if err := insertEvent(sp, l.clock, userID, eventKey, &targetID, nil, points); err != nil {
			return err
		}
		return creditUser(sp, userID, points)
	})
	if errors.Is(err, errDuplicateEvent) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func validateEvent(userID uint, eventKey string, targetID *string) error {
	if userID == 0 {
		return fmt.Errorf("%w: user id required", ErrValidation)
	}
	if !eventKeyPattern.MatchString(eventKey) {
		return fmt.Errorf("%w: invalid event key %q", ErrValidation, eventKey)
	}
	if targetID != nil && (*targetID == "" || len(*targetID) > 191) {
		return fmt.Errorf("%w: invalid target id", ErrValidation)
	}
	return nil
}
