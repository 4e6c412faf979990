package services

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/cppla/pawtrail/config"
	"github.com/cppla/pawtrail/models"
)

var ctx = context.Background()

var kst = time.FixedZone("KST", 9*3600)

var testBonuses = BonusConfig{DailyCompletion: 20, Streak: 50, WeeklyPerfect: 100, ArticleFirstRead: 5}

type fixture struct {
	db       *gorm.DB
	now      time.Time
	clock    *DayClock
	missions *MissionTracker
	ledger   *EventLedger
	streak   *StreakEngine
	summary  *SummaryService
	walks    *WalkService
	user     models.User
}

// newFixture opens a private in-memory store with the default catalog and one user.
// The clock reads f.now, which tests move between calls.
func newFixture(t *testing.T, poi POIFinder) *fixture {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := config.AutoMigrate(db, &models.User{}, &models.WalkSession{}, &models.GamificationEvent{},
		&models.MissionTemplate{}, &models.DailyMissionSet{}, &models.DailyMission{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := SeedMissionTemplates(db, DefaultMissionCatalog); err != nil {
		t.Fatalf("seed catalog: %v", err)
	}

	f := &fixture{db: db, now: time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)}
	f.clock = NewDayClock(kst, func() time.Time { return f.now })
	f.missions = NewMissionTracker(db)
	f.ledger = NewEventLedger(db, f.clock, f.missions, testBonuses)
	f.streak = NewStreakEngine(db, f.clock, f.ledger, f.missions)
	f.summary = NewSummaryService(db, f.clock, f.missions, f.streak)
	f.walks = NewWalkService(db, f.clock, f.ledger, poi, time.Second)

	f.user = models.User{Username: "mina"}
	if err := db.Create(&f.user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return f
}

func (f *fixture) nextDay(days int) {
	f.now = f.now.AddDate(0, 0, days)
}

func (f *fixture) reloadUser(t *testing.T) models.User {
	t.Helper()
	var u models.User
	if err := f.db.First(&u, f.user.ID).Error; err != nil {
		t.Fatalf("reload user: %v", err)
	}
	return u
}

func (f *fixture) countEvents(t *testing.T, eventKey, targetID string) int64 {
	t.Helper()
	q := f.db.Model(&models.GamificationEvent{}).Where("user_id = ? AND event_key = ?", f.user.ID, eventKey)
	if targetID != "" {
		q = q.Where("target_id = ?", targetID)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		t.Fatalf("count events: %v", err)
	}
	return n
}

// completeAllMissions fires one event for every entry of the default catalog today.
func (f *fixture) completeAllMissions(t *testing.T) {
	t.Helper()
	day := f.clock.Today()
	events := []struct{ key, target string }{
		{EventWalkCompleted, "walk-" + day},
		{EventWalkDistance1KM, "walk-" + day},
		{EventExploreNewPOI, "place-" + day},
		{EventReadArticle, "article-a-" + day},
		{EventReadArticle, "article-b-" + day},
		{EventExpenseRecorded, "expense-" + day},
	}
	for _, e := range events {
		target := e.target
		res, err := f.ledger.Register(ctx, f.user.ID, e.key, &target)
		if err != nil {
			t.Fatalf("register %s: %v", e.key, err)
		}
		if res.Duplicated || res.PointsAdded == 0 {
			t.Fatalf("register %s on %s: unexpected result %+v", e.key, day, res)
		}
	}
}

func strPtr(s string) *string { return &s }
