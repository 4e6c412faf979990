package services

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/pawtrail/models"
)

// DefaultMissionCatalog is seeded at boot when the templates are missing.
var DefaultMissionCatalog = []models.MissionTemplate{
	{Key: "DAILY_WALK", Title: "Take a walk with your pet", Points: 10, EventKey: EventWalkCompleted, MaxPerDay: 1, Position: 1, Active: true},
	{Key: "WALK_1KM", Title: "Walk at least 1 km", Points: 15, EventKey: EventWalkDistance1KM, MaxPerDay: 1, Position: 2, Active: true},
	{Key: "EXPLORE_PLACE", Title: "Visit a new place on a walk", Points: 10, EventKey: EventExploreNewPOI, MaxPerDay: 1, Position: 3, Active: true},
	{Key: "READ_ARTICLE", Title: "Read a pet care article", Points: 5, EventKey: EventReadArticle, MaxPerDay: 2, Position: 4, Active: true},
	{Key: "RECORD_EXPENSE", Title: "Record a pet expense", Points: 5, EventKey: EventExpenseRecorded, MaxPerDay: 1, Position: 5, Active: true},
}

// SeedMissionTemplates inserts templates whose key is not yet present.
// Existing rows are left untouched so catalog edits survive restarts.
func SeedMissionTemplates(db *gorm.DB, templates []models.MissionTemplate) error {
	if len(templates) == 0 {
		return nil
	}
	rows := make([]models.MissionTemplate, len(templates))
	copy(rows, templates)
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "template_key"}},
		DoNothing: true,
	}).Create(&rows).Error
}

// MissionTracker owns the per-user, per-day mission snapshots.
type MissionTracker struct {
	db *gorm.DB
}

// NewMissionTracker creates a tracker backed by db.
func NewMissionTracker(db *gorm.DB) *MissionTracker {
	return &MissionTracker{db: db}
}

// Ensure returns the user's mission set for dateKey, creating it from the
// current catalog on first use. Concurrent callers race on the unique
// (user_id, date_key) index; losers read the winner's row.
func (t *MissionTracker) Ensure(ctx context.Context, userID uint, dateKey string) (*models.DailyMissionSet, error) {
	db := t.db.WithContext(ctx)
	set, err := findMissionSet(db, userID, dateKey)
	if err == nil {
		return set, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	templates, err := t.catalog(db)
	if err != nil {
		return nil, err
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		created := models.DailyMissionSet{UserID: userID, DateKey: dateKey}
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "date_key"}},
			DoNothing: true,
		}).Omit(clause.Associations).Create(&created)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 || created.ID == 0 {
			// another request created the set first
			return nil
		}
		items := snapshotMissions(templates, created.ID)
		if len(items) == 0 {
			return nil
		}
		return tx.Create(&items).Error
	})
	if err != nil {
		return nil, fmt.Errorf("create mission set: %w", err)
	}
	return findMissionSet(db, userID, dateKey)
}

// Find returns the stored set for dateKey without creating it.
func (t *MissionTracker) Find(ctx context.Context, userID uint, dateKey string) (*models.DailyMissionSet, error) {
	set, err := findMissionSet(t.db.WithContext(ctx), userID, dateKey)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return set, err
}

// FindMany returns the stored sets for the given days, keyed by day.
func (t *MissionTracker) FindMany(ctx context.Context, userID uint, dateKeys []string) (map[string]*models.DailyMissionSet, error) {
	var sets []models.DailyMissionSet
	err := t.db.WithContext(ctx).
		Preload("Missions", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Where("user_id = ? AND date_key IN ?", userID, dateKeys).
		Find(&sets).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]*models.DailyMissionSet, len(sets))
	for i := range sets {
		out[sets[i].DateKey] = &sets[i]
	}
	return out, nil
}

func (t *MissionTracker) catalog(db *gorm.DB) ([]models.MissionTemplate, error) {
	var templates []models.MissionTemplate
	err := db.Where("active = ?", true).Order("position ASC").Order("id ASC").Find(&templates).Error
	return templates, err
}

func findMissionSet(db *gorm.DB, userID uint, dateKey string) (*models.DailyMissionSet, error) {
	var set models.DailyMissionSet
	err := db.Preload("Missions", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Where("user_id = ? AND date_key = ?", userID, dateKey).
		First(&set).Error
	if err != nil {
		return nil, err
	}
	return &set, nil
}

// snapshotMissions expands each template into MaxPerDay open entries.
func snapshotMissions(templates []models.MissionTemplate, setID uint) []models.DailyMission {
	items := []models.DailyMission{}
	pos := 0
	for _, tpl := range templates {
		n := tpl.MaxPerDay
		if n <= 0 {
			n = 1
		}
		for i := 0; i < n; i++ {
			pos++
			items = append(items, models.DailyMission{
				SetID:       setID,
				Position:    pos,
				TemplateKey: tpl.Key,
				EventKey:    tpl.EventKey,
				Title:       tpl.Title,
				Points:      tpl.Points,
			})
		}
	}
	return items
}
