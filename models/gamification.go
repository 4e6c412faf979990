package models

import "time"

// GamificationEvent is an immutable ledger row: a reward was granted to
// UserID for EventKey on TargetID, scoped to DateKey (nil for lifetime bonuses).
// UniqueHash is the composite of those fields and is globally unique.
type GamificationEvent struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UserID     uint      `gorm:"index:idx_event_user_awarded,priority:1;not null" json:"user_id"`
	EventKey   string    `gorm:"size:64;index;not null" json:"event_key"`
	TargetID   *string   `gorm:"size:191" json:"target_id"`
	DateKey    *string   `gorm:"size:10" json:"date_key"`
	UniqueHash string    `gorm:"size:64;uniqueIndex;not null" json:"-"`
	Points     int       `gorm:"not null;default:0" json:"points"`
	AwardedOn  string    `gorm:"size:10;index:idx_event_user_awarded,priority:2;not null" json:"awarded_on"`
	CreatedAt  time.Time `json:"created_at"`
}

// MissionTemplate is catalog data for a repeatable daily task. EventKey is
// the action that satisfies it; MaxPerDay entries are snapshotted per day.
type MissionTemplate struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Key       string    `gorm:"column:template_key;size:64;uniqueIndex;not null" json:"key"`
	Title     string    `gorm:"size:128;not null" json:"title"`
	Points    int       `gorm:"not null" json:"points"`
	EventKey  string    `gorm:"size:64;index;not null" json:"event_key"`
	MaxPerDay int       `gorm:"not null;default:1" json:"max_per_day"`
	Position  int       `gorm:"not null;default:0" json:"position"`
	Active    bool      `gorm:"not null" json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DailyMissionSet is the frozen mission list for one user on one day.
type DailyMissionSet struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	UserID    uint           `gorm:"uniqueIndex:idx_mission_set_user_day,priority:1;not null" json:"user_id"`
	DateKey   string         `gorm:"size:10;uniqueIndex:idx_mission_set_user_day,priority:2;not null" json:"date_key"`
	Missions  []DailyMission `gorm:"foreignKey:SetID" json:"missions"`
	CreatedAt time.Time      `json:"created_at"`
}

// DailyMission is one snapshotted entry of a DailyMissionSet. Completed only
// ever moves from false to true.
type DailyMission struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	SetID       uint       `gorm:"index:idx_mission_set_pos,priority:1;not null" json:"-"`
	Position    int        `gorm:"index:idx_mission_set_pos,priority:2;not null" json:"position"`
	TemplateKey string     `gorm:"size:64;not null" json:"template_key"`
	EventKey    string     `gorm:"size:64;not null" json:"event_key"`
	Title       string     `gorm:"size:128;not null" json:"title"`
	Points      int        `gorm:"not null" json:"points"`
	Completed   bool       `gorm:"not null;default:false" json:"completed"`
	CompletedAt *time.Time `json:"completed_at"`
}

// AllCompleted reports whether the set has at least one mission and every
// mission is completed.
func (s *DailyMissionSet) AllCompleted() bool {
	if len(s.Missions) == 0 {
		return false
	}
	for _, m := range s.Missions {
		if !m.Completed {
			return false
		}
	}
	return true
}
