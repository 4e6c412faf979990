package services

import (
	"sync"
	"testing"

	"github.com/cppla/pawtrail/models"
)

func TestEnsureConcurrentCreatesOneSet(t *testing.T) {
	f := newFixture(t, nil)
	day := f.clock.Today()

	const callers = 6
	var wg sync.WaitGroup
	ids := make([]uint, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			set, err := f.missions.Ensure(ctx, f.user.ID, day)
			if err == nil {
				ids[i] = set.ID
			}
			errs[i] = err
		}(i)
	}
	wg.Wait()

	for i := range ids {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if ids[i] != ids[0] {
			t.Fatalf("caller %d saw set %d, caller 0 saw %d", i, ids[i], ids[0])
		}
	}

	var sets, items int64
	f.db.Model(&models.DailyMissionSet{}).Where("user_id = ? AND date_key = ?", f.user.ID, day).Count(&sets)
	f.db.Model(&models.DailyMission{}).Where("set_id = ?", ids[0]).Count(&items)
	if sets != 1 {
		t.Fatalf("mission sets = %d, want 1", sets)
	}
	// five templates, READ_ARTICLE contributes two entries
	if items != 6 {
		t.Fatalf("mission items = %d, want 6", items)
	}
}

func TestEnsureSnapshotIgnoresLaterCatalogEdits(t *testing.T) {
	f := newFixture(t, nil)
	day := f.clock.Today()

	if _, err := f.missions.Ensure(ctx, f.user.ID, day); err != nil {
		t.Fatal(err)
	}
	if err := f.db.Model(&models.MissionTemplate{}).Where("template_key = ?", "DAILY_WALK").Update("points", 99).Error; err != nil {
		t.Fatal(err)
	}

	today, err := f.missions.Ensure(ctx, f.user.ID, day)
	if err != nil {
		t.Fatal(err)
	}
	if got := today.Missions[0].Points; got != 10 {
		t.Fatalf("existing snapshot points = %d, want 10", got)
	}

	tomorrow, err := f.missions.Ensure(ctx, f.user.ID, f.clock.ShiftDay(day, 1))
	if err != nil {
		t.Fatal(err)
	}
	if got := tomorrow.Missions[0].Points; got != 99 {
		t.Fatalf("new snapshot points = %d, want 99", got)
	}
}

func TestEnsureSkipsInactiveTemplates(t *testing.T) {
	f := newFixture(t, nil)
	if err := f.db.Model(&models.MissionTemplate{}).Where("template_key = ?", "RECORD_EXPENSE").Update("active", false).Error; err != nil {
		t.Fatal(err)
	}
	set, err := f.missions.Ensure(ctx, f.user.ID, f.clock.Today())
	if err != nil {
		t.Fatal(err)
	}
	for _, m := range set.Missions {
		if m.TemplateKey == "RECORD_EXPENSE" {
			t.Fatal("inactive template was snapshotted")
		}
	}
	if len(set.Missions) != 5 {
		t.Fatalf("missions = %d, want 5", len(set.Missions))
	}
}

func TestSeedMissionTemplatesKeepsEdits(t *testing.T) {
	f := newFixture(t, nil)
	if err := f.db.Model(&models.MissionTemplate{}).Where("template_key = ?", "WALK_1KM").Update("title", "Go the distance").Error; err != nil {
		t.Fatal(err)
	}
	if err := SeedMissionTemplates(f.db, DefaultMissionCatalog); err != nil {
		t.Fatalf("reseed: %v", err)
	}

	var count int64
	f.db.Model(&models.MissionTemplate{}).Count(&count)
	if int(count) != len(DefaultMissionCatalog) {
		t.Fatalf("templates = %d, want %d", count, len(DefaultMissionCatalog))
	}
	var tpl models.MissionTemplate
	f.db.Where("template_key = ?", "WALK_1KM").First(&tpl)
	if tpl.Title != "Go the distance" {
		t.Fatalf("title overwritten: %q", tpl.Title)
	}
}

func TestFindMissingSetIsNotFound(t *testing.T) {
	f := newFixture(t, nil)
	if _, err := f.missions.Find(ctx, f.user.ID, "2000-01-01"); err != ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestAllCompletedRequiresMissions(t *testing.T) {
	empty := models.DailyMissionSet{}
	if empty.AllCompleted() {
		t.Fatal("empty set counted as completed")
	}
	set := models.DailyMissionSet{Missions: []models.DailyMission{{Completed: true}, {Completed: false}}}
	if set.AllCompleted() {
		t.Fatal("partial set counted as completed")
	}
	set.Missions[1].Completed = true
	if !set.AllCompleted() {
		t.Fatal("complete set not recognised")
	}
}
