package services

import (
	"errors"
	"testing"
)

func TestSummaryEnsuresTodaysMissions(t *testing.T) {
	f := newFixture(t, nil)
	if _, err := f.ledger.Register(ctx, f.user.ID, EventReadArticle, strPtr("leash-training")); err != nil {
		t.Fatal(err)
	}

	s, err := f.summary.GetDailySummary(ctx, f.user.ID)
	if err != nil {
		t.Fatal(err)
	}
	if s.DateKey != "2026-10-14" {
		t.Fatalf("date key = %s", s.DateKey)
	}
	if len(s.Missions) != 6 {
		t.Fatalf("missions = %d, want 6", len(s.Missions))
	}
	done := 0
	for _, m := range s.Missions {
		if m.Completed {
			done++
		}
	}
	if done != 1 {
		t.Fatalf("completed = %d, want 1", done)
	}
	if s.Points != 5 || s.DailyStreak != 1 || len(s.BonusesAwardedToday) != 0 {
		t.Fatalf("summary = %+v", s)
	}
}

func TestDailyCompletionBonusIsIdempotentAcrossPolls(t *testing.T) {
	f := newFixture(t, nil)
	f.completeAllMissions(t)

	for i := 0; i < 3; i++ {
		if _, err := f.summary.GetDailySummary(ctx, f.user.ID); err != nil {
			t.Fatalf("poll %d: %v", i, err)
		}
	}

	if n := f.countEvents(t, EventDailyAllCompleted, "day:2026-10-14"); n != 1 {
		t.Fatalf("daily bonus rows = %d, want 1", n)
	}
	if got, want := f.reloadUser(t).Points, 50+testBonuses.DailyCompletion; got != want {
		t.Fatalf("points = %d, want %d", got, want)
	}
}

func TestDailyCompletionBonusSkipsUnknownDay(t *testing.T) {
	f := newFixture(t, nil)
	res, err := f.streak.DailyCompletionBonus(ctx, f.user.ID, "2026-01-01")
	if err != nil || res.PointsAdded != 0 {
		t.Fatalf("res=%+v err=%v", res, err)
	}
}

func TestSummaryUnknownUser(t *testing.T) {
	f := newFixture(t, nil)
	if _, err := f.summary.GetDailySummary(ctx, f.user.ID+1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
