package main

import (
	"context"
	"time"
	_ "time/tzdata"

	"github.com/cppla/pawtrail/config"
	"github.com/cppla/pawtrail/models"
	"github.com/cppla/pawtrail/routes"
	"github.com/cppla/pawtrail/services"
	"github.com/cppla/pawtrail/utils"
)

func main() {
	cfg := config.Load()

	// Initialize logger early
	if err := utils.InitLogger(cfg); err != nil {
		panic(err)
	}
	defer func() { _ = utils.Logger.Sync() }()

	db := config.InitDatabase(
		&models.User{},
		&models.WalkSession{},
		&models.GamificationEvent{},
		&models.MissionTemplate{},
		&models.DailyMissionSet{},
		&models.DailyMission{},
	)
	if err := services.SeedMissionTemplates(db, services.DefaultMissionCatalog); err != nil {
		utils.Sugar.Fatalf("seed mission catalog: %v", err)
	}

	loc, err := time.LoadLocation(cfg.DayKeyTimezone)
	if err != nil {
		utils.Sugar.Fatalf("invalid day key timezone %q: %v", cfg.DayKeyTimezone, err)
	}
	clock := services.NewDayClock(loc, nil)

	var poi services.POIFinder
	if cfg.POIProviderURL != "" {
		poi = services.NewCachedPOIFinder(
			services.NewHTTPPOIFinder(services.HTTPPOIConfig{
				BaseURL:           cfg.POIProviderURL,
				APIKey:            cfg.POIProviderAPIKey,
				ClientID:          cfg.POIClientID,
				ClientSecret:      cfg.POIClientSecret,
				TokenURL:          cfg.POITokenURL,
				Categories:        cfg.POICategories,
				RequestsPerSecond: cfg.POIRequestsPerSecond,
			}),
			utils.NewCache(utils.GetRedis()),
			time.Duration(cfg.POICacheTTLSeconds)*time.Second,
			cfg.POICategories,
		)
	} else {
		utils.Sugar.Warn("POI provider not configured, place detection disabled")
	}

	missions := services.NewMissionTracker(db)
	ledger := services.NewEventLedger(db, clock, missions, services.BonusConfig{
		DailyCompletion:  cfg.DailyCompletionBonus,
		Streak:           cfg.StreakBonus,
		WeeklyPerfect:    cfg.WeeklyPerfectBonus,
		ArticleFirstRead: cfg.ArticleFirstReadBonus,
	})
	streak := services.NewStreakEngine(db, clock, ledger, missions)
	walks := services.NewWalkService(db, clock, ledger, poi, time.Duration(cfg.POILookupTimeoutMs)*time.Millisecond)

	r := routes.SetupRouter(cfg, routes.Services{
		Walks:   walks,
		Ledger:  ledger,
		Summary: services.NewSummaryService(db, clock, missions, streak),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	services.StartWalkAutoCompleter(ctx, walks,
		time.Duration(cfg.WalkSweepIntervalMin)*time.Minute,
		time.Duration(cfg.WalkAutoCompleteHours)*time.Hour)

	utils.Sugar.Infof("Starting server on port %s (graceful)", cfg.AppPort)
	if err := utils.GraceServer(":"+cfg.AppPort, r, cancel); err != nil {
		utils.Sugar.Fatalf("server stopped with error: %v", err)
	}
}
