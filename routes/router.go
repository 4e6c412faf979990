package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/cppla/pawtrail/config"
	"github.com/cppla/pawtrail/controllers"
	"github.com/cppla/pawtrail/middleware"
	"github.com/cppla/pawtrail/services"
	"github.com/cppla/pawtrail/utils"
)

// Services groups what the HTTP layer calls into.
type Services struct {
	Walks   *services.WalkService
	Ledger  *services.EventLedger
	Summary *services.SummaryService
}

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(cfg config.AppConfig, svc Services) *gin.Engine {
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	// request log goes to its own rolling file; fall back to the app logger
	gl := utils.Logger
	if cfg.GinPath != "" {
		if l, err := utils.NewRollingFileLogger(cfg.GinPath, cfg.LogLevel, cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays, cfg.LogCompress); err == nil {
			gl = l
		} else {
			utils.Sugar.Warnf("gin log file unavailable, using app logger: %v", err)
		}
	}
	r.Use(utils.Ginzap(gl, time.RFC3339, true))
	r.Use(utils.RecoveryWithZap(gl, false))

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 0 || (len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*") {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	r.GET("/health", func(ctx *gin.Context) {
		utils.Success(ctx, gin.H{"status": "ok"})
	})

	walkController := controllers.NewWalkController(svc.Walks)
	gamificationController := controllers.NewGamificationController(svc.Ledger, svc.Summary)

	api := r.Group("/api/v1")
	api.Use(middleware.AuthRequired(cfg.JWTSecret), middleware.NewRateLimiter(cfg.RateLimitPerMinute).Middleware())

	walks := api.Group("/walks")
	walks.POST("", walkController.StartWalk)
	walks.GET("", walkController.ListWalks)
	walks.GET("/:id", walkController.GetWalk)
	walks.POST("/:id/route", walkController.AppendRoute)
	walks.POST("/:id/complete", walkController.CompleteWalk)
	walks.PATCH("/:id/share", walkController.ShareWalk)

	gamification := api.Group("/gamification")
	gamification.POST("/events", gamificationController.RegisterEvent)
	gamification.GET("/summary", gamificationController.DailySummary)

	r.NoRoute(func(ctx *gin.Context) {
		utils.Error(ctx, http.StatusNotFound, 40400, "api route not found")
	})

	return r
}
