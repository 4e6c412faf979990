package controllers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cppla/pawtrail/services"
	"github.com/cppla/pawtrail/utils"
)

// GamificationController handles reward events and the daily summary.
type GamificationController struct {
	ledger  *services.EventLedger
	summary *services.SummaryService
}

// NewGamificationController creates a new GamificationController instance.
func NewGamificationController(ledger *services.EventLedger, summary *services.SummaryService) *GamificationController {
	return &GamificationController{ledger: ledger, summary: summary}
}

// RegisterEvent records a client-reported action and reports whether it was
// credited. Duplicates are a successful response with duplicated=true.
func (g *GamificationController) RegisterEvent(ctx *gin.Context) {
	var req struct {
		EventKey string  `json:"event_key" binding:"required"`
		TargetID *string `json:"target_id"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40020, "invalid request payload")
		return
	}

	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	eventKey := strings.TrimSpace(req.EventKey)
	var target *string
	if req.TargetID != nil {
		t := strings.TrimSpace(*req.TargetID)
		target = &t
	}

	res, err := g.ledger.RegisterUserAction(ctx.Request.Context(), userID, eventKey, target)
	if err != nil {
		respondServiceError(ctx, err, 50030, "failed to register event")
		return
	}

	utils.Success(ctx, res)
}

// DailySummary returns today's balance, streak and missions.
func (g *GamificationController) DailySummary(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	summary, err := g.summary.GetDailySummary(ctx.Request.Context(), userID)
	if err != nil {
		respondServiceError(ctx, err, 50032, "failed to load summary")
		return
	}
	utils.Success(ctx, summary)
}
