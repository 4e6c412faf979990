package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cppla/pawtrail/models"
	"github.com/cppla/pawtrail/services"
	"github.com/cppla/pawtrail/utils"
)

// WalkController exposes the walk lifecycle over HTTP.
type WalkController struct {
	walks *services.WalkService
}

// NewWalkController creates a new WalkController instance.
func NewWalkController(walks *services.WalkService) *WalkController {
	return &WalkController{walks: walks}
}

// StartWalk begins a walk for the authenticated user.
func (w *WalkController) StartWalk(ctx *gin.Context) {
	var req struct {
		PetID     uint       `json:"pet_id" binding:"required"`
		StartTime *time.Time `json:"start_time"`
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

	session, err := w.walks.Start(ctx.Request.Context(), userID, req.PetID, req.StartTime)
	if err != nil {
		respondServiceError(ctx, err, 50020, "failed to start walk")
		return
	}
	utils.Success(ctx, gin.H{"walk": session})
}

// AppendRoute adds GPS samples to an active walk.
func (w *WalkController) AppendRoute(ctx *gin.Context) {
	var req struct {
		Points []models.RoutePoint `json:"points" binding:"required"`
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

	session, err := w.walks.AppendRoute(ctx.Request.Context(), userID, ctx.Param("id"), req.Points)
	if err != nil {
		respondServiceError(ctx, err, 50021, "failed to append route")
		return
	}
	utils.Success(ctx, gin.H{"walk": session})
}

// CompleteWalk finalizes a walk; repeating the call returns the stored record.
func (w *WalkController) CompleteWalk(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	session, err := w.walks.Complete(ctx.Request.Context(), userID, ctx.Param("id"))
	if err != nil && session == nil {
		respondServiceError(ctx, err, 50022, "failed to complete walk")
		return
	}
	if err != nil {
		// walk is finalized but its rewards did not settle; a retry re-registers them
		respondServiceError(ctx, err, 50023, "walk completed but rewards failed, retry")
		return
	}
	utils.Success(ctx, gin.H{"walk": session})
}

// GetWalk returns one walk of the authenticated user.
func (w *WalkController) GetWalk(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	session, err := w.walks.Get(ctx.Request.Context(), userID, ctx.Param("id"))
	if err != nil {
		respondServiceError(ctx, err, 50024, "failed to load walk")
		return
	}
	utils.Success(ctx, gin.H{"walk": session})
}

// ListWalks returns the user's walks, newest first.
func (w *WalkController) ListWalks(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("page_size"))
	items, total, err := w.walks.List(ctx.Request.Context(), userID, page, pageSize)
	if err != nil {
		respondServiceError(ctx, err, 50025, "failed to list walks")
		return
	}
	utils.Success(ctx, gin.H{
		"items": items,
		"pagination": gin.H{
			"page":      page,
			"page_size": pageSize,
			"total":     total,
		},
	})
}

// ShareWalk sets the walk's share flag.
func (w *WalkController) ShareWalk(ctx *gin.Context) {
	var req struct {
		Shared *bool `json:"shared" binding:"required"`
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

	session, err := w.walks.SetShared(ctx.Request.Context(), userID, ctx.Param("id"), *req.Shared)
	if err != nil {
		respondServiceError(ctx, err, 50026, "failed to update walk")
		return
	}
	utils.Success(ctx, gin.H{"walk": session})
}
