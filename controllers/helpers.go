package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/cppla/pawtrail/middleware"
	"github.com/cppla/pawtrail/services"
	"github.com/cppla/pawtrail/utils"
)

func parsePagination(pageStr, sizeStr string) (int, int) {
	page := 1
	pageSize := 10
	if p, err := strconv.Atoi(pageStr); err == nil && p > 0 {
		page = p
	}
	if s, err := strconv.Atoi(sizeStr); err == nil && s > 0 && s <= 100 {
		pageSize = s
	}
	return page, pageSize
}

func getUserID(ctx *gin.Context) (uint, bool) {
	value, exists := ctx.Get(middleware.ContextUserIDKey)
	if !exists {
		return 0, false
	}

	switch v := value.(type) {
	case uint:
		return v, v != 0
	case int:
		return uint(v), v > 0
	case int64:
		return uint(v), v > 0
	case float64:
		return uint(v), v > 0
	default:
		return 0, false
	}
}

// respondServiceError maps the service error taxonomy onto the JSON envelope.
// code is the 5xx application code used for store failures at this call site.
func respondServiceError(ctx *gin.Context, err error, code int, message string) {
	switch {
	case errors.Is(err, services.ErrValidation):
		utils.Error(ctx, http.StatusBadRequest, 40030, err.Error())
	case errors.Is(err, services.ErrNotFound):
		utils.Error(ctx, http.StatusNotFound, 40430, "not found")
	case errors.Is(err, services.ErrInvalidState):
		utils.Error(ctx, http.StatusConflict, 40930, err.Error())
	case errors.Is(err, services.ErrCollaboratorUnavailable):
		utils.Error(ctx, http.StatusServiceUnavailable, 50330, "upstream unavailable")
	default:
		utils.Sugar.Errorw(message, "path", ctx.FullPath(), "err", err)
		utils.Error(ctx, http.StatusInternalServerError, code, message)
	}
}
