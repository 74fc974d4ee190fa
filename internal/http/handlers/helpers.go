package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"genfity-floor-services/internal/floor"
	"genfity-floor-services/internal/middleware"
	"genfity-floor-services/pkg/response"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func zapError(err error) zap.Field {
	return zap.Error(err)
}

func readPathString(r *http.Request, key string) string {
	value := chi.URLParam(r, key)
	if unescaped, err := url.PathUnescape(value); err == nil {
		return strings.TrimSpace(unescaped)
	}
	return strings.TrimSpace(value)
}

func readPathInt64(r *http.Request, key string) (int64, error) {
	value := readPathString(r, key)
	if value == "" {
		return 0, errMissingParam
	}
	return strconv.ParseInt(value, 10, 64)
}

var errMissingParam = errors.New("missing param")

func actorID(r *http.Request) int64 {
	if authCtx, ok := middleware.GetAuthContext(r.Context()); ok {
		return authCtx.UserID
	}
	return 0
}

// confirmed gates destructive routes behind an explicit ?confirm=true.
func confirmed(w http.ResponseWriter, r *http.Request) bool {
	if strings.EqualFold(strings.TrimSpace(r.URL.Query().Get("confirm")), "true") {
		return true
	}
	response.Error(w, http.StatusBadRequest, "CONFIRMATION_REQUIRED", "Add confirm=true to perform this action")
	return false
}

func (h *Handler) writeFloorError(w http.ResponseWriter, r *http.Request, err error) {
	var fe *floor.Error
	if errors.As(err, &fe) {
		status := fe.StatusCode
		if status == 0 {
			status = http.StatusBadRequest
		}
		if status >= http.StatusInternalServerError {
			h.Logger.Error("floor operation failed", zap.String("path", r.URL.Path), zap.String("code", string(fe.Code)), zapError(err))
		}
		response.ErrorWithDetails(w, status, string(fe.Code), fe.Message, fe.Details)
		return
	}
	h.Logger.Error("floor operation failed", zap.String("path", r.URL.Path), zapError(err))
	response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Something went wrong")
}
