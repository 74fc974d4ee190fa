package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"genfity-floor-services/internal/floor"
	"genfity-floor-services/pkg/response"
)

func (h *Handler) TablesList(w http.ResponseWriter, r *http.Request) {
	tables, err := h.Registry.List(r.Context())
	if err != nil {
		h.writeFloorError(w, r, err)
		return
	}
	if tables == nil {
		tables = []floor.TableView{}
	}
	response.Success(w, tables)
}

func (h *Handler) TableDetail(w http.ResponseWriter, r *http.Request) {
	tableID, err := readPathInt64(r, "tableId")
	if err != nil {
		response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "Table ID is required")
		return
	}

	table, err := h.Registry.Get(r.Context(), tableID)
	if err != nil {
		h.writeFloorError(w, r, err)
		return
	}
	response.Success(w, table)
}

func (h *Handler) TableCreate(w http.ResponseWriter, r *http.Request) {
	var body createTablePayload
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}

	table, err := h.Registry.Create(r.Context(), floor.NewTable{
		Name:        body.Name,
		Area:        body.Area,
		SeatingType: body.SeatingType,
		Capacity:    body.Capacity,
		Notes:       body.Notes,
		WindowView:  body.WindowView,
	}, actorID(r))
	if err != nil {
		h.writeFloorError(w, r, err)
		return
	}
	response.Created(w, table)
}

func (h *Handler) TableDelete(w http.ResponseWriter, r *http.Request) {
	tableID, err := readPathInt64(r, "tableId")
	if err != nil {
		response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "Table ID is required")
		return
	}
	if !confirmed(w, r) {
		return
	}

	if err := h.Registry.Delete(r.Context(), tableID, actorID(r)); err != nil {
		h.writeFloorError(w, r, err)
		return
	}
	response.Success(w, map[string]any{"tableId": tableID, "deleted": true})
}

func (h *Handler) TableStatusUpdate(w http.ResponseWriter, r *http.Request) {
	tableID, err := readPathInt64(r, "tableId")
	if err != nil {
		response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "Table ID is required")
		return
	}

	var body updateTableStatusPayload
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}

	var estimated *time.Time
	if body.EstimatedTime != nil && strings.TrimSpace(*body.EstimatedTime) != "" {
		parsed, err := time.Parse(time.RFC3339, strings.TrimSpace(*body.EstimatedTime))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "estimatedTime must be an RFC3339 timestamp")
			return
		}
		estimated = &parsed
	}

	// Unknown statuses are passed through so the registry reports them as an
	// invalid transition.
	status, _ := floor.ParseTableStatus(body.Status)
	table, err := h.Registry.SetStatus(r.Context(), tableID, status, estimated, actorID(r))
	if err != nil {
		h.writeFloorError(w, r, err)
		return
	}
	response.Success(w, table)
}
