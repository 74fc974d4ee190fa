package handlers

import (
	"encoding/json"
	"net/http"

	"genfity-floor-services/internal/floor"
	"genfity-floor-services/pkg/response"
)

func (h *Handler) TableGroupsList(w http.ResponseWriter, r *http.Request) {
	groups, err := h.Coordinator.List(r.Context())
	if err != nil {
		h.writeFloorError(w, r, err)
		return
	}
	if groups == nil {
		groups = []floor.MergedGroup{}
	}
	response.Success(w, groups)
}

func (h *Handler) TableGroupDetail(w http.ResponseWriter, r *http.Request) {
	groupID, err := readPathInt64(r, "groupId")
	if err != nil {
		response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "Group ID is required")
		return
	}

	group, err := h.Coordinator.Get(r.Context(), groupID)
	if err != nil {
		h.writeFloorError(w, r, err)
		return
	}
	response.Success(w, group)
}

func (h *Handler) TableGroupMerge(w http.ResponseWriter, r *http.Request) {
	var body mergeTablesPayload
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}

	createdBy := actorID(r)
	if body.CreatedBy != nil && *body.CreatedBy > 0 {
		createdBy = *body.CreatedBy
	}

	group, err := h.Coordinator.Merge(r.Context(), floor.MergeRequest{
		TableIDs:  body.TableIDs,
		CreatedBy: createdBy,
		Notes:     body.Notes,
	})
	if err != nil {
		h.writeFloorError(w, r, err)
		return
	}
	response.Created(w, group)
}

func (h *Handler) TableGroupDisband(w http.ResponseWriter, r *http.Request) {
	groupID, err := readPathInt64(r, "groupId")
	if err != nil {
		response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "Group ID is required")
		return
	}
	if !confirmed(w, r) {
		return
	}

	result, err := h.Coordinator.Disband(r.Context(), groupID, actorID(r))
	if err != nil {
		h.writeFloorError(w, r, err)
		return
	}
	if result.Released == nil {
		result.Released = []int64{}
	}
	if result.Occupied == nil {
		result.Occupied = []int64{}
	}
	response.Success(w, result)
}
