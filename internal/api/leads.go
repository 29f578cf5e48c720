package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"gitlab.com/smilefunnel/api/lead-engine/internal/apperrors"
	"gitlab.com/smilefunnel/api/lead-engine/internal/model"
	"gitlab.com/smilefunnel/api/lead-engine/internal/tenant"
	"gitlab.com/smilefunnel/api/lead-engine/pkg/utils"
)

// Handler serves the lead endpoints.
type Handler struct {
	service LeadService
}

// NewHandler creates a new lead handler
func NewHandler(service LeadService) *Handler {
	return &Handler{service: service}
}

// StatusChangeBody is the body of POST /v1/leads/{leadID}/status.
type StatusChangeBody struct {
	Status    string `json:"status"`
	ActorID   string `json:"actor_id,omitempty"`
	ActorType string `json:"actor_type,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// NoteBody is the body of POST /v1/leads/{leadID}/notes.
type NoteBody struct {
	Content   string `json:"content"`
	ActorID   string `json:"actor_id,omitempty"`
	ActorType string `json:"actor_type,omitempty"`
}

// ListLeadsResponse is the response for listing leads
type ListLeadsResponse struct {
	Leads  []model.Lead `json:"leads"`
	Count  int          `json:"count"`
	Offset int          `json:"offset"`
	Limit  int          `json:"limit"`
}

// ListActivitiesResponse is the response for a lead timeline
type ListActivitiesResponse struct {
	Activities []model.LeadActivity `json:"activities"`
	Count      int                  `json:"count"`
	Offset     int                  `json:"offset"`
	Limit      int                  `json:"limit"`
}

// CreateLead handles POST /v1/leads. Without X-Organization-ID the
// organization comes from the body.
func (h *Handler) CreateLead(w http.ResponseWriter, r *http.Request) {
	var sub model.Submission
	if err := utils.DecodeJSONBody(w, r, &sub); err != nil {
		writeError(w, r, fmt.Errorf("%w: invalid request body: %w", apperrors.ErrBadRequest, err))
		return
	}
	if sub.OrganizationID == "" {
		if organizationID, err := tenant.FromContext(r.Context()); err == nil {
			sub.OrganizationID = organizationID
		}
	}

	lead, err := h.service.Intake(r.Context(), sub)
	if err != nil {
		writeError(w, r, err)
		return
	}
	_ = utils.WriteJSONResponse(w, http.StatusCreated, lead)
}

// ListLeads handles GET /v1/leads
func (h *Handler) ListLeads(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pagination(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	query := r.URL.Query()
	filter := model.LeadFilter{
		Status:      model.LeadStatus(query.Get("status")),
		Temperature: model.LeadTemperature(query.Get("temperature")),
		Limit:       limit,
		Offset:      offset,
	}

	leads, err := h.service.ListLeads(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if leads == nil {
		leads = []model.Lead{}
	}
	_ = utils.WriteJSONResponse(w, http.StatusOK, ListLeadsResponse{
		Leads:  leads,
		Count:  len(leads),
		Offset: offset,
		Limit:  limit,
	})
}

// GetLead handles GET /v1/leads/{leadID}
func (h *Handler) GetLead(w http.ResponseWriter, r *http.Request) {
	lead, err := h.service.GetLead(r.Context(), chi.URLParam(r, "leadID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	_ = utils.WriteJSONResponse(w, http.StatusOK, lead)
}

// ChangeStatus handles POST /v1/leads/{leadID}/status
func (h *Handler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	var body StatusChangeBody
	if err := utils.DecodeJSONBody(w, r, &body); err != nil {
		writeError(w, r, fmt.Errorf("%w: invalid request body: %w", apperrors.ErrBadRequest, err))
		return
	}

	lead, err := h.service.TransitionStatus(r.Context(), model.StatusChangeRequest{
		LeadID:    chi.URLParam(r, "leadID"),
		Status:    model.LeadStatus(body.Status),
		ActorID:   body.ActorID,
		ActorType: model.ActorType(body.ActorType),
		Reason:    body.Reason,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	_ = utils.WriteJSONResponse(w, http.StatusOK, lead)
}

// AddNote handles POST /v1/leads/{leadID}/notes
func (h *Handler) AddNote(w http.ResponseWriter, r *http.Request) {
	var body NoteBody
	if err := utils.DecodeJSONBody(w, r, &body); err != nil {
		writeError(w, r, fmt.Errorf("%w: invalid request body: %w", apperrors.ErrBadRequest, err))
		return
	}

	activity, err := h.service.AddNote(r.Context(), model.NoteRequest{
		LeadID:    chi.URLParam(r, "leadID"),
		Content:   body.Content,
		ActorID:   body.ActorID,
		ActorType: model.ActorType(body.ActorType),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	_ = utils.WriteJSONResponse(w, http.StatusCreated, activity)
}

// ListActivities handles GET /v1/leads/{leadID}/activities
func (h *Handler) ListActivities(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pagination(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	activities, err := h.service.ListActivities(r.Context(), chi.URLParam(r, "leadID"), limit, offset)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if activities == nil {
		activities = []model.LeadActivity{}
	}
	_ = utils.WriteJSONResponse(w, http.StatusOK, ListActivitiesResponse{
		Activities: activities,
		Count:      len(activities),
		Offset:     offset,
		Limit:      limit,
	})
}

// pagination reads limit and offset; absent values are zero and the
// repository applies its defaults.
func pagination(r *http.Request) (limit, offset int, err error) {
	query := r.URL.Query()
	if raw := query.Get("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil || limit < 0 {
			return 0, 0, fmt.Errorf("%w: limit must be a non-negative integer", apperrors.ErrValidation)
		}
	}
	if raw := query.Get("offset"); raw != "" {
		if offset, err = strconv.Atoi(raw); err != nil || offset < 0 {
			return 0, 0, fmt.Errorf("%w: offset must be a non-negative integer", apperrors.ErrValidation)
		}
	}
	return limit, offset, nil
}
