package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"gitlab.com/smilefunnel/api/lead-engine/internal/model"
)

// LeadService is the lead use case exposed over HTTP.
type LeadService interface {
	Intake(ctx context.Context, submission model.Submission) (*model.Lead, error)
	TransitionStatus(ctx context.Context, req model.StatusChangeRequest) (*model.Lead, error)
	AddNote(ctx context.Context, req model.NoteRequest) (*model.LeadActivity, error)
	GetLead(ctx context.Context, leadID string) (*model.Lead, error)
	ListLeads(ctx context.Context, filter model.LeadFilter) ([]model.Lead, error)
	ListActivities(ctx context.Context, leadID string, limit, offset int) ([]model.LeadActivity, error)
}

// NewRouter builds the /v1 lead API.
func NewRouter(service LeadService) http.Handler {
	h := NewHandler(service)

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Tenant)
	r.Use(Metrics)
	r.Use(middleware.Recoverer)

	r.Route("/v1/leads", func(r chi.Router) {
		r.Post("/", h.CreateLead)
		r.Get("/", h.ListLeads)
		r.Route("/{leadID}", func(r chi.Router) {
			r.Get("/", h.GetLead)
			r.Post("/status", h.ChangeStatus)
			r.Post("/notes", h.AddNote)
			r.Get("/activities", h.ListActivities)
		})
	})

	return r
}
