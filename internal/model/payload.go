package model

import (
	"encoding/json"
	"strings"
	"time"
)

// --- Intake NATS / HTTP Payload --- //

// Submission is a raw landing-page form post. Blank strings mean absent.
type Submission struct {
	OrganizationID  string `json:"organization_id"`
	LandingPageID   string `json:"landing_page_id"`
	CampaignID      string `json:"campaign_id,omitempty"`
	TerritoryID     string `json:"territory_id,omitempty"`
	FirstName       string `json:"first_name,omitempty"`
	LastName        string `json:"last_name,omitempty"`
	Email           string `json:"email,omitempty"`
	Phone           string `json:"phone,omitempty"`
	InsuranceStatus string `json:"insurance_status,omitempty"`
	Notes           string `json:"notes,omitempty"`
	UTMSource       string `json:"utm_source,omitempty"`
	UTMMedium       string `json:"utm_medium,omitempty"`
	UTMCampaign     string `json:"utm_campaign,omitempty"`
	UTMContent      string `json:"utm_content,omitempty"`
	Referrer        string `json:"referrer,omitempty"`
}

// Normalize trims identifiers and contact fields so blank means absent. The
// qualification answers and UTM tags are left as submitted; readers of those
// fields trim on their own.
func (s Submission) Normalize() Submission {
	for _, f := range []*string{
		&s.OrganizationID, &s.LandingPageID, &s.CampaignID, &s.TerritoryID,
		&s.FirstName, &s.LastName, &s.Email, &s.Phone, &s.Referrer,
	} {
		*f = strings.TrimSpace(*f)
	}
	s.Email = strings.ToLower(s.Email)
	return s
}

// ScoringInput is the subset of a submission the scoring rules look at.
type ScoringInput struct {
	HasName         bool
	HasEmail        bool
	HasPhone        bool
	InsuranceStatus string
	HasNotes        bool
}

// ScoringInputFromSubmission derives presence flags; whitespace-only values count as absent.
func ScoringInputFromSubmission(s Submission) ScoringInput {
	present := func(v string) bool { return strings.TrimSpace(v) != "" }
	return ScoringInput{
		HasName:         present(s.FirstName) || present(s.LastName),
		HasEmail:        present(s.Email),
		HasPhone:        present(s.Phone),
		InsuranceStatus: s.InsuranceStatus,
		HasNotes:        present(s.Notes),
	}
}

// --- Lifecycle Payloads --- //

// StatusChangeRequest asks to move a lead to Status.
type StatusChangeRequest struct {
	LeadID    string     `json:"lead_id" validate:"required"`
	Status    LeadStatus `json:"status" validate:"required,leadstatus"`
	ActorID   string     `json:"actor_id,omitempty" validate:"omitempty,max=128"`
	ActorType ActorType  `json:"actor_type,omitempty" validate:"omitempty,oneof=user system automation"`
	Reason    string     `json:"reason,omitempty" validate:"omitempty,max=1000"`
}

// NoteRequest appends a free-text note to a lead.
type NoteRequest struct {
	LeadID    string    `json:"lead_id" validate:"required"`
	Content   string    `json:"content" validate:"required,max=5000"`
	ActorID   string    `json:"actor_id,omitempty" validate:"omitempty,max=128"`
	ActorType ActorType `json:"actor_type,omitempty" validate:"omitempty,oneof=user system automation"`
}

// --- Outbound Payloads --- //

// LeadNotification is published after a lead is created so that downstream
// senders (SMS, email) can alert the practice.
type LeadNotification struct {
	LeadID           string          `json:"lead_id"`
	OrganizationID   string          `json:"organization_id"`
	OrganizationName string          `json:"organization_name"`
	LandingPageName  string          `json:"landing_page_name,omitempty"`
	FirstName        string          `json:"first_name,omitempty"`
	LastName         string          `json:"last_name,omitempty"`
	Phone            string          `json:"phone,omitempty"`
	Email            string          `json:"email,omitempty"`
	Source           LeadSource      `json:"source"`
	Temperature      LeadTemperature `json:"temperature"`
	Score            int             `json:"score"`
	CreatedAt        time.Time       `json:"created_at"`
}

// DLQPayload defines the structure for messages published to the Dead Letter Queue.
type DLQPayload struct {
	SourceSubject   string          `json:"source_subject"`
	Organization    string          `json:"organization"`
	OriginalPayload json.RawMessage `json:"original_payload"`
	Error           string          `json:"error"`
	ErrorType       string          `json:"error_type"` // fatal, retryable or unknown
	RetryCount      uint64          `json:"retry_count"`
	MaxRetry        int             `json:"max_retry"`
	Timestamp       time.Time       `json:"ts"`
}
