package model

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm/schema"
)

// LeadStatus is the position of a lead in the sales pipeline.
type LeadStatus string

const (
	LeadStatusNew                   LeadStatus = "new"
	LeadStatusContacted             LeadStatus = "contacted"
	LeadStatusQualified             LeadStatus = "qualified"
	LeadStatusAppointmentSet        LeadStatus = "appointment_set"
	LeadStatusConsultationCompleted LeadStatus = "consultation_completed"
	LeadStatusConverted             LeadStatus = "converted"
	LeadStatusLost                  LeadStatus = "lost"
)

// AllLeadStatuses lists every status in pipeline order.
var AllLeadStatuses = []LeadStatus{
	LeadStatusNew,
	LeadStatusContacted,
	LeadStatusQualified,
	LeadStatusAppointmentSet,
	LeadStatusConsultationCompleted,
	LeadStatusConverted,
	LeadStatusLost,
}

// ParseLeadStatus converts s into a LeadStatus, rejecting unknown values.
func ParseLeadStatus(s string) (LeadStatus, error) {
	candidate := LeadStatus(strings.ToLower(strings.TrimSpace(s)))
	for _, st := range AllLeadStatuses {
		if st == candidate {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown lead status %q", s)
}

// LeadSource is the closed set of acquisition channels.
type LeadSource string

const (
	LeadSourceFacebook  LeadSource = "facebook"
	LeadSourceInstagram LeadSource = "instagram"
	LeadSourceGoogle    LeadSource = "google"
	LeadSourceReferral  LeadSource = "referral"
	LeadSourceWebsite   LeadSource = "website"
)

// LeadTemperature is the coarse priority tier derived from the score.
type LeadTemperature string

const (
	TemperatureHot  LeadTemperature = "hot"
	TemperatureWarm LeadTemperature = "warm"
	TemperatureCold LeadTemperature = "cold"
)

// ActivityType distinguishes entries of the lead activity log.
type ActivityType string

const (
	ActivityCreated      ActivityType = "created"
	ActivityStatusChange ActivityType = "status_change"
	ActivityNote         ActivityType = "note"
)

// ActorType identifies who caused an activity.
type ActorType string

const (
	ActorUser       ActorType = "user"
	ActorSystem     ActorType = "system"
	ActorAutomation ActorType = "automation"
)

// Lead is a prospective patient captured through a landing page.
type Lead struct {
	ID             string  `json:"id" gorm:"primaryKey;type:text"`
	OrganizationID string  `json:"organization_id" gorm:"column:organization_id;type:text;not null;index:idx_leads_org_status,priority:1"`
	LandingPageID  string  `json:"landing_page_id" gorm:"column:landing_page_id;type:text;index"`
	CampaignID     *string `json:"campaign_id,omitempty" gorm:"column:campaign_id;type:text"`
	TerritoryID    *string `json:"territory_id,omitempty" gorm:"column:territory_id;type:text"`

	FirstName string `json:"first_name,omitempty" gorm:"type:text"`
	LastName  string `json:"last_name,omitempty" gorm:"type:text"`
	Email     string `json:"email,omitempty" gorm:"type:text;index"`
	Phone     string `json:"phone,omitempty" gorm:"type:text;index"`

	Source       LeadSource      `json:"source" gorm:"type:text;not null"`
	SourceDetail string          `json:"source_detail,omitempty" gorm:"type:text"`
	Status       LeadStatus      `json:"status" gorm:"type:text;not null;default:new;index:idx_leads_org_status,priority:2"`
	Temperature  LeadTemperature `json:"temperature" gorm:"type:text;not null"`
	Score        int             `json:"score" gorm:"not null;default:0;check:chk_leads_score,score >= 0 AND score <= 100"`

	InsuranceStatus string `json:"insurance_status,omitempty" gorm:"type:text"`
	Notes           string `json:"notes,omitempty" gorm:"type:text"`

	UTMSource   string `json:"utm_source,omitempty" gorm:"column:utm_source;type:text"`
	UTMMedium   string `json:"utm_medium,omitempty" gorm:"column:utm_medium;type:text"`
	UTMCampaign string `json:"utm_campaign,omitempty" gorm:"column:utm_campaign;type:text"`
	UTMContent  string `json:"utm_content,omitempty" gorm:"column:utm_content;type:text"`

	// Version increments on every applied status change.
	Version     int64      `json:"version" gorm:"not null;default:1"`
	CreatedAt   time.Time  `json:"created_at" gorm:"autoCreateTime;<-:create"`
	UpdatedAt   time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
	ConvertedAt *time.Time `json:"converted_at,omitempty"`
}

// TableName specifies the table name for the Lead model, respecting the Namer.
func (Lead) TableName(namer schema.Namer) string {
	return namer.TableName("leads")
}

// FullName joins the non-empty name parts.
func (l *Lead) FullName() string {
	return strings.TrimSpace(strings.TrimSpace(l.FirstName) + " " + strings.TrimSpace(l.LastName))
}

// LeadActivity is one append-only entry in a lead's history.
type LeadActivity struct {
	ID             int64          `json:"id" gorm:"primaryKey;autoIncrement"`
	LeadID         string         `json:"lead_id" gorm:"column:lead_id;type:text;not null;index"`
	OrganizationID string         `json:"organization_id" gorm:"column:organization_id;type:text;not null;index"`
	Type           ActivityType   `json:"type" gorm:"type:text;not null"`
	FromStatus     *LeadStatus    `json:"from_status,omitempty" gorm:"column:from_status;type:text"`
	ToStatus       *LeadStatus    `json:"to_status,omitempty" gorm:"column:to_status;type:text"`
	Content        string         `json:"content,omitempty" gorm:"type:text"`
	ActorID        string         `json:"actor_id,omitempty" gorm:"column:actor_id;type:text"`
	ActorType      ActorType      `json:"actor_type" gorm:"column:actor_type;type:text;not null;default:system"`
	Metadata       datatypes.JSON `json:"metadata,omitempty" gorm:"type:jsonb"`
	CreatedAt      time.Time      `json:"created_at" gorm:"autoCreateTime"`
}

// TableName specifies the table name for the LeadActivity model, respecting the Namer.
func (LeadActivity) TableName(namer schema.Namer) string {
	return namer.TableName("lead_activities")
}

// LeadFilter narrows lead listings for the dashboard.
type LeadFilter struct {
	Status      LeadStatus
	Temperature LeadTemperature
	Limit       int
	Offset      int
}
