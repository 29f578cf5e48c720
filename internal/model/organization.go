package model

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// OrganizationStatus is the subscription state of a practice.
type OrganizationStatus string

const (
	OrganizationActive     OrganizationStatus = "active"
	OrganizationPaused     OrganizationStatus = "paused"
	OrganizationCancelled  OrganizationStatus = "cancelled"
	OrganizationOnboarding OrganizationStatus = "onboarding"
)

// Organization is a dental practice tenant. This service only reads it.
type Organization struct {
	ID        string             `json:"id" gorm:"primaryKey;type:text"`
	Name      string             `json:"name" gorm:"type:text;not null"`
	Status    OrganizationStatus `json:"status" gorm:"type:text;not null;default:onboarding"`
	CreatedAt time.Time          `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time          `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt     `json:"-" gorm:"index"`
}

// TableName specifies the table name for the Organization model, respecting the Namer.
func (Organization) TableName(namer schema.Namer) string {
	return namer.TableName("organizations")
}

// IsActive reports whether the organization may receive new leads.
func (o *Organization) IsActive() bool {
	return o != nil && !o.DeletedAt.Valid && o.Status == OrganizationActive
}

// LandingPage is a funnel page belonging to one organization.
type LandingPage struct {
	ID              string    `json:"id" gorm:"primaryKey;type:text"`
	OrganizationID  string    `json:"organization_id" gorm:"column:organization_id;type:text;not null;index"`
	Name            string    `json:"name" gorm:"type:text;not null"`
	Slug            string    `json:"slug" gorm:"type:text;index"`
	SubmissionCount int64     `json:"submission_count" gorm:"column:submission_count;not null;default:0"`
	CreatedAt       time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt       time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName specifies the table name for the LandingPage model, respecting the Namer.
func (LandingPage) TableName(namer schema.Namer) string {
	return namer.TableName("landing_pages")
}
