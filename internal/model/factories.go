package model

import (
	"encoding/json"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"gorm.io/datatypes"

	"gitlab.com/smilefunnel/api/lead-engine/pkg/utils"
)

// RandomJSONBMap generates JSON data from a map for testing.
func RandomJSONBMap(data map[string]interface{}) datatypes.JSON {
	bytes, _ := json.Marshal(data)
	return datatypes.JSON(bytes)
}

// init ensures gofakeit is seeded.
func init() {
	gofakeit.Seed(time.Now().UnixNano())
}

// NewOrganization creates an active Organization with fake data.
// Non-zero fields of the override replace the generated ones.
func NewOrganization(overrideDefaults ...*Organization) *Organization {
	base := &Organization{
		ID:        "org_" + gofakeit.LetterN(10),
		Name:      gofakeit.Company() + " Dental",
		Status:    OrganizationActive,
		CreatedAt: utils.Now().Add(-time.Duration(gofakeit.Number(24, 2400)) * time.Hour),
		UpdatedAt: utils.Now(),
	}

	if len(overrideDefaults) > 0 && overrideDefaults[0] != nil {
		ovr := overrideDefaults[0]
		if ovr.ID != "" {
			base.ID = ovr.ID
		}
		if ovr.Name != "" {
			base.Name = ovr.Name
		}
		if ovr.Status != "" {
			base.Status = ovr.Status
		}
		base.DeletedAt = ovr.DeletedAt
	}
	return base
}

// NewLandingPage creates a LandingPage with fake data.
func NewLandingPage(overrideDefaults ...*LandingPage) *LandingPage {
	name := gofakeit.RandomString([]string{"Dental Implants", "Invisalign", "Teeth Whitening", "All-on-4", "Veneers"})
	base := &LandingPage{
		ID:              gofakeit.UUID(),
		OrganizationID:  "org_" + gofakeit.LetterN(10),
		Name:            name,
		Slug:            gofakeit.LetterN(8),
		SubmissionCount: int64(gofakeit.Number(0, 500)),
		CreatedAt:       utils.Now().Add(-time.Duration(gofakeit.Number(1, 720)) * time.Hour),
		UpdatedAt:       utils.Now(),
	}

	if len(overrideDefaults) > 0 && overrideDefaults[0] != nil {
		ovr := overrideDefaults[0]
		if ovr.ID != "" {
			base.ID = ovr.ID
		}
		if ovr.OrganizationID != "" {
			base.OrganizationID = ovr.OrganizationID
		}
		if ovr.Name != "" {
			base.Name = ovr.Name
		}
		if ovr.Slug != "" {
			base.Slug = ovr.Slug
		}
		if ovr.SubmissionCount != 0 {
			base.SubmissionCount = ovr.SubmissionCount
		}
	}
	return base
}

// NewLead creates a new lead in status new with fake contact data.
func NewLead(overrideDefaults ...*Lead) *Lead {
	now := utils.Now()
	base := &Lead{
		ID:              gofakeit.UUID(),
		OrganizationID:  "org_" + gofakeit.LetterN(10),
		LandingPageID:   gofakeit.UUID(),
		FirstName:       gofakeit.FirstName(),
		LastName:        gofakeit.LastName(),
		Email:           gofakeit.Email(),
		Phone:           gofakeit.Phone(),
		Source:          LeadSourceWebsite,
		SourceDetail:    "Landing page: " + gofakeit.Word(),
		Status:          LeadStatusNew,
		Temperature:     TemperatureWarm,
		Score:           gofakeit.Number(50, 79),
		InsuranceStatus: gofakeit.RandomString([]string{"Yes", "No", "Not sure"}),
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if len(overrideDefaults) > 0 && overrideDefaults[0] != nil {
		ovr := overrideDefaults[0]
		if ovr.ID != "" {
			base.ID = ovr.ID
		}
		if ovr.OrganizationID != "" {
			base.OrganizationID = ovr.OrganizationID
		}
		if ovr.LandingPageID != "" {
			base.LandingPageID = ovr.LandingPageID
		}
		if ovr.Status != "" {
			base.Status = ovr.Status
		}
		if ovr.Source != "" {
			base.Source = ovr.Source
		}
		if ovr.Temperature != "" {
			base.Temperature = ovr.Temperature
		}
		if ovr.Score != 0 {
			base.Score = ovr.Score
		}
		if ovr.Version != 0 {
			base.Version = ovr.Version
		}
		base.ConvertedAt = ovr.ConvertedAt
	}
	return base
}

// NewLeadActivity creates a note activity for a random lead.
func NewLeadActivity(overrideDefaults ...*LeadActivity) *LeadActivity {
	base := &LeadActivity{
		LeadID:         gofakeit.UUID(),
		OrganizationID: "org_" + gofakeit.LetterN(10),
		Type:           ActivityNote,
		Content:        gofakeit.Sentence(8),
		ActorID:        gofakeit.UUID(),
		ActorType:      ActorUser,
		Metadata:       RandomJSONBMap(map[string]interface{}{"channel": "dashboard"}),
		CreatedAt:      utils.Now(),
	}

	if len(overrideDefaults) > 0 && overrideDefaults[0] != nil {
		ovr := overrideDefaults[0]
		if ovr.LeadID != "" {
			base.LeadID = ovr.LeadID
		}
		if ovr.OrganizationID != "" {
			base.OrganizationID = ovr.OrganizationID
		}
		if ovr.Type != "" {
			base.Type = ovr.Type
		}
		if ovr.Content != "" {
			base.Content = ovr.Content
		}
		base.FromStatus = ovr.FromStatus
		base.ToStatus = ovr.ToStatus
	}
	return base
}
