package model

import (
	"github.com/brianvoe/gofakeit/v6"
)

// NewSubmission creates a complete landing-page submission with fake data.
// Used by tests and the load generator.
func NewSubmission(overrideDefaults ...*Submission) *Submission {
	base := &Submission{
		OrganizationID:  "org_" + gofakeit.LetterN(10),
		LandingPageID:   gofakeit.UUID(),
		FirstName:       gofakeit.FirstName(),
		LastName:        gofakeit.LastName(),
		Email:           gofakeit.Email(),
		Phone:           "+1" + gofakeit.Numerify("415555####"),
		InsuranceStatus: gofakeit.RandomString([]string{"Yes", "No", "Not sure", ""}),
		Notes:           gofakeit.RandomString([]string{"", gofakeit.Sentence(6)}),
		UTMSource:       gofakeit.RandomString([]string{"fb", "ig", "google", "referral", ""}),
		UTMMedium:       gofakeit.RandomString([]string{"cpc", "social", "email", ""}),
		UTMCampaign:     gofakeit.RandomString([]string{"spring_implants", "whitening_promo", ""}),
	}

	if len(overrideDefaults) > 0 && overrideDefaults[0] != nil {
		ovr := overrideDefaults[0]
		if ovr.OrganizationID != "" {
			base.OrganizationID = ovr.OrganizationID
		}
		if ovr.LandingPageID != "" {
			base.LandingPageID = ovr.LandingPageID
		}
		if ovr.Email != "" {
			base.Email = ovr.Email
		}
		if ovr.Phone != "" {
			base.Phone = ovr.Phone
		}
		if ovr.UTMSource != "" {
			base.UTMSource = ovr.UTMSource
		}
		if ovr.UTMMedium != "" {
			base.UTMMedium = ovr.UTMMedium
		}
	}
	return base
}
