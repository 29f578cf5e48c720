package attribution

import (
	"testing"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"

	"gitlab.com/smilefunnel/api/lead-engine/internal/model"
)

func TestClassifySource(t *testing.T) {
	tests := []struct {
		source, medium string
		want           model.LeadSource
	}{
		{"FB", "", model.LeadSourceFacebook},
		{"facebook", "cpc", model.LeadSourceFacebook},
		{"", "Facebook", model.LeadSourceFacebook},
		{"ig", "", model.LeadSourceInstagram},
		{"newsletter", "instagram", model.LeadSourceInstagram},
		{"Google", "", model.LeadSourceGoogle},
		{"adwords", "display", model.LeadSourceGoogle},
		{"bing", "cpc", model.LeadSourceGoogle},
		{"", "PPC", model.LeadSourceGoogle},
		{"referral", "", model.LeadSourceReferral},
		{"partner", "referral", model.LeadSourceReferral},
		{"", "", model.LeadSourceWebsite},
		{"tiktok", "social", model.LeadSourceWebsite},
		{"  fb  ", "", model.LeadSourceFacebook},
		// first rule wins
		{"referral", "facebook", model.LeadSourceFacebook},
		{"instagram", "cpc", model.LeadSourceInstagram},
	}

	for _, tt := range tests {
		t.Run(tt.source+"/"+tt.medium, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifySource(tt.source, tt.medium))
		})
	}
}

func TestClassifySource_Total(t *testing.T) {
	valid := map[model.LeadSource]bool{
		model.LeadSourceFacebook: true, model.LeadSourceInstagram: true, model.LeadSourceGoogle: true,
		model.LeadSourceReferral: true, model.LeadSourceWebsite: true,
	}
	for i := 0; i < 200; i++ {
		got := ClassifySource(gofakeit.Word(), gofakeit.LetterN(3))
		assert.True(t, valid[got], got)
	}
}

func TestSourceDetail(t *testing.T) {
	assert.Equal(t, "fb:cpc:spring", SourceDetail(model.Submission{UTMSource: "fb", UTMMedium: "cpc", UTMCampaign: "spring"}, "Implants"))
	assert.Equal(t, "google:ad_3", SourceDetail(model.Submission{UTMSource: "google", UTMContent: "ad_3"}, "Implants"))
	assert.Equal(t, "Landing page: Implants", SourceDetail(model.Submission{UTMSource: "  "}, "Implants"))
}
