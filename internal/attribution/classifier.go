// Package attribution classifies where a lead came from based on its UTM tags.
package attribution

import (
	"strings"

	"gitlab.com/smilefunnel/api/lead-engine/internal/model"
)

type rule struct {
	source  model.LeadSource
	sources []string
	mediums []string
}

// Evaluated in order; the first matching rule wins.
var rules = []rule{
	{source: model.LeadSourceFacebook, sources: []string{"facebook", "fb"}, mediums: []string{"facebook"}},
	{source: model.LeadSourceInstagram, sources: []string{"instagram", "ig"}, mediums: []string{"instagram"}},
	{source: model.LeadSourceGoogle, sources: []string{"google", "adwords"}, mediums: []string{"cpc", "ppc"}},
	{source: model.LeadSourceReferral, sources: []string{"referral"}, mediums: []string{"referral"}},
}

// ClassifySource maps a UTM source/medium pair to a lead source. Matching is
// case-insensitive; anything unrecognized is website traffic.
func ClassifySource(utmSource, utmMedium string) model.LeadSource {
	src := strings.ToLower(strings.TrimSpace(utmSource))
	med := strings.ToLower(strings.TrimSpace(utmMedium))

	for _, r := range rules {
		if contains(r.sources, src) || contains(r.mediums, med) {
			return r.source
		}
	}
	return model.LeadSourceWebsite
}

// SourceDetail builds the free-text provenance string stored on the lead:
// present UTM values joined with ":", or the landing page name when no UTM
// tag was submitted.
func SourceDetail(s model.Submission, landingPageName string) string {
	parts := make([]string, 0, 4)
	for _, v := range []string{s.UTMSource, s.UTMMedium, s.UTMCampaign, s.UTMContent} {
		if v = strings.TrimSpace(v); v != "" {
			parts = append(parts, v)
		}
	}
	if len(parts) == 0 {
		return "Landing page: " + landingPageName
	}
	return strings.Join(parts, ":")
}

func contains(set []string, v string) bool {
	if v == "" {
		return false
	}
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
