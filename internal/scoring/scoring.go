// Package scoring turns a lead submission into a 0-100 quality score and a
// temperature tier. All functions are pure and safe for concurrent use.
package scoring

import (
	"strings"

	"gitlab.com/smilefunnel/api/lead-engine/internal/model"
)

// Point values of the additive model.
const (
	BasePoints          = 40
	NamePoints          = 5
	EmailPoints         = 5
	PhonePoints         = 10
	InsuranceYesPoints  = 15
	InsuranceMaybePoint = 8
	NotesPoints         = 5
	CompletenessPoints  = 10

	MaxScore = 100

	HotThreshold  = 80
	WarmThreshold = 50
)

// Breakdown keys, also used as activity metadata keys.
const (
	KeyBase         = "base"
	KeyName         = "name"
	KeyEmail        = "email"
	KeyPhone        = "phone"
	KeyInsurance    = "insurance"
	KeyNotes        = "notes"
	KeyCompleteness = "completeness"
)

// Result is the outcome of scoring one submission.
type Result struct {
	Score       int                   `json:"score"`
	Temperature model.LeadTemperature `json:"temperature"`
	// Breakdown holds every non-zero contribution before clamping.
	Breakdown map[string]int `json:"breakdown"`
}

// Score applies the additive rules to in. It never fails.
func Score(in model.ScoringInput) Result {
	breakdown := map[string]int{KeyBase: BasePoints}

	if in.HasName {
		breakdown[KeyName] = NamePoints
	}
	if in.HasEmail {
		breakdown[KeyEmail] = EmailPoints
	}
	if in.HasPhone {
		breakdown[KeyPhone] = PhonePoints
	}
	if pts := insurancePoints(in.InsuranceStatus); pts > 0 {
		breakdown[KeyInsurance] = pts
	}
	if in.HasNotes {
		breakdown[KeyNotes] = NotesPoints
	}
	if in.HasName && in.HasEmail && in.HasPhone {
		breakdown[KeyCompleteness] = CompletenessPoints
	}

	total := 0
	for _, pts := range breakdown {
		total += pts
	}
	total = clamp(total)

	return Result{
		Score:       total,
		Temperature: TemperatureFor(total),
		Breakdown:   breakdown,
	}
}

// ScoreSubmission is a shorthand for Score(model.ScoringInputFromSubmission(s)).
func ScoreSubmission(s model.Submission) Result {
	return Score(model.ScoringInputFromSubmission(s))
}

// TemperatureFor maps a clamped score to its tier.
func TemperatureFor(score int) model.LeadTemperature {
	switch {
	case score >= HotThreshold:
		return model.TemperatureHot
	case score >= WarmThreshold:
		return model.TemperatureWarm
	default:
		return model.TemperatureCold
	}
}

// "yes" wins over "not sure" when both appear.
func insurancePoints(status string) int {
	s := strings.ToLower(status)
	switch {
	case strings.Contains(s, "yes"):
		return InsuranceYesPoints
	case strings.Contains(s, "not sure"):
		return InsuranceMaybePoint
	default:
		return 0
	}
}

func clamp(score int) int {
	if score > MaxScore {
		return MaxScore
	}
	if score < 0 {
		return 0
	}
	return score
}
