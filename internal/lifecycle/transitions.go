// Package lifecycle holds the lead status state machine.
package lifecycle

import (
	"fmt"
	"time"

	"gitlab.com/smilefunnel/api/lead-engine/internal/apperrors"
	"gitlab.com/smilefunnel/api/lead-engine/internal/model"
)

// Decision is the outcome of evaluating a requested status change.
type Decision int

const (
	// DecisionNoOp means the lead is already in the requested status.
	DecisionNoOp Decision = iota
	// DecisionApply means the edge is legal and must be persisted.
	DecisionApply
)

func (d Decision) String() string {
	if d == DecisionApply {
		return "apply"
	}
	return "noop"
}

var transitions = map[model.LeadStatus][]model.LeadStatus{
	model.LeadStatusNew:                   {model.LeadStatusContacted, model.LeadStatusLost},
	model.LeadStatusContacted:             {model.LeadStatusQualified, model.LeadStatusLost},
	model.LeadStatusQualified:             {model.LeadStatusAppointmentSet, model.LeadStatusLost},
	model.LeadStatusAppointmentSet:        {model.LeadStatusConsultationCompleted, model.LeadStatusLost},
	model.LeadStatusConsultationCompleted: {model.LeadStatusConverted, model.LeadStatusLost},
	model.LeadStatusConverted:             {},
	model.LeadStatusLost:                  {model.LeadStatusNew},
}

func init() {
	for _, st := range model.AllLeadStatuses {
		if _, ok := transitions[st]; !ok {
			panic(fmt.Sprintf("lifecycle: status %q has no transition row", st))
		}
	}
}

// NextStates returns the legal successors of from in declaration order.
// Unknown statuses have none.
func NextStates(from model.LeadStatus) []model.LeadStatus {
	next := transitions[from]
	out := make([]model.LeadStatus, len(next))
	copy(out, next)
	return out
}

// CanTransition reports whether from -> to is a declared edge. Self-transitions are not edges.
func CanTransition(from, to model.LeadStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves status.
func IsTerminal(status model.LeadStatus) bool {
	next, ok := transitions[status]
	return ok && len(next) == 0
}

// Evaluate classifies a requested change. Illegal edges return an
// *apperrors.InvalidTransitionError listing the legal next states.
func Evaluate(from, to model.LeadStatus) (Decision, error) {
	if from == to {
		return DecisionNoOp, nil
	}
	if CanTransition(from, to) {
		return DecisionApply, nil
	}

	next := transitions[from]
	allowed := make([]string, 0, len(next))
	for _, s := range next {
		allowed = append(allowed, string(s))
	}
	return DecisionNoOp, &apperrors.InvalidTransitionError{
		Current:   string(from),
		Requested: string(to),
		Allowed:   allowed,
	}
}

// Apply moves lead to status to when the edge is legal. It keeps ConvertedAt
// set exactly while the lead is converted and bumps Version on change.
// Score and temperature are never touched.
func Apply(lead *model.Lead, to model.LeadStatus, now time.Time) (bool, error) {
	decision, err := Evaluate(lead.Status, to)
	if err != nil {
		return false, err
	}
	if decision == DecisionNoOp {
		return false, nil
	}

	lead.Status = to
	if to == model.LeadStatusConverted {
		converted := now.UTC()
		lead.ConvertedAt = &converted
	} else {
		lead.ConvertedAt = nil
	}
	lead.Version++
	lead.UpdatedAt = now.UTC()
	return true, nil
}
