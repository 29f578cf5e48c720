package model

import (
	"strings"
	"time"
)

// EventType represents the versioned NATS subjects this service consumes and produces.
type EventType string

const (
	V1LeadSubmissions   EventType = "v1.leads.submissions"
	V1LeadStatusChanges EventType = "v1.leads.status"
	V1LeadNotifications EventType = "v1.leads.notifications"
)

// MapToBaseEventType strips a trailing organization token from a subject and
// returns the known base event type, e.g. "v1.leads.submissions.org_1".
func MapToBaseEventType(input string) (EventType, bool) {
	switch EventType(input) {
	case V1LeadSubmissions, V1LeadStatusChanges, V1LeadNotifications:
		return EventType(input), true
	}

	lastDot := strings.LastIndex(input, ".")
	if lastDot <= 0 {
		return "", false
	}

	switch base := EventType(input[:lastDot]); base {
	case V1LeadSubmissions, V1LeadStatusChanges, V1LeadNotifications:
		return base, true
	default:
		return "", false
	}
}

// ForOrganization returns the organization-scoped subject for the event type.
func (e EventType) ForOrganization(organizationID string) string {
	return string(e) + "." + organizationID
}

// GetVersion extracts the version prefix ("v1") or "" when none is present.
func (e EventType) GetVersion() string {
	parts := strings.SplitN(string(e), ".", 2)
	if len(parts) < 2 {
		return ""
	}
	if len(parts[0]) >= 2 && parts[0][0] == 'v' {
		return parts[0]
	}
	return ""
}

// MessageMetadata is the JetStream delivery information attached to each routed message.
type MessageMetadata struct {
	ConsumerSequence uint64
	StreamSequence   uint64
	NumDelivered     uint64
	NumPending       uint64
	Timestamp        time.Time
	Stream           string
	Consumer         string
	Domain           string
	MessageID        string
	MessageSubject   string
	OrganizationID   string
}

// Origin summarizes the delivery for storage in activity metadata.
func (m MessageMetadata) Origin() map[string]interface{} {
	return map[string]interface{}{
		"stream":          m.Stream,
		"stream_sequence": m.StreamSequence,
		"subject":         m.MessageSubject,
		"message_id":      m.MessageID,
	}
}
