package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nyaruka/phonenumbers"

	"gitlab.com/smilefunnel/api/lead-engine/internal/apperrors"
	"gitlab.com/smilefunnel/api/lead-engine/internal/jetstream"
	"gitlab.com/smilefunnel/api/lead-engine/internal/model"
	"gitlab.com/smilefunnel/api/lead-engine/internal/observer"
)

// Notifier delivers the lead-created event to out-of-process senders.
type Notifier interface {
	NotifyLeadCreated(ctx context.Context, notification model.LeadNotification) error
}

// JetStreamNotifier publishes LeadNotification as JSON on
// <subject>.<organization_id>. The lead id is the message id so a repeated
// publish is deduplicated by the stream.
type JetStreamNotifier struct {
	client        jetstream.ClientInterface
	subject       string
	defaultRegion string
}

var _ Notifier = (*JetStreamNotifier)(nil)

// NewJetStreamNotifier creates a notifier. subject defaults to v1.leads.notifications.
func NewJetStreamNotifier(client jetstream.ClientInterface, subject, defaultRegion string) *JetStreamNotifier {
	if subject == "" {
		subject = string(model.V1LeadNotifications)
	}
	if defaultRegion == "" {
		defaultRegion = "US"
	}
	return &JetStreamNotifier{client: client, subject: subject, defaultRegion: defaultRegion}
}

// NotifyLeadCreated formats the phone for SMS delivery and publishes the event.
func (n *JetStreamNotifier) NotifyLeadCreated(ctx context.Context, notification model.LeadNotification) error {
	notification.Phone = FormatPhoneE164(notification.Phone, n.defaultRegion)

	data, err := json.Marshal(notification)
	if err != nil {
		observer.IncNotificationPublished(notification.OrganizationID, "marshal_error")
		return fmt.Errorf("marshal lead notification: %w", err)
	}

	subject := n.subject + "." + notification.OrganizationID
	headers := map[string]string{
		"Nats-Msg-Id":     "lead-created-" + notification.LeadID,
		"Organization-Id": notification.OrganizationID,
	}
	if err := n.client.Publish(ctx, subject, data, headers); err != nil {
		observer.IncNotificationPublished(notification.OrganizationID, "error")
		return fmt.Errorf("%w: publish lead notification: %w", apperrors.ErrNATS, err)
	}
	observer.IncNotificationPublished(notification.OrganizationID, "published")
	return nil
}

// FormatPhoneE164 normalizes a submitted phone number to E.164 using region
// for numbers without a country code. Numbers that do not parse as valid are
// returned trimmed but otherwise untouched.
func FormatPhoneE164(raw, region string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	number, err := phonenumbers.Parse(trimmed, region)
	if err != nil || !phonenumbers.IsValidNumber(number) {
		return trimmed
	}
	return phonenumbers.Format(number, phonenumbers.E164)
}

// newLeadNotification builds the denormalized snapshot sent after intake.
func newLeadNotification(lead *model.Lead, org *model.Organization, page *model.LandingPage) model.LeadNotification {
	return model.LeadNotification{
		LeadID:           lead.ID,
		OrganizationID:   lead.OrganizationID,
		OrganizationName: org.Name,
		LandingPageName:  page.Name,
		FirstName:        lead.FirstName,
		LastName:         lead.LastName,
		Phone:            lead.Phone,
		Email:            lead.Email,
		Source:           lead.Source,
		Temperature:      lead.Temperature,
		Score:            lead.Score,
		CreatedAt:        lead.CreatedAt,
	}
}
