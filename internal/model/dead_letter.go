package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm/schema"
)

// DeadLetter is a parked lead message that will not be processed again
// without an operator. Rows are written by the DLQ worker.
type DeadLetter struct {
	ID              uint           `gorm:"primaryKey"`
	CreatedAt       time.Time      // Automatically set by GORM
	OrganizationID  string         `gorm:"column:organization_id;index;not null"`
	SourceSubject   string         `gorm:"index;not null"` // Subject the message was consumed from
	ErrorType       string         `gorm:"not null"`       // fatal or retryable
	LastError       string         // Last error recorded for the message
	RetryCount      int            // Deliveries on the source subject plus replays
	EventTimestamp  time.Time      `gorm:"index"`               // Timestamp from the DLQ payload
	DLQPayload      datatypes.JSON `gorm:"type:jsonb;not null"` // The full JSON payload from the DLQ
	OriginalPayload datatypes.JSON `gorm:"type:jsonb"`          // The submission or status change as received
	Resolved        bool           `gorm:"index;default:false"`
	ResolvedAt      *time.Time     `gorm:"index"`
	Notes           string         `gorm:"type:text"`
}

// TableName specifies the table name for the DeadLetter model, respecting the Namer.
func (DeadLetter) TableName(namer schema.Namer) string {
	return namer.TableName("dead_letters")
}
