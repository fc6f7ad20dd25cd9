package models

import (
	"context"
	"encoding/json"
	"time"

	"bitbucket.org/mmdatafocus/hvacops_backend/config"
	"bitbucket.org/mmdatafocus/hvacops_backend/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// QAEventRecord implements the transactional outbox: the event row is written
// inside the caller's DB transaction but is NOT published to Pub/Sub there.
// Publishing happens asynchronously in the outbox dispatcher after commit.
type QAEventRecord struct {
	ID         int         `gorm:"primary_key;index:idx_qa_outbox_dispatch,priority:3" json:"id"`
	BusinessId string      `gorm:"size:64;not null;index" json:"business_id"`
	JobId      string      `gorm:"size:64;not null;index" json:"job_id"`
	EventType  QAEventType `gorm:"size:50;not null" json:"event_type"`
	OccurredAt time.Time   `gorm:"index;not null" json:"occurred_at"`
	Payload    []byte      `gorm:"type:blob" json:"payload"`
	// Publish metadata (publish happens after commit via dispatcher).
	PublishStatus    string     `gorm:"size:20;index;not null;default:'PENDING';index:idx_qa_outbox_dispatch,priority:1" json:"publish_status"` // PENDING|PROCESSING|SENT|FAILED|DEAD
	PublishedAt      *time.Time `gorm:"index" json:"published_at"`
	PubSubMessageId  *string    `gorm:"size:255" json:"pubsub_message_id"`
	PublishAttempts  int        `gorm:"not null;default:0" json:"publish_attempts"`
	NextAttemptAt    *time.Time `gorm:"index;index:idx_qa_outbox_dispatch,priority:2" json:"next_attempt_at"`
	LockedAt         *time.Time `gorm:"index" json:"locked_at"`
	LockedBy         *string    `gorm:"size:100" json:"locked_by"`
	LastPublishError *string    `gorm:"type:text" json:"last_publish_error"`
	CorrelationId    string     `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// PublishQAEvent enqueues a domain event in the caller's transaction.
// payload is marshalled as-is; pass the entry or verdict the consumer needs.
func PublishQAEvent(ctx context.Context, tx *gorm.DB, businessId string, jobId string, eventType QAEventType, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	record := QAEventRecord{
		BusinessId:    businessId,
		JobId:         jobId,
		EventType:     eventType,
		OccurredAt:    time.Now().UTC(),
		Payload:       body,
		PublishStatus: OutboxPublishStatusPending,
		CorrelationId: correlationIdFromContextOrNew(ctx),
	}
	return tx.Create(&record).Error
}

func correlationIdFromContextOrNew(ctx context.Context) string {
	if ctx != nil {
		if v, ok := utils.GetCorrelationIdFromContext(ctx); ok && v != "" {
			return v
		}
	}
	return uuid.NewString()
}

func ConvertToQAEventMessage(record QAEventRecord) config.QAEventMessage {
	return config.QAEventMessage{
		ID:            record.ID,
		BusinessId:    record.BusinessId,
		OccurredAt:    record.OccurredAt,
		JobId:         record.JobId,
		EventType:     string(record.EventType),
		Payload:       record.Payload,
		CorrelationId: record.CorrelationId,
	}
}
