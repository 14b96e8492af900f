package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-homework-api/internal/observability"
)

// Homework event types.
const (
	EventAssignmentCreated = "assignment.created"
	EventAssignmentDeleted = "assignment.deleted"
	EventTaskStarted       = "task.started"
	EventTaskProgressed    = "task.progressed"
	EventTaskCompleted     = "task.completed"
)

// HomeworkEvent is the payload broadcast after a homework change commits.
type HomeworkEvent struct {
	Type         string     `json:"type"`
	Source       string     `json:"source"`
	OccurredAt   time.Time  `json:"occurred_at"`
	AssignmentID uuid.UUID  `json:"assignment_id"`
	TaskID       *uuid.UUID `json:"task_id,omitempty"`
	StudentID    uuid.UUID  `json:"student_id"`
	TeacherID    uuid.UUID  `json:"teacher_id"`
	Status       string     `json:"status,omitempty"`
	ProgressPct  *int       `json:"progress_pct,omitempty"`
}

// EventPublisher delivers homework events to interested subscribers.
type EventPublisher interface {
	Publish(ctx context.Context, event HomeworkEvent) error
}

type brokerEventPublisher struct {
	redis        *redis.Client
	redisChannel string
	nats         *nats.Conn
	natsSubject  string
	nodeID       string
}

// NewEventPublisher publishes events to a Redis channel and a NATS subject derived
// from channelBase. Either connection may be nil.
func NewEventPublisher(redisClient *redis.Client, channelBase string, natsConn *nats.Conn) EventPublisher {
	channel := ""
	subject := ""
	if channelBase != "" {
		channel = channelBase + ":events"
		subject = strings.ReplaceAll(channelBase, ":", ".") + ".events"
	}

	return &brokerEventPublisher{
		redis:        redisClient,
		redisChannel: channel,
		nats:         natsConn,
		natsSubject:  subject,
		nodeID:       uuid.NewString(),
	}
}

func (p *brokerEventPublisher) Publish(ctx context.Context, event HomeworkEvent) error {
	if event.Source == "" {
		event.Source = p.nodeID
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	if p.redis != nil && p.redisChannel != "" {
		if err := p.redis.Publish(ctx, p.redisChannel, payload).Err(); err != nil {
			return err
		}
	}

	if p.nats != nil && p.natsSubject != "" {
		if err := p.nats.Publish(p.natsSubject, payload); err != nil {
			return err
		}
	}

	return nil
}

// emitEvent publishes after commit. Broker failures are logged and never reach the caller.
func emitEvent(ctx context.Context, publisher EventPublisher, logger zerolog.Logger, event HomeworkEvent) {
	if publisher == nil {
		return
	}

	if err := publisher.Publish(ctx, event); err != nil {
		observability.HomeworkEventsPublished().WithLabelValues(event.Type, "error").Inc()
		logger.Warn().Err(err).Str("event", event.Type).Str("assignment_id", event.AssignmentID.String()).Msg("failed to publish homework event")
		return
	}

	observability.HomeworkEventsPublished().WithLabelValues(event.Type, "success").Inc()
}
