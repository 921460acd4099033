package requirement

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
)

const (
	TopicCreated       = "requirement.created"
	TopicUpdated       = "requirement.updated"
	TopicStatusChanged = "requirement.status_changed"
	TopicDeleted       = "requirement.deleted"
)

// EventWriter enqueues a payload inside the caller's transaction.
type EventWriter interface {
	Enqueue(ctx context.Context, tx pgx.Tx, topic string, payload any) error
}

// Event is the outbox payload for every requirement topic.
type Event struct {
	RequirementID  string    `json:"requirement_id"`
	ActorID        string    `json:"actor_id"`
	Status         Status    `json:"status"`
	PreviousStatus Status    `json:"previous_status,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// NewEvent describes r as it stands after a change made by actorID.
func NewEvent(r *Requirement, actorID string, previous Status) Event {
	return Event{
		RequirementID:  r.ID(),
		ActorID:        actorID,
		Status:         r.Status(),
		PreviousStatus: previous,
		OccurredAt:     r.UpdatedAt(),
	}
}
