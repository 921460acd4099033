package application

import "time"

const (
	TopicCreated  = "application.created"
	TopicApproved = "application.approved"
	TopicRejected = "application.rejected"
)

// Event is the outbox payload for every application topic.
type Event struct {
	ApplicationID string    `json:"application_id"`
	RequirementID string    `json:"requirement_id"`
	ApplicantID   string    `json:"applicant_id"`
	ActorID       string    `json:"actor_id"`
	Status        Status    `json:"status"`
	OccurredAt    time.Time `json:"occurred_at"`
}

func NewEvent(a *Application, actorID string) Event {
	return Event{
		ApplicationID: a.ID(),
		RequirementID: a.RequirementID(),
		ApplicantID:   a.ApplicantID(),
		ActorID:       actorID,
		Status:        a.Status(),
		OccurredAt:    a.UpdatedAt(),
	}
}
