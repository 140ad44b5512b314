package services

import (
	"encoding/json"
	"log"
	"time"

	"circlepool/internal/adapters/persistence/models"
	"circlepool/internal/adapters/persistence/repositories"
	"circlepool/internal/core/domain"

	"github.com/google/uuid"
)

// EventService persists domain events after state transitions commit.
// Delivery to the notification collaborator is at-least-once: consumers poll
// ListSince and de-duplicate by event id.
type EventService struct {
	eventRepo *repositories.EventRepository
}

// NewEventService creates a new event service
func NewEventService(eventRepo *repositories.EventRepository) *EventService {
	return &EventService{eventRepo: eventRepo}
}

// Publish records a domain event. Event persistence is best-effort relative
// to the state transition that caused it - a failed write is logged, never
// propagated, so business state is not rolled back over an audit row.
func (s *EventService) Publish(eventType domain.EventType, groupID string, payload map[string]interface{}) {
	raw, _ := json.Marshal(payload)

	event := &models.DomainEvent{
		ID:        uuid.NewString(),
		EventType: eventType,
		GroupID:   groupID,
		Payload:   string(raw),
	}

	if err := s.eventRepo.Create(event); err != nil {
		log.Printf("❌ Failed to persist event %s for group %s: %v", eventType, groupID, err)
		return
	}
	log.Printf("📣 Event %s (group %s)", eventType, groupID)
}

// ListByGroup returns a group's events, newest first
func (s *EventService) ListByGroup(groupID string, offset, limit int) ([]models.DomainEvent, int64, error) {
	return s.eventRepo.ListByGroup(groupID, offset, limit)
}

// ListSince returns events created after a cutoff (notification feed)
func (s *EventService) ListSince(since time.Time, limit int) ([]models.DomainEvent, error) {
	return s.eventRepo.ListSince(since, limit)
}
