package repositories

import (
	"time"

	"circlepool/internal/adapters/persistence/models"

	"gorm.io/gorm"
)

// EventRepository handles domain event rows
type EventRepository struct {
	db *gorm.DB
}

// NewEventRepository creates a new event repository
func NewEventRepository(db *gorm.DB) *EventRepository {
	return &EventRepository{db: db}
}

// Create appends a domain event
func (r *EventRepository) Create(event *models.DomainEvent) error {
	return r.db.Create(event).Error
}

// ListByGroup returns a group's events, newest first, paginated
func (r *EventRepository) ListByGroup(groupID string, offset, limit int) ([]models.DomainEvent, int64, error) {
	var events []models.DomainEvent
	var total int64

	q := r.db.Model(&models.DomainEvent{}).Where("group_id = ?", groupID)
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := q.Order("created_at DESC").Offset(offset).Limit(limit).Find(&events).Error
	return events, total, err
}

// ListSince returns events created after a cutoff, oldest first
// (at-least-once feed for the notification consumer)
func (r *EventRepository) ListSince(since time.Time, limit int) ([]models.DomainEvent, error) {
	var events []models.DomainEvent
	err := r.db.
		Where("created_at > ?", since).
		Order("created_at ASC").
		Limit(limit).
		Find(&events).Error
	return events, err
}
