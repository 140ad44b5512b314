package repositories

import (
	"circlepool/internal/adapters/persistence/models"
	"circlepool/internal/core/domain"

	"gorm.io/gorm"
)

// GroupRepository handles group and member database operations
type GroupRepository struct {
	db *gorm.DB
}

// NewGroupRepository creates a new group repository
func NewGroupRepository(db *gorm.DB) *GroupRepository {
	return &GroupRepository{db: db}
}

// Create creates a new group
func (r *GroupRepository) Create(group *models.Group) error {
	return r.db.Create(group).Error
}

// GetByID returns a group by ID
func (r *GroupRepository) GetByID(id string) (*models.Group, error) {
	var group models.Group
	err := r.db.First(&group, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &group, nil
}

// GetByIDWithMembers returns a group with its non-removed members preloaded
func (r *GroupRepository) GetByIDWithMembers(id string) (*models.Group, error) {
	var group models.Group
	err := r.db.
		Preload("Members", func(db *gorm.DB) *gorm.DB {
			return db.Where("status <> ?", domain.MemberRemoved).Order("rotation_position ASC")
		}).
		First(&group, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &group, nil
}

// CountByAdmin counts non-cancelled groups owned by an admin
func (r *GroupRepository) CountByAdmin(adminID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.Group{}).
		Where("admin_id = ? AND status <> ?", adminID, domain.GroupCancelled).
		Count(&count).Error
	return count, err
}

// GetActiveGroups returns all active groups (for the rotation tick)
func (r *GroupRepository) GetActiveGroups() ([]models.Group, error) {
	var groups []models.Group
	err := r.db.Where("status = ?", domain.GroupActive).Find(&groups).Error
	return groups, err
}

// Updates applies a partial update to a group
func (r *GroupRepository) Updates(id string, updates map[string]interface{}) error {
	return r.db.Model(&models.Group{}).Where("id = ?", id).Updates(updates).Error
}
