package repositories

import (
	"circlepool/internal/adapters/persistence/models"
	"circlepool/internal/core/domain"

	"gorm.io/gorm"
)

// MemberRepository handles member database operations
type MemberRepository struct {
	db *gorm.DB
}

// NewMemberRepository creates a new member repository
func NewMemberRepository(db *gorm.DB) *MemberRepository {
	return &MemberRepository{db: db}
}

// Create creates a new member
func (r *MemberRepository) Create(member *models.Member) error {
	return r.db.Create(member).Error
}

// GetByID returns a member by ID
func (r *MemberRepository) GetByID(id string) (*models.Member, error) {
	var member models.Member
	err := r.db.First(&member, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &member, nil
}

// GetByGroup returns all non-removed members of a group ordered by rotation position
func (r *MemberRepository) GetByGroup(groupID string) ([]models.Member, error) {
	var members []models.Member
	err := r.db.
		Where("group_id = ? AND status <> ?", groupID, domain.MemberRemoved).
		Order("rotation_position ASC").
		Find(&members).Error
	return members, err
}

// GetActiveByGroup returns active members of a group ordered by rotation position
func (r *MemberRepository) GetActiveByGroup(groupID string) ([]models.Member, error) {
	var members []models.Member
	err := r.db.
		Where("group_id = ? AND status = ?", groupID, domain.MemberActive).
		Order("rotation_position ASC").
		Find(&members).Error
	return members, err
}

// GetByGroupAndUser returns a user's non-removed membership in a group, nil if none
func (r *MemberRepository) GetByGroupAndUser(groupID string, userID uint) (*models.Member, error) {
	var member models.Member
	err := r.db.
		Where("group_id = ? AND user_id = ? AND status <> ?", groupID, userID, domain.MemberRemoved).
		First(&member).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &member, nil
}

// GetByGroupAndPosition returns the member holding a rotation position, nil if vacant
func (r *MemberRepository) GetByGroupAndPosition(groupID string, position int) (*models.Member, error) {
	var member models.Member
	err := r.db.
		Where("group_id = ? AND rotation_position = ? AND status <> ?", groupID, position, domain.MemberRemoved).
		First(&member).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &member, nil
}

// GetByUser returns all non-removed memberships of a user across groups
func (r *MemberRepository) GetByUser(userID uint) ([]models.Member, error) {
	var members []models.Member
	err := r.db.
		Where("user_id = ? AND status <> ?", userID, domain.MemberRemoved).
		Find(&members).Error
	return members, err
}

// CountActive counts non-removed members of a group
func (r *MemberRepository) CountActive(groupID string) (int64, error) {
	var count int64
	err := r.db.Model(&models.Member{}).
		Where("group_id = ? AND status <> ?", groupID, domain.MemberRemoved).
		Count(&count).Error
	return count, err
}

// Updates applies a partial update to a member
func (r *MemberRepository) Updates(id string, updates map[string]interface{}) error {
	return r.db.Model(&models.Member{}).Where("id = ?", id).Updates(updates).Error
}
