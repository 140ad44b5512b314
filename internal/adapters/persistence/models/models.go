package models

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"

	"circlepool/internal/core/domain"
)

// ============================================================
// Auth
// ============================================================

// User represents users table. Admins and participants are both users.
type User struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Phone     string         `gorm:"uniqueIndex;size:20;not null" json:"phone"`
	Name      string         `gorm:"size:100;not null" json:"name"`
	Password  string         `gorm:"size:255;not null" json:"-"`
	IsActive  bool           `gorm:"default:true" json:"is_active"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (User) TableName() string {
	return "users"
}

// UserResponse DTO
type UserResponse struct {
	ID        uint      `json:"id"`
	Phone     string    `json:"phone"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

func (u *User) ToResponse() *UserResponse {
	return &UserResponse{
		ID:        u.ID,
		Phone:     u.Phone,
		Name:      u.Name,
		IsActive:  u.IsActive,
		CreatedAt: u.CreatedAt,
	}
}

// RefreshToken represents refresh_tokens table
type RefreshToken struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	UserID    uint       `gorm:"index;not null" json:"user_id"`
	TokenHash string     `gorm:"size:255;not null;index" json:"-"`
	ExpiresAt time.Time  `gorm:"not null" json:"expires_at"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
	RevokedAt *time.Time `gorm:"index" json:"revoked_at"`
	User      User       `gorm:"foreignKey:UserID" json:"-"`
}

func (RefreshToken) TableName() string {
	return "refresh_tokens"
}

func (rt *RefreshToken) IsRevoked() bool {
	return rt.RevokedAt != nil
}

func (rt *RefreshToken) IsExpired() bool {
	return time.Now().After(rt.ExpiresAt)
}

// ============================================================
// Ledger
// ============================================================

// Group represents a rotating savings circle. Groups are soft-cancelled only;
// members and transactions keep referencing them after cancellation.
type Group struct {
	ID                 string                   `gorm:"primaryKey;size:36" json:"id"`
	Name               string                   `gorm:"size:100;not null" json:"name"`
	AdminID            uint                     `gorm:"not null;index" json:"admin_id"`
	ContributionAmount float64                  `gorm:"type:decimal(15,2);not null" json:"contribution_amount"`
	Frequency          domain.RotationFrequency `gorm:"size:10;not null" json:"frequency"`
	MemberLimit        int                      `gorm:"not null" json:"member_limit"`
	Tier               domain.TierLevel         `gorm:"size:20;not null;default:'starter'" json:"tier"`
	DepositMultiplier  float64                  `gorm:"type:decimal(4,2);not null;default:1.0" json:"deposit_multiplier"`
	InviteCode         string                   `gorm:"size:36;uniqueIndex" json:"-"`
	Status             domain.GroupStatus       `gorm:"size:20;not null;default:'active';index" json:"status"`
	RotationPosition   int                      `gorm:"not null;default:1" json:"current_rotation_position"`
	RotationsCompleted int                      `gorm:"not null;default:0" json:"rotations_completed"`
	RoundOpenedAt      *time.Time               `json:"round_opened_at"`
	CreatedAt          time.Time                `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time                `gorm:"autoUpdateTime" json:"updated_at"`

	Admin   *User    `gorm:"foreignKey:AdminID" json:"admin,omitempty"`
	Members []Member `gorm:"foreignKey:GroupID" json:"members,omitempty"`
}

func (Group) TableName() string {
	return "groups"
}

// Member represents a participant in exactly one group
type Member struct {
	ID                string               `gorm:"primaryKey;size:36" json:"id"`
	GroupID           string               `gorm:"size:36;not null;index:idx_member_group" json:"group_id"`
	UserID            uint                 `gorm:"not null;index" json:"user_id"`
	Name              string               `gorm:"size:100;not null" json:"name"`
	Phone             string               `gorm:"size:20;not null" json:"phone"`
	RotationPosition  int                  `gorm:"not null" json:"rotation_position"`
	DepositAmount     float64              `gorm:"type:decimal(15,2);not null" json:"security_deposit_amount"`
	DepositStatus     domain.DepositStatus `gorm:"size:20;not null;default:'pending'" json:"security_deposit_status"`
	HasReceivedPayout bool                 `gorm:"default:false" json:"has_received_payout"`
	IsLockedIn        bool                 `gorm:"default:false" json:"is_locked_in"`
	Status            domain.MemberStatus  `gorm:"size:20;not null;default:'pending';index:idx_member_group" json:"status"`
	CreatedAt         time.Time            `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time            `gorm:"autoUpdateTime" json:"updated_at"`

	Group *Group `gorm:"foreignKey:GroupID" json:"group,omitempty"`
	User  *User  `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

func (Member) TableName() string {
	return "members"
}

// IsActiveMember reports whether the member currently participates in rounds
func (m *Member) IsActiveMember() bool {
	return m.Status == domain.MemberActive
}

// Transaction represents a contribution, deposit, deposit-return,
// default-coverage or tier-upgrade event. Immutable once both_confirmed or
// cancelled.
type Transaction struct {
	ID                   string                    `gorm:"primaryKey;size:36" json:"id"`
	GroupID              string                    `gorm:"size:36;not null;index" json:"group_id"`
	FromMemberID         *string                   `gorm:"size:36;index" json:"from_member_id"`
	ToMemberID           *string                   `gorm:"size:36;index" json:"to_member_id"`
	Amount               float64                   `gorm:"type:decimal(15,2);not null" json:"amount"`
	Type                 domain.TransactionType    `gorm:"size:30;not null;index" json:"transaction_type"`
	ConfirmationStatus   domain.ConfirmationStatus `gorm:"size:30;not null;default:'pending';index" json:"confirmation_status"`
	SenderConfirmedAt    *time.Time                `json:"sender_confirmed_at"`
	RecipientConfirmedAt *time.Time                `json:"recipient_confirmed_at"`
	Round                int                       `gorm:"not null;default:0;index" json:"round"`
	Metadata             string                    `gorm:"type:text" json:"metadata"`
	CreatedAt            time.Time                 `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time                 `gorm:"autoUpdateTime" json:"updated_at"`

	Group      *Group  `gorm:"foreignKey:GroupID" json:"group,omitempty"`
	FromMember *Member `gorm:"foreignKey:FromMemberID" json:"from_member,omitempty"`
	ToMember   *Member `gorm:"foreignKey:ToMemberID" json:"to_member,omitempty"`
}

func (Transaction) TableName() string {
	return "transactions"
}

// MetadataMap decodes the metadata JSON column (nil-safe)
func (t *Transaction) MetadataMap() map[string]interface{} {
	out := map[string]interface{}{}
	if t.Metadata == "" {
		return out
	}
	_ = json.Unmarshal([]byte(t.Metadata), &out)
	return out
}

// SetMetadata encodes and stores metadata as JSON
func (t *Transaction) SetMetadata(meta map[string]interface{}) {
	if meta == nil {
		t.Metadata = ""
		return
	}
	raw, _ := json.Marshal(meta)
	t.Metadata = string(raw)
}

// ============================================================
// Concurrency
// ============================================================

// OperationLock is an ephemeral mutual-exclusion record. At most one
// non-expired row may exist per (lock_type, resource_id); the composite
// unique index is what makes acquisition atomic. Rows are never updated in
// place - re-acquisition is delete-then-insert.
type OperationLock struct {
	ID         string           `gorm:"primaryKey;size:36" json:"id"`
	LockType   domain.LockType  `gorm:"size:30;not null;uniqueIndex:idx_lock_resource" json:"lock_type"`
	Scope      domain.LockScope `gorm:"size:20;not null" json:"scope"`
	ResourceID string           `gorm:"size:64;not null;uniqueIndex:idx_lock_resource" json:"resource_id"`
	HolderID   string           `gorm:"size:64;not null;index" json:"holder_id"`
	ExpiresAt  time.Time        `gorm:"not null;index" json:"expires_at"`
	Metadata   string           `gorm:"type:text" json:"metadata"`
	CreatedAt  time.Time        `gorm:"autoCreateTime" json:"created_at"`
}

func (OperationLock) TableName() string {
	return "operation_locks"
}

// IsExpired reports whether the lock is logically absent
func (l *OperationLock) IsExpired() bool {
	return time.Now().After(l.ExpiresAt)
}

// ============================================================
// Events
// ============================================================

// DomainEvent is the audit/outbox row emitted after state transitions commit
type DomainEvent struct {
	ID        string           `gorm:"primaryKey;size:36" json:"id"`
	EventType domain.EventType `gorm:"size:40;not null;index" json:"event_type"`
	GroupID   string           `gorm:"size:36;not null;index" json:"group_id"`
	Payload   string           `gorm:"type:text" json:"payload"`
	CreatedAt time.Time        `gorm:"autoCreateTime;index" json:"created_at"`
}

func (DomainEvent) TableName() string {
	return "domain_events"
}

// ============================================================
// Auto Migration
// ============================================================

// AutoMigrate runs auto migration for all tables
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&User{},
		&RefreshToken{},
		&Group{},
		&Member{},
		&Transaction{},
		&OperationLock{},
		&DomainEvent{},
	)
}
