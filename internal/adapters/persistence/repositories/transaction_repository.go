package repositories

import (
	"circlepool/internal/adapters/persistence/models"
	"circlepool/internal/core/domain"

	"gorm.io/gorm"
)

// TransactionRepository handles transaction database operations
type TransactionRepository struct {
	db *gorm.DB
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Create creates a new transaction
func (r *TransactionRepository) Create(tx *models.Transaction) error {
	return r.db.Create(tx).Error
}

// CreateBatch creates a batch of transactions
func (r *TransactionRepository) CreateBatch(txs []models.Transaction) error {
	if len(txs) == 0 {
		return nil
	}
	return r.db.Create(&txs).Error
}

// GetByID returns a transaction by ID
func (r *TransactionRepository) GetByID(id string) (*models.Transaction, error) {
	var tx models.Transaction
	err := r.db.First(&tx, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// GetRoundContributions returns the contribution transactions of a group round
func (r *TransactionRepository) GetRoundContributions(groupID string, round int) ([]models.Transaction, error) {
	var txs []models.Transaction
	err := r.db.
		Where("group_id = ? AND round = ? AND type = ?", groupID, round, domain.TxContribution).
		Order("created_at ASC").
		Find(&txs).Error
	return txs, err
}

// GetPendingForMember returns non-terminal contribution transactions where the
// member still owes a confirmation, either as sender or as recipient
func (r *TransactionRepository) GetPendingForMember(memberID string) ([]models.Transaction, error) {
	var txs []models.Transaction
	err := r.db.
		Where("type = ?", domain.TxContribution).
		Where("confirmation_status IN ?", []domain.ConfirmationStatus{
			domain.ConfirmPending, domain.SenderConfirmed, domain.RecipientConfirmed,
		}).
		Where("from_member_id = ? OR to_member_id = ?", memberID, memberID).
		Order("created_at ASC").
		Find(&txs).Error
	return txs, err
}

// GetDepositTransaction returns a member's security deposit transaction, nil if absent
func (r *TransactionRepository) GetDepositTransaction(memberID string) (*models.Transaction, error) {
	var tx models.Transaction
	err := r.db.
		Where("from_member_id = ? AND type = ?", memberID, domain.TxSecurityDeposit).
		First(&tx).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// ListByGroup returns transactions of a group, newest first, paginated
func (r *TransactionRepository) ListByGroup(groupID string, offset, limit int) ([]models.Transaction, int64, error) {
	var txs []models.Transaction
	var total int64

	q := r.db.Model(&models.Transaction{}).Where("group_id = ?", groupID)
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := q.Order("created_at DESC").Offset(offset).Limit(limit).Find(&txs).Error
	return txs, total, err
}

// Updates applies a partial update to a transaction
func (r *TransactionRepository) Updates(id string, updates map[string]interface{}) error {
	return r.db.Model(&models.Transaction{}).Where("id = ?", id).Updates(updates).Error
}
