package domain

import "time"

// RotationFrequency is how often a group's rotation advances
type RotationFrequency string

const (
	FrequencyDaily   RotationFrequency = "daily"
	FrequencyWeekly  RotationFrequency = "weekly"
	FrequencyMonthly RotationFrequency = "monthly"
)

// Duration returns the length of one rotation round.
// Monthly rounds use a fixed 30 days.
func (f RotationFrequency) Duration() time.Duration {
	switch f {
	case FrequencyDaily:
		return 24 * time.Hour
	case FrequencyWeekly:
		return 7 * 24 * time.Hour
	case FrequencyMonthly:
		return 30 * 24 * time.Hour
	}
	return 0
}

// IsValid reports whether f is a known frequency
func (f RotationFrequency) IsValid() bool {
	return f.Duration() > 0
}

// TierLevel is a subscription tier bounding group/member capacity
type TierLevel string

const (
	TierStarter   TierLevel = "starter"
	TierEssential TierLevel = "essential"
	TierAdvanced  TierLevel = "advanced"
	TierExtended  TierLevel = "extended"
)

// Rank orders tiers for upgrade validation (higher = more capacity).
// Unknown tiers rank -1.
func (t TierLevel) Rank() int {
	switch t {
	case TierStarter:
		return 0
	case TierEssential:
		return 1
	case TierAdvanced:
		return 2
	case TierExtended:
		return 3
	}
	return -1
}

// GroupStatus represents group lifecycle status
type GroupStatus string

const (
	GroupActive    GroupStatus = "active"
	GroupPaused    GroupStatus = "paused"
	GroupCompleted GroupStatus = "completed"
	GroupCancelled GroupStatus = "cancelled"
)

// MemberStatus represents membership status within a group
type MemberStatus string

const (
	MemberPending   MemberStatus = "pending"
	MemberActive    MemberStatus = "active"
	MemberSuspended MemberStatus = "suspended"
	MemberRemoved   MemberStatus = "removed"
)

// DepositStatus tracks the security deposit lifecycle per member
type DepositStatus string

const (
	DepositPending   DepositStatus = "pending"
	DepositConfirmed DepositStatus = "confirmed"
	DepositLocked    DepositStatus = "locked"
	DepositReturned  DepositStatus = "returned"
	DepositUsed      DepositStatus = "used"
)

// TransactionType classifies ledger transactions
type TransactionType string

const (
	TxContribution    TransactionType = "contribution"
	TxSecurityDeposit TransactionType = "security_deposit"
	TxDepositReturn   TransactionType = "deposit_return"
	TxDefaultCoverage TransactionType = "default_coverage"
	TxTierUpgrade     TransactionType = "tier_upgrade"
)

// ConfirmationStatus is the dual-confirmation state of a transaction.
// both_confirmed and cancelled are terminal.
type ConfirmationStatus string

const (
	ConfirmPending     ConfirmationStatus = "pending"
	SenderConfirmed    ConfirmationStatus = "sender_confirmed"
	RecipientConfirmed ConfirmationStatus = "recipient_confirmed"
	BothConfirmed      ConfirmationStatus = "both_confirmed"
	ConfirmCancelled   ConfirmationStatus = "cancelled"
)

// IsTerminal reports whether no further confirmation transition is allowed
func (s ConfirmationStatus) IsTerminal() bool {
	return s == BothConfirmed || s == ConfirmCancelled
}

// LockType names the operation a lock guards
type LockType string

const (
	LockGroupWrite       LockType = "group_write"
	LockMemberWrite      LockType = "member_write"
	LockTransactionWrite LockType = "transaction_write"
	LockRotationAdvance  LockType = "rotation_advance"
	LockSecurityDeposit  LockType = "security_deposit"
	LockTierUpgrade      LockType = "tier_upgrade"
)

// LockScope is the granularity of a lock's resource
type LockScope string

const (
	ScopeGlobal      LockScope = "global"
	ScopeGroup       LockScope = "group"
	ScopeMember      LockScope = "member"
	ScopeTransaction LockScope = "transaction"
)

// TierLimits are the capacity limits a subscription tier grants
type TierLimits struct {
	MaxGroupsPerAdmin  int
	MaxMembersPerGroup int
	AllowedFrequencies []RotationFrequency
}

// AllowsFrequency reports whether the tier permits the given rotation frequency
func (l *TierLimits) AllowsFrequency(f RotationFrequency) bool {
	for _, allowed := range l.AllowedFrequencies {
		if allowed == f {
			return true
		}
	}
	return false
}

// AdvanceOutcome is the result of a rotation advance attempt.
// NotReady is the expected resting state between confirmations, not an error.
type AdvanceOutcome string

const (
	OutcomeAdvanced  AdvanceOutcome = "advanced"
	OutcomeNotReady  AdvanceOutcome = "not_ready"
	OutcomeDefaulted AdvanceOutcome = "defaulted"
)
