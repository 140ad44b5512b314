package services

import (
	"fmt"

	"circlepool/internal/core/domain"
)

// TierPolicy maps a subscription tier to capacity limits. Pure guard, total
// over the closed tier enum, never mutates state. Unknown tier is an error,
// not a silent default.
type TierPolicy struct{}

// NewTierPolicy creates a new tier policy
func NewTierPolicy() *TierPolicy {
	return &TierPolicy{}
}

// LimitsFor returns the capacity limits for a tier
func (p *TierPolicy) LimitsFor(tier domain.TierLevel) (*domain.TierLimits, error) {
	switch tier {
	case domain.TierStarter:
		return &domain.TierLimits{
			MaxGroupsPerAdmin:  1,
			MaxMembersPerGroup: 10,
			AllowedFrequencies: []domain.RotationFrequency{
				domain.FrequencyWeekly, domain.FrequencyMonthly,
			},
		}, nil
	case domain.TierEssential:
		return &domain.TierLimits{
			MaxGroupsPerAdmin:  3,
			MaxMembersPerGroup: 25,
			AllowedFrequencies: []domain.RotationFrequency{
				domain.FrequencyWeekly, domain.FrequencyMonthly,
			},
		}, nil
	case domain.TierAdvanced:
		return &domain.TierLimits{
			MaxGroupsPerAdmin:  10,
			MaxMembersPerGroup: 50,
			AllowedFrequencies: []domain.RotationFrequency{
				domain.FrequencyDaily, domain.FrequencyWeekly, domain.FrequencyMonthly,
			},
		}, nil
	case domain.TierExtended:
		return &domain.TierLimits{
			MaxGroupsPerAdmin:  50,
			MaxMembersPerGroup: 100,
			AllowedFrequencies: []domain.RotationFrequency{
				domain.FrequencyDaily, domain.FrequencyWeekly, domain.FrequencyMonthly,
			},
		}, nil
	}
	return nil, fmt.Errorf("%w: unknown tier '%s'", domain.ErrValidation, tier)
}
