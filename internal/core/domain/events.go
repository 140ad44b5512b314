package domain

// Domain event types emitted after state transitions commit. Delivery is
// at-least-once; consumers de-duplicate by event id.
type EventType string

const (
	EventRotationOpened         EventType = "rotation_opened"
	EventContributionConfirmed  EventType = "contribution_confirmed"
	EventRotationAdvanced       EventType = "rotation_advanced"
	EventDefaultCoverageApplied EventType = "default_coverage_applied"
	EventGroupCompleted         EventType = "group_completed"
)
