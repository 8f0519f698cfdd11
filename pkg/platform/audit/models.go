package audit

import (
	"time"

	id "civitas/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies, storage backends, and routing.
type EventCategory string

const (
	// CategoryCompliance covers events with legal/regulatory significance:
	// every credential supply change. These require tamper-proof storage and
	// long retention.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers events relevant to security monitoring:
	// role rotations, admin escape hatches, rejected mutations.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine ledger activity useful for debugging
	// and operational visibility. These can be sampled.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key ledger actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category  EventCategory
	Timestamp time.Time
	// Account is the account the event is about: the credential holder, the
	// lock owner, or the recipient of an admin action.
	Account id.AccountID
	Subject string
	Action  string
	// Decision records the outcome where an operation can go both ways
	// (e.g. "accepted"/"refused" for receiver probes).
	Decision string
	Reason   string
	// ActorID tracks who performed the action when different from Account,
	// e.g. the controller transferring on a holder's behalf.
	ActorID   string
	RequestID string
	IP        string
}

type AuditEvent string

const (
	// Credential supply events.
	EventCredentialMinted      AuditEvent = "credential_minted"
	EventCredentialBurned      AuditEvent = "credential_burned"
	EventCredentialTransferred AuditEvent = "credential_transferred"
	EventCredentialRevoked     AuditEvent = "credential_revoked"

	// Role and admin events.
	EventControllerRotated    AuditEvent = "controller_rotated"
	EventRendererUpdated      AuditEvent = "renderer_updated"
	EventStakeRecovered       AuditEvent = "stake_recovered"
	EventStakeReturnFailed    AuditEvent = "stake_return_failed"
	EventUnauthorizedRejected AuditEvent = "unauthorized_rejected"

	// Lock events.
	EventLockCreated   AuditEvent = "lock_created"
	EventLockIncreased AuditEvent = "lock_increased"
	EventLockWithdrawn AuditEvent = "lock_withdrawn"

	// Approval events.
	EventApprovalGranted    AuditEvent = "approval_granted"
	EventOperatorSet        AuditEvent = "operator_set"
	EventReceiverRegistered AuditEvent = "receiver_registered"
	EventReceiverCleared    AuditEvent = "receiver_cleared"
)

// eventCategories maps each audit event to its category.
// Compliance: supply changes, long retention required.
// Security: privileged actions and rejections, SIEM integration.
// Operations: routine activity, can be sampled.
var eventCategories = map[AuditEvent]EventCategory{
	EventCredentialMinted:      CategoryCompliance,
	EventCredentialBurned:      CategoryCompliance,
	EventCredentialTransferred: CategoryCompliance,
	EventCredentialRevoked:     CategoryCompliance,

	EventControllerRotated:    CategorySecurity,
	EventRendererUpdated:      CategorySecurity,
	EventStakeRecovered:       CategorySecurity,
	EventStakeReturnFailed:    CategorySecurity,
	EventUnauthorizedRejected: CategorySecurity,

	EventLockCreated:        CategoryOperations,
	EventLockIncreased:      CategoryOperations,
	EventLockWithdrawn:      CategoryOperations,
	EventApprovalGranted:    CategoryOperations,
	EventOperatorSet:        CategoryOperations,
	EventReceiverRegistered: CategoryOperations,
	EventReceiverCleared:    CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Topic returns the Kafka topic an event of this category is relayed to.
func (c EventCategory) Topic() string {
	return "civitas.audit." + string(c)
}

// Topics lists every audit topic for producer setup and consumer
// subscription.
func Topics() []string {
	return []string{
		CategoryCompliance.Topic(),
		CategorySecurity.Topic(),
		CategoryOperations.Topic(),
	}
}
