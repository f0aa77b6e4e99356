package audit

import (
	"time"

	id "authrelay/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies, storage backends, and routing.
type EventCategory string

const (
	// CategoryCompliance covers events with legal/regulatory significance.
	// These require tamper-proof storage and long retention.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers events relevant to security monitoring and
	// forensics. These feed into SIEM systems and alerting pipelines.
	// Examples: delegation rejections, threshold breaches.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers events useful for debugging and operational
	// visibility. These can be sampled or aggregated with shorter retention.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category     EventCategory
	Timestamp    time.Time
	CredentialID id.CredentialID
	Action       string
	Operation    string // downstream operation being authorized, when known
	Decision     string // "allowed" or "rejected"
	Reason       string // rejection code; empty on success

	// Delegation trail. Both fields are empty when the request took the
	// credential-only fallback path.
	DelegatedEmail  string // PII
	DelegatedUserID id.UserID

	// Enrichment fields for trail completeness.
	RequestID string
	ClientIP  string
	UserAgent string
}

// AuditEvent names the actions this service records.
type AuditEvent string

const (
	// Delegation events
	EventDelegationGranted  AuditEvent = "delegation_granted"
	EventDelegationRejected AuditEvent = "delegation_rejected"
	EventDelegationFallback AuditEvent = "delegation_fallback"

	// Failure tracking events
	EventThresholdBreached AuditEvent = "delegation_threshold_breached"

	// Admin events
	EventTunablesUpdated AuditEvent = "delegation_tunables_updated"
)

// eventCategories maps each audit event to its category.
var eventCategories = map[AuditEvent]EventCategory{
	// Security events - feed into SIEM and alerting
	EventDelegationRejected: CategorySecurity,
	EventThresholdBreached:  CategorySecurity,
	EventTunablesUpdated:    CategorySecurity,

	// Compliance events - identity substitution must be reconstructable
	EventDelegationGranted: CategoryCompliance,

	// Operations events - routine activity, can be sampled
	EventDelegationFallback: CategoryOperations,
}

// Category returns the category for an event, defaulting to operations for
// unknown actions.
func (e AuditEvent) Category() EventCategory {
	if c, ok := eventCategories[e]; ok {
		return c
	}
	return CategoryOperations
}
