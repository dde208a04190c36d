package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"piiguard/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies, storage backends, and routing.
type EventCategory string

const (
	// CategoryCompliance covers events with legal or regulatory significance:
	// consent changes, data subject deletions, disclosure of personal data.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers failed decryptions, lockouts and unsafe output.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine storage and lifecycle activity.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. It never carries
// raw personal data, capability keys or document text.
type Event struct {
	ID        uuid.UUID
	Category  EventCategory
	Timestamp time.Time
	SessionID domain.SessionID
	Action    string
	ActorHash string
	Success   bool
	ErrorCode string
	RequestID string
	// Detail is a short, non-sensitive annotation such as a category list or
	// an item count.
	Detail string
}

type AuditEvent string

const (
	// Secure store events
	EventEntryStored      AuditEvent = "entry_stored"
	EventEntryRetrieved   AuditEvent = "entry_retrieved"
	EventRetrievalFailed  AuditEvent = "retrieval_failed"
	EventEntryPurged      AuditEvent = "entry_purged"
	EventEntryExpired     AuditEvent = "entry_expired"
	EventRetrievalLockout AuditEvent = "retrieval_lockout"

	// Pipeline events
	EventDocumentProcessed AuditEvent = "document_processed"
	EventOutputBlocked     AuditEvent = "output_blocked"

	// Consent events
	EventConsentRecorded    AuditEvent = "consent_recorded"
	EventPersonalized       AuditEvent = "personalized"
	EventTransparencyViewed AuditEvent = "transparency_viewed"
	EventSessionDeleted     AuditEvent = "session_deleted"
)

// eventCategories maps each audit event to its category.
var eventCategories = map[AuditEvent]EventCategory{
	EventConsentRecorded: CategoryCompliance,
	EventPersonalized:    CategoryCompliance,
	EventSessionDeleted:  CategoryCompliance,
	EventEntryPurged:     CategoryCompliance,

	EventRetrievalFailed:  CategorySecurity,
	EventRetrievalLockout: CategorySecurity,
	EventOutputBlocked:    CategorySecurity,

	EventEntryStored:        CategoryOperations,
	EventEntryRetrieved:     CategoryOperations,
	EventEntryExpired:       CategoryOperations,
	EventDocumentProcessed:  CategoryOperations,
	EventTransparencyViewed: CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Sink receives audit events. Sinks may be write-only.
type Sink interface {
	Append(ctx context.Context, event Event) error
}

// Store is a Sink that can also be queried.
type Store interface {
	Sink
	ListBySession(ctx context.Context, sessionID domain.SessionID) ([]Event, error)
}

// Emitter is the narrow interface domain services depend on.
type Emitter interface {
	Emit(ctx context.Context, event Event) error
}
