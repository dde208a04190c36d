package pipeline

import (
	"time"

	"piiguard/internal/detector"
	"piiguard/pkg/domain"
)

// Document is one raw text submitted for anonymization. An empty Retention
// means the session's recorded consent decides.
type Document struct {
	SessionID domain.SessionID
	Text      string
	Retention domain.Retention
}

// Outcome is what leaves the system for downstream analysis. It never holds
// raw values.
type Outcome struct {
	SessionID      domain.SessionID
	AnonymizedText string
	PIIDetected    bool
	Confidence     float64
	Categories     []detector.Category
	ItemCount      int
	// CapabilityKey and ExpiresAt are set only when items were stored.
	CapabilityKey string
	ExpiresAt     time.Time
	Retention     domain.Retention
	State         State
	Path          []State
}
