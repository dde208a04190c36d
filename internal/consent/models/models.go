// Package models holds the consent and personalization types. Personalization
// results and transparency reports are returned to callers and never stored.
package models

import (
	"sort"
	"strings"
	"time"

	"piiguard/internal/detector"
	"piiguard/pkg/domain"
)

// Choices maps a category to whether its raw values may be re-inserted.
// Categories not present are treated as withheld.
type Choices map[detector.Category]bool

// Allows reports whether c is explicitly enabled.
func (c Choices) Allows(cat detector.Category) bool {
	return c[cat]
}

// Enabled returns the enabled categories in reporting order.
func (c Choices) Enabled() []detector.Category {
	var out []detector.Category
	for _, cat := range detector.Categories() {
		if c[cat] {
			out = append(out, cat)
		}
	}
	return out
}

// Clone returns a copy that holds only valid categories.
func (c Choices) Clone() Choices {
	out := make(Choices, len(c))
	for cat, ok := range c {
		if cat.IsValid() {
			out[cat] = ok
		}
	}
	return out
}

// Record is the consent decision for one session.
type Record struct {
	SessionID     domain.SessionID `json:"session_id"`
	Categories    Choices          `json:"categories"`
	Retention     domain.Retention `json:"retention"`
	RecordedAt    time.Time        `json:"recorded_at"`
	SourceHash    string           `json:"source_hash"`
	PolicyVersion string           `json:"policy_version"`
}

// Default is the most privacy-preserving consent: nothing disclosed and
// session-only retention.
func Default(sessionID domain.SessionID, policyVersion string) *Record {
	return &Record{
		SessionID:     sessionID,
		Categories:    Choices{},
		Retention:     domain.RetentionSessionOnly,
		PolicyVersion: policyVersion,
	}
}

// IsDefault reports whether the record discloses nothing and keeps data only
// for the session.
func (r *Record) IsDefault() bool {
	return len(r.Categories.Enabled()) == 0 && r.Retention == domain.RetentionSessionOnly
}

// PersonalizationResult is personalized text plus what was and was not
// disclosed in it.
type PersonalizationResult struct {
	Text                string              `json:"text"`
	DisclosedCategories []detector.Category `json:"disclosed_categories"`
	WithheldCategories  []detector.Category `json:"withheld_categories"`
	PrivacyNote         string              `json:"privacy_note"`
}

// TransparencyEntry describes one detected category to the user.
type TransparencyEntry struct {
	Category        detector.Category `json:"category"`
	Description     string            `json:"description"`
	Usage           string            `json:"usage"`
	Occurrences     int               `json:"occurrences"`
	RetentionEndsAt time.Time         `json:"retention_ends_at"`
}

// TransparencyReport lists what was found in a session and how it is used.
type TransparencyReport struct {
	SessionID     domain.SessionID    `json:"session_id"`
	Entries       []TransparencyEntry `json:"entries"`
	Retention     domain.Retention    `json:"retention"`
	PolicyVersion string              `json:"policy_version"`
	GeneratedAt   time.Time           `json:"generated_at"`
}

// DeletionConfirmation is returned after every trace of a session is removed.
type DeletionConfirmation struct {
	SessionID   domain.SessionID `json:"session_id"`
	Code        string           `json:"confirmation_code"`
	EntryPurged bool             `json:"entry_purged"`
	DeletedAt   time.Time        `json:"deleted_at"`
}

// SortCategories orders cats for reporting.
func SortCategories(cats []detector.Category) {
	sort.SliceStable(cats, func(i, j int) bool { return cats[i].Rank() < cats[j].Rank() })
}

// PrivacyNote renders a sentence listing disclosed and withheld categories.
func PrivacyNote(disclosed, withheld []detector.Category) string {
	if len(disclosed) == 0 && len(withheld) == 0 {
		return "No personal data was detected in this document."
	}
	var b strings.Builder
	if len(disclosed) > 0 {
		b.WriteString("Disclosed with your consent: ")
		b.WriteString(joinDescriptions(disclosed))
		b.WriteString(".")
	} else {
		b.WriteString("No personal data was disclosed.")
	}
	if len(withheld) > 0 {
		b.WriteString(" Withheld: ")
		b.WriteString(joinDescriptions(withheld))
		b.WriteString(".")
	}
	return b.String()
}

func joinDescriptions(cats []detector.Category) string {
	parts := make([]string, len(cats))
	for i, c := range cats {
		parts[i] = strings.ToLower(c.Description()) + " (" + c.String() + ")"
	}
	return strings.Join(parts, "; ")
}
