package handler

import (
	"strings"

	"piiguard/internal/consent/models"
	"piiguard/internal/detector"
	"piiguard/pkg/domain"
	dErrors "piiguard/pkg/domain-errors"
)

const maxAnonymizedTextBytes = 2 << 20

// RecordConsentRequest is the body of PUT /v1/sessions/{sessionID}/consent.
type RecordConsentRequest struct {
	Categories map[string]bool `json:"categories"`
	Retention  string          `json:"retention"`

	choices   models.Choices
	retention domain.Retention
}

func (r *RecordConsentRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	choices, err := parseChoices(r.Categories)
	if err != nil {
		return err
	}
	r.choices = choices
	if strings.TrimSpace(r.Retention) == "" {
		r.retention = domain.RetentionSessionOnly
		return nil
	}
	retention, err := domain.ParseRetention(strings.TrimSpace(r.Retention))
	if err != nil {
		return err
	}
	r.retention = retention
	return nil
}

// PersonalizeRequest is the body of POST /v1/sessions/{sessionID}/personalize.
// Categories is optional; when omitted the recorded consent applies.
type PersonalizeRequest struct {
	CapabilityKey  string          `json:"capability_key"`
	AnonymizedText string          `json:"anonymized_text"`
	Categories     map[string]bool `json:"categories,omitempty"`

	choices models.Choices
}

func (r *PersonalizeRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if len(r.AnonymizedText) > maxAnonymizedTextBytes {
		return dErrors.New(dErrors.CodeValidation, "anonymized_text is too large")
	}
	r.CapabilityKey = strings.TrimSpace(r.CapabilityKey)
	if r.CapabilityKey == "" {
		return dErrors.New(dErrors.CodeValidation, "capability_key is required")
	}
	if r.AnonymizedText == "" {
		return dErrors.New(dErrors.CodeValidation, "anonymized_text is required")
	}
	if r.Categories == nil {
		return nil
	}
	choices, err := parseChoices(r.Categories)
	if err != nil {
		return err
	}
	r.choices = choices
	return nil
}

// TransparencyRequest is the body of POST /v1/sessions/{sessionID}/transparency.
type TransparencyRequest struct {
	CapabilityKey string `json:"capability_key"`
}

func (r *TransparencyRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.CapabilityKey = strings.TrimSpace(r.CapabilityKey)
	if r.CapabilityKey == "" {
		return dErrors.New(dErrors.CodeValidation, "capability_key is required")
	}
	return nil
}

func parseChoices(raw map[string]bool) (models.Choices, error) {
	choices := make(models.Choices, len(raw))
	for name, enabled := range raw {
		cat, err := detector.ParseCategory(name)
		if err != nil {
			return nil, err
		}
		choices[cat] = enabled
	}
	return choices, nil
}
