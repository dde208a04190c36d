package consent

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	Do(method, path string, body any) error
	GetResponseField(field string) (any, error)
	SessionID() string
	CapabilityKey() string
}

// RegisterSteps registers consent, personalization and deletion steps
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &consentSteps{tc: tc}

	ctx.Step(`^I consent to "([^"]*)" with retention "([^"]*)"$`, steps.consentTo)
	ctx.Step(`^I consent to "([^"]*)" and withhold "([^"]*)"$`, steps.consentAndWithhold)
	ctx.Step(`^I read my consent$`, steps.readConsent)
	ctx.Step(`^I personalize "([^"]*)"$`, steps.personalize)
	ctx.Step(`^I personalize "([^"]*)" with key "([^"]*)"$`, steps.personalizeWithKey)
	ctx.Step(`^I request the transparency report$`, steps.transparency)
	ctx.Step(`^I delete the session$`, steps.deleteSession)

	ctx.Step(`^the transparency report should list (\d+) categories$`, steps.reportShouldList)
}

type consentSteps struct {
	tc TestContext
}

func (s *consentSteps) path(suffix string) string {
	return "/v1/sessions/" + s.tc.SessionID() + suffix
}

func split(list string) []string {
	var out []string
	for _, c := range strings.Split(list, ",") {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}

func (s *consentSteps) consentTo(ctx context.Context, categories, retention string) error {
	choices := map[string]bool{}
	for _, c := range split(categories) {
		choices[c] = true
	}
	return s.tc.Do(http.MethodPut, s.path("/consent"), map[string]any{
		"categories": choices,
		"retention":  retention,
	})
}

func (s *consentSteps) consentAndWithhold(ctx context.Context, allowed, withheld string) error {
	choices := map[string]bool{}
	for _, c := range split(allowed) {
		choices[c] = true
	}
	for _, c := range split(withheld) {
		choices[c] = false
	}
	return s.tc.Do(http.MethodPut, s.path("/consent"), map[string]any{"categories": choices})
}

func (s *consentSteps) readConsent(ctx context.Context) error {
	return s.tc.Do(http.MethodGet, s.path("/consent"), nil)
}

func (s *consentSteps) personalize(ctx context.Context, text string) error {
	return s.personalizeWithKey(ctx, text, s.tc.CapabilityKey())
}

func (s *consentSteps) personalizeWithKey(ctx context.Context, text, key string) error {
	return s.tc.Do(http.MethodPost, s.path("/personalize"), map[string]string{
		"capability_key":  key,
		"anonymized_text": text,
	})
}

func (s *consentSteps) transparency(ctx context.Context) error {
	return s.tc.Do(http.MethodPost, s.path("/transparency"), map[string]string{
		"capability_key": s.tc.CapabilityKey(),
	})
}

func (s *consentSteps) deleteSession(ctx context.Context) error {
	return s.tc.Do(http.MethodDelete, s.path(""), nil)
}

func (s *consentSteps) reportShouldList(ctx context.Context, n int) error {
	v, err := s.tc.GetResponseField("entries")
	if err != nil {
		return err
	}
	entries, ok := v.([]any)
	if !ok {
		return fmt.Errorf("entries is not a list: %v", v)
	}
	if len(entries) != n {
		return fmt.Errorf("expected %d transparency entries, got %d", n, len(entries))
	}
	return nil
}
