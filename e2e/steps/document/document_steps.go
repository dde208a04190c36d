package document

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	Do(method, path string, body any) error
	StatusCode() int
	GetResponseField(field string) (any, error)
	SessionID() string
	SetCapabilityKey(key string)
}

// RegisterSteps registers document submission steps
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &documentSteps{tc: tc}

	ctx.Step(`^I submit the document "([^"]*)"$`, steps.submit)
	ctx.Step(`^I submit the document "([^"]*)" with retention "([^"]*)"$`, steps.submitWithRetention)
	ctx.Step(`^the detected categories should be "([^"]*)"$`, steps.categoriesShouldBe)
	ctx.Step(`^a capability key should be returned$`, steps.capabilityKeyReturned)
	ctx.Step(`^no capability key should be returned$`, steps.noCapabilityKey)
}

type documentSteps struct {
	tc TestContext
}

func (s *documentSteps) submit(ctx context.Context, text string) error {
	return s.submitWithRetention(ctx, text, "")
}

func (s *documentSteps) submitWithRetention(ctx context.Context, text, retention string) error {
	body := map[string]string{"session_id": s.tc.SessionID(), "text": text}
	if retention != "" {
		body["retention"] = retention
	}
	if err := s.tc.Do(http.MethodPost, "/v1/documents", body); err != nil {
		return err
	}
	if s.tc.StatusCode() != http.StatusOK {
		return nil
	}
	if key, err := s.tc.GetResponseField("capability_key"); err == nil {
		s.tc.SetCapabilityKey(fmt.Sprint(key))
	}
	return nil
}

func (s *documentSteps) categoriesShouldBe(ctx context.Context, want string) error {
	v, err := s.tc.GetResponseField("categories")
	if err != nil {
		return err
	}
	raw, ok := v.([]any)
	if !ok {
		return fmt.Errorf("categories is not a list: %v", v)
	}
	got := make([]string, 0, len(raw))
	for _, c := range raw {
		got = append(got, fmt.Sprint(c))
	}
	if !slices.Equal(got, strings.Split(want, ",")) {
		return fmt.Errorf("expected categories %s, got %s", want, strings.Join(got, ","))
	}
	return nil
}

func (s *documentSteps) capabilityKeyReturned(ctx context.Context) error {
	v, err := s.tc.GetResponseField("capability_key")
	if err != nil {
		return err
	}
	if fmt.Sprint(v) == "" {
		return fmt.Errorf("capability key is empty")
	}
	return nil
}

func (s *documentSteps) noCapabilityKey(ctx context.Context) error {
	if _, err := s.tc.GetResponseField("capability_key"); err == nil {
		return fmt.Errorf("capability key returned for a document without personal data")
	}
	return nil
}
