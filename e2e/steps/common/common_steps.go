package common

import (
	"context"
	"fmt"
	"strings"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	NewSession() string
	StatusCode() int
	Body() string
	GetResponseField(field string) (any, error)
}

// RegisterSteps registers generic session and assertion steps
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &commonSteps{tc: tc}

	ctx.Step(`^a fresh session$`, steps.freshSession)
	ctx.Step(`^the response status should be (\d+)$`, steps.statusShouldBe)
	ctx.Step(`^the response field "([^"]*)" should equal "([^"]*)"$`, steps.fieldShouldEqual)
	ctx.Step(`^the response field "([^"]*)" should be (true|false)$`, steps.fieldShouldBeBool)
	ctx.Step(`^the response field "([^"]*)" should start with "([^"]*)"$`, steps.fieldShouldStartWith)
	ctx.Step(`^the response should not contain "([^"]*)"$`, steps.responseShouldNotContain)
}

type commonSteps struct {
	tc TestContext
}

func (s *commonSteps) freshSession(ctx context.Context) error {
	s.tc.NewSession()
	return nil
}

func (s *commonSteps) statusShouldBe(ctx context.Context, code int) error {
	if got := s.tc.StatusCode(); got != code {
		return fmt.Errorf("expected status %d, got %d: %s", code, got, s.tc.Body())
	}
	return nil
}

func (s *commonSteps) fieldShouldEqual(ctx context.Context, field, want string) error {
	v, err := s.tc.GetResponseField(field)
	if err != nil {
		return err
	}
	if got := fmt.Sprint(v); got != want {
		return fmt.Errorf("expected %s=%q, got %q", field, want, got)
	}
	return nil
}

func (s *commonSteps) fieldShouldBeBool(ctx context.Context, field, want string) error {
	v, err := s.tc.GetResponseField(field)
	if err != nil {
		return err
	}
	b, ok := v.(bool)
	if !ok {
		return fmt.Errorf("field %s is not a boolean: %v", field, v)
	}
	if fmt.Sprint(b) != want {
		return fmt.Errorf("expected %s=%s, got %t", field, want, b)
	}
	return nil
}

func (s *commonSteps) fieldShouldStartWith(ctx context.Context, field, prefix string) error {
	v, err := s.tc.GetResponseField(field)
	if err != nil {
		return err
	}
	if !strings.HasPrefix(fmt.Sprint(v), prefix) {
		return fmt.Errorf("expected %s to start with %q, got %v", field, prefix, v)
	}
	return nil
}

func (s *commonSteps) responseShouldNotContain(ctx context.Context, text string) error {
	if strings.Contains(s.tc.Body(), text) {
		return fmt.Errorf("response unexpectedly contains %q", text)
	}
	return nil
}
