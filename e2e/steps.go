package e2e

import (
	"github.com/cucumber/godog"

	"piiguard/e2e/steps/common"
	"piiguard/e2e/steps/consent"
	"piiguard/e2e/steps/document"
)

// RegisterSteps registers all step definitions from modular packages
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	// Register common steps (sessions, status and field assertions)
	common.RegisterSteps(ctx, tc)

	// Register document submission steps
	document.RegisterSteps(ctx, tc)

	// Register consent, personalization and deletion steps
	consent.RegisterSteps(ctx, tc)
}
