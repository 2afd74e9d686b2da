package e2e

import (
	"github.com/cucumber/godog"

	"racepass/e2e/steps/common"
	"racepass/e2e/steps/credential"
	"racepass/e2e/steps/ticketing"
)

// RegisterSteps registers all step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	common.RegisterSteps(ctx, tc)
	credential.RegisterSteps(ctx, tc)
	ticketing.RegisterSteps(ctx, tc)
}
