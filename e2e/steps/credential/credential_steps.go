package credential

import (
	"context"
	"fmt"
	"strings"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body interface{}) error
	POSTWithHeaders(path string, body interface{}, headers map[string]string) error
	PUTWithHeaders(path string, body interface{}, headers map[string]string) error
	GET(path string, headers map[string]string) error
	GetLastResponseStatus() int
	GetAdminToken() string
	GetSubject() string
	SetSubject(subject string)
}

// RegisterSteps registers credential issuance and revocation steps
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &credentialSteps{tc: tc}

	ctx.Step(`^a runner with wallet "([^"]*)"$`, steps.runnerWithWallet)
	ctx.Step(`^the runner applies with name "([^"]*)", date of birth "([^"]*)" and ID "([^"]*)"$`, steps.apply)
	ctx.Step(`^the runner holds a credential with date of birth "([^"]*)"$`, steps.holdsCredential)
	ctx.Step(`^the runner applies (\d+) times with date of birth "([^"]*)"$`, steps.applyNTimes)
	ctx.Step(`^I fetch the runner's credential$`, steps.fetchCredential)
	ctx.Step(`^I fetch the runner's anchor status$`, steps.fetchAnchors)
	ctx.Step(`^an admin revokes the runner's credential$`, steps.revoke)
	ctx.Step(`^I revoke the runner's credential without an admin token$`, steps.revokeWithoutToken)
	ctx.Step(`^an admin sets the runner's score to (\d+)$`, steps.setScore)
	ctx.Step(`^a venue checks the runner for minimum age (\d+)$`, steps.check)
	ctx.Step(`^a venue checks wallet "([^"]*)" for minimum age (\d+)$`, steps.checkWallet)
}

type credentialSteps struct {
	tc TestContext
}

func (s *credentialSteps) runnerWithWallet(ctx context.Context, wallet string) error {
	s.tc.SetSubject(strings.ToLower(wallet))
	return nil
}

func (s *credentialSteps) apply(ctx context.Context, name, dob, nationalID string) error {
	return s.tc.POST("/credentials", map[string]interface{}{
		"subject": s.tc.GetSubject(),
		"application": map[string]interface{}{
			"name": name,
			"dob":  dob,
			"id":   nationalID,
		},
	})
}

func (s *credentialSteps) holdsCredential(ctx context.Context, dob string) error {
	if err := s.apply(ctx, "Test Runner", dob, "123456789012"); err != nil {
		return err
	}
	if status := s.tc.GetLastResponseStatus(); status != 201 {
		return fmt.Errorf("credential issuance failed with status %d", status)
	}
	return nil
}

func (s *credentialSteps) applyNTimes(ctx context.Context, n int, dob string) error {
	for i := 0; i < n; i++ {
		if err := s.apply(ctx, "Test Runner", dob, "123456789012"); err != nil {
			return err
		}
	}
	return nil
}

func (s *credentialSteps) fetchCredential(ctx context.Context) error {
	return s.tc.GET("/credentials/"+s.tc.GetSubject(), nil)
}

func (s *credentialSteps) fetchAnchors(ctx context.Context) error {
	return s.tc.GET("/credentials/"+s.tc.GetSubject()+"/anchors", nil)
}

func (s *credentialSteps) adminHeaders() map[string]string {
	return map[string]string{"X-Admin-Token": s.tc.GetAdminToken()}
}

func (s *credentialSteps) revoke(ctx context.Context) error {
	return s.tc.POSTWithHeaders("/admin/credentials/"+s.tc.GetSubject()+"/revoke", nil, s.adminHeaders())
}

func (s *credentialSteps) revokeWithoutToken(ctx context.Context) error {
	return s.tc.POST("/admin/credentials/"+s.tc.GetSubject()+"/revoke", nil)
}

func (s *credentialSteps) setScore(ctx context.Context, score int) error {
	return s.tc.PUTWithHeaders("/admin/credentials/"+s.tc.GetSubject()+"/score",
		map[string]interface{}{"score": score}, s.adminHeaders())
}

func (s *credentialSteps) check(ctx context.Context, minAge int) error {
	return s.checkWallet(ctx, s.tc.GetSubject(), minAge)
}

func (s *credentialSteps) checkWallet(ctx context.Context, wallet string, minAge int) error {
	return s.tc.POST("/checks", map[string]interface{}{
		"subject":   wallet,
		"minAge":    minAge,
		"eventType": "race",
	})
}
