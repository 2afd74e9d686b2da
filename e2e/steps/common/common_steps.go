package common

import (
	"context"
	"fmt"
	"strings"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body interface{}) error
	GET(path string, headers map[string]string) error
	GetResponseField(field string) (interface{}, error)
	ResponseContains(field string) bool
	GetLastResponseStatus() int
	GetLastResponseBody() []byte
	Save(key, value string)
	Saved(key string) (string, bool)
}

// RegisterSteps registers common step definitions used across features
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &commonSteps{tc: tc}

	// Background steps
	ctx.Step(`^RacePass is running$`, steps.racePassIsRunning)

	// Generic request steps
	ctx.Step(`^I POST to "([^"]*)" with empty body$`, steps.postWithEmptyBody)
	ctx.Step(`^I GET "([^"]*)"$`, steps.get)

	// Response assertion steps
	ctx.Step(`^the response status should be (\d+)$`, steps.responseStatusShouldBe)
	ctx.Step(`^the response should contain "([^"]*)"$`, steps.responseShouldContain)
	ctx.Step(`^the response should not contain "([^"]*)"$`, steps.responseShouldNotContain)
	ctx.Step(`^the response field "([^"]*)" should equal "([^"]*)"$`, steps.responseFieldShouldEqual)
	ctx.Step(`^the response field "([^"]*)" should contain "([^"]*)"$`, steps.responseFieldShouldContain)
	ctx.Step(`^the error code should be "([^"]*)"$`, steps.errorCodeShouldBe)

	// Value capture
	ctx.Step(`^I save the response field "([^"]*)" as "([^"]*)"$`, steps.saveResponseField)
	ctx.Step(`^the response field "([^"]*)" should equal the saved "([^"]*)"$`, steps.responseFieldShouldEqualSaved)
	ctx.Step(`^the response field "([^"]*)" should not equal the saved "([^"]*)"$`, steps.responseFieldShouldNotEqualSaved)
}

type commonSteps struct {
	tc TestContext
}

func (s *commonSteps) racePassIsRunning(ctx context.Context) error {
	if err := s.tc.GET("/health/live", nil); err != nil {
		return err
	}
	return s.responseStatusShouldBe(ctx, 200)
}

func (s *commonSteps) postWithEmptyBody(ctx context.Context, path string) error {
	return s.tc.POST(path, map[string]interface{}{})
}

func (s *commonSteps) get(ctx context.Context, path string) error {
	return s.tc.GET(path, nil)
}

func (s *commonSteps) responseStatusShouldBe(ctx context.Context, expectedStatus int) error {
	actualStatus := s.tc.GetLastResponseStatus()
	if actualStatus != expectedStatus {
		return fmt.Errorf("expected status %d but got %d\nResponse: %s", expectedStatus, actualStatus, string(s.tc.GetLastResponseBody()))
	}
	return nil
}

func (s *commonSteps) responseShouldContain(ctx context.Context, field string) error {
	if !s.tc.ResponseContains(field) {
		return fmt.Errorf("response does not contain field: %s\nResponse: %s", field, string(s.tc.GetLastResponseBody()))
	}
	return nil
}

func (s *commonSteps) responseShouldNotContain(ctx context.Context, text string) error {
	if strings.Contains(string(s.tc.GetLastResponseBody()), text) {
		return fmt.Errorf("response unexpectedly contains %q\nResponse: %s", text, string(s.tc.GetLastResponseBody()))
	}
	return nil
}

func (s *commonSteps) field(field string) (string, error) {
	value, err := s.tc.GetResponseField(field)
	if err != nil {
		return "", err
	}
	return fmt.Sprint(value), nil
}

func (s *commonSteps) responseFieldShouldEqual(ctx context.Context, field, expectedValue string) error {
	actual, err := s.field(field)
	if err != nil {
		return err
	}
	if actual != expectedValue {
		return fmt.Errorf("field %s: expected %s but got %s", field, expectedValue, actual)
	}
	return nil
}

func (s *commonSteps) responseFieldShouldContain(ctx context.Context, field, expectedSubstring string) error {
	actual, err := s.field(field)
	if err != nil {
		return err
	}
	if !strings.Contains(actual, expectedSubstring) {
		return fmt.Errorf("field %s: expected to contain %s but got %s", field, expectedSubstring, actual)
	}
	return nil
}

func (s *commonSteps) errorCodeShouldBe(ctx context.Context, code string) error {
	return s.responseFieldShouldEqual(ctx, "error", code)
}

func (s *commonSteps) saveResponseField(ctx context.Context, field, key string) error {
	actual, err := s.field(field)
	if err != nil {
		return err
	}
	s.tc.Save(key, actual)
	return nil
}

func (s *commonSteps) responseFieldShouldEqualSaved(ctx context.Context, field, key string) error {
	saved, ok := s.tc.Saved(key)
	if !ok {
		return fmt.Errorf("nothing saved as %q", key)
	}
	return s.responseFieldShouldEqual(ctx, field, saved)
}

func (s *commonSteps) responseFieldShouldNotEqualSaved(ctx context.Context, field, key string) error {
	saved, ok := s.tc.Saved(key)
	if !ok {
		return fmt.Errorf("nothing saved as %q", key)
	}
	actual, err := s.field(field)
	if err != nil {
		return err
	}
	if actual == saved {
		return fmt.Errorf("field %s: expected a value other than %s", field, saved)
	}
	return nil
}
