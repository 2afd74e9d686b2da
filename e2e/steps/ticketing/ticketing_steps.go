package ticketing

import (
	"context"
	"fmt"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body interface{}) error
	POSTWithHeaders(path string, body interface{}, headers map[string]string) error
	PUTWithHeaders(path string, body interface{}, headers map[string]string) error
	GET(path string, headers map[string]string) error
	GetResponseField(field string) (interface{}, error)
	GetLastResponseStatus() int
	GetAdminToken() string
	GetScannerToken() string
	GetSubject() string
	SetSubject(subject string)
	GetQRToken() string
	SetQRToken(token string)
}

// RegisterSteps registers event, registration, scan and proof steps
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &ticketingSteps{tc: tc}

	ctx.Step(`^an admin publishes event "([^"]*)" with capacity (\d+) and minimum age (\d+)$`, steps.publishEvent)
	ctx.Step(`^the runner registers for "([^"]*)"$`, steps.register)
	ctx.Step(`^the runner registers for "([^"]*)" requiring minimum age (\d+)$`, steps.registerWithMinAge)
	ctx.Step(`^the runner holds a ticket for "([^"]*)"$`, steps.holdsTicket)
	ctx.Step(`^the scanner scans the runner's ticket$`, steps.scan)
	ctx.Step(`^the scanner scans QR token "([^"]*)"$`, steps.scanToken)
	ctx.Step(`^I scan the runner's ticket without a scanner token$`, steps.scanWithoutToken)
	ctx.Step(`^I fetch the runner's reputation$`, steps.reputation)
	ctx.Step(`^I verify the runner's attendance proof$`, steps.verifyAttendanceProof)
	ctx.Step(`^I verify the runner's attendance proof against root "([^"]*)"$`, steps.verifyAttendanceProofAgainst)
	ctx.Step(`^I verify the first attestation in the response$`, steps.verifyFirstAttestation)
	ctx.Step(`^I list registrations for "([^"]*)"$`, steps.listRegistrations)
}

type ticketingSteps struct {
	tc TestContext
}

func (s *ticketingSteps) publishEvent(ctx context.Context, eventID string, capacity, minAge int) error {
	return s.tc.PUTWithHeaders("/admin/events/"+eventID, map[string]interface{}{
		"name":     eventID,
		"capacity": capacity,
		"requirements": map[string]interface{}{
			"minAge":     minAge,
			"requireAge": minAge > 0,
		},
	}, map[string]string{"X-Admin-Token": s.tc.GetAdminToken()})
}

func (s *ticketingSteps) register(ctx context.Context, eventID string) error {
	if err := s.tc.POST("/registrations", map[string]interface{}{
		"subject": s.tc.GetSubject(),
		"eventId": eventID,
	}); err != nil {
		return err
	}
	return s.captureQRToken()
}

func (s *ticketingSteps) registerWithMinAge(ctx context.Context, eventID string, minAge int) error {
	if err := s.tc.POST("/registrations", map[string]interface{}{
		"subject": s.tc.GetSubject(),
		"eventId": eventID,
		"requirements": map[string]interface{}{
			"minAge":     minAge,
			"requireAge": true,
		},
	}); err != nil {
		return err
	}
	return s.captureQRToken()
}

func (s *ticketingSteps) captureQRToken() error {
	if s.tc.GetLastResponseStatus() != 201 {
		return nil
	}
	qr, err := s.tc.GetResponseField("qrToken")
	if err != nil {
		return err
	}
	s.tc.SetQRToken(fmt.Sprint(qr))
	return nil
}

func (s *ticketingSteps) holdsTicket(ctx context.Context, eventID string) error {
	if err := s.register(ctx, eventID); err != nil {
		return err
	}
	if status := s.tc.GetLastResponseStatus(); status != 201 {
		return fmt.Errorf("registration failed with status %d", status)
	}
	return nil
}

func (s *ticketingSteps) scan(ctx context.Context) error {
	return s.scanToken(ctx, s.tc.GetQRToken())
}

func (s *ticketingSteps) scanToken(ctx context.Context, qrToken string) error {
	return s.tc.POSTWithHeaders("/scan", map[string]interface{}{"qrToken": qrToken},
		map[string]string{"Authorization": "Bearer " + s.tc.GetScannerToken()})
}

func (s *ticketingSteps) scanWithoutToken(ctx context.Context) error {
	return s.tc.POST("/scan", map[string]interface{}{"qrToken": s.tc.GetQRToken()})
}

func (s *ticketingSteps) reputation(ctx context.Context) error {
	return s.tc.GET("/reputation/"+s.tc.GetSubject(), nil)
}

func (s *ticketingSteps) verifyAttendanceProof(ctx context.Context) error {
	return s.verifyAttendanceProofAgainst(ctx, "")
}

// verifyAttendanceProofAgainst reads the proof from the reputation view and
// submits it to the stateless verifier. An empty root uses the view's root.
func (s *ticketingSteps) verifyAttendanceProofAgainst(ctx context.Context, root string) error {
	if err := s.reputation(ctx); err != nil {
		return err
	}
	leaf, err := s.tc.GetResponseField("merkle.leaf")
	if err != nil {
		return err
	}
	proof, err := s.tc.GetResponseField("merkle.proof")
	if err != nil {
		return err
	}
	if root == "" {
		r, err := s.tc.GetResponseField("merkle.root")
		if err != nil {
			return err
		}
		root = fmt.Sprint(r)
	}
	return s.tc.POST("/verify/proof", map[string]interface{}{
		"leaf":  leaf,
		"proof": proof,
		"root":  root,
	})
}

func (s *ticketingSteps) verifyFirstAttestation(ctx context.Context) error {
	raw, err := s.tc.GetResponseField("attestations")
	if err != nil {
		return err
	}
	list, ok := raw.([]interface{})
	if !ok || len(list) == 0 {
		return fmt.Errorf("response carries no attestations")
	}
	return s.tc.POST("/verify/attestation", list[0])
}

func (s *ticketingSteps) listRegistrations(ctx context.Context, eventID string) error {
	return s.tc.GET("/admin/events/"+eventID+"/registrations",
		map[string]string{"X-Admin-Token": s.tc.GetAdminToken()})
}
