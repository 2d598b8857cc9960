package validator

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

type scheduleRequest struct {
	Channel string `json:"channel" validate:"required"`
	Date    string `json:"date" validate:"required"`
}

func TestCustomValidator_ReportsFieldsByJSONName(t *testing.T) {
	cv := New()

	// Both required fields left empty.
	err := cv.Validate(scheduleRequest{})
	if err == nil {
		t.Fatalf("expected validation error, got nil")
	}

	ve, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("expected *ValidationError, got %T", err)
	}

	if len(ve.Errors) == 0 {
		t.Fatalf("expected at least one validation error, got none")
	}

	if _, exists := ve.Errors["channel"]; !exists {
		t.Errorf("expected 'channel' to be in validation errors")
	}
	if _, exists := ve.Errors["date"]; !exists {
		t.Errorf("expected 'date' to be in validation errors")
	}
}

func TestCustomValidator_ValidStructPasses(t *testing.T) {
	cv := New()

	if err := cv.Validate(scheduleRequest{Channel: "#general", Date: "2026-06-01"}); err != nil {
		t.Fatalf("expected no error for a valid struct, got %v", err)
	}
}

func TestHandleValidationError_Returns422WithDetails(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/messages", nil)
	c := e.NewContext(req, rec)

	cv := New()
	err := cv.Validate(scheduleRequest{})
	if err == nil {
		t.Fatalf("expected validation error, got nil")
	}

	if err := HandleValidationError(c, err); err != nil {
		t.Fatalf("HandleValidationError returned error: %v", err)
	}

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d", rec.Code)
	}

	var body ValidationErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}

	if body.Success {
		t.Errorf("expected Success=false, got true")
	}
	if body.Error != "Validation failed" {
		t.Errorf("expected error='Validation failed', got %q", body.Error)
	}
	if len(body.Details) == 0 {
		t.Fatalf("expected details in validation response, got none")
	}
}
