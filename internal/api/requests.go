package api

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/mpawatch/mpawatch/internal/models"
)

// defaultWindow is the analysis window used when no dates are supplied.
const defaultWindow = 30 * 24 * time.Hour

// errMissingParameters is reported when the site name or WDPA code is absent.
var errMissingParameters = errors.New("missing required parameters")

const missingParametersMessage = "Missing required parameters"

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// AnalyzeRequest is the body of POST /api/analyze_mpa.
type AnalyzeRequest struct {
	MPAName   string `json:"mpa_name" validate:"required"`
	WDPACode  string `json:"wdpa_code" validate:"required"`
	StartDate string `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
	EndDate   string `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
}

// window resolves the request dates, filling in the last 30 days relative
// to now when they are omitted.
func (r AnalyzeRequest) window(now time.Time) (time.Time, time.Time, error) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	start := today.Add(-defaultWindow)
	end := today
	if r.StartDate != "" {
		start, _ = time.Parse(models.DateLayout, r.StartDate)
	}
	if r.EndDate != "" {
		end, _ = time.Parse(models.DateLayout, r.EndDate)
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("end_date %s is before start_date %s",
			end.Format(models.DateLayout), start.Format(models.DateLayout))
	}
	return start, end, nil
}

// validateAnalyzeRequest returns errMissingParameters when a required field
// is absent and a field-specific error for malformed dates.
func validateAnalyzeRequest(req *AnalyzeRequest) error {
	err := getValidator().Struct(req)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	for _, fe := range fieldErrs {
		if fe.Tag() == "required" {
			return errMissingParameters
		}
	}
	fe := fieldErrs[0]
	return ValidationError{
		Field:   jsonFieldName(fe.Field()),
		Message: fmt.Sprintf("must be a date in YYYY-MM-DD format, got %q", fe.Value()),
	}
}

func jsonFieldName(field string) string {
	switch field {
	case "StartDate":
		return "start_date"
	case "EndDate":
		return "end_date"
	case "MPAName":
		return "mpa_name"
	case "WDPACode":
		return "wdpa_code"
	default:
		return field
	}
}

// ValidationError describes a rejected request field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}
