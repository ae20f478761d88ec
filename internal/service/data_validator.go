package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"github.com/yourusername/stall10n/internal/models"
)

// maxPostTimeAhead bounds how far in the future monitoring may be scheduled
const maxPostTimeAhead = 14 * 24 * time.Hour

// ValidationError lists every problem found with an input
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Problems, "; ")
}

// DataValidator validates snapshots and monitoring requests
type DataValidator struct {
	validate *validator.Validate
	logger   logrus.FieldLogger
}

// NewDataValidator creates a new data validator
func NewDataValidator(logger logrus.FieldLogger) *DataValidator {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &DataValidator{validate: validator.New(), logger: logger}
}

// ValidateSnapshot checks a snapshot before it is stored
func (v *DataValidator) ValidateSnapshot(snap *models.OddsSnapshot) []string {
	var problems []string

	if err := v.validate.Struct(snap); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			for _, fe := range fieldErrs {
				problems = append(problems, fmt.Sprintf("%s failed %s", strings.ToLower(fe.Field()), fe.Tag()))
			}
		} else {
			problems = append(problems, err.Error())
		}
	}

	if !snap.Interval.IsValid() {
		problems = append(problems, fmt.Sprintf("unknown interval %q", snap.Interval))
	}

	if snap.ProgramNumber < 1 {
		problems = append(problems, fmt.Sprintf("program number must be positive, got %d", snap.ProgramNumber))
	}

	if snap.PoolSize != nil && *snap.PoolSize < 0 {
		problems = append(problems, "pool size cannot be negative")
	}

	return problems
}

// ValidateMonitoringRequest checks an enable-monitoring request at now
func (v *DataValidator) ValidateMonitoringRequest(externalID string, postTime, now time.Time) error {
	var problems []string

	if strings.TrimSpace(externalID) == "" {
		problems = append(problems, "external race id is required")
	}

	if postTime.IsZero() {
		problems = append(problems, "post time is required")
	} else if postTime.After(now.Add(maxPostTimeAhead)) {
		problems = append(problems, fmt.Sprintf("post time more than %d days ahead", int(maxPostTimeAhead.Hours()/24)))
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}
