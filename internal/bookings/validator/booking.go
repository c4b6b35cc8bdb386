package validator

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"campsite/pkg/calendar"
	"campsite/pkg/logger"
	"campsite/pkg/model"

	"github.com/go-playground/validator/v10"
)

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", v.Field, v.Message)
}

type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return ""
	}
	var messages []string
	for _, err := range v {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %d error(s): [%s]", len(v), strings.Join(messages, "; "))
}

// Rules returns the individual violation messages, one per broken rule.
func (v ValidationErrors) Rules() []string {
	rules := make([]string, len(v))
	for i, err := range v {
		rules[i] = err.Message
	}
	return rules
}

// Policy holds the booking-policy thresholds.
type Policy struct {
	MaxStayDays int
	MinLeadDays int
	MaxLeadDays int
}

// BookingValidator runs every policy rule and reports ALL violations
// together, so a caller learns the complete error list in one round
// trip. It is pure: no side effects, storage is never touched.
type BookingValidator struct {
	validate *validator.Validate
	policy   Policy
	logger   *logger.Logger

	// now is swappable so lead-time rules are testable at a fixed date.
	now func() time.Time
}

func NewBookingValidator(policy Policy, log *logger.Logger) *BookingValidator {
	return &BookingValidator{
		validate: validator.New(),
		policy:   policy,
		logger:   log,
		now:      time.Now,
	}
}

func (v *BookingValidator) Validate(booking *model.Booking) error {
	var violations ValidationErrors

	if err := v.validate.Struct(booking); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			violations = append(violations, v.translateFieldErrors(fieldErrs)...)
		} else {
			return err
		}
	}

	if booking.ArrivalDate.IsZero() || booking.DepartureDate.IsZero() {
		if len(violations) > 0 {
			return violations
		}
		return nil
	}

	violations = append(violations, v.policyViolations(booking)...)

	if len(violations) > 0 {
		return violations
	}
	return nil
}

func (v *BookingValidator) policyViolations(booking *model.Booking) ValidationErrors {
	var violations ValidationErrors

	arrival := calendar.Truncate(booking.ArrivalDate)
	departure := calendar.Truncate(booking.DepartureDate)

	if departure.Before(arrival) {
		violations = append(violations, ValidationError{
			Field:   "DepartureDate",
			Message: "arrival date must be before departure date",
		})
	}

	stayInDays := calendar.DaysBetween(arrival, departure)
	if stayInDays < 1 {
		violations = append(violations, ValidationError{
			Field:   "DepartureDate",
			Message: "the campsite can be reserved for minimum 1 day",
		})
	}
	if stayInDays > v.policy.MaxStayDays {
		violations = append(violations, ValidationError{
			Field:   "DepartureDate",
			Message: fmt.Sprintf("the campsite can be reserved for maximum %d days", v.policy.MaxStayDays),
		})
	}

	leadDays := calendar.DaysBetween(v.now(), arrival)
	if leadDays < v.policy.MinLeadDays {
		violations = append(violations, ValidationError{
			Field:   "ArrivalDate",
			Message: fmt.Sprintf("the campsite can be reserved minimum %d day(s) ahead of arrival", v.policy.MinLeadDays),
		})
	}
	if leadDays > v.policy.MaxLeadDays {
		violations = append(violations, ValidationError{
			Field:   "ArrivalDate",
			Message: fmt.Sprintf("the campsite can be reserved up to %d day(s) in advance", v.policy.MaxLeadDays),
		})
	}

	return violations
}

func (v *BookingValidator) translateFieldErrors(errs validator.ValidationErrors) ValidationErrors {
	var violations ValidationErrors

	for _, err := range errs {
		message := err.Error()

		switch err.Tag() {
		case "required":
			message = fmt.Sprintf("%s is required", err.Field())
		case "email":
			message = fmt.Sprintf("%s must be a valid email address", err.Field())
		case "min":
			message = fmt.Sprintf("%s must be at least %s characters", err.Field(), err.Param())
		case "max":
			message = fmt.Sprintf("%s must be at most %s characters", err.Field(), err.Param())
		case "mongodb":
			message = fmt.Sprintf("%s must be a valid booking id", err.Field())
		}

		violations = append(violations, ValidationError{
			Field:   err.Field(),
			Message: message,
		})
	}

	return violations
}
