package validation

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// ValidationError represents a structured validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors collects multiple field errors.
type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (ve *ValidationErrors) Add(field, message string) {
	ve.Errors = append(ve.Errors, ValidationError{Field: field, Message: message})
}

func (ve *ValidationErrors) HasErrors() bool {
	return len(ve.Errors) > 0
}

func (ve *ValidationErrors) Error() string {
	msgs := make([]string, len(ve.Errors))
	for i, e := range ve.Errors {
		msgs[i] = e.Field + ": " + e.Message
	}
	return strings.Join(msgs, "; ")
}

// RequireField checks a required string field is non-empty.
func RequireField(ve *ValidationErrors, field, value string) {
	if strings.TrimSpace(value) == "" {
		ve.Add(field, "is required")
	}
}

// ValidateEnum checks a field is one of allowed values.
func ValidateEnum(ve *ValidationErrors, field, value string, allowed []string) {
	if value == "" {
		return
	}
	for _, a := range allowed {
		if value == a {
			return
		}
	}
	ve.Add(field, fmt.Sprintf("must be one of: %s", strings.Join(allowed, ", ")))
}

// ValidateDate checks a field is a valid date (YYYY-MM-DD).
func ValidateDate(ve *ValidationErrors, field, value string) {
	if value == "" {
		return
	}
	if _, err := time.Parse("2006-01-02", value); err != nil {
		ve.Add(field, "must be a valid date (YYYY-MM-DD)")
	}
}

// DatetimeLayout is the wire format for start/end times coming from the
// production entry forms.
const DatetimeLayout = "2006-01-02T15:04"

// ParseDatetime parses a form datetime, accepting the HTML
// datetime-local format with or without seconds.
func ParseDatetime(value string) (time.Time, error) {
	for _, layout := range []string{DatetimeLayout, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("must be a valid datetime (YYYY-MM-DDTHH:MM)")
}

// ValidateDatetime checks a field parses as a datetime.
func ValidateDatetime(ve *ValidationErrors, field, value string) {
	if value == "" {
		return
	}
	if _, err := ParseDatetime(value); err != nil {
		ve.Add(field, err.Error())
	}
}

// ValidateNotFuture checks an already-parsed moment is not ahead of now.
func ValidateNotFuture(ve *ValidationErrors, field string, value, now time.Time) {
	if value.After(now) {
		ve.Add(field, "cannot be in the future")
	}
}

// ValidatePositiveInt checks a field is > 0.
func ValidatePositiveInt(ve *ValidationErrors, field string, value int) {
	if value <= 0 {
		ve.Add(field, "must be a positive integer")
	}
}

// ValidatePositiveFloat checks a field is > 0.
func ValidatePositiveFloat(ve *ValidationErrors, field string, value float64) {
	if value <= 0 {
		ve.Add(field, "must be a positive number")
	}
}

// ValidateNonNegativeFloat checks a field is >= 0.
func ValidateNonNegativeFloat(ve *ValidationErrors, field string, value float64) {
	if value < 0 {
		ve.Add(field, "must be non-negative")
	}
}

// ValidateFloatRange checks a field is within a specified range.
func ValidateFloatRange(ve *ValidationErrors, field string, value, min, max float64) {
	if value < min || value > max {
		ve.Add(field, fmt.Sprintf("must be between %.2f and %.2f", min, max))
	}
}

// ValidateIntRange checks a field is within a specified range.
func ValidateIntRange(ve *ValidationErrors, field string, value, min, max int) {
	if value < min || value > max {
		ve.Add(field, fmt.Sprintf("must be between %d and %d", min, max))
	}
}

// Maximum value constants to keep production entries plausible.
const (
	MaxQuantity     = 1000000.0
	MaxStringLength = 10000
)

// ValidateMaxQuantity checks quantity doesn't exceed reasonable maximum.
func ValidateMaxQuantity(ve *ValidationErrors, field string, value float64) {
	if value > MaxQuantity {
		ve.Add(field, fmt.Sprintf("exceeds maximum allowed quantity of %.0f", MaxQuantity))
	}
}

// ValidateMaxLength checks string doesn't exceed max length.
func ValidateMaxLength(ve *ValidationErrors, field, value string, max int) {
	if len(value) > max {
		ve.Add(field, fmt.Sprintf("must be at most %d characters", max))
	}
}

// Loom numbers are plain digits on the shop floor sheets.
var loomNoPattern = regexp.MustCompile(`^[0-9]+$`)

// IsLoomNumber reports whether a raw cell value is a valid loom number.
func IsLoomNumber(value string) bool {
	return loomNoPattern.MatchString(strings.TrimSpace(value))
}

// ValidateUploadFilename checks an uploaded workbook name: .xlsx only,
// no path components.
func ValidateUploadFilename(ve *ValidationErrors, filename string) {
	if filename == "" {
		ve.Add("filename", "is required")
		return
	}
	if strings.Contains(filename, "..") || strings.ContainsAny(filename, "/\\\x00") {
		ve.Add("filename", "contains invalid path characters")
		return
	}
	if !strings.HasSuffix(strings.ToLower(filename), ".xlsx") {
		ve.Add("filename", "must be an .xlsx workbook")
	}
}

// MaxUploadSize caps orderbook and grey production workbook uploads.
const MaxUploadSize = 20 * 1024 * 1024

// ValidateUploadSize checks a workbook upload is non-empty and within
// the cap.
func ValidateUploadSize(ve *ValidationErrors, size int64) {
	if size == 0 {
		ve.Add("file", "cannot be empty (0 bytes)")
		return
	}
	if size > MaxUploadSize {
		ve.Add("file", fmt.Sprintf("exceeds maximum size of %d MB", MaxUploadSize/(1024*1024)))
	}
}
