// internal/submission/submission.go
// Package submission validates raw form posts and produces cleaned, typed
// records ready for notification.
//
// Validate never panics and never returns an error: every problem with the
// input becomes a FieldError in the Verdict. Cleaned Data is exposed only
// when the Verdict is valid.
package submission

import (
	"github.com/dalemusser/formrelay/internal/labels"
)

// Kind selects the form shape.
type Kind int

const (
	Contact Kind = iota
	Reservation
)

func (k Kind) String() string {
	switch k {
	case Contact:
		return "contact"
	case Reservation:
		return "reservation"
	default:
		return "unknown"
	}
}

// Contact methods accepted in contact_method.
const (
	MethodEmail = "email"
	MethodPhone = "phone"
)

// Data is a cleaned submission. String values are sanitized and HTML-escaped
// exactly once; consumers must not escape them again. Fields that do not
// belong to Kind are empty.
type Data struct {
	Kind          Kind
	Name          string
	ContactMethod string
	Language      labels.Locale
	Email         string
	Phone         string

	// Contact only.
	Message string

	// Reservation only.
	Service        string
	AdditionalInfo string
}

// FieldError codes.
const (
	CodeNameRequired           = "name_required"
	CodeNameTooLong            = "name_too_long"
	CodeContactMethodInvalid   = "contact_method_invalid"
	CodeLanguageInvalid        = "language_invalid"
	CodeEmailInvalid           = "email_invalid"
	CodeEmailTooLong           = "email_too_long"
	CodePhoneInvalid           = "phone_invalid"
	CodePhoneTooLong           = "phone_too_long"
	CodeEmailRequiredForMethod = "email_required_for_method"
	CodePhoneRequiredForMethod = "phone_required_for_method"
	CodeContactRequired        = "contact_required"
	CodeMessageTooLong         = "message_too_long"
	CodeAdditionalInfoTooLong  = "additional_info_too_long"
	CodeServiceTooLong         = "service_too_long"
	CodeRejected               = "rejected"
)

// FieldError is one rule violation. Field is empty for errors that concern
// the submission as a whole.
type FieldError struct {
	Field   string
	Code    string
	Message string
}

func (e FieldError) Error() string { return e.Message }

// Verdict is the outcome of validating one submission.
type Verdict struct {
	Valid  bool
	Errors []FieldError

	// Data is nil unless Valid.
	Data *Data
}

// Messages returns the error messages in order.
func (v Verdict) Messages() []string {
	out := make([]string, len(v.Errors))
	for i, e := range v.Errors {
		out[i] = e.Message
	}
	return out
}

// Codes returns the error codes in order.
func (v Verdict) Codes() []string {
	out := make([]string, len(v.Errors))
	for i, e := range v.Errors {
		out[i] = e.Code
	}
	return out
}

// Has reports whether the verdict carries an error with code.
func (v Verdict) Has(code string) bool {
	for _, e := range v.Errors {
		if e.Code == code {
			return true
		}
	}
	return false
}
