// internal/submission/validator.go
package submission

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/dalemusser/formrelay/internal/labels"
	"github.com/dalemusser/formrelay/internal/sanitize"
	"github.com/dalemusser/formrelay/internal/spam"
)

// Length limits, counted in runes of the sanitized value.
const (
	NameMinLength    = 2
	NameMaxLength    = 100
	EmailMaxLength   = 254
	PhoneMaxLength   = 20
	TextMaxLength    = 2000
	ServiceMaxLength = 200
)

var (
	emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

	// phoneChars admits an optional leading + and the separators people
	// type; the digit count is checked separately.
	phoneChars = regexp.MustCompile(`^\+?[\d\s\-()]+$`)

	// phoneStrict is an E.164-like number once spaces and hyphens are gone.
	phoneStrict = regexp.MustCompile(`^(\+|00)[1-9]\d{6,14}$`)
)

const (
	phoneMinDigits = 7
	phoneMaxDigits = 15
)

// textField is an optional free-text field with a length cap.
type textField struct {
	name     string
	clean    func(any) string
	max      int
	tooLong  string
	scanSpam bool
	assign   func(*Data, string)
}

// kindSpec lists the kind-specific fields in declaration order.
type kindSpec struct {
	texts []textField
}

// fieldTables builds the per-kind field tables. Each Validator gets its own
// copy at construction and never modifies it.
func fieldTables() map[Kind]kindSpec {
	return map[Kind]kindSpec{
		Contact: {texts: []textField{
			{
				name: "message", clean: sanitize.Multiline, max: TextMaxLength,
				tooLong: CodeMessageTooLong, scanSpam: true,
				assign: func(d *Data, v string) { d.Message = v },
			},
		}},
		Reservation: {texts: []textField{
			{
				name: "service", clean: sanitize.Plain, max: ServiceMaxLength,
				tooLong: CodeServiceTooLong,
				assign:  func(d *Data, v string) { d.Service = v },
			},
			{
				name: "additional_info", clean: sanitize.Multiline, max: TextMaxLength,
				tooLong: CodeAdditionalInfoTooLong, scanSpam: true,
				assign: func(d *Data, v string) { d.AdditionalInfo = v },
			},
		}},
	}
}

// Validator checks submissions. It holds only read-only state and is safe
// for concurrent use.
type Validator struct {
	strictLanguage          bool
	strictPhone             bool
	requirePreferredContact bool
	catalog                 *labels.Catalog
	detector                *spam.Detector
	specs                   map[Kind]kindSpec
}

// Option configures a Validator.
type Option func(*Validator)

// WithStrictLanguage rejects unrecognized language values instead of
// falling back to the default locale.
func WithStrictLanguage(on bool) Option {
	return func(v *Validator) { v.strictLanguage = on }
}

// WithStrictPhone requires an international number: + or 00, then a
// non-zero digit and 6 to 14 more digits.
func WithStrictPhone(on bool) Option {
	return func(v *Validator) { v.strictPhone = on }
}

// WithRequirePreferredContact requires the field matching contact_method to
// be filled in.
func WithRequirePreferredContact(on bool) Option {
	return func(v *Validator) { v.requirePreferredContact = on }
}

// WithCatalog sets the catalog used to render error messages.
func WithCatalog(c *labels.Catalog) Option {
	return func(v *Validator) {
		if c != nil {
			v.catalog = c
		}
	}
}

// WithDetector sets the spam detector.
func WithDetector(d *spam.Detector) Option {
	return func(v *Validator) {
		if d != nil {
			v.detector = d
		}
	}
}

// New builds a Validator. Without options it is permissive about language
// and phone shape, uses the built-in catalog and the stock spam thresholds.
func New(opts ...Option) *Validator {
	v := &Validator{specs: fieldTables()}
	for _, opt := range opts {
		opt(v)
	}
	if v.catalog == nil {
		v.catalog = labels.Builtin()
	}
	if v.detector == nil {
		v.detector = spam.NewDetector(spam.DefaultConfig(), nil)
	}
	return v
}

// Validate checks raw against the field set of kind. Errors appear in field
// declaration order; the spam rejection, if any, is always last.
func (v *Validator) Validate(raw map[string]any, kind Kind) Verdict {
	spec, ok := v.specs[kind]
	if !ok {
		spec, kind = v.specs[Contact], Contact
	}

	var (
		errs []FieldError
		d    = Data{Kind: kind}
	)
	fail := func(field, code string) {
		errs = append(errs, FieldError{Field: field, Code: code})
	}

	// name
	d.Name = sanitize.Plain(raw["name"])
	switch n := utf8.RuneCountInString(d.Name); {
	case n < NameMinLength:
		fail("name", CodeNameRequired)
	case n > NameMaxLength:
		fail("name", CodeNameTooLong)
	}

	// contact_method is an enum and is never sanitized.
	method, _ := raw["contact_method"].(string)
	if method == MethodEmail || method == MethodPhone {
		d.ContactMethod = method
	} else {
		fail("contact_method", CodeContactMethodInvalid)
	}

	// language
	d.Language = labels.Default
	if s := sanitize.Plain(raw["language"]); s != "" {
		loc, known := labels.ParseLocale(s)
		if !known && v.strictLanguage {
			fail("language", CodeLanguageInvalid)
		}
		d.Language = loc
	} else if raw["language"] != nil && v.strictLanguage {
		if _, isString := raw["language"].(string); !isString {
			fail("language", CodeLanguageInvalid)
		}
	}

	// email
	d.Email = sanitize.Email(raw["email"])
	emailOK := false
	if d.Email != "" {
		switch {
		case !emailPattern.MatchString(d.Email):
			fail("email", CodeEmailInvalid)
		case utf8.RuneCountInString(d.Email) > EmailMaxLength:
			fail("email", CodeEmailTooLong)
		default:
			emailOK = true
		}
	}

	// phone
	d.Phone = sanitize.Plain(raw["phone"])
	phoneOK := false
	if d.Phone != "" {
		switch {
		case !v.validPhone(d.Phone):
			fail("phone", CodePhoneInvalid)
		case utf8.RuneCountInString(d.Phone) > PhoneMaxLength:
			fail("phone", CodePhoneTooLong)
		default:
			phoneOK = true
		}
	}

	if v.requirePreferredContact {
		switch {
		case d.ContactMethod == MethodEmail && d.Email == "" && d.Phone != "":
			fail("email", CodeEmailRequiredForMethod)
		case d.ContactMethod == MethodPhone && d.Phone == "" && d.Email != "":
			fail("phone", CodePhoneRequiredForMethod)
		}
	}

	if !emailOK && !phoneOK {
		fail("", CodeContactRequired)
	}

	scan := []spam.Field{{Name: "name", Value: sanitize.Unescape(d.Name)}}
	for _, f := range spec.texts {
		val := f.clean(raw[f.name])
		if utf8.RuneCountInString(val) > f.max {
			fail(f.name, f.tooLong)
		}
		f.assign(&d, val)
		if f.scanSpam {
			scan = append(scan, spam.Field{Name: f.name, Value: sanitize.Unescape(val)})
		}
	}

	if v.detector.Scan(scan...).Spam() {
		fail("", CodeRejected)
	}

	if len(errs) > 0 {
		v.localize(errs, d.Language, kind)
		return Verdict{Errors: errs}
	}
	return Verdict{Valid: true, Data: &d}
}

func (v *Validator) validPhone(p string) bool {
	if v.strictPhone {
		compact := strings.NewReplacer(" ", "", "-", "").Replace(p)
		return phoneStrict.MatchString(compact)
	}
	if !phoneChars.MatchString(p) {
		return false
	}
	digits := 0
	for _, r := range p {
		if unicode.IsDigit(r) {
			digits++
		}
	}
	return digits >= phoneMinDigits && digits <= phoneMaxDigits
}

func (v *Validator) localize(errs []FieldError, loc labels.Locale, kind Kind) {
	for i := range errs {
		key := errs[i].Code
		if key == CodeRejected {
			key = CodeRejected + "_" + kind.String()
		}
		errs[i].Message = v.catalog.Lookup(loc, labels.SectionValidation, key)
	}
}
