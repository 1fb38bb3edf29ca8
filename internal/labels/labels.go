// internal/labels/labels.go
// Package labels holds the display strings used in notification emails and
// validation messages, keyed by locale, section and label key.
//
// A Catalog is read-only after construction and safe for concurrent use.
// Lookups never fail: a missing locale falls back to Polish, and a missing
// entry falls back to a built-in English string for that key.
package labels

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// Locale is a supported display language.
type Locale string

const (
	Polish  Locale = "pl"
	English Locale = "en"

	// Default is used when the submitter does not pick a language.
	Default = Polish
)

// supported lists the locales in preference order.
var supported = []Locale{Polish, English}

// String returns the BCP-47 tag of the locale.
func (l Locale) String() string { return string(l) }

// Tag returns the language.Tag for the locale.
func (l Locale) Tag() language.Tag {
	if l == English {
		return language.English
	}
	return language.Polish
}

// Valid reports whether l is one of the supported locales.
func (l Locale) Valid() bool { return slices.Contains(supported, l) }

// ParseLocale resolves a submitted language value. Exact tags and any
// well-formed BCP-47 tag with a supported base language are accepted
// ("en-GB" resolves to English). The second result is false when the value
// is not recognized; the first is then Default.
func ParseLocale(s string) (Locale, bool) {
	s = strings.TrimSpace(s)
	if l := Locale(strings.ToLower(s)); l.Valid() {
		return l, true
	}
	tag, err := language.Parse(s)
	if err != nil || tag == language.Und {
		return Default, false
	}
	base, conf := tag.Base()
	if conf != language.Exact {
		return Default, false
	}
	if l := Locale(base.String()); l.Valid() {
		return l, true
	}
	return Default, false
}

// Section names used in the catalog.
const (
	SectionContact     = "contact"
	SectionReservation = "reservation"
	SectionValidation  = "validation"
)

// Tables is the on-disk layout: locale -> section -> key -> text.
type Tables map[Locale]map[string]map[string]string

//go:embed translations.yaml
var embedded []byte

// Catalog resolves display strings.
type Catalog struct {
	tables Tables
}

// New builds a Catalog over tables. The map is copied.
func New(tables Tables) *Catalog {
	c := &Catalog{tables: Tables{}}
	c.merge(tables)
	return c
}

// Builtin returns a Catalog over the built-in translations. If they cannot
// be parsed the Catalog is empty and every lookup uses fallbacks.
func Builtin() *Catalog {
	t, err := Parse(embedded, "yaml")
	if err != nil {
		return New(nil)
	}
	return New(t)
}

// Load returns the built-in catalog with the entries of the file at path
// layered on top. The file may be YAML or JSON (chosen by extension; YAML
// otherwise). A missing or malformed file is logged and the built-in
// catalog is returned unchanged.
func Load(path string, logger *zap.Logger) *Catalog {
	c := Builtin()
	if path == "" {
		return c
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("labels: using built-in translations", zap.String("file", path), zap.Error(err))
		return c
	}
	t, err := Parse(data, strings.TrimPrefix(filepath.Ext(path), "."))
	if err != nil {
		logger.Warn("labels: using built-in translations", zap.String("file", path), zap.Error(err))
		return c
	}
	c.merge(t)
	logger.Info("labels loaded", zap.String("file", path), zap.Int("locales", len(t)))
	return c
}

// Parse decodes translation tables. format is "json" or anything else for
// YAML.
func Parse(data []byte, format string) (Tables, error) {
	var t Tables
	var err error
	if strings.EqualFold(format, "json") {
		err = json.Unmarshal(data, &t)
	} else {
		err = yaml.Unmarshal(data, &t)
	}
	if err != nil {
		return nil, fmt.Errorf("labels: parse %s: %w", format, err)
	}
	return t, nil
}

func (c *Catalog) merge(t Tables) {
	for loc, sections := range t {
		loc = Locale(strings.ToLower(string(loc)))
		dst, ok := c.tables[loc]
		if !ok {
			dst = make(map[string]map[string]string, len(sections))
			c.tables[loc] = dst
		}
		for section, entries := range sections {
			if dst[section] == nil {
				dst[section] = make(map[string]string, len(entries))
			}
			for k, v := range entries {
				dst[section][k] = v
			}
		}
	}
}

// Lookup returns the text for key in section for the given locale.
// Unsupported locales resolve to Polish. An absent or empty entry yields the
// built-in fallback.
func (c *Catalog) Lookup(loc Locale, section, key string) string {
	if !loc.Valid() {
		loc = Default
	}
	if c != nil {
		if v := c.tables[loc][section][key]; v != "" {
			return v
		}
	}
	return Fallback(section, key)
}

// Fallback returns the built-in English text for key. Keys that have no
// built-in text are returned as is.
func Fallback(section, key string) string {
	if v, ok := fallbacks[section][key]; ok {
		return v
	}
	if v, ok := fallbacks[""][key]; ok {
		return v
	}
	return key
}

// fallbacks holds the last-resort strings. The "" section is shared.
var fallbacks = map[string]map[string]string{
	"": {
		"received":         "Received",
		"name":             "Name",
		"contact_method":   "Contact method",
		"contact_email":    "Email",
		"contact_phone":    "Phone",
		"contact_language": "Language",
		"lang_pl":          "Polish",
		"lang_en":          "English",
		"email":            "Email",
		"phone":            "Phone",
	},
	SectionContact: {
		"title":     "New contact message",
		"form_name": "Contact Form",
		"message":   "Message",
		"footer":    "Automatic message",
	},
	SectionReservation: {
		"title":           "New reservation",
		"form_name":       "Reservation Form",
		"service":         "Service",
		"additional_info": "Additional info",
		"footer1":         "Automatic message",
		"footer2":         "Confirm reservation!",
	},
	SectionValidation: {
		"name_required":             "Name is required (minimum 2 characters)",
		"name_too_long":             "Name is too long (maximum 100 characters)",
		"contact_method_invalid":    "Choose a preferred contact method",
		"language_invalid":          "Choose a supported language (pl or en)",
		"email_invalid":             "Enter a valid email address",
		"email_too_long":            "Email address is too long",
		"phone_invalid":             "Enter a valid phone number",
		"phone_too_long":            "Phone number is too long",
		"email_required_for_method": "Email address is required when email contact is selected",
		"phone_required_for_method": "Phone number is required when phone contact is selected",
		"contact_required":          "Provide at least one contact method (email or phone)",
		"message_too_long":          "Message is too long (maximum 2000 characters)",
		"additional_info_too_long":  "Additional information is too long (maximum 2000 characters)",
		"service_too_long":          "Service name is too long (maximum 200 characters)",
		"rejected_contact":          "Message was rejected",
		"rejected_reservation":      "Reservation was rejected",
	},
}
