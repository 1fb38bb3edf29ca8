// internal/notify/notify.go
// Package notify renders validated submissions into notification emails.
package notify

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"math/rand/v2"
	"strings"
	texttemplate "text/template"
	"time"
	"unicode"

	"golang.org/x/text/cases"

	"github.com/dalemusser/formrelay/internal/labels"
	"github.com/dalemusser/formrelay/internal/sanitize"
	"github.com/dalemusser/formrelay/internal/submission"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

const (
	receivedLayout = "02.01.2006 15:04:05"
	idDateLayout   = "02012006"
)

// Notification is a rendered message ready for transport.
type Notification struct {
	Subject    string
	SenderName string
	HTMLBody   string
	TextBody   string

	// ReplyTo is the submitter's email; empty for phone-only submissions.
	ReplyTo string
}

// Formatter renders notifications. It is safe for concurrent use.
type Formatter struct {
	catalog  *labels.Catalog
	now      func() time.Time
	location *time.Location
	suffix   func() uint32
	html     *htmltemplate.Template
	text     *texttemplate.Template
}

// Option configures a Formatter.
type Option func(*Formatter)

// WithClock sets the time source for the receipt timestamp and message id.
func WithClock(now func() time.Time) Option {
	return func(f *Formatter) { f.now = now }
}

// WithLocation sets the time zone timestamps are shown in.
func WithLocation(loc *time.Location) Option {
	return func(f *Formatter) { f.location = loc }
}

// WithRandom sets the source of the message id suffix. Only the low 16 bits
// are used.
func WithRandom(fn func() uint32) Option {
	return func(f *Formatter) { f.suffix = fn }
}

// New builds a Formatter over catalog (nil means the built-in labels).
func New(catalog *labels.Catalog, opts ...Option) (*Formatter, error) {
	if catalog == nil {
		catalog = labels.Builtin()
	}
	f := &Formatter{
		catalog:  catalog,
		now:      time.Now,
		location: time.Local,
		suffix:   rand.Uint32,
	}
	for _, opt := range opts {
		opt(f)
	}

	var err error
	f.html, err = htmltemplate.ParseFS(templateFS, "templates/notification.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("notify: failed to parse HTML template: %w", err)
	}
	f.text, err = texttemplate.ParseFS(templateFS, "templates/notification.txt.tmpl")
	if err != nil {
		return nil, fmt.Errorf("notify: failed to parse text template: %w", err)
	}
	return f, nil
}

type row struct {
	Label     string
	Text      string
	HTML      htmltemplate.HTML
	Block     bool
	Highlight bool
}

type footerLine struct {
	Text   string
	Upper  string
	Strong bool
}

type view struct {
	Reservation   bool
	Title         string
	TitleUpper    string
	ReceivedLabel string
	Received      string
	Rows          []row
	Footer        []footerLine
}

// Render builds the subject and both bodies for d. Values in d are already
// HTML-escaped and are inserted into the HTML body verbatim.
func (f *Formatter) Render(d submission.Data) (Notification, error) {
	loc := d.Language
	if !loc.Valid() {
		loc = labels.Default
	}
	section := labels.SectionContact
	if d.Kind == submission.Reservation {
		section = labels.SectionReservation
	}
	label := func(key string) string { return f.catalog.Lookup(loc, section, key) }
	upper := cases.Upper(loc.Tag())

	now := f.now().In(f.location)
	title := label("title")

	v := view{
		Reservation:   d.Kind == submission.Reservation,
		Title:         title,
		TitleUpper:    upper.String(title),
		ReceivedLabel: label("received"),
		Received:      now.Format(receivedLayout),
	}

	method := label("contact_email")
	if d.ContactMethod == submission.MethodPhone {
		method = label("contact_phone")
	}
	language := label("lang_pl")
	if loc == labels.English {
		language = label("lang_en")
	}

	v.Rows = append(v.Rows,
		valueRow(label("name"), d.Name, false, v.Reservation),
		labelRow(label("contact_method"), method),
		labelRow(label("contact_language"), language),
	)
	if d.Email != "" {
		v.Rows = append(v.Rows, valueRow(label("email"), d.Email, false, false))
	}
	if d.Phone != "" {
		v.Rows = append(v.Rows, valueRow(label("phone"), d.Phone, false, false))
	}

	if v.Reservation {
		if d.Service != "" {
			v.Rows = append(v.Rows, valueRow(label("service"), d.Service, false, false))
		}
		if d.AdditionalInfo != "" {
			v.Rows = append(v.Rows, valueRow(label("additional_info"), d.AdditionalInfo, true, false))
		}
		reminder := label("footer2")
		v.Footer = []footerLine{
			{Text: label("footer1")},
			{Text: reminder, Upper: upper.String(reminder), Strong: true},
		}
	} else {
		if d.Message != "" {
			v.Rows = append(v.Rows, valueRow(label("message"), d.Message, true, false))
		}
		v.Footer = []footerLine{{Text: label("footer")}}
	}

	var html, text bytes.Buffer
	if err := f.html.Execute(&html, v); err != nil {
		return Notification{}, fmt.Errorf("notify: failed to render HTML body: %w", err)
	}
	if err := f.text.Execute(&text, v); err != nil {
		return Notification{}, fmt.Errorf("notify: failed to render text body: %w", err)
	}

	return Notification{
		Subject:    fmt.Sprintf("%s - %s %s", title, d.Name, f.uniqueID(d.Name, now)),
		SenderName: label("form_name"),
		HTMLBody:   html.String(),
		TextBody:   text.String(),
		ReplyTo:    d.Email,
	}, nil
}

// valueRow wraps an already-escaped submission value.
func valueRow(label, value string, multiline, highlight bool) row {
	html := value
	if multiline {
		html = strings.ReplaceAll(value, "\n", "<br>")
	}
	return row{
		Label:     label,
		Text:      value,
		HTML:      htmltemplate.HTML(html),
		Block:     multiline,
		Highlight: highlight,
	}
}

// labelRow carries catalog text as its value, which still needs escaping.
func labelRow(label, value string) row {
	return row{
		Label: label,
		Text:  value,
		HTML:  htmltemplate.HTML(htmltemplate.HTMLEscapeString(value)),
	}
}

// uniqueID keeps mail clients from threading separate submissions together:
// '#', the date as ddMMyyyy, the first and last letters of the name, and
// four random hex digits.
func (f *Formatter) uniqueID(name string, now time.Time) string {
	var letters []rune
	for _, r := range sanitize.Unescape(name) {
		if unicode.IsLetter(r) {
			letters = append(letters, unicode.ToUpper(r))
		}
	}
	first, last := 'X', 'X'
	if len(letters) > 0 {
		first, last = letters[0], letters[len(letters)-1]
	}
	return fmt.Sprintf("#%s%c%c%04X", now.Format(idDateLayout), first, last, f.suffix()&0xFFFF)
}
