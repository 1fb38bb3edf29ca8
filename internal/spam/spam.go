// internal/spam/spam.go
// Package spam scores form text for common spam signals.
//
// A Detector looks at each text field on its own. A field is flagged when it
// contains too many spam keywords, too many links, or is mostly shouting.
// A submission is spam when any field is flagged; every rule is evaluated so
// the full set of findings is available to tests and logs.
package spam

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"
)

// Rule names a heuristic that produced a Finding.
type Rule string

const (
	RuleKeywords       Rule = "keywords"
	RuleLinks          Rule = "links"
	RuleCapitalization Rule = "capitalization"
)

// DefaultKeywords are matched case-insensitively as substrings.
var DefaultKeywords = []string{
	"http://", "https://", "www.", ".com", ".net", ".org",
	"viagra", "casino", "poker", "loan", "credit",
	"make money", "work from home", "click here",
	"free money", "guaranteed", "100%",
}

var linkPattern = regexp.MustCompile(`https?://|www\.|\.[a-z]{2,4}/`)

// Config holds the tables and thresholds used by a Detector.
type Config struct {
	// Keywords are counted per occurrence; repeats count again.
	Keywords []string

	// KeywordThreshold flags a field with at least this many keyword hits.
	KeywordThreshold int

	// LinkThreshold flags a field with at least this many link matches.
	LinkThreshold int

	// CapsMinLength is the rune length a field must exceed before the
	// capitalization rule applies.
	CapsMinLength int

	// CapsRatio flags a field whose uppercase share is strictly above it.
	CapsRatio float64

	// OnFinding, if set, is called once per finding after it is logged.
	OnFinding func(Finding)
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{
		Keywords:         DefaultKeywords,
		KeywordThreshold: 2,
		LinkThreshold:    2,
		CapsMinLength:    10,
		CapsRatio:        0.6,
	}
}

// Field is a named piece of text to scan.
type Field struct {
	Name  string
	Value string
}

// Finding records one rule firing on one field.
type Finding struct {
	Field string
	Rule  Rule
	Score float64
}

// Result is the outcome of a scan.
type Result struct {
	Findings []Finding
}

// Spam reports whether any rule fired.
func (r Result) Spam() bool { return len(r.Findings) > 0 }

// Detector applies the heuristics. It is safe for concurrent use.
type Detector struct {
	cfg      Config
	keywords []string
	logger   *zap.Logger
}

// NewDetector builds a Detector. Zero thresholds are replaced with defaults
// and a nil logger discards output.
func NewDetector(cfg Config, logger *zap.Logger) *Detector {
	def := DefaultConfig()
	if cfg.Keywords == nil {
		cfg.Keywords = def.Keywords
	}
	if cfg.KeywordThreshold <= 0 {
		cfg.KeywordThreshold = def.KeywordThreshold
	}
	if cfg.LinkThreshold <= 0 {
		cfg.LinkThreshold = def.LinkThreshold
	}
	if cfg.CapsMinLength <= 0 {
		cfg.CapsMinLength = def.CapsMinLength
	}
	if cfg.CapsRatio <= 0 {
		cfg.CapsRatio = def.CapsRatio
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	keywords := make([]string, 0, len(cfg.Keywords))
	for _, k := range cfg.Keywords {
		if k = strings.ToLower(k); k != "" {
			keywords = append(keywords, k)
		}
	}

	return &Detector{cfg: cfg, keywords: keywords, logger: logger}
}

// Scan evaluates every rule against every field.
func (d *Detector) Scan(fields ...Field) Result {
	var res Result
	for _, f := range fields {
		if f.Value == "" {
			continue
		}
		for _, fd := range d.scanField(f) {
			d.logger.Warn("spam signal",
				zap.String("field", fd.Field),
				zap.String("rule", string(fd.Rule)),
				zap.Float64("score", fd.Score),
			)
			if d.cfg.OnFinding != nil {
				d.cfg.OnFinding(fd)
			}
			res.Findings = append(res.Findings, fd)
		}
	}
	return res
}

func (d *Detector) scanField(f Field) []Finding {
	var out []Finding
	lower := strings.ToLower(f.Value)

	if n := d.keywordCount(lower); n >= d.cfg.KeywordThreshold {
		out = append(out, Finding{Field: f.Name, Rule: RuleKeywords, Score: float64(n)})
	}

	if n := len(linkPattern.FindAllStringIndex(lower, -1)); n >= d.cfg.LinkThreshold {
		out = append(out, Finding{Field: f.Name, Rule: RuleLinks, Score: float64(n)})
	}

	if total := utf8.RuneCountInString(f.Value); total > d.cfg.CapsMinLength {
		upper := 0
		for _, r := range f.Value {
			if unicode.IsUpper(r) {
				upper++
			}
		}
		if ratio := float64(upper) / float64(total); ratio > d.cfg.CapsRatio {
			out = append(out, Finding{Field: f.Name, Rule: RuleCapitalization, Score: ratio})
		}
	}

	return out
}

func (d *Detector) keywordCount(lower string) int {
	n := 0
	for _, k := range d.keywords {
		n += strings.Count(lower, k)
	}
	return n
}

// HoneypotFields are form inputs hidden from humans; bots fill them in.
var HoneypotFields = []string{"website", "url"}

// Honeypot reports whether any trap field carries a truthy value.
func Honeypot(raw map[string]any) bool {
	for _, name := range HoneypotFields {
		switch v := raw[name].(type) {
		case nil:
		case string:
			if v != "" {
				return true
			}
		case bool:
			if v {
				return true
			}
		case float64:
			if v != 0 {
				return true
			}
		case []any:
			if len(v) > 0 {
				return true
			}
		case map[string]any:
			if len(v) > 0 {
				return true
			}
		default:
			return true
		}
	}
	return false
}
