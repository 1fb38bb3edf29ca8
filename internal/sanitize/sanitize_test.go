package sanitize

import "testing"

func TestPlain(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"trims", "  Jan Kowalski  ", "Jan Kowalski"},
		{"collapses whitespace", "Jan \t\n  Kowalski", "Jan Kowalski"},
		{"no-break spaces", "Jan\u00a0\u00a0Kowalski", "Jan Kowalski"},
		{"vertical tabs", "Jan\v\vKowalski", "Jan Kowalski"},
		{"em space", "Jan \u2003 Kowalski", "Jan Kowalski"},
		{"unicode edges", "\u00a0Jan\u3000", "Jan"},
		{"escapes markup", `<b>"Jan" & 'Anna'</b>`, "&lt;b&gt;&#34;Jan&#34; &amp; &#39;Anna&#39;&lt;/b&gt;"},
		{"empty", "", ""},
		{"nil", nil, ""},
		{"number", 42.0, ""},
		{"bool", true, ""},
		{"object", map[string]any{"a": "b"}, ""},
		{"array", []any{"a"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Plain(tt.in); got != tt.want {
				t.Errorf("Plain(%#v) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestEmail(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{"  Jan@Example.COM ", "jan@example.com"},
		{"a<b>@c.com", "a&lt;b&gt;@c.com"},
		{nil, ""},
		{12, ""},
	}

	for _, tt := range tests {
		if got := Email(tt.in); got != tt.want {
			t.Errorf("Email(%#v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMultiline(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"keeps line breaks", "line one\nline two", "line one\nline two"},
		{"normalizes CRLF and CR", "a\r\nb\rc", "a\nb\nc"},
		{"collapses blank runs", "a\n\n\n\n\nb", "a\n\nb"},
		{"keeps double break", "a\n\nb", "a\n\nb"},
		{"keeps inline whitespace", "a    b\tc", "a    b\tc"},
		{"trims outer whitespace", "\n\n  hello  \n", "hello"},
		{"escapes", "<script>x</script>", "&lt;script&gt;x&lt;/script&gt;"},
		{"non-string", []any{1, 2}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Multiline(tt.in); got != tt.want {
				t.Errorf("Multiline(%#v) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestPlainIdempotentWithoutEscapableChars(t *testing.T) {
	inputs := []string{
		"Jan Kowalski",
		"   spaced    out   text ",
		"tabs\tand\nnewlines",
		"Zażółć gęślą jaźń",
		"",
	}
	for _, in := range inputs {
		once := Plain(in)
		if twice := Plain(once); twice != once {
			t.Errorf("Plain not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestEscapingAppliedOnce(t *testing.T) {
	got := Plain("Tom & Jerry")
	if got != "Tom &amp; Jerry" {
		t.Fatalf("Plain = %q, want single escaping", got)
	}
	if Unescape(got) != "Tom & Jerry" {
		t.Errorf("Unescape(%q) = %q", got, Unescape(got))
	}
}
