package envfile

import (
	"regexp"
	"strings"
)

const (
	DefaultPrefix = "cryptoEnv_"
	disabledMark  = "#"
	minCipherLen  = 6
)

var base64Value = regexp.MustCompile(`^([0-9a-zA-Z+/]{4})*(([0-9a-zA-Z+/]{2}==)|([0-9a-zA-Z+/]{3}=))?$`)

// Line is one line of an env file. Lines that do not match the grammar keep
// only Raw and are written back verbatim.
type Line struct {
	Raw     string
	Matched bool
	Enabled bool
	Name    string
	Value   string
}

// Encrypted reports whether the line is a matching line holding a
// ciphertext-shaped value.
func (l Line) Encrypted() bool {
	return l.Matched && IsCiphertextShaped(l.Value)
}

// IsCiphertextShaped reports whether value looks like standard Base64 and is
// long enough to be a ciphertext. Short or malformed values are rejected so
// unrelated variables sharing the prefix are never rewritten.
func IsCiphertextShaped(value string) bool {
	return len(value) > minCipherLen && base64Value.MatchString(value)
}

type Direction int

const (
	Enable Direction = iota
	Disable
	Flip
)

func (d Direction) String() string {
	switch d {
	case Enable:
		return "enable"
	case Disable:
		return "disable"
	case Flip:
		return "flip"
	default:
		return "unknown"
	}
}

// Matcher recognizes [#]<prefix><name>=<value> lines for a single prefix.
type Matcher struct {
	prefix string
	re     *regexp.Regexp
}

func NewMatcher(prefix string) *Matcher {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Matcher{
		prefix: prefix,
		re:     regexp.MustCompile(`^(#?)` + regexp.QuoteMeta(prefix) + `([^=]+)=(.*)$`),
	}
}

func (m *Matcher) Prefix() string {
	return m.prefix
}

// Match parses raw. The second result is false for lines outside the grammar.
func (m *Matcher) Match(raw string) (Line, bool) {
	sub := m.re.FindStringSubmatch(raw)
	if sub == nil {
		return Line{Raw: raw}, false
	}
	return Line{
		Raw:     raw,
		Matched: true,
		Enabled: sub[1] == "",
		Name:    sub[2],
		Value:   sub[3],
	}, true
}

// Format renders a variable line.
func (m *Matcher) Format(name, value string, enabled bool) string {
	line := m.prefix + name + "=" + value
	if !enabled {
		line = disabledMark + line
	}
	return line
}

// Toggle applies dir to raw and reports whether the line changed. Only
// matching lines with ciphertext-shaped values are rewritten.
func (m *Matcher) Toggle(raw string, dir Direction) (string, bool) {
	line, ok := m.Match(raw)
	if !ok || !line.Encrypted() {
		return raw, false
	}

	want := line.Enabled
	switch dir {
	case Enable:
		want = true
	case Disable:
		want = false
	case Flip:
		want = !line.Enabled
	}
	if want == line.Enabled {
		return raw, false
	}

	if want {
		return strings.TrimPrefix(raw, disabledMark), true
	}
	return disabledMark + raw, true
}
