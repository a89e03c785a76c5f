package version

import (
	"regexp"
	"strings"
)

// Initial is the tag used when no existing tag can be parsed.
const Initial = "v1.0.0"

var semverPattern = regexp.MustCompile(`^(v?)(\d+)(?:\.(\d+))?(?:\.(\d+))?$`)

// =============================================================================
// Tag
// =============================================================================

// Kind distinguishes the two tag shapes the resolver understands.
type Kind int

const (
	KindTriple Kind = iota + 1
	KindInteger
)

// Tag is the parsed form of a tag string. Numeric parts are kept as
// decimal digits without leading zeros so tags of any length compare and
// bump exactly.
type Tag struct {
	Kind    Kind
	Major   string
	Minor   string
	Patch   string
	Integer string
}

// Less reports whether t sorts before other. Both tags must share a kind.
func (t Tag) Less(other Tag) bool {
	if t.Kind == KindInteger {
		return compareDecimal(t.Integer, other.Integer) < 0
	}
	if c := compareDecimal(t.Major, other.Major); c != 0 {
		return c < 0
	}
	if c := compareDecimal(t.Minor, other.Minor); c != 0 {
		return c < 0
	}
	return compareDecimal(t.Patch, other.Patch) < 0
}

// String formats the tag the way it is written on an image.
func (t Tag) String() string {
	if t.Kind == KindInteger {
		return t.Integer
	}
	return "v" + t.Major + "." + t.Minor + "." + t.Patch
}

// =============================================================================
// Parsing
// =============================================================================

// TagPart returns the part of an image reference after its last colon.
// A string without a colon is returned unchanged.
//
// Example:
//
//	TagPart("registry:5000/app:v1.2") // returns "v1.2"
func TagPart(ref string) string {
	if i := strings.LastIndex(ref, ":"); i >= 0 {
		return ref[i+1:]
	}
	return ref
}

// Parse parses an image reference or bare tag.
// Digits alone are an integer tag; a leading v or any dot makes a triple
// with missing parts defaulting to zero.
func Parse(ref string) (Tag, bool) {
	m := semverPattern.FindStringSubmatch(TagPart(ref))
	if m == nil {
		return Tag{}, false
	}

	if m[1] == "" && m[3] == "" {
		return Tag{Kind: KindInteger, Integer: canonical(m[2])}, true
	}

	var parts [3]string
	for i, d := range m[2:5] {
		parts[i] = canonical(d)
	}
	return Tag{Kind: KindTriple, Major: parts[0], Minor: parts[1], Patch: parts[2]}, true
}

// =============================================================================
// Resolution
// =============================================================================

// Next returns the tag that follows every tag in refs.
// Triples take precedence over integers regardless of magnitude.
//
// Example:
//
//	Next([]string{"app:v1.2.3", "app:v2.0.0"}) // returns "v2.0.1"
//	Next([]string{"app:3", "app:7"})           // returns "8"
//	Next(nil)                                  // returns "v1.0.0"
func Next(refs []string) string {
	var (
		maxTriple, maxInt Tag
		haveTriple        bool
		haveInt           bool
	)

	for _, ref := range refs {
		tag, ok := Parse(ref)
		if !ok {
			continue
		}
		switch tag.Kind {
		case KindTriple:
			if !haveTriple || maxTriple.Less(tag) {
				maxTriple = tag
				haveTriple = true
			}
		case KindInteger:
			if !haveInt || maxInt.Less(tag) {
				maxInt = tag
				haveInt = true
			}
		}
	}

	switch {
	case haveTriple:
		return maxTriple.Bump()
	case haveInt:
		return maxInt.Bump()
	default:
		return Initial
	}
}

// Bump returns the tag one above t: the patch of a triple or the value of
// an integer plus one.
func (t Tag) Bump() string {
	if t.Kind == KindInteger {
		return incrementDecimal(t.Integer)
	}
	return "v" + t.Major + "." + t.Minor + "." + incrementDecimal(t.Patch)
}

// =============================================================================
// Decimal Digits
// =============================================================================

// canonical strips leading zeros. An empty string is zero.
func canonical(digits string) string {
	digits = strings.TrimLeft(digits, "0")
	if digits == "" {
		return "0"
	}
	return digits
}

// compareDecimal compares two canonical digit strings.
func compareDecimal(a, b string) int {
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}

// incrementDecimal adds one to a string of decimal digits.
func incrementDecimal(digits string) string {
	b := []byte(digits)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < '9' {
			b[i]++
			return string(b)
		}
		b[i] = '0'
	}
	return "1" + string(b)
}
