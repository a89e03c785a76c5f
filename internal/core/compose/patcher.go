package compose

import (
	"regexp"
	"strings"
)

var tagPattern = regexp.MustCompile(`^[\w.-]+$`)

// =============================================================================
// Image Version Patching
// =============================================================================

// imageRefPattern matches `image:` + whitespace + base + `:` + existing tag.
func imageRefPattern(base string) *regexp.Regexp {
	return regexp.MustCompile(`(image:\s*` + regexp.QuoteMeta(base) + `:)[\w.-]+`)
}

// PatchImageVersion rewrites the tag of every `image: base:<tag>` reference
// in doc to tag. Only the tag token changes; the rest of the document is
// returned byte for byte. A document that never mentions base is returned
// unchanged.
//
// The match is textual. Commented-out references are rewritten as well, and
// a quoted reference (image: "svc:v1") is left alone because the quote sits
// between `image:` and the base name.
//
// Example:
//
//	PatchImageVersion("image: svc:v1.0.0", "svc", "v1.0.1") // "image: svc:v1.0.1"
func PatchImageVersion(doc, base, tag string) (string, error) {
	if base == "" {
		return doc, NewPatchError(base, tag, "base name is required", ErrEmptyBaseName)
	}
	if !tagPattern.MatchString(tag) {
		return doc, NewPatchError(base, tag, "tag must be letters, digits, '.', '-' or '_'", ErrInvalidTag)
	}

	re := imageRefPattern(base)
	return re.ReplaceAllStringFunc(doc, func(match string) string {
		// The old tag never contains a colon, so the prefix ends at the last one.
		return match[:strings.LastIndex(match, ":")+1] + tag
	}), nil
}

// CountImageReferences returns how many `image: base:<tag>` references
// PatchImageVersion would rewrite.
func CountImageReferences(doc, base string) int {
	if base == "" {
		return 0
	}
	return len(imageRefPattern(base).FindAllStringIndex(doc, -1))
}

// =============================================================================
// Image Reference Scanning
// =============================================================================

// ImageMatch is one reference to an image base name inside a document.
type ImageMatch struct {
	Image string `json:"image"` // as written, without quotes
	Tag   string `json:"tag"`   // "latest" when the reference is untagged
}

// FindImageReferences returns every reference to base in doc, tagged or not,
// quoted or not.
//
// Example:
//
//	FindImageReferences("image: \"svc:v2\"", "svc") // [{Image: "svc:v2", Tag: "v2"}]
func FindImageReferences(doc, base string) []ImageMatch {
	if base == "" {
		return nil
	}

	re := regexp.MustCompile(`(?m)image:\s*["']?(` + regexp.QuoteMeta(base) + `(?::([^\s"'#]+))?)["']?(?:\s|$)`)

	var matches []ImageMatch
	for _, m := range re.FindAllStringSubmatch(doc, -1) {
		tag := m[2]
		if tag == "" {
			tag = "latest"
		}
		matches = append(matches, ImageMatch{Image: m[1], Tag: tag})
	}
	return matches
}
