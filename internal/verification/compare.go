// Package verification checks an approved-looking document against its
// authoritative source: it retrieves the source's rendition, re-extracts it,
// and compares the two with a programmatic pass followed by model
// arbitration of any residue.
package verification

import (
	"regexp"
	"sort"
	"strings"

	"github.com/Lllllllleong/documentverificationflow/internal/models"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// NormalizeValue canonicalizes a value for comparison. Strings are trimmed,
// upper-cased and internally whitespace-collapsed; maps and slices are
// normalized element-wise; numbers and booleans pass through unchanged.
func NormalizeValue(v interface{}) interface{} {
	switch val := v.(type) {
	case string:
		return whitespaceRun.ReplaceAllString(strings.ToUpper(strings.TrimSpace(val)), " ")
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, inner := range val {
			out[k] = NormalizeValue(inner)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, inner := range val {
			out[i] = NormalizeValue(inner)
		}
		return out
	default:
		return v
	}
}

// Compare runs the programmatic phase over the union of field names across
// both snapshots. A field absent from one side compares as nil, so one-sided
// values surface as mismatches; two nils agree.
func Compare(submitted, authoritative map[string]interface{}) *models.ComparisonResult {
	result := &models.ComparisonResult{
		Match:  true,
		Method: models.ComparisonProgrammatic,
	}
	fields := make([]string, 0, len(submitted)+len(authoritative))
	seen := make(map[string]bool, len(submitted)+len(authoritative))
	for field := range submitted {
		fields = append(fields, field)
		seen[field] = true
	}
	for field := range authoritative {
		if !seen[field] {
			fields = append(fields, field)
		}
	}
	sort.Strings(fields)

	for _, field := range fields {
		subValue := submitted[field]
		authValue := authoritative[field]
		normSub := NormalizeValue(subValue)
		normAuth := NormalizeValue(authValue)
		if equalNormalized(normSub, normAuth) {
			continue
		}
		result.Match = false
		result.Mismatches = append(result.Mismatches, models.Mismatch{
			Field:                   field,
			SubmittedValue:          subValue,
			AuthoritativeValue:      authValue,
			NormalizedSubmitted:     normSub,
			NormalizedAuthoritative: normAuth,
		})
	}
	return result
}

func equalNormalized(a, b interface{}) bool {
	switch av := a.(type) {
	case map[string]interface{}:
		bv, ok := b.(map[string]interface{})
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, inner := range av {
			other, ok := bv[k]
			if !ok || !equalNormalized(inner, other) {
				return false
			}
		}
		return true
	case []interface{}:
		bv, ok := b.([]interface{})
		if !ok || len(av) != len(bv) {
			return false
		}
		for i, inner := range av {
			if !equalNormalized(inner, bv[i]) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}
