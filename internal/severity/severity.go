// Package severity defines the ordered scale used to merge tamper signals:
// NOT_APPLICABLE < PASSED < WARNING < FAILED. Combining two severities keeps
// the worst one, so NOT_APPLICABLE acts as the neutral element.
package severity

// Severity is one level on the scale.
type Severity int

const (
	NotApplicable Severity = iota
	Passed
	Warning
	Failed
)

var names = map[Severity]string{
	NotApplicable: "NOT_APPLICABLE",
	Passed:        "PASSED",
	Warning:       "WARNING",
	Failed:        "FAILED",
}

func (s Severity) String() string {
	if name, ok := names[s]; ok {
		return name
	}
	return "NOT_APPLICABLE"
}

// Combine returns the worse of the two severities. It is associative and
// commutative, with NotApplicable as identity.
func Combine(a, b Severity) Severity {
	if b > a {
		return b
	}
	return a
}

// CombineAll folds Combine over the given severities.
func CombineAll(severities ...Severity) Severity {
	combined := NotApplicable
	for _, s := range severities {
		combined = Combine(combined, s)
	}
	return combined
}

// Suspicious reports whether the severity warrants a rejection reason.
func (s Severity) Suspicious() bool {
	return s == Warning || s == Failed
}
