package severity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var all = []Severity{NotApplicable, Passed, Warning, Failed}

func TestCombineKeepsWorst(t *testing.T) {
	assert.Equal(t, Warning, Combine(Passed, Warning))
	assert.Equal(t, Failed, Combine(Failed, Warning))
	assert.Equal(t, Passed, Combine(Passed, NotApplicable))
}

func TestCombineCommutative(t *testing.T) {
	for _, a := range all {
		for _, b := range all {
			assert.Equal(t, Combine(a, b), Combine(b, a), "combine(%s,%s)", a, b)
		}
	}
}

func TestCombineAssociative(t *testing.T) {
	for _, a := range all {
		for _, b := range all {
			for _, c := range all {
				assert.Equal(t, Combine(Combine(a, b), c), Combine(a, Combine(b, c)))
			}
		}
	}
}

func TestNotApplicableIsIdentity(t *testing.T) {
	for _, s := range all {
		assert.Equal(t, s, Combine(s, NotApplicable))
		assert.Equal(t, s, Combine(NotApplicable, s))
	}
}

func TestCombineAll(t *testing.T) {
	assert.Equal(t, Warning, CombineAll(Warning, Passed, NotApplicable))
	assert.Equal(t, NotApplicable, CombineAll())
}

func TestSuspicious(t *testing.T) {
	assert.False(t, NotApplicable.Suspicious())
	assert.False(t, Passed.Suspicious())
	assert.True(t, Warning.Suspicious())
	assert.True(t, Failed.Suspicious())
}

func TestString(t *testing.T) {
	assert.Equal(t, "WARNING", Warning.String())
	assert.Equal(t, "NOT_APPLICABLE", Severity(99).String())
}
