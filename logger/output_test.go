package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShouldOutputThresholds(t *testing.T) {
	tests := []struct {
		name      string
		verbosity int
		category  OutputCategory
		want      bool
	}{
		{"results always shown", VerbosityUser, OutputResults, true},
		{"errors always shown", VerbosityUser, OutputErrors, true},
		{"progress hidden by default", VerbosityUser, OutputProgress, false},
		{"progress shown at -v", VerbosityInfo, OutputProgress, true},
		{"gate decisions hidden at -v", VerbosityInfo, OutputGateDecisions, false},
		{"gate decisions shown at -vv", VerbosityDebug, OutputGateDecisions, true},
		{"leases hidden at -vv", VerbosityDebug, OutputLeases, false},
		{"leases shown at -vvv", VerbosityTrace, OutputLeases, true},
		{"payloads only at -vvvv", VerbosityTrace, OutputPayloads, false},
		{"payloads shown at -vvvv", VerbosityAll, OutputPayloads, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldOutput(tt.verbosity, tt.category))
		})
	}
}

func TestEnabledCategoriesGrowWithVerbosity(t *testing.T) {
	prev := 0
	for v := VerbosityUser; v <= VerbosityAll; v++ {
		n := len(EnabledCategories(v))
		assert.Greater(t, n, prev, "verbosity %d should enable more categories than %d", v, v-1)
		prev = n
	}
}

func TestCategoryName(t *testing.T) {
	assert.Equal(t, "gate-decisions", CategoryName(OutputGateDecisions))
	assert.Equal(t, "leases", CategoryName(OutputLeases))
	assert.Equal(t, "unknown", CategoryName(OutputCategory(999)))
}

func TestVerbosityToLevelMonotonic(t *testing.T) {
	assert.True(t, VerbosityToLevel(VerbosityUser) > VerbosityToLevel(VerbosityInfo))
	assert.True(t, VerbosityToLevel(VerbosityInfo) > VerbosityToLevel(VerbosityDebug))
	assert.Equal(t, VerbosityToLevel(VerbosityDebug), VerbosityToLevel(VerbosityAll))
}
