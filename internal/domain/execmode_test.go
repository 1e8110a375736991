package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutionModes_HybridPair(t *testing.T) {
	var hybrids []ExecutionMode
	for _, mode := range AllModes() {
		if mode.Info().IsHybrid() {
			hybrids = append(hybrids, mode)
		}
	}
	require.Len(t, hybrids, 2)
	assert.Contains(t, hybrids, ModeFastCompressed)
	assert.Contains(t, hybrids, ModePrivateCompressed)
}

func TestExecutionModes_Metadata(t *testing.T) {
	standard := ModeStandard.Info()
	assert.Equal(t, 1.0, standard.CostMultiplier)

	for _, mode := range AllModes() {
		info := mode.Info()
		assert.Positive(t, info.EstLatencyMs, "%s latency", mode)
		assert.GreaterOrEqual(t, info.CostMultiplier, 0.0, "%s cost", mode)
		if info.IsHybrid() {
			assert.LessOrEqual(t, info.CostMultiplier, standard.CostMultiplier/100,
				"%s hybrids ride compressed accounts, at least 100x cheaper", mode)
		}
	}
}

func TestExecutionModes_PrivateVariants(t *testing.T) {
	for _, mode := range AllModes() {
		info := mode.Info()
		isPrivateVariant := mode == ModePrivate || mode == ModePrivateCompressed
		assert.Equal(t, isPrivateVariant, info.IsPrivate, "%s", mode)
	}
}

func TestExecutionMode_UnknownFallsBackToStandard(t *testing.T) {
	info := ExecutionMode("TURBO").Info()
	assert.Equal(t, ModeStandard, info.Mode)
}
