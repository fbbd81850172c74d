package hydro

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPeakRunoff(t *testing.T) {
	// 1 km^2 = 247.105 acres.
	assert.InDelta(t, 247.105, PeakRunoff(1e6, 2, 0.5), 1e-9)
	assert.Equal(t, 0.0, PeakRunoff(0, 2, 0.5))
}

func TestPeakRunoff_LinearInEachArgument(t *testing.T) {
	const a, i, c = 2.7e6, 1.3, 0.37
	base := PeakRunoff(a, i, c)

	assert.InDelta(t, 2*base, PeakRunoff(a, i, 2*c), 1e-9)
	assert.InDelta(t, 2*base, PeakRunoff(a, 2*i, c), 1e-9)
	assert.InDelta(t, 2*base, PeakRunoff(2*a, i, c), 1e-9)
}

func TestPeakRunoff_NotClamped(t *testing.T) {
	assert.InDelta(t, 2*PeakRunoff(1e6, 1, 1), PeakRunoff(1e6, 1, 2), 1e-9)
	assert.Less(t, PeakRunoff(1e6, 1, -0.5), 0.0)
}

func TestRunoffVolume(t *testing.T) {
	assert.InDelta(t, 101.94048, RunoffVolume(1, 1), 1e-9)
	assert.InDelta(t, 150*101.94048*10, RunoffVolume(10, 150), 1e-6)
}
