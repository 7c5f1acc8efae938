package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		in   string
		want TimingPolicy
	}{
		{"", Absolute()},
		{"absolute", Absolute()},
		{"Relative", Relative()},
		{"mixed(0.8)", Mixed(0.8)},
		{"0.25", Mixed(0.25)},
	}
	for _, tt := range tests {
		got, err := ParsePolicy(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	for _, bad := range []string{"sometimes", "mixed(2)", "-0.1"} {
		_, err := ParsePolicy(bad)
		assert.Error(t, err, bad)
	}
}

func TestTimingPolicy_String(t *testing.T) {
	assert.Equal(t, "absolute", Absolute().String())
	assert.Equal(t, "relative", Relative().String())
	assert.Equal(t, "mixed(0.5)", Mixed(0.5).String())
	assert.Equal(t, "mixed(1)", Mixed(7).String())
}

func TestTimingPolicy_Deadline(t *testing.T) {
	// Session started at wall 10. The previous wake was logical 4 but
	// happened late, at wall 14.3. The next wake is logical 6.
	const anchor, lastWall, lastLogical, wake = 10.0, 14.3, 4.0, 6.0

	assert.InDelta(t, 16.0, Absolute().deadline(anchor, lastWall, lastLogical, wake), 1e-12,
		"absolute timing absorbs the lateness")
	assert.InDelta(t, 16.3, Relative().deadline(anchor, lastWall, lastLogical, wake), 1e-12,
		"relative timing waits the full delta")
	assert.InDelta(t, 16.0, Mixed(0.5).deadline(anchor, lastWall, lastLogical, wake), 1e-12,
		"half the delta from 14.3 is 15.3, earlier than the absolute deadline")
	assert.InDelta(t, 16.1, Mixed(0.9).deadline(anchor, lastWall, lastLogical, wake), 1e-12)
}
