package crystal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSymOp(t *testing.T) {
	tests := []struct {
		input string
		in    [3]float64
		want  [3]float64
	}{
		{"x, y, z", [3]float64{0.1, 0.2, 0.3}, [3]float64{0.1, 0.2, 0.3}},
		{"-x, -y, -z", [3]float64{0.1, 0.2, 0.3}, [3]float64{-0.1, -0.2, -0.3}},
		{"-x+1/2, y, z+0.25", [3]float64{0.1, 0.2, 0.3}, [3]float64{0.4, 0.2, 0.55}},
		{"x-y, x, z", [3]float64{0.5, 0.25, 0}, [3]float64{0.25, 0.5, 0}},
		{"1/2+x, +y, -z", [3]float64{0, 0, 0.5}, [3]float64{0.5, 0, -0.5}},
		{"2*x, 1/2*y, z", [3]float64{0.25, 0.5, 0}, [3]float64{0.5, 0.25, 0}},
		{"X, Y, Z", [3]float64{0.1, 0.2, 0.3}, [3]float64{0.1, 0.2, 0.3}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			op, err := ParseSymOp(tt.input)
			require.NoError(t, err)
			got := op.Apply(tt.in)
			assert.InDeltaSlice(t, tt.want[:], got[:], 1e-12)
		})
	}
}

func TestParseSymOp_Errors(t *testing.T) {
	for _, input := range []string{"x, y", "x, y, ", "x, y, q", "x, y, z+", "x, y, 1/0", "x, y, xz"} {
		_, err := ParseSymOp(input)
		assert.Error(t, err, input)
	}
}

func TestExpand(t *testing.T) {
	mirror, err := ParseSymOp("x, y, -z")
	require.NoError(t, err)

	sites := []Site{
		{Label: "Mo", Species: "Mo", Frac: [3]float64{0, 0, 0.5}, Occupancy: 1},
		{Label: "S", Species: "S", Frac: [3]float64{1.0 / 3, 2.0 / 3, 0.1}, Occupancy: 1},
	}
	out := Expand(sites, []SymOp{Identity, mirror})
	require.Len(t, out, 3)
	assert.InDelta(t, 0.9, out[2].Frac[2], 1e-12)

	assert.Len(t, Expand(sites, nil), 2)
}

func TestWrap(t *testing.T) {
	got := wrap([3]float64{-0.25, 1.0, 0.9999999999})
	assert.InDeltaSlice(t, []float64{0.75, 0, 0}, got[:], 1e-12)
}
