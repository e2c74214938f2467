package allocation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProportions_DiffIsAntisymmetric(t *testing.T) {
	tests := []struct {
		name string
		a    map[string]float64
		b    map[string]float64
	}{
		{
			name: "same keys",
			a:    map[string]float64{"bonds": 0.3, "us_stocks": 0.7},
			b:    map[string]float64{"bonds": 0.1, "us_stocks": 0.9},
		},
		{
			name: "disjoint keys",
			a:    map[string]float64{"bonds": 0.4},
			b:    map[string]float64{"cash": 0.25, "int_stocks": 0.75},
		},
		{
			name: "empty operand",
			a:    map[string]float64{},
			b:    map[string]float64{"cash": 1.0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, b := New(tt.a), New(tt.b)
			ab := a.Diff(b)
			ba := b.Diff(a)

			assert.Equal(t, ab.Types(), ba.Types())
			for _, k := range ab.Types() {
				x, err := ab.Get(k)
				require.NoError(t, err)
				y, err := ba.Get(k)
				require.NoError(t, err)
				assert.Equal(t, x, -y, "type %s", k)
			}
		})
	}
}

func TestProportions_DiffTreatsMissingAsZero(t *testing.T) {
	target := New(map[string]float64{"bonds": 0.2, "us_stocks": 0.8})
	current := New(map[string]float64{"cash": 0.5, "us_stocks": 0.5})

	d := target.Diff(current)

	assert.Equal(t, []string{"bonds", "cash", "us_stocks"}, d.Types())
	v, _ := d.Get("bonds")
	assert.InDelta(t, 0.2, v, 1e-12)
	v, _ = d.Get("cash")
	assert.InDelta(t, -0.5, v, 1e-12)
	v, _ = d.Get("us_stocks")
	assert.InDelta(t, 0.3, v, 1e-12)
}

func TestProportions_DiffDoesNotMutate(t *testing.T) {
	a := New(map[string]float64{"bonds": 0.5})
	b := New(map[string]float64{"bonds": 0.2, "cash": 0.1})
	_ = a.Diff(b)

	assert.Equal(t, map[string]float64{"bonds": 0.5}, a.Map())
	assert.Equal(t, map[string]float64{"bonds": 0.2, "cash": 0.1}, b.Map())
}

func TestProportions_GetUnknownType(t *testing.T) {
	p := New(map[string]float64{"bonds": 1.0})
	_, err := p.Get("gold")
	assert.ErrorIs(t, err, ErrUnknownType)
	assert.False(t, p.Has("gold"))
}

func TestProportions_Ranked(t *testing.T) {
	p := New(map[string]float64{
		"bonds":      0.05,
		"cash":       0.50,
		"int_stocks": 0.05,
		"other":      0.30,
		"us_stocks":  -0.10,
	})

	ranked := p.Ranked("cash", "other")

	require.Len(t, ranked, 3)
	assert.Equal(t, "bonds", ranked[0].Type)
	assert.Equal(t, "int_stocks", ranked[1].Type)
	assert.Equal(t, "us_stocks", ranked[2].Type)
}

func TestProportions_SumAndString(t *testing.T) {
	p := New(map[string]float64{"us_stocks": 0.6, "bonds": 0.3, "cash": 0.1})
	assert.InDelta(t, 1.0, p.Sum(), 1e-12)
	assert.Equal(t, "'bonds': 0.3000, 'cash': 0.1000, 'us_stocks': 0.6000", p.String())
}
