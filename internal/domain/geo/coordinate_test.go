package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCoordinateValid(t *testing.T) {
	cases := []struct {
		name  string
		c     Coordinate
		valid bool
	}{
		{"origin", New(0, 0), true},
		{"corners", New(-90, 180), true},
		{"lat too high", New(90.0001, 0), false},
		{"lon too low", New(0, -180.5), false},
		{"nan", New(math.NaN(), 0), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.valid, tc.c.Valid())
			if tc.valid {
				assert.NoError(t, tc.c.Validate())
			} else {
				assert.Error(t, tc.c.Validate())
			}
		})
	}
}

func TestDistance(t *testing.T) {
	london := New(51.505, -0.09)
	assert.Zero(t, Distance(london, london))

	// One degree of latitude is roughly 111.2 km.
	d := Distance(New(0, 0), New(1, 0))
	assert.InDelta(t, 111195, d, 50)
}

func TestFormatting(t *testing.T) {
	c := New(51.505, -0.09)
	assert.Equal(t, "51.505000,-0.090000", c.String())
	assert.Equal(t, "-0.090000,51.505000", c.LonLat())
}
