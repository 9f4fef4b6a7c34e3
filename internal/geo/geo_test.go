package geo

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "geosats/pkg/domain-errors"
)

var goldenGate = Coordinate{Latitude: 37.8199, Longitude: -122.4783}

func TestDistance_IdentityAndSymmetry(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for range 500 {
		a := Coordinate{Latitude: r.Float64()*180 - 90, Longitude: r.Float64()*360 - 180}
		b := Coordinate{Latitude: r.Float64()*180 - 90, Longitude: r.Float64()*360 - 180}

		assert.InDelta(t, 0, Distance(a, a), 1e-9)
		assert.InDelta(t, Distance(a, b), Distance(b, a), 1e-9)
		assert.GreaterOrEqual(t, Distance(a, b), 0.0)
	}
}

func TestDistance_KnownValues(t *testing.T) {
	t.Run("0.001 degree of latitude is about 111 m", func(t *testing.T) {
		offset := Coordinate{Latitude: goldenGate.Latitude + 0.001, Longitude: goldenGate.Longitude}
		assert.InEpsilon(t, 0.111, Distance(goldenGate, offset), 0.01)
	})

	t.Run("San Francisco to New York", func(t *testing.T) {
		sf := Coordinate{Latitude: 37.7749, Longitude: -122.4194}
		nyc := Coordinate{Latitude: 40.7128, Longitude: -74.0060}
		assert.InEpsilon(t, 4129, Distance(sf, nyc), 0.01)
	})

	t.Run("antipodal points stay finite", func(t *testing.T) {
		d := Distance(Coordinate{0, 0}, Coordinate{0, 180})
		assert.InEpsilon(t, 20015.1, d, 0.001)
	})
}

func TestWithin_BoundaryInclusive(t *testing.T) {
	offset := Coordinate{Latitude: goldenGate.Latitude + 0.001, Longitude: goldenGate.Longitude}
	d := Distance(goldenGate, offset)
	assert.True(t, Within(goldenGate, offset, d))
	assert.False(t, Within(goldenGate, offset, d-1e-9))
}

func TestNewCoordinate_Ranges(t *testing.T) {
	tests := []struct {
		name     string
		lat, lng float64
		wantErr  bool
	}{
		{"origin", 0, 0, false},
		{"poles and antimeridian", 90, -180, false},
		{"latitude too high", 90.0001, 0, true},
		{"latitude too low", -91, 0, true},
		{"longitude too high", 0, 180.5, true},
		{"longitude too low", 0, -181, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCoordinate(tt.lat, tt.lng)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidCoordinate)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestParseCoordinate(t *testing.T) {
	c, err := ParseCoordinate("37.774900", "-122.419400")
	require.NoError(t, err)
	assert.Equal(t, Coordinate{Latitude: 37.7749, Longitude: -122.4194}, c)

	_, err = ParseCoordinate("", "1")
	require.ErrorIs(t, err, ErrInvalidCoordinate)

	_, err = ParseCoordinate("NaN", "1")
	require.ErrorIs(t, err, ErrInvalidCoordinate)
}

func TestFormatDistance(t *testing.T) {
	assert.Equal(t, "0m", FormatDistance(0))
	assert.Equal(t, "100m", FormatDistance(0.1))
	assert.Equal(t, "999m", FormatDistance(0.9994))
	assert.Equal(t, "1.0km", FormatDistance(1))
	assert.Equal(t, "12.3km", FormatDistance(12.34))
}
