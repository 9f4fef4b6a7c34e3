// Package geo holds the coordinate value type and great-circle math.
package geo

import (
	"fmt"
	"math"
	"strconv"

	dErrors "geosats/pkg/domain-errors"
)

// EarthRadiusKm is the mean Earth radius used by Distance.
const EarthRadiusKm = 6371.0

// ErrInvalidCoordinate is returned for latitudes outside [-90,90], longitudes
// outside [-180,180], and non-finite values.
var ErrInvalidCoordinate = dErrors.New(dErrors.CodeValidation, "coordinate out of range")

// Coordinate is an immutable WGS 84 point in decimal degrees.
type Coordinate struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
}

// NewCoordinate validates ranges and returns the point.
func NewCoordinate(lat, lng float64) (Coordinate, error) {
	c := Coordinate{Latitude: lat, Longitude: lng}
	if err := c.Validate(); err != nil {
		return Coordinate{}, err
	}
	return c, nil
}

// ParseCoordinate parses decimal-degree strings as sent by forms and query strings.
func ParseCoordinate(lat, lng string) (Coordinate, error) {
	la, err := strconv.ParseFloat(lat, 64)
	if err != nil {
		return Coordinate{}, fmt.Errorf("latitude %q: %w", lat, ErrInvalidCoordinate)
	}
	lo, err := strconv.ParseFloat(lng, 64)
	if err != nil {
		return Coordinate{}, fmt.Errorf("longitude %q: %w", lng, ErrInvalidCoordinate)
	}
	return NewCoordinate(la, lo)
}

func (c Coordinate) Validate() error {
	if math.IsNaN(c.Latitude) || math.IsNaN(c.Longitude) ||
		c.Latitude < -90 || c.Latitude > 90 ||
		c.Longitude < -180 || c.Longitude > 180 {
		return ErrInvalidCoordinate
	}
	return nil
}

func (c Coordinate) String() string {
	return fmt.Sprintf("%.4f, %.4f", c.Latitude, c.Longitude)
}

// Distance returns the haversine great-circle distance between a and b in kilometers.
func Distance(a, b Coordinate) float64 {
	dLat := toRadians(b.Latitude - a.Latitude)
	dLng := toRadians(b.Longitude - a.Longitude)
	lat1 := toRadians(a.Latitude)
	lat2 := toRadians(b.Latitude)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	// rounding can push h a hair past 1 for antipodal points
	h = math.Min(1, math.Max(0, h))
	return EarthRadiusKm * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// Within reports whether b lies within radiusKm of a, inclusive of the boundary.
func Within(a, b Coordinate, radiusKm float64) bool {
	return Distance(a, b) <= radiusKm
}

// FormatDistance renders a distance for display: meters below 1 km, otherwise
// kilometers with one decimal.
func FormatDistance(km float64) string {
	if km < 1 {
		return fmt.Sprintf("%dm", int(math.Round(km*1000)))
	}
	return fmt.Sprintf("%.1fkm", km)
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
