package geo

import (
	"testing"

	"github.com/okian/roadwatch/internal/domain/model"
	"github.com/stretchr/testify/assert"
)

func pos(lat, lon float64) model.Position { return model.Position{Latitude: lat, Longitude: lon} }

func TestDistanceMeters(t *testing.T) {
	t.Run("one degree of longitude at the equator", func(t *testing.T) {
		assert.InDelta(t, 111_195, DistanceMeters(pos(0, 0), pos(0, 1)), 1)
	})

	t.Run("identical points", func(t *testing.T) {
		p := pos(43.6563, -79.3888)
		assert.Equal(t, 0.0, DistanceMeters(p, p))
	})

	t.Run("symmetric", func(t *testing.T) {
		a, b := pos(43.6563, -79.3888), pos(43.6600, -79.3800)
		assert.Equal(t, DistanceMeters(a, b), DistanceMeters(b, a))
	})

	t.Run("driver and cyclist a few blocks apart", func(t *testing.T) {
		d := DistanceMeters(pos(43.6563, -79.3888), pos(43.6563, -79.3884))
		assert.InDelta(t, 32.2, d, 0.5)
	})

	t.Run("antipodal points stay finite", func(t *testing.T) {
		d := DistanceMeters(pos(0, 0), pos(0, 180))
		assert.InDelta(t, EarthRadiusMeters*3.141592653589793, d, 1)
	})
}

func TestBearingDegrees(t *testing.T) {
	origin := pos(0, 0)
	assert.InDelta(t, 0, BearingDegrees(origin, pos(1, 0)), 1e-9)
	assert.InDelta(t, 90, BearingDegrees(origin, pos(0, 1)), 1e-9)
	assert.InDelta(t, 180, BearingDegrees(origin, pos(-1, 0)), 1e-9)
	assert.InDelta(t, 270, BearingDegrees(origin, pos(0, -1)), 1e-9)
	assert.Equal(t, 0.0, BearingDegrees(origin, origin))

	b := BearingDegrees(pos(43.6563, -79.3888), pos(43.6563, -79.3884))
	assert.GreaterOrEqual(t, b, 0.0)
	assert.Less(t, b, 360.0)
}

func TestDestinationRoundTrip(t *testing.T) {
	start := pos(43.6563, -79.3888)
	for _, brg := range []float64{10, 45, 90, 200, 315} {
		end := Destination(start, brg, 250)
		assert.InDelta(t, 250, DistanceMeters(start, end), 0.01)
		assert.InDelta(t, brg, BearingDegrees(start, end), 0.01)
	}

	wrapped := Destination(pos(0, 179.9999), 90, 1000)
	assert.Less(t, wrapped.Longitude, 0.0)
}

func TestMidpoint(t *testing.T) {
	a, b := pos(43.65, -79.39), pos(43.66, -79.38)
	m := Midpoint(a, b)
	assert.InDelta(t, DistanceMeters(a, m), DistanceMeters(m, b), 0.01)
}

func TestDegreeConversions(t *testing.T) {
	assert.InDelta(t, 1.0, MetersToLatDegrees(111_195), 1e-4)
	assert.InDelta(t, 1.0, MetersToLonDegrees(111_195, 0), 1e-4)
	assert.InDelta(t, 2.0, MetersToLonDegrees(111_195, 60), 1e-3)
	assert.Equal(t, 360.0, MetersToLonDegrees(10, 90))
}
