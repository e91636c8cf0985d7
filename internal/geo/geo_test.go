package geo

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustCoord(t *testing.T, lat, lon float64) Coordinate {
	t.Helper()
	c, err := NewCoordinate(lat, lon)
	require.NoError(t, err)
	return c
}

func TestNewCoordinate_Validation(t *testing.T) {
	testCases := []struct {
		name    string
		lat     float64
		lon     float64
		wantErr bool
	}{
		{name: "origin", lat: 0, lon: 0},
		{name: "north pole", lat: 90, lon: 0},
		{name: "antimeridian", lat: -10, lon: -180},
		{name: "lat too high", lat: 90.0001, lon: 0, wantErr: true},
		{name: "lat too low", lat: -91, lon: 0, wantErr: true},
		{name: "lon too high", lat: 0, lon: 180.5, wantErr: true},
		{name: "NaN", lat: math.NaN(), lon: 0, wantErr: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewCoordinate(tc.lat, tc.lon)
			if tc.wantErr {
				require.Error(t, err)
				require.True(t, errors.Is(err, ErrInvalidCoordinate))
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestCoordinate_NegativeAccuracyInvalid(t *testing.T) {
	c := mustCoord(t, 10, 10).WithAccuracy(-1)
	require.ErrorIs(t, c.Validate(), ErrInvalidCoordinate)
}

func TestCoordinate_WithAccuracyDoesNotAlias(t *testing.T) {
	base := mustCoord(t, 10, 10)
	a := base.WithAccuracy(5)
	b := a.WithAccuracy(50)
	acc, ok := a.Accuracy()
	require.True(t, ok)
	assert.Equal(t, 5.0, acc)
	acc, _ = b.Accuracy()
	assert.Equal(t, 50.0, acc)
	_, ok = base.Accuracy()
	assert.False(t, ok)
}

func TestDistanceMeters_Identity(t *testing.T) {
	for _, c := range []Coordinate{
		{Lat: 0, Lon: 0},
		{Lat: 40, Lon: -74},
		{Lat: -89.9, Lon: 179.9},
	} {
		assert.Equal(t, 0.0, DistanceMeters(c, c))
	}
}

func TestDistanceMeters_Symmetry(t *testing.T) {
	pts := []Coordinate{
		{Lat: 40, Lon: -74},
		{Lat: 51.5, Lon: -0.12},
		{Lat: -33.86, Lon: 151.2},
		{Lat: 40.0001, Lon: -74.0002},
		{Lat: 0, Lon: 179},
	}
	for _, a := range pts {
		for _, b := range pts {
			ab := DistanceMeters(a, b)
			ba := DistanceMeters(b, a)
			assert.InDelta(t, ab, ba, 1e-6*math.Max(1, ab))
		}
	}
}

func TestDistanceMeters_TriangleInequality(t *testing.T) {
	a := Coordinate{Lat: 40, Lon: -74}
	b := Coordinate{Lat: 40.01, Lon: -74.01}
	c := Coordinate{Lat: 40.02, Lon: -73.995}
	assert.LessOrEqual(t, DistanceMeters(a, c), DistanceMeters(a, b)+DistanceMeters(b, c)+1e-6)
}

func TestDistanceMeters_KnownValues(t *testing.T) {
	// 一度纬度约 111.195km（R=6371km）
	a := Coordinate{Lat: 0, Lon: 0}
	b := Coordinate{Lat: 1, Lon: 0}
	assert.InDelta(t, 111195, DistanceMeters(a, b), 1)

	// 纽约 - 伦敦约 5570km
	ny := Coordinate{Lat: 40.7128, Lon: -74.0060}
	ld := Coordinate{Lat: 51.5074, Lon: -0.1278}
	assert.InDelta(t, 5570000, DistanceMeters(ny, ld), 10000)
}

func TestBearingDegrees(t *testing.T) {
	o := Coordinate{Lat: 40, Lon: -74}
	testCases := []struct {
		name string
		to   Coordinate
		want float64
	}{
		{name: "north", to: Coordinate{Lat: 41, Lon: -74}, want: 0},
		{name: "south", to: Coordinate{Lat: 39, Lon: -74}, want: 180},
		{name: "east", to: Coordinate{Lat: 40, Lon: -73.99}, want: 90},
		{name: "west", to: Coordinate{Lat: 40, Lon: -74.01}, want: 270},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := BearingDegrees(o, tc.to)
			assert.GreaterOrEqual(t, got, 0.0)
			assert.Less(t, got, 360.0)
			assert.InDelta(t, tc.want, got, 0.01)
		})
	}
}

func TestDestinationPoint_RoundTrip(t *testing.T) {
	o := Coordinate{Lat: 40, Lon: -74}
	for _, bearing := range []float64{0, 45, 90, 135, 180, 225, 270, 315} {
		for _, dist := range []float64{10, 500, 5000} {
			p := DestinationPoint(o, dist, bearing)
			require.NoError(t, p.Validate())
			assert.InDelta(t, dist, DistanceMeters(o, p), dist*1e-6+1e-6)
			back := BearingDegrees(o, p)
			diff := math.Abs(back - bearing)
			if diff > 180 {
				diff = 360 - diff
			}
			assert.Less(t, diff, 0.01)
		}
	}
}

func TestDestinationPoint_NormalisesLongitude(t *testing.T) {
	p := DestinationPoint(Coordinate{Lat: 0, Lon: 179.999}, 1000, 90)
	assert.GreaterOrEqual(t, p.Lon, -180.0)
	assert.Less(t, p.Lon, 180.0)
}

func TestBoundingBox(t *testing.T) {
	_, err := BoundingBox(nil)
	require.ErrorIs(t, err, ErrEmptyInput)

	b, err := BoundingBox([]Coordinate{{Lat: 1, Lon: 5}, {Lat: -2, Lon: 3}, {Lat: 0.5, Lon: 7}})
	require.NoError(t, err)
	assert.Equal(t, Bounds{MinLat: -2, MaxLat: 1, MinLon: 3, MaxLon: 7}, b)
	assert.True(t, b.Contains(Coordinate{Lat: 0, Lon: 4}))
	assert.True(t, b.Contains(Coordinate{Lat: 1, Lon: 7}))
	assert.False(t, b.Contains(Coordinate{Lat: 2, Lon: 4}))
}

func TestGeohash(t *testing.T) {
	c := Coordinate{Lat: 57.64911, Lon: 10.40744}
	assert.Equal(t, "u4pruydqqvj", Geohash(c, 11))
	assert.Equal(t, "u4pru", Geohash(c, 5))
	assert.Equal(t, "", Geohash(c, 0))
}

func TestToWGS84(t *testing.T) {
	// 境外坐标不做偏移
	paris := Coordinate{Lat: 48.8566, Lon: 2.3522}
	assert.Equal(t, paris, ToWGS84(paris, GCJ02))

	// 北京 GCJ-02 与 WGS84 偏差在数百米量级
	bj := Coordinate{Lat: 39.9087, Lon: 116.3975}.WithAccuracy(8)
	w := ToWGS84(bj, GCJ02)
	d := DistanceMeters(bj, w)
	assert.Greater(t, d, 100.0)
	assert.Less(t, d, 1000.0)
	acc, ok := w.Accuracy()
	require.True(t, ok)
	assert.Equal(t, 8.0, acc)

	// BD-09 再叠加约数百米
	assert.Greater(t, DistanceMeters(bj, ToWGS84(bj, BD09)), d)
	assert.Equal(t, bj, ToWGS84(bj, WGS84))
}

func TestParseCoordSystem(t *testing.T) {
	assert.Equal(t, GCJ02, ParseCoordSystem("gcj-02"))
	assert.Equal(t, GCJ02, ParseCoordSystem("GCJ02"))
	assert.Equal(t, BD09, ParseCoordSystem("bd-09"))
	assert.Equal(t, WGS84, ParseCoordSystem(""))
	assert.Equal(t, WGS84, ParseCoordSystem("mercator"))
}
