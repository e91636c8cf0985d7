package signature

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"geo-attendance/internal/geo"
	"geo-attendance/internal/report"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

func newService(t *testing.T, key []byte) *Service {
	t.Helper()
	s, err := New(key)
	require.NoError(t, err)
	return s
}

func TestNew_EmptyKey(t *testing.T) {
	_, err := New(nil)
	require.ErrorIs(t, err, ErrEmptyKey)
}

func TestNew_CopiesKey(t *testing.T) {
	k := append([]byte(nil), testKey...)
	s := newService(t, k)
	c := geo.Coordinate{Lat: 1, Lon: 2}
	sig := s.Sign("u1", c, 1)
	k[0] = 'X'
	assert.Equal(t, sig, s.Sign("u1", c, 1))
}

func TestCanonical(t *testing.T) {
	c := geo.Coordinate{Lat: 40.5, Lon: -74.25}
	assert.Equal(t, "stu-1|-74.25|40.5|1700000000000", Canonical("stu-1", c, 1700000000000))
	assert.Equal(t, "x|0|0|-5", Canonical("x", geo.Coordinate{}, -5))
}

func TestSign_MatchesHMACOverCanonical(t *testing.T) {
	s := newService(t, testKey)
	c := geo.Coordinate{Lat: 40, Lon: -74}
	sig := s.Sign("stu-1", c, 1700000000000)

	h := hmac.New(sha256.New, testKey)
	h.Write([]byte("stu-1|-74|40|1700000000000"))
	assert.Equal(t, hex.EncodeToString(h.Sum(nil)), sig)
	assert.Len(t, sig, 64)
	assert.Equal(t, strings.ToLower(sig), sig)
}

func TestVerify_RoundTrip(t *testing.T) {
	s := newService(t, testKey)
	for i, c := range []geo.Coordinate{
		{Lat: 40, Lon: -74},
		{Lat: -33.8688, Lon: 151.2093},
		{Lat: 0.1 + 0.2, Lon: 1e-9},
	} {
		subject := fmt.Sprintf("stu-%d", i)
		ts := int64(1700000000000 + i)
		r := report.LocationReport{SubjectID: subject, Coordinate: c, TimestampUnixMs: ts, Signature: s.Sign(subject, c, ts)}
		assert.True(t, s.Verify(r))
	}
}

func TestVerify_MutatedFields(t *testing.T) {
	s := newService(t, testKey)
	c := geo.Coordinate{Lat: 40, Lon: -74}
	base := report.LocationReport{SubjectID: "stu-1", Coordinate: c, TimestampUnixMs: 1700000000000}
	base.Signature = s.Sign(base.SubjectID, base.Coordinate, base.TimestampUnixMs)
	require.True(t, s.Verify(base))

	testCases := []struct {
		name   string
		mutate func(r *report.LocationReport)
	}{
		{name: "subject", mutate: func(r *report.LocationReport) { r.SubjectID = "stu-2" }},
		{name: "latitude", mutate: func(r *report.LocationReport) { r.Coordinate.Lat += 1e-7 }},
		{name: "longitude", mutate: func(r *report.LocationReport) { r.Coordinate.Lon -= 1e-7 }},
		{name: "timestamp", mutate: func(r *report.LocationReport) { r.TimestampUnixMs++ }},
		{name: "swapped lat/lon", mutate: func(r *report.LocationReport) {
			r.Coordinate.Lat, r.Coordinate.Lon = r.Coordinate.Lon, r.Coordinate.Lat
		}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r := base
			tc.mutate(&r)
			assert.False(t, s.Verify(r))
		})
	}
}

func TestVerify_AccuracyNotSigned(t *testing.T) {
	s := newService(t, testKey)
	c := geo.Coordinate{Lat: 40, Lon: -74}
	r := report.LocationReport{SubjectID: "a", Coordinate: c.WithAccuracy(5), TimestampUnixMs: 9}
	r.Signature = s.Sign("a", c, 9)
	assert.True(t, s.Verify(r))
}

func TestVerify_WrongKey(t *testing.T) {
	s1 := newService(t, testKey)
	s2 := newService(t, []byte("another-secret-another-secret-00"))
	c := geo.Coordinate{Lat: 40, Lon: -74}
	r := report.LocationReport{SubjectID: "a", Coordinate: c, TimestampUnixMs: 1, Signature: s1.Sign("a", c, 1)}
	assert.False(t, s2.Verify(r))
}

func TestVerify_MalformedSignature(t *testing.T) {
	s := newService(t, testKey)
	c := geo.Coordinate{Lat: 40, Lon: -74}
	good := s.Sign("a", c, 1)
	for _, sig := range []string{"", "zz", "abc", good[:62], good + "00", strings.Repeat("g", 64)} {
		r := report.LocationReport{SubjectID: "a", Coordinate: c, TimestampUnixMs: 1, Signature: sig}
		assert.False(t, s.Verify(r), "signature %q", sig)
	}
}

func TestService_NeverLogsKey(t *testing.T) {
	s := newService(t, testKey)
	var buf bytes.Buffer
	l := slog.New(slog.NewTextHandler(&buf, nil))
	l.Info("signer_ready", "signer", s)
	assert.NotContains(t, buf.String(), string(testKey))
	assert.NotContains(t, fmt.Sprintf("%v %+v %s", s, s, s), string(testKey))
	assert.False(t, s.WeakKey())
	assert.True(t, newService(t, []byte("short")).WeakKey())
}
