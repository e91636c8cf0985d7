package intake

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"geo-attendance/internal/fenceindex"
	"geo-attendance/internal/geo"
	"geo-attendance/internal/geofence"
	"geo-attendance/internal/report"
	"geo-attendance/internal/verify"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	room     = geo.Coordinate{Lat: 40.0, Lon: -74.0}
	beijing  = geo.Coordinate{Lat: 39.9087, Lon: 116.3975}
	batchNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
)

type memLastSeen struct {
	mu   sync.Mutex
	data map[string]report.LocationReport
}

func (m *memLastSeen) Get(_ context.Context, id string) (report.LocationReport, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.data[id]
	return r, ok, nil
}

func (m *memLastSeen) Put(_ context.Context, r report.LocationReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[r.SubjectID] = r
	return nil
}

type memReplay struct{ seen map[string]bool }

func (m *memReplay) Seen(_ context.Context, sig string) (bool, error) {
	if m.seen[sig] {
		return true, nil
	}
	m.seen[sig] = true
	return false, nil
}

type fixture struct {
	p        *Processor
	v        *verify.Verifier
	lastSeen *memLastSeen
	replay   *memReplay
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := verify.DefaultConfig([]byte("intake-test-secret-intake-test-secret"))
	cfg.Now = func() time.Time { return batchNow }
	v, err := verify.New(cfg)
	require.NoError(t, err)

	c1, err := geofence.NewCircle(room, 50)
	require.NoError(t, err)
	c2, err := geofence.NewCircle(geo.ToWGS84(beijing, geo.GCJ02), 30)
	require.NoError(t, err)
	ix, err := fenceindex.New([]fenceindex.Fence{{ID: "a101", Shape: c1}, {ID: "bj", Shape: c2}}, fenceindex.Options{})
	require.NoError(t, err)

	f := &fixture{
		v:        v,
		lastSeen: &memLastSeen{data: map[string]report.LocationReport{}},
		replay:   &memReplay{seen: map[string]bool{}},
	}
	f.p, err = New(v, ix, Options{Workers: 4, ClusterWindow: time.Minute, LastSeen: f.lastSeen, Replay: f.replay})
	require.NoError(t, err)
	return f
}

func (f *fixture) line(t *testing.T, subject string, c geo.Coordinate, ts time.Time, extra map[string]any) string {
	t.Helper()
	return f.lineMs(t, subject, c, ts.UnixMilli(), extra)
}

func (f *fixture) lineMs(t *testing.T, subject string, c geo.Coordinate, ms int64, extra map[string]any) string {
	t.Helper()
	m := map[string]any{
		"subject_id":   subject,
		"lat":          c.Lat,
		"lon":          c.Lon,
		"timestamp_ms": ms,
		"signature":    f.v.Signer().Sign(subject, c, ms),
	}
	for k, v := range extra {
		m[k] = v
	}
	b, err := json.Marshal(m)
	require.NoError(t, err)
	return string(b)
}

func run(t *testing.T, f *fixture, lines ...string) ([]Result, Summary) {
	t.Helper()
	var out bytes.Buffer
	sum, err := f.p.Run(context.Background(), strings.NewReader(strings.Join(lines, "\n")), &out)
	require.NoError(t, err)
	var res []Result
	dec := json.NewDecoder(&out)
	for dec.More() {
		var r Result
		require.NoError(t, dec.Decode(&r))
		res = append(res, r)
	}
	require.Len(t, res, sum.Total)
	return res, sum
}

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := New(nil, nil, Options{})
	require.Error(t, err)
}

func TestRun_MixedBatch(t *testing.T) {
	f := newFixture(t)
	clean := f.line(t, "stu-1", room, batchNow, nil)
	res, sum := run(t, f,
		clean,
		"",
		`{"subject_id":"stu-2","lat":95,"lon":0,"timestamp_ms":1}`,
		`{not json`,
		f.line(t, "stu-3", room, batchNow, map[string]any{"fence_id": "nope"}),
		`{"lat":40,"lon":-74,"timestamp_ms":1}`,
		f.line(t, "stu-4", geo.DestinationPoint(room, 50000, 0), batchNow, nil),
		clean,
	)

	require.Len(t, res, 7)
	assert.Equal(t, []int{1, 3, 4, 5, 6, 7, 8}, []int{res[0].Line, res[1].Line, res[2].Line, res[3].Line, res[4].Line, res[5].Line, res[6].Line})

	assert.Empty(t, res[0].Error)
	assert.True(t, res[0].InsideGeofence)
	assert.Equal(t, "a101", res[0].FenceID)
	assert.Equal(t, MatchContained, res[0].FenceMatch)
	assert.Empty(t, res[0].FlagReasons)
	assert.False(t, res[0].Duplicate)

	assert.Contains(t, res[1].Error, "invalid coordinate")
	assert.Contains(t, res[2].Error, "decode")
	assert.Contains(t, res[3].Error, "not found")
	assert.Contains(t, res[4].Error, "subject_id")
	assert.Contains(t, res[5].Error, "no geofence")

	assert.Empty(t, res[6].Error)
	assert.True(t, res[6].Duplicate)
	assert.True(t, res[6].InsideGeofence)

	assert.Equal(t, Summary{Total: 7, Verified: 2, Flagged: 0, Rejected: 5, Duplicates: 1}, sum)
}

func TestRun_ClusterOutsideFence(t *testing.T) {
	f := newFixture(t)
	spot := geo.DestinationPoint(room, 300, 90)
	var lines []string
	for i := 0; i < 5; i++ {
		p := geo.DestinationPoint(spot, 0.5*float64(i), float64(i*70))
		lines = append(lines, f.line(t, fmt.Sprintf("stu-%d", i), p, batchNow.Add(time.Duration(i)*time.Second), nil))
	}
	// 窗口外的同位置上报不计入
	lines = append(lines, f.line(t, "late", spot, batchNow.Add(-10*time.Minute+30*time.Second), nil))

	res, sum := run(t, f, lines...)
	for i := 0; i < 5; i++ {
		assert.Equal(t, MatchNearest, res[i].FenceMatch)
		assert.Equal(t, []verify.FlagReason{verify.OutsideGeofence, verify.ClusteredWithOthers}, res[i].FlagReasons, "line %d", i+1)
	}
	assert.Equal(t, []verify.FlagReason{verify.StaleTimestamp, verify.OutsideGeofence}, res[5].FlagReasons)
	assert.Equal(t, 6, sum.Flagged)
}

func TestRun_SpeedAcrossBatchAndLastSeen(t *testing.T) {
	f := newFixture(t)
	far := geo.DestinationPoint(room, 1500, 180)
	f.lastSeen.data["stu-1"] = report.LocationReport{SubjectID: "stu-1", Coordinate: far, TimestampUnixMs: batchNow.Add(-20 * time.Second).UnixMilli()}

	res, _ := run(t, f,
		f.line(t, "stu-1", room, batchNow.Add(-10*time.Second), nil),
		f.line(t, "stu-2", room, batchNow.Add(-30*time.Second), nil),
		f.line(t, "stu-2", far, batchNow.Add(-20*time.Second), nil),
	)
	assert.Equal(t, []verify.FlagReason{verify.ImpossibleSpeed}, res[0].FlagReasons)
	assert.Empty(t, res[1].FlagReasons)
	assert.Equal(t, []verify.FlagReason{verify.OutsideGeofence, verify.ImpossibleSpeed}, res[2].FlagReasons)

	assert.Equal(t, batchNow.Add(-10*time.Second).UnixMilli(), f.lastSeen.data["stu-1"].TimestampUnixMs)
	assert.Equal(t, batchNow.Add(-20*time.Second).UnixMilli(), f.lastSeen.data["stu-2"].TimestampUnixMs)
}

func TestRun_LastSeenNotOverwrittenByOlderReport(t *testing.T) {
	f := newFixture(t)
	stored := report.LocationReport{SubjectID: "stu-1", Coordinate: room, TimestampUnixMs: batchNow.UnixMilli()}
	f.lastSeen.data["stu-1"] = stored
	res, _ := run(t, f, f.line(t, "stu-1", room, batchNow.Add(-time.Minute), nil))
	assert.Empty(t, res[0].FlagReasons)
	assert.Equal(t, stored, f.lastSeen.data["stu-1"])
}

func TestRun_ExtremeTimestampsDoNotAbortBatch(t *testing.T) {
	f := newFixture(t)
	res, sum := run(t, f,
		f.line(t, "stu-1", room, batchNow, nil),
		f.lineMs(t, "stu-2", room, math.MinInt64, nil),
		f.lineMs(t, "stu-3", room, math.MaxInt64, nil),
		f.lineMs(t, "stu-4", room, math.MinInt64+1, nil),
	)
	assert.Equal(t, 4, sum.Verified)
	assert.Empty(t, res[0].FlagReasons)
	for _, r := range res[1:] {
		assert.Empty(t, r.Error)
		assert.Equal(t, []verify.FlagReason{verify.StaleTimestamp}, r.FlagReasons, "line %d", r.Line)
	}
}

func TestRun_ReplayAcrossBatches(t *testing.T) {
	f := newFixture(t)
	l := f.line(t, "stu-1", room, batchNow, nil)
	res, _ := run(t, f, l)
	assert.False(t, res[0].Duplicate)
	res, sum := run(t, f, l)
	assert.True(t, res[0].Duplicate)
	assert.Equal(t, 1, sum.Duplicates)
}

func TestRun_GCJ02Input(t *testing.T) {
	f := newFixture(t)
	res, _ := run(t, f,
		f.line(t, "stu-1", beijing, batchNow, map[string]any{"crs": "GCJ-02"}),
		f.line(t, "stu-2", beijing, batchNow, map[string]any{"fence_id": "bj"}),
		f.line(t, "stu-3", beijing, batchNow, map[string]any{"crs": "gcj02", "signature": "00"}),
	)
	assert.Equal(t, "bj", res[0].FenceID)
	assert.True(t, res[0].InsideGeofence)
	assert.Empty(t, res[0].FlagReasons)

	// 未声明坐标系时偏移数百米
	assert.False(t, res[1].InsideGeofence)
	assert.Equal(t, MatchExplicit, res[1].FenceMatch)

	// 原签名无效时转换后仍无效
	assert.True(t, res[2].InsideGeofence)
	assert.Equal(t, []verify.FlagReason{verify.SignatureInvalid}, res[2].FlagReasons)
}

func TestRun_Cancelled(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var lines []string
	for i := 0; i < 2000; i++ {
		lines = append(lines, f.line(t, fmt.Sprintf("s%d", i), room, batchNow, nil))
	}
	_, err := f.p.Run(ctx, strings.NewReader(strings.Join(lines, "\n")), &bytes.Buffer{})
	require.ErrorIs(t, err, context.Canceled)
}

func TestRun_WithoutCaches(t *testing.T) {
	f := newFixture(t)
	p, err := New(f.v, mustIndex(t), Options{})
	require.NoError(t, err)
	var out bytes.Buffer
	sum, err := p.Run(context.Background(), strings.NewReader(f.line(t, "stu-1", room, batchNow, nil)), &out)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Verified)
	assert.Contains(t, out.String(), `"flag_reasons":[]`)
}

func mustIndex(t *testing.T) *fenceindex.Index {
	t.Helper()
	c, err := geofence.NewCircle(room, 50)
	require.NoError(t, err)
	ix, err := fenceindex.New([]fenceindex.Fence{{ID: "a101", Shape: c}}, fenceindex.Options{})
	require.NoError(t, err)
	return ix
}
