package report

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTimeWindow(t *testing.T) {
	cases := []struct {
		name           string
		ts, width      int64
		wantFrom, want int64
	}{
		{"normal", 1000, 300, 700, 1300},
		{"zero width", 5, 0, 5, 5},
		{"negative width", 5, -10, 5, 5},
		{"saturates low", math.MinInt64 + 10, 60000, math.MinInt64, math.MinInt64 + 60010},
		{"saturates high", math.MaxInt64 - 10, 60000, math.MaxInt64 - 60010, math.MaxInt64},
		{"min timestamp", math.MinInt64, 1, math.MinInt64, math.MinInt64 + 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			from, to := TimeWindow(tc.ts, tc.width)
			assert.Equal(t, tc.wantFrom, from)
			assert.Equal(t, tc.want, to)
		})
	}
}
