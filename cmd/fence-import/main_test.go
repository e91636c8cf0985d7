package main

import (
	"strings"
	"testing"

	"geo-attendance/internal/fenceindex"
	"geo-attendance/internal/geo"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadRecord(t *testing.T) {
	rec, err := readRecord(strings.NewReader(`{"id":"a101","kind":"circle","center":[-74,40],"radius_m":50}`))
	require.NoError(t, err)
	assert.Equal(t, "a101", rec.ID)
	assert.Equal(t, 50.0, rec.RadiusMeters)

	cases := []struct {
		name string
		in   string
		err  error
	}{
		{"missing id", `{"kind":"circle","center":[-74,40],"radius_m":50}`, fenceindex.ErrMissingID},
		{"bad radius", `{"id":"x","kind":"circle","center":[-74,40],"radius_m":0}`, geo.ErrInvalidParameter},
		{"degenerate ring", `{"id":"x","kind":"polygon","vertices":[[0,0],[1,1],[0,0]]}`, geo.ErrInvalidParameter},
		{"unknown kind", `{"id":"x","kind":"ellipse"}`, fenceindex.ErrUnknownKind},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := readRecord(strings.NewReader(tc.in))
			require.ErrorIs(t, err, tc.err)
		})
	}

	_, err = readRecord(strings.NewReader(`{"id":"x","kind":"circle","colour":"red"}`))
	require.Error(t, err)
}
