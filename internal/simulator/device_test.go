package simulator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/musthaq16/vehicle-route-tracker/types"
)

func line(n int) []types.Coordinate {
	path := make([]types.Coordinate, n)
	for i := range path {
		path[i] = types.Coordinate{Lat: 12.9 + float64(i)*0.001, Lng: 77.5}
	}
	return path
}

func TestStatic(t *testing.T) {
	loc := types.Coordinate{Lat: 1, Lng: 2}
	got, err := NewStatic(loc).CurrentPosition(context.Background())
	require.NoError(t, err)
	assert.Equal(t, loc, got)

	_, err = Static{}.CurrentPosition(context.Background())
	assert.ErrorIs(t, err, ErrNoFix)
}

func TestStatic_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewStatic(types.Coordinate{}).CurrentPosition(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDevice_WithoutPathHoldsStart(t *testing.T) {
	start := types.Coordinate{Lat: 3, Lng: 4}
	d := NewDevice(start, 2, 0)

	for i := 0; i < 3; i++ {
		got, err := d.CurrentPosition(context.Background())
		require.NoError(t, err)
		assert.Equal(t, start, got)
	}
}

func TestDevice_AdvancesByStrideAndParks(t *testing.T) {
	path := line(5)
	d := NewDevice(path[0], 2, 0)
	d.Follow(path)

	var got []types.Coordinate
	for i := 0; i < 5; i++ {
		pos, err := d.CurrentPosition(context.Background())
		require.NoError(t, err)
		got = append(got, pos)
	}
	assert.Equal(t, []types.Coordinate{path[0], path[2], path[4], path[4], path[4]}, got)
}

func TestDevice_FollowResumesFromNearestPoint(t *testing.T) {
	path := line(10)
	d := NewDevice(path[6], 1, 0)
	d.Follow(path)

	pos, err := d.CurrentPosition(context.Background())
	require.NoError(t, err)
	assert.Equal(t, path[6], pos)
}

func TestDevice_FailEvery(t *testing.T) {
	d := NewDevice(types.Coordinate{}, 1, 3)

	var fails int
	for i := 0; i < 9; i++ {
		if _, err := d.CurrentPosition(context.Background()); err != nil {
			assert.ErrorIs(t, err, ErrNoFix)
			fails++
		}
	}
	assert.Equal(t, 3, fails)
}

func TestNewDevice_ClampsStride(t *testing.T) {
	d := NewDevice(types.Coordinate{}, 0, 0)
	assert.Equal(t, 1, d.stride)
}
