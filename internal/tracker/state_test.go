package tracker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/musthaq16/vehicle-route-tracker/types"
)

func pt(lat, lng float64) types.Coordinate {
	return types.Coordinate{Lat: lat, Lng: lng}
}

// routeWithSteps builds a one-leg route whose step i runs (i,i) -> (i+1,i+1).
func routeWithSteps(n int) types.Route {
	steps := make([]types.Step, n)
	for i := range steps {
		steps[i] = types.Step{Start: pt(float64(i), float64(i)), End: pt(float64(i+1), float64(i+1))}
	}
	return types.Route{Legs: []types.Leg{{Start: pt(0, 0), End: pt(float64(n), float64(n)), Steps: steps}}}
}

func TestState_SingleWaypointNoRequest(t *testing.T) {
	var s State
	_, ok := s.AddWaypoint(pt(10, 10))
	assert.False(t, ok)
	assert.Zero(t, s.LatestSeq())

	v, ok := s.Vehicle()
	require.True(t, ok)
	assert.Equal(t, pt(10, 10), v)
}

func TestState_RequestShape(t *testing.T) {
	var s State
	s.AddWaypoint(pt(10, 10))

	req, ok := s.AddWaypoint(pt(20, 20))
	require.True(t, ok)
	assert.Equal(t, uint64(1), req.Seq)
	assert.Equal(t, pt(10, 10), req.Origin)
	assert.Equal(t, pt(20, 20), req.Destination)
	assert.Empty(t, req.Waypoints)
	assert.Equal(t, types.Driving, req.Mode)

	req, ok = s.AddWaypoint(pt(30, 30))
	require.True(t, ok)
	assert.Equal(t, uint64(2), req.Seq)
	assert.Equal(t, pt(10, 10), req.Origin)
	assert.Equal(t, pt(30, 30), req.Destination)
	assert.Equal(t, []types.Coordinate{pt(20, 20)}, req.Waypoints)
}

func TestState_IntermediatesKeepOrder(t *testing.T) {
	var s State
	var req types.DirectionsRequest
	for i := 1; i <= 6; i++ {
		req, _ = s.AddWaypoint(pt(float64(i), 0))
	}
	assert.Equal(t, pt(1, 0), req.Origin)
	assert.Equal(t, pt(6, 0), req.Destination)
	assert.Equal(t, []types.Coordinate{pt(2, 0), pt(3, 0), pt(4, 0), pt(5, 0)}, req.Waypoints)
}

func TestState_RequestDoesNotAliasWaypoints(t *testing.T) {
	var s State
	s.AddWaypoint(pt(1, 1))
	s.AddWaypoint(pt(2, 2))
	req, _ := s.AddWaypoint(pt(3, 3))
	req.Waypoints[0] = pt(9, 9)

	snap := s.Snapshot(Replay)
	assert.Equal(t, pt(2, 2), snap.Waypoints[1])
}

func TestState_SetRouteDiscardsStale(t *testing.T) {
	var s State
	s.AddWaypoint(pt(1, 1))
	first, _ := s.AddWaypoint(pt(2, 2))
	second, _ := s.AddWaypoint(pt(3, 3))

	assert.True(t, s.SetRoute(second.Seq, routeWithSteps(2)))
	assert.False(t, s.SetRoute(first.Seq, routeWithSteps(5)))

	r, ok := s.Route()
	require.True(t, ok)
	assert.Len(t, r.Steps(), 2)
	assert.Equal(t, second.Seq, s.Snapshot(Replay).RouteSeq)
}

func TestState_StartTrackingGuards(t *testing.T) {
	var s State
	before := s.Snapshot(Replay)

	assert.ErrorIs(t, s.StartTracking(), ErrNoRoute)
	assert.Equal(t, before, s.Snapshot(Replay))

	s.AddWaypoint(pt(1, 1))
	req, _ := s.AddWaypoint(pt(2, 2))
	s.SetRoute(req.Seq, routeWithSteps(1))

	require.NoError(t, s.StartTracking())
	assert.ErrorIs(t, s.StartTracking(), ErrAlreadyTracking)
	assert.True(t, s.Tracking())

	s.StopTracking()
	assert.False(t, s.Tracking())
	s.StopTracking()
	assert.False(t, s.Tracking())
}

func TestState_AdvanceCursorNeverPassesEnd(t *testing.T) {
	var s State
	s.LoadSteps(routeWithSteps(3).Steps())

	assert.True(t, s.AdvanceCursor())
	assert.True(t, s.AdvanceCursor())
	assert.False(t, s.AdvanceCursor())
	assert.False(t, s.AdvanceCursor())
	assert.Equal(t, 2, s.Cursor())

	s.LoadSteps(nil)
	assert.False(t, s.AdvanceCursor())
	assert.Equal(t, 0, s.Cursor())
}

func TestState_Controls(t *testing.T) {
	var s State
	assert.Equal(t, Controls{Label: LabelStart, Enabled: false}, s.Controls())

	s.AddWaypoint(pt(1, 1))
	req, _ := s.AddWaypoint(pt(2, 2))
	s.SetRoute(req.Seq, routeWithSteps(1))
	assert.Equal(t, Controls{Label: LabelStart, Enabled: true}, s.Controls())

	require.NoError(t, s.StartTracking())
	assert.Equal(t, Controls{Label: LabelTracking, Enabled: false}, s.Controls())
}

func TestState_SnapshotIsACopy(t *testing.T) {
	var s State
	s.AddWaypoint(pt(1, 1))
	snap := s.Snapshot(Live)

	s.AddWaypoint(pt(2, 2))
	s.MoveVehicle(pt(5, 5))

	assert.Len(t, snap.Waypoints, 1)
	assert.Equal(t, pt(1, 1), *snap.Vehicle)
	assert.Equal(t, Live, snap.Strategy)
}
