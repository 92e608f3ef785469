package tracker

import (
	"errors"

	"github.com/musthaq16/vehicle-route-tracker/types"
)

var (
	// ErrNoRoute is returned when tracking is started before any route arrived.
	ErrNoRoute = errors.New("no route to track")
	// ErrAlreadyTracking is returned when tracking is started twice.
	ErrAlreadyTracking = errors.New("already tracking")
	// ErrEmptyRoute is returned when a route has nothing an animator can follow.
	ErrEmptyRoute = errors.New("route has no steps")
)

// Control labels for the tracking toggle
const (
	LabelStart    = "Start Tracking"
	LabelTracking = "Tracking..."
)

// State is the route builder and animator state. It is not safe for concurrent
// use; a Controller owns one and mutates it from its event loop only.
type State struct {
	waypoints []types.Coordinate
	route     *types.Route
	vehicle   *types.Coordinate
	tracking  bool

	// replay only
	steps  []types.Step
	cursor int

	issued  uint64 // sequence number of the latest directions request
	applied uint64 // sequence number of the route currently held
}

// AddWaypoint appends c. The first waypoint also places the vehicle. Once two or
// more waypoints exist a request for the whole sequence is returned, tagged with a
// fresh sequence number.
func (s *State) AddWaypoint(c types.Coordinate) (types.DirectionsRequest, bool) {
	s.waypoints = append(s.waypoints, c)
	if s.vehicle == nil {
		pos := s.waypoints[0]
		s.vehicle = &pos
	}
	if len(s.waypoints) < 2 {
		return types.DirectionsRequest{}, false
	}

	s.issued++
	n := len(s.waypoints)
	return types.DirectionsRequest{
		Seq:         s.issued,
		Origin:      s.waypoints[0],
		Destination: s.waypoints[n-1],
		Waypoints:   append([]types.Coordinate(nil), s.waypoints[1:n-1]...),
		Mode:        types.Driving,
	}, true
}

// SetRoute replaces the route with the result of request seq. Results of any
// request other than the latest one are discarded and false is returned.
func (s *State) SetRoute(seq uint64, r types.Route) bool {
	if seq != s.issued {
		return false
	}
	s.route = &r
	s.applied = seq
	return true
}

// StartTracking moves Idle -> Tracking. It changes nothing on error.
func (s *State) StartTracking() error {
	if s.route == nil {
		return ErrNoRoute
	}
	if s.tracking {
		return ErrAlreadyTracking
	}
	s.tracking = true
	return nil
}

// StopTracking moves Tracking -> Idle. Stopping while idle is a no-op.
func (s *State) StopTracking() {
	s.tracking = false
}

// LoadSteps installs the flattened step list and rewinds the cursor.
func (s *State) LoadSteps(steps []types.Step) {
	s.steps = steps
	s.cursor = 0
}

// AdvanceCursor moves to the next step. It returns false, leaving the cursor on
// the last valid index, when there is no next step.
func (s *State) AdvanceCursor() bool {
	if s.cursor+1 >= len(s.steps) {
		return false
	}
	s.cursor++
	return true
}

func (s *State) MoveVehicle(c types.Coordinate) {
	s.vehicle = &c
}

func (s *State) Tracking() bool { return s.tracking }

func (s *State) Cursor() int { return s.cursor }

func (s *State) Steps() []types.Step { return s.steps }

func (s *State) WaypointCount() int { return len(s.waypoints) }

// LatestSeq is the sequence number of the most recently issued request.
func (s *State) LatestSeq() uint64 { return s.issued }

// Route returns the current route, if any. Routes are never mutated once set.
func (s *State) Route() (*types.Route, bool) {
	return s.route, s.route != nil
}

// Destination is the final leg's end of the current route.
func (s *State) Destination() (types.Coordinate, bool) {
	if s.route == nil {
		return types.Coordinate{}, false
	}
	return s.route.Destination()
}

func (s *State) Vehicle() (types.Coordinate, bool) {
	if s.vehicle == nil {
		return types.Coordinate{}, false
	}
	return *s.vehicle, true
}

// Controls describes the tracking toggle
type Controls struct {
	Label   string `json:"label"`
	Enabled bool   `json:"enabled"`
}

func (s *State) Controls() Controls {
	c := Controls{Label: LabelStart, Enabled: s.route != nil && !s.tracking}
	if s.tracking {
		c.Label = LabelTracking
	}
	return c
}

// Snapshot is a read-only copy of State
type Snapshot struct {
	Strategy  Strategy           `json:"strategy"`
	Waypoints []types.Coordinate `json:"waypoints"`
	Route     *types.Route       `json:"route,omitempty"`
	RouteSeq  uint64             `json:"routeSeq"`
	Vehicle   *types.Coordinate  `json:"vehicle,omitempty"`
	Tracking  bool               `json:"tracking"`
	Cursor    int                `json:"cursor"`
	Steps     int                `json:"steps"`
	Controls  Controls           `json:"controls"`
}

func (s *State) Snapshot(strategy Strategy) Snapshot {
	snap := Snapshot{
		Strategy:  strategy,
		Waypoints: append([]types.Coordinate(nil), s.waypoints...),
		Route:     s.route,
		RouteSeq:  s.applied,
		Tracking:  s.tracking,
		Cursor:    s.cursor,
		Steps:     len(s.steps),
		Controls:  s.Controls(),
	}
	if s.vehicle != nil {
		v := *s.vehicle
		snap.Vehicle = &v
	}
	return snap
}
