package tracker

import (
	"context"
	"fmt"

	"github.com/musthaq16/vehicle-route-tracker/types"
)

// Strategy names an animator
type Strategy string

const (
	Live   Strategy = "live"
	Replay Strategy = "replay"
)

// DefaultArrivalMeters is the distance to the destination at which live tracking ends.
const DefaultArrivalMeters = 50.0

// LocationSource is a one-shot device location provider.
type LocationSource interface {
	CurrentPosition(ctx context.Context) (types.Coordinate, error)
}

// DistanceFunc returns the distance between two coordinates in meters.
type DistanceFunc func(a, b types.Coordinate) float64

// Animator advances the vehicle while tracking. Both methods run on the
// controller's event loop.
type Animator interface {
	Strategy() Strategy
	// Begin is called on Idle -> Tracking and again whenever the route is
	// replaced while tracking. An error aborts the transition.
	Begin(s *State) error
	// Tick runs once per timer period. A returned error means the tick was
	// skipped without changing the vehicle position.
	Tick(ctx context.Context, s *State) error
}

// LiveLocationAnimator moves the vehicle to the device location on every tick
// and stops tracking once it is within ArrivalMeters of the destination.
type LiveLocationAnimator struct {
	Source        LocationSource
	Distance      DistanceFunc
	ArrivalMeters float64
}

func NewLiveLocationAnimator(source LocationSource, distance DistanceFunc, arrivalMeters float64) *LiveLocationAnimator {
	if arrivalMeters <= 0 {
		arrivalMeters = DefaultArrivalMeters
	}
	return &LiveLocationAnimator{Source: source, Distance: distance, ArrivalMeters: arrivalMeters}
}

func (a *LiveLocationAnimator) Strategy() Strategy { return Live }

func (a *LiveLocationAnimator) Begin(s *State) error {
	if _, ok := s.Destination(); !ok {
		return ErrEmptyRoute
	}
	return nil
}

func (a *LiveLocationAnimator) Tick(ctx context.Context, s *State) error {
	pos, err := a.Source.CurrentPosition(ctx)
	if err != nil {
		return fmt.Errorf("location sample: %w", err)
	}
	s.MoveVehicle(pos)

	dest, ok := s.Destination()
	if ok && a.Distance(pos, dest) < a.ArrivalMeters {
		s.StopTracking()
	}
	return nil
}

// ScriptedReplayAnimator walks the flattened step list one step per tick,
// placing the vehicle on each step's end, and stops on the last step.
type ScriptedReplayAnimator struct{}

func NewScriptedReplayAnimator() *ScriptedReplayAnimator {
	return &ScriptedReplayAnimator{}
}

func (a *ScriptedReplayAnimator) Strategy() Strategy { return Replay }

// Begin rewinds to the first step, so a finished replay can be started again.
func (a *ScriptedReplayAnimator) Begin(s *State) error {
	r, ok := s.Route()
	if !ok {
		return ErrNoRoute
	}
	steps := r.Steps()
	if len(steps) == 0 {
		return ErrEmptyRoute
	}
	s.LoadSteps(steps)
	s.MoveVehicle(steps[0].Start)
	return nil
}

func (a *ScriptedReplayAnimator) Tick(ctx context.Context, s *State) error {
	if !s.AdvanceCursor() {
		s.StopTracking()
		return nil
	}
	steps := s.Steps()
	s.MoveVehicle(steps[s.Cursor()].End)
	if s.Cursor() == len(steps)-1 {
		s.StopTracking()
	}
	return nil
}

// NewAnimator builds the animator for strategy. source and distance are only
// used by the live strategy.
func NewAnimator(strategy Strategy, source LocationSource, distance DistanceFunc, arrivalMeters float64) (Animator, error) {
	switch strategy {
	case Live:
		if source == nil || distance == nil {
			return nil, fmt.Errorf("live tracking needs a location source and a distance function")
		}
		return NewLiveLocationAnimator(source, distance, arrivalMeters), nil
	case Replay:
		return NewScriptedReplayAnimator(), nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", strategy)
	}
}
