package types

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidCoordinate is returned when a "lat,lng" string cannot be parsed
var ErrInvalidCoordinate = errors.New("invalid coordinate")

// Coordinate holds lat/lng in degrees
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (c Coordinate) String() string {
	return fmt.Sprintf("%.6f,%.6f", c.Lat, c.Lng)
}

// Valid reports whether the coordinate is inside WGS84 bounds.
func (c Coordinate) Valid() bool {
	return c.Lat >= -90 && c.Lat <= 90 && c.Lng >= -180 && c.Lng <= 180
}

// ParseCoord parses a string like "12.9716,77.5946" into a Coordinate
func ParseCoord(input string) (Coordinate, error) {
	parts := strings.Split(input, ",")
	if len(parts) != 2 {
		return Coordinate{}, fmt.Errorf("%w: %q", ErrInvalidCoordinate, input)
	}

	lat, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	lng, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err1 != nil || err2 != nil {
		return Coordinate{}, fmt.Errorf("%w: bad lat/lng %q", ErrInvalidCoordinate, input)
	}

	c := Coordinate{Lat: lat, Lng: lng}
	if !c.Valid() {
		return Coordinate{}, fmt.Errorf("%w: out of range %q", ErrInvalidCoordinate, input)
	}
	return c, nil
}

// TravelMode selects the directions profile
type TravelMode string

const Driving TravelMode = "driving"

// DirectionsRequest is one full-route request built from the waypoint sequence.
// Seq increases with every request issued by the same builder.
type DirectionsRequest struct {
	Seq         uint64
	Origin      Coordinate
	Destination Coordinate
	Waypoints   []Coordinate
	Mode        TravelMode
}

// Points returns origin, waypoints and destination in travel order.
func (r DirectionsRequest) Points() []Coordinate {
	pts := make([]Coordinate, 0, len(r.Waypoints)+2)
	pts = append(pts, r.Origin)
	pts = append(pts, r.Waypoints...)
	return append(pts, r.Destination)
}

// Step is a single maneuver
type Step struct {
	Start       Coordinate   `json:"start"`
	End         Coordinate   `json:"end"`
	Instruction string       `json:"instruction,omitempty"`
	Distance    float64      `json:"distance"` // meters
	Duration    float64      `json:"duration"` // seconds
	Path        []Coordinate `json:"-"`
}

// Leg is the part of a route between two consecutive waypoints
type Leg struct {
	Start    Coordinate `json:"start"`
	End      Coordinate `json:"end"`
	Distance float64    `json:"distance"`
	Duration float64    `json:"duration"`
	Steps    []Step     `json:"steps"`
}

// Route is a computed driving path
type Route struct {
	Legs     []Leg        `json:"legs"`
	Distance float64      `json:"distance"`
	Duration float64      `json:"duration"`
	Path     []Coordinate `json:"-"`
}

// Steps flattens the steps of every leg, in order.
func (r Route) Steps() []Step {
	var n int
	for _, l := range r.Legs {
		n += len(l.Steps)
	}
	steps := make([]Step, 0, n)
	for _, l := range r.Legs {
		steps = append(steps, l.Steps...)
	}
	return steps
}

// Destination is the end of the final leg.
func (r Route) Destination() (Coordinate, bool) {
	if len(r.Legs) == 0 {
		return Coordinate{}, false
	}
	return r.Legs[len(r.Legs)-1].End, true
}
