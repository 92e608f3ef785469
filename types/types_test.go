package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCoord(t *testing.T) {
	c, err := ParseCoord("12.9716, 77.5946")
	require.NoError(t, err)
	assert.Equal(t, Coordinate{Lat: 12.9716, Lng: 77.5946}, c)
}

func TestParseCoord_Invalid(t *testing.T) {
	for _, in := range []string{"", "12.9", "a,b", "1,2,3", "91,0", "0,181"} {
		_, err := ParseCoord(in)
		assert.ErrorIs(t, err, ErrInvalidCoordinate, in)
	}
}

func TestDirectionsRequest_Points(t *testing.T) {
	r := DirectionsRequest{
		Origin:      Coordinate{Lat: 10, Lng: 10},
		Destination: Coordinate{Lat: 30, Lng: 30},
		Waypoints:   []Coordinate{{Lat: 20, Lng: 20}},
	}
	assert.Equal(t, []Coordinate{{10, 10}, {20, 20}, {30, 30}}, r.Points())
}

func TestRoute_StepsFlattensInOrder(t *testing.T) {
	r := Route{Legs: []Leg{
		{Steps: []Step{{Instruction: "a"}, {Instruction: "b"}}},
		{Steps: []Step{{Instruction: "c"}}},
	}}

	var got []string
	for _, s := range r.Steps() {
		got = append(got, s.Instruction)
	}
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestRoute_Destination(t *testing.T) {
	_, ok := Route{}.Destination()
	assert.False(t, ok)

	r := Route{Legs: []Leg{{End: Coordinate{Lat: 1, Lng: 1}}, {End: Coordinate{Lat: 2, Lng: 3}}}}
	d, ok := r.Destination()
	require.True(t, ok)
	assert.Equal(t, Coordinate{Lat: 2, Lng: 3}, d)
}
