package mapserver

import (
	"github.com/paulmach/orb/geojson"

	"github.com/musthaq16/vehicle-route-tracker/internal/geo"
	"github.com/musthaq16/vehicle-route-tracker/internal/progress"
	"github.com/musthaq16/vehicle-route-tracker/internal/tracker"
	"github.com/musthaq16/vehicle-route-tracker/types"
)

// Command names accepted over the socket.
const (
	CmdAddWaypoint   = "waypoint.add"
	CmdStartTracking = "tracking.start"
	CmdGetState      = "state.get"
)

const TypeState = "state"

// Request is a client command. Args are positional strings.
type Request struct {
	ID      string   `json:"id"`
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`
}

// Reply answers exactly one Request.
type Reply struct {
	ID     string `json:"id"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// StateMessage is everything a map client needs to redraw.
type StateMessage struct {
	Type     string                     `json:"type"`
	Snapshot tracker.Snapshot           `json:"snapshot"`
	Controls tracker.Controls           `json:"controls"`
	Map      *geojson.FeatureCollection `json:"map"`
	Center   *types.Coordinate          `json:"center,omitempty"`
	Zoom     int                        `json:"zoom"`
	Progress *progress.Report           `json:"progress,omitempty"`
}

// NewStateMessage renders a snapshot. The map centers on the vehicle; before
// there is one it centers on the route, otherwise on the waypoints.
func NewStateMessage(snap tracker.Snapshot) StateMessage {
	var path []types.Coordinate
	if snap.Route != nil {
		path = snap.Route.Path
	}

	msg := StateMessage{
		Type:     TypeState,
		Snapshot: snap,
		Controls: snap.Controls,
		Map:      geo.FeatureCollection(snap.Waypoints, path, snap.Vehicle),
		Zoom:     geo.Zoom,
	}

	if snap.Vehicle != nil {
		c := *snap.Vehicle
		msg.Center = &c
	} else {
		focus := path
		if len(focus) == 0 {
			focus = snap.Waypoints
		}
		if c, ok := geo.Viewport(focus); ok {
			msg.Center = &c
		}
	}
	if r, ok := progress.Compute(snap); ok {
		msg.Progress = &r
	}
	return msg
}
