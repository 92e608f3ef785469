package geo

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/geojson"
	"github.com/peterstace/simplefeatures/geom"

	"github.com/musthaq16/vehicle-route-tracker/types"
)

// Zoom is the fixed map zoom level sent to map clients.
const Zoom = 15

// ErrShortPath is returned when a line needs at least two points
var ErrShortPath = errors.New("path needs at least 2 points")

// Feature kinds used in FeatureCollection properties
const (
	KindWaypoint = "waypoint"
	KindRoute    = "route"
	KindVehicle  = "vehicle"
)

func toOrb(c types.Coordinate) orb.Point {
	return orb.Point{c.Lng, c.Lat}
}

// Distance returns the great-circle distance between a and b in meters.
func Distance(a, b types.Coordinate) float64 {
	return orbgeo.DistanceHaversine(toOrb(a), toOrb(b))
}

// Bearing is the initial heading from a to b in degrees clockwise from north, in [0, 360).
func Bearing(a, b types.Coordinate) float64 {
	deg := orbgeo.Bearing(toOrb(a), toOrb(b))
	if deg < 0 {
		deg += 360
	}
	return deg
}

// PathLength sums the great-circle distance along path.
func PathLength(path []types.Coordinate) float64 {
	var total float64
	for i := 1; i < len(path); i++ {
		total += Distance(path[i-1], path[i])
	}
	return total
}

// Line builds an XY LineString (x = lng, y = lat) from path.
func Line(path []types.Coordinate) (geom.LineString, error) {
	if len(path) < 2 {
		return geom.LineString{}, fmt.Errorf("%w, got %d", ErrShortPath, len(path))
	}
	flat := make([]float64, 0, len(path)*2)
	for _, c := range path {
		flat = append(flat, c.Lng, c.Lat)
	}
	return geom.NewLineString(geom.NewSequence(flat, geom.DimXY))
}

// Viewport returns the point a map should center on to show path.
// A single point centers on itself; an empty path has no viewport.
func Viewport(path []types.Coordinate) (types.Coordinate, bool) {
	switch len(path) {
	case 0:
		return types.Coordinate{}, false
	case 1:
		return path[0], true
	}

	ls, err := Line(path)
	if err != nil {
		return path[0], true
	}
	coords, ok := ls.Centroid().Coordinates()
	if !ok {
		// zero-length line
		return path[0], true
	}
	return types.Coordinate{Lat: coords.Y, Lng: coords.X}, true
}

// FeatureCollection renders the map layers as GeoJSON: numbered waypoint markers,
// the route line and the vehicle marker. Empty layers are left out.
func FeatureCollection(waypoints, route []types.Coordinate, vehicle *types.Coordinate) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	for i, wp := range waypoints {
		f := geojson.NewFeature(toOrb(wp))
		f.Properties["kind"] = KindWaypoint
		f.Properties["title"] = fmt.Sprintf("#%d", i+1)
		fc.Append(f)
	}

	if len(route) >= 2 {
		ls := make(orb.LineString, 0, len(route))
		for _, c := range route {
			ls = append(ls, toOrb(c))
		}
		f := geojson.NewFeature(ls)
		f.Properties["kind"] = KindRoute
		fc.Append(f)
	}

	if vehicle != nil {
		f := geojson.NewFeature(toOrb(*vehicle))
		f.Properties["kind"] = KindVehicle
		fc.Append(f)
	}

	return fc
}
