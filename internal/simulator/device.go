package simulator

import (
	"context"
	"errors"
	"sync"

	"github.com/musthaq16/vehicle-route-tracker/internal/geo"
	"github.com/musthaq16/vehicle-route-tracker/types"
)

// ErrNoFix is returned when a source has no position to report
var ErrNoFix = errors.New("no location fix")

// Static always reports the same location. The zero value has no fix.
type Static struct {
	loc types.Coordinate
	ok  bool
}

func NewStatic(loc types.Coordinate) Static {
	return Static{loc: loc, ok: true}
}

func (s Static) CurrentPosition(ctx context.Context) (types.Coordinate, error) {
	if err := ctx.Err(); err != nil {
		return types.Coordinate{}, err
	}
	if !s.ok {
		return types.Coordinate{}, ErrNoFix
	}
	return s.loc, nil
}

// Device is a simulated GPS receiver driving along a path. Each sample moves it
// stride points further and it parks on the last point.
type Device struct {
	mu        sync.Mutex
	pos       types.Coordinate
	path      []types.Coordinate
	idx       int
	stride    int
	failEvery int
	samples   int
}

// NewDevice starts a receiver at start. When failEvery > 0 every failEvery-th
// sample fails with ErrNoFix.
func NewDevice(start types.Coordinate, stride, failEvery int) *Device {
	if stride < 1 {
		stride = 1
	}
	return &Device{pos: start, stride: stride, failEvery: failEvery}
}

// Follow switches the receiver onto path, continuing from the path point
// nearest to where it currently is.
func (d *Device) Follow(path []types.Coordinate) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.path = append([]types.Coordinate(nil), path...)
	d.idx = 0
	best := -1.0
	for i, pt := range d.path {
		if dist := geo.Distance(d.pos, pt); best < 0 || dist < best {
			best = dist
			d.idx = i
		}
	}
}

func (d *Device) CurrentPosition(ctx context.Context) (types.Coordinate, error) {
	if err := ctx.Err(); err != nil {
		return types.Coordinate{}, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.samples++
	if d.failEvery > 0 && d.samples%d.failEvery == 0 {
		return types.Coordinate{}, ErrNoFix
	}

	if len(d.path) > 0 {
		d.pos = d.path[d.idx]
		d.idx = min(d.idx+d.stride, len(d.path)-1)
	}
	return d.pos, nil
}
