package progress

import (
	"fmt"
	"math"

	"github.com/musthaq16/vehicle-route-tracker/internal/geo"
	"github.com/musthaq16/vehicle-route-tracker/internal/tracker"
)

// Report summarizes how far the vehicle is along its route
type Report struct {
	Strategy        tracker.Strategy `json:"strategy"`
	Tracking        bool             `json:"tracking"`
	Step            int              `json:"step"`  // 1-based, replay only
	Steps           int              `json:"steps"` // replay only
	Percent         float64          `json:"percent"`
	RemainingMeters float64          `json:"remainingMeters"`
}

// Compute derives a Report from a snapshot. Replay progress counts steps; live
// progress compares the remaining great-circle distance with the route length.
func Compute(snap tracker.Snapshot) (Report, bool) {
	if snap.Route == nil || snap.Vehicle == nil {
		return Report{}, false
	}
	dest, ok := snap.Route.Destination()
	if !ok {
		return Report{}, false
	}

	r := Report{
		Strategy:        snap.Strategy,
		Tracking:        snap.Tracking,
		RemainingMeters: geo.Distance(*snap.Vehicle, dest),
	}

	switch snap.Strategy {
	case tracker.Replay:
		if snap.Steps > 0 {
			r.Step = snap.Cursor + 1
			r.Steps = snap.Steps
			if snap.Steps > 1 {
				r.Percent = 100 * float64(snap.Cursor) / float64(snap.Steps-1)
			} else {
				r.Percent = 100
			}
		}
	default:
		total := snap.Route.Distance
		if total <= 0 {
			total = geo.PathLength(snap.Route.Path)
		}
		if total > 0 {
			r.Percent = 100 * (1 - r.RemainingMeters/total)
		}
	}
	r.Percent = math.Max(0, math.Min(100, r.Percent))
	return r, true
}

func (r Report) String() string {
	if r.Steps > 0 {
		return fmt.Sprintf("step %d/%d (%.0f%%), %.0f m to go", r.Step, r.Steps, r.Percent, r.RemainingMeters)
	}
	return fmt.Sprintf("%.0f%%, %.0f m to go", r.Percent, r.RemainingMeters)
}
