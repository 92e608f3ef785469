package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/musthaq16/vehicle-route-tracker/internal/config"
	"github.com/musthaq16/vehicle-route-tracker/internal/dispatcher"
	"github.com/musthaq16/vehicle-route-tracker/internal/geo"
	"github.com/musthaq16/vehicle-route-tracker/internal/logging"
	"github.com/musthaq16/vehicle-route-tracker/internal/mapserver"
	"github.com/musthaq16/vehicle-route-tracker/internal/osrm"
	"github.com/musthaq16/vehicle-route-tracker/internal/progress"
	"github.com/musthaq16/vehicle-route-tracker/internal/simulator"
	"github.com/musthaq16/vehicle-route-tracker/internal/tracker"
	"github.com/musthaq16/vehicle-route-tracker/types"
)

const shutdownWait = 5 * time.Second

// routeManager feeds configured waypoints into one tracking controller and
// runs the side tasks that watch it.
type routeManager struct {
	cfg        *config.AppConfig
	log        *slog.Logger
	controller *tracker.Controller
	device     tracker.LocationSource

	mu  sync.Mutex
	fed int // configured waypoints already clicked

	wg sync.WaitGroup
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var current atomic.Pointer[routeManager]
	cfg, err := config.Watch(configPath, func(c *config.AppConfig) {
		if rm := current.Load(); rm != nil {
			rm.reload(ctx, c)
		}
	}, func(err error) {
		slog.Error("config reload rejected", "error", err)
	})
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	var logFile io.Writer
	if cfg.Log.File != "" {
		f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
		defer f.Close()
		logFile = f
	}
	logger := logging.New(os.Stdout, logFile, cfg.Log.Level).With("vehicle", cfg.Tracker.VehicleID)
	slog.SetDefault(logger)

	rm, err := newRouteManager(cfg, logger)
	if err != nil {
		return err
	}
	current.Store(rm)
	return rm.run(ctx, stop)
}

func newRouteManager(cfg *config.AppConfig, logger *slog.Logger) (*routeManager, error) {
	rm := &routeManager{cfg: cfg, log: logger}
	rm.device = newDevice(cfg, logger)

	animator, err := tracker.NewAnimator(
		tracker.Strategy(cfg.Tracker.Strategy),
		rm.device,
		geo.Distance,
		cfg.Tracker.ArrivalMeters,
	)
	if err != nil {
		return nil, err
	}

	directions := osrm.New(cfg.Directions.BaseUrl, cfg.Directions.ApiKey, cfg.Directions.Profile, cfg.DirectionsTimeout())
	rm.controller, err = tracker.NewController(tracker.Options{
		Directions: directions,
		Animator:   animator,
		Device:     rm.device,
		SeedOrigin: cfg.Tracker.SeedOrigin,
		Interval:   cfg.TickInterval(),
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}
	return rm, nil
}

// newDevice picks the location source. A simulated receiver starts at the
// configured location, or at the first waypoint when none is set.
func newDevice(cfg *config.AppConfig, logger *slog.Logger) tracker.LocationSource {
	loc, ok := cfg.DeviceLocation()
	if cfg.Device.Mode == config.DeviceSimulated {
		if !ok {
			if wps := cfg.WaypointCoords(); len(wps) > 0 {
				loc, ok = wps[0], true
			}
		}
		if ok {
			return simulator.NewDevice(loc, cfg.Device.Stride, cfg.Device.FailEvery)
		}
		logger.Warn("simulated device has no start position, reporting no fix")
		return simulator.Static{}
	}
	if !ok {
		return simulator.Static{}
	}
	return simulator.NewStatic(loc)
}

func (rm *routeManager) run(ctx context.Context, stop context.CancelFunc) error {
	runErr := make(chan error, 1)
	go func() { runErr <- rm.controller.Run(ctx) }()

	rm.spawn(func() { rm.watchProgress(ctx, stop) })
	if d, ok := rm.device.(*simulator.Device); ok {
		rm.spawn(func() { rm.followRoutes(d) })
	}
	if rm.cfg.Telemetry.Enabled {
		rm.spawn(func() { rm.forwardTelemetry(ctx) })
	}
	if rm.cfg.Server.Enabled {
		if err := rm.startServer(ctx); err != nil {
			stop()
			return errors.Join(err, <-runErr)
		}
	}

	rm.feed(ctx, rm.cfg)
	rm.log.Info("tracker started, waiting for completion or signal...", "strategy", rm.cfg.Tracker.Strategy)

	err := <-runErr
	rm.log.Info("tracker stopped, waiting for workers")

	waitChan := make(chan struct{})
	go func() {
		rm.wg.Wait()
		close(waitChan)
	}()
	select {
	case <-waitChan:
		rm.log.Info("all workers stopped")
	case <-time.After(shutdownWait):
		rm.log.Warn("timeout waiting for workers to stop, forcing exit")
	}
	return err
}

func (rm *routeManager) spawn(fn func()) {
	rm.wg.Add(1)
	go func() {
		defer rm.wg.Done()
		fn()
	}()
}

func (rm *routeManager) startServer(ctx context.Context) error {
	d, err := dispatcher.New(rm.log)
	if err != nil {
		return err
	}
	srv := mapserver.New(rm.controller, d, rm.log, rm.cfg.Server.AllowedOrigins)
	rm.spawn(func() {
		if err := srv.ListenAndServe(ctx, rm.cfg.Server.Address); err != nil {
			rm.log.Error("map server stopped", "error", err)
		}
	})
	return nil
}

// live returns the latest valid config, falling back to the one loaded at startup.
func (rm *routeManager) live() *config.AppConfig {
	if c := config.GetCurrentConfig(); c != nil {
		return c
	}
	return rm.cfg
}

// feed clicks every configured waypoint that has not been clicked yet.
func (rm *routeManager) feed(ctx context.Context, cfg *config.AppConfig) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	coords := cfg.WaypointCoords()
	for ; rm.fed < len(coords); rm.fed++ {
		pt := coords[rm.fed]
		if err := rm.controller.AddWaypoint(ctx, pt); err != nil {
			rm.log.Warn("waypoint not added", "position", pt.String(), "error", err)
			return
		}
		rm.log.Info("waypoint added", "index", rm.fed+1, "position", pt.String())
	}
}

// reload appends waypoints added to the config file since the last load.
// tracker.auto_start is read through live; other settings take effect on restart.
func (rm *routeManager) reload(ctx context.Context, cfg *config.AppConfig) {
	rm.log.Info("config reloaded", "waypoints", len(cfg.Waypoints))
	rm.feed(ctx, cfg)
}

// watchProgress logs progress, starts tracking once a route covers every
// clicked waypoint, and stops the process after arrival when nothing else
// keeps it alive.
func (rm *routeManager) watchProgress(ctx context.Context, stop context.CancelFunc) {
	updates, cancel := rm.controller.Subscribe()
	defer cancel()

	var (
		startedSeq  uint64
		wasTracking bool
		lastReport  string
	)
	for snap := range updates {
		if rm.live().Tracker.AutoStart && shouldAutoStart(snap, startedSeq) {
			startedSeq = snap.RouteSeq
			rm.startTracking(ctx)
		}

		if r, ok := progress.Compute(snap); ok && snap.Tracking {
			if s := r.String(); s != lastReport {
				rm.log.Info("progress", "report", s)
				lastReport = s
			}
		}

		if wasTracking && !snap.Tracking {
			rm.log.Info("tracking complete")
			if !rm.cfg.Server.Enabled {
				stop()
			}
		}
		wasTracking = snap.Tracking
	}
}

func (rm *routeManager) startTracking(ctx context.Context) {
	err := rm.controller.StartTracking(ctx)
	switch {
	case err == nil:
		rm.log.Info("tracking started")
	case errors.Is(err, tracker.ErrAlreadyTracking), errors.Is(err, tracker.ErrStopped), errors.Is(err, context.Canceled):
	default:
		rm.log.Warn("tracking not started", "error", err)
	}
}

// shouldAutoStart reports whether snap carries a new, complete route that
// is not being tracked yet.
func shouldAutoStart(snap tracker.Snapshot, startedSeq uint64) bool {
	if snap.Route == nil || snap.Tracking || !snap.Controls.Enabled {
		return false
	}
	if snap.RouteSeq <= startedSeq {
		return false
	}
	return len(snap.Route.Legs)+1 == len(snap.Waypoints)
}

// followRoutes keeps the simulated receiver on the newest route.
func (rm *routeManager) followRoutes(d *simulator.Device) {
	updates, cancel := rm.controller.Subscribe()
	defer cancel()

	var seq uint64
	for snap := range updates {
		if snap.Route != nil && snap.RouteSeq != seq {
			seq = snap.RouteSeq
			d.Follow(snap.Route.Path)
			rm.log.Debug("device following route", "seq", seq, "points", len(snap.Route.Path))
		}
	}
}

// forwardTelemetry sends every vehicle move to the Codec 8 server while tracking.
func (rm *routeManager) forwardTelemetry(ctx context.Context) {
	emitter, err := simulator.Dial(ctx, rm.cfg.Telemetry.Address, rm.cfg.Telemetry.Imei)
	if err != nil {
		rm.log.Error("telemetry disabled", "address", rm.cfg.Telemetry.Address, "error", err)
		return
	}
	defer emitter.Close()
	rm.log.Info("telemetry connected", "address", rm.cfg.Telemetry.Address)

	updates, cancel := rm.controller.Subscribe()
	defer cancel()

	var last *types.Coordinate
	for snap := range updates {
		if !snap.Tracking || snap.Vehicle == nil {
			continue
		}
		if last != nil && *last == *snap.Vehicle {
			continue
		}
		pos := positionFor(last, *snap.Vehicle, rm.cfg.TickInterval(), time.Now())
		if err := emitter.Send(pos); err != nil {
			rm.log.Error("telemetry send failed", "error", err)
			return
		}
		v := *snap.Vehicle
		last = &v
	}
}

// positionFor builds the AVL record for a move from prev to cur over one tick.
func positionFor(prev *types.Coordinate, cur types.Coordinate, tick time.Duration, now time.Time) simulator.Position {
	p := simulator.Position{Time: now, Coordinate: cur, Satellites: 12}
	if prev == nil {
		return p
	}
	p.Angle = uint16(geo.Bearing(*prev, cur)) % 360
	if tick > 0 {
		kmh := geo.Distance(*prev, cur) / tick.Seconds() * 3.6
		p.Speed = uint16(min(kmh, 65535))
	}
	return p
}
