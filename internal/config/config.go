package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/musthaq16/vehicle-route-tracker/types"
)

var (
	configMutex   sync.RWMutex
	currentConfig *AppConfig
)

// Tracker strategies
const (
	StrategyLive   = "live"
	StrategyReplay = "replay"
)

// Device modes
const (
	DeviceStatic    = "static"
	DeviceSimulated = "simulated"
)

type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// DirectionsConfig points at an OSRM-compatible routing server
type DirectionsConfig struct {
	BaseUrl        string `mapstructure:"base_url"`
	ApiKey         string `mapstructure:"api_key"`
	Profile        string `mapstructure:"profile"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// TrackerConfig selects the animation strategy and its timing
type TrackerConfig struct {
	VehicleID     string  `mapstructure:"vehicle_id"`
	Strategy      string  `mapstructure:"strategy"`
	TickSeconds   int     `mapstructure:"tick_seconds"`
	ArrivalMeters float64 `mapstructure:"arrival_meters"`
	SeedOrigin    bool    `mapstructure:"seed_origin"`
	AutoStart     bool    `mapstructure:"auto_start"`
}

// DeviceConfig describes where location samples come from
type DeviceConfig struct {
	Mode      string `mapstructure:"mode"`
	Location  string `mapstructure:"location"` // "lat,lng"
	Stride    int    `mapstructure:"stride"`
	FailEvery int    `mapstructure:"fail_every"`
}

type ServerConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	Address        string   `mapstructure:"address"`
	AllowedOrigins []string `mapstructure:"allowed_origins"` // besides the server's own origin
}

// TelemetryConfig forwards vehicle positions to a Codec 8 server
type TelemetryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"`
	Imei    string `mapstructure:"imei"`
}

// AppConfig holds entire config
type AppConfig struct {
	Log        LogConfig        `mapstructure:"log"`
	Directions DirectionsConfig `mapstructure:"directions"`
	Tracker    TrackerConfig    `mapstructure:"tracker"`
	Device     DeviceConfig     `mapstructure:"device"`
	Server     ServerConfig     `mapstructure:"server"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
	Waypoints  []string         `mapstructure:"waypoints"` // "lat,lng", replayed as map clicks
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")

	v.SetDefault("directions.base_url", "https://router.project-osrm.org")
	v.SetDefault("directions.api_key", "")
	v.SetDefault("directions.profile", "driving")
	v.SetDefault("directions.timeout_seconds", 10)

	v.SetDefault("tracker.vehicle_id", "vehicle-1")
	v.SetDefault("tracker.strategy", StrategyReplay)
	v.SetDefault("tracker.tick_seconds", 3)
	v.SetDefault("tracker.arrival_meters", 50.0)
	v.SetDefault("tracker.seed_origin", true)
	v.SetDefault("tracker.auto_start", true)

	v.SetDefault("device.mode", DeviceStatic)
	v.SetDefault("device.location", "")
	v.SetDefault("device.stride", 5)
	v.SetDefault("device.fail_every", 0)

	v.SetDefault("server.enabled", false)
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.allowed_origins", []string{})

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.address", "localhost:5027")
	v.SetDefault("telemetry.imei", "")
}

// newViper builds a viper instance for the YAML file at path
func newViper(path string) *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	// Explicitly set the config type if not using file extension
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	return v
}

func decode(v *viper.Viper) (*AppConfig, error) {
	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// readConfig reads and validates the file at path and makes it the current config.
func readConfig(path string) (*viper.Viper, *AppConfig, error) {
	v := newViper(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, nil, fmt.Errorf("error reading config file: %w", err)
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, nil, err
	}

	setCurrent(cfg)
	return v, cfg, nil
}

func setCurrent(cfg *AppConfig) {
	configMutex.Lock()
	currentConfig = cfg
	configMutex.Unlock()
}

// Watch loads the configuration and keeps GetCurrentConfig up to date with
// every valid reload, calling onChange after each one. Invalid reloads are
// passed to onError and the previous config is kept.
func Watch(path string, onChange func(*AppConfig), onError func(error)) (*AppConfig, error) {
	v, cfg, err := readConfig(path)
	if err != nil {
		return nil, err
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		newCfg, err := decode(v)
		if err != nil {
			if onError != nil {
				onError(fmt.Errorf("reloading %s: %w", e.Name, err))
			}
			return
		}
		setCurrent(newCfg)
		if onChange != nil {
			onChange(newCfg)
		}
	})
	v.WatchConfig()

	return cfg, nil
}

// GetCurrentConfig returns the current configuration in a thread-safe way
func GetCurrentConfig() *AppConfig {
	configMutex.RLock()
	defer configMutex.RUnlock()
	return currentConfig
}

// Validate checks values that would otherwise fail at runtime
func (c *AppConfig) Validate() error {
	switch c.Tracker.Strategy {
	case StrategyLive, StrategyReplay:
	default:
		return fmt.Errorf("unknown tracker strategy %q", c.Tracker.Strategy)
	}
	if c.Tracker.TickSeconds <= 0 {
		return fmt.Errorf("tracker.tick_seconds must be positive, got %d", c.Tracker.TickSeconds)
	}
	if c.Tracker.ArrivalMeters <= 0 {
		return fmt.Errorf("tracker.arrival_meters must be positive, got %v", c.Tracker.ArrivalMeters)
	}
	if c.Directions.TimeoutSeconds <= 0 {
		return fmt.Errorf("directions.timeout_seconds must be positive, got %d", c.Directions.TimeoutSeconds)
	}

	if c.Directions.Profile != string(types.Driving) {
		return fmt.Errorf("directions.profile must be %q, got %q", types.Driving, c.Directions.Profile)
	}

	switch c.Device.Mode {
	case DeviceStatic, DeviceSimulated:
	default:
		return fmt.Errorf("unknown device mode %q", c.Device.Mode)
	}
	if c.Device.Location != "" {
		if _, err := types.ParseCoord(c.Device.Location); err != nil {
			return fmt.Errorf("device.location: %w", err)
		}
	}
	if c.Device.Stride <= 0 {
		return fmt.Errorf("device.stride must be positive, got %d", c.Device.Stride)
	}

	for i, wp := range c.Waypoints {
		if _, err := types.ParseCoord(wp); err != nil {
			return fmt.Errorf("waypoints[%d]: %w", i, err)
		}
	}

	if c.Telemetry.Enabled && len(c.Telemetry.Imei) != 15 {
		return fmt.Errorf("telemetry.imei must be 15 digits")
	}
	return nil
}

// TickInterval is the animation timer period
func (c *AppConfig) TickInterval() time.Duration {
	return time.Duration(c.Tracker.TickSeconds) * time.Second
}

// DirectionsTimeout bounds one directions request
func (c *AppConfig) DirectionsTimeout() time.Duration {
	return time.Duration(c.Directions.TimeoutSeconds) * time.Second
}

// WaypointCoords parses the configured waypoints. The config was validated on load.
func (c *AppConfig) WaypointCoords() []types.Coordinate {
	coords := make([]types.Coordinate, 0, len(c.Waypoints))
	for _, wp := range c.Waypoints {
		if pt, err := types.ParseCoord(wp); err == nil {
			coords = append(coords, pt)
		}
	}
	return coords
}

// DeviceLocation returns the configured device position, if any
func (c *AppConfig) DeviceLocation() (types.Coordinate, bool) {
	if c.Device.Location == "" {
		return types.Coordinate{}, false
	}
	pt, err := types.ParseCoord(c.Device.Location)
	if err != nil {
		return types.Coordinate{}, false
	}
	return pt, true
}
