package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"sinulogmap/internal/model"
	"sinulogmap/internal/venue"
)

// MapsKeyEnv names the environment variable holding the maps API key. The
// key is a secret and is never written to the YAML file.
const MapsKeyEnv = "GOOGLE_MAPS_API_KEY"

// MapConfig controls the default camera.
type MapConfig struct {
	Center    model.LatLng `yaml:"center" json:"center"`
	WideZoom  int          `yaml:"wide_zoom" json:"wide_zoom" validate:"min=1,max=21"`
	FocusZoom int          `yaml:"focus_zoom" json:"focus_zoom" validate:"min=1,max=21"`
}

// GeolocationConfig mirrors the options passed to the browser's
// position request.
type GeolocationConfig struct {
	HighAccuracy bool `yaml:"high_accuracy" json:"high_accuracy"`
	TimeoutMS    int  `yaml:"timeout_ms" json:"timeout_ms" validate:"gte=1"`
	MaximumAgeMS int  `yaml:"maximum_age_ms" json:"maximum_age_ms" validate:"gte=0"`
}

// DirectionsConfig configures the routing provider client.
type DirectionsConfig struct {
	Endpoint       string  `yaml:"endpoint" json:"endpoint" validate:"required,url"`
	TravelMode     string  `yaml:"travel_mode" json:"travel_mode" validate:"oneof=driving walking bicycling transit"`
	TimeoutSeconds int     `yaml:"timeout_seconds" json:"timeout_seconds" validate:"gte=0"`
	RatePerSecond  float64 `yaml:"rate_per_second" json:"rate_per_second" validate:"gte=0"`
	Burst          int     `yaml:"burst" json:"burst" validate:"gte=0"`
}

// SessionConfig controls idle session eviction.
type SessionConfig struct {
	// IdleMinutes is how long a session may go unseen; 0 keeps sessions
	// forever.
	IdleMinutes int `yaml:"idle_minutes" json:"idle_minutes" validate:"gte=0"`
	// Sweep is a cron-style schedule for the eviction pass.
	Sweep string `yaml:"sweep" json:"sweep" validate:"required"`
}

type LogConfig struct {
	Level  string `yaml:"level" json:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" json:"format" validate:"oneof=pretty json"`
}

// BasicAuthConfig holds the credentials guarding every endpoint but /health.
// PasswordHash, when set, is an argon2id hash and takes precedence over
// Password.
type BasicAuthConfig struct {
	Username     string `yaml:"username" json:"username" validate:"required"`
	Password     string `yaml:"password,omitempty" json:"-"`
	PasswordHash string `yaml:"password_hash,omitempty" json:"-"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen" json:"listen" validate:"required"`

	// ScheduleFile is the path or http(s) URL of the schedule JSON document.
	ScheduleFile string `yaml:"schedule_file" json:"schedule_file" validate:"required"`

	// ImportICS lists extra iCalendar files or URLs merged into the schedule.
	ImportICS []string `yaml:"import_ics,omitempty" json:"import_ics,omitempty"`

	// CacheDir keeps the last good copy of remote sources.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	// DefaultDate is the date shown to new sessions. Empty or unknown
	// dates fall back to the first date of the schedule.
	DefaultDate string `yaml:"default_date" json:"default_date"`

	// Timezone is the IANA timezone of the festival, used for calendar
	// export.
	Timezone string `yaml:"timezone" json:"timezone" validate:"required,timezone"`

	Map         MapConfig         `yaml:"map" json:"map"`
	Geolocation GeolocationConfig `yaml:"geolocation" json:"geolocation"`
	Directions  DirectionsConfig  `yaml:"directions" json:"directions"`
	Session     SessionConfig     `yaml:"session" json:"session"`
	Log         LogConfig         `yaml:"log" json:"log"`

	// Venues is the venue directory keyed by canonical name; Aliases maps
	// alternate spellings onto those keys.
	Venues  map[string]model.Location `yaml:"venues" json:"venues"`
	Aliases map[string]string         `yaml:"aliases" json:"aliases"`

	// BasicAuth, when set, turns on HTTP basic auth.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`

	// CORSOrigins enables CORS for the listed origins.
	CORSOrigins []string `yaml:"cors_origins,omitempty" json:"cors_origins,omitempty"`

	// MapsAPIKey comes from the environment only.
	MapsAPIKey string `yaml:"-" json:"-"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:       "127.0.0.1:8080",
		ScheduleFile: "schedule.json",
		CacheDir:     "cache",
		Timezone:     "Asia/Manila",
		Map: MapConfig{
			Center:    venue.DefaultCenter,
			WideZoom:  13,
			FocusZoom: 16,
		},
		Geolocation: GeolocationConfig{
			HighAccuracy: true,
			TimeoutMS:    5000,
			MaximumAgeMS: 0,
		},
		Directions: DirectionsConfig{
			Endpoint:       "https://maps.googleapis.com/maps/api/directions/json",
			TravelMode:     "driving",
			TimeoutSeconds: 10,
			RatePerSecond:  1,
			Burst:          3,
		},
		Session: SessionConfig{
			IdleMinutes: 120,
			Sweep:       "*/10 * * * *",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "pretty",
		},
		Venues:  venue.DefaultLocations(),
		Aliases: venue.DefaultAliases(),
	}
}

// Normalize replaces zero values with the defaults.
func (c *Config) Normalize() {
	d := DefaultConfig()
	if c.Listen == "" {
		c.Listen = d.Listen
	}
	if c.ScheduleFile == "" {
		c.ScheduleFile = d.ScheduleFile
	}
	if c.CacheDir == "" {
		c.CacheDir = d.CacheDir
	}
	if c.Timezone == "" {
		c.Timezone = d.Timezone
	}
	if (c.Map.Center == model.LatLng{}) {
		c.Map.Center = d.Map.Center
	}
	if c.Map.WideZoom <= 0 {
		c.Map.WideZoom = d.Map.WideZoom
	}
	if c.Map.FocusZoom <= 0 {
		c.Map.FocusZoom = d.Map.FocusZoom
	}
	if c.Directions.Endpoint == "" {
		c.Directions.Endpoint = d.Directions.Endpoint
	}
	c.Directions.TravelMode = strings.ToLower(strings.TrimSpace(c.Directions.TravelMode))
	if c.Directions.TravelMode == "" {
		c.Directions.TravelMode = d.Directions.TravelMode
	}
	if c.Directions.TimeoutSeconds <= 0 {
		c.Directions.TimeoutSeconds = d.Directions.TimeoutSeconds
	}
	if c.Geolocation.TimeoutMS <= 0 {
		c.Geolocation.TimeoutMS = d.Geolocation.TimeoutMS
	}
	if c.Session.Sweep == "" {
		c.Session.Sweep = d.Session.Sweep
	}
	c.Log.Level = strings.ToLower(c.Log.Level)
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}
	// An empty directory means "use the built-in one"; aliases only default
	// alongside it.
	if len(c.Venues) == 0 {
		c.Venues = d.Venues
		if c.Aliases == nil {
			c.Aliases = d.Aliases
		}
	}
	if c.Aliases == nil {
		c.Aliases = map[string]string{}
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and cross references between the venue
// and alias tables.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if !c.Map.Center.Valid() {
		return fmt.Errorf("invalid config: map.center %s out of range", c.Map.Center)
	}
	for key, loc := range c.Venues {
		if strings.TrimSpace(loc.Name) == "" {
			return fmt.Errorf("invalid config: venue %q has no name", key)
		}
		if !loc.LatLng().Valid() {
			return fmt.Errorf("invalid config: venue %q has invalid coordinates", key)
		}
	}
	for alias, target := range c.Aliases {
		if _, ok := c.Venues[target]; !ok {
			return fmt.Errorf("invalid config: alias %q points at unknown venue %q", alias, target)
		}
	}
	if c.BasicAuth != nil && c.BasicAuth.Password == "" && c.BasicAuth.PasswordHash == "" {
		return errors.New("invalid config: basic_auth needs password or password_hash")
	}
	return nil
}

// Location returns the configured timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// DirectionsTimeout is the per-request timeout of the routing client.
func (c *Config) DirectionsTimeout() time.Duration {
	return time.Duration(c.Directions.TimeoutSeconds) * time.Second
}

// SessionIdle is the idle TTL of sessions.
func (c *Config) SessionIdle() time.Duration {
	return time.Duration(c.Session.IdleMinutes) * time.Minute
}

// LoadEnv reads a .env file (if present) and picks up the maps key from
// the environment. A missing .env is not an error.
func (c *Config) LoadEnv(files ...string) error {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load env: %w", err)
	}
	c.MapsAPIKey = strings.TrimSpace(os.Getenv(MapsKeyEnv))
	return nil
}

// Load reads the YAML config at path. On first run (no file) the defaults
// are written there with 0600 perms and returned; a failed write is
// returned alongside the usable defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	// Scalars keep their defaults when absent; the tables are taken from
	// the file as written.
	cfg := DefaultConfig()
	cfg.Venues = nil
	cfg.Aliases = nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.Normalize()

	return cfg, nil
}

// Save normalizes cfg and writes it to path as YAML through a temp file
// and rename, creating the directory (0700) and leaving the file 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".sinulogmap-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
