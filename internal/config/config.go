// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kkyr/fig"
)

const configEnv = "WAYBARLOCATION"

const (
	ModeCompact    = "compact"
	ModeHalfscreen = "halfscreen"
	ModeFullscreen = "fullscreen"
)

// ModeTemplates holds the default templates of a display mode.
type ModeTemplates struct {
	Text    string
	AltText string
	Tooltip string
}

// DefaultTemplates maps each display mode to its default layout. Compact only shows the city,
// halfscreen adds the street, fullscreen adds a title and the details of the place.
var DefaultTemplates = map[string]ModeTemplates{
	ModeCompact: {
		Text:    `{{truncate .CityLabel .MaxWidth}}`,
		AltText: `{{truncate .CityLabel .MaxWidth}}`,
		Tooltip: `{{.StreetLabel}}`,
	},
	ModeHalfscreen: {
		Text:    `{{.CityLabel}}`,
		AltText: `{{.StreetLabel}}`,
		Tooltip: "{{.CityLabel}}\n{{.StreetLabel}}",
	},
	ModeFullscreen: {
		Text:    `{{loc "title"}} {{.CityLabel}}`,
		AltText: `{{loc "title"}} {{.StreetLabel}}`,
		Tooltip: "{{loc \"title\"}}\n{{.CityLabel}}\n{{.StreetLabel}}\n" +
			"{{loc \"coordinates\"}}: {{floatFormat .Latitude 4}}, {{floatFormat .Longitude 4}}\n" +
			"{{loc \"elevation\"}}: {{.Elevation.Format 0}}\n" +
			"{{loc \"sunrise\"}}: {{timeFormat .SunriseTime \"15:04\"}}\n" +
			"{{loc \"sunset\"}}: {{timeFormat .SunsetTime \"15:04\"}}\n" +
			"{{loc \"moonphase\"}}: {{.MoonPhaseIcon}} {{loc .MoonPhase}}\n" +
			"{{loc \"updated\"}}: {{localizedTime .UpdateTime}}",
	},
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Config represents the application's configuration structure.
type Config struct {
	Locale   string     `fig:"locale"`
	LogLevel slog.Level `fig:"loglevel" default:"0"`

	Display struct {
		// Allowed values: compact, halfscreen, fullscreen
		Mode          string `fig:"mode" default:"compact" validate:"oneof=compact halfscreen fullscreen"`
		MaxWidth      int    `fig:"max_width" default:"32" validate:"gte=0"`
		ShowElevation bool   `fig:"show_elevation"`
	} `fig:"display"`

	Intervals struct {
		// Minimum time between two reverse geocoding lookups. Zero selects the default.
		Geocode    time.Duration `fig:"geocode" default:"1m" validate:"gt=0"`
		Output     time.Duration `fig:"output" default:"30s" validate:"gt=0"`
		CachePurge time.Duration `fig:"cache_purge" default:"30m" validate:"gt=0"`
	} `fig:"intervals"`

	Templates struct {
		Text    string `fig:"text"`
		AltText string `fig:"alt_text"`
		Tooltip string `fig:"tooltip"`
	} `fig:"templates"`

	GeoCoder struct {
		// Allowed values: nominatim, opencage, geocode-earth
		Provider          string  `fig:"provider" default:"nominatim" validate:"oneof=nominatim opencage geocode-earth"`
		APIKey            string  `fig:"apikey"`
		RequestsPerSecond float64 `fig:"requests_per_second" default:"1" validate:"gt=0"`
		// Endpoint and Zoom only apply to nominatim
		Endpoint string `fig:"endpoint" validate:"omitempty,url"`
		Zoom     int    `fig:"zoom" default:"18" validate:"gte=3,lte=18"`
	} `fig:"geocoder"`

	GeoLocation struct {
		GeoLocationFile        string `fig:"geolocation_file"`
		DisableGeolocationFile bool   `fig:"disable_geolocation_file"`
		DisableGPSD            bool   `fig:"disable_gpsd"`
		DisableGeoIP           bool   `fig:"disable_geoip"`
		DisableICHNAEA         bool   `fig:"disable_ichnaea"`
		ICHNAEAEndpoint        string `fig:"ichnaea_endpoint" validate:"omitempty,url"`
	} `fig:"geolocation"`
}

func NewFromFile(path, file string) (*Config, error) {
	conf := new(Config)
	_, err := os.Stat(filepath.Join(path, file))
	if err != nil {
		return conf, fmt.Errorf("failed to read config: %w", err)
	}
	if err = fig.Load(conf, fig.Dirs(path), fig.File(file), fig.UseEnv(configEnv)); err != nil {
		return conf, fmt.Errorf("failed to load config: %w", err)
	}

	return conf, conf.Validate()
}

func New() (*Config, error) {
	conf := new(Config)
	if err := fig.Load(conf, fig.AllowNoFile(), fig.UseEnv(configEnv)); err != nil {
		return conf, fmt.Errorf("failed to load config: %w", err)
	}

	return conf, conf.Validate()
}

// Validate checks the struct constraints and fills in defaults that depend on other values.
func (c *Config) Validate() error {
	c.Display.Mode = strings.ToLower(c.Display.Mode)
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Locale == "" {
		c.Locale = getLocale()
	}

	defaults := DefaultTemplates[c.Display.Mode]
	if c.Templates.Text == "" {
		c.Templates.Text = defaults.Text
	}
	if c.Templates.AltText == "" {
		c.Templates.AltText = defaults.AltText
	}
	if c.Templates.Tooltip == "" {
		c.Templates.Tooltip = defaults.Tooltip
	}
	if c.GeoLocation.GeoLocationFile == "" {
		home, _ := os.UserHomeDir()
		c.GeoLocation.GeoLocationFile = filepath.Join(home, ".config", "waybar-location", "geolocation")
	}

	return nil
}

func getLocale() string {
	locale := os.Getenv("LC_MESSAGES")
	if idx := strings.Index(locale, "."); idx != -1 {
		lang := locale[:idx]
		return strings.ReplaceAll(lang, "_", "-")
	}
	return locale
}
