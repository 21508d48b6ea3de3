// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kkyr/fig"

	"github.com/wneessen/waybar-locshare/internal/region"
)

const (
	configEnv = "WAYBARLOCSHARE"

	// GoogleAPIKeyEnv is read when no geocoder API key is configured for the Google provider.
	GoogleAPIKeyEnv = "GOOGLE_MAPS_API_KEY"

	DefaultTextTpl    = "{{.Marker}}{{.Address}}"
	DefaultAltTextTpl = "{{.Marker}}{{floatFormat .Latitude 5}}, {{floatFormat .Longitude 5}}"
	DefaultTooltipTpl = "{{loc \"Share your location\"}}\n{{.Address}}\n" +
		"{{loc \"Coordinates\"}}: {{.Latitude}}, {{.Longitude}}\n{{.ShareURL}}\n" +
		"{{loc \"Updated\"}}: {{naturalTime .UpdatedAt}}"
)

const (
	GeocoderGoogle       = "google"
	GeocoderNominatim    = "nominatim"
	GeocoderOpenCage     = "opencage"
	GeocoderGeocodeEarth = "geocode-earth"

	SharePortal    = "portal"
	ShareClipboard = "clipboard"
	ShareStderr    = "stderr"

	NotifyDBus = "dbus"
	NotifyLog  = "log"
)

var ErrMissingAPIKey = errors.New("geocoder requires an API key")

// Config represents the application's configuration structure.
type Config struct {
	Locale   string     `fig:"locale"`
	LogLevel slog.Level `fig:"loglevel" default:"0"`

	// Region is the initial map viewport. An all-zero region falls back to the default viewport.
	Region struct {
		Latitude       float64 `fig:"latitude"`
		Longitude      float64 `fig:"longitude"`
		LatitudeDelta  float64 `fig:"latitude_delta"`
		LongitudeDelta float64 `fig:"longitude_delta"`
	} `fig:"region"`

	Geocoder struct {
		// Allowed values: google, nominatim, opencage, geocode-earth
		Provider string `fig:"provider" default:"google"`
		APIKey   string `fig:"apikey"`
		// RefreshOnResume resolves the current region again after the system woke up
		RefreshOnResume bool `fig:"refresh_on_resume"`
	} `fig:"geocoder"`

	Share struct {
		// Allowed values: portal, clipboard, stderr
		Provider string `fig:"provider" default:"portal"`
	} `fig:"share"`

	Notify struct {
		// Allowed values: dbus, log
		Provider string `fig:"provider" default:"dbus"`
	} `fig:"notify"`

	Intervals struct {
		Output time.Duration `fig:"output" default:"30s"`
	} `fig:"intervals"`

	Templates struct {
		Text    string `fig:"text"`
		AltText string `fig:"alt_text"`
		Tooltip string `fig:"tooltip"`
	} `fig:"templates"`

	Sources struct {
		DisableStream         bool   `fig:"disable_stream"`
		EnableGeolocationFile bool   `fig:"enable_geolocation_file"`
		GeolocationFile       string `fig:"geolocation_file"`
		EnableGeoIP           bool   `fig:"enable_geoip"`
		EnableGPSD            bool   `fig:"enable_gpsd"`
		GPSDHost              string `fig:"gpsd_host" default:"localhost"`
		GPSDPort              string `fig:"gpsd_port" default:"2947"`
	} `fig:"sources"`

	Metrics struct {
		// Listen is the address the Prometheus endpoint is served on; empty disables it.
		Listen string `fig:"listen"`
	} `fig:"metrics"`
}

func NewFromFile(path, file string) (*Config, error) {
	conf := new(Config)
	_, err := os.Stat(filepath.Join(path, file))
	if err != nil {
		return conf, fmt.Errorf("failed to read Config: %w", err)
	}
	if err = fig.Load(conf, fig.Dirs(path), fig.File(file), fig.UseEnv(configEnv)); err != nil {
		return conf, fmt.Errorf("failed to load Config: %w", err)
	}

	return conf, conf.Validate()
}

func New() (*Config, error) {
	conf := new(Config)
	if err := fig.Load(conf, fig.AllowNoFile(), fig.UseEnv(configEnv)); err != nil {
		return conf, fmt.Errorf("failed to load Config: %w", err)
	}

	return conf, conf.Validate()
}

func (c *Config) Validate() error {
	c.Geocoder.Provider = strings.ToLower(strings.TrimSpace(c.Geocoder.Provider))
	switch c.Geocoder.Provider {
	case GeocoderGoogle:
		if c.Geocoder.APIKey == "" {
			c.Geocoder.APIKey = os.Getenv(GoogleAPIKeyEnv)
		}
		if c.Geocoder.APIKey == "" {
			return fmt.Errorf("%w: set geocoder.apikey or %s", ErrMissingAPIKey, GoogleAPIKeyEnv)
		}
	case GeocoderOpenCage, GeocoderGeocodeEarth:
		if c.Geocoder.APIKey == "" {
			return fmt.Errorf("%w: %s", ErrMissingAPIKey, c.Geocoder.Provider)
		}
	case GeocoderNominatim:
	default:
		return fmt.Errorf("invalid geocoder provider: %s", c.Geocoder.Provider)
	}

	c.Share.Provider = strings.ToLower(strings.TrimSpace(c.Share.Provider))
	switch c.Share.Provider {
	case SharePortal, ShareClipboard, ShareStderr:
	default:
		return fmt.Errorf("invalid share provider: %s", c.Share.Provider)
	}
	c.Notify.Provider = strings.ToLower(strings.TrimSpace(c.Notify.Provider))
	switch c.Notify.Provider {
	case NotifyDBus, NotifyLog:
	default:
		return fmt.Errorf("invalid notify provider: %s", c.Notify.Provider)
	}

	initial := c.InitialRegion()
	if initial == (region.Region{}) {
		initial = region.Default()
		c.Region.Latitude, c.Region.Longitude = initial.Latitude, initial.Longitude
		c.Region.LatitudeDelta, c.Region.LongitudeDelta = initial.LatitudeDelta, initial.LongitudeDelta
	}
	if err := initial.Validate(); err != nil {
		return fmt.Errorf("invalid initial region: %w", err)
	}
	if c.Intervals.Output <= 0 {
		return fmt.Errorf("invalid output interval: %s", c.Intervals.Output)
	}

	if c.Locale == "" {
		c.Locale = getLocale()
	}
	if c.Templates.Text == "" {
		c.Templates.Text = DefaultTextTpl
	}
	if c.Templates.AltText == "" {
		c.Templates.AltText = DefaultAltTextTpl
	}
	if c.Templates.Tooltip == "" {
		c.Templates.Tooltip = DefaultTooltipTpl
	}
	if c.Sources.GeolocationFile == "" {
		home, _ := os.UserHomeDir()
		c.Sources.GeolocationFile = filepath.Join(home, ".config", "waybar-locshare", "geolocation")
	}

	return nil
}

// InitialRegion returns the configured initial map viewport.
func (c *Config) InitialRegion() region.Region {
	return region.Region{
		Latitude:       c.Region.Latitude,
		Longitude:      c.Region.Longitude,
		LatitudeDelta:  c.Region.LatitudeDelta,
		LongitudeDelta: c.Region.LongitudeDelta,
	}
}

func getLocale() string {
	locale := os.Getenv("LC_MESSAGES")
	if idx := strings.Index(locale, "."); idx != -1 {
		lang := locale[:idx]
		return strings.ReplaceAll(lang, "_", "-")
	}
	return locale
}
