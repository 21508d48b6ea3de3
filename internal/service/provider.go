// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/text/language"

	"github.com/wneessen/waybar-locshare/internal/clipboard"
	"github.com/wneessen/waybar-locshare/internal/config"
	"github.com/wneessen/waybar-locshare/internal/geobus"
	"github.com/wneessen/waybar-locshare/internal/geobus/provider/geoip"
	"github.com/wneessen/waybar-locshare/internal/geobus/provider/geolocation_file"
	"github.com/wneessen/waybar-locshare/internal/geobus/provider/gpsd"
	"github.com/wneessen/waybar-locshare/internal/geobus/provider/region_stream"
	"github.com/wneessen/waybar-locshare/internal/geocode"
	geocodeearth "github.com/wneessen/waybar-locshare/internal/geocode/provider/geocode-earth"
	"github.com/wneessen/waybar-locshare/internal/geocode/provider/google"
	"github.com/wneessen/waybar-locshare/internal/geocode/provider/opencage"
	nominatim "github.com/wneessen/waybar-locshare/internal/geocode/provider/osm-nominatim"
	"github.com/wneessen/waybar-locshare/internal/logger"
	"github.com/wneessen/waybar-locshare/internal/notify"
	"github.com/wneessen/waybar-locshare/internal/share"
)

var ErrNoSources = errors.New("no region sources enabled")

func (s *Service) selectGeobusProviders() ([]geobus.Provider, error) {
	var provider []geobus.Provider

	if !s.config.Sources.DisableStream && s.input != nil {
		provider = append(provider, region_stream.NewRegionStreamProvider(s.input, s.logger))
	}

	if s.config.Sources.EnableGeolocationFile {
		provider = append(provider, geolocation_file.NewGeolocationFileProvider(s.config.Sources.GeolocationFile))
	}

	if s.config.Sources.EnableGeoIP {
		provider = append(provider, geoip.NewGeolocationGeoIPProvider(s.http))
	}

	if s.config.Sources.EnableGPSD {
		provider = append(provider, gpsd.NewGeolocationGPSDProvider(s.config.Sources.GPSDHost,
			s.config.Sources.GPSDPort, s.logger))
	}

	if len(provider) == 0 {
		return nil, ErrNoSources
	}
	return provider, nil
}

func (s *Service) selectGeocodeProvider(conf *config.Config, lang language.Tag) (geocode.Geocoder, error) {
	switch conf.Geocoder.Provider {
	case config.GeocoderGoogle:
		coder, err := google.New(s.http, lang, conf.Geocoder.APIKey)
		if err != nil {
			return nil, err
		}
		return coder, nil
	case config.GeocoderNominatim:
		return nominatim.New(s.http, lang), nil
	case config.GeocoderOpenCage:
		if conf.Geocoder.APIKey == "" {
			return nil, fmt.Errorf("opencage geocoder requires an API key")
		}
		return opencage.New(s.http, lang, conf.Geocoder.APIKey), nil
	case config.GeocoderGeocodeEarth:
		if conf.Geocoder.APIKey == "" {
			return nil, fmt.Errorf("geocode-earth geocoder requires an API key")
		}
		return geocodeearth.New(s.http, lang, conf.Geocoder.APIKey), nil
	default:
		return nil, fmt.Errorf("unsupported geocoder type: %s", conf.Geocoder.Provider)
	}
}

// selectShareProvider returns the configured share adapter. Without a session bus the portal
// falls back to the clipboard.
func (s *Service) selectShareProvider(ctx context.Context) share.Sharer {
	switch s.config.Share.Provider {
	case config.SharePortal:
		portal, err := share.NewPortal(ctx)
		if err != nil {
			s.logger.Warn("desktop portal unavailable, sharing via clipboard", logger.Err(err))
			return share.NewClipboard(s.clipboard)
		}
		s.closers = append(s.closers, portal)
		return portal
	case config.ShareStderr:
		return share.NewWriter(s.shareOutput)
	default:
		return share.NewClipboard(s.clipboard)
	}
}

// selectNotifyProvider returns the configured notifier. Without a session bus notifications
// are logged.
func (s *Service) selectNotifyProvider(ctx context.Context) notify.Notifier {
	if s.config.Notify.Provider == config.NotifyDBus {
		notifier, err := notify.NewDBus(ctx)
		if err == nil {
			s.closers = append(s.closers, notifier)
			return notifier
		}
		s.logger.Warn("desktop notifications unavailable, logging errors instead", logger.Err(err))
	}
	return notify.NewLog(s.logger)
}

func selectClipboard(log *logger.Logger) clipboard.Clipboard {
	system := clipboard.NewSystem()
	if err := system.Available(); err != nil {
		log.Warn("system clipboard unavailable, copies are kept in memory", logger.Err(err))
		return &clipboard.Memory{}
	}
	return system
}
