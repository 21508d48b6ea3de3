// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/vorlif/spreak"

	"github.com/wneessen/waybar-locshare/internal/clipboard"
	"github.com/wneessen/waybar-locshare/internal/config"
	"github.com/wneessen/waybar-locshare/internal/geobus"
	"github.com/wneessen/waybar-locshare/internal/http"
	"github.com/wneessen/waybar-locshare/internal/logger"
	"github.com/wneessen/waybar-locshare/internal/metrics"
	"github.com/wneessen/waybar-locshare/internal/pipeline"
	"github.com/wneessen/waybar-locshare/internal/presenter"
	"github.com/wneessen/waybar-locshare/internal/region"
)

const (
	DesktopID = "waybar-locshare"

	subscriptionBuffer = 32
)

type Service struct {
	config    *config.Config
	geobus    *geobus.GeoBus
	logger    *logger.Logger
	localizer *spreak.Localizer
	presenter *presenter.Presenter
	scheduler gocron.Scheduler
	metrics   *metrics.Metrics
	http      *http.Client
	clipboard clipboard.Clipboard
	pipeline  *pipeline.Pipeline
	signals   signalSource
	input     io.Reader
	output    *syncWriter
	// shareOutput receives shared messages; stdout carries only waybar JSON
	shareOutput io.Writer
	closers     []io.Closer

	displayAltLock sync.RWMutex
	displayAltText bool
}

// syncWriter serializes writes so output lines and share messages never interleave.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (w *syncWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.w.Write(p)
}

func New(conf *config.Config, log *logger.Logger, loc *spreak.Localizer) (*Service, error) {
	bus, err := geobus.New(log)
	if err != nil {
		return nil, fmt.Errorf("failed to create geobus: %w", err)
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	pres, err := presenter.New(conf, loc)
	if err != nil {
		return nil, fmt.Errorf("failed to create presenter: %w", err)
	}

	service := &Service{
		config:      conf,
		geobus:      bus,
		logger:      log,
		localizer:   loc,
		presenter:   pres,
		scheduler:   scheduler,
		metrics:     metrics.New(),
		http:        http.New(log),
		clipboard:   selectClipboard(log),
		signals:     stdLibSignalSource{},
		input:       os.Stdin,
		output:      &syncWriter{w: os.Stdout},
		shareOutput: os.Stderr,
	}
	return service, nil
}

func (s *Service) Run(ctx context.Context) error {
	geocoder, err := s.selectGeocodeProvider(s.config, s.localizer.Language())
	if err != nil {
		return fmt.Errorf("failed to create geocode provider: %w", err)
	}
	s.logger.Debug("using geocode provider", slog.String("provider", geocoder.Name()))

	s.pipeline, err = pipeline.New(pipeline.Config{
		InitialRegion: s.config.InitialRegion(),
		Geocoder:      geocoder,
		Clipboard:     s.clipboard,
		Sharer:        s.selectShareProvider(ctx),
		Notifier:      s.selectNotifyProvider(ctx),
		Logger:        s.logger,
		Metrics:       s.metrics,
		ErrorTitle:    s.localizer.Get("Error"),
		OnChange:      s.printState,
	})
	if err != nil {
		return fmt.Errorf("failed to create location pipeline: %w", err)
	}

	providers, err := s.selectGeobusProviders()
	if err != nil {
		return fmt.Errorf("failed to create geobus orchestrator: %w", err)
	}
	orchestrator := s.geobus.NewOrchestrator(providers)

	if err = s.createScheduledJob(ctx, s.config.Intervals.Output, s.printOutput,
		"location_output_job"); err != nil {
		return err
	}
	s.scheduler.Start()

	// Signals are the module's click handlers
	sigChan := make(chan os.Signal, 1)
	s.signals.Notify(sigChan, syscall.SIGUSR1, syscall.SIGUSR2, syscall.SIGHUP)
	defer s.signals.Stop(sigChan)
	go s.handleSignals(ctx, sigChan)

	if s.config.Metrics.Listen != "" {
		go func() {
			if err := s.metrics.Serve(ctx, s.config.Metrics.Listen); err != nil {
				s.logger.Error("failed to serve metrics", slog.String("listen", s.config.Metrics.Listen),
					logger.Err(err))
			}
		}()
	}
	if s.config.Geocoder.RefreshOnResume {
		go s.monitorSleepResume(ctx)
	}

	// Subscribe to region updates from the geobus
	sub, unsub := s.geobus.Subscribe(DesktopID, subscriptionBuffer)
	go s.processLocationUpdates(ctx, sub)
	go orchestrator.Track(ctx, DesktopID)

	s.printOutput(ctx)

	// Wait for the context to cancel
	<-ctx.Done()
	if unsub != nil {
		unsub()
	}
	s.pipeline.Wait()

	var errs []error
	for _, closer := range s.closers {
		if err = closer.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err = s.scheduler.Shutdown(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (s *Service) createScheduledJob(ctx context.Context, interval time.Duration, task func(context.Context),
	jobName string,
) error {
	_, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(task),
		gocron.WithContext(ctx),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithName(jobName),
	)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", jobName, err)
	}
	return nil
}

// printOutput renders the current pipeline state. It keeps the humanized times in the tooltip
// fresh between region events.
func (s *Service) printOutput(context.Context) {
	if s.pipeline == nil {
		return
	}
	s.printState(s.pipeline.Snapshot())
}

// printState renders the given state through the templates and writes it as a single JSON line.
func (s *Service) printState(state pipeline.State) {
	s.displayAltLock.RLock()
	showAlt := s.displayAltText
	s.displayAltLock.RUnlock()

	output, err := s.presenter.Render(state, showAlt)
	if err != nil {
		s.logger.Error("failed to render output", logger.Err(err))
		return
	}

	if err = json.NewEncoder(s.output).Encode(output); err != nil {
		s.logger.Error("failed to encode location data", logger.Err(err))
	}
}

// processLocationUpdates feeds region updates from the geobus into the pipeline. Sources that
// carry no zoom span keep the current region's deltas.
func (s *Service) processLocationUpdates(ctx context.Context, sub <-chan geobus.Result) {
	for {
		select {
		case <-ctx.Done():
			return
		case r, ok := <-sub:
			if !ok {
				return
			}
			s.logger.Debug("received region update", slog.Float64("lat", r.Lat), slog.Float64("lon", r.Lon),
				slog.Float64("lat_delta", r.LatDelta), slog.Float64("lon_delta", r.LonDelta),
				slog.String("source", r.Source))

			reg := region.FromResult(r, s.pipeline.Snapshot().Region)
			if err := s.pipeline.OnRegionSettled(ctx, reg); err != nil {
				s.logger.Error("failed to apply region update", logger.Err(err), slog.String("source", r.Source))
				continue
			}
			s.metrics.RegionSettled(r.Source)
		}
	}
}
