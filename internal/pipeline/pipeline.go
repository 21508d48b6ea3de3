// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wneessen/waybar-locshare/internal/clipboard"
	"github.com/wneessen/waybar-locshare/internal/geocode"
	"github.com/wneessen/waybar-locshare/internal/logger"
	"github.com/wneessen/waybar-locshare/internal/metrics"
	"github.com/wneessen/waybar-locshare/internal/notify"
	"github.com/wneessen/waybar-locshare/internal/region"
	"github.com/wneessen/waybar-locshare/internal/share"
	"github.com/wneessen/waybar-locshare/internal/vartype"
)

const defaultErrorTitle = "Error"

var (
	ErrNoGeocoder = errors.New("pipeline requires a geocoder")
	ErrNoLogger   = errors.New("pipeline requires a logger")
	ErrNoSharer   = errors.New("no share adapter configured")
)

// Config holds the collaborators of a Pipeline. Geocoder and Logger are required; a missing
// Clipboard or Notifier falls back to an in-memory clipboard and log notifications.
type Config struct {
	InitialRegion region.Region
	Geocoder      geocode.Geocoder
	Clipboard     clipboard.Clipboard
	Sharer        share.Sharer
	Notifier      notify.Notifier
	Logger        *logger.Logger
	Metrics       *metrics.Metrics

	// ErrorTitle is the title of share failure notifications.
	ErrorTitle string

	// OnChange is called with a fresh snapshot whenever the region or the resolved address
	// changes. Calls are serialized.
	OnChange func(State)
}

// State is a point-in-time copy of the pipeline state.
type State struct {
	Region    region.Region
	Address   vartype.VarString
	ShareURL  string
	Seq       uint64
	UpdatedAt time.Time
}

// Pipeline owns the current map region and the address resolved for it. Every settled region
// gets its own geocode request tagged with a sequence number; only the response carrying the
// latest tag may update the address.
type Pipeline struct {
	mu        sync.Mutex
	region    region.Region
	address   vartype.VarString
	seq       uint64
	updatedAt time.Time

	emitMu   sync.Mutex
	inflight sync.WaitGroup

	geocoder   geocode.Geocoder
	clip       clipboard.Clipboard
	sharer     share.Sharer
	notifier   notify.Notifier
	logger     *logger.Logger
	metrics    *metrics.Metrics
	errorTitle string
	onChange   func(State)
	now        func() time.Time
}

func New(conf Config) (*Pipeline, error) {
	if conf.Geocoder == nil {
		return nil, ErrNoGeocoder
	}
	if conf.Logger == nil {
		return nil, ErrNoLogger
	}
	if err := conf.InitialRegion.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate initial region: %w", err)
	}

	pipe := &Pipeline{
		region:     conf.InitialRegion,
		geocoder:   conf.Geocoder,
		clip:       conf.Clipboard,
		sharer:     conf.Sharer,
		notifier:   conf.Notifier,
		logger:     conf.Logger,
		metrics:    conf.Metrics,
		errorTitle: conf.ErrorTitle,
		onChange:   conf.OnChange,
		now:        time.Now,
	}
	if pipe.clip == nil {
		pipe.clip = &clipboard.Memory{}
	}
	if pipe.notifier == nil {
		pipe.notifier = notify.NewLog(conf.Logger)
	}
	if pipe.errorTitle == "" {
		pipe.errorTitle = defaultErrorTitle
	}
	pipe.updatedAt = pipe.now()

	return pipe, nil
}

// OnRegionSettled stores the region and starts resolving its center in the background. The
// region is visible in snapshots before the geocode finishes.
func (p *Pipeline) OnRegionSettled(ctx context.Context, reg region.Region) error {
	if err := reg.Validate(); err != nil {
		p.metrics.RegionRejected()
		p.logger.Warn("ignoring invalid region", slog.Float64("lat", reg.Latitude),
			slog.Float64("lon", reg.Longitude), logger.Err(err))
		return err
	}

	p.mu.Lock()
	p.region = reg
	p.seq++
	seq := p.seq
	p.updatedAt = p.now()
	p.mu.Unlock()

	p.logger.Debug("region settled", slog.Uint64("seq", seq), slog.Float64("lat", reg.Latitude),
		slog.Float64("lon", reg.Longitude), slog.Float64("lat_delta", reg.LatitudeDelta),
		slog.Float64("lon_delta", reg.LongitudeDelta))
	p.emit()

	p.inflight.Add(1)
	go p.resolve(ctx, seq, reg)
	return nil
}

// Refresh resolves the current region again, e.g. after the network came back.
func (p *Pipeline) Refresh(ctx context.Context) error {
	return p.OnRegionSettled(ctx, p.Snapshot().Region)
}

func (p *Pipeline) resolve(ctx context.Context, seq uint64, reg region.Region) {
	defer p.inflight.Done()

	start := time.Now()
	candidates, err := p.geocoder.Reverse(ctx, reg.Coordinate())
	var addr geocode.Address
	if err == nil {
		addr, err = geocode.First(candidates)
	}
	p.metrics.GeocodeRequest(p.geocoder.Name(), geocodeResult(err), time.Since(start))

	p.mu.Lock()
	if seq != p.seq {
		latest := p.seq
		p.mu.Unlock()
		p.metrics.StaleDiscarded()
		p.logger.Debug("discarding stale geocode response", slog.Uint64("seq", seq),
			slog.Uint64("latest", latest))
		return
	}
	if err != nil {
		p.mu.Unlock()
		p.logger.Warn("failed to resolve address for region", slog.Uint64("seq", seq),
			slog.String("provider", p.geocoder.Name()), slog.Float64("lat", reg.Latitude),
			slog.Float64("lon", reg.Longitude), logger.Err(err))
		return
	}
	changed := p.address.Set(addr.FormattedAddress)
	if changed {
		p.updatedAt = p.now()
	}
	p.mu.Unlock()

	p.metrics.AddressResolved(true)
	p.logger.Debug("address resolved", slog.Uint64("seq", seq), slog.String("address", addr.FormattedAddress),
		slog.Bool("changed", changed))
	if changed {
		p.emit()
	}
}

func geocodeResult(err error) string {
	switch {
	case err == nil:
		return metrics.ResultSuccess
	case errors.Is(err, geocode.ErrNoCandidates):
		return metrics.ResultEmpty
	default:
		return metrics.ResultFailure
	}
}

// BuildShareURL returns the map URL of the current region's center.
func (p *Pipeline) BuildShareURL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.region.ShareURL()
}

// CopyAddress places text on the clipboard. Empty text is ignored and clipboard failures are
// only logged.
func (p *Pipeline) CopyAddress(text string) {
	if text == "" {
		return
	}
	if err := p.clip.SetString(text); err != nil {
		p.metrics.ClipboardCopy(metrics.ResultFailure)
		p.logger.Warn("failed to copy address to clipboard", logger.Err(err))
		return
	}
	p.metrics.ClipboardCopy(metrics.ResultSuccess)
	p.logger.Debug("address copied to clipboard", slog.String("address", text))
}

// CopyResolvedAddress copies the currently resolved address, if any.
func (p *Pipeline) CopyResolvedAddress() {
	p.mu.Lock()
	text := p.address.Value()
	p.mu.Unlock()
	p.CopyAddress(text)
}

// ShareCurrentLocation hands the share URL of the current region to the share adapter. A
// failure is shown to the user as a notification with the adapter's error message and
// returned; the pipeline state is not touched.
func (p *Pipeline) ShareCurrentLocation(ctx context.Context) error {
	if p.sharer == nil {
		p.notifyFailure(ctx, ErrNoSharer)
		return ErrNoSharer
	}

	msg := share.Message{Message: p.BuildShareURL()}
	if err := p.sharer.Share(ctx, msg); err != nil {
		p.metrics.Share(metrics.ResultFailure)
		p.logger.Error("failed to share location", slog.String("url", msg.Message), logger.Err(err))
		p.notifyFailure(ctx, err)
		return fmt.Errorf("failed to share location: %w", err)
	}
	p.metrics.Share(metrics.ResultSuccess)
	p.logger.Debug("location shared", slog.String("url", msg.Message))
	return nil
}

func (p *Pipeline) notifyFailure(ctx context.Context, cause error) {
	if err := p.notifier.Notify(ctx, p.errorTitle, cause.Error()); err != nil {
		p.logger.Error("failed to show error notification", logger.Err(err))
	}
}

// Snapshot returns a copy of the current state.
func (p *Pipeline) Snapshot() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return State{
		Region:    p.region,
		Address:   p.address,
		ShareURL:  p.region.ShareURL(),
		Seq:       p.seq,
		UpdatedAt: p.updatedAt,
	}
}

// Wait blocks until all in-flight geocode requests have finished.
func (p *Pipeline) Wait() {
	p.inflight.Wait()
}

// emit hands a snapshot to OnChange. The snapshot is taken under emitMu so concurrent
// emitters can never deliver an older state after a newer one.
func (p *Pipeline) emit() {
	if p.onChange == nil {
		return
	}
	p.emitMu.Lock()
	defer p.emitMu.Unlock()
	p.onChange(p.Snapshot())
}
