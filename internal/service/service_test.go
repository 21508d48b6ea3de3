// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	stdhttp "net/http"
	"os"
	"strings"
	"sync"
	"syscall"
	"testing"
	"testing/synctest"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/wneessen/waybar-locshare/internal/clipboard"
	"github.com/wneessen/waybar-locshare/internal/config"
	"github.com/wneessen/waybar-locshare/internal/geobus"
	"github.com/wneessen/waybar-locshare/internal/i18n"
	"github.com/wneessen/waybar-locshare/internal/logger"
	"github.com/wneessen/waybar-locshare/internal/presenter"
	"github.com/wneessen/waybar-locshare/internal/share"
	"github.com/wneessen/waybar-locshare/internal/testhelper"
)

const (
	nominatimFile   = "../../testdata/nominatim_berlin.json"
	nominatimResult = "Quartier 205, 67, Friedrichstraße, Friedrichstadt, Mitte, Berlin, 10117, Deutschland"
	regionEvent     = `{"latitude":-23.5,"longitude":-46.6,"latitudeDelta":0.05,"longitudeDelta":0.02}`
	shareURL        = "https://www.google.com/maps/@-23.5,-46.6,15z?entry=ttu"
)

type fakeSignalSource struct {
	mu sync.Mutex
	ch chan<- os.Signal
}

func (f *fakeSignalSource) Notify(c chan<- os.Signal, _ ...os.Signal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ch = c
}

func (f *fakeSignalSource) Stop(chan<- os.Signal) {}

func TestNew(t *testing.T) {
	t.Run("new service succeeds", func(t *testing.T) {
		if _, err := testService(t, false); err != nil {
			t.Fatalf("failed to create service: %s", err)
		}
	})
	t.Run("new service without logger fails", func(t *testing.T) {
		if _, err := testService(t, true); !errors.Is(err, geobus.ErrNilLogger) {
			t.Errorf("expected error to be %s, got %s", geobus.ErrNilLogger, err)
		}
	})
	t.Run("new service with broken template fails", func(t *testing.T) {
		t.Setenv("WAYBARLOCSHARE_TEMPLATES_TEXT", "{{.Altitude}}")
		if _, err := testService(t, false); err == nil {
			t.Error("expected service to fail")
		}
	})
}

func TestService_selectGeocodeProvider(t *testing.T) {
	tests := []struct {
		name     string
		env      []string
		wantName string
		wantFail bool
	}{
		{"google", []string{"WAYBARLOCSHARE_GEOCODER_PROVIDER=google"}, "google", false},
		{"osm-nominatim", []string{"WAYBARLOCSHARE_GEOCODER_PROVIDER=nominatim"}, "osm-nominatim", false},
		{
			"opencage with api-key",
			[]string{"WAYBARLOCSHARE_GEOCODER_PROVIDER=opencage", "WAYBARLOCSHARE_GEOCODER_APIKEY=abc"},
			"opencage", false,
		},
		{
			"geocode.earth with api-key",
			[]string{"WAYBARLOCSHARE_GEOCODER_PROVIDER=geocode-earth", "WAYBARLOCSHARE_GEOCODER_APIKEY=abc"},
			"geocode-earth", false,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			for _, envVars := range tc.env {
				vals := strings.Split(envVars, "=")
				if len(vals) != 2 {
					t.Fatalf("invalid env var %q", envVars)
				}
				t.Setenv(vals[0], vals[1])
			}
			serv, err := testService(t, false)
			if err != nil {
				t.Fatalf("failed to create service: %s", err)
			}
			provider, err := serv.selectGeocodeProvider(serv.config, serv.localizer.Language())
			if tc.wantFail {
				if err == nil {
					t.Fatal("expected geocode provider selection to fail")
				}
				return
			}
			if err != nil {
				t.Fatalf("failed to select geocode provider: %s", err)
			}
			if provider.Name() != tc.wantName {
				t.Errorf("expected provider name to be %q, got %q", tc.wantName, provider.Name())
			}
		})
	}
	t.Run("unsupported provider", func(t *testing.T) {
		serv, err := testService(t, false)
		if err != nil {
			t.Fatalf("failed to create service: %s", err)
		}
		serv.config.Geocoder.Provider = "invalid"
		if _, err = serv.selectGeocodeProvider(serv.config, serv.localizer.Language()); err == nil {
			t.Error("expected geocode provider selection to fail")
		}
	})
	t.Run("opencage without api-key", func(t *testing.T) {
		serv, err := testService(t, false)
		if err != nil {
			t.Fatalf("failed to create service: %s", err)
		}
		serv.config.Geocoder.Provider = config.GeocoderOpenCage
		serv.config.Geocoder.APIKey = ""
		if _, err = serv.selectGeocodeProvider(serv.config, serv.localizer.Language()); err == nil {
			t.Error("expected geocode provider selection to fail")
		}
	})
}

func TestService_selectProviders(t *testing.T) {
	t.Run("stderr share keeps the waybar stream clean", func(t *testing.T) {
		serv, buf := testServiceWithOutput(t)
		serv.config.Share.Provider = config.ShareStderr
		sharer := serv.selectShareProvider(t.Context())
		if err := sharer.Share(t.Context(), share.Message{Message: shareURL}); err != nil {
			t.Fatal(err)
		}
		if shared := sharedOutput(serv); shared != shareURL+"\n" {
			t.Errorf("expected %q, got %q", shareURL+"\n", shared)
		}
		if buf.Len() != 0 {
			t.Errorf("expected no output on the waybar stream, got %q", buf.String())
		}
	})
	t.Run("clipboard share copies the message", func(t *testing.T) {
		serv, _ := testServiceWithOutput(t)
		clip := &clipboard.Memory{}
		serv.clipboard = clip
		serv.config.Share.Provider = config.ShareClipboard
		if err := serv.selectShareProvider(t.Context()).Share(t.Context(), share.Message{Message: shareURL}); err != nil {
			t.Fatal(err)
		}
		if clip.Text() != shareURL {
			t.Errorf("expected clipboard to contain %q, got %q", shareURL, clip.Text())
		}
	})
	t.Run("log notifier is selected", func(t *testing.T) {
		serv, _ := testServiceWithOutput(t)
		serv.config.Notify.Provider = config.NotifyLog
		if err := serv.selectNotifyProvider(t.Context()).Notify(t.Context(), "Error", "x"); err != nil {
			t.Errorf("expected log notifier not to fail, got %s", err)
		}
	})
	t.Run("no region sources fails", func(t *testing.T) {
		serv, _ := testServiceWithOutput(t)
		serv.config.Sources.DisableStream = true
		if _, err := serv.selectGeobusProviders(); !errors.Is(err, ErrNoSources) {
			t.Errorf("expected error to be %s, got %s", ErrNoSources, err)
		}
	})
	t.Run("all region sources are selected", func(t *testing.T) {
		serv, _ := testServiceWithOutput(t)
		serv.config.Sources.EnableGPSD = true
		serv.config.Sources.EnableGeolocationFile = true
		serv.config.Sources.EnableGeoIP = true
		providers, err := serv.selectGeobusProviders()
		if err != nil {
			t.Fatal(err)
		}
		if len(providers) != 4 {
			t.Errorf("expected 4 providers, got %d", len(providers))
		}
	})
}

func TestService_Run(t *testing.T) {
	t.Run("start the service and gracefully shut it down", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			ctx, cancel := context.WithCancel(t.Context())
			defer cancel()

			serv, buf := testServiceWithOutput(t)
			errs := make(chan error, 1)
			go func() { errs <- serv.Run(ctx) }()

			synctest.Wait()
			cancel()
			if err := <-errs; err != nil {
				t.Fatalf("failed to run service: %s", err)
			}
			lines := outputLines(t, buf)
			if len(lines) == 0 {
				t.Fatal("expected the initial state to be printed")
			}
			if lines[0].Class != presenter.OutputClassUnresolved {
				t.Errorf("expected unresolved class, got %q", lines[0].Class)
			}
		})
	})
	t.Run("a settled region is resolved, copied and shared", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			ctx, cancel := context.WithCancel(t.Context())
			defer cancel()

			serv, buf := testServiceWithOutput(t)
			serv.input = strings.NewReader("not json\n" + regionEvent + "\n")
			clip := &clipboard.Memory{}
			serv.clipboard = clip
			signals := &fakeSignalSource{}
			serv.signals = signals

			errs := make(chan error, 1)
			go func() { errs <- serv.Run(ctx) }()
			synctest.Wait()

			lines := outputLines(t, buf)
			last := lines[len(lines)-1]
			if !strings.Contains(last.Text, nominatimResult) {
				t.Fatalf("expected resolved address in output, got %q", last.Text)
			}
			if last.Class != presenter.OutputClass {
				t.Errorf("expected class %q, got %q", presenter.OutputClass, last.Class)
			}

			signals.mu.Lock()
			sigChan := signals.ch
			signals.mu.Unlock()

			sigChan <- syscall.SIGUSR1
			synctest.Wait()
			if clip.Text() != nominatimResult {
				t.Errorf("expected address to be copied, got %q", clip.Text())
			}

			sigChan <- syscall.SIGUSR2
			synctest.Wait()
			if shared := sharedOutput(serv); shared != shareURL+"\n" {
				t.Errorf("expected share URL %q to be shared, got %q", shareURL, shared)
			}

			sigChan <- syscall.SIGHUP
			synctest.Wait()
			lines = outputLines(t, buf)
			if last = lines[len(lines)-1]; !strings.Contains(last.Text, "-23.50000, ") {
				t.Errorf("expected alt text after toggle, got %q", last.Text)
			}

			cancel()
			if err := <-errs; err != nil {
				t.Fatalf("failed to run service: %s", err)
			}
		})
	})
	t.Run("starting service fails due to invalid geocoding provider", func(t *testing.T) {
		serv, _ := testServiceWithOutput(t)
		t.Cleanup(func() { _ = serv.scheduler.Shutdown() })
		serv.config.Geocoder.Provider = "invalid"
		err := serv.Run(t.Context())
		if err == nil {
			t.Fatal("expected service to fail")
		}
		wantErr := `failed to create geocode provider: unsupported geocoder type: invalid`
		if !strings.Contains(err.Error(), wantErr) {
			t.Errorf("expected error to contain %q, got %q", wantErr, err)
		}
	})
	t.Run("starting service fails without region sources", func(t *testing.T) {
		serv, _ := testServiceWithOutput(t)
		t.Cleanup(func() { _ = serv.scheduler.Shutdown() })
		serv.config.Sources.DisableStream = true
		if err := serv.Run(t.Context()); !errors.Is(err, ErrNoSources) {
			t.Errorf("expected error to be %s, got %s", ErrNoSources, err)
		}
	})
}

func TestService_handleSleepSignal(t *testing.T) {
	resume := &dbus.Signal{Name: login1Manager + "." + prepareSleep, Body: []any{false}}
	suspend := &dbus.Signal{Name: login1Manager + "." + prepareSleep, Body: []any{true}}

	t.Run("waking up resolves the region again", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			ctx, cancel := context.WithCancel(t.Context())
			defer cancel()

			serv, buf := testServiceWithOutput(t)
			errs := make(chan error, 1)
			go func() { errs <- serv.Run(ctx) }()
			synctest.Wait()

			var lastResume time.Time
			serv.handleSleepSignal(ctx, suspend, &lastResume)
			if serv.pipeline.Snapshot().Seq != 0 {
				t.Fatal("expected going to sleep not to trigger a refresh")
			}

			start := time.Now()
			serv.handleSleepSignal(ctx, resume, &lastResume)
			synctest.Wait()
			if waited := time.Since(start); waited < networkSettle {
				t.Errorf("expected refresh to wait %s for the network, waited %s", networkSettle, waited)
			}
			if seq := serv.pipeline.Snapshot().Seq; seq != 1 {
				t.Errorf("expected one refresh after resume, got sequence %d", seq)
			}
			if !strings.Contains(buf.String(), "Quartier 205") {
				t.Errorf("expected resolved address in output, got %q", buf.String())
			}

			cancel()
			<-errs
		})
	})
	t.Run("repeated resume signals are debounced", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			ctx, cancel := context.WithCancel(t.Context())
			defer cancel()

			serv, _ := testServiceWithOutput(t)
			errs := make(chan error, 1)
			go func() { errs <- serv.Run(ctx) }()
			synctest.Wait()

			lastResume := time.Now()
			serv.handleSleepSignal(ctx, resume, &lastResume)
			synctest.Wait()
			if seq := serv.pipeline.Snapshot().Seq; seq != 0 {
				t.Errorf("expected no refresh, got sequence %d", seq)
			}

			cancel()
			<-errs
		})
	})
}

func TestIsResume(t *testing.T) {
	member := login1Manager + "." + prepareSleep
	tests := []struct {
		name string
		sig  *dbus.Signal
		want bool
	}{
		{"resume", &dbus.Signal{Name: member, Body: []any{false}}, true},
		{"suspend", &dbus.Signal{Name: member, Body: []any{true}}, false},
		{"other member", &dbus.Signal{Name: login1Manager + ".SessionNew", Body: []any{false}}, false},
		{"malformed body", &dbus.Signal{Name: member, Body: []any{"false"}}, false},
		{"empty body", &dbus.Signal{Name: member}, false},
		{"nil signal", nil, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := isResume(tc.sig); got != tc.want {
				t.Errorf("expected %t, got %t", tc.want, got)
			}
		})
	}
}

func outputLines(t *testing.T, buf *bytes.Buffer) []presenter.Output {
	t.Helper()
	var lines []presenter.Output
	scanner := bufio.NewScanner(bytes.NewReader(buf.Bytes()))
	for scanner.Scan() {
		line := scanner.Text()
		var out presenter.Output
		if err := json.Unmarshal([]byte(line), &out); err != nil {
			t.Fatalf("failed to decode output line %q: %s", line, err)
		}
		lines = append(lines, out)
	}
	return lines
}

func testService(t *testing.T, nilLogger bool) (*Service, error) {
	t.Helper()
	t.Setenv(config.GoogleAPIKeyEnv, "test-key")
	t.Setenv("WAYBARLOCSHARE_LOCALE", "en")
	conf, err := config.New()
	if err != nil {
		return nil, err
	}

	var log *logger.Logger
	if !nilLogger {
		log = logger.NewLogger(conf.LogLevel, io.Discard)
	}

	lang, err := i18n.New(conf.Locale)
	if err != nil {
		return nil, err
	}
	return New(conf, log, lang)
}

// testServiceWithOutput returns a service that resolves every coordinate through a mocked
// Nominatim API, shares to a separate buffer and reads no events.
func testServiceWithOutput(t *testing.T) (*Service, *bytes.Buffer) {
	t.Helper()
	t.Setenv("WAYBARLOCSHARE_GEOCODER_PROVIDER", "nominatim")
	t.Setenv("WAYBARLOCSHARE_SHARE_PROVIDER", "stderr")
	t.Setenv("WAYBARLOCSHARE_NOTIFY_PROVIDER", "log")
	serv, err := testService(t, false)
	if err != nil {
		t.Fatalf("failed to create service: %s", err)
	}

	buf := bytes.NewBuffer(nil)
	serv.output = &syncWriter{w: buf}
	serv.shareOutput = bytes.NewBuffer(nil)
	serv.input = strings.NewReader("")
	serv.signals = &fakeSignalSource{}
	serv.clipboard = &clipboard.Memory{}
	serv.logger = logger.NewLogger(slog.LevelDebug, io.Discard)
	serv.http.Transport = testhelper.MockRoundTripper{Fn: func(req *stdhttp.Request) (*stdhttp.Response, error) {
		data, err := os.Open(nominatimFile)
		if err != nil {
			return nil, err
		}
		return &stdhttp.Response{StatusCode: 200, Body: data, Header: make(stdhttp.Header)}, nil
	}}
	return serv, buf
}

func sharedOutput(serv *Service) string {
	return serv.shareOutput.(*bytes.Buffer).String()
}
