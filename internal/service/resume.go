// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/wneessen/waybar-locshare/internal/logger"
)

const (
	login1Manager = "org.freedesktop.login1.Manager"
	prepareSleep  = "PrepareForSleep"

	resumeDebounce = 2 * time.Second
	// networkSettle gives the network time to come back before geocoding again.
	networkSettle = 10 * time.Second
	busRetryDelay = 5 * time.Second
)

var errBusClosed = errors.New("system bus connection closed")

// monitorSleepResume resolves the current region again whenever the system wakes up, since a
// geocode issued while suspending most likely failed. The system bus connection is re-established
// after failures until the context is done.
func (s *Service) monitorSleepResume(ctx context.Context) {
	var lastResume time.Time
	for {
		if err := s.watchResume(ctx, &lastResume); err != nil {
			s.logger.Warn("sleep monitor interrupted, reconnecting", logger.Err(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(busRetryDelay):
		}
	}
}

// watchResume subscribes to login1's PrepareForSleep signal and handles resume events until the
// context is done or the bus connection breaks.
func (s *Service) watchResume(ctx context.Context, lastResume *time.Time) error {
	conn, err := dbus.ConnectSystemBus(dbus.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to connect to system bus: %w", err)
	}
	defer func() {
		if err := conn.Close(); err != nil && ctx.Err() == nil {
			s.logger.Error("failed to close system bus connection", logger.Err(err))
		}
	}()

	if err = conn.AddMatchSignal(dbus.WithMatchInterface(login1Manager),
		dbus.WithMatchMember(prepareSleep)); err != nil {
		return fmt.Errorf("failed to subscribe to %s.%s: %w", login1Manager, prepareSleep, err)
	}
	signals := make(chan *dbus.Signal, 8)
	conn.Signal(signals)
	defer conn.RemoveSignal(signals)

	for {
		select {
		case <-ctx.Done():
			return nil
		case sig, ok := <-signals:
			if !ok {
				return errBusClosed
			}
			s.handleSleepSignal(ctx, sig, lastResume)
		}
	}
}

func (s *Service) handleSleepSignal(ctx context.Context, sig *dbus.Signal, lastResume *time.Time) {
	if !isResume(sig) {
		return
	}
	now := time.Now()
	if now.Sub(*lastResume) < resumeDebounce {
		return
	}
	*lastResume = now

	select {
	case <-ctx.Done():
		return
	case <-time.After(networkSettle):
	}
	s.logger.Debug("system resumed, resolving current region")
	if err := s.pipeline.Refresh(ctx); err != nil {
		s.logger.Error("failed to refresh region after resume", logger.Err(err))
	}
}

// isResume reports whether sig is a PrepareForSleep(false) signal, which login1 sends after
// waking up.
func isResume(sig *dbus.Signal) bool {
	if sig == nil || sig.Name != login1Manager+"."+prepareSleep || len(sig.Body) != 1 {
		return false
	}
	sleeping, ok := sig.Body[0].(bool)
	return ok && !sleeping
}
