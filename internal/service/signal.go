// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/wneessen/waybar-locshare/internal/logger"
)

type signalSource interface {
	Notify(c chan<- os.Signal, sig ...os.Signal)
	Stop(c chan<- os.Signal)
}

// stdLibSignalSource is the production implementation.
type stdLibSignalSource struct{}

func (stdLibSignalSource) Notify(c chan<- os.Signal, sig ...os.Signal) {
	signal.Notify(c, sig...)
}

func (stdLibSignalSource) Stop(c chan<- os.Signal) {
	signal.Stop(c)
}

// handleSignals dispatches the module's signals until the context is cancelled:
// SIGUSR1 copies the address, SIGUSR2 shares the location and SIGHUP toggles the alt text.
func (s *Service) handleSignals(ctx context.Context, sigChan chan os.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-sigChan:
			s.handleSignal(ctx, sig)
		}
	}
}

func (s *Service) handleSignal(ctx context.Context, sig os.Signal) {
	s.logger.Debug("received signal", slog.String("signal", sig.String()))
	switch sig {
	case syscall.SIGUSR1:
		s.pipeline.CopyResolvedAddress()
	case syscall.SIGUSR2:
		// The portal blocks until the user picked a handler, keep the other signals responsive.
		// Failures were already shown to the user by the pipeline.
		go func() {
			if err := s.pipeline.ShareCurrentLocation(ctx); err != nil {
				s.logger.Debug("share request failed", logger.Err(err))
			}
		}()
	case syscall.SIGHUP:
		s.displayAltLock.Lock()
		s.displayAltText = !s.displayAltText
		s.displayAltLock.Unlock()
		s.printOutput(ctx)
	}
}
