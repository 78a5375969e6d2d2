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
)

type signalSource interface {
	Notify(c chan<- os.Signal, sig ...os.Signal)
	Stop(c chan<- os.Signal)
}

type stdLibSignalSource struct{}

func (stdLibSignalSource) Notify(c chan<- os.Signal, sig ...os.Signal) {
	signal.Notify(c, sig...)
}

func (stdLibSignalSource) Stop(c chan<- os.Signal) {
	signal.Stop(c)
}

// HandleSignals reacts to the user signals until ctx is done. SIGUSR1 toggles the alternative
// text in the interactive display modes, SIGUSR2 logs the currently resolved address.
func (s *Service) HandleSignals(ctx context.Context, sigChan chan os.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-sigChan:
			switch sig {
			case syscall.SIGUSR1:
				s.toggleAltText(ctx)
			case syscall.SIGUSR2:
				s.logCurrentPlace()
			}
		}
	}
}

func (s *Service) toggleAltText(ctx context.Context) {
	if !s.presenter.Mode.Interactive() {
		s.logger.Debug("ignoring alt text toggle in non-interactive display mode",
			slog.String("mode", string(s.presenter.Mode)))
		return
	}
	s.displayAltLock.Lock()
	s.displayAltText = !s.displayAltText
	s.displayAltLock.Unlock()
	s.printPlace(ctx)
}

func (s *Service) logCurrentPlace() {
	s.placeLock.RLock()
	defer s.placeLock.RUnlock()
	s.logger.Info("currently resolved address", slog.String("address", s.place.Address.DisplayName),
		slog.Float64("latitude", s.location.Lat), slog.Float64("longitude", s.location.Lon),
		slog.Bool("found", s.place.Address.AddressFound))
}
