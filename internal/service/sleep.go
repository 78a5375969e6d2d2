// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/godbus/dbus/v5"

	"github.com/wneessen/waybar-location/internal/logger"
)

const (
	dbusInterface   = "org.freedesktop.login1.Manager"
	dbusWatchMember = "PrepareForSleep"

	debounceWindow   = 2 * time.Second
	signalBufferSize = 8

	networkWakeupDelay = 10 * time.Second
	reconnectDelay     = 2 * time.Second
	maxReconnectDelay  = time.Minute
)

var errBusClosed = errors.New("system bus connection closed")

// monitorSleepResume follows the logind PrepareForSleep signal on the system bus and reprints
// the place after a resume. A lost bus connection is re-established with an exponential backoff.
func (s *Service) monitorSleepResume(ctx context.Context) {
	var lastResume atomic.Int64
	bo := backoff.WithContext(newBusBackOff(), ctx)

	for {
		err := s.watchSleepSignals(ctx, &lastResume)
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, errBusClosed) {
			bo.Reset()
		}
		wait := bo.NextBackOff()
		if wait == backoff.Stop {
			return
		}
		s.logger.Debug("reconnecting to system bus", logger.Err(err), slog.Duration("backoff", wait))

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

func newBusBackOff() backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = reconnectDelay
	eb.MaxInterval = maxReconnectDelay
	eb.MaxElapsedTime = 0
	return eb
}

// watchSleepSignals handles sleep signals of a single bus connection. It returns nil once ctx is
// done and an error when the connection could not be set up or was lost.
func (s *Service) watchSleepSignals(ctx context.Context, lastResume *atomic.Int64) error {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return fmt.Errorf("failed to connect to system bus: %w", err)
	}
	defer func() {
		if err := conn.Close(); err != nil {
			s.logger.Debug("failed to close system bus connection", logger.Err(err))
		}
	}()

	if err = conn.AddMatchSignal(dbus.WithMatchInterface(dbusInterface),
		dbus.WithMatchMember(dbusWatchMember)); err != nil {
		return fmt.Errorf("failed to subscribe to %s.%s: %w", dbusInterface, dbusWatchMember, err)
	}
	sigCh := make(chan *dbus.Signal, signalBufferSize)
	conn.Signal(sigCh)
	defer conn.RemoveSignal(sigCh)
	s.logger.Debug("subscribed to dbus signal", slog.String("interface", dbusInterface),
		slog.String("member", dbusWatchMember))

	for {
		select {
		case <-ctx.Done():
			return nil
		case sgn, ok := <-sigCh:
			if !ok {
				return errBusClosed
			}
			if isResumeSignal(sgn) {
				s.handleResumeEvent(ctx, lastResume)
			}
		}
	}
}

// isResumeSignal reports whether sgn is a PrepareForSleep(false) signal.
func isResumeSignal(sgn *dbus.Signal) bool {
	if sgn == nil || sgn.Name != dbusInterface+"."+dbusWatchMember || len(sgn.Body) != 1 {
		return false
	}
	sleeping, ok := sgn.Body[0].(bool)
	return ok && !sleeping
}

// handleResumeEvent reprints the last place after a resume. Consecutive resume events within the
// debounce window are ignored. The providers refresh on their own once the network is back.
func (s *Service) handleResumeEvent(ctx context.Context, lastResume *atomic.Int64) {
	now := time.Now()
	if now.Sub(time.Unix(0, lastResume.Load())) < debounceWindow {
		return
	}
	lastResume.Store(now.UnixNano())

	select {
	case <-ctx.Done():
		return
	case <-time.After(networkWakeupDelay):
	}

	s.logger.Debug("resumed from sleep, refreshing location output")
	s.printPlace(ctx)
}
