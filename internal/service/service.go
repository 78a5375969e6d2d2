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
	"github.com/google/uuid"
	"github.com/vorlif/spreak"

	"github.com/wneessen/waybar-location/internal/config"
	"github.com/wneessen/waybar-location/internal/elevation"
	"github.com/wneessen/waybar-location/internal/geobus"
	"github.com/wneessen/waybar-location/internal/geocode"
	"github.com/wneessen/waybar-location/internal/locator"
	"github.com/wneessen/waybar-location/internal/logger"
	"github.com/wneessen/waybar-location/internal/presenter"
)

const (
	DesktopID = "waybar-location"

	cacheHitTTL      = 6 * time.Hour
	cacheMissTTL     = 10 * time.Minute
	subscriptionSize = 32
)

// Service ties the location providers, the throttled geocoder and the output together.
type Service struct {
	config      *config.Config
	logger      *logger.Logger
	t           *spreak.Localizer
	geobus      *geobus.GeoBus
	presenter   *presenter.Presenter
	scheduler   gocron.Scheduler
	instanceKey string

	// Set by Run unless already present
	providers []geobus.Provider
	geocoder  geocode.Geocoder
	cache     *geocode.CachedGeocoder
	elevation elevation.Provider
	jobs      []gocron.Job

	SignalSrc    signalSource
	sleepMonitor func(context.Context)

	outputLock sync.Mutex
	output     io.Writer

	placeLock sync.RWMutex
	place     presenter.Place
	placeSet  bool
	location  geobus.Coordinate

	displayAltLock sync.RWMutex
	displayAltText bool
}

// New returns a Service for the given configuration. Both the logger and the localizer are required.
func New(conf *config.Config, log *logger.Logger, t *spreak.Localizer) (*Service, error) {
	if log == nil {
		return nil, errors.New("logger is required")
	}
	if t == nil {
		return nil, errors.New("localizer is required")
	}

	pres, err := presenter.New(conf, t)
	if err != nil {
		return nil, fmt.Errorf("failed to create presenter: %w", err)
	}
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	service := &Service{
		config:      conf,
		logger:      log,
		t:           t,
		geobus:      geobus.New(log),
		presenter:   pres,
		scheduler:   scheduler,
		instanceKey: DesktopID + "-" + uuid.NewString(),
		SignalSrc:   stdLibSignalSource{},
		output:      os.Stdout,
	}
	service.sleepMonitor = service.monitorSleepResume
	return service, nil
}

// Run wires the geolocation providers, the locator and the scheduled jobs together and blocks
// until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	if s.providers == nil {
		providers, err := s.selectGeobusProviders()
		if err != nil {
			return fmt.Errorf("failed to create geobus orchestrator: %w", err)
		}
		s.providers = providers
	}
	if s.geocoder == nil {
		coder, err := s.selectGeocodeProvider()
		if err != nil {
			return fmt.Errorf("failed to create geocode provider: %w", err)
		}
		s.geocoder = coder
	}
	if s.elevation == nil && s.config.Display.ShowElevation {
		provider, err := s.selectElevationProvider()
		if err != nil {
			return fmt.Errorf("failed to create elevation provider: %w", err)
		}
		s.elevation = provider
	}

	opts := []locator.Option{locator.WithLogger(s.logger.Component("locator"))}
	if s.elevation != nil {
		opts = append(opts, locator.WithElevation(s.elevation))
	}
	loc, err := locator.New(s.geocoder, s, s.config.Intervals.Geocode, opts...)
	if err != nil {
		return fmt.Errorf("failed to create locator: %w", err)
	}

	// Start scheduled jobs
	if err = s.createScheduledJob(ctx, s.config.Intervals.Output, s.printPlace,
		"location_output_job"); err != nil {
		return err
	}
	if s.cache != nil {
		if err = s.createScheduledJob(ctx, s.config.Intervals.CachePurge, s.purgeCache,
			"geocode_cache_purge_job"); err != nil {
			return err
		}
	}
	s.scheduler.Start()

	// Subscribe to geolocation updates and start tracking
	orchestrator := s.geobus.NewOrchestrator(s.providers)
	sub, unsub := s.geobus.Subscribe(s.instanceKey, subscriptionSize)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		orchestrator.Track(ctx, s.instanceKey)
	}()
	go func() {
		defer wg.Done()
		loc.Run(ctx, sub)
	}()

	// Signal handling
	sigChan := make(chan os.Signal, 1)
	s.SignalSrc.Notify(sigChan, syscall.SIGUSR1, syscall.SIGUSR2)
	defer s.SignalSrc.Stop(sigChan)
	go s.HandleSignals(ctx, sigChan)

	if s.sleepMonitor != nil {
		go s.sleepMonitor(ctx)
	}

	// Wait for the context to cancel
	<-ctx.Done()
	unsub()
	wg.Wait()
	return s.scheduler.Shutdown()
}

// UpdateLocation stores the latest raw location sample.
func (s *Service) UpdateLocation(coords geobus.Coordinate) {
	s.placeLock.Lock()
	s.location = coords
	s.placeLock.Unlock()
	s.logger.Debug("received location update", slog.Any("coordinate", coords))
}

// UpdatePlace stores a newly resolved place and prints it right away.
func (s *Service) UpdatePlace(place presenter.Place) {
	s.placeLock.Lock()
	s.place = place
	s.placeSet = true
	s.placeLock.Unlock()

	s.printPlace(context.Background())
}

func (s *Service) createScheduledJob(ctx context.Context, interval time.Duration, task func(context.Context),
	jobName string,
) error {
	job, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(task),
		gocron.WithContext(ctx),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithName(jobName),
	)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", jobName, err)
	}
	s.jobs = append(s.jobs, job)
	return nil
}

// printPlace renders the current place and writes it as a JSON line to the output. Nothing is
// printed before the first place was resolved.
func (s *Service) printPlace(context.Context) {
	s.placeLock.RLock()
	place, ok := s.place, s.placeSet
	s.placeLock.RUnlock()
	if !ok {
		return
	}

	s.displayAltLock.RLock()
	alt := s.displayAltText
	s.displayAltLock.RUnlock()

	output, err := s.presenter.Render(s.presenter.BuildContext(place), alt)
	if err != nil {
		s.logger.Error("failed to render location template", logger.Err(err))
		return
	}

	s.outputLock.Lock()
	defer s.outputLock.Unlock()
	if err = json.NewEncoder(s.output).Encode(output); err != nil {
		s.logger.Error("failed to encode location data", logger.Err(err))
	}
}

func (s *Service) purgeCache(context.Context) {
	if s.cache == nil {
		return
	}
	removed := s.cache.Purge()
	stats := s.cache.Stats()
	s.logger.Debug("purged geocode cache", slog.Int("removed", removed), slog.Int("remaining", stats.Entries),
		slog.Uint64("hits", stats.Hits), slog.Uint64("misses", stats.Misses))
}
