// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geolocation_file

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/wneessen/waybar-location/internal/geobus"
)

const (
	name = "geolocation_file"
	// Accuracy of a manually maintained position. It is trusted more than any network lookup.
	Accuracy = 5
)

var ErrNoCoordinates = errors.New("no valid coordinates found in geolocation file")

// GeolocationFileProvider reads a "lat,lon" pair from a file. Lines starting with # are
// comments. The file is re-read periodically, so edits are picked up while running.
type GeolocationFileProvider struct {
	name     string
	path     string
	period   time.Duration
	ttl      time.Duration
	locateFn geobus.LocateFunc
}

func NewGeolocationFileProvider(path string) *GeolocationFileProvider {
	provider := &GeolocationFileProvider{
		name:   name,
		path:   path,
		period: time.Minute * 2,
		ttl:    time.Hour,
	}
	provider.locateFn = provider.locate
	return provider
}

func (p *GeolocationFileProvider) Name() string {
	return p.name
}

func (p *GeolocationFileProvider) LookupStream(ctx context.Context, key string) <-chan geobus.Result {
	return geobus.Poll(ctx, p.period, p.locateFn, func(coord geobus.Coordinate) geobus.Result {
		return p.createResult(key, coord)
	})
}

func (p *GeolocationFileProvider) createResult(key string, coord geobus.Coordinate) geobus.Result {
	return geobus.Result{
		Key:            key,
		Lat:            coord.Lat,
		Lon:            coord.Lon,
		AccuracyMeters: coord.Acc,
		Source:         p.name,
		At:             time.Now(),
		TTL:            p.ttl,
	}
}

func (p *GeolocationFileProvider) locate(context.Context) (geobus.Coordinate, error) {
	coord, err := p.readFile()
	if err != nil {
		return geobus.Coordinate{}, err
	}
	coord.At = time.Now()
	return coord, nil
}

// readFile returns the first valid coordinate of the file.
func (p *GeolocationFileProvider) readFile() (geobus.Coordinate, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return geobus.Coordinate{}, fmt.Errorf("failed to read geolocation file %q: %w", p.path, err)
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if coord, ok := parseLine(line); ok {
			return coord, nil
		}
	}
	return geobus.Coordinate{}, ErrNoCoordinates
}

// parseLine parses "lat,lon" with an optional third field for the accuracy in meters.
func parseLine(line string) (geobus.Coordinate, bool) {
	fields := strings.Split(line, ",")
	if len(fields) < 2 || len(fields) > 3 {
		return geobus.Coordinate{}, false
	}
	vals := make([]float64, len(fields))
	for i, field := range fields {
		val, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil {
			return geobus.Coordinate{}, false
		}
		vals[i] = val
	}

	coord := geobus.Coordinate{Lat: vals[0], Lon: vals[1], Acc: Accuracy}
	if len(vals) == 3 && vals[2] > 0 {
		coord.Acc = vals[2]
	}
	return coord, coord.Valid()
}
