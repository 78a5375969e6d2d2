// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package ichnaea

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/mdlayher/wifi"

	"github.com/wneessen/waybar-location/internal/geobus"
	"github.com/wneessen/waybar-location/internal/http"
)

const (
	name          = "ichnaea"
	APIEndpoint   = "https://api.beacondb.net/v1/geolocate"
	lookupTimeout = time.Second * 5
	wifiScanTime  = time.Minute * 2

	// The API needs at least two access points to locate by Wi-Fi alone
	minAccessPoints = 2
	maxAccessPoints = 32
)

// wifiScanner is the part of the wifi client the provider needs.
type wifiScanner interface {
	Interfaces() ([]*wifi.Interface, error)
	AccessPoints(ifi *wifi.Interface) ([]*wifi.BSS, error)
}

// GeolocationICHNAEAProvider locates the host through the visible Wi-Fi access points, using
// an Ichnaea compatible API (BeaconDB).
type GeolocationICHNAEAProvider struct {
	name     string
	endpoint string
	http     *http.Client
	wlan     wifiScanner
	period   time.Duration
	ttl      time.Duration
	locateFn geobus.LocateFunc

	apLock sync.RWMutex
	aps    []WirelessNetwork
}

type APIResult struct {
	Location struct {
		Latitude  float64 `json:"lat"`
		Longitude float64 `json:"lng"`
	} `json:"location"`
	Accuracy float64 `json:"accuracy"`
}

type WirelessNetwork struct {
	LastSeen       int64  `json:"age"`
	MACAddress     string `json:"macAddress"`
	SignalStrength int32  `json:"signalStrength"`
}

// Option configures the provider.
type Option func(*GeolocationICHNAEAProvider)

// WithEndpoint uses another Ichnaea compatible geolocate API. Empty values are ignored.
func WithEndpoint(endpoint string) Option {
	return func(p *GeolocationICHNAEAProvider) {
		if endpoint != "" {
			p.endpoint = endpoint
		}
	}
}

func NewGeolocationICHNAEAProvider(client *http.Client, opts ...Option) (*GeolocationICHNAEAProvider, error) {
	if client == nil {
		return nil, errors.New("http client is required")
	}
	wlan, err := wifi.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create wifi client: %w", err)
	}
	return newProvider(client, wlan, opts...), nil
}

func newProvider(client *http.Client, wlan wifiScanner, opts ...Option) *GeolocationICHNAEAProvider {
	provider := &GeolocationICHNAEAProvider{
		name:     name,
		endpoint: APIEndpoint,
		http:     client,
		wlan:     wlan,
		period:   time.Minute * 5,
		ttl:      time.Hour,
	}
	for _, opt := range opts {
		opt(provider)
	}
	provider.locateFn = provider.locate
	return provider
}

func (p *GeolocationICHNAEAProvider) Name() string {
	return p.name
}

// LookupStream scans for access points in the background and polls the geolocation API with the
// latest scan result.
func (p *GeolocationICHNAEAProvider) LookupStream(ctx context.Context, key string) <-chan geobus.Result {
	go p.monitorWifiAccessPoints(ctx)
	return geobus.Poll(ctx, p.period, p.locateFn, func(coord geobus.Coordinate) geobus.Result {
		return p.createResult(key, coord)
	})
}

func (p *GeolocationICHNAEAProvider) createResult(key string, coord geobus.Coordinate) geobus.Result {
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

func (p *GeolocationICHNAEAProvider) monitorWifiAccessPoints(ctx context.Context) {
	ticker := time.NewTicker(wifiScanTime)
	defer ticker.Stop()

	for {
		if list, err := p.wifiAccessPoints(); err == nil {
			p.apLock.Lock()
			p.aps = list
			p.apLock.Unlock()
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// wifiAccessPoints lists the access points seen by all station interfaces, strongest first.
// Hidden networks and networks that opted out with the _nomap suffix are skipped. An access
// point seen by several interfaces is reported once with its best signal.
func (p *GeolocationICHNAEAProvider) wifiAccessPoints() ([]WirelessNetwork, error) {
	ifaces, err := p.wlan.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("failed to list interfaces: %w", err)
	}

	seen := make(map[string]int)
	var list []WirelessNetwork
	for _, iface := range ifaces {
		if iface.Type != wifi.InterfaceTypeStation {
			continue
		}
		aps, err := p.wlan.AccessPoints(iface)
		if err != nil {
			continue
		}
		for _, ap := range aps {
			if ap.SSID == "" || ap.SSID[0] == '\x00' || strings.HasSuffix(ap.SSID, "_nomap") {
				continue
			}
			network := WirelessNetwork{
				SignalStrength: ap.Signal / 100, // mBm to dBm
				MACAddress:     ap.BSSID.String(),
				LastSeen:       ap.LastSeen.Milliseconds(),
			}
			if idx, ok := seen[network.MACAddress]; ok {
				if network.SignalStrength > list[idx].SignalStrength {
					list[idx] = network
				}
				continue
			}
			seen[network.MACAddress] = len(list)
			list = append(list, network)
		}
	}

	slices.SortStableFunc(list, func(a, b WirelessNetwork) int {
		return int(b.SignalStrength - a.SignalStrength)
	})
	if len(list) > maxAccessPoints {
		list = list[:maxAccessPoints]
	}
	return list, nil
}

func (p *GeolocationICHNAEAProvider) locate(ctx context.Context) (geobus.Coordinate, error) {
	p.apLock.RLock()
	wifiList := p.aps
	p.apLock.RUnlock()

	type request struct {
		ConsiderIP   bool              `json:"considerIp"`
		Accesspoints []WirelessNetwork `json:"wifiAccessPoints,omitempty"`
	}
	body := bytes.NewBuffer(nil)
	req := request{ConsiderIP: len(wifiList) < minAccessPoints, Accesspoints: wifiList}
	if err := json.NewEncoder(body).Encode(req); err != nil {
		return geobus.Coordinate{}, fmt.Errorf("failed to encode wifi list to JSON: %w", err)
	}

	result := new(APIResult)
	if _, err := p.http.PostWithTimeout(ctx, p.endpoint, result, body,
		map[string]string{"Content-Type": "application/json"}, lookupTimeout); err != nil {
		return geobus.Coordinate{}, fmt.Errorf("failed to get geolocation data from API: %w", err)
	}

	return geobus.Coordinate{
		Lat: geobus.Truncate(result.Location.Latitude, geobus.TruncPrecision),
		Lon: geobus.Truncate(result.Location.Longitude, geobus.TruncPrecision),
		Acc: geobus.Truncate(result.Accuracy, geobus.TruncPrecision),
		At:  time.Now(),
	}, nil
}
