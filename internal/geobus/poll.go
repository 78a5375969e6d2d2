// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geobus

import (
	"context"
	"time"
)

// LocateFunc looks up the current position once.
type LocateFunc func(ctx context.Context) (Coordinate, error)

// Poll calls locate right away and then once per period. Coordinates that moved significantly
// since the last emitted one are converted with toResult and streamed to the returned channel.
// Failed lookups are skipped. The channel is closed once ctx is done.
func Poll(ctx context.Context, period time.Duration, locate LocateFunc, toResult func(Coordinate) Result) <-chan Result {
	out := make(chan Result)
	go func() {
		defer close(out)
		state := GeolocationState{}
		firstRun := true

		for {
			if !firstRun {
				select {
				case <-ctx.Done():
					return
				case <-time.After(period):
				}
			}
			firstRun = false

			coord, err := locate(ctx)
			if err != nil || !coord.Valid() || !state.HasChanged(coord) {
				continue
			}
			state.Update(coord)

			select {
			case <-ctx.Done():
				return
			case out <- toResult(coord):
			}
		}
	}()
	return out
}
