// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geobus

// GeolocationState remembers the last coordinate a provider emitted, so that providers only
// publish positions that moved significantly.
type GeolocationState struct {
	last     Coordinate
	haveLast bool
}

// Update stores the given coordinate as the last known position.
func (s *GeolocationState) Update(c Coordinate) {
	s.last = c
	s.haveLast = true
}

// HasChanged reports whether c differs significantly from the last known position. Without a
// last position every coordinate counts as a change.
func (s *GeolocationState) HasChanged(c Coordinate) bool {
	if !s.haveLast {
		return true
	}
	return c.PosHasSignificantChange(s.last)
}

// Last returns the last known position and whether one exists.
func (s *GeolocationState) Last() (Coordinate, bool) {
	return s.last, s.haveLast
}
