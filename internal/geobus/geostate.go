// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geobus

// GeolocationState tracks the last emitted coordinate of a polling provider.
type GeolocationState struct {
	last     Coordinate
	haveLast bool
}

// HasChanged reports whether coord differs significantly from the last stored coordinate.
// An empty state always reports a change.
func (s *GeolocationState) HasChanged(coord Coordinate) bool {
	if !s.haveLast {
		return true
	}
	return s.last.PosHasSignificantChange(coord)
}

// Update stores coord as the last known coordinate.
func (s *GeolocationState) Update(coord Coordinate) {
	s.last = coord
	s.haveLast = true
}
