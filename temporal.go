/*
Copyright © 2025 the gridslice authors.
This file is part of gridslice.

gridslice is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

gridslice is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with gridslice.  If not, see <http://www.gnu.org/licenses/>.
*/

package gridslice

import (
	"strings"
	"time"

	"github.com/spatialgrid/gridslice/varinfo"
)

// TemporalRange is a requested time interval.
type TemporalRange struct {
	Start, End time.Time
}

// epochFormats are the layouts accepted for CF time epochs and request
// timestamps, tried in order. Epochs without explicit zones are UTC.
var epochFormats = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006-1-2 15:4:5",
	"2006-1-2",
}

// ParseTime parses a timestamp in any of the accepted layouts, assuming
// UTC when no zone is given.
func ParseTime(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	var firstErr error
	for _, layout := range epochFormats {
		t, err := time.Parse(layout, value)
		if err == nil {
			return t.UTC(), nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, &ConfigurationError{Subject: "time value " + value, Reason: firstErr.Error()}
}

// timeUnits maps the CF unit token of a "<unit> since <epoch>" units
// attribute to its duration.
var timeUnits = map[string]time.Duration{
	"day": 24 * time.Hour, "days": 24 * time.Hour, "d": 24 * time.Hour,
	"hour": time.Hour, "hours": time.Hour, "hr": time.Hour, "h": time.Hour,
	"minute": time.Minute, "minutes": time.Minute, "min": time.Minute, "mins": time.Minute,
	"second": time.Second, "seconds": time.Second, "sec": time.Second, "secs": time.Second, "s": time.Second,
}

// parseTimeUnits splits a CF time units attribute into its epoch and step
// size.
func parseTimeUnits(units string) (epoch time.Time, step time.Duration, err error) {
	parts := strings.SplitN(units, " since ", 2)
	if len(parts) != 2 {
		return time.Time{}, 0, &ConfigurationError{
			Subject: "temporal units " + units,
			Reason:  `expected "<unit> since <epoch>"`,
		}
	}
	step, ok := timeUnits[strings.TrimSpace(parts[0])]
	if !ok {
		return time.Time{}, 0, &ConfigurationError{
			Subject: "temporal units " + units,
			Reason:  "unsupported time unit " + parts[0],
		}
	}
	epoch, err = ParseTime(parts[1])
	if err != nil {
		return time.Time{}, 0, err
	}
	return epoch, step, nil
}

// temporalExtents converts a requested time interval into scale values on
// a time dimension declaring the given CF units.
func temporalExtents(temporal TemporalRange, units string) (minExtent, maxExtent float64, err error) {
	epoch, step, err := parseTimeUnits(units)
	if err != nil {
		return 0, 0, err
	}
	minExtent = float64(temporal.Start.Sub(epoch)) / float64(step)
	maxExtent = float64(temporal.End.Sub(epoch)) / float64(step)
	return minExtent, maxExtent, nil
}

// TemporalIndexRanges resolves a requested time interval on every temporal
// dimension supporting the required variables.
func TemporalIndexRanges(prefetch *Dataset, vi *varinfo.VarInfo, requiredVariables []string, temporal TemporalRange) (IndexRanges, error) {
	indexRanges := make(IndexRanges)
	for _, dimension := range vi.TemporalDimensions(requiredVariables) {
		units, _ := vi.Get(dimension).Attr("units")
		minimumExtent, maximumExtent, err := temporalExtents(temporal, units)
		if err != nil {
			return nil, err
		}
		values, err := prefetch.Values1D(dimension)
		if err != nil {
			return nil, err
		}
		bounds, err := dimensionBounds(vi, prefetch, dimension)
		if err != nil {
			return nil, err
		}
		indexRange, err := DimensionIndexRange(dimension, values, &minimumExtent, &maximumExtent, bounds)
		if err != nil {
			return nil, err
		}
		indexRanges[dimension] = indexRange
	}
	return indexRanges, nil
}
