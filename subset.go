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

// Package gridslice subsets gridded Earth-science granules served over
// OPeNDAP. A request names a granule and optional variable, spatial,
// temporal, and named-dimension constraints; the subsetter resolves the
// constraints into index ranges on the granule's dimension scales, fetches
// only the selected hyperslabs, and writes a NetCDF result.
package gridslice

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ctessum/geom"
	"github.com/sirupsen/logrus"

	"github.com/spatialgrid/gridslice/dap"
	"github.com/spatialgrid/gridslice/varinfo"
)

// DimensionRange is a half-open request on a named dimension, in the
// dimension's own units. A nil endpoint leaves that side unconstrained.
type DimensionRange struct {
	Min, Max *float64
}

// Request describes one subsetting operation.
type Request struct {
	// GranuleURL is the OPeNDAP URL of the granule, without a response
	// suffix.
	GranuleURL string
	// Variables are the full paths of the variables wanted. All science
	// variables are retrieved when empty.
	Variables []string
	// BBox is an optional geographic bounding box.
	BBox *BoundingBox
	// ShapePath optionally points to a GeoJSON or shapefile spatial
	// region. Ignored when BBox is also set, except for mask filling.
	ShapePath string
	// Temporal is an optional time interval.
	Temporal *TemporalRange
	// Dimensions are optional ranges on explicitly named dimensions.
	Dimensions map[string]DimensionRange
}

// Result is the outcome of a subsetting operation.
type Result struct {
	// FilePath is the local NetCDF output file. Empty when EmptyRange is
	// set.
	FilePath string
	// Dataset is the in-memory form of the output. Nil when EmptyRange is
	// set.
	Dataset *Dataset
	// EmptyRange reports that a requested range selected no data on
	// EmptyDimension. This is a valid outcome, not a failure.
	EmptyRange     bool
	EmptyDimension string
}

// A MaskFiller overwrites data cells outside a requested shape with the
// variable's fill value.
type MaskFiller interface {
	FillOutside(ds *Dataset, vi *varinfo.VarInfo, shape geom.Geom, indexRanges IndexRanges) error
}

// Subsetter executes subset requests against an OPeNDAP service.
type Subsetter struct {
	// Client fetches DMR documents and constrained data.
	Client dap.Client
	// Config supplies CF metadata overrides. Optional.
	Config *varinfo.Config
	// Logger receives operation logging. Logging is skipped when nil.
	Logger *logrus.Logger
	// OutputDir receives result files.
	OutputDir string
	// MaskFill, when set, is applied to shape requests after
	// reassembly.
	MaskFill MaskFiller
}

// Subset runs one request end to end. A request whose range lies entirely
// off the grid returns a Result with EmptyRange set and a nil error; all
// other failures return an error.
func (s *Subsetter) Subset(ctx context.Context, req Request) (*Result, error) {
	document, err := s.Client.FetchDMR(ctx, req.GranuleURL)
	if err != nil {
		return nil, err
	}
	vi, err := varinfo.New(document, s.Config)
	if err != nil {
		return nil, err
	}

	indexSubset := req.BBox != nil || req.ShapePath != "" || req.Temporal != nil || len(req.Dimensions) > 0

	requested := req.Variables
	if len(requested) == 0 {
		requested = vi.ScienceVariables()
		if indexSubset {
			// Index subsets carry the granule's metadata variables
			// along, so the output stays self-describing.
			requested = append(requested, vi.MetadataVariables()...)
		}
	}
	required := vi.RequiredVariables(requested)
	s.logFields(logrus.Fields{
		"granule":   req.GranuleURL,
		"variables": len(required),
	}, "resolved required variables")

	var shape geom.Geom
	if req.ShapePath != "" {
		if shape, err = LoadShape(req.ShapePath); err != nil {
			return nil, err
		}
	}

	var indexRanges IndexRanges
	if indexSubset {
		indexRanges, err = s.resolveIndexRanges(ctx, req, vi, required, shape)
		var empty *EmptyRangeError
		if errors.As(err, &empty) {
			s.logFields(logrus.Fields{"dimension": empty.Dimension}, "requested range selects no data")
			return &Result{EmptyRange: true, EmptyDimension: empty.Dimension}, nil
		}
		if err != nil {
			return nil, err
		}
	}

	var constraint string
	if len(req.Variables) > 0 || indexSubset {
		constraint = ConstraintExpression(vi, required, indexRanges)
	}
	dataFile, err := s.Client.FetchData(ctx, req.GranuleURL, constraint)
	if err != nil {
		return nil, err
	}
	ds, err := ReadDataset(dataFile, vi)
	if err != nil {
		return nil, err
	}
	if err := ReassembleWrapped(ds, indexRanges); err != nil {
		return nil, err
	}
	if shape != nil && s.MaskFill != nil {
		if err := s.MaskFill.FillOutside(ds, vi, shape, indexRanges); err != nil {
			return nil, err
		}
	}

	outputPath := filepath.Join(s.OutputDir, outputName(req.GranuleURL))
	if err := ds.WriteFile(outputPath); err != nil {
		return nil, err
	}
	s.logFields(logrus.Fields{"file": outputPath}, "wrote subset")
	return &Result{FilePath: outputPath, Dataset: ds}, nil
}

// resolveIndexRanges turns the request's constraints into index ranges.
// Named-dimension ranges resolve first, then spatial, then temporal; a
// dimension constrained more than once keeps the last resolution.
func (s *Subsetter) resolveIndexRanges(ctx context.Context, req Request, vi *varinfo.VarInfo, required []string, shape geom.Geom) (IndexRanges, error) {
	prefetch, err := s.prefetch(ctx, req.GranuleURL, vi, required)
	if err != nil {
		return nil, err
	}

	indexRanges := make(IndexRanges)
	if len(req.Dimensions) > 0 {
		named, err := namedDimensionRanges(prefetch, vi, required, req.Dimensions)
		if err != nil {
			return nil, err
		}
		merge(indexRanges, named)
	}
	if req.BBox != nil || shape != nil {
		spatial, err := SpatialIndexRanges(prefetch, vi, required, req.BBox, shape, newDerivedScales())
		if err != nil {
			return nil, err
		}
		merge(indexRanges, spatial)
	}
	if req.Temporal != nil {
		temporal, err := TemporalIndexRanges(prefetch, vi, required, *req.Temporal)
		if err != nil {
			return nil, err
		}
		merge(indexRanges, temporal)
	}
	return indexRanges, nil
}

// prefetch retrieves the dimension scales, bounds variables, and 2-D
// coordinates needed to resolve index ranges.
func (s *Subsetter) prefetch(ctx context.Context, granuleURL string, vi *varinfo.VarInfo, required []string) (*Dataset, error) {
	variables := vi.RequiredDimensions(required)
	variables = append(variables, vi.ReferencesForAttribute(variables, "bounds")...)
	if len(variables) == 0 {
		// No dimension variables: fall back to the 2-D coordinates the
		// derived-scale path needs.
		latitudes, longitudes := vi.CoordinateVariables(required)
		variables = append(latitudes, longitudes...)
	}
	if len(variables) == 0 {
		return NewDataset(), nil
	}

	constraint := ConstraintExpression(vi, variables, nil)
	s.logFields(logrus.Fields{"variables": len(variables)}, "prefetching dimension data")
	dataFile, err := s.Client.FetchData(ctx, granuleURL, constraint)
	if err != nil {
		return nil, err
	}
	return ReadDataset(dataFile, vi)
}

// namedDimensionRanges resolves explicitly named dimension requests. Names
// are accepted with or without a leading slash, but must be dimensions of
// a required variable.
func namedDimensionRanges(prefetch *Dataset, vi *varinfo.VarInfo, required []string, requests map[string]DimensionRange) (IndexRanges, error) {
	valid := make(map[string]bool)
	for _, dimension := range vi.RequiredDimensions(required) {
		valid[dimension] = true
	}

	indexRanges := make(IndexRanges)
	for name, request := range requests {
		dimension := name
		if !strings.HasPrefix(dimension, "/") {
			dimension = "/" + dimension
		}
		if !valid[dimension] {
			return nil, &InvalidNamedDimensionError{Dimension: name}
		}
		values, err := prefetch.Values1D(dimension)
		if err != nil {
			return nil, err
		}
		bounds, err := dimensionBounds(vi, prefetch, dimension)
		if err != nil {
			return nil, err
		}
		indexRange, err := DimensionIndexRange(dimension, values, request.Min, request.Max, bounds)
		if err != nil {
			return nil, err
		}
		indexRanges[dimension] = indexRange
	}
	return indexRanges, nil
}

func merge(dst, src IndexRanges) {
	for dimension, indexRange := range src {
		dst[dimension] = indexRange
	}
}

// outputName derives a deterministic result file name from the granule
// URL.
func outputName(granuleURL string) string {
	base := filepath.Base(strings.TrimSuffix(granuleURL, "/"))
	if i := strings.Index(base, "?"); i >= 0 {
		base = base[:i]
	}
	ext := filepath.Ext(base)
	if ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	if base == "" || base == "." {
		base = "granule"
	}
	return fmt.Sprintf("%s_subsetted.nc4", base)
}

func (s *Subsetter) logFields(fields logrus.Fields, message string) {
	if s.Logger != nil {
		s.Logger.WithFields(fields).Info(message)
	}
}
