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

// Package gridsliceutil holds the command-line interface for gridslice.
package gridsliceutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/lnashier/viper"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/spatialgrid/gridslice"
	"github.com/spatialgrid/gridslice/dap"
	"github.com/spatialgrid/gridslice/varinfo"
)

// Version is the gridslice version number.
const Version = "0.1.0"

// Cfg holds configuration information.
var Cfg *viper.Viper

var options []struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

func init() {
	// Options are the configuration options available to gridslice.
	options = []struct {
		name, usage, shorthand string
		defaultVal             interface{}
		flagsets               []*pflag.FlagSet
	}{
		{
			name: "config",
			usage: `
              config specifies the configuration file location.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "granule",
			usage: `
              granule is the OPeNDAP URL of the granule to subset, without
              a response suffix such as .dap.nc4.`,
			shorthand:  "g",
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{subsetCmd.Flags()},
		},
		{
			name: "variables",
			usage: `
              variables lists the full paths of the variables to retrieve.
              All science variables are retrieved when empty.`,
			defaultVal: []string{},
			flagsets:   []*pflag.FlagSet{subsetCmd.Flags()},
		},
		{
			name: "bbox",
			usage: `
              bbox is a geographic bounding box in the form
              west,south,east,north, in degrees. A box whose west edge lies
              east of its east edge crosses the antimeridian.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{subsetCmd.Flags()},
		},
		{
			name: "shape",
			usage: `
              shape is the path of a GeoJSON file or shapefile describing
              the spatial region of interest.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{subsetCmd.Flags()},
		},
		{
			name: "start",
			usage: `
              start is the beginning of the requested time interval, e.g.
              2020-01-01T00:00:00Z.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{subsetCmd.Flags()},
		},
		{
			name: "end",
			usage: `
              end is the end of the requested time interval.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{subsetCmd.Flags()},
		},
		{
			name: "dimensions",
			usage: `
              dimensions maps dimension names to value ranges in the form
              min,max. Either side may be empty to leave it unconstrained,
              e.g. {"/lev": "850,"}.`,
			defaultVal: map[string]string{},
			flagsets:   []*pflag.FlagSet{subsetCmd.Flags()},
		},
		{
			name: "output",
			usage: `
              output is the directory receiving downloaded and subsetted
              files.`,
			shorthand:  "o",
			defaultVal: ".",
			flagsets:   []*pflag.FlagSet{subsetCmd.Flags()},
		},
		{
			name: "cfconfig",
			usage: `
              cfconfig is the path of a YAML file of CF metadata overrides
              applied to granules with known metadata problems.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{subsetCmd.Flags()},
		},
		{
			name: "token",
			usage: `
              token is a bearer token sent with OPeNDAP requests.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{subsetCmd.Flags()},
		},
		{
			name: "timeout",
			usage: `
              timeout is the HTTP request timeout in seconds.`,
			defaultVal: 300,
			flagsets:   []*pflag.FlagSet{subsetCmd.Flags()},
		},
		{
			name: "loglevel",
			usage: `
              loglevel sets the logging verbosity: debug, info, warning, or
              error.`,
			defaultVal: "info",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
	}

	Cfg = viper.New()

	// Set the prefix for configuration environment variables.
	Cfg.SetEnvPrefix("GRIDSLICE")

	for _, option := range options {
		for i, set := range option.flagsets {
			if i != 0 { // We don't want to create the same flag twice.
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch option.defaultVal.(type) {
			case string:
				if option.shorthand == "" {
					set.String(option.name, option.defaultVal.(string), option.usage)
				} else {
					set.StringP(option.name, option.shorthand, option.defaultVal.(string), option.usage)
				}
			case []string:
				if option.shorthand == "" {
					set.StringSlice(option.name, option.defaultVal.([]string), option.usage)
				} else {
					set.StringSliceP(option.name, option.shorthand, option.defaultVal.([]string), option.usage)
				}
			case int:
				if option.shorthand == "" {
					set.Int(option.name, option.defaultVal.(int), option.usage)
				} else {
					set.IntP(option.name, option.shorthand, option.defaultVal.(int), option.usage)
				}
			case map[string]string:
				b := bytes.NewBuffer(nil)
				e := json.NewEncoder(b)
				e.Encode(option.defaultVal)
				s := string(b.Bytes())
				if option.shorthand == "" {
					set.String(option.name, s, option.usage)
				} else {
					set.StringP(option.name, option.shorthand, s, option.usage)
				}
			default:
				panic("invalid argument type")
			}
			Cfg.BindPFlag(option.name, set.Lookup(option.name))
		}
	}
}

func init() {
	// Link the commands together.
	Root.AddCommand(versionCmd)
	Root.AddCommand(subsetCmd)
}

// setConfig finds and reads in the configuration file, if there is one.
func setConfig() error {
	if cfgpath := Cfg.GetString("config"); cfgpath != "" {
		Cfg.SetConfigFile(cfgpath)
		if err := Cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("gridslice: problem reading configuration file: %v", err)
		}
	}
	return nil
}

// Root is the main command.
var Root = &cobra.Command{
	Use:   "gridslice",
	Short: "A variable and index-range subsetter for OPeNDAP granules.",
	Long: `gridslice retrieves subsets of gridded Earth-science granules served
over OPeNDAP. Variable, bounding-box, shape, temporal, and named-dimension
constraints are resolved into index ranges on the granule's dimension
scales, so only the selected hyperslabs cross the network.

Configuration can be changed by using a configuration file (and providing
the path to the file using the --config flag), by using command-line
arguments, or by setting environment variables in the format
'GRIDSLICE_var' where 'var' is the name of the variable to be set.
Refer to https://github.com/spf13/viper for additional configuration
information.`,
	DisableAutoGenTag: true,
	PersistentPreRunE: func(*cobra.Command, []string) error { return setConfig() },
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "version prints the version number of this version of gridslice.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("gridslice v%s\n", Version)
	},
	DisableAutoGenTag: true,
}

var subsetCmd = &cobra.Command{
	Use:   "subset",
	Short: "Subset a granule.",
	Long: `subset retrieves the requested variables of a granule, constrained to
the requested spatial region, time interval, and named-dimension ranges,
and writes the result as a local NetCDF file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := newLogger(Cfg.GetString("loglevel"))
		if err != nil {
			return err
		}
		req, err := subsetRequest(Cfg)
		if err != nil {
			return err
		}
		var config *varinfo.Config
		if path := Cfg.GetString("cfconfig"); path != "" {
			if config, err = varinfo.LoadConfig(path); err != nil {
				return err
			}
		}
		outputDir := Cfg.GetString("output")
		s := &gridslice.Subsetter{
			Client: &dap.HTTPClient{
				HTTP:      &http.Client{Timeout: time.Duration(Cfg.GetInt("timeout")) * time.Second},
				OutputDir: outputDir,
				Token:     Cfg.GetString("token"),
				Logger:    logger,
			},
			Config:    config,
			Logger:    logger,
			OutputDir: outputDir,
		}
		result, err := s.Subset(context.Background(), req)
		if err != nil {
			return err
		}
		if result.EmptyRange {
			cmd.Printf("no data in the requested range for dimension %s\n", result.EmptyDimension)
			return nil
		}
		cmd.Println(result.FilePath)
		return nil
	},
	DisableAutoGenTag: true,
}

func newLogger(level string) (*logrus.Logger, error) {
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("gridslice: invalid log level: %v", err)
	}
	logger := logrus.New()
	logger.Level = parsed
	return logger, nil
}

// subsetRequest assembles a subset request from the configuration.
func subsetRequest(cfg *viper.Viper) (gridslice.Request, error) {
	req := gridslice.Request{
		GranuleURL: cfg.GetString("granule"),
		Variables:  cfg.GetStringSlice("variables"),
		ShapePath:  cfg.GetString("shape"),
	}
	if req.GranuleURL == "" {
		return req, fmt.Errorf("gridslice: the granule option is required")
	}
	if s := cfg.GetString("bbox"); s != "" {
		bbox, err := parseBBox(s)
		if err != nil {
			return req, err
		}
		req.BBox = bbox
	}
	start, end := cfg.GetString("start"), cfg.GetString("end")
	if start != "" || end != "" {
		temporal, err := parseTemporal(start, end)
		if err != nil {
			return req, err
		}
		req.Temporal = temporal
	}
	dimensions, err := dimensionRanges(cfg.Get("dimensions"))
	if err != nil {
		return req, err
	}
	req.Dimensions = dimensions
	return req, nil
}

func parseBBox(s string) (*gridslice.BoundingBox, error) {
	fields := strings.Split(s, ",")
	if len(fields) != 4 {
		return nil, fmt.Errorf("gridslice: bbox must have the form west,south,east,north: %q", s)
	}
	values := make([]float64, 4)
	for i, field := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil {
			return nil, fmt.Errorf("gridslice: invalid bbox value %q: %v", field, err)
		}
		values[i] = v
	}
	return &gridslice.BoundingBox{
		West: values[0], South: values[1], East: values[2], North: values[3],
	}, nil
}

func parseTemporal(start, end string) (*gridslice.TemporalRange, error) {
	if start == "" || end == "" {
		return nil, fmt.Errorf("gridslice: temporal subsetting requires both start and end")
	}
	startTime, err := gridslice.ParseTime(start)
	if err != nil {
		return nil, err
	}
	endTime, err := gridslice.ParseTime(end)
	if err != nil {
		return nil, err
	}
	return &gridslice.TemporalRange{Start: startTime, End: endTime}, nil
}

// dimensionRanges parses the dimensions option, which arrives as either a
// JSON-encoded string (from the flag default) or a map (from a
// configuration file).
func dimensionRanges(value interface{}) (map[string]gridslice.DimensionRange, error) {
	if s, ok := value.(string); ok {
		m := make(map[string]string)
		if err := json.Unmarshal([]byte(s), &m); err != nil {
			return nil, fmt.Errorf("gridslice: parsing dimensions: %v", err)
		}
		value = m
	}
	m, err := cast.ToStringMapStringE(value)
	if err != nil {
		return nil, fmt.Errorf("gridslice: parsing dimensions: %v", err)
	}
	if len(m) == 0 {
		return nil, nil
	}
	out := make(map[string]gridslice.DimensionRange, len(m))
	for name, rangeSpec := range m {
		parts := strings.Split(rangeSpec, ",")
		if len(parts) != 2 {
			return nil, fmt.Errorf("gridslice: dimension range for %s must have the form min,max: %q", name, rangeSpec)
		}
		var r gridslice.DimensionRange
		if trimmed := strings.TrimSpace(parts[0]); trimmed != "" {
			v, err := strconv.ParseFloat(trimmed, 64)
			if err != nil {
				return nil, fmt.Errorf("gridslice: invalid range minimum for %s: %v", name, err)
			}
			r.Min = &v
		}
		if trimmed := strings.TrimSpace(parts[1]); trimmed != "" {
			v, err := strconv.ParseFloat(trimmed, 64)
			if err != nil {
				return nil, fmt.Errorf("gridslice: invalid range maximum for %s: %v", name, err)
			}
			r.Max = &v
		}
		out[name] = r
	}
	return out, nil
}
