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

package varinfo

import (
	"fmt"
	"os"
	"regexp"

	yaml "gopkg.in/yaml.v2"
)

// Config is the parsed metadata-override document. It is loaded once and
// shared between requests; ForCollection produces the per-collection view.
//
// The document keys collections by mission and short name: an outer rule
// names a Mission regex and optionally a ShortNamePath regex, and carries
// attribute patches keyed by Variable_Pattern regexes. Nested
// Applicability_Group blocks inherit the mission and short name of their
// parent when they omit them.
type Config struct {
	CollectionShortNamePath  []string          `yaml:"Collection_ShortName_Path"`
	Mission                  map[string]string `yaml:"Mission"`
	ExcludedScienceVariables []applicableList  `yaml:"Excluded_Science_Variables"`
	RequiredFields           []applicableList  `yaml:"Required_Fields"`
	CFOverrides              []overrideRule    `yaml:"CF_Overrides"`
	CFSupplements            []overrideRule    `yaml:"CF_Supplements"`
}

type applicability struct {
	Mission         string `yaml:"Mission"`
	ShortNamePath   string `yaml:"ShortNamePath"`
	VariablePattern string `yaml:"Variable_Pattern"`
}

type applicableList struct {
	Applicability   applicability `yaml:"Applicability"`
	VariablePattern []string      `yaml:"Variable_Pattern"`
}

type configAttribute struct {
	Name  string `yaml:"Name"`
	Value string `yaml:"Value"`
}

type overrideRule struct {
	Applicability      applicability     `yaml:"Applicability"`
	Attributes         []configAttribute `yaml:"Attributes"`
	GlobalAttributes   []configAttribute `yaml:"Global_Attributes"`
	ApplicabilityGroup []overrideRule    `yaml:"Applicability_Group"`
}

// LoadConfig reads and parses an override document from disk.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("varinfo: reading configuration file: %v", err)
	}
	return ParseConfig(data)
}

// ParseConfig parses an override document.
func ParseConfig(data []byte) (*Config, error) {
	c := new(Config)
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("varinfo: parsing configuration file: %v", err)
	}
	return c, nil
}

// variableRule is one flattened variable-pattern → attributes entry,
// retained in document order so later rules win attribute conflicts.
type variableRule struct {
	pattern    string
	attributes []Attribute
}

// CollectionConfig is the subset of the override document applicable to a
// single mission and collection short name.
type CollectionConfig struct {
	Mission   string
	ShortName string

	ExcludedScienceVariables []string
	RequiredVariables        []string
	GlobalOverrides          []Attribute
	GlobalSupplements        []Attribute

	overrides   []variableRule
	supplements []variableRule
}

// ForCollection filters the document down to the rules applicable to the
// given mission and collection short name. An empty mission (collection
// not recognized) yields an empty view; a nil receiver does too.
func (c *Config) ForCollection(mission, shortName string) *CollectionConfig {
	cc := &CollectionConfig{Mission: mission, ShortName: shortName}
	if c == nil || mission == "" {
		return cc
	}
	for _, item := range c.ExcludedScienceVariables {
		if applies(item.Applicability, mission, shortName) {
			cc.ExcludedScienceVariables = append(cc.ExcludedScienceVariables, item.VariablePattern...)
		}
	}
	for _, item := range c.RequiredFields {
		if applies(item.Applicability, mission, shortName) {
			cc.RequiredVariables = append(cc.RequiredVariables, item.VariablePattern...)
		}
	}
	for _, rule := range c.CFOverrides {
		cc.GlobalOverrides = appendGlobals(cc.GlobalOverrides, rule, mission, shortName)
		cc.overrides = collectRules(cc.overrides, rule, mission, shortName, "", "")
	}
	for _, rule := range c.CFSupplements {
		cc.GlobalSupplements = appendGlobals(cc.GlobalSupplements, rule, mission, shortName)
		cc.supplements = collectRules(cc.supplements, rule, mission, shortName, "", "")
	}
	return cc
}

func appendGlobals(out []Attribute, rule overrideRule, mission, shortName string) []Attribute {
	if !applies(rule.Applicability, mission, shortName) {
		return out
	}
	for _, a := range rule.GlobalAttributes {
		out = append(out, Attribute{Name: a.Name, Value: a.Value})
	}
	return out
}

// collectRules flattens one override rule and its nested groups into the
// ordered rule list. Nested groups inherit the parent's mission and short
// name regexes when their own applicability omits them; a rule carrying
// attributes but no variable pattern applies to all variables.
func collectRules(out []variableRule, rule overrideRule, mission, shortName, parentMission, parentShortName string) []variableRule {
	ruleMission := rule.Applicability.Mission
	if ruleMission == "" {
		ruleMission = parentMission
	}
	ruleShortName := rule.Applicability.ShortNamePath
	if ruleShortName == "" {
		ruleShortName = parentShortName
	}
	if ruleMission == "" || !applies(applicability{Mission: ruleMission, ShortNamePath: ruleShortName}, mission, shortName) {
		return out
	}
	if len(rule.Attributes) > 0 {
		pattern := rule.Applicability.VariablePattern
		if pattern == "" {
			pattern = ".*"
		}
		attrs := make([]Attribute, len(rule.Attributes))
		for i, a := range rule.Attributes {
			attrs[i] = Attribute{Name: a.Name, Value: a.Value}
		}
		out = append(out, variableRule{pattern: pattern, attributes: attrs})
	}
	for _, nested := range rule.ApplicabilityGroup {
		out = collectRules(out, nested, mission, shortName, ruleMission, ruleShortName)
	}
	return out
}

func applies(a applicability, mission, shortName string) bool {
	if !matchesStart(a.Mission, mission) {
		return false
	}
	return a.ShortNamePath == "" || matchesStart(a.ShortNamePath, shortName)
}

// matchesStart matches a pattern anchored at the start of the string, the
// convention every regex in the override document follows.
func matchesStart(pattern, s string) bool {
	matched, err := regexp.MatchString("^(?:"+pattern+")", s)
	return err == nil && matched
}

// OverridesFor returns the override attributes applicable to a variable
// path, in document order. Conflicting names resolve to the later rule
// when the caller applies them sequentially.
func (cc *CollectionConfig) OverridesFor(variablePath string) []Attribute {
	return matchRules(cc.overrides, variablePath)
}

// SupplementsFor returns the supplement attributes applicable to a
// variable path, in document order.
func (cc *CollectionConfig) SupplementsFor(variablePath string) []Attribute {
	return matchRules(cc.supplements, variablePath)
}

func matchRules(rules []variableRule, variablePath string) []Attribute {
	var out []Attribute
	for _, rule := range rules {
		if matchesStart(rule.pattern, variablePath) {
			out = append(out, rule.attributes...)
		}
	}
	return out
}
