// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package commandline

import (
	"encoding/json"
	"flag"
	"fmt"
	"strings"

	"github.com/gomlx/linkpred/ml/params"
	"github.com/pkg/errors"
)

// ParseSettings from settings -- typically the contents of a flag set by the user.
// The settings are a list separated by ";": e.g.: "param1=value1;param2=value2;...".
//
// All the parameters "param1", "param2", etc. must be already set with default values
// in `p`. The default values are also used to set the type to which the string values will be parsed to.
// Lists ([]int, []float64 and []string) are given as comma-separated values.
//
// It updates `p` accordingly, and returns an error in case a parameter is unknown or the parsing failed.
//
// For integer types, "_" is removed: it allows one to enter large numbers using it as a separator, like
// in Go. E.g.: 1_000_000 = 1000000.
//
// Example usage:
//
//	func main() {
//		p := must.M1(models.Defaults("sage"))
//		settings := commandline.CreateSettingsFlag(p, "")
//		flag.Parse()
//		err := commandline.ParseSettings(p, *settings)
//		if err != nil { panic(err) }
//		fmt.Println(commandline.SprintSettings(p))
//		...
//	}
func ParseSettings(p params.Params, settings string) error {
	for _, setting := range strings.Split(settings, ";") {
		setting = strings.TrimSpace(setting)
		if setting == "" {
			continue
		}
		key, valueStr, found := strings.Cut(setting, "=")
		if !found || key == "" {
			return errors.Errorf("can't parse settings %q: each setting requires the format \"<param>=<value>\", got %q",
				settings, setting)
		}
		value, found := p.Get(key)
		if !found {
			return errors.Errorf("can't set parameter %q because it is not known, known parameters are %q",
				key, p.Keys())
		}
		parsed, err := parseValue(value, valueStr)
		if err != nil {
			return errors.Wrapf(err, "failed to parse value %q for parameter %q (default value is %#v)", valueStr, key, value)
		}
		p.Set(key, parsed)
	}
	return nil
}

// parseValue parses valueStr to the type of value.
func parseValue(value any, valueStr string) (any, error) {
	var err error
	switch v := value.(type) {
	case int:
		err = json.Unmarshal([]byte(strings.ReplaceAll(valueStr, "_", "")), &v)
		value = v
	case int32:
		err = json.Unmarshal([]byte(strings.ReplaceAll(valueStr, "_", "")), &v)
		value = v
	case int64:
		err = json.Unmarshal([]byte(strings.ReplaceAll(valueStr, "_", "")), &v)
		value = v
	case uint64:
		err = json.Unmarshal([]byte(strings.ReplaceAll(valueStr, "_", "")), &v)
		value = v
	case float64:
		err = json.Unmarshal([]byte(valueStr), &v)
		value = v
	case float32:
		err = json.Unmarshal([]byte(valueStr), &v)
		value = v
	case bool:
		err = json.Unmarshal([]byte(valueStr), &v)
		value = v
	case string:
		value = valueStr
	case []int:
		value, err = parseList[int](valueStr, true)
	case []float64:
		value, err = parseList[float64](valueStr, false)
	case []string:
		value = splitList(valueStr)
	default:
		err = errors.Errorf("don't know how to parse type %T", value)
	}
	return value, err
}

func splitList(valueStr string) []string {
	if valueStr == "" {
		return []string{}
	}
	parts := strings.Split(valueStr, ",")
	for ii := range parts {
		parts[ii] = strings.TrimSpace(parts[ii])
	}
	return parts
}

func parseList[T int | float64](valueStr string, isInt bool) ([]T, error) {
	parts := splitList(valueStr)
	values := make([]T, len(parts))
	for ii, part := range parts {
		if isInt {
			part = strings.ReplaceAll(part, "_", "")
		}
		if err := json.Unmarshal([]byte(part), &values[ii]); err != nil {
			return nil, errors.Wrapf(err, "element #%d", ii)
		}
	}
	return values, nil
}

// CreateSettingsFlag create a string flag with the given flagName (if empty it will be named
// "set") and with a description of the current defined parameters in `p`.
//
// The flag should be created before the call to `flags.Parse()`.
func CreateSettingsFlag(p params.Params, flagName string) *string {
	if flagName == "" {
		flagName = "set"
	}
	var parts []string
	parts = append(parts,
		`Set hyperparameters of the method. `+
			`It should be a list of elements "param=value" separated by ";". `+
			`Current available parameters that can be set:`)
	for _, key := range p.Keys() {
		parts = append(parts, fmt.Sprintf("%q: default value is %v", key, p[key]))
	}
	usage := strings.Join(parts, "\n")
	var settings string
	flag.StringVar(&settings, flagName, "", usage)
	return &settings
}

// SprintSettings pretty-print values for the current hyperparameters settings into a string.
func SprintSettings(p params.Params) string {
	parts := []string{"Hyperparameters:"}
	for _, key := range p.Keys() {
		parts = append(parts, fmt.Sprintf("%q: (%T) %v", key, p[key], p[key]))
	}
	return strings.Join(parts, "\n\t")
}
