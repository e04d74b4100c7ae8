// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package params holds the hyperparameters of a model: a map from parameter name to value, with
// typed accessors that convert between compatible types.
//
// Models register their defaults (see models.Defaults), and users override them from the command
// line (`-set "learning_rate=0.01;gnn_num_layers=3"`) or from an experiment configuration file.
package params

import (
	"encoding"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"golang.org/x/exp/constraints"
)

// Params maps hyperparameter names to values.
type Params map[string]any

// New returns an empty Params.
func New() Params {
	return make(Params)
}

// Set a parameter and returns p itself, so calls can be chained.
func (p Params) Set(key string, value any) Params {
	p[key] = value
	return p
}

// Get returns the value for key and whether it was found.
func (p Params) Get(key string) (any, bool) {
	value, found := p[key]
	return value, found
}

// Clone returns a shallow copy of p.
func (p Params) Clone() Params {
	c := make(Params, len(p))
	for k, v := range p {
		c[k] = v
	}
	return c
}

// Keys returns the parameter names, sorted.
func (p Params) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Update sets the values in updates, converting them to the type of the current value of each key.
// Only known keys (already present in p) can be updated: use Set to create new ones.
//
// It's used to apply settings read from configuration files, where e.g. an integer may be read as a float64.
func (p Params) Update(updates map[string]any) error {
	for _, key := range Params(updates).Keys() {
		value := updates[key]
		current, found := p[key]
		if !found {
			return errors.Errorf("unknown hyperparameter %q, known hyperparameters are %q", key, p.Keys())
		}
		if current == nil || value == nil {
			p[key] = value
			continue
		}
		converted, err := convertTo(value, reflect.TypeOf(current))
		if err != nil {
			return errors.WithMessagef(err, "hyperparameter %q", key)
		}
		p[key] = converted
	}
	return nil
}

// String implements fmt.Stringer, listing parameters in sorted order.
func (p Params) String() string {
	parts := make([]string, 0, len(p))
	for _, key := range p.Keys() {
		parts = append(parts, fmt.Sprintf("%s=%v", key, p[key]))
	}
	return strings.Join(parts, ";")
}

var textUnmarshalerType = reflect.TypeOf((*encoding.TextUnmarshaler)(nil)).Elem()

// convertTo converts value to the given type: strings are parsed with encoding.TextUnmarshaler if the
// type implements it, and otherwise reflect conversion rules are used (so an int converts to float64).
// Conversions between numbers and strings are not allowed.
func convertTo(value any, t reflect.Type) (any, error) {
	v := reflect.ValueOf(value)
	if v.Type() == t {
		return value, nil
	}
	ptr := reflect.New(t)
	if ptr.Type().Implements(textUnmarshalerType) && v.Kind() == reflect.String {
		if err := ptr.Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(v.String())); err != nil {
			return nil, errors.Wrapf(err, "can't UnmarshalText %q to %s", v.String(), t)
		}
		return ptr.Elem().Interface(), nil
	}
	isNumber := func(k reflect.Kind) bool {
		return k >= reflect.Int && k <= reflect.Float64
	}
	if v.Kind() == reflect.String && t.Kind() != reflect.String ||
		v.Kind() != reflect.String && t.Kind() == reflect.String ||
		isNumber(v.Kind()) != isNumber(t.Kind()) || !v.CanConvert(t) {
		return nil, errors.Errorf("value %#v (%T) cannot be converted to %s", value, value, t)
	}
	if isNumber(v.Kind()) && isInteger(t.Kind()) && v.CanFloat() && v.Float() != float64(int64(v.Float())) {
		return nil, errors.Errorf("value %v is not an integer, and cannot be converted to %s", value, t)
	}
	return v.Convert(t).Interface(), nil
}

func isInteger(k reflect.Kind) bool {
	return k >= reflect.Int && k <= reflect.Uintptr
}

// MustGetParam returns the value of key converted to T. It panics (with exceptions.Panicf) if the key is
// not set or the value cannot be converted.
func MustGetParam[T any](p Params, key string) T {
	var t T
	valueAny, found := p[key]
	if !found {
		exceptions.Panicf("hyperparameter %q (of type %T) not found", key, t)
	}
	if value, ok := valueAny.(T); ok {
		return value
	}
	converted, err := convertTo(valueAny, reflect.TypeOf(t))
	if err != nil {
		exceptions.Panicf("MustGetParam[%T](%q): %v", t, key, err)
	}
	return converted.(T)
}

// GetParamOr either returns the value for the given key, or if the key is not found or set to nil,
// it returns the given default value.
//
// It tries to cast the value to the given type. If it fails, it tries to convert the
// value to the given type (so an `int` will be converted to a `float64` transparently).
// If that also fails, it panics with an explanation.
func GetParamOr[T any](p Params, key string, defaultValue T) T {
	valueAny, found := p[key]
	if !found || valueAny == nil {
		return defaultValue
	}
	if value, ok := valueAny.(T); ok {
		return value
	}
	return MustGetParam[T](p, key)
}

// Number is a numeric type that can be read with GetNumberOr.
type Number interface {
	constraints.Integer | constraints.Float
}

// GetNumberOr returns the numeric value of key converted to T, or defaultValue if not set.
// It panics if the value is not a number, or if it is out of [minValue, maxValue].
func GetNumberOr[T Number](p Params, key string, defaultValue, minValue, maxValue T) T {
	value := GetParamOr(p, key, defaultValue)
	if value < minValue || value > maxValue {
		exceptions.Panicf("hyperparameter %q=%v out of range [%v, %v]", key, value, minValue, maxValue)
	}
	return value
}
