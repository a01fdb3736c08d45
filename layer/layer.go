// Package layer splits feature collections into named layers.
package layer

import (
	"fmt"

	"github.com/paulmach/orb/geojson"
)

// DefaultName is the name of the single layer used without a Config.
const DefaultName = "map"

// Predicate selects the features of a layer.
type Predicate func(*geojson.Feature) bool

type Layer struct {
	Name  string
	Match Predicate
}

// Config is an ordered list of layers. A nil or empty Config results in
// a single DefaultName layer with all features.
type Config []Layer

// ConfigError reports an invalid Config.
type ConfigError struct {
	Layer  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Layer == "" {
		return fmt.Sprintf("invalid layer config: %s", e.Reason)
	}
	return fmt.Sprintf("invalid layer config for %q: %s", e.Layer, e.Reason)
}

// PredicateError is returned when a Predicate panics.
type PredicateError struct {
	Layer     string
	FeatureID interface{}
	Value     interface{}
}

func (e *PredicateError) Error() string {
	return fmt.Sprintf("predicate of layer %q failed for feature %v: %v", e.Layer, e.FeatureID, e.Value)
}

// Validate checks that all layers have a unique, non-empty name and a
// predicate.
func (c Config) Validate() error {
	names := make(map[string]struct{}, len(c))
	for i, l := range c {
		if l.Name == "" {
			return &ConfigError{Reason: fmt.Sprintf("layer #%d without name", i+1)}
		}
		if _, ok := names[l.Name]; ok {
			return &ConfigError{Layer: l.Name, Reason: "duplicate layer name"}
		}
		names[l.Name] = struct{}{}
		if l.Match == nil {
			return &ConfigError{Layer: l.Name, Reason: "missing predicate"}
		}
	}
	return nil
}

// Names returns the layer names in order.
func (c Config) Names() []string {
	names := make([]string, len(c))
	for i, l := range c {
		names[i] = l.Name
	}
	return names
}

type Collection struct {
	Name     string
	Features *geojson.FeatureCollection
}

// Map holds the features of each layer in Config order.
type Map []Collection

// Get returns the features of the named layer.
func (m Map) Get(name string) (*geojson.FeatureCollection, bool) {
	for _, c := range m {
		if c.Name == name {
			return c.Features, true
		}
	}
	return nil, false
}

// Partition returns the features of fc matching each layer of cfg. Features
// keep their relative order and can be part of multiple layers. The
// collections share the features of fc.
func Partition(fc *geojson.FeatureCollection, cfg Config) (Map, error) {
	if len(cfg) == 0 {
		all := geojson.NewFeatureCollection()
		if fc != nil {
			all.Features = append(all.Features, fc.Features...)
		}
		return Map{{Name: DefaultName, Features: all}}, nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m := make(Map, 0, len(cfg))
	for _, l := range cfg {
		c := Collection{Name: l.Name, Features: geojson.NewFeatureCollection()}
		if fc != nil {
			for _, f := range fc.Features {
				ok, err := match(l, f)
				if err != nil {
					return nil, err
				}
				if ok {
					c.Features.Append(f)
				}
			}
		}
		m = append(m, c)
	}
	return m, nil
}

func match(l Layer, f *geojson.Feature) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PredicateError{Layer: l.Name, FeatureID: f.ID, Value: r}
		}
	}()
	return l.Match(f), nil
}
