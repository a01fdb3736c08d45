// Package mapping loads layer definitions from YAML files.
//
// A layer selects features by tag mapping, optional filters and
// geometry types:
//
//	layers:
//	  parks:
//	    geometry_types: [Polygon, MultiPolygon]
//	    mapping:
//	      leisure: [park]
//	    filters:
//	      reject:
//	        access: [private]
package mapping

import (
	"io/ioutil"
	"regexp"

	"github.com/omniscale/osmtopo/geom"
	"github.com/omniscale/osmtopo/layer"
	"github.com/omniscale/osmtopo/log"
	"github.com/omniscale/osmtopo/mapping/config"
	"github.com/paulmach/orb/geojson"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// AnyValue matches all values of a key.
const AnyValue = "__any__"

var geometryTypes = map[string]struct{}{
	"Point":        {},
	"LineString":   {},
	"Polygon":      {},
	"MultiPolygon": {},
}

type Mapping struct {
	Conf   config.Mapping
	Layers layer.Config
	Areas  geom.Areas
}

// FromFile loads and compiles the layer definitions of filename.
func FromFile(filename string) (*Mapping, error) {
	f, err := ioutil.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrap(err, "reading mapping")
	}
	m, err := New(f)
	if err != nil {
		return nil, errors.Wrapf(err, "loading mapping %s", filename)
	}
	return m, nil
}

func New(b []byte) (*Mapping, error) {
	mapping := Mapping{}
	err := yaml.UnmarshalStrict(b, &mapping.Conf)
	if err != nil {
		return nil, err
	}

	err = mapping.prepare()
	if err != nil {
		return nil, err
	}
	return &mapping, nil
}

func (m *Mapping) prepare() error {
	for _, k := range m.Conf.Areas.AreaTags {
		m.Areas.AreaTags = append(m.Areas.AreaTags, string(k))
	}
	for _, k := range m.Conf.Areas.LinearTags {
		m.Areas.LinearTags = append(m.Areas.LinearTags, string(k))
	}

	for _, l := range m.Conf.Layers {
		pred, err := compileLayer(l)
		if err != nil {
			return errors.Wrapf(err, "layer %s", l.Name)
		}
		m.Layers = append(m.Layers, layer.Layer{Name: l.Name, Match: pred})
	}
	if err := m.Layers.Validate(); err != nil {
		return err
	}
	return nil
}

type tagFilter func(f *geojson.Feature) bool

// tag returns the string property key of f.
func tag(f *geojson.Feature, key string) (string, bool) {
	v, ok := f.Properties[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func compileLayer(l *config.Layer) (layer.Predicate, error) {
	if len(l.Mapping) == 0 {
		return nil, errors.New("missing mapping")
	}
	var filters []tagFilter

	if len(l.GeometryTypes) > 0 {
		for _, t := range l.GeometryTypes {
			if _, ok := geometryTypes[t]; !ok {
				return nil, errors.Errorf("unknown geometry type %q", t)
			}
		}
		filters = append(filters, tagFilter(layer.GeometryType(l.GeometryTypes...)))
	}

	filters = append(filters, makeMappingFunction(l.Mapping))

	if l.Filters != nil {
		for keyname, vararr := range l.Filters.Require {
			filters = append(filters, makeFiltersFunction(l.Name, true, false, string(keyname), vararr))
		}
		for keyname, vararr := range l.Filters.Reject {
			filters = append(filters, makeFiltersFunction(l.Name, false, true, string(keyname), vararr))
		}
		for keyname, expr := range l.Filters.RequireRegexp {
			f, err := makeRegexpFiltersFunction(true, false, string(keyname), expr)
			if err != nil {
				return nil, err
			}
			filters = append(filters, f)
		}
		for keyname, expr := range l.Filters.RejectRegexp {
			f, err := makeRegexpFiltersFunction(false, true, string(keyname), expr)
			if err != nil {
				return nil, err
			}
			filters = append(filters, f)
		}
	}

	return func(f *geojson.Feature) bool {
		for _, filter := range filters {
			if !filter(f) {
				return false
			}
		}
		return true
	}, nil
}

// makeMappingFunction matches features with at least one of the mapped
// key/value combinations.
func makeMappingFunction(mapping config.KeyValues) tagFilter {
	values := make(map[string]map[string]struct{}, len(mapping))
	for k, vals := range mapping {
		values[string(k)] = make(map[string]struct{}, len(vals))
		for _, v := range vals {
			values[string(k)][string(v.Value)] = struct{}{}
		}
	}
	return func(f *geojson.Feature) bool {
		for k, vals := range values {
			v, ok := tag(f, k)
			if !ok {
				continue
			}
			if _, ok := vals[AnyValue]; ok {
				return true
			}
			if _, ok := vals[v]; ok {
				return true
			}
		}
		return false
	}
}

func findValueInOrderedValue(v config.Value, list []config.OrderedValue) bool {
	for _, item := range list {
		if item.Value == v {
			return true
		}
	}
	return false
}

func makeRegexpFiltersFunction(virtualTrue bool, virtualFalse bool, vKeyname string, vRegexp string) (tagFilter, error) {
	r, err := regexp.Compile(vRegexp)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid regexp for %s", vKeyname)
	}
	return func(f *geojson.Feature) bool {
		if v, ok := tag(f, vKeyname); ok {
			if r.MatchString(v) {
				return virtualTrue
			}
		}
		return virtualFalse
	}, nil
}

func makeFiltersFunction(layername string, virtualTrue bool, virtualFalse bool, vKeyname string, vVararr []config.OrderedValue) tagFilter {
	if findValueInOrderedValue(AnyValue, vVararr) {
		if len(vVararr) > 1 {
			log.Println("[warn] Multiple filter value with '__any__' keywords is not valid! (layer:" + layername + ")")
		}
		return func(f *geojson.Feature) bool {
			if _, ok := tag(f, vKeyname); ok {
				return virtualTrue
			}
			return virtualFalse
		}
	} else if len(vVararr) == 1 {
		return func(f *geojson.Feature) bool {
			if v, ok := tag(f, vKeyname); ok {
				if config.Value(v) == vVararr[0].Value {
					return virtualTrue
				}
			}
			return virtualFalse
		}
	} else {
		return func(f *geojson.Feature) bool {
			if v, ok := tag(f, vKeyname); ok {
				if findValueInOrderedValue(config.Value(v), vVararr) {
					return virtualTrue
				}
			}
			return virtualFalse
		}
	}
}
