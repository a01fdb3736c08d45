package layer

import "github.com/paulmach/orb/geojson"

// All matches every feature.
func All(*geojson.Feature) bool { return true }

// None matches no feature.
func None(*geojson.Feature) bool { return false }

// HasTag matches features with property key. With values, the property
// must be one of them.
func HasTag(key string, values ...string) Predicate {
	return func(f *geojson.Feature) bool {
		v, ok := f.Properties[key]
		if !ok {
			return false
		}
		if len(values) == 0 {
			return true
		}
		s, ok := v.(string)
		if !ok {
			return false
		}
		for _, want := range values {
			if s == want {
				return true
			}
		}
		return false
	}
}

// GeometryType matches features with one of the GeoJSON geometry types
// (e.g. "Polygon").
func GeometryType(types ...string) Predicate {
	return func(f *geojson.Feature) bool {
		if f.Geometry == nil {
			return false
		}
		t := f.Geometry.GeoJSONType()
		for _, want := range types {
			if t == want {
				return true
			}
		}
		return false
	}
}

// And matches if all predicates match.
func And(preds ...Predicate) Predicate {
	return func(f *geojson.Feature) bool {
		for _, p := range preds {
			if !p(f) {
				return false
			}
		}
		return true
	}
}

// Or matches if any predicate matches.
func Or(preds ...Predicate) Predicate {
	return func(f *geojson.Feature) bool {
		for _, p := range preds {
			if p(f) {
				return true
			}
		}
		return false
	}
}

func Not(p Predicate) Predicate {
	return func(f *geojson.Feature) bool { return !p(f) }
}
