package geom

import (
	osm "github.com/omniscale/go-osm"
)

// Areas configures which closed ways become polygons. Closed ways with
// any AreaTags key are areas, closed ways with a LinearTags key are
// lines unless they are tagged with area=yes. Keys in neither list
// fall back to the built-in rules.
type Areas struct {
	AreaTags   []string `yaml:"area_tags" json:"area_tags"`
	LinearTags []string `yaml:"linear_tags" json:"linear_tags"`
}

type areaRule struct {
	all     bool
	include map[string]struct{}
	exclude map[string]struct{}
}

func (r areaRule) match(value string) bool {
	if r.include != nil {
		_, ok := r.include[value]
		return ok
	}
	if r.exclude != nil {
		_, ok := r.exclude[value]
		return !ok
	}
	return r.all
}

func set(values ...string) map[string]struct{} {
	s := make(map[string]struct{}, len(values))
	for _, v := range values {
		s[v] = struct{}{}
	}
	return s
}

var allValues = areaRule{all: true}

// defaultAreaRules lists the tags that make a closed way an area.
var defaultAreaRules = map[string]areaRule{
	"building":         allValues,
	"building:part":    allValues,
	"landuse":          allValues,
	"amenity":          allValues,
	"leisure":          allValues,
	"shop":             allValues,
	"tourism":          allValues,
	"historic":         allValues,
	"office":           allValues,
	"place":            allValues,
	"boundary":         allValues,
	"military":         allValues,
	"ruins":            allValues,
	"craft":            allValues,
	"golf":             allValues,
	"indoor":           allValues,
	"public_transport": allValues,
	"area:highway":     allValues,
	"natural":          {exclude: set("coastline", "cliff", "ridge", "arete", "tree_row")},
	"man_made":         {exclude: set("cutline", "embankment", "pipeline")},
	"aeroway":          {exclude: set("taxiway")},
	"waterway":         {include: set("riverbank", "dock", "boatyard", "dam")},
	"highway":          {include: set("services", "rest_area", "escape", "elevator")},
	"barrier":          {include: set("city_wall", "ditch", "hedge", "retaining_wall", "wall", "spikes")},
	"railway":          {include: set("station", "turntable", "roundhouse", "platform")},
	"power":            {include: set("plant", "substation", "generator", "transformer")},
}

type areaMatcher struct {
	areaTags   map[string]struct{}
	linearTags map[string]struct{}
}

func newAreaMatcher(a Areas) *areaMatcher {
	return &areaMatcher{
		areaTags:   set(a.AreaTags...),
		linearTags: set(a.LinearTags...),
	}
}

// isArea returns whether a closed way with these tags is an area.
func (m *areaMatcher) isArea(tags osm.Tags) bool {
	switch tags["area"] {
	case "yes":
		return true
	case "no":
		return false
	}
	for k, v := range tags {
		if v == "no" {
			continue
		}
		if _, ok := m.linearTags[k]; ok {
			continue
		}
		if _, ok := m.areaTags[k]; ok {
			return true
		}
		if rule, ok := defaultAreaRules[k]; ok && rule.match(v) {
			return true
		}
	}
	return false
}
