// Package geom converts OSM elements into GeoJSON features.
package geom

import (
	"fmt"
	"time"

	osm "github.com/omniscale/go-osm"
	"github.com/omniscale/osmtopo/element"
	"github.com/omniscale/osmtopo/log"
	"github.com/omniscale/osmtopo/stats"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// TaintedProperty marks features built from incomplete elements.
const TaintedProperty = "@tainted"

type Options struct {
	Areas Areas
	// Rewind orients way polygons like relation polygons (outer ring
	// counter-clockwise, holes clockwise).
	Rewind bool
	// Metadata adds @version, @timestamp, @changeset, @user and @uid
	// properties when the elements carry metadata.
	Metadata bool
	Stats    *stats.Counts
}

// uninterestingTags are ignored when deciding whether an element is a
// feature on its own.
var uninterestingTags = map[string]struct{}{
	"source":            {},
	"source_ref":        {},
	"source:ref":        {},
	"history":           {},
	"attribution":       {},
	"created_by":        {},
	"tiger:county":      {},
	"tiger:tlid":        {},
	"tiger:upload_uuid": {},
}

func hasInterestingTags(tags osm.Tags, ignore ...string) bool {
next:
	for k := range tags {
		if _, ok := uninterestingTags[k]; ok {
			continue
		}
		for _, i := range ignore {
			if k == i {
				continue next
			}
		}
		return true
	}
	return false
}

type normalizer struct {
	ds       *element.Dataset
	opts     *Options
	parents  *element.Parents
	areas    *areaMatcher
	consumed map[int64]struct{}
}

// Normalize converts all nodes, ways and relations of ds into features.
// Nodes come first, then ways, then relations, each in dataset order.
// Elements without usable geometry are skipped, incomplete elements are
// kept with a TaintedProperty where possible. ds is not modified.
func Normalize(ds *element.Dataset, opts *Options) *geojson.FeatureCollection {
	if opts == nil {
		opts = &Options{}
	}
	n := &normalizer{
		ds:       ds,
		opts:     opts,
		parents:  ds.Parents(),
		areas:    newAreaMatcher(opts.Areas),
		consumed: make(map[int64]struct{}),
	}
	opts.Stats.AddElements(len(ds.Nodes), len(ds.Ways), len(ds.Relations))

	var nodes, ways, relations []element.Ref
	for _, ref := range ds.Order {
		switch ref.Type {
		case element.NodeType:
			nodes = append(nodes, ref)
		case element.WayType:
			ways = append(ways, ref)
		case element.RelationType:
			relations = append(relations, ref)
		}
	}

	// relations first, old-style multipolygons consume their outer way
	var relFeatures []*geojson.Feature
	for _, ref := range relations {
		rel, ok := ds.Relations[ref.ID]
		if !ok || rel == nil {
			n.missing(ref)
			continue
		}
		if f := n.relation(rel); f != nil {
			relFeatures = append(relFeatures, f)
		}
	}

	fc := geojson.NewFeatureCollection()
	for _, ref := range nodes {
		nd, ok := ds.Nodes[ref.ID]
		if !ok || nd == nil {
			n.missing(ref)
			continue
		}
		if f := n.node(nd); f != nil {
			n.add(fc, f)
		}
	}
	for _, ref := range ways {
		w, ok := ds.Ways[ref.ID]
		if !ok || w == nil {
			n.missing(ref)
			continue
		}
		if f := n.way(w); f != nil {
			n.add(fc, f)
		}
	}
	for _, f := range relFeatures {
		n.add(fc, f)
	}
	return fc
}

func (n *normalizer) add(fc *geojson.FeatureCollection, f *geojson.Feature) {
	fc.Append(f)
	n.opts.Stats.AddFeature(f.Geometry.GeoJSONType())
	if _, ok := f.Properties[TaintedProperty]; ok {
		n.opts.Stats.AddTainted()
	}
}

func (n *normalizer) feature(g orb.Geometry, ref element.Ref, elem *osm.Element, tainted bool) *geojson.Feature {
	f := geojson.NewFeature(g)
	f.ID = ref.String()
	for k, v := range elem.Tags {
		f.Properties[k] = v
	}
	if tainted {
		f.Properties[TaintedProperty] = true
	}
	if n.opts.Metadata && elem.Metadata != nil {
		md := elem.Metadata
		f.Properties["@version"] = md.Version
		f.Properties["@changeset"] = md.Changeset
		f.Properties["@uid"] = md.UserID
		if md.UserName != "" {
			f.Properties["@user"] = md.UserName
		}
		if !md.Timestamp.IsZero() {
			f.Properties["@timestamp"] = md.Timestamp.UTC().Format(time.RFC3339)
		}
	}
	return f
}

func (n *normalizer) skip(ref element.Ref, reason string) {
	log.Printf("[debug] skipping %s: %s", ref, reason)
	n.opts.Stats.AddSkipped()
}

// missing logs elements listed in the dataset order without data.
func (n *normalizer) missing(ref element.Ref) {
	log.Printf("[debug] %s listed but missing from dataset", ref)
}

func (n *normalizer) node(nd *osm.Node) *geojson.Feature {
	if !hasInterestingTags(nd.Tags) && n.parents.NodeReferenced(nd.ID) {
		return nil
	}
	ref := element.Ref{Type: element.NodeType, ID: nd.ID}
	long, lat, ok := n.ds.Coord(nd.ID)
	if !ok {
		n.skip(ref, "invalid coordinates")
		return nil
	}
	return n.feature(orb.Point{long, lat}, ref, &nd.Element, false)
}

// coords returns the positions of all refs found in the dataset.
func (n *normalizer) coords(w *osm.Way) (refs []int64, coords []orb.Point, tainted bool) {
	refs = make([]int64, 0, len(w.Refs))
	coords = make([]orb.Point, 0, len(w.Refs))
	for _, id := range w.Refs {
		long, lat, ok := n.ds.Coord(id)
		if !ok {
			tainted = true
			continue
		}
		refs = append(refs, id)
		coords = append(coords, orb.Point{long, lat})
	}
	return refs, coords, tainted
}

func distinctPositions(coords []orb.Point, min int) bool {
	if len(coords) == 0 {
		return false
	}
	seen := map[orb.Point]struct{}{}
	for _, c := range coords {
		seen[c] = struct{}{}
		if len(seen) >= min {
			return true
		}
	}
	return false
}

func (n *normalizer) way(w *osm.Way) *geojson.Feature {
	if _, ok := n.consumed[w.ID]; ok {
		return nil
	}
	ref := element.Ref{Type: element.WayType, ID: w.ID}
	if !hasInterestingTags(w.Tags) {
		if rels := n.parents.WayRelationIDs(w.ID); len(rels) > 0 {
			log.Printf("[debug] %s is only a member of relations %v", ref, rels)
			return nil
		}
	}
	g, tainted := n.wayGeometry(w)
	if g == nil {
		n.skip(ref, "not enough valid nodes")
		return nil
	}
	if tainted {
		log.Printf("[debug] %s references missing nodes", ref)
	}
	return n.feature(g, ref, &w.Element, tainted)
}

// wayGeometry returns a Polygon for closed area ways and a LineString
// for all others. Returns nil if no valid geometry remains after
// dropping missing nodes.
func (n *normalizer) wayGeometry(w *osm.Way) (orb.Geometry, bool) {
	refs, coords, tainted := n.coords(w)
	if element.IsClosed(w) && n.areas.isArea(w.Tags) {
		closed := len(refs) >= 4 && refs[0] == refs[len(refs)-1]
		if closed && distinctPositions(coords, 3) {
			poly := orb.Polygon{orb.Ring(coords)}
			if n.opts.Rewind {
				Rewind(poly)
			}
			return poly, tainted
		}
	}
	if !distinctPositions(coords, 2) {
		return nil, tainted
	}
	return orb.LineString(coords), tainted
}

// isPolygonRelation returns whether rel describes an area.
func isPolygonRelation(rel *osm.Relation) bool {
	switch rel.Tags["type"] {
	case "multipolygon":
		return true
	case "boundary":
		_, ok := rel.Tags["boundary"]
		return ok
	}
	return false
}

// simpleOuter returns the single outer way of an old-style multipolygon
// that only carries the type tag. Returns nil for all other relations.
func (n *normalizer) simpleOuter(rel *osm.Relation) *osm.Way {
	if hasInterestingTags(rel.Tags, "type") {
		return nil
	}
	var outer *osm.Way
	for _, m := range rel.Members {
		if m.Type != osm.WayMember || m.Role != "outer" {
			continue
		}
		if outer != nil {
			return nil
		}
		w, ok := n.ds.Ways[m.ID]
		if !ok || w == nil {
			return nil
		}
		outer = w
	}
	if outer == nil || !hasInterestingTags(outer.Tags) {
		return nil
	}
	return outer
}

func (n *normalizer) relation(rel *osm.Relation) *geojson.Feature {
	if !isPolygonRelation(rel) {
		return nil
	}
	ref := element.Ref{Type: element.RelationType, ID: rel.ID}
	g, tainted, err := BuildRelation(rel, n.ds, true)
	if err != nil {
		n.skip(ref, err.Error())
		return nil
	}
	if tainted {
		log.Printf("[debug] %s has missing or unclosed members", ref)
	}
	if outer := n.simpleOuter(rel); outer != nil {
		n.consumed[outer.ID] = struct{}{}
		f := n.feature(g, ref, &outer.Element, tainted)
		f.Properties["@relation"] = fmt.Sprintf("%d", rel.ID)
		f.ID = element.Ref{Type: element.WayType, ID: outer.ID}.String()
		return f
	}
	return n.feature(g, ref, &rel.Element, tainted)
}
