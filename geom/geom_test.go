package geom

import (
	"bytes"
	"os"
	"strings"
	"testing"
	"time"

	osm "github.com/omniscale/go-osm"
	"github.com/omniscale/osmtopo/element"
	"github.com/omniscale/osmtopo/log"
	"github.com/omniscale/osmtopo/stats"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

func featureIDs(fc *geojson.FeatureCollection) []string {
	ids := make([]string, 0, len(fc.Features))
	for _, f := range fc.Features {
		ids = append(ids, f.ID.(string))
	}
	return ids
}

func assertIDs(t *testing.T, fc *geojson.FeatureCollection, expected ...string) {
	t.Helper()
	ids := featureIDs(fc)
	if len(ids) != len(expected) {
		t.Fatalf("%v != %v", ids, expected)
	}
	for i := range ids {
		if ids[i] != expected[i] {
			t.Fatalf("%v != %v", ids, expected)
		}
	}
}

func parkDataset() *element.Dataset {
	ds := element.NewDataset()
	makeWay(ds, 1, osm.Tags{"leisure": "park", "name": "Park"}, []coord{
		{1, 8.0, 53.0},
		{2, 8.1, 53.0},
		{3, 8.1, 53.1},
		{4, 8.0, 53.1},
		{1, 8.0, 53.0},
	})
	return ds
}

func TestNormalizeParkPolygon(t *testing.T) {
	ds := parkDataset()
	counts := stats.New()
	fc := Normalize(ds, &Options{Stats: counts})

	assertIDs(t, fc, "way/1")
	f := fc.Features[0]
	poly, ok := f.Geometry.(orb.Polygon)
	if !ok {
		t.Fatalf("not a polygon: %T", f.Geometry)
	}
	if len(poly) != 1 || len(poly[0]) != 5 {
		t.Fatal(poly)
	}
	if poly[0][0] != (orb.Point{8.0, 53.0}) || poly[0][0] != poly[0][4] {
		t.Fatal(poly[0])
	}
	if f.Properties["leisure"] != "park" || f.Properties["name"] != "Park" {
		t.Fatal(f.Properties)
	}
	if _, ok := f.Properties[TaintedProperty]; ok {
		t.Fatal("feature tainted")
	}
	if counts.Polygons != 1 || counts.Ways != 1 || counts.Nodes != 4 {
		t.Fatal(counts)
	}
}

func TestNormalizeNilOptions(t *testing.T) {
	fc := Normalize(parkDataset(), nil)
	if len(fc.Features) != 1 {
		t.Fatal(fc.Features)
	}
	if fc.Type != "FeatureCollection" {
		t.Fatal(fc.Type)
	}
}

func TestNormalizeEmpty(t *testing.T) {
	fc := Normalize(element.NewDataset(), nil)
	if len(fc.Features) != 0 {
		t.Fatal(fc.Features)
	}
}

func TestNormalizeWayGeometry(t *testing.T) {
	for _, test := range []struct {
		tags     osm.Tags
		closed   bool
		expected string
	}{
		{osm.Tags{"highway": "primary"}, false, "LineString"},
		{osm.Tags{"highway": "primary"}, true, "LineString"},
		{osm.Tags{"highway": "services"}, true, "Polygon"},
		{osm.Tags{"building": "yes"}, true, "Polygon"},
		{osm.Tags{"building": "yes"}, false, "LineString"},
		{osm.Tags{"building": "yes", "area": "no"}, true, "LineString"},
		{osm.Tags{"highway": "pedestrian", "area": "yes"}, true, "Polygon"},
		{osm.Tags{"natural": "coastline"}, true, "LineString"},
		{osm.Tags{"natural": "wood"}, true, "Polygon"},
		{osm.Tags{"waterway": "riverbank"}, true, "Polygon"},
		{osm.Tags{"waterway": "river"}, true, "LineString"},
		{osm.Tags{"barrier": "fence"}, true, "LineString"},
		{osm.Tags{"landuse": "no"}, true, "LineString"},
		{osm.Tags{"name": "x"}, true, "LineString"},
	} {
		ds := element.NewDataset()
		coords := []coord{{1, 0, 0}, {2, 1, 0}, {3, 1, 1}, {4, 0, 1}}
		if test.closed {
			coords = append(coords, coord{1, 0, 0})
		}
		makeWay(ds, 1, test.tags, coords)
		fc := Normalize(ds, nil)
		if len(fc.Features) != 1 {
			t.Fatalf("%v: %d features", test.tags, len(fc.Features))
		}
		if typ := fc.Features[0].Geometry.GeoJSONType(); typ != test.expected {
			t.Errorf("%v closed=%v: %s != %s", test.tags, test.closed, typ, test.expected)
		}
	}
}

func TestNormalizeAreaOptions(t *testing.T) {
	ds := element.NewDataset()
	makeWay(ds, 1, osm.Tags{"playground": "yes"}, []coord{{1, 0, 0}, {2, 1, 0}, {3, 1, 1}, {1, 0, 0}})
	makeWay(ds, 2, osm.Tags{"building": "yes"}, []coord{{4, 2, 0}, {5, 3, 0}, {6, 3, 1}, {4, 2, 0}})

	fc := Normalize(ds, &Options{Areas: Areas{AreaTags: []string{"playground"}, LinearTags: []string{"building"}}})
	if typ := fc.Features[0].Geometry.GeoJSONType(); typ != "Polygon" {
		t.Error(typ)
	}
	if typ := fc.Features[1].Geometry.GeoJSONType(); typ != "LineString" {
		t.Error(typ)
	}
}

func TestNormalizeRewind(t *testing.T) {
	ds := element.NewDataset()
	// clockwise
	makeWay(ds, 1, osm.Tags{"building": "yes"}, []coord{{1, 0, 0}, {2, 0, 1}, {3, 1, 1}, {4, 1, 0}, {1, 0, 0}})

	fc := Normalize(ds, nil)
	if fc.Features[0].Geometry.(orb.Polygon)[0].Orientation() != orb.CW {
		t.Error("way polygon rewound without option")
	}
	fc = Normalize(ds, &Options{Rewind: true})
	if fc.Features[0].Geometry.(orb.Polygon)[0].Orientation() != orb.CCW {
		t.Error("way polygon not rewound")
	}
	if ds.Nodes[2].Long != 0 || ds.Ways[1].Refs[1] != 2 {
		t.Error("dataset modified")
	}
}

func TestNormalizeNodes(t *testing.T) {
	ds := element.NewDataset()
	ds.AddNode(&osm.Node{Element: osm.Element{ID: 10, Tags: osm.Tags{"amenity": "bench"}}, Long: 5, Lat: 6})
	ds.AddNode(&osm.Node{Element: osm.Element{ID: 11, Tags: osm.Tags{"created_by": "JOSM"}}, Long: 1, Lat: 1})
	makeWay(ds, 1, osm.Tags{"highway": "path"}, []coord{{1, 0, 0}, {2, 1, 0}})
	// way node with tags
	ds.Nodes[2].Tags = osm.Tags{"barrier": "gate"}

	fc := Normalize(ds, nil)
	// node 11 has only uninteresting tags but is not referenced
	assertIDs(t, fc, "node/10", "node/11", "node/2", "way/1")
	if p := fc.Features[0].Geometry.(orb.Point); p != (orb.Point{5, 6}) {
		t.Fatal(p)
	}
}

func TestNormalizeRelationMembersAndTagContainers(t *testing.T) {
	ds := element.NewDataset()
	makeWay(ds, 1, osm.Tags{"highway": "primary"}, []coord{{1, 0, 0}, {2, 1, 0}})
	makeWay(ds, 2, osm.Tags{}, []coord{{2, 1, 0}, {3, 2, 0}})
	makeRelation(ds, 100, osm.Tags{"type": "route", "route": "bus"},
		wayMember(1, ""), wayMember(2, ""))

	fc := Normalize(ds, nil)
	// way 2 is an untagged relation member, the route is a tag container
	assertIDs(t, fc, "way/1")
}

func TestNormalizeLogsMemberRelations(t *testing.T) {
	buf := &bytes.Buffer{}
	log.SetOutput(buf)
	defer log.SetOutput(os.Stderr)
	defer log.SetMinLevel(log.LProgress)
	log.SetMinLevel(log.LDebug)

	ds := element.NewDataset()
	makeWay(ds, 2, osm.Tags{}, []coord{{2, 1, 0}, {3, 2, 0}})
	makeRelation(ds, 101, osm.Tags{"type": "route"}, wayMember(2, ""))
	makeRelation(ds, 100, osm.Tags{"type": "route"}, wayMember(2, ""))

	fc := Normalize(ds, nil)
	assertIDs(t, fc)
	if out := buf.String(); !strings.Contains(out, "way/2 is only a member of relations [100 101]") {
		t.Fatal(out)
	}
}

func TestNormalizeMultipolygon(t *testing.T) {
	ds := element.NewDataset()
	makeWay(ds, 1, osm.Tags{}, []coord{
		{1, 0, 0}, {2, 10, 0}, {3, 10, 10}, {4, 0, 10}, {1, 0, 0},
	})
	makeWay(ds, 2, osm.Tags{}, []coord{
		{5, 2, 2}, {6, 8, 2}, {7, 8, 8}, {8, 2, 8}, {5, 2, 2},
	})
	makeRelation(ds, 100, osm.Tags{"type": "multipolygon", "landuse": "forest"},
		wayMember(1, "outer"), wayMember(2, "inner"))
	makeRelation(ds, 101, osm.Tags{"type": "boundary", "boundary": "administrative"},
		wayMember(1, "outer"))
	makeRelation(ds, 102, osm.Tags{"type": "boundary"},
		wayMember(1, "outer"))

	fc := Normalize(ds, nil)
	assertIDs(t, fc, "relation/100", "relation/101")
	poly := fc.Features[0].Geometry.(orb.Polygon)
	if len(poly) != 2 {
		t.Fatal(poly)
	}
	if fc.Features[0].Properties["landuse"] != "forest" || fc.Features[0].Properties["type"] != "multipolygon" {
		t.Fatal(fc.Features[0].Properties)
	}
}

func TestNormalizeOldStyleMultipolygon(t *testing.T) {
	ds := element.NewDataset()
	makeWay(ds, 1, osm.Tags{"natural": "water", "name": "Lake"}, []coord{
		{1, 0, 0}, {2, 10, 0}, {3, 10, 10}, {4, 0, 10}, {1, 0, 0},
	})
	makeWay(ds, 2, osm.Tags{}, []coord{
		{5, 2, 2}, {6, 8, 2}, {7, 8, 8}, {8, 2, 8}, {5, 2, 2},
	})
	makeRelation(ds, 100, osm.Tags{"type": "multipolygon", "created_by": "x"},
		wayMember(1, "outer"), wayMember(2, "inner"))

	fc := Normalize(ds, nil)
	assertIDs(t, fc, "way/1")
	f := fc.Features[0]
	if poly, ok := f.Geometry.(orb.Polygon); !ok || len(poly) != 2 {
		t.Fatal("expected polygon with hole", f.Geometry)
	}
	if f.Properties["name"] != "Lake" || f.Properties["@relation"] != "100" {
		t.Fatal(f.Properties)
	}
}

func TestNormalizeDanglingRefs(t *testing.T) {
	ds := element.NewDataset()
	// line with a missing middle node
	makeWay(ds, 1, osm.Tags{"highway": "primary"}, []coord{{1, 0, 0}, {2, 1, 0}, {3, 2, 0}})
	delete(ds.Nodes, 2)
	// area missing a corner stays closed
	makeWay(ds, 2, osm.Tags{"building": "yes"}, []coord{{11, 0, 0}, {12, 1, 0}, {13, 1, 1}, {14, 0, 1}, {11, 0, 0}})
	delete(ds.Nodes, 13)
	// area missing its closing node becomes a line
	makeWay(ds, 3, osm.Tags{"building": "yes"}, []coord{{21, 0, 0}, {22, 1, 0}, {23, 1, 1}, {24, 0, 1}, {21, 0, 0}})
	delete(ds.Nodes, 21)
	// only one node left
	makeWay(ds, 4, osm.Tags{"highway": "primary"}, []coord{{31, 0, 0}, {32, 1, 0}})
	delete(ds.Nodes, 32)

	counts := stats.New()
	fc := Normalize(ds, &Options{Stats: counts})
	assertIDs(t, fc, "way/1", "way/2", "way/3")

	line := fc.Features[0].Geometry.(orb.LineString)
	if len(line) != 2 || line[1] != (orb.Point{2, 0}) {
		t.Fatal(line)
	}
	if typ := fc.Features[1].Geometry.GeoJSONType(); typ != "Polygon" {
		t.Fatal(typ)
	}
	if typ := fc.Features[2].Geometry.GeoJSONType(); typ != "LineString" {
		t.Fatal(typ)
	}
	for _, f := range fc.Features {
		if f.Properties[TaintedProperty] != true {
			t.Error("not tainted", f.ID)
		}
	}
	if counts.Tainted != 3 || counts.Skipped != 1 {
		t.Fatal(counts)
	}
}

func TestNormalizeInconsistentDataset(t *testing.T) {
	ds := element.NewDataset()
	ds.AddNode(&osm.Node{Element: osm.Element{ID: 1, Tags: osm.Tags{"amenity": "bench"}}, Long: 1, Lat: 1})
	ds.AddNode(&osm.Node{Element: osm.Element{ID: 2, Tags: osm.Tags{"shop": "bakery"}}, Long: 2, Lat: 2})
	delete(ds.Nodes, 2)
	// listed in order without data
	ds.Order = append(ds.Order,
		element.Ref{Type: element.WayType, ID: 5},
		element.Ref{Type: element.RelationType, ID: 6},
	)
	// nil entries
	ds.Ways[7] = nil
	ds.Relations[8] = nil
	ds.Order = append(ds.Order,
		element.Ref{Type: element.WayType, ID: 7},
		element.Ref{Type: element.RelationType, ID: 8},
	)
	makeRelation(ds, 9, osm.Tags{"type": "multipolygon", "landuse": "forest"}, wayMember(7, "outer"))

	counts := stats.New()
	fc := Normalize(ds, &Options{Stats: counts})
	assertIDs(t, fc, "node/1")
	if counts.Skipped != 1 {
		t.Fatal("relation without rings not skipped", counts)
	}
}

func TestNormalizeMetadata(t *testing.T) {
	ds := element.NewDataset()
	ts := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)
	ds.AddNode(&osm.Node{Element: osm.Element{ID: 1, Tags: osm.Tags{"amenity": "cafe"}, Metadata: &osm.Metadata{
		Version: 3, UserName: "mapper", UserID: 42, Changeset: 1000, Timestamp: ts,
	}}})

	fc := Normalize(ds, nil)
	if _, ok := fc.Features[0].Properties["@version"]; ok {
		t.Fatal("metadata without option")
	}
	fc = Normalize(ds, &Options{Metadata: true})
	p := fc.Features[0].Properties
	if p["@version"] != int32(3) || p["@user"] != "mapper" || p["@uid"] != int32(42) ||
		p["@changeset"] != int64(1000) || p["@timestamp"] != "2020-01-02T03:04:05Z" {
		t.Fatal(p)
	}
}

func TestNormalizeOrder(t *testing.T) {
	ds := element.NewDataset()
	makeRelation(ds, 5, osm.Tags{"type": "multipolygon", "landuse": "grass"}, wayMember(3, "outer"))
	makeWay(ds, 3, osm.Tags{"highway": "track"}, []coord{{1, 0, 0}, {2, 1, 0}, {3, 1, 1}, {1, 0, 0}})
	makeWay(ds, 2, osm.Tags{"highway": "track"}, []coord{{4, 0, 0}, {5, 1, 0}})
	ds.AddNode(&osm.Node{Element: osm.Element{ID: 9, Tags: osm.Tags{"shop": "bakery"}}})

	fc := Normalize(ds, nil)
	assertIDs(t, fc, "node/9", "way/3", "way/2", "relation/5")
}
