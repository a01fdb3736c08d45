package element

import (
	"math"
	"testing"

	osm "github.com/omniscale/go-osm"
)

func TestIdRefs(t *testing.T) {

	idRefs := IdRefs{}

	idRefs.Add(1)
	if idRefs.Refs[0] != 1 {
		t.Fatal(idRefs)
	}

	idRefs.Add(10)
	if idRefs.Refs[0] != 1 || idRefs.Refs[1] != 10 {
		t.Fatal(idRefs)
	}

	// insert twice
	idRefs.Add(10)
	if idRefs.Refs[0] != 1 || idRefs.Refs[1] != 10 || len(idRefs.Refs) != 2 {
		t.Fatal(idRefs)
	}

	// insert before
	idRefs.Add(0)
	if idRefs.Refs[0] != 0 || idRefs.Refs[1] != 1 || idRefs.Refs[2] != 10 {
		t.Fatal(idRefs)
	}

	// insert after
	idRefs.Add(12)
	if idRefs.Refs[0] != 0 || idRefs.Refs[1] != 1 || idRefs.Refs[2] != 10 || idRefs.Refs[3] != 12 {
		t.Fatal(idRefs)
	}

	// insert between
	idRefs.Add(11)
	if idRefs.Refs[0] != 0 || idRefs.Refs[1] != 1 || idRefs.Refs[2] != 10 || idRefs.Refs[3] != 11 || idRefs.Refs[4] != 12 {
		t.Fatal(idRefs)
	}
}

func TestDatasetAddKeepsOrderAndTags(t *testing.T) {
	d := NewDataset()
	d.AddWay(&osm.Way{Element: osm.Element{ID: 10}, Refs: []int64{1, 2}})
	d.AddNode(&osm.Node{Element: osm.Element{ID: 1}})
	d.AddNode(&osm.Node{Element: osm.Element{ID: 1, Tags: osm.Tags{"amenity": "bench"}}})
	d.AddNode(&osm.Node{Element: osm.Element{ID: 2}})
	d.AddRelation(&osm.Relation{Element: osm.Element{ID: 10}})

	expected := []Ref{{WayType, 10}, {NodeType, 1}, {NodeType, 2}, {RelationType, 10}}
	if len(d.Order) != len(expected) {
		t.Fatal(d.Order)
	}
	for i, ref := range expected {
		if d.Order[i] != ref {
			t.Errorf("unexpected ref %d: %v != %v", i, d.Order[i], ref)
		}
	}
	if d.Nodes[1].Tags["amenity"] != "bench" {
		t.Error("tagged node not kept", d.Nodes[1])
	}
	if d.Order[3].String() != "relation/10" {
		t.Error(d.Order[3].String())
	}
}

func TestDatasetCoord(t *testing.T) {
	d := NewDataset()
	d.AddNode(&osm.Node{Element: osm.Element{ID: 1}, Long: 8, Lat: 53})
	d.AddNode(&osm.Node{Element: osm.Element{ID: 2}, Long: math.NaN(), Lat: 53})

	if long, lat, ok := d.Coord(1); !ok || long != 8 || lat != 53 {
		t.Error(long, lat, ok)
	}
	if _, _, ok := d.Coord(2); ok {
		t.Error("NaN coordinate accepted")
	}
	if _, _, ok := d.Coord(3); ok {
		t.Error("missing node found")
	}
}

func TestParents(t *testing.T) {
	d := NewDataset()
	d.AddWay(&osm.Way{Element: osm.Element{ID: 1}, Refs: []int64{3, 2, 1, 3}})
	d.AddWay(&osm.Way{Element: osm.Element{ID: 2}, Refs: []int64{4, 2}})
	d.AddRelation(&osm.Relation{
		Element: osm.Element{ID: 7},
		Members: []osm.Member{
			{ID: 1, Type: osm.WayMember, Role: "outer"},
			{ID: 9, Type: osm.NodeMember, Role: "label"},
		},
	})

	p := d.Parents()
	if refs := p.NodeWays[2]; refs == nil || len(refs.Refs) != 2 || refs.Refs[0] != 1 || refs.Refs[1] != 2 {
		t.Fatal(refs)
	}
	if refs := p.NodeWays[3]; refs == nil || len(refs.Refs) != 1 {
		t.Fatal("closing ref counted twice", refs)
	}
	if ids := p.WayRelationIDs(1); len(ids) != 1 || ids[0] != 7 {
		t.Error(ids)
	}
	if ids := p.WayRelationIDs(2); ids != nil {
		t.Error(ids)
	}
	if !p.WayReferenced(1) || p.WayReferenced(2) {
		t.Error("unexpected way references", p.WayRelations)
	}
	if !p.NodeReferenced(9) || p.NodeReferenced(5) {
		t.Error("unexpected node references")
	}
}

func TestIsClosed(t *testing.T) {
	for _, test := range []struct {
		refs   []int64
		closed bool
	}{
		{[]int64{1, 2, 3, 1}, true},
		{[]int64{1, 2, 1}, false},
		{[]int64{1, 2, 3, 4}, false},
		{nil, false},
	} {
		if IsClosed(&osm.Way{Refs: test.refs}) != test.closed {
			t.Errorf("unexpected result for %v", test.refs)
		}
	}
}
