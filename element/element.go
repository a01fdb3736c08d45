// Package element holds the raw OSM data returned by an Overpass query.
package element

import (
	"fmt"
	"math"
	"sort"

	osm "github.com/omniscale/go-osm"
)

type Type int

const (
	NodeType Type = iota
	WayType
	RelationType
)

var typeNames = map[Type]string{
	NodeType:     "node",
	WayType:      "way",
	RelationType: "relation",
}

// TypeValues maps the element type names of the Overpass JSON output.
var TypeValues = map[string]Type{
	"node":     NodeType,
	"way":      WayType,
	"relation": RelationType,
}

func (t Type) String() string {
	if n, ok := typeNames[t]; ok {
		return n
	}
	return fmt.Sprintf("type(%d)", int(t))
}

// Ref identifies a single element. IDs are only unique within their type.
type Ref struct {
	Type Type
	ID   int64
}

func (r Ref) String() string {
	return fmt.Sprintf("%s/%d", r.Type, r.ID)
}

// Dataset is a set of nodes, ways and relations. Order keeps the
// order in which the elements were added.
type Dataset struct {
	Nodes     map[int64]*osm.Node
	Ways      map[int64]*osm.Way
	Relations map[int64]*osm.Relation
	Order     []Ref
}

func NewDataset() *Dataset {
	return &Dataset{
		Nodes:     make(map[int64]*osm.Node),
		Ways:      make(map[int64]*osm.Way),
		Relations: make(map[int64]*osm.Relation),
	}
}

// AddNode adds n to the dataset. Overpass can return the same element
// twice (with tags and as skeleton), the tagged version wins.
func (d *Dataset) AddNode(n *osm.Node) {
	if prev, ok := d.Nodes[n.ID]; ok {
		if len(prev.Tags) == 0 && len(n.Tags) > 0 {
			d.Nodes[n.ID] = n
		}
		return
	}
	d.Nodes[n.ID] = n
	d.Order = append(d.Order, Ref{NodeType, n.ID})
}

func (d *Dataset) AddWay(w *osm.Way) {
	if prev, ok := d.Ways[w.ID]; ok {
		if len(prev.Tags) == 0 && len(w.Tags) > 0 {
			d.Ways[w.ID] = w
		}
		return
	}
	d.Ways[w.ID] = w
	d.Order = append(d.Order, Ref{WayType, w.ID})
}

func (d *Dataset) AddRelation(r *osm.Relation) {
	if prev, ok := d.Relations[r.ID]; ok {
		if len(prev.Tags) == 0 && len(r.Tags) > 0 {
			d.Relations[r.ID] = r
		}
		return
	}
	d.Relations[r.ID] = r
	d.Order = append(d.Order, Ref{RelationType, r.ID})
}

func (d *Dataset) Len() int {
	return len(d.Order)
}

// Coord returns the position of node id. ok is false for missing nodes
// and for nodes without finite coordinates.
func (d *Dataset) Coord(id int64) (long, lat float64, ok bool) {
	nd, found := d.Nodes[id]
	if !found || nd == nil {
		return 0, 0, false
	}
	if !finite(nd.Long) || !finite(nd.Lat) {
		return 0, 0, false
	}
	return nd.Long, nd.Lat, true
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// IsClosed returns whether the first and last refs of the way are the same.
func IsClosed(w *osm.Way) bool {
	return len(w.Refs) >= 4 && w.Refs[0] == w.Refs[len(w.Refs)-1]
}

// Parents indexes which ways and relations reference an element.
type Parents struct {
	NodeWays      map[int64]*IdRefs
	NodeRelations map[int64]*IdRefs
	WayRelations  map[int64]*IdRefs
}

func (p *Parents) NodeReferenced(id int64) bool {
	return p.NodeWays[id] != nil || p.NodeRelations[id] != nil
}

func (p *Parents) WayReferenced(id int64) bool {
	return p.WayRelations[id] != nil
}

// WayRelationIDs returns the sorted IDs of all relations with way id as
// member.
func (p *Parents) WayRelationIDs(id int64) []int64 {
	if r := p.WayRelations[id]; r != nil {
		return r.Refs
	}
	return nil
}

// Parents builds the reverse references of all ways and relations.
// References to elements missing from the dataset are included.
func (d *Dataset) Parents() *Parents {
	p := &Parents{
		NodeWays:      make(map[int64]*IdRefs),
		NodeRelations: make(map[int64]*IdRefs),
		WayRelations:  make(map[int64]*IdRefs),
	}
	add := func(m map[int64]*IdRefs, id, ref int64) {
		r, ok := m[id]
		if !ok {
			r = &IdRefs{Id: id}
			m[id] = r
		}
		r.Add(ref)
	}
	for _, w := range d.Ways {
		if w == nil {
			continue
		}
		for _, ref := range w.Refs {
			add(p.NodeWays, ref, w.ID)
		}
	}
	for _, r := range d.Relations {
		if r == nil {
			continue
		}
		for _, m := range r.Members {
			switch m.Type {
			case osm.NodeMember:
				add(p.NodeRelations, m.ID, r.ID)
			case osm.WayMember:
				add(p.WayRelations, m.ID, r.ID)
			}
		}
	}
	return p
}

// IdRefs is a sorted set of IDs referencing element Id.
type IdRefs struct {
	Id   int64
	Refs []int64
}

func (idRefs *IdRefs) Add(ref int64) {
	i := sort.Search(len(idRefs.Refs), func(i int) bool {
		return idRefs.Refs[i] >= ref
	})
	if i < len(idRefs.Refs) && idRefs.Refs[i] >= ref {
		if idRefs.Refs[i] > ref {
			idRefs.Refs = append(idRefs.Refs, 0)
			copy(idRefs.Refs[i+1:], idRefs.Refs[i:])
			idRefs.Refs[i] = ref
		} // else already inserted
	} else {
		idRefs.Refs = append(idRefs.Refs, ref)
	}
}
