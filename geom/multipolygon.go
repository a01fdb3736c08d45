package geom

import (
	"sort"

	osm "github.com/omniscale/go-osm"
	"github.com/omniscale/osmtopo/element"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/pkg/errors"
)

// maxRingGap is the distance in degrees up to which unclosed rings are
// closed.
const maxRingGap = 1e-7

var (
	ErrNoRings       = errors.New("relation has no rings")
	ErrNoClosedRings = errors.New("relation has no closed rings")
)

// ringMember returns whether the way member takes part in the polygon
// geometry of a multipolygon.
func ringMember(m osm.Member) bool {
	if m.Type != osm.WayMember {
		return false
	}
	return m.Role == "outer" || m.Role == "inner" || m.Role == ""
}

// BuildRings creates closed rings from all way members of rel. Rings
// that can not be closed are dropped and reported with tainted=true,
// as are members missing from the dataset.
func BuildRings(rel *osm.Relation, ds *element.Dataset) (rings []*Ring, tainted bool, err error) {
	var incompleteRings []*Ring
	var completeRings []*Ring

	// create rings for all WAY members
	for _, member := range rel.Members {
		if !ringMember(member) {
			continue
		}
		way, ok := ds.Ways[member.ID]
		if !ok || way == nil {
			tainted = true
			continue
		}
		ring := NewRing(way, ds)
		if ring.tainted {
			tainted = true
		}
		rings = append(rings, ring)
	}
	if len(rings) == 0 {
		return nil, tainted, errors.Wrapf(ErrNoRings, "relation %d", rel.ID)
	}

	// collect closed rings, collect incomplete rings
	for _, r := range rings {
		if r.IsClosed() {
			completeRings = append(completeRings, r)
		} else {
			incompleteRings = append(incompleteRings, r)
		}
	}
	// merge incomplete rings
	mergedRings := mergeRings(incompleteRings)
	for _, ring := range mergedRings {
		if !ring.IsClosed() && !ring.TryClose(maxRingGap) {
			tainted = true
			continue
		}
		completeRings = append(completeRings, ring)
	}
	if len(completeRings) == 0 {
		return nil, tainted, errors.Wrapf(ErrNoClosedRings, "relation %d", rel.ID)
	}
	for _, r := range completeRings {
		r.area = planar.Area(r.ring())
		if r.area < 0 {
			r.area = -r.area
		}
	}
	return completeRings, tainted, nil
}

func sortRingsByOrder(rings []*Ring) {
	sort.SliceStable(rings, func(i, j int) bool { return rings[i].order < rings[j].order })
}

// BuildGeometry nests the rings by containment. Rings contained by an odd
// number of larger rings are holes, all others are shells. Returns a
// Polygon for a single shell, a MultiPolygon otherwise.
func BuildGeometry(rings []*Ring, rewind bool) (orb.Geometry, error) {
	if len(rings) == 0 {
		return nil, ErrNoClosedRings
	}
	// sort by area (large to small)
	sort.SliceStable(rings, func(i, j int) bool { return rings[i].area > rings[j].area })

	totalRings := len(rings)
	for i := 0; i < totalRings; i++ {
		rings[i].containedBy = -1
		rings[i].holes = nil
		rings[i].shell = false
	}
	rings[0].shell = true
	for i := 0; i < totalRings; i++ {
		for j := i + 1; j < totalRings; j++ {
			if rings[i].contains(rings[j]) {
				if rings[j].containedBy != -1 {
					// j is inside a larger ring, remove that relationship
					// e.g. j is hole inside a hole (i)
					parent := rings[rings[j].containedBy]
					parent.holes = removeRing(parent.holes, rings[j])
					rings[j].shell = false
				}
				// remember parent
				rings[j].containedBy = i
				// add ring as hole or shell
				if ringIsHole(rings, j) {
					rings[i].holes = append(rings[i].holes, rings[j])
				} else {
					rings[j].shell = true
				}
			}
		}
		if rings[i].containedBy == -1 {
			// add as shell if it is not a hole
			rings[i].shell = true
		}
	}

	var polygons []orb.Polygon
	for _, shell := range rings {
		if !shell.shell {
			continue
		}
		polygon := orb.Polygon{copyRing(shell.ring())}
		for _, hole := range shell.holes {
			polygon = append(polygon, copyRing(hole.ring()))
		}
		if rewind {
			Rewind(polygon)
		}
		polygons = append(polygons, polygon)
	}

	if len(polygons) == 1 {
		return polygons[0], nil
	}
	return orb.MultiPolygon(polygons), nil
}

func removeRing(rings []*Ring, r *Ring) []*Ring {
	for i, other := range rings {
		if other == r {
			return append(rings[:i], rings[i+1:]...)
		}
	}
	return rings
}

func copyRing(r orb.Ring) orb.Ring {
	c := make(orb.Ring, len(r))
	copy(c, r)
	return c
}

// ringIsHole returns true if rings[idx] is a hole, False if it is a
// shell (also if hole in a hole, etc)
func ringIsHole(rings []*Ring, idx int) bool {
	containedCounter := 0
	for {
		idx = rings[idx].containedBy
		if idx == -1 {
			break
		}
		containedCounter += 1
	}
	return containedCounter%2 == 1
}

// Rewind orients the outer ring counter-clockwise and all holes
// clockwise (RFC 7946).
func Rewind(p orb.Polygon) {
	for i, r := range p {
		want := orb.CW
		if i == 0 {
			want = orb.CCW
		}
		if r.Orientation() != want {
			reverseCoords(r)
		}
	}
}

// BuildRelation returns the (Multi)Polygon geometry of rel.
func BuildRelation(rel *osm.Relation, ds *element.Dataset, rewind bool) (orb.Geometry, bool, error) {
	rings, tainted, err := BuildRings(rel, ds)
	if err != nil {
		return nil, tainted, err
	}
	g, err := BuildGeometry(rings, rewind)
	return g, tainted, err
}
