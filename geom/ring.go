package geom

import (
	"math"

	osm "github.com/omniscale/go-osm"
	"github.com/omniscale/osmtopo/element"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

type Ring struct {
	ways        []*osm.Way
	refs        []int64
	coords      []orb.Point
	holes       []*Ring
	shell       bool
	containedBy int
	area        float64
	order       int
	tainted     bool
}

func (r *Ring) IsClosed() bool {
	return len(r.refs) >= 4 && r.refs[0] == r.refs[len(r.refs)-1]
}

// TryClose closes the ring if both end nodes are nearly identical.
// Returns true if it succeeds.
func (r *Ring) TryClose(maxRingGap float64) bool {
	if len(r.refs) < 4 {
		return false
	}
	start, end := r.coords[0], r.coords[len(r.coords)-1]
	dist := math.Hypot(start[0]-end[0], start[1]-end[1])
	if dist < maxRingGap {
		r.refs[len(r.refs)-1] = r.refs[0]
		r.coords[len(r.coords)-1] = r.coords[0]
		return true
	}
	return false
}

func (r *Ring) ring() orb.Ring {
	return orb.Ring(r.coords)
}

// contains returns whether all coordinates of other are inside or
// on the boundary of r.
func (r *Ring) contains(other *Ring) bool {
	ring := r.ring()
	for _, p := range other.coords {
		if !planar.RingContains(ring, p) {
			return false
		}
	}
	return true
}

// NewRing creates a ring from the way. Refs missing from the dataset
// are left out and mark the ring as tainted.
func NewRing(way *osm.Way, ds *element.Dataset) *Ring {
	ring := Ring{}
	ring.ways = []*osm.Way{way}
	ring.refs = make([]int64, 0, len(way.Refs))
	ring.coords = make([]orb.Point, 0, len(way.Refs))
	ring.containedBy = -1
	for _, ref := range way.Refs {
		long, lat, ok := ds.Coord(ref)
		if !ok {
			ring.tainted = true
			continue
		}
		ring.refs = append(ring.refs, ref)
		ring.coords = append(ring.coords, orb.Point{long, lat})
	}
	return &ring
}

func reverseRefs(refs []int64) {
	for i, j := 0, len(refs)-1; i < j; i, j = i+1, j-1 {
		refs[i], refs[j] = refs[j], refs[i]
	}
}

func reverseCoords(coords []orb.Point) {
	for i, j := 0, len(coords)-1; i < j; i, j = i+1, j-1 {
		coords[i], coords[j] = coords[j], coords[i]
	}
}

func (r *Ring) reverse() {
	reverseRefs(r.refs)
	reverseCoords(r.coords)
}

// appendRing appends other without its first position (the shared node).
func (r *Ring) appendRing(other *Ring) {
	r.refs = append(r.refs, other.refs[1:]...)
	r.coords = append(r.coords, other.coords[1:]...)
	r.ways = append(r.ways, other.ways...)
	r.tainted = r.tainted || other.tainted
}

// prependRing puts other without its last position (the shared node)
// in front of r.
func (r *Ring) prependRing(other *Ring) {
	refs := make([]int64, 0, len(r.refs)+len(other.refs)-1)
	refs = append(refs, other.refs[:len(other.refs)-1]...)
	r.refs = append(refs, r.refs...)
	coords := make([]orb.Point, 0, len(r.coords)+len(other.coords)-1)
	coords = append(coords, other.coords[:len(other.coords)-1]...)
	r.coords = append(coords, r.coords...)
	r.ways = append(r.ways, other.ways...)
	r.tainted = r.tainted || other.tainted
}

// mergeRings joins rings that share end nodes. The result is ordered
// by the position of the first input ring of each merged ring.
func mergeRings(rings []*Ring) []*Ring {
	endpoints := make(map[int64]*Ring)

	for i, ring := range rings {
		ring.order = i
		if len(ring.refs) < 2 {
			continue
		}
		left := ring.refs[0]
		right := ring.refs[len(ring.refs)-1]

		if origRing, ok := endpoints[left]; ok {
			// left node connects to..
			delete(endpoints, left)
			if left != origRing.refs[len(origRing.refs)-1] {
				// .. left end, reverse ring
				origRing.reverse()
			}
			origRing.appendRing(ring)
			if rightRing, ok := endpoints[right]; ok && rightRing != origRing {
				// right node connects to another ring, close ring
				delete(endpoints, right)
				if right != rightRing.refs[0] {
					rightRing.reverse()
				}
				origRing.appendRing(rightRing)
				if rightRing.order < origRing.order {
					origRing.order = rightRing.order
				}
				right := origRing.refs[len(origRing.refs)-1]
				endpoints[right] = origRing
			} else {
				endpoints[right] = origRing
			}
		} else if origRing, ok := endpoints[right]; ok {
			// right node connects to..
			delete(endpoints, right)
			if right == origRing.refs[0] {
				// .. left end
				origRing.prependRing(ring)
			} else {
				// .. right end, reverse ring
				ring.reverse()
				origRing.appendRing(ring)
			}
			endpoints[left] = origRing
		} else {
			// ring is not connected (yet)
			endpoints[left] = ring
			endpoints[right] = ring
		}
	}

	unique := make(map[*Ring]bool)
	result := make([]*Ring, 0, len(endpoints))
	for _, ring := range endpoints {
		if !unique[ring] {
			unique[ring] = true
			result = append(result, ring)
		}
	}
	sortRingsByOrder(result)
	return result
}
