package topology

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/pkg/errors"
)

// Features decodes the geometries of the named layer. Rings start at
// the first position of their first arc, which is not necessarily the
// first position of the encoded ring.
func (t *Topology) Features(name string) (*geojson.FeatureCollection, error) {
	coll, ok := t.object(name)
	if !ok {
		return nil, errors.Errorf("layer %s not found", name)
	}
	arcs, err := t.decodeArcs()
	if err != nil {
		return nil, err
	}
	d := decoder{t: t, arcs: arcs}

	fc := geojson.NewFeatureCollection()
	geoms := []*Geometry{coll}
	if coll.Type == "GeometryCollection" {
		geoms = coll.Geometries
	}
	for _, g := range geoms {
		geom, err := d.geometry(g)
		if err != nil {
			return nil, errors.Wrapf(err, "layer %s, feature %v", name, g.ID)
		}
		f := geojson.NewFeature(geom)
		f.ID = g.ID
		for k, v := range g.Properties {
			f.Properties[k] = v
		}
		fc.Append(f)
	}
	return fc, nil
}

type decoder struct {
	t    *Topology
	arcs [][]orb.Point
}

// decodeArcs returns all arcs with absolute coordinates.
func (t *Topology) decodeArcs() ([][]orb.Point, error) {
	arcs := make([][]orb.Point, len(t.Arcs))
	for i, arc := range t.Arcs {
		if len(arc) < 2 {
			return nil, &EncodingError{Reason: "arc with less than two positions"}
		}
		pts := make([]orb.Point, len(arc))
		var x, y float64
		for j, p := range arc {
			if t.Transform != nil {
				x += p[0]
				y += p[1]
				pts[j] = t.point([2]float64{x, y})
			} else {
				pts[j] = p
			}
		}
		arcs[i] = pts
	}
	return arcs, nil
}

func (t *Topology) point(p [2]float64) orb.Point {
	if t.Transform == nil {
		return p
	}
	return orb.Point{
		p[0]*t.Transform.Scale[0] + t.Transform.Translate[0],
		p[1]*t.Transform.Scale[1] + t.Transform.Translate[1],
	}
}

// line concatenates the referenced arcs. Reversed arcs (^i) are
// traversed backwards.
func (d *decoder) line(refs []int) ([]orb.Point, error) {
	var pts []orb.Point
	for _, ref := range refs {
		i, reverse := ref, false
		if i < 0 {
			i, reverse = ^i, true
		}
		if i >= len(d.arcs) {
			return nil, &EncodingError{Reason: "arc reference out of range"}
		}
		arc := d.arcs[i]
		if len(pts) > 0 {
			// first position equals the last of the previous arc
			pts = pts[:len(pts)-1]
		}
		if reverse {
			for j := len(arc) - 1; j >= 0; j-- {
				pts = append(pts, arc[j])
			}
		} else {
			pts = append(pts, arc...)
		}
	}
	return pts, nil
}

func (d *decoder) polygon(rings [][]int) (orb.Polygon, error) {
	poly := make(orb.Polygon, 0, len(rings))
	for _, r := range rings {
		pts, err := d.line(r)
		if err != nil {
			return nil, err
		}
		poly = append(poly, orb.Ring(pts))
	}
	return poly, nil
}

func (d *decoder) geometry(g *Geometry) (orb.Geometry, error) {
	switch g.Type {
	case "":
		return nil, nil
	case "Point":
		return d.t.point(g.Point), nil
	case "MultiPoint":
		mp := make(orb.MultiPoint, len(g.MultiPoint))
		for i, p := range g.MultiPoint {
			mp[i] = d.t.point(p)
		}
		return mp, nil
	case "LineString":
		pts, err := d.line(g.LineString)
		return orb.LineString(pts), err
	case "MultiLineString":
		mls := make(orb.MultiLineString, 0, len(g.MultiLineString))
		for _, l := range g.MultiLineString {
			pts, err := d.line(l)
			if err != nil {
				return nil, err
			}
			mls = append(mls, orb.LineString(pts))
		}
		return mls, nil
	case "Polygon":
		return d.polygon(g.Polygon)
	case "MultiPolygon":
		mp := make(orb.MultiPolygon, 0, len(g.MultiPolygon))
		for _, p := range g.MultiPolygon {
			poly, err := d.polygon(p)
			if err != nil {
				return nil, err
			}
			mp = append(mp, poly)
		}
		return mp, nil
	case "GeometryCollection":
		coll := make(orb.Collection, 0, len(g.Geometries))
		for _, c := range g.Geometries {
			cg, err := d.geometry(c)
			if err != nil {
				return nil, err
			}
			coll = append(coll, cg)
		}
		return coll, nil
	}
	return nil, errors.Errorf("unknown geometry type %q", g.Type)
}
