package topology

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/omniscale/osmtopo/layer"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/pkg/errors"
)

type Options struct {
	// Quantization is the number of grid positions in each dimension.
	// Positions are quantized to the grid and arcs are delta encoded.
	// 0 disables quantization, otherwise it needs to be >= 2.
	Quantization int
}

// run is a line or ring of (quantized) positions before it is cut into
// arcs.
type run struct {
	points []orb.Point
	ring   bool
	// degenerate runs collapsed during quantization and are stored as a
	// single arc
	degenerate bool
	arcs       []int
}

// shape links an output geometry with its runs.
type shape struct {
	geom  *Geometry
	lines []*run
	polys [][]*run
}

type encoder struct {
	transform *Transform
	runs      []*run
	shapes    []*shape
	junctions map[orb.Point]struct{}
	arcs      [][]orb.Point
	index     map[string]int
}

// Encode converts all layers into a single topology. Objects keep the
// order of layers, arcs are numbered in the order they are first
// encountered. Encoding the same layers twice gives identical results.
func Encode(layers layer.Map, opts *Options) (*Topology, error) {
	if opts == nil {
		opts = &Options{}
	}
	if opts.Quantization < 0 || opts.Quantization == 1 {
		return nil, errors.Errorf("invalid quantization %d", opts.Quantization)
	}

	bbox, err := bounds(layers)
	if err != nil {
		return nil, err
	}
	topo := &Topology{Type: "Topology", BBox: bbox}

	e := &encoder{
		junctions: make(map[orb.Point]struct{}),
		index:     make(map[string]int),
	}
	if opts.Quantization > 0 {
		e.transform = newTransform(bbox, opts.Quantization)
		topo.Transform = e.transform
	}

	for _, l := range layers {
		coll := &Geometry{Type: "GeometryCollection", Geometries: []*Geometry{}}
		if l.Features != nil {
			for _, f := range l.Features.Features {
				g, err := e.feature(f)
				if err != nil {
					return nil, &EncodingError{Layer: l.Name, FeatureID: f.ID, Reason: err.Error()}
				}
				coll.Geometries = append(coll.Geometries, g)
			}
		}
		topo.Objects = append(topo.Objects, Object{Name: l.Name, Geometry: coll})
	}

	e.join()
	for _, r := range e.runs {
		e.cut(r)
	}
	for _, s := range e.shapes {
		s.resolve()
	}
	topo.Arcs = e.encodeArcs()

	if err := topo.Validate(); err != nil {
		return nil, err
	}
	return topo, nil
}

func finite(p orb.Point) bool {
	return !math.IsNaN(p[0]) && !math.IsInf(p[0], 0) && !math.IsNaN(p[1]) && !math.IsInf(p[1], 0)
}

// bounds returns the bbox of all layers and checks that all positions
// are finite.
func bounds(layers layer.Map) ([4]float64, error) {
	bbox := [4]float64{math.Inf(1), math.Inf(1), math.Inf(-1), math.Inf(-1)}
	for _, l := range layers {
		if l.Features == nil {
			continue
		}
		for _, f := range l.Features.Features {
			var invalid bool
			eachPoint(f.Geometry, func(p orb.Point) {
				if !finite(p) {
					invalid = true
					return
				}
				bbox[0] = math.Min(bbox[0], p[0])
				bbox[1] = math.Min(bbox[1], p[1])
				bbox[2] = math.Max(bbox[2], p[0])
				bbox[3] = math.Max(bbox[3], p[1])
			})
			if invalid {
				return bbox, &EncodingError{Layer: l.Name, FeatureID: f.ID, Reason: "non-finite coordinate"}
			}
		}
	}
	if math.IsInf(bbox[0], 1) {
		return [4]float64{}, nil
	}
	return bbox, nil
}

func eachPoint(g orb.Geometry, fn func(orb.Point)) {
	switch g := g.(type) {
	case orb.Point:
		fn(g)
	case orb.MultiPoint:
		for _, p := range g {
			fn(p)
		}
	case orb.LineString:
		for _, p := range g {
			fn(p)
		}
	case orb.MultiLineString:
		for _, ls := range g {
			eachPoint(ls, fn)
		}
	case orb.Ring:
		for _, p := range g {
			fn(p)
		}
	case orb.Polygon:
		for _, r := range g {
			eachPoint(r, fn)
		}
	case orb.MultiPolygon:
		for _, p := range g {
			eachPoint(p, fn)
		}
	case orb.Collection:
		for _, c := range g {
			eachPoint(c, fn)
		}
	case orb.Bound:
		eachPoint(g.ToPolygon(), fn)
	}
}

func newTransform(bbox [4]float64, q int) *Transform {
	kx, ky := 1.0, 1.0
	if bbox[2] > bbox[0] {
		kx = (bbox[2] - bbox[0]) / float64(q-1)
	}
	if bbox[3] > bbox[1] {
		ky = (bbox[3] - bbox[1]) / float64(q-1)
	}
	return &Transform{
		Scale:     [2]float64{kx, ky},
		Translate: [2]float64{bbox[0], bbox[1]},
	}
}

func (e *encoder) quantize(p orb.Point) orb.Point {
	if e.transform == nil {
		return p
	}
	return orb.Point{
		math.Round((p[0] - e.transform.Translate[0]) / e.transform.Scale[0]),
		math.Round((p[1] - e.transform.Translate[1]) / e.transform.Scale[1]),
	}
}

func (e *encoder) feature(f *geojson.Feature) (*Geometry, error) {
	g, err := e.geometry(f.Geometry)
	if err != nil {
		return nil, err
	}
	g.ID = f.ID
	if len(f.Properties) > 0 {
		g.Properties = make(map[string]interface{}, len(f.Properties))
		for k, v := range f.Properties {
			g.Properties[k] = v
		}
	}
	return g, nil
}

func (e *encoder) geometry(geom orb.Geometry) (*Geometry, error) {
	g := &Geometry{}
	s := &shape{geom: g}
	switch geom := geom.(type) {
	case nil:
		return g, nil
	case orb.Point:
		g.Type = "Point"
		g.Point = e.quantize(geom)
		return g, nil
	case orb.MultiPoint:
		g.Type = "MultiPoint"
		g.MultiPoint = make([][2]float64, len(geom))
		for i, p := range geom {
			g.MultiPoint[i] = e.quantize(p)
		}
		return g, nil
	case orb.LineString:
		g.Type = "LineString"
		s.lines = append(s.lines, e.line(geom))
	case orb.MultiLineString:
		g.Type = "MultiLineString"
		for _, ls := range geom {
			s.lines = append(s.lines, e.line(ls))
		}
	case orb.Ring:
		return e.geometry(orb.Polygon{geom})
	case orb.Bound:
		return e.geometry(geom.ToPolygon())
	case orb.Polygon:
		g.Type = "Polygon"
		s.polys = append(s.polys, e.polygon(geom))
	case orb.MultiPolygon:
		g.Type = "MultiPolygon"
		for _, p := range geom {
			s.polys = append(s.polys, e.polygon(p))
		}
	case orb.Collection:
		g.Type = "GeometryCollection"
		g.Geometries = []*Geometry{}
		for _, c := range geom {
			cg, err := e.geometry(c)
			if err != nil {
				return nil, err
			}
			g.Geometries = append(g.Geometries, cg)
		}
		return g, nil
	default:
		return nil, errors.Errorf("unsupported geometry %T", geom)
	}
	e.shapes = append(e.shapes, s)
	return g, nil
}

// positions quantizes points and drops consecutive duplicates.
func (e *encoder) positions(points []orb.Point) []orb.Point {
	result := make([]orb.Point, 0, len(points))
	for _, p := range points {
		p = e.quantize(p)
		if len(result) > 0 && result[len(result)-1] == p {
			continue
		}
		result = append(result, p)
	}
	return result
}

func (e *encoder) line(ls orb.LineString) *run {
	r := &run{points: e.positions(ls)}
	if len(r.points) == 1 {
		r.points = append(r.points, r.points[0])
		r.degenerate = true
	} else if len(r.points) == 0 {
		r.degenerate = true
	}
	e.runs = append(e.runs, r)
	return r
}

func (e *encoder) polygon(p orb.Polygon) []*run {
	rings := make([]*run, 0, len(p))
	for _, ring := range p {
		r := &run{points: e.positions(ring), ring: true}
		if n := len(r.points); n > 0 && r.points[0] != r.points[n-1] {
			r.points = append(r.points, r.points[0])
		}
		if len(r.points) > 0 && len(r.points) < 4 {
			for len(r.points) < 4 {
				r.points = append(r.points, r.points[0])
			}
			r.degenerate = true
		} else if len(r.points) == 0 {
			r.degenerate = true
		}
		e.runs = append(e.runs, r)
		rings = append(rings, r)
	}
	return rings
}

type neighbours [2]orb.Point

func less(a, b orb.Point) bool {
	if a[0] != b[0] {
		return a[0] < b[0]
	}
	return a[1] < b[1]
}

func newNeighbours(a, b orb.Point) neighbours {
	if less(b, a) {
		return neighbours{b, a}
	}
	return neighbours{a, b}
}

// join finds all junctions: line endpoints and positions that are
// visited with different neighbours.
func (e *encoder) join() {
	visited := make(map[orb.Point]neighbours)
	visit := func(p orb.Point, n neighbours) {
		if prev, ok := visited[p]; ok {
			if prev != n {
				e.junctions[p] = struct{}{}
			}
			return
		}
		visited[p] = n
	}
	for _, r := range e.runs {
		if r.degenerate {
			continue
		}
		pts := r.points
		if r.ring {
			m := len(pts) - 1
			for i := 0; i < m; i++ {
				visit(pts[i], newNeighbours(pts[(i-1+m)%m], pts[(i+1)%m]))
			}
			continue
		}
		e.junctions[pts[0]] = struct{}{}
		e.junctions[pts[len(pts)-1]] = struct{}{}
		for i := 1; i < len(pts)-1; i++ {
			visit(pts[i], newNeighbours(pts[i-1], pts[i+1]))
		}
	}
}

func (e *encoder) isJunction(p orb.Point) bool {
	_, ok := e.junctions[p]
	return ok
}

// cut splits r at all junctions into arcs.
func (e *encoder) cut(r *run) {
	if len(r.points) == 0 {
		return
	}
	if r.degenerate {
		r.arcs = append(r.arcs, e.arc(r.points))
		return
	}
	pts := r.points
	if r.ring {
		pts = rotate(pts, e.isJunction)
	}
	start := 0
	for i := 1; i < len(pts)-1; i++ {
		if e.isJunction(pts[i]) {
			r.arcs = append(r.arcs, e.arc(pts[start:i+1]))
			start = i
		}
	}
	r.arcs = append(r.arcs, e.arc(pts[start:]))
}

// rotate returns the closed ring starting at its first junction, or at
// its smallest position if it has no junctions.
func rotate(ring []orb.Point, isJunction func(orb.Point) bool) []orb.Point {
	m := len(ring) - 1
	start := -1
	for i := 0; i < m; i++ {
		if isJunction(ring[i]) {
			start = i
			break
		}
	}
	if start == -1 {
		start = 0
		for i := 1; i < m; i++ {
			if less(ring[i], ring[start]) {
				start = i
			}
		}
	}
	if start == 0 {
		return ring
	}
	rotated := make([]orb.Point, 0, len(ring))
	rotated = append(rotated, ring[start:m]...)
	rotated = append(rotated, ring[:start+1]...)
	return rotated
}

func arcKey(pts []orb.Point, reverse bool) string {
	b := make([]byte, 0, len(pts)*16)
	for i := range pts {
		p := pts[i]
		if reverse {
			p = pts[len(pts)-1-i]
		}
		// +0 turns -0 into 0
		b = binary.BigEndian.AppendUint64(b, math.Float64bits(p[0]+0))
		b = binary.BigEndian.AppendUint64(b, math.Float64bits(p[1]+0))
	}
	return string(b)
}

// arc returns the index of the arc with pts, ^index for an existing
// reversed arc. New arcs are appended.
func (e *encoder) arc(pts []orb.Point) int {
	key := arcKey(pts, false)
	if i, ok := e.index[key]; ok {
		return i
	}
	if i, ok := e.index[arcKey(pts, true)]; ok {
		return ^i
	}
	arc := make([]orb.Point, len(pts))
	copy(arc, pts)
	e.arcs = append(e.arcs, arc)
	e.index[key] = len(e.arcs) - 1
	return len(e.arcs) - 1
}

// encodeArcs returns the arcs, delta encoded if quantized.
func (e *encoder) encodeArcs() [][][2]float64 {
	arcs := make([][][2]float64, len(e.arcs))
	for i, arc := range e.arcs {
		out := make([][2]float64, len(arc))
		var prev orb.Point
		for j, p := range arc {
			if e.transform != nil {
				out[j] = [2]float64{p[0] - prev[0], p[1] - prev[1]}
				prev = p
			} else {
				out[j] = p
			}
		}
		arcs[i] = out
	}
	return arcs
}

func ringArcs(r *run) []int {
	if r.arcs == nil {
		return []int{}
	}
	return r.arcs
}

func (s *shape) resolve() {
	g := s.geom
	switch g.Type {
	case "LineString":
		g.LineString = ringArcs(s.lines[0])
	case "MultiLineString":
		g.MultiLineString = make([][]int, 0, len(s.lines))
		for _, l := range s.lines {
			g.MultiLineString = append(g.MultiLineString, ringArcs(l))
		}
	case "Polygon":
		g.Polygon = polygonArcs(s.polys[0])
	case "MultiPolygon":
		g.MultiPolygon = make([][][]int, 0, len(s.polys))
		for _, p := range s.polys {
			g.MultiPolygon = append(g.MultiPolygon, polygonArcs(p))
		}
	}
}

func polygonArcs(rings []*run) [][]int {
	result := make([][]int, 0, len(rings))
	for _, r := range rings {
		result = append(result, ringArcs(r))
	}
	return result
}

// Validate checks that all arc references are valid and that each arc
// has at least two positions.
func (t *Topology) Validate() error {
	for i, arc := range t.Arcs {
		if len(arc) < 2 {
			return &EncodingError{Reason: fmt.Sprintf("arc %d has %d positions", i, len(arc))}
		}
	}
	for _, o := range t.Objects {
		if o.Geometry == nil {
			return &EncodingError{Layer: o.Name, Reason: "missing geometry collection"}
		}
		if err := t.validateGeometry(o.Name, o.Geometry); err != nil {
			return err
		}
	}
	return nil
}

func (t *Topology) validateGeometry(name string, g *Geometry) error {
	check := func(refs []int) error {
		for _, ref := range refs {
			i := ref
			if i < 0 {
				i = ^i
			}
			if i >= len(t.Arcs) {
				return &EncodingError{Layer: name, FeatureID: g.ID, Reason: fmt.Sprintf("arc %d out of range", ref)}
			}
		}
		return nil
	}
	var err error
	switch g.Type {
	case "LineString":
		err = check(g.LineString)
	case "MultiLineString", "Polygon":
		refs := g.MultiLineString
		if g.Type == "Polygon" {
			refs = g.Polygon
		}
		for _, r := range refs {
			if err = check(r); err != nil {
				break
			}
		}
	case "MultiPolygon":
		for _, p := range g.MultiPolygon {
			for _, r := range p {
				if err = check(r); err != nil {
					return err
				}
			}
		}
	case "GeometryCollection":
		for _, c := range g.Geometries {
			if err = t.validateGeometry(name, c); err != nil {
				return err
			}
		}
	}
	return err
}
