// Package topology encodes layers of GeoJSON features as TopoJSON.
//
// Lines and polygon rings of all layers are split into arcs at the
// positions where geometries meet. Shared arcs are stored once and
// referenced by index, reversed arcs by their one's complement (^i).
package topology

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
)

type Transform struct {
	Scale     [2]float64 `json:"scale"`
	Translate [2]float64 `json:"translate"`
}

// Object is a named GeometryCollection, one for each layer.
type Object struct {
	Name     string
	Geometry *Geometry
}

type Topology struct {
	Type      string
	Transform *Transform
	BBox      [4]float64
	Objects   []Object
	// Arcs are absolute positions, or delta encoded quantized positions
	// if Transform is set.
	Arcs [][][2]float64
}

// Geometry is a TopoJSON geometry object. Only the field matching Type
// is set.
type Geometry struct {
	Type       string
	ID         interface{}
	Properties map[string]interface{}

	Point      [2]float64
	MultiPoint [][2]float64

	LineString      []int
	MultiLineString [][]int
	Polygon         [][]int
	MultiPolygon    [][][]int

	Geometries []*Geometry
}

// EncodingError reports a topology that violates its own invariants or
// input that can not be encoded.
type EncodingError struct {
	Layer     string
	FeatureID interface{}
	Reason    string
}

func (e *EncodingError) Error() string {
	if e.Layer == "" {
		return "encoding topology: " + e.Reason
	}
	if e.FeatureID != nil {
		return fmt.Sprintf("encoding topology: layer %q, feature %v: %s", e.Layer, e.FeatureID, e.Reason)
	}
	return fmt.Sprintf("encoding topology: layer %q: %s", e.Layer, e.Reason)
}

type jsonGeometry struct {
	Type        interface{}            `json:"type"`
	ID          interface{}            `json:"id,omitempty"`
	Properties  map[string]interface{} `json:"properties,omitempty"`
	Arcs        interface{}            `json:"arcs,omitempty"`
	Coordinates interface{}            `json:"coordinates,omitempty"`
	Geometries  *[]*Geometry           `json:"geometries,omitempty"`
}

func (g *Geometry) MarshalJSON() ([]byte, error) {
	jg := jsonGeometry{ID: g.ID, Properties: g.Properties}
	if len(jg.Properties) == 0 {
		jg.Properties = nil
	}
	if g.Type != "" {
		jg.Type = g.Type
	}
	switch g.Type {
	case "Point":
		jg.Coordinates = g.Point
	case "MultiPoint":
		jg.Coordinates = nonNil(g.MultiPoint)
	case "LineString":
		jg.Arcs = nonNilInts(g.LineString)
	case "MultiLineString":
		jg.Arcs = nonNil(g.MultiLineString)
	case "Polygon":
		jg.Arcs = nonNil(g.Polygon)
	case "MultiPolygon":
		jg.Arcs = nonNil(g.MultiPolygon)
	case "GeometryCollection":
		geoms := g.Geometries
		if geoms == nil {
			geoms = []*Geometry{}
		}
		jg.Geometries = &geoms
	}
	return json.Marshal(jg)
}

func nonNilInts(v []int) []int {
	if v == nil {
		return []int{}
	}
	return v
}

// nonNil keeps empty lists as [] in the output.
func nonNil(v interface{}) interface{} {
	switch v := v.(type) {
	case [][2]float64:
		if v == nil {
			return [][2]float64{}
		}
	case [][]int:
		if v == nil {
			return [][]int{}
		}
	case [][][]int:
		if v == nil {
			return [][][]int{}
		}
	}
	return v
}

func (g *Geometry) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type        *string                `json:"type"`
		ID          interface{}            `json:"id"`
		Properties  map[string]interface{} `json:"properties"`
		Arcs        json.RawMessage        `json:"arcs"`
		Coordinates json.RawMessage        `json:"coordinates"`
		Geometries  []*Geometry            `json:"geometries"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*g = Geometry{ID: raw.ID, Properties: raw.Properties}
	if raw.Type == nil {
		return nil
	}
	g.Type = *raw.Type
	var err error
	switch g.Type {
	case "Point":
		err = json.Unmarshal(raw.Coordinates, &g.Point)
	case "MultiPoint":
		err = json.Unmarshal(raw.Coordinates, &g.MultiPoint)
	case "LineString":
		err = json.Unmarshal(raw.Arcs, &g.LineString)
	case "MultiLineString":
		err = json.Unmarshal(raw.Arcs, &g.MultiLineString)
	case "Polygon":
		err = json.Unmarshal(raw.Arcs, &g.Polygon)
	case "MultiPolygon":
		err = json.Unmarshal(raw.Arcs, &g.MultiPolygon)
	case "GeometryCollection":
		g.Geometries = raw.Geometries
	default:
		return errors.Errorf("unknown geometry type %q", g.Type)
	}
	return errors.Wrapf(err, "decoding %s", g.Type)
}

// MarshalJSON writes the objects in layer order.
func (t *Topology) MarshalJSON() ([]byte, error) {
	buf := &bytes.Buffer{}
	buf.WriteString(`{"type":"Topology"`)
	if t.Transform != nil {
		b, err := json.Marshal(t.Transform)
		if err != nil {
			return nil, err
		}
		buf.WriteString(`,"transform":`)
		buf.Write(b)
	}
	b, err := json.Marshal(t.BBox)
	if err != nil {
		return nil, err
	}
	buf.WriteString(`,"bbox":`)
	buf.Write(b)

	buf.WriteString(`,"objects":{`)
	for i, o := range t.Objects {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(o.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		g, err := json.Marshal(o.Geometry)
		if err != nil {
			return nil, errors.Wrapf(err, "layer %s", o.Name)
		}
		buf.Write(g)
	}
	buf.WriteString(`},"arcs":`)
	arcs := t.Arcs
	if arcs == nil {
		arcs = [][][2]float64{}
	}
	b, err = json.Marshal(arcs)
	if err != nil {
		return nil, err
	}
	buf.Write(b)
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (t *Topology) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type      string          `json:"type"`
		Transform *Transform      `json:"transform"`
		BBox      [4]float64      `json:"bbox"`
		Objects   json.RawMessage `json:"objects"`
		Arcs      [][][2]float64  `json:"arcs"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Type != "Topology" {
		return errors.Errorf("not a topology: type %q", raw.Type)
	}
	*t = Topology{Type: raw.Type, Transform: raw.Transform, BBox: raw.BBox, Arcs: raw.Arcs}
	if len(raw.Objects) == 0 {
		return nil
	}

	// objects are decoded token by token to keep their order
	dec := json.NewDecoder(bytes.NewReader(raw.Objects))
	tok, err := dec.Token()
	if err != nil {
		return errors.Wrap(err, "decoding objects")
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return errors.New("objects is not a JSON object")
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return errors.Wrap(err, "decoding objects")
		}
		name := tok.(string)
		g := &Geometry{}
		if err := dec.Decode(g); err != nil {
			return errors.Wrapf(err, "decoding object %s", name)
		}
		t.Objects = append(t.Objects, Object{Name: name, Geometry: g})
	}
	return nil
}

// Layers returns the object names in order.
func (t *Topology) Layers() []string {
	names := make([]string, len(t.Objects))
	for i, o := range t.Objects {
		names[i] = o.Name
	}
	return names
}

func (t *Topology) object(name string) (*Geometry, bool) {
	for _, o := range t.Objects {
		if o.Name == name {
			return o.Geometry, true
		}
	}
	return nil, false
}
