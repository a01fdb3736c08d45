// Package stats counts the elements, features and arcs of a conversion.
package stats

import (
	"fmt"
	"strings"
	"time"

	"github.com/omniscale/osmtopo/log"
)

type LayerCount struct {
	Name     string
	Features int
}

// Counts collects the numbers of a single conversion. All methods
// accept a nil receiver.
type Counts struct {
	Nodes     int64
	Ways      int64
	Relations int64

	Points        int64
	LineStrings   int64
	Polygons      int64
	MultiPolygons int64

	// Tainted features were built from incomplete ways or relations,
	// Skipped elements had no usable geometry.
	Tainted int64
	Skipped int64

	Arcs   int64
	Layers []LayerCount

	start time.Time
}

func New() *Counts {
	return &Counts{start: time.Now()}
}

func (c *Counts) AddElements(nodes, ways, relations int) {
	if c == nil {
		return
	}
	c.Nodes += int64(nodes)
	c.Ways += int64(ways)
	c.Relations += int64(relations)
}

// AddFeature counts a feature by its geometry type.
func (c *Counts) AddFeature(geomType string) {
	if c == nil {
		return
	}
	switch geomType {
	case "Point":
		c.Points++
	case "LineString":
		c.LineStrings++
	case "Polygon":
		c.Polygons++
	case "MultiPolygon":
		c.MultiPolygons++
	}
}

func (c *Counts) AddTainted() {
	if c == nil {
		return
	}
	c.Tainted++
}

func (c *Counts) AddSkipped() {
	if c == nil {
		return
	}
	c.Skipped++
}

func (c *Counts) AddLayer(name string, features int) {
	if c == nil {
		return
	}
	c.Layers = append(c.Layers, LayerCount{name, features})
}

func (c *Counts) SetArcs(n int) {
	if c == nil {
		return
	}
	c.Arcs = int64(n)
}

func (c *Counts) Features() int64 {
	if c == nil {
		return 0
	}
	return c.Points + c.LineStrings + c.Polygons + c.MultiPolygons
}

func (c *Counts) String() string {
	if c == nil {
		return ""
	}
	layers := make([]string, 0, len(c.Layers))
	for _, l := range c.Layers {
		layers = append(layers, fmt.Sprintf("%s=%d", l.Name, l.Features))
	}
	s := fmt.Sprintf("Nodes: %d Ways: %d Relations: %d | Points: %d LineStrings: %d Polygons: %d MultiPolygons: %d (tainted %d, skipped %d) | Arcs: %d Layers: %s",
		c.Nodes, c.Ways, c.Relations,
		c.Points, c.LineStrings, c.Polygons, c.MultiPolygons,
		c.Tainted, c.Skipped,
		c.Arcs, strings.Join(layers, " "),
	)
	if !c.start.IsZero() {
		s += fmt.Sprintf(" in %s", time.Since(c.start).Round(time.Millisecond))
	}
	return s
}

func (c *Counts) Log() {
	if c == nil {
		return
	}
	log.Printf("[info] %s", c)
}
