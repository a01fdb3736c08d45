package overpass

import (
	_ "embed"
	"math"
	"strconv"
	"strings"
	"text/template"

	"github.com/pkg/errors"
)

// BBox is a geographic bounding box in WGS84 degrees.
type BBox struct {
	MinLong, MinLat, MaxLong, MaxLat float64
}

// ParseBBox parses "long1,lat1,long2,lat2" with long1 < long2 and
// lat1 < lat2.
func ParseBBox(s string) (BBox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return BBox{}, errors.Errorf("bbox %q: expected long1,lat1,long2,lat2", s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return BBox{}, errors.Wrapf(err, "bbox %q", s)
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return BBox{}, errors.Errorf("bbox %q: coordinate %d not finite", s, i+1)
		}
		v[i] = f
	}
	b := BBox{MinLong: v[0], MinLat: v[1], MaxLong: v[2], MaxLat: v[3]}
	if b.MinLong >= b.MaxLong {
		return BBox{}, errors.Errorf("bbox %q: long1 must be smaller than long2", s)
	}
	if b.MinLat >= b.MaxLat {
		return BBox{}, errors.Errorf("bbox %q: lat1 must be smaller than lat2", s)
	}
	if b.MinLong < -180 || b.MaxLong > 180 || b.MinLat < -90 || b.MaxLat > 90 {
		return BBox{}, errors.Errorf("bbox %q: outside of WGS84 bounds", s)
	}
	return b, nil
}

func formatCoord(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// String returns the bbox in the same form ParseBBox accepts.
func (b BBox) String() string {
	return strings.Join([]string{
		formatCoord(b.MinLong), formatCoord(b.MinLat),
		formatCoord(b.MaxLong), formatCoord(b.MaxLat),
	}, ",")
}

// Overpass returns the bbox in the south,west,north,east order of
// the Overpass QL bbox filter.
func (b BBox) Overpass() string {
	return strings.Join([]string{
		formatCoord(b.MinLat), formatCoord(b.MinLong),
		formatCoord(b.MaxLat), formatCoord(b.MaxLong),
	}, ",")
}

//go:embed query.tmpl
var queryTmplText string
var queryTmpl = template.Must(template.New("query").Parse(queryTmplText))

// DefaultTimeout is the server side query timeout in seconds.
const DefaultTimeout = 180

// DefaultQuery returns the query for parks, forests, water areas and
// roads within b, including all referenced nodes.
func DefaultQuery(b BBox) string {
	return Query(b, DefaultTimeout)
}

func Query(b BBox, timeout int) string {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	var sb strings.Builder
	err := queryTmpl.Execute(&sb, struct {
		BBox    string
		Timeout int
	}{
		BBox:    b.Overpass(),
		Timeout: timeout,
	})
	if err != nil {
		// template is static and its data always valid
		panic(err)
	}
	return sb.String()
}
