package writer

import (
	"bytes"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/omniscale/osmtopo/layer"
	"github.com/omniscale/osmtopo/topology"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/pkg/errors"
)

func testTopology(t *testing.T) *topology.Topology {
	t.Helper()
	fc := geojson.NewFeatureCollection()
	f := geojson.NewFeature(orb.LineString{{0, 0}, {1, 1}})
	f.ID = "way/1"
	fc.Append(f)
	topo, err := topology.Encode(layer.Map{{Name: "map", Features: fc}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	return topo
}

type closeRecorder struct {
	bytes.Buffer
	closed bool
}

func (c *closeRecorder) Close() error {
	c.closed = true
	return nil
}

func TestStream(t *testing.T) {
	buf := &closeRecorder{}
	deliver := Stream(buf)
	if err := deliver(testTopology(t)); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.HasPrefix(out, `{"type":"Topology"`) || !strings.HasSuffix(out, "}\n") {
		t.Fatal(out)
	}
	if strings.Count(out, "\n") != 1 {
		t.Fatal("expected single line", out)
	}
	if buf.closed {
		t.Fatal("stream closed")
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

func TestStreamError(t *testing.T) {
	if err := Stream(failingWriter{})(testTopology(t)); err == nil {
		t.Fatal("expected error")
	}
	if err := Stream(&bytes.Buffer{})(nil); err == nil {
		t.Fatal("expected error for nil topology")
	}
}

func TestFile(t *testing.T) {
	dir, err := ioutil.TempDir("", "osmtopo_writer")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "out", "topo.json")
	if err := File(path)(testTopology(t)); err != nil {
		t.Fatal(err)
	}
	b, err := ioutil.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasSuffix(b, []byte("}\n")) {
		t.Fatal(string(b))
	}
	decoded := &topology.Topology{}
	if err := decoded.UnmarshalJSON(bytes.TrimSpace(b)); err != nil {
		t.Fatal(err)
	}
	if names := decoded.Layers(); len(names) != 1 || names[0] != "map" {
		t.Fatal(names)
	}

	files, err := ioutil.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 {
		t.Fatal("temporary file left", files)
	}
}

func TestFileKeepsExistingOnError(t *testing.T) {
	dir, err := ioutil.TempDir("", "osmtopo_writer")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "topo.json")
	if err := ioutil.WriteFile(path, []byte("old\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := File(path)(nil); err == nil {
		t.Fatal("expected error")
	}
	b, err := ioutil.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "old\n" {
		t.Fatal(string(b))
	}
	files, err := ioutil.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 {
		t.Fatal("temporary file left", files)
	}
}
