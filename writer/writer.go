// Package writer delivers topologies as JSON to streams and files.
package writer

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/omniscale/osmtopo/pipeline"
	"github.com/omniscale/osmtopo/topology"
	"github.com/pkg/errors"
)

// Stream writes each topology as JSON with a trailing newline to w.
// w is not closed.
func Stream(w io.Writer) pipeline.Deliverer {
	return func(t *topology.Topology) error {
		bw := bufio.NewWriter(w)
		if err := encode(bw, t); err != nil {
			return err
		}
		return errors.Wrap(bw.Flush(), "writing topology")
	}
}

// File writes the topology into path. The JSON is written into a
// temporary file next to path first and renamed on success, path is
// never left with a partial topology.
func File(path string) pipeline.Deliverer {
	return func(t *topology.Topology) error {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return errors.Wrap(err, "creating output dir")
		}

		tmpDest := fmt.Sprintf("%s~%d", path, os.Getpid())
		out, err := os.Create(tmpDest)
		if err != nil {
			return errors.Wrap(err, "creating output")
		}
		defer os.Remove(tmpDest)
		defer out.Close()

		bw := bufio.NewWriter(out)
		if err := encode(bw, t); err != nil {
			return err
		}
		if err := bw.Flush(); err != nil {
			return errors.Wrapf(err, "writing %s", tmpDest)
		}
		if err := out.Close(); err != nil {
			return errors.Wrapf(err, "writing %s", tmpDest)
		}

		err = os.Rename(tmpDest, path)
		if err != nil {
			return errors.Wrapf(err, "renaming to %s", path)
		}
		return nil
	}
}

func encode(w io.Writer, t *topology.Topology) error {
	if t == nil {
		return errors.New("missing topology")
	}
	b, err := json.Marshal(t)
	if err != nil {
		return errors.Wrap(err, "encoding topology")
	}
	b = append(b, '\n')
	_, err = w.Write(b)
	return errors.Wrap(err, "writing topology")
}
