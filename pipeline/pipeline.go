// Package pipeline converts fetched OSM data into a TopoJSON topology.
package pipeline

import (
	"context"
	"fmt"

	"github.com/omniscale/osmtopo/element"
	"github.com/omniscale/osmtopo/geom"
	"github.com/omniscale/osmtopo/layer"
	"github.com/omniscale/osmtopo/log"
	"github.com/omniscale/osmtopo/stats"
	"github.com/omniscale/osmtopo/topology"
	"github.com/pkg/errors"
)

// Fetcher returns the raw data of a single conversion.
type Fetcher func(ctx context.Context) (*element.Dataset, error)

// Deliverer receives the finished topology.
type Deliverer func(*topology.Topology) error

type Kind int

const (
	FetchFailure Kind = iota + 1
	ConfigurationFault
	EncodingFault
	DeliveryFailure
)

var kindNames = map[Kind]string{
	FetchFailure:       "fetch failure",
	ConfigurationFault: "configuration fault",
	EncodingFault:      "encoding fault",
	DeliveryFailure:    "delivery failure",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is returned for all failed conversions.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Cause returns the underlying error for errors.Cause.
func (e *Error) Cause() error { return e.Err }

// IsKind returns whether err is an *Error of kind k.
func IsKind(err error, k Kind) bool {
	var perr *Error
	return errors.As(err, &perr) && perr.Kind == k
}

type Converter struct {
	// Normalize.Stats is ignored, each conversion counts into its own
	// stats.Counts.
	Normalize geom.Options
	Encode    topology.Options
	// Strict does not recover panics and does not log errors, they are
	// left to the caller.
	Strict bool
}

// Convert runs a conversion with the default Converter.
func Convert(ctx context.Context, fetch Fetcher, deliver Deliverer, layers layer.Config) error {
	c := &Converter{}
	return c.Convert(ctx, fetch, deliver, layers)
}

// Convert fetches the data, converts it into features, partitions them
// into layers and encodes the layers as a topology. deliver is called
// once with the result, it is never called if any step fails.
// All failures are returned as *Error.
func (c *Converter) Convert(ctx context.Context, fetch Fetcher, deliver Deliverer, layers layer.Config) (err error) {
	stage := ConfigurationFault
	if !c.Strict {
		defer func() {
			if r := recover(); r != nil {
				err = &Error{Kind: stage, Err: errors.Errorf("panic: %v", r)}
			}
			if err != nil {
				log.Printf("[error] %s", err)
			}
		}()
	}

	if fetch == nil {
		return &Error{Kind: ConfigurationFault, Err: errors.New("missing fetcher")}
	}
	if deliver == nil {
		return &Error{Kind: ConfigurationFault, Err: errors.New("missing deliverer")}
	}

	stage = FetchFailure
	ds, err := fetch(ctx)
	if err != nil {
		return &Error{Kind: FetchFailure, Err: err}
	}
	if ds == nil {
		return &Error{Kind: FetchFailure, Err: errors.New("fetcher returned no data")}
	}
	log.Printf("[debug] fetched %d elements", ds.Len())

	stage = ConfigurationFault
	if err := layers.Validate(); err != nil {
		return &Error{Kind: ConfigurationFault, Err: err}
	}

	stage = EncodingFault
	opts := c.Normalize
	counts := stats.New()
	opts.Stats = counts
	fc := geom.Normalize(ds, &opts)

	stage = ConfigurationFault
	m, err := layer.Partition(fc, layers)
	if err != nil {
		return &Error{Kind: ConfigurationFault, Err: err}
	}
	for _, l := range m {
		counts.AddLayer(l.Name, len(l.Features.Features))
	}

	stage = EncodingFault
	encOpts := c.Encode
	topo, err := topology.Encode(m, &encOpts)
	if err != nil {
		return &Error{Kind: EncodingFault, Err: err}
	}
	counts.SetArcs(len(topo.Arcs))

	stage = DeliveryFailure
	if err := deliver(topo); err != nil {
		return &Error{Kind: DeliveryFailure, Err: err}
	}
	counts.Log()
	return nil
}
