package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/jessevdk/go-flags"

	"github.com/omniscale/osmtopo"
	"github.com/omniscale/osmtopo/cache"
	"github.com/omniscale/osmtopo/config"
	"github.com/omniscale/osmtopo/database/postgis"
	"github.com/omniscale/osmtopo/element"
	"github.com/omniscale/osmtopo/geom"
	"github.com/omniscale/osmtopo/layer"
	"github.com/omniscale/osmtopo/log"
	"github.com/omniscale/osmtopo/mapping"
	"github.com/omniscale/osmtopo/overpass"
	"github.com/omniscale/osmtopo/pipeline"
	"github.com/omniscale/osmtopo/stats"
	"github.com/omniscale/osmtopo/topology"
	"github.com/omniscale/osmtopo/writer"
)

func main() {
	opts, err := config.Parse(os.Args[1:])
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
			// already printed by the parser
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if opts.Version {
		fmt.Println(osmtopo.Version)
		os.Exit(0)
	}

	if opts.Quiet {
		log.SetMinLevel(log.LWarn)
	} else if opts.Debug {
		log.SetMinLevel(log.LDebug)
	}
	if opts.Httpprofile != "" {
		stats.StartHttpPProf(opts.Httpprofile)
	}
	stopProfiler := func() {}
	if opts.Memprofile != "" {
		stopProfiler, err = stats.MemProfiler(opts.Memprofile, 2*time.Second)
		if err != nil {
			log.Fatal(err)
		}
	}

	err = run(opts)
	stopProfiler()
	if err != nil {
		if opts.Strict || !isPipelineError(err) {
			log.Println("[error]", err)
		}
		os.Exit(1)
	}
}

// isPipelineError returns true for errors already logged by the
// converter.
func isPipelineError(err error) bool {
	_, ok := err.(*pipeline.Error)
	return ok
}

func run(opts *config.Options) error {
	var layers layer.Config
	var areas geom.Areas
	if opts.LayersFile != "" {
		m, err := mapping.FromFile(opts.LayersFile)
		if err != nil {
			return err
		}
		layers = m.Layers
		areas = m.Areas
	}

	fetch, closeFetch, err := fetcher(opts)
	if err != nil {
		return err
	}
	defer closeFetch()

	deliver, closeDeliver, err := deliverer(opts)
	if err != nil {
		return err
	}
	defer closeDeliver()

	c := &pipeline.Converter{
		Normalize: geom.Options{
			Areas:    areas,
			Rewind:   opts.RFC7946,
			Metadata: opts.Metadata,
		},
		Encode: topology.Options{Quantization: opts.Quantization},
		Strict: opts.Strict,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	defer log.Step("Converting")()
	return c.Convert(ctx, fetch, deliver, layers)
}

func fetcher(opts *config.Options) (pipeline.Fetcher, func(), error) {
	if opts.Input != "" {
		return func(ctx context.Context) (*element.Dataset, error) {
			return overpass.ParseFile(opts.Input)
		}, func() {}, nil
	}

	bbox, err := overpass.ParseBBox(opts.BBox)
	if err != nil {
		return nil, nil, err
	}
	clientOpts := []overpass.Option{
		overpass.WithHTTPClient(&http.Client{Timeout: opts.Timeout}),
	}
	closeCache := func() {}
	if opts.CacheDir != "" {
		c, err := cache.Open(opts.CacheDir, opts.CacheTTL)
		if err != nil {
			return nil, nil, err
		}
		closeCache = func() {
			if err := c.Close(); err != nil {
				log.Println("[warn] closing cache:", err)
			}
		}
		clientOpts = append(clientOpts, overpass.WithCache(c))
	}

	timeout := overpass.DefaultTimeout
	if opts.Timeout > 0 {
		timeout = int(opts.Timeout / time.Second)
	}
	client := overpass.New(opts.Endpoint, clientOpts...)
	return client.Fetcher(overpass.Query(bbox, timeout)), closeCache, nil
}

func deliverer(opts *config.Options) (pipeline.Deliverer, func(), error) {
	if opts.Connection != "" {
		store, err := postgis.Open(opts.Connection, opts.Table)
		if err != nil {
			return nil, nil, err
		}
		return store.Deliver(opts.BBox), func() { store.Close() }, nil
	}
	if opts.Output != "" {
		return writer.File(opts.Output), func() {}, nil
	}
	return writer.Stream(os.Stdout), func() {}, nil
}
