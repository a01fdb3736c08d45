package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/pkg/errors"

	"github.com/omniscale/osmtopo/overpass"
)

// Config is the content of a JSON config file.
type Config struct {
	Endpoint     string `json:"endpoint"`
	CacheDir     string `json:"cachedir"`
	CacheTTL     string `json:"cache_ttl"`
	Connection   string `json:"connection"`
	Table        string `json:"table"`
	LayersFile   string `json:"layers"`
	Quantization int    `json:"quantization"`
	Timeout      string `json:"timeout"`
}

const defaultCacheTTL = 24 * time.Hour
const defaultTable = "topologies"
const defaultTimeout = 3 * time.Minute

type Options struct {
	BBox         string        `short:"b" long:"bbox" env:"OSMTOPO_BBOX" description:"bounding box as west,south,east,north"`
	Input        string        `short:"i" long:"input" description:"read Overpass JSON from file instead of querying the server"`
	Endpoint     string        `long:"endpoint" env:"OSMTOPO_ENDPOINT" description:"Overpass API endpoint" default:"https://overpass-api.de/api/interpreter"`
	LayersFile   string        `short:"l" long:"layers" env:"OSMTOPO_LAYERS" description:"layer definitions (yaml)"`
	Output       string        `short:"o" long:"output" description:"output file, stdout if empty"`
	CacheDir     string        `long:"cachedir" env:"OSMTOPO_CACHEDIR" description:"cache directory for Overpass responses"`
	CacheTTL     time.Duration `long:"cache-ttl" description:"max age of cached responses" default:"24h"`
	Connection   string        `long:"connection" env:"OSMTOPO_CONNECTION" description:"store topologies in PostgreSQL"`
	Table        string        `long:"table" description:"table for stored topologies" default:"topologies"`
	Quantization int           `short:"q" long:"quantization" description:"quantization of the topology, 0 disables" default:"0"`
	Timeout      time.Duration `long:"timeout" description:"timeout for Overpass requests" default:"3m"`
	Strict       bool          `long:"strict" description:"do not recover from internal errors"`
	Metadata     bool          `long:"metadata" description:"add version, changeset and user properties"`
	RFC7946      bool          `long:"rfc7946" description:"rewind polygons to RFC 7946 orientation"`
	ConfigFile   string        `short:"c" long:"config" env:"OSMTOPO_CONFIG" description:"config (json)"`
	Httpprofile  string        `long:"httpprofile" description:"bind address for profile server"`
	Memprofile   string        `long:"memprofile" description:"write heap profiles to this directory"`
	Quiet        bool          `long:"quiet" description:"only log warnings and errors"`
	Debug        bool          `long:"debug" description:"log skipped elements"`
	Version      bool          `long:"version" description:"print version and exit"`
}

// Errors collects all errors of the options check.
type Errors []error

func (e Errors) Error() string {
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return "errors in config/options: " + strings.Join(msgs, "; ")
}

// Parse parses the command line args, merges the config file and checks
// the result.
func Parse(args []string) (*Options, error) {
	o := &Options{}
	parser := flags.NewParser(o, flags.Default)
	rest, err := parser.ParseArgs(args)
	if err != nil {
		return nil, err
	}
	if len(rest) > 0 {
		return nil, errors.Errorf("unexpected arguments: %s", strings.Join(rest, " "))
	}
	if o.Version {
		return o, nil
	}
	if err := o.updateFromConfig(); err != nil {
		return nil, err
	}
	if errs := o.check(); len(errs) != 0 {
		return nil, Errors(errs)
	}
	return o, nil
}

func (o *Options) updateFromConfig() error {
	conf := &Config{}

	if o.ConfigFile != "" {
		f, err := os.Open(o.ConfigFile)
		if err != nil {
			return errors.Wrap(err, "reading config")
		}
		defer f.Close()
		decoder := json.NewDecoder(f)
		decoder.DisallowUnknownFields()

		err = decoder.Decode(&conf)
		if err != nil {
			return errors.Wrapf(err, "parsing config %s", o.ConfigFile)
		}
	}

	if conf.Endpoint != "" && o.Endpoint == overpass.DefaultEndpoint {
		o.Endpoint = conf.Endpoint
	}
	if o.CacheDir == "" {
		o.CacheDir = conf.CacheDir
	}
	if conf.CacheTTL != "" && o.CacheTTL == defaultCacheTTL {
		ttl, err := time.ParseDuration(conf.CacheTTL)
		if err != nil {
			return errors.Wrap(err, "invalid cache_ttl")
		}
		o.CacheTTL = ttl
	}
	if o.Connection == "" {
		o.Connection = conf.Connection
	}
	if conf.Table != "" && o.Table == defaultTable {
		o.Table = conf.Table
	}
	if o.LayersFile == "" {
		o.LayersFile = conf.LayersFile
	}
	if o.Quantization == 0 {
		o.Quantization = conf.Quantization
	}
	if conf.Timeout != "" && o.Timeout == defaultTimeout {
		timeout, err := time.ParseDuration(conf.Timeout)
		if err != nil {
			return errors.Wrap(err, "invalid timeout")
		}
		o.Timeout = timeout
	}
	return nil
}

func (o *Options) check() []error {
	errs := []error{}
	if o.BBox == "" && o.Input == "" {
		errs = append(errs, errors.New("missing --bbox or --input"))
	}
	if o.BBox != "" {
		if _, err := overpass.ParseBBox(o.BBox); err != nil {
			errs = append(errs, err)
		}
	}
	if o.Quantization < 0 || o.Quantization == 1 {
		errs = append(errs, fmt.Errorf("invalid quantization %d, needs to be 0 or >1", o.Quantization))
	}
	if o.Output != "" && o.Connection != "" {
		errs = append(errs, errors.New("--output and --connection are exclusive"))
	}
	if o.Quiet && o.Debug {
		errs = append(errs, errors.New("--quiet and --debug are exclusive"))
	}
	if o.Timeout < 0 {
		errs = append(errs, errors.New("negative --timeout"))
	}
	if o.CacheTTL < 0 {
		errs = append(errs, errors.New("negative --cache-ttl"))
	}
	return errs
}
