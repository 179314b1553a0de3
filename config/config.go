// Package config handles shapecache.toml configuration.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/BurntSushi/toml"
	"github.com/tliron/commonlog"

	"github.com/chazu/shapecache/ic"
	"github.com/chazu/shapecache/ictrace"
	"github.com/chazu/shapecache/vm"
)

// FileName is the configuration file looked up by FindAndLoad.
const FileName = "shapecache.toml"

// DefaultRingSize is used when tracing is enabled without a ring size.
const DefaultRingSize = 4096

// ErrInvalid is returned when a configuration fails validation.
var ErrInvalid = errors.New("config: invalid configuration")

//go:embed schema.cue
var schemaSource string

var log = commonlog.GetLogger("shapecache.config")

// Config represents a shapecache.toml configuration.
type Config struct {
	IC    ICConfig    `toml:"ic" json:"ic"`
	Heap  HeapConfig  `toml:"heap" json:"heap"`
	Trace TraceConfig `toml:"trace" json:"trace"`
	Log   LogConfig   `toml:"log" json:"log"`

	// Dir is the directory containing the shapecache.toml file (set at load time).
	Dir string `toml:"-" json:"-"`
}

// ICConfig tunes the inline cache engine.
type ICConfig struct {
	MaxPolymorphic           int  `toml:"max_polymorphic" json:"max_polymorphic"`
	Premonomorphic           bool `toml:"premonomorphic" json:"premonomorphic"`
	PrimaryTableSize         int  `toml:"primary_table_size" json:"primary_table_size"`
	SecondaryTableSize       int  `toml:"secondary_table_size" json:"secondary_table_size"`
	MaxPrototypeDepth        int  `toml:"max_prototype_depth" json:"max_prototype_depth"`
	PolymorphicCodeCacheSize int  `toml:"polymorphic_code_cache_size" json:"polymorphic_code_cache_size"`
	PrintCode                bool `toml:"print_code" json:"print_code"`
}

// HeapConfig configures collections.
type HeapConfig struct {
	// GCInterval is the number of allocations between scavenges; 0 never
	// collects on allocation.
	GCInterval int `toml:"gc_interval" json:"gc_interval"`
	MajorEvery int `toml:"major_every" json:"major_every"`
}

// TraceConfig configures the IC transition log.
type TraceConfig struct {
	Enabled  bool   `toml:"enabled" json:"enabled"`
	RingSize int    `toml:"ring_size" json:"ring_size"`
	Database string `toml:"database" json:"database"`
}

// LogConfig configures logging.
type LogConfig struct {
	Verbosity int `toml:"verbosity" json:"verbosity"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	d := ic.DefaultConfig()
	o := vm.DefaultOptions()
	return &Config{
		IC: ICConfig{
			MaxPolymorphic:           d.MaxPolymorphic,
			Premonomorphic:           d.Premonomorphic,
			PrimaryTableSize:         d.PrimaryTableSize,
			SecondaryTableSize:       d.SecondaryTableSize,
			MaxPrototypeDepth:        o.MaxPrototypeDepth,
			PolymorphicCodeCacheSize: d.PolymorphicCacheSize,
		},
		Heap: HeapConfig{GCInterval: o.GCInterval, MajorEvery: o.MajorEvery},
		Log:  LogConfig{Verbosity: 1},
	}
}

// Load parses a shapecache.toml file from the given directory. Keys the
// file omits keep their defaults.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	c.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	if c.Trace.Database != "" && !filepath.IsAbs(c.Trace.Database) {
		c.Trace.Database = filepath.Join(c.Dir, c.Trace.Database)
	}
	return c, nil
}

// Parse decodes and validates TOML configuration text.
func Parse(data []byte) (*Config, error) {
	c := Default()
	md, err := toml.Decode(string(data), c)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%w: unknown key %s", ErrInvalid, undecoded[0])
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	c.clamp()
	return c, nil
}

// FindAndLoad walks up from startDir to find a shapecache.toml file,
// then loads and returns it. Returns the defaults if no file is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return Default(), nil
		}
		dir = parent
	}
}

// Validate checks c against the embedded schema.
func (c *Config) Validate() error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("config: compiling schema: %w", err)
	}
	v := schema.LookupPath(cue.ParsePath("#Config")).Unify(ctx.Encode(c))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	// The schema enumerates the sizes it accepts; this catches any that
	// slip past an edited schema.
	for _, size := range []int{c.IC.PrimaryTableSize, c.IC.SecondaryTableSize} {
		if size <= 0 || size&(size-1) != 0 {
			return fmt.Errorf("%w: table size %d is not a power of two", ErrInvalid, size)
		}
	}
	return nil
}

// clamp adjusts settings that are valid but unusable as given.
func (c *Config) clamp() {
	if c.Trace.Enabled && c.Trace.RingSize == 0 && c.Trace.Database == "" {
		log.Warningf("trace.ring_size 0 with no database, using %d", DefaultRingSize)
		c.Trace.RingSize = DefaultRingSize
	}
	if c.IC.PolymorphicCodeCacheSize < c.IC.MaxPolymorphic {
		log.Warningf("ic.polymorphic_code_cache_size %d raised to max_polymorphic %d",
			c.IC.PolymorphicCodeCacheSize, c.IC.MaxPolymorphic)
		c.IC.PolymorphicCodeCacheSize = c.IC.MaxPolymorphic
	}
}

// VMOptions returns the isolate options.
func (c *Config) VMOptions() vm.Options {
	return vm.Options{
		GCInterval:        c.Heap.GCInterval,
		MajorEvery:        c.Heap.MajorEvery,
		MaxPrototypeDepth: c.IC.MaxPrototypeDepth,
	}
}

// ToIC returns the engine configuration. trace may be nil.
func (c *Config) ToIC(trace ictrace.Sink) ic.Config {
	return ic.Config{
		MaxPolymorphic:       c.IC.MaxPolymorphic,
		Premonomorphic:       c.IC.Premonomorphic,
		PrimaryTableSize:     c.IC.PrimaryTableSize,
		SecondaryTableSize:   c.IC.SecondaryTableSize,
		PolymorphicCacheSize: c.IC.PolymorphicCodeCacheSize,
		PrintCode:            c.IC.PrintCode,
		Trace:                trace,
	}
}

// OpenTrace builds the trace sinks the configuration asks for: a ring
// of RingSize events and, with a database path, a SQLite store. The
// returned store is nil without a database; the caller closes it.
func (c *Config) OpenTrace() (ictrace.Sink, *ictrace.Ring, *ictrace.SQLiteStore, error) {
	if !c.Trace.Enabled {
		return nil, nil, nil, nil
	}
	var sinks ictrace.Multi
	var ring *ictrace.Ring
	if c.Trace.RingSize > 0 {
		ring = ictrace.NewRing(c.Trace.RingSize)
		sinks = append(sinks, ring)
	}
	var store *ictrace.SQLiteStore
	if c.Trace.Database != "" {
		var err error
		store, err = ictrace.OpenSQLite(c.Trace.Database)
		if err != nil {
			return nil, nil, nil, err
		}
		sinks = append(sinks, store)
	}
	if c.Log.Verbosity >= 2 {
		sinks = append(sinks, ictrace.NewLogSink("shapecache.trace"))
	}
	return sinks, ring, store, nil
}
