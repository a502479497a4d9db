package cmd

import (
	"flag"
	"fmt"
	"strconv"

	"github.com/PatchLens/go-debug-lens/lens"
)

// CustomFlag defines a tool specific CLI option.
type CustomFlag struct {
	Name         string
	DefaultValue any
	Usage        string
	Type         string // "string", "int", "bool"
}

// Flags is the result of ParseFlags.
type Flags struct {
	// Config is loaded from -config and LENS_* variables, then overridden by explicitly set flags.
	Config lens.Config
	// Custom holds the custom flag values, converted to strings.
	Custom map[string]string
	// Args are the remaining positional arguments.
	Args []string
}

// ParseFlags parses the standard client flags and customFlags from the command line.
func ParseFlags(customFlags []CustomFlag) (*Flags, error) {
	def := lens.DefaultConfig()

	// Define all standard flags
	configFile := flag.String("config", "", "Path to a config file (yaml, json or toml)")
	endpoint := flag.String("endpoint", def.Endpoint, "Debug server base URL")
	origin := flag.String("origin", "", "Origin reported with every event, detected from go.mod when empty")
	environment := flag.String("environment", "", "Environment tag reported with every event")
	async := flag.Bool("async", def.Async, "Deliver events in the background")
	timeout := flag.Duration("timeout", def.Timeout, "Timeout for a single delivery")
	codec := flag.String("codec", def.Codec, "Wire codec, values can be: json (default), msgpack")
	compression := flag.String("compression", def.Compression, "Content encoding, values can be: none (default), zstd, snappy")
	spoolDir := flag.String("spool", "", "Directory to spool undelivered events, in memory when empty")
	cacheMB := flag.Int("cachemb", def.CacheMB, "Spool memory budget in MB")
	captureFile := flag.String("capture", "", "Write events as JSON lines to this file instead of the server")
	maxDepth := flag.Int("maxdepth", def.MaxDepth, "Number of nested levels expanded when inspecting values")
	maxStrLen := flag.Int("maxstrlen", def.MaxStringLength, "Characters displayed before strings are truncated")

	// Define custom flags
	customPtrs := make(map[string]interface{})
	for _, cf := range customFlags {
		switch cf.Type {
		case "string":
			customPtrs[cf.Name] = flag.String(cf.Name, cf.DefaultValue.(string), cf.Usage)
		case "int":
			customPtrs[cf.Name] = flag.Int(cf.Name, cf.DefaultValue.(int), cf.Usage)
		case "bool":
			customPtrs[cf.Name] = flag.Bool(cf.Name, cf.DefaultValue.(bool), cf.Usage)
		}
	}

	flag.Parse()

	config, err := lens.ReadConfig(*configFile)
	if err != nil {
		return nil, err
	}

	// Only flags given on the command line override the loaded config
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "endpoint":
			config.Endpoint = *endpoint
		case "origin":
			config.Origin = *origin
		case "environment":
			config.Environment = *environment
		case "async":
			config.Async = *async
		case "timeout":
			config.Timeout = *timeout
		case "codec":
			config.Codec = *codec
		case "compression":
			config.Compression = *compression
		case "spool":
			config.SpoolDir = *spoolDir
		case "cachemb":
			config.CacheMB = *cacheMB
		case "capture":
			config.CaptureFile = *captureFile
		case "maxdepth":
			config.MaxDepth = *maxDepth
		case "maxstrlen":
			config.MaxStringLength = *maxStrLen
		}
	})
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}

	result := &Flags{Config: config, Custom: make(map[string]string), Args: flag.Args()}
	// Populate custom flags - convert all to strings for ease of use
	for name, ptr := range customPtrs {
		switch v := ptr.(type) {
		case *string:
			result.Custom[name] = *v
		case *int:
			result.Custom[name] = strconv.Itoa(*v)
		case *bool:
			result.Custom[name] = strconv.FormatBool(*v)
		}
	}
	return result, nil
}
