package config

import (
	"flag"
	"strings"
)

var (
	flagConfig  = flag.String("config", "", "Path to config file")
	flagDebug   = flag.Bool("debug", false, "Enable debug logging")
	flagAssets  = flag.String("assets", "", "Comma-separated asset directories or zip archives")
	flagStrict  = flag.Bool("strict", false, "Fail on unsupported blend modes")
	flagMissing = flag.String("missing", "", "Missing texture policy: fail or fallback")
	flagJobs    = flag.Int("jobs", 0, "Maximum concurrent fetches")
	flagFormat  = flag.String("format", "", "Export image format: png, bmp, tga or webp")
	flagOut     = flag.String("out", "", "Export output directory")
)

// ParseFlags parses command-line flags. Call this early in main().
func ParseFlags() {
	flag.Parse()
}

// Args returns the arguments left after flag parsing.
func Args() []string {
	return flag.Args()
}

// ConfigPath returns the explicit config path if provided via --config flag.
func ConfigPath() string {
	return *flagConfig
}

// applyFlags applies CLI flag overrides to the config.
func applyFlags(cfg *Config) {
	if *flagDebug {
		cfg.Logging.Level = "debug"
	}
	if *flagAssets != "" {
		var paths []string
		for _, p := range strings.Split(*flagAssets, ",") {
			if p = strings.TrimSpace(p); p != "" {
				paths = append(paths, p)
			}
		}
		cfg.Data.AssetPaths = paths
	}
	if *flagStrict {
		cfg.Loader.StrictBlending = true
	}
	if *flagMissing != "" {
		cfg.Loader.MissingTextures = *flagMissing
	}
	if *flagJobs > 0 {
		cfg.Loader.MaxConcurrentFetches = *flagJobs
	}
	if *flagFormat != "" {
		cfg.Export.Format = *flagFormat
	}
	if *flagOut != "" {
		cfg.Export.OutputDir = *flagOut
	}
}
