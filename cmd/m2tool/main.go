// m2tool is a CLI utility for inspecting M2 models, their skins and BLP textures.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/Faultbox/m2view/internal/assets"
	"github.com/Faultbox/m2view/internal/config"
	"github.com/Faultbox/m2view/internal/loader"
	"github.com/Faultbox/m2view/internal/logger"
)

func main() {
	config.ParseFlags()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	args := config.Args()
	if len(args) < 1 {
		printUsage(os.Stderr)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a := &app{cfg: cfg, ctx: ctx}
	defer a.close()

	command := args[0]
	args = args[1:]

	switch command {
	case "info":
		err = a.cmdInfo(args)
	case "textures", "tex":
		err = a.cmdTextures(args)
	case "skin":
		err = a.cmdSkin(args)
	case "blp":
		err = a.cmdBLP(args)
	case "export", "x":
		err = a.cmdExport(args)
	case "mesh":
		err = a.cmdMesh(args)
	case "list", "ls":
		err = a.cmdList(args)
	case "help", "-h", "--help":
		printUsage(os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage(os.Stderr)
		os.Exit(1)
	}

	if err != nil {
		logger.Debug("command failed", zap.String("command", command), zap.Error(err))
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		a.close()
		logger.Sync()
		os.Exit(1)
	}
}

// commands lists the subcommands in help order. Options go before the file
// argument: flag parsing stops at the first positional argument.
var commands = []struct {
	name, usage, help string
}{
	{"info", "info <model.m2>", "Show header and chunk table"},
	{"textures", "textures <model.m2>", "List texture definitions and lookups"},
	{"skin", "skin [-profile N] <model.m2>", "Show skin sections and batches"},
	{"blp", "blp <file.blp>", "Show texture header and mip chain"},
	{"export", "export [-mip N] <model.m2|file.blp>", "Decode textures and write images"},
	{"mesh", "mesh [-profile N] <model.m2>", "Load everything and show the assembled mesh"},
	{"list", "list [-n N] [pattern]", "List files in the asset paths"},
}

// commandUsage prints the usage line of one subcommand to stderr and exits.
func commandUsage(name string) {
	for _, c := range commands {
		if c.name == name {
			fmt.Fprintf(os.Stderr, "Usage: m2tool %s\n", c.usage)
			break
		}
	}
	os.Exit(1)
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `m2tool - M2 model, skin and BLP texture utility

Usage:
  m2tool [flags] <command> [options] <file>

Commands:
`)
	for _, c := range commands {
		fmt.Fprintf(w, "  %-37s %s\n", c.usage, c.help)
	}
	fmt.Fprint(w, `
Flags:
  -config <file>   Config file (default ./config.yaml or user config dir)
  -assets <paths>  Comma-separated asset directories or zip archives
  -strict          Fail on unsupported blend modes
  -missing <p>     Missing texture policy: fail or fallback
  -jobs <n>        Maximum concurrent fetches
  -format <f>      Export format: png, bmp, tga or webp
  -out <dir>       Export output directory
  -debug           Enable debug logging

Examples:
  m2tool -assets ./data info creature/wolf/wolf.m2
  m2tool -assets ./data,./patch.zip mesh creature/wolf/wolf.m2
  m2tool -assets ./data skin -profile 1 creature/wolf/wolf.m2
  m2tool -format webp -out ./textures export -mip 1 creature/wolf/wolf.m2
  m2tool blp ./wolfskin.blp
`)
}

// app holds state shared by all commands.
type app struct {
	cfg    *config.Config
	ctx    context.Context
	assets *assets.Manager
	dirs   map[string]bool // directories of on-disk targets already added
}

// manager returns the asset manager, creating it on first use. When target
// is a file on disk its directory is searched first.
func (a *app) manager(target string) (*assets.Manager, string, error) {
	if a.assets == nil {
		a.assets = assets.NewManager()
		for _, p := range a.cfg.Data.AssetPaths {
			if err := a.assets.Add(p); err != nil {
				logger.Warn("skipping asset path", zap.String("path", p), zap.Error(err))
			}
		}
	}

	if target == "" {
		return a.assets, target, nil
	}
	if info, err := os.Stat(target); err == nil && !info.IsDir() {
		dir := filepath.Clean(filepath.Dir(target))
		if !a.dirs[dir] {
			if err := a.assets.AddDir(dir); err != nil {
				return nil, "", err
			}
			if a.dirs == nil {
				a.dirs = make(map[string]bool)
			}
			a.dirs[dir] = true
		}
		return a.assets, strings.TrimSuffix(filepath.Base(target), ".zst"), nil
	}
	return a.assets, target, nil
}

// fetch returns the contents of name from disk or the asset paths.
func (a *app) fetch(name string) ([]byte, error) {
	m, key, err := a.manager(name)
	if err != nil {
		return nil, err
	}
	return m.Fetch(a.ctx, key)
}

// newLoader builds a model loader over the asset paths for target.
func (a *app) newLoader(target string, profile int) (*loader.Loader, string, error) {
	m, key, err := a.manager(target)
	if err != nil {
		return nil, "", err
	}
	policy, err := loader.ParseMissingTexturePolicy(a.cfg.Loader.MissingTextures)
	if err != nil {
		return nil, "", err
	}
	if profile < 0 {
		profile = a.cfg.Loader.SkinProfile
	}
	l := loader.New(m, loader.Options{
		StrictBlending:       a.cfg.Loader.StrictBlending,
		MissingTextures:      policy,
		MaxConcurrentFetches: a.cfg.Loader.MaxConcurrentFetches,
		SkinProfile:          profile,
	})
	return l, key, nil
}

func (a *app) close() {
	if a.assets != nil {
		a.assets.Close()
		a.assets = nil
		a.dirs = nil
	}
}
