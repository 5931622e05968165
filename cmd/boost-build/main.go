package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/ternarybob/arbor"

	"github.com/FiftyThree/boost/internal/common"
	"github.com/FiftyThree/boost/internal/env"
	"github.com/FiftyThree/boost/internal/orchestrator"
	"github.com/FiftyThree/boost/internal/shell"
)

// configPaths is a custom flag type that allows multiple -config flags
type configPaths []string

func (c *configPaths) String() string {
	return fmt.Sprintf("%v", *c)
}

func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

var (
	configFiles  configPaths
	rootDir      = flag.String("root", "", "Working root directory (defaults to the current directory)")
	verbose      = flag.Bool("verbose", false, "Echo every line of subprocess output")
	showVersion  = flag.Bool("version", false, "Print version information")
	showVersionV = flag.Bool("v", false, "Print version information (shorthand)")
)

func init() {
	flag.Var(&configFiles, "config", "Configuration file path (can be specified multiple times, later files override earlier ones)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
}

func main() {
	flag.Parse()

	if *showVersion || *showVersionV {
		fmt.Printf("boost-build version %s\n", common.GetVersion())
		os.Exit(0)
	}

	// Startup order: config, flag overrides, logger, banner, pipeline.
	if len(configFiles) == 0 {
		if _, err := os.Stat("boost-build.toml"); err == nil {
			configFiles = append(configFiles, "boost-build.toml")
		}
	}

	config, err := common.LoadFromFiles(configFiles...)
	if err != nil {
		arbor.NewLogger().Fatal().Strs("paths", configFiles).Err(err).Msg("Failed to load configuration")
		os.Exit(1)
	}

	common.ApplyFlagOverrides(config, *verbose)

	if err := config.Validate(); err != nil {
		arbor.NewLogger().Fatal().Err(err).Msg("Invalid configuration")
		os.Exit(1)
	}

	logger := common.InitLogger(config)
	common.PrintBanner()

	root := *rootDir
	if root == "" {
		if root, err = os.Getwd(); err != nil {
			logger.Fatal().Err(err).Msg("Failed to resolve working directory")
			os.Exit(1)
		}
	}

	logger.Info().
		Str("boost_version", config.Boost.Version).
		Strs("libraries", config.Boost.Libraries).
		Str("root", root).
		Msg("Starting Boost build")

	ctx := context.Background()
	runner := shell.NewRunner()

	environment, err := env.Probe(ctx, runner, logger, root)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to probe developer toolchain")
		os.Exit(1)
	}

	pipeline := orchestrator.New(config, environment, runner, logger)
	if err := pipeline.Run(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Build failed")
		os.Exit(1)
	}
}
