// -----------------------------------------------------------------------
// Build Pipeline - Sequences every stage of the cross-compilation run
// -----------------------------------------------------------------------

package orchestrator

import (
	"context"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/FiftyThree/boost/internal/build"
	"github.com/FiftyThree/boost/internal/common"
	"github.com/FiftyThree/boost/internal/env"
	"github.com/FiftyThree/boost/internal/headers"
	"github.com/FiftyThree/boost/internal/pack"
	"github.com/FiftyThree/boost/internal/shell"
	"github.com/FiftyThree/boost/internal/source"
)

// BuildPhases maps each platform to the b2 phases it runs, in order. Only
// the device build installs into a prefix; the other platforms stop at
// staging.
var BuildPhases = map[build.Platform][]build.Phase{
	build.PlatformIOS:       {build.PhaseStage, build.PhaseInstall},
	build.PlatformSimulator: {build.PhaseStage},
	build.PlatformOSX:       {build.PhaseStage},
}

// Pipeline runs the whole build: acquisition, bootstrap, per-platform
// builds, packaging, header extraction, cleanup. Strictly sequential; the
// first failing stage aborts the run and later stages never start.
type Pipeline struct {
	cfg    *common.Config
	env    *env.Environment
	runner shell.Runner
	logger arbor.ILogger
	onLine shell.LineFunc
}

// New assembles a pipeline over an already probed environment.
func New(cfg *common.Config, e *env.Environment, runner shell.Runner, logger arbor.ILogger) *Pipeline {
	p := &Pipeline{
		cfg:    cfg,
		env:    e,
		runner: runner,
		logger: logger,
	}
	if cfg.Logging.Verbose {
		p.onLine = func(line string) {
			logger.Info().Msg(line)
		}
	}
	return p
}

// Run executes every stage in order. Partial artifacts from a failed run
// stay on disk; the skip-if-present checks make a re-run pick up where the
// filesystem says it left off.
func (p *Pipeline) Run(ctx context.Context) error {
	started := time.Now()

	if err := p.env.Prepare(); err != nil {
		return err
	}

	dist := source.NewDistribution(p.env, p.runner, p.logger, p.onLine,
		p.cfg.Boost.Version, p.cfg.Boost.TarballURLTemplate, p.cfg.Boost.Libraries)

	if err := dist.Download(ctx); err != nil {
		return err
	}
	if err := dist.Unpack(ctx); err != nil {
		return err
	}
	if err := dist.PatchHeaders(); err != nil {
		return err
	}
	if err := dist.Bootstrap(ctx); err != nil {
		return err
	}
	if err := dist.WriteConfig(source.DefaultStanzas(p.env, p.cfg.Build.Compiler)); err != nil {
		return err
	}

	for _, platform := range build.Platforms {
		for _, phase := range BuildPhases[platform] {
			task := build.NewTask(p.env, dist, &p.cfg.Build, p.runner, p.logger, p.onLine, platform, phase)
			if err := task.Run(ctx); err != nil {
				return err
			}
		}
	}

	packager := pack.NewPackager(p.env, dist, p.runner, p.logger, p.onLine)
	if err := packager.Run(ctx); err != nil {
		return err
	}

	names := append(append([]string{}, p.cfg.Boost.Libraries...), p.cfg.Boost.Headers...)
	extractor := headers.NewExtractor(p.env, dist, p.runner, p.logger, p.onLine, names)
	if err := extractor.Run(ctx); err != nil {
		return err
	}

	if p.cfg.Build.KeepBuild {
		p.logger.Info().Str("dir", p.env.BuildDir).Msg("Keeping build directory")
	} else if err := p.env.Cleanup(); err != nil {
		return err
	}

	p.logger.Info().
		Str("lib_dir", p.env.OutputLibDir).
		Str("include_dir", p.env.OutputIncludeDir).
		Str("elapsed", time.Since(started).Round(time.Second).String()).
		Msg("Build complete")

	return nil
}
