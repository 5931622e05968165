// -----------------------------------------------------------------------
// Platform Build Task - b2 flag construction and invocation
// -----------------------------------------------------------------------

package build

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/FiftyThree/boost/internal/common"
	"github.com/FiftyThree/boost/internal/env"
	"github.com/FiftyThree/boost/internal/shell"
	"github.com/FiftyThree/boost/internal/source"
)

// Platform is one cross-compilation target family.
type Platform string

const (
	PlatformIOS       Platform = "ios"
	PlatformSimulator Platform = "simulator"
	PlatformOSX       Platform = "osx"
)

// Platforms lists every target in build order.
var Platforms = []Platform{PlatformIOS, PlatformSimulator, PlatformOSX}

// Architectures returns the fixed architecture set built for the platform.
func (p Platform) Architectures() []string {
	switch p {
	case PlatformIOS:
		return []string{"armv7", "arm64"}
	case PlatformSimulator, PlatformOSX:
		return []string{"i386", "x86_64"}
	}
	return nil
}

// SDK returns the xcrun SDK name whose tools operate on this platform's
// archives.
func (p Platform) SDK() string {
	if p == PlatformOSX {
		return "macosx"
	}
	return "iphoneos"
}

// Phase is one b2 target: stage builds into the stage directory, install
// additionally populates the prefix directory.
type Phase string

const (
	PhaseStage   Phase = "stage"
	PhaseInstall Phase = "install"
)

// Task is one (platform, phase) b2 invocation. It exists only long enough
// to construct its flag list and run the build tool.
type Task struct {
	Platform Platform
	Phase    Phase

	env    *env.Environment
	dist   *source.Distribution
	cfg    *common.BuildConfig
	runner shell.Runner
	logger arbor.ILogger
	onLine shell.LineFunc
}

// NewTask binds a (platform, phase) pair to the environment it builds in.
func NewTask(e *env.Environment, dist *source.Distribution, cfg *common.BuildConfig, runner shell.Runner, logger arbor.ILogger, onLine shell.LineFunc, platform Platform, phase Phase) *Task {
	return &Task{
		Platform: platform,
		Phase:    phase,
		env:      e,
		dist:     dist,
		cfg:      cfg,
		runner:   runner,
		logger:   logger,
		onLine:   onLine,
	}
}

// BuildDir returns the per-platform build directory, relative to the source
// root.
func (t *Task) BuildDir() string {
	return string(t.Platform) + "-build"
}

// StageDir returns the per-platform stage directory, relative to the source
// root.
func (t *Task) StageDir() string {
	return filepath.Join(t.BuildDir(), "stage")
}

// PrefixDir returns the per-platform install prefix, relative to the source
// root.
func (t *Task) PrefixDir() string {
	return filepath.Join(t.BuildDir(), "prefix")
}

func (t *Task) commonArgs() []string {
	return []string{
		fmt.Sprintf("-j%d", t.cfg.Jobs),
		"--build-dir=" + t.BuildDir(),
		"--stagedir=" + t.StageDir(),
		"--prefix=" + t.PrefixDir(),
		"linkflags=-stdlib=" + t.cfg.StdLib,
		"link=static",
		"variant=release",
		"-sBOOST_BUILD_USER_CONFIG=" + t.dist.ConfigPath,
	}
}

func (t *Task) platformArgs() ([]string, error) {
	switch t.Platform {
	case PlatformIOS:
		return []string{
			"target-os=iphone",
			"macosx-version=iphone-" + t.env.IOSSDKVersion,
			"toolset=darwin-" + t.env.IOSSDKVersion + "~iphone",
			"define=_LITTLE_ENDIAN",
			"architecture=arm",
		}, nil
	case PlatformSimulator:
		return []string{
			"target-os=iphone",
			"macosx-version=iphonesim-" + t.env.IOSSDKVersion,
			"toolset=darwin-" + t.env.IOSSDKVersion + "~iphonesim",
			"architecture=x86",
		}, nil
	case PlatformOSX:
		return []string{
			"target-os=darwin",
			"macosx-version=" + t.env.OSXSDKVersion,
			"toolset=darwin-" + t.env.OSXSDKVersion + "~osx",
			"architecture=x86",
		}, nil
	}
	return nil, fmt.Errorf("unexpected platform: %s", t.Platform)
}

func (t *Task) cppFlags() []string {
	flags := []string{
		"-std=" + t.cfg.CPPStd,
		"-stdlib=" + t.cfg.StdLib,
		"-fvisibility=hidden",
		"-fvisibility-inlines-hidden",
		"-fPIC",
		"-DBOOST_SP_USE_SPINLOCK",
	}
	if t.Platform == PlatformOSX {
		return append(flags, "-mmacosx-version-min="+t.cfg.OSXMinVersion)
	}
	return append(flags,
		"-miphoneos-version-min="+t.cfg.IOSMinVersion,
		"-fembed-bitcode")
}

// Args assembles the full b2 argument list: common flags, platform
// selectors, compiler flags, and the phase name last.
func (t *Task) Args() ([]string, error) {
	args := t.commonArgs()
	platformArgs, err := t.platformArgs()
	if err != nil {
		return nil, err
	}
	args = append(args, platformArgs...)
	// One argv element: b2 splits the space-separated flag group itself.
	args = append(args, "cxxflags="+strings.Join(t.cppFlags(), " "))
	args = append(args, string(t.Phase))
	return args, nil
}

// Run invokes b2 from the source root. A non-zero exit halts the whole run.
func (t *Task) Run(ctx context.Context) error {
	args, err := t.Args()
	if err != nil {
		return err
	}
	t.logger.Info().
		Str("platform", string(t.Platform)).
		Str("phase", string(t.Phase)).
		Msg("Running build tool")
	return shell.Run(ctx, t.runner, shell.Command{
		Name: "./b2",
		Args: args,
		Dir:  t.dist.Root,
	}, t.onLine)
}
