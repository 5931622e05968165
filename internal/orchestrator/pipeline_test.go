package orchestrator_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/FiftyThree/boost/internal/common"
	"github.com/FiftyThree/boost/internal/env"
	"github.com/FiftyThree/boost/internal/orchestrator"
	"github.com/FiftyThree/boost/internal/shell"
	"github.com/FiftyThree/boost/internal/shell/shelltest"
)

type harness struct {
	cfg    *common.Config
	env    *env.Environment
	runner *shelltest.Runner
	root   string
}

// newHarness scripts a fake toolchain end to end: curl produces the
// tarball, tar produces the source tree, b2 stages archives, and the
// packaging tools create the files they would on a real machine.
func newHarness(t *testing.T) *harness {
	t.Helper()

	root := t.TempDir()
	xcodeRoot := filepath.Join(root, "xcode")
	cfg := common.NewDefaultConfig()
	e := env.New(arbor.NewLogger(), root, xcodeRoot, "9.3", "10.11")
	runner := shelltest.New()

	// The simulator SDK carries the headers missing from the device SDK.
	simulatorInclude := filepath.Join(e.SimulatorSDKRoot(), "usr", "include")
	require.NoError(t, os.MkdirAll(simulatorInclude, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(simulatorInclude, "crt_externs.h"), []byte("// crt"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(simulatorInclude, "bzlib.h"), []byte("// bz"), 0644))

	sourceRoot := e.Resolve("boost_1_60_0")

	runner.Handle(func(cmd shell.Command) bool { return cmd.Name == "curl" }, shelltest.Response{
		Effect: func(cmd shell.Command) error {
			return os.WriteFile(cmd.Args[2], []byte("tarball"), 0644)
		}})

	runner.Handle(func(cmd shell.Command) bool { return cmd.Name == "tar" }, shelltest.Response{
		Effect: func(cmd shell.Command) error {
			templateDir := filepath.Join(sourceRoot, "tools", "build", "example")
			if err := os.MkdirAll(templateDir, 0755); err != nil {
				return err
			}
			return os.WriteFile(filepath.Join(templateDir, "user-config.jam"), []byte("# template\n"), 0644)
		}})

	runner.Handle(func(cmd shell.Command) bool {
		return cmd.Name == "./b2" && len(cmd.Args) == 1 && cmd.Args[0] == "tools/bcp"
	}, shelltest.Response{Effect: func(cmd shell.Command) error {
		bcp := filepath.Join(sourceRoot, "dist", "bin", "bcp")
		if err := os.MkdirAll(filepath.Dir(bcp), 0755); err != nil {
			return err
		}
		return os.WriteFile(bcp, []byte("bcp"), 0755)
	}})

	runner.Handle(func(cmd shell.Command) bool {
		return cmd.Name == "./b2" && cmd.Args[len(cmd.Args)-1] == "stage"
	}, shelltest.Response{Effect: func(cmd shell.Command) error {
		var buildDir string
		for _, arg := range cmd.Args {
			if strings.HasPrefix(arg, "--build-dir=") {
				buildDir = strings.TrimPrefix(arg, "--build-dir=")
			}
		}
		libDir := filepath.Join(sourceRoot, buildDir, "stage", "lib")
		if err := os.MkdirAll(libDir, 0755); err != nil {
			return err
		}
		for _, name := range []string{"libboost_chrono.a", "libboost_system.a", "libboost_thread.a"} {
			if err := os.WriteFile(filepath.Join(libDir, name), []byte(name), 0644); err != nil {
				return err
			}
		}
		return nil
	}})

	runner.Handle(func(cmd shell.Command) bool {
		return cmd.Name == "xcrun" && len(cmd.Args) > 2 && cmd.Args[2] == "lipo"
	}, shelltest.Response{Effect: func(cmd shell.Command) error {
		return os.WriteFile(cmd.Args[7], []byte("slice"), 0644)
	}})

	runner.Handle(func(cmd shell.Command) bool {
		return cmd.Name == "ar" && cmd.Args[0] == "-x"
	}, shelltest.Response{Effect: func(cmd shell.Command) error {
		obj := strings.TrimSuffix(filepath.Base(cmd.Args[1]), ".a") + ".o"
		return os.WriteFile(filepath.Join(cmd.Dir, obj), []byte("obj"), 0644)
	}})

	runner.Handle(func(cmd shell.Command) bool {
		return cmd.Name == "xcrun" && len(cmd.Args) > 2 && cmd.Args[2] == "ar"
	}, shelltest.Response{Effect: func(cmd shell.Command) error {
		return os.WriteFile(filepath.Join(cmd.Dir, cmd.Args[4]), []byte("combined"), 0644)
	}})

	runner.Handle(func(cmd shell.Command) bool {
		return cmd.Name == "lipo" && cmd.Args[0] == "-c"
	}, shelltest.Response{Effect: func(cmd shell.Command) error {
		return os.WriteFile(filepath.Join(cmd.Dir, cmd.Args[len(cmd.Args)-1]), []byte("fat"), 0644)
	}})

	runner.Handle(func(cmd shell.Command) bool {
		return strings.HasSuffix(cmd.Name, "/bcp")
	}, shelltest.Response{Effect: func(cmd shell.Command) error {
		boostDir := filepath.Join(e.Resolve("src"), "boost")
		if err := os.MkdirAll(boostDir, 0755); err != nil {
			return err
		}
		return os.WriteFile(filepath.Join(boostDir, "version.hpp"), []byte("// version"), 0644)
	}})

	return &harness{cfg: cfg, env: e, runner: runner, root: root}
}

// buildInvocations filters the recorded commands down to the b2 build
// phases, rendered as "<platform> <phase>".
func buildInvocations(runner *shelltest.Runner) []string {
	var out []string
	for _, call := range runner.Calls() {
		if call.Name != "./b2" {
			continue
		}
		phase := call.Args[len(call.Args)-1]
		if phase != "stage" && phase != "install" {
			continue
		}
		for _, arg := range call.Args {
			if strings.HasPrefix(arg, "--build-dir=") {
				platform := strings.TrimSuffix(strings.TrimPrefix(arg, "--build-dir="), "-build")
				out = append(out, platform+" "+phase)
			}
		}
	}
	return out
}

func TestPipelineRunsStagesInOrder(t *testing.T) {
	h := newHarness(t)

	pipeline := orchestrator.New(h.cfg, h.env, h.runner, arbor.NewLogger())
	require.NoError(t, pipeline.Run(context.Background()))

	assert.Equal(t, []string{
		"ios stage",
		"ios install",
		"simulator stage",
		"osx stage",
	}, buildInvocations(h.runner))

	assert.FileExists(t, filepath.Join(h.root, "lib", "ios", "libboost.a"))
	assert.FileExists(t, filepath.Join(h.root, "lib", "osx", "libboost.a"))
	assert.FileExists(t, filepath.Join(h.root, "include", "boost", "version.hpp"))

	_, err := os.Stat(h.env.BuildDir)
	assert.True(t, os.IsNotExist(err), "build directory is removed after a successful run")
}

func TestPipelineKeepBuild(t *testing.T) {
	h := newHarness(t)
	h.cfg.Build.KeepBuild = true

	pipeline := orchestrator.New(h.cfg, h.env, h.runner, arbor.NewLogger())
	require.NoError(t, pipeline.Run(context.Background()))

	info, err := os.Stat(h.env.BuildDir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestPipelineFailsFastOnBuildError(t *testing.T) {
	h := newHarness(t)

	// The simulator stage build breaks; nothing after it may run.
	h.runner.Handle(func(cmd shell.Command) bool {
		if cmd.Name != "./b2" {
			return false
		}
		for _, arg := range cmd.Args {
			if arg == "toolset=darwin-9.3~iphonesim" {
				return true
			}
		}
		return false
	}, shelltest.Response{Status: 1, Output: "...failed updating 12 targets..."})

	pipeline := orchestrator.New(h.cfg, h.env, h.runner, arbor.NewLogger())
	err := pipeline.Run(context.Background())
	require.ErrorIs(t, err, shell.ErrCommandFailed)

	assert.Equal(t, []string{
		"ios stage",
		"ios install",
		"simulator stage",
	}, buildInvocations(h.runner), "the osx build must never start")

	for _, call := range h.runner.Calls() {
		assert.NotEqual(t, "lipo", call.Name, "packaging must never start after a failed build")
	}
}

func TestPipelineSecondRunSkipsAcquisition(t *testing.T) {
	h := newHarness(t)
	h.cfg.Build.KeepBuild = true

	pipeline := orchestrator.New(h.cfg, h.env, h.runner, arbor.NewLogger())
	require.NoError(t, pipeline.Run(context.Background()))

	firstCalls := len(h.runner.Calls())
	require.NoError(t, pipeline.Run(context.Background()))

	for _, call := range h.runner.Calls()[firstCalls:] {
		assert.NotEqual(t, "curl", call.Name, "tarball must not be re-downloaded")
		assert.NotEqual(t, "tar", call.Name, "source must not be re-unpacked")
	}
}
