package env_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/FiftyThree/boost/internal/env"
	"github.com/FiftyThree/boost/internal/shell"
	"github.com/FiftyThree/boost/internal/shell/shelltest"
)

const xcodeRoot = "/Applications/Xcode.app/Contents/Developer"

func probeRunner() *shelltest.Runner {
	runner := shelltest.New()
	runner.HandlePrefix("xcode-select -print-path", shelltest.Response{Output: xcodeRoot + "\n"})
	runner.HandlePrefix("xcrun -sdk iphoneos --show-sdk-version", shelltest.Response{Output: "9.3\n"})
	runner.HandlePrefix("xcrun -sdk macosx --show-sdk-version", shelltest.Response{Output: "10.11\n"})
	return runner
}

func TestProbe(t *testing.T) {
	root := t.TempDir()
	runner := probeRunner()

	e, err := env.Probe(context.Background(), runner, arbor.NewLogger(), root)
	require.NoError(t, err)

	assert.Equal(t, root, e.Root)
	assert.Equal(t, filepath.Join(root, "build"), e.BuildDir)
	assert.Equal(t, xcodeRoot, e.XcodeRoot)
	assert.Equal(t, "9.3", e.IOSSDKVersion)
	assert.Equal(t, "10.11", e.OSXSDKVersion)
	assert.Equal(t, filepath.Join(root, "lib"), e.OutputLibDir)
	assert.Equal(t, filepath.Join(root, "include", "boost"), e.OutputIncludeDir)

	assert.Equal(t, []string{
		"xcode-select -print-path",
		"xcrun -sdk iphoneos --show-sdk-version",
		"xcrun -sdk macosx --show-sdk-version",
	}, runner.CallStrings())
}

func TestProbeFailsWhenToolchainMissing(t *testing.T) {
	runner := shelltest.New()
	runner.HandlePrefix("xcode-select", shelltest.Response{Status: 2, Output: "error: unable to get active developer directory"})

	_, err := env.Probe(context.Background(), runner, arbor.NewLogger(), t.TempDir())
	assert.ErrorIs(t, err, shell.ErrCommandFailed)
}

func TestSDKRoots(t *testing.T) {
	e := env.New(arbor.NewLogger(), "/work", xcodeRoot, "9.3", "10.11")

	assert.Equal(t, xcodeRoot+"/Platforms/iPhoneOS.platform/Developer/SDKs/iPhoneOS9.3.sdk", e.DeviceSDKRoot())
	assert.Equal(t, xcodeRoot+"/Platforms/iPhoneSimulator.platform/Developer/SDKs/iPhoneSimulator9.3.sdk", e.SimulatorSDKRoot())
	assert.Equal(t, xcodeRoot+"/Platforms/MacOSX.platform/Developer/SDKs/MacOSX10.11.sdk", e.OSXSDKRoot())
}

func TestResolveAndMakeDir(t *testing.T) {
	root := t.TempDir()
	e := env.New(arbor.NewLogger(), root, xcodeRoot, "9.3", "10.11")

	assert.Equal(t, filepath.Join(root, "build", "boost_1_60_0"), e.Resolve("boost_1_60_0"))

	path, err := e.MakeDir("lib/ios/armv7")
	require.NoError(t, err)
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestPrepareAndCleanup(t *testing.T) {
	root := t.TempDir()
	e := env.New(arbor.NewLogger(), root, xcodeRoot, "9.3", "10.11")

	require.NoError(t, e.Prepare())
	info, err := os.Stat(e.BuildDir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	require.NoError(t, e.Cleanup())
	_, err = os.Stat(e.BuildDir)
	assert.True(t, os.IsNotExist(err))
}
