// -----------------------------------------------------------------------
// Build Environment - Toolchain probe and build-tree path bookkeeping
// -----------------------------------------------------------------------

package env

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ternarybob/arbor"

	"github.com/FiftyThree/boost/internal/shell"
)

// Environment holds the resolved toolchain and directory layout for one run.
// It is constructed once by Probe and never mutated afterwards.
type Environment struct {
	// Root is the invocation directory; everything else hangs off it.
	Root string
	// BuildDir is the transient working tree, removed at the end of a
	// successful run unless keep_build is set.
	BuildDir string

	XcodeRoot     string
	IOSSDKVersion string
	OSXSDKVersion string

	// OutputLibDir and OutputIncludeDir survive cleanup.
	OutputLibDir     string
	OutputIncludeDir string

	logger arbor.ILogger
}

// Probe queries the active developer toolchain and SDK versions and derives
// the directory layout under root. Probe results are used as opaque strings;
// a toolchain that reports nonsense surfaces later as a failing build, the
// same way the commands would fail at a prompt.
func Probe(ctx context.Context, runner shell.Runner, logger arbor.ILogger, root string) (*Environment, error) {
	xcodeRoot, err := shell.Output(ctx, runner, shell.Command{
		Name: "xcode-select",
		Args: []string{"-print-path"},
	})
	if err != nil {
		return nil, fmt.Errorf("probing Xcode root: %w", err)
	}

	iosSDK, err := shell.Output(ctx, runner, shell.Command{
		Name: "xcrun",
		Args: []string{"-sdk", "iphoneos", "--show-sdk-version"},
	})
	if err != nil {
		return nil, fmt.Errorf("probing iphoneos SDK version: %w", err)
	}

	osxSDK, err := shell.Output(ctx, runner, shell.Command{
		Name: "xcrun",
		Args: []string{"-sdk", "macosx", "--show-sdk-version"},
	})
	if err != nil {
		return nil, fmt.Errorf("probing macosx SDK version: %w", err)
	}

	e := New(logger, root, xcodeRoot, iosSDK, osxSDK)

	logger.Info().
		Str("xcode_root", e.XcodeRoot).
		Str("ios_sdk", e.IOSSDKVersion).
		Str("osx_sdk", e.OSXSDKVersion).
		Msg("Probed developer toolchain")

	return e, nil
}

// New derives the directory layout from already known probe results.
func New(logger arbor.ILogger, root, xcodeRoot, iosSDK, osxSDK string) *Environment {
	return &Environment{
		Root:             root,
		BuildDir:         filepath.Join(root, "build"),
		XcodeRoot:        xcodeRoot,
		IOSSDKVersion:    iosSDK,
		OSXSDKVersion:    osxSDK,
		OutputLibDir:     filepath.Join(root, "lib"),
		OutputIncludeDir: filepath.Join(root, "include", "boost"),
		logger:           logger,
	}
}

// SimulatorSDKRoot returns the iPhoneSimulator SDK directory for the probed
// SDK version.
func (e *Environment) SimulatorSDKRoot() string {
	return filepath.Join(e.XcodeRoot,
		fmt.Sprintf("Platforms/iPhoneSimulator.platform/Developer/SDKs/iPhoneSimulator%s.sdk", e.IOSSDKVersion))
}

// DeviceSDKRoot returns the iPhoneOS SDK directory for the probed SDK version.
func (e *Environment) DeviceSDKRoot() string {
	return filepath.Join(e.XcodeRoot,
		fmt.Sprintf("Platforms/iPhoneOS.platform/Developer/SDKs/iPhoneOS%s.sdk", e.IOSSDKVersion))
}

// OSXSDKRoot returns the MacOSX SDK directory for the probed SDK version.
func (e *Environment) OSXSDKRoot() string {
	return filepath.Join(e.XcodeRoot,
		fmt.Sprintf("Platforms/MacOSX.platform/Developer/SDKs/MacOSX%s.sdk", e.OSXSDKVersion))
}

// Resolve joins a path relative to the build directory.
func (e *Environment) Resolve(rel string) string {
	return filepath.Join(e.BuildDir, rel)
}

// MakeDir ensures a directory exists under the build tree and returns its
// absolute path.
func (e *Environment) MakeDir(rel string) (string, error) {
	path := e.Resolve(rel)
	if err := os.MkdirAll(path, 0755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", path, err)
	}
	return path, nil
}

// Prepare creates the build directory.
func (e *Environment) Prepare() error {
	_, err := e.MakeDir("")
	return err
}

// Cleanup removes the entire transient build tree. Output artifacts live
// outside it and are untouched.
func (e *Environment) Cleanup() error {
	e.logger.Info().Str("dir", e.BuildDir).Msg("Removing build directory")
	if err := os.RemoveAll(e.BuildDir); err != nil {
		return fmt.Errorf("failed to remove %s: %w", e.BuildDir, err)
	}
	return nil
}
