// -----------------------------------------------------------------------
// Boost Source Distribution - Download, unpack, patch, bootstrap
// -----------------------------------------------------------------------

package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/FiftyThree/boost/internal/env"
	"github.com/FiftyThree/boost/internal/shell"
)

// ErrMissingFile indicates a file a stage requires was not found where the
// prior stage should have left it.
var ErrMissingFile = errors.New("missing expected file")

// missingHeaders are absent from the ARM iPhoneOS SDK but present in the
// simulator SDK. They are supported on device, so they get copied from the
// x86 SDK into the source tree for the ARM build to pick up.
var missingHeaders = []string{"crt_externs.h", "bzlib.h"}

// Distribution identifies one version of the Boost source package and the
// paths derived from it. All derivations are fixed at construction.
type Distribution struct {
	Version           string
	VersionUnderscore string
	DirName           string
	Root              string
	TarballName       string
	TarballPath       string
	TarballURL        string
	ConfigPath        string

	Libraries []string

	env    *env.Environment
	runner shell.Runner
	logger arbor.ILogger
	onLine shell.LineFunc
}

// NewDistribution derives every path for the given version under the build
// environment. urlTemplate uses {dotted} and {underscored} placeholders.
func NewDistribution(e *env.Environment, runner shell.Runner, logger arbor.ILogger, onLine shell.LineFunc, version, urlTemplate string, libraries []string) *Distribution {
	underscored := Underscore(version)
	dirName := "boost_" + underscored
	return &Distribution{
		Version:           version,
		VersionUnderscore: underscored,
		DirName:           dirName,
		Root:              e.Resolve(dirName),
		TarballName:       dirName + ".tar.bz2",
		TarballPath:       e.Resolve(dirName + ".tar.bz2"),
		TarballURL:        TarballURL(urlTemplate, version),
		ConfigPath:        filepath.Join(e.Resolve(dirName), "user-config.jam"),
		Libraries:         libraries,
		env:               e,
		runner:            runner,
		logger:            logger,
		onLine:            onLine,
	}
}

// Underscore converts a dotted version to its underscored form, e.g.
// "1.60.0" -> "1_60_0".
func Underscore(version string) string {
	return strings.Join(strings.Split(version, "."), "_")
}

// TarballURL renders the download URL for a version from a template with
// {dotted} and {underscored} placeholders.
func TarballURL(template, version string) string {
	url := strings.ReplaceAll(template, "{dotted}", version)
	return strings.ReplaceAll(url, "{underscored}", Underscore(version))
}

// Resolve joins a path relative to the unpacked source root.
func (d *Distribution) Resolve(rel string) string {
	return filepath.Join(d.Root, rel)
}

// Download fetches the tarball unless it is already on disk. A failing
// fetch is fatal to the run.
func (d *Distribution) Download(ctx context.Context) error {
	if fileExists(d.TarballPath) {
		d.logger.Info().Str("path", d.TarballPath).Msgf("Found Boost %s tarball", d.Version)
		return nil
	}

	d.logger.Info().Str("url", d.TarballURL).Msgf("Downloading Boost %s tarball", d.Version)
	return shell.Run(ctx, d.runner, shell.Command{
		Name: "curl",
		Args: []string{"-L", "-o", d.TarballPath, d.TarballURL},
	}, d.onLine)
}

// Unpack extracts the tarball into the build root unless the source tree is
// already there. An existing tree satisfies the stage even without a tarball.
func (d *Distribution) Unpack(ctx context.Context) error {
	if dirExists(d.Root) {
		d.logger.Info().Str("path", d.Root).Msgf("Found Boost %s source", d.Version)
		return nil
	}
	if !fileExists(d.TarballPath) {
		return fmt.Errorf("%w: %s", ErrMissingFile, d.TarballPath)
	}

	d.logger.Info().Str("dir", d.env.BuildDir).Msgf("Unpacking Boost %s tarball", d.Version)
	return shell.Run(ctx, d.runner, shell.Command{
		Name: "tar",
		Args: []string{"xfj", d.TarballPath},
		Dir:  d.env.BuildDir,
	}, d.onLine)
}

// PatchHeaders copies headers missing from the device SDK out of the
// simulator SDK into the source root. A header absent from the simulator
// SDK is fatal; a copy already in place is skipped.
func (d *Distribution) PatchHeaders() error {
	simulatorInclude := filepath.Join(d.env.SimulatorSDKRoot(), "usr", "include")
	for _, name := range missingHeaders {
		src := filepath.Join(simulatorInclude, name)
		if !fileExists(src) {
			return fmt.Errorf("%w: %s", ErrMissingFile, src)
		}
		dst := d.Resolve(name)
		if fileExists(dst) {
			continue
		}
		d.logger.Info().Str("header", name).Msg("Copying SDK header into source tree")
		if err := copyFile(src, dst); err != nil {
			return fmt.Errorf("failed to copy %s: %w", name, err)
		}
	}
	return nil
}

// Bootstrap runs the source tree's own bootstrap step restricted to the
// configured libraries.
func (d *Distribution) Bootstrap(ctx context.Context) error {
	d.logger.Info().Strs("libraries", d.Libraries).Msgf("Bootstrapping Boost %s", d.Version)
	return shell.Run(ctx, d.runner, shell.Command{
		Name: "./bootstrap.sh",
		Args: []string{"--with-libraries=" + strings.Join(d.Libraries, ",")},
		Dir:  d.Root,
	}, d.onLine)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
