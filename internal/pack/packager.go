// -----------------------------------------------------------------------
// Archive Packager - Thin, decompose, recombine, and fatten static archives
// -----------------------------------------------------------------------

package pack

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/FiftyThree/boost/internal/build"
	"github.com/FiftyThree/boost/internal/env"
	"github.com/FiftyThree/boost/internal/shell"
	"github.com/FiftyThree/boost/internal/source"
)

// InputPolicy states whether a packaging input is allowed to be absent.
// Boost sub-libraries are not built for every architecture, so an archive
// missing from one platform's stage output is expected, not an error.
type InputPolicy int

const (
	InputRequired InputPolicy = iota
	InputOptional
)

// CombinedName is the single-library archive produced per architecture and
// per platform family.
const CombinedName = "libboost.a"

// Packager turns per-platform stage outputs into one fat static archive per
// platform family.
type Packager struct {
	env    *env.Environment
	dist   *source.Distribution
	runner shell.Runner
	logger arbor.ILogger
	onLine shell.LineFunc

	iosLibDir string
	osxLibDir string
}

// NewPackager lays out the packaging staging area under the build tree.
func NewPackager(e *env.Environment, dist *source.Distribution, runner shell.Runner, logger arbor.ILogger, onLine shell.LineFunc) *Packager {
	libDir := e.Resolve("lib")
	return &Packager{
		env:       e,
		dist:      dist,
		runner:    runner,
		logger:    logger,
		onLine:    onLine,
		iosLibDir: filepath.Join(libDir, "ios"),
		osxLibDir: filepath.Join(libDir, "osx"),
	}
}

// Run executes the packaging fan-out: every architecture of every platform
// family is processed before the cross-architecture merge, which would
// otherwise fail on missing inputs.
func (p *Packager) Run(ctx context.Context) error {
	archives, err := p.archiveNames()
	if err != nil {
		return err
	}
	p.logger.Info().Strs("archives", archives).Msg("Packaging staged archives")

	// Stage archives are optional inputs: a sub-library that never built
	// for a platform simply contributes nothing to that family's archive.
	if err := p.separateArchitectures(ctx, archives, InputOptional); err != nil {
		return err
	}
	if err := p.combineArchitectures(ctx); err != nil {
		return err
	}
	if err := p.createFatArchives(ctx); err != nil {
		return err
	}
	return p.install()
}

// familyDir maps a platform to the directory its slices accumulate in:
// device and simulator slices merge into one iOS archive, macOS stands alone.
func (p *Packager) familyDir(platform build.Platform) string {
	if platform == build.PlatformOSX {
		return p.osxLibDir
	}
	return p.iosLibDir
}

func familySDK(familyDir string) string {
	if filepath.Base(familyDir) == "osx" {
		return "macosx"
	}
	return "iphoneos"
}

func (p *Packager) stageLibDir(platform build.Platform) string {
	return p.dist.Resolve(filepath.Join(string(platform)+"-build", "stage", "lib"))
}

// archiveNames returns the union of archive file names across every
// platform's stage output, sorted for deterministic processing order.
func (p *Packager) archiveNames() ([]string, error) {
	seen := make(map[string]bool)
	for _, platform := range build.Platforms {
		dir := p.stageLibDir(platform)
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("failed to list stage output %s: %w", dir, err)
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				seen[entry.Name()] = true
			}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// separateArchitectures thins every staged archive into per-architecture
// slices and decomposes each slice into object files under
// <family>/<arch>/obj. The policy decides whether an archive absent from a
// platform's stage directory is skipped or fails the run.
func (p *Packager) separateArchitectures(ctx context.Context, archives []string, policy InputPolicy) error {
	for _, platform := range build.Platforms {
		inputDir := p.stageLibDir(platform)
		outputDir := p.familyDir(platform)
		sdk := platform.SDK()
		if err := os.MkdirAll(outputDir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", outputDir, err)
		}
		for _, archive := range archives {
			inputPath := filepath.Join(inputDir, archive)
			if !fileExists(inputPath) {
				if policy == InputRequired {
					return fmt.Errorf("archive %s not staged for %s", archive, platform)
				}
				p.logger.Debug().
					Str("archive", archive).
					Str("platform", string(platform)).
					Msg("Archive not staged for platform, skipping")
				continue
			}
			for _, arch := range platform.Architectures() {
				if err := p.extractSlice(ctx, sdk, inputPath, outputDir, archive, arch); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// extractSlice thins one architecture out of an archive and unpacks the
// slice's object files into the architecture's shared obj directory.
func (p *Packager) extractSlice(ctx context.Context, sdk, inputPath, outputDir, archive, arch string) error {
	archDir := filepath.Join(outputDir, arch)
	objDir := filepath.Join(archDir, "obj")
	if err := os.MkdirAll(objDir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", objDir, err)
	}

	slicePath := filepath.Join(archDir, archive)
	err := shell.Run(ctx, p.runner, shell.Command{
		Name: "xcrun",
		Args: []string{"--sdk", sdk, "lipo", inputPath, "-thin", arch, "-o", slicePath},
	}, p.onLine)
	if err != nil {
		return err
	}

	return shell.Run(ctx, p.runner, shell.Command{
		Name: "ar",
		Args: []string{"-x", slicePath},
		Dir:  objDir,
	}, p.onLine)
}

// combineArchitectures assembles every architecture's accumulated object
// files into one combined archive per architecture directory.
func (p *Packager) combineArchitectures(ctx context.Context) error {
	for _, familyDir := range []string{p.iosLibDir, p.osxLibDir} {
		archDirs, err := subdirectories(familyDir)
		if err != nil {
			return err
		}
		for _, arch := range archDirs {
			archDir := filepath.Join(familyDir, arch)
			objects, err := objectFiles(filepath.Join(archDir, "obj"))
			if err != nil {
				return err
			}
			if len(objects) == 0 {
				continue
			}

			combined := filepath.Join(archDir, CombinedName)
			if fileExists(combined) {
				if err := os.Remove(combined); err != nil {
					return fmt.Errorf("failed to remove stale %s: %w", combined, err)
				}
			}

			args := append([]string{"--sdk", familySDK(familyDir), "ar", "crus", CombinedName}, objects...)
			err = shell.Run(ctx, p.runner, shell.Command{
				Name: "xcrun",
				Args: args,
				Dir:  archDir,
			}, p.onLine)
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// createFatArchives merges each family's per-architecture combined archives
// into a single multi-architecture archive.
func (p *Packager) createFatArchives(ctx context.Context) error {
	for _, familyDir := range []string{p.iosLibDir, p.osxLibDir} {
		archDirs, err := subdirectories(familyDir)
		if err != nil {
			return err
		}
		var archLibs []string
		for _, arch := range archDirs {
			archLib := filepath.Join(arch, CombinedName)
			if fileExists(filepath.Join(familyDir, archLib)) {
				archLibs = append(archLibs, archLib)
			}
		}
		if len(archLibs) == 0 {
			return fmt.Errorf("no architecture archives found under %s", familyDir)
		}

		fatPath := filepath.Join(familyDir, CombinedName)
		if fileExists(fatPath) {
			if err := os.Remove(fatPath); err != nil {
				return fmt.Errorf("failed to remove stale %s: %w", fatPath, err)
			}
		}

		args := append([]string{"-c"}, archLibs...)
		args = append(args, "-output", CombinedName)
		err = shell.Run(ctx, p.runner, shell.Command{
			Name: "lipo",
			Args: args,
			Dir:  familyDir,
		}, p.onLine)
		if err != nil {
			return err
		}
	}
	return nil
}

// install copies the fat archives into the output lib directory, preserving
// the ios/ and osx/ family structure.
func (p *Packager) install() error {
	for _, familyDir := range []string{p.iosLibDir, p.osxLibDir} {
		family := filepath.Base(familyDir)
		src := filepath.Join(familyDir, CombinedName)
		dst := filepath.Join(p.env.OutputLibDir, family, CombinedName)
		if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", filepath.Dir(dst), err)
		}
		if err := copyFile(src, dst); err != nil {
			return fmt.Errorf("failed to install %s: %w", dst, err)
		}
		p.logger.Info().Str("archive", dst).Msg("Installed fat archive")
	}
	return nil
}

func subdirectories(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// objectFiles lists an obj directory's *.o entries as paths relative to the
// architecture directory, the form the archive tool is invoked with.
func objectFiles(objDir string) ([]string, error) {
	entries, err := os.ReadDir(objDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list %s: %w", objDir, err)
	}
	var objects []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".o") {
			objects = append(objects, filepath.Join("obj", entry.Name()))
		}
	}
	sort.Strings(objects)
	return objects, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0644)
}
