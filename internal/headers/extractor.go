// -----------------------------------------------------------------------
// Header Extraction - Build bcp and prune the header tree
// -----------------------------------------------------------------------

package headers

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/ternarybob/arbor"

	"github.com/FiftyThree/boost/internal/env"
	"github.com/FiftyThree/boost/internal/shell"
	"github.com/FiftyThree/boost/internal/source"
)

// Extractor builds Boost's own bcp tool and uses it to copy the minimal
// header subset into the output include directory.
type Extractor struct {
	env    *env.Environment
	dist   *source.Distribution
	runner shell.Runner
	logger arbor.ILogger
	onLine shell.LineFunc

	// Names holds the compiled libraries plus header-only modules handed
	// to bcp.
	Names []string
}

// NewExtractor prepares header extraction for the given dependency names.
func NewExtractor(e *env.Environment, dist *source.Distribution, runner shell.Runner, logger arbor.ILogger, onLine shell.LineFunc, names []string) *Extractor {
	return &Extractor{
		env:    e,
		dist:   dist,
		runner: runner,
		logger: logger,
		onLine: onLine,
		Names:  names,
	}
}

// BCPPath is where the source tree's build drops the bcp binary.
func (x *Extractor) BCPPath() string {
	return x.dist.Resolve(filepath.Join("dist", "bin", "bcp"))
}

// srcDir is the staging area bcp extracts into before installation.
func (x *Extractor) srcDir() string {
	return x.env.Resolve("src")
}

// Run builds bcp if needed, extracts the header subset, and replaces the
// output include tree.
func (x *Extractor) Run(ctx context.Context) error {
	if err := x.buildBCP(ctx); err != nil {
		return err
	}
	if err := x.extract(ctx); err != nil {
		return err
	}
	return x.installHeaders()
}

// buildBCP builds the extraction tool once; a binary already on disk is
// reused.
func (x *Extractor) buildBCP(ctx context.Context) error {
	if fileExists(x.BCPPath()) {
		x.logger.Info().Str("path", x.BCPPath()).Msg("Found bcp")
		return nil
	}

	x.logger.Info().Msg("Building bcp")
	err := shell.Run(ctx, x.runner, shell.Command{
		Name: "./b2",
		Args: []string{"tools/bcp"},
		Dir:  x.dist.Root,
	}, x.onLine)
	if err != nil {
		return err
	}

	if !fileExists(x.BCPPath()) {
		return fmt.Errorf("%w: bcp not found at %s after build", source.ErrMissingFile, x.BCPPath())
	}
	return nil
}

// extract invokes bcp with the full dependency list and the staging target.
func (x *Extractor) extract(ctx context.Context) error {
	if _, err := x.env.MakeDir("src"); err != nil {
		return err
	}

	x.logger.Info().Strs("dependencies", x.Names).Msg("Extracting headers")
	args := append(append([]string{}, x.Names...), x.srcDir())
	return shell.Run(ctx, x.runner, shell.Command{
		Name: x.BCPPath(),
		Args: args,
		Dir:  x.dist.Root,
	}, x.onLine)
}

// installHeaders replaces the destination header tree wholesale: a stale
// tree merged with a new one could keep headers that no longer exist.
func (x *Extractor) installHeaders() error {
	dst := x.env.OutputIncludeDir
	if err := os.RemoveAll(dst); err != nil {
		return fmt.Errorf("failed to remove %s: %w", dst, err)
	}
	src := filepath.Join(x.srcDir(), "boost")
	if err := copyTree(src, dst); err != nil {
		return fmt.Errorf("failed to install headers: %w", err)
	}
	x.logger.Info().Str("dir", dst).Msg("Installed headers")
	return nil
}

// copyTree recursively copies a directory.
func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0755)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return os.WriteFile(target, data, 0644)
	})
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
