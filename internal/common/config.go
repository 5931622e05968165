package common

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the full build configuration. Priority:
// CLI flags > environment variables > last config file > ... > defaults.
type Config struct {
	Boost   BoostConfig   `toml:"boost"`
	Build   BuildConfig   `toml:"build"`
	Logging LoggingConfig `toml:"logging"`
}

// BoostConfig identifies the source distribution and what to take from it.
type BoostConfig struct {
	Version            string   `toml:"version" validate:"required"`
	Libraries          []string `toml:"libraries" validate:"min=1"`               // compiled libraries, passed to bootstrap and bcp
	Headers            []string `toml:"headers"`                                  // header-only subset, passed to bcp
	TarballURLTemplate string   `toml:"tarball_url_template" validate:"required"` // {dotted} and {underscored} placeholders
}

// BuildConfig drives the b2 invocations.
type BuildConfig struct {
	Jobs          int    `toml:"jobs" validate:"min=1"` // b2 -j value; delegated parallelism, opaque to this process
	Compiler      string `toml:"compiler" validate:"required"`
	CPPStd        string `toml:"cpp_std" validate:"required"`
	StdLib        string `toml:"std_lib" validate:"required"`
	IOSMinVersion string `toml:"ios_min_version" validate:"required"`
	OSXMinVersion string `toml:"osx_min_version" validate:"required"`
	KeepBuild     bool   `toml:"keep_build"` // skip cleanup of the transient build tree
}

// LoggingConfig controls the arbor logger.
type LoggingConfig struct {
	Level   string   `toml:"level"`   // "debug", "info", "warn", "error"
	Output  []string `toml:"output"`  // "stdout", "file"
	Verbose bool     `toml:"verbose"` // echo every line of subprocess output
}

var versionPattern = regexp.MustCompile(`^\d+\.\d+\.\d+$`)

// NewDefaultConfig returns the configuration matching the stock FiftyThree
// Boost build: version 1.60.0, the chrono/thread/system compiled libraries,
// and the header subset the apps depend on.
func NewDefaultConfig() *Config {
	return &Config{
		Boost: BoostConfig{
			Version:   "1.60.0",
			Libraries: []string{"chrono", "thread", "system"},
			Headers: []string{
				"algorithm",
				"any",
				"exception",
				"iostreams",
				"optional",
				"typeof",
				"variant",
				"boost/circular_buffer.hpp",
				"boost/container/flat_map.hpp",
				"boost/container/flat_set.hpp",
				"boost/scope_exit.hpp",
				"boost/uuid/sha1.hpp",
			},
			TarballURLTemplate: "http://sourceforge.net/projects/boost/files/boost/{dotted}/boost_{underscored}.tar.bz2/download",
		},
		Build: BuildConfig{
			Jobs:          16,
			Compiler:      "clang++",
			CPPStd:        "c++14",
			StdLib:        "libc++",
			IOSMinVersion: "8.0",
			OSXMinVersion: "10.9",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout"},
		},
	}
}

// LoadFromFiles loads configuration with priority: defaults -> file1 ->
// file2 -> ... -> env. Later files override earlier ones.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for _, path := range paths {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies BOOSTBUILD_* environment variable overrides.
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("BOOSTBUILD_VERSION"); v != "" {
		config.Boost.Version = v
	}
	if v := os.Getenv("BOOSTBUILD_LIBRARIES"); v != "" {
		config.Boost.Libraries = splitList(v)
	}
	if v := os.Getenv("BOOSTBUILD_JOBS"); v != "" {
		if jobs, err := strconv.Atoi(v); err == nil {
			config.Build.Jobs = jobs
		}
	}
	if v := os.Getenv("BOOSTBUILD_KEEP_BUILD"); v != "" {
		config.Build.KeepBuild = v == "1" || strings.EqualFold(v, "true")
	}
	if v := os.Getenv("BOOSTBUILD_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
	if v := os.Getenv("BOOSTBUILD_LOG_OUTPUT"); v != "" {
		config.Logging.Output = splitList(v)
	}
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// ApplyFlagOverrides applies command-line flag overrides, the highest
// priority layer.
func ApplyFlagOverrides(config *Config, verbose bool) {
	if verbose {
		config.Logging.Verbose = true
	}
}

// Validate checks the assembled configuration before any work starts.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if !versionPattern.MatchString(c.Boost.Version) {
		return fmt.Errorf("invalid configuration: boost version %q is not a dotted triple", c.Boost.Version)
	}
	return nil
}
