package source

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/FiftyThree/boost/internal/env"
)

// Stanza is one darwin toolset block in user-config.jam. Rendering every
// target triple through the same record keeps the three stanzas structurally
// identical; only the values differ.
type Stanza struct {
	SDKVersion    string   // SDK version half of the toolset name, e.g. "9.3"
	SDKTag        string   // toolset name suffix: "iphone", "iphonesim", "osx"
	CompilerPath  string   // absolute compiler path inside the toolchain
	Archs         []string // -arch flags
	SysRoot       string   // SDK root passed via -isysroot
	IncludeDir    string   // explicit SDK include path
	DeveloperRoot string   // <root> platform developer directory
	Architecture  string   // b2 <architecture> tag: "arm" or "x86"
	TargetOS      string   // b2 <target-os> tag: "iphone" or "darwin"
}

// Name returns the toolset name b2 selects on, e.g. "9.3~iphone".
func (s Stanza) Name() string {
	return s.SDKVersion + "~" + s.SDKTag
}

// Render produces the user-config.jam block for this stanza.
func (s Stanza) Render() string {
	archFlags := make([]string, 0, len(s.Archs))
	for _, arch := range s.Archs {
		archFlags = append(archFlags, "-arch "+arch)
	}
	return fmt.Sprintf(
		"\nusing darwin : %s\n"+
			": %s %s \"-isysroot %s\" -I%s\n"+
			": <striper> <root>%s\n"+
			": <architecture>%s <target-os>%s\n"+
			";\n",
		s.Name(),
		s.CompilerPath, strings.Join(archFlags, " "), s.SysRoot, s.IncludeDir,
		s.DeveloperRoot,
		s.Architecture, s.TargetOS)
}

// DefaultStanzas returns the three target triples: iOS device, iOS
// simulator, and macOS.
func DefaultStanzas(e *env.Environment, compiler string) []Stanza {
	compilerPath := filepath.Join(e.XcodeRoot, "Toolchains", "XcodeDefault.xctoolchain", "usr", "bin", compiler)
	return []Stanza{
		{
			SDKVersion:    e.IOSSDKVersion,
			SDKTag:        "iphone",
			CompilerPath:  compilerPath,
			Archs:         []string{"armv7", "arm64"},
			SysRoot:       e.DeviceSDKRoot(),
			IncludeDir:    filepath.Join(e.DeviceSDKRoot(), "usr", "include"),
			DeveloperRoot: filepath.Join(e.XcodeRoot, "Platforms", "iPhoneOS.platform", "Developer"),
			Architecture:  "arm",
			TargetOS:      "iphone",
		},
		{
			SDKVersion:    e.IOSSDKVersion,
			SDKTag:        "iphonesim",
			CompilerPath:  compilerPath,
			Archs:         []string{"i386", "x86_64"},
			SysRoot:       e.SimulatorSDKRoot(),
			IncludeDir:    filepath.Join(e.SimulatorSDKRoot(), "usr", "include"),
			DeveloperRoot: filepath.Join(e.XcodeRoot, "Platforms", "iPhoneSimulator.platform", "Developer"),
			Architecture:  "x86",
			TargetOS:      "iphone",
		},
		{
			SDKVersion:    e.OSXSDKVersion,
			SDKTag:        "osx",
			CompilerPath:  compilerPath,
			Archs:         []string{"i386", "x86_64"},
			SysRoot:       e.OSXSDKRoot(),
			IncludeDir:    filepath.Join(e.OSXSDKRoot(), "usr", "include"),
			DeveloperRoot: filepath.Join(e.XcodeRoot, "Platforms", "MacOSX.platform", "Developer"),
			Architecture:  "x86",
			TargetOS:      "darwin",
		},
	}
}

// WriteConfig creates user-config.jam by copying the template shipped inside
// the source tree and appending one stanza per target triple. Regeneration
// is skipped when the file already exists.
func (d *Distribution) WriteConfig(stanzas []Stanza) error {
	if fileExists(d.ConfigPath) {
		d.logger.Info().Str("path", d.ConfigPath).Msg("Found build configuration")
		return nil
	}

	templatePath := d.Resolve(filepath.Join("tools", "build", "example", "user-config.jam"))
	if !fileExists(templatePath) {
		return fmt.Errorf("%w: %s", ErrMissingFile, templatePath)
	}
	if err := copyFile(templatePath, d.ConfigPath); err != nil {
		return fmt.Errorf("failed to copy config template: %w", err)
	}

	f, err := os.OpenFile(d.ConfigPath, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", d.ConfigPath, err)
	}

	for _, stanza := range stanzas {
		if _, err := f.WriteString(stanza.Render()); err != nil {
			f.Close()
			return fmt.Errorf("failed to append stanza %s: %w", stanza.Name(), err)
		}
		d.logger.Debug().Str("toolset", "darwin-"+stanza.Name()).Msg("Appended toolset stanza")
	}

	return f.Close()
}
