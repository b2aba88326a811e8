// Package layout owns the on-disk structure of a managed server directory:
// <base>/servers/<name>/ with the Forge jar, launch script, generated
// config files, install log, mods directory and mod ledger.
package layout

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/loykin/forgekeeper/internal/model"
)

const (
	serversDir    = "servers"
	forgeJar      = "forge.jar"
	jvmArgsFile   = "user_jvm_args.txt"
	eulaFile      = "eula.txt"
	installLog    = "install.log"
	modsDir       = "mods"
	modLedgerFile = "mods.txt"
	eulaAccepted  = "eula=true"
)

// Layout resolves the paths of a single server directory.
type Layout struct {
	name string
	dir  string
}

// New validates name and returns the layout for it under baseDir.
// No filesystem access happens here.
func New(baseDir, name string) (Layout, error) {
	if strings.TrimSpace(baseDir) == "" {
		return Layout{}, fmt.Errorf("%w: empty base directory", model.ErrInvalidRequest)
	}
	if err := ValidateName(name); err != nil {
		return Layout{}, err
	}
	return Layout{name: name, dir: filepath.Join(baseDir, serversDir, name)}, nil
}

// ValidateName rejects names that could escape the servers directory or
// are not valid file names on common platforms.
func ValidateName(name string) error {
	return validateSegment("server name", name, `\/:*?"<>|`)
}

// ValidateModID applies the server name rules to a mod id and also rejects
// the ledger delimiter, so every id maps to one jar directly inside mods/.
func ValidateModID(id string) error {
	return validateSegment("mod id", id, `\/:*?"<>|,`)
}

func validateSegment(kind, s, forbidden string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: empty %s", model.ErrInvalidRequest, kind)
	}
	if s == "." || strings.Contains(s, "..") || strings.ContainsAny(s, forbidden) {
		return fmt.Errorf("%w: %s %q contains forbidden characters", model.ErrInvalidRequest, kind, s)
	}
	for _, r := range s {
		if r < 0x20 || r == 0x7f {
			return fmt.Errorf("%w: %s %q contains control characters", model.ErrInvalidRequest, kind, s)
		}
	}
	return nil
}

func (l Layout) Name() string        { return l.name }
func (l Layout) Dir() string         { return l.dir }
func (l Layout) ForgeJar() string    { return filepath.Join(l.dir, forgeJar) }
func (l Layout) JVMArgsFile() string { return filepath.Join(l.dir, jvmArgsFile) }
func (l Layout) EULAFile() string    { return filepath.Join(l.dir, eulaFile) }
func (l Layout) InstallLog() string  { return filepath.Join(l.dir, installLog) }
func (l Layout) ModsDir() string     { return filepath.Join(l.dir, modsDir) }
func (l Layout) ModLedger() string   { return filepath.Join(l.dir, modLedgerFile) }

// ModJar is the download target of a mod.
func (l Layout) ModJar(id string) string { return filepath.Join(l.ModsDir(), id+".jar") }

// LaunchScriptName is the platform launch script the Forge installer generates.
func LaunchScriptName() string {
	if runtime.GOOS == "windows" {
		return "run.bat"
	}
	return "run.sh"
}

func (l Layout) LaunchScript() string { return filepath.Join(l.dir, LaunchScriptName()) }

// Installed reports whether the launch script exists, which is the marker
// of a completed Forge install.
func (l Layout) Installed() bool {
	fi, err := os.Stat(l.LaunchScript())
	return err == nil && !fi.IsDir()
}

// Prepare creates the server directory if it does not exist.
func (l Layout) Prepare() error {
	if err := os.MkdirAll(l.dir, 0o750); err != nil {
		return fmt.Errorf("create server directory: %w", err)
	}
	return nil
}

// PrepareMods creates the mods directory if it does not exist.
func (l Layout) PrepareMods() error {
	if err := os.MkdirAll(l.ModsDir(), 0o750); err != nil {
		return fmt.Errorf("create mods directory: %w", err)
	}
	return nil
}

// WriteJVMArgs writes one JVM flag per line to user_jvm_args.txt.
func (l Layout) WriteJVMArgs(args []string) error {
	if len(args) == 0 {
		return errors.New("no jvm arguments")
	}
	return writeFile(l.JVMArgsFile(), []byte(strings.Join(args, "\n")))
}

// WriteEULA records acceptance of the Minecraft EULA.
func (l Layout) WriteEULA() error {
	return writeFile(l.EULAFile(), []byte(eulaAccepted))
}

// WriteInstallLog replaces install.log with content.
func (l Layout) WriteInstallLog(content []byte) error {
	return writeFile(l.InstallLog(), content)
}

func writeFile(path string, b []byte) error {
	if err := os.WriteFile(path, b, 0o640); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}
