package lens

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"sync"

	"golang.org/x/mod/modfile"
)

const unknownOrigin = "unknown"

// OriginDetector resolves the origin of envelopes when none is configured.
type OriginDetector interface {
	DetectOrigin() string
}

// OriginDetectorFunc adapts a function to OriginDetector.
type OriginDetectorFunc func() string

func (f OriginDetectorFunc) DetectOrigin() string {
	return f()
}

type moduleOriginDetector struct {
	dir    string
	once   sync.Once
	origin string
}

// NewOriginDetector returns a detector that reports the module path of the nearest go.mod at or
// above dir (the working directory when empty), falling back to the build info main module and
// finally the executable name. The result is computed once.
func NewOriginDetector(dir string) OriginDetector {
	return &moduleOriginDetector{dir: dir}
}

func (d *moduleOriginDetector) DetectOrigin() string {
	d.once.Do(func() {
		d.origin = detectOrigin(d.dir)
	})
	return d.origin
}

func detectOrigin(dir string) string {
	if dir == "" {
		if wd, err := os.Getwd(); err == nil {
			dir = wd
		}
	}
	if dir != "" {
		if modPath, err := FindModulePath(dir); err == nil && modPath != "" {
			return modPath
		}
	}
	if bi, ok := debug.ReadBuildInfo(); ok && bi.Main.Path != "" {
		return bi.Main.Path
	}
	if exe, err := os.Executable(); err == nil {
		return filepath.Base(exe)
	}
	return unknownOrigin
}

var errNoGoMod = errors.New("no go.mod found")

// FindModulePath returns the module path declared by the nearest go.mod at or above dir.
func FindModulePath(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	for {
		goModFile := filepath.Join(dir, "go.mod")
		if data, err := os.ReadFile(goModFile); err == nil {
			f, err := modfile.Parse(goModFile, data, nil)
			if err != nil {
				return "", fmt.Errorf("parse %s failed: %w", goModFile, err)
			} else if f.Module == nil {
				return "", fmt.Errorf("%s has no module directive", goModFile)
			}
			return f.Module.Mod.Path, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("read %s failed: %w", goModFile, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errNoGoMod
		}
		dir = parent
	}
}
