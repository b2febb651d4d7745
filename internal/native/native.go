// Package native opens shared libraries and calls into them without cgo.
//
// Loading is backed by goffi, which requires a cgo-free build on linux, freebsd or
// darwin (amd64, arm64). Other builds compile a stub whose operations fail with
// ErrUnsupported.
package native

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"unsafe"
)

// Errors returned by this package.
var (
	ErrUnsupported = errors.New("native: dynamic library loading is not available in this build")
	ErrClosed      = errors.New("native: library is closed")
	ErrNullString  = errors.New("native: function returned a null string")
)

// Library is an open shared library.
type Library struct {
	Name string // Name the library was opened with
	Path string // Path or soname handed to the dynamic loader

	mu     sync.Mutex
	handle unsafe.Pointer
}

// Supported reports whether this build can load shared libraries.
func Supported() bool {
	return supported
}

// Candidates returns the file names tried for a library name, in order.
func Candidates(name string) []string {
	if hasLibSuffix(name) {
		return []string{name}
	}
	base := strings.TrimPrefix(name, "lib")
	switch runtime.GOOS {
	case "darwin":
		return []string{"lib" + base + ".dylib", base + ".dylib", "lib" + base + ".so"}
	case "windows":
		return []string{base + ".dll", "lib" + base + ".dll"}
	default:
		return []string{"lib" + base + ".so", base + ".so"}
	}
}

// Find resolves a library name against dirs. Names containing a path separator are
// used as given. When no candidate exists on disk, Find returns the first candidate
// so the dynamic loader can search its default paths, and found is false.
func Find(name string, dirs []string) (path string, found bool) {
	if strings.ContainsRune(name, filepath.Separator) || strings.ContainsRune(name, '/') {
		return name, fileExists(name)
	}
	candidates := Candidates(name)
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		for _, c := range candidates {
			p := filepath.Join(dir, c)
			if fileExists(p) {
				return p, true
			}
		}
	}
	return candidates[0], false
}

// SplitPathList splits a PATH-style list, dropping empty entries.
func SplitPathList(list string) []string {
	var dirs []string
	for _, d := range filepath.SplitList(list) {
		if d = strings.TrimSpace(d); d != "" {
			dirs = append(dirs, d)
		}
	}
	return dirs
}

// Load resolves name against dirs and opens it.
func Load(name string, dirs []string) (*Library, error) {
	path, _ := Find(name, dirs)
	lib, err := Open(path)
	if err != nil {
		return nil, err
	}
	lib.Name = name
	return lib, nil
}

// Open opens the library at path, or by soname through the loader's search paths.
func Open(path string) (*Library, error) {
	handle, err := dlopen(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return &Library{Name: path, Path: path, handle: handle}, nil
}

// Symbol looks up an exported symbol.
func (l *Library) Symbol(name string) (unsafe.Pointer, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.handle == nil {
		return nil, ErrClosed
	}
	sym, err := dlsym(l.handle, name)
	if err != nil {
		return nil, fmt.Errorf("symbol %s not found in %s: %w", name, l.Path, err)
	}
	return sym, nil
}

// HasSymbol reports whether the library exports name.
func (l *Library) HasSymbol(name string) bool {
	_, err := l.Symbol(name)
	return err == nil
}

// Version calls a `const char *fn(void)` export and returns its result.
func (l *Library) Version(symbol string) (string, error) {
	fn, err := l.Symbol(symbol)
	if err != nil {
		return "", err
	}
	s, err := callString(fn)
	if err != nil {
		return "", fmt.Errorf("failed to call %s: %w", symbol, err)
	}
	return s, nil
}

// Close releases the library. Closing twice is a no-op.
func (l *Library) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.handle == nil {
		return nil
	}
	err := dlclose(l.handle)
	l.handle = nil
	return err
}

func hasLibSuffix(name string) bool {
	for _, ext := range []string{".so", ".dylib", ".dll"} {
		if strings.HasSuffix(name, ext) || strings.Contains(name, ext+".") {
			return true
		}
	}
	return false
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
