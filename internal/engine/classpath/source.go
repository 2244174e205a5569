// Package classpath discovers, indexes and serves class bytes from
// directories, archives, module images and classes generated at runtime.
package classpath

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	errs "hostscript/internal/core/errors"
	"hostscript/internal/engine/bytecode"
)

type SourceKind uint8

const (
	KindDirectory SourceKind = iota
	KindArchive
	KindModule
	KindGenerated
)

func (k SourceKind) String() string {
	switch k {
	case KindDirectory:
		return "directory"
	case KindArchive:
		return "archive"
	case KindModule:
		return "module"
	default:
		return "generated"
	}
}

// ClassSource provides the bytes of the classes found at one origin.
// Sources are immutable; a reindex replaces them.
type ClassSource interface {
	Kind() SourceKind
	// Location is a human-readable origin such as a path.
	Location() string
	ClassBytes(fqn string) ([]byte, error)
}

const classSuffix = ".class"

// moduleHeader prefixes the zip payload of a .jmod image.
var moduleHeader = []byte{'J', 'M', 0x01, 0x00}

// entryToName converts a/b/C.class to a.b.C. Descriptor classes such as
// module-info and package-info are skipped.
func entryToName(entry string) (string, bool) {
	entry = filepath.ToSlash(entry)
	if !strings.HasSuffix(entry, classSuffix) || strings.HasPrefix(entry, "META-INF/") {
		return "", false
	}
	base := strings.TrimSuffix(entry, classSuffix)
	if strings.HasSuffix(base, "module-info") || strings.HasSuffix(base, "package-info") {
		return "", false
	}
	return bytecode.BinaryName(base), true
}

func nameToEntry(fqn string) string {
	return bytecode.InternalName(fqn) + classSuffix
}

func notFound(fqn, location string) error {
	return errs.Newf(errs.CodeNotFound, "class %s not found in %s", fqn, location).(*errs.DomainError).
		WithContext(errs.CtxType, fqn)
}

// DirSource serves class files below a root directory.
type DirSource struct {
	root string
}

func (s *DirSource) Kind() SourceKind { return KindDirectory }
func (s *DirSource) Location() string { return s.root }

func (s *DirSource) ClassBytes(fqn string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.root, filepath.FromSlash(nameToEntry(fqn))))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, notFound(fqn, s.root)
		}
		return nil, fmt.Errorf("read class %s: %w", fqn, err)
	}
	return data, nil
}

// ArchiveSource serves class entries of a zip-format archive such as a jar.
type ArchiveSource struct {
	path string
}

func (s *ArchiveSource) Kind() SourceKind { return KindArchive }
func (s *ArchiveSource) Location() string { return s.path }

func (s *ArchiveSource) ClassBytes(fqn string) ([]byte, error) {
	zr, err := zip.OpenReader(s.path)
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", s.path, err)
	}
	defer zr.Close()
	return readEntry(&zr.Reader, nameToEntry(fqn), fqn, s.path)
}

// ModuleSource serves classes of a module image. Class entries live under classes/.
type ModuleSource struct {
	path string
}

func (s *ModuleSource) Kind() SourceKind { return KindModule }
func (s *ModuleSource) Location() string { return s.path }

func (s *ModuleSource) ClassBytes(fqn string) ([]byte, error) {
	f, zr, err := openModule(s.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readEntry(zr, "classes/"+nameToEntry(fqn), fqn, s.path)
}

// GeneratedSource holds the bytes of one class synthesized at runtime.
type GeneratedSource struct {
	name string
	data []byte
}

func (s *GeneratedSource) Kind() SourceKind { return KindGenerated }
func (s *GeneratedSource) Location() string { return "generated:" + s.name }

func (s *GeneratedSource) ClassBytes(fqn string) ([]byte, error) {
	if fqn != s.name {
		return nil, notFound(fqn, s.Location())
	}
	return bytes.Clone(s.data), nil
}

func readEntry(zr *zip.Reader, entry, fqn, location string) ([]byte, error) {
	f, err := zr.Open(entry)
	if err != nil {
		return nil, notFound(fqn, location)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read %s from %s: %w", entry, location, err)
	}
	return data, nil
}

func openModule(path string) (*os.File, *zip.Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open module image %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("stat module image %s: %w", path, err)
	}
	header := make([]byte, len(moduleHeader))
	if _, err := io.ReadFull(f, header); err != nil || !bytes.Equal(header, moduleHeader) {
		f.Close()
		return nil, nil, fmt.Errorf("%s is not a module image", path)
	}
	size := info.Size() - int64(len(moduleHeader))
	zr, err := zip.NewReader(io.NewSectionReader(f, int64(len(moduleHeader)), size), size)
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("read module image %s: %w", path, err)
	}
	return f, zr, nil
}

// listArchive returns the class names of a zip-format archive. prefix selects
// the subtree holding classes ("" for jars, "classes/" for module images).
func listArchive(zr *zip.Reader, prefix string) []string {
	var names []string
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || !strings.HasPrefix(f.Name, prefix) {
			continue
		}
		if name, ok := entryToName(strings.TrimPrefix(f.Name, prefix)); ok {
			names = append(names, name)
		}
	}
	return names
}
