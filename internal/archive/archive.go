// Package archive extracts Couchbase Server packages natively. The rpm kind
// is a header-prefixed compressed cpio stream; the deb kind is an ar archive
// wrapping compressed tarballs. No external extraction tool is involved, so
// every failure surfaces as a typed Go error instead of a child exit code.
package archive

import (
	"compress/bzip2"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
	"github.com/ulikunitz/xz/lzma"

	"github.com/couchbase/cb-non-package-installer/internal/messages"
)

// Kind identifies the package archive format.
type Kind string

// The two supported package kinds.
const (
	KindRPM Kind = "rpm"
	KindDeb Kind = "deb"
)

// KindOf derives the archive kind from the package file extension.
func KindOf(name string) (Kind, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".rpm":
		return KindRPM, nil
	case ".deb":
		return KindDeb, nil
	default:
		return "", fmt.Errorf(messages.ArchiveUnknownKindFmt, filepath.Base(name))
	}
}

// Extract unpacks the package's file tree into destDir. Entry paths are
// interpreted relative to destDir; entries that would escape it are rejected.
func Extract(pkgPath string, destDir string) error {
	kind, err := KindOf(pkgPath)
	if err != nil {
		return err
	}
	switch kind {
	case KindRPM:
		return extractRPM(pkgPath, destDir)
	default:
		return extractDeb(pkgPath, destDir)
	}
}

// entryDestPath maps an archive entry name onto destDir. Leading "./" and "/"
// prefixes are stripped so absolute payload paths land inside the target, and
// anything that still resolves outside destDir is rejected.
func entryDestPath(destDir string, name string) (string, error) {
	cleaned := filepath.ToSlash(name)
	for strings.HasPrefix(cleaned, "/") || strings.HasPrefix(cleaned, "./") {
		cleaned = strings.TrimPrefix(cleaned, "/")
		cleaned = strings.TrimPrefix(cleaned, "./")
	}
	cleaned = filepath.Clean(filepath.FromSlash(cleaned))
	if cleaned == "." || cleaned == "" {
		return "", nil
	}
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(os.PathSeparator)) {
		return "", fmt.Errorf(messages.ArchiveEscapingEntryFmt, name)
	}
	return filepath.Join(destDir, cleaned), nil
}

// newDecompressor wraps r with the named decompression scheme. The returned
// close function releases decoder resources and is always non-nil.
func newDecompressor(r io.Reader, compression string) (io.Reader, func(), error) {
	switch compression {
	case "", "uncompressed":
		return r, func() {}, nil
	case "gzip":
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return gz, func() { _ = gz.Close() }, nil
	case "bzip2":
		return bzip2.NewReader(r), func() {}, nil
	case "xz":
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return xr, func() {}, nil
	case "lzma":
		lr, err := lzma.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return lr, func() {}, nil
	case "zstd":
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return zr, zr.Close, nil
	default:
		return nil, nil, fmt.Errorf(messages.ArchiveCompressionFmt, compression)
	}
}

// compressionForName maps a tarball member name to a decompression scheme.
func compressionForName(name string) (string, bool) {
	switch {
	case strings.HasSuffix(name, ".tar"):
		return "", true
	case strings.HasSuffix(name, ".tar.gz"):
		return "gzip", true
	case strings.HasSuffix(name, ".tar.xz"):
		return "xz", true
	case strings.HasSuffix(name, ".tar.zst"):
		return "zstd", true
	case strings.HasSuffix(name, ".tar.bz2"):
		return "bzip2", true
	default:
		return "", false
	}
}

func writeEntryFile(path string, r io.Reader, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

func makeEntryDir(path string, perm os.FileMode) error {
	if err := os.MkdirAll(path, perm); err != nil {
		return err
	}
	// MkdirAll leaves pre-existing directories alone, so apply the archive's
	// permission bits explicitly.
	return os.Chmod(path, perm)
}

func writeEntrySymlink(path string, target string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := os.RemoveAll(path); err != nil {
		return err
	}
	return os.Symlink(target, path)
}
