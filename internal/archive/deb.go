package archive

import (
	"archive/tar"
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/blakesmith/ar"

	"github.com/couchbase/cb-non-package-installer/internal/messages"
)

// extractDeb locates the data.tar member inside the outer ar archive and
// unpacks it into destDir.
func extractDeb(pkgPath string, destDir string) error {
	f, err := os.Open(pkgPath)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	reader := ar.NewReader(f)
	for {
		hdr, err := reader.Next()
		if err == io.EOF {
			return fmt.Errorf(messages.ArchiveMissingDataFmt, pkgPath)
		}
		if err != nil {
			return fmt.Errorf("read deb member of %s: %w", pkgPath, err)
		}
		name := strings.TrimSuffix(strings.TrimSpace(hdr.Name), "/")
		if !strings.HasPrefix(name, "data.tar") {
			continue
		}
		compression, ok := compressionForName(name)
		if !ok {
			return fmt.Errorf(messages.ArchiveCompressionFmt, name)
		}
		payload, closePayload, err := newDecompressor(reader, compression)
		if err != nil {
			return fmt.Errorf("open deb payload of %s: %w", pkgPath, err)
		}
		defer closePayload()
		return extractTar(tar.NewReader(payload), destDir)
	}
}

// DebControl returns the fields of the package's control file, e.g. Package,
// Version and Depends.
func DebControl(pkgPath string) (map[string]string, error) {
	f, err := os.Open(pkgPath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	reader := ar.NewReader(f)
	for {
		hdr, err := reader.Next()
		if err == io.EOF {
			return nil, fmt.Errorf(messages.ArchiveMissingControlFmt, pkgPath)
		}
		if err != nil {
			return nil, fmt.Errorf("read deb member of %s: %w", pkgPath, err)
		}
		name := strings.TrimSuffix(strings.TrimSpace(hdr.Name), "/")
		if !strings.HasPrefix(name, "control.tar") {
			continue
		}
		compression, ok := compressionForName(name)
		if !ok {
			return nil, fmt.Errorf(messages.ArchiveCompressionFmt, name)
		}
		payload, closePayload, err := newDecompressor(reader, compression)
		if err != nil {
			return nil, fmt.Errorf("open deb control of %s: %w", pkgPath, err)
		}
		defer closePayload()
		return debControlFields(tar.NewReader(payload), pkgPath)
	}
}

func debControlFields(tr *tar.Reader, pkgPath string) (map[string]string, error) {
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil, fmt.Errorf(messages.ArchiveMissingControlFmt, pkgPath)
		}
		if err != nil {
			return nil, fmt.Errorf("read control member of %s: %w", pkgPath, err)
		}
		name := strings.TrimPrefix(hdr.Name, "./")
		if name != "control" {
			continue
		}
		return parseControlFields(tr)
	}
}

// parseControlFields reads the simple "Key: value" format of a Debian control
// file. Continuation lines (leading whitespace) extend the previous field.
func parseControlFields(r io.Reader) (map[string]string, error) {
	fields := make(map[string]string)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	current := ""
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			break
		}
		if strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t") {
			if current != "" {
				fields[current] += "\n" + strings.TrimSpace(line)
			}
			continue
		}
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		current = strings.TrimSpace(key)
		fields[current] = strings.TrimSpace(value)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return fields, nil
}

// extractTar unpacks a tar stream into destDir.
func extractTar(tr *tar.Reader, destDir string) error {
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read tar entry: %w", err)
		}
		path, err := entryDestPath(destDir, hdr.Name)
		if err != nil {
			return err
		}
		if path == "" {
			continue
		}
		perm := os.FileMode(hdr.Mode).Perm()
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := makeEntryDir(path, perm); err != nil {
				return fmt.Errorf("extract %s: %w", hdr.Name, err)
			}
		case tar.TypeReg:
			if err := writeEntryFile(path, tr, perm); err != nil {
				return fmt.Errorf("extract %s: %w", hdr.Name, err)
			}
		case tar.TypeSymlink:
			if err := writeEntrySymlink(path, hdr.Linkname); err != nil {
				return fmt.Errorf("extract %s: %w", hdr.Name, err)
			}
		case tar.TypeLink:
			src, err := entryDestPath(destDir, hdr.Linkname)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return err
			}
			if err := os.Link(src, path); err != nil {
				return fmt.Errorf("hardlink %s -> %s: %w", hdr.Name, hdr.Linkname, err)
			}
		case tar.TypeXGlobalHeader:
			continue
		default:
			return fmt.Errorf("unsupported tar entry type %c for %s", hdr.Typeflag, hdr.Name)
		}
	}
}
