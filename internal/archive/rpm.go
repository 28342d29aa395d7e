package archive

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/cavaliergopher/cpio"
	"github.com/cavaliergopher/rpm"

	"github.com/couchbase/cb-non-package-installer/internal/messages"
)

// extractRPM reads the rpm lead and headers, then streams the compressed cpio
// payload into destDir.
func extractRPM(pkgPath string, destDir string) error {
	f, err := os.Open(pkgPath)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	pkg, err := rpm.Read(f)
	if err != nil {
		return fmt.Errorf("read rpm headers of %s: %w", pkgPath, err)
	}
	if format := pkg.PayloadFormat(); format != "cpio" {
		return fmt.Errorf(messages.ArchivePayloadFormatFmt, format)
	}
	payload, closePayload, err := newDecompressor(f, pkg.PayloadCompression())
	if err != nil {
		return fmt.Errorf("open rpm payload of %s: %w", pkgPath, err)
	}
	defer closePayload()
	return extractCpio(payload, destDir)
}

// RPMRequires returns the names of the capabilities the package declares as
// runtime requirements, straight from the rpm header.
func RPMRequires(pkgPath string) ([]string, error) {
	pkg, err := rpm.Open(pkgPath)
	if err != nil {
		return nil, fmt.Errorf("read rpm headers of %s: %w", pkgPath, err)
	}
	deps := pkg.Requires()
	names := make([]string, 0, len(deps))
	for _, dep := range deps {
		names = append(names, dep.Name())
	}
	return names, nil
}

type pendingHardlink struct {
	inode int64
	path  string
	perm  os.FileMode
}

// extractCpio unpacks a newc cpio stream into destDir. Hardlinked regular
// files arrive as zero-length entries whose content travels with the final
// link of the set, so those are resolved after the stream ends.
func extractCpio(r io.Reader, destDir string) error {
	reader := cpio.NewReader(r)
	written := make(map[int64]string)
	var pending []pendingHardlink
	for {
		hdr, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read cpio entry: %w", err)
		}
		path, err := entryDestPath(destDir, hdr.Name)
		if err != nil {
			return err
		}
		if path == "" {
			continue
		}
		info := hdr.FileInfo()
		perm := info.Mode().Perm()
		switch {
		case info.IsDir():
			if err := makeEntryDir(path, perm); err != nil {
				return fmt.Errorf("extract %s: %w", hdr.Name, err)
			}
		case info.Mode()&os.ModeSymlink != 0:
			target := hdr.Linkname
			if target == "" {
				// Some writers store the link target as entry content.
				body, readErr := io.ReadAll(reader)
				if readErr != nil {
					return fmt.Errorf("extract %s: %w", hdr.Name, readErr)
				}
				target = string(body)
			}
			if err := writeEntrySymlink(path, target); err != nil {
				return fmt.Errorf("extract %s: %w", hdr.Name, err)
			}
		case info.Mode().IsRegular():
			if hdr.Links > 1 && hdr.Size == 0 {
				pending = append(pending, pendingHardlink{inode: hdr.Inode, path: path, perm: perm})
				continue
			}
			if err := writeEntryFile(path, reader, perm); err != nil {
				return fmt.Errorf("extract %s: %w", hdr.Name, err)
			}
			if hdr.Links > 1 {
				written[hdr.Inode] = path
			}
		default:
			// Device and fifo nodes never appear in the server payload and
			// could not be created without privileges anyway.
			return fmt.Errorf("unsupported cpio entry type %s for %s", info.Mode(), hdr.Name)
		}
	}
	for _, link := range pending {
		src, ok := written[link.inode]
		if !ok {
			// A hardlink set whose content never arrived is an empty file.
			if err := writeEntryFile(link.path, emptyReader{}, link.perm); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(link.path), 0o755); err != nil {
			return err
		}
		if err := os.Link(src, link.path); err != nil {
			return fmt.Errorf("hardlink %s -> %s: %w", link.path, src, err)
		}
	}
	return nil
}

type emptyReader struct{}

func (emptyReader) Read([]byte) (int, error) { return 0, io.EOF }
