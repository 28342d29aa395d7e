// Package version extracts Couchbase Server version triples from package
// file names and from an installed tree's VERSION.txt marker.
package version

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
)

// Sentinel errors for the two extraction sources.
var (
	// ErrMalformedPackageName indicates a package file name that does not
	// match the couchbase-server-enterprise naming pattern.
	ErrMalformedPackageName = errors.New("malformed package file name")
	// ErrMissingVersionMarker indicates the installed tree has no readable
	// VERSION.txt marker file.
	ErrMissingVersionMarker = errors.New("missing version marker")
	// ErrMalformedVersionMarker indicates the marker file's first line does
	// not match MAJOR.MINOR.MAINT-BUILD.
	ErrMalformedVersionMarker = errors.New("malformed version marker")
)

// MarkerRelPath is the version marker location relative to the server root.
const MarkerRelPath = "VERSION.txt"

// Package names look like couchbase-server-enterprise-7.1.3-linux.x86_64.rpm.
// Debian packages may separate the edition and version with an underscore.
var packageNamePattern = regexp.MustCompile(
	`^couchbase-server-enterprise[-_](\d+)\.(\d+)\.(\d+)-(.+)\.(rpm|deb)$`)

// Marker lines look like 7.1.3-3479; the build number is recorded by the
// packaging pipeline and is not part of the comparable triple.
var markerLinePattern = regexp.MustCompile(`^(\d+)\.(\d+)\.(\d+)-(\d+)\b`)

var plainVersionPattern = regexp.MustCompile(`^(\d+)\.(\d+)\.(\d+)$`)

// Version is an ordered (major, minor, maintenance) triple. It is immutable
// once parsed and compares lexicographically.
type Version struct {
	Major int
	Minor int
	Maint int
}

// String renders the triple as MAJOR.MINOR.MAINT.
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Maint)
}

// Compare returns -1 if v < other, 0 if equal and 1 if v > other.
func (v Version) Compare(other Version) int {
	a := [3]int{v.Major, v.Minor, v.Maint}
	b := [3]int{other.Major, other.Minor, other.Maint}
	for i := range a {
		if a[i] < b[i] {
			return -1
		}
		if a[i] > b[i] {
			return 1
		}
	}
	return 0
}

// MajorMinorAbove reports whether v's (major, minor) pair is strictly above
// other's. The maintenance component is ignored.
func (v Version) MajorMinorAbove(other Version) bool {
	if v.Major != other.Major {
		return v.Major > other.Major
	}
	return v.Minor > other.Minor
}

// Parse converts a MAJOR.MINOR.MAINT string into a Version.
func Parse(raw string) (Version, error) {
	matches := plainVersionPattern.FindStringSubmatch(raw)
	if matches == nil {
		return Version{}, fmt.Errorf("invalid version %q", raw)
	}
	return versionFromMatches(matches[1], matches[2], matches[3])
}

// FromPackageName extracts the version encoded in a package file name.
// The name must carry the enterprise edition token, a platform suffix and an
// rpm or deb extension; anything else is ErrMalformedPackageName.
func FromPackageName(name string) (Version, error) {
	base := filepath.Base(name)
	matches := packageNamePattern.FindStringSubmatch(base)
	if matches == nil {
		return Version{}, fmt.Errorf("%w: %s", ErrMalformedPackageName, base)
	}
	v, err := versionFromMatches(matches[1], matches[2], matches[3])
	if err != nil {
		return Version{}, fmt.Errorf("%w: %s", ErrMalformedPackageName, base)
	}
	return v, nil
}

// FromTree reads the installed version from the marker file under serverRoot.
// Only the first line is consulted.
func FromTree(serverRoot string) (Version, error) {
	path := filepath.Join(serverRoot, MarkerRelPath)
	f, err := os.Open(path)
	if err != nil {
		return Version{}, fmt.Errorf("%w: %s", ErrMissingVersionMarker, path)
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return Version{}, fmt.Errorf("%w: %s is empty", ErrMalformedVersionMarker, path)
	}
	line := scanner.Text()
	matches := markerLinePattern.FindStringSubmatch(line)
	if matches == nil {
		return Version{}, fmt.Errorf("%w: %s: %q", ErrMalformedVersionMarker, path, line)
	}
	v, err := versionFromMatches(matches[1], matches[2], matches[3])
	if err != nil {
		return Version{}, fmt.Errorf("%w: %s: %q", ErrMalformedVersionMarker, path, line)
	}
	return v, nil
}

func versionFromMatches(major string, minor string, maint string) (Version, error) {
	var out Version
	for i, part := range []string{major, minor, maint} {
		value, err := strconv.Atoi(part)
		if err != nil {
			return Version{}, fmt.Errorf("invalid version segment %q: %w", part, err)
		}
		switch i {
		case 0:
			out.Major = value
		case 1:
			out.Minor = value
		case 2:
			out.Maint = value
		}
	}
	return out, nil
}
