// Package policy decides whether a package version may be installed or
// upgraded to, given the supported version window.
package policy

import (
	"errors"
	"fmt"
	"os"

	"github.com/couchbase/cb-non-package-installer/internal/version"
)

// OverrideEnv disables the bound checks when set to any non-empty value.
// Same-version and downgrade rejections still apply.
const OverrideEnv = "CB_SKIP_VERSION_CHECK"

var (
	// ErrOutOfBounds indicates the package or installed version falls outside
	// the supported window.
	ErrOutOfBounds = errors.New("version out of supported bounds")
	// ErrConflict indicates a same-version or downgrade upgrade request.
	ErrConflict = errors.New("version conflict")
)

// supportedLines are the released major.minor lines this installer is
// validated against, oldest first. Maintenance releases within a line are
// always accepted, which is why the entries wildcard the third component.
var supportedLines = []string{
	"6.0.X",
	"6.5.X",
	"6.6.X",
	"7.0.X",
	"7.1.X",
	"7.2.X",
	"7.6.X",
	"8.0.X",
}

// SupportedLines returns the supported major.minor lines, oldest first.
func SupportedLines() []string {
	out := make([]string, len(supportedLines))
	copy(out, supportedLines)
	return out
}

// Bounds is the policy window. Min is compared as a full triple to exclude
// specific known-bad legacy releases; Max is compared on (major, minor) only
// so maintenance releases within a validated line always pass.
type Bounds struct {
	Min version.Version
	Max version.Version
}

// DefaultBounds derives the policy window from the supported lines.
func DefaultBounds() Bounds {
	return Bounds{
		Min: lineVersion(supportedLines[0]),
		Max: lineVersion(supportedLines[len(supportedLines)-1]),
	}
}

func lineVersion(line string) version.Version {
	var major, minor int
	// The lines are compile-time constants; a mismatch is a programming error.
	if _, err := fmt.Sscanf(line, "%d.%d.X", &major, &minor); err != nil {
		panic(fmt.Sprintf("invalid supported line %q: %v", line, err))
	}
	return version.Version{Major: major, Minor: minor}
}

// OverrideEnabled reports whether the environment disables bound enforcement.
func OverrideEnabled() bool {
	return os.Getenv(OverrideEnv) != ""
}

// CheckInstall reports whether pkg may be installed fresh. Both bound checks
// are skipped entirely when override is enabled.
func (b Bounds) CheckInstall(pkg version.Version, override bool) error {
	if override {
		return nil
	}
	if pkg.Compare(b.Min) < 0 {
		return fmt.Errorf("%w: package %s is below the minimum supported version %s",
			ErrOutOfBounds, pkg, b.Min)
	}
	if pkg.MajorMinorAbove(b.Max) {
		return fmt.Errorf("%w: package %s is above the newest supported line %d.%d.X",
			ErrOutOfBounds, pkg, b.Max.Major, b.Max.Minor)
	}
	return nil
}

// CheckUpgrade reports whether installed may be upgraded to pkg. Same-version
// and downgrade requests are rejected even with override enabled; the bound
// checks are skipped when override is enabled.
func (b Bounds) CheckUpgrade(pkg version.Version, installed version.Version, override bool) error {
	switch pkg.Compare(installed) {
	case 0:
		return fmt.Errorf("%w: version %s is already installed", ErrConflict, installed)
	case -1:
		return fmt.Errorf("%w: package %s is older than the installed version %s",
			ErrConflict, pkg, installed)
	}
	if override {
		return nil
	}
	if pkg.MajorMinorAbove(b.Max) {
		return fmt.Errorf("%w: package %s is above the newest supported line %d.%d.X",
			ErrOutOfBounds, pkg, b.Max.Major, b.Max.Minor)
	}
	if installed.Compare(b.Min) < 0 {
		return fmt.Errorf("%w: installed version %s is below the minimum supported version %s; upgrade it with the platform installer first",
			ErrOutOfBounds, installed, b.Min)
	}
	return nil
}
