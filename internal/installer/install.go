// Package installer implements the install and upgrade operations for
// non-root Couchbase Server installations: version policy enforcement,
// dependency checking, native package extraction with relocation, and the
// backup/remove/unpack/restore upgrade sequence.
package installer

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/couchbase/cb-non-package-installer/internal/archive"
	"github.com/couchbase/cb-non-package-installer/internal/deps"
	"github.com/couchbase/cb-non-package-installer/internal/messages"
	"github.com/couchbase/cb-non-package-installer/internal/policy"
	"github.com/couchbase/cb-non-package-installer/internal/proc"
	"github.com/couchbase/cb-non-package-installer/internal/version"
)

// Operation failures, one per step that can abort a run.
var (
	ErrInstallTargetNotEmpty = errors.New("install location is not empty")
	ErrMissingDependencies   = errors.New("missing dependencies")
	ErrUnpackFailed          = errors.New("unpacking the package failed")
)

// extractArchive is swapped out by tests that exercise the orchestration
// without forging a full package.
var extractArchive = archive.Extract

// Options carries everything an install or upgrade run needs. PackagePath
// and InstallLocation come from the CLI; the collaborator fields default to
// their real implementations when left nil.
type Options struct {
	PackagePath     string
	InstallLocation string

	// CheckDeps enables verifying the package's declared dependencies
	// against the host before touching the tree.
	CheckDeps bool

	// Override disables the version-bound checks (never the same-version
	// and downgrade checks).
	Override bool

	Bounds policy.Bounds

	System   System
	Runner   Runner
	Liveness func(root string) (bool, error)
	Deps     deps.Checker

	// Out receives the success confirmation. Defaults to os.Stdout.
	Out io.Writer
}

func (o *Options) normalize() error {
	if o.System == nil {
		return errors.New(messages.InstallerSystemRequired)
	}
	if o.InstallLocation == "" {
		return errors.New(messages.InstallerLocationRequired)
	}
	if o.PackagePath == "" {
		return errors.New(messages.InstallerPackageRequired)
	}
	abs, err := filepath.Abs(o.InstallLocation)
	if err != nil {
		return fmt.Errorf(messages.InstallerResolveLocationFmt, o.InstallLocation, err)
	}
	o.InstallLocation = abs
	if o.Runner == nil {
		o.Runner = execRunner{}
	}
	if o.Liveness == nil {
		o.Liveness = proc.Running
	}
	if o.Out == nil {
		o.Out = os.Stdout
	}
	return nil
}

func (o *Options) serverRoot() string {
	return filepath.Join(o.InstallLocation, filepath.FromSlash(ServerRelRoot))
}

func (o *Options) backupDir() string {
	return filepath.Join(o.InstallLocation, BackupDirName)
}

// Install unpacks the package into an empty install location and runs the
// bundled relocation script. The location is created if it does not exist.
func Install(opts Options) error {
	if err := opts.normalize(); err != nil {
		return err
	}
	pkgVersion, err := version.FromPackageName(opts.PackagePath)
	if err != nil {
		return err
	}
	if err := opts.Bounds.CheckInstall(pkgVersion, opts.Override); err != nil {
		return err
	}
	if err := checkDependencies(opts); err != nil {
		return err
	}

	if err := opts.System.MkdirAll(opts.InstallLocation, 0o755); err != nil {
		return fmt.Errorf(messages.InstallerCreateLocationFmt, opts.InstallLocation, err)
	}
	empty, err := opts.System.IsDirEmpty(opts.InstallLocation)
	if err != nil {
		return err
	}
	if !empty {
		return fmt.Errorf("%w: %s", ErrInstallTargetNotEmpty, opts.InstallLocation)
	}

	log.Infof("installing Couchbase Server %s into %s", pkgVersion, opts.InstallLocation)
	if err := unpack(opts); err != nil {
		return err
	}

	fmt.Fprintf(opts.Out, messages.InstallSuccessFmt, pkgVersion, opts.InstallLocation)
	return nil
}

// checkDependencies fails with the sorted list of unmet dependencies when
// dependency checking is enabled.
func checkDependencies(opts Options) error {
	if !opts.CheckDeps {
		return nil
	}
	missing, err := opts.Deps.Missing(opts.PackagePath)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingDependencies,
			fmt.Sprintf(messages.DepsMissingHeaderFmt, strings.Join(missing, ", ")))
	}
	return nil
}

// unpack extracts the package into the install location and runs the
// relocation script from the freshly unpacked tree.
func unpack(opts Options) error {
	if err := extractArchive(opts.PackagePath, opts.InstallLocation); err != nil {
		return fmt.Errorf("%w: %v", ErrUnpackFailed, err)
	}
	root := opts.serverRoot()
	reloc := filepath.Join(root, filepath.FromSlash(relocScriptRelPath))
	if err := opts.Runner.Run(reloc, root); err != nil {
		return fmt.Errorf("%w: relocation script: %v", ErrUnpackFailed, err)
	}
	return nil
}
