package installer

import (
	"errors"
	"fmt"
	"path/filepath"

	log "github.com/sirupsen/logrus"

	"github.com/couchbase/cb-non-package-installer/internal/messages"
	"github.com/couchbase/cb-non-package-installer/internal/version"
)

// Upgrade step failures. Each step of the sequence aborts with its own kind;
// no rollback is attempted beyond what the backup directory provides, so a
// failed run leaves the backup in place for manual recovery.
var (
	ErrEmptyUpgradeTarget  = errors.New("no existing installation found under the install location")
	ErrServerStillRunning  = errors.New("the server is still running from the install location")
	ErrLivenessCheckFailed = errors.New("could not determine whether the server is running")
	ErrBackupTargetExists  = errors.New("backup directory already exists; remove it before retrying")
	ErrBackupCopyFailed    = errors.New("backing up configuration failed")
	ErrRemovalFailed       = errors.New("removing the old installation failed")
	ErrRestoreFailed       = errors.New("restoring configuration failed")
	ErrBackupCleanupFailed = errors.New("removing the backup directory failed")
	ErrMigrationFailed     = errors.New("data migration failed")
)

// Upgrade replaces an existing installation with the package, preserving
// node configuration across the swap:
//
//	validate -> liveness -> backup -> remove -> unpack -> restore ->
//	cleanup backup -> data migration
//
// Every step is a terminal failure point. The tree is only mutated once all
// preconditions have passed.
func Upgrade(opts Options) error {
	if err := opts.normalize(); err != nil {
		return err
	}
	root := opts.serverRoot()

	// Step 1: preconditions. Nothing on disk is touched until these pass.
	empty, err := opts.System.IsDirEmpty(root)
	if err != nil || empty {
		return fmt.Errorf("%w: %s", ErrEmptyUpgradeTarget, opts.InstallLocation)
	}
	pkgVersion, err := version.FromPackageName(opts.PackagePath)
	if err != nil {
		return err
	}
	installed, err := version.FromTree(root)
	if err != nil {
		return err
	}
	if err := opts.Bounds.CheckUpgrade(pkgVersion, installed, opts.Override); err != nil {
		return err
	}
	if err := checkDependencies(opts); err != nil {
		return err
	}

	// Step 2: never upgrade underneath a live server.
	running, err := opts.Liveness(root)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLivenessCheckFailed, err)
	}
	if running {
		return fmt.Errorf("%w: %s", ErrServerStillRunning, root)
	}
	log.Infof("upgrading Couchbase Server %s -> %s under %s", installed, pkgVersion, opts.InstallLocation)

	// Step 3: back up configuration. A pre-existing backup directory is a
	// stale leftover from a failed run and stops the upgrade outright.
	m := upgradeManifest(opts.System, root)
	backup := opts.backupDir()
	if _, err := opts.System.Stat(backup); err == nil {
		return fmt.Errorf("%w: %s", ErrBackupTargetExists, backup)
	}
	if err := opts.System.MkdirAll(backup, 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrBackupCopyFailed, err)
	}
	for _, rel := range m.preserve {
		log.Debugf("backing up %s", rel)
		src := filepath.Join(root, filepath.FromSlash(rel))
		dst := filepath.Join(backup, filepath.FromSlash(rel))
		if err := opts.System.CopyPath(src, dst); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrBackupCopyFailed, rel, err)
		}
	}

	// Step 4: remove the old package-owned content. From here on a failure
	// leaves a degraded tree plus the backup directory.
	for _, rel := range m.remove {
		log.Debugf("removing %s", rel)
		if err := opts.System.RemoveAll(filepath.Join(root, filepath.FromSlash(rel))); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrRemovalFailed, rel, err)
		}
	}

	// Step 5: unpack the new package over the remaining tree.
	if err := unpack(opts); err != nil {
		return err
	}

	// Step 6: put the preserved configuration back. Directories the new
	// package created at a preserved path are replaced wholesale so old and
	// new directory contents never merge.
	for _, rel := range m.preserve {
		log.Debugf("restoring %s", rel)
		src := filepath.Join(backup, filepath.FromSlash(rel))
		dst := filepath.Join(root, filepath.FromSlash(rel))
		if info, err := opts.System.Stat(dst); err == nil && info.IsDir() {
			if err := opts.System.RemoveAll(dst); err != nil {
				return fmt.Errorf("%w: %s: %v", ErrRestoreFailed, rel, err)
			}
		}
		if err := opts.System.CopyPath(src, dst); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrRestoreFailed, rel, err)
		}
	}

	// Step 7: the tree is fully upgraded; drop the backup.
	if err := opts.System.RemoveAll(backup); err != nil {
		return fmt.Errorf("%w: %v", ErrBackupCleanupFailed, err)
	}

	// Step 8: migrate on-disk data and config to the new version's format.
	migrate := filepath.Join(root, filepath.FromSlash(migrationRelPath))
	cfgDir := filepath.Join(root, filepath.FromSlash(configRelDir))
	if err := opts.Runner.Run(migrate, "-c", cfgDir, "-a", "yes"); err != nil {
		return fmt.Errorf("%w: %v", ErrMigrationFailed, err)
	}

	fmt.Fprintf(opts.Out, messages.UpgradeSuccessFmt, installed, pkgVersion, opts.InstallLocation)
	return nil
}
