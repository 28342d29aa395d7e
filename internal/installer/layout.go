package installer

import "path/filepath"

// Layout of a non-root Couchbase Server installation. All paths are relative
// to the install location unless noted otherwise.
const (
	// ServerRelRoot is where the unpacked package places the server tree.
	ServerRelRoot = "opt/couchbase"

	// BackupDirName is the sibling of the server tree that holds preserved
	// configuration during an upgrade. Its fixed name doubles as a guard
	// against two overlapping upgrade runs.
	BackupDirName = "cb-upgrade-backup"

	// relocScriptRelPath is the packaged script that rewrites embedded
	// absolute paths after unpacking, relative to the server root.
	relocScriptRelPath = "bin/install/reloc.sh"

	// migrationRelPath is the packaged executable that upgrades on-disk
	// data and config formats, relative to the server root.
	migrationRelPath = "bin/cbupgrade"

	// configRelDir is the node configuration directory, relative to the
	// server root.
	configRelDir = "var/lib/couchbase/config"
)

// preserveCore is always backed up before removal and restored afterwards.
var preserveCore = []string{
	"etc",
	configRelDir,
}

// preserveConditional is backed up and removed only when present: node
// identity and first-run marker files that a fresh tree must not clobber.
var preserveConditional = []string{
	"var/lib/couchbase/ip",
	"var/lib/couchbase/ip_start",
	"var/lib/couchbase/initargs",
}

// removeFixed is the old tree's package-owned content deleted before the new
// package is unpacked. Runtime data (var) stays in place.
var removeFixed = []string{
	"bin",
	"etc",
	"lib",
	"man",
	"share",
	"samples",
	"VERSION.txt",
	"manifest.xml",
	"LICENSE.txt",
}

// manifest pairs the backup set with the removal set for one upgrade run.
// Both are computed together so a conditionally-present file can never be
// deleted without having been backed up first.
type manifest struct {
	preserve []string
	remove   []string
}

// upgradeManifest inspects the current server tree and returns the paths to
// preserve and the paths to remove, relative to serverRoot.
func upgradeManifest(sys System, serverRoot string) manifest {
	m := manifest{
		preserve: append([]string{}, preserveCore...),
		remove:   append([]string{}, removeFixed...),
	}
	for _, rel := range preserveConditional {
		if _, err := sys.Stat(filepath.Join(serverRoot, rel)); err != nil {
			continue
		}
		m.preserve = append(m.preserve, rel)
		m.remove = append(m.remove, rel)
	}
	return m
}
