package installer

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/couchbase/cb-non-package-installer/internal/policy"
)

// fakeRunner records every child-process invocation instead of executing it.
type fakeRunner struct {
	calls [][]string
	err   error
}

func (r *fakeRunner) Run(name string, args ...string) error {
	r.calls = append(r.calls, append([]string{name}, args...))
	return r.err
}

// swapExtract replaces the archive extraction with fn for the duration of
// the test.
func swapExtract(t *testing.T, fn func(pkgPath string, destDir string) error) {
	t.Helper()
	orig := extractArchive
	extractArchive = fn
	t.Cleanup(func() { extractArchive = orig })
}

func writeTreeFile(t *testing.T, root string, rel string, body string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", rel, err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", rel, err)
	}
}

func readTreeFile(t *testing.T, root string, rel string) string {
	t.Helper()
	body, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		t.Fatalf("read %s: %v", rel, err)
	}
	return string(body)
}

// installedTree lays out a minimal 7.1.3 server tree with two config files
// and a node-identity file, returning the server root.
func installedTree(t *testing.T, location string) string {
	t.Helper()
	root := filepath.Join(location, filepath.FromSlash(ServerRelRoot))
	writeTreeFile(t, root, "VERSION.txt", "7.1.3-3479\n")
	writeTreeFile(t, root, "bin/couchbase-server", "#!/bin/sh\n")
	writeTreeFile(t, root, "lib/libcouchbase.so", "old-lib")
	writeTreeFile(t, root, "etc/couchbase/static_config", "old-static-config")
	writeTreeFile(t, root, "var/lib/couchbase/config/config.dat", "old-config-dat")
	writeTreeFile(t, root, "var/lib/couchbase/ip", "198.51.100.7")
	return root
}

// newTreeExtract simulates unpacking a 7.6.2 package: a fresh etc directory,
// new binaries and a new version marker, no runtime state.
func newTreeExtract(pkgPath string, destDir string) error {
	root := filepath.Join(destDir, filepath.FromSlash(ServerRelRoot))
	files := map[string]string{
		"VERSION.txt":                 "7.6.2-100\n",
		"bin/couchbase-server":        "#!/bin/sh\n# new\n",
		"etc/couchbase/static_config": "new-static-config",
		"etc/newfile":                 "fresh",
	}
	for rel, body := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			return err
		}
	}
	return nil
}

func upgradeOptions(location string, runner *fakeRunner) Options {
	return Options{
		PackagePath:     "couchbase-server-enterprise-7.6.2-linux.x86_64.rpm",
		InstallLocation: location,
		Bounds:          policy.DefaultBounds(),
		System:          RealSystem{},
		Runner:          runner,
		Liveness:        func(string) (bool, error) { return false, nil },
		Out:             &bytes.Buffer{},
	}
}

func TestUpgrade_RoundTripPreservesConfig(t *testing.T) {
	location := t.TempDir()
	root := installedTree(t, location)
	swapExtract(t, newTreeExtract)
	runner := &fakeRunner{}

	out := &bytes.Buffer{}
	opts := upgradeOptions(location, runner)
	opts.Out = out
	if err := Upgrade(opts); err != nil {
		t.Fatalf("Upgrade: %v", err)
	}

	// Preserved content carries the original bytes.
	if got := readTreeFile(t, root, "etc/couchbase/static_config"); got != "old-static-config" {
		t.Fatalf("static_config = %q, want backed-up bytes", got)
	}
	if got := readTreeFile(t, root, "var/lib/couchbase/config/config.dat"); got != "old-config-dat" {
		t.Fatalf("config.dat = %q, want backed-up bytes", got)
	}
	if got := readTreeFile(t, root, "var/lib/couchbase/ip"); got != "198.51.100.7" {
		t.Fatalf("ip = %q, want backed-up bytes", got)
	}
	// Restore replaces directories wholesale: nothing from the new etc
	// survives alongside the restored one.
	if _, err := os.Stat(filepath.Join(root, "etc", "newfile")); !os.IsNotExist(err) {
		t.Fatal("restored etc must not merge with the new package's etc")
	}
	// Old binaries are gone, new ones are in place.
	if _, err := os.Stat(filepath.Join(root, "lib")); !os.IsNotExist(err) {
		t.Fatal("old lib directory should have been removed")
	}
	if got := readTreeFile(t, root, "VERSION.txt"); got != "7.6.2-100\n" {
		t.Fatalf("VERSION.txt = %q, want new marker", got)
	}
	if _, err := os.Stat(filepath.Join(location, BackupDirName)); !os.IsNotExist(err) {
		t.Fatal("backup directory should be gone after a successful upgrade")
	}

	// Relocation then migration, in that order.
	if len(runner.calls) != 2 {
		t.Fatalf("runner calls = %v, want reloc + migration", runner.calls)
	}
	wantReloc := filepath.Join(root, "bin", "install", "reloc.sh")
	if runner.calls[0][0] != wantReloc || runner.calls[0][1] != root {
		t.Fatalf("reloc call = %v", runner.calls[0])
	}
	wantMigrate := filepath.Join(root, "bin", "cbupgrade")
	wantCfg := filepath.Join(root, "var", "lib", "couchbase", "config")
	want := []string{wantMigrate, "-c", wantCfg, "-a", "yes"}
	for i, arg := range want {
		if runner.calls[1][i] != arg {
			t.Fatalf("migration call = %v, want %v", runner.calls[1], want)
		}
	}

	if out.String() == "" {
		t.Fatal("expected a success confirmation")
	}
}

func TestUpgrade_BackupTargetExistsLeavesTreeUntouched(t *testing.T) {
	location := t.TempDir()
	root := installedTree(t, location)
	if err := os.MkdirAll(filepath.Join(location, BackupDirName), 0o755); err != nil {
		t.Fatalf("mkdir backup: %v", err)
	}
	extracted := false
	swapExtract(t, func(string, string) error { extracted = true; return nil })
	runner := &fakeRunner{}

	err := Upgrade(upgradeOptions(location, runner))
	if !errors.Is(err, ErrBackupTargetExists) {
		t.Fatalf("err = %v, want ErrBackupTargetExists", err)
	}
	if extracted || len(runner.calls) != 0 {
		t.Fatal("no removal or unpack may happen with a stale backup present")
	}
	if got := readTreeFile(t, root, "VERSION.txt"); got != "7.1.3-3479\n" {
		t.Fatalf("tree was modified: VERSION.txt = %q", got)
	}
	if got := readTreeFile(t, root, "lib/libcouchbase.so"); got != "old-lib" {
		t.Fatalf("tree was modified: lib = %q", got)
	}
}

func TestUpgrade_EmptyTarget(t *testing.T) {
	runner := &fakeRunner{}
	err := Upgrade(upgradeOptions(t.TempDir(), runner))
	if !errors.Is(err, ErrEmptyUpgradeTarget) {
		t.Fatalf("err = %v, want ErrEmptyUpgradeTarget", err)
	}
}

func TestUpgrade_SameVersionRejected(t *testing.T) {
	location := t.TempDir()
	installedTree(t, location)
	runner := &fakeRunner{}
	opts := upgradeOptions(location, runner)
	opts.PackagePath = "couchbase-server-enterprise-7.1.3-linux.x86_64.rpm"

	err := Upgrade(opts)
	if !errors.Is(err, policy.ErrConflict) {
		t.Fatalf("err = %v, want policy.ErrConflict", err)
	}
	if len(runner.calls) != 0 {
		t.Fatal("no child process may run for a rejected upgrade")
	}
}

func TestUpgrade_LivenessOutcomes(t *testing.T) {
	location := t.TempDir()
	installedTree(t, location)
	swapExtract(t, func(string, string) error { t.Fatal("unpack must not run"); return nil })

	opts := upgradeOptions(location, &fakeRunner{})
	opts.Liveness = func(string) (bool, error) { return true, nil }
	if err := Upgrade(opts); !errors.Is(err, ErrServerStillRunning) {
		t.Fatalf("err = %v, want ErrServerStillRunning", err)
	}

	opts.Liveness = func(string) (bool, error) { return false, errors.New("procfs gone") }
	if err := Upgrade(opts); !errors.Is(err, ErrLivenessCheckFailed) {
		t.Fatalf("err = %v, want ErrLivenessCheckFailed", err)
	}
}

func TestInstall_TargetNotEmpty(t *testing.T) {
	location := t.TempDir()
	writeTreeFile(t, location, "leftover.txt", "x")
	extracted := false
	swapExtract(t, func(string, string) error { extracted = true; return nil })

	opts := upgradeOptions(location, &fakeRunner{})
	err := Install(opts)
	if !errors.Is(err, ErrInstallTargetNotEmpty) {
		t.Fatalf("err = %v, want ErrInstallTargetNotEmpty", err)
	}
	if extracted {
		t.Fatal("no extraction may happen into a non-empty directory")
	}
}

func TestInstall_UnpacksAndRelocates(t *testing.T) {
	location := filepath.Join(t.TempDir(), "server")
	swapExtract(t, newTreeExtract)
	runner := &fakeRunner{}
	out := &bytes.Buffer{}

	opts := upgradeOptions(location, runner)
	opts.Out = out
	if err := Install(opts); err != nil {
		t.Fatalf("Install: %v", err)
	}
	root := filepath.Join(location, filepath.FromSlash(ServerRelRoot))
	if got := readTreeFile(t, root, "VERSION.txt"); got != "7.6.2-100\n" {
		t.Fatalf("VERSION.txt = %q", got)
	}
	if len(runner.calls) != 1 || runner.calls[0][0] != filepath.Join(root, "bin", "install", "reloc.sh") {
		t.Fatalf("runner calls = %v, want a single reloc invocation", runner.calls)
	}
	if out.String() == "" {
		t.Fatal("expected a success confirmation")
	}
}

func TestInstall_RelocFailureIsUnpackFailed(t *testing.T) {
	location := filepath.Join(t.TempDir(), "server")
	swapExtract(t, newTreeExtract)
	runner := &fakeRunner{err: errors.New("exit status 3")}

	err := Install(upgradeOptions(location, runner))
	if !errors.Is(err, ErrUnpackFailed) {
		t.Fatalf("err = %v, want ErrUnpackFailed", err)
	}
}

func TestOptions_Validation(t *testing.T) {
	if err := Install(Options{}); err == nil {
		t.Fatal("nil system must be rejected")
	}
	if err := Install(Options{System: RealSystem{}}); err == nil {
		t.Fatal("missing install location must be rejected")
	}
	if err := Install(Options{System: RealSystem{}, InstallLocation: "x"}); err == nil {
		t.Fatal("missing package path must be rejected")
	}
}

func TestUpgradeManifest_ConditionalsStayInSync(t *testing.T) {
	location := t.TempDir()
	root := installedTree(t, location)

	m := upgradeManifest(RealSystem{}, root)
	inPreserve := map[string]bool{}
	for _, rel := range m.preserve {
		inPreserve[rel] = true
	}
	if !inPreserve["var/lib/couchbase/ip"] {
		t.Fatal("existing identity file must be preserved")
	}
	if inPreserve["var/lib/couchbase/ip_start"] {
		t.Fatal("absent identity file must not be preserved")
	}
	inRemove := map[string]bool{}
	for _, rel := range m.remove {
		inRemove[rel] = true
	}
	for _, rel := range m.preserve {
		if rel == "etc" || rel == configRelDir {
			continue
		}
		if !inRemove[rel] {
			t.Fatalf("preserved path %s missing from the removal set", rel)
		}
	}
	if inRemove["var/lib/couchbase/ip_start"] {
		t.Fatal("absent identity file must not be scheduled for removal")
	}
}
