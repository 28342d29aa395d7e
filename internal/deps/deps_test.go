package deps

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/blakesmith/ar"

	"github.com/couchbase/cb-non-package-installer/internal/testutil"
)

func controlOnlyDeb(t *testing.T, dir string, control string) string {
	t.Helper()
	member := func(files map[string]string) []byte {
		var buf bytes.Buffer
		gz := gzip.NewWriter(&buf)
		tw := tar.NewWriter(gz)
		for name, body := range files {
			hdr := &tar.Header{Name: name, Mode: 0o644, Size: int64(len(body)), ModTime: time.Unix(0, 0)}
			if err := tw.WriteHeader(hdr); err != nil {
				t.Fatalf("tar header: %v", err)
			}
			if _, err := tw.Write([]byte(body)); err != nil {
				t.Fatalf("tar body: %v", err)
			}
		}
		if err := tw.Close(); err != nil {
			t.Fatalf("close tar: %v", err)
		}
		if err := gz.Close(); err != nil {
			t.Fatalf("close gzip: %v", err)
		}
		return buf.Bytes()
	}

	path := filepath.Join(dir, "couchbase-server-enterprise_7.1.3-ubuntu20.04_amd64.deb")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create deb: %v", err)
	}
	defer func() { _ = f.Close() }()
	w := ar.NewWriter(f)
	if err := w.WriteGlobalHeader(); err != nil {
		t.Fatalf("ar global header: %v", err)
	}
	members := []struct {
		name string
		body []byte
	}{
		{"debian-binary", []byte("2.0\n")},
		{"control.tar.gz", member(map[string]string{"./control": control})},
		{"data.tar.gz", member(map[string]string{"./opt/couchbase/VERSION.txt": "7.1.3-3479\n"})},
	}
	for _, m := range members {
		hdr := &ar.Header{Name: m.name, ModTime: time.Unix(0, 0), Mode: 0o644, Size: int64(len(m.body))}
		if err := w.WriteHeader(hdr); err != nil {
			t.Fatalf("ar header: %v", err)
		}
		if _, err := w.Write(m.body); err != nil {
			t.Fatalf("ar body: %v", err)
		}
	}
	return path
}

func TestMissing_DebReportsAbsentDependencies(t *testing.T) {
	dir := t.TempDir()
	pkg := controlOnlyDeb(t, dir,
		"Package: couchbase-server\n"+
			"Depends: libncurses5 (>= 5.5-5~), libtinfo5, python3 | python3-minimal, couchbase-server-core\n")

	present := map[string]bool{"libncurses5": true, "python3": true}
	checker := Checker{
		QueryDeb: func(name string) (bool, error) { return present[name], nil },
	}
	missing, err := checker.Missing(pkg)
	if err != nil {
		t.Fatalf("Missing: %v", err)
	}
	if len(missing) != 1 || missing[0] != "libtinfo5" {
		t.Fatalf("missing = %v, want [libtinfo5]", missing)
	}
}

func TestMissing_DebAllPresent(t *testing.T) {
	dir := t.TempDir()
	pkg := controlOnlyDeb(t, dir, "Package: couchbase-server\nDepends: libtinfo5\n")
	checker := Checker{
		QueryDeb: func(string) (bool, error) { return true, nil },
	}
	missing, err := checker.Missing(pkg)
	if err != nil {
		t.Fatalf("Missing: %v", err)
	}
	if len(missing) != 0 {
		t.Fatalf("missing = %v, want none", missing)
	}
}

func TestMissing_NoDependsField(t *testing.T) {
	dir := t.TempDir()
	pkg := controlOnlyDeb(t, dir, "Package: couchbase-server\n")
	queried := false
	checker := Checker{
		QueryDeb: func(string) (bool, error) { queried = true; return false, nil },
	}
	missing, err := checker.Missing(pkg)
	if err != nil {
		t.Fatalf("Missing: %v", err)
	}
	if len(missing) != 0 || queried {
		t.Fatalf("missing = %v, queried = %v; want none and no queries", missing, queried)
	}
}

func TestMissing_UnknownExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "package.tgz")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := (Checker{}).Missing(path); err == nil {
		t.Fatal("expected error for unknown package kind")
	}
}

func TestDebDeclared_ParsesClauses(t *testing.T) {
	dir := t.TempDir()
	pkg := controlOnlyDeb(t, dir,
		"Package: couchbase-server\n"+
			"Depends: libc6:amd64 (>= 2.17), python3 | python3-minimal, libtinfo5, libtinfo5\n")
	declared, err := debDeclared(pkg)
	if err != nil {
		t.Fatalf("debDeclared: %v", err)
	}
	want := []string{"libc6", "python3", "libtinfo5"}
	if len(declared) != len(want) {
		t.Fatalf("declared = %v, want %v", declared, want)
	}
	for i := range want {
		if declared[i] != want[i] {
			t.Fatalf("declared = %v, want %v", declared, want)
		}
	}
}

func TestRunQuery_UsesExitCode(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteStub(t, dir, "rpm")
	testutil.WriteStubWithExit(t, dir, "dpkg", 1)
	t.Setenv("PATH", dir)

	present, err := runQuery("rpm", "-q", "--whatprovides", "libtinfo")
	if err != nil {
		t.Fatalf("runQuery rpm: %v", err)
	}
	if !present {
		t.Fatal("exit 0 should report present")
	}
	present, err = runQuery("dpkg", "-s", "libtinfo5")
	if err != nil {
		t.Fatalf("runQuery dpkg: %v", err)
	}
	if present {
		t.Fatal("exit 1 should report absent")
	}
	if _, err := runQuery("no-such-package-manager"); err == nil {
		t.Fatal("missing binary should surface an error")
	}
}
