// Package deps verifies that the dependencies a server package declares are
// present on the host. Declared dependencies are read natively from the
// package metadata; presence is established through the platform package
// manager, which stays the source of truth for what is installed.
package deps

import (
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/couchbase/cb-non-package-installer/internal/archive"
	"github.com/couchbase/cb-non-package-installer/internal/messages"
)

// QueryHost reports whether a single dependency is present. Implementations
// are expected to block until the underlying query completes.
type QueryHost func(name string) (bool, error)

// Checker resolves a package's declared dependencies against the host.
// A zero Checker queries through rpm/dpkg; tests override the query funcs.
type Checker struct {
	QueryRPM QueryHost
	QueryDeb QueryHost
}

// Missing returns the declared dependencies of pkgPath that are not present
// on this host, sorted by name. An empty result means the package's
// requirements are satisfied.
func (c Checker) Missing(pkgPath string) ([]string, error) {
	kind, err := archive.KindOf(pkgPath)
	if err != nil {
		return nil, err
	}
	var declared []string
	var query QueryHost
	switch kind {
	case archive.KindRPM:
		declared, err = rpmDeclared(pkgPath)
		query = c.QueryRPM
		if query == nil {
			query = rpmHostQuery
		}
	default:
		declared, err = debDeclared(pkgPath)
		query = c.QueryDeb
		if query == nil {
			query = debHostQuery
		}
	}
	if err != nil {
		return nil, fmt.Errorf(messages.DepsDeclaredFmt, pkgPath, err)
	}

	missing := make([]string, 0)
	for _, name := range declared {
		present, err := query(name)
		if err != nil {
			return nil, fmt.Errorf(messages.DepsQueryFailedFmt, name, err)
		}
		log.Debugf("dependency %s present=%v", name, present)
		if !present {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)
	return missing, nil
}

// rpmDeclared reads the require entries from the rpm header, dropping the
// rpmlib() internals, file-path capabilities and the package's own provides.
func rpmDeclared(pkgPath string) ([]string, error) {
	requires, err := archive.RPMRequires(pkgPath)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(requires))
	seen := make(map[string]struct{})
	for _, name := range requires {
		if strings.HasPrefix(name, "rpmlib(") ||
			strings.HasPrefix(name, "config(") ||
			strings.HasPrefix(name, "/") ||
			strings.HasPrefix(name, "couchbase") {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out, nil
}

// debDeclared parses the Depends control field. Version constraints and
// architecture qualifiers are stripped; for alternatives (a | b) only the
// first choice is checked, matching how dpkg would resolve a default install.
func debDeclared(pkgPath string) ([]string, error) {
	fields, err := archive.DebControl(pkgPath)
	if err != nil {
		return nil, err
	}
	depends := fields["Depends"]
	if strings.TrimSpace(depends) == "" {
		return nil, nil
	}
	out := make([]string, 0)
	seen := make(map[string]struct{})
	for _, clause := range strings.Split(depends, ",") {
		first, _, _ := strings.Cut(clause, "|")
		name := strings.TrimSpace(first)
		if idx := strings.IndexAny(name, " ("); idx >= 0 {
			name = name[:idx]
		}
		name, _, _ = strings.Cut(name, ":")
		if name == "" || strings.HasPrefix(name, "couchbase") {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out, nil
}

// rpmHostQuery asks the rpm database which package provides the capability.
// A non-zero exit means nothing provides it.
func rpmHostQuery(name string) (bool, error) {
	return runQuery("rpm", "-q", "--whatprovides", name)
}

// debHostQuery checks the dpkg status database for the package.
func debHostQuery(name string) (bool, error) {
	return runQuery("dpkg", "-s", name)
}

func runQuery(command string, args ...string) (bool, error) {
	cmd := exec.Command(command, args...)
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
