// Package proc detects whether a server installation is live by looking for
// running processes whose executable lives under the installation root.
package proc

import (
	"path/filepath"
	"strings"

	"github.com/shirou/gopsutil/v3/process"
	log "github.com/sirupsen/logrus"
)

// processList is swapped out by tests; the default asks gopsutil for the
// full process table.
var processList = func() ([]*process.Process, error) {
	return process.Processes()
}

// Running reports whether any process on the host executes a binary located
// under root. Processes whose executable path cannot be read (permission
// denied, already exited) are skipped rather than treated as a failure.
func Running(root string) (bool, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return false, err
	}
	procs, err := processList()
	if err != nil {
		return false, err
	}
	prefix := absRoot + string(filepath.Separator)
	for _, p := range procs {
		exe, err := p.Exe()
		if err != nil || exe == "" {
			continue
		}
		if exe == absRoot || strings.HasPrefix(exe, prefix) {
			log.Debugf("process %d (%s) runs from %s", p.Pid, exe, absRoot)
			return true, nil
		}
	}
	return false, nil
}
