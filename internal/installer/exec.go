package installer

import (
	"os"
	"os/exec"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Runner starts a packaged executable and blocks until it exits. A non-nil
// error means a non-zero exit or a failure to start.
type Runner interface {
	Run(name string, args ...string) error
}

// execRunner runs child processes with LD_LIBRARY_PATH scrubbed from the
// environment, so the relocation and migration executables resolve their own
// bundled libraries instead of inherited ones. Child output is forwarded to
// the debug log.
type execRunner struct{}

func (execRunner) Run(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	cmd.Env = scrubEnv(os.Environ())
	out := log.StandardLogger().WriterLevel(log.DebugLevel)
	defer func() { _ = out.Close() }()
	cmd.Stdout = out
	cmd.Stderr = out
	log.Debugf("running %s %s", name, strings.Join(args, " "))
	return cmd.Run()
}

func scrubEnv(env []string) []string {
	out := make([]string, 0, len(env))
	for _, kv := range env {
		if strings.HasPrefix(kv, "LD_LIBRARY_PATH=") {
			continue
		}
		out = append(out, kv)
	}
	return out
}
