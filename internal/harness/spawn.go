package harness

import (
	"os/exec"

	"github.com/pkg/errors"
)

// ResolverSpec is the static description of one resolver under test:
// what to execute, and where its coverage shim will listen for control
// connections (spec §3's per-resolver config, restated from
// original_source/dnsauth/src/config.rs's AuthConfig shape).
type ResolverSpec struct {
	ID          string
	Path        string
	Args        []string
	ControlAddr string
}

// process wraps the spawned resolver subprocess so Run can wait on it or
// kill it without every state needing exec.Cmd details.
type process struct {
	cmd *exec.Cmd
}

// spawn starts the resolver binary with the control-protocol environment
// variables the coverage shim reads on startup (spec §6): the address it
// must bind its control socket to, whether to emit startup debug output,
// and whether to print its final counter on exit for crash triage.
func spawn(spec ResolverSpec) (*process, error) {
	cmd := exec.Command(spec.Path, spec.Args...)
	cmd.Env = append(cmd.Env,
		"FUZZEE_LISTEN_ADDR="+spec.ControlAddr,
		"FUZZEE_STARTUP_DEBUG=0",
		"FUZZEE_COUNTER_ON_EXIT=1",
	)
	if err := cmd.Start(); err != nil {
		return nil, errors.Wrapf(err, "spawning resolver %s", spec.ID)
	}
	return &process{cmd: cmd}, nil
}

// kill terminates the resolver process, ignoring the case where it has
// already exited.
func (p *process) kill() {
	if p.cmd.Process == nil {
		return
	}
	_ = p.cmd.Process.Kill()
}

// wait blocks until the resolver process exits and reports whether it
// exited cleanly.
func (p *process) wait() error {
	return p.cmd.Wait()
}
