// Package hostexec abstracts process launch behind a HostExecutor
// capability, for deployments where the control plane runs in its own
// container but must spawn game-server processes in the host's process
// namespace. The Supervisor and the Installer depend only on this
// interface; they never call exec.Command directly.
package hostexec

import (
	"context"
	"os/exec"
)

// HostExecutor builds a *exec.Cmd for argv, optionally rewriting it to
// reach the host's process namespace.
type HostExecutor interface {
	Command(ctx context.Context, dir string, argv []string) *exec.Cmd
}

// Direct runs argv as-is, fork/exec in this process's own namespace. Used
// when the supervisor itself runs directly on the host.
type Direct struct{}

func (Direct) Command(ctx context.Context, dir string, argv []string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	return cmd
}

// Nsenter wraps argv with a namespace-entering prefix, for deployments
// where the supervisor runs inside a container but must spawn game-server
// processes in the host's process namespace.
type Nsenter struct {
	// Prefix is prepended to argv, e.g. []string{"nsenter", "-t", "1", "-m", "-p", "--"}.
	Prefix []string
}

func (n Nsenter) Command(ctx context.Context, dir string, argv []string) *exec.Cmd {
	full := make([]string, 0, len(n.Prefix)+len(argv))
	full = append(full, n.Prefix...)
	full = append(full, argv...)
	cmd := exec.CommandContext(ctx, full[0], full[1:]...)
	cmd.Dir = dir
	return cmd
}

// New picks Direct or Nsenter based on whether a namespace prefix is
// configured (HOST_SERVERS_NSENTER_PREFIX).
func New(nsenterPrefix []string) HostExecutor {
	if len(nsenterPrefix) == 0 {
		return Direct{}
	}
	return Nsenter{Prefix: nsenterPrefix}
}
