// Package supervisor launches, tracks, signals, and reaps game-server
// child processes, fans their stdout/stderr through the log hub, accepts
// commands on stdin, and derives lifecycle state from log patterns.
package supervisor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"syscall"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"
	"go.uber.org/zap"

	"github.com/forgehost/panel/internal/apierr"
	"github.com/forgehost/panel/internal/hostexec"
	"github.com/forgehost/panel/internal/hub"
	"github.com/forgehost/panel/internal/installer"
	"github.com/forgehost/panel/internal/model"
)

const (
	gracefulStopTimeout  = 30 * time.Second
	terminateGracePeriod = 5 * time.Second
)

// StateCallback mirrors a supervisor-observed transition back to the
// server registry, which is the only place the authoritative
// Running/Stopped/Exited mutation should land.
type StateCallback func(serverID string, state model.State, exitCode *int)

// entry is the in-memory bookkeeping for one live child process.
type entry struct {
	mu        sync.Mutex
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	startedAt time.Time
	state     model.State
	done      chan struct{}
	exitCode  int
}

// Supervisor is the Process Supervisor (C6).
type Supervisor struct {
	hub     *hub.Hub
	exec    hostexec.HostExecutor
	onState StateCallback
	log     *zap.Logger

	entries cmap.ConcurrentMap[string, *entry]
}

// New returns a Supervisor.
func New(h *hub.Hub, exec hostexec.HostExecutor, onState StateCallback, log *zap.Logger) *Supervisor {
	return &Supervisor{
		hub:     h,
		exec:    exec,
		onState: onState,
		log:     log,
		entries: cmap.New[*entry](),
	}
}

// BuildArgv constructs the launch command for a descriptor.
func BuildArgv(desc installer.Descriptor, memMB int, userOpts string) []string {
	switch desc.Kind {
	case installer.DescriptorJar:
		minHeap := memMB
		if minHeap > 1024 {
			minHeap = 1024
		}
		argv := []string{"java", fmt.Sprintf("-Xmx%dM", memMB), fmt.Sprintf("-Xms%dM", minHeap)}
		if userOpts != "" {
			argv = append(argv, splitOpts(userOpts)...)
		}
		argv = append(argv, "-jar", desc.Path, "nogui")
		return argv
	default: // script: JVM args already live in user_jvm_args.txt
		return []string{"sh", desc.Path, "nogui"}
	}
}

func splitOpts(s string) []string {
	var out []string
	start := -1
	for i, c := range s {
		if c != ' ' {
			if start == -1 {
				start = i
			}
		} else if start != -1 {
			out = append(out, s[start:i])
			start = -1
		}
	}
	if start != -1 {
		out = append(out, s[start:])
	}
	return out
}

// IsRunning reports whether a supervisor entry exists for serverID.
func (s *Supervisor) IsRunning(serverID string) bool {
	_, ok := s.entries.Get(serverID)
	return ok
}

// Start spawns argv inside dir, wiring stdio and recording a supervisor
// entry. It publishes Starting immediately, then continues ingesting
// stdout/stderr in the background until the process exits.
func (s *Supervisor) Start(serverID, dir string, argv []string) error {
	if s.IsRunning(serverID) {
		return apierr.New(apierr.AlreadyRunning, "server is already running", map[string]any{"server_id": serverID})
	}

	ctx := context.Background()
	cmd := s.exec.Command(ctx, dir, argv)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return apierr.Wrap(err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return apierr.Wrap(err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return apierr.Wrap(err)
	}

	if err := cmd.Start(); err != nil {
		return apierr.New(apierr.Internal, fmt.Sprintf("failed to spawn process: %v", err), nil)
	}

	e := &entry{cmd: cmd, stdin: stdin, startedAt: time.Now(), state: model.StateStarting, done: make(chan struct{})}
	s.entries.Set(serverID, e)

	s.publishState(serverID, e, model.StateStarting)

	go s.readStream(serverID, e, stdout, "stdout")
	go s.readStream(serverID, e, stderr, "stderr")
	go s.wait(serverID, e)

	return nil
}

func (s *Supervisor) readStream(serverID string, e *entry, r io.Reader, stream string) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		s.hub.PublishLog(serverID, stream, line)
		s.inspectLine(serverID, e, line)
	}
}

func (s *Supervisor) inspectLine(serverID string, e *entry, line string) {
	e.mu.Lock()
	current := e.state
	e.mu.Unlock()

	signal, matched := detectState(string(current), line)
	if !matched {
		return
	}

	var next model.State
	switch signal {
	case signalRunning:
		next = model.StateRunning
	case signalStarting:
		next = model.StateStarting
	case signalStopping:
		next = model.StateStopping
	default:
		return
	}

	if current == next {
		return
	}
	// Never regress Running -> Starting.
	if current == model.StateRunning && next == model.StateStarting {
		return
	}

	e.mu.Lock()
	e.state = next
	e.mu.Unlock()
	s.publishState(serverID, e, next)
}

func (s *Supervisor) publishState(serverID string, e *entry, state model.State) {
	s.hub.PublishState(serverID, state)
	if s.onState != nil {
		s.onState(serverID, state, nil)
	}
}

func (s *Supervisor) wait(serverID string, e *entry) {
	err := e.cmd.Wait()
	close(e.done)

	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}

	e.mu.Lock()
	e.exitCode = exitCode
	priorState := e.state
	e.mu.Unlock()

	s.entries.Remove(serverID)
	s.hub.Release(serverID)

	final := model.StateExited
	if priorState == model.StateStopping && exitCode == 0 {
		final = model.StateStopped
	} else if priorState == model.StateStarting {
		final = model.StateError
	}

	s.hub.PublishState(serverID, final)
	if s.onState != nil {
		ec := exitCode
		s.onState(serverID, final, &ec)
	}
}

// SendCommand writes text to the child's stdin iff the server is Running,
// and appends the command to the ring as a system-origin line so all
// subscribers see it interleaved with output.
func (s *Supervisor) SendCommand(serverID, text string) error {
	e, ok := s.entries.Get(serverID)
	if !ok {
		return apierr.New(apierr.NotRunning, "server is not running", map[string]any{"server_id": serverID})
	}

	e.mu.Lock()
	state := e.state
	e.mu.Unlock()
	if state != model.StateRunning {
		return apierr.New(apierr.NotRunning, "server is not running", map[string]any{"server_id": serverID})
	}

	if _, err := io.WriteString(e.stdin, text+"\n"); err != nil {
		return apierr.Wrap(err)
	}
	s.hub.PublishLog(serverID, "system", "> "+text)
	return nil
}

// Stop writes "stop" to stdin and waits up to 30s for exit; escalates to a
// terminate signal, then after a further 5s to a kill signal.
func (s *Supervisor) Stop(serverID string) error {
	e, ok := s.entries.Get(serverID)
	if !ok {
		return apierr.New(apierr.AlreadyStopped, "server is not running", map[string]any{"server_id": serverID})
	}

	e.mu.Lock()
	e.state = model.StateStopping
	e.mu.Unlock()
	s.publishState(serverID, e, model.StateStopping)

	io.WriteString(e.stdin, "stop\n")

	select {
	case <-e.done:
		return nil
	case <-time.After(gracefulStopTimeout):
	}

	_ = e.cmd.Process.Signal(syscall.SIGTERM)

	select {
	case <-e.done:
		return nil
	case <-time.After(terminateGracePeriod):
	}

	_ = e.cmd.Process.Kill()
	<-e.done
	return nil
}

// ForceKill bypasses the grace period entirely; server deletion uses it to
// kill a running process.
func (s *Supervisor) ForceKill(serverID string) error {
	e, ok := s.entries.Get(serverID)
	if !ok {
		return apierr.New(apierr.AlreadyStopped, "server is not running", map[string]any{"server_id": serverID})
	}
	_ = e.cmd.Process.Kill()
	<-e.done
	return nil
}
