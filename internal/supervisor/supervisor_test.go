package supervisor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/forgehost/panel/internal/hostexec"
	"github.com/forgehost/panel/internal/hub"
	"github.com/forgehost/panel/internal/installer"
	"github.com/forgehost/panel/internal/model"
)

func TestBuildArgvJarCapsMinHeapAt1024(t *testing.T) {
	t.Parallel()

	argv := BuildArgv(installer.Descriptor{Kind: installer.DescriptorJar, Path: "server.jar"}, 4096, "")
	assert.Contains(t, argv, "-Xmx4096M")
	assert.Contains(t, argv, "-Xms1024M")
	assert.Contains(t, argv, "server.jar")
}

func TestBuildArgvJarLeavesSmallHeapUncapped(t *testing.T) {
	t.Parallel()

	argv := BuildArgv(installer.Descriptor{Kind: installer.DescriptorJar, Path: "server.jar"}, 512, "")
	assert.Contains(t, argv, "-Xms512M")
}

func TestBuildArgvScriptIgnoresMemory(t *testing.T) {
	t.Parallel()

	argv := BuildArgv(installer.Descriptor{Kind: installer.DescriptorScript, Path: "run.sh"}, 2048, "")
	assert.Equal(t, []string{"sh", "run.sh", "nogui"}, argv)
}

func TestStartSendCommandAndStopLifecycle(t *testing.T) {
	t.Parallel()

	h := hub.New(100, 64)
	var observed []model.State
	s := New(h, hostexec.Direct{}, func(serverID string, state model.State, exitCode *int) {
		observed = append(observed, state)
	}, zap.NewNop())

	dir := t.TempDir()
	// A tiny shell program that echoes, accepts a "stop" line, and exits.
	argv := []string{"sh", "-c", `
echo "Starting minecraft server version 1.20.1"
echo "Done (1.2s)! For help, type help"
while read -r line; do
  if [ "$line" = "stop" ]; then
    echo "Stopping the server"
    exit 0
  fi
  echo "> $line"
done
`}

	require.NoError(t, s.Start("srv1", dir, argv))

	sub := h.SubscribeLogs("srv1")
	<-sub.Recv() // backlog

	require.Eventually(t, func() bool { return s.IsRunning("srv1") }, time.Second, 10*time.Millisecond)

	deadline := time.After(2 * time.Second)
	sawRunning := false
	for !sawRunning {
		select {
		case ev := <-sub.Recv():
			if ev.Line != nil && ev.Line.Text == "Done (1.2s)! For help, type help" {
				sawRunning = true
			}
		case <-deadline:
			t.Fatal("timed out waiting for running log line")
		}
	}

	require.NoError(t, s.SendCommand("srv1", "list"))
	require.NoError(t, s.Stop("srv1"))

	assert.Contains(t, observed, model.StateStarting)
	assert.Contains(t, observed, model.StateRunning)
	assert.Contains(t, observed, model.StateStopped)
}

func TestSendCommandFailsWhenNotRunning(t *testing.T) {
	t.Parallel()

	h := hub.New(100, 64)
	s := New(h, hostexec.Direct{}, nil, zap.NewNop())
	err := s.SendCommand("nope", "list")
	assert.Error(t, err)
}

func TestStopOnAlreadyStoppedServerIsNoop(t *testing.T) {
	t.Parallel()

	h := hub.New(100, 64)
	s := New(h, hostexec.Direct{}, nil, zap.NewNop())
	err := s.Stop("nope")
	assert.Error(t, err)
}
