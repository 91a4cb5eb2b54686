package supervisor

import "strings"

// detectState inspects one non-empty log line for known startup/shutdown
// markers, given the server's current state. It returns matched=false
// when the line carries no signal.
func detectState(current, line string) (next stateSignal, matched bool) {
	lower := strings.ToLower(line)

	if strings.Contains(line, "Done") && (strings.Contains(line, "For help") || strings.Contains(line, "help")) {
		// Running is the target state here, so this is safe regardless of
		// current state and never regresses an already-Running server.
		return signalRunning, true
	}

	if strings.Contains(lower, "starting minecraft server") || strings.Contains(lower, "starting net.minecraft.server") {
		if current == string(signalRunning) {
			return "", false
		}
		return signalStarting, true
	}

	if strings.Contains(line, "Stopping server") || strings.Contains(line, "Stopping the server") || strings.Contains(line, "Saving worlds") {
		return signalStopping, true
	}

	return "", false
}

type stateSignal string

const (
	signalStarting stateSignal = "Starting"
	signalRunning  stateSignal = "Running"
	signalStopping stateSignal = "Stopping"
)
