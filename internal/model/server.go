// Package model holds the durable and transient data shapes shared across
// the engine: server records, modpacks, backups, and the lifecycle states
// that tie the supervisor to the registry.
package model

import (
	"time"

	"github.com/google/uuid"
)

// Engine is the game-server engine family. Fetch-plan shape, configuration
// conventions, and version semantics all vary by family.
type Engine string

const (
	EngineVanilla  Engine = "Vanilla"
	EnginePaper    Engine = "Paper"
	EngineSpigot   Engine = "Spigot"
	EngineBukkit   Engine = "Bukkit"
	EngineFabric   Engine = "Fabric"
	EngineForge    Engine = "Forge"
	EngineNeoForge Engine = "NeoForge"
	EngineQuilt    Engine = "Quilt"
	EnginePurpur   Engine = "Purpur"
	EngineFolia    Engine = "Folia"
)

// Lowercase returns the engine name in lowercase, used for jar filenames
// (e.g. "forge-server.jar").
func (e Engine) Lowercase() string {
	out := make([]byte, len(e))
	for i := 0; i < len(e); i++ {
		c := e[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}

// State is the lifecycle state of a ServerRecord.
type State string

const (
	StateStopped  State = "Stopped"
	StateStarting State = "Starting"
	StateRunning  State = "Running"
	StateStopping State = "Stopping"
	StateExited   State = "Exited"
	StateError    State = "Error"
)

// AllowedTransitions enumerates every edge in the state diagram. A
// transition not present here is rejected by the registry's SetState.
var AllowedTransitions = map[State]map[State]bool{
	StateStopped:  {StateStarting: true},
	StateStarting: {StateRunning: true, StateError: true},
	StateRunning:  {StateStopping: true, StateError: true, StateExited: true},
	StateStopping: {StateStopped: true, StateExited: true},
	StateError:    {StateStarting: true},
	StateExited:   {StateStarting: true},
}

// CanTransition reports whether moving from "from" to "to" is legal. A
// forced kill (to=Exited) is always legal regardless of source state.
func CanTransition(from, to State) bool {
	if to == StateExited {
		return true
	}
	if from == to {
		return false
	}
	edges, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	return edges[to]
}

// IsTerminal reports whether a state requires no supervisor entry.
func IsTerminal(s State) bool {
	return s == StateStopped || s == StateExited || s == StateError
}

// StorageKind names how a server's files are addressed on the host.
type StorageKind string

const (
	StorageNamedVolume StorageKind = "NamedVolume"
	StorageBindPath    StorageKind = "BindPath"
)

// GameOptions are the rendered server.properties-adjacent knobs a user can
// configure per server.
type GameOptions struct {
	Seed       *string `json:"seed,omitempty"`
	Difficulty string  `json:"difficulty"`
	Gamemode   string  `json:"gamemode"`
	PVP        bool    `json:"pvp"`
	Whitelist  bool    `json:"whitelist"`
	OnlineMode bool    `json:"onlineMode"`
	MaxPlayers int     `json:"maxPlayers"`
	MOTD       string  `json:"motd"`
}

// DefaultGameOptions mirrors vanilla server.properties defaults.
func DefaultGameOptions() GameOptions {
	return GameOptions{
		Difficulty: "easy",
		Gamemode:   "survival",
		PVP:        true,
		OnlineMode: true,
		MaxPlayers: 20,
		MOTD:       "A forgehost server",
	}
}

// ServerRecord is the durable row for one managed game server.
type ServerRecord struct {
	ID            uuid.UUID   `gorm:"primaryKey;type:text" json:"id"`
	Name          string      `gorm:"uniqueIndex;not null" json:"name"`
	Description   string      `json:"description,omitempty"`
	EngineName    Engine      `json:"engine"`
	Version       string      `json:"version"`
	Port          int         `gorm:"uniqueIndex;not null" json:"port"`
	MemoryMB      int         `json:"memoryMb"`
	JVMOpts       string      `json:"jvmOpts,omitempty"`
	AutoStart     bool        `json:"autoStart"`
	BackupEnabled bool        `json:"backupEnabled"`
	State         State       `json:"state"`
	StorageKind   StorageKind `json:"storageKind"`
	StoragePath   string      `json:"storagePath"`
	ProcessHandle string      `json:"processHandle,omitempty"`
	Options       GameOptions `gorm:"embedded;embeddedPrefix:opt_" json:"options"`
	ModpackID     *string     `json:"modpackId,omitempty"`
	CreatedAt     time.Time   `json:"createdAt"`
	UpdatedAt     time.Time   `json:"updatedAt"`
}

// ServerProperty is a key/value row co-owned by a ServerRecord. The Config
// Writer does not read these rows: server.properties is rendered from the
// record's GameOptions and port when the server is created or updated, not
// on start.
type ServerProperty struct {
	ServerID uuid.UUID `gorm:"primaryKey;type:text" json:"serverId"`
	Key      string    `gorm:"primaryKey" json:"key"`
	Value    string    `json:"value"`
}

// ModpackRecord is the durable cache of upstream catalog modpack metadata.
type ModpackRecord struct {
	ID          string    `gorm:"primaryKey" json:"id"`
	Name        string    `json:"name"`
	Authors     string    `json:"authors"` // comma-joined; catalog authors lists are small
	GameVersion string    `json:"gameVersion"`
	ModLoader   string    `json:"modLoader"`
	DownloadURL string    `json:"downloadUrl"`
	IconURL     string    `json:"iconUrl"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// BackupStatus is the lifecycle state of a BackupRecord.
type BackupStatus string

const (
	BackupPending    BackupStatus = "Pending"
	BackupInProgress BackupStatus = "InProgress"
	BackupCompleted  BackupStatus = "Completed"
	BackupFailed     BackupStatus = "Failed"
)

// BackupType distinguishes user-triggered from scheduled backups.
type BackupType string

const (
	BackupManual    BackupType = "Manual"
	BackupScheduled BackupType = "Scheduled"
)

// BackupRecord is the durable row for one archive of a server's directory.
type BackupRecord struct {
	ID          uuid.UUID    `gorm:"primaryKey;type:text" json:"id"`
	ServerID    uuid.UUID    `gorm:"index" json:"serverId"`
	Name        string       `json:"name"`
	Status      BackupStatus `json:"status"`
	ArchivePath string       `json:"archivePath,omitempty"`
	SizeBytes   int64        `json:"sizeBytes"`
	Type        BackupType   `json:"type"`
	CreatedAt   time.Time    `json:"createdAt"`
	CompletedAt *time.Time   `json:"completedAt,omitempty"`
}

// LogLine is one line of child-process output, transient and bounded to the
// supervisor's per-server ring buffer.
type LogLine struct {
	ServerID uuid.UUID `json:"serverId"`
	Seq      uint64    `json:"seq"`
	WallTime time.Time `json:"wallTime"`
	Stream   string    `json:"stream"` // stdout | stderr | system
	Text     string    `json:"text"`
}
