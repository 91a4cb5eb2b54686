// Package engine wires every component (C1-C13) into a single struct
// constructed once at process startup and passed by reference to the HTTP
// and WebSocket handlers.
package engine

import (
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/forgehost/panel/internal/auth"
	"github.com/forgehost/panel/internal/backup"
	"github.com/forgehost/panel/internal/cache"
	"github.com/forgehost/panel/internal/catalog"
	"github.com/forgehost/panel/internal/cfg"
	"github.com/forgehost/panel/internal/hostexec"
	"github.com/forgehost/panel/internal/hub"
	"github.com/forgehost/panel/internal/installer"
	"github.com/forgehost/panel/internal/model"
	"github.com/forgehost/panel/internal/progress"
	"github.com/forgehost/panel/internal/provisioning"
	"github.com/forgehost/panel/internal/registry"
	"github.com/forgehost/panel/internal/resolver"
	"github.com/forgehost/panel/internal/supervisor"
)

const (
	logRingCapacity  = 1000
	subQueueCapacity = 256
)

// Engine is every long-lived component the HTTP and WS layers depend on.
type Engine struct {
	Config       cfg.Config
	Log          *zap.Logger
	DB           *gorm.DB
	Cache        *cache.Cache
	Catalog      *catalog.Client
	Resolver     *resolver.Resolver
	Installer    *installer.Installer
	Hub          *hub.Hub
	Supervisor   *supervisor.Supervisor
	Registry     *registry.Registry
	Progress     *progress.Channel
	Orchestrator *provisioning.Orchestrator
	Backup       *backup.Manager
	Auth         *auth.Identifier
}

// New constructs and migrates every component, wiring the supervisor's
// state callback back into the registry so a server's authoritative state
// always reflects what the supervisor actually observed.
func New(c cfg.Config, log *zap.Logger) (*Engine, error) {
	db, err := gorm.Open(sqlite.Open(c.DatabaseURL), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	artifactCache, err := cache.New(c.CacheRoot, log)
	if err != nil {
		return nil, fmt.Errorf("open artifact cache: %w", err)
	}

	catalogClient := catalog.New("https://api.curseforge.com", c.CatalogAPIKey, log)
	res := resolver.New(catalogClient)
	exec := hostExecutorFor(c)
	inst := installer.New(catalogClient, artifactCache, res, exec, log)

	h := hub.New(logRingCapacity, subQueueCapacity)
	reg := registry.New(db)
	prog := progress.New()

	e := &Engine{
		Config:    c,
		Log:       log,
		DB:        db,
		Cache:     artifactCache,
		Catalog:   catalogClient,
		Resolver:  res,
		Installer: inst,
		Hub:       h,
		Registry:  reg,
		Progress:  prog,
		Auth:      auth.New(c.AuthSecret),
	}

	e.Supervisor = supervisor.New(h, exec, e.onSupervisorState, log)
	e.Orchestrator = provisioning.New(catalogClient, reg, prog, db, c.ServersBaseDir, log)
	e.Backup = backup.New(db, reg, e.Supervisor, prog, c.CacheRoot+"/backups", c.BackupRetentionDays, log)

	if err := e.migrate(); err != nil {
		return nil, err
	}
	if err := e.Backup.StartScheduler(c.BackupCron); err != nil {
		return nil, fmt.Errorf("start backup scheduler: %w", err)
	}

	return e, nil
}

// onSupervisorState is the Supervisor's StateCallback: the registry is the
// only writer of a server's authoritative lifecycle state, so every
// transition the supervisor observes lands here before anywhere else.
func (e *Engine) onSupervisorState(serverID string, state model.State, exitCode *int) {
	id, err := parseServerID(serverID)
	if err != nil {
		e.Log.Warn("state callback with unparseable server id", zap.String("server_id", serverID), zap.Error(err))
		return
	}
	if err := e.Registry.SetState(id, state); err != nil {
		e.Log.Warn("failed to persist supervisor state transition", zap.String("server_id", serverID), zap.String("state", string(state)), zap.Error(err))
	}
}

func (e *Engine) migrate() error {
	if err := e.Registry.Migrate(); err != nil {
		return fmt.Errorf("migrate registry: %w", err)
	}
	if err := e.Orchestrator.Migrate(); err != nil {
		return fmt.Errorf("migrate orchestrator: %w", err)
	}
	if err := e.Backup.Migrate(); err != nil {
		return fmt.Errorf("migrate backup manager: %w", err)
	}
	return nil
}

func hostExecutorFor(c cfg.Config) hostexec.HostExecutor {
	if c.NsenterPrefix == "" {
		return hostexec.Direct{}
	}
	return hostexec.Nsenter{Prefix: splitPrefix(c.NsenterPrefix)}
}

func splitPrefix(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ' ' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}

func parseServerID(serverID string) (uuid.UUID, error) {
	return uuid.Parse(serverID)
}

// Close releases every component holding a background goroutine or file
// handle.
func (e *Engine) Close() {
	e.Backup.Stop()
	e.Progress.Close()
	e.Catalog.Close()
}
