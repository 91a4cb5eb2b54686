// Package backup is the Backup Manager: it archives a server's storage
// directory into the cache root's backups bucket, tracks BackupRecord rows
// through Pending/InProgress/Completed/Failed, and restores a prior archive
// back onto disk via a staged extract-then-swap.
package backup

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/forgehost/panel/internal/apierr"
	"github.com/forgehost/panel/internal/archiveutil"
	"github.com/forgehost/panel/internal/model"
	"github.com/forgehost/panel/internal/progress"
	"github.com/forgehost/panel/internal/registry"
	"github.com/forgehost/panel/internal/supervisor"
)

// excludedFromBackup names files skipped when archiving a server directory:
// the engine jar/script, which the installer fetches again on the next start
// when it is missing, so it is not worth the space.
var excludedFromBackup = map[string]bool{
	"server.jar":          true,
	"vanilla-server.jar":  true,
	"paper-server.jar":    true,
	"folia-server.jar":    true,
	"purpur-server.jar":   true,
	"fabric-server.jar":   true,
	"spigot-server.jar":   true,
	"bukkit-server.jar":   true,
	"forge.jar":           true,
	"fabric.jar":          true,
	"paper.jar":           true,
	"run.sh":              true,
	"run.bat":             true,
	"forge-installer.jar": true,
}

// Manager is the Backup Manager (C13).
type Manager struct {
	db            *gorm.DB
	registry      *registry.Registry
	supervisor    *supervisor.Supervisor
	progress      *progress.Channel
	backupRoot    string
	retentionDays int
	log           *zap.Logger
	cron          *cron.Cron
}

// New returns a Manager. backupRoot is the directory archives are written
// under, one subdirectory per server id. retentionDays is how long a
// completed backup is kept before a scheduled run prunes it; 0 disables
// pruning.
func New(db *gorm.DB, reg *registry.Registry, sup *supervisor.Supervisor, prog *progress.Channel, backupRoot string, retentionDays int, log *zap.Logger) *Manager {
	return &Manager{
		db:            db,
		registry:      reg,
		supervisor:    sup,
		progress:      prog,
		backupRoot:    backupRoot,
		retentionDays: retentionDays,
		log:           log,
	}
}

// Migrate creates/updates the tables this package owns.
func (m *Manager) Migrate() error {
	return m.db.AutoMigrate(&model.BackupRecord{})
}

// StartScheduler parses cronExpr and begins running runScheduledBackups on
// that schedule. An empty cronExpr disables scheduled backups entirely.
func (m *Manager) StartScheduler(cronExpr string) error {
	if cronExpr == "" {
		return nil
	}
	c := cron.New()
	if _, err := c.AddFunc(cronExpr, m.runScheduledBackups); err != nil {
		return apierr.Wrap(err)
	}
	c.Start()
	m.cron = c
	return nil
}

// Stop halts the cron scheduler, if running.
func (m *Manager) Stop() {
	if m.cron != nil {
		m.cron.Stop()
	}
}

func (m *Manager) runScheduledBackups() {
	servers, err := m.registry.List()
	if err != nil {
		m.log.Warn("scheduled backup: could not list servers", zap.Error(err))
		return
	}
	for _, s := range servers {
		if !s.BackupEnabled {
			continue
		}
		if _, err := m.Create(context.Background(), s.ID, model.BackupScheduled); err != nil {
			m.log.Warn("scheduled backup failed", zap.String("server_id", s.ID.String()), zap.Error(err))
		}
	}
	m.pruneExpiredBackups()
}

// pruneExpiredBackups deletes completed backups older than retentionDays.
// A zero retentionDays disables pruning entirely.
func (m *Manager) pruneExpiredBackups() {
	if m.retentionDays <= 0 {
		return
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -m.retentionDays)

	var expired []model.BackupRecord
	if err := m.db.Where("status = ? AND created_at < ?", model.BackupCompleted, cutoff).Find(&expired).Error; err != nil {
		m.log.Warn("backup retention: could not list expired backups", zap.Error(err))
		return
	}
	for _, rec := range expired {
		if err := m.Delete(rec.ID); err != nil {
			m.log.Warn("backup retention: delete failed", zap.String("backup_id", rec.ID.String()), zap.Error(err))
		}
	}
}

// Create records a Pending BackupRecord for serverID and archives its
// storage directory in the background. It returns at once with a session id;
// callers that want progress streaming watch that session on the Progress
// Channel.
func (m *Manager) Create(ctx context.Context, serverID uuid.UUID, kind model.BackupType) (string, error) {
	rec, err := m.registry.Get(serverID)
	if err != nil {
		return "", err
	}

	sessionID := uuid.NewString()
	m.progress.NewSession(sessionID)

	backupRec := model.BackupRecord{
		ID:        uuid.New(),
		ServerID:  serverID,
		Name:      rec.Name + "-" + time.Now().UTC().Format("20060102-150405"),
		Status:    model.BackupPending,
		Type:      kind,
		CreatedAt: time.Now().UTC(),
	}
	if err := m.db.Create(&backupRec).Error; err != nil {
		return "", apierr.Wrap(err)
	}

	go m.run(ctx, sessionID, rec, &backupRec)
	return sessionID, nil
}

func (m *Manager) run(ctx context.Context, sessionID string, server model.ServerRecord, rec *model.BackupRecord) {
	m.progress.Publish(sessionID, progress.Event{Kind: progress.EventProgress, Step: "archiving", Percent: 10})

	rec.Status = model.BackupInProgress
	_ = m.db.Save(rec).Error

	if err := os.MkdirAll(filepath.Join(m.backupRoot, server.ID.String()), 0o755); err != nil {
		m.fail(sessionID, rec, apierr.Wrap(err))
		return
	}
	archivePath := filepath.Join(m.backupRoot, server.ID.String(), rec.Name+".tar.gz")

	if err := archiveutil.Create(ctx, server.StoragePath, archivePath, excludedFromBackup); err != nil {
		m.fail(sessionID, rec, apierr.New(apierr.InstallerFailed, "backup archiving failed: "+err.Error(), nil))
		return
	}

	info, err := os.Stat(archivePath)
	if err != nil {
		m.fail(sessionID, rec, apierr.Wrap(err))
		return
	}

	rec.Status = model.BackupCompleted
	rec.ArchivePath = archivePath
	rec.SizeBytes = info.Size()
	now := time.Now().UTC()
	rec.CompletedAt = &now
	if err := m.db.Save(rec).Error; err != nil {
		m.log.Warn("backup record save failed", zap.Error(err))
	}

	m.progress.Publish(sessionID, progress.Event{Kind: progress.EventComplete, ServerID: server.ID.String()})
}

func (m *Manager) fail(sessionID string, rec *model.BackupRecord, err error) {
	rec.Status = model.BackupFailed
	_ = m.db.Save(rec).Error
	m.log.Warn("backup failed", zap.String("backup_id", rec.ID.String()), zap.Error(err))
	m.progress.Publish(sessionID, progress.Event{Kind: progress.EventError, Reason: err.Error()})
}

// List returns every BackupRecord for a server, most recent first.
func (m *Manager) List(serverID uuid.UUID) ([]model.BackupRecord, error) {
	var recs []model.BackupRecord
	if err := m.db.Where("server_id = ?", serverID).Order("created_at desc").Find(&recs).Error; err != nil {
		return nil, apierr.Wrap(err)
	}
	return recs, nil
}

// Get fetches a single BackupRecord by id.
func (m *Manager) Get(id uuid.UUID) (model.BackupRecord, error) {
	var rec model.BackupRecord
	if err := m.db.First(&rec, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return model.BackupRecord{}, apierr.New(apierr.NotFound, "backup not found", map[string]any{"id": id.String()})
		}
		return model.BackupRecord{}, apierr.Wrap(err)
	}
	return rec, nil
}

// Delete removes a BackupRecord and its archive file.
func (m *Manager) Delete(id uuid.UUID) error {
	rec, err := m.Get(id)
	if err != nil {
		return err
	}
	if rec.ArchivePath != "" {
		if err := os.Remove(rec.ArchivePath); err != nil && !os.IsNotExist(err) {
			return apierr.Wrap(err)
		}
	}
	if err := m.db.Delete(&model.BackupRecord{}, "id = ?", id).Error; err != nil {
		return apierr.Wrap(err)
	}
	return nil
}

// Restore extracts a completed backup into a sibling .restore-tmp
// directory, stops the server if running, then atomically swaps the
// directories into place. The server is left stopped; callers decide
// whether to restart it.
func (m *Manager) Restore(ctx context.Context, id uuid.UUID) error {
	rec, err := m.Get(id)
	if err != nil {
		return err
	}
	if rec.Status != model.BackupCompleted {
		return apierr.New(apierr.InvalidRequest, "only a completed backup can be restored", map[string]any{"status": rec.Status})
	}

	server, err := m.registry.Get(rec.ServerID)
	if err != nil {
		return err
	}

	stagingDir := server.StoragePath + ".restore-tmp"
	if err := os.RemoveAll(stagingDir); err != nil {
		return apierr.Wrap(err)
	}
	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		return apierr.Wrap(err)
	}
	if err := archiveutil.Extract(ctx, rec.ArchivePath, stagingDir); err != nil {
		os.RemoveAll(stagingDir)
		return apierr.New(apierr.InstallerFailed, "restore extraction failed: "+err.Error(), nil)
	}

	if m.supervisor.IsRunning(server.ID.String()) {
		if err := m.supervisor.Stop(server.ID.String()); err != nil {
			os.RemoveAll(stagingDir)
			return err
		}
	}

	oldDir := server.StoragePath + ".pre-restore"
	os.RemoveAll(oldDir)
	if err := os.Rename(server.StoragePath, oldDir); err != nil {
		os.RemoveAll(stagingDir)
		return apierr.Wrap(err)
	}
	if err := os.Rename(stagingDir, server.StoragePath); err != nil {
		// best-effort revert so the server directory is never left missing
		os.Rename(oldDir, server.StoragePath)
		return apierr.Wrap(err)
	}
	os.RemoveAll(oldDir)

	return m.registry.SetState(server.ID, model.StateStopped)
}
