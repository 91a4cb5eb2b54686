package backup

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/forgehost/panel/internal/hostexec"
	"github.com/forgehost/panel/internal/hub"
	"github.com/forgehost/panel/internal/model"
	"github.com/forgehost/panel/internal/progress"
	"github.com/forgehost/panel/internal/registry"
	"github.com/forgehost/panel/internal/supervisor"
)

func newTestManager(t *testing.T) (*Manager, *registry.Registry) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	reg := registry.New(db)
	require.NoError(t, reg.Migrate())

	h := hub.New(100, 16)
	sup := supervisor.New(h, hostexec.Direct{}, func(string, model.State, *int) {}, zap.NewNop())
	prog := progress.New()

	m := New(db, reg, sup, prog, t.TempDir(), 7, zap.NewNop())
	require.NoError(t, m.Migrate())

	return m, reg
}

func mustCreateServer(t *testing.T, reg *registry.Registry, storagePath string) model.ServerRecord {
	t.Helper()
	rec := model.ServerRecord{
		Name:        "survival",
		Port:        25565,
		EngineName:  model.EngineVanilla,
		State:       model.StateStopped,
		StoragePath: storagePath,
	}
	require.NoError(t, reg.Create(&rec))
	return rec
}

func TestCreateArchivesServerDirectoryAndRecordsCompletedBackup(t *testing.T) {
	t.Parallel()

	m, reg := newTestManager(t)
	storageDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(storageDir, "world.dat"), []byte("world"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(storageDir, "server.jar"), []byte("jar"), 0o644))

	server := mustCreateServer(t, reg, storageDir)

	sessionID, err := m.Create(context.Background(), server.ID, model.BackupManual)
	require.NoError(t, err)
	require.NotEmpty(t, sessionID)

	var rec model.BackupRecord
	require.Eventually(t, func() bool {
		if err := m.db.Where("server_id = ?", server.ID).First(&rec).Error; err != nil {
			return false
		}
		return rec.Status == model.BackupCompleted
	}, 2*time.Second, 10*time.Millisecond)

	assert.NotEmpty(t, rec.ArchivePath)
	assert.Greater(t, rec.SizeBytes, int64(0))

	_, err = os.Stat(rec.ArchivePath)
	require.NoError(t, err)
}

func TestGetMissingBackupIsNotFound(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(t)
	_, err := m.Get(uuid.New())
	require.Error(t, err)
}

func TestDeleteRemovesArchiveFile(t *testing.T) {
	t.Parallel()

	m, reg := newTestManager(t)
	storageDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(storageDir, "world.dat"), []byte("world"), 0o644))
	server := mustCreateServer(t, reg, storageDir)

	_, err := m.Create(context.Background(), server.ID, model.BackupManual)
	require.NoError(t, err)

	var rec model.BackupRecord
	require.Eventually(t, func() bool {
		if err := m.db.Where("server_id = ?", server.ID).First(&rec).Error; err != nil {
			return false
		}
		return rec.Status == model.BackupCompleted
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, m.Delete(rec.ID))

	_, err = os.Stat(rec.ArchivePath)
	assert.True(t, os.IsNotExist(err))

	_, err = m.Get(rec.ID)
	require.Error(t, err)
}

func TestPruneExpiredBackupsDeletesOnlyOldCompletedOnes(t *testing.T) {
	t.Parallel()

	m, reg := newTestManager(t)
	server := mustCreateServer(t, reg, t.TempDir())

	old := model.BackupRecord{
		ID: uuid.New(), ServerID: server.ID, Status: model.BackupCompleted,
		CreatedAt: time.Now().UTC().AddDate(0, 0, -30),
	}
	fresh := model.BackupRecord{
		ID: uuid.New(), ServerID: server.ID, Status: model.BackupCompleted,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, m.db.Create(&old).Error)
	require.NoError(t, m.db.Create(&fresh).Error)

	m.pruneExpiredBackups()

	_, err := m.Get(old.ID)
	assert.Error(t, err)

	_, err = m.Get(fresh.ID)
	assert.NoError(t, err)
}

func TestRestoreRejectsNonCompletedBackup(t *testing.T) {
	t.Parallel()

	m, reg := newTestManager(t)
	server := mustCreateServer(t, reg, t.TempDir())

	rec := model.BackupRecord{ID: uuid.New(), ServerID: server.ID, Status: model.BackupPending}
	require.NoError(t, m.db.Create(&rec).Error)

	err := m.Restore(context.Background(), rec.ID)
	require.Error(t, err)
}
