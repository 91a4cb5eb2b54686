// Package provisioning implements the Provisioning Orchestrator: given a
// modpack selection it runs the fetch/download/extract/parse/install
// pipeline in the background, reporting milestones on the Progress
// Channel and leaving behind a ready-to-start ServerRecord.
package provisioning

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"gorm.io/gorm"

	"github.com/forgehost/panel/internal/apierr"
	"github.com/forgehost/panel/internal/catalog"
	"github.com/forgehost/panel/internal/configwriter"
	"github.com/forgehost/panel/internal/model"
	"github.com/forgehost/panel/internal/progress"
	"github.com/forgehost/panel/internal/registry"
)

const maxConcurrentModDownloads = 5

// Request is the input to a provisioning run.
type Request struct {
	DisplayName   string
	Description   string
	ModpackID     string
	FileID        string
	RequestedPort int
	MemoryMB      int
	JVMOpts       string
	StoragePath   string
}

// Orchestrator is the Provisioning Orchestrator (C8).
type Orchestrator struct {
	catalogClient *catalog.Client
	registry      *registry.Registry
	progress      *progress.Channel
	db            *gorm.DB
	baseDir       string
	log           *zap.Logger
	modSem        *semaphore.Weighted
}

// New returns an Orchestrator. baseDir is the root under which every
// server's storage directory is created.
func New(catalogClient *catalog.Client, reg *registry.Registry, prog *progress.Channel, db *gorm.DB, baseDir string, log *zap.Logger) *Orchestrator {
	return &Orchestrator{
		catalogClient: catalogClient,
		registry:      reg,
		progress:      prog,
		db:            db,
		baseDir:       baseDir,
		log:           log,
		modSem:        semaphore.NewWeighted(maxConcurrentModDownloads),
	}
}

// Migrate creates/updates the tables this package owns.
func (o *Orchestrator) Migrate() error {
	return o.db.AutoMigrate(&model.ModpackRecord{})
}

// runState threads state between pipeline steps and is cleaned up once,
// regardless of which step failed.
type runState struct {
	sessionID   string
	req         Request
	tempDir     string
	archivePath string
	downloadURL string
	manifest    manifestFile
	modpackRec  model.ModpackRecord
	port        int
	serverRec   model.ServerRecord
	modsTotal   int
	modsOK      int
}

// Start registers a new session and launches the pipeline in the
// background, returning immediately with the session id.
func (o *Orchestrator) Start(req Request) string {
	sessionID := uuid.NewString()
	o.progress.NewSession(sessionID)

	go o.run(sessionID, req)

	return sessionID
}

func (o *Orchestrator) run(sessionID string, req Request) {
	ctx := context.Background()
	rs := &runState{sessionID: sessionID, req: req}

	tempDir, err := os.MkdirTemp("", "forgehost-provision-*")
	if err != nil {
		o.fail(sessionID, apierr.Wrap(err))
		return
	}
	rs.tempDir = tempDir
	defer os.RemoveAll(tempDir)

	steps := []struct {
		name    string
		percent int
		fn      func(context.Context, *runState) error
	}{
		{"fetching", 5, o.stepFetching},
		{"downloading", 15, o.stepDownloading},
		{"extracting", 35, o.stepExtracting},
		{"parsing", 45, o.stepParsing},
		{"database", 55, o.stepDatabase},
		{"port", 48, o.stepPort},
		{"creating", 50, o.stepCreating},
		{"copying", 55, o.stepCopying},
	}

	for _, s := range steps {
		if err := s.fn(ctx, rs); err != nil {
			o.fail(sessionID, err)
			return
		}
		o.progress.Publish(sessionID, progress.Event{Kind: progress.EventProgress, Step: s.name, Percent: s.percent})
	}

	if err := o.stepDownloadingMods(ctx, rs); err != nil {
		o.fail(sessionID, err)
		return
	}

	o.progress.Publish(sessionID, progress.Event{Kind: progress.EventProgress, Step: "cleanup", Percent: 95})
	o.progress.Publish(sessionID, progress.Event{Kind: progress.EventComplete, ServerID: rs.serverRec.ID.String()})
}

func (o *Orchestrator) fail(sessionID string, err error) {
	o.log.Warn("provisioning session failed", zap.String("session_id", sessionID), zap.Error(err))
	o.progress.Publish(sessionID, progress.Event{Kind: progress.EventError, Reason: err.Error()})
}

func (o *Orchestrator) stepFetching(ctx context.Context, rs *runState) error {
	if _, err := o.catalogClient.ModpackMeta(ctx, rs.req.ModpackID); err != nil {
		return err
	}
	fd, err := o.catalogClient.FileDetail(ctx, rs.req.ModpackID, rs.req.FileID)
	if err != nil {
		return err
	}
	rs.downloadURL = fd.DownloadURL
	rs.archivePath = fd.DownloadURL // resolved to bytes in stepDownloading
	return nil
}

func (o *Orchestrator) stepDownloading(ctx context.Context, rs *runState) error {
	data, err := o.catalogClient.Download(ctx, rs.archivePath)
	if err != nil {
		return err
	}
	path := filepath.Join(rs.tempDir, "modpack.zip")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return apierr.Wrap(err)
	}
	rs.archivePath = path
	return nil
}

func (o *Orchestrator) stepExtracting(ctx context.Context, rs *runState) error {
	extractDir := filepath.Join(rs.tempDir, "extracted")
	if err := os.MkdirAll(extractDir, 0o755); err != nil {
		return apierr.Wrap(err)
	}
	if err := extractArchive(ctx, rs.archivePath, extractDir); err != nil {
		return err
	}
	rs.tempDir = extractDir
	return nil
}

func (o *Orchestrator) stepParsing(ctx context.Context, rs *runState) error {
	data, err := os.ReadFile(filepath.Join(rs.tempDir, "manifest.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return apierr.New(apierr.ManifestMissing, "modpack archive has no manifest.json", nil)
		}
		return apierr.Wrap(err)
	}
	m, err := parseManifest(data)
	if err != nil {
		return err
	}
	rs.manifest = m
	return nil
}

func (o *Orchestrator) stepDatabase(ctx context.Context, rs *runState) error {
	engine, _ := rs.manifest.classify()

	rec := model.ModpackRecord{
		ID:          rs.req.ModpackID,
		Name:        rs.manifest.Name,
		GameVersion: rs.manifest.Minecraft.Version,
		ModLoader:   string(engine),
		DownloadURL: rs.downloadURL,
	}
	if err := o.db.Save(&rec).Error; err != nil {
		return apierr.Wrap(err)
	}
	rs.modpackRec = rec
	return nil
}

func (o *Orchestrator) stepPort(ctx context.Context, rs *runState) error {
	port, err := o.registry.FindAvailablePort(rs.req.RequestedPort)
	if err != nil {
		return err
	}
	rs.port = port
	return nil
}

func (o *Orchestrator) stepCreating(ctx context.Context, rs *runState) error {
	engine, version := rs.manifest.classify()

	storagePath := rs.req.StoragePath
	if storagePath == "" {
		storagePath = filepath.Join(o.baseDir, rs.req.DisplayName+"-"+uuid.NewString()[:8])
	}
	if err := os.MkdirAll(storagePath, 0o755); err != nil {
		return apierr.Wrap(err)
	}

	rec := model.ServerRecord{
		ID:          uuid.New(),
		Name:        rs.req.DisplayName,
		Description: rs.req.Description,
		EngineName:  engine,
		Version:     version,
		Port:        rs.port,
		MemoryMB:    rs.req.MemoryMB,
		JVMOpts:     rs.req.JVMOpts,
		State:       model.StateStopped,
		StorageKind: model.StorageBindPath,
		StoragePath: storagePath,
		Options:     model.DefaultGameOptions(),
		ModpackID:   &rs.req.ModpackID,
	}
	if err := o.registry.Create(&rec); err != nil {
		return err
	}
	rs.serverRec = rec

	if err := configwriter.Write(storagePath, rec); err != nil {
		return err
	}
	return nil
}

func (o *Orchestrator) stepCopying(ctx context.Context, rs *runState) error {
	if rs.manifest.Overrides != "" {
		overridesDir := filepath.Join(rs.tempDir, rs.manifest.Overrides)
		if _, err := os.Stat(overridesDir); err == nil {
			if err := copyOverrides(overridesDir, rs.serverRec.StoragePath); err != nil {
				return apierr.Wrap(err)
			}
		}
	}

	manifestData, err := os.ReadFile(filepath.Join(rs.tempDir, "manifest.json"))
	if err == nil {
		_ = os.WriteFile(filepath.Join(rs.serverRec.StoragePath, "modpack-manifest.json"), manifestData, 0o644)
	}
	return nil
}

// stepDownloadingMods fetches every manifest file entry, bounded to 5
// concurrent downloads. Individual mod failures are counted, not fatal;
// the session only fails here if every single download failed.
func (o *Orchestrator) stepDownloadingMods(ctx context.Context, rs *runState) error {
	total := len(rs.manifest.Files)
	rs.modsTotal = total
	if total == 0 {
		return nil
	}

	modsDir := filepath.Join(rs.serverRec.StoragePath, "mods")
	if err := os.MkdirAll(modsDir, 0o755); err != nil {
		return apierr.Wrap(err)
	}

	type result struct{ ok bool }
	results := make(chan result, total)

	for _, file := range rs.manifest.Files {
		file := file
		if err := o.modSem.Acquire(ctx, 1); err != nil {
			results <- result{ok: false}
			continue
		}
		go func() {
			defer o.modSem.Release(1)
			ok := o.downloadMod(ctx, modsDir, file.ProjectID, file.FileID)
			results <- result{ok: ok}
		}()
	}

	done := 0
	for i := 0; i < total; i++ {
		r := <-results
		done++
		if r.ok {
			rs.modsOK++
		}
		pct := 60 + (done*20)/total
		current := done
		totalCopy := total
		o.progress.Publish(rs.sessionID, progress.Event{
			Kind: progress.EventProgress, Step: "downloading-mods", Percent: pct,
			Current: &current, Total: &totalCopy,
		})
	}

	if rs.modsOK == 0 {
		return apierr.New(apierr.InstallerFailed, "every mod in the modpack failed to download", nil)
	}
	return nil
}

func (o *Orchestrator) downloadMod(ctx context.Context, modsDir string, projectID, fileID int64) bool {
	detail, err := o.catalogClient.FileDetail(ctx, fmt.Sprintf("%d", projectID), fmt.Sprintf("%d", fileID))
	if err != nil {
		o.log.Warn("mod metadata lookup failed", zap.Int64("project_id", projectID), zap.Error(err))
		return false
	}
	data, err := o.catalogClient.Download(ctx, detail.DownloadURL)
	if err != nil {
		o.log.Warn("mod download failed", zap.Int64("project_id", projectID), zap.Error(err))
		return false
	}
	name := detail.DisplayName
	if name == "" {
		name = fmt.Sprintf("%d-%d.jar", projectID, fileID)
	}
	if err := os.WriteFile(filepath.Join(modsDir, name), data, 0o644); err != nil {
		o.log.Warn("mod write failed", zap.Int64("project_id", projectID), zap.Error(err))
		return false
	}
	return true
}
