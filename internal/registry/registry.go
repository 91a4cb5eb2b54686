// Package registry is the durable Server Registry and Port Assigner: it
// owns the ServerRecord table, enforces name/port uniqueness ahead of the
// database's own unique indexes, and is the only writer of a server's
// authoritative lifecycle state once a supervisor entry exists for it.
package registry

import (
	"sync"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/forgehost/panel/internal/apierr"
	"github.com/forgehost/panel/internal/model"
)

const (
	minEphemeralPort = 1024
	maxPort          = 65535
)

// Registry is the Server Registry (C9).
type Registry struct {
	db *gorm.DB
	mu sync.Mutex // serializes name/port uniqueness checks ahead of insert
}

// New returns a Registry backed by db. The caller is responsible for
// running AutoMigrate before first use.
func New(db *gorm.DB) *Registry {
	return &Registry{db: db}
}

// Migrate creates/updates the tables this package owns.
func (r *Registry) Migrate() error {
	return r.db.AutoMigrate(&model.ServerRecord{}, &model.ServerProperty{})
}

// FindAvailablePort scans upward from requested until it finds one not
// already reserved by a ServerRecord.
func (r *Registry) FindAvailablePort(requested int) (int, error) {
	if requested < minEphemeralPort {
		requested = minEphemeralPort
	}

	var reserved []int
	if err := r.db.Model(&model.ServerRecord{}).Pluck("port", &reserved).Error; err != nil {
		return 0, apierr.Wrap(err)
	}
	taken := make(map[int]bool, len(reserved))
	for _, p := range reserved {
		taken[p] = true
	}

	for p := requested; p <= maxPort; p++ {
		if !taken[p] {
			return p, nil
		}
	}
	return 0, apierr.New(apierr.Internal, "no available port above the requested range", nil)
}

// Create inserts rec after checking name/port uniqueness under the
// registry's critical section, so two concurrent creates can never both
// win the same name or port.
func (r *Registry) Create(rec *model.ServerRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var nameCount int64
	if err := r.db.Model(&model.ServerRecord{}).Where("name = ?", rec.Name).Count(&nameCount).Error; err != nil {
		return apierr.Wrap(err)
	}
	if nameCount > 0 {
		return apierr.New(apierr.ConflictName, "a server with this name already exists", map[string]any{"name": rec.Name})
	}

	var portCount int64
	if err := r.db.Model(&model.ServerRecord{}).Where("port = ?", rec.Port).Count(&portCount).Error; err != nil {
		return apierr.Wrap(err)
	}
	if portCount > 0 {
		return apierr.New(apierr.ConflictPort, "a server is already bound to this port", map[string]any{"port": rec.Port})
	}

	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if err := r.db.Create(rec).Error; err != nil {
		return apierr.Wrap(err)
	}
	return nil
}

// Get fetches a ServerRecord by id.
func (r *Registry) Get(id uuid.UUID) (model.ServerRecord, error) {
	var rec model.ServerRecord
	if err := r.db.First(&rec, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return model.ServerRecord{}, apierr.New(apierr.NotFound, "server not found", map[string]any{"id": id.String()})
		}
		return model.ServerRecord{}, apierr.Wrap(err)
	}
	return rec, nil
}

// List returns every ServerRecord.
func (r *Registry) List() ([]model.ServerRecord, error) {
	var recs []model.ServerRecord
	if err := r.db.Order("created_at").Find(&recs).Error; err != nil {
		return nil, apierr.Wrap(err)
	}
	return recs, nil
}

// Update persists arbitrary field changes to an existing ServerRecord.
func (r *Registry) Update(rec *model.ServerRecord) error {
	if err := r.db.Save(rec).Error; err != nil {
		return apierr.Wrap(err)
	}
	return nil
}

// SetState is the only path by which a server's authoritative lifecycle
// state should be mutated; callers are the supervisor's state callback, the
// HTTP start path, and backup restore. Edges not
// present in model.AllowedTransitions are rejected (e.g. Running to
// Starting); setting a server to the state it is already in is a no-op.
func (r *Registry) SetState(id uuid.UUID, state model.State) error {
	rec, err := r.Get(id)
	if err != nil {
		return err
	}
	if rec.State == state {
		return nil
	}
	if !model.CanTransition(rec.State, state) {
		return apierr.New(apierr.InvalidTransition, "illegal state transition", map[string]any{
			"from": rec.State,
			"to":   state,
		})
	}

	if err := r.db.Model(&model.ServerRecord{}).Where("id = ?", id).Update("state", state).Error; err != nil {
		return apierr.Wrap(err)
	}
	return nil
}

// Delete removes a ServerRecord. Callers must stop any running supervisor
// entry before calling this; Delete itself performs no process control.
func (r *Registry) Delete(id uuid.UUID) error {
	res := r.db.Delete(&model.ServerRecord{}, "id = ?", id)
	if res.Error != nil {
		return apierr.Wrap(res.Error)
	}
	if res.RowsAffected == 0 {
		return apierr.New(apierr.NotFound, "server not found", map[string]any{"id": id.String()})
	}
	return nil
}
