package registry

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/forgehost/panel/internal/model"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	r := New(db)
	require.NoError(t, r.Migrate())
	return r
}

func TestCreateRejectsDuplicateName(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	rec := model.ServerRecord{Name: "survival", Port: 25565, EngineName: model.EngineVanilla, State: model.StateStopped}
	require.NoError(t, r.Create(&rec))

	dup := model.ServerRecord{Name: "survival", Port: 25566, EngineName: model.EngineVanilla, State: model.StateStopped}
	err := r.Create(&dup)
	require.Error(t, err)
}

func TestCreateRejectsDuplicatePort(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	rec := model.ServerRecord{Name: "a", Port: 25565, EngineName: model.EngineVanilla, State: model.StateStopped}
	require.NoError(t, r.Create(&rec))

	dup := model.ServerRecord{Name: "b", Port: 25565, EngineName: model.EngineVanilla, State: model.StateStopped}
	err := r.Create(&dup)
	require.Error(t, err)
}

func TestFindAvailablePortScansUpwardFromRequested(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	require.NoError(t, r.Create(&model.ServerRecord{Name: "a", Port: 25565, EngineName: model.EngineVanilla, State: model.StateStopped}))
	require.NoError(t, r.Create(&model.ServerRecord{Name: "b", Port: 25566, EngineName: model.EngineVanilla, State: model.StateStopped}))

	port, err := r.FindAvailablePort(25565)
	require.NoError(t, err)
	assert.Equal(t, 25567, port)
}

func TestConcurrentCreatesWithSameNameOnlyOneWins(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	var wg sync.WaitGroup
	results := make([]error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = r.Create(&model.ServerRecord{Name: "race", Port: 20000 + i, EngineName: model.EngineVanilla, State: model.StateStopped})
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range results {
		if err == nil {
			successes++
		}
	}
	assert.Equal(t, 1, successes)
}

func TestDeleteMissingRecordIsNotFound(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	rec := model.ServerRecord{Name: "x", Port: 25565, EngineName: model.EngineVanilla, State: model.StateStopped}
	require.NoError(t, r.Create(&rec))
	require.NoError(t, r.Delete(rec.ID))

	err := r.Delete(rec.ID)
	assert.Error(t, err)
}

func TestSetStateAllowsEdgeInDiagram(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	rec := model.ServerRecord{Name: "a", Port: 25565, EngineName: model.EngineVanilla, State: model.StateStopped}
	require.NoError(t, r.Create(&rec))

	require.NoError(t, r.SetState(rec.ID, model.StateStarting))

	got, err := r.Get(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StateStarting, got.State)
}

func TestSetStateRejectsRunningToStarting(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	rec := model.ServerRecord{Name: "a", Port: 25565, EngineName: model.EngineVanilla, State: model.StateRunning}
	require.NoError(t, r.Create(&rec))

	err := r.SetState(rec.ID, model.StateStarting)
	require.Error(t, err)

	got, err := r.Get(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StateRunning, got.State)
}

func TestSetStateToCurrentStateIsNoOp(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	rec := model.ServerRecord{Name: "a", Port: 25565, EngineName: model.EngineVanilla, State: model.StateStopped}
	require.NoError(t, r.Create(&rec))

	require.NoError(t, r.SetState(rec.ID, model.StateStopped))
}
