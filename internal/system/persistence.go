package system

import (
	"context"
	"time"

	coresys "github.com/nyengine/nyengine/internal/core/system"
	"github.com/nyengine/nyengine/internal/vars"
	"go.uber.org/zap"
)

// VarSaver stores modified vars. *persist.VarRepo implements it.
type VarSaver interface {
	SaveModified(ctx context.Context, level string, vs []*vars.Var) error
	Delete(ctx context.Context, name string) error
}

// PersistenceSystem periodically saves modified vars whose value changed
// since the last save, and deletes the stored row of a var that went back
// to its default. Phase 5 (Persist).
type PersistenceSystem struct {
	vars      *vars.Registry
	saver     VarSaver
	level     func() string
	log       *zap.Logger
	saved     map[string]string // name -> value at last save
	tickCount int
	interval  int // save every N ticks
}

func NewPersistenceSystem(reg *vars.Registry, saver VarSaver, level func() string, log *zap.Logger, intervalTicks int) *PersistenceSystem {
	if intervalTicks <= 0 {
		intervalTicks = 1
	}
	return &PersistenceSystem{
		vars:     reg,
		saver:    saver,
		level:    level,
		log:      log,
		saved:    make(map[string]string),
		interval: intervalTicks,
	}
}

// MarkSaved records a value already in storage, typically one restored at
// startup, so it is neither saved again unchanged nor left behind on reset.
func (s *PersistenceSystem) MarkSaved(name, value string) {
	s.saved[name] = value
}

func (s *PersistenceSystem) Phase() coresys.Phase { return coresys.PhasePersist }

func (s *PersistenceSystem) Update(_ time.Duration) {
	s.tickCount++
	if s.tickCount < s.interval {
		return
	}
	s.tickCount = 0
	s.save(true)
}

// SaveAll writes every modified var regardless of what was saved before.
// Called on graceful shutdown.
func (s *PersistenceSystem) SaveAll() {
	s.save(false)
}

func (s *PersistenceSystem) save(changedOnly bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.deleteReset(ctx)

	var batch []*vars.Var
	for _, v := range s.vars.Modified() {
		if changedOnly {
			if last, ok := s.saved[v.Name()]; ok && last == v.String() {
				continue
			}
		}
		batch = append(batch, v)
	}
	if len(batch) == 0 {
		return
	}

	if err := s.saver.SaveModified(ctx, s.level(), batch); err != nil {
		s.log.Error("var save failed", zap.Int("count", len(batch)), zap.Error(err))
		return
	}
	for _, v := range batch {
		s.saved[v.Name()] = v.String()
	}
	s.log.Debug("vars saved", zap.Int("count", len(batch)))
}

// deleteReset drops stored rows of vars that are no longer modified. A
// failed delete is retried on the next save.
func (s *PersistenceSystem) deleteReset(ctx context.Context) {
	for name := range s.saved {
		if v, ok := s.vars.Lookup(name); ok && v.IsModified() {
			continue
		}
		if err := s.saver.Delete(ctx, name); err != nil {
			s.log.Error("var delete failed", zap.String("var", name), zap.Error(err))
			continue
		}
		delete(s.saved, name)
		s.log.Debug("saved var deleted", zap.String("var", name))
	}
}
