package system

import (
	"time"

	coresys "github.com/nyengine/nyengine/internal/core/system"
	"github.com/nyengine/nyengine/internal/scripting"
	"go.uber.org/zap"
)

// ScriptSystem runs the simulation pass of the script scheduler.
// Phase 2 (Script).
type ScriptSystem struct {
	engine *scripting.Engine
	log    *zap.Logger
}

func NewScriptSystem(engine *scripting.Engine, log *zap.Logger) *ScriptSystem {
	return &ScriptSystem{engine: engine, log: log}
}

func (s *ScriptSystem) Phase() coresys.Phase { return coresys.PhaseScript }

func (s *ScriptSystem) Update(dt time.Duration) {
	if err := s.engine.Tick(dt); err != nil {
		s.log.Error("script tick", zap.Error(err))
	}
}

// DrawSystem resumes threads waiting on the level's draw event once per
// rendered frame, after the simulation state for the frame is final.
// Phase 4 (Draw).
type DrawSystem struct {
	engine *scripting.Engine
	log    *zap.Logger
}

func NewDrawSystem(engine *scripting.Engine, log *zap.Logger) *DrawSystem {
	return &DrawSystem{engine: engine, log: log}
}

func (s *DrawSystem) Phase() coresys.Phase { return coresys.PhaseDraw }

func (s *DrawSystem) Update(dt time.Duration) {
	if err := s.engine.TickDraw(dt); err != nil {
		s.log.Error("script draw tick", zap.Error(err))
	}
}
