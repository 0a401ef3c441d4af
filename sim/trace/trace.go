package trace

// TraceLevel controls the verbosity of drain tracing.
type TraceLevel string

const (
	// TraceLevelNone disables tracing (zero overhead).
	TraceLevelNone TraceLevel = "none"
	// TraceLevelStages captures one record per simulated stage.
	TraceLevelStages TraceLevel = "stages"
	// TraceLevelSteps captures stage records plus every drain micro-step.
	TraceLevelSteps TraceLevel = "steps"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:   true,
	TraceLevelStages: true,
	TraceLevelSteps:  true,
	"":               true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// TraceConfig controls trace collection behavior.
type TraceConfig struct {
	Level TraceLevel
}

// Enabled reports whether anything is recorded.
func (c TraceConfig) Enabled() bool {
	return c.Level == TraceLevelStages || c.Level == TraceLevelSteps
}

// SimulationTrace collects drain records during one stage simulation run.
type SimulationTrace struct {
	Config TraceConfig
	Stages []StageRecord
	Steps  []StepRecord
}

// NewSimulationTrace creates a SimulationTrace ready for recording.
func NewSimulationTrace(config TraceConfig) *SimulationTrace {
	return &SimulationTrace{
		Config: config,
		Stages: make([]StageRecord, 0),
		Steps:  make([]StepRecord, 0),
	}
}

// RecordStage appends a stage record.
func (st *SimulationTrace) RecordStage(record StageRecord) {
	if st == nil || !st.Config.Enabled() {
		return
	}
	st.Stages = append(st.Stages, record)
}

// RecordStep appends a micro-step record when step tracing is on.
func (st *SimulationTrace) RecordStep(record StepRecord) {
	if st == nil || st.Config.Level != TraceLevelSteps {
		return
	}
	st.Steps = append(st.Steps, record)
}
