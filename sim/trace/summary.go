package trace

// TraceSummary aggregates statistics from a SimulationTrace.
type TraceSummary struct {
	TotalSteps      int
	StagesRecorded  int
	Stalls          int
	IterationCaps   int
	LongestStep     float64
	MeanStep        float64
	StepsPerStage   map[int]int // stage index → micro-step count
	OutcomesByStage map[int]Outcome
}

// Summarize computes aggregate statistics from a SimulationTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(st *SimulationTrace) *TraceSummary {
	summary := &TraceSummary{
		StepsPerStage:   make(map[int]int),
		OutcomesByStage: make(map[int]Outcome),
	}
	if st == nil {
		return summary
	}

	summary.StagesRecorded = len(st.Stages)
	for _, s := range st.Stages {
		summary.OutcomesByStage[s.Stage] = s.Outcome
		switch s.Outcome {
		case OutcomeStalled, OutcomeNoDrain:
			summary.Stalls++
		case OutcomeIterationCap:
			summary.IterationCaps++
		}
	}

	summary.TotalSteps = len(st.Steps)
	if len(st.Steps) > 0 {
		total := 0.0
		for _, s := range st.Steps {
			summary.StepsPerStage[s.Stage]++
			total += s.Duration
			if s.Duration > summary.LongestStep {
				summary.LongestStep = s.Duration
			}
		}
		summary.MeanStep = total / float64(len(st.Steps))
	}

	return summary
}
