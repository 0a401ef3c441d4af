package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"text/tabwriter"

	"github.com/dustin/go-humanize"

	"github.com/stagesim/stagesim/sim"
	"github.com/stagesim/stagesim/sim/trace"
)

// Report is the printable result of one vacuum plus atmosphere run.
type Report struct {
	Vessel     string      `json:"vessel"`
	Body       string      `json:"body"`
	Vacuum     []StageLine `json:"vacuum"`
	Atmosphere []StageLine `json:"atmosphere"`
	TotalDV    struct {
		Vacuum     float64 `json:"vacuum"`
		Atmosphere float64 `json:"atmosphere"`
	} `json:"total_delta_v"`
}

// StageLine is one row of the stage table.
type StageLine struct {
	Stage        int     `json:"stage"`
	DeltaV       float64 `json:"delta_v"`
	TotalDeltaV  float64 `json:"total_delta_v"`
	Time         float64 `json:"burn_time"`
	Thrust       float64 `json:"thrust"`
	TWR          float64 `json:"twr"`
	MaxTWR       float64 `json:"max_twr"`
	ISP          float64 `json:"isp"`
	StartMass    float64 `json:"start_mass"`
	EndMass      float64 `json:"end_mass"`
	TotalMass    float64 `json:"total_mass"`
	Cost         float64 `json:"cost"`
	TotalCost    float64 `json:"total_cost"`
	Parts        int     `json:"parts"`
	ThrustOffset float64 `json:"thrust_offset_deg"`
}

func newReport(name, body string, vac, atm []sim.Stage) Report {
	r := Report{Vessel: name, Body: body, Vacuum: stageLines(vac), Atmosphere: stageLines(atm)}
	if len(vac) > 0 {
		r.TotalDV.Vacuum = vac[0].TotalDeltaV
	}
	if len(atm) > 0 {
		r.TotalDV.Atmosphere = atm[0].TotalDeltaV
	}
	return r
}

// stageLines orders stages in firing order, last stage first.
func stageLines(stages []sim.Stage) []StageLine {
	lines := make([]StageLine, 0, len(stages))
	for i := len(stages) - 1; i >= 0; i-- {
		st := stages[i]
		lines = append(lines, StageLine{
			Stage:        st.Number,
			DeltaV:       st.DeltaV,
			TotalDeltaV:  st.TotalDeltaV,
			Time:         st.Time,
			Thrust:       st.Thrust,
			TWR:          st.ThrustToWeight,
			MaxTWR:       st.MaxThrustToWeight,
			ISP:          st.ISP,
			StartMass:    st.StartMass,
			EndMass:      st.EndMass,
			TotalMass:    st.TotalMass,
			Cost:         st.Cost,
			TotalCost:    st.TotalCost,
			Parts:        st.TotalPartCount,
			ThrustOffset: st.ThrustOffsetAngle,
		})
	}
	return lines
}

// WriteJSON prints the report as indented JSON.
func (r Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	return nil
}

// WriteTable prints one aligned table per environment.
func (r Report) WriteTable(w io.Writer) {
	fmt.Fprintf(w, "=== %s ===\n", r.Vessel)
	writeStageTable(w, "Vacuum", r.Vacuum)
	writeStageTable(w, fmt.Sprintf("Atmosphere (%s)", r.Body), r.Atmosphere)
	fmt.Fprintf(w, "Total ΔV: %.0f m/s vacuum, %.0f m/s atmosphere\n", r.TotalDV.Vacuum, r.TotalDV.Atmosphere)
}

func writeStageTable(w io.Writer, title string, lines []StageLine) {
	fmt.Fprintf(w, "\n%s\n", title)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "Stage\tΔV\tTotal ΔV\tTime\tThrust\tTWR\tMax TWR\tISP\tMass\tCost\tParts\tOffset\t")
	for _, l := range lines {
		fmt.Fprintf(tw, "%s\t%.0f\t%.0f\t%s\t%.1f\t%.2f\t%.2f\t%.0f\t%.2f\t%s\t%d\t%.1f°\t\n",
			stageLabel(l.Stage), l.DeltaV, l.TotalDeltaV, burnTime(l.Time), l.Thrust, l.TWR, l.MaxTWR,
			l.ISP, l.StartMass, humanize.Commaf(math.Round(l.Cost)), l.Parts, l.ThrustOffset)
	}
	_ = tw.Flush()
}

func stageLabel(n int) string {
	if n == sim.CurrentStageNumber {
		return "now"
	}
	return fmt.Sprintf("%d", n)
}

// burnTime formats seconds as m:ss, or h:mm:ss for long burns.
func burnTime(s float64) string {
	total := int(math.Round(s))
	h, m, sec := total/3600, (total/60)%60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, sec)
	}
	return fmt.Sprintf("%d:%02d", m, sec)
}

func writeTraceSummary(w io.Writer, env string, st *trace.SimulationTrace) {
	sum := trace.Summarize(st)
	fmt.Fprintf(w, "\nTrace (%s): %d stages, %d steps, %d stalls, %d iteration caps, longest step %.2fs\n",
		env, sum.StagesRecorded, sum.TotalSteps, sum.Stalls, sum.IterationCaps, sum.LongestStep)
}
