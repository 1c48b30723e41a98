package canary

import (
	"fmt"
	"strings"
)

// RenderMarkdownReport builds the supplemented REPORT_CANARY_<...>.md
// artifact: a human-readable summary of the same payload the JSON build
// produced, for operators triaging a rollout without parsing JSON.
func RenderMarkdownReport(in Input, hints []string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Canary Report\n\n")
	fmt.Fprintf(&b, "- active: `%s`\n", in.Rollout.Active)
	fmt.Fprintf(&b, "- split_pct: `%d` (step %d of %d)\n", in.Rollout.SplitPct, in.Rollout.StepIdx+1, len(in.Rollout.StepsPct))
	fmt.Fprintf(&b, "- frozen: `%t`\n\n", in.Rollout.Frozen)

	fmt.Fprintf(&b, "## SLO\n\n")
	fmt.Fprintf(&b, "| metric | blue | green |\n|---|---|---|\n")
	fmt.Fprintf(&b, "| reject_rate_pct | %.4f | %.4f |\n", rejectRatePct(in.FillsBlue, in.RejectsBlue), rejectRatePct(in.FillsGreen, in.RejectsGreen))
	fmt.Fprintf(&b, "| lat_ms | %.2f | %.2f |\n", in.LatBlueMs, in.LatGreenMs)
	fmt.Fprintf(&b, "| lat_p95_ms | %.2f | %.2f |\n", in.LatP95Blue, in.LatP95Green)
	fmt.Fprintf(&b, "| lat_p99_ms | %.2f | %.2f |\n\n", in.LatP99Blue, in.LatP99Green)

	fmt.Fprintf(&b, "## Markout\n\n")
	fmt.Fprintf(&b, "| window | blue bps | green bps |\n|---|---|---|\n")
	fmt.Fprintf(&b, "| 200ms | %.3f | %.3f |\n", in.MarkoutBlueAvgBps200, in.MarkoutGreenAvgBps200)
	fmt.Fprintf(&b, "| 500ms | %.3f | %.3f |\n\n", in.MarkoutBlueAvgBps500, in.MarkoutGreenAvgBps500)

	fmt.Fprintf(&b, "## Triage hints\n\n")
	if len(hints) == 0 {
		fmt.Fprintf(&b, "none\n")
	} else {
		for _, h := range hints {
			fmt.Fprintf(&b, "- %s\n", h)
		}
	}

	return b.String()
}
