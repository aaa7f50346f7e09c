package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/aviciot/queryscope/internal/analyzer"
	"github.com/aviciot/queryscope/internal/comparator"
	"github.com/aviciot/queryscope/internal/history"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
)

type textWriter struct {
	w   io.Writer
	err error
}

func (tw *textWriter) printf(format string, args ...any) {
	if tw.err != nil {
		return
	}
	_, tw.err = fmt.Fprintf(tw.w, format, args...)
}

func RenderAnalysisText(w io.Writer, result AnalysisResult) error {
	tw := &textWriter{w: w}

	tw.printf("%s%sQuery Analysis%s  %s(db=%s, fingerprint=%s)%s\n\n",
		colorBold, colorCyan, colorReset, colorDim, result.DBName, shortHash(result.Fingerprint), colorReset)

	if result.TotalCost > 0 {
		tw.printf("  Total Cost: %.2f\n", result.TotalCost)
	}
	if result.PlanHash != "" {
		tw.printf("  Plan Hash:  %s\n", shortHash(result.PlanHash))
	}
	tw.printf("\n")

	if result.PlanText != "" {
		tw.printf("%s%sPlan%s\n\n%s\n", colorBold, colorCyan, colorReset, result.PlanText)
	}

	tw.renderFindings(result.Findings)

	if result.RegressionVerdict != nil {
		tw.renderVerdict(*result.RegressionVerdict)
	}
	if result.Summary != nil {
		tw.renderSummary(*result.Summary)
	}

	for _, n := range result.Notices {
		tw.printf("%snote: %s%s\n", colorDim, n, colorReset)
	}

	return tw.err
}

func (tw *textWriter) renderFindings(findings []analyzer.Finding) {
	if len(findings) == 0 {
		tw.printf("%s%sNo issues found.%s\n\n", colorBold, colorGreen, colorReset)
		return
	}

	tw.printf("%s%sFindings (%d)%s\n\n", colorBold, colorCyan, len(findings), colorReset)

	for i, f := range findings {
		color := severityColor(f.Severity)
		tw.printf("  %s%-8s%s %s", color, f.Severity, colorReset, f.Evidence)
		if f.Object != "" {
			tw.printf(" %s[%s]%s", colorDim, objectLabel(f), colorReset)
		}
		tw.printf("\n")
		if f.Fix != "" {
			tw.printf("  %s→ %s%s\n", colorDim, f.Fix, colorReset)
		}
		if i < len(findings)-1 {
			tw.printf("\n")
		}
	}
	tw.printf("\n")
}

func (tw *textWriter) renderVerdict(v history.RegressionVerdict) {
	color := colorGreen
	if v.IsRegression {
		color = colorRed
	} else if v.PlanChanged || v.Status == history.StatusDataGrowth {
		color = colorYellow
	}
	tw.printf("%s%sTrend%s\n\n", colorBold, colorCyan, colorReset)
	tw.printf("  %s%s%s: %s\n", color, v.Status, colorReset, v.Narrative)
	if v.CostChangePct != nil {
		tw.printf("  cost change: %+.1f%%\n", *v.CostChangePct)
	}
	for _, g := range v.DataGrowth {
		tw.printf("  %s%s%s\n", colorDim, g, colorReset)
	}
	tw.printf("\n")
}

func (tw *textWriter) renderSummary(s history.PerformanceSummary) {
	tw.printf("%s%sHistory%s\n\n", colorBold, colorCyan, colorReset)
	tw.printf("  Executions:     %d (first seen %s)\n",
		s.TotalExecutions, s.FirstSeen.Format("2006-01-02"))
	tw.printf("  Cost:           avg %.2f, min %.2f, max %.2f\n",
		s.AvgCost, s.MinCost, s.MaxCost)
	tw.printf("  Cost Trend:     %s\n", s.CostTrend)
	tw.printf("  Plan Stability: %.0f%%\n\n", s.PlanStabilityPct)
}

func severityColor(s analyzer.Severity) string {
	switch s {
	case analyzer.Critical:
		return colorRed
	case analyzer.High:
		return colorRed
	case analyzer.Medium:
		return colorYellow
	default:
		return colorCyan
	}
}

func objectLabel(f analyzer.Finding) string {
	if f.Owner != "" {
		return f.Owner + "." + f.Object
	}
	return f.Object
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}

func RenderComparisonText(w io.Writer, env ComparisonEnvelope) error {
	tw := &textWriter{w: w}
	s := env.Result.Summary

	tw.printf("%s%sSummary%s\n\n", colorBold, colorCyan, colorReset)
	tw.printf("  Cost: %s\n", formatDelta(s.OldTotalCost, s.NewTotalCost, s.CostPct, s.CostDir, "%.2f"))
	if s.PlanChanged {
		tw.printf("  Plan: %s%s → %s%s\n", colorYellow, shortHash(s.OldPlanHash), shortHash(s.NewPlanHash), colorReset)
	} else {
		tw.printf("  Plan: identical shape (%s)\n", shortHash(s.OldPlanHash))
	}
	tw.printf("\n")

	changes := s.NodesAdded + s.NodesRemoved + s.NodesModified + s.NodesTypeChanged
	if changes == 0 {
		tw.printf("%s%sPlans are identical.%s\n", colorBold, colorGreen, colorReset)
		tw.printf("\nVerdict: %s\n", s.Verdict)
		return tw.err
	}

	tw.printf("  Changes: %d modified, %d type changed, %d added, %d removed\n\n",
		s.NodesModified, s.NodesTypeChanged, s.NodesAdded, s.NodesRemoved)

	tw.printf("%s%sNode Details%s\n\n", colorBold, colorCyan, colorReset)

	for _, delta := range env.Result.Deltas {
		tw.renderDelta(delta, 0)
	}

	tw.renderCompareVerdict(s)

	return tw.err
}

func (tw *textWriter) renderDelta(d comparator.NodeDelta, depth int) {
	indent := strings.Repeat("  ", depth+1)

	switch d.ChangeType {
	case comparator.NoChange:
		for _, child := range d.Children {
			tw.renderDelta(child, depth)
		}
		return
	case comparator.Added:
		tw.printf("%s%s+ %s%s (cost=%.2f rows=%d)\n",
			indent, colorGreen, deltaLabel(d), colorReset, d.NewCost, d.NewRows)
	case comparator.Removed:
		tw.printf("%s%s- %s%s (cost=%.2f rows=%d)\n",
			indent, colorRed, deltaLabel(d), colorReset, d.OldCost, d.OldRows)
	case comparator.TypeChanged:
		tw.printf("%s%s~ %s → %s%s", indent, colorYellow, d.OldOperation, d.NewOperation, colorReset)
		if d.Object != "" {
			tw.printf(" on %s", d.Object)
		}
		tw.printf("\n")
		tw.renderDeltaMetrics(indent, d)
	case comparator.Modified:
		tw.printf("%s%s~ %s%s\n", indent, colorYellow, deltaLabel(d), colorReset)
		tw.renderDeltaMetrics(indent, d)
	}

	for _, child := range d.Children {
		tw.renderDelta(child, depth+1)
	}
}

func (tw *textWriter) renderDeltaMetrics(indent string, d comparator.NodeDelta) {
	tw.renderMetricLine(indent, "cost", d.OldCost, d.NewCost, d.CostPct, d.CostDir, "%.2f")
	if d.OldRows != d.NewRows {
		tw.printf("%s  rows: %d → %d (%+.1f%%)\n", indent, d.OldRows, d.NewRows, d.RowsPct)
	}
	tw.renderStringChange(indent, "index", d.OldIndex, d.NewIndex)
	tw.renderStringChange(indent, "access", d.OldAccessPredicate, d.NewAccessPredicate)
	tw.renderStringChange(indent, "filter", d.OldFilterPredicate, d.NewFilterPredicate)
}

func (tw *textWriter) renderMetricLine(indent, label string, oldVal, newVal, pct float64, dir comparator.Direction, fmtStr string) {
	color := dirColor(dir)
	arrow := dirArrow(dir)
	oldStr := fmt.Sprintf(fmtStr, oldVal)
	newStr := fmt.Sprintf(fmtStr, newVal)
	tw.printf("%s  %s: %s → %s%s %s (%+.1f%%)%s\n", indent, label, oldStr, color, newStr, arrow, pct, colorReset)
}

func (tw *textWriter) renderStringChange(indent, label, oldVal, newVal string) {
	if oldVal == newVal {
		return
	}
	if oldVal == "" {
		tw.printf("%s  %s%s added: %s%s\n", indent, colorYellow, label, newVal, colorReset)
	} else if newVal == "" {
		tw.printf("%s  %s%s removed: %s%s\n", indent, colorGreen, label, oldVal, colorReset)
	} else {
		tw.printf("%s  %s%s: %s → %s%s\n", indent, colorYellow, label, oldVal, newVal, colorReset)
	}
}

func (tw *textWriter) renderCompareVerdict(s comparator.Summary) {
	var color string
	switch s.CostDir {
	case comparator.Improved:
		color = colorGreen
	case comparator.Regressed:
		color = colorRed
	}
	if color != "" {
		tw.printf("\n%sVerdict: %s%s\n", color, s.Verdict, colorReset)
	} else {
		tw.printf("\nVerdict: %s\n", s.Verdict)
	}
}

func deltaLabel(d comparator.NodeDelta) string {
	if d.Object != "" {
		return fmt.Sprintf("%s on %s", d.Operation, d.Object)
	}
	return d.Operation
}

func formatDelta(oldVal, newVal, pct float64, dir comparator.Direction, fmtStr string) string {
	color := dirColor(dir)
	arrow := dirArrow(dir)
	oldStr := fmt.Sprintf(fmtStr, oldVal)
	newStr := fmt.Sprintf(fmtStr, newVal)
	return fmt.Sprintf("%s → %s%s %s (%+.1f%%)%s", oldStr, color, newStr, arrow, pct, colorReset)
}

func dirColor(d comparator.Direction) string {
	switch d {
	case comparator.Improved:
		return colorGreen
	case comparator.Regressed:
		return colorRed
	default:
		return ""
	}
}

func dirArrow(d comparator.Direction) string {
	switch d {
	case comparator.Improved:
		return "↓"
	case comparator.Regressed:
		return "↑"
	default:
		return ""
	}
}
