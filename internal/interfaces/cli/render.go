package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/mu-hashmi/revis/internal/domain/entity"
)

// RenderSessionTable renders the `list` command's table: one row per
// session, most recently started first.
func RenderSessionTable(sessions []*entity.Session) string {
	if len(sessions) == 0 {
		return dimStyle.Render("no sessions")
	}

	headers := []string{"NAME", "STATUS", "ITER", "BUDGET", "STARTED", "REASON"}
	rows := make([][]string, 0, len(sessions))
	for _, s := range sessions {
		reason := "-"
		if s.TerminationReason != nil {
			reason = string(*s.TerminationReason)
		}
		rows = append(rows, []string{
			s.Name,
			string(s.Status),
			fmt.Sprintf("%d", s.IterationCount),
			fmt.Sprintf("%.0f/%.0f %s", s.BudgetUsed, s.BudgetTotal, s.BudgetType),
			s.StartedAt.Format("2006-01-02 15:04"),
			reason,
		})
	}
	return renderTable(headers, rows, 1)
}

// RenderRunTable renders the `show` command's run history table.
func RenderRunTable(runs []*entity.Run, metricName string, metrics map[string][]entity.Metric) string {
	if len(runs) == 0 {
		return dimStyle.Render("no runs yet")
	}

	headers := []string{"ITER", "STATUS", "CHANGE", metricName, "OUTCOME", "COMMIT"}
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		value := "-"
		for _, m := range metrics[r.ID] {
			if m.Name == metricName {
				value = fmt.Sprintf("%.6g", m.Value)
			}
		}
		outcome := "-"
		if r.Outcome != nil {
			outcome = string(*r.Outcome)
		}
		commit := r.CommitHash
		if len(commit) > 8 {
			commit = commit[:8]
		}
		if commit == "" {
			commit = "-"
		}
		change := r.ChangeDesc
		if len(change) > 40 {
			change = change[:37] + "..."
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", r.Iteration),
			string(r.Status),
			change,
			value,
			outcome,
			commit,
		})
	}
	return renderTable(headers, rows, 0)
}

// renderTable is a minimal fixed-width column renderer: no external table
// library, just max-width computation plus padding.
func renderTable(headers []string, rows [][]string, statusCol int) string {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	var b strings.Builder
	for i, h := range headers {
		b.WriteString(labelStyle.Bold(true).Render(pad(h, widths[i])))
		if i < len(headers)-1 {
			b.WriteString("  ")
		}
	}
	b.WriteString("\n")

	for _, row := range rows {
		for i, cell := range row {
			text := pad(cell, widths[i])
			if i == statusCol {
				text = statusStyle(row[i]).Render(pad(row[i], widths[i]))
			}
			b.WriteString(text)
			if i < len(row)-1 {
				b.WriteString("  ")
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}

func pad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

// RenderSessionStatus renders the `status` command's detail view for one
// session.
func RenderSessionStatus(session *entity.Session, lastRun *entity.Run, metricName string, lastValue *float64) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("◇ %s", session.Name)))
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "  %s %s\n", labelStyle.Render("Status:"), statusStyle(string(session.Status)).Render(string(session.Status)))
	fmt.Fprintf(&b, "  %s %s\n", labelStyle.Render("Branch:"), valueStyle.Render(session.Branch))
	fmt.Fprintf(&b, "  %s %d / %.0f %s\n", labelStyle.Render("Iteration:"), session.IterationCount, session.BudgetTotal, session.BudgetType)
	fmt.Fprintf(&b, "  %s %d\n", labelStyle.Render("Retry budget:"), session.RetryBudget)
	fmt.Fprintf(&b, "  %s $%.4f\n", labelStyle.Render("Cost so far:"), session.CumulativeCost)
	fmt.Fprintf(&b, "  %s %s\n", labelStyle.Render("Started:"), valueStyle.Render(session.StartedAt.Format(time.RFC3339)))
	if session.EndedAt != nil {
		fmt.Fprintf(&b, "  %s %s\n", labelStyle.Render("Ended:"), valueStyle.Render(session.EndedAt.Format(time.RFC3339)))
	}
	if session.TerminationReason != nil {
		fmt.Fprintf(&b, "  %s %s\n", labelStyle.Render("Reason:"), valueStyle.Render(string(*session.TerminationReason)))
	}
	if lastValue != nil {
		fmt.Fprintf(&b, "  %s %.6g\n", labelStyle.Render(metricName+":"), *lastValue)
	}
	if lastRun != nil {
		fmt.Fprintf(&b, "  %s %s\n", labelStyle.Render("Last change:"), valueStyle.Render(lastRun.ChangeDesc))
	}
	return b.String()
}

// RenderTraceEntry renders one trace event line for `show --trace`.
func RenderTraceEntry(t entity.Trace) string {
	return fmt.Sprintf("  %s %s %s",
		dimStyle.Render(t.CreatedAt.Format("15:04:05")),
		labelStyle.Render(string(t.EventType)),
		valueStyle.Render(t.Payload),
	)
}
