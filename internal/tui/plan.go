package tui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/kingrea/gridlaunch/internal/batch"
)

var (
	planHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	planCellStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#CCCCCC")).Padding(0, 1)
	planSlotStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801")).Padding(0, 1)
	planTitleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF6B6B"))
)

// RenderPlan draws one row per config, grouped by array slot. A blank config
// (empty grid, no flag) shows as "(no arguments)".
func RenderPlan(title string, plan batch.Plan) string {
	rows := make([][]string, 0, plan.Len())
	for slot, configs := range plan.Slots() {
		for i, cfg := range configs {
			label := ""
			if i == 0 {
				label = strconv.Itoa(slot)
			}
			text := strings.TrimSpace(cfg.String())
			if text == "" {
				text = "(no arguments)"
			}
			rows = append(rows, []string{label, text})
		}
	}
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("#444444"))).
		Headers("SLOT", "ARGUMENTS").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return planHeaderStyle.Padding(0, 1)
			case col == 0:
				return planSlotStyle
			default:
				return planCellStyle
			}
		})
	mode := "single job"
	if plan.IsArray() {
		mode = fmt.Sprintf("array 0-%d", plan.NumJobs()-1)
	}
	head := planTitleStyle.Render(title) + " " +
		hintStyle.Render(fmt.Sprintf("%d configs · %d per job · %s", plan.Len(), plan.PerJob(), mode))
	return lipgloss.JoinVertical(lipgloss.Left, head, t.Render())
}
