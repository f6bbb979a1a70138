package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/trezcool/ratiba/core/timetable"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	labelStyle    = lipgloss.NewStyle().Width(20).Foreground(lipgloss.Color("#A0A0A0"))
	okStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("#3FB950"))
	warnStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#D29922"))
	conflictStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F85149"))
	boxStyle      = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#5B8DEF")).
			Padding(0, 1)
)

func (cli *commandLine) preview(templateID string) error {
	ctx := context.Background()
	tpl, err := cli.timetableSvc.GetTemplate(ctx, templateID)
	if err != nil {
		return err
	}
	pv, err := cli.timetableSvc.Preview(ctx, templateID)
	if err != nil {
		return err
	}
	fmt.Fprintln(cli.out, renderPreview(tpl, pv))
	return nil
}

func renderPreview(tpl timetable.Template, pv timetable.Preview) string {
	row := func(label string, value string) string {
		return lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(label), value)
	}

	samples := make([]string, 0, len(pv.SampleDates))
	for _, d := range pv.SampleDates {
		samples = append(samples, d.String())
	}

	lines := []string{
		titleStyle.Render(tpl.Name),
		row("Recurrence", fmt.Sprintf("%s on %s, %s-%s", tpl.Recurrence, tpl.Weekdays, tpl.StartTime, tpl.EndTime)),
		row("Range", fmt.Sprintf("%s to %s", tpl.StartDate, tpl.EndDate)),
		"",
		row("Total dates", fmt.Sprint(pv.TotalDates)),
		row("Valid dates", okStyle.Render(fmt.Sprint(pv.ValidDates))),
		row("Already generated", warnStyle.Render(fmt.Sprint(pv.AlreadyGenerated))),
		row("Conflicting dates", conflictStyle.Render(fmt.Sprint(pv.ConflictingDates))),
	}
	if len(samples) > 0 {
		lines = append(lines, row("First dates", strings.Join(samples, ", ")))
	}
	if len(pv.Conflicts) > 0 {
		lines = append(lines, "", titleStyle.Render("Conflicts"))
		for _, dc := range pv.Conflicts {
			for _, c := range dc.Conflicts {
				what := c.SubjectName
				if c.Title != "" {
					what = c.Title
				}
				lines = append(lines, conflictStyle.Render(fmt.Sprintf("%s  %s %s (%s)",
					c.Slot, c.ClassName, what, strings.Join(c.Reasons, ", "))))
			}
		}
	}
	return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}
