package formatter

import (
	"fmt"
	"strings"

	"charm.land/lipgloss/v2"
	"charm.land/lipgloss/v2/table"

	"github.com/harunnryd/warden/internal/skill"
)

type TableFormatter struct {
	headerStyle  lipgloss.Style
	cellStyle    lipgloss.Style
	oddRowStyle  lipgloss.Style
	evenRowStyle lipgloss.Style
	borderStyle  lipgloss.Style
}

func NewTableFormatter() *TableFormatter {
	purple := lipgloss.Color("99")
	gray := lipgloss.Color("245")
	lightGray := lipgloss.Color("241")

	return &TableFormatter{
		headerStyle:  lipgloss.NewStyle().Foreground(purple).Bold(true).Align(lipgloss.Center).Padding(0, 1),
		cellStyle:    lipgloss.NewStyle().Padding(0, 1),
		oddRowStyle:  lipgloss.NewStyle().Foreground(gray).Padding(0, 1),
		evenRowStyle: lipgloss.NewStyle().Foreground(lightGray).Padding(0, 1),
		borderStyle:  lipgloss.NewStyle().Foreground(purple),
	}
}

func (f *TableFormatter) FormatSkills(skills []*skill.Skill) (string, error) {
	if len(skills) == 0 {
		return "No skills registered", nil
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(f.borderStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return f.headerStyle
			case row%2 == 0:
				return f.evenRowStyle
			default:
				return f.oddRowStyle
			}
		}).
		Headers("Name", "Mode", "Triggers", "Trusted", "Source")

	for _, s := range skills {
		t.Row(
			truncate(s.Name, 24),
			string(s.Mode),
			truncate(strings.Join(s.Triggers, ", "), 36),
			trustLabel(s.Trusted),
			string(s.Source),
		)
	}

	return t.String(), nil
}

func (f *TableFormatter) FormatSkill(s *skill.Skill) (string, error) {
	if s == nil {
		return "No skill found", nil
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(f.borderStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			if col == 0 {
				return f.headerStyle
			}
			return f.cellStyle
		})

	t.Row("Name", s.Name)
	t.Row("Description", truncate(s.Description, 60))
	t.Row("Triggers", strings.Join(s.Triggers, ", "))
	t.Row("Mode", string(s.Mode))
	t.Row("Timeout", s.Timeout.String())
	t.Row("Trusted", trustLabel(s.Trusted))
	t.Row("Source", string(s.Source))
	t.Row("Detail", specDetail(s.Spec))

	return t.String(), nil
}

func specDetail(spec skill.Spec) string {
	switch sp := spec.(type) {
	case skill.NativeScript:
		return sp.Command
	case skill.PromptTemplate:
		return fmt.Sprintf("%d-char template", len(sp.Template))
	case skill.StructuredScript:
		return fmt.Sprintf("%s script, %d lines", sp.Language, strings.Count(sp.Script, "\n")+1)
	default:
		return ""
	}
}

func trustLabel(trusted bool) string {
	if trusted {
		return "yes"
	}
	return "pending"
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
