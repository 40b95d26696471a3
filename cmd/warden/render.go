package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"charm.land/lipgloss/v2"
	"charm.land/lipgloss/v2/table"
	"gopkg.in/yaml.v3"

	"github.com/harunnryd/warden/internal/approval"
	"github.com/harunnryd/warden/internal/ledger"
	"github.com/harunnryd/warden/internal/orchestrator"
	"github.com/harunnryd/warden/internal/skill/formatter"
)

var (
	accent      = lipgloss.Color("99")
	headerStyle = lipgloss.NewStyle().Foreground(accent).Bold(true).Align(lipgloss.Center).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	borderStyle = lipgloss.NewStyle().Foreground(accent)
)

// render emits v as JSON or YAML, or hands it to asTable.
func render(format formatter.OutputFormat, v any, asTable func() string) (string, error) {
	switch format {
	case formatter.OutputFormatJSON:
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return "", err
		}
		return string(data), nil
	case formatter.OutputFormatYAML:
		data, err := yaml.Marshal(v)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(data)), nil
	default:
		return asTable(), nil
	}
}

func gridTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers(headers...)
}

func keyValueTable() *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			if col == 0 {
				return headerStyle
			}
			return cellStyle
		})
}

func approvalsTable(items []approval.Item) string {
	if len(items) == 0 {
		return "No pending approvals"
	}
	t := gridTable("ID", "Kind", "Subject", "Requested By", "Expires")
	for _, item := range items {
		t.Row(item.ID, string(item.Kind), item.Subject, item.RequestedBy, item.ExpiresAt.Local().Format(time.RFC3339))
	}
	return t.String()
}

func approvalTable(item approval.Item) string {
	t := keyValueTable()
	t.Row("ID", item.ID)
	t.Row("State", string(item.State))
	t.Row("Kind", string(item.Kind))
	t.Row("Subject", item.Subject)
	t.Row("Requested By", item.RequestedBy)
	t.Row("Created", item.CreatedAt.Local().Format(time.RFC3339))
	t.Row("Expires", item.ExpiresAt.Local().Format(time.RFC3339))
	if item.ResolvedAt != nil {
		t.Row("Resolved", fmt.Sprintf("%s by %s", item.ResolvedAt.Local().Format(time.RFC3339), item.ResolvedBy))
	}
	return t.String()
}

// statsView is the body of GET /stats.
type statsView struct {
	ledger.Summary `yaml:",inline"`
	Skills int `json:"skills" yaml:"skills"`
}

func statsTable(s statsView) string {
	if len(s.Paths) == 0 {
		return fmt.Sprintf("No routed requests since %s (%d skills loaded)", s.Since.Local().Format(time.RFC3339), s.Skills)
	}
	t := gridTable("Path", "Requests", "Cost", "Errors", "Degraded", "Avg Latency")
	for _, p := range s.Paths {
		t.Row(
			p.Path,
			fmt.Sprint(p.Requests),
			fmt.Sprintf("$%.4f", p.Cost),
			fmt.Sprint(p.Errors),
			fmt.Sprint(p.Degraded),
			fmt.Sprintf("%.0fms", p.AvgLatencyMS),
		)
	}
	t.Row("total", fmt.Sprint(s.Requests), fmt.Sprintf("$%.4f", s.TotalCost), "", "", "")
	return t.String()
}

func routeTable(r orchestrator.Route) string {
	t := keyValueTable()
	t.Row("Route", r.ID)
	t.Row("Intent", string(r.Intent))
	t.Row("Path", string(r.Path))
	if r.Skill != "" {
		t.Row("Skill", r.Skill)
	}
	if r.ApprovalID != "" {
		t.Row("Approval", r.ApprovalID)
	}
	if r.Engine != "" {
		t.Row("Engine", r.Engine)
	}
	t.Row("Cost", fmt.Sprintf("$%.4f", r.Cost))
	t.Row("Degraded", fmt.Sprint(r.Degraded))
	t.Row("Latency", r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String())
	if len(r.Sources) > 0 {
		t.Row("Sources", strings.Join(r.Sources, ", "))
	}
	if r.Error != "" {
		t.Row("Error", fmt.Sprintf("%s (%s)", r.Error, r.ErrorCode))
	}
	if r.Result != "" {
		t.Row("Result", r.Result)
	}
	return t.String()
}
