// Package plan renders change sets for humans and machines.
package plan

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/fwmesh/fwmesh/internal/diff"
)

var (
	createStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#22c55e"))
	updateStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#eab308"))
	deleteStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#ef4444"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#6b7280"))
	headerStyle  = lipgloss.NewStyle().Bold(true)
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#eab308")).Bold(true)
)

func symbol(op diff.Op) (string, lipgloss.Style) {
	switch op {
	case diff.OpCreate:
		return "+", createStyle
	case diff.OpUpdate:
		return "~", updateStyle
	case diff.OpReplace:
		return "-/+", deleteStyle
	case diff.OpDelete:
		return "-", deleteStyle
	default:
		return " ", dimStyle
	}
}

// Render writes a human-readable listing of the change set: one block per
// pending change, conflicts, and a summary line. Unchanged resources are
// only counted.
func Render(w io.Writer, cs *diff.ChangeSet) error {
	var b strings.Builder

	pending := cs.Pending()
	if len(pending) == 0 && len(cs.Conflicts) == 0 {
		b.WriteString("No changes. The topology matches the live state.\n")
		_, err := io.WriteString(w, b.String())
		return err
	}

	for _, c := range pending {
		sym, style := symbol(c.Op)
		b.WriteString(style.Render(fmt.Sprintf("%-3s %s", sym, c.ID)))
		if len(c.ForcedBy) > 0 {
			b.WriteString(dimStyle.Render(fmt.Sprintf("  (replacement forced by %s)", strings.Join(c.ForcedBy, ", "))))
		}
		b.WriteString("\n")

		switch c.Op {
		case diff.OpCreate:
			for _, field := range sortedKeys(c.After) {
				if c.After[field] == "" {
					continue
				}
				b.WriteString(fmt.Sprintf("      %s = %q\n", field, c.After[field]))
			}
		case diff.OpDelete:
			for _, field := range sortedKeys(c.Before) {
				if c.Before[field] == "" {
					continue
				}
				b.WriteString(dimStyle.Render(fmt.Sprintf("      %s = %q", field, c.Before[field])))
				b.WriteString("\n")
			}
		default:
			for _, field := range c.ChangedFields {
				b.WriteString(fmt.Sprintf("      %s: %q -> %q\n", field, c.Before[field], c.After[field]))
			}
		}
	}

	for _, conflict := range cs.Conflicts {
		b.WriteString(warningStyle.Render(fmt.Sprintf("!   %s", conflict)))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(headerStyle.Render(summary(cs)))
	b.WriteString("\n")

	_, err := io.WriteString(w, b.String())
	return err
}

func summary(cs *diff.ChangeSet) string {
	counts := cs.Counts()
	parts := []string{
		fmt.Sprintf("%d to create", counts[diff.OpCreate]),
		fmt.Sprintf("%d to update", counts[diff.OpUpdate]),
		fmt.Sprintf("%d to replace", counts[diff.OpReplace]),
		fmt.Sprintf("%d to delete", counts[diff.OpDelete]),
		fmt.Sprintf("%d unchanged", counts[diff.OpNoOp]),
	}
	s := "Plan: " + strings.Join(parts, ", ") + "."
	if n := len(cs.Conflicts); n > 0 {
		s += fmt.Sprintf(" %d conflict(s) need manual resolution.", n)
	}
	return s
}

type jsonChange struct {
	Kind          string            `json:"kind"`
	Name          string            `json:"name"`
	Op            string            `json:"op"`
	Before        map[string]string `json:"before,omitempty"`
	After         map[string]string `json:"after,omitempty"`
	ChangedFields []string          `json:"changed_fields,omitempty"`
	ForcedBy      []string          `json:"forced_by,omitempty"`
}

type jsonConflict struct {
	Kind     string `json:"kind"`
	Name     string `json:"name"`
	Field    string `json:"field"`
	Stored   string `json:"stored"`
	Live     string `json:"live"`
	Declared string `json:"declared"`
}

type jsonPlan struct {
	Changes   []jsonChange   `json:"changes"`
	Conflicts []jsonConflict `json:"conflicts,omitempty"`
	Summary   map[string]int `json:"summary"`
}

// RenderJSON writes the change set as indented JSON, pending changes only.
func RenderJSON(w io.Writer, cs *diff.ChangeSet) error {
	out := jsonPlan{Summary: make(map[string]int)}
	for op, n := range cs.Counts() {
		out.Summary[string(op)] = n
	}
	for _, c := range cs.Pending() {
		out.Changes = append(out.Changes, jsonChange{
			Kind:          string(c.ID.Kind),
			Name:          c.ID.Name,
			Op:            string(c.Op),
			Before:        c.Before,
			After:         c.After,
			ChangedFields: c.ChangedFields,
			ForcedBy:      c.ForcedBy,
		})
	}
	for _, conflict := range cs.Conflicts {
		out.Conflicts = append(out.Conflicts, jsonConflict{
			Kind:     string(conflict.ID.Kind),
			Name:     conflict.ID.Name,
			Field:    conflict.Field,
			Stored:   conflict.Stored,
			Live:     conflict.Live,
			Declared: conflict.Declared,
		})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func sortedKeys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
