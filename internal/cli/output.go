package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"gopkg.in/yaml.v3"
)

// OutputFormat represents the output format for CLI commands
type OutputFormat string

const (
	OutputFormatTable OutputFormat = "table"
	OutputFormatJSON  OutputFormat = "json"
	OutputFormatYAML  OutputFormat = "yaml"
)

// printer renders command results in the selected format
type printer struct {
	out    io.Writer
	format OutputFormat
}

// structured prints v as JSON or YAML. It reports false for table output so
// the caller can render its own table.
func (p printer) structured(v interface{}) (bool, error) {
	switch p.format {
	case OutputFormatJSON:
		enc := json.NewEncoder(p.out)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case OutputFormatYAML:
		// round-trip through JSON so YAML keys follow the json tags
		data, err := json.Marshal(v)
		if err != nil {
			return true, err
		}
		var generic interface{}
		if err := json.Unmarshal(data, &generic); err != nil {
			return true, err
		}
		out, err := yaml.Marshal(generic)
		if err != nil {
			return true, fmt.Errorf("failed to convert to YAML: %w", err)
		}
		_, err = p.out.Write(out)
		return true, err
	case OutputFormatTable, "":
		return false, nil
	default:
		return true, fmt.Errorf("unsupported output format: %s", p.format)
	}
}

func (p printer) table(headers []string, rows [][]interface{}) {
	t := table.NewWriter()
	t.SetOutputMirror(p.out)
	t.SetStyle(table.StyleRounded)

	header := make(table.Row, len(headers))
	for i, h := range headers {
		header[i] = text.FgHiCyan.Sprint(h)
	}
	t.AppendHeader(header)
	for _, r := range rows {
		t.AppendRow(table.Row(r))
	}
	t.Render()
}

func (p printer) keyValues(pairs [][2]interface{}) {
	rows := make([][]interface{}, 0, len(pairs))
	for _, kv := range pairs {
		rows = append(rows, []interface{}{kv[0], kv[1]})
	}
	p.table([]string{"PROPERTY", "VALUE"}, rows)
}

func statusText(ok bool, yes, no string) string {
	if ok {
		return text.FgGreen.Sprint(yes)
	}
	return text.FgYellow.Sprint(no)
}
