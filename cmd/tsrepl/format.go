package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/SimonWaldherr/tsodbc/internal/convert"
)

type printer func(w io.Writer, cols []string, rows [][]any) error

var printers = map[string]printer{
	"table":    printTable,
	"csv":      printCSV(','),
	"tsv":      printCSV('\t'),
	"json":     printJSON,
	"yaml":     printYAML,
	"markdown": printMarkdown,
}

func formatNames() []string {
	names := make([]string, 0, len(printers))
	for n := range printers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// cell renders a value for the text formats.
func cell(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(x)
	case time.Time:
		return x.Format(convert.TimestampLayout)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case string:
		return x
	}
	return fmt.Sprint(v)
}

func printTable(w io.Writer, cols []string, rows [][]any) error {
	width := make([]int, len(cols))
	for i, c := range cols {
		width[i] = len(c)
	}
	for _, r := range rows {
		for i := range cols {
			if n := len(cell(r[i])); n > width[i] {
				width[i] = n
			}
		}
	}
	line := func(vals func(i int) string) {
		parts := make([]string, len(cols))
		for i := range cols {
			parts[i] = padRight(vals(i), width[i])
		}
		fmt.Fprintln(w, strings.TrimRight(strings.Join(parts, "  "), " "))
	}
	line(func(i int) string { return cols[i] })
	line(func(i int) string { return strings.Repeat("-", width[i]) })
	for _, r := range rows {
		line(func(i int) string { return cell(r[i]) })
	}
	return nil
}

func padRight(s string, w int) string {
	if len(s) >= w {
		return s
	}
	return s + strings.Repeat(" ", w-len(s))
}

func printCSV(sep rune) printer {
	return func(w io.Writer, cols []string, rows [][]any) error {
		cw := csv.NewWriter(w)
		cw.Comma = sep
		if err := cw.Write(cols); err != nil {
			return err
		}
		rec := make([]string, len(cols))
		for _, r := range rows {
			for i := range cols {
				rec[i] = cell(r[i])
				if r[i] == nil {
					rec[i] = ""
				}
			}
			if err := cw.Write(rec); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	}
}

func records(cols []string, rows [][]any) []map[string]any {
	out := make([]map[string]any, len(rows))
	for i, r := range rows {
		m := make(map[string]any, len(cols))
		for j, c := range cols {
			if b, ok := r[j].([]byte); ok {
				m[c] = string(b)
				continue
			}
			m[c] = r[j]
		}
		out[i] = m
	}
	return out
}

func printJSON(w io.Writer, cols []string, rows [][]any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(records(cols, rows))
}

// printYAML keeps column order by building the document node by node.
func printYAML(w io.Writer, cols []string, rows [][]any) error {
	doc := &yaml.Node{Kind: yaml.SequenceNode}
	for _, r := range rows {
		m := &yaml.Node{Kind: yaml.MappingNode}
		for i, c := range cols {
			val := r[i]
			if b, ok := val.([]byte); ok {
				val = string(b)
			}
			v := &yaml.Node{}
			if err := v.Encode(val); err != nil {
				return err
			}
			m.Content = append(m.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: c}, v)
		}
		doc.Content = append(doc.Content, m)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return err
	}
	return enc.Close()
}

func printMarkdown(w io.Writer, cols []string, rows [][]any) error {
	esc := func(s string) string { return strings.ReplaceAll(s, "|", `\|`) }
	fmt.Fprintln(w, "| "+strings.Join(cols, " | ")+" |")
	seps := make([]string, len(cols))
	for i := range seps {
		seps[i] = "---"
	}
	fmt.Fprintln(w, "| "+strings.Join(seps, " | ")+" |")
	for _, r := range rows {
		vals := make([]string, len(cols))
		for i := range cols {
			vals[i] = esc(cell(r[i]))
		}
		fmt.Fprintln(w, "| "+strings.Join(vals, " | ")+" |")
	}
	return nil
}
