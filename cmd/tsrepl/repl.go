package main

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/chzyer/readline"
)

type repl struct {
	db     *sql.DB
	out    io.Writer
	errOut io.Writer
	format string
	echo   bool
	timing bool
}

// lineReader is satisfied by *readline.Instance and by scanReader.
type lineReader interface {
	Readline() (string, error)
	SetPrompt(string)
	Close() error
}

type scanReader struct{ sc *bufio.Scanner }

func (s *scanReader) Readline() (string, error) {
	if !s.sc.Scan() {
		if err := s.sc.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return s.sc.Text(), nil
}
func (s *scanReader) SetPrompt(string) {}
func (s *scanReader) Close() error     { return nil }

func newLineReader(in io.Reader) (lineReader, error) {
	if f, ok := in.(*os.File); ok && f == os.Stdin && readline.DefaultIsTerminal() {
		cfg := &readline.Config{
			Prompt:          "ts> ",
			InterruptPrompt: "^C",
			EOFPrompt:       ".quit",
		}
		if home, err := os.UserHomeDir(); err == nil {
			cfg.HistoryFile = filepath.Join(home, ".tsodbc", "tsrepl_history")
		}
		rl, err := readline.NewEx(cfg)
		if err != nil {
			return nil, err
		}
		return rl, nil
	}
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 1024), 4*1024*1024)
	return &scanReader{sc: sc}, nil
}

// run reads statements terminated by ';' until EOF or .quit.
func (r *repl) run(ctx context.Context, in io.Reader) error {
	rl, err := newLineReader(in)
	if err != nil {
		return err
	}
	defer rl.Close()

	var buf strings.Builder
	for {
		if buf.Len() == 0 {
			rl.SetPrompt("ts> ")
		} else {
			rl.SetPrompt(" .. ")
		}
		raw, err := rl.Readline()
		if err == readline.ErrInterrupt {
			buf.Reset()
			continue
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}
		if buf.Len() == 0 && strings.HasPrefix(line, ".") {
			if quit := r.meta(ctx, line); quit {
				return nil
			}
			continue
		}
		if buf.Len() > 0 {
			buf.WriteByte('\n')
		}
		buf.WriteString(line)
		if strings.HasSuffix(line, ";") {
			q := buf.String()
			buf.Reset()
			if err := r.exec(ctx, q); err != nil {
				fmt.Fprintln(r.errOut, "ERR:", err)
			}
		}
	}
}

// meta handles dot commands and reports whether the shell should exit.
func (r *repl) meta(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	arg := ""
	if len(fields) > 1 {
		arg = fields[1]
	}
	var err error
	switch fields[0] {
	case ".quit", ".exit":
		return true
	case ".help":
		fmt.Fprintln(r.out, `.meta:
  .databases            list databases
  .tables <database>    list tables of a database
  .describe <db.table>  show the columns of a table
  .format <name>        output format: `+strings.Join(formatNames(), ", ")+`
  .timing on|off        print elapsed time per statement
  .quit                 exit`)
	case ".databases":
		err = r.exec(ctx, "SHOW DATABASES")
	case ".tables":
		if arg == "" {
			err = fmt.Errorf(".tables needs a database")
			break
		}
		err = r.exec(ctx, "SHOW TABLES FROM "+quoteIdent(arg))
	case ".describe":
		db, table, ok := strings.Cut(arg, ".")
		if !ok {
			err = fmt.Errorf(".describe needs <database>.<table>")
			break
		}
		err = r.exec(ctx, "DESCRIBE "+quoteIdent(db)+"."+quoteIdent(table))
	case ".format":
		if _, ok := printers[arg]; !ok {
			err = fmt.Errorf("unknown format %q", arg)
			break
		}
		r.format = arg
	case ".timing":
		r.timing = arg == "on"
	default:
		err = fmt.Errorf("unknown command %s, try .help", fields[0])
	}
	if err != nil {
		fmt.Fprintln(r.errOut, "ERR:", err)
	}
	return false
}

func quoteIdent(s string) string {
	s = strings.Trim(s, `"`)
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// exec runs one statement and prints its result set. Ctrl-C cancels the
// running query.
func (r *repl) exec(ctx context.Context, q string) error {
	q = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(q), ";"))
	if q == "" {
		return nil
	}
	if r.echo {
		fmt.Fprintln(r.out, "--", q)
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	start := time.Now()
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return err
	}
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return err
	}
	out, err := collect(rows, len(cols))
	if err != nil {
		return err
	}
	if err := printers[r.format](r.out, cols, out); err != nil {
		return err
	}
	if r.timing {
		fmt.Fprintf(r.out, "(%d rows, %s)\n", len(out), time.Since(start).Round(time.Millisecond))
	}
	return nil
}

func collect(rows *sql.Rows, n int) ([][]any, error) {
	var out [][]any
	for rows.Next() {
		vals := make([]any, n)
		ptrs := make([]any, n)
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		out = append(out, vals)
	}
	return out, rows.Err()
}
