// Package cli answers a single question read from the command line or stdin.
package cli

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/dbtalk/dbtalk/internal/nl2sql"
)

const Prompt = "How can I help you? "

type Asker interface {
	Ask(ctx context.Context, question string) (nl2sql.Answer, error)
	Translate(ctx context.Context, question string) (nl2sql.Translation, error)
}

type Options struct {
	Chain       Asker
	Stdin       io.Reader
	Stdout      io.Writer
	Stderr      io.Writer
	Interactive bool
}

// ParseFlags validates args before any expensive setup. It returns the exit
// code to use when parsing fails.
func ParseFlags(args []string, stderr io.Writer) (Flags, int, bool) {
	if stderr == nil {
		stderr = io.Discard
	}
	fs := flag.NewFlagSet("dbtalk", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { writeUsage(stderr, fs) }

	var flags Flags
	fs.BoolVar(&flags.ShowSQL, "show-sql", false, "print the generated SQL and its result before the answer")
	fs.BoolVar(&flags.TranslateOnly, "translate", false, "print the generated SQL without executing it")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return Flags{}, 0, false
		}
		return Flags{}, 2, false
	}
	flags.Question = strings.TrimSpace(strings.Join(fs.Args(), " "))
	return flags, 0, true
}

type Flags struct {
	ShowSQL       bool
	TranslateOnly bool
	Question      string
}

// Run reads one question, answers it and returns the process exit code.
func Run(ctx context.Context, flags Flags, opts Options) int {
	stdout := opts.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := opts.Stderr
	if stderr == nil {
		stderr = io.Discard
	}
	if opts.Chain == nil {
		_, _ = fmt.Fprintln(stderr, "error: chain is not initialized")
		return 1
	}

	question := flags.Question
	if question == "" {
		if opts.Interactive {
			_, _ = fmt.Fprint(stdout, Prompt)
		}
		line, err := readLine(opts.Stdin)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "error: read question: %v\n", err)
			return 1
		}
		question = line
	}

	if flags.TranslateOnly {
		translation, err := opts.Chain.Translate(ctx, question)
		if err != nil {
			writeFailure(stderr, err)
			return 1
		}
		_, _ = fmt.Fprintln(stdout, translation.SQL)
		return 0
	}

	answer, err := opts.Chain.Ask(ctx, question)
	if err != nil {
		writeFailure(stderr, err)
		return 1
	}
	if flags.ShowSQL {
		_, _ = fmt.Fprintf(stdout, "SQL: %s\nResult:\n%s\n\n", answer.SQL, answer.Context)
	}
	_, _ = fmt.Fprintln(stdout, answer.Text)
	return 0
}

func readLine(r io.Reader) (string, error) {
	if r == nil {
		return "", io.ErrUnexpectedEOF
	}
	reader := bufio.NewReader(r)
	line, err := reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	if errors.Is(err, io.EOF) && line == "" {
		return "", io.ErrUnexpectedEOF
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func writeFailure(w io.Writer, err error) {
	if stage, ok := nl2sql.FailedStage(err); ok {
		_, _ = fmt.Fprintf(w, "error: %s: %v\n", stage, err)
		return
	}
	_, _ = fmt.Fprintf(w, "error: %v\n", err)
}

func writeUsage(w io.Writer, fs *flag.FlagSet) {
	_, _ = fmt.Fprintln(w, "usage: dbtalk [flags] [question]")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "Reads the question from stdin when none is given.")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "flags:")
	fs.PrintDefaults()
}
