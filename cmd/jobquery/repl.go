package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/jobmap/internal/session"
)

const help = `commands:
  search <text>      replace the query (blank clears it)
  location <text>    filter by location (blank clears it)
  more               load the next page
  all                reset to every job
  show               print the loaded jobs
  quit               exit`

type repl struct {
	sess *session.Session
	out  io.Writer
}

// run reads commands from in until EOF or quit.
func (r *repl) run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	fmt.Fprint(r.out, "> ")
	for scanner.Scan() {
		if done := r.exec(ctx, scanner.Text()); done {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		fmt.Fprint(r.out, "> ")
	}
	return scanner.Err()
}

func (r *repl) exec(ctx context.Context, line string) (quit bool) {
	cmd, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	arg = strings.TrimSpace(arg)

	var err error
	before := len(r.sess.State().Items)
	switch strings.ToLower(cmd) {
	case "":
		return false
	case "quit", "exit":
		return true
	case "help":
		fmt.Fprintln(r.out, help)
		return false
	case "show":
		r.printItems(0)
		return false
	case "search":
		err = r.sess.Search(ctx, arg)
		before = 0
	case "location":
		err = r.sess.FilterByLocation(ctx, arg)
		before = 0
	case "all":
		err = r.sess.Init(ctx)
		before = 0
	case "more":
		if !r.sess.State().HasMore {
			fmt.Fprintln(r.out, "no more jobs")
			return false
		}
		err = r.sess.LoadMore(ctx)
	default:
		fmt.Fprintf(r.out, "unknown command %q, try help\n", cmd)
		return false
	}

	if err != nil && !errors.Is(err, session.ErrSuperseded) {
		fmt.Fprintf(r.out, "error: %v\n", err)
		return false
	}
	r.printItems(before)
	return false
}

// printItems prints loaded items from index from onwards and a summary.
func (r *repl) printItems(from int) {
	st := r.sess.State()
	for i := from; i < len(st.Items); i++ {
		job := st.Items[i]
		company := job.Company
		if company == "" {
			company = "-"
		}
		fmt.Fprintf(r.out, "%4d  %s | %s | %s\n", i+1, job.Title, company, job.Location)
	}
	filter := ""
	if st.Query != "" {
		filter += fmt.Sprintf(" query=%q", st.Query)
	}
	if st.Location != "" {
		filter += fmt.Sprintf(" location=%q", st.Location)
	}
	more := ""
	if st.HasMore {
		more = ", more available"
	}
	fmt.Fprintf(r.out, "showing %d of %d%s%s\n", len(st.Items), st.TotalJobs, filter, more)
}
