package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/peterbourgon/ff/v4"

	"github.com/zombor/expense-tracker/internal/approval"
	"github.com/zombor/expense-tracker/internal/expense"
)

func (a *app) pendingCommand() *ff.Command {
	return &ff.Command{
		Name:      "pending",
		Usage:     "expense-tracker pending",
		ShortHelp: "list reports waiting for a decision",
		Flags:     a.subFlags("pending"),
		Exec: func(ctx context.Context, args []string) error {
			if err := a.open(); err != nil {
				return err
			}
			reports, err := a.controller.Pending(ctx)
			if err != nil {
				return err
			}
			a.printReports(reports)
			return nil
		},
	}
}

// loadPending refreshes the cached pending reports so that ids from the
// command line can be resolved. Cached reports are used when it fails.
func (a *app) loadPending(ctx context.Context) {
	if _, err := a.controller.Pending(ctx); err != nil {
		slog.Warn("Failed to refresh pending reports, using cached copies", "error", err)
	}
}

// printResults writes one line per item and reports whether any failed
func (a *app) printResults(results []approval.Result, verb string) error {
	failed := 0
	for _, res := range results {
		if res.Err != nil {
			failed++
			a.printf("%s: failed: %v\n", res.ReportID, res.Err)
			continue
		}
		a.printf("%s: %s\n", res.ReportID, verb)
	}
	return batchError(failed, len(results))
}

func (a *app) decisionCommand(name, verb, help string, batch func(*approval.Controller, context.Context, []string) []approval.Result) *ff.Command {
	return &ff.Command{
		Name:      name,
		Usage:     "expense-tracker " + name + " ID [ID...]",
		ShortHelp: help,
		Flags:     a.subFlags(name),
		Exec: func(ctx context.Context, args []string) error {
			if len(args) == 0 {
				return errors.New("at least one report id is required")
			}
			if err := a.open(); err != nil {
				return err
			}
			a.loadPending(ctx)
			return a.printResults(batch(a.controller, ctx, args), verb)
		},
	}
}

func (a *app) approveCommand() *ff.Command {
	return a.decisionCommand("approve", string(expense.StatusApproved), "approve pending reports", (*approval.Controller).BatchApprove)
}

func (a *app) rejectCommand() *ff.Command {
	return a.decisionCommand("reject", string(expense.StatusRejected), "reject pending reports", (*approval.Controller).BatchReject)
}

func (a *app) requestInfoCommand() *ff.Command {
	fs := a.subFlags("request-info")
	message := fs.StringLong("message", "", "Question for the employee (required)")

	return &ff.Command{
		Name:      "request-info",
		Usage:     "expense-tracker request-info --message TEXT ID",
		ShortHelp: "ask the employee for more information",
		Flags:     fs,
		Exec: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return errors.New("exactly one report id is required")
			}
			if err := a.open(); err != nil {
				return err
			}
			a.loadPending(ctx)
			r, err := a.controller.RequestInfo(ctx, args[0], *message)
			if err != nil {
				return err
			}
			a.printf("%s: %s\n", r.ID, r.Status)
			return nil
		},
	}
}
