package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/peterbourgon/ff/v4"
	"github.com/shopspring/decimal"

	"github.com/zombor/expense-tracker/internal/apperr"
	"github.com/zombor/expense-tracker/internal/expense"
	"github.com/zombor/expense-tracker/internal/format"
	"github.com/zombor/expense-tracker/internal/report"
	"github.com/zombor/expense-tracker/internal/settings"
)

// inputFlags are the form fields shared by create, update and check
type inputFlags struct {
	fs          *ff.FlagSet
	date        *string
	category    *string
	amount      *string
	currency    *string
	description *string
	receipt     *string
}

func addInputFlags(fs *ff.FlagSet) *inputFlags {
	return &inputFlags{
		fs:          fs,
		date:        fs.StringLong("date", "", "Expense date (YYYY-MM-DD)"),
		category:    fs.StringLong("category", "", "Meals, Transportation, Lodging, Office Supplies, Entertainment or Miscellaneous"),
		amount:      fs.StringLong("amount", "", "Amount, e.g. 42.50"),
		currency:    fs.StringLong("currency", "", "Currency code (default USD)"),
		description: fs.StringLong("description", "", "What the expense was for"),
		receipt:     fs.StringLong("receipt", "", "Receipt file to attach (JPEG, PNG, GIF, HEIC or PDF)"),
	}
}

func parseAmount(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, apperr.Validation("amount", "amount must be a number")
	}
	return d, nil
}

func (f *inputFlags) input() (expense.Input, error) {
	amount, err := parseAmount(*f.amount)
	if err != nil {
		return expense.Input{}, err
	}
	return expense.Input{
		Date:        *f.date,
		Category:    expense.Category(*f.category),
		Amount:      amount,
		Currency:    *f.currency,
		Description: *f.description,
	}, nil
}

func (f *inputFlags) isSet(name string) bool {
	flag, ok := f.fs.GetFlag(name)
	return ok && flag.IsSet()
}

// patch builds an update from the flags given on the command line only
func (f *inputFlags) patch() (expense.Patch, error) {
	var p expense.Patch
	if f.isSet("date") {
		p.Date = f.date
	}
	if f.isSet("category") {
		c := expense.Category(*f.category)
		p.Category = &c
	}
	if f.isSet("amount") {
		amount, err := parseAmount(*f.amount)
		if err != nil {
			return p, err
		}
		p.Amount = &amount
	}
	if f.isSet("currency") {
		p.Currency = f.currency
	}
	if f.isSet("description") {
		p.Description = f.description
	}
	return p, nil
}

// attach stages and uploads the receipt named by --receipt, if any
func (a *app) attach(ctx context.Context, path string) (string, error) {
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading receipt: %w", err)
	}
	r, err := a.receipts.Attach(ctx, filepath.Base(path), data, "")
	if err != nil {
		return "", err
	}
	if r.Staged() {
		a.printf("Receipt staged for upload: %s\n", r.Filename)
	}
	return r.Ref, nil
}

func (a *app) printReports(reports []*expense.Report) {
	lang := a.language()
	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tCATEGORY\tAMOUNT\tSTATUS\tDESCRIPTION")
	for _, r := range reports {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, displayDate(r.Date, lang), r.Category,
			format.FormatCurrency(r.Amount, r.Currency), r.Status, r.Description)
	}
	tw.Flush()
}

func (a *app) printReport(r *expense.Report) {
	a.printReports([]*expense.Report{r})
}

// language is the display language from settings, falling back to the default
func (a *app) language() string {
	if a.kv == nil {
		return format.DefaultLanguage
	}
	s, err := settings.Load(a.kv)
	if err != nil {
		return format.DefaultLanguage
	}
	return s.Language
}

func displayDate(date, lang string) string {
	t, err := format.ParseDate(date)
	if err != nil {
		return date
	}
	return format.FormatDate(t, lang)
}

func (a *app) listCommand() *ff.Command {
	fs := a.subFlags("list")
	from := fs.StringLong("from", "", "Earliest date (YYYY-MM-DD)")
	to := fs.StringLong("to", "", "Latest date (YYYY-MM-DD)")
	category := fs.StringLong("category", "", "Only this category")
	status := fs.StringLong("status", "", "Only this status (Draft, Submitted, Pending, Approved, Rejected, InfoRequested)")

	return &ff.Command{
		Name:      "list",
		Usage:     "expense-tracker list [--from DATE] [--to DATE] [--category C] [--status S]",
		ShortHelp: "list expense reports, newest first",
		Flags:     fs,
		Exec: func(ctx context.Context, args []string) error {
			if err := a.open(); err != nil {
				return err
			}
			f := expense.Filter{
				StartDate: *from,
				EndDate:   *to,
				Category:  expense.Category(*category),
				Status:    expense.Status(*status),
			}
			reports, err := a.expenses.List(ctx, f)
			if err != nil {
				return err
			}
			a.printReports(reports)
			return nil
		},
	}
}

func (a *app) createCommand() *ff.Command {
	fs := a.subFlags("create")
	in := addInputFlags(fs)

	return &ff.Command{
		Name:      "create",
		Usage:     "expense-tracker create --date DATE --category C --amount N [FLAGS]",
		ShortHelp: "submit an expense report, or queue it as a draft when offline",
		Flags:     fs,
		Exec: func(ctx context.Context, args []string) error {
			if err := a.open(); err != nil {
				return err
			}
			input, err := in.input()
			if err != nil {
				return err
			}
			// fail before the receipt is staged
			if _, err := input.Normalize(); err != nil {
				return err
			}
			if input.ReceiptRef, err = a.attach(ctx, *in.receipt); err != nil {
				return err
			}

			created, err := a.expenses.Create(ctx, input)
			if err != nil {
				return err
			}
			if created.IsLocal() {
				a.printf("Saved as draft; run 'expense-tracker sync' when online\n")
			}
			a.printReport(created)
			return nil
		},
	}
}

func (a *app) updateCommand() *ff.Command {
	fs := a.subFlags("update")
	in := addInputFlags(fs)

	return &ff.Command{
		Name:      "update",
		Usage:     "expense-tracker update ID [--date DATE] [--amount N] [FLAGS]",
		ShortHelp: "change a draft or an editable report",
		Flags:     fs,
		Exec: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return errors.New("exactly one report id is required")
			}
			if err := a.open(); err != nil {
				return err
			}
			p, err := in.patch()
			if err != nil {
				return err
			}
			if ref, err := a.attach(ctx, *in.receipt); err != nil {
				return err
			} else if ref != "" {
				p.ReceiptRef = &ref
			}

			updated, err := a.expenses.Update(ctx, args[0], p)
			if err != nil {
				return err
			}
			a.printReport(updated)
			return nil
		},
	}
}

func (a *app) syncCommand() *ff.Command {
	return &ff.Command{
		Name:      "sync",
		Usage:     "expense-tracker sync",
		ShortHelp: "submit queued drafts",
		Flags:     a.subFlags("sync"),
		Exec: func(ctx context.Context, args []string) error {
			if err := a.open(); err != nil {
				return err
			}
			results, err := a.expenses.Sync(ctx)
			if err != nil {
				return err
			}
			if len(results) == 0 {
				a.printf("Nothing to sync\n")
				return nil
			}
			failed := 0
			for _, res := range results {
				if res.Err != nil {
					failed++
					a.printf("%s: failed: %v\n", res.LocalID, res.Err)
					continue
				}
				a.printf("%s: submitted as %s (%s)\n", res.LocalID, res.Report.ID, res.Report.Status)
			}
			return batchError(failed, len(results))
		},
	}
}

func (a *app) draftsCommand() *ff.Command {
	fs := a.subFlags("drafts")
	discard := fs.StringLong("discard", "", "Remove the draft with this id from the queue")

	return &ff.Command{
		Name:      "drafts",
		Usage:     "expense-tracker drafts [--discard ID]",
		ShortHelp: "show the offline queue",
		Flags:     fs,
		Exec: func(ctx context.Context, args []string) error {
			if err := a.open(); err != nil {
				return err
			}
			if *discard != "" {
				if err := a.expenses.DiscardDraft(*discard); err != nil {
					return err
				}
				a.printf("Discarded %s\n", *discard)
			}
			drafts, err := a.expenses.Drafts()
			if err != nil {
				return err
			}
			if len(drafts) == 0 {
				a.printf("No drafts\n")
				return nil
			}
			a.printReports(drafts)

			staged, err := a.receipts.Staged()
			if err != nil {
				return err
			}
			if len(staged) > 0 {
				a.printf("%d receipt(s) waiting for upload\n", len(staged))
			}
			return nil
		},
	}
}

func (a *app) checkCommand() *ff.Command {
	fs := a.subFlags("check")
	in := addInputFlags(fs)

	return &ff.Command{
		Name:      "check",
		Usage:     "expense-tracker check --date DATE --category C --amount N [FLAGS]",
		ShortHelp: "run the policy compliance check without submitting",
		Flags:     fs,
		Exec: func(ctx context.Context, args []string) error {
			if err := a.open(); err != nil {
				return err
			}
			input, err := in.input()
			if err != nil {
				return err
			}
			verdict, err := a.checker.Check(ctx, input)
			if err != nil {
				return err
			}
			for _, w := range verdict.Warnings {
				a.printf("warning: %s\n", w)
			}
			if verdict.Compliant {
				a.printf("Compliant\n")
				return nil
			}
			for _, issue := range verdict.Issues {
				a.printf("issue: %s\n", issue)
			}
			return errors.New("expense is not compliant")
		},
	}
}

func (a *app) scanCommand() *ff.Command {
	fs := a.subFlags("scan")
	create := fs.BoolLong("create", "Submit the scanned expense with the receipt attached")

	return &ff.Command{
		Name:      "scan",
		Usage:     "expense-tracker scan [--create] FILE",
		ShortHelp: "read a receipt and prefill an expense",
		Flags:     fs,
		Exec: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return errors.New("exactly one receipt file is required")
			}
			if err := a.open(); err != nil {
				return err
			}
			scanner, err := a.openScanner(ctx)
			if err != nil {
				return err
			}
			defer scanner.Close()

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading receipt: %w", err)
			}
			input, err := a.receipts.WithScanner(scanner).Scan(ctx, data, "")
			if err != nil {
				return err
			}
			printInput(a.stdout, input)
			if !*create {
				return nil
			}

			if input.ReceiptRef, err = a.attach(ctx, args[0]); err != nil {
				return err
			}
			created, err := a.expenses.Create(ctx, input)
			if err != nil {
				return err
			}
			a.printReport(created)
			return nil
		},
	}
}

func printInput(w io.Writer, in expense.Input) {
	fmt.Fprintf(w, "Date: %s\n", in.Date)
	fmt.Fprintf(w, "Category: %s\n", in.Category)
	if in.Currency != "" {
		fmt.Fprintf(w, "Amount: %s\n", format.FormatCurrency(in.Amount, in.Currency))
	} else {
		fmt.Fprintf(w, "Amount: %s\n", in.Amount)
	}
	fmt.Fprintf(w, "Description: %s\n", in.Description)
}

func (a *app) reportCommand() *ff.Command {
	fs := a.subFlags("report")
	from := fs.StringLong("from", "", "First day of the period (YYYY-MM-DD)")
	to := fs.StringLong("to", "", "Last day of the period (YYYY-MM-DD)")

	return &ff.Command{
		Name:      "report",
		Usage:     "expense-tracker report [--from DATE] [--to DATE]",
		ShortHelp: "summarise expenses for a period",
		Flags:     fs,
		Exec: func(ctx context.Context, args []string) error {
			if err := a.open(); err != nil {
				return err
			}
			summary, err := report.Generate(ctx, a.expenses, *from, *to)
			if err != nil {
				return err
			}
			for _, line := range report.Lines(summary, a.language()) {
				a.printf("%s\n", line)
			}
			return nil
		},
	}
}
