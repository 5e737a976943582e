package approval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/zombor/expense-tracker/internal/apperr"
	"github.com/zombor/expense-tracker/internal/expense"
	"github.com/zombor/expense-tracker/internal/notification"
	"github.com/zombor/expense-tracker/internal/session"
)

// Workflow actions, also the final path segment of the transition endpoint
const (
	ActionApprove     = "approve"
	ActionReject      = "reject"
	ActionRequestInfo = "request-info"
)

const (
	approvedMessage = "Your expense report has been approved."
	rejectedMessage = "Your expense report has been rejected."
)

// Backend performs transitions and creates notifications server-side
type Backend interface {
	TransitionExpense(ctx context.Context, token, id, action, message string) (*expense.Report, error)
	SendNotification(ctx context.Context, token string, n notification.Outgoing) error
}

// Reports is the part of the expense repository the controller reads and
// writes through
type Reports interface {
	Get(id string) (*expense.Report, bool)
	Record(report *expense.Report)
	List(ctx context.Context, f expense.Filter) ([]*expense.Report, error)
}

// Result is the outcome of one item of a batch
type Result struct {
	ReportID string
	Report   *expense.Report
	Err      error
}

// Controller drives reports from Pending to a terminal state
type Controller struct {
	backend Backend
	session *session.Manager
	reports Reports
}

// NewController creates a new Controller
func NewController(backend Backend, sess *session.Manager, reports Reports) *Controller {
	return &Controller{
		backend: backend,
		session: sess,
		reports: reports,
	}
}

// transition describes one workflow step
type transition struct {
	action  string
	target  expense.Status
	kind    string
	message string
}

// Approve moves a Pending report to Approved
func (c *Controller) Approve(ctx context.Context, id string) (*expense.Report, error) {
	return c.apply(ctx, id, transition{
		action:  ActionApprove,
		target:  expense.StatusApproved,
		kind:    notification.TypeExpenseApproved,
		message: approvedMessage,
	})
}

// Reject moves a Pending report to Rejected
func (c *Controller) Reject(ctx context.Context, id string) (*expense.Report, error) {
	return c.apply(ctx, id, transition{
		action:  ActionReject,
		target:  expense.StatusRejected,
		kind:    notification.TypeExpenseRejected,
		message: rejectedMessage,
	})
}

// RequestInfo moves a Pending report to InfoRequested and forwards message
// to the owner verbatim
func (c *Controller) RequestInfo(ctx context.Context, id, message string) (*expense.Report, error) {
	if strings.TrimSpace(message) == "" {
		return nil, apperr.Validation("message", "a message is required when requesting information")
	}
	return c.apply(ctx, id, transition{
		action:  ActionRequestInfo,
		target:  expense.StatusInfoRequested,
		kind:    notification.TypeInfoRequested,
		message: message,
	})
}

// BatchApprove approves each id in order. Every id gets exactly one result;
// a failure never stops the items after it.
func (c *Controller) BatchApprove(ctx context.Context, ids []string) []Result {
	return c.batch(ctx, ids, c.Approve)
}

// BatchReject rejects each id in order, like BatchApprove
func (c *Controller) BatchReject(ctx context.Context, ids []string) []Result {
	return c.batch(ctx, ids, c.Reject)
}

func (c *Controller) batch(ctx context.Context, ids []string, fn func(context.Context, string) (*expense.Report, error)) []Result {
	results := make([]Result, 0, len(ids))
	for _, id := range ids {
		result := Result{ReportID: id}
		if err := ctx.Err(); err != nil {
			result.Err = err
			results = append(results, result)
			continue
		}

		report, err := fn(ctx, id)
		if err != nil {
			slog.Warn("Batch item failed", "report_id", id, "error", err)
			result.Err = err
		} else {
			result.Report = report
		}
		results = append(results, result)
	}
	return results
}

// Pending lists the reports awaiting a decision
func (c *Controller) Pending(ctx context.Context) ([]*expense.Report, error) {
	reports, err := c.reports.List(ctx, expense.Filter{Status: expense.StatusPending})
	if err != nil {
		return nil, fmt.Errorf("listing pending reports: %w", err)
	}
	return reports, nil
}

func (c *Controller) apply(ctx context.Context, id string, t transition) (*expense.Report, error) {
	current, ok := c.reports.Get(id)
	if !ok {
		return nil, fmt.Errorf("report %s: %w", id, apperr.ErrNotFound)
	}
	if current.Status != expense.StatusPending {
		return nil, &apperr.TransitionError{ReportID: id, From: string(current.Status), Action: t.action}
	}

	var (
		updated *expense.Report
		token   string
	)
	err := c.session.Authorized(ctx, func(ctx context.Context, s session.Session) error {
		token = s.Token
		var message string
		if t.action == ActionRequestInfo {
			message = t.message
		}
		u, err := c.backend.TransitionExpense(ctx, s.Token, id, t.action, message)
		if err != nil {
			return err
		}
		updated = u
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s report %s: %w", t.action, id, err)
	}

	if updated == nil {
		updated = current
	}
	// the server copy may omit fields; the confirmed status always wins
	updated.Status = t.target
	if updated.ID == "" {
		updated.ID = id
	}
	if updated.OwnerID == "" {
		updated.OwnerID = current.OwnerID
	}
	c.reports.Record(updated)

	c.notify(ctx, token, updated, t)
	return updated, nil
}

// notify emits the outcome notification. The transition is already
// authoritative, so failures are only logged.
func (c *Controller) notify(ctx context.Context, token string, report *expense.Report, t transition) {
	if report.OwnerID == "" {
		slog.Warn("Report has no owner, skipping notification", "report_id", report.ID)
		return
	}
	err := c.backend.SendNotification(ctx, token, notification.Outgoing{
		RecipientID: report.OwnerID,
		ReportID:    report.ID,
		Type:        t.kind,
		Message:     t.message,
	})
	if err != nil {
		slog.Warn("Failed to send notification", "report_id", report.ID, "type", t.kind, "error", err)
	}
}
