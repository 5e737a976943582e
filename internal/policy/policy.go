package policy

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/zombor/expense-tracker/internal/apperr"
	"github.com/zombor/expense-tracker/internal/expense"
	"github.com/zombor/expense-tracker/internal/session"
)

// ReviewThreshold is the amount above which an expense needs additional approval
var ReviewThreshold = decimal.NewFromInt(1000)

// Verdict is the outcome of a compliance check
type Verdict struct {
	Compliant bool     `json:"isCompliant"`
	Issues    []string `json:"issues"`
	Warnings  []string `json:"-"`
}

// Backend runs the server-side policy engine
type Backend interface {
	CheckCompliance(ctx context.Context, token string, in expense.Input) (*Verdict, error)
}

// Checker combines local pre-checks with the remote policy engine
type Checker struct {
	backend Backend
	session *session.Manager
}

// NewChecker creates a new Checker
func NewChecker(backend Backend, sess *session.Manager) *Checker {
	return &Checker{backend: backend, session: sess}
}

// Check validates in locally and, when it is well-formed, asks the policy
// engine. Malformed input is reported as issues without a network call.
func (c *Checker) Check(ctx context.Context, in expense.Input) (*Verdict, error) {
	normalized, err := in.Normalize()
	if err != nil {
		var verr *apperr.ValidationError
		if errors.As(err, &verr) {
			return &Verdict{Compliant: false, Issues: fieldIssues(verr)}, nil
		}
		return nil, err
	}

	var warnings []string
	if normalized.Amount.GreaterThan(ReviewThreshold) {
		warnings = append(warnings, fmt.Sprintf("amount exceeds %s and requires additional approval", ReviewThreshold))
	}

	var verdict *Verdict
	err = c.session.Authorized(ctx, func(ctx context.Context, s session.Session) error {
		v, err := c.backend.CheckCompliance(ctx, s.Token, normalized)
		if err != nil {
			return err
		}
		verdict = v
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("checking compliance: %w", err)
	}
	if verdict == nil {
		verdict = &Verdict{Compliant: true}
	}
	verdict.Warnings = append(verdict.Warnings, warnings...)
	return verdict, nil
}

func fieldIssues(verr *apperr.ValidationError) []string {
	names := make([]string, 0, len(verr.Fields))
	for name := range verr.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	issues := make([]string, 0, len(names))
	for _, name := range names {
		issues = append(issues, verr.Fields[name])
	}
	return issues
}
