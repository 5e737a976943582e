package expense

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/expense-tracker/internal/apperr"
	"github.com/zombor/expense-tracker/internal/session"
	"github.com/zombor/expense-tracker/internal/store"
)

// LocalIDPrefix marks ids assigned to drafts captured offline
const LocalIDPrefix = "local-"

// Backend is the expense API the repository talks to
type Backend interface {
	ListExpenses(ctx context.Context, token, userID string, f Filter) ([]*Report, error)
	SubmitExpense(ctx context.Context, token string, r *Report) (*Report, error)
	UpdateExpense(ctx context.Context, token, id string, p Patch) (*Report, error)
}

// Connectivity reports whether the device is believed to be online
type Connectivity interface {
	Online() bool
}

// ReceiptResolver turns a locally staged receipt reference into a server one
type ReceiptResolver interface {
	IsLocal(ref string) bool
	Resolve(ctx context.Context, ref string) (string, error)
}

// IDGenerator generates temporary ids for drafts
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return LocalIDPrefix + uuid.NewString()
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

type alwaysOnline struct{}

func (alwaysOnline) Online() bool { return true }

// SyncResult is the outcome of submitting one queued draft
type SyncResult struct {
	LocalID string
	Report  *Report
	Err     error
}

// Repository is the single source of truth for expense data visible to the
// current session. It merges server state, the offline draft queue and the
// in-memory cache, and is the only component that mutates the cache.
type Repository struct {
	backend      Backend
	session      *session.Manager
	kv           store.KV
	connectivity Connectivity
	receipts     ReceiptResolver
	idGenerator  IDGenerator
	timeSource   TimeSource

	mu    sync.Mutex
	cache []*Report
}

// Option configures a Repository
type Option func(*Repository)

// WithConnectivity sets the online check consulted before network calls
func WithConnectivity(c Connectivity) Option {
	return func(r *Repository) { r.connectivity = c }
}

// WithReceiptResolver uploads staged receipts before drafts are synced
func WithReceiptResolver(rr ReceiptResolver) Option {
	return func(r *Repository) { r.receipts = rr }
}

// WithIDGenerator replaces the draft id generator
func WithIDGenerator(g IDGenerator) Option {
	return func(r *Repository) { r.idGenerator = g }
}

// WithTimeSource replaces the clock
func WithTimeSource(t TimeSource) Option {
	return func(r *Repository) { r.timeSource = t }
}

// NewRepository creates a Repository and loads the cached server view
func NewRepository(backend Backend, sess *session.Manager, kv store.KV, opts ...Option) (*Repository, error) {
	r := &Repository{
		backend:      backend,
		session:      sess,
		kv:           kv,
		connectivity: alwaysOnline{},
		idGenerator:  &defaultIDGenerator{},
		timeSource:   &defaultTimeSource{},
	}
	for _, opt := range opts {
		opt(r)
	}

	if _, err := kv.Get(store.KeyCache, &r.cache); err != nil {
		return nil, fmt.Errorf("loading expense cache: %w", err)
	}
	return r, nil
}

// Create validates the input and submits it. When offline, or when the
// submission fails for network reasons, the report is queued as a Draft and
// Create succeeds.
func (r *Repository) Create(ctx context.Context, in Input) (*Report, error) {
	normalized, err := in.Normalize()
	if err != nil {
		return nil, err
	}

	sess, ok := r.session.Current()
	if !ok {
		return nil, &apperr.AuthError{Reason: "not logged in"}
	}

	report := &Report{
		OwnerID:     sess.UserID,
		Date:        normalized.Date,
		Category:    normalized.Category,
		Amount:      normalized.Amount,
		Currency:    normalized.Currency,
		Description: normalized.Description,
		ReceiptRef:  normalized.ReceiptRef,
		CreatedAt:   r.timeSource.Now(),
	}

	if !r.connectivity.Online() {
		return r.enqueue(report)
	}

	if r.receipts != nil && r.receipts.IsLocal(report.ReceiptRef) {
		ref, err := r.receipts.Resolve(ctx, report.ReceiptRef)
		if errors.Is(err, apperr.ErrNetwork) {
			slog.Info("Backend unreachable, queueing expense offline", "error", err)
			return r.enqueue(report)
		}
		if err != nil {
			return nil, fmt.Errorf("uploading receipt: %w", err)
		}
		report.ReceiptRef = ref
	}

	created, err := r.submit(ctx, report)
	if errors.Is(err, apperr.ErrNetwork) {
		slog.Info("Backend unreachable, queueing expense offline", "error", err)
		return r.enqueue(report)
	}
	if err != nil {
		return nil, fmt.Errorf("creating expense: %w", err)
	}

	r.Record(created)
	return created.clone(), nil
}

// submit sends report to the backend and returns the server's copy
func (r *Repository) submit(ctx context.Context, report *Report) (*Report, error) {
	var created *Report
	err := r.session.Authorized(ctx, func(ctx context.Context, s session.Session) error {
		c, err := r.backend.SubmitExpense(ctx, s.Token, report)
		if err != nil {
			return err
		}
		created = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	if created.Status == "" {
		created.Status = StatusSubmitted
	}
	if created.OwnerID == "" {
		created.OwnerID = report.OwnerID
	}
	if created.CreatedAt.IsZero() {
		created.CreatedAt = report.CreatedAt
	}
	return created, nil
}

// enqueue stores report as a Draft in the offline queue
func (r *Repository) enqueue(report *Report) (*Report, error) {
	report.ID = r.idGenerator.Generate()
	report.Status = StatusDraft

	r.mu.Lock()
	defer r.mu.Unlock()

	drafts, err := r.loadDrafts()
	if err != nil {
		return nil, err
	}
	drafts = append(drafts, report)
	if err := r.saveDrafts(drafts); err != nil {
		return nil, err
	}
	return report.clone(), nil
}

// List returns the merged view: server reports matching f followed by
// queued drafts matching f, de-duplicated by id and ordered by date
// descending (ties keep insertion order). When the backend is unreachable
// the last cached server view stands in for it.
func (r *Repository) List(ctx context.Context, f Filter) ([]*Report, error) {
	f, err := f.Normalize()
	if err != nil {
		return nil, err
	}

	server, err := r.fetch(ctx, f)
	if err != nil {
		if !errors.Is(err, apperr.ErrNetwork) {
			return nil, fmt.Errorf("listing expenses: %w", err)
		}
		slog.Warn("Backend unreachable, listing cached expenses", "error", err)
		server = r.cached(f)
	}

	r.mu.Lock()
	drafts, err := r.loadDrafts()
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}

	merged := make([]*Report, 0, len(server)+len(drafts))
	seen := make(map[string]bool, len(server)+len(drafts))
	add := func(rep *Report) {
		if seen[rep.ID] {
			return
		}
		seen[rep.ID] = true
		merged = append(merged, rep.clone())
	}
	for _, rep := range server {
		add(rep)
	}
	for _, rep := range drafts {
		if f.Matches(rep) {
			add(rep)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Date > merged[j].Date
	})
	return merged, nil
}

// fetch retrieves server reports for f and merges them into the cache
func (r *Repository) fetch(ctx context.Context, f Filter) ([]*Report, error) {
	if !r.connectivity.Online() {
		return nil, &apperr.NetworkError{Op: "list expenses", Err: errors.New("device is offline")}
	}

	var reports []*Report
	err := r.session.Authorized(ctx, func(ctx context.Context, s session.Session) error {
		list, err := r.backend.ListExpenses(ctx, s.Token, s.UserID, f)
		if err != nil {
			return err
		}
		reports = list
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if f == (Filter{}) {
		r.cache = r.cache[:0]
	}
	recorded := make(map[string]bool, len(reports))
	for _, rep := range reports {
		if recorded[rep.ID] {
			continue
		}
		recorded[rep.ID] = true
		r.recordLocked(rep)
	}
	r.persistCacheLocked()
	return reports, nil
}

// Refresh refetches the unfiltered server view into the cache
func (r *Repository) Refresh(ctx context.Context) error {
	if _, err := r.fetch(ctx, Filter{}); err != nil {
		return fmt.Errorf("refreshing expenses: %w", err)
	}
	return nil
}

// cached returns cached server reports matching f in cache order
func (r *Repository) cached(f Filter) []*Report {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Report, 0, len(r.cache))
	for _, rep := range r.cache {
		if f.Matches(rep) {
			out = append(out, rep.clone())
		}
	}
	return out
}

// Sync submits every queued draft in queue order. Each draft succeeds or
// fails on its own: failures stay queued and never stop later drafts.
func (r *Repository) Sync(ctx context.Context) ([]SyncResult, error) {
	r.mu.Lock()
	drafts, err := r.loadDrafts()
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}

	results := make([]SyncResult, 0, len(drafts))
	for _, draft := range drafts {
		result := SyncResult{LocalID: draft.ID}
		created, err := r.syncOne(ctx, draft)
		if err != nil {
			slog.Warn("Failed to sync draft", "local_id", draft.ID, "error", err)
			result.Err = err
		} else {
			result.Report = created
		}
		results = append(results, result)
	}
	return results, nil
}

func (r *Repository) syncOne(ctx context.Context, draft *Report) (*Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pending := draft.clone()
	pending.ID = ""
	pending.Status = ""

	if r.receipts != nil && r.receipts.IsLocal(pending.ReceiptRef) {
		ref, err := r.receipts.Resolve(ctx, pending.ReceiptRef)
		if err != nil {
			return nil, fmt.Errorf("uploading receipt: %w", err)
		}
		pending.ReceiptRef = ref
		r.updateDraft(draft.ID, func(d *Report) { d.ReceiptRef = ref })
	}

	created, err := r.submit(ctx, pending)
	if err != nil {
		return nil, err
	}

	// the server has the report now, so it is recorded even if the queue
	// cannot be rewritten
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recordLocked(created)
	r.persistCacheLocked()
	if err := r.removeDraftLocked(draft.ID); err != nil {
		slog.Warn("Failed to remove synced draft", "local_id", draft.ID, "id", created.ID, "error", err)
	}
	return created.clone(), nil
}

// Update changes a report. Drafts are patched locally and re-validated;
// synced reports are patched server-side and a refusal is returned as is.
func (r *Repository) Update(ctx context.Context, id string, p Patch) (*Report, error) {
	if p.IsEmpty() {
		return nil, apperr.Validation("patch", "nothing to update")
	}

	r.mu.Lock()
	drafts, err := r.loadDrafts()
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}
	for _, d := range drafts {
		if d.ID == id {
			return r.updateLocalDraft(d, p)
		}
	}

	var updated *Report
	err = r.session.Authorized(ctx, func(ctx context.Context, s session.Session) error {
		u, err := r.backend.UpdateExpense(ctx, s.Token, id, p)
		if err != nil {
			return err
		}
		updated = u
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("updating expense %s: %w", id, err)
	}

	r.Record(updated)
	return updated.clone(), nil
}

func (r *Repository) updateLocalDraft(draft *Report, p Patch) (*Report, error) {
	in, err := p.apply(draft).Normalize()
	if err != nil {
		return nil, err
	}
	updated := applyInput(draft, in)
	if !r.updateDraft(draft.ID, func(d *Report) { *d = *updated }) {
		return nil, fmt.Errorf("draft %s: %w", draft.ID, apperr.ErrNotFound)
	}
	return updated, nil
}

func applyInput(r *Report, in Input) *Report {
	c := r.clone()
	c.Date = in.Date
	c.Category = in.Category
	c.Amount = in.Amount
	c.Currency = in.Currency
	c.Description = in.Description
	c.ReceiptRef = in.ReceiptRef
	return c
}

// Get returns a copy of a report from the cache or the draft queue
func (r *Repository) Get(id string) (*Report, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, rep := range r.cache {
		if rep.ID == id {
			return rep.clone(), true
		}
	}
	drafts, err := r.loadDrafts()
	if err != nil {
		slog.Warn("Failed to load drafts", "error", err)
		return nil, false
	}
	for _, d := range drafts {
		if d.ID == id {
			return d, true
		}
	}
	return nil, false
}

// Record stores a server-confirmed report in the cache, replacing any entry
// with the same id. It is the only way other components change cached state.
func (r *Repository) Record(report *Report) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recordLocked(report)
	r.persistCacheLocked()
}

func (r *Repository) recordLocked(report *Report) {
	c := report.clone()
	for i, rep := range r.cache {
		if rep.ID == c.ID {
			r.cache[i] = c
			return
		}
	}
	r.cache = append(r.cache, c)
}

func (r *Repository) persistCacheLocked() {
	if err := r.kv.Put(store.KeyCache, r.cache); err != nil {
		slog.Warn("Failed to persist expense cache", "error", err)
	}
}

// Drafts returns the offline queue in queue order
func (r *Repository) Drafts() ([]*Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loadDrafts()
}

// DiscardDraft removes a draft from the offline queue
func (r *Repository) DiscardDraft(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeDraftLocked(id)
}

func (r *Repository) removeDraftLocked(id string) error {
	drafts, err := r.loadDrafts()
	if err != nil {
		return err
	}
	kept := drafts[:0]
	found := false
	for _, d := range drafts {
		if d.ID == id {
			found = true
			continue
		}
		kept = append(kept, d)
	}
	if !found {
		return fmt.Errorf("draft %s: %w", id, apperr.ErrNotFound)
	}
	return r.saveDrafts(kept)
}

// updateDraft applies fn to the queued draft with id and persists the queue
func (r *Repository) updateDraft(id string, fn func(*Report)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	drafts, err := r.loadDrafts()
	if err != nil {
		slog.Warn("Failed to load drafts", "error", err)
		return false
	}
	for _, d := range drafts {
		if d.ID == id {
			fn(d)
			if err := r.saveDrafts(drafts); err != nil {
				slog.Warn("Failed to save drafts", "error", err)
				return false
			}
			return true
		}
	}
	return false
}

func (r *Repository) loadDrafts() ([]*Report, error) {
	drafts := make([]*Report, 0)
	if _, err := r.kv.Get(store.KeyDrafts, &drafts); err != nil {
		return nil, fmt.Errorf("loading drafts: %w", err)
	}
	return drafts, nil
}

func (r *Repository) saveDrafts(drafts []*Report) error {
	if err := r.kv.Put(store.KeyDrafts, drafts); err != nil {
		return fmt.Errorf("saving drafts: %w", err)
	}
	return nil
}
