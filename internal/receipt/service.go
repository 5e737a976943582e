package receipt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/zombor/expense-tracker/internal/apperr"
	"github.com/zombor/expense-tracker/internal/expense"
	"github.com/zombor/expense-tracker/internal/format"
	"github.com/zombor/expense-tracker/internal/scanning"
	"github.com/zombor/expense-tracker/internal/session"
)

// Uploader sends receipt files to the backend
type Uploader interface {
	UploadReceipt(ctx context.Context, token, filename string, data []byte, contentType string) (string, error)
}

// IDGenerator generates unique prefixes for staged files
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

type alwaysOnline struct{}

func (alwaysOnline) Online() bool { return true }

// ErrScanningDisabled is returned by Scan when no scanner is configured
var ErrScanningDisabled = errors.New("receipt scanning is not configured")

var (
	unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	spaces      = regexp.MustCompile(`\s+`)
)

// Service attaches receipts to expenses. Files are staged locally first, so
// a receipt captured offline survives until it can be uploaded.
type Service struct {
	uploader     Uploader
	session      *session.Manager
	storage      Storage
	scanner      scanning.Scanner
	connectivity expense.Connectivity
	idGenerator  IDGenerator
	timeSource   TimeSource
}

// NewService creates a new Service. scanner may be nil to disable Scan.
func NewService(uploader Uploader, sess *session.Manager, storage Storage, scanner scanning.Scanner) *Service {
	return &Service{
		uploader:     uploader,
		session:      sess,
		storage:      storage,
		scanner:      scanner,
		connectivity: alwaysOnline{},
		idGenerator:  &defaultIDGenerator{},
		timeSource:   &defaultTimeSource{},
	}
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(uploader Uploader, sess *session.Manager, storage Storage, scanner scanning.Scanner, conn expense.Connectivity, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		uploader:     uploader,
		session:      sess,
		storage:      storage,
		scanner:      scanner,
		connectivity: conn,
		idGenerator:  idGen,
		timeSource:   timeSrc,
	}
}

// WithConnectivity sets the online check consulted before uploading
func (s *Service) WithConnectivity(c expense.Connectivity) *Service {
	s.connectivity = c
	return s
}

// WithScanner sets the model used by Scan
func (s *Service) WithScanner(scanner scanning.Scanner) *Service {
	s.scanner = scanner
	return s
}

// sanitizeFilename cleans up a filename by removing special characters and truncating length
func sanitizeFilename(filename string) string {
	filename = filepath.Base(strings.ReplaceAll(filename, `\`, "/"))
	ext := strings.ToLower(filepath.Ext(filename))
	if unsafeChars.MatchString(strings.TrimPrefix(ext, ".")) {
		ext = ""
	}
	base := strings.TrimSuffix(filename, filepath.Ext(filename))

	base = unsafeChars.ReplaceAllString(base, "")
	base = strings.TrimSpace(spaces.ReplaceAllString(base, " "))

	// phone cameras produce long names
	if len(base) > 50 {
		base = strings.TrimSpace(base[:50])
	}
	if base == "" {
		base = "receipt"
	}
	return base + ext
}

// detectContentType sniffs the file, falling back to the declared type when
// sniffing is inconclusive
func detectContentType(data []byte, declared string) string {
	detected := mimetype.Detect(data)
	for _, allowed := range AllowedContentTypes {
		if detected.Is(allowed) {
			return allowed
		}
	}
	declared = strings.ToLower(strings.TrimSpace(declared))
	if i := strings.Index(declared, ";"); i >= 0 {
		declared = strings.TrimSpace(declared[:i])
	}
	if slices.Contains(AllowedContentTypes, declared) {
		return declared
	}
	return detected.String()
}

// validate checks size and format before anything is stored
func validate(data []byte, contentType string) error {
	verr := &apperr.ValidationError{}
	if len(data) == 0 {
		verr.Add("file", "receipt file is empty")
	} else if len(data) > MaxSize {
		verr.Add("file", fmt.Sprintf("receipt file exceeds %d MB", MaxSize>>20))
	}
	if len(data) > 0 && !slices.Contains(AllowedContentTypes, contentType) {
		verr.Add("contentType", "receipt must be a JPEG, PNG, GIF, HEIC or PDF file")
	}
	return verr.OrNil()
}

// Attach stages a receipt and uploads it. When the backend cannot be
// reached the staged copy is kept and a local reference is returned, to be
// resolved during sync.
func (s *Service) Attach(ctx context.Context, filename string, data []byte, contentType string) (*Receipt, error) {
	contentType = detectContentType(data, contentType)
	if err := validate(data, contentType); err != nil {
		return nil, err
	}

	name := fmt.Sprintf("%s_%s", s.idGenerator.Generate(), sanitizeFilename(filename))
	saved, err := s.storage.Save(name, data)
	if err != nil {
		return nil, fmt.Errorf("staging receipt: %w", err)
	}

	receipt := &Receipt{
		Ref:         LocalRefPrefix + saved,
		Filename:    saved,
		ContentType: contentType,
		Size:        len(data),
		CreatedAt:   s.timeSource.Now(),
	}

	if !s.connectivity.Online() {
		return receipt, nil
	}

	ref, err := s.upload(ctx, saved, data, contentType)
	if errors.Is(err, apperr.ErrNetwork) {
		slog.Info("Backend unreachable, keeping receipt staged", "filename", saved, "error", err)
		return receipt, nil
	}
	if err != nil {
		if delErr := s.storage.Delete(saved); delErr != nil {
			slog.Warn("Failed to delete staged receipt", "filename", saved, "error", delErr)
		}
		return nil, fmt.Errorf("uploading receipt: %w", err)
	}

	s.discard(saved)
	receipt.Ref = ref
	return receipt, nil
}

// IsLocal reports whether ref names a staged receipt
func (s *Service) IsLocal(ref string) bool {
	return IsLocalRef(ref)
}

// Resolve uploads a staged receipt and returns the server reference. Refs
// that are not local are returned unchanged.
func (s *Service) Resolve(ctx context.Context, ref string) (string, error) {
	if !IsLocalRef(ref) {
		return ref, nil
	}
	name := strings.TrimPrefix(ref, LocalRefPrefix)

	data, err := s.storage.Get(name)
	if err != nil {
		return "", fmt.Errorf("reading staged receipt %s: %w", name, err)
	}

	serverRef, err := s.upload(ctx, name, data, detectContentType(data, ""))
	if err != nil {
		return "", err
	}
	s.discard(name)
	return serverRef, nil
}

// Staged lists the local references of receipts waiting for upload
func (s *Service) Staged() ([]string, error) {
	names, err := s.storage.List()
	if err != nil {
		return nil, fmt.Errorf("listing staged receipts: %w", err)
	}
	refs := make([]string, 0, len(names))
	for _, n := range names {
		refs = append(refs, LocalRefPrefix+n)
	}
	return refs, nil
}

func (s *Service) upload(ctx context.Context, name string, data []byte, contentType string) (string, error) {
	var ref string
	err := s.session.Authorized(ctx, func(ctx context.Context, sess session.Session) error {
		r, err := s.uploader.UploadReceipt(ctx, sess.Token, name, data, contentType)
		if err != nil {
			return err
		}
		ref = r
		return nil
	})
	return ref, err
}

func (s *Service) discard(name string) {
	if err := s.storage.Delete(name); err != nil {
		slog.Warn("Failed to delete staged receipt", "filename", name, "error", err)
	}
}

// Scan reads a receipt with the configured model and returns a prefilled
// expense input. Fields the model could not read, or read as values the
// expense form does not accept, are left empty for the user.
func (s *Service) Scan(ctx context.Context, data []byte, contentType string) (expense.Input, error) {
	if s.scanner == nil {
		return expense.Input{}, ErrScanningDisabled
	}
	contentType = detectContentType(data, contentType)
	if err := validate(data, contentType); err != nil {
		return expense.Input{}, err
	}

	rd, err := s.scanner.ScanReceipt(ctx, data, contentType)
	if err != nil {
		slog.Error("Failed to scan receipt",
			"content_type", contentType,
			"file_size", len(data),
			"error", err,
		)
		return expense.Input{}, fmt.Errorf("scanning receipt: %w", err)
	}

	in := expense.Input{
		Date:        rd.Date,
		Description: rd.Merchant,
	}
	if rd.Amount.IsPositive() {
		in.Amount = rd.Amount
	}
	if c, ok := expense.ParseCategory(rd.Category); ok {
		in.Category = c
	}
	if code, err := format.ParseCurrency(rd.Currency, expense.AllowedCurrencies); err == nil {
		in.Currency = code
		in.Amount = in.Amount.Round(format.CurrencyScale(code))
	}
	return in, nil
}
