package api

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"github.com/zombor/expense-tracker/internal/expense"
	"github.com/zombor/expense-tracker/internal/notification"
	"github.com/zombor/expense-tracker/internal/policy"
	"github.com/zombor/expense-tracker/internal/session"
)

// Login exchanges credentials for a token
func (c *Client) Login(ctx context.Context, email, password string) (*session.Credentials, error) {
	body, err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/login",
		body:   map[string]string{"email": email, "password": password},
	})
	if err != nil {
		return nil, err
	}

	var creds session.Credentials
	if _, err := decodeObject(body, &creds); err != nil {
		return nil, err
	}
	return &creds, nil
}

// Logout invalidates token server-side
func (c *Client) Logout(ctx context.Context, token string) error {
	_, err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/logout",
		token:  token,
	})
	return err
}

// ListExpenses returns the user's reports, filtered server-side
func (c *Client) ListExpenses(ctx context.Context, token, userID string, f expense.Filter) ([]*expense.Report, error) {
	query := url.Values{}
	if f.StartDate != "" {
		query.Set("startDate", f.StartDate)
	}
	if f.EndDate != "" {
		query.Set("endDate", f.EndDate)
	}
	if f.Category != "" {
		query.Set("category", string(f.Category))
	}
	if f.Status != "" {
		query.Set("status", string(f.Status))
	}

	body, err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/expenses/" + escape(userID),
		token:  token,
		query:  query,
	})
	if err != nil {
		return nil, err
	}

	reports := make([]*expense.Report, 0)
	if err := decodeList(body, "expenses", &reports); err != nil {
		return nil, err
	}
	return reports, nil
}

type submitRequest struct {
	OwnerID     string           `json:"ownerId"`
	Date        string           `json:"date"`
	Category    expense.Category `json:"category"`
	Amount      decimal.Decimal  `json:"amount"`
	Currency    string           `json:"currency"`
	Description string           `json:"description"`
	ReceiptRef  string           `json:"receiptRef,omitempty"`
}

// SubmitExpense creates a report server-side
func (c *Client) SubmitExpense(ctx context.Context, token string, r *expense.Report) (*expense.Report, error) {
	body, err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/expenses",
		token:  token,
		body: submitRequest{
			OwnerID:     r.OwnerID,
			Date:        r.Date,
			Category:    r.Category,
			Amount:      r.Amount,
			Currency:    r.Currency,
			Description: r.Description,
			ReceiptRef:  r.ReceiptRef,
		},
	})
	if err != nil {
		return nil, err
	}

	var created expense.Report
	ok, err := decodeObject(body, &created)
	if err != nil {
		return nil, err
	}
	if !ok || created.ID == "" {
		return nil, fmt.Errorf("submitting expense: response carried no id")
	}
	return &created, nil
}

// UpdateExpense patches a synced report
func (c *Client) UpdateExpense(ctx context.Context, token, id string, p expense.Patch) (*expense.Report, error) {
	body, err := c.do(ctx, request{
		method: http.MethodPatch,
		path:   "/expenses/" + escape(id),
		token:  token,
		body:   p,
	})
	if err != nil {
		return nil, err
	}

	var updated expense.Report
	ok, err := decodeObject(body, &updated)
	if err != nil {
		return nil, err
	}
	if !ok || updated.ID == "" {
		return nil, fmt.Errorf("updating expense: response carried no report")
	}
	return &updated, nil
}

// TransitionExpense performs a workflow action (approve, reject or
// request-info). A nil report with a nil error means the server confirmed
// without returning a body.
func (c *Client) TransitionExpense(ctx context.Context, token, id, action, message string) (*expense.Report, error) {
	var payload any
	if message != "" {
		payload = map[string]string{"message": message}
	}

	body, err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/expenses/" + escape(id) + "/" + action,
		token:  token,
		body:   payload,
	})
	if err != nil {
		return nil, err
	}

	var updated expense.Report
	ok, err := decodeObject(body, &updated)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &updated, nil
}

// SendNotification asks the backend to create a notification
func (c *Client) SendNotification(ctx context.Context, token string, n notification.Outgoing) error {
	_, err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/notifications",
		token:  token,
		body:   n,
	})
	return err
}

// ListNotifications returns the user's notifications
func (c *Client) ListNotifications(ctx context.Context, token, userID string) ([]*notification.Notification, error) {
	body, err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/users/" + escape(userID) + "/notifications",
		token:  token,
	})
	if err != nil {
		return nil, err
	}

	notifications := make([]*notification.Notification, 0)
	if err := decodeList(body, "notifications", &notifications); err != nil {
		return nil, err
	}
	return notifications, nil
}

// MarkNotificationRead marks a notification read server-side
func (c *Client) MarkNotificationRead(ctx context.Context, token, id string) error {
	_, err := c.do(ctx, request{
		method: http.MethodPatch,
		path:   "/notifications/" + escape(id) + "/read",
		token:  token,
	})
	return err
}

// CheckCompliance runs the server-side policy engine against an expense
func (c *Client) CheckCompliance(ctx context.Context, token string, in expense.Input) (*policy.Verdict, error) {
	body, err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/policy/compliance-check",
		token:  token,
		body:   in,
	})
	if err != nil {
		return nil, err
	}

	var verdict policy.Verdict
	if _, err := decodeObject(body, &verdict); err != nil {
		return nil, err
	}
	return &verdict, nil
}

// UploadReceipt uploads a receipt image and returns the server's reference
func (c *Client) UploadReceipt(ctx context.Context, token, filename string, data []byte, contentType string) (string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return "", fmt.Errorf("creating form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("writing form file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("closing multipart writer: %w", err)
	}

	body, err := c.do(ctx, request{
		method:      http.MethodPost,
		path:        "/receipts",
		token:       token,
		rawBody:     &buf,
		contentType: writer.FormDataContentType(),
	})
	if err != nil {
		return "", err
	}

	for _, path := range []string{"ref", "receiptRef", "id"} {
		if r := gjson.GetBytes(body, path); r.Exists() && r.String() != "" {
			return r.String(), nil
		}
	}
	return "", fmt.Errorf("uploading receipt: response carried no reference")
}
