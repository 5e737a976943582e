package notification

import "time"

// Notification types sent after workflow transitions
const (
	TypeExpenseSubmitted = "EXPENSE_SUBMITTED"
	TypeExpenseApproved  = "EXPENSE_APPROVED"
	TypeExpenseRejected  = "EXPENSE_REJECTED"
	TypeInfoRequested    = "INFO_REQUESTED"
	TypeApprovalRequest  = "APPROVAL_REQUEST"
	TypePolicyUpdated    = "POLICY_UPDATED"
)

// Notification is a server-side message addressed to the current user
type Notification struct {
	ID          string    `json:"id"`
	RecipientID string    `json:"recipientId"`
	Title       string    `json:"title,omitempty"`
	Message     string    `json:"message"`
	CreatedAt   time.Time `json:"createdAt"`
	Read        bool      `json:"read"`
}

// Outgoing is a notification-creation request
type Outgoing struct {
	RecipientID string `json:"recipientId"`
	ReportID    string `json:"reportId,omitempty"`
	Type        string `json:"type"`
	Message     string `json:"message"`
}
