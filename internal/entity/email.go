package entity

type EmailType string

const (
	EmailTypeQuizResult            EmailType = "quiz_result"
	EmailTypeHypothesisResult      EmailType = "hypothesis_result"
	EmailTypeAdminLeadNotification EmailType = "admin_lead_notification"
)

// Status values shared by the registry and the queue.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSent       Status = "sent"
	StatusFailed     Status = "failed"
)

// AuditStatus is the outcome recorded in the audit log.
type AuditStatus string

const (
	AuditSent   AuditStatus = "sent"
	AuditFailed AuditStatus = "failed"
	AuditQueued AuditStatus = "queued"
)

// Rendered is the output of the render boundary.
type Rendered struct {
	Subject string
	HTML    string
}
