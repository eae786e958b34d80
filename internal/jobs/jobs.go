// Package jobs defines the async ingest job contract and its queue
// abstraction, so the HTTP layer can hand uploads off instead of parsing
// inline.
package jobs

import (
	"context"
	"time"

	"github.com/spendsense/backend/internal/model"
)

// Kind identifies what an ingest job carries.
type Kind string

const (
	KindStatementFile Kind = "statement_file"
	KindEmailSweep    Kind = "email_sweep"
)

// Status tracks a job through its lifecycle.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusRetrying  Status = "retrying"
)

// EmailPayload is one alert email carried by an email-sweep job.
type EmailPayload struct {
	AccountID string `json:"account_id"`
	MessageID string `json:"message_id"`
	ThreadID  string `json:"thread_id,omitempty"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
	Sender    string `json:"sender"`
	To        string `json:"to,omitempty"`
	Snippet   string `json:"snippet,omitempty"`
}

// IngestJob is one unit of ingest work. A statement-file job carries the
// raw upload bytes; an email-sweep job carries the fetched messages.
type IngestJob struct {
	JobID  string `json:"job_id"`
	Kind   Kind   `json:"kind"`
	UserID string `json:"user_id"`

	// Statement file fields.
	Filename    string         `json:"filename,omitempty"`
	Data        []byte         `json:"data,omitempty"`
	BankHint    model.BankCode `json:"bank_hint,omitempty"`
	PDFPassword string         `json:"-"`

	// Email sweep fields.
	Emails []EmailPayload `json:"emails,omitempty"`

	Status      Status     `json:"status"`
	BatchID     string     `json:"batch_id,omitempty"`
	Error       string     `json:"error,omitempty"`
	RetryCount  int        `json:"retry_count"`
	MaxRetries  int        `json:"max_retries"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Handler processes one job. A returned error marks the attempt failed and
// the queue may retry it.
type Handler func(ctx context.Context, job *IngestJob) error

// Publisher enqueues ingest jobs. Implementations other than the in-memory
// queue (a broker, a cloud task queue) would satisfy the same interface.
type Publisher interface {
	Publish(ctx context.Context, job *IngestJob) error
	Close() error
}

// Consumer drains the queue with a pool of workers.
type Consumer interface {
	Start(ctx context.Context, handler Handler) error
	Stop(ctx context.Context) error
}
