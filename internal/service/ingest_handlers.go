package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/spendsense/backend/internal/etl"
	"github.com/spendsense/backend/internal/jobs"
	"github.com/spendsense/backend/internal/logger"
	"github.com/spendsense/backend/internal/model"
	"github.com/spendsense/backend/internal/parser"
)

// maxUploadBytes caps statement uploads at 25 MiB.
const maxUploadBytes = 25 << 20

// UploadStatement accepts a multipart statement upload. Form fields:
// "file" (required), "bank_code", "pdf_password". With a queue attached
// the upload is acknowledged with 202 and processed in the background;
// otherwise it is processed inline and the finished batch is returned.
func (s *Service) UploadStatement(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "reading upload: "+err.Error())
		return
	}
	if len(data) == 0 {
		writeError(w, http.StatusBadRequest, "uploaded file is empty")
		return
	}

	hint := parseBankHint(r.FormValue("bank_code"))
	password := r.FormValue("pdf_password")

	if s.publisher != nil {
		job := &jobs.IngestJob{
			Kind:        jobs.KindStatementFile,
			UserID:      uid,
			Filename:    header.Filename,
			Data:        data,
			BankHint:    hint,
			PDFPassword: password,
		}
		err := s.publisher.Publish(r.Context(), job)
		if err == nil {
			writeJSON(w, http.StatusAccepted, APIResponse{
				Status:  "accepted",
				Message: "statement queued, processing in background",
				Data:    map[string]string{"job_id": job.JobID},
			})
			return
		}
		// Queue unavailable: fall through to inline processing. The caller
		// only sees the difference in latency and messaging.
		log := logger.FromContext(r.Context())
		log.Warn().Err(err).Msg("queue unavailable, ingesting inline")
	}

	batch, err := s.pipeline.IngestFile(r.Context(), uid, header.Filename, data, hint, password)
	if err != nil {
		writeParseFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{
		Status:  "ok",
		Message: "statement processed",
		Data:    batchView(batch),
	})
}

// sweepRequest is the JSON body of an email sweep trigger. The messages are
// fetched by the mailbox connector upstream; this endpoint ingests them.
type sweepRequest struct {
	Messages []jobs.EmailPayload `json:"messages"`
}

// SweepEmails ingests a set of fetched alert emails for the caller.
func (s *Service) SweepEmails(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	var req sweepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "no messages to ingest")
		return
	}

	if s.publisher != nil {
		job := &jobs.IngestJob{
			Kind:   jobs.KindEmailSweep,
			UserID: uid,
			Emails: req.Messages,
		}
		err := s.publisher.Publish(r.Context(), job)
		if err == nil {
			writeJSON(w, http.StatusAccepted, APIResponse{
				Status:  "accepted",
				Message: "email sweep queued, processing in background",
				Data:    map[string]string{"job_id": job.JobID},
			})
			return
		}
		log := logger.FromContext(r.Context())
		log.Warn().Err(err).Msg("queue unavailable, ingesting inline")
	}

	batch, err := s.pipeline.IngestEmails(r.Context(), uid, emailMessages(req.Messages))
	if err != nil {
		writeParseFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{
		Status:  "ok",
		Message: "email sweep processed",
		Data:    batchView(batch),
	})
}

func emailMessages(payloads []jobs.EmailPayload) []etl.EmailMessage {
	msgs := make([]etl.EmailMessage, 0, len(payloads))
	for _, p := range payloads {
		msgs = append(msgs, etl.EmailMessage{
			AccountID: p.AccountID,
			MessageID: p.MessageID,
			ThreadID:  p.ThreadID,
			Subject:   p.Subject,
			Body:      p.Body,
			Sender:    p.Sender,
			To:        p.To,
			Snippet:   p.Snippet,
		})
	}
	return msgs
}

// HandleIngestJob is the queue handler: it runs the pipeline for one job
// drained by a worker. The batch ID is recorded on the job for tracing.
func (s *Service) HandleIngestJob(ctx context.Context, job *jobs.IngestJob) error {
	log := logger.FromContext(ctx).With().
		Str("job_id", job.JobID).Str("user_id", job.UserID).Logger()
	ctx = logger.WithContext(ctx, log)

	var batch *model.Batch
	var err error
	switch job.Kind {
	case jobs.KindStatementFile:
		batch, err = s.pipeline.IngestFile(ctx, job.UserID, job.Filename, job.Data, job.BankHint, job.PDFPassword)
	case jobs.KindEmailSweep:
		batch, err = s.pipeline.IngestEmails(ctx, job.UserID, emailMessages(job.Emails))
	default:
		return fmt.Errorf("unknown ingest job kind %q", job.Kind)
	}
	if batch != nil {
		job.BatchID = batch.ID
	}

	// A parse failure is deterministic: the batch is already marked failed,
	// so retrying the job would only mint more failed batches.
	var perr *parser.ParseError
	if errors.As(err, &perr) {
		log.Warn().Err(err).Msg("ingest job failed on unparseable input")
		return nil
	}
	return err
}
