package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/nsqio/go-nsq"

	"github.com/lokeshec23/GC-AI/features/job"
	"github.com/lokeshec23/GC-AI/internal/middleware"
)

// EventConsumer records failed and partial jobs in the job ledger.
type EventConsumer struct {
	jobRepo job.Repository
}

func NewEventConsumer(j job.Repository) *EventConsumer {
	return &EventConsumer{jobRepo: j}
}

func (h *EventConsumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var ev JobEvent
	err := json.Unmarshal(m.Body, &ev)

	correlationID := ev.CorrelationID
	if correlationID == "" {
		correlationID = uuid.New().String()
	}
	ctx := middleware.WithCorrelationID(context.Background(), correlationID)

	if err != nil {
		slog.ErrorContext(ctx, "invalid job event", "error", err)
		return nil // Don't retry invalid messages
	}
	if ev.SessionID == "" {
		slog.ErrorContext(ctx, "job event missing session id, dropping")
		return nil
	}

	if ev.Status != "failed" && !ev.Partial() {
		slog.DebugContext(ctx, "job completed cleanly", "session_id", ev.SessionID)
		return nil
	}

	rec := &job.Job{
		SessionID: ev.SessionID,
		Kind:      ev.Kind,
		Status:    ev.Status,
		Payload:   json.RawMessage(m.Body),
		Error:     summarize(ev),
	}
	if err := h.jobRepo.Save(ctx, rec); err != nil {
		slog.ErrorContext(ctx, "failed to record job", "session_id", ev.SessionID, "error", err)
		return err // Retry
	}

	slog.InfoContext(ctx, "recorded job", "job_id", rec.ID, "session_id", ev.SessionID, "status", ev.Status)
	return nil
}

func summarize(ev JobEvent) string {
	if ev.Error != "" {
		return ev.Error
	}
	msg := fmt.Sprintf("%d of %d chunks failed", ev.FailedChunks, ev.TotalChunks)
	if len(ev.Warnings) > 0 {
		msg += ": " + strings.Join(ev.Warnings, "; ")
	}
	return msg
}
