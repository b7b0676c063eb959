package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"
	"github.com/smazurov/torfleet/internal/api/models"
	"github.com/smazurov/torfleet/internal/events"
	"github.com/smazurov/torfleet/internal/logging"
)

// registerLogRoutes registers the operator log and the system log endpoints.
func (s *Server) registerLogRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-logs",
		Method:      http.MethodGet,
		Path:        "/api/logs",
		Summary:     "Operator Log",
		Description: "Formatted operator log lines, oldest or newest first",
		Tags:        []string{"logs"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, input *models.LogsRequest) (*models.LogsResponse, error) {
		entries := s.fleet.Sink().Lines(input.Order == "newest")
		lines := make([]string, len(entries))
		for i, entry := range entries {
			lines[i] = logging.FormatLine(entry)
		}
		return &models.LogsResponse{
			Body: models.LogsData{Count: len(lines), Lines: lines},
		}, nil
	})

	sse.Register(s.api, huma.Operation{
		OperationID: "logs-stream",
		Method:      http.MethodGet,
		Path:        "/api/logs/stream",
		Summary:     "Operator Log Stream",
		Description: "Operator log via Server-Sent Events. Sends the stored lines first, then new lines as they are appended. Event ids are line sequence numbers; Last-Event-ID resumes after that line.",
		Tags:        []string{"logs"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"line": events.OperatorLineEvent{},
	}, func(ctx context.Context, input *models.LogStreamRequest, send sse.Sender) {
		sink := s.fleet.Sink()
		s.followLog(ctx, send, input.LastEventID, sink.Since,
			func(entry logging.LogEntry) any { return events.NewOperatorLineEvent(entry) },
			func(wake chan<- struct{}) func() {
				return events.Notify[events.OperatorLineEvent](s.eventBus, wake)
			})
	})

	sse.Register(s.api, huma.Operation{
		OperationID: "system-logs-stream",
		Method:      http.MethodGet,
		Path:        "/api/logs/system/stream",
		Summary:     "System Log Stream",
		Description: "Structured application logs via Server-Sent Events. Sends buffered entries first, then new entries.",
		Tags:        []string{"logs"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"message": events.LogEntryEvent{},
	}, func(ctx context.Context, input *models.LogStreamRequest, send sse.Sender) {
		buffer := logging.GetBuffer()
		s.followLog(ctx, send, input.LastEventID, buffer.Since,
			func(entry logging.LogEntry) any { return events.NewLogEntryEvent(entry) },
			func(wake chan<- struct{}) func() {
				return events.Notify[events.LogEntryEvent](s.eventBus, wake)
			})
	})
}

// followLog streams log entries after position after until the client goes away.
// Bus events only wake the loop and entries are always read from since, so a
// line appended while history is being written is still delivered once and in order.
func (s *Server) followLog(
	ctx context.Context,
	send sse.Sender,
	after uint64,
	since func(uint64) []logging.LogEntry,
	convert func(logging.LogEntry) any,
	subscribe func(chan<- struct{}) func(),
) {
	wake := make(chan struct{}, 1)
	if s.eventBus != nil {
		unsubscribe := subscribe(wake)
		defer unsubscribe()
	}

	for {
		for _, entry := range since(after) {
			if err := send(sse.Message{ID: int(entry.Seq), Data: convert(entry)}); err != nil {
				return
			}
			after = entry.Seq
		}
		select {
		case <-ctx.Done():
			return
		case <-wake:
		}
	}
}
