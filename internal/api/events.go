package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"
	"github.com/smazurov/torfleet/internal/events"
)

// registerSSERoutes registers the fleet event stream.
func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Fleet Event Stream",
		Description: "Supervisor state changes, instance starts and exits, batch results and stop sweeps via Server-Sent Events",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"state-changed":     events.StateChangedEvent{},
		"instance-started":  events.InstanceStartedEvent{},
		"instance-exited":   events.InstanceExitedEvent{},
		"batch-completed":   events.BatchCompletedEvent{},
		"instances-stopped": events.InstancesStoppedEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		// Current state first so clients need no separate GET.
		state := string(s.fleet.State())
		if err := send.Data(events.StateChangedEvent{
			From:      state,
			To:        state,
			Timestamp: time.Now().Format(time.RFC3339),
		}); err != nil {
			return
		}

		s.forward(ctx, send, 10, func(ch chan<- any) func() {
			unsubscribers := []func(){
				events.SubscribeToChannel[events.StateChangedEvent](s.eventBus, ch),
				events.SubscribeToChannel[events.InstanceStartedEvent](s.eventBus, ch),
				events.SubscribeToChannel[events.InstanceExitedEvent](s.eventBus, ch),
				events.SubscribeToChannel[events.BatchCompletedEvent](s.eventBus, ch),
				events.SubscribeToChannel[events.InstancesStoppedEvent](s.eventBus, ch),
			}
			return func() {
				for _, unsub := range unsubscribers {
					unsub()
				}
			}
		})
	})
}

// forward relays bus events to an SSE client until the client goes away.
func (s *Server) forward(ctx context.Context, send sse.Sender, buffer int, subscribe func(chan<- any) func()) {
	if s.eventBus == nil {
		<-ctx.Done()
		return
	}

	eventCh := make(chan any, buffer)
	unsubscribe := subscribe(eventCh)
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-eventCh:
			if err := send.Data(event); err != nil {
				return
			}
		}
	}
}
