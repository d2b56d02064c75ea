package events

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"

	"github.com/layer-3/authgate/core"
	"github.com/layer-3/authgate/ports"
)

// RefreshTopic carries one message every time the client session settles.
const RefreshTopic = "session.refreshed"

// RefreshEvent is the payload on RefreshTopic
type RefreshEvent struct {
	State         string `json:"state"`
	Authenticated bool   `json:"authenticated"`
	Error         string `json:"error,omitempty"`
	ErrorKind     string `json:"error_kind,omitempty"`
}

// Refresher implements ports.Refresher by publishing to RefreshTopic.
type Refresher struct {
	publisher message.Publisher
	logger    *slog.Logger
}

var _ ports.Refresher = (*Refresher)(nil)

func NewRefresher(publisher message.Publisher, logger *slog.Logger) *Refresher {
	return &Refresher{publisher: publisher, logger: logger}
}

// Refresh publishes the settled state. Failures are logged only.
func (r *Refresher) Refresh(ctx context.Context, s core.Snapshot) {
	ev := RefreshEvent{
		State:         s.State.String(),
		Authenticated: s.Authenticated(),
	}
	if s.Err != nil {
		ev.Error = s.Err.Error()
		ev.ErrorKind = s.Err.Kind.String()
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		r.logger.Error("failed to marshal refresh event", "error", err)
		return
	}

	msg := message.NewMessage(uuid.New().String(), payload)
	msg.SetContext(ctx)
	if err := r.publisher.Publish(RefreshTopic, msg); err != nil {
		r.logger.Warn("failed to publish refresh event", "error", err)
	}
}
