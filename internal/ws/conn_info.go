package ws

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"chat-sync/internal/models"
	"chat-sync/internal/observability"
)

// ConnInfo identifies one websocket connection in logs and ws events.
type ConnInfo struct {
	ConnID      string
	UserEmail   string
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

func newConnInfo(r *http.Request, me models.Identity, span trace.Span) ConnInfo {
	info := ConnInfo{
		ConnID:      uuid.NewString(),
		UserEmail:   me.SafeEmail(),
		DeviceID:    observability.DeviceIDFromRequest(r),
		IP:          observability.IPFromRequest(r),
		RequestID:   observability.RequestIDFromContext(r.Context()),
		ConnectedAt: time.Now(),
	}
	if sc := span.SpanContext(); sc.HasTraceID() {
		info.TraceID = sc.TraceID().String()
	}
	return info
}
