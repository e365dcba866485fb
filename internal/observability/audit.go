package observability

import (
	"log/slog"
	"net/http"
	"strconv"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// AuditInput describes one security-relevant action for the audit log.
type AuditInput struct {
	EventName   string
	ActorUserID string
	TargetType  string
	TargetID    string
	Action      string
	Outcome     string
	Reason      string
}

// EmitAudit writes a structured audit record. Audit lines share the normal
// log stream but carry a fixed shape keyed by "audit".
func EmitAudit(r *http.Request, in AuditInput, extra ...any) {
	attrs := []any{
		"audit", true,
		"event", in.EventName,
		"actor_user_id", in.ActorUserID,
		"target_type", in.TargetType,
		"target_id", in.TargetID,
		"action", in.Action,
		"outcome", in.Outcome,
		"reason", in.Reason,
		"request_id", chimiddleware.GetReqID(r.Context()),
		"method", r.Method,
		"path", r.URL.Path,
	}
	attrs = append(attrs, extra...)
	slog.Default().InfoContext(r.Context(), "audit event", attrs...)
}

func ActorUserID(userID uint) string {
	return strconv.FormatUint(uint64(userID), 10)
}
