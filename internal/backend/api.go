package backend

import "github.com/nhle/todo-sync/internal/model"

// HTTP routes served by `todo serve` and used by backend/remote.
const (
	PathSignUp    = "/auth/v1/signup"
	PathToken     = "/auth/v1/token"
	PathUser      = "/auth/v1/user"
	PathLogout    = "/auth/v1/logout"
	PathRecover   = "/auth/v1/recover"
	PathVerify    = "/auth/v1/verify"
	PathAuthorize = "/auth/v1/authorize"
	PathTodos     = "/rest/v1/" + model.TodosTable
	PathRealtime  = "/realtime/v1/websocket"
	PathHealth    = "/health"
)

// Credentials is the body of sign-up and password sign-in requests.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RecoverRequest asks for a password reset mail.
type RecoverRequest struct {
	Email string `json:"email"`
}

// VerifyRequest redeems a reset token for a new password.
type VerifyRequest struct {
	Type     string `json:"type"`
	Token    string `json:"token"`
	Password string `json:"password"`
}

// VerifyTypeRecovery is the only supported VerifyRequest.Type.
const VerifyTypeRecovery = "recovery"

// Realtime message types.
const (
	// MessageSystem acknowledges a subscription once the server listens.
	MessageSystem = "system"
	// MessageChange carries a row change.
	MessageChange = "postgres_changes"
)

// RealtimeMessage is one frame on the realtime websocket.
type RealtimeMessage struct {
	Type   string             `json:"type"`
	Table  string             `json:"table,omitempty"`
	Status string             `json:"status,omitempty"`
	Event  *model.ChangeEvent `json:"payload,omitempty"`
}

// EqFilter renders an equality filter value for a query parameter, as in
// `user_id=eq.<id>`.
func EqFilter(value string) string {
	return "eq." + value
}
