package server

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/nhle/todo-sync/internal/backend"
	"github.com/nhle/todo-sync/internal/model"
)

// --- auth ---

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var body backend.Credentials
	if err := decode(w, r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	session, err := s.svc.SignUp(r.Context(), body.Email, body.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if grant := r.URL.Query().Get("grant_type"); grant != "password" {
		s.writeError(w, r, validationError("unsupported grant_type %q", grant))
		return
	}
	var body backend.Credentials
	if err := decode(w, r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	session, err := s.svc.SignInWithPassword(r.Context(), body.Email, body.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleUser(w http.ResponseWriter, r *http.Request) {
	session, err := s.requireSession(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session.User)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		s.writeError(w, r, backend.ErrSessionMissing)
		return
	}
	if err := s.svc.SignOut(r.Context(), token); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRecover(w http.ResponseWriter, r *http.Request) {
	var body backend.RecoverRequest
	if err := decode(w, r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.svc.ResetPasswordForEmail(r.Context(), body.Email); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct{}{})
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var body backend.VerifyRequest
	if err := decode(w, r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	if body.Type != backend.VerifyTypeRecovery {
		s.writeError(w, r, validationError("unsupported verify type %q", body.Type))
		return
	}
	if err := s.svc.UpdatePassword(r.Context(), body.Token, body.Password); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct{}{})
}

// handleAuthorize redirects to the provider's consent page.
func (s *Server) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	state := q.Get("state")
	if state == "" {
		state = uuid.New().String()
	}
	target, err := s.svc.AuthorizeURL(q.Get("provider"), state)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// --- todos ---

// where reads the id and user_id filters of an update or delete. The
// owner filter is mandatory.
func where(r *http.Request) (backend.Where, error) {
	q := r.URL.Query()
	id, err := eqParam(q, "id")
	if err != nil {
		return backend.Where{}, err
	}
	userID, err := eqParam(q, "user_id")
	if err != nil {
		return backend.Where{}, err
	}
	if userID == "" {
		return backend.Where{}, validationError("user_id filter is required")
	}
	return backend.Where{ID: id, UserID: userID}, nil
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	session, err := s.requireSession(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	userID, err := eqParam(q, "user_id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var query backend.Query
	query.UserID = userID
	switch order := q.Get("order"); order {
	case "", "created_at.asc":
	case "created_at.desc":
		query.NewestFirst = true
	default:
		s.writeError(w, r, validationError("unsupported order %q", order))
		return
	}

	todos, err := s.svc.Select(r.Context(), session.User.ID, query)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, todos)
}

func (s *Server) handleInsert(w http.ResponseWriter, r *http.Request) {
	session, err := s.requireSession(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var todo model.Todo
	if err := decode(w, r, &todo); err != nil {
		s.writeError(w, r, err)
		return
	}
	created, err := s.svc.Insert(r.Context(), session.User.ID, todo)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	session, err := s.requireSession(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	match, err := where(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var patch model.TodoPatch
	if err := decode(w, r, &patch); err != nil {
		s.writeError(w, r, err)
		return
	}
	rows, err := s.svc.Update(r.Context(), session.User.ID, match, patch)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	session, err := s.requireSession(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	match, err := where(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	rows, err := s.svc.Delete(r.Context(), session.User.ID, match)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}
