package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/vk/calcgrid/internal/ctxlog"
	"github.com/vk/calcgrid/internal/eventbus"
	"github.com/vk/calcgrid/internal/model"
	"github.com/vk/calcgrid/internal/runcontext"
	"github.com/vk/calcgrid/internal/session"
	"github.com/vk/calcgrid/internal/snapshotstore"
	"github.com/vk/calcgrid/internal/value"
)

// InfoResponse describes a stored document.
type InfoResponse struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Revision string    `json:"revision"`
	SavedAt  time.Time `json:"savedAt"`
}

// ActionResponse is the reply to a posted action.
type ActionResponse struct {
	ActionDone    bool             `json:"actionDone"`
	ActionPending bool             `json:"actionPending,omitempty"`
	ErrorMsg      string           `json:"errorMsg,omitempty"`
	Events        []eventbus.Event `json:"events"`
}

// MemberResponse is the current state of one member.
type MemberResponse struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	FullName string          `json:"fullName"`
	Type     string          `json:"type"`
	State    model.State     `json:"state"`
	Data     json.RawMessage `json:"data,omitempty"`
	Error    string          `json:"error,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func newInfoResponse(info snapshotstore.Info) InfoResponse {
	return InfoResponse{ID: info.ID, Name: info.Name, Revision: info.Revision, SavedAt: info.SavedAt}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	infos, err := s.docs.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]InfoResponse, 0, len(infos))
	for _, info := range infos {
		out = append(out, newInfoResponse(info))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	doc, err := s.docs.Open(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	snapshot, err := doc.Snapshot()
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

// handleCreate opens a new document. An empty body creates an empty model.
func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	var initial *model.ModelJSON
	if len(raw) > 0 {
		if initial, err = model.ParseModelJSON(raw); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
	}
	doc, err := s.docs.Create(r.Context(), mux.Vars(r)["id"], initial)
	if err != nil {
		writeError(w, r, err)
		return
	}
	snapshot, err := doc.Snapshot()
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, snapshot)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.docs.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	info, err := s.docs.Save(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newInfoResponse(info))
}

// handleAction runs one action. A rejected action is still a 200: the reply
// carries the action's own error message.
func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	var data model.ActionData
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid action: " + err.Error()})
		return
	}
	id := mux.Vars(r)["id"]
	doc, err := s.docs.Open(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := doc.Execute(r.Context(), &data)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ctxlog.FromContext(r.Context()).Debug("Action executed.", "document", id, "action", data.Action, "done", res.ActionDone)
	writeJSON(w, http.StatusOK, ActionResponse{
		ActionDone:    res.ActionDone,
		ActionPending: res.ActionPending,
		ErrorMsg:      res.ErrorMsg,
		Events:        eventbus.NewMessage(id, res.Events).Events,
	})
}

func (s *Server) handleMember(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	doc, err := s.docs.Open(r.Context(), vars["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	m := doc.ConfirmedModel()
	member := m.LookupMemberByPath(vars["path"])
	if member == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "member not found: " + vars["path"]})
		return
	}
	out := MemberResponse{
		ID:       member.ID(),
		Name:     member.Name(),
		FullName: member.FullName(m),
		Type:     member.TypeName(),
		State:    member.State(),
	}
	switch member.State() {
	case model.StateNormal:
		if raw, err := value.ToJSON(member.Data()); err == nil {
			out.Data = raw
		}
	case model.StateError:
		if err := member.Error(); err != nil {
			out.Error = err.Error()
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps lifecycle errors to statuses. Anything unknown is a 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, snapshotstore.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, session.ErrExists):
		status = http.StatusConflict
	case errors.Is(err, runcontext.ErrClosed):
		status = http.StatusGone
	case r.Context().Err() != nil && errors.Is(err, r.Context().Err()):
		status = http.StatusRequestTimeout
	}
	if status == http.StatusInternalServerError {
		ctxlog.FromContext(r.Context()).Error("Request failed.", "error", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
