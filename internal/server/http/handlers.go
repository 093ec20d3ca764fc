package http

import (
	"net/http"
	"strings"

	"github.com/brianly1003/gitdeck/internal/domain"
	"github.com/brianly1003/gitdeck/internal/domain/events"
	"github.com/brianly1003/gitdeck/internal/pathutil"
	"github.com/gorilla/mux"
)

func (s *Server) handleListTerminals(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, TerminalListResponse{Sessions: s.deps.Terminals.List()})
}

func (s *Server) handleOpenTerminal(w http.ResponseWriter, r *http.Request) {
	var req OpenTerminalRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		respondError(w, err)
		return
	}
	if strings.TrimSpace(req.Command) == "" {
		respondError(w, domain.NewValidationError("command", "is required"))
		return
	}
	dir := req.Directory
	if dir == "" && s.deps.Project != nil {
		dir = s.deps.Project.Current().Directory
	}
	resolved, err := pathutil.ResolveDir(dir)
	if err != nil {
		respondError(w, domain.NewValidationError("directory", err.Error()))
		return
	}

	sess, err := s.deps.Terminals.Open(r.Context(), req.Command, resolved)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

// handleTerminalStatus checks every tracked terminal; ?cleanup drops the dead.
func (s *Server) handleTerminalStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, TerminalStatusResponse{
		Sessions: s.deps.Terminals.CheckStatus(queryBool(r, "cleanup")),
	})
}

func (s *Server) handleRestartTerminal(w http.ResponseWriter, r *http.Request) {
	sess, err := s.deps.Terminals.Restart(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleCloseTerminal(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Terminals.Close(mux.Vars(r)["id"]); err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

// handleBranchStatus reports the sync state of the current branch.
// ?force bypasses the caches; ?countOnly omits the branch names.
func (s *Server) handleBranchStatus(w http.ResponseWriter, r *http.Request) {
	if s.deps.Project != nil && !s.deps.Project.Current().IsRepo {
		respondError(w, domain.ErrNotGitRepo)
		return
	}
	force := queryBool(r, "force")
	countOnly := queryBool(r, "countOnly")

	ab, err := s.deps.Facts.AheadBehind(r.Context(), force)
	if err != nil {
		respondError(w, err)
		return
	}
	resp := BranchStatusResponse{
		HasUpstream: ab.HasUpstream,
		Ahead:       ab.Ahead,
		Behind:      ab.Behind,
	}
	if !countOnly {
		resp.UpstreamBranch = ab.UpstreamBranch
		branch, err := s.deps.Facts.CurrentBranch(r.Context(), false)
		if err != nil {
			respondError(w, err)
			return
		}
		resp.Branch = branch
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleStatus recomputes the working tree status and republishes it to
// the active room.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.deps.Project.Recompute(r.Context(), queryBool(r, "force"), false)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Project.Current())
}

func (s *Server) handleSwitchProject(w http.ResponseWriter, r *http.Request) {
	var req SwitchProjectRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		respondError(w, err)
		return
	}
	if strings.TrimSpace(req.Path) == "" {
		respondError(w, domain.NewValidationError("path", "is required"))
		return
	}
	sc, err := s.deps.Project.Switch(r.Context(), req.Path)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sc)
}

// handleGetHistory returns the history ring, newest first.
func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	entries := s.deps.History.Entries()
	writeJSON(w, http.StatusOK, HistoryResponse{
		Entries:  entries,
		Count:    len(entries),
		Capacity: s.deps.History.Capacity(),
	})
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	s.deps.History.Clear()
	if s.deps.Hub != nil {
		s.deps.Hub.Publish(events.NewCommandHistoryClearedEvent(""))
	}
	writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
}
