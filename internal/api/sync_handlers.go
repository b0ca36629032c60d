package api

import (
	"net/http"
	"strconv"
	"time"

	"sportsync/internal/models"

	"github.com/go-chi/chi/v5"
)

type oddsSyncRequest struct {
	Live  bool `json:"live"`
	Hours int  `json:"hours"`
}

// Sync endpoints run inline in the request and bypass the job queue.

func (s *Server) handleSyncLeagues(w http.ResponseWriter, r *http.Request) {
	var p models.LeagueParams
	if err := decodeBody(r, &p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	s.writeSyncResult(w, "leagues")(s.deps.Sync.SyncLeagues(r.Context(), p, nil))
}

func (s *Server) handleSyncTeams(w http.ResponseWriter, r *http.Request) {
	var p models.TeamParams
	if err := decodeBody(r, &p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	s.writeSyncResult(w, "teams")(s.deps.Sync.SyncTeams(r.Context(), p, nil))
}

func (s *Server) handleSyncFixtures(w http.ResponseWriter, r *http.Request) {
	var p models.FixtureParams
	if err := decodeBody(r, &p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	for name, v := range map[string]string{"from": p.From, "to": p.To} {
		if v == "" {
			continue
		}
		if _, err := time.Parse(models.DateLayout, v); err != nil {
			writeError(w, http.StatusBadRequest, "invalid "+name+" date; expected YYYY-MM-DD")
			return
		}
	}
	s.writeSyncResult(w, "fixtures")(s.deps.Sync.SyncFixtures(r.Context(), p, nil))
}

func (s *Server) handleSyncOdds(w http.ResponseWriter, r *http.Request) {
	var body oddsSyncRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.Hours < 0 {
		writeError(w, http.StatusBadRequest, "hours must be positive")
		return
	}
	if body.Live {
		s.writeSyncResult(w, "odds_live")(s.deps.Sync.SyncLiveOdds(r.Context(), nil))
		return
	}
	s.writeSyncResult(w, "odds")(s.deps.Sync.SyncUpcomingOdds(r.Context(), models.OddsUpcomingParams{Hours: body.Hours}, nil))
}

func (s *Server) writeSyncResult(w http.ResponseWriter, entity string) func(*models.SyncResult, error) {
	return func(res *models.SyncResult, err error) {
		if err != nil {
			s.logger.Error().Err(err).Str("entity", entity).Msg("inline sync failed")
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func (s *Server) handleOddsBoard(w http.ResponseWriter, r *http.Request) {
	matchID, err := strconv.ParseInt(chi.URLParam(r, "matchId"), 10, 64)
	if err != nil || matchID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid match id")
		return
	}
	row, found, err := s.deps.Sync.Board(r.Context(), matchID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "no odds board for match")
		return
	}
	writeJSON(w, http.StatusOK, row)
}

func (s *Server) handleProvider(w http.ResponseWriter, r *http.Request) {
	p, err := s.deps.Provider.Reload(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"provider":   p,
		"configured": p.Configured(),
	})
}

func (s *Server) handleInvalidateCache(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")
	n, err := s.deps.Provider.InvalidateCache(r.Context(), prefix)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"prefix": prefix, "deleted": n})
}

func (s *Server) handleRequestLogs(w http.ResponseWriter, r *http.Request) {
	limit, err := parseIntParam(r.URL.Query().Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	logs, err := s.deps.Store.ListRequestLogs(r.Context(), r.URL.Query().Get("endpoint"), limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if logs == nil {
		logs = []models.APIRequestLog{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"requests": logs})
}

func (s *Server) handleEntityCounts(w http.ResponseWriter, r *http.Request) {
	counts, err := s.deps.Store.EntityCounts(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}
