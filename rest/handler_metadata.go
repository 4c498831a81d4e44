package rest

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/mohitkumar/flowfirst/logger"
	"github.com/mohitkumar/flowfirst/model"
)

func (s *Server) HandleCreateFlow(w http.ResponseWriter, r *http.Request) {
	f, ok := decodeBody[model.Flow](w, r, false)
	if !ok {
		return
	}
	saved, err := s.metadataService.SaveFlow(r.Context(), *f)
	if err != nil {
		logger.Error("error saving flow", zap.String("flowId", f.Id), zap.Error(err))
		respondWithFlowError(w, err, http.StatusInternalServerError)
		return
	}
	respondOK(w, map[string]any{"ok": true, "flow": saved})
}

func (s *Server) HandleGetFlow(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	f, err := s.metadataService.GetFlow(r.Context(), id)
	if err != nil {
		logger.Info("flow not found", zap.String("flowId", id), zap.Error(err))
		respondWithFlowError(w, err, http.StatusInternalServerError)
		return
	}
	respondWithJSON(w, http.StatusOK, f)
}

func (s *Server) HandleDeleteFlow(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.metadataService.DeleteFlow(r.Context(), id); err != nil {
		logger.Error("error deleting flow", zap.String("flowId", id), zap.Error(err))
		respondWithFlowError(w, err, http.StatusInternalServerError)
		return
	}
	respondOK(w, map[string]any{"ok": true, "deleted": id})
}

func (s *Server) HandleListFlows(w http.ResponseWriter, r *http.Request) {
	workspaceId := mux.Vars(r)["workspaceId"]
	flows, err := s.metadataService.ListFlows(r.Context(), workspaceId)
	if err != nil {
		logger.Error("error listing flows", zap.String("workspaceId", workspaceId), zap.Error(err))
		respondWithFlowError(w, err, http.StatusInternalServerError)
		return
	}
	respondWithJSON(w, http.StatusOK, flows)
}
