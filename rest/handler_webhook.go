package rest

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/mohitkumar/flowfirst/logger"
	"go.uber.org/zap"
)

type createWebhookRequest struct {
	Url    string `json:"url"`
	Secret string `json:"secret"`
}

func (s *Server) HandleCreateWebhook(w http.ResponseWriter, r *http.Request) {
	workspaceId := mux.Vars(r)["workspaceId"]
	req, ok := decodeBody[createWebhookRequest](w, r, false)
	if !ok {
		return
	}
	hook, err := s.executorService.AddWebhook(r.Context(), workspaceId, req.Url, req.Secret)
	if err != nil {
		logger.Error("error adding webhook", zap.String("workspaceId", workspaceId), zap.Error(err))
		respondWithFlowError(w, err, http.StatusInternalServerError)
		return
	}
	respondOK(w, map[string]any{"ok": true, "webhook": hook})
}

func (s *Server) HandleListWebhooks(w http.ResponseWriter, r *http.Request) {
	workspaceId := mux.Vars(r)["workspaceId"]
	hooks, err := s.executorService.ListWebhooks(r.Context(), workspaceId)
	if err != nil {
		respondWithFlowError(w, err, http.StatusInternalServerError)
		return
	}
	for i := range hooks {
		hooks[i].Secret = ""
	}
	respondWithJSON(w, http.StatusOK, hooks)
}
