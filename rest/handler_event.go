package rest

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/mohitkumar/flowfirst/logger"
	"github.com/mohitkumar/flowfirst/model"
	"go.uber.org/zap"
)

func (s *Server) HandleGetWaitForm(w http.ResponseWriter, r *http.Request) {
	token := mux.Vars(r)["token"]
	form, err := s.executorService.GetWaitForm(r.Context(), token)
	if err != nil {
		respondWithFlowError(w, err, http.StatusInternalServerError)
		return
	}
	respondWithJSON(w, http.StatusOK, form)
}

func (s *Server) HandleResumeFlow(w http.ResponseWriter, r *http.Request) {
	token := mux.Vars(r)["token"]
	req, ok := decodeBody[model.WorkflowResumeRequest](w, r, true)
	if !ok {
		return
	}
	res, err := s.executorService.ResumeFlow(r.Context(), token, req.Data)
	if err != nil {
		logger.Error("error resuming workflow", zap.Error(err))
		respondWithFlowError(w, err, http.StatusInternalServerError)
		return
	}
	respondOK(w, map[string]any{"ok": true, "resumed": res.Resumed, "result": res.Result})
}
