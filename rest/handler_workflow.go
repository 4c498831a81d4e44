package rest

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/mohitkumar/flowfirst/logger"
	"github.com/mohitkumar/flowfirst/model"
	"go.uber.org/zap"
)

func (s *Server) HandleRunFlow(w http.ResponseWriter, r *http.Request) {
	flowId := mux.Vars(r)["flowId"]
	runReq, ok := decodeBody[model.WorkflowRunRequest](w, r, true)
	if !ok {
		return
	}
	res, err := s.executorService.RunFlow(r.Context(), flowId, runReq.Input)
	if err != nil {
		logger.Error("error running workflow", zap.String("flowId", flowId), zap.Error(err))
		respondWithFlowError(w, err, http.StatusBadRequest)
		return
	}
	respondOK(w, map[string]any{
		"ok":          true,
		"executionId": res.ExecutionId,
		"result":      res.Result,
		"bag":         res.Bag,
		"waiting":     res.Waiting,
	})
}

func (s *Server) HandleGetExecution(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	view, err := s.executorService.GetExecution(r.Context(), id)
	if err != nil {
		logger.Info("execution not found", zap.String("executionId", id), zap.Error(err))
		respondWithFlowError(w, err, http.StatusInternalServerError)
		return
	}
	respondWithJSON(w, http.StatusOK, view)
}

func (s *Server) HandleWorkspaceMetrics(w http.ResponseWriter, r *http.Request) {
	workspaceId := mux.Vars(r)["workspaceId"]
	metrics, err := s.executorService.WorkspaceMetrics(r.Context(), workspaceId)
	if err != nil {
		logger.Error("error reading workspace metrics", zap.String("workspaceId", workspaceId), zap.Error(err))
		respondWithFlowError(w, err, http.StatusInternalServerError)
		return
	}
	respondWithJSON(w, http.StatusOK, metrics)
}
