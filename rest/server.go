package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/mohitkumar/flowfirst/logger"
	"github.com/mohitkumar/flowfirst/metadata"
	"github.com/mohitkumar/flowfirst/model"
	"github.com/mohitkumar/flowfirst/persistence"
	"github.com/mohitkumar/flowfirst/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Server struct {
	http.Server
	Port            int
	metadataService metadata.MetadataService
	executorService *service.WorkflowExecutionService
}

func NewServer(httpPort int, metadataService metadata.MetadataService, executorService *service.WorkflowExecutionService, gatherer prometheus.Gatherer) (*Server, error) {
	s := &Server{
		Server: http.Server{
			Addr:        fmt.Sprintf(":%d", httpPort),
			IdleTimeout: 2 * time.Second,
		},
		metadataService: metadataService,
		executorService: executorService,
		Port:            httpPort,
	}

	router := mux.NewRouter()
	router.HandleFunc("/flows", s.HandleCreateFlow).Methods(http.MethodPost)
	router.HandleFunc("/flows/{id}", s.HandleGetFlow).Methods(http.MethodGet)
	router.HandleFunc("/flows/{id}", s.HandleDeleteFlow).Methods(http.MethodDelete)
	router.HandleFunc("/workspaces/{workspaceId}/flows", s.HandleListFlows).Methods(http.MethodGet)

	router.HandleFunc("/services", s.HandleListServices).Methods(http.MethodGet)

	router.HandleFunc("/execute/{flowId}", s.HandleRunFlow).Methods(http.MethodPost)
	router.HandleFunc("/executions/{id}", s.HandleGetExecution).Methods(http.MethodGet)
	router.HandleFunc("/workspaces/{workspaceId}/metrics", s.HandleWorkspaceMetrics).Methods(http.MethodGet)

	router.HandleFunc("/public/{token}", s.HandleGetWaitForm).Methods(http.MethodGet)
	router.HandleFunc("/public/{token}", s.HandleResumeFlow).Methods(http.MethodPost)

	router.HandleFunc("/workspaces/{workspaceId}/webhooks", s.HandleListWebhooks).Methods(http.MethodGet)
	router.HandleFunc("/workspaces/{workspaceId}/webhooks", s.HandleCreateWebhook).Methods(http.MethodPost)

	if gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	router.Use(loggingMiddleware)
	s.Handler = router
	return s, nil
}

func (s *Server) Start() error {
	logger.Info("starting http server on", zap.Int("port", s.Port))
	if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Stop() error {
	logger.Info("stopping http server")
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	err := s.Shutdown(ctx)
	if err != nil {
		logger.Error("error shutting down http server", zap.Error(err))
	}
	return nil
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.Info(r.RequestURI, zap.String("method", r.Method))
		next.ServeHTTP(w, r)
	})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, _ := json.Marshal(payload)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func respondOK(w http.ResponseWriter, message map[string]any) {
	respondWithJSON(w, http.StatusOK, message)
}

func respondWithError(w http.ResponseWriter, code int, kind model.ErrorKind, message string) {
	respondWithJSON(w, code, map[string]any{"ok": false, "kind": kind, "error": message})
}

// respondWithFlowError picks the status from the error kind. fallback is used
// for kinds that have no fixed status, such as step failures.
func respondWithFlowError(w http.ResponseWriter, err error, fallback int) {
	kind := model.KindOf(err)
	code := fallback
	switch kind {
	case model.FLOW_NOT_FOUND, model.EXECUTION_NOT_FOUND, model.TOKEN_NOT_FOUND:
		code = http.StatusNotFound
	case model.TOKEN_ALREADY_CONSUMED:
		code = http.StatusGone
	case model.INVALID_FLOW, model.INVALID_REQUEST:
		code = http.StatusBadRequest
	case model.INTERNAL:
		if errors.Is(err, persistence.ErrNotFound) {
			code = http.StatusNotFound
		}
	}
	respondWithError(w, code, kind, err.Error())
}

func decodeBody[T any](w http.ResponseWriter, r *http.Request, allowEmpty bool) (*T, bool) {
	defer r.Body.Close()
	var req T
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return &req, true
		}
		respondWithError(w, http.StatusBadRequest, model.INVALID_REQUEST, "invalid request body")
		return nil, false
	}
	return &req, true
}
