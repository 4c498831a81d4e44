package rest

import "net/http"

func (s *Server) HandleListServices(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, s.metadataService.Services())
}
