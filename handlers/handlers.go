// Package handlers holds the HTTP surface of the gateway. Handlers decode
// and validate requests, delegate to services and usecases, and map domain
// errors onto HTTP status codes.
package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"agentgateway/core"
	"agentgateway/models/api"
)

func writeJSONResponse(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("❌ Failed to encode response: %v", err)
	}
}

func writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	writeJSONResponse(w, statusCode, api.ErrorResponse{Error: message})
}

// writeCommandError maps command-path failures onto status codes. The caller
// can distinguish "agent was never here" (503) from "agent dropped mid-call"
// (502) from "agent is too slow" (504).
func writeCommandError(w http.ResponseWriter, err error) {
	switch {
	case core.IsAuthDenied(err):
		writeErrorResponse(w, http.StatusUnauthorized, "access denied")
	case core.IsAuthUnavailable(err):
		writeErrorResponse(w, http.StatusServiceUnavailable, "authentication temporarily unavailable")
	case errors.Is(err, core.ErrAgentNotConnected):
		writeErrorResponse(w, http.StatusServiceUnavailable, "agent not connected")
	case errors.Is(err, core.ErrRequestTimeout):
		writeErrorResponse(w, http.StatusGatewayTimeout, "agent did not reply in time")
	case errors.Is(err, core.ErrAgentDisconnected):
		writeErrorResponse(w, http.StatusBadGateway, "agent disconnected mid-call")
	case core.IsNotFoundError(err):
		writeErrorResponse(w, http.StatusNotFound, "agent not found")
	default:
		log.Printf("❌ Command failed: %v", err)
		writeErrorResponse(w, http.StatusInternalServerError, "internal server error")
	}
}
