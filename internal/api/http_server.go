package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/abelzeko/riego-bot/internal/entities"
	"github.com/abelzeko/riego-bot/internal/integration"
	"github.com/abelzeko/riego-bot/internal/repository"
	"github.com/abelzeko/riego-bot/internal/usecases"
	"github.com/gorilla/mux"
)

// HTTPServer exposes plants, account settings and the OAuth callback over HTTP
type HTTPServer struct {
	plants    *usecases.PlantUseCase
	accounts  *usecases.AccountUseCase
	jwtSecret []byte
	Router    *mux.Router
	srv       *http.Server
}

// NewHTTPServer creates a server listening on addr with every route registered
func NewHTTPServer(addr string, jwtSecret string, plants *usecases.PlantUseCase, accounts *usecases.AccountUseCase) *HTTPServer {
	s := &HTTPServer{
		plants:    plants,
		accounts:  accounts,
		jwtSecret: []byte(jwtSecret),
		Router:    mux.NewRouter(),
	}
	s.setup()
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *HTTPServer) setup() {
	r := s.Router

	r.HandleFunc("/health", s.healthHandler).Methods("GET")
	r.HandleFunc("/oauth2/callback", s.oauthCallbackHandler).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.Use(s.jwtAuthMiddleware)

	api.HandleFunc("/calendar/status", s.calendarStatusHandler).Methods("GET")
	api.HandleFunc("/calendar/link", s.calendarLinkHandler).Methods("POST")
	api.HandleFunc("/calendar/disconnect", s.calendarDisconnectHandler).Methods("POST")
	api.HandleFunc("/recalculate", s.recalculateHandler).Methods("POST")

	api.HandleFunc("/location", s.setLocationHandler).Methods("PUT")
	api.HandleFunc("/settings/indoor", s.setIndoorClimateHandler).Methods("PUT")
	api.HandleFunc("/settings/reminder", s.setReminderTimeHandler).Methods("PUT")

	api.HandleFunc("/plants", s.listPlantsHandler).Methods("GET")
	api.HandleFunc("/plants", s.createPlantHandler).Methods("POST")
	api.HandleFunc("/plants/{id:[0-9]+}", s.getPlantHandler).Methods("GET")
	api.HandleFunc("/plants/{id:[0-9]+}", s.updatePlantHandler).Methods("PUT")
	api.HandleFunc("/plants/{id:[0-9]+}", s.deletePlantHandler).Methods("DELETE")
	api.HandleFunc("/plants/{id:[0-9]+}/status", s.getPlantHandler).Methods("GET")
	api.HandleFunc("/plants/{id:[0-9]+}/history", s.plantHistoryHandler).Methods("GET")
	api.HandleFunc("/plants/{id:[0-9]+}/water", s.recordWateringHandler).Methods("POST")
}

// ListenAndServe serves until Shutdown is called
func (s *HTTPServer) ListenAndServe() error {
	log.Printf("HTTP API listening on %s", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for running ones
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

func writeErrorCode(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: code, Message: message})
}

// writeError maps use case errors to status codes
func writeError(w http.ResponseWriter, err error) {
	var verr *entities.ValidationError
	switch {
	case errors.As(err, &verr):
		writeErrorCode(w, http.StatusBadRequest, "validation_error", verr.Error())
	case errors.Is(err, repository.ErrNotFound):
		writeErrorCode(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, usecases.ErrNoLocation):
		writeErrorCode(w, http.StatusConflict, "no_location", "configure a location first")
	case errors.Is(err, integration.ErrGeocodeNotFound):
		writeErrorCode(w, http.StatusNotFound, "location_not_found", err.Error())
	case errors.Is(err, usecases.ErrInvalidState):
		writeErrorCode(w, http.StatusBadRequest, "invalid_state", err.Error())
	case errors.Is(err, usecases.ErrQueueFull), errors.Is(err, usecases.ErrQueueClosed):
		writeErrorCode(w, http.StatusServiceUnavailable, "busy", err.Error())
	default:
		log.Printf("❌ Request failed: %v", err)
		writeErrorCode(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &entities.ValidationError{Field: "body", Reason: err.Error()}
	}
	return nil
}
