package api

import (
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/abelzeko/riego-bot/internal/entities"
	"github.com/abelzeko/riego-bot/internal/usecases"
	"github.com/gorilla/mux"
)

type plantRequest struct {
	Name        string  `json:"name"`
	Kind        string  `json:"kind"`
	PotLiters   float64 `json:"pot_liters"`
	Size        string  `json:"size"`
	Flowering   bool    `json:"flowering"`
	Mode        string  `json:"mode"`
	LastWatered string  `json:"last_watered"`
}

type plantResponse struct {
	ID            int64   `json:"id"`
	Name          string  `json:"name"`
	Kind          string  `json:"kind"`
	PotLiters     float64 `json:"pot_liters"`
	Size          string  `json:"size"`
	Flowering     bool    `json:"flowering"`
	Mode          string  `json:"mode"`
	LastWatered   string  `json:"last_watered"`
	EventID       string  `json:"event_id,omitempty"`
	NextWatering  string  `json:"next_watering"`
	DaysRemaining int     `json:"days_remaining"`
	RecommendedML int     `json:"recommended_ml"`
	FrequencyDays int     `json:"frequency_days"`
	Status        string  `json:"status"`
	StatusText    string  `json:"status_text"`
	Reason        string  `json:"reason"`
	Advice        string  `json:"advice"`
}

type wateringRequest struct {
	Date        string   `json:"date"`
	AmountML    int      `json:"amount_ml"`
	PH          *float64 `json:"ph"`
	EC          *float64 `json:"ec"`
	Supplements string   `json:"supplements"`
	Comments    string   `json:"comments"`
}

type wateringResponse struct {
	Date        string   `json:"date"`
	AmountML    int      `json:"amount_ml"`
	PH          *float64 `json:"ph,omitempty"`
	EC          *float64 `json:"ec,omitempty"`
	Supplements string   `json:"supplements,omitempty"`
	Comments    string   `json:"comments,omitempty"`
}

type plantReportResponse struct {
	PlantID       int64  `json:"plant_id"`
	Name          string `json:"name"`
	NextWatering  string `json:"next_watering,omitempty"`
	RecommendedML int    `json:"recommended_ml,omitempty"`
	Reason        string `json:"reason,omitempty"`
	Reset         bool   `json:"reset,omitempty"`
	Sync          string `json:"sync"`
	EventID       string `json:"event_id,omitempty"`
}

type reportResponse struct {
	RunID            string                `json:"run_id"`
	Trigger          string                `json:"trigger"`
	StartedAt        time.Time             `json:"started_at"`
	FinishedAt       time.Time             `json:"finished_at"`
	Locations        int                   `json:"locations"`
	LocationsSkipped int                   `json:"locations_skipped"`
	Synced           int                   `json:"synced"`
	Skipped          int                   `json:"skipped"`
	Failed           int                   `json:"failed"`
	Plants           []plantReportResponse `json:"plants"`
	Warnings         []string              `json:"warnings,omitempty"`
}

func newPlantResponse(s usecases.PlantStatus) plantResponse {
	c := s.Plan.Computation
	return plantResponse{
		ID:            s.Plant.ID,
		Name:          s.Plant.Name,
		Kind:          string(s.Plant.Kind),
		PotLiters:     s.Plant.PotLiters,
		Size:          string(s.Plant.Size),
		Flowering:     s.Plant.Flowering,
		Mode:          string(s.Plant.Mode),
		LastWatered:   s.Plant.LastWatered.Format(entities.DateLayout),
		EventID:       s.Plant.EventID,
		NextWatering:  s.Plan.NextWatering.Format(entities.DateLayout),
		DaysRemaining: s.Plan.DaysRemaining,
		RecommendedML: c.RecommendedML,
		FrequencyDays: c.FrequencyDays,
		Status:        c.Status.String(),
		StatusText:    c.StatusText(),
		Reason:        s.Plan.Reason,
		Advice:        c.Advice,
	}
}

func newReportResponse(r *usecases.BatchReport) reportResponse {
	c := r.Counts()
	resp := reportResponse{
		RunID:            r.RunID,
		Trigger:          r.Trigger,
		StartedAt:        r.StartedAt,
		FinishedAt:       r.FinishedAt,
		Locations:        c.Locations,
		LocationsSkipped: c.LocationsSkipped,
		Synced:           c.Synced,
		Skipped:          c.Skipped,
		Failed:           c.Failed,
		Plants:           []plantReportResponse{},
		Warnings:         r.Messages(),
	}
	for _, p := range r.AllPlants() {
		pr := plantReportResponse{
			PlantID:       p.PlantID,
			Name:          p.Name,
			RecommendedML: p.RecommendedML,
			Reason:        p.Reason,
			Reset:         p.Reset,
			Sync:          p.Sync.Status.String(),
			EventID:       p.Sync.EventID,
		}
		if !p.NextWatering.IsZero() {
			pr.NextWatering = p.NextWatering.Format(entities.DateLayout)
		}
		resp.Plants = append(resp.Plants, pr)
	}
	return resp
}

// toPlant converts a request, leaving unset enums empty for the use case to default
func (req plantRequest) toPlant() (entities.Plant, error) {
	p := entities.Plant{
		Name:      req.Name,
		Kind:      entities.PlantKind(req.Kind),
		PotLiters: req.PotLiters,
		Flowering: req.Flowering,
	}
	size, err := entities.ParseSizeCategory(req.Size)
	if err != nil {
		return p, err
	}
	p.Size = size
	mode, err := entities.ParseCultivationMode(req.Mode)
	if err != nil {
		return p, err
	}
	p.Mode = mode
	switch p.Kind {
	case "", entities.KindAuto, entities.KindPhoto:
	default:
		return p, &entities.ValidationError{Field: "kind", Reason: fmt.Sprintf("unknown plant kind %q", req.Kind)}
	}
	if req.LastWatered != "" {
		d, err := entities.ParseDay(req.LastWatered)
		if err != nil {
			return p, &entities.ValidationError{Field: "last_watered", Reason: "must be YYYY-MM-DD"}
		}
		p.LastWatered = d
	}
	return p, nil
}

func plantID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		return 0, &entities.ValidationError{Field: "id", Reason: "must be a number"}
	}
	return id, nil
}

// healthHandler returns server health status
func (s *HTTPServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// oauthCallbackHandler completes the calendar link started from the bot or the API
func (s *HTTPServer) oauthCallbackHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if errParam := q.Get("error"); errParam != "" {
		log.Printf("OAuth callback returned error: %s", errParam)
		writeErrorCode(w, http.StatusBadRequest, "authorization_denied", errParam)
		return
	}

	ownerID, err := s.accounts.CompleteCalendarLink(r.Context(), q.Get("state"), q.Get("code"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "linked",
		"owner_id": ownerID,
		"message":  "Google Calendar conectado. Ya podés volver a Telegram.",
	})
}

func (s *HTTPServer) calendarStatusHandler(w http.ResponseWriter, r *http.Request) {
	status, err := s.accounts.CalendarStatus(r.Context(), ownerFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"linked":        status.Linked,
		"calendar_id":   status.CalendarID,
		"synced_plants": status.SyncedPlants,
		"total_plants":  status.TotalPlants,
	})
}

func (s *HTTPServer) calendarLinkHandler(w http.ResponseWriter, r *http.Request) {
	url, err := s.accounts.StartCalendarLink(r.Context(), ownerFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"auth_url": url})
}

func (s *HTTPServer) calendarDisconnectHandler(w http.ResponseWriter, r *http.Request) {
	report, err := s.accounts.DisconnectCalendar(r.Context(), ownerFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "disconnected",
		"warnings": report.Messages(),
	})
}

func (s *HTTPServer) recalculateHandler(w http.ResponseWriter, r *http.Request) {
	wait := r.URL.Query().Get("wait") == "true"
	report, err := s.accounts.Recalculate(r.Context(), ownerFromContext(r.Context()), wait)
	if err != nil {
		writeError(w, err)
		return
	}
	if report == nil {
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
		return
	}
	writeJSON(w, http.StatusOK, newReportResponse(report))
}

func (s *HTTPServer) setLocationHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query string `json:"query"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	loc, err := s.accounts.SetLocation(r.Context(), ownerFromContext(r.Context()), req.Query)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":        loc.ID,
		"name":      loc.Name,
		"latitude":  loc.Latitude,
		"longitude": loc.Longitude,
	})
}

func (s *HTTPServer) setIndoorClimateHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Temperature *float64 `json:"temperature"`
		Humidity    *float64 `json:"humidity"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.accounts.SetIndoorClimate(r.Context(), ownerFromContext(r.Context()), req.Temperature, req.Humidity); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) setReminderTimeHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Hour   int `json:"hour"`
		Minute int `json:"minute"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.accounts.SetReminderTime(r.Context(), ownerFromContext(r.Context()), req.Hour, req.Minute); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) listPlantsHandler(w http.ResponseWriter, r *http.Request) {
	statuses, err := s.plants.ListPlants(r.Context(), ownerFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	resp := make([]plantResponse, 0, len(statuses))
	for _, st := range statuses {
		resp = append(resp, newPlantResponse(st))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) createPlantHandler(w http.ResponseWriter, r *http.Request) {
	var req plantRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	p, err := req.toPlant()
	if err != nil {
		writeError(w, err)
		return
	}
	ownerID := ownerFromContext(r.Context())
	p.OwnerID = ownerID
	if err := s.plants.CreatePlant(r.Context(), &p); err != nil {
		writeError(w, err)
		return
	}
	status, err := s.plants.GetPlantStatus(r.Context(), ownerID, p.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newPlantResponse(*status))
}

func (s *HTTPServer) getPlantHandler(w http.ResponseWriter, r *http.Request) {
	id, err := plantID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	status, err := s.plants.GetPlantStatus(r.Context(), ownerFromContext(r.Context()), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newPlantResponse(*status))
}

func (s *HTTPServer) updatePlantHandler(w http.ResponseWriter, r *http.Request) {
	id, err := plantID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req plantRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	p, err := req.toPlant()
	if err != nil {
		writeError(w, err)
		return
	}
	p.ID = id
	ownerID := ownerFromContext(r.Context())
	if err := s.plants.UpdatePlant(r.Context(), ownerID, p); err != nil {
		writeError(w, err)
		return
	}
	status, err := s.plants.GetPlantStatus(r.Context(), ownerID, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newPlantResponse(*status))
}

func (s *HTTPServer) deletePlantHandler(w http.ResponseWriter, r *http.Request) {
	id, err := plantID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.plants.DeletePlant(r.Context(), ownerFromContext(r.Context()), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) plantHistoryHandler(w http.ResponseWriter, r *http.Request) {
	id, err := plantID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	limit := 20
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 {
		limit = l
	}
	history, err := s.plants.GetHistory(r.Context(), ownerFromContext(r.Context()), id, limit)
	if err != nil {
		writeError(w, err)
		return
	}

	records := make([]wateringResponse, 0, len(history.Records))
	for _, rec := range history.Records {
		records = append(records, wateringResponse{
			Date:        rec.Date.Format(entities.DateLayout),
			AmountML:    rec.AmountML,
			PH:          rec.PH,
			EC:          rec.EC,
			Supplements: rec.Supplements,
			Comments:    rec.Comments,
		})
	}
	st := history.Stats
	writeJSON(w, http.StatusOK, map[string]any{
		"plant_id": id,
		"records":  records,
		"stats": map[string]any{
			"count":            st.Count,
			"total_ml":         st.TotalML,
			"average_ml":       st.AverageML,
			"max_ml":           st.MaxML,
			"min_ml":           st.MinML,
			"average_interval": st.AverageInterval,
		},
	})
}

func (s *HTTPServer) recordWateringHandler(w http.ResponseWriter, r *http.Request) {
	id, err := plantID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req wateringRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	rec := &entities.WateringRecord{
		PlantID:     id,
		AmountML:    req.AmountML,
		PH:          req.PH,
		EC:          req.EC,
		Supplements: req.Supplements,
		Comments:    req.Comments,
	}
	if req.Date != "" {
		d, err := entities.ParseDay(req.Date)
		if err != nil {
			writeError(w, &entities.ValidationError{Field: "date", Reason: "must be YYYY-MM-DD"})
			return
		}
		rec.Date = d
	}

	ownerID := ownerFromContext(r.Context())
	if err := s.plants.RecordWatering(r.Context(), ownerID, rec); err != nil {
		writeError(w, err)
		return
	}
	status, err := s.plants.GetPlantStatus(r.Context(), ownerID, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newPlantResponse(*status))
}
