// Package devserver implements a small reference scheduling server the sync
// core can run against during development: SQLite persistence, the
// {message, data} mutation envelope, and websocket push channels.
package devserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/crypto/bcrypt"

	"github.com/example/slotsync/internal/command"
	"github.com/example/slotsync/internal/domain"
	"github.com/example/slotsync/internal/timegrid"
	"github.com/example/slotsync/internal/transport"
)

// Server handles the scheduling API the sync core talks to.
type Server struct {
	storage   *Storage
	hub       *Hub
	logger    *slog.Logger
	tokenHash string
	now       func() time.Time
	newID     func() string
}

// NewServer wires a server over the given storage and push hub. tokenHash
// is an optional bcrypt hash of the expected bearer token; when empty,
// requests are not authenticated.
func NewServer(storage *Storage, hub *Hub, logger *slog.Logger, tokenHash string) *Server {
	return &Server{
		storage:   storage,
		hub:       hub,
		logger:    logger,
		tokenHash: tokenHash,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// Router builds the HTTP routing table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws/{channel}", s.hub.Handle)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.authenticate)
		r.Get("/slots", s.listSlots)
		r.Post("/slots", s.addSlot)
		r.Delete("/slots", s.deleteSlots)
		r.Post("/slots/restore", s.restoreSlots)
		r.Post("/slots/recurring", s.addRecurringSlot)
		r.Post("/slots/{id}/recurrence", s.enableRecurrence)
		r.Delete("/slots/{id}/recurrence", s.disableRecurrence)
		r.Patch("/slots/{id}/time", s.updateSlotTime)
		r.Get("/sessions", s.listSessions)
		r.Patch("/sessions/{id}", s.rescheduleSession)
		r.Get("/days/recurring", s.listRecurringDays)
		r.Post("/days/recurring", s.setRecurringDay)
		r.Delete("/days/recurring", s.unsetRecurringDay)
		r.Post("/days/duplicate", s.duplicateDay)
	})
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := s.now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("request handled",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds())
	})
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.tokenHash == "" {
			next.ServeHTTP(w, r)
			return
		}
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || bcrypt.CompareHashAndPassword([]byte(s.tokenHash), []byte(token)) != nil {
			s.writeEnvelope(w, http.StatusUnauthorized, "Authentication required.", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) writeEnvelope(w http.ResponseWriter, status int, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	envelope := struct {
		Message string `json:"message"`
		Data    any    `json:"data"`
	}{Message: message, Data: data}
	if err := json.NewEncoder(w).Encode(envelope); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeEnvelope(w, http.StatusBadRequest, "Malformed request body.", nil)
		return false
	}
	return true
}

func (s *Server) addSlot(w http.ResponseWriter, r *http.Request) {
	var body command.AddSlot
	if !s.decode(w, r, &body) {
		return
	}
	slot, err := s.createSlot(r, body.EmployeeID, body.Date, body.Hour, body.Minute, body.Duration, body.Type, false)
	if err != nil {
		s.respondSlotError(w, err)
		return
	}
	s.hub.Broadcast(transport.ChannelSlots, transport.ActionCreate, slot)
	s.writeEnvelope(w, http.StatusCreated, "Slot has been added.", slot)
}

func (s *Server) addRecurringSlot(w http.ResponseWriter, r *http.Request) {
	var body command.AddRecurringSlot
	if !s.decode(w, r, &body) {
		return
	}
	slot, err := s.createSlot(r, body.EmployeeID, body.Date, body.Hour, body.Minute, body.Duration, body.Type, true)
	if err != nil {
		s.respondSlotError(w, err)
		return
	}
	s.hub.Broadcast(transport.ChannelSlots, transport.ActionCreate, slot)
	s.writeEnvelope(w, http.StatusCreated, "Recurring slot has been added.", slot)
}

func (s *Server) createSlot(r *http.Request, employeeID, date string, hour, minute, duration int, slotType domain.SlotType, recurring bool) (domain.Slot, error) {
	day, err := timegrid.ParseDate(date)
	if err != nil {
		return domain.Slot{}, err
	}
	now := s.now().UTC()
	slot := domain.Slot{
		ID:         s.newID(),
		EmployeeID: employeeID,
		Type:       slotType,
		StartTime:  day.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute),
		Duration:   duration,
		Recurring:  recurring,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.storage.InsertSlot(r.Context(), slot); err != nil {
		return domain.Slot{}, err
	}
	return slot, nil
}

// respondSlotError maps storage failures onto envelope responses. A start
// collision is a committed 200 with a non-success message so the client
// surfaces it as a logical failure rather than a transport error.
func (s *Server) respondSlotError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrSlotConflict):
		s.writeEnvelope(w, http.StatusOK, "A slot already exists at this time.", nil)
	case errors.Is(err, ErrNotFound):
		s.writeEnvelope(w, http.StatusNotFound, "Slot could not be found.", nil)
	default:
		s.logger.Error("slot mutation failed", "error", err)
		s.writeEnvelope(w, http.StatusInternalServerError, "Internal error.", nil)
	}
}

func (s *Server) deleteSlots(w http.ResponseWriter, r *http.Request) {
	var body command.DeleteSlots
	if !s.decode(w, r, &body) {
		return
	}
	deleted, err := s.storage.DeleteSlots(r.Context(), body.SlotIDs)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.writeEnvelope(w, http.StatusOK, "No matching slots were found.", nil)
			return
		}
		s.respondSlotError(w, err)
		return
	}
	for _, slot := range deleted {
		s.hub.Broadcast(transport.ChannelSlots, transport.ActionDelete, slot)
	}
	s.writeEnvelope(w, http.StatusOK, "Slots have been deleted.", deleted)
}

func (s *Server) restoreSlots(w http.ResponseWriter, r *http.Request) {
	var body command.RestoreSlots
	if !s.decode(w, r, &body) {
		return
	}
	if len(body.Slots) == 0 {
		s.writeEnvelope(w, http.StatusBadRequest, "Malformed request body.", nil)
		return
	}
	now := s.now().UTC()
	restored := make([]domain.Slot, 0, len(body.Slots))
	for _, slot := range body.Slots {
		slot.UpdatedAt = now
		if err := s.storage.InsertSlot(r.Context(), slot); err != nil {
			if errors.Is(err, ErrSlotConflict) {
				s.writeEnvelope(w, http.StatusOK, "Some slots could not be restored.", nil)
				return
			}
			s.respondSlotError(w, err)
			return
		}
		restored = append(restored, slot)
	}
	for _, slot := range restored {
		s.hub.Broadcast(transport.ChannelSlots, transport.ActionCreate, slot)
	}
	s.writeEnvelope(w, http.StatusOK, "Slots have been restored.", restored)
}

func (s *Server) duplicateDay(w http.ResponseWriter, r *http.Request) {
	var body command.DuplicateDay
	if !s.decode(w, r, &body) {
		return
	}
	source, err := s.storage.SlotsOnDate(r.Context(), body.EmployeeID, body.SourceDate)
	if err != nil {
		s.respondSlotError(w, err)
		return
	}
	targetDay, err := timegrid.ParseDate(body.TargetDate)
	if err != nil {
		s.writeEnvelope(w, http.StatusBadRequest, "Malformed request body.", nil)
		return
	}
	now := s.now().UTC()
	created := make([]domain.Slot, 0, len(source))
	for _, src := range source {
		start := src.StartTime.UTC()
		copySlot := domain.Slot{
			ID:         s.newID(),
			EmployeeID: src.EmployeeID,
			Type:       src.Type,
			StartTime:  targetDay.Add(time.Duration(start.Hour())*time.Hour + time.Duration(start.Minute())*time.Minute),
			Duration:   src.Duration,
			Recurring:  false,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := s.storage.InsertSlot(r.Context(), copySlot); err != nil {
			if errors.Is(err, ErrSlotConflict) {
				continue
			}
			s.respondSlotError(w, err)
			return
		}
		created = append(created, copySlot)
	}
	if len(created) == 0 {
		s.writeEnvelope(w, http.StatusOK, "No slots were available to duplicate.", nil)
		return
	}
	for _, slot := range created {
		s.hub.Broadcast(transport.ChannelSlots, transport.ActionCreate, slot)
	}
	s.writeEnvelope(w, http.StatusCreated, "Day has been duplicated.", created)
}

func (s *Server) setRecurringDay(w http.ResponseWriter, r *http.Request) {
	var body command.SetRecurringDay
	if !s.decode(w, r, &body) {
		return
	}
	day := domain.RecurringDate{ID: s.newID(), EmployeeID: body.EmployeeID, Date: body.Date}
	if err := s.storage.InsertRecurringDate(r.Context(), day); err != nil {
		if errors.Is(err, ErrSlotConflict) {
			s.writeEnvelope(w, http.StatusOK, "Recurring day is already set.", nil)
			return
		}
		s.respondSlotError(w, err)
		return
	}
	s.writeEnvelope(w, http.StatusCreated, "Recurring day has been set.", day)
}

func (s *Server) unsetRecurringDay(w http.ResponseWriter, r *http.Request) {
	var body command.UnsetRecurringDay
	if !s.decode(w, r, &body) {
		return
	}
	day, err := s.storage.DeleteRecurringDate(r.Context(), body.EmployeeID, body.Date)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.writeEnvelope(w, http.StatusOK, "Recurring day was not set.", nil)
			return
		}
		s.respondSlotError(w, err)
		return
	}
	s.writeEnvelope(w, http.StatusOK, "Recurring day has been removed.", day)
}

func (s *Server) enableRecurrence(w http.ResponseWriter, r *http.Request) {
	s.setRecurrence(w, r, true, "Slot recurrence has been enabled.")
}

func (s *Server) disableRecurrence(w http.ResponseWriter, r *http.Request) {
	s.setRecurrence(w, r, false, "Slot recurrence has been disabled.")
}

func (s *Server) setRecurrence(w http.ResponseWriter, r *http.Request, recurring bool, marker string) {
	slot, err := s.storage.GetSlot(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondSlotError(w, err)
		return
	}
	slot.Recurring = recurring
	slot.UpdatedAt = s.now().UTC()
	if err := s.storage.UpdateSlot(r.Context(), slot); err != nil {
		s.respondSlotError(w, err)
		return
	}
	s.hub.Broadcast(transport.ChannelSlots, transport.ActionUpdate, slot)
	s.writeEnvelope(w, http.StatusOK, marker, slot)
}

func (s *Server) updateSlotTime(w http.ResponseWriter, r *http.Request) {
	var body command.UpdateSlotTime
	if !s.decode(w, r, &body) {
		return
	}
	slot, err := s.storage.GetSlot(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondSlotError(w, err)
		return
	}
	day := timegrid.Midnight(slot.StartTime.UTC())
	slot.StartTime = day.Add(time.Duration(body.Hour)*time.Hour + time.Duration(body.Minute)*time.Minute)
	slot.UpdatedAt = s.now().UTC()
	if err := s.storage.UpdateSlot(r.Context(), slot); err != nil {
		s.respondSlotError(w, err)
		return
	}
	s.hub.Broadcast(transport.ChannelSlots, transport.ActionUpdate, slot)
	s.writeEnvelope(w, http.StatusOK, "Slot time has been updated.", slot)
}

func (s *Server) rescheduleSession(w http.ResponseWriter, r *http.Request) {
	var body command.RescheduleSession
	if !s.decode(w, r, &body) {
		return
	}
	session, err := s.storage.GetSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondSessionError(w, err)
		return
	}
	target, err := s.storage.GetSlot(r.Context(), body.SlotID)
	if err != nil {
		s.respondSlotError(w, err)
		return
	}
	if target.Type == domain.SlotBooked {
		s.writeEnvelope(w, http.StatusOK, "Selected slot is already booked.", nil)
		return
	}
	now := s.now().UTC()

	if prior, err := s.storage.GetSlot(r.Context(), session.SlotID); err == nil {
		prior.Type = domain.SlotAvailable
		prior.UpdatedAt = now
		if err := s.storage.UpdateSlot(r.Context(), prior); err != nil {
			s.respondSlotError(w, err)
			return
		}
		s.hub.Broadcast(transport.ChannelSlots, transport.ActionUpdate, prior)
	}

	target.Type = domain.SlotBooked
	target.UpdatedAt = now
	if err := s.storage.UpdateSlot(r.Context(), target); err != nil {
		s.respondSlotError(w, err)
		return
	}
	s.hub.Broadcast(transport.ChannelSlots, transport.ActionUpdate, target)

	session.SlotID = target.ID
	session.StartTime = target.StartTime
	session.UpdatedAt = now
	if err := s.storage.UpdateSession(r.Context(), session); err != nil {
		s.respondSessionError(w, err)
		return
	}
	s.hub.Broadcast(transport.ChannelSessions, transport.ActionUpdate, session)
	s.writeEnvelope(w, http.StatusOK, "Session has been rescheduled.", session)
}

func (s *Server) respondSessionError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrNotFound) {
		s.writeEnvelope(w, http.StatusNotFound, "Session could not be found.", nil)
		return
	}
	s.logger.Error("session mutation failed", "error", err)
	s.writeEnvelope(w, http.StatusInternalServerError, "Internal error.", nil)
}

func (s *Server) listSlots(w http.ResponseWriter, r *http.Request) {
	employeeID, start, end, ok := windowQuery(r)
	if !ok {
		s.writeEnvelope(w, http.StatusBadRequest, "Malformed window query.", nil)
		return
	}
	slots, err := s.storage.SlotsInRange(r.Context(), employeeID, start, end)
	if err != nil {
		s.respondSlotError(w, err)
		return
	}
	if slots == nil {
		slots = []domain.Slot{}
	}
	s.writeEnvelope(w, http.StatusOK, "OK", slots)
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	employeeID, start, end, ok := windowQuery(r)
	if !ok {
		s.writeEnvelope(w, http.StatusBadRequest, "Malformed window query.", nil)
		return
	}
	sessions, err := s.storage.SessionsInRange(r.Context(), employeeID, start, end)
	if err != nil {
		s.respondSessionError(w, err)
		return
	}
	if sessions == nil {
		sessions = []domain.Session{}
	}
	s.writeEnvelope(w, http.StatusOK, "OK", sessions)
}

func (s *Server) listRecurringDays(w http.ResponseWriter, r *http.Request) {
	employeeID, start, end, ok := windowQuery(r)
	if !ok {
		s.writeEnvelope(w, http.StatusBadRequest, "Malformed window query.", nil)
		return
	}
	days, err := s.storage.RecurringDatesInRange(r.Context(), employeeID, start, end)
	if err != nil {
		s.respondSlotError(w, err)
		return
	}
	if days == nil {
		days = []domain.RecurringDate{}
	}
	s.writeEnvelope(w, http.StatusOK, "OK", days)
}

func windowQuery(r *http.Request) (employeeID, start, end string, ok bool) {
	q := r.URL.Query()
	employeeID = q.Get("employeeId")
	start = q.Get("start")
	end = q.Get("end")
	if employeeID == "" || start == "" || end == "" {
		return "", "", "", false
	}
	if _, err := timegrid.ParseDate(start); err != nil {
		return "", "", "", false
	}
	if _, err := timegrid.ParseDate(end); err != nil {
		return "", "", "", false
	}
	return employeeID, start, end, true
}
