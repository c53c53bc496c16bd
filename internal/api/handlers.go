package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sanordv/rdv-scheduling/internal/booking"
)

func parseDay(s string) (time.Time, error) {
	return time.Parse(dayFormat, s)
}

func createAgendaHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createAgendaRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		doctorID, err := uuid.Parse(req.DoctorID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctorId must be a valid UUID")
			return
		}

		day, err := parseDay(req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		agenda, err := svc.GetOrCreateAgenda(r.Context(), doctorID, day)
		if err != nil {
			handleDomainError(w, err)
			return
		}

		writeSuccess(w, http.StatusCreated, "agenda ready", toAgendaResponse(*agenda))
	}
}

func getAgendaHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agendaID, err := uuid.Parse(chi.URLParam(r, "agendaID"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_agenda_id", "agendaID must be a valid UUID")
			return
		}

		detail, err := svc.GetAgenda(r.Context(), agendaID)
		if err != nil {
			handleDomainError(w, err)
			return
		}

		days := make([]slotDayResponse, 0, len(detail.SlotDays))
		for _, sd := range detail.SlotDays {
			days = append(days, toSlotDayResponse(sd))
		}

		writeSuccess(w, http.StatusOK, "agenda found", agendaDetailResponse{
			agendaResponse: toAgendaResponse(detail.Agenda),
			SlotDays:       days,
		})
	}
}

func generateSlotDayHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req generateSlotDayRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		agendaID, err := uuid.Parse(req.AgendaID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_agenda_id", "agendaId must be a valid UUID")
			return
		}

		day, err := parseDay(req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		slotDay, created, err := svc.GenerateAndStore(r.Context(), agendaID, day, req.HeuresIndisponibles)
		if err != nil {
			handleDomainError(w, err)
			return
		}

		operation := "update"
		status := http.StatusOK
		if created {
			operation = "create"
			status = http.StatusCreated
		}

		writeSuccess(w, status, "slot day generated", generateSlotDayResponse{
			Operation: operation,
			SlotDay:   toSlotDayResponse(*slotDay),
		})
	}
}

func prepareSlotDayHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req slotDayKeyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		agendaID, err := uuid.Parse(req.AgendaID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_agenda_id", "agendaId must be a valid UUID")
			return
		}

		day, err := parseDay(req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		slotDay, err := svc.RetrieveOrCreate(r.Context(), agendaID, day)
		if err != nil {
			handleDomainError(w, err)
			return
		}

		writeSuccess(w, http.StatusOK, "slot day ready", toSlotDayResponse(*slotDay))
	}
}

func getSlotDayHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agendaID, err := uuid.Parse(chi.URLParam(r, "agendaID"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_agenda_id", "agendaID must be a valid UUID")
			return
		}

		day, err := parseDay(chi.URLParam(r, "date"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		slotDay, err := svc.GetSlotDayByDate(r.Context(), agendaID, day)
		if err != nil {
			handleDomainError(w, err)
			return
		}

		writeSuccess(w, http.StatusOK, "slot day found", toSlotDayResponse(*slotDay))
	}
}

func filterSlotsHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agendaID, err := uuid.Parse(chi.URLParam(r, "agendaID"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_agenda_id", "agendaID must be a valid UUID")
			return
		}

		day, err := parseDay(chi.URLParam(r, "date"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		status, ok := booking.ParseSlotStatus(chi.URLParam(r, "statut"))
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_status", "statut must be available, reserved or unavailable")
			return
		}

		slotDay, err := svc.FilterSlots(r.Context(), agendaID, day, status)
		if err != nil {
			handleDomainError(w, err)
			return
		}

		writeSuccess(w, http.StatusOK, "slots filtered", toSlotDayResponse(*slotDay))
	}
}

func deleteSlotDayHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req slotDayKeyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		agendaID, err := uuid.Parse(req.AgendaID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_agenda_id", "agendaId must be a valid UUID")
			return
		}

		day, err := parseDay(req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		if err := svc.DeleteSlotDay(r.Context(), agendaID, day); err != nil {
			handleDomainError(w, err)
			return
		}

		writeSuccess(w, http.StatusOK, "slot day deleted", nil)
	}
}

// handleDomainError maps domain sentinels to HTTP codes. Anything unknown
// is a 500 with a generic message; internals are logged, not returned.
func handleDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, booking.ErrDoctorNotFound):
		writeError(w, http.StatusNotFound, "doctor_not_found", "doctor does not exist")
	case errors.Is(err, booking.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", "patient does not exist")
	case errors.Is(err, booking.ErrAgendaNotFound):
		writeError(w, http.StatusNotFound, "agenda_not_found", "agenda does not exist")
	case errors.Is(err, booking.ErrSlotDayNotFound):
		writeError(w, http.StatusNotFound, "slot_day_not_found", "no slot day for this agenda and date")
	case errors.Is(err, booking.ErrSlotNotFound):
		writeError(w, http.StatusNotFound, "slot_not_found", "slot does not exist")
	case errors.Is(err, booking.ErrSlotUnavailable):
		writeError(w, http.StatusConflict, "slot_unavailable", "this time slot is not available")
	case errors.Is(err, booking.ErrNotReserved):
		writeError(w, http.StatusConflict, "not_reserved", "this time slot is not reserved")
	case errors.Is(err, booking.ErrUnauthorized):
		writeError(w, http.StatusForbidden, "unauthorized", "not allowed to cancel this slot")
	case errors.Is(err, booking.ErrDayBusy):
		writeError(w, http.StatusConflict, "day_busy", "slot day is being generated, please retry shortly")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
