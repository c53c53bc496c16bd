package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sanordv/rdv-scheduling/internal/booking"
)

// slotRefFromRequest prefers the sub-slot id over the time label; both
// address the same conditional update.
func slotRefFromRequest(timeSlotID, timeLabel string) (booking.SlotRef, bool) {
	if timeSlotID != "" {
		id, err := uuid.Parse(timeSlotID)
		if err != nil {
			return booking.SlotRef{}, false
		}
		return booking.RefByID(id), true
	}
	if timeLabel != "" {
		return booking.RefByLabel(timeLabel), true
	}
	return booking.SlotRef{}, false
}

func bookHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req bookRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		slotDayID, err := uuid.Parse(req.CreneauID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_creneau_id", "creneauId must be a valid UUID")
			return
		}

		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patientId must be a valid UUID")
			return
		}

		ref, ok := slotRefFromRequest(req.TimeSlotID, req.Time)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_slot_ref", "timeSlotId or time is required")
			return
		}

		slot, err := svc.Book(r.Context(), slotDayID, ref, patientID, req.Motif)
		if err != nil {
			handleDomainError(w, err)
			return
		}

		writeSuccess(w, http.StatusCreated, "rendez-vous confirmed", toSlotResponse(*slot))
	}
}

func cancelHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req cancelRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		slotDayID, err := uuid.Parse(req.CreneauID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_creneau_id", "creneauId must be a valid UUID")
			return
		}

		actorID, err := uuid.Parse(req.UserID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_user_id", "userId must be a valid UUID")
			return
		}

		actorType, ok := booking.ParseActorType(req.UserType)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_user_type", "userType must be patient, doctor or admin")
			return
		}

		ref, ok := slotRefFromRequest(req.TimeSlotID, req.Time)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_slot_ref", "timeSlotId or time is required")
			return
		}

		actor := booking.Actor{ID: actorID, Type: actorType}
		slot, err := svc.Cancel(r.Context(), slotDayID, ref, actor, req.MotifAnnulation)
		if err != nil {
			handleDomainError(w, err)
			return
		}

		writeSuccess(w, http.StatusOK, "rendez-vous cancelled", toSlotResponse(*slot))
	}
}

func listPatientAppointmentsHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID, err := uuid.Parse(chi.URLParam(r, "patientID"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patientID must be a valid UUID")
			return
		}

		window, ok := parseWindow(r.URL.Query().Get("filtre"))
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_filter", "filtre must be passe, futur or empty")
			return
		}

		limit, offset := paginationParams(r)
		list, err := svc.ListAppointmentsByPatient(r.Context(), patientID, window, limit, offset)
		if err != nil {
			handleDomainError(w, err)
			return
		}

		writeSuccess(w, http.StatusOK, "appointments found", toAppointmentResponses(list))
	}
}

func listDoctorAppointmentsHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, err := uuid.Parse(chi.URLParam(r, "doctorID"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "medecinID must be a valid UUID")
			return
		}

		window, ok := parseWindow(r.URL.Query().Get("filtre"))
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_filter", "filtre must be passe, futur or empty")
			return
		}

		limit, offset := paginationParams(r)
		list, err := svc.ListAppointmentsByDoctor(r.Context(), doctorID, window, limit, offset)
		if err != nil {
			handleDomainError(w, err)
			return
		}

		writeSuccess(w, http.StatusOK, "appointments found", toAppointmentResponses(list))
	}
}

func doctorStatsHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, err := uuid.Parse(chi.URLParam(r, "doctorID"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "medecinID must be a valid UUID")
			return
		}

		stats, err := svc.DoctorStats(r.Context(), doctorID)
		if err != nil {
			handleDomainError(w, err)
			return
		}

		writeSuccess(w, http.StatusOK, "statistics computed", doctorStatsResponse{
			Total:     stats.Total,
			Confirmes: stats.Reserved,
			Annules:   stats.Cancelled,
		})
	}
}

// parseWindow accepts the legacy French query values alongside the
// canonical ones.
func parseWindow(s string) (booking.TimeWindow, bool) {
	switch s {
	case "passe":
		return booking.WindowPast, true
	case "futur":
		return booking.WindowUpcoming, true
	}
	return booking.ParseTimeWindow(s)
}

func paginationParams(r *http.Request) (limit, offset int) {
	q := r.URL.Query()
	limit, _ = strconv.Atoi(q.Get("limit"))
	offset, _ = strconv.Atoi(q.Get("offset"))
	return limit, offset
}
