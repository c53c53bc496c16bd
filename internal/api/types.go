package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/sanordv/rdv-scheduling/internal/booking"
)

type createAgendaRequest struct {
	DoctorID string `json:"doctorId"`
	Date     string `json:"date"`
}

type generateSlotDayRequest struct {
	AgendaID            string   `json:"agendaId"`
	Date                string   `json:"date"`
	HeuresIndisponibles []string `json:"heuresIndisponibles"`
}

type slotDayKeyRequest struct {
	AgendaID string `json:"agendaId"`
	Date     string `json:"date"`
}

type bookRequest struct {
	CreneauID  string `json:"creneauId"`
	TimeSlotID string `json:"timeSlotId"`
	Time       string `json:"time"`
	PatientID  string `json:"patientId"`
	Motif      string `json:"motif"`
}

type cancelRequest struct {
	CreneauID       string `json:"creneauId"`
	TimeSlotID      string `json:"timeSlotId"`
	Time            string `json:"time"`
	UserID          string `json:"userId"`
	UserType        string `json:"userType"`
	MotifAnnulation string `json:"motifAnnulation"`
}

type agendaResponse struct {
	ID       uuid.UUID `json:"id"`
	DoctorID uuid.UUID `json:"doctorId"`
	Date     string    `json:"date"`
	Status   string    `json:"status"`
}

type agendaDetailResponse struct {
	agendaResponse
	SlotDays []slotDayResponse `json:"creneaux"`
}

type cancelledByResponse struct {
	ID   uuid.UUID `json:"id"`
	Type string    `json:"type"`
}

type slotResponse struct {
	ID              uuid.UUID            `json:"id"`
	Time            string               `json:"time"`
	Status          string               `json:"status"`
	PatientID       *uuid.UUID           `json:"patientId,omitempty"`
	Motif           *string              `json:"motif,omitempty"`
	ReservedAt      *time.Time           `json:"reservedAt,omitempty"`
	CancelledAt     *time.Time           `json:"cancelledAt,omitempty"`
	MotifAnnulation *string              `json:"motifAnnulation,omitempty"`
	AnnulePar       *cancelledByResponse `json:"annulePar,omitempty"`
}

type slotDayResponse struct {
	ID       uuid.UUID      `json:"id"`
	AgendaID uuid.UUID      `json:"agendaId"`
	Date     string         `json:"date"`
	Slots    []slotResponse `json:"timeSlots"`
}

type generateSlotDayResponse struct {
	Operation string          `json:"operation"`
	SlotDay   slotDayResponse `json:"creneau"`
}

type appointmentResponse struct {
	SlotID    uuid.UUID `json:"timeSlotId"`
	SlotDayID uuid.UUID `json:"creneauId"`
	AgendaID  uuid.UUID `json:"agendaId"`
	DoctorID  uuid.UUID `json:"medecinId"`
	PatientID uuid.UUID `json:"patientId"`
	Date      string    `json:"date"`
	Time      string    `json:"time"`
	Motif     *string   `json:"motif,omitempty"`
}

type doctorStatsResponse struct {
	Total     int64 `json:"total"`
	Confirmes int64 `json:"confirmes"`
	Annules   int64 `json:"annules"`
}

const dayFormat = "2006-01-02"

func toAgendaResponse(a booking.Agenda) agendaResponse {
	return agendaResponse{
		ID:       a.ID,
		DoctorID: a.DoctorID,
		Date:     a.Day.Format(dayFormat),
		Status:   string(a.Status),
	}
}

func toSlotResponse(s booking.TimeSlot) slotResponse {
	resp := slotResponse{
		ID:              s.ID,
		Time:            s.TimeLabel,
		Status:          string(s.Status),
		PatientID:       s.PatientID,
		Motif:           s.Motive,
		ReservedAt:      s.ReservedAt,
		CancelledAt:     s.CancelledAt,
		MotifAnnulation: s.CancelReason,
	}
	if s.CancelledBy != nil && s.CancelledByType != nil {
		resp.AnnulePar = &cancelledByResponse{
			ID:   *s.CancelledBy,
			Type: string(*s.CancelledByType),
		}
	}
	return resp
}

func toSlotDayResponse(sd booking.SlotDay) slotDayResponse {
	slots := make([]slotResponse, 0, len(sd.Slots))
	for _, s := range sd.Slots {
		slots = append(slots, toSlotResponse(s))
	}
	return slotDayResponse{
		ID:       sd.ID,
		AgendaID: sd.AgendaID,
		Date:     sd.Day.Format(dayFormat),
		Slots:    slots,
	}
}

func toAppointmentResponses(list []booking.Appointment) []appointmentResponse {
	out := make([]appointmentResponse, 0, len(list))
	for _, ap := range list {
		out = append(out, appointmentResponse{
			SlotID:    ap.SlotID,
			SlotDayID: ap.SlotDayID,
			AgendaID:  ap.AgendaID,
			DoctorID:  ap.DoctorID,
			PatientID: ap.PatientID,
			Date:      ap.Day.Format(dayFormat),
			Time:      ap.TimeLabel,
			Motif:     ap.Motive,
		})
	}
	return out
}
