package booking

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type fixture struct {
	repo     *memRepo
	notifier *recordingNotifier
	svc      *Service
}

func newFixture() *fixture {
	repo := newMemRepo()
	notifier := &recordingNotifier{}
	svc := NewService(repo, nopLocker{}, notifier, zerolog.Nop())
	return &fixture{repo: repo, notifier: notifier, svc: svc}
}

// newBookedDay seeds a doctor, patient, agenda and generated slot day, then
// returns them alongside the id of a slot reserved by that patient.
func newBookedDay(t *testing.T, f *fixture) (doctorID, patientID uuid.UUID, sd *SlotDay, slot *TimeSlot) {
	t.Helper()
	ctx := context.Background()

	doctorID = f.repo.addDoctor()
	patientID = f.repo.addPatient()

	agenda, err := f.svc.GetOrCreateAgenda(ctx, doctorID, day("2026-09-14"))
	if err != nil {
		t.Fatalf("GetOrCreateAgenda: %v", err)
	}
	sd, _, err = f.svc.GenerateAndStore(ctx, agenda.ID, day("2026-09-14"), nil)
	if err != nil {
		t.Fatalf("GenerateAndStore: %v", err)
	}

	slot, err = f.svc.Book(ctx, sd.ID, RefByLabel("09:00"), patientID, "consultation")
	if err != nil {
		t.Fatalf("Book: %v", err)
	}
	return doctorID, patientID, sd, slot
}

func TestGetOrCreateAgendaIdempotent(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	doctorID := f.repo.addDoctor()

	first, err := f.svc.GetOrCreateAgenda(ctx, doctorID, day("2026-09-14"))
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	second, err := f.svc.GetOrCreateAgenda(ctx, doctorID, day("2026-09-14"))
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("expected the same agenda, got %s and %s", first.ID, second.ID)
	}
	if second.Status != AgendaActive {
		t.Errorf("status = %s, want %s", second.Status, AgendaActive)
	}
}

func TestGetOrCreateAgendaUnknownDoctor(t *testing.T) {
	f := newFixture()
	_, err := f.svc.GetOrCreateAgenda(context.Background(), uuid.New(), day("2026-09-14"))
	if !errors.Is(err, ErrDoctorNotFound) {
		t.Fatalf("err = %v, want ErrDoctorNotFound", err)
	}
}

func TestGenerateAndStoreBlockedSlots(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	doctorID := f.repo.addDoctor()
	agenda, _ := f.svc.GetOrCreateAgenda(ctx, doctorID, day("2026-09-14"))

	sd, created, err := f.svc.GenerateAndStore(ctx, agenda.ID, day("2026-09-14"), []string{"12:00", "12:30", "bogus"})
	if err != nil {
		t.Fatalf("GenerateAndStore: %v", err)
	}
	if !created {
		t.Error("expected created=true on first generation")
	}
	if len(sd.Slots) != 20 {
		t.Fatalf("slot count = %d, want 20", len(sd.Slots))
	}

	byLabel := make(map[string]SlotStatus, len(sd.Slots))
	for _, s := range sd.Slots {
		byLabel[s.TimeLabel] = s.Status
	}
	if byLabel["12:00"] != SlotUnavailable || byLabel["12:30"] != SlotUnavailable {
		t.Errorf("blocked labels not marked unavailable: %v %v", byLabel["12:00"], byLabel["12:30"])
	}
	if byLabel["08:00"] != SlotAvailable {
		t.Errorf("08:00 = %s, want available", byLabel["08:00"])
	}

	// Booking an unavailable slot must fail like a taken one.
	patientID := f.repo.addPatient()
	if _, err := f.svc.Book(ctx, sd.ID, RefByLabel("12:00"), patientID, ""); !errors.Is(err, ErrSlotUnavailable) {
		t.Errorf("booking blocked slot: err = %v, want ErrSlotUnavailable", err)
	}
}

func TestGenerateAndStoreOverwritesReservations(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	_, _, sd, slot := newBookedDay(t, f)

	// Re-templating the day discards the existing reservation. That is the
	// documented contract of the destructive path.
	regen, created, err := f.svc.GenerateAndStore(ctx, sd.AgendaID, sd.Day, nil)
	if err != nil {
		t.Fatalf("GenerateAndStore: %v", err)
	}
	if created {
		t.Error("expected created=false on overwrite")
	}
	if regen.ID != sd.ID {
		t.Errorf("slot day id changed on overwrite: %s -> %s", sd.ID, regen.ID)
	}
	for _, s := range regen.Slots {
		if s.Status != SlotAvailable || s.PatientID != nil {
			t.Errorf("slot %s not reset: status=%s patient=%v", s.TimeLabel, s.Status, s.PatientID)
		}
		if s.ID == slot.ID {
			t.Errorf("old slot id %s survived the overwrite", slot.ID)
		}
	}
}

func TestRetrieveOrCreateIdempotent(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	doctorID := f.repo.addDoctor()
	patientID := f.repo.addPatient()
	agenda, _ := f.svc.GetOrCreateAgenda(ctx, doctorID, day("2026-09-14"))

	first, err := f.svc.RetrieveOrCreate(ctx, agenda.ID, day("2026-09-14"))
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	if len(first.Slots) != 20 {
		t.Fatalf("slot count = %d, want 20", len(first.Slots))
	}

	if _, err := f.svc.Book(ctx, first.ID, RefByLabel("10:00"), patientID, ""); err != nil {
		t.Fatalf("Book: %v", err)
	}

	second, err := f.svc.RetrieveOrCreate(ctx, agenda.ID, day("2026-09-14"))
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("expected the same slot day, got %s and %s", first.ID, second.ID)
	}
	for _, s := range second.Slots {
		if s.TimeLabel == "10:00" && s.Status != SlotReserved {
			t.Errorf("reservation lost: 10:00 status = %s", s.Status)
		}
	}
}

func TestRetrieveOrCreateUnknownAgenda(t *testing.T) {
	f := newFixture()
	_, err := f.svc.RetrieveOrCreate(context.Background(), uuid.New(), day("2026-09-14"))
	if !errors.Is(err, ErrAgendaNotFound) {
		t.Fatalf("err = %v, want ErrAgendaNotFound", err)
	}
}

func TestBookConcurrentSingleWinner(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	doctorID := f.repo.addDoctor()
	agenda, _ := f.svc.GetOrCreateAgenda(ctx, doctorID, day("2026-09-14"))
	sd, _, err := f.svc.GenerateAndStore(ctx, agenda.ID, day("2026-09-14"), nil)
	if err != nil {
		t.Fatalf("GenerateAndStore: %v", err)
	}

	const bookers = 50
	patients := make([]uuid.UUID, bookers)
	for i := range patients {
		patients[i] = f.repo.addPatient()
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		won      int
		lost     int
		unexpect []error
	)
	start := make(chan struct{})
	for i := 0; i < bookers; i++ {
		wg.Add(1)
		go func(pid uuid.UUID) {
			defer wg.Done()
			<-start
			_, err := f.svc.Book(ctx, sd.ID, RefByLabel("08:30"), pid, "")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				won++
			case errors.Is(err, ErrSlotUnavailable):
				lost++
			default:
				unexpect = append(unexpect, err)
			}
		}(patients[i])
	}
	close(start)
	wg.Wait()

	if len(unexpect) > 0 {
		t.Fatalf("unexpected errors: %v", unexpect)
	}
	if won != 1 || lost != bookers-1 {
		t.Fatalf("winners = %d, losers = %d, want 1 and %d", won, lost, bookers-1)
	}

	slot, err := f.repo.GetSlot(ctx, sd.ID, RefByLabel("08:30"))
	if err != nil {
		t.Fatalf("GetSlot: %v", err)
	}
	if slot.Status != SlotReserved || slot.PatientID == nil {
		t.Errorf("slot after race: status=%s patient=%v", slot.Status, slot.PatientID)
	}

	booked, _ := f.notifier.counts()
	if booked != 1 {
		t.Errorf("booked notifications = %d, want 1", booked)
	}
}

func TestBookUnknownPatient(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	doctorID := f.repo.addDoctor()
	agenda, _ := f.svc.GetOrCreateAgenda(ctx, doctorID, day("2026-09-14"))
	sd, _, _ := f.svc.GenerateAndStore(ctx, agenda.ID, day("2026-09-14"), nil)

	if _, err := f.svc.Book(ctx, sd.ID, RefByLabel("08:00"), uuid.New(), ""); !errors.Is(err, ErrPatientNotFound) {
		t.Fatalf("err = %v, want ErrPatientNotFound", err)
	}
}

func TestBookEmptyRef(t *testing.T) {
	f := newFixture()
	if _, err := f.svc.Book(context.Background(), uuid.New(), SlotRef{}, uuid.New(), ""); !errors.Is(err, ErrSlotNotFound) {
		t.Fatalf("err = %v, want ErrSlotNotFound", err)
	}
}

func TestBookSurvivesNotifierFailure(t *testing.T) {
	f := newFixture()
	f.notifier.Fail = errors.New("stream unreachable")
	_, _, sd, _ := newBookedDay(t, f)

	slot, err := f.repo.GetSlot(context.Background(), sd.ID, RefByLabel("09:00"))
	if err != nil {
		t.Fatalf("GetSlot: %v", err)
	}
	if slot.Status != SlotReserved {
		t.Errorf("status = %s, want reserved despite notifier failure", slot.Status)
	}
}

func TestCancelBookSymmetry(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	_, patientID, sd, slot := newBookedDay(t, f)

	if slot.Status != SlotReserved || slot.PatientID == nil || *slot.PatientID != patientID {
		t.Fatalf("booked slot: status=%s patient=%v", slot.Status, slot.PatientID)
	}
	if slot.ReservedAt == nil {
		t.Error("ReservedAt not stamped on booking")
	}

	actor := Actor{ID: patientID, Type: ActorPatient}
	cancelled, err := f.svc.Cancel(ctx, sd.ID, RefByID(slot.ID), actor, "empêchement")
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if cancelled.Status != SlotAvailable {
		t.Errorf("status = %s, want available", cancelled.Status)
	}
	if cancelled.PatientID != nil || cancelled.ReservedAt != nil {
		t.Error("occupant fields not cleared on cancel")
	}
	if cancelled.CancelledAt == nil || cancelled.CancelReason == nil || *cancelled.CancelReason != "empêchement" {
		t.Error("cancellation metadata not stamped")
	}
	if cancelled.CancelledByType == nil || *cancelled.CancelledByType != ActorPatient {
		t.Error("cancelling actor not recorded")
	}

	// The slot is bookable again by someone else.
	other := f.repo.addPatient()
	rebooked, err := f.svc.Book(ctx, sd.ID, RefByID(slot.ID), other, "")
	if err != nil {
		t.Fatalf("rebook: %v", err)
	}
	if rebooked.CancelledAt != nil || rebooked.CancelReason != nil {
		t.Error("stale cancellation metadata survived the rebooking")
	}
}

func TestCancelTwice(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	_, patientID, sd, slot := newBookedDay(t, f)

	actor := Actor{ID: patientID, Type: ActorPatient}
	if _, err := f.svc.Cancel(ctx, sd.ID, RefByID(slot.ID), actor, ""); err != nil {
		t.Fatalf("first cancel: %v", err)
	}
	if _, err := f.svc.Cancel(ctx, sd.ID, RefByID(slot.ID), actor, ""); !errors.Is(err, ErrNotReserved) {
		t.Fatalf("second cancel: err = %v, want ErrNotReserved", err)
	}
}

func TestCancelAuthorization(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	doctorID, patientID, sd, slot := newBookedDay(t, f)

	otherPatient := f.repo.addPatient()
	otherDoctor := f.repo.addDoctor()

	cases := []struct {
		name    string
		actor   Actor
		wantErr error
	}{
		{"stranger patient", Actor{ID: otherPatient, Type: ActorPatient}, ErrUnauthorized},
		{"other doctor", Actor{ID: otherDoctor, Type: ActorDoctor}, ErrUnauthorized},
		{"unknown actor type", Actor{ID: patientID, Type: ActorType("bot")}, ErrUnauthorized},
		{"owning doctor", Actor{ID: doctorID, Type: ActorDoctor}, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Cancel(ctx, sd.ID, RefByID(slot.ID), tc.actor, "")
			if tc.wantErr == nil {
				if err != nil {
					t.Fatalf("Cancel: %v", err)
				}
				return
			}
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("err = %v, want %v", err, tc.wantErr)
			}
		})
	}

	// Admin override on a fresh reservation.
	if _, err := f.svc.Book(ctx, sd.ID, RefByID(slot.ID), patientID, ""); err != nil {
		t.Fatalf("rebook: %v", err)
	}
	admin := Actor{ID: uuid.New(), Type: ActorAdmin}
	if _, err := f.svc.Cancel(ctx, sd.ID, RefByID(slot.ID), admin, "urgence"); err != nil {
		t.Fatalf("admin cancel: %v", err)
	}
}

func TestCancelAvailableSlot(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	_, patientID, sd, _ := newBookedDay(t, f)

	actor := Actor{ID: patientID, Type: ActorPatient}
	if _, err := f.svc.Cancel(ctx, sd.ID, RefByLabel("16:00"), actor, ""); !errors.Is(err, ErrNotReserved) {
		t.Fatalf("err = %v, want ErrNotReserved", err)
	}
}

func TestFilterSlots(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	doctorID := f.repo.addDoctor()
	patientID := f.repo.addPatient()
	agenda, _ := f.svc.GetOrCreateAgenda(ctx, doctorID, day("2026-09-14"))
	sd, _, err := f.svc.GenerateAndStore(ctx, agenda.ID, day("2026-09-14"), []string{"12:00"})
	if err != nil {
		t.Fatalf("GenerateAndStore: %v", err)
	}

	for _, label := range []string{"09:30", "08:00", "14:00"} {
		if _, err := f.svc.Book(ctx, sd.ID, RefByLabel(label), patientID, ""); err != nil {
			t.Fatalf("Book %s: %v", label, err)
		}
	}

	reserved, err := f.svc.FilterSlots(ctx, agenda.ID, day("2026-09-14"), SlotReserved)
	if err != nil {
		t.Fatalf("FilterSlots: %v", err)
	}
	var labels []string
	for _, s := range reserved.Slots {
		if s.Status != SlotReserved {
			t.Errorf("filtered slot %s has status %s", s.TimeLabel, s.Status)
		}
		labels = append(labels, s.TimeLabel)
	}
	want := []string{"08:00", "09:30", "14:00"}
	if len(labels) != len(want) {
		t.Fatalf("labels = %v, want %v", labels, want)
	}
	for i := range want {
		if labels[i] != want[i] {
			t.Fatalf("labels = %v, want %v (order must follow the day)", labels, want)
		}
	}

	unavailable, err := f.svc.FilterSlots(ctx, agenda.ID, day("2026-09-14"), SlotUnavailable)
	if err != nil {
		t.Fatalf("FilterSlots: %v", err)
	}
	if len(unavailable.Slots) != 1 || unavailable.Slots[0].TimeLabel != "12:00" {
		t.Errorf("unavailable slots = %v", unavailable.Slots)
	}

	if _, err := f.svc.FilterSlots(ctx, agenda.ID, day("2026-09-15"), SlotReserved); !errors.Is(err, ErrSlotDayNotFound) {
		t.Errorf("missing day: err = %v, want ErrSlotDayNotFound", err)
	}
}

func TestDeleteSlotDay(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	_, _, sd, _ := newBookedDay(t, f)

	if err := f.svc.DeleteSlotDay(ctx, sd.AgendaID, sd.Day); err != nil {
		t.Fatalf("DeleteSlotDay: %v", err)
	}
	if _, err := f.svc.GetSlotDayByDate(ctx, sd.AgendaID, sd.Day); !errors.Is(err, ErrSlotDayNotFound) {
		t.Errorf("after delete: err = %v, want ErrSlotDayNotFound", err)
	}
	if err := f.svc.DeleteSlotDay(ctx, sd.AgendaID, sd.Day); !errors.Is(err, ErrSlotDayNotFound) {
		t.Errorf("second delete: err = %v, want ErrSlotDayNotFound", err)
	}
}

func TestAppointmentProjections(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	doctorID, patientID, _, slot := newBookedDay(t, f)

	byPatient, err := f.svc.ListAppointmentsByPatient(ctx, patientID, WindowAll, 0, 0)
	if err != nil {
		t.Fatalf("ListAppointmentsByPatient: %v", err)
	}
	if len(byPatient) != 1 || byPatient[0].SlotID != slot.ID || byPatient[0].TimeLabel != "09:00" {
		t.Fatalf("byPatient = %+v", byPatient)
	}
	if byPatient[0].DoctorID != doctorID {
		t.Errorf("DoctorID = %s, want %s", byPatient[0].DoctorID, doctorID)
	}

	byDoctor, err := f.svc.ListAppointmentsByDoctor(ctx, doctorID, WindowAll, 0, 0)
	if err != nil {
		t.Fatalf("ListAppointmentsByDoctor: %v", err)
	}
	if len(byDoctor) != 1 || byDoctor[0].PatientID != patientID {
		t.Fatalf("byDoctor = %+v", byDoctor)
	}

	if _, err := f.svc.ListAppointmentsByPatient(ctx, uuid.New(), WindowAll, 0, 0); !errors.Is(err, ErrPatientNotFound) {
		t.Errorf("unknown patient: err = %v, want ErrPatientNotFound", err)
	}
	if _, err := f.svc.ListAppointmentsByDoctor(ctx, uuid.New(), WindowAll, 0, 0); !errors.Is(err, ErrDoctorNotFound) {
		t.Errorf("unknown doctor: err = %v, want ErrDoctorNotFound", err)
	}
}

func TestDoctorStats(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	doctorID, patientID, sd, slot := newBookedDay(t, f)

	// One standing reservation plus one cancelled slot.
	if _, err := f.svc.Book(ctx, sd.ID, RefByLabel("11:00"), patientID, ""); err != nil {
		t.Fatalf("Book: %v", err)
	}
	actor := Actor{ID: patientID, Type: ActorPatient}
	if _, err := f.svc.Cancel(ctx, sd.ID, RefByID(slot.ID), actor, ""); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	stats, err := f.svc.DoctorStats(ctx, doctorID)
	if err != nil {
		t.Fatalf("DoctorStats: %v", err)
	}
	if stats.Reserved != 1 || stats.Cancelled != 1 || stats.Total != 2 {
		t.Errorf("stats = %+v, want 1 reserved, 1 cancelled, 2 total", stats)
	}

	if _, err := f.svc.DoctorStats(ctx, uuid.New()); !errors.Is(err, ErrDoctorNotFound) {
		t.Errorf("unknown doctor: err = %v, want ErrDoctorNotFound", err)
	}
}

func TestDeactivatePastAgendas(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	doctorID := f.repo.addDoctor()

	past, _ := f.svc.GetOrCreateAgenda(ctx, doctorID, day("2020-01-06"))
	future, _ := f.svc.GetOrCreateAgenda(ctx, doctorID, day("2099-01-06"))

	n, err := f.svc.DeactivatePastAgendas(ctx)
	if err != nil {
		t.Fatalf("DeactivatePastAgendas: %v", err)
	}
	if n != 1 {
		t.Errorf("deactivated = %d, want 1", n)
	}

	got, _ := f.svc.GetAgenda(ctx, past.ID)
	if got.Status != AgendaInactive {
		t.Errorf("past agenda status = %s, want inactive", got.Status)
	}
	got, _ = f.svc.GetAgenda(ctx, future.ID)
	if got.Status != AgendaActive {
		t.Errorf("future agenda status = %s, want active", got.Status)
	}
}

func TestClampPage(t *testing.T) {
	cases := []struct {
		limit, offset         int
		wantLimit, wantOffset int
	}{
		{0, 0, 20, 0},
		{-5, -3, 20, 0},
		{250, 10, 100, 10},
		{50, 5, 50, 5},
	}
	for _, tc := range cases {
		gotL, gotO := clampPage(tc.limit, tc.offset)
		if gotL != tc.wantLimit || gotO != tc.wantOffset {
			t.Errorf("clampPage(%d, %d) = (%d, %d), want (%d, %d)",
				tc.limit, tc.offset, gotL, gotO, tc.wantLimit, tc.wantOffset)
		}
	}
}
