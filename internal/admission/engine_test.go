package admission

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"AttendGate/internal/model"
	apperrors "AttendGate/pkg/errors"
)

type harness struct {
	engine   *Engine
	profiles *fakeProfiles
	records  *memRecords
	office   *staticOffice
	notifier *recordingNotifier
	clock    *fakeClock
}

func at(hour, minute int) time.Time {
	return time.Date(2024, 3, 4, hour, minute, 0, 0, time.UTC)
}

func newHarness() *harness {
	h := &harness{
		profiles: &fakeProfiles{profiles: map[string]*model.EnrolledProfile{
			"u-1": profileOf("u-1", unitVector(3), unitVector(0)),
			"u-2": profileOf("u-2", unitVector(0)),
		}},
		records: &memRecords{},
		office: &staticOffice{cfg: model.OfficeConfig{
			Location:            officeLocation,
			AllowedRadiusMeters: 10,
			WifiAllowlist:       []string{"Office-5G", "Office-2G"},
			WorkingHours:        model.WorkingHours{Start: "09:00", End: "18:00"},
		}},
		notifier: &recordingNotifier{},
		clock:    &fakeClock{now: at(8, 30)},
	}
	h.engine = NewEngine(Deps{
		Profiles: h.profiles,
		Records:  h.records,
		Office:   h.office,
		Notifier: h.notifier,
		Clock:    h.clock,
		IDs:      &seqIDs{},
	}, Options{Location: time.UTC})
	return h
}

// validAttempt 与 u-1 的第二个模板距离 0.05，距离办公室 5 米
func validAttempt(direction model.Direction) model.AttendanceAttempt {
	emb := unitVector(0)
	emb[1] = 0.05
	return model.AttendanceAttempt{
		UserID:    "u-1",
		Embedding: emb,
		Location:  offsetNorth(officeLocation, 5),
		Network:   model.NetworkInfo{SSID: "Office-5G", BSSID: "aa:bb:cc:dd:ee:ff"},
		Direction: direction,
	}
}

func TestAdmitSuccessfulCheckIn(t *testing.T) {
	h := newHarness()

	out, err := h.engine.Admit(context.Background(), "u-1", validAttempt(model.DirectionCheckIn))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.IsAdmitted() {
		t.Fatalf("expected admitted, got %s %s", out.Reason.Code, out.Message())
	}
	if out.Admission.Status != model.AttendanceStatusPresent {
		t.Fatalf("expected present, got %s", out.Admission.Status)
	}
	if out.Admission.AttendanceID == "" {
		t.Fatal("expected attendance id")
	}
	if !out.Admission.Time.Equal(at(8, 30)) {
		t.Fatalf("unexpected admission time %v", out.Admission.Time)
	}

	recs := h.records.all()
	if len(recs) != 1 {
		t.Fatalf("expected one record, got %d", len(recs))
	}
	if recs[0].VerificationMethod != "face+geofence+wifi" {
		t.Fatalf("unexpected verification method %q", recs[0].VerificationMethod)
	}
	if recs[0].NetworkSnapshot.Data().SSID != "Office-5G" {
		t.Fatal("network snapshot not stored")
	}
	if h.notifier.count() != 1 || h.notifier.events[0].Type != model.EventTypeCheckIn {
		t.Fatalf("expected one check-in event, got %+v", h.notifier.events)
	}
}

func TestAdmitRejections(t *testing.T) {
	tests := []struct {
		name   string
		caller string
		mutate func(*harness, *model.AttendanceAttempt)
		want   apperrors.Definition
	}{
		{
			name:   "identity mismatch",
			caller: "u-2",
			want:   apperrors.Unauthorized,
		},
		{
			name:   "missing identity",
			caller: "",
			want:   apperrors.Unauthorized,
		},
		{
			name:   "short embedding",
			caller: "u-1",
			mutate: func(_ *harness, a *model.AttendanceAttempt) { a.Embedding = a.Embedding[:10] },
			want:   apperrors.InvalidRequest,
		},
		{
			name:   "unknown direction",
			caller: "u-1",
			mutate: func(_ *harness, a *model.AttendanceAttempt) { a.Direction = "lunch" },
			want:   apperrors.InvalidRequest,
		},
		{
			name:   "latitude out of range",
			caller: "u-1",
			mutate: func(_ *harness, a *model.AttendanceAttempt) { a.Location.Lat = 123 },
			want:   apperrors.InvalidRequest,
		},
		{
			name:   "no profile",
			caller: "u-9",
			mutate: func(_ *harness, a *model.AttendanceAttempt) { a.UserID = "u-9" },
			want:   apperrors.NoFaceProfile,
		},
		{
			name:   "empty profile",
			caller: "u-3",
			mutate: func(h *harness, a *model.AttendanceAttempt) {
				h.profiles.profiles["u-3"] = profileOf("u-3")
				a.UserID = "u-3"
			},
			want: apperrors.NoFaceProfile,
		},
		{
			name:   "face mismatch",
			caller: "u-1",
			mutate: func(_ *harness, a *model.AttendanceAttempt) { a.Embedding = unitVector(7) },
			want:   apperrors.FaceMismatch,
		},
		{
			name:   "outside geofence",
			caller: "u-1",
			mutate: func(_ *harness, a *model.AttendanceAttempt) { a.Location = offsetNorth(officeLocation, 50) },
			want:   apperrors.LocationInvalid,
		},
		{
			name:   "unknown network",
			caller: "u-1",
			mutate: func(_ *harness, a *model.AttendanceAttempt) { a.Network.SSID = "Cafe" },
			want:   apperrors.WifiInvalid,
		},
		{
			name:   "check-out without check-in",
			caller: "u-1",
			mutate: func(_ *harness, a *model.AttendanceAttempt) { a.Direction = model.DirectionCheckOut },
			want:   apperrors.NoActiveCheckin,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			attempt := validAttempt(model.DirectionCheckIn)
			if tt.mutate != nil {
				tt.mutate(h, &attempt)
			}

			out, err := h.engine.Admit(context.Background(), tt.caller, attempt)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if out.IsAdmitted() {
				t.Fatal("expected rejection")
			}
			if out.Reason.Code != tt.want.Code {
				t.Fatalf("expected %s, got %s (%s)", tt.want.Code, out.Reason.Code, out.Message())
			}
			if len(h.records.all()) != 0 {
				t.Fatal("rejected attempt must not persist a record")
			}
			if h.notifier.count() != 0 {
				t.Fatal("rejected attempt must not notify")
			}
		})
	}
}

func TestAdmitCheckOrderFailsFast(t *testing.T) {
	h := newHarness()
	attempt := validAttempt(model.DirectionCheckIn)
	attempt.Embedding = unitVector(7)
	attempt.Location = offsetNorth(officeLocation, 500)
	attempt.Network.SSID = "Cafe"

	out, err := h.engine.Admit(context.Background(), "u-1", attempt)
	if err != nil {
		t.Fatal(err)
	}
	if out.Reason.Code != apperrors.FaceMismatch.Code {
		t.Fatalf("face check must run first, got %s", out.Reason.Code)
	}

	attempt.Embedding = validAttempt(model.DirectionCheckIn).Embedding
	out, _ = h.engine.Admit(context.Background(), "u-1", attempt)
	if out.Reason.Code != apperrors.LocationInvalid.Code {
		t.Fatalf("geofence must run before network, got %s", out.Reason.Code)
	}
}

func TestAdmitLocationMessageCarriesDistance(t *testing.T) {
	h := newHarness()
	attempt := validAttempt(model.DirectionCheckIn)
	attempt.Location = offsetNorth(officeLocation, 250)

	out, err := h.engine.Admit(context.Background(), "u-1", attempt)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.Message(), "250.0m") {
		t.Fatalf("expected distance in message, got %q", out.Message())
	}
}

func TestAdmitEmptyAllowlistSkipsNetworkCheck(t *testing.T) {
	h := newHarness()
	h.office.cfg.WifiAllowlist = nil

	attempt := validAttempt(model.DirectionCheckIn)
	attempt.Network = model.NetworkInfo{}

	out, err := h.engine.Admit(context.Background(), "u-1", attempt)
	if err != nil {
		t.Fatal(err)
	}
	if !out.IsAdmitted() {
		t.Fatalf("expected admitted, got %s", out.Reason.Code)
	}
	if got := h.records.all()[0].VerificationMethod; got != "face+geofence" {
		t.Fatalf("unexpected verification method %q", got)
	}
}

func TestAdmitGeofenceBoundary(t *testing.T) {
	h := newHarness()
	h.office.cfg.WifiAllowlist = nil

	attempt := validAttempt(model.DirectionCheckIn)
	attempt.Location = officeLocation
	if d := Haversine(attempt.Location, officeLocation); d != 0 {
		t.Fatalf("expected zero distance, got %v", d)
	}
	h.office.cfg.AllowedRadiusMeters = 0.001
	out, _ := h.engine.Admit(context.Background(), "u-1", attempt)
	if !out.IsAdmitted() {
		t.Fatalf("office coordinates must pass any positive radius, got %s", out.Reason.Code)
	}

	// 半径恰好等于距离时放行，略小则拒绝
	h = newHarness()
	attempt.Location = offsetNorth(officeLocation, 8)
	d := Haversine(attempt.Location, officeLocation)

	h.office.cfg.AllowedRadiusMeters = d
	out, _ = h.engine.Admit(context.Background(), "u-1", attempt)
	if !out.IsAdmitted() {
		t.Fatalf("distance equal to radius must pass, got %s", out.Reason.Code)
	}

	h = newHarness()
	h.office.cfg.AllowedRadiusMeters = d - 1e-6
	out, _ = h.engine.Admit(context.Background(), "u-1", attempt)
	if out.Reason.Code != apperrors.LocationInvalid.Code {
		t.Fatalf("expected LOCATION_INVALID, got %q", out.Reason.Code)
	}
}

func TestAdmitLateCheckIn(t *testing.T) {
	h := newHarness()
	h.clock.Set(at(9, 1))

	out, err := h.engine.Admit(context.Background(), "u-1", validAttempt(model.DirectionCheckIn))
	if err != nil {
		t.Fatal(err)
	}
	if out.Admission.Status != model.AttendanceStatusLate {
		t.Fatalf("expected late, got %s", out.Admission.Status)
	}
}

func TestAdmitCheckInExactlyAtStartIsPresent(t *testing.T) {
	h := newHarness()
	h.clock.Set(at(9, 0))

	out, err := h.engine.Admit(context.Background(), "u-1", validAttempt(model.DirectionCheckIn))
	if err != nil {
		t.Fatal(err)
	}
	if out.Admission.Status != model.AttendanceStatusPresent {
		t.Fatalf("expected present, got %s", out.Admission.Status)
	}
}

func TestAdmitCheckOutStatus(t *testing.T) {
	tests := []struct {
		name        string
		checkIn     time.Time
		checkOut    time.Time
		wantStatus  model.AttendanceStatus
		wantMinutes int
	}{
		{name: "full day keeps present", checkIn: at(8, 30), checkOut: at(17, 0), wantStatus: model.AttendanceStatusPresent, wantMinutes: 510},
		{name: "short day is early out", checkIn: at(8, 30), checkOut: at(12, 0), wantStatus: model.AttendanceStatusEarlyOut, wantMinutes: 210},
		{name: "late stays late", checkIn: at(10, 0), checkOut: at(12, 0), wantStatus: model.AttendanceStatusLate, wantMinutes: 120},
		{name: "exactly full day", checkIn: at(8, 0), checkOut: at(16, 0), wantStatus: model.AttendanceStatusPresent, wantMinutes: 480},
		{name: "minutes are floored", checkIn: at(8, 0), checkOut: at(8, 0).Add(90 * time.Second), wantStatus: model.AttendanceStatusEarlyOut, wantMinutes: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			h.clock.Set(tt.checkIn)
			in, err := h.engine.Admit(context.Background(), "u-1", validAttempt(model.DirectionCheckIn))
			if err != nil || !in.IsAdmitted() {
				t.Fatalf("check-in failed: %v %s", err, in.Reason.Code)
			}

			h.clock.Set(tt.checkOut)
			out, err := h.engine.Admit(context.Background(), "u-1", validAttempt(model.DirectionCheckOut))
			if err != nil {
				t.Fatal(err)
			}
			if !out.IsAdmitted() {
				t.Fatalf("expected admitted check-out, got %s", out.Reason.Code)
			}
			if out.Admission.AttendanceID != in.Admission.AttendanceID {
				t.Fatal("check-out must complete the open record")
			}
			if out.Admission.Status != tt.wantStatus {
				t.Fatalf("expected %s, got %s", tt.wantStatus, out.Admission.Status)
			}

			rec := h.records.all()[0]
			if rec.TotalMinutes != tt.wantMinutes {
				t.Fatalf("expected %d minutes, got %d", tt.wantMinutes, rec.TotalMinutes)
			}
			if rec.CheckOutTime == nil || rec.CheckOutTime.Before(rec.CheckInTime) {
				t.Fatal("check-out time must be set and not before check-in")
			}
		})
	}
}

func TestAdmitDuplicateCheckIn(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	first, _ := h.engine.Admit(ctx, "u-1", validAttempt(model.DirectionCheckIn))
	if !first.IsAdmitted() {
		t.Fatalf("first check-in should pass, got %s", first.Reason.Code)
	}
	second, err := h.engine.Admit(ctx, "u-1", validAttempt(model.DirectionCheckIn))
	if err != nil {
		t.Fatal(err)
	}
	if second.Reason.Code != apperrors.AlreadyCheckedIn.Code {
		t.Fatalf("expected ALREADY_CHECKED_IN, got %s", second.Reason.Code)
	}
	if n := h.records.openCount("u-1"); n != 1 {
		t.Fatalf("expected one open record, got %d", n)
	}
}

func TestAdmitStorageBackstop(t *testing.T) {
	h := newHarness()
	h.records.skipFind = true

	// 预置一条未签退记录，查询被跳过，只能依赖写入时的唯一约束
	h.records.records = append(h.records.records, &model.AttendanceRecord{ID: 99, UserID: "u-1"})

	out, err := h.engine.Admit(context.Background(), "u-1", validAttempt(model.DirectionCheckIn))
	if err != nil {
		t.Fatal(err)
	}
	if out.Reason.Code != apperrors.AlreadyCheckedIn.Code {
		t.Fatalf("expected ALREADY_CHECKED_IN from storage constraint, got %s", out.Reason.Code)
	}
}

func TestAdmitInfrastructureErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*harness)
	}{
		{name: "profile store down", mutate: func(h *harness) { h.profiles.err = errStoreDown }},
		{name: "office config down", mutate: func(h *harness) { h.office.err = errStoreDown }},
		{name: "record store down", mutate: func(h *harness) { h.records.createErr = errStoreDown }},
		{name: "corrupt working hours", mutate: func(h *harness) { h.office.cfg.WorkingHours.Start = "nine" }},
		{name: "corrupt template", mutate: func(h *harness) {
			h.profiles.profiles["u-1"] = profileOf("u-1", []float64{1, 2, 3})
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			tt.mutate(h)

			_, err := h.engine.Admit(context.Background(), "u-1", validAttempt(model.DirectionCheckIn))
			if err == nil {
				t.Fatal("expected infrastructure error")
			}
			if h.notifier.count() != 0 {
				t.Fatal("failed admission must not notify")
			}
		})
	}
}

func TestAdmitNotifyFailureDoesNotRollBack(t *testing.T) {
	h := newHarness()
	h.notifier.err = errors.New("broker down")

	out, err := h.engine.Admit(context.Background(), "u-1", validAttempt(model.DirectionCheckIn))
	if err != nil {
		t.Fatalf("notify failure must not surface: %v", err)
	}
	if !out.IsAdmitted() {
		t.Fatalf("expected admitted, got %s", out.Reason.Code)
	}
	if h.records.openCount("u-1") != 1 {
		t.Fatal("record must survive notify failure")
	}
}

func TestAdmitConcurrentCheckInsSingleOpenRecord(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	const workers = 16
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted int
		already  int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := h.engine.Admit(ctx, "u-1", validAttempt(model.DirectionCheckIn))
			if err != nil {
				t.Error(err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			switch {
			case out.IsAdmitted():
				admitted++
			case out.Reason.Code == apperrors.AlreadyCheckedIn.Code:
				already++
			}
		}()
	}
	wg.Wait()

	if admitted != 1 || already != workers-1 {
		t.Fatalf("expected 1 admitted and %d rejected, got %d and %d", workers-1, admitted, already)
	}
	if n := h.records.openCount("u-1"); n != 1 {
		t.Fatalf("expected exactly one open record, got %d", n)
	}
}

func TestAdmitSequenceKeepsSingleOpenRecord(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	directions := []model.Direction{
		model.DirectionCheckIn, model.DirectionCheckIn, model.DirectionCheckOut,
		model.DirectionCheckOut, model.DirectionCheckIn, model.DirectionCheckOut, model.DirectionCheckIn,
	}
	for i, d := range directions {
		h.clock.Set(at(8, 0).Add(time.Duration(i) * time.Hour))
		if _, err := h.engine.Admit(ctx, "u-1", validAttempt(d)); err != nil {
			t.Fatal(err)
		}
		if n := h.records.openCount("u-1"); n > 1 {
			t.Fatalf("step %d: %d open records", i, n)
		}
	}
	if got := len(h.records.all()); got != 3 {
		t.Fatalf("expected 3 records, got %d", got)
	}
}
