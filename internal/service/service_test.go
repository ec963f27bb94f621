package service_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"attendly/internal/api/api"
	"attendly/internal/model"
	"attendly/internal/repo"
	"attendly/internal/schedule"
	"attendly/internal/service"

	"github.com/wb-go/wbf/zlog"
	"golang.org/x/crypto/bcrypt"
)

type fakeRepo struct {
	regs    []*model.Registration
	nextAID int64
	failure error
}

func (f *fakeRepo) CountActive(_ context.Context, attendDate string) (int, error) {
	if f.failure != nil {
		return 0, f.failure
	}
	count := 0
	for _, r := range f.regs {
		if r.AttendDate == attendDate && !r.Canceled {
			count++
		}
	}
	return count, nil
}

func (f *fakeRepo) ApplyTx(ctx context.Context, reg *model.Registration, capacity int) (int64, error) {
	if f.failure != nil {
		return 0, f.failure
	}
	count, _ := f.CountActive(ctx, reg.AttendDate)
	if count >= capacity {
		return 0, repo.ErrSessionFull
	}
	for _, r := range f.regs {
		if r.StudentID == reg.StudentID && r.AttendDate == reg.AttendDate && !r.Canceled {
			return 0, repo.ErrDuplicateRegistration
		}
	}
	f.nextAID++
	stored := *reg
	stored.AID = f.nextAID
	stored.AppliedAt = time.Now()
	f.regs = append(f.regs, &stored)
	return stored.AID, nil
}

func (f *fakeRepo) FindActive(_ context.Context, sid, attendDate string) (*model.Registration, error) {
	if f.failure != nil {
		return nil, f.failure
	}
	for _, r := range f.regs {
		if r.StudentID == sid && r.AttendDate == attendDate && !r.Canceled {
			found := *r
			return &found, nil
		}
	}
	return nil, repo.ErrRegistrationNotFound
}

func (f *fakeRepo) CancelTx(_ context.Context, aid int64) error {
	if f.failure != nil {
		return f.failure
	}
	for _, r := range f.regs {
		if r.AID == aid && !r.Canceled {
			r.Canceled = true
			return nil
		}
	}
	return repo.ErrRegistrationNotFound
}

func (f *fakeRepo) MigrateUp(string) error   { return nil }
func (f *fakeRepo) MigrateDown(string) error { return nil }

type fakePublisher struct {
	published [][]byte
}

func (f *fakePublisher) Publish(message []byte) error {
	f.published = append(f.published, message)
	return nil
}

type envelope struct {
	Status string `json:"status"`
	Error  *struct {
		Code string `json:"code"`
		Desc string `json:"desc"`
	} `json:"error"`
	Data json.RawMessage `json:"data"`
}

func newTestServer(t *testing.T, sch schedule.Schedule) (http.Handler, *fakeRepo, *fakePublisher) {
	t.Helper()
	zlog.Init()

	fr := &fakeRepo{}
	fp := &fakePublisher{}
	svc := service.NewService(fr, sch, &zlog.Logger, fp)
	return api.NewRouters(&api.Routers{Service: svc}), fr, fp
}

// openSchedule has a session inside the 24h window so registration is
// accepting requests.
func openSchedule(capacity int) schedule.Schedule {
	return schedule.Schedule{
		Sessions: []time.Time{time.Now().Add(12 * time.Hour)},
		Capacity: capacity,
		Location: time.UTC,
	}
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return rec.Code, env
}

func errCode(t *testing.T, env envelope) string {
	t.Helper()
	if env.Error == nil {
		t.Fatal("expected an error in the response envelope")
	}
	return env.Error.Code
}

func TestApplyLookupCancelFlow(t *testing.T) {
	h, fr, fp := newTestServer(t, openSchedule(2))

	applyBody := map[string]string{
		"student_name": "Hong Gildong",
		"student_id":   "2023-00001",
		"pin":          "1234",
	}

	code, env := doJSON(t, h, http.MethodPost, "/v1/apply", applyBody)
	if code != http.StatusCreated {
		t.Fatalf("apply status = %d, body %+v", code, env)
	}
	var created struct {
		AID        int64  `json:"aid"`
		StudentID  string `json:"student_id"`
		AttendDate string `json:"attend_date"`
		Canceled   bool   `json:"canceled"`
	}
	if err := json.Unmarshal(env.Data, &created); err != nil {
		t.Fatalf("decode created registration: %v", err)
	}
	if created.StudentID != "2023-00001" || created.Canceled {
		t.Errorf("unexpected created registration: %+v", created)
	}

	// The stored secret must be a hash of the PIN, never the PIN.
	if fr.regs[0].SecretHash == "1234" {
		t.Error("PIN stored in clear text")
	}
	if bcrypt.CompareHashAndPassword([]byte(fr.regs[0].SecretHash), []byte("1234")) != nil {
		t.Error("stored hash does not verify against the PIN")
	}

	code, env = doJSON(t, h, http.MethodPost, "/v1/apply", applyBody)
	if code != http.StatusBadRequest || errCode(t, env) != "REGISTRATION_DUPLICATE" {
		t.Fatalf("second apply: status %d code %v", code, env.Error)
	}

	code, env = doJSON(t, h, http.MethodPost, "/v1/apply/lookup", map[string]string{
		"student_id": "2023-00001", "pin": "9999",
	})
	if code != http.StatusBadRequest || errCode(t, env) != "REGISTRATION_NOT_FOUND" {
		t.Fatalf("lookup with wrong PIN: status %d code %v", code, env.Error)
	}

	code, env = doJSON(t, h, http.MethodPost, "/v1/apply/lookup", map[string]string{
		"student_id": "2023-00001", "pin": "1234",
	})
	if code != http.StatusOK {
		t.Fatalf("lookup status = %d, body %+v", code, env)
	}

	code, env = doJSON(t, h, http.MethodPost, "/v1/apply/cancel", map[string]string{
		"student_id": "2023-00001", "pin": "1234",
	})
	if code != http.StatusOK {
		t.Fatalf("cancel status = %d, body %+v", code, env)
	}
	var canceled struct {
		Canceled bool `json:"canceled"`
	}
	if err := json.Unmarshal(env.Data, &canceled); err != nil {
		t.Fatalf("decode canceled registration: %v", err)
	}
	if !canceled.Canceled {
		t.Error("cancel response should report canceled = true")
	}
	if !fr.regs[0].Canceled {
		t.Error("record not marked canceled in store")
	}

	// Canceled is terminal: lookup and a second cancel both miss.
	code, env = doJSON(t, h, http.MethodPost, "/v1/apply/lookup", map[string]string{
		"student_id": "2023-00001", "pin": "1234",
	})
	if code != http.StatusBadRequest || errCode(t, env) != "REGISTRATION_NOT_FOUND" {
		t.Fatalf("lookup after cancel: status %d code %v", code, env.Error)
	}
	code, env = doJSON(t, h, http.MethodPost, "/v1/apply/cancel", map[string]string{
		"student_id": "2023-00001", "pin": "1234",
	})
	if code != http.StatusBadRequest || errCode(t, env) != "REGISTRATION_NOT_FOUND" {
		t.Fatalf("second cancel: status %d code %v", code, env.Error)
	}

	if len(fp.published) != 2 {
		t.Fatalf("published %d events, want 2 (applied, canceled)", len(fp.published))
	}
	var evt struct {
		Action string `json:"action"`
	}
	if err := json.Unmarshal(fp.published[1], &evt); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if evt.Action != "canceled" {
		t.Errorf("second event action = %q, want canceled", evt.Action)
	}
}

func TestApplyValidationCodes(t *testing.T) {
	h, fr, _ := newTestServer(t, openSchedule(2))

	cases := []struct {
		name     string
		body     map[string]string
		wantCode string
	}{
		{
			name:     "missing name",
			body:     map[string]string{"student_id": "2023-00001", "pin": "1234"},
			wantCode: "FIELD_REQUIRED",
		},
		{
			name:     "missing pin",
			body:     map[string]string{"student_name": "Hong Gildong", "student_id": "2023-00001"},
			wantCode: "FIELD_REQUIRED",
		},
		{
			name:     "short student id",
			body:     map[string]string{"student_name": "Hong Gildong", "student_id": "2023-001", "pin": "1234"},
			wantCode: "STUDENT_ID_BADFORMAT",
		},
		{
			name:     "short pin",
			body:     map[string]string{"student_name": "Hong Gildong", "student_id": "2023-00001", "pin": "12"},
			wantCode: "PIN_BADFORMAT",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, env := doJSON(t, h, http.MethodPost, "/v1/apply", tc.body)
			if code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", code)
			}
			if got := errCode(t, env); got != tc.wantCode {
				t.Errorf("error code = %q, want %q", got, tc.wantCode)
			}
		})
	}

	// Validation failures must never reach the store.
	if len(fr.regs) != 0 {
		t.Errorf("store touched by invalid requests: %d rows", len(fr.regs))
	}
}

func TestApplyCapacity(t *testing.T) {
	h, _, _ := newTestServer(t, openSchedule(1))

	code, env := doJSON(t, h, http.MethodPost, "/v1/apply", map[string]string{
		"student_name": "Hong Gildong", "student_id": "2023-00001", "pin": "1234",
	})
	if code != http.StatusCreated {
		t.Fatalf("first apply status = %d, body %+v", code, env)
	}

	code, env = doJSON(t, h, http.MethodPost, "/v1/apply", map[string]string{
		"student_name": "Kim Cheolsu", "student_id": "2023-00002", "pin": "5678",
	})
	if code != http.StatusBadRequest || errCode(t, env) != "SESSION_FULL" {
		t.Fatalf("over-capacity apply: status %d code %v", code, env.Error)
	}
}

func TestApplyOutsideWindow(t *testing.T) {
	farOut := schedule.Schedule{
		Sessions: []time.Time{time.Now().Add(72 * time.Hour)},
		Capacity: 2,
		Location: time.UTC,
	}
	h, _, _ := newTestServer(t, farOut)

	code, env := doJSON(t, h, http.MethodPost, "/v1/apply", map[string]string{
		"student_name": "Hong Gildong", "student_id": "2023-00001", "pin": "1234",
	})
	if code != http.StatusBadRequest || errCode(t, env) != "REGISTRATION_CLOSED" {
		t.Fatalf("apply before window: status %d code %v", code, env.Error)
	}

	none := schedule.Schedule{Capacity: 2, Location: time.UTC}
	h, _, _ = newTestServer(t, none)
	code, env = doJSON(t, h, http.MethodPost, "/v1/apply", map[string]string{
		"student_name": "Hong Gildong", "student_id": "2023-00001", "pin": "1234",
	})
	if code != http.StatusBadRequest || errCode(t, env) != "REGISTRATION_CLOSED" {
		t.Fatalf("apply with empty schedule: status %d code %v", code, env.Error)
	}
}

func TestGetSession(t *testing.T) {
	sch := openSchedule(2)
	h, _, _ := newTestServer(t, sch)

	code, env := doJSON(t, h, http.MethodGet, "/v1/session", nil)
	if code != http.StatusOK {
		t.Fatalf("session status = %d", code)
	}
	var sess struct {
		State     string `json:"state"`
		Capacity  int    `json:"capacity"`
		Active    int    `json:"active"`
		Remaining int    `json:"remaining"`
	}
	if err := json.Unmarshal(env.Data, &sess); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	if sess.State != "open" || sess.Capacity != 2 || sess.Remaining != 2 {
		t.Errorf("unexpected open session: %+v", sess)
	}

	doJSON(t, h, http.MethodPost, "/v1/apply", map[string]string{
		"student_name": "Hong Gildong", "student_id": "2023-00001", "pin": "1234",
	})

	_, env = doJSON(t, h, http.MethodGet, "/v1/session", nil)
	if err := json.Unmarshal(env.Data, &sess); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	if sess.Active != 1 || sess.Remaining != 1 {
		t.Errorf("after one apply: %+v", sess)
	}
}

func TestStoreFailureIsGenericError(t *testing.T) {
	h, fr, _ := newTestServer(t, openSchedule(2))
	fr.failure = context.DeadlineExceeded

	code, env := doJSON(t, h, http.MethodPost, "/v1/apply", map[string]string{
		"student_name": "Hong Gildong", "student_id": "2023-00001", "pin": "1234",
	})
	if code != http.StatusInternalServerError || errCode(t, env) != "SERVICE_UNAVAILABLE" {
		t.Fatalf("store failure: status %d code %v", code, env.Error)
	}
}
