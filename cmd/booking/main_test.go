package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/example/facility-booking/internal/application"
	"github.com/example/facility-booking/internal/auth"
	"github.com/example/facility-booking/internal/config"
	"github.com/example/facility-booking/internal/testfixtures"
)

const testSecret = "main-test-secret"

type sqliteApp struct {
	t        *testing.T
	app      *app
	clock    *testfixtures.Clock
	notifier *testfixtures.RecordingNotifier
	issuer   *auth.TokenIssuer
	harness  *testfixtures.SQLiteHarness
}

func newSQLiteApp(t *testing.T) *sqliteApp {
	t.Helper()
	return newSQLiteAppOn(t, testfixtures.NewSQLiteHarness(t))
}

// newSQLiteAppOn wires an app over an existing harness. Apps sharing a harness behave like
// separate processes on one database: each gets its own in-process locker.
func newSQLiteAppOn(t *testing.T, harness *testfixtures.SQLiteHarness) *sqliteApp {
	t.Helper()

	clock := testfixtures.NewClock(time.Time{})
	notifier := &testfixtures.RecordingNotifier{}

	cfg := config.Config{
		TokenSecret:    testSecret,
		Policy:         application.DefaultPolicy(),
		ExpiryInterval: time.Minute,
	}
	wired, err := newApp(cfg, harness.Storage, outboundConfig{notifiers: application.Notifiers{notifier}}, clock.Now, testfixtures.DiscardLogger())
	if err != nil {
		t.Fatalf("newApp returned error: %v", err)
	}

	return &sqliteApp{
		t:        t,
		app:      wired,
		clock:    clock,
		notifier: notifier,
		issuer:   auth.NewTokenIssuer(testSecret, time.Hour, clock.Now),
		harness:  harness,
	}
}

func (s *sqliteApp) do(principal application.Principal, method, path string, body any) *httptest.ResponseRecorder {
	s.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			s.t.Fatalf("failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	token, err := s.issuer.Issue(principal)
	if err != nil {
		s.t.Fatalf("Issue returned error: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	rec := httptest.NewRecorder()
	s.app.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder, status int) T {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("expected status %d, got %d: %s", status, rec.Code, rec.Body.String())
	}
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("failed to decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestAppReservationLifecycleOverSQLite(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newSQLiteApp(t)

	if _, err := s.app.staff.AssignStaff(ctx, testfixtures.Admin, application.StaffMember{ID: "staff-3", Floor: "3rd floor"}); err != nil {
		t.Fatalf("AssignStaff returned error: %v", err)
	}

	type reservationBody struct {
		ID           string `json:"id"`
		Status       string `json:"status"`
		EffectiveEnd string `json:"effective_end"`
		Version      int64  `json:"version"`
	}

	created := decode[reservationBody](t, s.do(testfixtures.Student, http.MethodPost, "/reservations", map[string]any{
		"floor":        "3F",
		"room":         "301",
		"start":        "2025-04-01T13:00:00+09:00",
		"end":          "2025-04-01T14:00:00+09:00",
		"participants": []map[string]string{{"name": "Aiko Tanaka"}, {"name": "Ren Ito"}},
	}), http.StatusCreated)
	if created.Status != "pending" || created.Version != 1 {
		t.Fatalf("unexpected created reservation %+v", created)
	}

	rec := s.do(testfixtures.OtherStudent, http.MethodPost, "/reservations", map[string]any{
		"floor": "3",
		"room":  "301",
		"start": "2025-04-01T13:30:00+09:00",
		"end":   "2025-04-01T15:00:00+09:00",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected overlap to be rejected by storage, got %d: %s", rec.Code, rec.Body.String())
	}

	unread := decode[struct {
		Unread int `json:"unread"`
	}](t, s.do(testfixtures.FloorStaff, http.MethodGet, "/notifications/unread-count", nil), http.StatusOK)
	if unread.Unread != 1 {
		t.Fatalf("expected floor staff to be notified once, got %d", unread.Unread)
	}
	if sent := s.notifier.Sent(); len(sent) != 1 || sent[0].RecipientID != "staff-3" {
		t.Fatalf("expected notification forwarded to staff-3, got %+v", sent)
	}

	approved := decode[reservationBody](t, s.do(testfixtures.FloorStaff, http.MethodPost, "/reservations/"+created.ID+"/approve", nil), http.StatusOK)
	if approved.Status != "approved" || approved.Version != 2 {
		t.Fatalf("unexpected approved reservation %+v", approved)
	}

	s.clock.SetClock(13, 16)
	result, ran, err := s.app.worker.SweepOnce(ctx)
	if err != nil || !ran {
		t.Fatalf("SweepOnce returned ran=%v err=%v", ran, err)
	}
	if result.Expired != 1 {
		t.Fatalf("expected the unstarted reservation to expire, got %+v", result)
	}

	stored, err := s.harness.Reservations.GetReservation(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetReservation returned error: %v", err)
	}
	if stored.Status != "expired" || len(stored.Participants) != 2 {
		t.Fatalf("unexpected stored reservation %+v", stored)
	}

	owner, err := s.app.router.ListNotifications(ctx, application.ListNotificationsParams{Principal: testfixtures.Student})
	if err != nil {
		t.Fatalf("ListNotifications returned error: %v", err)
	}
	if len(owner) != 2 || owner[0].Kind != application.EventReservationExpired {
		t.Fatalf("expected approval and expiry notifications newest first, got %+v", owner)
	}
}

func TestNotificationAdapterMarkRead(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	harness := testfixtures.NewSQLiteHarness(t)
	adapter := newNotificationRepositoryAdapter(harness.Notifications)

	reservationID := "res-1"
	created := testfixtures.ReferenceTime()
	if err := adapter.CreateNotifications(ctx, []application.Notification{{
		ID:            "n-1",
		RecipientID:   "student-1",
		Kind:          application.EventReservationApproved,
		ReservationID: &reservationID,
		Floor:         "3",
		Message:       "approved",
		CreatedAt:     created,
	}}); err != nil {
		t.Fatalf("CreateNotifications returned error: %v", err)
	}

	first := created.Add(time.Minute)
	read, err := adapter.MarkRead(ctx, "n-1", first)
	if err != nil {
		t.Fatalf("MarkRead returned error: %v", err)
	}
	if !read.IsRead || read.ReadAt == nil || !read.ReadAt.Equal(first) || read.PayloadRef() != "reservation:res-1" {
		t.Fatalf("unexpected read notification %+v", read)
	}

	again, err := adapter.MarkRead(ctx, "n-1", first.Add(time.Hour))
	if err != nil {
		t.Fatalf("second MarkRead returned error: %v", err)
	}
	if !again.ReadAt.Equal(first) {
		t.Fatalf("expected first read time to be kept, got %v", again.ReadAt)
	}

	if _, err := adapter.MarkRead(ctx, "missing", first); err == nil {
		t.Fatalf("expected error for missing notification")
	}
}

func TestStaffDirectoryAdapter(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	harness := testfixtures.NewSQLiteHarness(t)
	repo := newStaffRepositoryAdapter(harness.Staff)
	directory := newStaffDirectoryAdapter(harness.Staff)

	for _, member := range []application.StaffMember{
		{ID: "staff-3", Role: application.RoleStaff, Floor: "3", UpdatedAt: testfixtures.ReferenceTime()},
		{ID: "staff-4", Role: application.RoleStaff, Floor: "4", UpdatedAt: testfixtures.ReferenceTime()},
	} {
		if _, err := repo.UpsertStaff(ctx, member); err != nil {
			t.Fatalf("UpsertStaff returned error: %v", err)
		}
	}

	onThree, err := directory.StaffOnFloor(ctx, "3")
	if err != nil {
		t.Fatalf("StaffOnFloor returned error: %v", err)
	}
	if len(onThree) != 1 || onThree[0].ID != "staff-3" || onThree[0].Role != application.RoleStaff {
		t.Fatalf("unexpected floor staff %+v", onThree)
	}

	none, err := directory.StaffOnFloor(ctx, "")
	if err != nil || none != nil {
		t.Fatalf("an empty floor must resolve to nobody, got %+v err=%v", none, err)
	}
}

// concurrently runs a and b at the same time and waits for both.
func concurrently(a, b func()) {
	start := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(2)
	for _, fn := range []func(){a, b} {
		go func() {
			defer wg.Done()
			<-start
			fn()
		}()
	}
	close(start)
	wg.Wait()
}

func TestAppsSharingStorageSerializeTransitions(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	harness := testfixtures.NewSQLiteHarness(t)
	first := newSQLiteAppOn(t, harness)
	second := newSQLiteAppOn(t, harness)

	for i := 0; i < 10; i++ {
		start := testfixtures.At(10+i/2, (i%2)*30)
		input := testfixtures.NewReservationFixture(
			testfixtures.WithOwner(testfixtures.Student.UserID),
			testfixtures.WithRoom("3", "301"),
			testfixtures.WithWindow(start, start.Add(30*time.Minute)),
		).Input()
		created, err := first.app.reservations.CreateReservation(ctx, application.CreateReservationParams{
			Principal: testfixtures.Student,
			Input:     input,
		})
		if err != nil {
			t.Fatalf("round %d: CreateReservation returned error: %v", i, err)
		}

		var approveErr, rejectErr error
		concurrently(
			func() { _, approveErr = first.app.reservations.Approve(ctx, testfixtures.FloorStaff, created.ID) },
			func() { _, rejectErr = second.app.reservations.Reject(ctx, testfixtures.FloorStaff, created.ID) },
		)
		if (approveErr == nil) == (rejectErr == nil) {
			t.Fatalf("round %d: expected exactly one success, got approve=%v reject=%v", i, approveErr, rejectErr)
		}
		loser := approveErr
		if loser == nil {
			loser = rejectErr
		}
		if !errors.Is(loser, application.ErrInvalidTransition) {
			t.Fatalf("round %d: expected ErrInvalidTransition, got %v", i, loser)
		}

		stored, err := harness.Reservations.GetReservation(ctx, created.ID)
		if err != nil {
			t.Fatalf("GetReservation returned error: %v", err)
		}
		if stored.Version != 2 {
			t.Fatalf("round %d: expected a single committed transition, got version %d", i, stored.Version)
		}

		owner, err := first.app.router.ListNotifications(ctx, application.ListNotificationsParams{Principal: testfixtures.Student})
		if err != nil {
			t.Fatalf("ListNotifications returned error: %v", err)
		}
		decisions := 0
		for _, n := range owner {
			if n.ReservationID == nil || *n.ReservationID != created.ID {
				continue
			}
			if n.Kind == application.EventReservationApproved || n.Kind == application.EventReservationRejected {
				decisions++
			}
		}
		if decisions != 1 {
			t.Fatalf("round %d: expected one decision notification for the owner, got %d", i, decisions)
		}

		var cancelA, cancelB error
		concurrently(
			func() { _, cancelA = first.app.reservations.Cancel(ctx, testfixtures.Student, created.ID) },
			func() { _, cancelB = second.app.reservations.Cancel(ctx, testfixtures.Student, created.ID) },
		)
		if stored.Status == "approved" {
			if (cancelA == nil) == (cancelB == nil) {
				t.Fatalf("round %d: expected exactly one cancel to win, got %v and %v", i, cancelA, cancelB)
			}
		} else if !errors.Is(cancelA, application.ErrAlreadyTerminal) || !errors.Is(cancelB, application.ErrAlreadyTerminal) {
			t.Fatalf("round %d: rejected reservations cannot be cancelled, got %v and %v", i, cancelA, cancelB)
		}
	}
}

func TestMarkAllReadRacingDispatchOverSQLite(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newSQLiteApp(t)
	student := testfixtures.Student
	event := application.LifecycleEvent{
		Kind:          application.EventReservationApproved,
		ReservationID: "res-1",
		OwnerID:       student.UserID,
		Floor:         "3",
		Room:          "301",
	}

	for i := 0; i < 20; i++ {
		if err := s.app.router.Dispatch(ctx, event); err != nil {
			t.Fatalf("Dispatch returned error: %v", err)
		}

		var updated int64
		var markErr, dispatchErr error
		concurrently(
			func() { updated, markErr = s.app.router.MarkAllRead(ctx, student) },
			func() { dispatchErr = s.app.router.Dispatch(ctx, event) },
		)
		if markErr != nil || dispatchErr != nil {
			t.Fatalf("round %d: MarkAllRead err=%v Dispatch err=%v", i, markErr, dispatchErr)
		}

		unread, err := s.app.router.UnreadCount(ctx, student)
		if err != nil {
			t.Fatalf("UnreadCount returned error: %v", err)
		}
		if unread != 0 && unread != 1 {
			t.Fatalf("round %d: expected at most the racing notification unread, got %d", i, unread)
		}
		if int(updated)+unread != 2 {
			t.Fatalf("round %d: marked %d and left %d unread out of 2 new notifications", i, updated, unread)
		}
		listed, err := s.app.router.ListNotifications(ctx, application.ListNotificationsParams{Principal: student, UnreadOnly: true})
		if err != nil {
			t.Fatalf("ListNotifications returned error: %v", err)
		}
		if len(listed) != unread {
			t.Fatalf("round %d: unread count %d disagrees with %d unread rows", i, unread, len(listed))
		}

		rest, err := s.app.router.MarkAllRead(ctx, student)
		if err != nil || int(rest) != unread {
			t.Fatalf("round %d: expected the leftover %d to be marked, got %d (err %v)", i, unread, rest, err)
		}
	}
}
