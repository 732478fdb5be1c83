package api

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/starford/focusguard/internal/alert"
	"github.com/starford/focusguard/internal/engine"
	"github.com/starford/focusguard/internal/feed"
	"github.com/starford/focusguard/internal/session"
	"github.com/starford/focusguard/internal/store"
	"github.com/starford/focusguard/internal/testutil"
	"github.com/starford/focusguard/internal/triage"
	"github.com/starford/focusguard/internal/views"
)

func newTestRouter(t *testing.T) (chi.Router, *store.DB) {
	t.Helper()
	db := testutil.TestDB(t)

	broker := feed.NewBroker(time.Millisecond)
	t.Cleanup(broker.Close)

	sess, err := session.New(db, broker, nil)
	if err != nil {
		t.Fatal(err)
	}
	eng := engine.New(db, db, sess, &alert.LogNotifier{}, nil, broker, slog.Default(), engine.Config{Workers: 1})
	if err := eng.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(eng.Stop)

	proj := views.New(db, db, broker, nil)
	if err := proj.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(proj.Stop)

	svc := triage.NewService(db, db, sess, eng, proj, broker, nil)
	return NewRouter(svc, false, "", broker), db
}

func doJSON(t *testing.T, r chi.Router, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return out
}

func TestIngestEvent_FocusOff(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/events", IngestEventRequest{
		PackageName: "com.chat", Title: "Alice", Clearable: true,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	resp := decode[IngestEventResponse](t, w)
	if resp.Decision != string(engine.DecisionIgnored) {
		t.Errorf("decision = %s, want ignored", resp.Decision)
	}
}

func TestIngestEvent_SuppressedDuringFocus(t *testing.T) {
	r, db := newTestRouter(t)

	w := doJSON(t, r, http.MethodPut, "/focus", FocusRequest{Active: true})
	if w.Code != http.StatusOK {
		t.Fatalf("set focus status = %d", w.Code)
	}

	w = doJSON(t, r, http.MethodPost, "/events", IngestEventRequest{
		PackageName: "com.chat", Title: "Alice", Clearable: true,
	})
	resp := decode[IngestEventResponse](t, w)
	if resp.Decision != string(engine.DecisionSuppressed) {
		t.Errorf("decision = %s, want suppressed", resp.Decision)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := db.GetSender("com.chat:Alice"); err == nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("suppressed event never persisted")
}

func TestIngestEvent_VIPAllowed(t *testing.T) {
	r, _ := newTestRouter(t)

	doJSON(t, r, http.MethodPut, "/focus", FocusRequest{Active: true})
	w := doJSON(t, r, http.MethodPut, "/senders/com.chat:Mom", CategorizeRequest{Category: "vip"})
	if w.Code != http.StatusOK {
		t.Fatalf("categorize status = %d: %s", w.Code, w.Body.String())
	}

	// The engine refreshes its snapshot from the feed; poll until it sees Mom.
	deadline := time.Now().Add(2 * time.Second)
	var resp IngestEventResponse
	for time.Now().Before(deadline) {
		w = doJSON(t, r, http.MethodPost, "/events", IngestEventRequest{
			PackageName: "com.chat", Title: "Mom", Clearable: true,
		})
		resp = decode[IngestEventResponse](t, w)
		if resp.Decision == string(engine.DecisionAllowedVIP) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Errorf("decision = %s, want allowed_vip", resp.Decision)
}

func TestIngestEvent_MissingPackage(t *testing.T) {
	r, _ := newTestRouter(t)
	w := doJSON(t, r, http.MethodPost, "/events", IngestEventRequest{Title: "Alice"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestCategorizeAndList(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(t, r, http.MethodPut, "/senders/com.sms:PROMO", CategorizeRequest{Category: "spam"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	item := decode[SenderItem](t, w)
	if item.SenderID != "com.sms:PROMO" || item.Category != "spam" {
		t.Errorf("item = %+v", item)
	}

	w = doJSON(t, r, http.MethodGet, "/senders", nil)
	list := decode[SenderListResponse](t, w)
	if len(list.Senders) != 1 {
		t.Errorf("senders = %d, want 1", len(list.Senders))
	}
}

func TestCategorize_EncodedKey(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(t, r, http.MethodPut, "/senders/com.chat:Dr.%20Smith", CategorizeRequest{Category: "primary"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	item := decode[SenderItem](t, w)
	if item.SenderID != "com.chat:Dr. Smith" {
		t.Errorf("sender_id = %q", item.SenderID)
	}
}

func TestCategorize_InvalidCategory(t *testing.T) {
	r, _ := newTestRouter(t)
	w := doJSON(t, r, http.MethodPut, "/senders/com.chat:X", CategorizeRequest{Category: "urgent"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestViewsAndNotifications(t *testing.T) {
	r, db := newTestRouter(t)
	now := time.Now()

	_, _ = db.AppendNotification("com.chat", "Alice", now)

	w := doJSON(t, r, http.MethodGet, "/views/unknown", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	w = doJSON(t, r, http.MethodGet, "/views/urgent", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad category status = %d, want 400", w.Code)
	}

	w = doJSON(t, r, http.MethodGet, "/notifications", nil)
	list := decode[NotificationListResponse](t, w)
	if len(list.Notifications) != 1 {
		t.Errorf("notifications = %d, want 1", len(list.Notifications))
	}

	w = doJSON(t, r, http.MethodDelete, "/notifications", nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("clear status = %d, want 204", w.Code)
	}
	w = doJSON(t, r, http.MethodGet, "/notifications", nil)
	list = decode[NotificationListResponse](t, w)
	if len(list.Notifications) != 0 {
		t.Errorf("notifications after clear = %d, want 0", len(list.Notifications))
	}
}

func TestFocusEndpoints(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(t, r, http.MethodGet, "/focus", nil)
	resp := decode[FocusResponse](t, w)
	if resp.Active {
		t.Error("focus should start off")
	}

	w = doJSON(t, r, http.MethodPut, "/focus", FocusRequest{Active: true})
	resp = decode[FocusResponse](t, w)
	if !resp.Active {
		t.Error("focus did not turn on")
	}
	if resp.Summary == "" {
		t.Error("summary missing")
	}

	w = doJSON(t, r, http.MethodGet, "/focus/metrics", nil)
	resp = decode[FocusResponse](t, w)
	if !resp.Active {
		t.Error("metrics alias disagrees")
	}
}

func TestMilestonesToggle(t *testing.T) {
	r, db := newTestRouter(t)

	w := doJSON(t, r, http.MethodPut, "/milestones", MilestonesRequest{Enabled: false})
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d", w.Code)
	}
	on, err := db.GetPrefBool(store.PrefMilestonesEnabled, true)
	if err != nil {
		t.Fatal(err)
	}
	if on {
		t.Error("toggle not persisted")
	}
}

func TestBannerEndpoints(t *testing.T) {
	r, db := newTestRouter(t)
	now := time.Now()

	w := doJSON(t, r, http.MethodGet, "/banner", nil)
	resp := decode[BannerResponse](t, w)
	if resp.Sender != nil {
		t.Fatalf("unexpected candidate: %+v", resp.Sender)
	}

	for i := 0; i < 3; i++ {
		if _, err := db.RecordMessage("com.chat:Stranger", now); err != nil {
			t.Fatal(err)
		}
	}
	w = doJSON(t, r, http.MethodGet, "/banner", nil)
	resp = decode[BannerResponse](t, w)
	if resp.Sender == nil || resp.Sender.SenderID != "com.chat:Stranger" {
		t.Fatalf("candidate = %+v", resp.Sender)
	}

	w = doJSON(t, r, http.MethodPost, "/banner/dismiss", DismissBannerRequest{SenderID: "com.chat:Stranger"})
	if w.Code != http.StatusNoContent {
		t.Fatalf("dismiss status = %d", w.Code)
	}
	w = doJSON(t, r, http.MethodGet, "/banner", nil)
	resp = decode[BannerResponse](t, w)
	if resp.Sender != nil {
		t.Errorf("dismissed sender surfaced again: %+v", resp.Sender)
	}
}

func TestAuthMiddleware(t *testing.T) {
	db := testutil.TestDB(t)
	sess, err := session.New(db, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	proj := views.New(db, db, nil, nil)
	if err := proj.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(proj.Stop)
	svc := triage.NewService(db, db, sess, nil, proj, nil, nil)
	r := NewRouter(svc, true, "secret", nil)

	req := httptest.NewRequest(http.MethodGet, "/senders", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no token status = %d, want 401", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/senders", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("bad token status = %d, want 401", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/senders", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("good token status = %d, want 200", w.Code)
	}
}
