package devserver

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/crypto/bcrypt"

	"github.com/example/slotsync/internal/domain"
	"github.com/example/slotsync/internal/testfixtures"
	"github.com/example/slotsync/internal/transport"
)

type envelope struct {
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newTestServer(t *testing.T, tokenHash string) (*httptest.Server, *Storage) {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "devserver_test.db")
	storage, err := OpenStorage(dsn)
	if err != nil {
		t.Fatalf("OpenStorage() error = %v", err)
	}
	t.Cleanup(func() { storage.Close() })

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	srv := NewServer(storage, NewHub(logger), logger, tokenHash)
	srv.now = testfixtures.ReferenceTime
	srv.newID = testfixtures.NewIDGenerator("srv").NextFunc()
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, storage
}

func postJSON(t *testing.T, url string, body any) envelope {
	t.Helper()
	return doJSON(t, http.MethodPost, url, body)
}

func doJSON(t *testing.T, method, url string, body any) envelope {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return env
}

func TestServerAddSlot(t *testing.T) {
	ts, _ := newTestServer(t, "")

	env := postJSON(t, ts.URL+"/api/slots", map[string]any{
		"employeeId": testfixtures.EmployeeID,
		"date":       "2025-03-05",
		"hour":       10,
		"minute":     0,
		"duration":   45,
		"type":       "AVAILABLE",
	})
	if env.Message != "Slot has been added." {
		t.Fatalf("message = %q, want success marker", env.Message)
	}
	var slot domain.Slot
	if err := json.Unmarshal(env.Data, &slot); err != nil {
		t.Fatalf("decode slot: %v", err)
	}
	want := time.Date(2025, time.March, 5, 10, 0, 0, 0, time.UTC)
	if !slot.StartTime.Equal(want) {
		t.Errorf("slot start = %v, want %v", slot.StartTime, want)
	}
	if slot.Recurring {
		t.Error("one-off slot should not be recurring")
	}
}

func TestServerAddSlotCollisionIsLogicalFailure(t *testing.T) {
	ts, _ := newTestServer(t, "")

	body := map[string]any{
		"employeeId": testfixtures.EmployeeID,
		"date":       "2025-03-05",
		"hour":       10,
		"minute":     0,
		"duration":   45,
		"type":       "AVAILABLE",
	}
	if env := postJSON(t, ts.URL+"/api/slots", body); env.Message != "Slot has been added." {
		t.Fatalf("first insert message = %q", env.Message)
	}
	env := postJSON(t, ts.URL+"/api/slots", body)
	if env.Message != "A slot already exists at this time." {
		t.Errorf("second insert message = %q, want the collision message", env.Message)
	}
}

func TestServerDeleteAndRestoreSlots(t *testing.T) {
	ts, _ := newTestServer(t, "")

	env := postJSON(t, ts.URL+"/api/slots", map[string]any{
		"employeeId": testfixtures.EmployeeID,
		"date":       "2025-03-05",
		"hour":       9,
		"minute":     30,
		"duration":   30,
		"type":       "BLOCKED",
	})
	var slot domain.Slot
	if err := json.Unmarshal(env.Data, &slot); err != nil {
		t.Fatalf("decode slot: %v", err)
	}

	env = doJSON(t, http.MethodDelete, ts.URL+"/api/slots", map[string]any{
		"employeeId": testfixtures.EmployeeID,
		"slotIds":    []string{slot.ID},
	})
	if env.Message != "Slots have been deleted." {
		t.Fatalf("delete message = %q", env.Message)
	}

	env = postJSON(t, ts.URL+"/api/slots/restore", map[string]any{
		"employeeId": testfixtures.EmployeeID,
		"slots":      []domain.Slot{slot},
	})
	if env.Message != "Slots have been restored." {
		t.Fatalf("restore message = %q", env.Message)
	}

	env = doJSON(t, http.MethodGet, ts.URL+"/api/slots?employeeId="+testfixtures.EmployeeID+"&start=2025-03-03&end=2025-03-09", nil)
	var listed []domain.Slot
	if err := json.Unmarshal(env.Data, &listed); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != slot.ID {
		t.Errorf("listed slots = %+v, want the restored slot", listed)
	}
}

func TestServerUpdateSlotTime(t *testing.T) {
	ts, _ := newTestServer(t, "")

	env := postJSON(t, ts.URL+"/api/slots", map[string]any{
		"employeeId": testfixtures.EmployeeID,
		"date":       "2025-03-05",
		"hour":       9,
		"minute":     0,
		"duration":   60,
		"type":       "AVAILABLE",
	})
	var slot domain.Slot
	if err := json.Unmarshal(env.Data, &slot); err != nil {
		t.Fatalf("decode slot: %v", err)
	}

	env = doJSON(t, http.MethodPatch, ts.URL+"/api/slots/"+slot.ID+"/time", map[string]any{
		"employeeId": testfixtures.EmployeeID,
		"slotId":     slot.ID,
		"hour":       14,
		"minute":     30,
	})
	if env.Message != "Slot time has been updated." {
		t.Fatalf("message = %q", env.Message)
	}
	var moved domain.Slot
	if err := json.Unmarshal(env.Data, &moved); err != nil {
		t.Fatalf("decode slot: %v", err)
	}
	want := time.Date(2025, time.March, 5, 14, 30, 0, 0, time.UTC)
	if !moved.StartTime.Equal(want) {
		t.Errorf("moved start = %v, want %v", moved.StartTime, want)
	}
}

func TestServerRecurringDayLifecycle(t *testing.T) {
	ts, _ := newTestServer(t, "")

	body := map[string]any{"employeeId": testfixtures.EmployeeID, "date": "2025-03-06"}
	if env := postJSON(t, ts.URL+"/api/days/recurring", body); env.Message != "Recurring day has been set." {
		t.Fatalf("set message = %q", env.Message)
	}
	if env := postJSON(t, ts.URL+"/api/days/recurring", body); env.Message != "Recurring day is already set." {
		t.Errorf("duplicate set message = %q", env.Message)
	}
	if env := doJSON(t, http.MethodDelete, ts.URL+"/api/days/recurring", body); env.Message != "Recurring day has been removed." {
		t.Errorf("unset message = %q", env.Message)
	}
	if env := doJSON(t, http.MethodDelete, ts.URL+"/api/days/recurring", body); env.Message != "Recurring day was not set." {
		t.Errorf("second unset message = %q", env.Message)
	}
}

func TestServerAuthentication(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("sekrit"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt hash: %v", err)
	}
	ts, _ := newTestServer(t, string(hash))

	resp, err := http.Get(ts.URL + "/api/slots?employeeId=" + testfixtures.EmployeeID + "&start=2025-03-03&end=2025-03-09")
	if err != nil {
		t.Fatalf("unauthenticated request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("unauthenticated status = %d, want 401", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/slots?employeeId="+testfixtures.EmployeeID+"&start=2025-03-03&end=2025-03-09", nil)
	req.Header.Set("Authorization", "Bearer sekrit")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("authenticated request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("authenticated status = %d, want 200", resp.StatusCode)
	}
}

func TestServerBroadcastsSlotCreation(t *testing.T) {
	ts, _ := newTestServer(t, "")

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/" + transport.ChannelSlots
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	defer conn.Close()

	postJSON(t, ts.URL+"/api/slots", map[string]any{
		"employeeId": testfixtures.EmployeeID,
		"date":       "2025-03-05",
		"hour":       11,
		"minute":     0,
		"duration":   30,
		"type":       "AVAILABLE",
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var event transport.PushEvent
	if err := conn.ReadJSON(&event); err != nil {
		t.Fatalf("read push event: %v", err)
	}
	if event.Action != transport.ActionCreate {
		t.Errorf("event action = %q, want create", event.Action)
	}
	var slot domain.Slot
	if err := json.Unmarshal(event.Data, &slot); err != nil {
		t.Fatalf("decode event payload: %v", err)
	}
	if slot.EmployeeID != testfixtures.EmployeeID {
		t.Errorf("event employee = %q, want fixture employee", slot.EmployeeID)
	}
}
