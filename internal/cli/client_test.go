package cli

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

// newTestServer поднимает сервер с одним обработчиком и клиент к нему.
func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func TestClient_ListWorkers(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/api/workers" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"data": []map[string]any{
				{"feature": "comments", "running": true, "state": "running", "processed": 4},
				{"feature": "broadcast", "running": false, "queue_remaining": 12},
			},
			"total": 2,
		})
	})

	statuses, err := client.ListWorkers()
	if err != nil {
		t.Fatalf("ListWorkers: %v", err)
	}
	if len(statuses) != 2 {
		t.Fatalf("len = %d, want 2", len(statuses))
	}
	if !statuses[0].Running || statuses[0].Processed != 4 {
		t.Errorf("statuses[0] = %+v", statuses[0])
	}
	if statuses[1].Extra["queue_remaining"] != float64(12) {
		t.Errorf("Extra = %v", statuses[1].Extra)
	}
	if statuses[0].Extra != nil {
		t.Errorf("общие поля не должны попадать в Extra: %v", statuses[0].Extra)
	}
}

func TestWorkerStatus_MarshalKeepsExtra(t *testing.T) {
	st := WorkerStatus{Feature: "stats", Running: true, Extra: map[string]any{"synced": 3}}

	data, err := json.Marshal(st)
	if err != nil {
		t.Fatal(err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatal(err)
	}
	if out["feature"] != "stats" || out["synced"] != float64(3) {
		t.Errorf("out = %v", out)
	}
}

func TestClient_StartWorker(t *testing.T) {
	var body map[string]any
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/comments/worker/start" {
			t.Errorf("path = %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&body)
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "comments worker started"})
	})

	resp, err := client.StartWorker("comments", StartWorkerRequest{TemplateID: 9})
	if err != nil {
		t.Fatalf("StartWorker: %v", err)
	}
	if resp.Message != "comments worker started" {
		t.Errorf("message = %q", resp.Message)
	}
	if body["template_id"] != float64(9) {
		t.Errorf("body = %v", body)
	}
	if _, ok := body["username"]; ok {
		t.Error("пустой username не должен отправляться")
	}
}

func TestClient_APIError(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"error":   "worker already running",
			"code":    "BAD_REQUEST",
		})
	})

	_, err := client.StartWorker("fave", StartWorkerRequest{})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.Status != http.StatusBadRequest || apiErr.Code != "BAD_REQUEST" {
		t.Errorf("apiErr = %+v", apiErr)
	}
	if err.Error() != "BAD_REQUEST: worker already running" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestClient_APIErrorWithoutBody(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.QueueStats("comments")
	if err == nil || err.Error() != "API error: HTTP 502" {
		t.Errorf("err = %v", err)
	}
}

func TestClient_ListQueuePassesFilter(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if r.URL.Path != "/api/fave/queue" || q.Get("status") != "failed" || q.Get("limit") != "20" {
			t.Errorf("unexpected request %s", r.URL)
		}
		if q.Has("offset") {
			t.Error("нулевой offset не должен передаваться")
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"data": []map[string]any{{"deviationid": "d1", "status": "failed"}},
		})
	})

	items, err := client.ListQueue("fave", ListOpts{Status: "failed", Limit: 20})
	if err != nil {
		t.Fatalf("ListQueue: %v", err)
	}
	if len(items) != 1 || items[0]["deviationid"] != "d1" {
		t.Errorf("items = %v", items)
	}
}

func TestClient_Counts(t *testing.T) {
	var paths []string
	var bodies []string
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		data, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(data))
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"message": "ok",
			"data":    map[string]any{"count": 5},
		})
	})

	n, err := client.RemoveFromQueue("broadcast", []string{"1", "2"})
	if err != nil || n != 5 {
		t.Fatalf("RemoveFromQueue = %d, %v", n, err)
	}
	if _, err := client.ClearQueue("comments", "failed"); err != nil {
		t.Fatal(err)
	}
	if _, err := client.RetryFailedBroadcast(); err != nil {
		t.Fatal(err)
	}

	want := []string{"/api/broadcast/queue/remove", "/api/comments/queue/clear", "/api/broadcast/queue/retry-failed"}
	for i, p := range want {
		if paths[i] != p {
			t.Errorf("paths[%d] = %s, want %s", i, paths[i], p)
		}
	}
	if bodies[0] != `{"keys":["1","2"]}` || bodies[1] != `{"status":"failed"}` || bodies[2] != "" {
		t.Errorf("bodies = %q", bodies)
	}
}

func TestClient_Templates(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/broadcast/templates":
			var req TemplateRequest
			json.NewDecoder(r.Body).Decode(&req)
			writeJSON(w, http.StatusCreated, map[string]any{
				"data": map[string]any{"message_id": 3, "title": req.Title, "body": req.Body, "is_active": true},
			})
		case r.Method == http.MethodDelete && r.URL.Path == "/api/broadcast/templates/3":
			writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "template 3 deleted"})
		case r.Method == http.MethodDelete:
			writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "error": "not found", "code": "NOT_FOUND"})
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	})

	tmpl, err := client.CreateTemplate("broadcast", TemplateRequest{Title: "hi", Body: "{Hi|Hey}!"})
	if err != nil {
		t.Fatalf("CreateTemplate: %v", err)
	}
	if tmpl.ID != 3 || tmpl.Body != "{Hi|Hey}!" || !tmpl.IsActive {
		t.Errorf("template = %+v", tmpl)
	}

	if err := client.DeleteTemplate("broadcast", 3); err != nil {
		t.Errorf("DeleteTemplate: %v", err)
	}
	var apiErr *APIError
	if err := client.DeleteTemplate("broadcast", 4); !errors.As(err, &apiErr) || apiErr.Status != http.StatusNotFound {
		t.Errorf("err = %v, want 404", err)
	}
}

func TestClient_EnqueueBroadcastOmitsEmptyRecipients(t *testing.T) {
	var body map[string]any
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&body)
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "added 0 recipients"})
	})

	if _, err := client.EnqueueBroadcast(7, nil); err != nil {
		t.Fatal(err)
	}
	if _, ok := body["recipients"]; ok || body["message_id"] != float64(7) {
		t.Errorf("body = %v", body)
	}
}
