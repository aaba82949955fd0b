// internal/api/client_test.go
package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClientWithPolicy(srv.URL, RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
	})
}

func TestSendMessageSingle(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat" {
			t.Errorf("expected POST /chat, got %s", r.URL.Path)
		}
		w.Write([]byte(`{"response":"hello there","provider":"deepseek","model":"deepseek-chat"}`))
	})

	result, err := c.SendMessage(context.Background(), ChatRequest{
		Content: "hi", Role: "user", ChatMode: "single", Provider: "deepseek",
	})
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if result.Group {
		t.Error("single payload decoded as group")
	}
	if result.Content != "hello there" {
		t.Errorf("content: got %q", result.Content)
	}
	if result.Provider != "deepseek" || result.Model != "deepseek-chat" {
		t.Errorf("provider/model: got %s/%s", result.Provider, result.Model)
	}
}

func TestSendMessageGroup(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"group_chat": true,
			"responses": [
				{"provider":"glm","ai_name":"GLM-4","content":"first"},
				{"provider":"deepseek","ai_name":"DeepSeek","content":"second"}
			]
		}`))
	})

	result, err := c.SendMessage(context.Background(), ChatRequest{
		Content: "hi", Role: "user", ChatMode: "group",
		GroupSettings: &GroupSettings{
			SelectedProviders: []SelectedProvider{{Provider: "glm"}, {Provider: "deepseek"}},
			ReplyStrategy:     "discussion",
		},
	})
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if !result.Group {
		t.Fatal("group payload not recognized")
	}
	if len(result.Responses) != 2 {
		t.Fatalf("expected 2 responses, got %d", len(result.Responses))
	}
	if result.Responses[0].Provider != "glm" || result.Responses[1].Provider != "deepseek" {
		t.Error("response order must follow the payload")
	}
	if result.Responses[0].Name != "GLM-4" {
		t.Errorf("ai_name should map to Name, got %q", result.Responses[0].Name)
	}
}

func TestSendMessageApplicationError(t *testing.T) {
	for _, key := range []string{"error", "detail"} {
		c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"` + key + `":"provider quota exceeded"}`))
		})

		_, err := c.SendMessage(context.Background(), ChatRequest{Content: "hi", Role: "user", ChatMode: "single"})
		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("key %q: expected *APIError, got %v", key, err)
		}
		if apiErr.Message != "provider quota exceeded" {
			t.Errorf("key %q: message %q", key, apiErr.Message)
		}
	}
}

func TestRetryOnTransientStatus(t *testing.T) {
	var calls int32
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"response":"finally"}`))
	})

	result, err := c.SendMessage(context.Background(), ChatRequest{Content: "hi", Role: "user", ChatMode: "single"})
	if err != nil {
		t.Fatalf("SendMessage should succeed after retries: %v", err)
	}
	if result.Content != "finally" {
		t.Errorf("content: got %q", result.Content)
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Errorf("expected 3 attempts, got %d", calls)
	}
}

func TestRetriesExhausted(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := c.SendMessage(context.Background(), ChatRequest{Content: "hi", Role: "user", ChatMode: "single"})
	if !errors.Is(err, ErrBadGateway) {
		t.Errorf("expected ErrBadGateway after exhaustion, got %v", err)
	}
}

func TestFetchRate(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/exchange-rate":
			w.Write([]byte(`{"success":true,"rate":7.23,"currency_pair":"USD/CNY","timestamp":1748779200}`))
		case "/exchange-rate/current":
			w.Write([]byte(`{"success":false,"rate":7.19,"currency_pair":"USD/CNY","message":"stale"}`))
		default:
			http.NotFound(w, r)
		}
	})

	rate, err := c.FetchRate(context.Background())
	if err != nil || rate != 7.23 {
		t.Errorf("FetchRate: got %v, %v", rate, err)
	}

	rate, err = c.FetchCachedRate(context.Background())
	if err != nil || rate != 7.19 {
		t.Errorf("FetchCachedRate: got %v, %v", rate, err)
	}
}

func TestFetchRateInvalid(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":false,"rate":0,"error":"upstream down"}`))
	})

	if _, err := c.FetchRate(context.Background()); err == nil {
		t.Error("zero rate must be rejected")
	}
}
