package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, 5*time.Second, 5*time.Second)
}

func TestLoginSuccess(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/auth/login" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body["email"] != "a@b.c" || body["password"] != "hunter2" {
			t.Errorf("body = %v", body)
		}
		json.NewEncoder(w).Encode(AuthPayload{
			Email:           "a@b.c",
			AccessToken:     "tok-123",
			UserID:          "u-1",
			DailyTokenLimit: 50000,
		})
	})

	got, err := c.Login(context.Background(), "a@b.c", "hunter2")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if got.AccessToken != "tok-123" || got.UserID != "u-1" {
		t.Errorf("payload = %+v", got)
	}
}

func TestLoginRejected(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad credentials", http.StatusUnauthorized)
	})

	_, err := c.Login(context.Background(), "a@b.c", "wrong")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
	if Transport(err) {
		t.Error("401 must not classify as a transport failure")
	}
}

func TestRegisterConflict(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "taken", http.StatusConflict)
	})

	_, err := c.Register(context.Background(), "a@b.c", "pw")
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
}

func TestServerErrorIsRetryable(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	_, err := c.SearchPapers(context.Background(), "tok", "query", 5)
	var se *StatusError
	if !errors.As(err, &se) || se.Code != 500 {
		t.Fatalf("err = %v, want StatusError 500", err)
	}
	if !Retryable(err) {
		t.Error("500 should be retryable")
	}
	if Transport(err) {
		t.Error("500 is a response, not a transport failure")
	}
}

func TestConnectionRefusedIsTransport(t *testing.T) {
	// Point at a closed port.
	c := NewClient("http://127.0.0.1:1", time.Second, time.Second)
	_, err := c.Login(context.Background(), "a@b.c", "pw")
	if err == nil {
		t.Fatal("expected connection failure")
	}
	if !Transport(err) {
		t.Errorf("connection refusal should classify as transport: %v", err)
	}
	if !Retryable(err) {
		t.Errorf("connection refusal should be retryable: %v", err)
	}
}

func TestSearchPapers(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("auth header = %q", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"papers": []Paper{
				{Title: "Attention Is All You Need", Year: 2017},
				{Title: "BERT", Year: 2019},
			},
		})
	})

	papers, err := c.SearchPapers(context.Background(), "tok", "transformers", 2)
	if err != nil {
		t.Fatalf("SearchPapers failed: %v", err)
	}
	if len(papers) != 2 || papers[0].Title != "Attention Is All You Need" {
		t.Errorf("papers = %+v", papers)
	}
}

func TestChatCompletion(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"text": "synthesized answer"})
	})

	text, err := c.ChatCompletion(context.Background(), "tok", "summarize this")
	if err != nil {
		t.Fatalf("ChatCompletion failed: %v", err)
	}
	if text != "synthesized answer" {
		t.Errorf("text = %q", text)
	}
}

func TestHealth(t *testing.T) {
	healthy := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	if err := healthy.Health(context.Background()); err != nil {
		t.Errorf("Health = %v, want nil", err)
	}

	sick := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "degraded", http.StatusServiceUnavailable)
	})
	if err := sick.Health(context.Background()); err == nil {
		t.Error("expected health failure")
	}
}
