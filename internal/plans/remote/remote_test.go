package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"lifeplan/internal/core"
	"lifeplan/internal/plans"
)

type fakeBackend struct {
	t        *testing.T
	lastAuth string
	lastBody []byte
}

func (f *fakeBackend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/token", func(w http.ResponseWriter, r *http.Request) {
		var creds Credentials
		_ = json.NewDecoder(r.Body).Decode(&creds)
		if creds.Password != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message":"bad credentials"}`))
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"tok-1","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("POST /auth/register", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("POST /auth/password-reset", func(w http.ResponseWriter, r *http.Request) {
		f.lastBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusAccepted)
	})
	mux.HandleFunc("GET /plans", func(w http.ResponseWriter, r *http.Request) {
		f.lastAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`[{"id":"p1","name":"Retirement","term":10,"version":3}]`))
	})
	mux.HandleFunc("GET /plans/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.lastAuth = r.Header.Get("Authorization")
		if r.PathValue("id") != "p1" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"no such plan"}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":"p1","name":"Retirement","term":1,"version":3,"items":[
			{"category":"income","name":"Salary","value":1000,"date":"2024-01-01","meta":1000}]}`))
	})
	mux.HandleFunc("PATCH /plans/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.lastBody, _ = io.ReadAll(r.Body)
		_, _ = w.Write([]byte(`{"id":"p1","name":"Retirement","term":1,"version":4,"items":[]}`))
	})
	mux.HandleFunc("GET /plans/{id}/export", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("format") != "pdf" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.7 fake"))
	})
	mux.HandleFunc("GET /boom", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	return mux
}

func newTestClient(t *testing.T, opts ...Option) (*Client, *fakeBackend) {
	t.Helper()
	fb := &fakeBackend{t: t}
	srv := httptest.NewServer(fb.handler())
	t.Cleanup(srv.Close)
	c, err := New(srv.URL+"/", append([]Option{WithHTTPClient(srv.Client())}, opts...)...)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c, fb
}

func TestLoginAttachesBearerToken(t *testing.T) {
	ctx := context.Background()
	c, fb := newTestClient(t)

	if _, err := c.ListPlans(ctx); !errors.Is(err, ErrNoToken) {
		t.Fatalf("expected ErrNoToken before login, got %v", err)
	}

	if _, err := c.Login(ctx, Credentials{Email: "a@b.c", Password: "wrong"}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}

	tok, err := c.Login(ctx, Credentials{Email: "a@b.c", Password: "secret"})
	if err != nil || tok != "tok-1" {
		t.Fatalf("login: tok=%q err=%v", tok, err)
	}

	list, err := c.ListPlans(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if fb.lastAuth != "Bearer tok-1" {
		t.Fatalf("authorization header = %q", fb.lastAuth)
	}
	if len(list) != 1 || list[0].TermYears != 10 {
		t.Fatalf("unexpected list %+v", list)
	}
}

func TestGetAndSavePlan(t *testing.T) {
	ctx := context.Background()
	c, fb := newTestClient(t, WithToken("preset"))

	p, err := c.GetPlan(ctx, "p1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if fb.lastAuth != "Bearer preset" {
		t.Fatalf("authorization header = %q", fb.lastAuth)
	}
	if len(p.Items) != 1 || !p.Items[0].Value.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("unexpected plan %+v", p)
	}

	if _, err := c.GetPlan(ctx, "nope"); !errors.Is(err, plans.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	req := core.Flatten(core.BuildTable(p))
	saved, err := c.SavePlan(ctx, "p1", req)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if saved.Version != 4 {
		t.Fatalf("expected version 4, got %d", saved.Version)
	}
	body := string(fb.lastBody)
	if !strings.Contains(body, `"income":{"items":[`) || !strings.Contains(body, `"date":"2024-01-01"`) {
		t.Fatalf("unexpected save body %s", body)
	}
	if !strings.Contains(body, `"value":1000`) {
		t.Fatalf("amounts should be sent as numbers: %s", body)
	}
}

func TestExportStreamsBody(t *testing.T) {
	c, _ := newTestClient(t, WithToken("preset"))

	rc, err := c.ExportPlan(context.Background(), "p1", plans.FormatPDF)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	defer rc.Close()
	b, _ := io.ReadAll(rc)
	if !strings.HasPrefix(string(b), "%PDF") {
		t.Fatalf("unexpected export body %q", b)
	}

	_, err = c.ExportPlan(context.Background(), "p1", plans.FormatCSV)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusBadRequest {
		t.Fatalf("expected APIError 400, got %v", err)
	}
}

func TestAccountEndpoints(t *testing.T) {
	ctx := context.Background()
	c, fb := newTestClient(t)
	if err := c.Register(ctx, Credentials{Email: "a@b.c", Password: "x"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := c.RequestPasswordReset(ctx, "a@b.c"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if !strings.Contains(string(fb.lastBody), `"email":"a@b.c"`) {
		t.Fatalf("unexpected reset body %s", fb.lastBody)
	}
}

func TestNewRejectsBadURL(t *testing.T) {
	for _, raw := range []string{"", "not a url", "/relative"} {
		if _, err := New(raw); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestServerErrorIsAPIError(t *testing.T) {
	c, _ := newTestClient(t, WithToken("preset"))
	err := c.do(context.Background(), c.authed, http.MethodGet, "/boom", nil, nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != 500 {
		t.Fatalf("expected APIError 500, got %v", err)
	}
}
