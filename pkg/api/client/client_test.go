package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/splax/reelview/internal/domain"
)

func TestNewNormalisesBaseURL(t *testing.T) {
	cli, err := New(" localhost:3000/ ")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if cli.baseURL != "http://localhost:3000" {
		t.Fatalf("unexpected base url %q", cli.baseURL)
	}
	cli, _ = New("")
	if cli.baseURL != "http://localhost:3000" {
		t.Fatalf("unexpected default base url %q", cli.baseURL)
	}
}

func TestLoginAndErrorMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if r.URL.Path != "/api/auth/login" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if body["password"] != "hunter22" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"msg":"Invalid credentials"}`))
			return
		}
		_, _ = w.Write([]byte(`{"token":"t0k","name":"Ann"}`))
	}))
	defer srv.Close()
	cli, _ := New(srv.URL)

	resp, err := cli.Login(context.Background(), "ann@example.com", "hunter22")
	if err != nil || resp.Token != "t0k" || resp.Name != "Ann" {
		t.Fatalf("login: %+v %v", resp, err)
	}
	_, err = cli.Login(context.Background(), "ann@example.com", "nope")
	apiErr, ok := err.(APIError)
	if !ok || apiErr.Status != http.StatusUnauthorized || apiErr.Message != "Invalid credentials" {
		t.Fatalf("expected APIError with msg, got %#v", err)
	}
	if StatusOf(err) != http.StatusUnauthorized {
		t.Fatalf("StatusOf: got %d", StatusOf(err))
	}
}

func TestWatchlistCallsSendBearer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer abc" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"msg":"No token"}`))
			return
		}
		switch r.Method {
		case http.MethodPost:
			var entry domain.WatchlistEntry
			if err := json.NewDecoder(r.Body).Decode(&entry); err != nil || entry.ItemID != 1399 || entry.Kind != domain.KindShow {
				t.Errorf("unexpected body %+v %v", entry, err)
			}
			_, _ = w.Write([]byte(`{"success":true}`))
		case http.MethodGet:
			_, _ = w.Write([]byte(`[{"id":1399,"type":"tv"}]`))
		}
	}))
	defer srv.Close()
	cli, _ := New(srv.URL)

	if err := cli.AddToWatchlist(context.Background(), "abc", domain.WatchlistEntry{ItemID: 1399, Kind: domain.KindShow}); err != nil {
		t.Fatalf("add: %v", err)
	}
	entries, err := cli.ListWatchlist(context.Background(), "abc")
	if err != nil || len(entries) != 1 || entries[0].Kind != domain.KindShow {
		t.Fatalf("list: %+v %v", entries, err)
	}
	if _, err := cli.ListWatchlist(context.Background(), ""); StatusOf(err) != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %v", err)
	}
}

func TestBrowseEncodesFilters(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if r.URL.Path != "/api/movies" || q.Get("type") != "tv" || q.Get("mood") != "happy" || q.Get("page") != "2" || q.Has("genre") {
			t.Errorf("unexpected request %s", r.URL.String())
		}
		_, _ = w.Write([]byte(`{"results":[{"id":1,"name":"Show","_type":"tv"}]}`))
	}))
	defer srv.Close()
	cli, _ := New(srv.URL)

	titles, err := cli.Browse(context.Background(), domain.BrowseQuery{Kind: domain.KindShow, Mood: "happy", Page: 2})
	if err != nil || len(titles) != 1 || titles[0].Type != domain.KindShow {
		t.Fatalf("browse: %+v %v", titles, err)
	}
}

func TestDetailsEmptyObject(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/movie/550" || r.URL.Query().Get("type") != "movie" {
			t.Errorf("unexpected request %s", r.URL.String())
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()
	cli, _ := New(srv.URL)

	details, err := cli.Details(context.Background(), "", 550)
	if err != nil {
		t.Fatalf("details: %v", err)
	}
	if details.Details != nil {
		t.Fatalf("expected unresolved details, got %+v", details)
	}
}
