package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *PostgRESTClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client, err := NewPostgRESTClient(PostgRESTConfig{BaseURL: server.URL + "/", APIKey: "anon-key"})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}
	return client
}

func TestPostgRESTInsertSendsRepresentationRequest(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/rest/v1/feedback" {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("apikey") != "anon-key" || r.Header.Get("Authorization") != "Bearer anon-key" {
			t.Fatalf("missing auth headers: %#v", r.Header)
		}
		if r.Header.Get("Prefer") != "return=representation" {
			t.Fatalf("unexpected prefer header %q", r.Header.Get("Prefer"))
		}
		var row Row
		if err := json.NewDecoder(r.Body).Decode(&row); err != nil {
			t.Fatalf("failed to decode body: %v", err)
		}
		row.RowID = "0b7c"
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]Row{row})
	})

	inserted, err := client.Insert(context.Background(), "feedback", Row{ID: 1700000000000001, Grade: "satisfeito"})
	if err != nil {
		t.Fatalf("unexpected insert error: %v", err)
	}
	if inserted.RowID != "0b7c" || inserted.ID != 1700000000000001 {
		t.Fatalf("unexpected inserted row %#v", inserted)
	}
	if inserted.DocID() != "0b7c" {
		t.Fatalf("expected doc id to prefer row id, got %q", inserted.DocID())
	}
}

func TestPostgRESTInsertDecodesPolicyErrors(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"code":"42501","message":"new row violates row-level security policy for table \"feedback\"","details":null,"hint":null}`)
	})

	_, err := client.Insert(context.Background(), "feedback", Row{ID: 1})
	var remoteErr *Error
	if !errors.As(err, &remoteErr) {
		t.Fatalf("expected *Error, got %T %v", err, err)
	}
	if remoteErr.Status != http.StatusUnauthorized || remoteErr.Code != "42501" {
		t.Fatalf("unexpected error fields %#v", remoteErr)
	}
}

func TestPostgRESTSelectEncodesFiltersAndOrdering(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		if query.Get("select") != "*" {
			t.Fatalf("unexpected select %q", query.Get("select"))
		}
		createdAt := query["created_at"]
		if len(createdAt) != 2 || createdAt[0] != "gte.2024-01-01T00:00:00.000Z" || createdAt[1] != "lte.2024-01-31T23:59:59.999Z" {
			t.Fatalf("unexpected created_at filters %#v", createdAt)
		}
		if query.Get("grau_satisfacao") != "eq.insatisfeito" {
			t.Fatalf("unexpected grade filter %q", query.Get("grau_satisfacao"))
		}
		if query.Get("order") != "created_at.desc" || query.Get("limit") != "10" || query.Get("offset") != "20" {
			t.Fatalf("unexpected paging %v", query)
		}
		_, _ = io.WriteString(w, `[{"id":5,"row_id":null,"grau_satisfacao":"insatisfeito","data":"2024-01-02"}]`)
	})

	rows, err := client.Select(context.Background(), "feedback", Query{
		Filters: []Filter{
			Gte("created_at", "2024-01-01T00:00:00.000Z"),
			Lte("created_at", "2024-01-31T23:59:59.999Z"),
			Eq("grau_satisfacao", "insatisfeito"),
		},
		Order:  []Order{{Column: "created_at", Descending: true}},
		Limit:  10,
		Offset: 20,
	})
	if err != nil {
		t.Fatalf("unexpected select error: %v", err)
	}
	if len(rows) != 1 || rows[0].DocID() != "5" {
		t.Fatalf("unexpected rows %#v", rows)
	}
}

func TestPostgRESTSelectRejectsUnknownColumns(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("request should not be sent")
	})
	_, err := client.Select(context.Background(), "feedback", Query{Filters: []Filter{Eq("password", "x")}})
	if err == nil {
		t.Fatalf("expected error for unknown column")
	}
}

func TestPostgRESTCountParsesContentRange(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead || r.Header.Get("Prefer") != "count=exact" {
			t.Fatalf("unexpected count request %s prefer=%q", r.Method, r.Header.Get("Prefer"))
		}
		w.Header().Set("Content-Range", "0-0/3573")
		w.WriteHeader(http.StatusOK)
	})

	count, err := client.Count(context.Background(), "feedback", []Filter{Eq("data", "2024-01-02")})
	if err != nil {
		t.Fatalf("unexpected count error: %v", err)
	}
	if count != 3573 {
		t.Fatalf("expected 3573, got %d", count)
	}
}

func TestParseContentRangeTotal(t *testing.T) {
	tests := []struct {
		header    string
		expected  int64
		expectErr bool
	}{
		{header: "*/0", expected: 0},
		{header: "0-24/25", expected: 25},
		{header: "0-24/*", expectErr: true},
		{header: "", expectErr: true},
		{header: "0-1/abc", expectErr: true},
	}
	for _, testCase := range tests {
		value, err := parseContentRangeTotal(testCase.header)
		if testCase.expectErr {
			if err == nil {
				t.Fatalf("%q: expected error", testCase.header)
			}
			continue
		}
		if err != nil || value != testCase.expected {
			t.Fatalf("%q: expected %d, got %d (%v)", testCase.header, testCase.expected, value, err)
		}
	}
}

func TestPostgRESTSignInWithPassword(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/v1/token" || r.URL.Query().Get("grant_type") != "password" {
			t.Fatalf("unexpected sign-in request %s", r.URL.String())
		}
		var credentials map[string]string
		_ = json.NewDecoder(r.Body).Decode(&credentials)
		if credentials["password"] != "correct" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"code":400,"error_code":"invalid_credentials","msg":"Invalid login credentials"}`)
			return
		}
		_, _ = io.WriteString(w, `{"access_token":"jwt","user":{"id":"u-1","email":"admin@example.com"}}`)
	})

	user, err := client.SignInWithPassword(context.Background(), "admin@example.com", "correct")
	if err != nil {
		t.Fatalf("unexpected sign-in error: %v", err)
	}
	if user.Email != "admin@example.com" {
		t.Fatalf("unexpected user %#v", user)
	}

	_, err = client.SignInWithPassword(context.Background(), "admin@example.com", "wrong")
	var remoteErr *Error
	if !errors.As(err, &remoteErr) || remoteErr.Status != http.StatusBadRequest || remoteErr.Code != "400" {
		t.Fatalf("unexpected sign-in failure %#v", err)
	}
	if remoteErr.Message != "Invalid login credentials" {
		t.Fatalf("unexpected message %q", remoteErr.Message)
	}
}

func TestPostgRESTPingTreatsServerErrorsAsUnreachable(t *testing.T) {
	status := http.StatusNotFound
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	})
	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("expected reachable store, got %v", err)
	}
	status = http.StatusBadGateway
	if err := client.Ping(context.Background()); err == nil {
		t.Fatalf("expected ping error on 502")
	}
}
