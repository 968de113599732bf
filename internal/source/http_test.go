package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"github.com/marketflow/marketflow/internal/common"
	"github.com/marketflow/marketflow/internal/model"
	"github.com/marketflow/marketflow/internal/service"
)

func fastRetry() service.RetryOptions {
	return service.RetryOptions{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func newTestHTTPSource(t *testing.T, endpoint string) *HTTPSource {
	t.Helper()
	src, err := NewHTTPSource(
		HTTPConfig{Endpoint: endpoint, Token: "test-token"},
		model.SourceDescriptor{Platform: "amazon", Entity: "orders", Source: endpoint},
	)
	if err != nil {
		t.Fatalf("NewHTTPSource: %v", err)
	}
	src.retryOpts = fastRetry()
	return src
}

func TestHTTPSource_FetchPaged(t *testing.T) {
	var sawAuth atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "Bearer test-token" {
			sawAuth.Store(true)
		}
		switch r.URL.Query().Get("page") {
		case "1":
			fmt.Fprint(w, `{"next_page": 2, "data": [{"order_number": "101", "owner_id": "A"}]}`)
		case "2":
			fmt.Fprint(w, `{"next_page": null, "data": [{"order_number": "102"}]}`)
		default:
			http.Error(w, "bad page", http.StatusBadRequest)
		}
	}))
	defer srv.Close()

	src := newTestHTTPSource(t, srv.URL)
	batch, err := src.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !sawAuth.Load() {
		t.Error("bearer token was not sent")
	}

	// Columns are sorted for a deterministic schema; the key missing on page
	// two becomes a null.
	if want := []string{"order_number", "owner_id"}; !reflect.DeepEqual(batch.Columns, want) {
		t.Fatalf("columns = %v, want %v", batch.Columns, want)
	}
	if len(batch.Rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(batch.Rows))
	}
	if batch.Rows[1][1] != nil {
		t.Errorf("missing owner_id = %v, want nil", batch.Rows[1][1])
	}
}

func TestHTTPSource_AuthFailureDoesNotRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer srv.Close()

	src := newTestHTTPSource(t, srv.URL)
	_, err := src.Fetch(context.Background())
	if !errors.Is(err, common.ErrUpstreamAuth) {
		t.Fatalf("err = %v, want ErrUpstreamAuth", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("upstream called %d times, want 1 (auth failures are fatal)", got)
	}
}

func TestHTTPSource_ServerErrorRetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "transient", http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `{"next_page": null, "data": [{"order_number": "101"}]}`)
	}))
	defer srv.Close()

	src := newTestHTTPSource(t, srv.URL)
	batch, err := src.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(batch.Rows) != 1 {
		t.Errorf("rows = %d, want 1", len(batch.Rows))
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("upstream called %d times, want 2", got)
	}
}

func TestHTTPSource_ServerErrorExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	src := newTestHTTPSource(t, srv.URL)
	if _, err := src.Fetch(context.Background()); err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("upstream called %d times, want 3", got)
	}
}

func TestHTTPSource_MalformedPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `this is not json`)
	}))
	defer srv.Close()

	src := newTestHTTPSource(t, srv.URL)
	if _, err := src.Fetch(context.Background()); !errors.Is(err, common.ErrUpstreamPayload) {
		t.Fatalf("err = %v, want ErrUpstreamPayload", err)
	}
}

func TestHTTPConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     HTTPConfig
		wantErr bool
	}{
		{"complete", HTTPConfig{Endpoint: "https://x", Token: "t"}, false},
		{"missing endpoint", HTTPConfig{Token: "t"}, true},
		{"missing token", HTTPConfig{Endpoint: "https://x"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, common.ErrMissingConfig) {
				t.Errorf("err = %v, want ErrMissingConfig", err)
			}
		})
	}
}
