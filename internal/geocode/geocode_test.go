package geocode

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tehoro/ibfcore/internal/filecache"
	"github.com/tehoro/ibfcore/internal/model"
)

func seedResult() model.GeocodeResult {
	return model.GeocodeResult{
		FormattedName: "Wellington, New Zealand",
		Latitude:      -41.28,
		Longitude:     174.77,
		Timezone:      "Pacific/Auckland",
		CountryCode:   "NZ",
	}
}

func newTestClient(t *testing.T, openMeteoBody string) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(openMeteoBody))
	}))

	cache, err := filecache.New(t.TempDir(), "geocode")
	if err != nil {
		t.Fatalf("filecache.New: %v", err)
	}
	return &Client{HTTP: srv.Client(), Cache: cache}, srv
}

func TestExtractCountryCode(t *testing.T) {
	components := []struct {
		ShortName string   `json:"short_name"`
		Types     []string `json:"types"`
	}{
		{ShortName: "Wellington", Types: []string{"locality"}},
		{ShortName: "NZ", Types: []string{"country", "political"}},
	}
	if got := extractCountryCode(components); got != "NZ" {
		t.Errorf("expected NZ, got %q", got)
	}

	if got := extractCountryCode(nil); got != "" {
		t.Errorf("expected empty string for no components, got %q", got)
	}
}

func TestStatusLabel(t *testing.T) {
	if got := statusLabel(nil); got != "success" {
		t.Errorf("expected success, got %q", got)
	}
	if got := statusLabel(ErrNotFound); got != "error" {
		t.Errorf("expected error, got %q", got)
	}
}

func TestGet_ReturnsBodyOnSuccess(t *testing.T) {
	body := `{"results":[{"name":"Wellington"}]}`
	c, srv := newTestClient(t, body)
	defer srv.Close()

	got, err := c.get(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != body {
		t.Errorf("get body = %q, want %q", got, body)
	}
}

func TestGet_NonOKStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := &Client{HTTP: srv.Client()}
	if _, err := c.get(context.Background(), srv.URL); err == nil {
		t.Error("expected error for non-2xx status")
	}
}

func TestResolve_ReturnsCachedResultWithoutNetworkCall(t *testing.T) {
	c, srv := newTestClient(t, `{}`)
	defer srv.Close()

	want := seedResult()
	cache := searchCache{"wellington": want}
	if err := c.Cache.Set(context.Background(), cacheKey, cache); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	got, err := c.Resolve(context.Background(), "Wellington")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != want {
		t.Errorf("Resolve = %+v, want %+v", got, want)
	}
}
