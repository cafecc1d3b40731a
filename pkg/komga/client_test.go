package komga

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestScanLibrary(t *testing.T) {
	var gotMethod, gotPath, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotKey = r.Header.Get("X-API-Key")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, "lib123", "secret")
	if err != nil {
		t.Fatal(err)
	}
	if err := c.ScanLibrary(context.Background()); err != nil {
		t.Fatal(err)
	}

	if gotMethod != http.MethodPost {
		t.Errorf("method = %q, want POST", gotMethod)
	}
	if gotPath != "/api/v1/libraries/lib123/scan" {
		t.Errorf("path = %q", gotPath)
	}
	if gotKey != "secret" {
		t.Errorf("X-API-Key = %q", gotKey)
	}
}

func TestScanLibraryTrailingSlashBaseURL(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL+"/", "lib123", "secret")
	if err != nil {
		t.Fatal(err)
	}
	if err := c.ScanLibrary(context.Background()); err != nil {
		t.Fatal(err)
	}
	if gotPath != "/api/v1/libraries/lib123/scan" {
		t.Errorf("path = %q, want no doubled slash", gotPath)
	}
}

func TestScanLibraryRejectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, "lib123", "wrong")
	if err != nil {
		t.Fatal(err)
	}
	if err := c.ScanLibrary(context.Background()); err == nil {
		t.Fatal("expected error for non-accepted status")
	}
}

func TestNewClientValidation(t *testing.T) {
	tests := []struct {
		name                      string
		baseURL, libraryID, apiKey string
	}{
		{"missing base url", "", "lib", "key"},
		{"missing library id", "http://localhost:25600", "", "key"},
		{"missing api key", "http://localhost:25600", "lib", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewClient(tt.baseURL, tt.libraryID, tt.apiKey); err == nil {
				t.Error("expected configuration error")
			}
		})
	}
}
