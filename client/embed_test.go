package client

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestFileNames(t *testing.T) {
	want := []string{"consent.css", "consent.js"}
	if diff := cmp.Diff(want, FileNames()); diff != "" {
		t.Errorf("embedded files mismatch (-want +got):\n%s", diff)
	}
}

func TestHandler(t *testing.T) {
	srv := httptest.NewServer(http.StripPrefix("/assets/", Handler()))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/assets/consent.js")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "javascript") {
		t.Errorf("Content-Type = %q", ct)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "phx_join") {
		t.Error("script should join the live session")
	}
}

func TestGetFile_Missing(t *testing.T) {
	if _, err := GetFile("nope.js"); err == nil {
		t.Error("expected an error for a missing file")
	}
}
