package main

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
)

func TestControlGetDecodesJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"name":"block0","kind":"block","id":1,"active":true,"crashes":0,"restarts":0}]`))
	}))
	defer srv.Close()

	prev := controlAddr
	controlAddr = srv.URL
	defer func() { controlAddr = prev }()

	var statuses []domainStatus
	if err := controlGet("/domains", &statuses); err != nil {
		t.Fatalf("controlGet: %v", err)
	}
	if len(statuses) != 1 || statuses[0].Name != "block0" {
		t.Fatalf("unexpected statuses: %+v", statuses)
	}
}

func TestControlGetSurfacesNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	prev := controlAddr
	controlAddr = srv.URL
	defer func() { controlAddr = prev }()

	var out []domainStatus
	if err := controlGet("/domains", &out); err == nil {
		t.Fatalf("expected controlGet to surface a non-200 status as an error")
	}
}

func TestControlPostSurfacesErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"domain not found"}`))
	}))
	defer srv.Close()

	prev := controlAddr
	controlAddr = srv.URL
	defer func() { controlAddr = prev }()

	var out map[string]string
	err := controlPost("/domains/bogus/restart", &out)
	if err == nil || !strings.Contains(err.Error(), "domain not found") {
		t.Fatalf("expected the error body's message to surface, got %v", err)
	}
}

func TestPrintDomainTableWritesAHeaderAndOneRowPerDomain(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	origStdout := os.Stdout
	os.Stdout = w
	defer func() { os.Stdout = origStdout }()

	err = printDomainTable([]domainStatus{
		{Name: "block0", Kind: "block", ID: 1, Active: true, Crashes: 2, Restarts: 1},
	})
	w.Close()
	if err != nil {
		t.Fatalf("printDomainTable: %v", err)
	}

	out, _ := io.ReadAll(r)
	got := string(out)
	if !strings.Contains(got, "NAME") || !strings.Contains(got, "block0") {
		t.Fatalf("expected a header and a data row, got:\n%s", got)
	}
}
