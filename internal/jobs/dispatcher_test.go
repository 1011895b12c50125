package jobs

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParseExecutionMode(t *testing.T) {
	tests := []struct {
		in      string
		want    ExecutionMode
		wantErr bool
	}{
		{"", ModeInProcess, false},
		{"inprocess", ModeInProcess, false},
		{"worker", ModeWorker, false},
		{"Worker", ModeWorker, false},
		{"cluster", "", true},
	}
	for _, tt := range tests {
		got, err := ParseExecutionMode(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseExecutionMode(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseExecutionMode(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestWorkerDispatcher(t *testing.T) {
	var gotPath, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	d := NewWorkerDispatcher(srv.URL, "secret", nil)
	if err := d.Dispatch(context.Background(), "j1"); err != nil {
		t.Fatal(err)
	}
	if gotPath != "/internal/jobs/j1/run" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("auth = %q", gotAuth)
	}
}

func TestWorkerDispatcherFailureCarriesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such job", http.StatusNotFound)
	}))
	defer srv.Close()

	d := NewWorkerDispatcher(srv.URL, "", nil)
	err := d.Dispatch(context.Background(), "j1")
	if err == nil {
		t.Fatal("expected dispatch failure")
	}
	if !strings.Contains(err.Error(), "404") || !strings.Contains(err.Error(), "no such job") {
		t.Errorf("error missing status or body: %v", err)
	}
}
