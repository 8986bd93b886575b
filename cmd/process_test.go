package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"pdfmaster/internal/backend"
	"pdfmaster/internal/workflow"
)

func writeInput(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatalf("write input: %v", err)
	}
	return p
}

func TestProcessCommandWritesResult(t *testing.T) {
	var gotLevel, gotPath string
	done := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotLevel = r.FormValue("level")
		gotPath = r.URL.Path
		close(done)
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = io.WriteString(w, "%PDF-small")
	}))
	defer srv.Close()

	dir := t.TempDir()
	in := writeInput(t, dir, "big.pdf", "%PDF-1.7 big")
	out := filepath.Join(dir, "out.pdf")

	var stdout bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetArgs([]string{
		"--config", filepath.Join(dir, "missing.yml"),
		"process", "--tool", "compress", "--level", "high",
		"--backend", srv.URL + "/", "-o", out, in,
	})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	<-done
	if gotLevel != "high" || gotPath != "/api/compress" {
		t.Fatalf("backend got level %q path %q", gotLevel, gotPath)
	}
	data, err := os.ReadFile(out)
	if err != nil || string(data) != "%PDF-small" {
		t.Fatalf("unexpected output %q: %v", data, err)
	}
	if strings.TrimSpace(stdout.String()) != out {
		t.Fatalf("expected output path on stdout, got %q", stdout.String())
	}
}

func TestRunProcessDefaultsToSuggestedName(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = io.WriteString(w, "%PDF-merged")
	}))
	defer srv.Close()

	dir := t.TempDir()
	inputs := []string{
		writeInput(t, dir, "a.pdf", "%PDF-1.4 a"),
		writeInput(t, dir, "notes.txt", "plain text"),
		writeInput(t, dir, "b.pdf", "%PDF-1.4 b"),
	}
	t.Chdir(dir)

	out, err := runProcess(context.Background(), backend.New(srv.URL), "merge", nil, inputs, "", time.Second)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out != "merged.pdf" {
		t.Fatalf("expected merged.pdf, got %q", out)
	}
	if _, err := os.Stat(filepath.Join(dir, "merged.pdf")); err != nil {
		t.Fatalf("result missing: %v", err)
	}
}

func TestRunProcessReportsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = io.WriteString(w, `{"detail":"bad ranges"}`)
	}))
	defer srv.Close()

	dir := t.TempDir()
	in := writeInput(t, dir, "a.pdf", "%PDF-1.4")
	_, err := runProcess(context.Background(), backend.New(srv.URL), "split", map[string]string{"ranges": "9-12"}, []string{in}, filepath.Join(dir, "out.pdf"), time.Second)
	var wfErr *workflow.Error
	if !errors.As(err, &wfErr) || wfErr.Message != "bad ranges" || wfErr.Kind != workflow.KindTransport {
		t.Fatalf("expected transport failure with detail, got %v", err)
	}
	if _, statErr := os.Stat(filepath.Join(dir, "out.pdf")); statErr == nil {
		t.Fatalf("no output should be written on failure")
	}
}

func TestRunProcessRejectsBadInput(t *testing.T) {
	dir := t.TempDir()
	txt := writeInput(t, dir, "notes.txt", "plain text")
	client := backend.New("http://127.0.0.1:1")

	if _, err := runProcess(context.Background(), client, "rotate", nil, []string{txt}, "", time.Second); err == nil {
		t.Fatalf("expected unknown tool error")
	}
	if _, err := runProcess(context.Background(), client, "compress", map[string]string{"level": "max"}, []string{txt}, "", time.Second); err == nil {
		t.Fatalf("expected invalid option error")
	}
	if _, err := runProcess(context.Background(), client, "compress", nil, []string{txt}, "", time.Second); err == nil || !strings.Contains(err.Error(), "no input matches") {
		t.Fatalf("expected accept mismatch error, got %v", err)
	}
}

func TestRunProcessCanceledByContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The server only sees the client hang up once the body is consumed.
		_, _ = io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer srv.Close()

	dir := t.TempDir()
	in := writeInput(t, dir, "a.pdf", "%PDF-1.4")
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	_, err := runProcess(ctx, backend.New(srv.URL), "compress", nil, []string{in}, filepath.Join(dir, "out.pdf"), 5*time.Second)
	var wfErr *workflow.Error
	if !errors.As(err, &wfErr) || wfErr.Kind != workflow.KindCanceled {
		t.Fatalf("expected canceled failure, got %v", err)
	}
}
