package fetchzip

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
)

// failingResponseWriter implements http.ResponseWriter and http.Flusher but
// fails every Write, simulating a client that disconnects mid-stream.
type failingResponseWriter struct {
	header http.Header
}

func (w *failingResponseWriter) Header() http.Header {
	if w.header == nil {
		w.header = make(http.Header)
	}
	return w.header
}

func (w *failingResponseWriter) WriteHeader(int) {}

func (w *failingResponseWriter) Write([]byte) (int, error) {
	return 0, errors.New("simulated client disconnect")
}

func (w *failingResponseWriter) Flush() {}

func newTestHandler() *Handler {
	return NewHandler(http.DefaultClient, 5*time.Second, zerolog.Nop(), NewMetrics(prometheus.NewRegistry()))
}

func TestServeHTTPBuildsArchiveFromUpstreams(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/a":
			fmt.Fprint(w, "hello")
		case "/b":
			fmt.Fprint(w, "world")
		default:
			http.NotFound(w, r)
		}
	}))
	defer upstream.Close()

	body, _ := json.Marshal([]entryRequest{
		{URL: upstream.URL + "/a", Filename: "a.txt"},
		{URL: upstream.URL + "/b", Filename: "b.txt"},
	})

	req := httptest.NewRequest(http.MethodPost, "/archive", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	newTestHandler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/zip" {
		t.Fatalf("Content-Type = %q, want application/zip", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); cd != `attachment; filename="archive.zip"` {
		t.Fatalf("Content-Disposition = %q", cd)
	}

	zr, err := zip.NewReader(bytes.NewReader(rec.Body.Bytes()), int64(rec.Body.Len()))
	if err != nil {
		t.Fatalf("zip.NewReader: %v", err)
	}
	if len(zr.File) != 2 {
		t.Fatalf("got %d entries, want 2", len(zr.File))
	}
	want := map[string]string{"a.txt": "hello", "b.txt": "world"}
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("Open(%s): %v", f.Name, err)
		}
		got, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("ReadAll(%s): %v", f.Name, err)
		}
		if string(got) != want[f.Name] {
			t.Fatalf("%s content = %q, want %q", f.Name, got, want[f.Name])
		}
	}
}

func TestServeHTTPMalformedJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/archive", strings.NewReader("not json"))
	rec := httptest.NewRecorder()

	newTestHandler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != "unable to parse json" {
		t.Fatalf("body = %q, want %q", got, "unable to parse json")
	}
}

func TestServeHTTPUpstreamFailureAbandonsArchive(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer upstream.Close()

	body, _ := json.Marshal([]entryRequest{{URL: upstream.URL + "/missing", Filename: "x.txt"}})
	req := httptest.NewRequest(http.MethodPost, "/archive", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	newTestHandler().ServeHTTP(rec, req)

	// The response still starts as 200 (headers are sent before the fetch
	// loop runs, since the archive is streamed), but build returns without
	// ever calling session.Finish: no central directory or end-of-central-
	// directory record is written, so the body is not a parseable archive
	// at all, let alone one reporting zero entries.
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Fatalf("body length = %d, want 0 (no entry ever reached StartFile, nothing was ever emitted)", rec.Body.Len())
	}
	if _, err := zip.NewReader(bytes.NewReader(rec.Body.Bytes()), int64(rec.Body.Len())); err == nil {
		t.Fatal("zip.NewReader unexpectedly succeeded on an abandoned archive")
	}
}

func TestServeHTTPUpstreamFailureMidwayAbandonsCompletedEntries(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/a":
			fmt.Fprint(w, "hello")
		default:
			http.NotFound(w, r)
		}
	}))
	defer upstream.Close()

	body, _ := json.Marshal([]entryRequest{
		{URL: upstream.URL + "/a", Filename: "a.txt"},
		{URL: upstream.URL + "/missing", Filename: "b.txt"},
	})
	req := httptest.NewRequest(http.MethodPost, "/archive", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	newTestHandler().ServeHTTP(rec, req)

	// The first entry's local file header and data descriptor were already
	// streamed before the second entry's fetch failed, so the body is
	// non-empty, but since Finish is never called there is no central
	// directory pointing back at it: the client cannot recover "a.txt" from
	// this response even though its bytes are present on the wire.
	if rec.Body.Len() == 0 {
		t.Fatal("expected entry a's already-streamed bytes in the body")
	}
	if _, err := zip.NewReader(bytes.NewReader(rec.Body.Bytes()), int64(rec.Body.Len())); err == nil {
		t.Fatal("zip.NewReader unexpectedly succeeded on an abandoned archive missing its central directory")
	}
}

func TestServeHTTPFetchFailureReportsFetchError(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	upstream.Close() // closed: connecting to it now fails deterministically

	body, _ := json.Marshal([]entryRequest{{URL: upstream.URL + "/nope", Filename: "a.txt"}})
	req := httptest.NewRequest(http.MethodPost, "/archive", bytes.NewReader(body))

	metrics := NewMetrics(prometheus.NewRegistry())
	handler := NewHandler(http.DefaultClient, 5*time.Second, zerolog.Nop(), metrics)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if got := testutil.ToFloat64(metrics.requestsTotal.WithLabelValues("fetch_error")); got != 1 {
		t.Fatalf("fetch_error count = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.requestsTotal.WithLabelValues("sink_error")); got != 0 {
		t.Fatalf("sink_error count = %v, want 0", got)
	}
}

func TestServeHTTPSinkFailureReportsSinkError(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "hello")
	}))
	defer upstream.Close()

	body, _ := json.Marshal([]entryRequest{{URL: upstream.URL, Filename: "a.txt"}})
	req := httptest.NewRequest(http.MethodPost, "/archive", bytes.NewReader(body))

	metrics := NewMetrics(prometheus.NewRegistry())
	handler := NewHandler(http.DefaultClient, 5*time.Second, zerolog.Nop(), metrics)
	handler.ServeHTTP(&failingResponseWriter{}, req)

	if got := testutil.ToFloat64(metrics.requestsTotal.WithLabelValues("sink_error")); got != 1 {
		t.Fatalf("sink_error count = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.requestsTotal.WithLabelValues("fetch_error")); got != 0 {
		t.Fatalf("fetch_error count = %v, want 0", got)
	}
}
