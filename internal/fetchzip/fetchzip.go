// Package fetchzip implements the HTTP/fetch shell that drives a
// zipstream.Writer: it decodes the request body, fetches each URL in order,
// and streams the resulting ZIP archive back to the client. This is
// component E from the design (external collaborator, specified only at
// its contract with the core).
package fetchzip

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	zipstream "github.com/jgraydus/archived"
	"github.com/rs/zerolog"
)

// entryRequest is one element of the request body: {"url": ..., "filename": ...}.
// Unknown fields are ignored by encoding/json's default decoding.
type entryRequest struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
}

// errFetchFailed and errSinkFailed classify why build aborted: errFetchFailed
// wraps a failure talking to the upstream URL; errSinkFailed wraps a failure
// returned by the zipstream session itself (including sink I/O errors).
// fetchOne wraps every error it returns with one of the two so ServeHTTP can
// report which side failed without inspecting error text.
var (
	errFetchFailed = errors.New("fetchzip: fetch failed")
	errSinkFailed  = errors.New("fetchzip: sink failed")
)

// Handler serves POST requests that build and stream a ZIP archive.
type Handler struct {
	// Client fetches each entry's upstream body. Its own Timeout, if set,
	// still applies; FetchTimeout is applied in addition, per upstream
	// request via context, so it bounds each URL rather than the whole
	// archive request.
	Client *http.Client

	// FetchTimeout bounds each individual upstream GET.
	FetchTimeout time.Duration

	Log     zerolog.Logger
	Metrics *Metrics
}

// NewHandler returns a Handler with the given upstream client, fetch
// timeout, logger, and metrics registry.
func NewHandler(client *http.Client, fetchTimeout time.Duration, log zerolog.Logger, metrics *Metrics) *Handler {
	return &Handler{Client: client, FetchTimeout: fetchTimeout, Log: log, Metrics: metrics}
}

// ServeHTTP decodes the request body and streams back the resulting archive:
// malformed JSON yields 400 with a plain-text body before any archive
// session exists; a successful request streams the archive with the
// required headers.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	log := h.Log.With().Str("method", r.Method).Str("path", r.URL.Path).Logger()

	var entries []entryRequest
	if err := json.NewDecoder(r.Body).Decode(&entries); err != nil {
		log.Warn().Err(err).Msg("malformed request body")
		h.Metrics.observeRequest("bad_request", time.Since(start))
		http.Error(w, "unable to parse json", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="archive.zip"`)
	w.WriteHeader(http.StatusOK)

	sink := zipstream.NewHTTPSink(w)
	session := zipstream.New(sink)

	outcome := "ok"
	if err := h.build(r.Context(), session, entries, log); err != nil {
		outcome = "fetch_error"
		if errors.Is(err, errSinkFailed) {
			outcome = "sink_error"
		}
		log.Error().Err(err).Str("outcome", outcome).Msg("archive build aborted")
	}
	h.Metrics.observeRequest(outcome, time.Since(start))
	h.Metrics.observeEntries(len(entries))
}

// build drives session through every entry in order: fetch, StartFile,
// stream the response body into Write, FinishFile. session.Finish is called
// only once every entry has completed; on any failure build returns
// immediately without calling it, abandoning the session so the client never
// receives a central directory for the entries written so far. The handler
// returning closes the response mid-stream, leaving a truncated body with no
// recoverable archive.
func (h *Handler) build(ctx context.Context, session *zipstream.Writer, entries []entryRequest, log zerolog.Logger) error {
	for i, e := range entries {
		if err := h.fetchOne(ctx, session, e, log); err != nil {
			return fmt.Errorf("entry %d (%s): %w", i, e.Filename, err)
		}
	}
	if err := session.Finish(ctx); err != nil {
		return fmt.Errorf("%w: %w", errSinkFailed, err)
	}
	return nil
}

func (h *Handler) fetchOne(ctx context.Context, session *zipstream.Writer, e entryRequest, log zerolog.Logger) error {
	fetchCtx := ctx
	if h.FetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, h.FetchTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, e.URL, nil)
	if err != nil {
		return fmt.Errorf("%w: building request: %w", errFetchFailed, err)
	}
	resp, err := h.Client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: fetching: %w", errFetchFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: upstream returned %s", errFetchFailed, resp.Status)
	}

	log.Debug().Str("url", e.URL).Str("filename", e.Filename).Msg("starting entry")
	if err := session.StartFile(ctx, e.Filename); err != nil {
		return fmt.Errorf("%w: %w", errSinkFailed, err)
	}

	buf := make([]byte, 32*1024)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := session.Write(ctx, buf[:n]); writeErr != nil {
				return fmt.Errorf("%w: %w", errSinkFailed, writeErr)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return fmt.Errorf("%w: reading upstream body: %w", errFetchFailed, readErr)
		}
	}

	if err := session.FinishFile(ctx); err != nil {
		return fmt.Errorf("%w: %w", errSinkFailed, err)
	}
	return nil
}
