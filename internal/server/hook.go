package server

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// SignatureHeader carries the HMAC-SHA256 of the hook body
const SignatureHeader = "X-ECM-Signature"

// handleRefreshHook verifies the request signature and schedules a debounced
// update of every component
func (s *Server) handleRefreshHook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20)) // 1 MB limit
	if err != nil {
		s.logger.Error("failed to read request body", "error", err)
		http.Error(w, "Failed to read body", http.StatusInternalServerError)
		return
	}

	if !s.verifySignature(body, r.Header.Get(SignatureHeader)) {
		s.logger.Warn("rejecting hook with invalid signature")
		http.Error(w, "Invalid signature", http.StatusForbidden)
		return
	}

	s.logger.Info("refresh hook accepted")
	s.debounce.trigger(func() {
		s.performRefresh(context.Background())
	})

	w.WriteHeader(http.StatusAccepted)
	_, _ = fmt.Fprintf(w, "Refresh scheduled\n")
}

// verifySignature checks a "sha256=<hex>" signature of body
func (s *Server) verifySignature(body []byte, signature string) bool {
	if !strings.HasPrefix(signature, "sha256=") {
		return false
	}
	signature = strings.TrimPrefix(signature, "sha256=")
	return hmac.Equal([]byte(signature), []byte(Sign(s.secret, body)))
}

// Sign returns the hex HMAC-SHA256 of body under secret
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// performRefresh updates every component with single-flight semantics.
// While a refresh runs at most one more is queued; further requests are
// folded into it.
func (s *Server) performRefresh(ctx context.Context) {
	s.refreshMu.Lock()
	if s.refreshRunning {
		s.refreshPending = true
		s.refreshMu.Unlock()
		s.logger.Info("refresh already in progress, queuing pending re-run")
		return
	}
	s.refreshRunning = true
	s.refreshMu.Unlock()

	for {
		s.logger.Info("refreshing components")

		s.opMu.Lock()
		results, err := s.svc.UpdateAll(ctx)
		s.noteManifest()
		s.opMu.Unlock()
		if err != nil {
			s.logger.Error("refresh failed", "error", err)
		} else {
			s.logger.Info("refresh completed", "updated", len(results))
		}

		s.refreshMu.Lock()
		if !s.refreshPending {
			s.refreshRunning = false
			s.refreshMu.Unlock()
			break
		}
		s.refreshPending = false
		s.refreshMu.Unlock()

		s.logger.Info("re-running refresh due to pending request")
	}
}

// debouncer runs only the last callback triggered within delay
type debouncer struct {
	mu       sync.Mutex
	timer    *time.Timer
	delay    time.Duration
	callback func()
}

// trigger schedules callback to run after the debounce delay
func (d *debouncer) trigger(callback func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.callback = callback
	if d.timer != nil {
		d.timer.Stop()
	}

	d.timer = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		cb := d.callback
		d.mu.Unlock()

		if cb != nil {
			cb()
		}
	})
}
