package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/xenking/yumyard-cafe/internal/domain/auth"
	"github.com/xenking/yumyard-cafe/internal/domain/order"
)

const feedKeepAlive = 25 * time.Second

// orderFeed streams order events as server-sent events. Staff see every
// order; a signed-in customer sees their own; anyone may follow a single
// order by ?code=.
func (h *Handler) orderFeed(w http.ResponseWriter, r *http.Request) {
	p := auth.PrincipalFrom(r.Context())
	code := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("code")))
	if p == nil && code == "" {
		writeStatus(w, http.StatusUnauthorized, "sign in or pass an order code")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeStatus(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	visible := func(e order.Event) bool {
		switch {
		case code != "":
			return e.Code == code
		case p.Staff():
			return true
		default:
			return e.CustomerID == p.CustomerID
		}
	}

	// The write deadline of the server does not apply to streams.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	events := h.Feed.Subscribe(r.Context())
	ticker := time.NewTicker(feedKeepAlive)
	defer ticker.Stop()

	for {
		select {
		case e, ok := <-events:
			if !ok {
				return
			}
			if !visible(e) {
				continue
			}
			payload, err := json.Marshal(e)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Kind, payload); err != nil {
				return
			}
			flusher.Flush()
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
