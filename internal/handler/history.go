package handler

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/chatrelay/chatrelay/internal/history"
)

const defaultHistoryLimit = 50

// ServeHistory serves recent room history as JSON. store may be nil when
// the relay runs without a database; the endpoint then reports 404 so
// clients know there is no history to fetch.
func ServeHistory(store *history.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			return
		}

		room := r.URL.Query().Get("room")
		if room == "" {
			http.Error(w, "room query parameter is required", http.StatusBadRequest)
			return
		}

		limit := defaultHistoryLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
				return
			}
			limit = n
		}

		if store == nil {
			http.Error(w, "history is not enabled", http.StatusNotFound)
			return
		}

		messages, err := store.Recent(r.Context(), room, limit)
		if err != nil {
			log.Printf("%v", err)
			http.Error(w, "failed to load history", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(messages); err != nil {
			log.Printf("handler/history: failed to encode response: %v", err)
		}
	}
}
