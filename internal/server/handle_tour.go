package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/playperu/campustour/internal/tour"
)

func handleGetTour(store Store, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := store.GetDocument(r.Context(), docTour)
		if errors.Is(err, ErrNotFound) {
			writeJSON(w, http.StatusOK, tour.Empty())
			return
		}
		if err != nil {
			logger.Error("reading tour", "error", err)
			writeError(w, http.StatusInternalServerError, "Error reading tour data.")
			return
		}
		writeRaw(w, http.StatusOK, data)
	}
}

// handleSaveTour replaces the tour document. The body must be a valid tour;
// waypoint targets may dangle.
func handleSaveTour(store Store, broker *Broker, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var d tour.Data
		if err := readJSON(w, r, &d); err != nil {
			writeError(w, http.StatusBadRequest, "invalid tour document")
			return
		}
		d.Normalize()
		if err := tour.Validate(d); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		data, err := json.Marshal(d)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Error saving tour data.")
			return
		}
		if err := store.PutDocument(r.Context(), docTour, data); err != nil {
			logger.Error("saving tour", "error", err)
			writeError(w, http.StatusInternalServerError, "Error saving tour data.")
			return
		}

		if n := len(d.DanglingTargets()); n > 0 {
			logger.Warn("tour saved with dangling waypoint targets", "count", n)
		}
		broker.Publish(Event{Type: EventTourSaved, Scenes: len(d.Scenes)})
		writeJSON(w, http.StatusOK, MessageResponse{Message: "Tour data saved successfully"})
	}
}
