package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/playperu/campustour/internal/quest"
)

func handleGetQuests(store Store, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := store.GetDocument(r.Context(), docQuests)
		if errors.Is(err, ErrNotFound) {
			writeJSON(w, http.StatusOK, quest.Bank{})
			return
		}
		if err != nil {
			logger.Error("reading quest bank", "error", err)
			writeError(w, http.StatusInternalServerError, "Error reading quest data.")
			return
		}
		writeRaw(w, http.StatusOK, data)
	}
}

// handleSaveQuests replaces the question bank, keeping the key order of the
// request body.
func handleSaveQuests(store Store, broker *Broker, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid quest bank")
			return
		}
		bank, err := quest.ParseBank(body)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid quest bank")
			return
		}

		data, err := json.Marshal(bank)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Error saving quest data.")
			return
		}
		if err := store.PutDocument(r.Context(), docQuests, data); err != nil {
			logger.Error("saving quest bank", "error", err)
			writeError(w, http.StatusInternalServerError, "Error saving quest data.")
			return
		}

		broker.Publish(Event{Type: EventQuestsSaved, Quests: len(bank)})
		writeJSON(w, http.StatusOK, MessageResponse{Message: "Quest data saved successfully"})
	}
}
