package server

import (
	"log/slog"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/swaggest/swgui/v5emb"
)

func addRoutes(r chi.Router, logger *slog.Logger, app App) {
	r.Get("/openapi.json", handleOpenAPI())
	r.Mount("/docs", v5emb.New("Campus Tour API", "/openapi.json", "/docs"))

	// Tour document. Both save paths are used by existing editors.
	saveTour := handleSaveTour(app.Store, app.Broker, logger)
	r.Get("/data/tour.json", handleGetTour(app.Store, logger))
	r.Post("/api/save-tour", saveTour)
	r.Post("/admin/api/tour", saveTour)

	// Quest bank.
	r.Get("/data/quest.json", handleGetQuests(app.Store, logger))
	r.Post("/save-quests", handleSaveQuests(app.Store, app.Broker, logger))

	// Images. Uploads are handled by the transcoder, not here.
	r.Get("/admin/api/images", handleImages(app.Catalog, logger))
	r.Handle("/tour_images/*", handleImageFiles(app.Catalog.Dir()))

	r.Get("/api/events", handleEvents(app.Broker, app.PingInterval))

	if app.PublicDir != "" {
		if info, err := os.Stat(app.PublicDir); err == nil && info.IsDir() {
			logger.Info("serving public files", "dir", app.PublicDir)
			r.NotFound(handleSPA(app.PublicDir))
		}
	}
}
