package server

import (
	"encoding/json"
	"net/http"

	openapi "github.com/swaggest/openapi-go"
	"github.com/swaggest/openapi-go/openapi3"

	"github.com/playperu/campustour/internal/tour"
)

// ErrorResponse is returned for all error responses.
type ErrorResponse struct {
	Error string `json:"error"`
}

// questBankSchema documents the question bank: an object keyed by quest label.
type questBankSchema map[string]questSchema

type questSchema struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
	Answer   string   `json:"answer"`
}

func newOpenAPISpec() *openapi3.Spec {
	r := openapi3.NewReflector()
	r.Spec.Info.Title = "Campus Tour API"
	r.Spec.Info.Version = "0.1.0"
	r.Spec.Info.WithDescription("Persistence service for the panorama campus tour and its quest.")

	// GET /data/tour.json
	getTour, _ := r.NewOperationContext(http.MethodGet, "/data/tour.json")
	getTour.SetSummary("Get tour")
	getTour.SetDescription("Returns the tour document, or an empty tour if none has been saved.")
	getTour.AddRespStructure(tour.Data{}, openapi.WithHTTPStatus(http.StatusOK))
	getTour.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusInternalServerError))
	_ = r.AddOperation(getTour)

	for _, path := range []string{"/api/save-tour", "/admin/api/tour"} {
		saveTour, _ := r.NewOperationContext(http.MethodPost, path)
		saveTour.SetSummary("Save tour")
		saveTour.SetDescription("Replaces the tour document. Scenes need a positive width and hotspots the fields of their type.")
		saveTour.AddReqStructure(tour.Data{})
		saveTour.AddRespStructure(MessageResponse{}, openapi.WithHTTPStatus(http.StatusOK))
		saveTour.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusBadRequest))
		saveTour.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusInternalServerError))
		_ = r.AddOperation(saveTour)
	}

	// GET /data/quest.json
	getQuests, _ := r.NewOperationContext(http.MethodGet, "/data/quest.json")
	getQuests.SetSummary("Get quest bank")
	getQuests.SetDescription("Returns the question bank. Key order is the order questions are asked.")
	getQuests.AddRespStructure(questBankSchema{}, openapi.WithHTTPStatus(http.StatusOK))
	_ = r.AddOperation(getQuests)

	// POST /save-quests
	saveQuests, _ := r.NewOperationContext(http.MethodPost, "/save-quests")
	saveQuests.SetSummary("Save quest bank")
	saveQuests.SetDescription("Replaces the question bank, keeping key order.")
	saveQuests.AddReqStructure(questBankSchema{})
	saveQuests.AddRespStructure(MessageResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	saveQuests.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusBadRequest))
	_ = r.AddOperation(saveQuests)

	// GET /admin/api/images
	getImages, _ := r.NewOperationContext(http.MethodGet, "/admin/api/images")
	getImages.SetSummary("List images")
	getImages.SetDescription("Returns the sorted panorama file names in the images directory.")
	getImages.AddRespStructure([]string{}, openapi.WithHTTPStatus(http.StatusOK))
	getImages.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusInternalServerError))
	_ = r.AddOperation(getImages)

	// GET /api/events
	getEvents, _ := r.NewOperationContext(http.MethodGet, "/api/events")
	getEvents.SetSummary("Change stream")
	getEvents.SetDescription("Server-Sent Events announcing tour_saved, quests_saved and images_changed.")
	getEvents.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusOK),
		openapi.WithContentType("text/event-stream"))
	_ = r.AddOperation(getEvents)

	// GET /healthz
	getHealthz, _ := r.NewOperationContext(http.MethodGet, "/healthz")
	getHealthz.SetSummary("Health check")
	getHealthz.SetDescription("Returns the health status of backend dependencies.")
	getHealthz.AddRespStructure(map[string]HealthStatus{}, openapi.WithHTTPStatus(http.StatusOK))
	getHealthz.AddRespStructure(map[string]HealthStatus{}, openapi.WithHTTPStatus(http.StatusServiceUnavailable))
	_ = r.AddOperation(getHealthz)

	return r.Spec
}

// HealthStatus documents one entry of the /healthz response.
type HealthStatus struct {
	Status string `json:"status" enum:"ok,error"`
}

func handleOpenAPI() http.HandlerFunc {
	spec := newOpenAPISpec()
	data, _ := json.MarshalIndent(spec, "", "  ")

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	}
}
