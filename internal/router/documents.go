package router

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mkarev/document-analysis-service/internal/handlers"
	"github.com/mkarev/document-analysis-service/internal/middleware"
	"github.com/mkarev/document-analysis-service/internal/notifier"
	"github.com/mkarev/document-analysis-service/internal/services"
	"github.com/mkarev/document-analysis-service/internal/utils"
)

func NewRouter(docService services.DocumentService, n *notifier.Notifier, logger *utils.Logger) http.Handler {
	r := mux.NewRouter()

	// Middlewares
	r.Use(middleware.Logger(logger))
	r.Use(middleware.CORS())
	r.Use(middleware.Recovery(logger))

	docHandler := handlers.NewDocumentHandler(docService, n, logger)

	api := r.PathPrefix("/api/v1").Subrouter()

	// Health check
	api.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	}).Methods(http.MethodGet)

	// Document endpoints
	api.HandleFunc("/documents/", docHandler.UploadDocument).Methods(http.MethodPost)
	api.HandleFunc("/documents/", docHandler.ListDocuments).Methods(http.MethodGet)
	api.HandleFunc("/documents/{id}", docHandler.GetDocument).Methods(http.MethodGet)

	// Status subscription (WebSocket)
	api.HandleFunc("/analyzes/{id}", docHandler.SubscribeStatus).Methods(http.MethodGet)

	return r
}
