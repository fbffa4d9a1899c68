package server

import (
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/docuflow/docuflow/internal/controllers"
	"github.com/docuflow/docuflow/internal/version"
)

type HTTPServerDependencies struct {
	DocumentController      *controllers.DocumentController
	StorageConfigController *controllers.StorageConfigController
}

// NewHTTPServer wires the routes. Authentication is assumed to happen in
// front of this service; callers present a resolved organization id in the
// URL.
func NewHTTPServer(deps HTTPServerDependencies) *fiber.App {
	router := fiber.New(fiber.Config{
		AppName: "docuflow",
	})

	router.Use(cors.New())
	router.Use(logger.New())

	router.Get("/health", func(c fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status":    "healthy",
			"service":   "docuflow",
			"version":   version.GetVersion(),
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})

	org := router.Group("/organizations/:organizationID")

	org.Post("/documents", deps.DocumentController.CreateDocument)
	org.Get("/documents", deps.DocumentController.ListDocuments)
	org.Get("/documents/:documentID", deps.DocumentController.GetDocument)
	org.Get("/documents/:documentID/download", deps.DocumentController.DownloadDocument)
	org.Post("/documents/:documentID/verify", deps.DocumentController.VerifyDocument)

	org.Post("/storage-configs", deps.StorageConfigController.CreateStorageConfig)
	org.Get("/storage-configs", deps.StorageConfigController.ListStorageConfigs)
	org.Post("/storage-configs/:configID/test", deps.StorageConfigController.TestStorageConfig)
	org.Delete("/storage-configs/:configID", deps.StorageConfigController.DeleteStorageConfig)

	return router
}
