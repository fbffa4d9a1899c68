package controllers

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog/log"

	"github.com/docuflow/docuflow/internal/domain"
	"github.com/docuflow/docuflow/internal/managers"
	"github.com/docuflow/docuflow/pkg/storage"
	"github.com/docuflow/docuflow/pkg/storage/factory"
)

type StorageConfigController struct {
	configManager *managers.StorageConfigManager
	configRepo    domain.StorageConfigRepository
}

type StorageConfigControllerDependencies struct {
	ConfigManager           *managers.StorageConfigManager
	StorageConfigRepository domain.StorageConfigRepository
}

func NewStorageConfigController(deps StorageConfigControllerDependencies) *StorageConfigController {
	return &StorageConfigController{
		configManager: deps.ConfigManager,
		configRepo:    deps.StorageConfigRepository,
	}
}

type createStorageConfigRequest struct {
	Name        string              `json:"name"`
	Provider    storage.Provider    `json:"provider"`
	IsDefault   bool                `json:"is_default"`
	Credentials factory.Credentials `json:"credentials"`
}

// CreateStorageConfig connects a storage destination. Tokens arrive in
// plaintext over the authenticated channel and are sealed before they touch
// the database.
func (c *StorageConfigController) CreateStorageConfig(ctx fiber.Ctx) error {
	organizationID := ctx.Params("organizationID")

	var req createStorageConfigRequest
	if err := ctx.Bind().Body(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	config, err := c.configManager.CreateStorageConfig(ctx.RequestCtx(), managers.CreateStorageConfigParams{
		OrganizationID: organizationID,
		Name:           req.Name,
		Provider:       req.Provider,
		Credentials:    req.Credentials,
		IsDefault:      req.IsDefault,
	})
	if err != nil {
		var cfgErr *storage.ConfigError
		switch {
		case errors.As(err, &cfgErr),
			errors.Is(err, storage.ErrUnsupportedProvider),
			errors.Is(err, storage.ErrNotImplemented):
			return fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("Invalid storage config: %s", err))
		}
		log.Error().Err(err).Str("organization_id", organizationID).Msg("Failed to create storage config")
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to create storage config")
	}

	return ctx.Status(fiber.StatusCreated).JSON(config)
}

func (c *StorageConfigController) ListStorageConfigs(ctx fiber.Ctx) error {
	configs, err := c.configRepo.ListStorageConfigs(ctx.RequestCtx(), ctx.Params("organizationID"))
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to list storage configs")
	}

	return ctx.JSON(configs)
}

// TestStorageConfig reports reachability of the stored credentials.
func (c *StorageConfigController) TestStorageConfig(ctx fiber.Ctx) error {
	success, err := c.configManager.TestStorageConfig(ctx.RequestCtx(), ctx.Params("organizationID"), ctx.Params("configID"))
	if err != nil {
		if errors.Is(err, domain.ErrStorageConfigNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "Storage config not found")
		}
		// Decrypt or construction failures are reported, not hidden behind
		// a false.
		return ctx.JSON(fiber.Map{"success": false, "error": err.Error()})
	}

	return ctx.JSON(fiber.Map{"success": success})
}

// DeleteStorageConfig soft-retires the config; existing documents keep their
// rows and their reference to it.
func (c *StorageConfigController) DeleteStorageConfig(ctx fiber.Ctx) error {
	err := c.configRepo.DeactivateStorageConfig(ctx.RequestCtx(), ctx.Params("organizationID"), ctx.Params("configID"))
	if err != nil {
		if errors.Is(err, domain.ErrStorageConfigNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "Storage config not found")
		}
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to retire storage config")
	}

	return ctx.SendStatus(fiber.StatusNoContent)
}
