package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/docuflow/docuflow/internal/controllers"
	"github.com/docuflow/docuflow/internal/documents"
	"github.com/docuflow/docuflow/internal/managers"
	"github.com/docuflow/docuflow/internal/repositories"
	"github.com/docuflow/docuflow/internal/server"
	"github.com/docuflow/docuflow/internal/verification"
	"github.com/docuflow/docuflow/internal/version"
)

func NewServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	config, err := LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log.Info().
		Str("version", version.GetVersion()).
		Str("http_address", config.HTTPAddress).
		Msg("Starting docuflow service")

	pool, err := repositories.NewPool(ctx, config.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer pool.Close()

	sealer, err := managers.NewCredentialSealer(config.CredentialMasterKey)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid credential master key")
	}

	documentRepo := repositories.NewPostgresDocumentRepository(pool)
	configRepo := repositories.NewPostgresStorageConfigRepository(pool)

	configManager := managers.NewStorageConfigManager(managers.StorageConfigManagerDependencies{
		StorageConfigs: configRepo,
		Sealer:         sealer,
	})

	documentService := documents.NewService(documents.ServiceDependencies{
		Documents:      documentRepo,
		StorageConfigs: configRepo,
		ConfigManager:  configManager,
	})

	verificationService := verification.NewService(verification.ServiceDependencies{
		Documents:      documentRepo,
		StorageConfigs: configRepo,
		Sealer:         sealer,
	})

	app := server.NewHTTPServer(server.HTTPServerDependencies{
		DocumentController: controllers.NewDocumentController(controllers.DocumentControllerDependencies{
			DocumentService:     documentService,
			VerificationService: verificationService,
			DocumentRepository:  documentRepo,
		}),
		StorageConfigController: controllers.NewStorageConfigController(controllers.StorageConfigControllerDependencies{
			ConfigManager:           configManager,
			StorageConfigRepository: configRepo,
		}),
	})

	if err := app.Listen(config.HTTPAddress, fiber.ListenConfig{
		GracefulContext:       ctx,
		DisableStartupMessage: true,
	}); err != nil {
		log.Error().Err(err).Msg("HTTP server failed")
	}

	log.Info().Msg("Docuflow service stopped")
	return nil
}
