package controllers

import (
	"errors"
	"fmt"
	"io"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog/log"

	"github.com/docuflow/docuflow/internal/documents"
	"github.com/docuflow/docuflow/internal/domain"
	"github.com/docuflow/docuflow/internal/verification"
)

type DocumentController struct {
	documentService     *documents.Service
	verificationService *verification.Service
	documentRepo        domain.DocumentRepository
}

type DocumentControllerDependencies struct {
	DocumentService     *documents.Service
	VerificationService *verification.Service
	DocumentRepository  domain.DocumentRepository
}

func NewDocumentController(deps DocumentControllerDependencies) *DocumentController {
	return &DocumentController{
		documentService:     deps.DocumentService,
		verificationService: deps.VerificationService,
		documentRepo:        deps.DocumentRepository,
	}
}

// CreateDocument accepts a multipart upload and stores it through the
// organization's default storage destination.
func (c *DocumentController) CreateDocument(ctx fiber.Ctx) error {
	organizationID := ctx.Params("organizationID")

	fileHeader, err := ctx.FormFile("file")
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Missing file part")
	}

	file, err := fileHeader.Open()
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Unreadable file part")
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Failed to read file part")
	}

	doc, err := c.documentService.IntakeDocument(ctx.RequestCtx(), documents.IntakeParams{
		OrganizationID: organizationID,
		Filename:       fileHeader.Filename,
		MimeType:       fileHeader.Header.Get("Content-Type"),
		Content:        content,
		FolderPath:     ctx.FormValue("folder_path"),
	})
	if err != nil {
		if errors.Is(err, domain.ErrNoDefaultStorage) {
			return fiber.NewError(fiber.StatusConflict, "No default storage config for organization")
		}
		log.Error().Err(err).Str("organization_id", organizationID).Msg("Failed to intake document")
		return fiber.NewError(fiber.StatusBadGateway, fmt.Sprintf("Failed to store document: %s", err))
	}

	return ctx.Status(fiber.StatusCreated).JSON(doc)
}

func (c *DocumentController) GetDocument(ctx fiber.Ctx) error {
	doc, err := c.documentRepo.GetDocument(ctx.RequestCtx(), ctx.Params("organizationID"), ctx.Params("documentID"))
	if err != nil {
		if errors.Is(err, domain.ErrDocumentNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "Document not found")
		}
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to load document")
	}

	return ctx.JSON(doc)
}

func (c *DocumentController) ListDocuments(ctx fiber.Ctx) error {
	docs, err := c.documentRepo.ListDocuments(ctx.RequestCtx(), ctx.Params("organizationID"))
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to list documents")
	}

	return ctx.JSON(docs)
}

func (c *DocumentController) DownloadDocument(ctx fiber.Ctx) error {
	doc, content, err := c.documentService.DownloadDocument(ctx.RequestCtx(), ctx.Params("organizationID"), ctx.Params("documentID"))
	if err != nil {
		if errors.Is(err, domain.ErrDocumentNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "Document not found")
		}
		log.Error().Err(err).Str("document_id", ctx.Params("documentID")).Msg("Failed to download document")
		return fiber.NewError(fiber.StatusBadGateway, "Failed to fetch document from storage")
	}

	if doc.MimeType != "" {
		ctx.Set(fiber.HeaderContentType, doc.MimeType)
	}
	ctx.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", doc.Name))

	return ctx.Send(content)
}

// VerifyDocument runs a verification pass and returns the result. Provider
// failures come back as a 200 with status "error"; only a missing document
// row is an HTTP error.
func (c *DocumentController) VerifyDocument(ctx fiber.Ctx) error {
	result, err := c.verificationService.VerifyDocument(ctx.RequestCtx(), ctx.Params("organizationID"), ctx.Params("documentID"))
	if err != nil {
		if errors.Is(err, domain.ErrDocumentNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "Document not found")
		}
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to verify document")
	}

	return ctx.JSON(result)
}
