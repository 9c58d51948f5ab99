package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mkarev/document-analysis-service/internal/assembler"
	"github.com/mkarev/document-analysis-service/internal/extractor"
	"github.com/mkarev/document-analysis-service/internal/models"
	"github.com/mkarev/document-analysis-service/internal/queue"
	"github.com/mkarev/document-analysis-service/internal/repository"
	"github.com/mkarev/document-analysis-service/internal/storage"
	"github.com/mkarev/document-analysis-service/internal/utils"
)

type DocumentService interface {
	CreateDocument(ctx context.Context, req *models.UploadRequest) (*models.UploadResponse, error)
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	ListDocuments(ctx context.Context, userID string, offset, limit int) (*models.ManyDocumentsResponse, error)
}

type documentService struct {
	repo      repository.Repository
	storage   storage.Storage
	assembler *assembler.Assembler
	producer  queue.Producer
	logger    *utils.Logger
}

func NewService(repo repository.Repository, store storage.Storage, asm *assembler.Assembler, producer queue.Producer, logger *utils.Logger) DocumentService {
	return &documentService{
		repo:      repo,
		storage:   store,
		assembler: asm,
		producer:  producer,
		logger:    logger,
	}
}

// CreateDocument runs the synchronous half of the pipeline: extraction and
// image enrichment happen before this returns, the analysis itself is
// dispatched to the queue and observed later via get/subscribe.
func (s *documentService) CreateDocument(ctx context.Context, req *models.UploadRequest) (*models.UploadResponse, error) {
	format, err := extractor.Detect(req.Filename)
	if err != nil {
		s.logger.Warn("Unsupported file format", "filename", req.Filename)
		return nil, utils.NewBadRequestError(fmt.Sprintf("Unsupported file type %q. Only PDF, DOCX and PPTX are allowed", req.Filename))
	}

	text, err := s.assembler.Assemble(ctx, format, req.File, req.Options.AnalyzeImages)
	if err != nil {
		var extErr *extractor.ExtractionError
		switch {
		case errors.As(err, &extErr):
			s.logger.Error("Failed to parse document", "filename", req.Filename, "format", format, "error", err)
			return nil, utils.NewBadRequestError(fmt.Sprintf("The file could not be parsed as %s. It may be corrupted", format))
		case errors.Is(err, assembler.ErrEmptyDocument):
			s.logger.Warn("No content extracted from document", "filename", req.Filename)
			return nil, utils.NewBadRequestError("No text could be extracted from the document. The file may be empty")
		default:
			s.logger.Error("Failed to assemble document content", "filename", req.Filename, "error", err)
			return nil, utils.NewInternalError("Failed to process document")
		}
	}

	docID := utils.GenerateID()
	storageKey := fmt.Sprintf("documents/%s/%s", docID, req.Filename)

	if err := s.storage.Upload(ctx, storageKey, req.File, contentTypeFor(format)); err != nil {
		s.logger.Error("Failed to upload to storage", "error", err, "storage_key", storageKey)
		return nil, utils.NewInternalError("Failed to store document")
	}

	now := time.Now()
	doc := &models.Document{
		ID:         docID,
		UserID:     req.UserID,
		Filename:   req.Filename,
		StorageKey: storageKey,
		Options:    req.Options,
		Status:     models.StatusProcessing,
		CreatedAt:  now,
	}

	if err := s.repo.Create(ctx, doc); err != nil {
		s.logger.Error("Failed to save document", "error", err, "doc_id", docID)
		_ = s.storage.Delete(ctx, storageKey)
		return nil, utils.NewInternalError("Failed to save document metadata")
	}

	job := models.AnalysisJob{
		DocumentID:          docID,
		DocumentText:        text,
		ShowTags:            req.Options.ShowTags,
		ShowTopics:          req.Options.ShowTopics,
		AnalyzeImages:       req.Options.AnalyzeImages,
		ShowRecommendations: req.Options.ShowRecommendations,
		Prompt:              req.Options.Prompt,
	}

	if err := s.producer.Enqueue(ctx, job); err != nil {
		// The document would otherwise sit in processing forever.
		s.logger.Error("Failed to enqueue analysis job", "error", err, "doc_id", docID)
		_ = s.repo.MarkFailed(ctx, docID, "failed to enqueue analysis job")
		return nil, utils.NewInternalError("Failed to queue document analysis")
	}

	s.logger.Info("Document created",
		"id", docID,
		"filename", req.Filename,
		"format", format,
		"text_length", len(text))

	return &models.UploadResponse{
		ID:        docID,
		Filename:  req.Filename,
		Status:    models.StatusProcessing,
		WSURL:     fmt.Sprintf("/api/v1/analyzes/%s", docID),
		CreatedAt: now,
	}, nil
}

func (s *documentService) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	doc, err := s.repo.GetByID(ctx, id)
	if err != nil {
		s.logger.Error("Failed to get document", "error", err, "id", id)
		return nil, utils.NewInternalError("Failed to retrieve document")
	}
	if doc == nil {
		return nil, utils.NewNotFoundError("Document not found")
	}

	return doc, nil
}

func (s *documentService) ListDocuments(ctx context.Context, userID string, offset, limit int) (*models.ManyDocumentsResponse, error) {
	results, total, err := s.repo.ListByUser(ctx, userID, offset, limit)
	if err != nil {
		s.logger.Error("Failed to list documents", "error", err, "user_id", userID)
		return nil, utils.NewInternalError("Failed to list documents")
	}

	return &models.ManyDocumentsResponse{
		Total:   total,
		Results: results,
	}, nil
}

func contentTypeFor(format extractor.Format) string {
	switch format {
	case extractor.FormatPDF:
		return "application/pdf"
	case extractor.FormatDOCX:
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case extractor.FormatPPTX:
		return "application/vnd.openxmlformats-officedocument.presentationml.presentation"
	default:
		return "application/octet-stream"
	}
}
