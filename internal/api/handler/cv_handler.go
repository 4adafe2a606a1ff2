package handler

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/gofrs/uuid/v5"

	"match-engine-go/internal/config"
	"match-engine-go/internal/constants"
	"match-engine-go/internal/extractor"
	"match-engine-go/internal/logger"
	"match-engine-go/internal/processor"
	"match-engine-go/internal/storage"
	"match-engine-go/internal/storage/models"
)

// CVHandler coordinates CV uploads: extract text synchronously, persist the
// document, then hand parsing to the queue.
type CVHandler struct {
	cfg         *config.Config
	storage     *storage.Storage
	extractor   extractor.TextExtractor
	cvProcessor *processor.CVProcessor
}

// NewCVHandler creates the upload handler.
func NewCVHandler(cfg *config.Config, storageManager *storage.Storage, textExtractor extractor.TextExtractor, cvProcessor *processor.CVProcessor) *CVHandler {
	return &CVHandler{
		cfg:         cfg,
		storage:     storageManager,
		extractor:   textExtractor,
		cvProcessor: cvProcessor,
	}
}

// CVUploadResponse is returned for an accepted upload.
type CVUploadResponse struct {
	CVID   string `json:"cv_id"`
	Status string `json:"status"`
}

// HandleCVUpload accepts one CV file. Text extraction happens inline while
// the file bytes are at hand; profile parsing is asynchronous. When no broker
// is configured the document is parsed inline instead.
func (h *CVHandler) HandleCVUpload(ctx context.Context, reader io.Reader, filename string, contentType string) (*CVUploadResponse, error) {
	if !extractor.IsSupportedContentType(contentType) {
		return nil, &extractor.ErrUnsupportedContentType{ContentType: contentType}
	}

	text, _, err := h.extractor.ExtractText(ctx, reader, contentType, filename)
	if err != nil {
		return nil, fmt.Errorf("extract text from %s: %w", filename, err)
	}

	uuidV7, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate cv id: %w", err)
	}
	cvID := uuidV7.String()

	sum := md5.Sum([]byte(text))
	doc := &models.CVDocument{
		CVID:             cvID,
		OriginalFilename: filename,
		ContentType:      contentType,
		RawText:          text,
		RawTextMD5:       hex.EncodeToString(sum[:]),
		ProcessingStatus: constants.CVStatusPendingParsing,
		UploadedAt:       time.Now().UTC(),
	}
	if err := h.storage.MySQL.CreateCVDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("persist CV document: %w", err)
	}

	if h.storage.RabbitMQ != nil {
		msg := storage.CVUploadedMessage{
			CVID:             cvID,
			OriginalFilename: filename,
			ContentType:      contentType,
			UploadedAt:       doc.UploadedAt,
		}
		err = h.storage.RabbitMQ.PublishJSON(ctx,
			h.cfg.RabbitMQ.CVEventsExchange,
			h.cfg.RabbitMQ.UploadedRoutingKey,
			msg, true)
		if err != nil {
			// The document row exists; parse inline rather than losing it.
			logger.Warn().Err(err).Str("cv_id", cvID).Msg("Publish failed, parsing CV inline")
			if parseErr := h.cvProcessor.ProcessUploadedCV(ctx, cvID); parseErr != nil {
				logger.Error().Err(parseErr).Str("cv_id", cvID).Msg("Inline CV parse failed")
			}
		}
	} else {
		if parseErr := h.cvProcessor.ProcessUploadedCV(ctx, cvID); parseErr != nil {
			logger.Error().Err(parseErr).Str("cv_id", cvID).Msg("Inline CV parse failed")
		}
	}

	logger.Info().Str("cv_id", cvID).Str("filename", filename).Msg("CV upload accepted")
	return &CVUploadResponse{
		CVID:   cvID,
		Status: constants.CVStatusPendingParsing,
	}, nil
}

// GetCVStatus reports the processing state of one document.
func (h *CVHandler) GetCVStatus(ctx context.Context, cvID string) (*models.CVDocument, error) {
	return h.storage.MySQL.GetCVDocumentByID(ctx, cvID)
}

// StartCVUploadConsumer declares the upload topology and starts consuming.
// The returned channel stops the consumer when closed.
func (h *CVHandler) StartCVUploadConsumer(ctx context.Context) (chan<- struct{}, error) {
	mq := h.storage.RabbitMQ
	if mq == nil {
		return nil, fmt.Errorf("rabbitmq is not configured")
	}

	cfg := h.cfg.RabbitMQ
	if err := mq.EnsureExchange(cfg.CVEventsExchange, "direct", true); err != nil {
		return nil, err
	}
	if err := mq.EnsureQueue(cfg.CVUploadedQueue, true); err != nil {
		return nil, err
	}
	if err := mq.BindQueue(cfg.CVUploadedQueue, cfg.CVEventsExchange, cfg.UploadedRoutingKey); err != nil {
		return nil, err
	}

	prefetch := cfg.PrefetchCount
	if prefetch <= 0 {
		prefetch = 5
	}
	return mq.StartConsumer(cfg.CVUploadedQueue, prefetch, h.cvProcessor.HandleUploadedMessage(ctx))
}
