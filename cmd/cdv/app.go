package main

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/cdv-tracker/internal/common"
	"github.com/joseph-ayodele/cdv-tracker/internal/core"
	"github.com/joseph-ayodele/cdv-tracker/internal/documents"
	"github.com/joseph-ayodele/cdv-tracker/internal/export"
	"github.com/joseph-ayodele/cdv-tracker/internal/ocr"
	"github.com/joseph-ayodele/cdv-tracker/internal/queue"
	"github.com/joseph-ayodele/cdv-tracker/internal/reference"
	"github.com/joseph-ayodele/cdv-tracker/internal/repository"
	"github.com/joseph-ayodele/cdv-tracker/internal/sessions"
)

// app wires the record store, the OCR client and the services for one
// command invocation.
type app struct {
	db        *repository.DB
	sessions  repository.SessionRepository
	refs      repository.ReferenceRepository
	generated repository.DocumentRepository

	docs      *documents.Registry
	queue     *queue.Store
	matcher   *reference.Matcher
	ocr       *ocr.HTTPClient
	processor *core.Processor
	service   *sessions.Service
	exporter  *export.Service
}

func openApp(ctx context.Context) (*app, error) {
	db, err := repository.Open(ctx, repository.ConfigFrom(cfg.Database), logger)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	a := &app{
		db:        db,
		sessions:  repository.NewSessionRepository(db, logger),
		refs:      repository.NewReferenceRepository(db, logger),
		generated: repository.NewDocumentRepository(db, logger),
		docs:      documents.NewRegistry(logger),
		queue:     queue.NewStore(queue.WithLogger(logger)),
		exporter:  export.NewService(cfg.Export.Dir, logger),
	}
	a.matcher = reference.NewMatcher(a.refs, logger)
	a.ocr = ocr.NewHTTPClient(ocr.HTTPConfig{
		WebhookURL: cfg.OCR.WebhookURL,
		ResultURL:  cfg.OCR.ResultURL,
		TestURL:    cfg.OCR.TestURL,
		AuthType:   cfg.OCR.AuthType,
		AuthValue:  cfg.OCR.AuthValue,
	}, &http.Client{}, logger)
	sender := ocr.NewSender(a.ocr, ocr.SenderConfig{
		TimeoutMinutes: cfg.OCR.TimeoutMinutes,
		RetryCount:     cfg.OCR.RetryCount,
		RetryDelay:     cfg.OCR.RetryDelay,
		PollInterval:   cfg.OCR.PollInterval,
	}, logger)
	a.processor = core.NewProcessor(logger, a.queue, a.sessions, a.docs, sender, a.matcher, core.Config{
		ItemDelay: cfg.Queue.ItemDelay,
		MaxPause:  cfg.Queue.MaxPause,
	})
	a.service = sessions.NewService(a.sessions, a.generated, a.matcher, a.docs, a.queue, logger)
	return a, nil
}

func (a *app) Close() {
	a.db.Close()
}

func (a *app) syncer() (*reference.Syncer, error) {
	return reference.NewSyncer(reference.SyncConfigFrom(cfg.Reference), a.refs, a.sessions, logger)
}

func parseID(s string) (uuid.UUID, error) {
	if err := common.NewValidator().Field("session_id", s, common.Required, common.UUID).Error(); err != nil {
		return uuid.Nil, err
	}
	return uuid.MustParse(s), nil
}
