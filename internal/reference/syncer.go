package reference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/joseph-ayodele/cdv-tracker/internal/common"
	"github.com/joseph-ayodele/cdv-tracker/internal/entity"
)

const (
	DefaultScope    = "https://api.fabric.microsoft.com/.default"
	DefaultPageSize = 1000

	defaultTimeout = 60 * time.Second
	tokenURLFormat = "https://login.microsoftonline.com/%s/oauth2/v2.0/token"

	tableEncours = "cv_encours"
	tableCloture = "cv_cloture"
)

var (
	encoursFields = []string{
		"FRAISUEP", "FRAISINTP", "PDSN_30", "VALEUR_COMPTE_VENTE_30", "DATEHEUREBAE",
		"REFINTERNE", "EXPIMPNOM", "CLIFOUNOM", "ORDRE", "TPFRTIDENT",
	}
	encoursNumeric = map[string]bool{"FRAISUEP": true, "FRAISINTP": true, "PDSN_30": true, "VALEUR_COMPTE_VENTE_30": true}
	clotureFields  = []string{"DOSSIER", "REFINTERNE"}

	errGraphQLStatus = errors.New("graphql http error")
)

// SyncConfig configures access to the external GraphQL dataset.
type SyncConfig struct {
	Endpoint     string
	TenantID     string
	ClientID     string
	ClientSecret string
	Scope        string
	// TokenURL overrides the Entra ID token endpoint derived from TenantID.
	TokenURL   string
	PageSize   int
	Timeout    time.Duration
	Retries    int
	RetryDelay time.Duration
}

// SyncConfigFrom converts the application reference settings.
func SyncConfigFrom(c common.ReferenceConfig) SyncConfig {
	return SyncConfig{
		Endpoint:     c.GraphQLEndpoint,
		TenantID:     c.TenantID,
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		Scope:        c.Scope,
		PageSize:     c.PageSize,
		Timeout:      c.Timeout,
	}
}

// SyncStore receives the fetched datasets.
type SyncStore interface {
	ClearRecords(ctx context.Context) error
	InsertRecords(ctx context.Context, recs []entity.ReferenceRecord) error
	ClearClosures(ctx context.Context) error
	InsertClosures(ctx context.Context, recs []entity.ClosureRecord) error
}

// AutoCloser closes generated sessions listed in the closure dataset.
type AutoCloser interface {
	AutoClose(ctx context.Context) (int64, error)
}

// SyncStats reports one table sync.
type SyncStats struct {
	Rows  int `json:"rows"`
	Pages int `json:"pages"`
}

// SyncReport reports a full sync.
type SyncReport struct {
	EncoursRows int   `json:"encours_rows"`
	ClotureRows int   `json:"cloture_rows"`
	AutoClosed  int64 `json:"auto_closed"`
}

// PageFunc is called after each stored page.
type PageFunc func(table string, page, rowsSoFar int)

// Syncer mirrors the external declaration and closure datasets into the
// local cache. Each table is cleared then refilled page by page.
type Syncer struct {
	cfg    SyncConfig
	http   *http.Client
	store  SyncStore
	closer AutoCloser
	logger *slog.Logger

	schemas map[string]*jsonschema.Schema
}

// NewSyncer validates cfg and prepares an authenticated client. The token
// is fetched lazily and cached until it expires.
func NewSyncer(cfg SyncConfig, store SyncStore, closer AutoCloser, logger *slog.Logger) (*Syncer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, common.NewAppError("REFERENCE_NOT_CONFIGURED", "the reference GraphQL endpoint must be configured", common.ErrConfig)
	}
	if strings.TrimSpace(cfg.ClientID) == "" || strings.TrimSpace(cfg.ClientSecret) == "" ||
		(strings.TrimSpace(cfg.TenantID) == "" && cfg.TokenURL == "") {
		return nil, common.NewAppError("REFERENCE_AUTH_NOT_CONFIGURED", "client id, tenant id and secret must be configured", common.ErrConfig)
	}
	if cfg.Scope == "" {
		cfg.Scope = DefaultScope
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = fmt.Sprintf(tokenURLFormat, strings.TrimSpace(cfg.TenantID))
	}

	cc := clientcredentials.Config{
		ClientID:     strings.TrimSpace(cfg.ClientID),
		ClientSecret: strings.TrimSpace(cfg.ClientSecret),
		TokenURL:     tokenURL,
		Scopes:       []string{cfg.Scope},
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	base := &http.Client{Timeout: cfg.Timeout}
	client := oauth2.NewClient(
		context.WithValue(context.Background(), oauth2.HTTPClient, base),
		cc.TokenSource(context.WithValue(context.Background(), oauth2.HTTPClient, base)),
	)
	client.Timeout = cfg.Timeout

	schemas := make(map[string]*jsonschema.Schema, 2)
	for table, fields := range map[string][]string{tableEncours: encoursFields, tableCloture: clotureFields} {
		sch, err := common.CompileJSONSchema(pageSchema(table, fields))
		if err != nil {
			return nil, fmt.Errorf("compile %s schema: %w", table, err)
		}
		schemas[table] = sch
	}

	return &Syncer{cfg: cfg, http: client, store: store, closer: closer, logger: logger, schemas: schemas}, nil
}

// SyncAll refreshes both datasets, then auto-closes generated sessions.
func (s *Syncer) SyncAll(ctx context.Context, progress PageFunc) (SyncReport, error) {
	var report SyncReport

	enc, err := s.SyncRecords(ctx, progress)
	if err != nil {
		return report, err
	}
	report.EncoursRows = enc.Rows

	clo, err := s.SyncClosures(ctx, progress)
	if err != nil {
		return report, err
	}
	report.ClotureRows = clo.Rows

	if s.closer != nil {
		n, err := s.closer.AutoClose(ctx)
		if err != nil {
			return report, err
		}
		report.AutoClosed = n
	}
	s.logger.Info("reference.sync.done", "encours_rows", report.EncoursRows, "cloture_rows", report.ClotureRows, "auto_closed", report.AutoClosed)
	return report, nil
}

// SyncRecords refreshes the declaration cache.
func (s *Syncer) SyncRecords(ctx context.Context, progress PageFunc) (SyncStats, error) {
	if err := s.store.ClearRecords(ctx); err != nil {
		return SyncStats{}, err
	}
	return fetchPages(ctx, s, tableEncours, encoursFields, progress, func(items []entity.ReferenceRecord) error {
		return s.store.InsertRecords(ctx, items)
	})
}

// SyncClosures refreshes the closure cache.
func (s *Syncer) SyncClosures(ctx context.Context, progress PageFunc) (SyncStats, error) {
	if err := s.store.ClearClosures(ctx); err != nil {
		return SyncStats{}, err
	}
	return fetchPages(ctx, s, tableCloture, clotureFields, progress, func(items []entity.ClosureRecord) error {
		return s.store.InsertClosures(ctx, items)
	})
}

// TestConnection authenticates and runs a one-row query.
func (s *Syncer) TestConnection(ctx context.Context) error {
	_, err := s.execute(ctx, fmt.Sprintf("{ %s(first: 1) { items { REFINTERNE } } }", tableEncours))
	return err
}

type graphQLPage[T any] struct {
	Items       []T     `json:"items"`
	HasNextPage bool    `json:"hasNextPage"`
	EndCursor   *string `json:"endCursor"`
}

func fetchPages[T any](ctx context.Context, s *Syncer, table string, fields []string, progress PageFunc, store func([]T) error) (SyncStats, error) {
	var (
		stats  SyncStats
		cursor string
	)
	for {
		stats.Pages++
		after := ""
		if cursor != "" {
			after = ", after: " + strconv.Quote(cursor)
		}
		query := fmt.Sprintf("{ %s(first: %d%s) { items { %s } hasNextPage endCursor } }",
			table, s.cfg.PageSize, after, strings.Join(fields, " "))

		raw, err := s.execute(ctx, query)
		if err != nil {
			return stats, err
		}
		doc, err := common.DecodeForSchema(raw)
		if err != nil {
			return stats, invalidPage(table, err)
		}
		if err := s.schemas[table].Validate(doc); err != nil {
			return stats, invalidPage(table, err)
		}

		var body struct {
			Data map[string]graphQLPage[T] `json:"data"`
		}
		if err := json.Unmarshal(raw, &body); err != nil {
			return stats, invalidPage(table, err)
		}
		page := body.Data[table]

		if len(page.Items) > 0 {
			if err := store(page.Items); err != nil {
				return stats, err
			}
		}
		stats.Rows += len(page.Items)
		if progress != nil {
			progress(table, stats.Pages, stats.Rows)
		}
		s.logger.Debug("reference.sync.page", "table", table, "page", stats.Pages, "rows", stats.Rows)

		if !page.HasNextPage || page.EndCursor == nil || *page.EndCursor == "" {
			return stats, nil
		}
		if *page.EndCursor == cursor {
			return stats, common.NewAppError("REFERENCE_PAGING_STALLED",
				fmt.Sprintf("%s paging did not advance past cursor %q", table, cursor), common.ErrInternal)
		}
		cursor = *page.EndCursor
	}
}

// execute posts one GraphQL query and returns the raw body. Transport
// failures and 5xx replies are retried.
func (s *Syncer) execute(ctx context.Context, query string) ([]byte, error) {
	payload, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return nil, err
	}

	var raw []byte
	err = retry.Do(
		func() error {
			body, status, err := s.post(ctx, payload)
			if err != nil {
				return err
			}
			if status >= http.StatusInternalServerError {
				return fmt.Errorf("%w (%d): %s", errGraphQLStatus, status, truncate(body, 200))
			}
			if status >= http.StatusBadRequest {
				return retry.Unrecoverable(fmt.Errorf("%w (%d): %s", errGraphQLStatus, status, truncate(body, 200)))
			}
			raw = body
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(s.cfg.Retries+1)),
		retry.Delay(s.cfg.RetryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		s.logger.Error("reference.graphql.error", "error", err)
		return nil, common.NewAppError("REFERENCE_GRAPHQL_FAILED", "the reference dataset query failed", err)
	}

	var gqlErr struct {
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if json.Unmarshal(raw, &gqlErr) == nil && len(gqlErr.Errors) > 0 {
		msgs := make([]string, len(gqlErr.Errors))
		for i, e := range gqlErr.Errors {
			msgs[i] = e.Message
		}
		return nil, common.NewAppError("REFERENCE_GRAPHQL_FAILED", "the reference dataset rejected the query",
			errors.New(strings.Join(msgs, "; ")))
	}
	return raw, nil
}

func (s *Syncer) post(ctx context.Context, payload []byte) ([]byte, int, error) {
	reqID := uuid.New().String()
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, 0, retry.Unrecoverable(err)
	}
	req.Header.Set("Content-Type", "application/json")

	s.logger.Info("reference.http.request", "req_id", reqID, "url", s.cfg.Endpoint, "content_length", len(payload))
	resp, err := s.http.Do(req)
	if err != nil {
		s.logger.Error("reference.http.send_error", "req_id", reqID, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) {
			return nil, 0, retry.Unrecoverable(common.NewAppError("REFERENCE_AUTH_FAILED", "Entra ID authentication failed", err))
		}
		return nil, 0, err
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			s.logger.Warn("reference.http.response_body_close_error", "req_id", reqID, "error", err)
		}
	}(resp.Body)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, err
	}
	s.logger.Info("reference.http.response", "req_id", reqID, "status", resp.StatusCode, "bytes", len(body), "elapsed_ms", time.Since(start).Milliseconds())
	return body, resp.StatusCode, nil
}

func pageSchema(table string, fields []string) map[string]any {
	props := make(map[string]any, len(fields))
	for _, f := range fields {
		t := "string"
		if encoursNumeric[f] {
			t = "number"
		}
		props[f] = map[string]any{"type": []string{t, "null"}}
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"data": map[string]any{
				"type": "object",
				"properties": map[string]any{
					table: map[string]any{
						"type": "object",
						"properties": map[string]any{
							"items": map[string]any{
								"type":  "array",
								"items": map[string]any{"type": "object", "properties": props, "required": fields},
							},
							"hasNextPage": map[string]any{"type": "boolean"},
							"endCursor":   map[string]any{"type": []string{"string", "null"}},
						},
						"required": []string{"items"},
					},
				},
				"required": []string{table},
			},
		},
		"required": []string{"data"},
	}
}

func invalidPage(table string, err error) error {
	return common.NewAppError("REFERENCE_PAGE_INVALID", fmt.Sprintf("unexpected %s page format", table), err)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
