// Package reference matches CDV sessions against the locally cached copy of
// the external customs declaration dataset and keeps that cache in sync.
package reference

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/joseph-ayodele/cdv-tracker/internal/common"
	"github.com/joseph-ayodele/cdv-tracker/internal/entity"
)

// WindowDays is the half width, in calendar days, of the match window
// around the arrival date.
const WindowDays = 3

const dateLayout = "2006-01-02"

var ErrMatchParamsMissing = common.NewAppError("REFERENCE_MATCH_PARAMS_MISSING",
	"truck, arrival date and client are required for matching", common.ErrInvalidInput)

// Store is the cache query the matcher runs. until is exclusive.
type Store interface {
	Match(ctx context.Context, truck, from, until, client string) ([]entity.ReferenceRecord, error)
}

// MatchResult holds every candidate declaration for a session.
type MatchResult struct {
	Candidates []entity.ReferenceRecord `json:"candidates"`
	Count      int                      `json:"count"`
}

type Matcher struct {
	store  Store
	logger *slog.Logger
}

func NewMatcher(store Store, logger *slog.Logger) *Matcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Matcher{store: store, logger: logger}
}

// DateRange returns the inclusive [arrival-3d, arrival+3d] window as
// YYYY-MM-DD strings.
func DateRange(arrivalDate string) (from, to string, err error) {
	d, err := time.Parse(dateLayout, strings.TrimSpace(arrivalDate))
	if err != nil {
		return "", "", common.NewAppError("REFERENCE_DATE_INVALID", "arrival date must be YYYY-MM-DD", common.ErrInvalidInput)
	}
	return d.AddDate(0, 0, -WindowDays).Format(dateLayout), d.AddDate(0, 0, WindowDays).Format(dateLayout), nil
}

// Match finds declarations whose truck id contains truckID, declared within
// the window around arrivalDate, for exactly this client.
func (m *Matcher) Match(ctx context.Context, truckID, arrivalDate, client string) (MatchResult, error) {
	truckID, arrivalDate, client = strings.TrimSpace(truckID), strings.TrimSpace(arrivalDate), strings.TrimSpace(client)
	if truckID == "" || arrivalDate == "" || client == "" {
		return MatchResult{}, ErrMatchParamsMissing
	}

	from, to, err := DateRange(arrivalDate)
	if err != nil {
		return MatchResult{}, err
	}
	// Declaration times carry a time part, so the last day is covered by
	// comparing against the start of the following day.
	end, _ := time.Parse(dateLayout, to)
	until := end.AddDate(0, 0, 1).Format(dateLayout)

	recs, err := m.store.Match(ctx, truckID, from, until, client)
	if err != nil {
		return MatchResult{}, err
	}
	m.logger.Debug("reference.match", "truck", truckID, "from", from, "to", to, "client", client, "count", len(recs))
	return MatchResult{Candidates: recs, Count: len(recs)}, nil
}
