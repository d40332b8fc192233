package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/cdv-tracker/constants"
	"github.com/joseph-ayodele/cdv-tracker/internal/entity"
)

func TestDocumentRepository(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	sessions := NewSessionRepository(db, nil)
	docs := NewDocumentRepository(db, nil)

	s, err := sessions.Create(ctx, &entity.Session{})
	require.NoError(t, err)

	older := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	_, err = docs.SaveGenerated(ctx, &entity.GeneratedDocument{SessionID: s.ID, Kind: constants.GeneratedCalculation, FilePath: "/out/a.xlsx", GeneratedAt: older})
	require.NoError(t, err)
	saved, err := docs.SaveGenerated(ctx, &entity.GeneratedDocument{SessionID: s.ID, Kind: constants.GeneratedCdv, FilePath: "/out/b.pdf", GeneratedAt: older.Add(time.Hour)})
	require.NoError(t, err)

	list, err := docs.ListGenerated(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, saved.ID, list[0].ID)
	assert.Equal(t, constants.GeneratedCdv, list[0].Kind)
	assert.Equal(t, "/out/a.xlsx", list[1].FilePath)

	require.NoError(t, sessions.Delete(ctx, s.ID))
	list, err = docs.ListGenerated(ctx, s.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}
