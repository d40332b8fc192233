package ocr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validResult = `{
  "sessionId": "s-1",
  "cdv": {"camion": "AB-123-CD", "date_arrivee": "2025-03-14", "frais_transit": 38.64, "frais_commission": 443.88, "autre_frais": 56},
  "fiche": {"lignes": [
    {"client": "DUPONT", "produit": "TOMATE", "colis": 20, "poids_brut": 850, "poids_net": 840, "prix_unitaire_net": 1.38},
    {"client": "MARTIN", "produit": "TOMATE", "colis": 15, "poids_brut": 650, "poids_net": 640, "prix_unitaire_net": 1.5}
  ]}
}`

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"fenced json block", "Here you go:\n```json\n{\"a\": 1}\n```\nthanks", `{"a": 1}`},
		{"fenced block without language", "```\n{\"a\": 2}\n```", `{"a": 2}`},
		{"bare object in prose", `result: {"a": {"b": 3}} end`, `{"a": {"b": 3}}`},
		{"plain text", "  not json  ", "not json"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractJSON(tt.in))
		})
	}
}

func TestParseReply_Result(t *testing.T) {
	rep, err := parseReply([]byte("```json\n" + validResult + "\n```"))
	require.NoError(t, err)
	require.NotNil(t, rep.Result)
	assert.Empty(t, rep.Status)

	res := rep.Result
	assert.Equal(t, "s-1", res.SessionID)
	assert.Equal(t, "AB-123-CD", res.Cdv.Truck)
	assert.Equal(t, "2025-03-14", res.Cdv.ArrivalDate)
	assert.Equal(t, 443.88, res.Cdv.FeeCommission)
	require.Len(t, res.Fiche.Lines, 2)
	assert.Equal(t, 20, res.Fiche.Lines[0].Packages)
	assert.Equal(t, 1.5, res.Fiche.Lines[1].UnitPrice)
	assert.NotEmpty(t, res.Raw)
}

func TestParseReply_StatusMarkers(t *testing.T) {
	rep, err := parseReply([]byte(`{"status":"accepted"}`))
	require.NoError(t, err)
	assert.Equal(t, statusAccepted, rep.Status)
	assert.Nil(t, rep.Result)

	rep, err = parseReply([]byte(`{"status":"processing"}`))
	require.NoError(t, err)
	assert.Equal(t, statusProcessing, rep.Status)
}

func TestParseReply_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		target error
	}{
		{"not json", "oops", ErrInvalidJSON},
		{"unknown status", `{"status":"failed"}`, ErrSchema},
		{"negative fee", `{"sessionId":"s","cdv":{"camion":"X","date_arrivee":"2025-01-01","frais_transit":-1,"frais_commission":0,"autre_frais":0},"fiche":{"lignes":[{"client":"a","produit":"b","colis":1,"poids_brut":1,"poids_net":1,"prix_unitaire_net":1}]}}`, ErrSchema},
		{"no lines", `{"sessionId":"s","cdv":{"camion":"X","date_arrivee":"2025-01-01","frais_transit":0,"frais_commission":0,"autre_frais":0},"fiche":{"lignes":[]}}`, ErrSchema},
		{"fractional packages", `{"sessionId":"s","cdv":{"camion":"X","date_arrivee":"2025-01-01","frais_transit":0,"frais_commission":0,"autre_frais":0},"fiche":{"lignes":[{"client":"a","produit":"b","colis":1.5,"poids_brut":1,"poids_net":1,"prix_unitaire_net":1}]}}`, ErrSchema},
		{"bad date", `{"sessionId":"s","cdv":{"camion":"X","date_arrivee":"14/03/2025","frais_transit":0,"frais_commission":0,"autre_frais":0},"fiche":{"lignes":[{"client":"a","produit":"b","colis":1,"poids_brut":1,"poids_net":1,"prix_unitaire_net":1}]}}`, ErrSchema},
		{"empty truck", `{"sessionId":"s","cdv":{"camion":"","date_arrivee":"2025-01-01","frais_transit":0,"frais_commission":0,"autre_frais":0},"fiche":{"lignes":[{"client":"a","produit":"b","colis":1,"poids_brut":1,"poids_net":1,"prix_unitaire_net":1}]}}`, ErrSchema},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseReply([]byte(tt.body))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.target)
		})
	}
}

func TestRetryable(t *testing.T) {
	assert.False(t, Retryable(nil))
	assert.False(t, Retryable(newError("submit", KindConfig, "", ErrNotConfigured)))
	assert.False(t, Retryable(ErrNotConfigured))
	assert.True(t, Retryable(newError("submit", KindTransport, "", ErrHTTPStatus)))
	assert.True(t, Retryable(newError("submit", KindContent, "", ErrSchema)))
	assert.True(t, Retryable(newError("poll", KindTimeout, "", ErrTimeout)))
}

func TestError_UserMessage(t *testing.T) {
	err := newError("poll", KindTimeout, "OCR timed out after 1m0s", ErrTimeout)
	assert.Equal(t, "OCR timed out after 1m0s", err.UserMessage())
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, KindTimeout, KindOf(err))
	assert.Equal(t, Kind(""), KindOf(assert.AnError))
}
