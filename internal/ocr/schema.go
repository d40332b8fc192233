package ocr

import (
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/joseph-ayodele/cdv-tracker/internal/common"
)

// BuildResultJSONSchema returns the JSON Schema of a terminal OCR result.
func BuildResultJSONSchema() map[string]any {
	amount := map[string]any{"type": "number", "minimum": 0}
	cdv := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"camion":           map[string]any{"type": "string", "minLength": 1},
			"date_arrivee":     map[string]any{"type": "string", "pattern": `^\d{4}-\d{2}-\d{2}$`},
			"frais_transit":    amount,
			"frais_commission": amount,
			"autre_frais":      amount,
		},
		"required": []string{"camion", "date_arrivee", "frais_transit", "frais_commission", "autre_frais"},
	}
	line := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"client":            map[string]any{"type": "string"},
			"produit":           map[string]any{"type": "string"},
			"colis":             map[string]any{"type": "integer", "minimum": 0},
			"poids_brut":        amount,
			"poids_net":         amount,
			"prix_unitaire_net": amount,
		},
		"required": []string{"client", "produit", "colis", "poids_brut", "poids_net", "prix_unitaire_net"},
	}
	fiche := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"lignes": map[string]any{"type": "array", "minItems": 1, "items": line},
		},
		"required": []string{"lignes"},
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"sessionId": map[string]any{"type": "string"},
			"cdv":       cdv,
			"fiche":     fiche,
		},
		"required": []string{"sessionId", "cdv", "fiche"},
	}
}

var (
	resultSchemaOnce sync.Once
	resultSchema     *jsonschema.Schema
	resultSchemaErr  error
)

// ValidateResult validates a decoded JSON document against the result schema.
func ValidateResult(doc any) error {
	resultSchemaOnce.Do(func() {
		resultSchema, resultSchemaErr = common.CompileJSONSchema(BuildResultJSONSchema())
	})
	if resultSchemaErr != nil {
		return resultSchemaErr
	}
	if err := resultSchema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %w", ErrSchema, err)
	}
	return nil
}
