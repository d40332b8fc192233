package constants

import "strings"

// DocumentKind identifies which source document of a session a file is.
type DocumentKind string

const (
	DocumentCdv      DocumentKind = "cdv"       // compte de vente
	DocumentFicheLot DocumentKind = "fiche_lot" // fiche de lot
)

// GeneratedKind identifies a generated output document.
type GeneratedKind string

const (
	GeneratedCalculation GeneratedKind = "calcul"
	GeneratedCdv         GeneratedKind = "cdv_reconstitue"
	GeneratedFicheLot    GeneratedKind = "fiche_lot_reconstituee"
)

// AllowedExtensions holds the file extensions accepted for source documents.
var AllowedExtensions = map[string]struct{}{
	"pdf": {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}
