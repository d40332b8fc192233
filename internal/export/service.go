package export

import (
	"archive/zip"
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/cdv-tracker/internal/calc"
	"github.com/joseph-ayodele/cdv-tracker/internal/common"
	"github.com/joseph-ayodele/cdv-tracker/internal/entity"
)

const (
	SheetInformations = "INFORMATIONS"
	SheetLines        = "LIGNE DE VENTE"
	SheetCalculation  = "CALCUL"

	linesTable = "ligne_de_vente"
)

var unsafeName = regexp.MustCompile(`[<>:"/\\|?*]`)

// Service builds the calculation workbook of a session and writes it, alone
// or packaged with the source PDFs, under an output directory.
type Service struct {
	dir    string
	logger *slog.Logger
}

func NewService(dir string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if dir == "" {
		dir = "."
	}
	return &Service{dir: dir, logger: logger}
}

// CalculationWorkbook returns the XLSX bytes for a session: the header
// fields, the sale lines with the price helper columns, and the computed
// reconciliation.
func (s *Service) CalculationWorkbook(sess *entity.Session, lines []entity.LineItem) ([]byte, error) {
	start := time.Now()
	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			s.logger.Warn("export.xlsx.close_error", "error", err)
		}
	}()

	if err := f.SetSheetName("Sheet1", SheetInformations); err != nil {
		return nil, err
	}
	for _, name := range []string{SheetLines, SheetCalculation} {
		if _, err := f.NewSheet(name); err != nil {
			return nil, err
		}
	}

	if err := writeInformations(f, sess); err != nil {
		return nil, fmt.Errorf("informations sheet: %w", err)
	}
	if err := writeLines(f, lines); err != nil {
		return nil, fmt.Errorf("lines sheet: %w", err)
	}
	res := calc.Calculate(calc.InputFromSession(sess), lines)
	if err := writeCalculation(f, res); err != nil {
		return nil, fmt.Errorf("calculation sheet: %w", err)
	}
	f.SetActiveSheet(0)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	s.logger.Info("export.xlsx.ok",
		"session_id", sess.ID.String(),
		"rows", len(lines),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func writeRow(f *excelize.File, sheet string, row int, values ...any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}

func writeInformations(f *excelize.File, s *entity.Session) error {
	headers := []any{
		"Produit", "Camion", "Date arrivée", "Frais transit", "Frais commission",
		"Autre frais", "Frais UE", "Frais internationaux", "Poids déclaré",
		"Prix déclaré/kg", "Date BAE", "Dossier", "Client", "Fournisseur", "N° déclaration",
	}
	if err := writeRow(f, SheetInformations, 1, headers...); err != nil {
		return err
	}
	if err := writeRow(f, SheetInformations, 2,
		s.Product, s.Truck, s.ArrivalDate, s.FeeTransit, s.FeeCommission,
		s.FeeOther, s.FeeEU, s.FeeIntl, s.DeclaredWeight,
		s.DeclaredUnitPrice, s.DeclarationDate, s.FileNumber, s.Client, s.Supplier, s.DeclarationNumber,
	); err != nil {
		return err
	}
	return f.SetColWidth(SheetInformations, "A", "O", 16)
}

// writeLines fills columns A-F with the sale lines. H repeats the unit price
// and I holds the net weight of all lines at that price, so the retained
// price can be recomputed in the sheet with INDEX(H, MATCH(MAX(I), I, 0)).
func writeLines(f *excelize.File, lines []entity.LineItem) error {
	if err := writeRow(f, SheetLines, 1,
		"Client", "Produit", "Colis", "Poids brut", "Poids net", "Prix unitaire net",
		nil, "Prix", "Poids net par prix",
	); err != nil {
		return err
	}

	byPrice := calc.GroupByPrice(lines).NetWeightByPrice()
	for i, l := range lines {
		if err := writeRow(f, SheetLines, i+2,
			l.Client, l.Product, l.Packages, l.GrossWeight, l.NetWeight, l.UnitPrice,
			nil, l.UnitPrice, byPrice[l.UnitPrice],
		); err != nil {
			return err
		}
	}
	if len(lines) > 0 {
		if err := f.AddTable(SheetLines, &excelize.Table{
			Range:     fmt.Sprintf("A1:F%d", len(lines)+1),
			Name:      linesTable,
			StyleName: "TableStyleMedium2",
		}); err != nil {
			return err
		}
	}
	_ = f.SetColWidth(SheetLines, "A", "B", 24)
	_ = f.SetColWidth(SheetLines, "C", "I", 14)
	return nil
}

func writeCalculation(f *excelize.File, r calc.Result) error {
	decision, amount := r.Decision()
	label := "VALEUR DECLAREE MAINTENUE"
	if decision == calc.DecisionReport {
		label = "VALEUR A REPORTER"
	}
	rows := [][]any{
		{"Total colis", r.TotalPackages},
		{"Total poids brut", r.TotalGrossWeight},
		{"Total poids net", r.TotalNetWeight},
		{"Total ventes", r.TotalSales},
		{"Total frais", r.TotalFees},
		{"Net à payer", r.NetPayable},
		{"Prix retenu", r.RetainedPrice},
		{"Poids déclaré", r.DeclaredWeight},
		{"Poids vendu", r.SoldWeight},
		{"Écart poids", r.WeightGap},
		{"Valeur déclarée", r.DeclaredValue},
		{"Valeur brute", r.GrossValue},
		{"Valeur nette", r.NetValue},
		{"Écart valeur", r.ValueGap},
		{"Décision", label},
		{"Montant à reporter", amount},
	}
	for i, row := range rows {
		if err := writeRow(f, SheetCalculation, i+1, row...); err != nil {
			return err
		}
	}
	return f.SetColWidth(SheetCalculation, "A", "A", 24)
}

// BuildFileName returns "<client>_<truck>_<arrival date>.xlsx" with
// characters unsafe in file names replaced.
func BuildFileName(s *entity.Session) string {
	clean := func(v, fallback string) string {
		v = strings.TrimSpace(v)
		if v == "" {
			v = fallback
		}
		v = unsafeName.ReplaceAllString(v, "_")
		return strings.Join(strings.Fields(v), "_")
	}
	date := s.ArrivalDate
	if date == "" {
		date = time.Now().UTC().Format("2006-01-02")
	}
	return strings.Join([]string{clean(s.Client, "Client"), clean(s.Truck, "Camion"), date}, "_") + ".xlsx"
}

// WriteFile writes the workbook to the output directory and returns its path.
func (s *Service) WriteFile(sess *entity.Session, lines []entity.LineItem) (string, error) {
	data, err := s.CalculationWorkbook(sess, lines)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", common.WrapError(err, "create export dir")
	}
	path := filepath.Join(s.dir, BuildFileName(sess))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}

// WritePackage writes a ZIP holding the workbook and the session's source
// PDFs that still exist on disk.
func (s *Service) WritePackage(sess *entity.Session, lines []entity.LineItem) (string, error) {
	data, err := s.CalculationWorkbook(sess, lines)
	if err != nil {
		return "", err
	}
	name := BuildFileName(sess)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	add := func(name string, content []byte) error {
		w, err := zw.Create(name)
		if err != nil {
			return err
		}
		_, err = w.Write(content)
		return err
	}
	if err := add(name, data); err != nil {
		return "", err
	}
	for _, p := range []string{sess.PDFCdvPath, sess.PDFFicheLotPath} {
		if p == "" {
			continue
		}
		content, err := os.ReadFile(p)
		if err != nil {
			s.logger.Warn("export.zip.pdf_skipped", "path", p, "error", err)
			continue
		}
		if err := add(filepath.Base(p), content); err != nil {
			return "", err
		}
	}
	if err := zw.Close(); err != nil {
		return "", common.WrapError(err, "close package")
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(s.dir, strings.TrimSuffix(name, ".xlsx")+".zip")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}
