// Package document renders the intake sheet handed out after a consultation
// with a scheduled first visit is saved.
package document

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"consultation-desk/models"

	"github.com/xuri/excelize/v2"
)

const (
	sheetName = "相談受付票"
	extension = ".xlsx"
)

var ErrInvalidFileID = errors.New("invalid document file id")

type Document struct {
	FileID    string
	URL       string
	CreatedAt string
}

type Renderer struct {
	dir     string
	baseURL string
	now     func() time.Time
}

func NewRenderer(dir, baseURL string) (*Renderer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create document directory: %w", err)
	}
	return &Renderer{
		dir:     dir,
		baseURL: strings.TrimRight(baseURL, "/"),
		now:     time.Now,
	}, nil
}

func (r *Renderer) Dir() string {
	return r.dir
}

func (r *Renderer) URL(fileID string) string {
	return r.baseURL + "/" + fileID + extension
}

// Render writes the sheet for a saved record. Re-rendering a record that
// already has a document overwrites the same file.
func (r *Renderer) Render(c *models.Consultation) (Document, error) {
	if c.ID == "" {
		return Document{}, fmt.Errorf("cannot render unsaved consultation")
	}

	fileID := models.Deref(c.PdfFileID)
	if fileID == "" {
		fileID = c.ID
	}
	if fileID != filepath.Base(fileID) || strings.ContainsAny(fileID, `/\`) || fileID == "." || fileID == ".." {
		return Document{}, ErrInvalidFileID
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := writeSheet(f, c); err != nil {
		return Document{}, err
	}

	path := filepath.Join(r.dir, fileID+extension)
	if err := f.SaveAs(path); err != nil {
		return Document{}, fmt.Errorf("failed to save document: %w", err)
	}

	return Document{
		FileID:    fileID,
		URL:       r.URL(fileID),
		CreatedAt: r.now().Format(time.RFC3339),
	}, nil
}

type row struct {
	label string
	value string
}

func sheetRows(c *models.Consultation) []row {
	cert := ""
	if c.CertificationStatus != nil {
		cert = string(*c.CertificationStatus)
	}
	return []row{
		{"受付日", c.ReceptionDate},
		{"被保険者番号", models.Deref(c.InsuredNumber)},
		{"保険者", models.Deref(c.Insurer)},
		{"名前", c.Name},
		{"フリガナ", c.Furigana},
		{"性別", string(c.Gender)},
		{"生年月日", ToJapaneseEra(c.BirthDate)},
		{"住所", models.Deref(c.Address)},
		{"本人電話番号", models.Deref(c.Phone)},
		{"相談者名", c.ConsultantName},
		{"相談手段", string(c.Method)},
		{"相談者電話番号", models.Deref(c.ConsultantPhone)},
		{"続柄・関係", models.Deref(c.Relationship)},
		{"相談経緯", models.Deref(c.Background)},
		{"相談内容", c.Content},
		{"利用状況", models.Deref(c.CurrentUsage)},
		{"認定状況", cert},
		{"支援内容", models.Deref(c.SupportProvided)},
		{"困難な理由", models.Deref(c.DifficultyReason)},
		{"対応", c.Response},
		{"初回訪問日時", strings.Replace(models.Deref(c.FirstVisitDate), "T", " ", 1)},
		{"訪問場所", models.Deref(c.VisitLocation)},
		{"特記事項", models.Deref(c.SpecialNotes)},
		{"相談受付者", c.StaffName},
		{"担当ケアマネ", models.Deref(c.CareManager)},
	}
}

func writeSheet(f *excelize.File, c *models.Consultation) error {
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("failed to delete default sheet: %w", err)
	}
	f.SetActiveSheet(index)

	labelStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F7F5"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create label style: %w", err)
	}
	valueStyle, err := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create value style: %w", err)
	}

	if err := f.SetCellValue(sheetName, "A1", sheetName); err != nil {
		return fmt.Errorf("failed to set title: %w", err)
	}
	if err := f.SetColWidth(sheetName, "A", "A", 18); err != nil {
		return fmt.Errorf("failed to set column width: %w", err)
	}
	if err := f.SetColWidth(sheetName, "B", "B", 60); err != nil {
		return fmt.Errorf("failed to set column width: %w", err)
	}

	for i, r := range sheetRows(c) {
		n := i + 3
		label, value := fmt.Sprintf("A%d", n), fmt.Sprintf("B%d", n)
		if err := f.SetCellValue(sheetName, label, r.label); err != nil {
			return fmt.Errorf("failed to set cell %s: %w", label, err)
		}
		if err := f.SetCellValue(sheetName, value, r.value); err != nil {
			return fmt.Errorf("failed to set cell %s: %w", value, err)
		}
		if err := f.SetCellStyle(sheetName, label, label, labelStyle); err != nil {
			return fmt.Errorf("failed to style cell %s: %w", label, err)
		}
		if err := f.SetCellStyle(sheetName, value, value, valueStyle); err != nil {
			return fmt.Errorf("failed to style cell %s: %w", value, err)
		}
	}
	return nil
}
