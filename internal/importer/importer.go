// Package importer loads contact lists from CSV and XLSX files for batch
// submission. The first row is a header; columns are matched by name so
// exports from different CRMs load without reordering.
package importer

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/outreach-cli/internal/model"
)

// Header names accepted for each contact field, lowercased.
var (
	idHeaders       = []string{"id", "contact_id", "contactid"}
	nameHeaders     = []string{"name", "full_name", "contact_name"}
	companyHeaders  = []string{"company", "company_name", "account"}
	linkedinHeaders = []string{"linkedin_url", "linkedin", "linkedinurl"}
)

// Load reads a contact list from path, dispatching on the file extension.
func Load(path string) ([]model.Contact, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return LoadCSV(path)
	case ".xlsx":
		return LoadXLSX(path)
	default:
		return nil, eris.Errorf("importer: unsupported file type %q", filepath.Ext(path))
	}
}

// LoadCSV reads contacts from a CSV file with a header row.
func LoadCSV(path string) ([]model.Contact, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "importer: open csv")
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1 // allow variable fields

	header, err := reader.Read()
	if err != nil {
		return nil, eris.Wrap(err, "importer: read csv header")
	}
	cols, err := mapColumns(header)
	if err != nil {
		return nil, err
	}

	var list []model.Contact
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "importer: read csv row")
		}
		line++

		c, ok, err := contactFromRow(record, cols, line)
		if err != nil {
			return nil, err
		}
		if ok {
			list = append(list, c)
		}
	}

	if len(list) == 0 {
		return nil, eris.Errorf("importer: no contacts in %s", path)
	}
	return list, nil
}

// LoadXLSX reads contacts from the first sheet of an XLSX file with a header
// row.
func LoadXLSX(path string) ([]model.Contact, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "importer: open xlsx")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("importer: xlsx has no sheets")
	}
	sheet := f.Sheets[0]
	if len(sheet.Rows) == 0 {
		return nil, eris.New("importer: xlsx sheet is empty")
	}

	cols, err := mapColumns(rowToStrings(sheet.Rows[0]))
	if err != nil {
		return nil, err
	}

	var list []model.Contact
	for i, row := range sheet.Rows[1:] {
		c, ok, err := contactFromRow(rowToStrings(row), cols, i+2)
		if err != nil {
			return nil, err
		}
		if ok {
			list = append(list, c)
		}
	}

	if len(list) == 0 {
		return nil, eris.Errorf("importer: no contacts in %s", path)
	}
	return list, nil
}

// columns holds 0-based column indexes; -1 means absent.
type columns struct {
	id       int
	name     int
	company  int
	linkedin int
}

func mapColumns(header []string) (columns, error) {
	cols := columns{id: -1, name: -1, company: -1, linkedin: -1}
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(h))
		switch {
		case matches(key, idHeaders):
			cols.id = i
		case matches(key, nameHeaders):
			cols.name = i
		case matches(key, companyHeaders):
			cols.company = i
		case matches(key, linkedinHeaders):
			cols.linkedin = i
		}
	}
	if cols.id == -1 {
		return columns{}, eris.New("importer: header has no id column")
	}
	if cols.name == -1 {
		return columns{}, eris.New("importer: header has no name column")
	}
	return cols, nil
}

func matches(key string, accepted []string) bool {
	for _, a := range accepted {
		if key == a {
			return true
		}
	}
	return false
}

// contactFromRow builds a contact from one data row. Fully empty rows are
// skipped; rows missing a required field fail the import so bad exports are
// caught before a job is submitted.
func contactFromRow(record []string, cols columns, line int) (model.Contact, bool, error) {
	if empty(record) {
		return model.Contact{}, false, nil
	}

	c := model.Contact{
		ID:   cell(record, cols.id),
		Name: cell(record, cols.name),
	}
	if c.ID == "" || c.Name == "" {
		return model.Contact{}, false, eris.New("importer: row " + strconv.Itoa(line) + " is missing id or name")
	}
	c.Company = cell(record, cols.company)
	c.LinkedInURL = cell(record, cols.linkedin)
	return c, true, nil
}

func cell(record []string, idx int) string {
	if idx < 0 || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

func empty(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, c := range row.Cells {
		cells[j] = c.String()
	}
	return cells
}
