package importer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "contacts.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadCSV(t *testing.T) {
	path := writeCSV(t, `id,name,company,linkedin_url
c1,Ada Lovelace,Analytical Engines,https://linkedin.com/in/ada
c2,Bob Noyce,Intel,
`)
	list, err := LoadCSV(path)
	require.NoError(t, err)
	require.Len(t, list, 2)

	assert.Equal(t, "c1", list[0].ID)
	assert.Equal(t, "Ada Lovelace", list[0].Name)
	assert.Equal(t, "Analytical Engines", list[0].Company)
	assert.Equal(t, "https://linkedin.com/in/ada", list[0].LinkedInURL)
	assert.Empty(t, list[1].LinkedInURL)
}

func TestLoadCSVAlternateHeaders(t *testing.T) {
	path := writeCSV(t, `Contact_ID,Full_Name,Account
c1,Ada Lovelace,Analytical Engines
`)
	list, err := LoadCSV(path)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "c1", list[0].ID)
	assert.Equal(t, "Analytical Engines", list[0].Company)
}

func TestLoadCSVSkipsBlankRows(t *testing.T) {
	path := writeCSV(t, `id,name
c1,Ada
,
c2,Bob
`)
	list, err := LoadCSV(path)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestLoadCSVMissingRequiredColumn(t *testing.T) {
	path := writeCSV(t, `name,company
Ada,Acme
`)
	_, err := LoadCSV(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no id column")
}

func TestLoadCSVRowMissingName(t *testing.T) {
	path := writeCSV(t, `id,name
c1,Ada
c2,
`)
	_, err := LoadCSV(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing id or name")
}

func TestLoadCSVEmptyFile(t *testing.T) {
	path := writeCSV(t, `id,name
`)
	_, err := LoadCSV(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no contacts")
}

func writeXLSX(t *testing.T, rows [][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Contacts")
	require.NoError(t, err)
	for _, row := range rows {
		r := sheet.AddRow()
		for _, val := range row {
			r.AddCell().SetString(val)
		}
	}
	path := filepath.Join(t.TempDir(), "contacts.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func TestLoadXLSX(t *testing.T) {
	path := writeXLSX(t, [][]string{
		{"id", "name", "company"},
		{"c1", "Ada Lovelace", "Analytical Engines"},
		{"c2", "Bob Noyce", "Intel"},
	})
	list, err := LoadXLSX(path)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Bob Noyce", list[1].Name)
	assert.Equal(t, "Intel", list[1].Company)
}

func TestLoadXLSXMissingFile(t *testing.T) {
	_, err := LoadXLSX("/nonexistent/contacts.xlsx")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open xlsx")
}

func TestLoadDispatchesOnExtension(t *testing.T) {
	csvPath := writeCSV(t, "id,name\nc1,Ada\n")
	list, err := Load(csvPath)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = Load("contacts.txt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported file type")
}
