package parser

import (
	"encoding/csv"
	"strings"
)

// csvHeaders maps recognised header cells onto record fields.
var csvHeaders = map[string]string{
	"name": "name", "full name": "name", "contact": "name", "contact name": "name",
	"first name": "first", "first": "first", "given name": "first", "firstname": "first",
	"last name": "last", "last": "last", "surname": "last", "family name": "last", "lastname": "last",
	"email": "email", "email address": "email", "e mail": "email",
	"phone": "phone", "phone number": "phone", "tel": "phone", "telephone": "phone", "mobile": "phone",
	"company": "company", "company name": "company", "organization": "company",
	"organisation": "company", "org": "company", "employer": "company", "account": "company",
	"title": "title", "job title": "title", "position": "title", "role": "title",
	"website": "website", "web": "website", "url": "website", "site": "website", "domain": "website",
	"linkedin": "social", "linkedin url": "social", "social": "social", "social url": "social",
	"twitter": "social", "github": "social",
}

// parseBulk handles blank-line separated blocks and CSV-like rows.
func parseBulk(input string, c *collector) {
	text := normalizeNewlines(input)

	if blocks := splitBlocks(text); len(blocks) > 1 {
		for _, block := range blocks {
			if rows, ok := readCSV(block); ok {
				parseRows(rows, c)
				continue
			}
			c.emit(extractRecord(block, c))
		}
		return
	}

	if rows, ok := readCSV(text); ok {
		parseRows(rows, c)
		return
	}
	c.emit(extractRecord(text, c))
}

// readCSV accepts text as CSV when it has at least two rows, every row has
// the same number of fields and the rows either carry a recognised header or
// at least three columns.
func readCSV(text string) ([][]string, bool) {
	var lines int
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if !strings.Contains(line, ",") {
			return nil, false
		}
		lines++
	}
	if lines < 2 {
		return nil, false
	}

	reader := csv.NewReader(strings.NewReader(text))
	reader.TrimLeadingSpace = true
	rows, err := reader.ReadAll()
	if err != nil || len(rows) < 2 || len(rows[0]) < 2 {
		return nil, false
	}

	if headerColumns(rows[0]) == nil && len(rows[0]) < 3 {
		return nil, false
	}
	return rows, true
}

// headerColumns returns column index to field when at least two cells of row
// are recognised headers.
func headerColumns(row []string) map[int]string {
	columns := make(map[int]string)
	for i, cell := range row {
		key := strings.ToLower(strings.TrimSpace(cell))
		key = strings.NewReplacer("_", " ", "-", " ").Replace(key)
		if field, ok := csvHeaders[key]; ok {
			columns[i] = field
		}
	}
	if len(columns) < 2 {
		return nil
	}
	return columns
}

func parseRows(rows [][]string, c *collector) {
	columns := headerColumns(rows[0])
	if columns == nil {
		// no header: every row is a freeform entry
		for _, row := range rows {
			c.emit(extractRecord(strings.Join(row, "\n"), c))
		}
		return
	}

	for _, row := range rows[1:] {
		rec := &record{}
		for i, value := range row {
			if field, ok := columns[i]; ok {
				rec.set(field, value)
			}
		}
		c.emit(rec)
	}
}
