package parser

import (
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected Format
	}{
		{"vcard", "BEGIN:VCARD\nFN:Jane Doe\nEND:VCARD", FormatVCard},
		{"lower case vcard marker", "begin:vcard\nfn:x\nend:vcard", FormatVCard},
		{"blank line separated blocks", "Jane Doe\njane@acme.com\n\nBob Ray\nbob@acme.com", FormatBulk},
		{"csv with header", "name,email\nJane Doe,jane@acme.com", FormatBulk},
		{"csv without header", "Jane Doe,jane@acme.com,Acme\nBob Ray,bob@acme.com,Acme", FormatBulk},
		{"single block", "Jane Doe\nCEO at Acme\njane@acme.com", FormatFreeform},
		{"two column rows without header", "Jane Doe, CEO\nAcme, Inc.", FormatFreeform},
		{"empty", "", FormatFreeform},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DetectFormat(tt.input))
		})
	}
}

func TestParse_Freeform(t *testing.T) {
	input := strings.Join([]string{
		"Jane Doe",
		"VP of Sales at Acme Corp",
		"jane.doe@acme.com",
		"(555) 123-4567",
		"https://www.linkedin.com/in/janedoe/",
		"https://acme.com",
	}, "\n")

	result := Parse(input)

	assert.Equal(t, FormatFreeform, result.Format)
	assert.Equal(t, input, result.Raw)
	assert.Equal(t, []string{"jane.doe@acme.com"}, result.Emails)
	assert.Equal(t, []string{"5551234567"}, result.Phones)
	assert.Equal(t, []string{"https://acme.com"}, result.URLs)
	assert.Equal(t, []string{"linkedin.com/in/janedoe"}, result.SocialURLs)
	assert.Equal(t, []string{"acme.com"}, result.Domains)

	require.Len(t, result.Companies, 1)
	company := result.Companies[0]
	assert.Equal(t, "Acme Corp", deref(company.Name))
	assert.Equal(t, "https://acme.com", deref(company.Website))
	assert.Equal(t, "acme.com", deref(company.Domain))

	require.Len(t, result.People, 1)
	person := result.People[0]
	assert.Equal(t, "Jane Doe", deref(person.FullName))
	assert.Equal(t, "Jane", deref(person.FirstName))
	assert.Equal(t, "Doe", deref(person.LastName))
	assert.Equal(t, "jane.doe@acme.com", deref(person.Email))
	assert.Equal(t, "5551234567", deref(person.Phone))
	assert.Equal(t, "VP of Sales", deref(person.Title))
	assert.Equal(t, "linkedin.com/in/janedoe", deref(person.SocialURL))
	assert.Equal(t, "Acme Corp", deref(person.CompanyName))
}

func TestParse_FreeformShapes(t *testing.T) {
	t.Run("name and title before at", func(t *testing.T) {
		result := Parse("Jane Doe, CEO at Acme")
		require.Len(t, result.People, 1)
		assert.Equal(t, "Jane Doe", deref(result.People[0].FullName))
		assert.Equal(t, "CEO", deref(result.People[0].Title))
		assert.Equal(t, "Acme", deref(result.People[0].CompanyName))
	})

	t.Run("labelled lines", func(t *testing.T) {
		result := Parse("Name: Bob Ray\nCompany: Initech LLC\nEmail: bob@initech.com\nWebsite: initech.com")
		require.Len(t, result.People, 1)
		require.Len(t, result.Companies, 1)
		assert.Equal(t, "Bob Ray", deref(result.People[0].FullName))
		assert.Equal(t, "bob@initech.com", deref(result.People[0].Email))
		assert.Equal(t, "Initech LLC", deref(result.Companies[0].Name))
		assert.Equal(t, "initech.com", deref(result.Companies[0].Domain))
	})

	t.Run("company from legal suffix line", func(t *testing.T) {
		result := Parse("Globex Corporation\nhttps://globex.com")
		require.Len(t, result.Companies, 1)
		assert.Equal(t, "Globex Corporation", deref(result.Companies[0].Name))
		assert.Empty(t, result.People)
	})

	t.Run("unknown fields stay nil", func(t *testing.T) {
		result := Parse("jane@acme.com")
		require.Len(t, result.People, 1)
		person := result.People[0]
		assert.Equal(t, "jane@acme.com", deref(person.Email))
		assert.Nil(t, person.FullName)
		assert.Nil(t, person.FirstName)
		assert.Nil(t, person.Title)
		assert.Nil(t, person.Phone)
		assert.Nil(t, person.CompanyName)
		assert.Empty(t, result.Companies)
		assert.Equal(t, []string{"acme.com"}, result.Domains)
	})

	t.Run("free mail domains are not company domains", func(t *testing.T) {
		result := Parse("Ann Lee\nann@gmail.com")
		assert.Empty(t, result.Domains)
		assert.Empty(t, result.Companies)
	})

	t.Run("company social profile", func(t *testing.T) {
		result := Parse("Acme Inc\nlinkedin.com/company/acme")
		require.Len(t, result.Companies, 1)
		assert.Equal(t, "linkedin.com/company/acme", deref(result.Companies[0].SocialURL))
		assert.Empty(t, result.People)
	})
}

func TestParse_VCard(t *testing.T) {
	input := strings.Join([]string{
		"BEGIN:VCARD",
		"VERSION:3.0",
		"FN:John Smith",
		"N:Smith;John;;;",
		"ORG:Globex Corporation;Sales",
		"TITLE:Director of",
		"  Operations",
		"EMAIL;TYPE=INTERNET:John.Smith@Globex.com",
		"TEL;TYPE=CELL:+1 415 555 0100",
		"item1.URL:https://globex.com",
		"END:VCARD",
		"BEGIN:VCARD",
		"FN:Ann Lee",
		"EMAIL:ann@gmail.com",
		"X-SOCIALPROFILE;TYPE=twitter:https://twitter.com/annlee",
		"END:VCARD",
	}, "\r\n")

	result := Parse(input)

	assert.Equal(t, FormatVCard, result.Format)
	require.Len(t, result.People, 2)
	require.Len(t, result.Companies, 1)

	john := result.People[0]
	assert.Equal(t, "John Smith", deref(john.FullName))
	assert.Equal(t, "John", deref(john.FirstName))
	assert.Equal(t, "Smith", deref(john.LastName))
	assert.Equal(t, "john.smith@globex.com", deref(john.Email))
	assert.Equal(t, "14155550100", deref(john.Phone))
	assert.Equal(t, "Director of Operations", deref(john.Title))
	assert.Equal(t, "Globex Corporation", deref(john.CompanyName))

	assert.Equal(t, "Globex Corporation", deref(result.Companies[0].Name))
	assert.Equal(t, "globex.com", deref(result.Companies[0].Domain))

	ann := result.People[1]
	assert.Equal(t, "x.com/annlee", deref(ann.SocialURL))
	assert.Nil(t, ann.CompanyName)

	assert.Equal(t, []string{"john.smith@globex.com", "ann@gmail.com"}, result.Emails)
	assert.Equal(t, []string{"globex.com"}, result.Domains)
}

func TestParse_BulkCSV(t *testing.T) {
	input := "Name,Email,Company,Title,Website\n" +
		"Jane Doe,jane@acme.com,Acme Inc,CEO,acme.com\n" +
		"Bob Ray,bob@gmail.com,,,\n"

	result := Parse(input)

	assert.Equal(t, FormatBulk, result.Format)
	require.Len(t, result.People, 2)
	require.Len(t, result.Companies, 1)
	assert.Equal(t, "Acme Inc", deref(result.Companies[0].Name))
	assert.Equal(t, "acme.com", deref(result.Companies[0].Domain))
	assert.Equal(t, "CEO", deref(result.People[0].Title))
	assert.Nil(t, result.People[1].Title)
	assert.Equal(t, []string{"jane@acme.com", "bob@gmail.com"}, result.Emails)
	assert.Equal(t, []string{"acme.com"}, result.Domains)
}

func TestParse_BulkBlocksUnionAtomics(t *testing.T) {
	input := "Jane Doe\njane@acme.com\n\nBob Ray\nbob@acme.com\n\nJane Doe\njane@acme.com"

	result := Parse(input)

	assert.Equal(t, FormatBulk, result.Format)
	assert.Len(t, result.People, 3)
	assert.Equal(t, []string{"jane@acme.com", "bob@acme.com"}, result.Emails)
	assert.Equal(t, []string{"acme.com"}, result.Domains)
}

func TestParse_NothingExtracted(t *testing.T) {
	for _, input := range []string{"", "   ", "!!! ???", "BEGIN:VCARD\nEND:VCARD"} {
		result := Parse(input)
		require.NotNil(t, result)
		assert.True(t, result.Empty(), input)
		assert.NotNil(t, result.People)
		assert.NotNil(t, result.Emails)
	}
}

func TestParseReader(t *testing.T) {
	result, err := ParseReader(strings.NewReader("jane@acme.com"))
	require.NoError(t, err)
	assert.Equal(t, []string{"jane@acme.com"}, result.Emails)

	_, err = ParseReader(iotest.ErrReader(assert.AnError))
	assert.ErrorIs(t, err, assert.AnError)
}
