package parser

import (
	"strings"

	"github.com/Ramsey-B/fern/pkg/normalizers"
)

// parseVCards reads every BEGIN:VCARD ... END:VCARD block. Text outside the
// cards is ignored.
func parseVCards(input string, c *collector) {
	var card []string
	inCard := false

	for _, line := range unfoldLines(normalizeNewlines(input)) {
		upper := strings.ToUpper(strings.TrimSpace(line))
		switch {
		case upper == "BEGIN:VCARD":
			inCard = true
			card = nil
		case upper == "END:VCARD":
			if inCard {
				c.emit(cardRecord(card, c))
			}
			inCard = false
		case inCard:
			card = append(card, line)
		}
	}

	// a card missing its END line is still read
	if inCard && len(card) > 0 {
		c.emit(cardRecord(card, c))
	}
}

// unfoldLines joins continuation lines, which start with a space or tab.
func unfoldLines(text string) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if len(lines) > 0 && (strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t")) {
			lines[len(lines)-1] += line[1:]
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

func cardRecord(lines []string, c *collector) *record {
	rec := &record{}

	for _, line := range lines {
		name, value, ok := splitProperty(line)
		if !ok || value == "" {
			continue
		}

		switch name {
		case "FN":
			rec.set("name", unescape(value))
		case "N":
			parts := strings.Split(value, ";")
			rec.set("last", unescape(parts[0]))
			if len(parts) > 1 {
				rec.set("first", unescape(parts[1]))
			}
		case "EMAIL":
			c.addEmail(value)
			rec.set("email", normalizers.NormalizeEmail(value))
		case "TEL":
			value = strings.TrimPrefix(strings.ToLower(value), "tel:")
			c.addPhone(value)
			rec.set("phone", value)
		case "ORG":
			rec.set("company", unescape(strings.Split(value, ";")[0]))
		case "TITLE":
			rec.set("title", unescape(value))
		case "URL", "X-SOCIALPROFILE", "X-LINKEDIN", "X-TWITTER":
			value = unescape(value)
			if normalizers.IsSocialURL(value) {
				rec.set("social", value)
			} else {
				rec.set("website", value)
			}
		}
	}

	return rec
}

// splitProperty returns the upper-case property name without group prefix or
// parameters, and the raw value.
func splitProperty(line string) (string, string, bool) {
	idx := strings.Index(line, ":")
	if idx <= 0 {
		return "", "", false
	}
	name := strings.ToUpper(line[:idx])
	if semi := strings.Index(name, ";"); semi >= 0 {
		name = name[:semi]
	}
	if dot := strings.LastIndex(name, "."); dot >= 0 {
		name = name[dot+1:]
	}
	return strings.TrimSpace(name), strings.TrimSpace(line[idx+1:]), true
}

var vcardEscapes = strings.NewReplacer(`\,`, ",", `\;`, ";", `\n`, " ", `\N`, " ", `\\`, `\`)

func unescape(s string) string {
	return strings.TrimSpace(vcardEscapes.Replace(s))
}
