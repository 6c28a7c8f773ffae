// Package parser extracts candidate grant records from free-text model
// replies and collapses duplicates across differently-worded queries.
package parser

import (
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/chiziuwaga/kevin-smart-grant-finder-sub000/internal/model"
)

// fieldPattern matches one "Label: value" line, case-insensitively.
var fieldPattern = regexp.MustCompile(`(?i)^\s*(title|funder|funder name|organization|amount|funding amount|deadline|due date|url|source url|link|application url|description|summary|eligibility)\s*[:：]\s*(.+)$`)

// urlPattern matches an absolute http(s) URL with no embedded whitespace.
var urlPattern = regexp.MustCompile(`^https?://\S+$`)

// amountPattern captures the first dollar figure in an amount string.
var amountPattern = regexp.MustCompile(`[\d][\d,]*(?:\.\d+)?`)

// Parse splits a model reply into paragraph blocks and extracts one
// candidate per block. A block only becomes a candidate when it carries
// both a title and a direct absolute URL; blocks missing either are
// dropped silently, since the prompt tells the model to omit anything
// without an application URL.
func Parse(content string, chunk model.SearchChunk) []model.RawCandidate {
	var candidates []model.RawCandidate

	for _, block := range splitBlocks(content) {
		c, ok := parseBlock(block)
		if !ok {
			continue
		}
		c.SearchChunkID = chunk.ID
		c.GeographicFocus = chunk.GeographicFocus
		c.SectorFocus = chunk.SectorFocus
		candidates = append(candidates, c)
	}

	zap.L().Debug("parser: extracted candidates",
		zap.String("chunk", chunk.ID),
		zap.Int("count", len(candidates)),
	)
	return candidates
}

// splitBlocks divides content on blank lines.
func splitBlocks(content string) []string {
	var blocks []string
	for _, raw := range regexp.MustCompile(`\n\s*\n`).Split(content, -1) {
		if strings.TrimSpace(raw) != "" {
			blocks = append(blocks, raw)
		}
	}
	return blocks
}

func parseBlock(block string) (model.RawCandidate, bool) {
	var c model.RawCandidate

	for _, line := range strings.Split(block, "\n") {
		m := fieldPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		label := strings.ToLower(strings.TrimSpace(m[1]))
		value := strings.TrimSpace(m[2])
		if value == "" {
			continue
		}

		switch label {
		case "title":
			c.Title = stripMarkup(value)
		case "funder", "funder name", "organization":
			c.FunderName = stripMarkup(value)
		case "amount", "funding amount":
			c.FundingAmountDisplay = value
			c.FundingAmount = parseAmount(value)
		case "deadline", "due date":
			c.Deadline = value
		case "url", "source url", "link", "application url":
			c.SourceURL = cleanURL(value)
		case "description", "summary":
			c.Description = value
		case "eligibility":
			c.Eligibility = value
		}
	}

	if c.Title == "" || c.SourceURL == "" {
		return model.RawCandidate{}, false
	}
	return c, true
}

// parseAmount strips currency formatting and parses the first number.
// Unparseable amounts yield zero; the display string is kept either way.
func parseAmount(s string) float64 {
	m := amountPattern.FindString(s)
	if m == "" {
		return 0
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m, ",", ""), 64)
	if err != nil {
		return 0
	}
	return v
}

// cleanURL trims markdown link syntax and trailing punctuation, then
// validates the result is a bare absolute URL. Anything else is
// rejected so the candidate fails the URL gate.
func cleanURL(s string) string {
	s = strings.TrimSpace(s)

	// Markdown form: [text](https://...)
	if i := strings.LastIndex(s, "]("); i >= 0 && strings.HasSuffix(s, ")") {
		s = s[i+2 : len(s)-1]
	}
	s = strings.Trim(s, "<>")
	s = strings.TrimRight(s, ".,;)")

	if !urlPattern.MatchString(s) || !model.IsAbsoluteURL(s) {
		return ""
	}
	return s
}

// stripMarkup removes light markdown emphasis the models tend to emit.
func stripMarkup(s string) string {
	s = strings.ReplaceAll(s, "**", "")
	s = strings.ReplaceAll(s, "##", "")
	return strings.TrimSpace(s)
}
