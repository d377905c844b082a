package markdown

import (
	"regexp"
	"strings"
)

// Line-anchored patterns only match horizontal whitespace so that a rule never
// swallows the newline of a neighbouring line. Single-marker emphasis does not
// span lines, which keeps "* item" bullets intact.
var (
	fencedCodeRe = regexp.MustCompile("```[\\s\\S]*?```")
	inlineCodeRe = regexp.MustCompile("`([^`]+)`")

	headingRe = regexp.MustCompile(`(?m)^[ \t]*#{1,6}[ \t]*(.+?)$`)

	boldStarRe       = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	italicStarRe     = regexp.MustCompile(`\*([^*\n]+)\*`)
	boldUnderscoreRe = regexp.MustCompile(`__([^_]+)__`)
	italicUnderRe    = regexp.MustCompile(`_([^_\n]+)_`)

	linkRe = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)

	tableSeparatorRe = regexp.MustCompile(`(?m)^[ \t]*\|[-: \t|]+\|[ \t]*$`)
	tableRowRe       = regexp.MustCompile(`(?m)^[ \t]*\|(.+)\|[ \t]*$`)

	horizontalRuleRe = regexp.MustCompile(`(?m)^[ \t]*[-*_]{3,}[ \t]*$`)

	bulletRe  = regexp.MustCompile(`(?m)^[ \t]*[-*+][ \t]+`)
	ordinalRe = regexp.MustCompile(`(?m)^[ \t]*\[(\d+)\]`)

	blankLinesRe = regexp.MustCompile(`\n{3,}`)
	spacesRe     = regexp.MustCompile(`  +`)
)

// Normalize strips markdown from text so it can be shown on a plain-text
// display. It never fails and leaves already-plain text unchanged apart from
// whitespace cleanup.
//
// Pipes are removed everywhere, not only inside tables, so prose such as
// "a | b" loses its pipe.
//
// A pass can expose new markup, e.g. a table cell starting with "#", so passes
// repeat until the text stops changing. Every pass that changes the text
// removes markup characters or whitespace, or turns "+" and tab bullets into
// "- ", so the loop ends and Normalize(Normalize(s)) == Normalize(s).
func Normalize(text string) string {
	text = strings.TrimSpace(text)
	for {
		next := normalizePass(text)
		if next == text {
			return text
		}
		text = next
	}
}

func normalizePass(text string) string {
	text = fencedCodeRe.ReplaceAllString(text, "")
	text = inlineCodeRe.ReplaceAllString(text, "${1}")

	text = headingRe.ReplaceAllStringFunc(text, func(line string) string {
		m := headingRe.FindStringSubmatch(line)
		if m == nil {
			return line
		}
		return strings.ToUpper(strings.TrimSpace(m[1]))
	})

	text = boldStarRe.ReplaceAllString(text, "${1}")
	text = italicStarRe.ReplaceAllString(text, "${1}")
	text = boldUnderscoreRe.ReplaceAllString(text, "${1}")
	text = italicUnderRe.ReplaceAllString(text, "${1}")

	text = linkRe.ReplaceAllString(text, "${1}")

	text = tableSeparatorRe.ReplaceAllString(text, "")
	text = tableRowRe.ReplaceAllStringFunc(text, tableRowToText)
	text = strings.ReplaceAll(text, "|", " ")

	text = horizontalRuleRe.ReplaceAllString(text, "")

	text = bulletRe.ReplaceAllString(text, "- ")
	text = ordinalRe.ReplaceAllString(text, "${1}.")

	text = blankLinesRe.ReplaceAllString(text, "\n\n")
	text = spacesRe.ReplaceAllString(text, " ")

	return strings.TrimSpace(text)
}

// tableRowToText turns "| a | b |" into "a - b", dropping empty cells.
func tableRowToText(row string) string {
	m := tableRowRe.FindStringSubmatch(row)
	if m == nil {
		return row
	}

	cells := make([]string, 0, strings.Count(m[1], "|")+1)
	for _, cell := range strings.Split(m[1], "|") {
		cell = strings.TrimSpace(cell)
		if cell != "" {
			cells = append(cells, cell)
		}
	}

	return strings.Join(cells, " - ")
}
