package rpg

import (
	"strings"

	"cdbot/internal/transport"
)

type Kind int

const (
	KindNone Kind = iota
	KindCooldowns
	KindEvent
)

// DefaultReportSuffix ends the title line of a cooldowns report.
const DefaultReportSuffix = "'s cooldowns"

// Classifier decides what a game bot message is.
type Classifier struct {
	GameBots     map[int64]bool
	ReportSuffix string
	EventPhrases []string
}

// Classify looks at the first line of messages authored by a game bot, sent
// directly or forwarded by a player. A report title ends with the report
// suffix. An event announcement starts or ends with one of the event phrases.
func (c Classifier) Classify(m *transport.Message) Kind {
	if m == nil || !c.GameBots[m.AuthorID()] {
		return KindNone
	}
	title := normalizeLine(firstLine(m.Text))
	if title == "" {
		return KindNone
	}

	suffix := strings.ToLower(c.ReportSuffix)
	if suffix == "" {
		suffix = DefaultReportSuffix
	}
	if strings.HasSuffix(title, suffix) {
		return KindCooldowns
	}
	for _, p := range c.EventPhrases {
		p = normalizeLine(p)
		if p != "" && (strings.HasPrefix(title, p) || strings.HasSuffix(title, p)) {
			return KindEvent
		}
	}
	return KindNone
}

func firstLine(s string) string {
	s = strings.TrimLeft(s, "\r\n\t ")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return s
}

// normalizeLine drops * and ` styling, trims and lowercases.
func normalizeLine(s string) string {
	s = strings.NewReplacer("*", "", "`", "").Replace(s)
	return strings.ToLower(strings.TrimSpace(s))
}

// reportLines splits a report body into lines, keeping the title line.
func reportLines(text string) []string {
	return strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
}
