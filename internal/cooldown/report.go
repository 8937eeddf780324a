package cooldown

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

// DefaultMarker is the glyph the game bot puts in front of a cooldown that is still running.
const DefaultMarker = ":clock4:"

// Extractor turns report lines into records.
type Extractor struct {
	Marker string
}

// Extract scans lines of the form
//
//	:clock4: ~-~ **Hunt** (`1h 2m 3s`)
//
// and returns one Record per marker line, in report order. Lines with
// another leading glyph are ignored. A marker line whose duration does not
// parse is reported in skipped and does not affect its siblings.
func (x Extractor) Extract(lines []string, capturedAt time.Time) (records []Record, skipped []*LineError) {
	marker := x.Marker
	if marker == "" {
		marker = DefaultMarker
	}
	for i, line := range lines {
		fields := strings.Fields(line)
		if len(fields) == 0 || fields[0] != marker {
			continue
		}
		label, token, err := splitLine(fields[1:])
		if err == nil {
			var d time.Duration
			d, err = ParseDuration(token)
			if err == nil {
				records = append(records, Record{Label: label, Expiry: capturedAt.Add(d)})
				continue
			}
		}
		skipped = append(skipped, &LineError{Line: i, Text: line, Cause: err})
	}
	return records, skipped
}

// splitLine separates the styled label from the duration token.
func splitLine(fields []string) (label, token string, err error) {
	if len(fields) > 0 && isDecoration(fields[0]) {
		fields = fields[1:]
	}
	end := -1
	for i, f := range fields {
		if strings.HasSuffix(f, "**") {
			end = i
			break
		}
	}
	if end < 0 {
		return "", "", fmt.Errorf("%w: label is not closed", ErrInvalidDuration)
	}

	label = strings.Join(fields[:end+1], " ")
	label = strings.TrimSpace(strings.NewReplacer("*", "", "`", "").Replace(label))
	token = strings.NewReplacer("*", "", "`", "", "(", "", ")", "").Replace(strings.Join(fields[end+1:], ""))
	return label, token, nil
}

// isDecoration reports whether a field carries no letters or digits (e.g. "~-~").
func isDecoration(field string) bool {
	for _, r := range field {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
