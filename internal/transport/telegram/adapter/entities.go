package adapter

import (
	"sort"
	"strings"
	"unicode/utf16"

	tele "gopkg.in/telebot.v4"
)

func entityMarker(t tele.EntityType) string {
	switch t {
	case tele.EntityBold:
		return "**"
	case tele.EntityCode:
		return "`"
	}
	return ""
}

type entityMark struct {
	at    int // UTF-16 offset
	close bool
	span  int
	idx   int
	tok   string
}

// styledText inserts markdown-like markers for bold and code entities.
// Offsets are UTF-16 code units. Nested entities are closed innermost first.
func styledText(text string, ents []tele.MessageEntity) string {
	marks := make([]entityMark, 0, 2*len(ents))
	for i, e := range ents {
		tok := entityMarker(e.Type)
		if tok == "" || e.Length <= 0 || e.Offset < 0 {
			continue
		}
		marks = append(marks,
			entityMark{at: e.Offset, span: e.Length, idx: i, tok: tok},
			entityMark{at: e.Offset + e.Length, close: true, span: e.Length, idx: i, tok: tok},
		)
	}
	if len(marks) == 0 {
		return text
	}
	sort.Slice(marks, func(i, j int) bool {
		a, b := marks[i], marks[j]
		if a.at != b.at {
			return a.at < b.at
		}
		if a.close != b.close {
			return a.close
		}
		if a.span != b.span {
			if a.close {
				return a.span < b.span
			}
			return a.span > b.span
		}
		if a.close {
			return a.idx > b.idx
		}
		return a.idx < b.idx
	})

	units := utf16.Encode([]rune(text))
	var sb strings.Builder
	sb.Grow(len(text) + 2*len(marks))
	prev := 0
	for _, mk := range marks {
		at := min(max(mk.at, prev), len(units))
		sb.WriteString(string(utf16.Decode(units[prev:at])))
		sb.WriteString(mk.tok)
		prev = at
	}
	sb.WriteString(string(utf16.Decode(units[prev:])))
	return sb.String()
}
