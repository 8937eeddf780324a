package adapter

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplitTextShort(t *testing.T) {
	t.Parallel()
	got := splitText("hello", 10, "")
	if len(got) != 1 || got[0] != "hello" {
		t.Fatalf("splitText = %q", got)
	}
}

func TestSplitTextPrefersNewlines(t *testing.T) {
	t.Parallel()
	s := strings.Repeat("a", 6) + "\n" + strings.Repeat("b", 6)
	got := splitText(s, 10, "")
	if len(got) != 2 || got[0] != "aaaaaa" || got[1] != "bbbbbb" {
		t.Fatalf("splitText = %q", got)
	}
}

func TestSplitTextRespectsLimit(t *testing.T) {
	t.Parallel()
	s := strings.Repeat("é", 25)
	for _, chunk := range splitText(s, 10, "") {
		if n := utf8.RuneCountInString(chunk); n > 10 {
			t.Fatalf("chunk has %d runes", n)
		}
	}
}

func TestSplitTextKeepsHTMLTagsWhole(t *testing.T) {
	t.Parallel()
	s := "12345678<b>x</b>"
	got := splitText(s, 10, "HTML")
	if got[0] != "12345678" {
		t.Fatalf("first chunk = %q", got[0])
	}
	if strings.Join(got, "") != s {
		t.Fatalf("chunks lost text: %q", got)
	}
}
