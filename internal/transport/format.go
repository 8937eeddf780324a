package transport

import (
	"html"
	"strconv"
)

func formatID(id int64) string { return strconv.FormatInt(id, 10) }

// MentionHTML renders an HTML-mode mention that pings the member even without a username.
func MentionHTML(m Member) string {
	return `<a href="tg://user?id=` + formatID(m.UserID) + `">` + html.EscapeString(m.DisplayName()) + `</a>`
}
