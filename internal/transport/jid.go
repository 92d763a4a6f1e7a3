package transport

import "strings"

const (
	userServer  = "s.whatsapp.net"
	groupServer = "g.us"
)

// IsGroupID reports whether a conversation identifier names a group.
func IsGroupID(id string) bool {
	return strings.HasSuffix(id, "@"+groupServer)
}

// NormalizeID reduces a participant identifier to the digits of its user part,
// dropping the server and any device suffix ("123:4@s.whatsapp.net" -> "123").
func NormalizeID(id string) string {
	user := id
	if i := strings.IndexByte(user, '@'); i >= 0 {
		user = user[:i]
	}
	if i := strings.IndexByte(user, ':'); i >= 0 {
		user = user[:i]
	}
	var b strings.Builder
	b.Grow(len(user))
	for _, r := range user {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// UserID builds a user identifier from a phone number in any formatting.
func UserID(number string) string {
	digits := NormalizeID(number)
	if digits == "" {
		return ""
	}
	return digits + "@" + userServer
}

// MentionTag renders the "@number" text WhatsApp resolves into a mention.
func MentionTag(id string) string {
	user := id
	if i := strings.IndexByte(user, '@'); i >= 0 {
		user = user[:i]
	}
	if i := strings.IndexByte(user, ':'); i >= 0 {
		user = user[:i]
	}
	return "@" + user
}
