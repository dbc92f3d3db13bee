package ratelimit

import "fmt"

// KeyForMember builds the limiter key of a member in a room. Senders without a
// phone identity are keyed by their Matrix id.
func KeyForMember(roomID, member string) string {
	if roomID == "" || member == "" {
		return ""
	}
	return fmt.Sprintf("r:%s:u:%s", roomID, member)
}
