package state

import (
	"strings"
)

// Slot key layout. Every key lives under keyPrefix.
const (
	keyPrefix        = "chatmallu:"
	keyAPIBaseURL    = keyPrefix + "apiBaseUrl"
	keyCharacters    = keyPrefix + "characters"
	keyGroups        = keyPrefix + "groups"
	keyUnread        = keyPrefix + "unread"
	keyMessages      = keyPrefix + "messages:"
	keyGroupMessages = keyPrefix + "groupMessages:"
	keyMemory        = keyPrefix + "memory:"
	keySetting       = keyPrefix + "setting:"
)

func messagesKey(chatID string) string       { return keyMessages + chatID }
func groupMessagesKey(groupID string) string { return keyGroupMessages + groupID }

func memoryKey(groupID, characterID string) string {
	return keyMemory + groupID + ":" + characterID
}

func parseMemoryKey(key string) (groupID, characterID string, ok bool) {
	rest, found := strings.CutPrefix(key, keyMemory)
	if !found {
		return "", "", false
	}
	groupID, characterID, ok = strings.Cut(rest, ":")
	return groupID, characterID, ok && groupID != "" && characterID != ""
}
