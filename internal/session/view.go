package session

import "skillforge/internal/quest"

// Element names a display region. The identifiers are the element ids of the
// web client.
type Element string

const (
	ElementUserResult           Element = "user-result"
	ElementQuestDisplay         Element = "quest-display"
	ElementActiveQuest          Element = "active-quest"
	ElementQuestList            Element = "quest-list"
	ElementAccomplishmentResult Element = "accomplishment-result"
	ElementCredential           Element = "vc-display"
)

// View receives every presentation update a handler makes. Text passed to
// Show may come straight from the backend; implementations sanitize it.
type View interface {
	Show(el Element, text string)
	// ShowQuests redraws the quest list. statuses is parallel to quests.
	ShowQuests(quests []quest.Quest, statuses []quest.Status)
}
