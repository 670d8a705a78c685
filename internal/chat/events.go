package chat

import "parley/internal/protocol"

// EventType enumerates the state transitions the domain model makes visible
// to the notification layer.
type EventType int

const (
	EventMessageSent EventType = iota
	EventUserJoined
	EventUserLeft
	EventRankChanged
	EventNameChanged
	EventDescriptionChanged
)

// Event describes one state transition. Events carry everything the
// notification layer needs (recipient nicknames, wire-shaped payloads) so
// consuming an event never has to call back into the Directory.
type Event struct {
	Type      EventType
	ChannelID uint64

	// Members are the nicknames of the channel members at the time the
	// event fired. The notifier resolves which of them are online.
	Members []string

	// User is the affected user for join/leave/rank events.
	User protocol.UserInfo

	// Message is set for EventMessageSent.
	Message protocol.Message

	// Value is the new name or description for the change events.
	Value string

	// Channel is the snapshot sent to a joining user. Nil for the global
	// channel, which every client assumes exists.
	Channel *protocol.ChannelInfo
}
