// Package chat holds the domain model of the service: users, channels,
// messages and the directory that owns all of them. Mutations go through the
// Directory, which serializes them and raises domain events for the
// notification layer.
package chat

import (
	"time"

	"parley/internal/protocol"
)

// User is a registered user. The nickname is the natural key and is
// case-sensitive. Users are created on first login and never deleted.
type User struct {
	Nickname string
	Channels []uint64
	LastSeen time.Time
	Online   bool
}

func (u *User) inChannel(id uint64) bool {
	for _, c := range u.Channels {
		if c == id {
			return true
		}
	}
	return false
}

func (u *User) joinChannel(id uint64) {
	if !u.inChannel(id) {
		u.Channels = append(u.Channels, id)
	}
}

func (u *User) leaveChannel(id uint64) {
	for i, c := range u.Channels {
		if c == id {
			u.Channels = append(u.Channels[:i], u.Channels[i+1:]...)
			return
		}
	}
}

// Info returns the client-facing shape of the user. The channel list is
// copied so the caller can hold it outside the directory lock.
func (u *User) Info() protocol.UserInfo {
	channels := make([]uint64, len(u.Channels))
	copy(channels, u.Channels)
	return protocol.UserInfo{
		Nickname: u.Nickname,
		Channels: channels,
		LastSeen: u.LastSeen,
		Online:   u.Online,
	}
}
