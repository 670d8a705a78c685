// Package protocol defines the packets exchanged between clients and the
// server and the text framing that carries them over a byte stream.
//
// Every packet is identified by a prefix: "/" followed by the lowercase type
// name with the "Packet" suffix stripped (SendMessagePacket -> /sendmessage).
// A small set of packets carry no parameters and are identified by an
// enumerated tag instead of a dedicated type.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// Packet is any message that can be framed and sent to the other side.
type Packet interface {
	Prefix() string
}

// Packet prefixes, one per concrete packet type.
const (
	PrefixLogin                     = "/login"
	PrefixLoginSuccess              = "/loginsuccess"
	PrefixError                     = "/error"
	PrefixSendMessage               = "/sendmessage"
	PrefixMessageReceived           = "/messagereceived"
	PrefixCreateGroup               = "/creategroup"
	PrefixAddUserToGroup            = "/addusertogroup"
	PrefixKickUser                  = "/kickuser"
	PrefixLeaveGroup                = "/leavegroup"
	PrefixChangeGroupName           = "/changegroupname"
	PrefixChangeGroupDescription    = "/changegroupdescription"
	PrefixChangeUserRank            = "/changeuserrank"
	PrefixOpenPrivateChannel        = "/openprivatechannel"
	PrefixGetChannelsResponse       = "/getchannelsresponse"
	PrefixGetNewMessages            = "/getnewmessages"
	PrefixGetNewMessagesResponse    = "/getnewmessagesresponse"
	PrefixChannelAdded              = "/channeladded"
	PrefixChannelRemoved            = "/channelremoved"
	PrefixChannelNameChanged        = "/channelnamechanged"
	PrefixChannelDescriptionChanged = "/channeldescriptionchanged"
	PrefixChannelMembersChanged     = "/channelmemberschanged"
	PrefixFragment                  = "/fragment"
)

// ParameterlessType enumerates packets that carry no parameters.
type ParameterlessType int

const (
	GetChannels ParameterlessType = iota
	Disconnect
)

func (t ParameterlessType) String() string {
	switch t {
	case GetChannels:
		return "getchannels"
	case Disconnect:
		return "disconnect"
	}
	return "unknown"
}

// ParameterlessPacket is a packet identified only by its tag.
type ParameterlessPacket struct {
	Type ParameterlessType `json:"-"`
}

func (p ParameterlessPacket) Prefix() string { return "/" + p.Type.String() }

// Message is a single chat message. Messages are immutable once created.
type Message struct {
	Sender   string    `json:"sender"`
	Content  string    `json:"content"`
	TimeSent time.Time `json:"timeSent"`
}

// UserInfo is the client-facing shape of a user.
type UserInfo struct {
	Nickname string    `json:"nickname"`
	Channels []uint64  `json:"channels"`
	LastSeen time.Time `json:"lastSeen"`
	Online   bool      `json:"online"`
}

// GroupSettings are the member-permission toggles of a group channel.
type GroupSettings struct {
	ReadOnlyForMembers              bool `json:"readOnlyForMembers"`
	AllowMembersToAdd               bool `json:"allowMembersToAdd"`
	AllowMembersToChangeName        bool `json:"allowMembersToChangeName"`
	AllowMembersToChangeDescription bool `json:"allowMembersToChangeDescription"`
}

// ChannelInfo is the client-facing shape of a channel. The group-only fields
// are zero for private channels.
type ChannelInfo struct {
	ID       uint64     `json:"id"`
	Users    []UserInfo `json:"users"`
	Messages []Message  `json:"messages"`
	Created  time.Time  `json:"created"`

	IsGroup     bool          `json:"isGroup"`
	Name        string        `json:"name,omitempty"`
	Description string        `json:"description,omitempty"`
	Admins      []string      `json:"admins,omitempty"`
	Settings    GroupSettings `json:"settings"`
}

// MemberChangeType says what happened to a channel member.
type MemberChangeType string

const (
	MemberJoined      MemberChangeType = "joined"
	MemberLeft        MemberChangeType = "left"
	MemberRankChanged MemberChangeType = "rankChanged"
)

type LoginPacket struct {
	Username string `json:"username"`
}

func (LoginPacket) Prefix() string { return PrefixLogin }

type LoginSuccessPacket struct {
	User UserInfo `json:"user"`
}

func (LoginSuccessPacket) Prefix() string { return PrefixLoginSuccess }

type ErrorPacket struct {
	ErrorType ErrorType `json:"errorType"`
	Message   string    `json:"message"`
}

func (ErrorPacket) Prefix() string { return PrefixError }

type SendMessagePacket struct {
	ChannelID uint64 `json:"channelId"`
	Message   string `json:"message"`
}

func (SendMessagePacket) Prefix() string { return PrefixSendMessage }

type MessageReceivedPacket struct {
	ChannelID uint64  `json:"channelId"`
	Message   Message `json:"message"`
}

func (MessageReceivedPacket) Prefix() string { return PrefixMessageReceived }

type CreateGroupPacket struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (CreateGroupPacket) Prefix() string { return PrefixCreateGroup }

type AddUserToGroupPacket struct {
	Username  string `json:"username"`
	ChannelID uint64 `json:"channelId"`
}

func (AddUserToGroupPacket) Prefix() string { return PrefixAddUserToGroup }

type KickUserPacket struct {
	Username  string `json:"username"`
	ChannelID uint64 `json:"channelId"`
}

func (KickUserPacket) Prefix() string { return PrefixKickUser }

type LeaveGroupPacket struct {
	ChannelID uint64 `json:"channelId"`
}

func (LeaveGroupPacket) Prefix() string { return PrefixLeaveGroup }

type ChangeGroupNamePacket struct {
	ChannelID uint64 `json:"channelId"`
	NewName   string `json:"newName"`
}

func (ChangeGroupNamePacket) Prefix() string { return PrefixChangeGroupName }

type ChangeGroupDescriptionPacket struct {
	ChannelID   uint64 `json:"channelId"`
	Description string `json:"description"`
}

func (ChangeGroupDescriptionPacket) Prefix() string { return PrefixChangeGroupDescription }

type ChangeUserRankPacket struct {
	ChannelID uint64 `json:"channelId"`
	Username  string `json:"username"`
}

func (ChangeUserRankPacket) Prefix() string { return PrefixChangeUserRank }

type OpenPrivateChannelPacket struct {
	Username string `json:"username"`
}

func (OpenPrivateChannelPacket) Prefix() string { return PrefixOpenPrivateChannel }

type GetChannelsResponsePacket struct {
	Channels []ChannelInfo `json:"channels"`
}

func (GetChannelsResponsePacket) Prefix() string { return PrefixGetChannelsResponse }

type GetNewMessagesPacket struct {
	ChannelIDs []uint64 `json:"channelIds"`
}

func (GetNewMessagesPacket) Prefix() string { return PrefixGetNewMessages }

type GetNewMessagesResponsePacket struct {
	Messages map[uint64][]Message `json:"messages"`
}

func (GetNewMessagesResponsePacket) Prefix() string { return PrefixGetNewMessagesResponse }

type ChannelAddedPacket struct {
	NewChannel ChannelInfo `json:"newChannel"`
}

func (ChannelAddedPacket) Prefix() string { return PrefixChannelAdded }

type ChannelRemovedPacket struct {
	ChannelID uint64 `json:"channelId"`
}

func (ChannelRemovedPacket) Prefix() string { return PrefixChannelRemoved }

type ChannelNameChangedPacket struct {
	ChannelID uint64 `json:"channelId"`
	NewName   string `json:"newName"`
}

func (ChannelNameChangedPacket) Prefix() string { return PrefixChannelNameChanged }

type ChannelDescriptionChangedPacket struct {
	ChannelID      uint64 `json:"channelId"`
	NewDescription string `json:"newDescription"`
}

func (ChannelDescriptionChangedPacket) Prefix() string { return PrefixChannelDescriptionChanged }

type ChannelMembersChangedPacket struct {
	ChannelID  uint64           `json:"channelId"`
	User       UserInfo         `json:"user"`
	ChangeType MemberChangeType `json:"changeType"`
}

func (ChannelMembersChangedPacket) Prefix() string { return PrefixChannelMembersChanged }

// FragmentPacket carries one piece of an oversized frame. The id is reused
// cyclically and is only unique within the reassembly window.
type FragmentPacket struct {
	ID             uint16 `json:"id"`
	SequenceNumber int    `json:"sequenceNumber"`
	IsLast         bool   `json:"isLast"`
	Data           string `json:"data"`
}

func (FragmentPacket) Prefix() string { return PrefixFragment }

var registry = map[string]func() Packet{
	PrefixLogin:                     func() Packet { return &LoginPacket{} },
	PrefixLoginSuccess:              func() Packet { return &LoginSuccessPacket{} },
	PrefixError:                     func() Packet { return &ErrorPacket{} },
	PrefixSendMessage:               func() Packet { return &SendMessagePacket{} },
	PrefixMessageReceived:           func() Packet { return &MessageReceivedPacket{} },
	PrefixCreateGroup:               func() Packet { return &CreateGroupPacket{} },
	PrefixAddUserToGroup:            func() Packet { return &AddUserToGroupPacket{} },
	PrefixKickUser:                  func() Packet { return &KickUserPacket{} },
	PrefixLeaveGroup:                func() Packet { return &LeaveGroupPacket{} },
	PrefixChangeGroupName:           func() Packet { return &ChangeGroupNamePacket{} },
	PrefixChangeGroupDescription:    func() Packet { return &ChangeGroupDescriptionPacket{} },
	PrefixChangeUserRank:            func() Packet { return &ChangeUserRankPacket{} },
	PrefixOpenPrivateChannel:        func() Packet { return &OpenPrivateChannelPacket{} },
	PrefixGetChannelsResponse:       func() Packet { return &GetChannelsResponsePacket{} },
	PrefixGetNewMessages:            func() Packet { return &GetNewMessagesPacket{} },
	PrefixGetNewMessagesResponse:    func() Packet { return &GetNewMessagesResponsePacket{} },
	PrefixChannelAdded:              func() Packet { return &ChannelAddedPacket{} },
	PrefixChannelRemoved:            func() Packet { return &ChannelRemovedPacket{} },
	PrefixChannelNameChanged:        func() Packet { return &ChannelNameChangedPacket{} },
	PrefixChannelDescriptionChanged: func() Packet { return &ChannelDescriptionChangedPacket{} },
	PrefixChannelMembersChanged:     func() Packet { return &ChannelMembersChangedPacket{} },
	PrefixFragment:                  func() Packet { return &FragmentPacket{} },
}

// Decode turns a frame's prefix and body back into a typed packet.
func Decode(prefix, body string) (Packet, error) {
	switch prefix {
	case "/" + GetChannels.String():
		return ParameterlessPacket{Type: GetChannels}, nil
	case "/" + Disconnect.String():
		return ParameterlessPacket{Type: Disconnect}, nil
	}
	newPacket, ok := registry[prefix]
	if !ok {
		return nil, fmt.Errorf("unknown packet prefix %q", prefix)
	}
	p := newPacket()
	if err := json.Unmarshal([]byte(body), p); err != nil {
		return nil, fmt.Errorf("decode %s: %w", prefix, err)
	}
	return p, nil
}
