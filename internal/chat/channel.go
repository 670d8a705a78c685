package chat

import (
	"time"

	"parley/internal/protocol"
)

// Kind distinguishes the two channel variants.
type Kind int

const (
	// Direct is a private conversation between exactly two users.
	Direct Kind = iota
	// Group is a named channel with admins and configurable permissions.
	Group
)

// Channel is a chat channel. The group-only fields (Name, Description,
// Admins, Settings) are meaningful only when Kind is Group.
//
// Channel methods perform the permission checks but no locking; they are
// called by the Directory with its lock held.
type Channel struct {
	ID       uint64
	Kind     Kind
	Created  time.Time
	Members  []*User
	Messages []protocol.Message

	Name        string
	Description string
	Admins      []string
	Settings    protocol.GroupSettings
}

// DefaultGroupSettings returns the settings a new group starts with: members
// may add users and edit the name and description, everyone may write.
func DefaultGroupSettings() protocol.GroupSettings {
	return protocol.GroupSettings{
		AllowMembersToAdd:               true,
		AllowMembersToChangeName:        true,
		AllowMembersToChangeDescription: true,
	}
}

func newGroupChannel(id uint64, creator *User, name, description string, now time.Time) *Channel {
	ch := &Channel{
		ID:          id,
		Kind:        Group,
		Created:     now,
		Name:        name,
		Description: description,
		Admins:      []string{creator.Nickname},
		Settings:    DefaultGroupSettings(),
	}
	ch.Members = append(ch.Members, creator)
	creator.joinChannel(id)
	return ch
}

func newDirectChannel(id uint64, a, b *User, now time.Time) *Channel {
	ch := &Channel{ID: id, Kind: Direct, Created: now}
	ch.Members = append(ch.Members, a, b)
	a.joinChannel(id)
	b.joinChannel(id)
	return ch
}

func (c *Channel) isMember(nickname string) bool {
	for _, m := range c.Members {
		if m.Nickname == nickname {
			return true
		}
	}
	return false
}

func (c *Channel) isAdmin(nickname string) bool {
	for _, a := range c.Admins {
		if a == nickname {
			return true
		}
	}
	return false
}

func (c *Channel) member(nickname string) *User {
	for _, m := range c.Members {
		if m.Nickname == nickname {
			return m
		}
	}
	return nil
}

func (c *Channel) memberNicknames() []string {
	names := make([]string, len(c.Members))
	for i, m := range c.Members {
		names[i] = m.Nickname
	}
	return names
}

// sendMessage appends a message from sender. In a read-only group only
// admins may write.
func (c *Channel) sendMessage(sender *User, content string, now time.Time) (protocol.Message, error) {
	if !c.isMember(sender.Nickname) {
		return protocol.Message{}, protocol.ErrUserNotInChannel
	}
	if c.Kind == Group && c.Settings.ReadOnlyForMembers && !c.isAdmin(sender.Nickname) {
		return protocol.Message{}, protocol.ErrInsufficientPermissions
	}
	msg := protocol.Message{Sender: sender.Nickname, Content: content, TimeSent: now}
	c.Messages = append(c.Messages, msg)
	return msg, nil
}

// addMember adds target to a group. The adder must be a member and either an
// admin or allowed by the AllowMembersToAdd setting. Adding yourself is not
// rejected here; the private-channel path is where self-chats are refused.
func (c *Channel) addMember(target, adder *User) error {
	if c.isMember(target.Nickname) {
		return protocol.ErrUserAlreadyInChannel
	}
	if !c.isMember(adder.Nickname) {
		return protocol.ErrInsufficientPermissions
	}
	if !c.isAdmin(adder.Nickname) && !c.Settings.AllowMembersToAdd {
		return protocol.ErrInsufficientPermissions
	}
	c.Members = append(c.Members, target)
	target.joinChannel(c.ID)
	return nil
}

// removeMember removes target from the channel. In a group the remover must
// be an admin member unless they are removing themself; in a direct channel
// any member may remove a member. Removing a member also revokes their admin
// rank so the admin set stays a subset of the member set.
func (c *Channel) removeMember(target, remover *User) error {
	if !c.isMember(target.Nickname) {
		return protocol.ErrUserNotInChannel
	}
	if target.Nickname != remover.Nickname {
		switch c.Kind {
		case Group:
			if !c.isMember(remover.Nickname) || !c.isAdmin(remover.Nickname) {
				return protocol.ErrInsufficientPermissions
			}
		default:
			if !c.isMember(remover.Nickname) {
				return protocol.ErrInsufficientPermissions
			}
		}
	}
	for i, m := range c.Members {
		if m.Nickname == target.Nickname {
			c.Members = append(c.Members[:i], c.Members[i+1:]...)
			break
		}
	}
	c.dropAdmin(target.Nickname)
	target.leaveChannel(c.ID)
	return nil
}

func (c *Channel) dropAdmin(nickname string) {
	for i, a := range c.Admins {
		if a == nickname {
			c.Admins = append(c.Admins[:i], c.Admins[i+1:]...)
			return
		}
	}
}

func (c *Channel) changeName(changer *User, name string) error {
	if !c.isMember(changer.Nickname) {
		return protocol.ErrInsufficientPermissions
	}
	if !c.isAdmin(changer.Nickname) && !c.Settings.AllowMembersToChangeName {
		return protocol.ErrInsufficientPermissions
	}
	c.Name = name
	return nil
}

func (c *Channel) changeDescription(changer *User, description string) error {
	if !c.isMember(changer.Nickname) {
		return protocol.ErrInsufficientPermissions
	}
	if !c.isAdmin(changer.Nickname) && !c.Settings.AllowMembersToChangeDescription {
		return protocol.ErrInsufficientPermissions
	}
	c.Description = description
	return nil
}

// changeRank toggles the admin rank of target. Demoting the last admin is
// allowed; a group can end up with members but no admin.
func (c *Channel) changeRank(target, changer *User) error {
	if !c.isMember(target.Nickname) {
		return protocol.ErrUserNotInChannel
	}
	if !c.isAdmin(changer.Nickname) {
		return protocol.ErrInsufficientPermissions
	}
	if c.isAdmin(target.Nickname) {
		c.dropAdmin(target.Nickname)
	} else {
		c.Admins = append(c.Admins, target.Nickname)
	}
	return nil
}

// messagesSince returns the messages sent strictly after t, oldest first.
// Messages are appended in send order, so a single backwards scan finds the
// cut point.
func (c *Channel) messagesSince(t time.Time) []protocol.Message {
	i := len(c.Messages)
	for i > 0 && c.Messages[i-1].TimeSent.After(t) {
		i--
	}
	out := make([]protocol.Message, len(c.Messages)-i)
	copy(out, c.Messages[i:])
	return out
}

// Info returns the client-facing snapshot of the channel, messages included.
func (c *Channel) Info() protocol.ChannelInfo {
	info := protocol.ChannelInfo{
		ID:      c.ID,
		Created: c.Created,
		IsGroup: c.Kind == Group,
	}
	info.Users = make([]protocol.UserInfo, len(c.Members))
	for i, m := range c.Members {
		info.Users[i] = m.Info()
	}
	info.Messages = make([]protocol.Message, len(c.Messages))
	copy(info.Messages, c.Messages)
	if c.Kind == Group {
		info.Name = c.Name
		info.Description = c.Description
		info.Admins = make([]string, len(c.Admins))
		copy(info.Admins, c.Admins)
		info.Settings = c.Settings
	}
	return info
}
