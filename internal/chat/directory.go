package chat

import (
	"math/rand/v2"
	"sync"
	"time"

	"parley/internal/protocol"
)

// GlobalChannelID is the well-known channel every user belongs to.
const GlobalChannelID uint64 = 0

const eventBuffer = 256

// Directory is the process-wide registry of users and channels. It owns the
// canonical objects; everything else holds nicknames and channel ids.
//
// All mutations run under one lock and raise their domain events before the
// lock is released, so event order matches mutation order. Events are
// consumed by a single subscriber that never calls back into the Directory.
type Directory struct {
	mu       sync.RWMutex
	users    map[string]*User
	channels map[uint64]*Channel
	events   chan Event
	now      func() time.Time
}

func NewDirectory() *Directory {
	d := &Directory{
		users:    make(map[string]*User),
		channels: make(map[uint64]*Channel),
		events:   make(chan Event, eventBuffer),
		now:      time.Now,
	}
	d.ensureGlobal()
	return d
}

// Events returns the domain event stream. Exactly one goroutine should
// consume it.
func (d *Directory) Events() <-chan Event { return d.events }

func (d *Directory) emit(ev Event) { d.events <- ev }

func (d *Directory) ensureGlobal() {
	if _, ok := d.channels[GlobalChannelID]; ok {
		return
	}
	d.channels[GlobalChannelID] = &Channel{
		ID:       GlobalChannelID,
		Kind:     Group,
		Created:  d.now(),
		Name:     "global",
		Settings: DefaultGroupSettings(),
	}
}

// Login registers a nickname as online, creating the user on first use and
// reusing the existing user afterwards. New users automatically join the
// global channel. A nickname that is already online cannot log in twice.
func (d *Directory) Login(nickname string) (protocol.UserInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	u := d.users[nickname]
	if u != nil && u.Online {
		return protocol.UserInfo{}, protocol.ErrAlreadyLoggedIn
	}
	if u == nil {
		u = &User{Nickname: nickname}
		d.users[nickname] = u
	}
	g := d.channels[GlobalChannelID]
	if !g.isMember(nickname) {
		g.Members = append(g.Members, u)
		u.joinChannel(GlobalChannelID)
		u.Online = true
		d.emit(Event{
			Type:      EventUserJoined,
			ChannelID: GlobalChannelID,
			Members:   g.memberNicknames(),
			User:      u.Info(),
		})
	} else {
		u.Online = true
	}
	return u.Info(), nil
}

// Logout flips the user offline and stamps the last-seen time.
func (d *Directory) Logout(nickname string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if u := d.users[nickname]; u != nil {
		u.Online = false
		u.LastSeen = d.now()
	}
}

// FindUser returns a snapshot of the named user.
func (d *Directory) FindUser(nickname string) (protocol.UserInfo, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[nickname]
	if !ok {
		return protocol.UserInfo{}, false
	}
	return u.Info(), true
}

// Channel returns a snapshot of the channel with the given id.
func (d *Directory) Channel(id uint64) (protocol.ChannelInfo, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ch, ok := d.channels[id]
	if !ok {
		return protocol.ChannelInfo{}, false
	}
	return ch.Info(), true
}

// Counts reports the number of registered users and channels.
func (d *Directory) Counts() (users, channels int) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.users), len(d.channels)
}

// SendMessage appends a message to a channel on behalf of sender.
func (d *Directory) SendMessage(sender string, channelID uint64, content string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	u := d.users[sender]
	if u == nil {
		return protocol.ErrUserNotFound
	}
	ch := d.channels[channelID]
	if ch == nil {
		return protocol.ErrChannelNotFound
	}
	msg, err := ch.sendMessage(u, content, d.now())
	if err != nil {
		return err
	}
	d.emit(Event{
		Type:      EventMessageSent,
		ChannelID: channelID,
		Members:   ch.memberNicknames(),
		Message:   msg,
	})
	return nil
}

// CreateGroup creates a group channel with creator as its only member and
// admin. Creation always succeeds for a known user.
func (d *Directory) CreateGroup(creator, name, description string) (uint64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	u := d.users[creator]
	if u == nil {
		return 0, protocol.ErrUserNotFound
	}
	id := d.nextChannelID()
	ch := newGroupChannel(id, u, name, description, d.now())
	d.channels[id] = ch
	info := ch.Info()
	d.emit(Event{
		Type:      EventUserJoined,
		ChannelID: id,
		Members:   ch.memberNicknames(),
		User:      u.Info(),
		Channel:   &info,
	})
	return id, nil
}

// OpenPrivate creates a direct channel between actor and other. Opening a
// channel with yourself or duplicating an existing pair is refused.
func (d *Directory) OpenPrivate(actor, other string) (uint64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if actor == other {
		return 0, protocol.ErrCannotAddSelf
	}
	a := d.users[actor]
	b := d.users[other]
	if a == nil || b == nil {
		return 0, protocol.ErrUserNotFound
	}
	for _, ch := range d.channels {
		if ch.Kind == Direct && len(ch.Members) == 2 && ch.isMember(actor) && ch.isMember(other) {
			return 0, protocol.ErrChannelAlreadyExists
		}
	}
	id := d.nextChannelID()
	ch := newDirectChannel(id, a, b, d.now())
	d.channels[id] = ch
	info := ch.Info()
	members := ch.memberNicknames()
	for _, u := range []*User{a, b} {
		d.emit(Event{
			Type:      EventUserJoined,
			ChannelID: id,
			Members:   members,
			User:      u.Info(),
			Channel:   &info,
		})
	}
	return id, nil
}

// AddToGroup adds target to a group channel on behalf of actor.
func (d *Directory) AddToGroup(actor, target string, channelID uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	u := d.users[actor]
	if u == nil {
		return protocol.ErrUserNotFound
	}
	t := d.users[target]
	if t == nil {
		return protocol.ErrUserNotFound
	}
	ch, err := d.group(channelID)
	if err != nil {
		return err
	}
	if err := ch.addMember(t, u); err != nil {
		return err
	}
	info := ch.Info()
	d.emit(Event{
		Type:      EventUserJoined,
		ChannelID: channelID,
		Members:   ch.memberNicknames(),
		User:      t.Info(),
		Channel:   &info,
	})
	return nil
}

// KickUser removes target from a group channel on behalf of actor.
func (d *Directory) KickUser(actor, target string, channelID uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	u := d.users[actor]
	if u == nil {
		return protocol.ErrUserNotFound
	}
	t := d.users[target]
	if t == nil {
		return protocol.ErrUserNotFound
	}
	ch, err := d.group(channelID)
	if err != nil {
		return err
	}
	return d.removeLocked(ch, t, u)
}

// LeaveGroup removes actor from a group channel. Leaving is always allowed
// for a member.
func (d *Directory) LeaveGroup(actor string, channelID uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	u := d.users[actor]
	if u == nil {
		return protocol.ErrUserNotFound
	}
	ch, err := d.group(channelID)
	if err != nil {
		return err
	}
	return d.removeLocked(ch, u, u)
}

func (d *Directory) removeLocked(ch *Channel, target, remover *User) error {
	if err := ch.removeMember(target, remover); err != nil {
		return err
	}
	d.emit(Event{
		Type:      EventUserLeft,
		ChannelID: ch.ID,
		Members:   ch.memberNicknames(),
		User:      target.Info(),
	})
	return nil
}

// ChangeGroupName renames a group channel on behalf of actor.
func (d *Directory) ChangeGroupName(actor string, channelID uint64, name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	u := d.users[actor]
	if u == nil {
		return protocol.ErrUserNotFound
	}
	ch, err := d.group(channelID)
	if err != nil {
		return err
	}
	if err := ch.changeName(u, name); err != nil {
		return err
	}
	d.emit(Event{
		Type:      EventNameChanged,
		ChannelID: channelID,
		Members:   ch.memberNicknames(),
		Value:     name,
	})
	return nil
}

// ChangeGroupDescription updates a group channel's description.
func (d *Directory) ChangeGroupDescription(actor string, channelID uint64, description string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	u := d.users[actor]
	if u == nil {
		return protocol.ErrUserNotFound
	}
	ch, err := d.group(channelID)
	if err != nil {
		return err
	}
	if err := ch.changeDescription(u, description); err != nil {
		return err
	}
	d.emit(Event{
		Type:      EventDescriptionChanged,
		ChannelID: channelID,
		Members:   ch.memberNicknames(),
		Value:     description,
	})
	return nil
}

// ChangeUserRank toggles target's admin rank in a group channel.
func (d *Directory) ChangeUserRank(actor, target string, channelID uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	u := d.users[actor]
	if u == nil {
		return protocol.ErrUserNotFound
	}
	t := d.users[target]
	if t == nil {
		return protocol.ErrUserNotFound
	}
	ch, err := d.group(channelID)
	if err != nil {
		return err
	}
	if err := ch.changeRank(t, u); err != nil {
		return err
	}
	d.emit(Event{
		Type:      EventRankChanged,
		ChannelID: channelID,
		Members:   ch.memberNicknames(),
		User:      t.Info(),
	})
	return nil
}

// ChannelsOf returns snapshots of every channel the user belongs to.
func (d *Directory) ChannelsOf(nickname string) ([]protocol.ChannelInfo, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	u := d.users[nickname]
	if u == nil {
		return nil, protocol.ErrUserNotFound
	}
	channels := make([]protocol.ChannelInfo, 0, len(u.Channels))
	for _, id := range u.Channels {
		if ch := d.channels[id]; ch != nil {
			channels = append(channels, ch.Info())
		}
	}
	return channels, nil
}

// NewMessages returns, per requested channel, the messages sent since the
// user was last seen. Channels the user does not belong to are skipped.
func (d *Directory) NewMessages(nickname string, channelIDs []uint64) (map[uint64][]protocol.Message, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	u := d.users[nickname]
	if u == nil {
		return nil, protocol.ErrUserNotFound
	}
	result := make(map[uint64][]protocol.Message, len(channelIDs))
	for _, id := range channelIDs {
		ch := d.channels[id]
		if ch == nil || !ch.isMember(nickname) {
			continue
		}
		result[id] = ch.messagesSince(u.LastSeen)
	}
	return result, nil
}

func (d *Directory) group(id uint64) (*Channel, error) {
	ch := d.channels[id]
	if ch == nil || ch.Kind != Group {
		return nil, protocol.ErrChannelNotFound
	}
	return ch, nil
}

// nextChannelID draws random ids until one is free. Ids are 64-bit, so at
// the expected channel counts a collision retry is essentially never taken.
// Id 0 is reserved for the global channel.
func (d *Directory) nextChannelID() uint64 {
	for {
		id := rand.Uint64()
		if id == 0 {
			continue
		}
		if _, exists := d.channels[id]; !exists {
			return id
		}
	}
}

// View runs fn with read access to the raw user and channel tables. It
// exists for the persistence layer; fn must not mutate anything or retain
// references past its return.
func (d *Directory) View(fn func(users map[string]*User, channels map[uint64]*Channel)) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	fn(d.users, d.channels)
}

// Load replaces the directory contents with a restored graph. Channel member
// lists must already point at the canonical User values. All users start
// offline; the global channel is created if the snapshot lacks one.
func (d *Directory) Load(users []*User, channels []*Channel) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.users = make(map[string]*User, len(users))
	for _, u := range users {
		u.Online = false
		d.users[u.Nickname] = u
	}
	d.channels = make(map[uint64]*Channel, len(channels))
	for _, ch := range channels {
		d.channels[ch.ID] = ch
	}
	d.ensureGlobal()
}
