package server

import (
	"context"
	"log/slog"

	"parley/internal/chat"
	"parley/internal/protocol"
)

// Notifier turns domain events into notification packets and fans them out
// to the online members of the affected channel. Delivery is fire and
// forget; a member that is offline or has a full send buffer just misses
// the notification and catches up through the new-messages request.
type Notifier struct {
	log      *slog.Logger
	events   <-chan chat.Event
	sessions *Manager
}

func NewNotifier(log *slog.Logger, dir *chat.Directory, sessions *Manager) *Notifier {
	return &Notifier{
		log:      log,
		events:   dir.Events(),
		sessions: sessions,
	}
}

// Run consumes events until ctx is cancelled.
func (n *Notifier) Run(ctx context.Context) error {
	for {
		select {
		case ev := <-n.events:
			n.handle(ev)
		case <-ctx.Done():
			return nil
		}
	}
}

func (n *Notifier) handle(ev chat.Event) {
	switch ev.Type {
	case chat.EventMessageSent:
		n.broadcast(ev.Members, "", protocol.MessageReceivedPacket{
			ChannelID: ev.ChannelID,
			Message:   ev.Message,
		})

	case chat.EventUserJoined:
		n.broadcast(ev.Members, ev.User.Nickname, protocol.ChannelMembersChangedPacket{
			ChannelID:  ev.ChannelID,
			User:       ev.User,
			ChangeType: protocol.MemberJoined,
		})
		if ev.Channel != nil {
			n.sendTo(ev.User.Nickname, protocol.ChannelAddedPacket{NewChannel: *ev.Channel})
		}

	case chat.EventUserLeft:
		n.broadcast(ev.Members, ev.User.Nickname, protocol.ChannelMembersChangedPacket{
			ChannelID:  ev.ChannelID,
			User:       ev.User,
			ChangeType: protocol.MemberLeft,
		})
		if ev.ChannelID != chat.GlobalChannelID {
			n.sendTo(ev.User.Nickname, protocol.ChannelRemovedPacket{ChannelID: ev.ChannelID})
		}

	case chat.EventRankChanged:
		n.broadcast(ev.Members, "", protocol.ChannelMembersChangedPacket{
			ChannelID:  ev.ChannelID,
			User:       ev.User,
			ChangeType: protocol.MemberRankChanged,
		})

	case chat.EventNameChanged:
		n.broadcast(ev.Members, "", protocol.ChannelNameChangedPacket{
			ChannelID: ev.ChannelID,
			NewName:   ev.Value,
		})

	case chat.EventDescriptionChanged:
		n.broadcast(ev.Members, "", protocol.ChannelDescriptionChangedPacket{
			ChannelID:      ev.ChannelID,
			NewDescription: ev.Value,
		})
	}
}

// broadcast sends p to every online member except skip.
func (n *Notifier) broadcast(members []string, skip string, p protocol.Packet) {
	for _, nickname := range members {
		if nickname == skip {
			continue
		}
		n.sendTo(nickname, p)
	}
}

func (n *Notifier) sendTo(nickname string, p protocol.Packet) {
	s, ok := n.sessions.SessionFor(nickname)
	if !ok {
		return
	}
	if err := s.Send(p); err != nil {
		n.log.Debug("notification dropped",
			slog.String("user", nickname), slog.String("prefix", p.Prefix()))
	}
}
