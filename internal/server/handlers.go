package server

import (
	"encoding/json"

	"parley/internal/chat"
	"parley/internal/protocol"
)

// handlers implements the request side of the protocol for one session.
// Every request ends in exactly one outcome for the requester: the expected
// response packet, or a single error packet naming what went wrong.
type handlers struct {
	s   *Session
	dir *chat.Directory
}

func registerHandlers(d *dispatcher, s *Session, dir *chat.Directory) {
	h := &handlers{s: s, dir: dir}
	d.register(protocol.PrefixLogin, h.login)
	d.register(protocol.PrefixSendMessage, h.sendMessage)
	d.register(protocol.PrefixCreateGroup, h.createGroup)
	d.register(protocol.PrefixAddUserToGroup, h.addUserToGroup)
	d.register(protocol.PrefixKickUser, h.kickUser)
	d.register(protocol.PrefixLeaveGroup, h.leaveGroup)
	d.register(protocol.PrefixChangeGroupName, h.changeGroupName)
	d.register(protocol.PrefixChangeGroupDescription, h.changeGroupDescription)
	d.register(protocol.PrefixChangeUserRank, h.changeUserRank)
	d.register(protocol.PrefixOpenPrivateChannel, h.openPrivateChannel)
	d.register(protocol.PrefixGetNewMessages, h.getNewMessages)
	d.register(protocol.ParameterlessPacket{Type: protocol.GetChannels}.Prefix(), h.getChannels)
	d.register(protocol.ParameterlessPacket{Type: protocol.Disconnect}.Prefix(), h.disconnect)
}

// check decodes a request body and verifies the session is authenticated.
func (h *handlers) check(body string, v any) bool {
	if err := json.Unmarshal([]byte(body), v); err != nil {
		h.s.sendError(protocol.ErrInvalidPacket)
		return false
	}
	if h.s.User() == "" {
		h.s.sendError(protocol.ErrNotLoggedIn)
		return false
	}
	return true
}

func (h *handlers) report(err error) {
	if err != nil {
		h.s.sendError(protocol.AsErrorType(err))
	}
}

func (h *handlers) login(body string) {
	var p protocol.LoginPacket
	if err := json.Unmarshal([]byte(body), &p); err != nil || p.Username == "" {
		h.s.sendError(protocol.ErrInvalidPacket)
		return
	}
	if h.s.User() != "" {
		h.s.sendError(protocol.ErrAlreadyLoggedIn)
		return
	}
	info, err := h.dir.Login(p.Username)
	if err != nil {
		h.s.sendError(protocol.AsErrorType(err))
		return
	}
	h.s.setUser(p.Username)
	_ = h.s.Send(protocol.LoginSuccessPacket{User: info})
}

func (h *handlers) sendMessage(body string) {
	var p protocol.SendMessagePacket
	if !h.check(body, &p) {
		return
	}
	h.report(h.dir.SendMessage(h.s.User(), p.ChannelID, p.Message))
}

func (h *handlers) createGroup(body string) {
	var p protocol.CreateGroupPacket
	if !h.check(body, &p) {
		return
	}
	_, err := h.dir.CreateGroup(h.s.User(), p.Name, p.Description)
	h.report(err)
}

func (h *handlers) addUserToGroup(body string) {
	var p protocol.AddUserToGroupPacket
	if !h.check(body, &p) {
		return
	}
	h.report(h.dir.AddToGroup(h.s.User(), p.Username, p.ChannelID))
}

func (h *handlers) kickUser(body string) {
	var p protocol.KickUserPacket
	if !h.check(body, &p) {
		return
	}
	h.report(h.dir.KickUser(h.s.User(), p.Username, p.ChannelID))
}

func (h *handlers) leaveGroup(body string) {
	var p protocol.LeaveGroupPacket
	if !h.check(body, &p) {
		return
	}
	h.report(h.dir.LeaveGroup(h.s.User(), p.ChannelID))
}

func (h *handlers) changeGroupName(body string) {
	var p protocol.ChangeGroupNamePacket
	if !h.check(body, &p) {
		return
	}
	h.report(h.dir.ChangeGroupName(h.s.User(), p.ChannelID, p.NewName))
}

func (h *handlers) changeGroupDescription(body string) {
	var p protocol.ChangeGroupDescriptionPacket
	if !h.check(body, &p) {
		return
	}
	h.report(h.dir.ChangeGroupDescription(h.s.User(), p.ChannelID, p.Description))
}

func (h *handlers) changeUserRank(body string) {
	var p protocol.ChangeUserRankPacket
	if !h.check(body, &p) {
		return
	}
	h.report(h.dir.ChangeUserRank(h.s.User(), p.Username, p.ChannelID))
}

func (h *handlers) openPrivateChannel(body string) {
	var p protocol.OpenPrivateChannelPacket
	if !h.check(body, &p) {
		return
	}
	_, err := h.dir.OpenPrivate(h.s.User(), p.Username)
	h.report(err)
}

func (h *handlers) getChannels(string) {
	if h.s.User() == "" {
		h.s.sendError(protocol.ErrNotLoggedIn)
		return
	}
	channels, err := h.dir.ChannelsOf(h.s.User())
	if err != nil {
		h.s.sendError(protocol.AsErrorType(err))
		return
	}
	_ = h.s.Send(protocol.GetChannelsResponsePacket{Channels: channels})
}

func (h *handlers) getNewMessages(body string) {
	var p protocol.GetNewMessagesPacket
	if !h.check(body, &p) {
		return
	}
	messages, err := h.dir.NewMessages(h.s.User(), p.ChannelIDs)
	if err != nil {
		h.s.sendError(protocol.AsErrorType(err))
		return
	}
	_ = h.s.Send(protocol.GetNewMessagesResponsePacket{Messages: messages})
}

func (h *handlers) disconnect(string) {
	h.s.Close()
}
