package chat

import (
	"sync"
	"testing"
	"time"

	"parley/internal/protocol"
)

func drainEvents(d *Directory) []Event {
	var events []Event
	for {
		select {
		case ev := <-d.Events():
			events = append(events, ev)
		default:
			return events
		}
	}
}

func TestDirectory_Login(t *testing.T) {
	d := NewDirectory()

	info, err := d.Login("alice")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if !info.Online {
		t.Error("logged-in user not marked online")
	}
	if len(info.Channels) != 1 || info.Channels[0] != GlobalChannelID {
		t.Errorf("expected membership in the global channel only, got %v", info.Channels)
	}

	if _, err := d.Login("alice"); err != protocol.ErrAlreadyLoggedIn {
		t.Errorf("expected ErrAlreadyLoggedIn, got %v", err)
	}

	events := drainEvents(d)
	if len(events) != 1 || events[0].Type != EventUserJoined {
		t.Fatalf("expected one join event, got %v", events)
	}
	if events[0].Channel != nil {
		t.Error("global-channel join should not carry a channel snapshot")
	}
}

func TestDirectory_Relogin(t *testing.T) {
	d := NewDirectory()

	if _, err := d.Login("alice"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	d.Logout("alice")

	u, ok := d.FindUser("alice")
	if !ok {
		t.Fatal("user vanished after logout")
	}
	if u.Online {
		t.Error("user still online after logout")
	}
	if u.LastSeen.IsZero() {
		t.Error("logout did not stamp last-seen")
	}

	drainEvents(d)
	if _, err := d.Login("alice"); err != nil {
		t.Fatalf("re-login failed: %v", err)
	}
	// Global membership is idempotent, so no second join event fires.
	if events := drainEvents(d); len(events) != 0 {
		t.Errorf("expected no events on re-login, got %v", events)
	}
}

func TestDirectory_CreateGroup(t *testing.T) {
	d := NewDirectory()
	mustLogin(t, d, "alice")
	drainEvents(d)

	id, err := d.CreateGroup("alice", "room", "desc")
	if err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}
	if id == GlobalChannelID {
		t.Error("group got the reserved global id")
	}

	info, ok := d.Channel(id)
	if !ok {
		t.Fatal("created channel not found")
	}
	if !info.IsGroup || info.Name != "room" || info.Description != "desc" {
		t.Errorf("unexpected channel snapshot: %+v", info)
	}
	if len(info.Admins) != 1 || info.Admins[0] != "alice" {
		t.Errorf("creator is not the sole admin: %v", info.Admins)
	}
	if !info.Settings.AllowMembersToAdd {
		t.Error("new group does not carry default settings")
	}

	events := drainEvents(d)
	if len(events) != 1 || events[0].Type != EventUserJoined {
		t.Fatalf("expected one join event, got %v", events)
	}
	if events[0].Channel == nil || events[0].Channel.ID != id {
		t.Error("join event missing the channel snapshot")
	}

	if _, err := d.CreateGroup("ghost", "x", ""); err != protocol.ErrUserNotFound {
		t.Errorf("expected ErrUserNotFound for unknown creator, got %v", err)
	}
}

func TestDirectory_UniqueChannelIDs(t *testing.T) {
	d := NewDirectory()
	mustLogin(t, d, "alice")

	const n = 50
	ids := make(chan uint64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := d.CreateGroup("alice", "room", "")
			if err != nil {
				t.Errorf("CreateGroup failed: %v", err)
				return
			}
			ids <- id
		}()
	}
	// Events must be consumed while creators run, or the buffer fills up.
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	for {
		select {
		case <-d.Events():
		case <-done:
			close(ids)
			seen := make(map[uint64]bool)
			for id := range ids {
				if seen[id] {
					t.Fatalf("duplicate channel id %d", id)
				}
				seen[id] = true
			}
			return
		}
	}
}

func TestDirectory_OpenPrivate(t *testing.T) {
	d := NewDirectory()
	mustLogin(t, d, "alice")
	mustLogin(t, d, "bob")
	drainEvents(d)

	if _, err := d.OpenPrivate("alice", "alice"); err != protocol.ErrCannotAddSelf {
		t.Errorf("expected ErrCannotAddSelf, got %v", err)
	}
	if _, err := d.OpenPrivate("alice", "ghost"); err != protocol.ErrUserNotFound {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}

	id, err := d.OpenPrivate("alice", "bob")
	if err != nil {
		t.Fatalf("OpenPrivate failed: %v", err)
	}
	info, ok := d.Channel(id)
	if !ok || info.IsGroup {
		t.Fatalf("expected a direct channel, got %+v", info)
	}
	if len(info.Users) != 2 {
		t.Errorf("expected 2 members, got %d", len(info.Users))
	}

	events := drainEvents(d)
	if len(events) != 2 {
		t.Fatalf("expected a join event per participant, got %d", len(events))
	}
	for _, ev := range events {
		if ev.Channel == nil {
			t.Error("direct-channel join event missing the snapshot")
		}
	}

	if _, err := d.OpenPrivate("bob", "alice"); err != protocol.ErrChannelAlreadyExists {
		t.Errorf("expected ErrChannelAlreadyExists for the same pair, got %v", err)
	}
}

func TestDirectory_GroupMembership(t *testing.T) {
	d := NewDirectory()
	mustLogin(t, d, "alice")
	mustLogin(t, d, "bob")
	mustLogin(t, d, "carol")

	id, err := d.CreateGroup("alice", "room", "")
	if err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}
	drainEvents(d)

	if err := d.AddToGroup("alice", "bob", id); err != nil {
		t.Fatalf("AddToGroup failed: %v", err)
	}
	if err := d.AddToGroup("alice", "bob", id); err != protocol.ErrUserAlreadyInChannel {
		t.Errorf("expected ErrUserAlreadyInChannel, got %v", err)
	}
	if err := d.AddToGroup("alice", "bob", 12345); err != protocol.ErrChannelNotFound {
		t.Errorf("expected ErrChannelNotFound, got %v", err)
	}

	if err := d.KickUser("bob", "alice", id); err != protocol.ErrInsufficientPermissions {
		t.Errorf("expected ErrInsufficientPermissions for non-admin kick, got %v", err)
	}
	if err := d.AddToGroup("bob", "carol", id); err != nil {
		t.Fatalf("member add with default settings failed: %v", err)
	}
	if err := d.LeaveGroup("carol", id); err != nil {
		t.Fatalf("LeaveGroup failed: %v", err)
	}
	if err := d.KickUser("alice", "bob", id); err != nil {
		t.Fatalf("KickUser failed: %v", err)
	}

	events := drainEvents(d)
	wantTypes := []EventType{EventUserJoined, EventUserJoined, EventUserLeft, EventUserLeft}
	if len(events) != len(wantTypes) {
		t.Fatalf("expected %d events, got %d", len(wantTypes), len(events))
	}
	for i, want := range wantTypes {
		if events[i].Type != want {
			t.Errorf("event %d: expected type %v, got %v", i, want, events[i].Type)
		}
	}

	info, _ := d.Channel(id)
	if len(info.Users) != 1 || info.Users[0].Nickname != "alice" {
		t.Errorf("expected alice alone in the group, got %+v", info.Users)
	}
}

func TestDirectory_GroupEdits(t *testing.T) {
	d := NewDirectory()
	mustLogin(t, d, "alice")
	mustLogin(t, d, "bob")

	id, err := d.CreateGroup("alice", "before", "old")
	if err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}
	if err := d.AddToGroup("alice", "bob", id); err != nil {
		t.Fatalf("AddToGroup failed: %v", err)
	}
	drainEvents(d)

	if err := d.ChangeGroupName("alice", id, "after"); err != nil {
		t.Fatalf("ChangeGroupName failed: %v", err)
	}
	if err := d.ChangeGroupDescription("alice", id, "new"); err != nil {
		t.Fatalf("ChangeGroupDescription failed: %v", err)
	}
	if err := d.ChangeUserRank("alice", "bob", id); err != nil {
		t.Fatalf("ChangeUserRank failed: %v", err)
	}
	if err := d.ChangeUserRank("bob", "ghost", id); err != protocol.ErrUserNotFound {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}

	info, _ := d.Channel(id)
	if info.Name != "after" || info.Description != "new" {
		t.Errorf("edits not applied: %+v", info)
	}
	if len(info.Admins) != 2 {
		t.Errorf("expected bob promoted, admins: %v", info.Admins)
	}

	events := drainEvents(d)
	wantTypes := []EventType{EventNameChanged, EventDescriptionChanged, EventRankChanged}
	if len(events) != len(wantTypes) {
		t.Fatalf("expected %d events, got %d", len(wantTypes), len(events))
	}
	if events[0].Value != "after" || events[1].Value != "new" {
		t.Error("change events do not carry the new values")
	}
	if events[2].User.Nickname != "bob" {
		t.Errorf("rank event names %q, expected bob", events[2].User.Nickname)
	}
}

func TestDirectory_SendMessageToGlobal(t *testing.T) {
	d := NewDirectory()
	mustLogin(t, d, "alice")
	drainEvents(d)

	if err := d.SendMessage("alice", GlobalChannelID, "hello world"); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if err := d.SendMessage("alice", 999, "nope"); err != protocol.ErrChannelNotFound {
		t.Errorf("expected ErrChannelNotFound, got %v", err)
	}

	events := drainEvents(d)
	if len(events) != 1 || events[0].Type != EventMessageSent {
		t.Fatalf("expected one message event, got %v", events)
	}
	if events[0].Message.Sender != "alice" || events[0].Message.Content != "hello world" {
		t.Errorf("unexpected message payload: %+v", events[0].Message)
	}
}

func TestDirectory_NewMessages(t *testing.T) {
	current := time.Now()
	d := NewDirectory()
	d.now = func() time.Time { return current }

	mustLogin(t, d, "alice")
	mustLogin(t, d, "bob")

	if err := d.SendMessage("bob", GlobalChannelID, "while alice is here"); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	d.Logout("alice")
	current = current.Add(time.Minute)
	if err := d.SendMessage("bob", GlobalChannelID, "while alice is away"); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	current = current.Add(time.Minute)
	if _, err := d.Login("alice"); err != nil {
		t.Fatalf("re-login failed: %v", err)
	}

	msgs, err := d.NewMessages("alice", []uint64{GlobalChannelID, 424242})
	if err != nil {
		t.Fatalf("NewMessages failed: %v", err)
	}
	if _, ok := msgs[424242]; ok {
		t.Error("unknown channel appeared in the result")
	}
	got := msgs[GlobalChannelID]
	if len(got) != 1 {
		t.Fatalf("expected 1 missed message, got %d", len(got))
	}
	if got[0].Content != "while alice is away" {
		t.Errorf("wrong message returned: %+v", got[0])
	}
}

func TestDirectory_Load(t *testing.T) {
	d := NewDirectory()

	u := &User{Nickname: "alice", Online: true}
	ch := &Channel{ID: 5, Kind: Group, Name: "restored", Members: []*User{u}}
	u.joinChannel(5)
	d.Load([]*User{u}, []*Channel{ch})

	info, ok := d.FindUser("alice")
	if !ok {
		t.Fatal("restored user not found")
	}
	if info.Online {
		t.Error("restored user should start offline")
	}
	if _, ok := d.Channel(5); !ok {
		t.Error("restored channel not found")
	}
	if _, ok := d.Channel(GlobalChannelID); !ok {
		t.Error("global channel missing after load")
	}
}

func mustLogin(t *testing.T, d *Directory, nickname string) {
	t.Helper()
	if _, err := d.Login(nickname); err != nil {
		t.Fatalf("Login(%s) failed: %v", nickname, err)
	}
}
