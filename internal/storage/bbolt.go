// Package storage persists the directory graph in a bbolt database. The
// whole graph is written wholesale on save and read wholesale on load; there
// is no incremental log.
package storage

import (
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"parley/internal/chat"
	"parley/internal/protocol"
)

var (
	bucketUsers    = []byte("users")
	bucketChannels = []byte("channels")
)

type Store struct {
	db *bbolt.DB
}

func NewStore(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bbolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketUsers); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(bucketChannels); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// SaveDirectory overwrites the stored snapshot with the directory's current
// users and channels.
func (s *Store) SaveDirectory(dir *chat.Directory) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketUsers, bucketChannels} {
			if err := tx.DeleteBucket(name); err != nil {
				return err
			}
			if _, err := tx.CreateBucket(name); err != nil {
				return err
			}
		}
		users := tx.Bucket(bucketUsers)
		channels := tx.Bucket(bucketChannels)

		var saveErr error
		dir.View(func(us map[string]*chat.User, chs map[uint64]*chat.Channel) {
			for _, u := range us {
				rec := userRecord(u)
				data, err := rec.MarshalBinary()
				if err != nil {
					saveErr = err
					return
				}
				if err := users.Put(rec.Key(), data); err != nil {
					saveErr = err
					return
				}
			}
			for _, ch := range chs {
				rec := channelRecord(ch)
				data, err := rec.MarshalBinary()
				if err != nil {
					saveErr = err
					return
				}
				if err := channels.Put(rec.Key(), data); err != nil {
					saveErr = err
					return
				}
			}
		})
		return saveErr
	})
}

// LoadDirectory reads the stored snapshot into dir, rewiring channel member
// lists to the canonical User values. Members that have no user record are
// dropped rather than resurrected.
func (s *Store) LoadDirectory(dir *chat.Directory) error {
	var dbUsers []DBUser
	var dbChannels []DBChannel

	err := s.db.View(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketUsers).ForEach(func(k, v []byte) error {
			var rec DBUser
			if err := rec.UnmarshalBinary(v); err != nil {
				return err
			}
			dbUsers = append(dbUsers, rec)
			return nil
		}); err != nil {
			return err
		}
		return tx.Bucket(bucketChannels).ForEach(func(k, v []byte) error {
			var rec DBChannel
			if err := rec.UnmarshalBinary(v); err != nil {
				return err
			}
			dbChannels = append(dbChannels, rec)
			return nil
		})
	})
	if err != nil {
		return err
	}

	byNick := make(map[string]*chat.User, len(dbUsers))
	users := make([]*chat.User, 0, len(dbUsers))
	for _, rec := range dbUsers {
		u := &chat.User{
			Nickname: rec.Nickname,
			Channels: rec.Channels,
			LastSeen: time.Unix(0, rec.LastSeen),
		}
		byNick[u.Nickname] = u
		users = append(users, u)
	}

	channels := make([]*chat.Channel, 0, len(dbChannels))
	for _, rec := range dbChannels {
		channels = append(channels, restoreChannel(rec, byNick))
	}

	dir.Load(users, channels)
	return nil
}

func userRecord(u *chat.User) *DBUser {
	return &DBUser{
		Nickname: u.Nickname,
		Channels: u.Channels,
		LastSeen: u.LastSeen.UnixNano(),
	}
}

func channelRecord(ch *chat.Channel) *DBChannel {
	rec := &DBChannel{
		ID:          ch.ID,
		Kind:        int(ch.Kind),
		Created:     ch.Created.UnixNano(),
		Name:        ch.Name,
		Description: ch.Description,
		Admins:      ch.Admins,
		Settings: DBSettings{
			ReadOnlyForMembers:              ch.Settings.ReadOnlyForMembers,
			AllowMembersToAdd:               ch.Settings.AllowMembersToAdd,
			AllowMembersToChangeName:        ch.Settings.AllowMembersToChangeName,
			AllowMembersToChangeDescription: ch.Settings.AllowMembersToChangeDescription,
		},
	}
	for _, m := range ch.Members {
		rec.Members = append(rec.Members, m.Nickname)
	}
	for _, msg := range ch.Messages {
		rec.Messages = append(rec.Messages, DBMessage{
			Sender:   msg.Sender,
			Content:  msg.Content,
			TimeSent: msg.TimeSent.UnixNano(),
		})
	}
	return rec
}

func restoreChannel(rec DBChannel, byNick map[string]*chat.User) *chat.Channel {
	ch := &chat.Channel{
		ID:          rec.ID,
		Kind:        chat.Kind(rec.Kind),
		Created:     time.Unix(0, rec.Created),
		Name:        rec.Name,
		Description: rec.Description,
		Admins:      rec.Admins,
	}
	ch.Settings.ReadOnlyForMembers = rec.Settings.ReadOnlyForMembers
	ch.Settings.AllowMembersToAdd = rec.Settings.AllowMembersToAdd
	ch.Settings.AllowMembersToChangeName = rec.Settings.AllowMembersToChangeName
	ch.Settings.AllowMembersToChangeDescription = rec.Settings.AllowMembersToChangeDescription
	for _, nick := range rec.Members {
		if u := byNick[nick]; u != nil {
			ch.Members = append(ch.Members, u)
		}
	}
	for _, msg := range rec.Messages {
		ch.Messages = append(ch.Messages, protocol.Message{
			Sender:   msg.Sender,
			Content:  msg.Content,
			TimeSent: time.Unix(0, msg.TimeSent),
		})
	}
	return ch
}
