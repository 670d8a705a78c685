package storage

import (
	"encoding"
	"encoding/binary"

	"github.com/vmihailenco/msgpack/v5"
)

type Storeable interface {
	Key() []byte
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}

type DBUser struct {
	Nickname string   `msgpack:"nickname"`
	Channels []uint64 `msgpack:"channels"`
	LastSeen int64    `msgpack:"lastSeen"`
}

func (u *DBUser) Key() []byte {
	return []byte(u.Nickname)
}

func (u *DBUser) MarshalBinary() (data []byte, err error) {
	type alias DBUser
	return msgpack.Marshal((*alias)(u))
}

func (u *DBUser) UnmarshalBinary(data []byte) error {
	type alias DBUser
	return msgpack.Unmarshal(data, (*alias)(u))
}

type DBMessage struct {
	Sender   string `msgpack:"sender"`
	Content  string `msgpack:"content"`
	TimeSent int64  `msgpack:"timeSent"`
}

type DBSettings struct {
	ReadOnlyForMembers              bool `msgpack:"readOnlyForMembers"`
	AllowMembersToAdd               bool `msgpack:"allowMembersToAdd"`
	AllowMembersToChangeName        bool `msgpack:"allowMembersToChangeName"`
	AllowMembersToChangeDescription bool `msgpack:"allowMembersToChangeDescription"`
}

type DBChannel struct {
	ID          uint64      `msgpack:"id"`
	Kind        int         `msgpack:"kind"`
	Created     int64       `msgpack:"created"`
	Members     []string    `msgpack:"members"`
	Messages    []DBMessage `msgpack:"messages"`
	Name        string      `msgpack:"name"`
	Description string      `msgpack:"description"`
	Admins      []string    `msgpack:"admins"`
	Settings    DBSettings  `msgpack:"settings"`
}

func (c *DBChannel) Key() []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, c.ID)
	return key
}

func (c *DBChannel) MarshalBinary() (data []byte, err error) {
	type alias DBChannel
	return msgpack.Marshal((*alias)(c))
}

func (c *DBChannel) UnmarshalBinary(data []byte) error {
	type alias DBChannel
	return msgpack.Unmarshal(data, (*alias)(c))
}
