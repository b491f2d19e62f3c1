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
	ID             string   `msgpack:"id"`
	UserName       string   `msgpack:"userName"`
	DisplayName    string   `msgpack:"displayName"`
	BlockedUserIDs []string `msgpack:"blockedUserIds"`
	LastSeen       int64    `msgpack:"lastSeen"`
}

func (u *DBUser) Key() []byte {
	return []byte(u.ID)
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
	ID                   string   `msgpack:"id"`
	Seq                  uint64   `msgpack:"seq"`
	SenderID             string   `msgpack:"senderId"`
	ReceiverID           string   `msgpack:"receiverId"`
	Content              string   `msgpack:"content"`
	Timestamp            int64    `msgpack:"timestamp"`
	IsRead               bool     `msgpack:"isRead"`
	Edited               bool     `msgpack:"edited"`
	DeletedFor           []string `msgpack:"deletedFor"`
	DeletedForEveryoneBy string   `msgpack:"deletedForEveryoneBy"`
}

func (m *DBMessage) Key() []byte {
	return seqKey(m.Seq)
}

func (m *DBMessage) MarshalBinary() (data []byte, err error) {
	type alias DBMessage
	return msgpack.Marshal((*alias)(m))
}

func (m *DBMessage) UnmarshalBinary(data []byte) error {
	type alias DBMessage
	return msgpack.Unmarshal(data, (*alias)(m))
}

// DBMessageRef locates a message inside its conversation bucket.
type DBMessageRef struct {
	MessageID string `msgpack:"messageId"`
	ChatID    string `msgpack:"chatId"`
	Seq       uint64 `msgpack:"seq"`
}

func (r *DBMessageRef) Key() []byte {
	return []byte(r.MessageID)
}

func (r *DBMessageRef) MarshalBinary() (data []byte, err error) {
	type alias DBMessageRef
	return msgpack.Marshal((*alias)(r))
}

func (r *DBMessageRef) UnmarshalBinary(data []byte) error {
	type alias DBMessageRef
	return msgpack.Unmarshal(data, (*alias)(r))
}

type DBPushSubscription struct {
	UserID   string `msgpack:"userId"`
	Endpoint string `msgpack:"endpoint"`
	P256dh   string `msgpack:"p256dh"`
	Auth     string `msgpack:"auth"`
}

func (s *DBPushSubscription) Key() []byte {
	return []byte(s.UserID)
}

func (s *DBPushSubscription) MarshalBinary() (data []byte, err error) {
	type alias DBPushSubscription
	return msgpack.Marshal((*alias)(s))
}

func (s *DBPushSubscription) UnmarshalBinary(data []byte) error {
	type alias DBPushSubscription
	return msgpack.Unmarshal(data, (*alias)(s))
}

func seqKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}
