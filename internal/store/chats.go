package store

import (
	"github.com/samber/lo"
)

func loadChats(q querier) ([]Chat, error) {
	var chats []Chat
	found, err := readKey(q, keyChats, &chats)
	if err != nil {
		return nil, err
	}
	if !found || chats == nil {
		return []Chat{}, nil
	}
	return chats, nil
}

// GetChats returns every conversation. Unreadable state yields an empty list.
func (db *DB) GetChats() []Chat {
	chats, err := loadChats(db)
	if err != nil {
		return []Chat{}
	}
	return chats
}

// GetChat returns the conversation with peerID, or nil.
func (db *DB) GetChat(peerID string) *Chat {
	for _, c := range db.GetChats() {
		if c.PeerID == peerID {
			return &c
		}
	}
	return nil
}

// SaveChats replaces the full conversation list.
func (db *DB) SaveChats(chats []Chat) error {
	if chats == nil {
		chats = []Chat{}
	}
	for i := range chats {
		chats[i].syncLastMessage()
	}
	return writeKey(db, keyChats, chats)
}

// mutateChats runs fn over the current snapshot inside one transaction and
// writes the result back when fn reports a change. A database error while
// reading aborts without writing.
func (db *DB) mutateChats(fn func(chats []Chat) ([]Chat, bool)) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	chats, err := loadChats(tx)
	if err != nil {
		return err
	}
	next, changed := fn(chats)
	if !changed {
		return nil
	}
	if next == nil {
		next = []Chat{}
	}
	for i := range next {
		next[i].syncLastMessage()
	}
	if err := writeKey(tx, keyChats, next); err != nil {
		return err
	}
	return tx.Commit()
}

func findChat(chats []Chat, peerID string) int {
	_, idx, ok := lo.FindIndexOf(chats, func(c Chat) bool { return c.PeerID == peerID })
	if !ok {
		return -1
	}
	return idx
}

// AddMessage appends m to the conversation with peerID, creating it under
// peerName when absent. Received messages bump the unread count. A message
// whose id is already present is ignored.
func (db *DB) AddMessage(peerID, peerName string, m Message) error {
	return db.mutateChats(func(chats []Chat) ([]Chat, bool) {
		idx := findChat(chats, peerID)
		if idx < 0 {
			chat := Chat{
				PeerID:   peerID,
				PeerName: peerName,
				Messages: []Message{m},
				IsOnline: true,
			}
			if !m.IsSent {
				chat.UnreadCount = 1
			}
			return append(chats, chat), true
		}

		chat := &chats[idx]
		if lo.ContainsBy(chat.Messages, func(existing Message) bool { return existing.ID == m.ID }) {
			return chats, false
		}
		chat.Messages = append(chat.Messages, m)
		if !m.IsSent {
			chat.UnreadCount++
		}
		return chats, true
	})
}

// UpdateMessageStatus advances one message's status in place. It reports
// whether the message was found and the transition allowed.
func (db *DB) UpdateMessageStatus(peerID, messageID string, status Status) (bool, error) {
	updated := false
	err := db.mutateChats(func(chats []Chat) ([]Chat, bool) {
		idx := findChat(chats, peerID)
		if idx < 0 {
			return chats, false
		}
		for i := range chats[idx].Messages {
			m := &chats[idx].Messages[i]
			if m.ID != messageID {
				continue
			}
			if !m.Status.CanAdvanceTo(status) {
				return chats, false
			}
			m.Status = status
			updated = true
			return chats, true
		}
		return chats, false
	})
	return updated && err == nil, err
}

// MarkChatRead marks every received, unread message of the conversation as
// read at now, zeroes its unread count and returns the ids that changed.
func (db *DB) MarkChatRead(peerID string, now int64) ([]string, error) {
	var ids []string
	err := db.mutateChats(func(chats []Chat) ([]Chat, bool) {
		idx := findChat(chats, peerID)
		if idx < 0 {
			return chats, false
		}
		chat := &chats[idx]
		for i := range chat.Messages {
			m := &chat.Messages[i]
			if m.IsSent || m.Status == StatusRead {
				continue
			}
			readAt := now
			m.Status = StatusRead
			m.ReadAt = &readAt
			ids = append(ids, m.ID)
		}
		changed := len(ids) > 0 || chat.UnreadCount != 0
		chat.UnreadCount = 0
		return chats, changed
	})
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

// ApplyReadReceipt marks the named sent messages of the conversation as read
// at now, stamping autoDeleteAt when given. It returns how many changed.
func (db *DB) ApplyReadReceipt(peerID string, messageIDs []string, now int64, autoDeleteAt *int64) (int, error) {
	wanted := lo.SliceToMap(messageIDs, func(id string) (string, struct{}) { return id, struct{}{} })
	count := 0
	err := db.mutateChats(func(chats []Chat) ([]Chat, bool) {
		idx := findChat(chats, peerID)
		if idx < 0 {
			return chats, false
		}
		for i := range chats[idx].Messages {
			m := &chats[idx].Messages[i]
			if _, ok := wanted[m.ID]; !ok || !m.IsSent || !m.Status.CanAdvanceTo(StatusRead) {
				continue
			}
			readAt := now
			m.Status = StatusRead
			m.ReadAt = &readAt
			if autoDeleteAt != nil {
				at := *autoDeleteAt
				m.AutoDeleteAt = &at
			}
			count++
		}
		return chats, count > 0
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// StampAutoDelete sets the expiry of the named messages of the conversation.
func (db *DB) StampAutoDelete(peerID string, messageIDs []string, at int64) error {
	if len(messageIDs) == 0 {
		return nil
	}
	wanted := lo.SliceToMap(messageIDs, func(id string) (string, struct{}) { return id, struct{}{} })
	return db.mutateChats(func(chats []Chat) ([]Chat, bool) {
		idx := findChat(chats, peerID)
		if idx < 0 {
			return chats, false
		}
		changed := false
		for i := range chats[idx].Messages {
			m := &chats[idx].Messages[i]
			if _, ok := wanted[m.ID]; ok {
				expiry := at
				m.AutoDeleteAt = &expiry
				changed = true
			}
		}
		return chats, changed
	})
}

// SweepExpired permanently removes every message whose expiry is at or
// before now and returns how many were removed. Emptied conversations stay.
func (db *DB) SweepExpired(now int64) (int, error) {
	removed := 0
	err := db.mutateChats(func(chats []Chat) ([]Chat, bool) {
		for i := range chats {
			kept := lo.Reject(chats[i].Messages, func(m Message, _ int) bool {
				return m.AutoDeleteAt != nil && *m.AutoDeleteAt <= now
			})
			removed += len(chats[i].Messages) - len(kept)
			chats[i].Messages = kept
		}
		return chats, removed > 0
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// DeleteChat removes the conversation with peerID and reports whether it existed.
func (db *DB) DeleteChat(peerID string) (bool, error) {
	found := false
	err := db.mutateChats(func(chats []Chat) ([]Chat, bool) {
		idx := findChat(chats, peerID)
		if idx < 0 {
			return chats, false
		}
		found = true
		return append(chats[:idx], chats[idx+1:]...), true
	})
	return found && err == nil, err
}

// SetChatOnline updates the presence of an existing conversation and, when
// name is non-empty, its display name. It reports whether the chat exists.
func (db *DB) SetChatOnline(peerID string, online bool, name string) (bool, error) {
	found := false
	err := db.mutateChats(func(chats []Chat) ([]Chat, bool) {
		idx := findChat(chats, peerID)
		if idx < 0 {
			return chats, false
		}
		found = true
		chat := &chats[idx]
		changed := chat.IsOnline != online
		chat.IsOnline = online
		if name != "" && chat.PeerName != name {
			chat.PeerName = name
			changed = true
		}
		return chats, changed
	})
	return found && err == nil, err
}

// ClearChats removes every conversation.
func (db *DB) ClearChats() error {
	return writeKey(db, keyChats, []Chat{})
}
