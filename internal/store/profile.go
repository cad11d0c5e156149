package store

import (
	"errors"

	"github.com/matheus3301/meshchat/internal/protocol"
)

// GetProfile returns the device identity, or nil if none has been created
// or it cannot be read.
func (db *DB) GetProfile() *protocol.Profile {
	var p protocol.Profile
	found, err := readKey(db, keyIdentity, &p)
	if err != nil || !found || p.ID == "" {
		return nil
	}
	return &p
}

// SaveProfile replaces the device identity.
func (db *DB) SaveProfile(p protocol.Profile) error {
	if p.ID == "" {
		return errors.New("save profile: empty id")
	}
	return writeKey(db, keyIdentity, p)
}
