package store

// GetSettings returns the stored settings merged over the defaults. Missing
// or unreadable settings yield the defaults.
func (db *DB) GetSettings() Settings {
	s := DefaultSettings()
	if found, err := readKey(db, keySettings, &s); err != nil || !found {
		return DefaultSettings()
	}
	if s.Validate() != nil {
		return DefaultSettings()
	}
	return s
}

// SaveSettings validates and replaces the stored settings.
func (db *DB) SaveSettings(s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	return writeKey(db, keySettings, s)
}

// UpdateSettings merges p into the stored settings and returns the result.
func (db *DB) UpdateSettings(p SettingsPatch) (Settings, error) {
	tx, err := db.Begin()
	if err != nil {
		return Settings{}, err
	}
	defer func() { _ = tx.Rollback() }()

	current := DefaultSettings()
	found, err := readKey(tx, keySettings, &current)
	if err != nil {
		return Settings{}, err
	}
	if !found || current.Validate() != nil {
		current = DefaultSettings()
	}
	next := current.Apply(p)
	if err := next.Validate(); err != nil {
		return Settings{}, err
	}
	if err := writeKey(tx, keySettings, next); err != nil {
		return Settings{}, err
	}
	return next, tx.Commit()
}
