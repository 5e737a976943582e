package settings

import (
	"fmt"

	"github.com/zombor/expense-tracker/internal/apperr"
	"github.com/zombor/expense-tracker/internal/format"
	"github.com/zombor/expense-tracker/internal/store"
)

// Settings are the user's local preferences
type Settings struct {
	NotificationsEnabled bool   `json:"notificationsEnabled"`
	Language             string `json:"language"`
}

// Defaults returns the settings used before anything was saved
func Defaults() Settings {
	return Settings{
		NotificationsEnabled: true,
		Language:             format.DefaultLanguage,
	}
}

// Load returns the saved settings, filling unset values with defaults
func Load(kv store.KV) (Settings, error) {
	s := Defaults()
	if _, err := kv.Get(store.KeySettings, &s); err != nil {
		return Defaults(), fmt.Errorf("loading settings: %w", err)
	}
	if s.Language == "" {
		s.Language = format.DefaultLanguage
	}
	return s, nil
}

// SetNotificationsEnabled saves the notification toggle
func SetNotificationsEnabled(kv store.KV, enabled bool) (Settings, error) {
	s, err := Load(kv)
	if err != nil {
		return s, err
	}
	s.NotificationsEnabled = enabled
	return s, save(kv, s)
}

// SetLanguage saves the closest supported language to tag
func SetLanguage(kv store.KV, tag string) (Settings, error) {
	lang, err := format.MatchLanguage(tag)
	if err != nil {
		return Settings{}, apperr.Validation("language", err.Error())
	}

	s, err := Load(kv)
	if err != nil {
		return s, err
	}
	s.Language = lang
	return s, save(kv, s)
}

func save(kv store.KV, s Settings) error {
	if err := kv.Put(store.KeySettings, s); err != nil {
		return fmt.Errorf("saving settings: %w", err)
	}
	return nil
}
