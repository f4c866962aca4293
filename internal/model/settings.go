package model

import "time"

// Names of the tunables kept in the config table.
const (
	SettingCommandDelay    = "command_delay"    // seconds between two commands
	SettingButtonDelay     = "button_delay"     // seconds between two button taps
	SettingAttemptsMaximum = "attempts_maximum" // default per-user execution quota
	SettingCodeLength      = "code_length"      // length of generated snippet codes
	SettingPageSize        = "page_size"        // users per admin list page
	SettingSourceExpiry    = "source_expiry"    // snippet lifetime, seconds
)

// SettingDefault pairs a config name with the value written on first read
// and the accepted range.
type SettingDefault struct {
	Name     string
	Default  int
	Min, Max int
}

// Accepts reports whether v is within the setting's range.
func (d SettingDefault) Accepts(v int) bool {
	return v >= d.Min && v <= d.Max
}

// SettingDefaults is every tunable the bot reads, in display order.
//
// code_length is capped so "viewS <code> false" fits Telegram's 64-byte
// callback data; page_size so a users page stays under the 100 button limit
// of an inline keyboard.
var SettingDefaults = []SettingDefault{
	{Name: SettingCommandDelay, Default: 15, Min: 0, Max: 3600},
	{Name: SettingButtonDelay, Default: 2, Min: 0, Max: 3600},
	{Name: SettingAttemptsMaximum, Default: 100, Min: 0, Max: 1_000_000},
	{Name: SettingCodeLength, Default: 4, Min: 3, Max: 32},
	{Name: SettingPageSize, Default: 10, Min: 1, Max: 30},
	{Name: SettingSourceExpiry, Default: int((7 * 24 * time.Hour).Seconds()), Min: 60, Max: int((365 * 24 * time.Hour).Seconds())},
}

// LookupSetting returns the definition of a tunable by name.
func LookupSetting(name string) (SettingDefault, bool) {
	for _, d := range SettingDefaults {
		if d.Name == name {
			return d, true
		}
	}
	return SettingDefault{}, false
}

// Settings is the resolved set of tunables for one inbound event.
type Settings struct {
	CommandDelay    time.Duration
	ButtonDelay     time.Duration
	AttemptsMaximum int
	CodeLength      int
	PageSize        int
	SourceExpiry    time.Duration
}

// Delay returns the cooldown for an action class.
func (s Settings) Delay(kind RecordKind) time.Duration {
	if kind == RecordButton {
		return s.ButtonDelay
	}
	return s.CommandDelay
}
