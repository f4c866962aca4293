package model

import (
	"slices"
	"time"
)

// Option values accepted by the playground.
const (
	VersionStable  = "stable"
	VersionBeta    = "beta"
	VersionNightly = "nightly"

	ModeDebug   = "debug"
	ModeRelease = "release"

	Edition2015 = "2015"
	Edition2018 = "2018"
	Edition2021 = "2021"
)

var (
	Versions = []string{VersionStable, VersionBeta, VersionNightly}
	Modes    = []string{ModeDebug, ModeRelease}
	Editions = []string{Edition2015, Edition2018, Edition2021}
)

// OptionField is one of the three mutable options of a stored snippet.
type OptionField string

const (
	FieldVersion OptionField = "version"
	FieldMode    OptionField = "mode"
	FieldEdition OptionField = "edition"
)

// OptionFields lists the fields in keyboard column order.
var OptionFields = []OptionField{FieldVersion, FieldMode, FieldEdition}

// ParseOptionField maps a payload token to a field.
func ParseOptionField(s string) (OptionField, bool) {
	f := OptionField(s)
	return f, slices.Contains(OptionFields, f)
}

// Values returns the accepted values of the field, in display order.
func (f OptionField) Values() []string {
	switch f {
	case FieldVersion:
		return Versions
	case FieldMode:
		return Modes
	case FieldEdition:
		return Editions
	}
	return nil
}

// Accepts reports whether v is a valid value for the field.
func (f OptionField) Accepts(v string) bool {
	return slices.Contains(f.Values(), v)
}

// SourceCode is a stored snippet addressed by a short random code. Inline
// keyboards carry only the code; everything else stays server side.
type SourceCode struct {
	ID        int64     `json:"id"        db:"id"`
	Code      string    `json:"code"      db:"code"`
	UserID    int64     `json:"userId"    db:"user_id"`
	Source    string    `json:"source"    db:"source_text"`
	Version   string    `json:"version"   db:"version"`
	Mode      string    `json:"mode"      db:"mode"`
	Edition   string    `json:"edition"   db:"edition"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// Option returns the current value of one option field.
func (s *SourceCode) Option(f OptionField) string {
	switch f {
	case FieldVersion:
		return s.Version
	case FieldMode:
		return s.Mode
	case FieldEdition:
		return s.Edition
	}
	return ""
}

// SetOption assigns one option field in memory.
func (s *SourceCode) SetOption(f OptionField, v string) {
	switch f {
	case FieldVersion:
		s.Version = v
	case FieldMode:
		s.Mode = v
	case FieldEdition:
		s.Edition = v
	}
}
