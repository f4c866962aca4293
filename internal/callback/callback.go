// Package callback encodes and decodes the payloads carried by inline
// keyboard buttons.
//
// A payload is a list of space separated tokens: the verb first, then a fixed
// number of positional arguments.
//
//	viewR <code> <already_used>       viewS <code> <already_used>
//	run <code>                        share <code>
//	option <code> <field> <value>     print <message>
//	change_lang <language>
//	admin users ban|admin <telegram_id> <page>
//	goto|gotok admin | users <page> | users-info <telegram_id> <page> | settings | broadcast
//
// Payloads are parsed exactly once, at the edge, into one of the Action
// types below. Anything Parse rejects was not produced by this package and is
// reported as apperror.ErrProtocol.
package callback

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/sakif/rpg-bot/internal/apperror"
	"github.com/sakif/rpg-bot/internal/model"
)

// MaxDataLen is Telegram's limit on callback_data, in bytes.
const MaxDataLen = 64

// Action is a decoded callback payload.
type Action interface {
	// Encode renders the action back into its payload form.
	Encode() string
}

// Target is the remote operation a snippet keyboard leads to.
type Target int

const (
	TargetRun Target = iota
	TargetShare
)

func (t Target) String() string {
	if t == TargetShare {
		return "share"
	}
	return "run"
}

// Opposite returns the other target: a run result offers sharing and vice
// versa.
func (t Target) Opposite() Target {
	if t == TargetShare {
		return TargetRun
	}
	return TargetShare
}

// View reveals the option keyboard ending with the Target action button.
type View struct {
	Target      Target
	Code        string
	AlreadyUsed bool
}

func (v View) Encode() string {
	verb := "viewR"
	if v.Target == TargetShare {
		verb = "viewS"
	}
	return fmt.Sprintf("%s %s %t", verb, v.Code, v.AlreadyUsed)
}

// Execute runs or shares the stored snippet.
type Execute struct {
	Target Target
	Code   string
}

func (e Execute) Encode() string {
	return e.Target.String() + " " + e.Code
}

// Option sets one option of the stored snippet.
type Option struct {
	Code  string
	Field model.OptionField
	Value string
}

func (o Option) Encode() string {
	return fmt.Sprintf("option %s %s %s", o.Code, o.Field, o.Value)
}

// Print shows Message as a toast and changes nothing.
type Print struct {
	Message string
}

// Encode replaces spaces with underscores and, when the result would not fit
// in MaxDataLen, cuts the message on a rune boundary.
func (p Print) Encode() string {
	data := "print " + strings.ReplaceAll(p.Message, " ", "_")
	return truncate(data, MaxDataLen)
}

// ChangeLang switches the user's locale.
type ChangeLang struct {
	Language string
}

func (c ChangeLang) Encode() string {
	return "change_lang " + strings.ReplaceAll(c.Language, " ", "_")
}

// Toggle is the flag an admin button flips on a user.
type Toggle string

const (
	ToggleBan   Toggle = "ban"
	ToggleAdmin Toggle = "admin"
)

// AdminToggle flips a flag on a listed user, then redraws list page Page.
type AdminToggle struct {
	Toggle     Toggle
	TelegramID string
	Page       int
}

func (a AdminToggle) Encode() string {
	return fmt.Sprintf("admin users %s %s %d", a.Toggle, a.TelegramID, a.Page)
}

// Screen names an admin sub-interface.
type Screen string

const (
	ScreenAdmin     Screen = "admin"
	ScreenUsers     Screen = "users"
	ScreenUserInfo  Screen = "users-info"
	ScreenSettings  Screen = "settings"
	ScreenBroadcast Screen = "broadcast"
)

// Goto navigates to an admin screen. KeyboardOnly (the gotok verb) keeps the
// message text and replaces only the keyboard.
type Goto struct {
	Screen       Screen
	KeyboardOnly bool
	TelegramID   string // ScreenUserInfo only
	Page         int    // ScreenUsers and ScreenUserInfo
}

func (g Goto) Encode() string {
	verb := "goto"
	if g.KeyboardOnly {
		verb = "gotok"
	}
	switch g.Screen {
	case ScreenUsers:
		return fmt.Sprintf("%s %s %d", verb, g.Screen, g.Page)
	case ScreenUserInfo:
		return fmt.Sprintf("%s %s %s %d", verb, g.Screen, g.TelegramID, g.Page)
	}
	return verb + " " + string(g.Screen)
}

// Parse decodes a payload produced by one of the Encode methods.
func Parse(data string) (Action, error) {
	tokens := strings.Fields(data)
	if len(tokens) == 0 {
		return nil, apperror.Protocol(data, "empty payload")
	}
	verb, args := tokens[0], tokens[1:]

	switch verb {
	case "viewR", "viewS":
		if err := wantArgs(data, args, 2); err != nil {
			return nil, err
		}
		used, err := strconv.ParseBool(args[1])
		if err != nil {
			return nil, apperror.Protocol(data, "already_used is not a bool")
		}
		target := TargetRun
		if verb == "viewS" {
			target = TargetShare
		}
		return View{Target: target, Code: args[0], AlreadyUsed: used}, nil

	case "run", "share":
		if err := wantArgs(data, args, 1); err != nil {
			return nil, err
		}
		target := TargetRun
		if verb == "share" {
			target = TargetShare
		}
		return Execute{Target: target, Code: args[0]}, nil

	case "option":
		if err := wantArgs(data, args, 3); err != nil {
			return nil, err
		}
		field, ok := model.ParseOptionField(args[1])
		if !ok {
			return nil, apperror.Protocol(data, "unknown option field")
		}
		if !field.Accepts(args[2]) {
			return nil, apperror.Protocol(data, "invalid option value")
		}
		return Option{Code: args[0], Field: field, Value: args[2]}, nil

	case "print":
		if err := wantArgs(data, args, 1); err != nil {
			return nil, err
		}
		return Print{Message: strings.ReplaceAll(args[0], "_", " ")}, nil

	case "change_lang":
		if err := wantArgs(data, args, 1); err != nil {
			return nil, err
		}
		return ChangeLang{Language: strings.ReplaceAll(args[0], "_", " ")}, nil

	case "admin":
		return parseAdmin(data, args)

	case "goto", "gotok":
		return parseGoto(data, verb == "gotok", args)
	}

	return nil, apperror.Protocol(data, "unknown verb")
}

func parseAdmin(data string, args []string) (Action, error) {
	if err := wantArgs(data, args, 4); err != nil {
		return nil, err
	}
	if args[0] != string(ScreenUsers) {
		return nil, apperror.Protocol(data, "unknown admin interface")
	}

	toggle := Toggle(args[1])
	if toggle != ToggleBan && toggle != ToggleAdmin {
		return nil, apperror.Protocol(data, "unknown admin toggle")
	}
	id, err := parseTelegramID(data, args[2])
	if err != nil {
		return nil, err
	}
	page, err := parsePage(data, args[3])
	if err != nil {
		return nil, err
	}
	return AdminToggle{Toggle: toggle, TelegramID: id, Page: page}, nil
}

func parseGoto(data string, keyboardOnly bool, args []string) (Action, error) {
	if len(args) == 0 {
		return nil, apperror.Protocol(data, "missing interface")
	}
	g := Goto{Screen: Screen(args[0]), KeyboardOnly: keyboardOnly}
	args = args[1:]

	switch g.Screen {
	case ScreenAdmin, ScreenSettings, ScreenBroadcast:
		if err := wantArgs(data, args, 0); err != nil {
			return nil, err
		}
	case ScreenUsers:
		if err := wantArgs(data, args, 1); err != nil {
			return nil, err
		}
		page, err := parsePage(data, args[0])
		if err != nil {
			return nil, err
		}
		g.Page = page
	case ScreenUserInfo:
		if err := wantArgs(data, args, 2); err != nil {
			return nil, err
		}
		id, err := parseTelegramID(data, args[0])
		if err != nil {
			return nil, err
		}
		page, err := parsePage(data, args[1])
		if err != nil {
			return nil, err
		}
		g.TelegramID, g.Page = id, page
	default:
		return nil, apperror.Protocol(data, "unknown interface")
	}
	return g, nil
}

func wantArgs(data string, args []string, n int) error {
	if len(args) != n {
		return apperror.Protocol(data, fmt.Sprintf("want %d arguments, got %d", n, len(args)))
	}
	return nil
}

// MaxPage bounds page numbers accepted from payloads.
const MaxPage = math.MaxInt32

func parsePage(data, s string) (int, error) {
	page, err := strconv.Atoi(s)
	if err != nil || page < 0 || page > MaxPage {
		return 0, apperror.Protocol(data, "page is out of range")
	}
	return page, nil
}

func parseTelegramID(data, s string) (string, error) {
	if _, err := strconv.ParseInt(s, 10, 64); err != nil {
		return "", apperror.Protocol(data, "telegram id is not an integer")
	}
	return s, nil
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
