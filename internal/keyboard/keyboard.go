// Package keyboard builds the inline keyboards the bot attaches to its
// messages. Every callback button gets its payload from package callback, so
// whatever is rendered here is guaranteed to parse.
package keyboard

import (
	"strings"

	"github.com/sakif/rpg-bot/internal/callback"
	"github.com/sakif/rpg-bot/internal/model"
	"github.com/sakif/rpg-bot/internal/pagination"
)

const (
	selected   = "⬅️"
	unselected = "-"
	emptyCell  = "😑"
)

// RepositoryURL is linked from the /start message.
const RepositoryURL = "https://github.com/sakif/rpg-bot"

// Button is either a callback button (Data set) or a link (URL set).
type Button struct {
	Label string
	Data  string
	URL   string
}

// Keyboard is a list of button rows.
type Keyboard [][]Button

// Labeler resolves the catalog key of a button label in the reader's
// language. i18n.Localizer satisfies it.
type Labeler interface {
	T(key string) string
}

func action(label string, a callback.Action) Button {
	return Button{Label: label, Data: a.Encode()}
}

func notice(label, message string) Button {
	return action(label, callback.Print{Message: message})
}

// Repository is the single link button under /start.
func Repository(l Labeler) Keyboard {
	return Keyboard{{{Label: l.T("button.repository"), URL: RepositoryURL}}}
}

func targetLabel(l Labeler, t callback.Target) string {
	if t == callback.TargetShare {
		return l.T("keyboard.share")
	}
	return l.T("keyboard.run")
}

// View is the one-button keyboard under a result message. Tapping it
// reveals Options for target.
func View(l Labeler, target callback.Target, code string, alreadyUsed bool) Keyboard {
	return Keyboard{{action(targetLabel(l, target), callback.View{
		Target:      target,
		Code:        code,
		AlreadyUsed: alreadyUsed,
	})}}
}

// Options renders one row per option field: a header naming the field
// followed by its choices, the current value marked. The last row holds the
// target action button.
//
//	Version 📦 | Stable ⬅️ | Beta -    | Nightly -
//	Mode 🚀    | Debug ⬅️  | Release - | 😑
//	Edition ⚡ | 2015 -    | 2018 -    | 2021 ⬅️
//	Run 🦀⚙️
//
// Choosing the current value, or the empty cell padding the mode row, is a
// print no-op.
func Options(l Labeler, src *model.SourceCode, target callback.Target) Keyboard {
	kb := make(Keyboard, 0, len(model.OptionFields)+1)

	width := 0
	for _, f := range model.OptionFields {
		width = max(width, len(f.Values()))
	}

	for _, f := range model.OptionFields {
		name := string(f)
		row := []Button{notice(l.T("keyboard."+name), l.T("keyboard."+name+"_hint"))}

		current := src.Option(f)
		for _, v := range f.Values() {
			if v == current {
				row = append(row, notice(capitalize(v)+" "+selected, l.T("keyboard.selected")))
				continue
			}
			row = append(row, action(capitalize(v)+" "+unselected, callback.Option{
				Code:  src.Code,
				Field: f,
				Value: v,
			}))
		}
		for len(row) < width+1 {
			row = append(row, notice(unselected, emptyCell))
		}
		kb = append(kb, row)
	}

	kb = append(kb, []Button{action(targetLabel(l, target), callback.Execute{
		Target: target,
		Code:   src.Code,
	})})
	return kb
}

// OptionsTarget recovers the action an Options keyboard ends with, so an
// option change can redraw the same keyboard.
func OptionsTarget(kb Keyboard) (callback.Target, bool) {
	if len(kb) == 0 || len(kb[len(kb)-1]) != 1 {
		return 0, false
	}
	a, err := callback.Parse(kb[len(kb)-1][0].Data)
	if err != nil {
		return 0, false
	}
	exec, ok := a.(callback.Execute)
	if !ok {
		return 0, false
	}
	return exec.Target, true
}

// Language is one entry of the /lang picker.
type Language struct {
	Code string
	Name string
}

// Languages lists the supported locales, one per row.
func Languages(languages []Language, current string) Keyboard {
	kb := make(Keyboard, 0, len(languages))
	for _, lang := range languages {
		label := lang.Name
		if lang.Code == current {
			label += " " + selected
		}
		kb = append(kb, []Button{action(label, callback.ChangeLang{Language: lang.Code})})
	}
	return kb
}

// AdminRoot is the /admin menu.
func AdminRoot(l Labeler) Keyboard {
	return Keyboard{
		{action(l.T("admin.users"), callback.Goto{Screen: callback.ScreenUsers})},
		{action(l.T("admin.settings"), callback.Goto{Screen: callback.ScreenSettings})},
		{action(l.T("admin.broadcast"), callback.Goto{Screen: callback.ScreenBroadcast})},
	}
}

// BackToAdmin is the keyboard of the leaf admin screens.
func BackToAdmin(l Labeler) Keyboard {
	return Keyboard{{backToAdmin(l)}}
}

func backToAdmin(l Labeler) Button {
	return action(l.T("admin.back"), callback.Goto{Screen: callback.ScreenAdmin})
}

// Actor is the admin looking at a user list.
type Actor struct {
	TelegramID string
	SuperUser  bool
}

// Users renders one page of the user list: a row per user with the name
// (opens the detail screen), a ban toggle and an admin toggle, then the
// navigation row when there is somewhere to go, then the way back.
//
// Toggles the actor may not use are rendered as print buttons carrying the
// refusal: both toggles on the actor's own row, and both toggles on another
// admin's row unless the actor is the super-user. The callback handler
// enforces the same rules again.
func Users(l Labeler, page pagination.Window[model.User], actor Actor) Keyboard {
	kb := make(Keyboard, 0, len(page.Items)+2)

	for _, u := range page.Items {
		info := action(u.DisplayName(), callback.Goto{
			Screen:     callback.ScreenUserInfo,
			TelegramID: u.TelegramID,
			Page:       page.Number,
		})

		banLabel, adminLabel := l.T("admin.ban"), l.T("admin.promote")
		if u.IsBan {
			banLabel = l.T("admin.unban")
		}
		if u.IsAdmin {
			adminLabel = l.T("admin.demote")
		}

		var ban, admin Button
		switch {
		case u.TelegramID == actor.TelegramID:
			ban = notice(banLabel, l.T("admin.self"))
			admin = notice(adminLabel, l.T("admin.self"))
		case u.IsAdmin && !actor.SuperUser:
			ban = notice(banLabel, l.T("admin.peer_ban"))
			admin = notice(adminLabel, l.T("admin.peer"))
		default:
			ban = action(banLabel, callback.AdminToggle{
				Toggle: callback.ToggleBan, TelegramID: u.TelegramID, Page: page.Number,
			})
			admin = action(adminLabel, callback.AdminToggle{
				Toggle: callback.ToggleAdmin, TelegramID: u.TelegramID, Page: page.Number,
			})
		}

		kb = append(kb, []Button{info, ban, admin})
	}

	var nav []Button
	if page.HavePrevious {
		nav = append(nav, action(l.T("admin.previous"), callback.Goto{
			Screen: callback.ScreenUsers, KeyboardOnly: true, Page: page.Number - 1,
		}))
	}
	if page.HaveNext {
		nav = append(nav, action(l.T("admin.next"), callback.Goto{
			Screen: callback.ScreenUsers, KeyboardOnly: true, Page: page.Number + 1,
		}))
	}
	if len(nav) > 0 {
		kb = append(kb, nav)
	}

	return append(kb, []Button{backToAdmin(l)})
}

// UserInfo is the keyboard of the user detail screen.
func UserInfo(l Labeler, page int) Keyboard {
	return Keyboard{{action(l.T("admin.back"), callback.Goto{Screen: callback.ScreenUsers, Page: page})}}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
