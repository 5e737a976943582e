package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/peterbourgon/ff/v4"

	"github.com/zombor/expense-tracker/internal/format"
	"github.com/zombor/expense-tracker/internal/notification"
	"github.com/zombor/expense-tracker/internal/settings"
)

func (a *app) loginCommand() *ff.Command {
	fs := a.subFlags("login")
	email := fs.StringLong("email", "", "Account email")
	password := fs.StringLong("password", "", "Account password (read from stdin when empty)")

	return &ff.Command{
		Name:      "login",
		Usage:     "expense-tracker login --email EMAIL [--password PASSWORD]",
		ShortHelp: "sign in and save the session",
		Flags:     fs,
		Exec: func(ctx context.Context, args []string) error {
			if err := a.open(); err != nil {
				return err
			}
			pw := *password
			if pw == "" {
				fmt.Fprint(a.stderr, "Password: ")
				line, err := bufio.NewReader(a.stdin).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("reading password: %w", err)
				}
				pw = strings.TrimRight(line, "\r\n")
			}
			sess, err := a.session.Login(ctx, *email, pw)
			if err != nil {
				return err
			}
			a.printf("Logged in as %s (%s)\n", sess.UserID, sess.Role)
			return nil
		},
	}
}

func (a *app) logoutCommand() *ff.Command {
	return &ff.Command{
		Name:      "logout",
		Usage:     "expense-tracker logout",
		ShortHelp: "end the session and forget the saved token",
		Flags:     a.subFlags("logout"),
		Exec: func(ctx context.Context, args []string) error {
			if err := a.open(); err != nil {
				return err
			}
			if err := a.session.Logout(ctx); err != nil {
				return err
			}
			a.printf("Logged out\n")
			return nil
		},
	}
}

func (a *app) whoamiCommand() *ff.Command {
	return &ff.Command{
		Name:      "whoami",
		Usage:     "expense-tracker whoami",
		ShortHelp: "show the current session",
		Flags:     a.subFlags("whoami"),
		Exec: func(ctx context.Context, args []string) error {
			if err := a.open(); err != nil {
				return err
			}
			sess, ok := a.session.Current()
			if !ok {
				return errNotLoggedIn
			}
			a.printf("User: %s\nRole: %s\n", sess.UserID, sess.Role)
			if !sess.ExpiresAt.IsZero() {
				a.printf("Expires: %s\n", sess.ExpiresAt.Local().Format(time.RFC1123))
			}
			return nil
		},
	}
}

var errNotLoggedIn = errors.New("not logged in")

func (a *app) settingsCommand() *ff.Command {
	fs := a.subFlags("settings")
	notifications := fs.StringLong("notifications", "", "Turn notifications 'on' or 'off'")
	language := fs.StringLong("language", "", "Display language (BCP 47 tag, e.g. en, de, ja)")

	return &ff.Command{
		Name:      "settings",
		Usage:     "expense-tracker settings [--notifications on|off] [--language TAG]",
		ShortHelp: "show or change local preferences",
		Flags:     fs,
		Exec: func(ctx context.Context, args []string) error {
			if err := a.openStore(); err != nil {
				return err
			}
			s, err := settings.Load(a.kv)
			if err != nil {
				return err
			}
			switch strings.ToLower(*notifications) {
			case "":
			case "on", "true", "yes":
				if s, err = settings.SetNotificationsEnabled(a.kv, true); err != nil {
					return err
				}
			case "off", "false", "no":
				if s, err = settings.SetNotificationsEnabled(a.kv, false); err != nil {
					return err
				}
			default:
				return fmt.Errorf("invalid --notifications value %q: use on or off", *notifications)
			}
			if *language != "" {
				if s, err = settings.SetLanguage(a.kv, *language); err != nil {
					return err
				}
			}

			state := "on"
			if !s.NotificationsEnabled {
				state = "off"
			}
			a.printf("Notifications: %s\nLanguage: %s\n", state, s.Language)
			if format.IsRTL(s.Language) {
				a.printf("Layout: right-to-left\n")
			}
			return nil
		},
	}
}

func (a *app) notificationsCommand() *ff.Command {
	fs := a.subFlags("notifications")
	watch := fs.BoolLong("watch", "Keep polling and print new notifications as they arrive")
	interval := fs.DurationLong("interval", 30*time.Second, "Polling interval for --watch")

	return &ff.Command{
		Name:      "notifications",
		Usage:     "expense-tracker notifications [--watch] [--interval DURATION]",
		ShortHelp: "list notifications, newest first",
		Flags:     fs,
		Exec: func(ctx context.Context, args []string) error {
			if err := a.open(); err != nil {
				return err
			}
			prefs, err := settings.Load(a.kv)
			if err != nil {
				return err
			}
			if *watch && !prefs.NotificationsEnabled {
				return errors.New("notifications are turned off; run 'expense-tracker settings --notifications on'")
			}

			if !*watch {
				if err := a.feed.Refresh(ctx); err != nil {
					return err
				}
				for _, n := range a.feed.Notifications() {
					a.printNotification(n, prefs.Language)
				}
				a.printf("%d unread\n", a.feed.UnreadCount())
				return nil
			}

			// Poll fetches straight away, so the first tick prints everything
			seen := make(map[string]bool)
			return a.feed.Poll(ctx, *interval, func(unread int) {
				list := a.feed.Notifications()
				// newest first, so print the unseen ones oldest first
				for i := len(list) - 1; i >= 0; i-- {
					if seen[list[i].ID] {
						continue
					}
					seen[list[i].ID] = true
					a.printNotification(list[i], prefs.Language)
				}
				a.printf("%d unread\n", unread)
			})
		},
	}
}

func (a *app) printNotification(n notification.Notification, lang string) {
	marker := " "
	if !n.Read {
		marker = "*"
	}
	when := ""
	if !n.CreatedAt.IsZero() {
		when = format.FormatDate(n.CreatedAt.Local(), lang) + " "
	}
	text := n.Message
	if n.Title != "" {
		text = n.Title + ": " + n.Message
	}
	a.printf("%s %s %s%s\n", marker, n.ID, when, text)
}

func (a *app) readCommand() *ff.Command {
	return &ff.Command{
		Name:      "read",
		Usage:     "expense-tracker read ID [ID...]",
		ShortHelp: "mark notifications as read",
		Flags:     a.subFlags("read"),
		Exec: func(ctx context.Context, args []string) error {
			if len(args) == 0 {
				return errors.New("at least one notification id is required")
			}
			if err := a.open(); err != nil {
				return err
			}
			failed := 0
			for _, id := range args {
				if err := a.feed.MarkAsRead(ctx, id); err != nil {
					failed++
					a.printf("%s: failed: %v\n", id, err)
					continue
				}
				a.printf("%s: read\n", id)
			}
			return batchError(failed, len(args))
		},
	}
}

// batchError summarises a batch so that the process exits non-zero when any
// item failed
func batchError(failed, total int) error {
	if failed == 0 {
		return nil
	}
	return fmt.Errorf("%d of %d failed", failed, total)
}
