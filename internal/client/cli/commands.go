package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dmitrijs2005/chatwithyou/internal/client/models"
)

var errCancelled = errors.New("cancelled")

func (a *App) commandTable() map[string]*command {
	list := []*command{
		{name: "help", usage: "show available commands", run: (*App).help},
		{name: "login", usage: "log in with email and password", route: "/login", authFlow: true, run: (*App).login},
		{name: "register", usage: "create an account", route: "/register", authFlow: true, run: (*App).register},
		{name: "social", usage: "log in with google, facebook or apple", authFlow: true, run: (*App).social},
		{name: "callback", usage: "finish a social login from the address you were sent back to", route: "/auth/callback", authFlow: true, run: (*App).callback},
		{name: "reset-password", usage: "email a password reset link", route: "/reset-password", run: (*App).resetPassword},
		{name: "chats", usage: "show the home screen", route: "/chat-list", run: (*App).chats},
		{name: "profile", usage: "show your profile", route: "/profile", run: (*App).profile},
		{name: "verify", usage: "check whether your email is confirmed", route: "/profile", run: (*App).verify},
		{name: "edit-profile", usage: "change name or avatar_url (name=value ...)", route: "/edit-profile", run: (*App).editProfile},
		{name: "avatar", usage: "upload a new avatar image: avatar <file>", route: "/edit-profile", run: (*App).avatar},
		{name: "credits", usage: "show balance and history", route: "/credits", run: (*App).showCredits},
		{name: "buy", usage: "buy a credit package: buy [package]", route: "/buy-credits", run: (*App).buy},
		{name: "spend", usage: "spend credits: spend <amount> [description]", route: "/chat", run: (*App).spend},
		{name: "change-password", usage: "change your password", route: "/change-password", run: (*App).changePassword},
		{name: "settings", usage: "list or change settings: settings [name=value | -name]", route: "/settings", run: (*App).settings},
		{name: "queue", usage: "keep a message for later: queue <conversation>", route: "/chat", run: (*App).queue},
		{name: "flush", usage: "hand over queued messages", route: "/offline-queue", run: (*App).flush},
		{name: "logout", usage: "log out", route: "/settings", noReturn: true, run: (*App).logout},
	}

	m := make(map[string]*command, len(list)+1)
	for _, c := range list {
		m[c.name] = c
	}
	m["?"] = m["help"]
	return m
}

func (a *App) home(ctx context.Context) {
	st := a.store.State()
	if st.User == nil {
		a.println("Not signed in. Use 'login', 'register' or 'social'.")
		return
	}
	u := st.User
	name := u.Name
	if name == "" {
		name = u.Email
	}
	a.printf("Hi %s! You have %d credits. Pending messages: %d.\n", name, u.Balance(), a.cache.PendingOfflineMessages(ctx))
}

func (a *App) chats(ctx context.Context, _ []string) error {
	a.home(ctx)
	return nil
}

func (a *App) argOrPrompt(args []string, i int, prompt string) (string, error) {
	if len(args) > i {
		return args[i], nil
	}
	v, err := GetSimpleText(a.reader, prompt, a.out)
	if err != nil {
		return "", err
	}
	if v == "" {
		return "", errCancelled
	}
	return v, nil
}

func (a *App) login(ctx context.Context, args []string) error {
	email, err := a.argOrPrompt(args, 0, "Enter email")
	if err != nil {
		return err
	}
	password, err := GetPassword(a.out, "Enter password")
	if err != nil {
		return err
	}
	if password == "" {
		return errCancelled
	}

	if err := a.auth.Login(ctx, email, password); err != nil {
		return err
	}
	a.println("Login successful.")
	return nil
}

func (a *App) register(ctx context.Context, args []string) error {
	name, err := a.argOrPrompt(nil, 0, "Enter your name")
	if err != nil {
		return err
	}
	email, err := a.argOrPrompt(args, 0, "Enter email")
	if err != nil {
		return err
	}
	password, err := a.newPassword()
	if err != nil {
		return err
	}

	p, err := a.auth.Register(ctx, name, email, password)
	if err != nil {
		return err
	}
	if p == nil {
		a.println("Account created. Check your email to confirm it, then log in.")
		return nil
	}
	a.printf("Welcome, %s! You start with %d credits.\n", p.Name, p.Balance())
	return nil
}

// newPassword asks for a password twice.
func (a *App) newPassword() (string, error) {
	pw, err := GetPassword(a.out, "Enter password")
	if err != nil {
		return "", err
	}
	if len(pw) < 6 {
		return "", errors.New("password must be at least 6 characters")
	}
	again, err := GetPassword(a.out, "Repeat password")
	if err != nil {
		return "", err
	}
	if pw != again {
		return "", errors.New("passwords do not match")
	}
	return pw, nil
}

func (a *App) social(ctx context.Context, args []string) error {
	if a.store.State().User != nil {
		a.println("You are already signed in.")
		return nil
	}
	provider, err := a.argOrPrompt(args, 0, "Provider (google, facebook, apple)")
	if err != nil {
		return err
	}

	link, err := a.auth.SocialLoginStart(ctx, provider)
	if err != nil {
		return err
	}
	a.println("Open this address in your browser to continue:")
	a.println(link)

	back, err := GetSimpleText(a.reader, "Paste the address you were sent back to (empty to finish later with 'callback')", a.out)
	if err != nil || back == "" {
		return nil
	}
	return a.completeSocial(ctx, back)
}

func (a *App) callback(ctx context.Context, args []string) error {
	raw, err := a.argOrPrompt(args, 0, "Paste the address you were sent back to")
	if err != nil {
		return err
	}
	return a.completeSocial(ctx, raw)
}

func (a *App) completeSocial(ctx context.Context, raw string) error {
	p, err := a.auth.SocialLoginComplete(ctx, CallbackParams(raw))
	if err != nil {
		return err
	}
	if p == nil {
		a.println("No sign-in is in progress.")
		return nil
	}
	a.printf("Signed in as %s.\n", p.Email)
	return nil
}

func (a *App) resetPassword(ctx context.Context, args []string) error {
	email, err := a.argOrPrompt(args, 0, "Enter the email of your account")
	if err != nil {
		return err
	}
	if err := a.auth.ResetPasswordRequest(ctx, email); err != nil {
		return err
	}
	a.println("If the account exists, a reset link is on its way.")
	return nil
}

func (a *App) logout(ctx context.Context, _ []string) error {
	err := a.auth.Logout(ctx)
	a.println("Logged out.")
	return err
}

func (a *App) profile(_ context.Context, _ []string) error {
	u := a.store.State().User
	if u == nil {
		return errors.New("not signed in")
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Name:\t%s\n", u.Name)
	fmt.Fprintf(tw, "Email:\t%s\n", u.Email)
	fmt.Fprintf(tw, "Account:\t%s\n", u.AccountType)
	fmt.Fprintf(tw, "Credits:\t%d\n", u.Balance())
	fmt.Fprintf(tw, "Verified:\t%t\n", u.IsVerified)
	fmt.Fprintf(tw, "Signed in with:\t%s\n", u.AuthProvider)
	if !u.RegistrationDate.IsZero() {
		fmt.Fprintf(tw, "Member since:\t%s\n", u.RegistrationDate.Format("2006-01-02"))
	}
	if u.LastLogin != nil {
		fmt.Fprintf(tw, "Last login:\t%s\n", u.LastLogin.Local().Format(time.DateTime))
	}
	if u.AvatarURL != nil && *u.AvatarURL != "" {
		fmt.Fprintf(tw, "Avatar:\t%s\n", *u.AvatarURL)
	}
	return tw.Flush()
}

func (a *App) verify(ctx context.Context, _ []string) error {
	ok, err := a.auth.VerifyEmail(ctx)
	if err != nil {
		return err
	}
	if ok {
		a.println("Your email is confirmed.")
	} else {
		a.println("Your email is not confirmed yet.")
	}
	return nil
}

func (a *App) editProfile(ctx context.Context, args []string) error {
	fields := ParseFields(args)
	if len(args) == 0 {
		var err error
		if fields, err = GetFields(a.reader, "Fields to change: name, avatar_url", a.out); err != nil {
			return err
		}
	}

	patch := models.PatchFromFields(fields)
	if patch.Empty() {
		a.println("Nothing to change.")
		return nil
	}
	if err := a.auth.UpdateProfile(ctx, patch); err != nil {
		return err
	}
	a.println("Profile updated.")
	return nil
}

func (a *App) avatar(ctx context.Context, args []string) error {
	path, err := a.argOrPrompt(args, 0, "Image file")
	if err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	link, err := a.auth.UploadAvatar(ctx, filepath.Base(path), f)
	if err != nil {
		return err
	}
	if err := a.auth.UpdateProfile(ctx, models.ProfilePatch{AvatarURL: &link}); err != nil {
		return err
	}
	a.println("Avatar updated:", link)
	return nil
}

func (a *App) showCredits(ctx context.Context, _ []string) error {
	balance, err := a.credits.Balance(ctx)
	if err != nil {
		return err
	}
	a.printf("Balance: %d credits\n", balance)

	entries, err := a.credits.History(ctx)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		a.println("No history yet.")
		return nil
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tCHANGE\tDESCRIPTION")
	for _, e := range entries {
		sign := "+"
		if e.ActionType == models.LedgerSpend {
			sign = "-"
		}
		fmt.Fprintf(tw, "%s\t%s%d\t%s\n", e.CreatedAt.Local().Format(time.DateTime), sign, e.Amount, e.Description)
	}
	return tw.Flush()
}

func (a *App) buy(ctx context.Context, args []string) error {
	if len(args) == 0 {
		tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "PACKAGE\tCREDITS\tPRICE\t")
		for _, p := range a.credits.Packages() {
			note := p.Discount
			if p.Popular {
				note = strings.TrimSpace(note + " popular")
			}
			fmt.Fprintf(tw, "%d\t%d\t%d\t%s\n", p.ID, p.Credits, p.Price, note)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	raw, err := a.argOrPrompt(args, 0, "Package number")
	if err != nil {
		return err
	}
	id, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("package must be a number: %q", raw)
	}

	p, err := a.credits.Purchase(ctx, id)
	if err != nil {
		return err
	}
	a.printf("Done. Balance: %d credits\n", p.Balance())
	return nil
}

func (a *App) spend(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: spend <amount> [description]")
	}
	n, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("amount must be a number: %q", args[0])
	}
	desc := strings.Join(args[1:], " ")
	if desc == "" {
		desc = "Chat usage"
	}

	p, err := a.credits.Spend(ctx, n, desc)
	if err != nil {
		return err
	}
	a.printf("Balance: %d credits\n", p.Balance())
	return nil
}

func (a *App) changePassword(ctx context.Context, _ []string) error {
	old, err := GetPassword(a.out, "Current password")
	if err != nil {
		return err
	}
	a.println("New password")
	pw, err := a.newPassword()
	if err != nil {
		return err
	}
	if err := a.auth.ChangePassword(ctx, old, pw); err != nil {
		return err
	}
	a.println("Password changed.")
	return nil
}

func (a *App) settings(ctx context.Context, args []string) error {
	for _, arg := range args {
		if name, ok := strings.CutPrefix(arg, "-"); ok {
			a.cache.RemoveSetting(ctx, name)
			continue
		}
		if k, v, ok := strings.Cut(arg, "="); ok {
			a.cache.WriteSetting(ctx, k, settingValue(v))
		}
	}

	all := a.cache.Settings(ctx)
	if len(all) == 0 {
		a.println("No settings.")
		return nil
	}
	keys := make([]string, 0, len(all))
	for k := range all {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		a.printf("%s = %s\n", k, all[k])
	}
	return nil
}

func (a *App) queue(ctx context.Context, args []string) error {
	conv, err := a.argOrPrompt(args, 0, "Conversation")
	if err != nil {
		return err
	}
	body, err := GetMultiline(a.reader, "Message", a.out)
	if err != nil {
		return err
	}
	if body == "" {
		return errCancelled
	}

	a.cache.EnqueueOfflineMessage(ctx, models.OfflineMessage{ConversationID: conv, Body: body})
	a.printf("Queued. %d message(s) waiting.\n", a.cache.PendingOfflineMessages(ctx))
	return nil
}

func (a *App) flush(ctx context.Context, _ []string) error {
	msgs := a.cache.DrainOfflineMessages(ctx)
	if len(msgs) == 0 {
		a.println("Nothing queued.")
		return nil
	}
	for _, m := range msgs {
		a.printf("[%s] %s: %s\n", m.CreatedAt.Local().Format(time.DateTime), m.ConversationID, m.Body)
	}
	a.printf("%d message(s) handed over.\n", len(msgs))
	return nil
}

// settingValue keeps numbers and booleans typed so they round-trip as JSON
// scalars rather than strings.
func settingValue(v string) any {
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		return n
	}
	return v
}
