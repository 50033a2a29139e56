package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/4xmen/peyk/internal/chat"
	"github.com/4xmen/peyk/internal/models"
	"github.com/4xmen/peyk/internal/notify"
	"github.com/4xmen/peyk/internal/realtime"
	"github.com/4xmen/peyk/internal/rest"
	"github.com/4xmen/peyk/internal/session"
	"github.com/4xmen/peyk/pkg/config"
	"github.com/4xmen/peyk/pkg/i18n"
)

var __ = i18n.Translate

func main() {
	cfg := config.Load()

	args := os.Args[1:]
	if len(args) == 0 {
		printUsage(os.Stdout)
		return
	}

	if err := runCommand(cfg, args); err != nil {
		log.Fatalf("%v", err)
	}
}

func runCommand(cfg *config.Config, args []string) error {
	command := args[0]

	switch command {
	case "login":
		return runLogin(cfg, args[1:])
	case "logout":
		return runLogout(cfg)
	case "register":
		return runRegister(cfg, args[1:])
	case "whoami":
		return runWhoami(cfg)
	case "profile":
		return runProfile(cfg, args[1:])
	case "groups":
		return runGroups(cfg)
	case "send":
		return runSend(cfg, args[1:])
	case "watch":
		return runWatch(cfg, args[1:])
	case "ai":
		return runAI(cfg, args[1:])
	case "status":
		return runStatus(cfg, os.Stdout, args[1:])
	case "-h", "--help", "help":
		printUsage(os.Stdout)
		return nil
	default:
		printUsage(os.Stderr)
		return fmt.Errorf("unknown command: %s", command)
	}
}

func printUsage(out *os.File) {
	fmt.Fprintln(out, "Usage:")
	fmt.Fprintln(out, "  peyk login <username>            Log in (password is prompted)")
	fmt.Fprintln(out, "  peyk logout                      Log out and clear the stored session")
	fmt.Fprintln(out, "  peyk register <name> <username> <email>")
	fmt.Fprintln(out, "  peyk whoami                      Show the logged-in user")
	fmt.Fprintln(out, "  peyk profile set key=value...    Update name/email")
	fmt.Fprintln(out, "  peyk profile picture <file>      Upload a profile picture")
	fmt.Fprintln(out, "  peyk groups                      List conversations")
	fmt.Fprintln(out, "  peyk send <group-id> <text>      Send a message")
	fmt.Fprintln(out, "  peyk watch <group-id>            Follow a conversation live")
	fmt.Fprintln(out, "  peyk ai get|set key=value...|test [message]")
	fmt.Fprintln(out, "  peyk status [--json]             Show session and server statistics")
}

// appEnv wires the client stack the way every command needs it: REST
// client, persisted session and the chat state container.
type appEnv struct {
	cfg     *config.Config
	api     *rest.Client
	session *session.Store
	store   *chat.Store
}

func newAppEnv(cfg *config.Config) (*appEnv, error) {
	api := rest.NewClient(cfg.APIBaseURL(), cfg.RequestTimeout)
	sess, err := session.New(api, cfg.SessionPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}
	return &appEnv{
		cfg:     cfg,
		api:     api,
		session: sess,
		store:   chat.NewStore(api),
	}, nil
}

func (env *appEnv) close() {
	env.session.Close()
}

func (env *appEnv) requireLogin() error {
	if !env.session.IsAuthenticated() {
		return fmt.Errorf("%s", __("not logged in"))
	}
	return nil
}

func commandContext(cfg *config.Config) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), cfg.RequestTimeout)
}

func runLogin(cfg *config.Config, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: peyk login <username>")
	}
	username := args[0]

	password, err := promptPassword("Password: ")
	if err != nil {
		return err
	}

	env, err := newAppEnv(cfg)
	if err != nil {
		return err
	}
	defer env.close()

	ctx, cancel := commandContext(cfg)
	defer cancel()

	if err := env.session.Login(ctx, username, password); err != nil {
		return fmt.Errorf("%s: %w", __("login failed"), err)
	}

	if user := env.session.User(); user != nil {
		fmt.Printf("Logged in as %s (%s)\n", user.Name, user.Username)
	} else {
		fmt.Println("Logged in")
	}
	return nil
}

func promptPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	if term.IsTerminal(int(syscall.Stdin)) {
		raw, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(raw), nil
	}

	// Piped stdin, e.g. in scripts.
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func runLogout(cfg *config.Config) error {
	env, err := newAppEnv(cfg)
	if err != nil {
		return err
	}
	defer env.close()

	ctx, cancel := commandContext(cfg)
	defer cancel()

	env.session.Logout(ctx)
	fmt.Println("Logged out")
	return nil
}

func runRegister(cfg *config.Config, args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("usage: peyk register <name> <username> <email>")
	}
	name, username, email := args[0], args[1], args[2]

	password, err := promptPassword("Password: ")
	if err != nil {
		return err
	}
	confirm, err := promptPassword("Confirm password: ")
	if err != nil {
		return err
	}
	if password != confirm {
		return fmt.Errorf("%s", __("passwords do not match"))
	}

	env, err := newAppEnv(cfg)
	if err != nil {
		return err
	}
	defer env.close()

	ctx, cancel := commandContext(cfg)
	defer cancel()

	user, err := env.session.Register(ctx, name, username, email, password)
	if err != nil {
		return fmt.Errorf("%s: %w", __("registration failed"), err)
	}

	fmt.Printf("Registered %s. Run 'peyk login %s' to sign in.\n", user.Username, user.Username)
	return nil
}

func runWhoami(cfg *config.Config) error {
	env, err := newAppEnv(cfg)
	if err != nil {
		return err
	}
	defer env.close()

	if err := env.requireLogin(); err != nil {
		return err
	}

	user := env.session.User()
	if user == nil {
		ctx, cancel := commandContext(cfg)
		defer cancel()
		if err := env.session.FetchUser(ctx); err != nil {
			return fmt.Errorf("failed to fetch profile: %w", err)
		}
		user = env.session.User()
	}

	fmt.Printf("ID       : %d\n", user.ID)
	fmt.Printf("Name     : %s\n", user.Name)
	fmt.Printf("Username : %s\n", user.Username)
	fmt.Printf("Email    : %s\n", user.Email)

	if _, expiresAt, err := env.session.TokenClaims(); err == nil && !expiresAt.IsZero() {
		fmt.Printf("Token expires at %s\n", expiresAt.Format(time.RFC3339))
	}
	return nil
}

func runProfile(cfg *config.Config, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: peyk profile set key=value...|picture <file>")
	}

	env, err := newAppEnv(cfg)
	if err != nil {
		return err
	}
	defer env.close()

	if err := env.requireLogin(); err != nil {
		return err
	}

	ctx, cancel := commandContext(cfg)
	defer cancel()

	switch args[0] {
	case "set":
		if len(args) < 2 {
			return fmt.Errorf("usage: peyk profile set key=value...")
		}
		fields, err := parseProfileFields(args[1:])
		if err != nil {
			return err
		}
		user, err := env.api.UpdateProfile(ctx, fields)
		if err != nil {
			return fmt.Errorf("%s: %w", __("failed to update profile"), err)
		}
		env.session.UpdateUser(user)
		fmt.Printf("Profile updated: %s <%s>\n", user.Name, user.Email)
		return nil

	case "picture":
		if len(args) != 2 {
			return fmt.Errorf("usage: peyk profile picture <file>")
		}
		file, err := os.Open(args[1])
		if err != nil {
			return fmt.Errorf("failed to open picture: %w", err)
		}
		defer file.Close()

		user, err := env.api.UpdateProfilePicture(ctx, filepath.Base(args[1]), file)
		if err != nil {
			return fmt.Errorf("%s: %w", __("failed to update profile"), err)
		}
		env.session.UpdateUser(user)
		if user.ProfilePicture != nil {
			fmt.Printf("Profile picture set: %s\n", *user.ProfilePicture)
		} else {
			fmt.Println("Profile picture set")
		}
		return nil

	default:
		return fmt.Errorf("unknown profile subcommand: %s", args[0])
	}
}

// parseProfileFields accepts only the fields the profile endpoint edits.
func parseProfileFields(pairs []string) (map[string]interface{}, error) {
	fields := make(map[string]interface{}, len(pairs))
	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("expected key=value, got %q", pair)
		}
		switch key {
		case "name", "email":
			fields[key] = value
		default:
			return nil, fmt.Errorf("unknown profile field: %s", key)
		}
	}
	return fields, nil
}

func runGroups(cfg *config.Config) error {
	env, err := newAppEnv(cfg)
	if err != nil {
		return err
	}
	defer env.close()

	if err := env.requireLogin(); err != nil {
		return err
	}

	ctx, cancel := commandContext(cfg)
	defer cancel()

	if err := env.store.FetchGroups(ctx); err != nil {
		return fmt.Errorf("failed to fetch conversations: %w", err)
	}

	groups := env.store.Groups()
	if len(groups) == 0 {
		fmt.Println("No conversations yet")
		return nil
	}

	currentUserID := env.session.UserID()
	for _, group := range groups {
		unread := ""
		if group.UnreadCount > 0 {
			unread = fmt.Sprintf("  [%d unread]", group.UnreadCount)
		}
		fmt.Printf("%6d  %-10s %s%s\n", group.ID, group.GroupType, group.DisplayName(currentUserID), unread)
	}
	return nil
}

func findGroup(groups []models.Group, id int) (models.Group, bool) {
	for _, group := range groups {
		if group.ID == id {
			return group, true
		}
	}
	return models.Group{}, false
}

func runSend(cfg *config.Config, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: peyk send <group-id> <text>")
	}
	groupID, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid group id: %s", args[0])
	}
	content := strings.Join(args[1:], " ")

	env, err := newAppEnv(cfg)
	if err != nil {
		return err
	}
	defer env.close()

	if err := env.requireLogin(); err != nil {
		return err
	}

	ctx, cancel := commandContext(cfg)
	defer cancel()

	if err := env.store.FetchGroups(ctx); err != nil {
		return fmt.Errorf("failed to fetch conversations: %w", err)
	}
	group, ok := findGroup(env.store.Groups(), groupID)
	if !ok {
		return fmt.Errorf("%s: %d", __("group not found"), groupID)
	}
	if err := env.store.SelectGroup(ctx, group); err != nil {
		return fmt.Errorf("failed to open conversation: %w", err)
	}

	message, err := env.store.SendMessage(ctx, content)
	if err != nil {
		return fmt.Errorf("%s: %w", __("failed to send message"), err)
	}

	fmt.Printf("Sent message %d\n", message.ID)
	return nil
}

func runWatch(cfg *config.Config, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: peyk watch <group-id>")
	}
	groupID, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid group id: %s", args[0])
	}

	env, err := newAppEnv(cfg)
	if err != nil {
		return err
	}
	defer env.close()

	if err := env.requireLogin(); err != nil {
		return err
	}

	ctx, cancel := commandContext(cfg)
	defer cancel()

	if err := env.store.FetchGroups(ctx); err != nil {
		return fmt.Errorf("failed to fetch conversations: %w", err)
	}
	group, ok := findGroup(env.store.Groups(), groupID)
	if !ok {
		return fmt.Errorf("%s: %d", __("group not found"), groupID)
	}

	notifier := &notify.LogNotifier{Muted: !cfg.Notifications}
	manager := realtime.NewManager(cfg.WSBaseURL(), cfg.ReconnectDelay, cfg.TypingIdleTimeout, env.session, env.store, notifier)
	manager.Start()
	defer manager.Stop()

	if err := env.store.SelectGroup(ctx, group); err != nil {
		return fmt.Errorf("failed to open conversation: %w", err)
	}

	currentUserID := env.session.UserID()
	fmt.Printf("Watching %s (Ctrl-C to stop)\n", group.DisplayName(currentUserID))

	lastSeen := 0
	for _, message := range env.store.Messages() {
		printMessage(message)
		if message.ID > lastSeen {
			lastSeen = message.ID
		}
	}

	sigint := make(chan os.Signal, 1)
	signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	typingShown := ""
	for {
		select {
		case <-sigint:
			fmt.Println()
			return nil
		case <-ticker.C:
			for _, message := range env.store.Messages() {
				if message.ID > lastSeen {
					printMessage(message)
					lastSeen = message.ID
				}
			}
			if names := strings.Join(env.store.TypingNames(), ", "); names != typingShown {
				typingShown = names
				if names != "" {
					fmt.Printf("... %s typing\n", names)
				}
			}
		}
	}
}

func printMessage(message models.Message) {
	stamp := message.CreatedAt.Local().Format("15:04:05")
	sender := fmt.Sprintf("user %d", message.Sender)
	if message.SenderInfo != nil && message.SenderInfo.Name != "" {
		sender = message.SenderInfo.Name
	}
	fmt.Printf("[%s] %s: %s\n", stamp, sender, message.Content)
}

func runAI(cfg *config.Config, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: peyk ai get|set key=value...|test [message]")
	}

	env, err := newAppEnv(cfg)
	if err != nil {
		return err
	}
	defer env.close()

	if err := env.requireLogin(); err != nil {
		return err
	}

	ctx, cancel := commandContext(cfg)
	defer cancel()

	switch args[0] {
	case "get":
		settings, err := env.api.AIConfig(ctx)
		if err != nil {
			return fmt.Errorf("failed to fetch assistant settings: %w", err)
		}
		printAISettings(settings)
		return nil

	case "set":
		if len(args) < 2 {
			return fmt.Errorf("usage: peyk ai set key=value...")
		}
		fields, err := parseAIFields(args[1:])
		if err != nil {
			return err
		}
		settings, err := env.api.UpdateAIConfig(ctx, fields)
		if err != nil {
			return fmt.Errorf("failed to update assistant settings: %w", err)
		}
		printAISettings(settings)
		return nil

	case "test":
		message := strings.Join(args[1:], " ")
		result, err := env.api.TestAIConfig(ctx, message)
		if err != nil {
			return fmt.Errorf("assistant test failed: %w", err)
		}
		fmt.Printf("Status  : %s\n", result.Status)
		fmt.Printf("Sent    : %s\n", result.TestMessage)
		fmt.Printf("Reply   : %s\n", result.Response)
		fmt.Printf("Model   : %s\n", result.Config.ModelName)
		return nil

	default:
		return fmt.Errorf("unknown ai subcommand: %s", args[0])
	}
}

func parseAIFields(pairs []string) (map[string]interface{}, error) {
	fields := make(map[string]interface{}, len(pairs))
	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("expected key=value, got %q", pair)
		}
		switch {
		case value == "true" || value == "false":
			fields[key] = value == "true"
		default:
			if n, err := strconv.ParseFloat(value, 64); err == nil {
				fields[key] = n
			} else {
				fields[key] = value
			}
		}
	}
	return fields, nil
}

func printAISettings(settings rest.AISettings) {
	fmt.Printf("Offline mode : %t\n", settings.OfflineModeEnabled)
	fmt.Printf("Offline reply: %s\n", settings.OfflineAIMessage)
	fmt.Printf("Model        : %s\n", settings.ModelName)
	fmt.Printf("Temperature  : %.2f\n", settings.Temperature)
	fmt.Printf("Max tokens   : %d\n", settings.MaxTokens)
	fmt.Printf("Active       : %t\n", settings.IsActive)
}
