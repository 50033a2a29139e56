package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/4xmen/peyk/pkg/config"
)

type appStatus struct {
	GeneratedAt time.Time
	Environment string
	ServerURL   string
	SessionPath string

	SessionPresent bool
	SessionUser    string
	SessionUpdated string
	TokenExpiresAt string

	DBSize    int64
	DBWALSize int64
	DBSHMSize int64

	Groups        int
	UnreadTotal   int
	BlockedUsers  int
	ServerReady   bool
	ServerWarning string

	SessionWarning  string
	StorageWarnings []string
}

type statusOptions struct {
	JSON bool
}

func parseStatusArgs(args []string) (statusOptions, error) {
	opts := statusOptions{}
	for _, arg := range args {
		switch arg {
		case "--json", "-j":
			opts.JSON = true
		default:
			return opts, fmt.Errorf("unknown status flag: %s", arg)
		}
	}
	return opts, nil
}

func runStatus(cfg *config.Config, out io.Writer, args []string) error {
	opts, err := parseStatusArgs(args)
	if err != nil {
		return err
	}

	status := collectStatus(cfg)
	if opts.JSON {
		return printStatusJSON(out, status)
	}
	printStatus(out, status)
	return nil
}

func collectStatus(cfg *config.Config) appStatus {
	status := appStatus{
		GeneratedAt: time.Now(),
		Environment: cfg.Environment,
		ServerURL:   cfg.ServerURL,
		SessionPath: cfg.SessionPath,
	}

	if size, err := fileSize(cfg.SessionPath); err == nil {
		status.DBSize = size
	} else {
		status.StorageWarnings = append(status.StorageWarnings, fmt.Sprintf("session file: %v", err))
	}
	if size, err := fileSize(cfg.SessionPath + "-wal"); err == nil {
		status.DBWALSize = size
	}
	if size, err := fileSize(cfg.SessionPath + "-shm"); err == nil {
		status.DBSHMSize = size
	}

	collectSessionRow(cfg, &status)
	if status.SessionPresent {
		collectServerStats(cfg, &status)
	}
	return status
}

// collectSessionRow reads the persisted session straight from sqlite so
// status works even when the server is unreachable.
func collectSessionRow(cfg *config.Config, status *appStatus) {
	if _, err := os.Stat(cfg.SessionPath); err != nil {
		status.SessionWarning = fmt.Sprintf("session unavailable: %v", err)
		return
	}

	dbConn, err := sql.Open("sqlite3", cfg.SessionPath)
	if err != nil {
		status.SessionWarning = fmt.Sprintf("session unavailable: %v", err)
		return
	}
	defer dbConn.Close()

	var accessToken, userJSON, updatedAt string
	row := dbConn.QueryRow("SELECT access_token, user_json, updated_at FROM session WHERE name = 'auth-storage'")
	if err := row.Scan(&accessToken, &userJSON, &updatedAt); err != nil {
		if err != sql.ErrNoRows {
			status.SessionWarning = fmt.Sprintf("could not read session: %v", err)
		}
		return
	}
	if accessToken == "" {
		return
	}

	status.SessionPresent = true
	status.SessionUpdated = updatedAt

	var user struct {
		Username string `json:"username"`
	}
	if err := json.Unmarshal([]byte(userJSON), &user); err == nil {
		status.SessionUser = user.Username
	}
}

func collectServerStats(cfg *config.Config, status *appStatus) {
	env, err := newAppEnv(cfg)
	if err != nil {
		status.ServerWarning = fmt.Sprintf("server unavailable: %v", err)
		return
	}
	defer env.close()

	if _, expiresAt, err := env.session.TokenClaims(); err == nil && !expiresAt.IsZero() {
		status.TokenExpiresAt = expiresAt.Format(time.RFC3339)
	}

	ctx, cancel := commandContext(cfg)
	defer cancel()

	groups, err := env.api.Groups(ctx)
	if err != nil {
		status.ServerWarning = fmt.Sprintf("server unavailable: %v", err)
		return
	}
	status.Groups = len(groups)
	for _, group := range groups {
		status.UnreadTotal += group.UnreadCount
	}

	if blocked, err := env.api.BlockedUsers(ctx); err == nil {
		status.BlockedUsers = len(blocked)
	}

	status.ServerReady = true
}

func fileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	if info.IsDir() {
		return 0, fmt.Errorf("%s is a directory", path)
	}
	return info.Size(), nil
}

func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

func formatValue(value string) string {
	if value == "" {
		return "n/a"
	}
	return value
}

func printStatus(out io.Writer, status appStatus) {
	totalDB := status.DBSize + status.DBWALSize + status.DBSHMSize

	fmt.Fprintln(out, "Peyk Status")
	fmt.Fprintf(out, "Generated at: %s\n", status.GeneratedAt.Format(time.RFC3339))
	fmt.Fprintf(out, "Environment : %s\n", status.Environment)
	fmt.Fprintf(out, "Server      : %s\n", status.ServerURL)
	fmt.Fprintf(out, "Session db  : %s\n", status.SessionPath)
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Session")
	if status.SessionPresent {
		fmt.Fprintf(out, "  Logged in as    : %s\n", formatValue(status.SessionUser))
		fmt.Fprintf(out, "  Last updated    : %s\n", formatValue(status.SessionUpdated))
		fmt.Fprintf(out, "  Token expires   : %s\n", formatValue(status.TokenExpiresAt))
	} else {
		fmt.Fprintln(out, "  Not logged in")
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Server")
	if status.ServerReady {
		fmt.Fprintf(out, "  Conversations   : %d\n", status.Groups)
		fmt.Fprintf(out, "  Unread messages : %d\n", status.UnreadTotal)
		fmt.Fprintf(out, "  Blocked users   : %d\n", status.BlockedUsers)
	} else {
		fmt.Fprintln(out, "  Server metrics  : n/a")
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Storage")
	fmt.Fprintf(out, "  DB file       : %s\n", formatBytes(status.DBSize))
	fmt.Fprintf(out, "  DB WAL file   : %s\n", formatBytes(status.DBWALSize))
	fmt.Fprintf(out, "  DB SHM file   : %s\n", formatBytes(status.DBSHMSize))
	fmt.Fprintf(out, "  DB footprint  : %s\n", formatBytes(totalDB))

	if status.SessionWarning != "" {
		fmt.Fprintln(out)
		fmt.Fprintf(out, "Warning: %s\n", status.SessionWarning)
	}
	if status.ServerWarning != "" {
		fmt.Fprintln(out)
		fmt.Fprintf(out, "Warning: %s\n", status.ServerWarning)
	}
	for _, warning := range status.StorageWarnings {
		fmt.Fprintf(out, "Warning: %s\n", warning)
	}
}

func printStatusJSON(out io.Writer, status appStatus) error {
	payload := map[string]any{
		"generated_at": status.GeneratedAt.Format(time.RFC3339),
		"environment":  status.Environment,
		"server_url":   status.ServerURL,
		"session_path": status.SessionPath,
		"session": map[string]any{
			"present":          status.SessionPresent,
			"username":         status.SessionUser,
			"last_updated":     status.SessionUpdated,
			"token_expires_at": status.TokenExpiresAt,
		},
		"server": map[string]any{
			"ready":           status.ServerReady,
			"conversations":   status.Groups,
			"unread_messages": status.UnreadTotal,
			"blocked_users":   status.BlockedUsers,
		},
		"storage": map[string]any{
			"db_file_bytes":      status.DBSize,
			"db_wal_bytes":       status.DBWALSize,
			"db_shm_bytes":       status.DBSHMSize,
			"db_footprint_bytes": status.DBSize + status.DBWALSize + status.DBSHMSize,
			"db_file_hum":        formatBytes(status.DBSize),
			"db_footprint_hum":   formatBytes(status.DBSize + status.DBWALSize + status.DBSHMSize),
		},
		"warnings": map[string]any{
			"session": status.SessionWarning,
			"server":  status.ServerWarning,
			"storage": status.StorageWarnings,
		},
	}

	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(payload)
}
