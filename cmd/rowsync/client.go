package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"rowsync/internal/cache"
	"rowsync/internal/conn"
	"rowsync/internal/logging"
	"rowsync/internal/mirror"
	"rowsync/internal/schema"
	"rowsync/internal/session"
)

var clientCmd = &cobra.Command{
	Use:   "client",
	Short: "Connect an interactive sync client to a relay",
	Long: `Connect a sync session to a relay and drive it interactively.

The client keeps a local mirror of the relay's entity table: your adds,
edits and deletes apply immediately and reconcile against the broadcast
stream, and every change you make is also written to the offline cache.
Intents issued while disconnected are queued and replayed on reconnect.

Example usage:
  rowsync client                       # connect to the configured relay
  rowsync client --url ws://host:8787
  rowsync client --once                # print a snapshot and exit`,
	Run: func(cmd *cobra.Command, args []string) {
		once, _ := cmd.Flags().GetBool("once")
		verbose, _ := cmd.Flags().GetBool("verbose")

		settings, err := resolveSettings()
		if err != nil {
			fatal(err)
		}
		if !once && !term.IsTerminal(int(os.Stdin.Fd())) {
			fatal(fmt.Errorf("interactive mode needs a terminal; use --once for a snapshot"))
		}

		app, err := newClientApp(settings.URL, settings.CacheDir, settings.CachePrefix, verbose)
		if err != nil {
			fatal(err)
		}
		defer app.close()

		if once {
			app.waitSettled(2 * time.Second)
			fmt.Print(app.renderTable())
			return
		}
		app.runInteractive()
	},
}

func init() {
	clientCmd.Flags().Bool("once", false, "print a snapshot of the table and exit")
	clientCmd.Flags().Bool("verbose", false, "log connection events to stderr")
	rootCmd.AddCommand(clientCmd)
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	headerStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	badStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	dimStyle    = lipgloss.NewStyle().Faint(true)
)

// clientApp wires one session's manager, reconciler and offline cache
// behind the interactive loop.
type clientApp struct {
	sess    *session.Session
	manager *conn.Manager
	rec     *mirror.Reconciler
	store   *cache.Cache
	url     string
	applied chan struct{}
}

func newClientApp(url, cacheDir, cachePrefix string, verbose bool) (*clientApp, error) {
	logWriter := io.Discard
	if verbose {
		logWriter = os.Stderr
	}

	store, err := cache.Open(cacheDir, cachePrefix)
	if err != nil {
		return nil, err
	}

	app := &clientApp{
		sess:    session.New(),
		store:   store,
		url:     url,
		applied: make(chan struct{}, 64),
	}

	manager, err := conn.New(conn.Config{
		URL:     url,
		Session: app.sess,
		Logger:  logging.NewWithWriter("conn", logWriter),
		OnStateChange: func(s conn.State) {
			if s == conn.StateConnected && app.rec != nil {
				// Replay intents queued while disconnected.
				go app.rec.Flush()
			}
		},
	})
	if err != nil {
		store.Close()
		return nil, err
	}
	app.manager = manager

	rec, err := mirror.New(mirror.Config{
		Sender:             manager,
		QueueOnSendFailure: true,
		Logger:             logging.NewWithWriter("mirror", logWriter),
		OnApply: func(*schema.Mutation) {
			select {
			case app.applied <- struct{}{}:
			default:
			}
		},
	})
	if err != nil {
		store.Close()
		return nil, err
	}
	app.rec = rec

	if err := app.bootstrap(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not fetch initial table: %v\n", err)
	}

	if err := manager.Connect(rec.HandleRemote); err != nil {
		store.Close()
		return nil, err
	}
	return app, nil
}

// bootstrap fetches the relay's current table over HTTP and replays it
// into the reconciler as adds, so a fresh session starts from the
// authoritative state instead of an empty mapping.
func (a *clientApp) bootstrap() error {
	httpURL := strings.Replace(a.url, "ws", "http", 1) + "/db"
	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Get(httpURL)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET /db returned %s", resp.Status)
	}

	var table map[string]schema.Entity
	if err := json.NewDecoder(resp.Body).Decode(&table); err != nil {
		return fmt.Errorf("failed to decode table: %w", err)
	}
	for _, e := range table {
		a.rec.HandleRemote(schema.NewAdd(e))
	}
	return nil
}

func (a *clientApp) close() {
	a.manager.Disconnect()
	if err := a.store.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}
}

// waitSettled waits for inbound traffic to go quiet, so --once snapshots
// after the connection had a chance to deliver.
func (a *clientApp) waitSettled(max time.Duration) {
	deadline := time.After(max)
	for {
		select {
		case <-a.applied:
		case <-time.After(300 * time.Millisecond):
			return
		case <-deadline:
			return
		}
	}
}

func (a *clientApp) renderStatus() string {
	state := a.manager.State()
	var line string
	switch state {
	case conn.StateConnected:
		line = okStyle.Render("● connected")
	case conn.StateTerminated:
		line = badStyle.Render("● sync degraded (terminated)")
	default:
		line = warnStyle.Render("● " + state.String())
	}
	if pending := a.rec.Pending(); pending > 0 {
		line += dimStyle.Render(fmt.Sprintf("  %d intents queued", pending))
	}
	return line
}

func (a *clientApp) renderTable() string {
	active := a.rec.Active()
	keys := make([]string, 0, len(active))
	for key := range active {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString(titleStyle.Render("rowsync") + "  " + a.renderStatus() + "\n\n")
	sb.WriteString(headerStyle.Render(fmt.Sprintf("%-20s %5s  %-30s", "NAME", "AGE", "EMAIL")) + "\n")
	if len(keys) == 0 {
		sb.WriteString(dimStyle.Render("(no entities)") + "\n")
	}
	for _, key := range keys {
		e := active[key]
		sb.WriteString(fmt.Sprintf("%-20s %5d  %-30s\n", e.Name, e.Age, e.Email))
	}
	return sb.String()
}

// mirrorToCache writes the reconciler's current view of key into the
// offline cache, or removes it when the key left the active view.
func (a *clientApp) mirrorToCache(key string) {
	e, ok := a.rec.Get(key)
	if !ok {
		if err := a.store.Remove(key); err != nil {
			fmt.Fprintf(os.Stderr, "warning: cache remove %s: %v\n", key, err)
		}
		return
	}
	data, err := json.Marshal(e)
	if err != nil {
		return
	}
	if err := a.store.Set(key, data); err != nil {
		fmt.Fprintf(os.Stderr, "warning: cache set %s: %v\n", key, err)
	}
}

func (a *clientApp) runInteractive() {
	for {
		fmt.Print("\n" + a.renderTable() + "\n")

		var action string
		form := huh.NewForm(huh.NewGroup(
			huh.NewSelect[string]().
				Title("Action").
				Options(
					huh.NewOption("Add entity", "add"),
					huh.NewOption("Edit entity", "edit"),
					huh.NewOption("Delete entity", "delete"),
					huh.NewOption("Refresh", "refresh"),
					huh.NewOption("Quit", "quit"),
				).
				Value(&action),
		))
		if err := form.Run(); err != nil {
			return
		}

		var err error
		switch action {
		case "add":
			err = a.promptAdd()
		case "edit":
			err = a.promptEdit()
		case "delete":
			err = a.promptDelete()
		case "refresh":
			continue
		case "quit":
			return
		}
		if err != nil {
			fmt.Println(badStyle.Render("error: " + err.Error()))
		}
	}
}

func (a *clientApp) promptAdd() error {
	var name, ageStr, email string
	form := huh.NewForm(huh.NewGroup(
		huh.NewInput().Title("Name").Validate(func(s string) error {
			if strings.TrimSpace(s) == "" {
				return fmt.Errorf("name is required")
			}
			return nil
		}).Value(&name),
		huh.NewInput().Title("Age").Validate(validateAge).Value(&ageStr),
		huh.NewInput().Title("Email").Value(&email),
	))
	if err := form.Run(); err != nil {
		return err
	}

	age, _ := strconv.Atoi(strings.TrimSpace(ageStr))
	if err := a.rec.AddEntity(strings.TrimSpace(name), age, strings.TrimSpace(email)); err != nil {
		return err
	}
	a.mirrorToCache(strings.TrimSpace(name))
	return nil
}

func (a *clientApp) promptEdit() error {
	key, err := a.promptKey("Edit which entity?")
	if err != nil || key == "" {
		return err
	}

	var field, valueStr string
	form := huh.NewForm(huh.NewGroup(
		huh.NewSelect[string]().
			Title("Field").
			Options(
				huh.NewOption("age", schema.FieldAge),
				huh.NewOption("email", schema.FieldEmail),
			).
			Value(&field),
		huh.NewInput().Title("New value").Value(&valueStr),
	))
	if err := form.Run(); err != nil {
		return err
	}

	var value any = strings.TrimSpace(valueStr)
	if field == schema.FieldAge {
		age, err := strconv.Atoi(strings.TrimSpace(valueStr))
		if err != nil {
			return fmt.Errorf("age must be an integer")
		}
		value = age
	}

	if err := a.rec.EditEntity(key, field, value); err != nil {
		return err
	}
	a.mirrorToCache(key)
	return nil
}

func (a *clientApp) promptDelete() error {
	key, err := a.promptKey("Delete which entity?")
	if err != nil || key == "" {
		return err
	}
	if err := a.rec.DeleteEntity(key); err != nil {
		return err
	}
	a.mirrorToCache(key)
	return nil
}

// promptKey selects one key from the active view. Returns "" when there
// is nothing to pick.
func (a *clientApp) promptKey(title string) (string, error) {
	active := a.rec.Active()
	if len(active) == 0 {
		fmt.Println(dimStyle.Render("(no entities)"))
		return "", nil
	}
	keys := make([]string, 0, len(active))
	for key := range active {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	options := make([]huh.Option[string], len(keys))
	for i, key := range keys {
		options[i] = huh.NewOption(key, key)
	}

	var key string
	form := huh.NewForm(huh.NewGroup(
		huh.NewSelect[string]().Title(title).Options(options...).Value(&key),
	))
	if err := form.Run(); err != nil {
		return "", err
	}
	return key, nil
}

func validateAge(s string) error {
	age, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("age must be an integer")
	}
	if age < 0 {
		return fmt.Errorf("age must be non-negative")
	}
	return nil
}
