package editor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/contentsync/internal/conflict"
	"git.home.luguber.info/inful/contentsync/internal/content"
	"git.home.luguber.info/inful/contentsync/internal/foundation/errors"
	"git.home.luguber.info/inful/contentsync/internal/history"
	"git.home.luguber.info/inful/contentsync/internal/syncstatus"
)

// Monitor is the sync monitor as seen by the shell.
type Monitor interface {
	Status() syncstatus.Status
	EditingDisabled() bool
	ForceOverrideActive() bool
	NotifyFocus(ctx context.Context)
}

// Resolver is the conflict resolver as seen by the shell.
type Resolver interface {
	Pending() (syncstatus.ConflictInfo, bool)
	CheckForConflicts(ctx context.Context) (syncstatus.ConflictInfo, error)
	SyncAndReload(ctx context.Context) (syncstatus.SyncResult, error)
	ForceOverride()
}

// ShellOptions configures a Shell.
type ShellOptions struct {
	Session  *Session
	Monitor  Monitor
	Resolver Resolver
	In       io.Reader
	Out      io.Writer
}

// Shell is a line-oriented editor over a Session.
type Shell struct {
	session  *Session
	monitor  Monitor
	resolver Resolver
	in       io.Reader
	out      io.Writer

	current content.PageKey
	hasPage bool
}

// commands allowed while a conflict is pending.
var conflictCommands = map[string]bool{
	"sync": true, "override": true, "conflicts": true, "help": true, "quit": true, "exit": true,
}

const shellHelp = `Commands:
  open <type/slug/locale>       load a page and make it current
  pages                         list open pages
  show                          print the current page
  edit on|off                   toggle edit mode
  set <index> <field> <value>   set a field (dot path, YAML value)
  add <section>                 append a section, e.g. add {type: hero, title: Hi}
  insert <index> <section>      insert a section
  remove <index>                remove a section
  move <from> <to>              move a section
  replace <sections>            replace all sections, e.g. replace [{type: hero}]
  save                          save pending changes
  discard                       drop pending changes
  undo | redo                   also ctrl+z / ctrl+shift+z
  history                       list undo and redo entries
  status                        poll and print sync status
  conflicts                     show commits missing from the working copy
  sync                          pull from the remote and reload
  override                      keep editing although the working copy is behind
  quit
`

// NewShell creates a shell.
func NewShell(opts ShellOptions) *Shell {
	return &Shell{
		session:  opts.Session,
		monitor:  opts.Monitor,
		resolver: opts.Resolver,
		in:       opts.In,
		out:      opts.Out,
	}
}

// Run reads commands until quit or end of input.
func (sh *Shell) Run(ctx context.Context) error {
	sc := bufio.NewScanner(sh.in)
	sc.Buffer(make([]byte, 0, 64*1024), 4<<20)
	sh.prompt()
	for sc.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		quit, err := sh.Execute(ctx, sc.Text())
		if err != nil {
			fmt.Fprintf(sh.out, "error: %s\n", errorText(err))
		}
		if quit {
			return nil
		}
		sh.prompt()
	}
	return sc.Err()
}

func (sh *Shell) prompt() {
	name := "-"
	if sh.hasPage {
		name = sh.current.String()
	}
	flags := ""
	if sh.session.EditMode() {
		flags += "*"
	}
	if sh.monitor != nil && sh.monitor.EditingDisabled() {
		flags += "!"
	}
	fmt.Fprintf(sh.out, "%s%s> ", name, flags)
}

func errorText(err error) string {
	if ce, ok := errors.AsClassified(err); ok {
		return ce.Message()
	}
	return err.Error()
}

// Execute runs one command line. Undo and redo chords are resolved before
// command dispatch.
func (sh *Shell) Execute(ctx context.Context, line string) (bool, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}
	if ev, ok := history.ParseChord(line); ok {
		dir, ok := history.ResolveShortcut(ev, history.Focus{})
		if !ok {
			return false, nil
		}
		line = string(dir)
	}

	cmd, rest, _ := strings.Cut(line, " ")
	cmd = strings.ToLower(cmd)
	rest = strings.TrimSpace(rest)

	if sh.resolver != nil {
		if _, pending := sh.resolver.Pending(); pending && !conflictCommands[cmd] {
			return false, errors.SyncError("the remote has new commits: run 'sync', 'override' or 'conflicts'").Build()
		}
	}

	switch cmd {
	case "help", "?":
		fmt.Fprint(sh.out, shellHelp)
	case "quit", "exit":
		if sh.session.HasPendingChanges() {
			fmt.Fprintln(sh.out, "warning: unsaved changes are discarded")
		}
		return true, nil
	case "open":
		return false, sh.open(ctx, rest)
	case "pages":
		for _, k := range sh.session.Pages() {
			fmt.Fprintf(sh.out, "%s  (%d pending)\n", k, sh.session.PendingCount(k))
		}
	case "show":
		return false, sh.show()
	case "edit":
		return false, sh.editMode(rest)
	case "set", "add", "insert", "remove", "move", "replace":
		return false, sh.edit(cmd, rest)
	case "save":
		return false, sh.save(ctx)
	case "discard":
		key, err := sh.page()
		if err != nil {
			return false, err
		}
		sh.session.Discard(key)
		fmt.Fprintln(sh.out, "pending changes discarded")
	case "undo", "redo":
		return false, sh.restore(ctx, history.Direction(cmd))
	case "history":
		return false, sh.history()
	case "status":
		sh.status(ctx)
	case "conflicts":
		return false, sh.conflicts(ctx)
	case "sync":
		return false, sh.sync(ctx)
	case "override":
		if sh.resolver == nil {
			return false, errors.ConfigError("sync is not available").Build()
		}
		sh.resolver.ForceOverride()
		fmt.Fprintln(sh.out, "editing gate overridden until the next sync; saves may conflict with remote changes")
	default:
		return false, errors.ValidationError(fmt.Sprintf("unknown command %q (try 'help')", cmd)).Build()
	}
	return false, nil
}

func (sh *Shell) page() (content.PageKey, error) {
	if !sh.hasPage {
		return content.PageKey{}, errors.ValidationError("no page open (use 'open type/slug/locale')").Build()
	}
	return sh.current, nil
}

func (sh *Shell) open(ctx context.Context, arg string) error {
	key, err := content.ParsePageKey(arg)
	if err != nil {
		return err
	}
	if err := sh.session.Open(ctx, key); err != nil {
		return err
	}
	sh.current, sh.hasPage = key, true
	fmt.Fprintf(sh.out, "opened %s (version %d)\n", key, sh.session.Version(key))
	return nil
}

func (sh *Shell) show() error {
	key, err := sh.page()
	if err != nil {
		return err
	}
	sections, err := sh.session.Sections(key)
	if err != nil {
		return err
	}
	out, err := yaml.Marshal(map[string]any{"sections": sections})
	if err != nil {
		return errors.InternalError("failed to render page").WithCause(err).Build()
	}
	fmt.Fprintf(sh.out, "# %s version %d, %d pending\n%s", key, sh.session.Version(key), sh.session.PendingCount(key), out)
	return nil
}

func (sh *Shell) editMode(arg string) error {
	switch strings.ToLower(arg) {
	case "on", "":
		sh.session.SetEditMode(true)
		fmt.Fprintln(sh.out, "edit mode on")
	case "off":
		sh.session.SetEditMode(false)
		fmt.Fprintln(sh.out, "edit mode off")
	default:
		return errors.ValidationError("usage: edit on|off").Build()
	}
	return nil
}

func (sh *Shell) edit(cmd, rest string) error {
	key, err := sh.page()
	if err != nil {
		return err
	}
	op, desc, err := parseOperation(cmd, rest)
	if err != nil {
		return err
	}
	if err := sh.session.Apply(key, op, desc); err != nil {
		return err
	}
	fmt.Fprintf(sh.out, "%s (%d pending)\n", desc, sh.session.PendingCount(key))
	return nil
}

// parseOperation turns a shell edit command into an operation and a history label.
func parseOperation(cmd, rest string) (content.Operation, string, error) {
	usage := func(u string) error { return errors.ValidationError("usage: " + u).Build() }
	switch cmd {
	case "set":
		parts := strings.SplitN(rest, " ", 3)
		if len(parts) < 3 {
			return content.Operation{}, "", usage("set <index> <field> <value>")
		}
		idx, err := strconv.Atoi(parts[0])
		if err != nil {
			return content.Operation{}, "", usage("set <index> <field> <value>")
		}
		return content.SetField(idx, parts[1], parseValue(parts[2])), fmt.Sprintf("set %s on section %d", parts[1], idx), nil
	case "add":
		s, err := parseSection(rest)
		if err != nil {
			return content.Operation{}, "", err
		}
		return content.AddSection(s), "add section", nil
	case "insert":
		idxRaw, body, _ := strings.Cut(rest, " ")
		idx, err := strconv.Atoi(idxRaw)
		if err != nil {
			return content.Operation{}, "", usage("insert <index> <section>")
		}
		s, err := parseSection(body)
		if err != nil {
			return content.Operation{}, "", err
		}
		return content.InsertSection(idx, s), fmt.Sprintf("insert section at %d", idx), nil
	case "remove":
		idx, err := strconv.Atoi(rest)
		if err != nil {
			return content.Operation{}, "", usage("remove <index>")
		}
		return content.RemoveSection(idx), fmt.Sprintf("remove section %d", idx), nil
	case "move":
		var from, to int
		if _, err := fmt.Sscanf(rest, "%d %d", &from, &to); err != nil {
			return content.Operation{}, "", usage("move <from> <to>")
		}
		return content.MoveSection(from, to), fmt.Sprintf("move section %d to %d", from, to), nil
	case "replace":
		var raw []map[string]any
		if err := yaml.Unmarshal([]byte(rest), &raw); err != nil {
			return content.Operation{}, "", errors.ValidationError("sections must be a YAML list of maps").WithCause(err).Build()
		}
		sections := make([]content.Section, len(raw))
		for i, m := range raw {
			sections[i] = content.Section(m)
		}
		return content.ReplaceAll(sections), "replace all sections", nil
	}
	return content.Operation{}, "", errors.ValidationError("unknown edit command").Build()
}

// parseValue reads a YAML scalar or flow value; anything unparsable is a string.
func parseValue(raw string) any {
	var v any
	if err := yaml.Unmarshal([]byte(raw), &v); err != nil || v == nil {
		return raw
	}
	return v
}

func parseSection(raw string) (content.Section, error) {
	var m map[string]any
	if err := yaml.Unmarshal([]byte(raw), &m); err != nil || m == nil {
		return nil, errors.ValidationError("section must be a YAML map, e.g. {type: hero}").WithCause(err).Build()
	}
	return content.Section(m), nil
}

func (sh *Shell) save(ctx context.Context) error {
	key, err := sh.page()
	if err != nil {
		return err
	}
	n := sh.session.PendingCount(key)
	ok, err := sh.session.SaveChanges(ctx, key)
	if err != nil {
		if errors.HasCategory(err, errors.CategorySync) {
			return errors.SyncError("working copy is behind the remote: run 'conflicts', then 'sync' or 'override'").Build()
		}
		return err
	}
	if ok && n == 0 {
		fmt.Fprintln(sh.out, "nothing to save")
		return nil
	}
	fmt.Fprintf(sh.out, "saved %d change(s), version %d\n", n, sh.session.Version(key))
	return nil
}

func (sh *Shell) restore(ctx context.Context, dir history.Direction) error {
	key, err := sh.page()
	if err != nil {
		return err
	}
	h := sh.session.History()
	var done bool
	if dir == history.DirectionUndo {
		done, err = h.RequestUndo(ctx, key)
	} else {
		done, err = h.RequestRedo(ctx, key)
	}
	if err != nil {
		return err
	}
	if !done {
		fmt.Fprintf(sh.out, "nothing to %s\n", dir)
		return nil
	}
	fmt.Fprintf(sh.out, "%s done (undo %d, redo %d)\n", dir, h.UndoCount(key), h.RedoCount(key))
	return nil
}

func (sh *Shell) history() error {
	key, err := sh.page()
	if err != nil {
		return err
	}
	undo, redo := sh.session.History().Entries(key)
	fmt.Fprintf(sh.out, "undo (%d):\n", len(undo))
	for _, e := range undo {
		fmt.Fprintf(sh.out, "  %s  %s\n", e.Timestamp.Format("15:04:05"), e.Description)
	}
	fmt.Fprintf(sh.out, "redo (%d):\n", len(redo))
	for _, e := range redo {
		fmt.Fprintf(sh.out, "  %s  %s\n", e.Timestamp.Format("15:04:05"), e.Description)
	}
	return nil
}

func (sh *Shell) status(ctx context.Context) {
	if sh.monitor == nil {
		fmt.Fprintln(sh.out, "sync monitoring is off")
		return
	}
	sh.monitor.NotifyFocus(ctx)
	st := sh.monitor.Status()
	fmt.Fprintf(sh.out, "relation: %s (behind %d, ahead %d)\n", st.Relation, st.BehindBy, st.AheadBy)
	if st.Branch != "" {
		fmt.Fprintf(sh.out, "branch:   %s\n", st.Branch)
	}
	gate := "open"
	switch {
	case sh.monitor.EditingDisabled():
		gate = "closed"
	case sh.monitor.ForceOverrideActive():
		gate = "overridden"
	}
	fmt.Fprintf(sh.out, "sync:     %t, editing gate %s\n", st.SyncEnabled, gate)
	if st.Error != "" {
		fmt.Fprintf(sh.out, "error:    %s\n", st.Error)
	}
}

func (sh *Shell) conflicts(ctx context.Context) error {
	if sh.resolver == nil {
		return errors.ConfigError("sync is not available").Build()
	}
	info, ok := sh.resolver.Pending()
	if !ok {
		var err error
		if info, err = sh.resolver.CheckForConflicts(ctx); err != nil {
			return err
		}
	}
	fmt.Fprint(sh.out, conflict.Describe(info))
	return nil
}

func (sh *Shell) sync(ctx context.Context) error {
	if sh.resolver == nil {
		return errors.ConfigError("sync is not available").Build()
	}
	res, err := sh.resolver.SyncAndReload(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(sh.out, "synced: pulled %d commit(s); open pages reloaded\n", res.Pulled)
	return nil
}
