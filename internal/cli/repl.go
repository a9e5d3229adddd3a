package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/raphaelgruber/turnmark/internal/annotate"
	"github.com/raphaelgruber/turnmark/internal/models"
	"github.com/raphaelgruber/turnmark/internal/service"
	"github.com/raphaelgruber/turnmark/internal/vocab"
)

const replHelp = `Commands:
  mode on|off             toggle annotation mode
  click <sec>             place a marker (annotation mode) or select the turn at <sec>
  drag <marker> <sec>     move a marker, e.g. "drag turn:0:end 4.2" or "drag provisional:start 1"
  commit                  apply the marker pair and dragged boundaries
  discard                 drop dragged boundaries that were not committed
  select <turn>           make <turn> the active turn
  intent <text>           set the intent of the active turn
  slot <key> <value>      attach a slot to the active turn
  unslot <n>              remove slot <n> of the active turn
  dslot <key> <value>     add a dialogue-level slot
  undslot <n>             remove dialogue-level slot <n>
  delete [turn]           delete a turn (default: the active turn)
  show                    draw the timeline and the turns
  save                    save the annotation
  next | prev             save and move to the next or previous conversation
  goto <customer> <conv>  save and open another conversation
  help                    show this help
  quit                    save and exit
`

// repl is the line-oriented annotation session behind "turnmark annotate".
type repl struct {
	nav   *service.Navigator
	svc   *service.AnnotationService
	vocab *vocab.Vocabulary
	out   io.Writer
	theme Theme
	width int
}

func newREPL(nav *service.Navigator, svc *service.AnnotationService, v *vocab.Vocabulary, out io.Writer) *repl {
	if v == nil {
		v = &vocab.Vocabulary{Intents: vocab.NewList(), SlotKeys: vocab.NewList()}
	}
	return &repl{nav: nav, svc: svc, vocab: v, out: out, theme: defaultTheme, width: defaultTimelineWidth}
}

// run reads commands from in until quit or EOF, then saves the open
// conversation.
func (r *repl) run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	r.prompt()
	for scanner.Scan() {
		quit, err := r.exec(ctx, scanner.Text())
		if err != nil {
			fmt.Fprintln(r.out, r.theme.errorStyle().Render("Error: "+err.Error()))
		}
		if quit {
			break
		}
		r.prompt()
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	if e, _, ok := r.nav.Current(); ok && e.Dirty() {
		fmt.Fprintf(r.out, "Saving %s...\n", e.Key())
	}
	if err := r.nav.Close(ctx); err != nil {
		return fmt.Errorf("save on exit: %w", err)
	}
	return nil
}

func (r *repl) prompt() {
	label := "turnmark"
	if e, pos, ok := r.nav.Current(); ok {
		label = fmt.Sprintf("%s [%d/%d %s]", e.Key(), pos+1, r.nav.Len(), e.MarkerState())
		if e.Dirty() {
			label += "*"
		}
	}
	fmt.Fprint(r.out, r.theme.statusStyle().Render(label)+"> ")
}

// exec runs one command line. quit is true when the session should end.
func (r *repl) exec(ctx context.Context, line string) (quit bool, err error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	switch cmd {
	case "help", "?":
		fmt.Fprint(r.out, replHelp)
		return false, nil
	case "quit", "exit", "q":
		return true, nil
	case "next":
		return false, r.navigate(r.nav.Next(ctx))
	case "prev":
		return false, r.navigate(r.nav.Prev(ctx))
	case "goto":
		if len(args) != 2 {
			return false, errors.New("usage: goto <customer> <conversation>")
		}
		key := models.ConversationKey{CustomerID: args[0], ConversationID: args[1]}
		return false, r.navigate(r.nav.GotoKey(ctx, key))
	}

	e, _, ok := r.nav.Current()
	if !ok {
		return false, errors.New("no conversation open (use next or goto)")
	}

	switch cmd {
	case "mode":
		if len(args) != 1 {
			return false, errors.New("usage: mode on|off")
		}
		switch args[0] {
		case "on":
			e.EnterAnnotationMode()
		case "off":
			e.ExitAnnotationMode()
		default:
			return false, errors.New("usage: mode on|off")
		}
		fmt.Fprintf(r.out, "Marker state: %s\n", e.MarkerState())

	case "click":
		t, err := floatArg(args, 0, "click <sec>")
		if err != nil {
			return false, err
		}
		if !e.Click(t) {
			fmt.Fprintln(r.out, r.theme.hintStyle().Render("Nothing changed."))
			return false, nil
		}
		r.status(e)

	case "drag":
		if len(args) != 2 {
			return false, errors.New("usage: drag <marker> <sec>")
		}
		t, err := floatArg(args, 1, "drag <marker> <sec>")
		if err != nil {
			return false, err
		}
		id := annotate.MarkerID(args[0])
		if err := e.MarkerDragStart(id); err != nil {
			return false, err
		}
		pos, err := e.MarkerDrag(id, t)
		if err != nil {
			return false, err
		}
		if err := e.MarkerDragEnd(id); err != nil {
			return false, err
		}
		fmt.Fprintf(r.out, "Moved %s to %s\n", id, formatTime(pos))

	case "commit":
		result, err := e.Commit()
		if err != nil {
			return false, err
		}
		if !result.Changed() {
			fmt.Fprintln(r.out, r.theme.hintStyle().Render("Nothing to commit."))
			return false, nil
		}
		msg := fmt.Sprintf("Committed: %d turns", len(result.Segments))
		if result.Inserted >= 0 {
			msg += fmt.Sprintf(", inserted turn %d", result.Inserted)
		}
		fmt.Fprintln(r.out, r.theme.successStyle().Render(msg))
		for _, w := range e.Warnings() {
			r.warn(w)
		}

	case "discard":
		e.DiscardEdits()
		fmt.Fprintln(r.out, "Discarded pending edits.")

	case "select":
		i, err := intArg(args, 0, "select <turn>")
		if err != nil {
			return false, err
		}
		if err := e.Select(i); err != nil {
			return false, err
		}
		r.status(e)

	case "intent":
		i, err := r.active(e)
		if err != nil {
			return false, err
		}
		intent := strings.Join(args, " ")
		if err := e.SetIntent(i, intent); err != nil {
			return false, err
		}
		if intent != "" && !r.vocab.Intents.Known(intent) {
			r.warn(fmt.Sprintf("intent %q is not in the vocabulary", intent))
		}

	case "slot", "dslot":
		if len(args) < 1 {
			return false, fmt.Errorf("usage: %s <key> <value>", cmd)
		}
		slot := models.SlotValue{Key: args[0], Value: strings.Join(args[1:], " ")}
		if cmd == "slot" {
			i, err := r.active(e)
			if err != nil {
				return false, err
			}
			err = e.AttachSlot(i, slot)
			if err != nil {
				return false, err
			}
		} else if err := e.AddDialogueSlot(slot); err != nil {
			return false, err
		}
		if !r.vocab.SlotKeys.Known(slot.Key) {
			r.warn(fmt.Sprintf("slot key %q is not in the vocabulary", slot.Key))
		}

	case "unslot":
		i, err := r.active(e)
		if err != nil {
			return false, err
		}
		j, err := intArg(args, 0, "unslot <n>")
		if err != nil {
			return false, err
		}
		if err := e.RemoveSlot(i, j); err != nil {
			return false, err
		}

	case "undslot":
		j, err := intArg(args, 0, "undslot <n>")
		if err != nil {
			return false, err
		}
		if err := e.RemoveDialogueSlot(j); err != nil {
			return false, err
		}

	case "delete":
		var i int
		if len(args) > 0 {
			i, err = intArg(args, 0, "delete [turn]")
		} else {
			i, err = r.active(e)
		}
		if err != nil {
			return false, err
		}
		if err := e.DeleteTurn(i); err != nil {
			return false, err
		}
		fmt.Fprintf(r.out, "Deleted turn %d\n", i)

	case "show":
		r.show(e)

	case "save":
		if err := r.svc.Save(ctx, e); err != nil {
			return false, err
		}
		fmt.Fprintln(r.out, r.theme.successStyle().Render("Saved "+e.Key().String()))

	default:
		return false, fmt.Errorf("unknown command %q (try help)", cmd)
	}
	return false, nil
}

// navigate reports the outcome of a navigation and shows the new conversation.
func (r *repl) navigate(result service.NavResult, err error) error {
	if result.SaveErr != nil {
		fmt.Fprintln(r.out, r.theme.errorStyle().Render("Save failed, changes were lost: "+result.SaveErr.Error()))
	} else if result.Saved {
		fmt.Fprintln(r.out, r.theme.successStyle().Render("Saved previous conversation."))
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(r.out, "Opened %s (%d turns)\n", result.Conversation.Key, len(result.Engine.Turns()))
	for _, w := range result.Engine.Warnings() {
		r.warn(w)
	}
	return nil
}

func (r *repl) show(e *annotate.Engine) {
	tl := NewTimeline(e.Duration(), r.width)
	e.Render(tl)
	fmt.Fprint(r.out, tl.String())
	fmt.Fprintln(r.out)

	selected, ok := e.Selection()
	fmt.Fprint(r.out, formatTurns(e.Turns(), selected, ok, r.theme))
	if slots := e.DialogueSlots(); len(slots) > 0 {
		fmt.Fprintf(r.out, "\nDialogue slots (%d):\n", len(slots))
		fmt.Fprint(r.out, formatSlots(slots))
	}
	if e.CanCommit() {
		fmt.Fprintln(r.out, r.theme.hintStyle().Render("\nUncommitted changes: run commit."))
	}
}

func (r *repl) status(e *annotate.Engine) {
	pair := e.Pair()
	switch {
	case pair.Complete():
		fmt.Fprintf(r.out, "New turn %s - %s (commit to apply)\n", formatTime(*pair.Start), formatTime(*pair.End))
	case pair.Start != nil:
		fmt.Fprintf(r.out, "Start at %s, click the end\n", formatTime(*pair.Start))
	default:
		if i, ok := e.Selection(); ok {
			fmt.Fprintf(r.out, "Selected turn %d\n", i)
		}
	}
}

func (r *repl) warn(msg string) {
	fmt.Fprintln(r.out, r.theme.hintStyle().Render("Warning: "+msg))
}

func (r *repl) active(e *annotate.Engine) (int, error) {
	i, ok := e.Selection()
	if !ok {
		return 0, errors.New("no turn selected")
	}
	return i, nil
}

func floatArg(args []string, i int, usage string) (float64, error) {
	if i >= len(args) {
		return 0, errors.New("usage: " + usage)
	}
	v, err := strconv.ParseFloat(args[i], 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("invalid number %q", args[i])
	}
	return v, nil
}

func intArg(args []string, i int, usage string) (int, error) {
	if i >= len(args) {
		return 0, errors.New("usage: " + usage)
	}
	v, err := strconv.Atoi(args[i])
	if err != nil {
		return 0, fmt.Errorf("invalid index %q", args[i])
	}
	return v, nil
}
