package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/mghextreme/blu-presenter-sub000/internal/content"
	"github.com/mghextreme/blu-presenter-sub000/internal/presenter"
	"github.com/mghextreme/blu-presenter-sub000/internal/sanitize"
)

var errQuit = errors.New("quit")

const usage = `commands:
  next | prev                 step in the current mode
  next-part | prev-part
  next-slide | prev-slide
  next-item | prev-item [end]
  goto <item> [slide] [part]  load a schedule item
  select [item|-] [slide|-] [part|-]
  mode part|slide
  auto on|off                 cross items when stepping slides
  blank | logo | clear        override slides
  add <file.json>             append an item to the schedule
  open <file.json>            show an item without adding it
  remove <item>
  move <from> <to>
  status | help | quit`

// execute applies one console command to e. The caller holds the engine lock.
func execute(e *presenter.Engine, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "next", "n":
		e.Next()
	case "prev", "p":
		e.Previous()
	case "next-part":
		e.NextPart()
	case "prev-part":
		e.PreviousPart()
	case "next-slide":
		e.NextSlide()
	case "prev-slide":
		e.PreviousSlide()
	case "next-item":
		e.NextItem()
	case "prev-item":
		e.PreviousItem(len(args) > 0 && args[0] == "end")
	case "goto":
		nums, err := ints(args, 1, 3)
		if err != nil {
			return err
		}
		sel := &content.Selection{}
		if len(nums) > 1 {
			sel.Slide = content.Int(nums[1])
		}
		if len(nums) > 2 {
			sel.Part = content.Int(nums[2])
		}
		e.SetCurrentIndex(nums[0], sel)
	case "select":
		sel, err := selection(args)
		if err != nil {
			return err
		}
		e.SetSelection(sel)
	case "mode":
		if len(args) != 1 {
			return errors.New("mode needs part or slide")
		}
		m, err := presenter.ParseMode(args[0])
		if err != nil {
			return err
		}
		e.SetMode(m)
	case "auto":
		if len(args) != 1 || (args[0] != "on" && args[0] != "off") {
			return errors.New("auto needs on or off")
		}
		e.SetConfig(presenter.Config{AutoAdvanceScheduleItem: args[0] == "on"})
	case "blank":
		e.SetBlank()
	case "logo":
		e.SetLogo()
	case "clear":
		e.ClearOverrideSlide()
	case "add", "open":
		if len(args) != 1 {
			return fmt.Errorf("%s needs a file", cmd)
		}
		it, err := readItem(args[0])
		if err != nil {
			return err
		}
		if cmd == "add" {
			e.Append(*it)
		} else {
			e.SetCurrentItem(*it, nil)
		}
	case "remove":
		nums, err := ints(args, 1, 1)
		if err != nil {
			return err
		}
		e.Remove(nums[0])
	case "move":
		nums, err := ints(args, 2, 2)
		if err != nil {
			return err
		}
		e.Move(nums[0], nums[1])
	case "status", "help":
	case "quit", "exit":
		return errQuit
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
	return nil
}

// readItem loads one schedule item from a JSON file.
func readItem(path string) (*content.ScheduleItem, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read item: %w", err)
	}
	it := sanitize.ScheduleItem(json.RawMessage(b))
	if it == nil {
		return nil, fmt.Errorf("%s is not a schedule item", path)
	}
	return it, nil
}

func ints(args []string, minN, maxN int) ([]int, error) {
	if len(args) < minN || len(args) > maxN {
		return nil, fmt.Errorf("expected %d to %d numbers", minN, maxN)
	}
	out := make([]int, len(args))
	for i, a := range args {
		n, err := strconv.Atoi(a)
		if err != nil {
			return nil, fmt.Errorf("bad number %q", a)
		}
		out[i] = n
	}
	return out, nil
}

// selection parses up to three positions where "-" leaves one unset.
func selection(args []string) (content.Selection, error) {
	var sel content.Selection
	if len(args) > 3 {
		return sel, errors.New("select takes at most item, slide and part")
	}
	dst := []**int{&sel.ScheduleItem, &sel.Slide, &sel.Part}
	for i, a := range args {
		if a == "-" {
			continue
		}
		n, err := strconv.Atoi(a)
		if err != nil {
			return sel, fmt.Errorf("bad number %q", a)
		}
		*dst[i] = content.Int(n)
	}
	return sel, nil
}

// status describes the current position for the console.
func status(e *presenter.Engine) string {
	st := e.Snapshot()
	var b strings.Builder
	fmt.Fprintf(&b, "mode=%s auto=%v items=%d", st.Mode, st.Config.AutoAdvanceScheduleItem, len(st.Schedule))
	if st.Item == nil {
		b.WriteString(" | nothing loaded")
		return b.String()
	}
	where := "ad hoc"
	if st.Selection.ScheduleItem != nil {
		where = fmt.Sprintf("item %d", *st.Selection.ScheduleItem)
	}
	fmt.Fprintf(&b, " | %s %q slide %d/%d part %d",
		where, st.Item.Title, *st.Selection.Slide+1, len(st.Item.Slides), *st.Selection.Part)
	if st.Override != nil {
		fmt.Fprintf(&b, " [%s]", st.Override.ID)
	}
	return b.String()
}
