package main

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"time"

	"parcelsync/internal/logging"
	"parcelsync/internal/pipeline"
	"parcelsync/internal/types"

	"golang.org/x/term"
)

// entry is one line of the plan browser.
type entry struct {
	line   string
	record *types.Record
}

func planEntries(rep *pipeline.Report) []entry {
	var out []entry
	for i := range rep.Batch.Adds {
		rec := &rep.Batch.Adds[i]
		out = append(out, entry{line: "+ " + rec.PIN, record: rec})
	}
	for i := range rep.Batch.Updates {
		u := &rep.Batch.Updates[i]
		out = append(out, entry{line: fmt.Sprintf("~ %s %s", u.Record.PIN, u.GlobalID), record: &u.Record})
	}
	for _, gid := range rep.Batch.Deletes {
		out = append(out, entry{line: "- " + gid})
	}
	return out
}

// browse lets the user move through the planned edits with the arrow keys
// and press Enter to see a record's attributes.
func browse(rep *pipeline.Report) {
	entries := planEntries(rep)
	if len(entries) == 0 {
		rep.Print(os.Stdout, false)
		return
	}
	logging.EnableVTInput(os.Stdin)
	logging.EnableVT(os.Stdout)

	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		fmt.Println("(interactive browsing not supported on this terminal)")
		rep.Print(os.Stdout, true)
		return
	}
	defer term.Restore(fd, oldState)

	reader := bufio.NewReader(os.Stdin)
	selected := 0

	redraw := func() {
		fmt.Print("\033[H\033[2J")
		fmt.Printf("%d adds, %d updates, %d deletes, %d unchanged\r\n",
			len(rep.Batch.Adds), len(rep.Batch.Updates), len(rep.Batch.Deletes), rep.Unchanged)
		for i, e := range entries {
			prefix := "  "
			if i == selected {
				prefix = "> "
			}
			fmt.Print(prefix + e.line + "\r\n")
		}
		fmt.Print("(up/down to navigate, Enter for details, Esc to quit)\r\n")
	}

	// show prints the selected record in cooked mode and reports whether raw
	// mode could be restored.
	show := func() bool {
		term.Restore(fd, oldState)
		fmt.Println()
		printRecord(entries[selected])
		fmt.Print("\n(press Enter to return)")
		_, _ = bufio.NewReader(os.Stdin).ReadBytes('\n')

		if oldState, err = term.MakeRaw(fd); err != nil {
			return false
		}
		reader = bufio.NewReader(os.Stdin)
		return true
	}

	move := func(delta int) {
		if n := selected + delta; n >= 0 && n < len(entries) {
			selected = n
			redraw()
		}
	}

	redraw()
	for {
		b1, err := reader.ReadByte()
		if err != nil {
			return
		}
		// Windows console arrows arrive as 0 or 224 followed by a code.
		if b1 == 0 || b1 == 224 {
			b2, _ := reader.ReadByte()
			switch b2 {
			case 72:
				move(-1)
			case 80:
				move(1)
			}
			continue
		}

		switch b1 {
		case 27: // ESC or a CSI sequence
			if reader.Buffered() == 0 {
				fmt.Print("\r\n")
				return
			}
			if b2, _ := reader.ReadByte(); b2 != '[' || reader.Buffered() == 0 {
				continue
			}
			switch b3, _ := reader.ReadByte(); b3 {
			case 'A':
				move(-1)
			case 'B':
				move(1)
			}
		case '\r', '\n':
			if !show() {
				return
			}
			redraw()
		case 3, 'q': // Ctrl-C
			fmt.Print("\r\n")
			return
		}
	}
}

func printRecord(e entry) {
	fmt.Println(e.line)
	if e.record == nil {
		fmt.Println("  (row removed from the target)")
		return
	}
	keys := make([]string, 0, len(e.record.Attributes))
	for k := range e.record.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("  %-20s %s\n", k, formatValue(e.record.Attributes[k]))
	}
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "<null>"
	case time.Time:
		return x.Format(time.RFC3339)
	case float64:
		return fmt.Sprintf("%.4f", x)
	default:
		return fmt.Sprint(x)
	}
}
