package present

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"

	"duel-service/internal/engine"

	"github.com/pterm/pterm"
)

// Terminal renders snapshots as pterm panels. Only snapshots that change the
// state or round are drawn, so clock ticks do not flood the output.
type Terminal struct {
	mu   sync.Mutex
	out  io.Writer
	last map[string]string
}

func NewTerminal(out io.Writer) *Terminal {
	if out == nil {
		out = os.Stdout
	}
	return &Terminal{out: out, last: make(map[string]string)}
}

func (t *Terminal) Publish(snap engine.Snapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()

	public, _ := json.Marshal(snap.Public)
	key := fmt.Sprintf("%s|%d|%s", snap.State, snap.Round, public)
	if !snap.Final() && t.last[snap.SessionID] == key {
		return
	}
	t.last[snap.SessionID] = key
	if snap.Final() {
		delete(t.last, snap.SessionID)
	}
	fmt.Fprintln(t.out, t.render(snap, public))
}

func (t *Terminal) render(snap engine.Snapshot, public []byte) string {
	data := pterm.TableData{
		{"game", "state", "round", "wager", "turn", "phase"},
		{
			snap.Game,
			snap.State,
			strconv.Itoa(snap.Round),
			strconv.FormatInt(snap.Wager, 10),
			strconv.Itoa(snap.Countdowns[engine.SlotTurn]),
			strconv.Itoa(snap.Countdowns[engine.SlotPhase]),
		},
	}
	table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		table = fmt.Sprint(data)
	}

	body := table
	if len(public) > 0 && string(public) != "null" {
		body += "\n" + string(public)
	}
	title := pterm.LightCyan(fmt.Sprintf("%s vs %s", snap.Players[0].Name, snap.Players[1].Name))
	if out := snap.Outcome; out != nil {
		body += "\n" + outcomeLine(*out)
	}
	return pterm.DefaultBox.WithTitle(title).WithTitleTopCenter().Sprint(body)
}

func outcomeLine(out engine.Outcome) string {
	switch out.Kind {
	case engine.OutcomeDecided:
		return pterm.LightGreen(fmt.Sprintf("%s wins %d from %s (%s)", out.Winner.Name, out.Amount, out.Loser.Name, out.Reason))
	case engine.OutcomeDraw:
		return pterm.LightYellow(fmt.Sprintf("draw (%s)", out.Reason))
	default:
		return pterm.LightRed(fmt.Sprintf("%s (%s)", out.Kind, out.Reason))
	}
}
