package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"github.com/ryansname/suntracker/src/telemetry"
)

// debugFields maps watchable names to snapshot accessors
var debugFields = map[string]func(s telemetry.Snapshot) string{
	"value": func(s telemetry.Snapshot) string { return formatDebugValue(s.Value) },
	"age":   func(s telemetry.Snapshot) string { return fmt.Sprintf("%.1fs", s.Age().Seconds()) },
	"mode":  func(s telemetry.Snapshot) string { return s.Mode },
	"pos":   func(s telemetry.Snapshot) string { return formatDebugValue(s.Position) },
	"probe": func(s telemetry.Snapshot) string { return strconv.FormatBool(s.IsProbe) },
	"efficiency": func(s telemetry.Snapshot) string {
		if !s.HasEfficiency {
			return "-"
		}
		return fmt.Sprintf("%.0f%%", s.Efficiency)
	},
	"decision": func(s telemetry.Snapshot) string { return s.LastDecision },
	"wobble": func(s telemetry.Snapshot) string {
		if !s.HasWobble {
			return "-"
		}
		return fmt.Sprintf("%.2fs/%.2fs", s.Wobble[0], s.Wobble[1])
	},
	"scan":  func(s telemetry.Snapshot) string { return s.ScanID },
	"scans": func(s telemetry.Snapshot) string { return strconv.Itoa(s.Scans) },
}

// WatchSpec represents a snapshot field to watch with an optional median window
type WatchSpec struct {
	Field   string
	Minutes int // 0 = current, 1/5/15 = median power over the window
}

// String returns a unique key for this watch spec
func (w WatchSpec) String() string {
	if w.Minutes == 0 {
		return w.Field
	}
	return fmt.Sprintf("%s -m %d", w.Field, w.Minutes)
}

// ShortName returns a short column header for this watch
func (w WatchSpec) ShortName() string {
	if w.Minutes == 0 {
		return w.Field
	}
	return fmt.Sprintf("%s %dm p50", w.Field, w.Minutes)
}

// GetValue extracts the value from a snapshot based on the watch spec
func (w WatchSpec) GetValue(data telemetry.Snapshot) string {
	if !data.Started && w.Field == "value" {
		return "-"
	}
	if w.Minutes > 0 {
		switch w.Minutes {
		case 1:
			return formatDebugValue(data.PowerP50.Min1)
		case 5:
			return formatDebugValue(data.PowerP50.Min5)
		default:
			return formatDebugValue(data.PowerP50.Min15)
		}
	}
	get, ok := debugFields[w.Field]
	if !ok {
		return "-"
	}
	if v := get(data); v != "" {
		return v
	}
	return "-"
}

// formatDebugValue formats a float with smart precision
func formatDebugValue(v float64) string {
	if v >= 100 || v <= -100 {
		return fmt.Sprintf("%.0f", v)
	}
	return fmt.Sprintf("%.2f", v)
}

// ANSI color codes for highlighting changes
const (
	ansiReset  = "\033[0m"
	ansiYellow = "\033[33m" // Yellow for changed values
)

// readlineWriter wraps log output to work with readline
type readlineWriter struct {
	rl *readline.Instance
}

func (w *readlineWriter) Write(p []byte) (n int, err error) {
	if w.rl != nil {
		w.rl.Clean()
	}
	n, err = os.Stderr.Write(p)
	if w.rl != nil {
		w.rl.Refresh()
	}
	return n, err
}

// Global readline writer for log output
var rlWriter = &readlineWriter{}

// DebugState manages the list of watched fields
type DebugState struct {
	watches       []WatchSpec
	headerPrinted bool
	columnWidths  []int
	latestData    *telemetry.Snapshot
	rl            *readline.Instance
	prevValues    map[string]string // Track previous value per watch for change highlighting
	commands      chan<- Command
	out           func(line string)
}

// NewDebugState creates a new debug state that forwards control commands to commands
func NewDebugState(commands chan<- Command) *DebugState {
	s := &DebugState{
		watches:    make([]WatchSpec, 0),
		prevValues: make(map[string]string),
		commands:   commands,
	}
	s.out = s.printLine
	return s
}

// AddWatch adds a watch and re-sorts the list
func (s *DebugState) AddWatch(spec WatchSpec) {
	// Check for duplicate
	for _, w := range s.watches {
		if w.String() == spec.String() {
			log.Printf("Already watching: %s", spec.String())
			return
		}
	}

	s.watches = append(s.watches, spec)
	sort.Slice(s.watches, func(i, j int) bool {
		return s.watches[i].ShortName() < s.watches[j].ShortName()
	})
	s.headerPrinted = false
	log.Printf("Watching: %s", spec.String())
}

// RemoveWatch removes an exact match watch
func (s *DebugState) RemoveWatch(spec WatchSpec) bool {
	for i, w := range s.watches {
		if w.String() == spec.String() {
			s.watches = slices.Delete(s.watches, i, i+1)
			s.headerPrinted = false
			log.Printf("Unwatched: %s", spec.String())
			return true
		}
	}
	return false
}

// RemoveWatchFuzzy removes a watch by field, either exact or single match
func (s *DebugState) RemoveWatchFuzzy(field string) bool {
	// First try exact match (current value only)
	if s.RemoveWatch(WatchSpec{Field: field}) {
		return true
	}

	// Find all matches for this field
	var matches []int
	for i, w := range s.watches {
		if w.Field == field {
			matches = append(matches, i)
		}
	}

	// If exactly one match, remove it
	if len(matches) == 1 {
		return s.RemoveWatch(s.watches[matches[0]])
	}

	if len(matches) > 1 {
		log.Printf("Multiple watches for %s, use full spec to unwatch", field)
		return false
	}

	log.Printf("No watch found for: %s", field)
	return false
}

// RemoveAll removes all watches
func (s *DebugState) RemoveAll() {
	s.watches = s.watches[:0]
	s.headerPrinted = false
	log.Println("All watches removed")
}

// UpdateData stores the latest snapshot for the list, status and history commands
func (s *DebugState) UpdateData(data telemetry.Snapshot) {
	s.latestData = &data
}

// SetReadline sets the readline instance for proper output handling
func (s *DebugState) SetReadline(rl *readline.Instance) {
	s.rl = rl
}

// print outputs a line, handling readline prompt properly
func (s *DebugState) print(format string, args ...any) {
	s.out(fmt.Sprintf(format, args...))
}

func (s *DebugState) printLine(line string) {
	if s.rl != nil {
		// Clean prompt, print, refresh prompt
		s.rl.Clean()
		fmt.Println(line)
		s.rl.Refresh()
	} else {
		fmt.Println(line)
	}
}

// ListFields prints all watchable fields with their current values
func (s *DebugState) ListFields() {
	fields := make([]string, 0, len(debugFields))
	for field := range debugFields {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	s.print("Available fields (%d):", len(fields))
	for _, field := range fields {
		value := "-"
		if s.latestData != nil {
			value = WatchSpec{Field: field}.GetValue(*s.latestData)
		}
		s.print("  %-10s %s", field, value)
	}
}

// PrintHistory prints the most recent hill-climb decisions
func (s *DebugState) PrintHistory() {
	if s.latestData == nil || len(s.latestData.Decisions) == 0 {
		log.Println("No decisions yet")
		return
	}
	s.print("Decisions (oldest first): %s", strings.Join(s.latestData.Decisions, " "))
}

// PrintHeader prints the column headers
func (s *DebugState) PrintHeader() {
	if len(s.watches) == 0 {
		return
	}

	// Calculate column widths
	s.columnWidths = make([]int, len(s.watches))
	for i, w := range s.watches {
		s.columnWidths[i] = len(w.ShortName())
	}

	// Build header line
	parts := make([]string, 0, len(s.watches))
	for i, w := range s.watches {
		parts = append(parts, fmt.Sprintf("%*s", s.columnWidths[i], w.ShortName()))
	}
	s.print("%s", strings.Join(parts, " | "))
	s.headerPrinted = true
	s.prevValues = make(map[string]string) // Reset previous values when header changes
}

// PrintRow prints the current values for all watches (only if changed)
func (s *DebugState) PrintRow(data telemetry.Snapshot) {
	if len(s.watches) == 0 {
		return
	}

	if !s.headerPrinted {
		s.PrintHeader()
	}

	// Build row and check for changes
	parts := make([]string, 0, len(s.watches))
	anyChanged := false
	newValues := make(map[string]string, len(s.watches))

	for i, w := range s.watches {
		value := w.GetValue(data)
		key := w.String()
		newValues[key] = value

		width := s.columnWidths[i]
		if len(value) > width {
			width = len(value)
			s.columnWidths[i] = width
		}

		// Check if this value changed
		prevValue, hasPrev := s.prevValues[key]
		changed := !hasPrev || prevValue != value
		if changed {
			anyChanged = true
			// Highlight changed value in yellow
			parts = append(parts, fmt.Sprintf("%s%*s%s", ansiYellow, width, value, ansiReset))
		} else {
			parts = append(parts, fmt.Sprintf("%*s", width, value))
		}
	}

	// Only print if at least one value changed
	if anyChanged {
		s.print("%s", strings.Join(parts, " | "))
		s.prevValues = newValues
	}
}

// sendCommand forwards a control command without blocking the console
func (s *DebugState) sendCommand(cmd Command) {
	select {
	case s.commands <- cmd:
		log.Printf("Sent %s to control loop", cmd)
	default:
		log.Printf("Control loop busy, dropped %s", cmd)
	}
}

// parseWatchSpec parses watch command arguments into a WatchSpec
func parseWatchSpec(args []string) (*WatchSpec, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("usage: watch <field> [-m <1|5|15>]")
	}

	spec := &WatchSpec{Field: args[0]}
	if _, ok := debugFields[spec.Field]; !ok {
		return nil, fmt.Errorf("unknown field: %s (try 'list')", spec.Field)
	}

	// Parse optional -m flag
	for i := 1; i < len(args); i++ {
		switch args[i] {
		case "-m":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("-m requires a value (1, 5, or 15)")
			}
			i++
			m, err := strconv.Atoi(args[i])
			if err != nil || (m != 1 && m != 5 && m != 15) {
				return nil, fmt.Errorf("-m must be 1, 5, or 15")
			}
			if spec.Field != "value" {
				return nil, fmt.Errorf("-m only applies to value")
			}
			spec.Minutes = m
		default:
			return nil, fmt.Errorf("unknown option: %s", args[i])
		}
	}

	return spec, nil
}

// handleDebugCommand processes a debug command
func handleDebugCommand(cmd string, state *DebugState) {
	parts := strings.Fields(cmd)
	if len(parts) == 0 {
		return
	}

	switch parts[0] {
	case "watch":
		spec, err := parseWatchSpec(parts[1:])
		if err != nil {
			log.Printf("Error: %v", err)
			return
		}
		state.AddWatch(*spec)

	case "unwatch":
		if len(parts) < 2 {
			log.Println("Usage: unwatch <field> [-m <minutes>] | unwatch --all")
			return
		}
		if parts[1] == "--all" {
			state.RemoveAll()
			return
		}
		// Try to parse as full spec
		spec, err := parseWatchSpec(parts[1:])
		if err != nil {
			log.Printf("Error: %v", err)
			return
		}
		// If no -m specified, use fuzzy match
		if spec.Minutes == 0 {
			state.RemoveWatchFuzzy(spec.Field)
		} else if !state.RemoveWatch(*spec) {
			log.Printf("No watch found for: %s", spec.String())
		}

	case "list", "status":
		state.ListFields()

	case "history":
		state.PrintHistory()

	case "scan":
		state.sendCommand(CommandRescan)

	case "pause":
		state.sendCommand(CommandDisable)

	case "resume":
		state.sendCommand(CommandEnable)

	case "help":
		fmt.Println("Commands:")
		fmt.Println("  list                    - List all fields with current values")
		fmt.Println("  watch <field>           - Watch current value")
		fmt.Println("  watch value -m <1|5|15> - Watch median power over a window")
		fmt.Println("  unwatch <field>         - Remove watch (exact or fuzzy match)")
		fmt.Println("  unwatch value -m 15     - Remove specific watch")
		fmt.Println("  unwatch --all           - Remove all watches")
		fmt.Println("  history                 - Show recent hill-climb decisions")
		fmt.Println("  scan                    - Rescan on the next control loop pass")
		fmt.Println("  pause                   - Disable tracking and release the actuator")
		fmt.Println("  resume                  - Enable tracking (starts with a scan)")
		fmt.Println("  help                    - Show this help")

	default:
		log.Printf("Unknown command: %s (try 'help')", parts[0])
	}
}

// readlineLoop runs the readline loop, sending commands to the channel
func readlineLoop(
	ctx context.Context,
	cancel context.CancelFunc,
	rl *readline.Instance,
	commandChan chan<- string,
) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			cancel() // Ctrl+C pressed, shutdown the app
			return
		}
		if err != nil {
			return // EOF or other error
		}
		line = strings.TrimSpace(line)
		if line != "" {
			commandChan <- line
		}
	}
}

// getHistoryFilePath returns the path for debug history file
func getHistoryFilePath() string {
	cacheDir := os.Getenv("XDG_CACHE_HOME")
	if cacheDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "" // No history if we can't find home
		}
		cacheDir = filepath.Join(home, ".cache")
	}
	trackerCache := filepath.Join(cacheDir, "suntracker")
	// Create directory if it doesn't exist
	_ = os.MkdirAll(trackerCache, 0750)
	return filepath.Join(trackerCache, "debug_history")
}

// debugWorker provides interactive introspection of tracker snapshots
func debugWorker(ctx context.Context, cancel context.CancelFunc, dataChan <-chan telemetry.Snapshot, cmdChan chan<- Command) {
	// Create readline instance with prompt and persistent history
	rl, err := readline.NewEx(&readline.Config{
		Prompt:      "> ",
		HistoryFile: getHistoryFilePath(),
	})
	if err != nil {
		log.Printf("Debug worker: readline init failed: %v", err)
		return
	}
	defer func() {
		_ = rl.Close()
		rlWriter.rl = nil // Clear readline reference on exit
	}()

	// Redirect log output through readline-aware writer
	rlWriter.rl = rl
	log.SetOutput(rlWriter)

	log.Println("Debug worker started (type 'help' for commands)")

	commandChan := make(chan string, 10)
	state := NewDebugState(cmdChan)
	state.SetReadline(rl)

	go readlineLoop(ctx, cancel, rl, commandChan)

	for {
		select {
		case cmd := <-commandChan:
			handleDebugCommand(cmd, state)
		case data := <-dataChan:
			state.UpdateData(data)
			if len(state.watches) > 0 {
				state.PrintRow(data)
			}
		case <-ctx.Done():
			log.Println("Debug worker stopped")
			return
		}
	}
}
