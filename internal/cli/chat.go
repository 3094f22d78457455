// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Line-mode chat for terminals where the full-screen UI is not
// wanted. Responses print as they stream; Ctrl-C stops the current response
// and Ctrl-C at the prompt exits.

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/peterh/liner"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jeranaias/streamchat/internal/config"
	"github.com/jeranaias/streamchat/internal/conversation"
	"github.com/jeranaias/streamchat/internal/events"
	"github.com/jeranaias/streamchat/internal/export"
	"github.com/jeranaias/streamchat/internal/logging"
	"github.com/jeranaias/streamchat/internal/stream"
	"github.com/jeranaias/streamchat/internal/util"
)

const (
	chatPrompt         = "me> "
	defaultHistoryShow = 5
	historyFileName    = "chat_history"
)

// statusPollInterval bounds how long respond waits when a lifecycle event
// never arrives.
var statusPollInterval = 250 * time.Millisecond

func newChatCommand(opts *globalOptions) *cobra.Command {
	var withHistory bool

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Line-mode chat",
		Long: `Chat one line at a time. Responses stream as they arrive.

Ctrl-C during a response stops it; Ctrl-C or Ctrl-D at the prompt exits.
Type /help for commands.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, opts, withHistory)
		},
	}
	cmd.Flags().BoolVar(&withHistory, "history", false, "start with generated history")
	return cmd
}

func runChat(cmd *cobra.Command, opts *globalOptions, withHistory bool) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM)
	defer stop()

	a, err := newApp(cmd, opts, logging.Quiet)
	if err != nil {
		return err
	}
	defer a.Close()

	if withHistory {
		if err := a.svc.Reset(ctx); err != nil {
			return err
		}
	}

	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	defer signal.Stop(interrupts)

	line := liner.NewLiner()
	line.SetCtrlCAborts(true)
	defer line.Close()

	historyFile := chatHistoryPath()
	if f, err := os.Open(historyFile); err == nil {
		_, _ = line.ReadHistory(f)
		f.Close()
	}
	defer saveChatHistory(line, historyFile)

	r := &repl{
		svc:        a.svc,
		bus:        a.bus,
		out:        cmd.OutOrStdout(),
		interrupts: interrupts,
		width:      GetTerminalWidth(),
		exportDir:  ".",
	}
	return r.run(ctx, line)
}

func chatHistoryPath() string {
	dir, err := config.Dir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, historyFileName)
}

func saveChatHistory(line *liner.State, path string) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return
	}
	defer f.Close()
	_, _ = line.WriteHistory(f)
}

// =============================================================================
// REPL
// =============================================================================

// lineReader is the part of liner.State the loop needs.
type lineReader interface {
	Prompt(prompt string) (string, error)
	AppendHistory(item string)
}

type subscriber interface {
	Subscribe(ctx context.Context) (<-chan events.Event, error)
}

type repl struct {
	svc        *conversation.Service
	bus        subscriber
	out        io.Writer
	interrupts <-chan os.Signal
	width      int
	exportDir  string
}

func (r *repl) run(ctx context.Context, in lineReader) error {
	r.printWelcome()
	for {
		input, err := in.Prompt(chatPrompt)
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Fprintln(r.out)
				r.printSummary()
				return nil
			}
			return errors.Wrap(err, "read input")
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		in.AppendHistory(input)

		if strings.EqualFold(input, "exit") || strings.EqualFold(input, "quit") {
			r.printSummary()
			return nil
		}

		var keepGoing bool
		if strings.HasPrefix(input, "/") {
			keepGoing, err = r.command(ctx, input)
		} else {
			keepGoing, err = true, r.send(ctx, input)
		}
		if err != nil {
			fmt.Fprintf(r.out, "%s %v\n", ErrorStyle.Render("[Error]"), err)
		}
		if !keepGoing {
			r.printSummary()
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// send submits input and prints the response as it streams.
func (r *repl) send(ctx context.Context, input string) error {
	return r.respond(ctx, func() (int, error) {
		return r.svc.Submit(ctx, input)
	})
}

// regenerate restreams the newest turn.
func (r *repl) regenerate(ctx context.Context) error {
	return r.respond(ctx, func() (int, error) {
		index := len(r.svc.Snapshot()) - 1
		return index, r.svc.RegenerateLast(ctx)
	})
}

// respond subscribes, runs start and follows the stream it began until the
// stream ends. An interrupt stops the stream. The service status is polled as
// well so a dropped lifecycle event cannot stall the prompt.
func (r *repl) respond(ctx context.Context, start func() (int, error)) error {
	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sub, err := r.bus.Subscribe(subCtx)
	if err != nil {
		return errors.Wrap(err, "subscribe to conversation events")
	}
	r.drainInterrupts()

	index, err := start()
	if err != nil {
		return err
	}
	session := r.svc.Status().Session

	fmt.Fprint(r.out, SpeakerStyle.Render("you: "))
	var p streamPrinter
	stopped, idle := false, 0
	poll := time.NewTicker(statusPollInterval)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			r.svc.Stop()
			fmt.Fprintln(r.out)
			return nil

		case <-r.interrupts:
			r.svc.Stop()
			stopped = true

		case <-poll.C:
			if st := r.svc.Status(); st.Generating && st.Session == session {
				idle = 0
				continue
			}
			// Give the lifecycle event one more interval to arrive.
			if idle++; idle < 2 {
				continue
			}
			if turn, ok := r.svc.Turn(index); ok {
				p.write(r.out, turn.You)
			}
			fmt.Fprintln(r.out)
			if stopped {
				fmt.Fprintln(r.out, WarningStyle.Render("[stopped]"))
			}
			return nil

		case ev, ok := <-sub:
			if !ok {
				fmt.Fprintln(r.out)
				return events.ErrClosed
			}
			if ev.Session != 0 && ev.Session != session {
				continue
			}
			switch ev.Kind {
			case events.TurnUpdated:
				if ev.Index != index {
					continue
				}
				if turn, ok := r.svc.Turn(index); ok {
					p.write(r.out, turn.You)
				}
			case events.StreamFinished:
				if turn, ok := r.svc.Turn(index); ok {
					p.write(r.out, turn.You)
				}
				fmt.Fprintln(r.out)
				if ev.Reason == stream.ReasonStopped {
					fmt.Fprintln(r.out, WarningStyle.Render("[stopped]"))
				}
				return nil
			case events.StreamFailed:
				fmt.Fprintln(r.out)
				return errors.New(ev.Error)
			}
		}
	}
}

func (r *repl) drainInterrupts() {
	for {
		select {
		case <-r.interrupts:
		default:
			return
		}
	}
}

// command runs a slash command. It returns false when the loop should end.
func (r *repl) command(ctx context.Context, input string) (bool, error) {
	fields := strings.Fields(input)
	switch strings.ToLower(fields[0]) {
	case "/quit", "/exit", "/q":
		return false, nil
	case "/help", "/?":
		r.printHelp()
	case "/regen", "/regenerate", "/r":
		return true, r.regenerate(ctx)
	case "/clear":
		r.svc.Clear()
		fmt.Fprintln(r.out, DimStyle.Render("conversation cleared"))
	case "/reset":
		if err := r.svc.Reset(ctx); err != nil {
			return true, err
		}
		fmt.Fprintln(r.out, DimStyle.Render(fmt.Sprintf("history loaded: %d turns", r.svc.Status().Turns)))
	case "/history", "/h":
		n := defaultHistoryShow
		if len(fields) > 1 {
			v, err := strconv.Atoi(fields[1])
			if err != nil || v <= 0 {
				return true, errors.Errorf("invalid count %q", fields[1])
			}
			n = v
		}
		r.printHistory(n)
	case "/status":
		r.printStatus()
	case "/export":
		format := "md"
		if len(fields) > 1 {
			format = fields[1]
		}
		return true, r.export(format)
	default:
		return true, errors.Errorf("unknown command %s (try /help)", fields[0])
	}
	return true, nil
}

// =============================================================================
// OUTPUT
// =============================================================================

// streamPrinter writes only the part of a growing text not yet printed.
type streamPrinter struct {
	printed string
}

func (p *streamPrinter) write(w io.Writer, text string) {
	if text == p.printed {
		return
	}
	if strings.HasPrefix(text, p.printed) {
		fmt.Fprint(w, text[len(p.printed):])
	} else {
		fmt.Fprint(w, "\n", text)
	}
	p.printed = text
}

func (r *repl) printWelcome() {
	fmt.Fprintln(r.out, TitleStyle.Render("streamchat"))
	fmt.Fprintln(r.out, DimStyle.Render("Type a message and press Enter. /help for commands, Ctrl-C stops a response."))
	fmt.Fprintln(r.out)
}

func (r *repl) printHelp() {
	fmt.Fprintln(r.out, TitleStyle.Render("Commands"))
	for _, c := range [][2]string{
		{"/regen", "regenerate the last response"},
		{"/clear", "clear the conversation"},
		{"/reset", "load generated history"},
		{"/history [n]", "show the last n turns"},
		{"/status", "show stream and conversation state"},
		{"/export [md|json]", "save the conversation to a file"},
		{"/quit", "exit"},
	} {
		fmt.Fprintf(r.out, "  %s %s\n", LabelStyle.Render(c[0]), ValueStyle.Render(c[1]))
	}
}

func (r *repl) printHistory(n int) {
	turns := r.svc.Snapshot()
	if len(turns) == 0 {
		fmt.Fprintln(r.out, DimStyle.Render("no messages yet"))
		return
	}
	start := max(0, len(turns)-n)
	width := max(MinTerminalWidth, r.width) - 10
	for i := start; i < len(turns); i++ {
		fmt.Fprintf(r.out, "%s me:  %s\n", DimStyle.Render(fmt.Sprintf("#%d", i)), util.Excerpt(turns[i].Me, width))
		fmt.Fprintf(r.out, "%s you: %s\n", DimStyle.Render(fmt.Sprintf("#%d", i)), util.Excerpt(turns[i].You, width))
	}
}

func (r *repl) printStatus() {
	st := r.svc.Status()
	fmt.Fprintf(r.out, "%s %s\n", LabelStyle.Render("generating"), ValueStyle.Render(strconv.FormatBool(st.Generating)))
	if st.Generating {
		fmt.Fprintf(r.out, "%s %s\n", LabelStyle.Render("turn"), ValueStyle.Render(strconv.Itoa(st.Turn)))
		fmt.Fprintf(r.out, "%s %s\n", LabelStyle.Render("delivered"), ValueStyle.Render(fmt.Sprintf("%d/%d words", st.Delivered, st.Total)))
	}
	fmt.Fprintf(r.out, "%s %s\n", LabelStyle.Render("turns"), ValueStyle.Render(strconv.Itoa(st.Turns)))
	fmt.Fprintf(r.out, "%s %s\n", LabelStyle.Render("version"), ValueStyle.Render(strconv.FormatUint(st.Version, 10)))
}

func (r *repl) export(format string) error {
	opts := &export.Options{OutputDir: r.exportDir, IncludeMetadata: true}
	exporter, err := export.ForFormat(format, opts)
	if err != nil {
		return err
	}
	path, err := export.ExportToFile(export.Conversation{
		Title: "streamchat conversation",
		Turns: r.svc.Snapshot(),
	}, exporter, opts)
	if err != nil {
		return err
	}
	fmt.Fprintln(r.out, DimStyle.Render("saved "+path))
	return nil
}

func (r *repl) printSummary() {
	conv := export.Conversation{Turns: r.svc.Snapshot()}
	fmt.Fprintln(r.out, DimStyle.Render(fmt.Sprintf("%d turns, %d words", len(conv.Turns), conv.Words())))
}
