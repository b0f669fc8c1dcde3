package chat

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/casualjim/tapes/provider"
	"github.com/charmbracelet/glamour"
	"github.com/fatih/color"
)

// REPL is an interactive terminal chat. "exit" or "quit" ends it, "/reset" clears the history.
type REPL struct {
	session *Session
	in      io.Reader
	out     io.Writer
	stream  bool
	glam    *glamour.TermRenderer
}

func NewREPL(session *Session, in io.Reader, out io.Writer, stream bool) (*REPL, error) {
	glam, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
	)
	if err != nil {
		return nil, fmt.Errorf("create markdown renderer: %w", err)
	}
	return &REPL{
		session: session,
		in:      in,
		out:     out,
		stream:  stream,
		glam:    glam,
	}, nil
}

func (r *REPL) Run(ctx context.Context) error {
	scanner := bufio.NewScanner(r.in)
	scanner.Split(bufio.ScanLines)

	for {
		fmt.Fprintf(r.out, "%s: ", color.CyanString("User"))
		if !scanner.Scan() {
			fmt.Fprintln(r.out, "Exiting...")
			return scanner.Err()
		}

		input := strings.TrimSpace(scanner.Text())
		switch {
		case input == "":
			continue
		case strings.EqualFold(input, "exit"), strings.EqualFold(input, "quit"):
			return nil
		case input == "/reset":
			r.session.Reset()
			fmt.Fprintln(r.out, color.YellowString("history cleared"))
			continue
		}

		if err := r.turn(ctx, input); err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			fmt.Fprintf(r.out, "%s: %v\n", color.RedString("Error"), err)
		}
		fmt.Fprintln(r.out)
	}
}

func (r *REPL) turn(ctx context.Context, input string) error {
	var streamed bool
	onEvent := func(ev provider.StreamEvent) {
		c, ok := ev.(provider.Chunk)
		if !ok || c.Content == "" {
			return
		}
		if !streamed {
			streamed = true
			fmt.Fprint(r.out, color.MagentaString("Assistant")+": ")
		}
		fmt.Fprint(r.out, c.Content)
	}

	reply, err := r.session.Send(ctx, input, r.stream, onEvent)
	if err != nil {
		if streamed {
			fmt.Fprintln(r.out)
		}
		return err
	}
	if streamed {
		fmt.Fprintln(r.out)
		return nil
	}

	fmt.Fprint(r.out, color.MagentaString("Assistant")+": ")
	out, err := r.glam.Render(reply.Content)
	if err != nil {
		out = reply.Content
	}
	fmt.Fprintln(r.out, out)
	return nil
}
