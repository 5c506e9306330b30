package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/hrygo/divinechat/ai/chat"
	"github.com/hrygo/divinechat/client"
	"github.com/hrygo/divinechat/internal/version"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with a running divinechat server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		serverURL, _ := cmd.Flags().GetString("server")
		token, _ := cmd.Flags().GetString("token")
		conversationID, _ := cmd.Flags().GetString("conversation")
		if token == "" {
			token = os.Getenv("DIVINECHAT_TOKEN")
		}
		if token == "" {
			return errors.New("a token is required, mint one with `divinechat token --owner <id>`")
		}

		r := &repl{
			client: client.New(serverURL, token, nil),
			out:    cmd.OutOrStdout(),
		}
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		checkServer(ctx, r.client, r.out)
		return r.run(ctx, conversationID)
	},
}

func init() {
	chatCmd.Flags().String("server", "http://localhost:28082", "server base URL")
	chatCmd.Flags().String("token", "", "bearer token (default $DIVINECHAT_TOKEN)")
	chatCmd.Flags().String("conversation", "", "conversation id to resume")
}

type repl struct {
	client  *client.Client
	reducer *client.Reducer
	out     io.Writer
}

func (r *repl) run(ctx context.Context, conversationID string) error {
	if err := r.open(ctx, conversationID); err != nil {
		return err
	}

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	historyFile := chatHistoryFile()
	if f, err := os.Open(historyFile); err == nil {
		_, _ = line.ReadHistory(f)
		f.Close()
	}
	defer func() {
		if f, err := os.OpenFile(historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600); err == nil {
			_, _ = line.WriteHistory(f)
			f.Close()
		}
	}()

	fmt.Fprintln(r.out, "Type a message, or /help for commands.")
	for {
		input, err := line.Prompt("you> ")
		if err != nil {
			// Ctrl+C, Ctrl+D or a closed terminal.
			fmt.Fprintln(r.out)
			return nil
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		name, arg, isCommand := parseCommand(input)
		if !isCommand {
			r.exchange(ctx, func(ctx context.Context, opts client.ExchangeOptions) error {
				return r.client.Exchange(ctx, r.reducer, input, opts)
			})
			continue
		}

		switch name {
		case "quit", "exit":
			return nil
		case "help":
			fmt.Fprintln(r.out, "/new  start a new conversation\n/list  list conversations\n/open <id>  switch conversation\n/regen  regenerate the last reply\n/edit <index> <text>  edit a message and regenerate\n/quit  leave")
		case "new":
			r.reducer = client.NewReducer("", "", nil)
			fmt.Fprintln(r.out, "(new conversation)")
		case "list":
			r.list(ctx)
		case "open":
			if err := r.open(ctx, arg); err != nil {
				fmt.Fprintln(r.out, "error:", err)
			}
		case "regen":
			r.exchange(ctx, func(ctx context.Context, opts client.ExchangeOptions) error {
				return r.client.Regenerate(ctx, r.reducer, opts)
			})
		case "edit":
			index, text, err := parseEdit(arg)
			if err != nil {
				fmt.Fprintln(r.out, "error:", err)
				continue
			}
			r.exchange(ctx, func(ctx context.Context, opts client.ExchangeOptions) error {
				return r.client.Edit(ctx, r.reducer, index, text, opts)
			})
		default:
			fmt.Fprintf(r.out, "unknown command /%s\n", name)
		}
	}
}

// checkServer warns when the server is unreachable or reports a version whose
// event stream this client may not understand. Neither stops the REPL.
func checkServer(ctx context.Context, c *client.Client, out io.Writer) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	health, err := c.Health(ctx)
	if err != nil {
		fmt.Fprintln(out, "warning: server health check failed:", err)
		return
	}
	if !version.IsCompatible(health.Version) {
		fmt.Fprintf(out, "warning: server version %q may not be compatible with this client (%s)\n", health.Version, version.Version)
	}
}

// open loads a conversation, or starts an empty one when id is blank.
func (r *repl) open(ctx context.Context, id string) error {
	if id == "" {
		r.reducer = client.NewReducer("", "", nil)
		return nil
	}
	conversation, err := r.client.Get(ctx, id)
	if err != nil {
		return err
	}
	r.reducer = client.NewReducer(conversation.ID, conversation.Title, conversation.Messages)
	fmt.Fprintf(r.out, "(%s: %d messages)\n", conversation.Title, len(conversation.Messages))
	return nil
}

func (r *repl) list(ctx context.Context) {
	list, err := r.client.List(ctx)
	if err != nil {
		fmt.Fprintln(r.out, "error:", err)
		return
	}
	if len(list) == 0 {
		fmt.Fprintln(r.out, "(no conversations)")
		return
	}
	for _, s := range list {
		fmt.Fprintf(r.out, "%s  %s  %s\n", s.ID, s.UpdatedAt.Local().Format("2006-01-02 15:04"), s.Title)
	}
}

// exchange runs one exchange, printing chunks as they arrive. Ctrl+C only
// stops printing; the server still records the reply.
func (r *repl) exchange(ctx context.Context, do func(context.Context, client.ExchangeOptions) error) {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	fmt.Fprint(r.out, "assistant> ")
	err := do(ctx, client.ExchangeOptions{OnEvent: r.printEvent})
	fmt.Fprintln(r.out)
	if err != nil {
		fmt.Fprintln(r.out, "error:", err)
	}
}

func (r *repl) printEvent(event chat.Event) {
	switch event.Type {
	case chat.EventChunk:
		fmt.Fprint(r.out, event.Content)
	case chat.EventComplete:
		if event.ChatTitle != "" {
			fmt.Fprintf(r.out, "\n(%s)", event.ChatTitle)
		}
	case chat.EventError:
		if event.Message != nil {
			fmt.Fprint(r.out, event.Message.Content)
		}
		fmt.Fprintf(r.out, "\n(failed: %s)", event.Error)
	}
}

// parseCommand splits "/name arg..." input.
func parseCommand(input string) (name, arg string, ok bool) {
	if !strings.HasPrefix(input, "/") {
		return "", "", false
	}
	name, arg, _ = strings.Cut(strings.TrimPrefix(input, "/"), " ")
	return strings.ToLower(name), strings.TrimSpace(arg), true
}

func parseEdit(arg string) (int, string, error) {
	raw, text, _ := strings.Cut(arg, " ")
	index, err := strconv.Atoi(raw)
	if err != nil {
		return 0, "", errors.New("usage: /edit <index> <text>")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, "", errors.New("usage: /edit <index> <text>")
	}
	return index, text, nil
}

func chatHistoryFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	dir = filepath.Join(dir, "divinechat")
	_ = os.MkdirAll(dir, 0700)
	return filepath.Join(dir, "chat_history")
}
