package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/aixgo-dev/nutrilog/internal/bot"
	"github.com/aixgo-dev/nutrilog/pkg/dateparse"
	"github.com/aixgo-dev/nutrilog/pkg/line"
	"github.com/aixgo-dev/nutrilog/pkg/session"
	"github.com/peterh/liner"
	"github.com/spf13/cobra"
)

const chatUserID = "console"

const chatHelp = `Commands:
  /image <path>   send a photo
  /help           show this help
  /quit           leave
Anything else is sent as a text message. Start with 分析熱量 or 運動記錄.`

func newChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the bot from the terminal",
		Long: `Runs the dialog locally with a terminal in place of the chat
platform. Records go to an in-memory store unless --store is given.`,
		RunE: runChat,
	}
	cmd.Flags().String("provider", "mock", "Estimator provider (gemini, openai, mock)")
	cmd.Flags().String("store", "memory", "Record store backend (memory, redis, firestore)")
	cmd.Flags().String("name", "", "Display name used for records")
	return cmd
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}
	cfg.Estimator.Provider, _ = cmd.Flags().GetString("provider")
	cfg.Store.Backend, _ = cmd.Flags().GetString("store")
	if cfg.Store.DietCollection == "" {
		cfg.Store.DietCollection = "diet"
	}
	if cfg.Store.ExerciseCollection == "" {
		cfg.Store.ExerciseCollection = "exercise"
	}
	if err := cfg.ValidateStore(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx := cmd.Context()
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	est, err := newEstimator(ctx, cfg)
	if err != nil {
		return err
	}

	name, _ := cmd.Flags().GetString("name")
	console := newConsoleMessenger(cmd.OutOrStdout(), name)

	sessions := session.NewManager(session.WithTTL(cfg.Session.TTL))
	defer sessions.Close()

	b, err := bot.New(bot.Config{
		Sessions:    sessions,
		Messenger:   console,
		Estimator:   est,
		Store:       store,
		Collections: collections(cfg),
		Dates:       dateparse.New(dateparse.WithLocation(cfg.Location())),
		AckDelay:    cfg.Session.AckDelay,
		Logger:      log,
	})
	if err != nil {
		return err
	}
	defer b.Close()

	state := liner.NewLiner()
	defer state.Close()
	state.SetCtrlCAborts(true)

	fmt.Fprintln(cmd.OutOrStdout(), chatHelp)
	for {
		input, err := state.Prompt("> ")
		if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		state.AppendHistory(input)

		ev, quit := console.event(input)
		if quit {
			return nil
		}
		if ev != nil {
			b.Handle(ctx, *ev)
		}
	}
}

// consoleMessenger prints bot messages to a terminal and serves images
// from local files.
type consoleMessenger struct {
	mu   sync.Mutex
	out  io.Writer
	name string
	seq  int
}

func newConsoleMessenger(out io.Writer, name string) *consoleMessenger {
	return &consoleMessenger{out: out, name: name}
}

// event turns one input line into an event. It reports quit for /quit.
func (c *consoleMessenger) event(input string) (*bot.Event, bool) {
	c.mu.Lock()
	c.seq++
	token := fmt.Sprintf("console-%d", c.seq)
	c.mu.Unlock()

	cmd, arg, _ := strings.Cut(input, " ")
	switch cmd {
	case "/quit", "/exit":
		return nil, true
	case "/help":
		c.print(chatHelp)
		return nil, false
	case "/image":
		path := strings.TrimSpace(arg)
		if path == "" {
			c.print("usage: /image <path>")
			return nil, false
		}
		return &bot.Event{Kind: bot.EventImage, UserID: chatUserID, ReplyToken: token, MessageID: path}, false
	default:
		return &bot.Event{Kind: bot.EventText, UserID: chatUserID, ReplyToken: token, Text: input}, false
	}
}

func (c *consoleMessenger) print(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, text)
}

func (c *consoleMessenger) Reply(ctx context.Context, replyToken, text string) error {
	c.print("🐱 " + text)
	return nil
}

func (c *consoleMessenger) Push(ctx context.Context, userID, text string) error {
	c.print("🐱 " + text)
	return nil
}

func (c *consoleMessenger) DisplayName(ctx context.Context, userID string) (string, error) {
	if c.name != "" {
		return c.name, nil
	}
	if u := os.Getenv("USER"); u != "" {
		return u, nil
	}
	return "", errors.New("no display name")
}

// Content reads the image at path messageID.
func (c *consoleMessenger) Content(ctx context.Context, messageID string) ([]byte, error) {
	info, err := os.Stat(messageID)
	if err != nil {
		return nil, err
	}
	if info.Size() > line.MaxContentBytes {
		return nil, fmt.Errorf("image %s exceeds %d bytes", messageID, line.MaxContentBytes)
	}
	return os.ReadFile(messageID)
}

var _ bot.Messenger = (*consoleMessenger)(nil)
