package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Vasu1712/scenyx-securechat/internal/backend"
	"github.com/Vasu1712/scenyx-securechat/internal/crypto"
	"github.com/Vasu1712/scenyx-securechat/internal/keys"
	"github.com/Vasu1712/scenyx-securechat/internal/models"
	"github.com/Vasu1712/scenyx-securechat/internal/session"
	"github.com/Vasu1712/scenyx-securechat/internal/storage/memory"
)

var (
	chatID   string
	chatWith string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Open a conversation in the terminal",
	Long: `Open a conversation by id (--chat-id) or with a user found by email
(--with). Lines typed are sent as messages; commands start with a slash:

  /delete <id>        delete one of your messages
  /react <id> <emoji> toggle a reaction
  /voice <file>       send a file as a voice message
  /transcribe <id>    toggle the transcript of a voice message
  /speak <id> [file]  save a message as speech (default <id>.mp3)
  /suggest            print a suggested reply
  /reply              send a suggested reply
  /quit`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if chatID == "" && chatWith == "" {
			return errors.New("one of --chat-id or --with is required")
		}
		return runChat(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func init() {
	chatCmd.Flags().StringVar(&chatID, "chat-id", "", "conversation id")
	chatCmd.Flags().StringVar(&chatWith, "with", "", "email of the user to talk to")
	rootCmd.AddCommand(chatCmd)
}

func runChat(ctx context.Context, in io.Reader, out io.Writer) error {
	ident, err := session.IdentityFromToken(cfg.Token)
	if err != nil {
		return fmt.Errorf("CHAT_TOKEN: %w", err)
	}
	priv, err := crypto.LoadPrivateKeyFile(cfg.KeyFile)
	if err != nil {
		return fmt.Errorf("load %s: %w (run keygen first)", cfg.KeyFile, err)
	}
	api, err := backend.New(cfg.APIBase, cfg.Token, nil)
	if err != nil {
		return err
	}

	rec, err := findConversation(ctx, api, ident.UserID)
	if err != nil {
		return err
	}
	var dir keys.Directory = api
	if cfg.ValkeyAddr != "" {
		vd, err := keys.DialValkey(cfg.ValkeyAddr)
		if err != nil {
			return err
		}
		defer vd.Close()
		dir = vd
	}
	conv, err := keys.Resolve(ctx, rec, ident.UserID, priv, dir)
	if err != nil {
		return err
	}

	s := session.New(session.Options{
		Host:       cfg.Host,
		Identity:   ident,
		AudioMode:  cfg.AudioMode,
		TypingIdle: cfg.TypingIdle,
		Backend:    api,
		OnNotice: func(n models.Notice) {
			fmt.Fprintf(out, "* %s\n", n.Text)
		},
		OnTransportError: func(err error) {
			fmt.Fprintf(out, "* connection lost: %v\n", err)
		},
	})
	defer s.Close()
	watch(s, conv, out)

	if err := s.WatchPresence(ctx); err != nil {
		logrus.WithError(err).Warn("presence unavailable")
	}
	if err := s.Select(ctx, conv); err != nil {
		return err
	}
	fmt.Fprintf(out, "* talking to %s in %s\n", conv.Peer, conv.ChatID)

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/quit" {
			return nil
		}
		if err := command(ctx, s, line, out); err != nil {
			fmt.Fprintf(out, "* %v\n", err)
		}
	}
	return scanner.Err()
}

func findConversation(ctx context.Context, api *backend.Client, self string) (*models.ConversationRecord, error) {
	if chatWith != "" {
		users, err := api.SearchUsers(ctx, chatWith)
		if err != nil {
			return nil, err
		}
		for _, u := range users {
			if strings.EqualFold(u.Email, chatWith) && u.ID != self {
				return api.StartConversation(ctx, u.ID)
			}
		}
		return nil, fmt.Errorf("no user with email %s", chatWith)
	}
	recs, err := api.Conversations(ctx)
	if err != nil {
		return nil, err
	}
	for i := range recs {
		if recs[i].ChatID == chatID {
			return &recs[i], nil
		}
	}
	return nil, fmt.Errorf("conversation %s not found", chatID)
}

func watch(s *session.Session, conv models.Conversation, out io.Writer) {
	s.Store().Watch(func(ev memory.Event) {
		switch ev.Kind {
		case memory.EventAppended:
			printMessage(out, conv, ev.Message)
		case memory.EventBackfilled:
			for _, m := range s.Store().Messages() {
				printMessage(out, conv, m)
			}
		case memory.EventReaction:
			if ev.Value == "" {
				fmt.Fprintf(out, "* reaction on %s cleared\n", ev.ID)
				return
			}
			fmt.Fprintf(out, "* reaction on %s: %s\n", ev.ID, ev.Value)
		case memory.EventTranscription:
			if ev.Value != "" {
				fmt.Fprintf(out, "* transcript of %s: %s\n", ev.ID, ev.Value)
			}
		case memory.EventTyping:
			if ev.Typing {
				fmt.Fprintf(out, "* %s is typing\n", conv.Peer)
			}
		}
	})
	s.Presence().OnChange(func(userID string, online bool) {
		if userID != conv.Peer {
			return
		}
		state := "offline"
		if online {
			state = "online"
		}
		fmt.Fprintf(out, "* %s is %s\n", userID, state)
	})
}

func printMessage(out io.Writer, conv models.Conversation, m models.Message) {
	who := m.Sender
	if who == conv.Self {
		who = "you"
	}
	body := m.Text
	if m.Kind() == models.KindVoice {
		body = "[voice message]"
	}
	fmt.Fprintf(out, "[%s] %s %s: %s\n", m.ID, m.Timestamp.Format("15:04"), who, body)
}

func command(ctx context.Context, s *session.Session, line string, out io.Writer) error {
	if !strings.HasPrefix(line, "/") {
		s.Keystroke()
		return s.SendText(line)
	}
	fields := strings.Fields(line)
	switch fields[0] {
	case "/delete":
		if len(fields) != 2 {
			return errors.New("usage: /delete <id>")
		}
		return s.Delete(fields[1])
	case "/react":
		if len(fields) != 3 {
			return errors.New("usage: /react <id> <emoji>")
		}
		return s.React(fields[1], fields[2])
	case "/voice":
		if len(fields) != 2 {
			return errors.New("usage: /voice <file>")
		}
		return sendVoice(ctx, s, fields[1])
	case "/transcribe":
		if len(fields) != 2 {
			return errors.New("usage: /transcribe <id>")
		}
		_, err := s.Transcribe(ctx, fields[1])
		return err
	case "/speak":
		if len(fields) < 2 || len(fields) > 3 {
			return errors.New("usage: /speak <id> [file]")
		}
		audio, _, err := s.Speak(ctx, fields[1])
		if err != nil {
			return err
		}
		file := fields[1] + ".mp3"
		if len(fields) == 3 {
			file = fields[2]
		}
		if err := os.WriteFile(file, audio, 0o600); err != nil {
			return err
		}
		fmt.Fprintf(out, "* speech saved to %s\n", file)
		return nil
	case "/suggest", "/reply":
		reply, err := s.AutoReply(ctx)
		if err != nil {
			return err
		}
		if fields[0] == "/suggest" {
			fmt.Fprintf(out, "* suggestion: %s\n", reply)
			return nil
		}
		return s.SendText(reply)
	}
	return fmt.Errorf("unknown command %s", fields[0])
}

func sendVoice(ctx context.Context, s *session.Session, file string) error {
	rec := s.Recorder()
	if err := rec.Start(ctx); err != nil {
		return err
	}
	raw, err := os.ReadFile(file)
	rec.Stop()
	if err != nil {
		return err
	}
	return s.SendVoice(raw)
}
