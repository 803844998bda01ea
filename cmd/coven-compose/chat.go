// ABOUTME: Interactive chat command: streams assistant replies and applies tool edits to the post
// ABOUTME: Slash commands drive the post: /post, /write, /edit, /save, /preview, /timeline, /new

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/coven-compose/internal/conversation"
	"github.com/2389/coven-compose/internal/document"
	"github.com/2389/coven-compose/internal/session"
	"github.com/2389/coven-compose/internal/timeline"
)

var (
	chatPostFile       string
	chatPostID         string
	chatConversationID string
	chatEditMode       bool
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the assistant about a post",
	Args:  cobra.NoArgs,
	RunE:  runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringVar(&chatPostFile, "post-file", "", "start from the post in this file")
	chatCmd.Flags().StringVar(&chatPostID, "post-id", "", "server id of the post being edited")
	chatCmd.Flags().StringVar(&chatConversationID, "conversation", "", "resume this conversation")
	chatCmd.Flags().BoolVar(&chatEditMode, "edit-mode", false, "ask the assistant to revise rather than write from scratch")
}

func runChat(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	content := ""
	if chatPostFile != "" {
		data, err := os.ReadFile(chatPostFile)
		if err != nil {
			return fmt.Errorf("reading post: %w", err)
		}
		content = string(data)
	}

	doc := document.New(chatPostID, content, nil, a.logger)
	s, err := a.newSession(doc, chatEditMode)
	if err != nil {
		return err
	}
	defer s.Close()

	if chatConversationID != "" {
		if err := s.Load(ctx, chatConversationID); err != nil {
			return err
		}
		printTimeline(s.Timeline())
	}

	changes := s.Subscribe(ctx)
	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)

	cyan.Println("coven-compose " + version)
	gray.Println("Type a message, or /help for commands.")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		cyan.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			quit, err := runSlash(ctx, s, line)
			if err != nil {
				color.Red("%v", err)
			}
			if quit {
				return nil
			}
			continue
		}

		if err := sendAndRender(ctx, s, changes, line); err != nil {
			color.Red("%v", err)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// sendAndRender streams one reply to stdout as it arrives.
func sendAndRender(ctx context.Context, s *session.Session, changes <-chan conversation.Change, text string) error {
	convs := s.Conversations()
	before := 0
	if conv := convs.Active(); conv != nil {
		before = len(conv.Messages)
	}

	stream, err := s.Send(ctx, text)
	if errors.Is(err, session.ErrDuplicateSend) {
		return fmt.Errorf("already sent, waiting a moment before sending it again")
	}
	if err != nil {
		return err
	}

	printed := 0
	lastTool := ""
	render := func() {
		buf := convs.Buffer()
		if buf.ToolStatus != nil && buf.ToolStatus.Message != lastTool {
			lastTool = buf.ToolStatus.Message
			color.New(color.FgHiBlack).Printf("\n[%s] %s\n", buf.ToolStatus.Tool, buf.ToolStatus.Message)
		}
		if len(buf.Text) > printed {
			fmt.Print(buf.Text[printed:])
			printed = len(buf.Text)
		}
	}

	for done := false; !done; {
		select {
		case <-changes:
			render()
		case <-stream.Done():
			done = true
		}
	}

	// The last chunk may land after the final change hint was dropped
	if conv := convs.Active(); conv != nil && len(conv.Messages) > before+1 {
		reply := conv.Messages[len(conv.Messages)-1]
		if reply.Role == conversation.RoleAssistant && len(reply.Content) > printed {
			fmt.Print(reply.Content[printed:])
		}
	}
	fmt.Println()
	return nil
}

func runSlash(ctx context.Context, s *session.Session, line string) (bool, error) {
	name, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch name {
	case "/quit", "/exit":
		return true, nil

	case "/help":
		printChatHelp()

	case "/new":
		s.NewConversation()
		color.Green("Started a new conversation")

	case "/post":
		printPost(s)

	case "/write":
		if rest == "" {
			return false, fmt.Errorf("usage: /write <text>")
		}
		s.Edit(rest)
		printPost(s)

	case "/edit":
		return false, runSlashEdit(ctx, s, rest)

	case "/save":
		if err := s.SaveDraft(ctx); err != nil {
			return false, err
		}
		color.Green("Draft saved (%s)", s.Document().ID())

	case "/preview":
		p, err := s.Preview()
		if err != nil {
			return false, err
		}
		printPreview(p, false)

	case "/timeline":
		printTimeline(s.Timeline())

	default:
		return false, fmt.Errorf("unknown command %s, try /help", name)
	}
	return false, nil
}

// runSlashEdit handles "/edit <start> <end> <instruction>".
func runSlashEdit(ctx context.Context, s *session.Session, args string) error {
	fields := strings.SplitN(args, " ", 3)
	if len(fields) < 3 {
		return fmt.Errorf("usage: /edit <start> <end> <instruction>")
	}
	start, err := strconv.Atoi(fields[0])
	if err != nil {
		return fmt.Errorf("start: %w", err)
	}
	end, err := strconv.Atoi(fields[1])
	if err != nil {
		return fmt.Errorf("end: %w", err)
	}

	edit, err := s.EditSelection(ctx, start, end, fields[2])
	if err != nil {
		return err
	}
	res, err := edit.Wait()
	if err != nil {
		return err
	}
	printPost(s)
	color.New(color.FgHiBlack).Printf("selection is now [%d,%d)\n", res.Start, res.End)
	return nil
}

func printChatHelp() {
	yellow := color.New(color.FgYellow)
	lines := [][2]string{
		{"/post", "show the post"},
		{"/write <text>", "replace the post with your own text"},
		{"/edit <start> <end> <instr>", "rewrite characters [start,end) of the post"},
		{"/save", "save the draft"},
		{"/preview", "render the post and check its length"},
		{"/timeline", "show messages and research cards"},
		{"/new", "start a new conversation"},
		{"/quit", "leave"},
	}
	for _, l := range lines {
		yellow.Printf("  %-30s", l[0])
		fmt.Println(l[1])
	}
}

func printPost(s *session.Session) {
	snap := s.Document().Snapshot()
	gray := color.New(color.FgHiBlack)
	gray.Printf("── post %s (%s) ──\n", displayID(snap.ID), s.Autosave().Status())
	fmt.Println(snap.Content)
	gray.Println("──")
}

func printTimeline(entries []timeline.Entry) {
	gray := color.New(color.FgHiBlack)
	for _, e := range entries {
		ts := gray.Sprint(e.Timestamp.Local().Format("15:04"))
		switch e.Type {
		case timeline.EntryMessage:
			who := color.CyanString("you")
			if e.Message.Role == conversation.RoleAssistant {
				who = color.GreenString("assistant")
			}
			fmt.Printf("%s %s: %s\n", ts, who, e.Message.Content)
		case timeline.EntryCards:
			fmt.Printf("%s %s %q (%d cards)\n", ts, color.YellowString("research"), e.Cards.Query, len(e.Cards.Cards))
			for _, c := range e.Cards.Cards {
				gray.Printf("      - %s %s\n", c.Title, c.URL)
			}
		}
	}
}

// displayID renders a missing post id readably.
func displayID(id string) string {
	if id == "" {
		return "unsaved"
	}
	return id
}

