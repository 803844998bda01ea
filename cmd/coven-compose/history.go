// ABOUTME: Lists cached conversations or shows one conversation's timeline
// ABOUTME: Fetches from the server and falls back to the local cache

package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/coven-compose/internal/document"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history [conversation-id]",
	Short: "List cached conversations, or show one",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of conversations to list")
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if len(args) == 0 {
		if a.cache == nil {
			return fmt.Errorf("no local cache configured, set database.path or --db")
		}
		convs, err := a.cache.ListConversations(ctx, historyLimit)
		if err != nil {
			return err
		}
		if len(convs) == 0 {
			fmt.Println("No conversations yet.")
			return nil
		}
		cyan := color.New(color.FgCyan)
		gray := color.New(color.FgHiBlack)
		for _, c := range convs {
			cyan.Printf("%-40s", c.ID)
			fmt.Printf(" %s ", truncate(c.Title, 50))
			gray.Println(c.UpdatedAt.Local().Format("2006-01-02 15:04"))
		}
		return nil
	}

	s, err := a.newSession(document.New("", "", nil, a.logger), false)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.Load(ctx, args[0]); err != nil {
		return err
	}
	entries := s.Timeline()
	if len(entries) == 0 {
		fmt.Println("No messages yet.")
		return nil
	}
	printTimeline(entries)
	return nil
}

// truncate shortens s to maxLen runes with a trailing ellipsis.
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-3]) + "..."
}
