// ABOUTME: One-shot selection edit of a post file
// ABOUTME: Streams the rewrite, writes the file back and optionally saves the draft

package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/coven-compose/internal/document"
)

var (
	editStart       int
	editEnd         int
	editInstruction string
	editPostID      string
	editSave        bool
	editDryRun      bool
)

var editCmd = &cobra.Command{
	Use:   "edit <post-file>",
	Short: "Rewrite part of a post with the assistant",
	Args:  cobra.ExactArgs(1),
	RunE:  runEdit,
}

func init() {
	rootCmd.AddCommand(editCmd)
	editCmd.Flags().IntVar(&editStart, "start", 0, "first character of the selection")
	editCmd.Flags().IntVar(&editEnd, "end", -1, "end of the selection, exclusive (default end of post)")
	editCmd.Flags().StringVarP(&editInstruction, "instruction", "i", "", "what to do with the selection")
	editCmd.Flags().StringVar(&editPostID, "post-id", "", "server id of the post")
	editCmd.Flags().BoolVar(&editSave, "save", false, "save the draft after editing")
	editCmd.Flags().BoolVar(&editDryRun, "dry-run", false, "print the result instead of writing the file")
	_ = editCmd.MarkFlagRequired("instruction")
}

func runEdit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	path := args[0]

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading post: %w", err)
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	doc := document.New(editPostID, string(data), nil, a.logger)
	s, err := a.newSession(doc, true)
	if err != nil {
		return err
	}
	defer s.Close()

	end := editEnd
	if end < 0 {
		end = len([]rune(doc.Content()))
	}

	edit, err := s.EditSelection(ctx, editStart, end, editInstruction)
	if err != nil {
		return err
	}
	res, err := edit.Wait()
	if err != nil {
		return fmt.Errorf("editing selection: %w", err)
	}

	if editDryRun {
		fmt.Println(doc.Content())
	} else {
		if err := os.WriteFile(path, []byte(doc.Content()), 0644); err != nil {
			return fmt.Errorf("writing post: %w", err)
		}
		color.Green("✓ Rewrote [%d,%d) of %s", editStart, end, path)
	}
	color.New(color.FgHiBlack).Printf("new selection [%d,%d): %s\n", res.Start, res.End, res.Replacement)

	if editSave {
		if err := s.SaveDraft(ctx); err != nil {
			return err
		}
		color.Green("✓ Draft saved (%s)", doc.ID())
	}
	return nil
}
