// ABOUTME: Renders a post file and checks it against the configured length limit
// ABOUTME: Works offline; the config file is only read for preview.max_length

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/coven-compose/internal/config"
	"github.com/2389/coven-compose/internal/preview"
)

var (
	previewHTML      bool
	previewMaxLength int
)

var previewCmd = &cobra.Command{
	Use:   "preview [post-file]",
	Short: "Render a post and check its length",
	Long:  "Render a markdown post (from a file, or stdin when no file is given) and report its visible length.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runPreview,
}

func init() {
	rootCmd.AddCommand(previewCmd)
	previewCmd.Flags().BoolVar(&previewHTML, "html", false, "print the rendered HTML")
	previewCmd.Flags().IntVar(&previewMaxLength, "max-length", -1, "length limit, overrides preview.max_length (0 for none)")
}

func runPreview(_ *cobra.Command, args []string) error {
	var data []byte
	var err error
	if len(args) == 1 {
		data, err = os.ReadFile(args[0])
	} else {
		data, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		return fmt.Errorf("reading post: %w", err)
	}

	limit := previewMaxLength
	if limit < 0 {
		limit = configuredMaxLength()
	}

	p, err := preview.NewRenderer(limit).Render(string(data))
	if err != nil {
		return err
	}
	printPreview(p, previewHTML)
	if p.Overflow() > 0 {
		return fmt.Errorf("post is %d characters over the limit", p.Overflow())
	}
	return nil
}

// configuredMaxLength reads preview.max_length without requiring a valid server config.
func configuredMaxLength() int {
	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Read(path)
	if err != nil {
		return config.Default().Preview.MaxLength
	}
	return cfg.Preview.MaxLength
}

func printPreview(p *preview.Preview, html bool) {
	if html {
		fmt.Print(p.HTML)
	} else {
		fmt.Println(p.Text)
	}

	gray := color.New(color.FgHiBlack)
	switch {
	case p.Limit <= 0:
		gray.Printf("%d characters\n", p.Length)
	case p.Overflow() > 0:
		color.New(color.FgRed, color.Bold).Printf("%d/%d characters, %d over\n", p.Length, p.Limit, p.Overflow())
	default:
		color.New(color.FgGreen).Printf("%d/%d characters\n", p.Length, p.Limit)
	}
}
