package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"image-tagger/internal/vision"
)

func newTagsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tags <description>",
		Short: "Print the tags that would be extracted from a description",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return printTags(cmd.OutOrStdout(), strings.Join(args, " "))
		},
	}
}

func printTags(out io.Writer, description string) error {
	tags := vision.ExtractTags(description)
	if len(tags) == 0 {
		_, err := fmt.Fprintln(out, "(no tags)")
		return err
	}
	_, err := fmt.Fprintln(out, strings.Join(tags, ", "))
	return err
}
