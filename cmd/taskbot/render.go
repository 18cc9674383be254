package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"taskbot/internal/markup"
	"taskbot/internal/render"
)

func renderCmd() *cobra.Command {
	var file, task, question string
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Print the MarkdownV2 markup for an answer read from stdin or --file",
		Long: `Converts answer text into the MarkdownV2 markup the bot would send.
With --question the full response message is printed, otherwise only the
reflowed answer body.

Examples:
  echo "Prices:\n\n- BTC \$50,000" | taskbot render
  taskbot render --file answer.txt --task btc --question "BTC price?"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader = cmd.InOrStdin()
			if file != "" {
				f, err := os.Open(file)
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			data, err := io.ReadAll(in)
			if err != nil {
				return err
			}
			out := markup.Reflow(string(data))
			if question != "" {
				out = render.Response(task, question, string(data))
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), out)
			return err
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "read the answer from this file")
	cmd.Flags().StringVar(&task, "task", "", "task name for the response header")
	cmd.Flags().StringVar(&question, "question", "", "question for the response header")
	return cmd
}
