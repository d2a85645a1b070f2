package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/becomeliminal/travel-memory/config"
	"github.com/becomeliminal/travel-memory/engine"
)

func newChatCmd(load func() (*config.Config, error)) *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the assistant in the terminal",
		Long: `Chat with the assistant in the terminal.

Commands: /stats shows what is remembered, /forget wipes it, /quit exits.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			a, err := buildApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			return runChat(cmd.Context(), a.engine, userID, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&userID, "user", "u", "cli", "user id to chat as")
	return cmd
}

// runChat reads one message per line from in until EOF or /quit.
func runChat(ctx context.Context, eng *engine.Engine, userID string, in io.Reader, out io.Writer) error {
	fmt.Fprintf(out, "travelmem chat as %q (provider %s). /stats, /forget, /quit\n", userID, eng.Provider())

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "\n> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())

		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/forget":
			if err := eng.Forget(ctx, userID); err != nil {
				fmt.Fprintln(out, "forget failed:", err)
				continue
			}
			fmt.Fprintln(out, "Memory wiped.")
			continue
		case "/stats":
			printStats(out, eng.Stats(ctx, userID))
			continue
		}

		fmt.Fprintln(out)
		reply, err := eng.ChatStream(ctx, userID, line, func(chunk string) {
			fmt.Fprint(out, chunk)
		})
		if err != nil {
			fmt.Fprintln(out, "Sorry, something went wrong. Please try again.", "("+err.Error()+")")
			continue
		}
		fmt.Fprintln(out)
		if len(reply.Suggestions) > 0 {
			fmt.Fprintln(out, "\nYou could ask:")
			for _, s := range reply.Suggestions {
				fmt.Fprintln(out, "  -", s)
			}
		}
	}
}

func printStats(out io.Writer, s engine.Stats) {
	fmt.Fprintf(out, "recent exchanges: %d\n", s.ShortTermTurns)
	fmt.Fprintf(out, "long-term turns:  %d\n", s.LongTermRecords)
	fmt.Fprintf(out, "conversations:    %d\n", s.Conversations)
	for _, cat := range s.Preferences.OrderedCategories() {
		fmt.Fprintf(out, "%s: %s\n", cat, strings.Join(s.Preferences[cat], ", "))
	}
}
