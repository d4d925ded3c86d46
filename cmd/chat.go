package cmd

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newChatCmd(v *viper.Viper, d deps) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive conversation (type exit to quit)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			router, cfg, err := newRouter(v, d)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			router.StartJanitor(ctx, cfg.Registry.JanitorInterval)

			user, conversation := v.GetString("user"), v.GetString("conversation")
			out := cmd.OutOrStdout()

			cyan := color.New(color.FgCyan)
			green := color.New(color.FgGreen)
			gray := color.New(color.FgHiBlack)

			gray.Fprintf(out, "session %s::%s, type exit to quit\n", user, conversation)

			scanner := bufio.NewScanner(cmd.InOrStdin())
			for {
				cyan.Fprint(out, "you> ")
				if !scanner.Scan() {
					fmt.Fprintln(out)
					return scanner.Err()
				}

				query := strings.TrimSpace(scanner.Text())
				switch strings.ToLower(query) {
				case "":
					continue
				case "exit", "quit":
					return nil
				}

				fragments, err := router.Query(ctx, user, conversation, query)
				if err != nil {
					return err
				}

				green.Fprint(out, "supervisor> ")
				for f := range fragments {
					fmt.Fprint(out, f)
				}
				fmt.Fprintln(out)
			}
		},
	}
}
