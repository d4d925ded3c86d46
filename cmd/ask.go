package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newAskCmd(v *viper.Viper, d deps) *cobra.Command {
	return &cobra.Command{
		Use:   "ask <query>",
		Short: "Answer a single query and exit",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			router, _, err := newRouter(v, d)
			if err != nil {
				return err
			}

			fragments, err := router.Query(cmd.Context(), v.GetString("user"), v.GetString("conversation"), strings.Join(args, " "))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for f := range fragments {
				if _, err := fmt.Fprint(out, f); err != nil {
					return err
				}
			}
			_, err = fmt.Fprintln(out)
			return err
		},
	}
}
