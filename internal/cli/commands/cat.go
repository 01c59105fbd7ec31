package commands

import (
	"io"

	"github.com/spf13/cobra"
)

func newCatCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "cat IMAGE PATH...",
		Short: "Print files of a volume",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := a.openVolume(args[0])
			if err != nil {
				return err
			}
			defer v.Close()

			for _, name := range args[1:] {
				file, err := v.Open(name)
				if err != nil {
					return err
				}

				_, err = io.Copy(cmd.OutOrStdout(), file)
				file.Close()
				if err != nil {
					return err
				}
			}
			return nil
		},
	}
}
