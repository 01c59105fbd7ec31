package commands

import (
	"github.com/spf13/cobra"

	"github.com/aligator/rofat/internal/fusefs"
)

func newMountCommand(a *app) *cobra.Command {
	var options []string

	cmd := &cobra.Command{
		Use:   "mount IMAGE MOUNTPOINT",
		Short: "Mount a volume read-only with FUSE",
		Long: `Mount a volume read-only with FUSE.

The command blocks until the filesystem is unmounted, for example with
fusermount -u MOUNTPOINT or by pressing Ctrl+C.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := a.openVolume(args[0])
			if err != nil {
				return err
			}
			defer v.Close()

			fs, err := fusefs.New(v.Fs, fusefs.Options{
				PathCacheSize: a.cfg.PathCacheSize,
				Logger:        a.log,
			})
			if err != nil {
				return err
			}

			return fusefs.Mount(fs, args[1], a.fuseOptions(options))
		},
	}

	cmd.Flags().StringSliceVarP(&options, "option", "o", nil, "additional FUSE mount options")
	return cmd
}

// fuseOptions merges the options of the config file with the ones given on the command line.
func (a *app) fuseOptions(extra []string) []string {
	options := append([]string{}, a.cfg.Fuse.Options...)
	if a.cfg.Fuse.AllowOther {
		options = append(options, "allow_other")
	}
	return append(options, extra...)
}
