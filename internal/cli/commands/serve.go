package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aligator/rofat/internal/nfsserve"
)

func newServeNFSCommand(a *app) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve-nfs IMAGE",
		Short: "Export a volume read-only over NFSv3",
		Long: `Export a volume read-only over NFSv3 until interrupted.

Mount it for example with
  mount -t nfs -o vers=3,tcp,port=2049,mountport=2049,nolock 127.0.0.1:/ /mnt`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if listen == "" {
				listen = a.cfg.NFS.Listen
			}

			v, err := a.openVolume(args[0])
			if err != nil {
				return err
			}
			defer v.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			server := nfsserve.NewServer(v.Fs, nfsserve.Options{
				HandleCacheSize: a.cfg.NFS.HandleCacheSize,
				Logger:          a.log,
			})
			return server.ListenAndServe(ctx, listen)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "address to listen on (default from config, 127.0.0.1:2049)")
	return cmd
}
