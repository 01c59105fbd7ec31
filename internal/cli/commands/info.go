package commands

import (
	"github.com/spf13/cobra"
)

func newInfoCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "info IMAGE",
		Short: "Show the geometry and label of a volume",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := a.openVolume(args[0])
			if err != nil {
				return err
			}
			defer v.Close()

			g := v.Geometry()
			s := v.Statfs()
			out := cmd.OutOrStdout()

			printf(out, "Label:           %s\n", v.Label())
			printf(out, "Type:            %s\n", v.FSType())
			printf(out, "Volume ID:       %08X\n", g.VolumeID)
			printf(out, "OEM name:        %s\n", g.OEMName)
			printf(out, "Bytes/sector:    %d\n", g.BytesPerSector)
			printf(out, "Cluster size:    %d\n", g.ClusterSize)
			printf(out, "Clusters:        %d\n", g.TotalClusters)
			printf(out, "Free clusters:   %d\n", s.FreeBlocks)
			printf(out, "FATs:            %d (active %d)\n", g.NumFATs, g.ActiveFAT)
			printf(out, "Root cluster:    %d\n", g.RootCluster)
			printf(out, "Size:            %d\n", g.Size())
			return nil
		},
	}
}
