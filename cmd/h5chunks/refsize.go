package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tensorleaf/go-hdf5/hdf5"
)

type refRow struct {
	Kind string `json:"kind" yaml:"kind"`
	Size int    `json:"size" yaml:"size"`
}

func newRefSizeCmd(c *config) *cobra.Command {
	return &cobra.Command{
		Use:   "refsize",
		Short: "Print the encoded size of each reference kind",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			kinds := []hdf5.Reference{hdf5.RefObject, hdf5.RefRegion, hdf5.RefStd}
			rows := make([]refRow, len(kinds))
			t := &table{header: []string{"KIND", "SIZE"}, value: rows}
			for i, k := range kinds {
				rows[i] = refRow{Kind: k.String(), Size: k.Size()}
				t.rows = append(t.rows, []string{k.String(), fmt.Sprint(k.Size())})
			}
			return t.write(cmd.OutOrStdout(), c.format())
		},
	}
}
