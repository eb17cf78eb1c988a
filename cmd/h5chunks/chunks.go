package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tensorleaf/go-hdf5/hdf5"
)

type chunkRow struct {
	Index    uint64   `json:"index" yaml:"index"`
	Offset   []uint64 `json:"offset" yaml:"offset"`
	Mask     uint32   `json:"filter_mask" yaml:"filter_mask"`
	Disabled []int    `json:"disabled_filters,omitempty" yaml:"disabled_filters,omitempty"`
	Addr     uint64   `json:"addr" yaml:"addr"`
	Size     uint64   `json:"size" yaml:"size"`
}

func newChunksCmd(c *config) *cobra.Command {
	return &cobra.Command{
		Use:   "chunks FILE DATASET",
		Short: "Print the chunk table of a chunked dataset",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := hdf5.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			ds, err := f.OpenDataset(args[1])
			if err != nil {
				return err
			}
			rows, err := chunkRows(ds)
			if err != nil {
				return err
			}
			c.log.Debug("read chunk table", zap.String("dataset", ds.Path()), zap.Int("chunks", len(rows)))
			return chunksTable(rows).write(cmd.OutOrStdout(), c.format())
		},
	}
}

func chunkRows(ds *hdf5.Dataset) ([]chunkRow, error) {
	if !ds.IsChunked() {
		return nil, fmt.Errorf("%s: %w", ds.Path(), hdf5.ErrNotChunked)
	}
	rows := []chunkRow{}
	err := ds.VisitChunks(func(info hdf5.ChunkInfo) error {
		rows = append(rows, chunkRow{
			Index:    uint64(len(rows)),
			Offset:   info.Offset,
			Mask:     info.FilterMask,
			Disabled: info.DisabledFilters(),
			Addr:     info.Addr,
			Size:     info.Size,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ds.Path(), err)
	}
	return rows, nil
}

func chunksTable(rows []chunkRow) *table {
	t := &table{header: []string{"INDEX", "OFFSET", "MASK", "DISABLED", "ADDR", "SIZE"}, value: rows}
	for _, r := range rows {
		disabled := "-"
		if len(r.Disabled) > 0 {
			disabled = fmt.Sprint(r.Disabled)
		}
		t.rows = append(t.rows, []string{
			fmt.Sprint(r.Index),
			fmt.Sprint(r.Offset),
			fmt.Sprintf("%#x", r.Mask),
			disabled,
			fmt.Sprintf("%#x", r.Addr),
			fmt.Sprint(r.Size),
		})
	}
	return t
}
