package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tensorleaf/go-hdf5/hdf5"
)

type objectRow struct {
	Path   string   `json:"path" yaml:"path"`
	Kind   string   `json:"kind" yaml:"kind"`
	Type   string   `json:"type,omitempty" yaml:"type,omitempty"`
	Layout string   `json:"layout,omitempty" yaml:"layout,omitempty"`
	Shape  []uint64 `json:"shape,omitempty" yaml:"shape,omitempty"`
	Chunks *uint64  `json:"chunks,omitempty" yaml:"chunks,omitempty"`
	Error  string   `json:"error,omitempty" yaml:"error,omitempty"`
}

func newLsCmd(c *config) *cobra.Command {
	return &cobra.Command{
		Use:   "ls FILE",
		Short: "List the groups and datasets of a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := hdf5.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			c.log.Debug("opened file", zap.String("file", args[0]), zap.Int("superblock", f.Version()))

			rows, err := listObjects(f)
			if err != nil {
				return err
			}
			return lsTable(rows).write(cmd.OutOrStdout(), c.format())
		},
	}
}

func listObjects(f *hdf5.File) ([]objectRow, error) {
	var rows []objectRow
	err := hdf5.Walk(f.Root(), func(path string, obj interface{}, err error) error {
		if err != nil {
			rows = append(rows, objectRow{Path: path, Kind: "?", Error: err.Error()})
			return nil
		}
		switch o := obj.(type) {
		case *hdf5.Group:
			rows = append(rows, objectRow{Path: path, Kind: "group"})
		case *hdf5.Dataset:
			row := objectRow{
				Path:   path,
				Kind:   "dataset",
				Type:   o.Datatype().String(),
				Layout: o.Layout(),
				Shape:  o.Shape(),
			}
			if n, ok := o.NumChunks(); ok {
				row.Chunks = &n
			}
			rows = append(rows, row)
		}
		return nil
	})
	return rows, err
}

func lsTable(rows []objectRow) *table {
	t := &table{header: []string{"PATH", "KIND", "TYPE", "LAYOUT", "SHAPE", "CHUNKS"}, value: rows}
	for _, r := range rows {
		chunks := "-"
		if r.Chunks != nil {
			chunks = fmt.Sprint(*r.Chunks)
		}
		if r.Error != "" {
			t.rows = append(t.rows, []string{r.Path, r.Kind, r.Error, "", "", ""})
			continue
		}
		kind, typ, layout := r.Kind, r.Type, r.Layout
		if typ == "" {
			typ = "-"
		}
		if layout == "" {
			layout = "-"
		}
		t.rows = append(t.rows, []string{r.Path, kind, typ, layout, dims(r.Shape), chunks})
	}
	return t
}
