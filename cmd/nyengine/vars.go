package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/nyengine/nyengine/internal/persist"
	"github.com/nyengine/nyengine/internal/vars"
	"github.com/spf13/cobra"
)

func varsCmd() *cobra.Command {
	var (
		withSaved    bool
		modifiedOnly bool
	)
	cmd := &cobra.Command{
		Use:   "vars",
		Short: "Print the var table built from the defaults file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			defer log.Sync()

			reg := vars.NewRegistry(0)
			if _, err := vars.LoadDefaults(cfg.Vars.DefaultsFile, reg); err != nil {
				return err
			}

			if withSaved {
				if !cfg.Database.Enabled {
					return fmt.Errorf("--saved needs [database] enabled")
				}
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				db, err := persist.Open(ctx, cfg.Database, log)
				if err != nil {
					return fmt.Errorf("database: %w", err)
				}
				defer db.Close()
				rows, err := persist.NewVarRepo(db).LoadAll(ctx)
				if err != nil {
					return fmt.Errorf("load vars: %w", err)
				}
				if _, err := persist.RestoreVars(reg, rows, log); err != nil {
					return err
				}
			}

			list := reg.Sorted()
			if modifiedOnly {
				list = reg.Modified()
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tVALUE\tDEFAULT\tFLAGS")
			for _, v := range list {
				fmt.Fprintf(w, "%s\t%q\t%q\t%s\n", v.Name(), v.String(), v.Default(), v.Flags())
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&withSaved, "saved", false, "Apply values saved in the database")
	cmd.Flags().BoolVar(&modifiedOnly, "modified", false, "Only list modified vars")
	return cmd
}
