package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/nyengine/nyengine/internal/scripting"
	"github.com/spf13/cobra"
)

func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check [level...]",
		Short: "Syntax-check level scripts without running them",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			defer log.Sync()

			levels := args
			if len(levels) == 0 {
				if levels, err = listLevels(cfg.Script.Dir); err != nil {
					return err
				}
			}

			failed := 0
			for _, level := range levels {
				printSection(level)
				base, err := scripting.DirSource(filepath.Join(cfg.Script.Dir, level))
				if err != nil {
					return err
				}
				var patch []scripting.Blob
				if cfg.Script.PatchDir != "" {
					if patch, err = scripting.DirSource(filepath.Join(cfg.Script.PatchDir, level)); err != nil {
						return err
					}
				}
				for _, b := range scripting.Overlay(base, patch) {
					if _, err := scripting.Compile(b); err != nil {
						printFail(err.Error())
						failed++
						continue
					}
					printOK(fmt.Sprintf("%s %s", b.Name, b.ShortDigest()))
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d scripts failed to compile", failed)
			}
			return nil
		},
	}
}

func listLevels(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list levels: %w", err)
	}
	var levels []string
	for _, e := range entries {
		if e.IsDir() {
			levels = append(levels, e.Name())
		}
	}
	return levels, nil
}
