package main

import (
	"fmt"

	"github.com/edgeflare/magicapi/pkg/dal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var initdbCmd = &cobra.Command{
	Use:   "initdb",
	Short: "Drop and recreate the storage of every resource",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		migrator, ok := a.backend.(dal.Migrator)
		if !ok {
			return fmt.Errorf("backend %s cannot create tables", a.backend.Name())
		}
		models, err := a.models.Models()
		if err != nil {
			return err
		}
		if err := migrator.DropTables(ctx, models...); err != nil {
			return err
		}
		if err := migrator.CreateTables(ctx, models...); err != nil {
			return err
		}
		logger.Info("initialized database", zap.Int("tables", len(models)))
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:     "import [resource...]",
	Aliases: []string{"importdata"},
	Short:   "Load resource data into the backend",
	Long:    `Load the data of the named resources, or of every resource, into the backend. Existing rows are kept.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		models, err := a.selectModels(args)
		if err != nil {
			return err
		}
		return a.models.Populate(ctx, models...)
	},
}
