package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rohankatakam/graphinventory/internal/errors"
)

var (
	deleteParentType string
	deleteParentKey  string
	deleteEdge       string
)

var deleteCmd = &cobra.Command{
	Use:   "delete <type> <key>",
	Short: "Delete a resource and its edges",
	Args:  cobra.ExactArgs(2),
	RunE:  runDelete,
}

func init() {
	deleteCmd.Flags().StringVar(&deleteParentType, "parent-type", "", "parent type of a dependent resource")
	deleteCmd.Flags().StringVar(&deleteParentKey, "parent-key", "", "parent key of a dependent resource")
	deleteCmd.Flags().StringVar(&deleteEdge, "edge", "", "parent edge label (default BELONGS_TO)")
}

func runDelete(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	var parent *manifestParent
	if deleteParentType != "" || deleteParentKey != "" {
		if deleteParentType == "" || deleteParentKey == "" {
			return fmt.Errorf("--parent-type and --parent-key go together")
		}
		parent = &manifestParent{Type: deleteParentType, Key: deleteParentKey, Edge: deleteEdge}
	}

	rt, err := openRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close(ctx)

	res, err := rt.service.Delete(ctx, descriptorFor(args[0], args[1], parent), "")
	if err != nil {
		return fmt.Errorf("delete failed [%s]: %w", errors.CodeOf(err), err)
	}
	fmt.Printf("Deleted %s/%s (id=%s)\n", res.Type, res.Key, res.ID)
	return nil
}
