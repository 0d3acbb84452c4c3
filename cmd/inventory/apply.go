package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/rohankatakam/graphinventory/internal/errors"
	"github.com/rohankatakam/graphinventory/internal/models"
	"github.com/rohankatakam/graphinventory/internal/serializer"
)

var (
	applyFile string
	applyEach bool
)

var applyCmd = &cobra.Command{
	Use:   "apply -f manifest.yaml",
	Short: "Apply a YAML manifest of resource requests",
	Long: `apply reads a YAML list of resource requests and applies them in one
transaction: either every request lands or none does. With --each every
request gets its own transaction and failures do not stop the rest.

Example manifest:

  - type: cloud-region
    key: east
    properties: {owner: ops}
  - type: tenant
    key: t1
    parent: {type: cloud-region, key: east}
    relations:
      - {label: USES, type: cloud-region, key: east}`,
	RunE: runApply,
}

func init() {
	applyCmd.Flags().StringVarP(&applyFile, "file", "f", "", "manifest file (- for stdin)")
	applyCmd.Flags().BoolVar(&applyEach, "each", false, "apply each request in its own transaction")
	applyCmd.MarkFlagRequired("file")
}

func runApply(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	var in io.Reader = os.Stdin
	if applyFile != "-" {
		f, err := os.Open(applyFile)
		if err != nil {
			return fmt.Errorf("failed to open manifest: %w", err)
		}
		defer f.Close()
		in = f
	}

	reqs, err := parseManifest(in)
	if err != nil {
		return err
	}

	rt, err := openRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close(ctx)

	if !applyEach {
		out, err := rt.service.ApplyAll(ctx, reqs)
		if err != nil {
			return fmt.Errorf("apply failed, nothing committed [%s]: %w", errors.CodeOf(err), err)
		}
		for i, res := range out {
			printResult(reqs[i], res)
		}
		fmt.Printf("Applied %d request(s)\n", len(out))
		return nil
	}

	failed := 0
	for _, req := range reqs {
		res, err := rt.service.Apply(ctx, req)
		if err != nil {
			failed++
			logger.WithError(err).
				WithField("code", errors.CodeOf(err)).
				WithField("target", req.Descriptor.String()).
				Warn("Request failed")
			continue
		}
		printResult(req, res)
	}
	fmt.Printf("Applied %d of %d request(s)\n", len(reqs)-failed, len(reqs))
	if failed > 0 {
		return fmt.Errorf("%d request(s) failed", failed)
	}
	return nil
}

func printResult(req serializer.Request, res *models.Resource) {
	fmt.Printf("  %-6s %s/%s id=%s version=%s", req.Context.Operation, res.Type, res.Key, res.ID, res.ResourceVersion)
	if res.ParentID != "" {
		fmt.Printf(" parent=%s", res.ParentID)
	}
	fmt.Println()
}
