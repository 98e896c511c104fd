package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pendergraft/dappkit/internal/landregistry"
	client "github.com/pendergraft/dappkit/pkg/landregistry"
)

func createLandCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "land",
		Short: "Land registry commands",
	}

	cmd.AddCommand(createLandSubmitCmd())
	cmd.AddCommand(createLandMineCmd())
	cmd.AddCommand(createLandChainCmd())

	return cmd
}

func createLandSubmitCmd() *cobra.Command {
	var reg client.Registration
	var deedPath string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a land registration",
		Long: `Submit a land registration to the backend's duplicate check.

EXAMPLES:
  dappkit land submit --owner "Ravi Kumar" --land-id L-204 --location Pune --area 1200

  # Attach the title deed
  dappkit land submit --owner "Ravi Kumar" --land-id L-204 --deed ./deed.pdf
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if deedPath != "" {
				content, err := os.ReadFile(deedPath)
				if err != nil {
					return fmt.Errorf("reading deed: %w", err)
				}
				reg.Deed = &client.Deed{Filename: filepath.Base(deedPath), Content: content}
			}
			c := client.New(getLandURL())
			return runLandSubmit(cmd.Context(), cmd.OutOrStdout(), c, reg, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&reg.Owner, "owner", "", "owner name (required)")
	cmd.Flags().StringVar(&reg.LandID, "land-id", "", "land identifier (required)")
	cmd.Flags().StringVar(&reg.Location, "location", "", "location")
	cmd.Flags().StringVar(&reg.Area, "area", "", "area")
	cmd.Flags().StringVar(&deedPath, "deed", "", "deed document to attach")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	return cmd
}

func createLandMineCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "mine",
		Short: "Ask the backend to forge a block",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLandMine(cmd.Context(), cmd.OutOrStdout(), client.New(getLandURL()), jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output the full block as JSON")

	return cmd
}

func createLandChainCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chain",
		Short: "Show the backend's chain",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLandChain(cmd.Context(), cmd.OutOrStdout(), client.New(getLandURL()))
		},
	}
}

func runLandSubmit(ctx context.Context, w io.Writer, c *client.Client, reg client.Registration, jsonOutput bool) error {
	page := landregistry.BeginSubmit(landregistry.Page{})
	if !jsonOutput {
		fmt.Fprintln(w, page.TxResult)
	}

	res, err := c.SubmitTransaction(ctx, reg)
	if err != nil {
		page = landregistry.FinishSubmit(page, landregistry.Fail[*client.SubmitResult](err))
	} else {
		page = landregistry.FinishSubmit(page, landregistry.Ok(res))
	}

	if jsonOutput && err == nil {
		return writeJSON(w, res)
	}
	fmt.Fprintln(w, page.TxResult)
	printBanner(w, page.Alert)
	return failure(page.Alert)
}

func runLandMine(ctx context.Context, w io.Writer, c *client.Client, jsonOutput bool) error {
	page := landregistry.BeginMine(landregistry.Page{})
	if !jsonOutput {
		fmt.Fprintln(w, page.MineResult)
	}

	res, err := c.Mine(ctx)
	if err != nil {
		page = landregistry.FinishMine(page, landregistry.Fail[*client.MineResult](err))
	} else {
		page = landregistry.FinishMine(page, landregistry.Ok(res))
	}

	if jsonOutput && err == nil {
		return writeJSON(w, res)
	}
	fmt.Fprintln(w, page.MineResult)
	printBanner(w, page.MineError)
	return failure(page.MineError)
}

func runLandChain(ctx context.Context, w io.Writer, c *client.Client) error {
	raw, err := c.Chain(ctx)
	var page landregistry.Page
	if err != nil {
		page = landregistry.FinishChain(page, landregistry.Fail[json.RawMessage](err))
	} else {
		page = landregistry.FinishChain(page, landregistry.Ok(raw))
	}

	if page.ChainError != nil {
		printBanner(w, page.ChainError)
		return failure(page.ChainError)
	}
	fmt.Fprintln(w, page.ChainResult)
	return nil
}

func printBanner(w io.Writer, b *landregistry.Banner) {
	if b == nil {
		return
	}
	fmt.Fprintf(w, "[%s] %s\n", b.Kind, b.Text)
}

// failure turns an error banner into the command's error
func failure(b *landregistry.Banner) error {
	if b == nil || b.Kind != landregistry.BannerError {
		return nil
	}
	return errors.New(b.Text)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
