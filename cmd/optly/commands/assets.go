package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/fivetwenty-io/optly/internal/constants"
	"github.com/fivetwenty-io/optly/pkg/optly"
)

type assetsListOptions struct {
	Types           []string
	AllData         bool
	IncludeArchived bool
	Filters         []string
	IDKey           string
	Output          string
}

// NewAssetsCommand creates the assets command group.
func NewAssetsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "assets",
		Aliases: []string{"asset"},
		Short:   "Query project assets",
		Long:    "List and inspect audiences, campaigns, events, experiments, features and pages of a project",
	}

	cmd.AddCommand(newAssetsListCommand())
	cmd.AddCommand(newAssetsGetCommand())

	return cmd
}

func newAssetsListCommand() *cobra.Command {
	opts := &assetsListOptions{}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List assets",
		Long: `List assets of one or more types through the search endpoint.

Examples:
  optly assets list --type experiments --filter status=running
  optly assets list --type audience,event --include-archived --ids id`,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := createClient(cmd)
			if err != nil {
				return err
			}

			defer func() { _ = client.Close() }()

			opts.Output = viper.GetString("output")

			return runAssetsList(cmd.Context(), client, opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringSliceVar(&opts.Types, "type", nil, "asset types (audience, campaign, event, experiment, feature, page)")
	cmd.Flags().BoolVar(&opts.AllData, "all-data", false, "fetch every asset through its detail endpoint")
	cmd.Flags().BoolVar(&opts.IncludeArchived, "include-archived", false, "include archived assets")
	cmd.Flags().StringArrayVar(&opts.Filters, "filter", nil, "keep assets where KEY equals VALUE (repeatable)")
	cmd.Flags().StringVar(&opts.IDKey, "ids", "", "print only the integer ids found under this key")

	return cmd
}

func runAssetsList(ctx context.Context, client optly.Client, opts *assetsListOptions, out io.Writer) error {
	format := opts.Output
	if format == "" {
		format = constants.FormatTable
	}

	err := validateOutput(format)
	if err != nil {
		return err
	}

	types, err := parseAssetTypes(opts.Types)
	if err != nil {
		return err
	}

	criteria, err := parseKeyValues(opts.Filters)
	if err != nil {
		return err
	}

	result, err := client.Get(ctx, types, &optly.GetOptions{
		AllAssetData:    opts.AllData,
		IncludeArchived: opts.IncludeArchived,
	})
	if err != nil {
		return fmt.Errorf("failed to list assets: %w", err)
	}

	if len(criteria) > 0 {
		err = result.Filter(criteria).Err()
		if err != nil {
			return fmt.Errorf("failed to filter assets: %w", err)
		}
	}

	if opts.IDKey != "" {
		err = result.ListIDs(opts.IDKey).Err()
		if err != nil {
			return fmt.Errorf("failed to list ids: %w", err)
		}

		return renderIDs(out, result.IDs(), format)
	}

	return renderAssets(out, result.Items(), format)
}

func newAssetsGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get TYPE ID",
		Short: "Get one asset",
		Long:  "Fetch a single asset through its detail endpoint",
		Args:  cobra.ExactArgs(2), //nolint:mnd
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := createClient(cmd)
			if err != nil {
				return err
			}

			defer func() { _ = client.Close() }()

			return runAssetsGet(cmd.Context(), client, args[0], args[1], viper.GetString("output"), cmd.OutOrStdout())
		},
	}
}

func runAssetsGet(ctx context.Context, client optly.Client, typeName, idText, format string, out io.Writer) error {
	if format == "" {
		format = constants.FormatTable
	}

	err := validateOutput(format)
	if err != nil {
		return err
	}

	assetType, err := optly.ParseAssetType(typeName)
	if err != nil {
		return err
	}

	id, err := cast.ToInt64E(idText)
	if err != nil {
		return fmt.Errorf("%w: %q", optly.ErrInvalidAssetID, idText)
	}

	assets, err := client.Assets(assetType)
	if err != nil {
		return err
	}

	asset, err := assets.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get %s %d: %w", assetType, id, err)
	}

	switch format {
	case constants.FormatJSON:
		return writeJSON(out, asset)
	case constants.FormatYAML:
		return writeYAML(out, asset)
	}

	properties := make(map[string]string, len(asset))
	for key := range asset {
		properties[key] = cell(asset, key)
	}

	return renderProperties(out, properties)
}
