package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"unicode/utf8"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/fivetwenty-io/optly/internal/constants"
	"github.com/fivetwenty-io/optly/pkg/optly"
)

// ErrInvalidDelimiter is returned when --delimiter is not a single character.
var ErrInvalidDelimiter = errors.New("delimiter must be a single character or \"tab\"")

// stdinPath selects standard input as the event file.
const stdinPath = "-"

type eventsOptions struct {
	File              string
	Delimiter         string
	Mappings          []string
	Filters           []string
	ClientName        string
	ClientVersion     string
	EnrichDecisions   bool
	Send              bool
	ConvertTimestamps bool
	GenerateUUIDs     bool
	Out               string
	Gzip              bool
	Output            string
}

// NewEventsCommand creates the events command group.
func NewEventsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "events",
		Aliases: []string{"event"},
		Short:   "Build and send Event API payloads",
		Long:    "Turn a delimited file of conversion events into an Event API payload",
	}

	cmd.AddCommand(newEventsBuildCommand())
	cmd.AddCommand(newEventsSummaryCommand())

	return cmd
}

func addPayloadFlags(cmd *cobra.Command, opts *eventsOptions) {
	cmd.Flags().StringVarP(&opts.Delimiter, "delimiter", "d", ",", "field delimiter (a single character or \"tab\")")
	cmd.Flags().StringArrayVar(&opts.Mappings, "map", nil, "map a payload field to a column, FIELD=COLUMN (repeatable)")
	cmd.Flags().StringArrayVar(&opts.Filters, "filter", nil, "keep rows where COLUMN equals VALUE (repeatable)")
	cmd.Flags().BoolVar(&opts.ConvertTimestamps, "convert-timestamps", false, "parse the timestamp column as a date and convert it to epoch milliseconds")
	cmd.Flags().BoolVar(&opts.GenerateUUIDs, "generate-uuids", false, "generate a UUID for every event instead of reading the uuid column")
}

func newEventsBuildCommand() *cobra.Command {
	opts := &eventsOptions{}

	cmd := &cobra.Command{
		Use:   "build FILE",
		Short: "Build an Event API payload",
		Long: `Build an Event API payload from a delimited file with a header row and
print it, write it to --out, or post it with --send.

Use "-" as FILE to read from standard input. An --out path ending in .gz is
written gzip-compressed.

Examples:
  optly events build conversions.csv --generate-uuids
  optly events build export.tsv -d tab --map visitor_id=user --send`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.File = args[0]

			if opts.Send && viper.GetInt64("account_id") == 0 {
				return optly.ErrAccountIDRequired
			}

			client, err := createClient(cmd)
			if err != nil {
				return err
			}

			defer func() { _ = client.Close() }()

			return runEventsBuild(cmd.Context(), client, opts, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	addPayloadFlags(cmd, opts)
	cmd.Flags().StringVar(&opts.ClientName, "client-name", constants.DefaultClientName, "client_name reported in the payload")
	cmd.Flags().StringVar(&opts.ClientVersion, "client-version", constants.DefaultClientVersion, "client_version reported in the payload")
	cmd.Flags().BoolVar(&opts.EnrichDecisions, "enrich-decisions", true, "ask the Event API to fill in decisions")
	cmd.Flags().BoolVar(&opts.Send, "send", false, "post the payload to the Event API")
	cmd.Flags().StringVar(&opts.Out, "out", "", "write the payload to this file instead of stdout")
	cmd.Flags().BoolVar(&opts.Gzip, "gzip", false, "gzip the written payload")

	return cmd
}

func runEventsBuild(ctx context.Context, client optly.Client, opts *eventsOptions, in io.Reader, out, status io.Writer) error {
	result, err := loadEvents(client, opts, in)
	if err != nil {
		return err
	}

	payloadOpts, err := payloadOptions(opts)
	if err != nil {
		return err
	}

	sendStatus, payload, err := result.ConstructPayload(ctx, payloadOpts)
	if err != nil {
		return fmt.Errorf("failed to construct payload: %w", err)
	}

	err = writePayloadOutput(opts, []byte(payload), out)
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintln(status, sendStatus)

	return nil
}

func writePayloadOutput(opts *eventsOptions, payload []byte, out io.Writer) error {
	format := optly.PayloadFormatJSON
	if opts.Gzip {
		format = optly.PayloadFormatGzip
	}

	if opts.Out == "" {
		return optly.WritePayload(out, payload, format)
	}

	if !opts.Gzip {
		format = optly.PayloadFormatForPath(opts.Out)
	}

	file, err := os.OpenFile(opts.Out, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, constants.ConfigFilePerm) // #nosec G304 -- path is supplied by the user
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", opts.Out, err)
	}

	err = optly.WritePayload(file, payload, format)
	if err != nil {
		_ = file.Close()

		return err
	}

	err = file.Close()
	if err != nil {
		return fmt.Errorf("failed to close %s: %w", opts.Out, err)
	}

	return nil
}

func newEventsSummaryCommand() *cobra.Command {
	opts := &eventsOptions{}

	cmd := &cobra.Command{
		Use:   "summary FILE",
		Short: "Summarize visitors in an event file",
		Long:  "Group an event file by visitor the same way build does and show one line per visitor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.File = args[0]
			opts.Output = viper.GetString("output")

			client, err := createClient(cmd)
			if err != nil {
				return err
			}

			defer func() { _ = client.Close() }()

			return runEventsSummary(client, opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	addPayloadFlags(cmd, opts)

	return cmd
}

type visitorSummary struct {
	VisitorID  string      `json:"visitor_id"           yaml:"visitor_id"`
	Events     int         `json:"events"               yaml:"events"`
	Attributes interface{} `json:"attributes,omitempty" yaml:"attributes,omitempty"`
}

func runEventsSummary(client optly.Client, opts *eventsOptions, in io.Reader, out io.Writer) error {
	format := opts.Output
	if format == "" {
		format = constants.FormatTable
	}

	err := validateOutput(format)
	if err != nil {
		return err
	}

	result, err := loadEvents(client, opts, in)
	if err != nil {
		return err
	}

	payloadOpts, err := payloadOptions(opts)
	if err != nil {
		return err
	}

	payload, err := result.BuildPayload(payloadOpts)
	if err != nil {
		return fmt.Errorf("failed to build payload: %w", err)
	}

	summaries := make([]visitorSummary, 0, len(payload.Visitors))

	for _, visitor := range payload.Visitors {
		events := 0
		for _, snapshot := range visitor.Snapshots {
			events += len(snapshot.Events)
		}

		summaries = append(summaries, visitorSummary{
			VisitorID:  visitor.VisitorID,
			Events:     events,
			Attributes: visitor.Attributes,
		})
	}

	switch format {
	case constants.FormatJSON:
		return writeJSON(out, summaries)
	case constants.FormatYAML:
		return writeYAML(out, plainSummaries(summaries))
	}

	table := tablewriter.NewWriter(out)
	table.Header("Visitor ID", "Events", "Attributes")

	for _, summary := range summaries {
		attributes := constants.NotAvailable
		if summary.Attributes != nil {
			attributes = optly.Stringify(summary.Attributes)
		}

		_ = table.Append(summary.VisitorID, fmt.Sprintf("%d", summary.Events), attributes)
	}

	err = table.Render()
	if err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}

	return nil
}

func plainSummaries(summaries []visitorSummary) []visitorSummary {
	plain := make([]visitorSummary, len(summaries))
	for i, summary := range summaries {
		summary.Attributes = plainValue(summary.Attributes)
		plain[i] = summary
	}

	return plain
}

// loadEvents reads the event file and applies --filter.
func loadEvents(client optly.Client, opts *eventsOptions, in io.Reader) (*optly.Result, error) {
	delimiter, err := parseDelimiter(opts.Delimiter)
	if err != nil {
		return nil, err
	}

	criteria, err := parseKeyValues(opts.Filters)
	if err != nil {
		return nil, err
	}

	var result *optly.Result
	if opts.File == stdinPath {
		result, err = client.ReadCSVFrom(in, delimiter)
	} else {
		result, err = client.ReadCSV(opts.File, delimiter)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}

	if len(criteria) > 0 {
		err = result.Filter(criteria).Err()
		if err != nil {
			return nil, fmt.Errorf("failed to filter events: %w", err)
		}
	}

	return result, nil
}

func payloadOptions(opts *eventsOptions) (*optly.PayloadOptions, error) {
	mapping, err := parseKeyValues(opts.Mappings)
	if err != nil {
		return nil, err
	}

	return &optly.PayloadOptions{
		ColumnMapping:       mapping,
		ClientName:          opts.ClientName,
		ClientVersion:       opts.ClientVersion,
		EnrichDecisions:     opts.EnrichDecisions,
		SendEvents:          opts.Send,
		ConvertToTimestamps: opts.ConvertTimestamps,
		GenerateUUIDs:       opts.GenerateUUIDs,
	}, nil
}

func parseDelimiter(text string) (rune, error) {
	switch text {
	case "", ",":
		return ',', nil
	case "tab", "\\t", "\t":
		return '\t', nil
	}

	if utf8.RuneCountInString(text) != 1 {
		return 0, fmt.Errorf("%w, got %q", ErrInvalidDelimiter, text)
	}

	r, _ := utf8.DecodeRuneInString(text)

	return r, nil
}
