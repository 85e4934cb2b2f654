package optly

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"strconv"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/spf13/cast"

	"github.com/fivetwenty-io/optly/internal/constants"
)

// PayloadNotSent is the status reported when a payload was built but not posted.
const PayloadNotSent = "Payload not sent"

// Event row fields recognised by payload construction.
const (
	FieldVisitorID  = "visitor_id"
	FieldEntityID   = "entity_id"
	FieldType       = "type"
	FieldTimestamp  = "timestamp"
	FieldRevenue    = "revenue"
	FieldValue      = "value"
	FieldUUID       = "uuid"
	FieldAttributes = "attributes"
	FieldTags       = "tags"
)

// SchemaFields lists the event row fields in schema order.
func SchemaFields() []string {
	return []string{
		FieldVisitorID,
		FieldEntityID,
		FieldType,
		FieldTimestamp,
		FieldRevenue,
		FieldValue,
		FieldUUID,
		FieldAttributes,
		FieldTags,
	}
}

// PayloadOptions controls ConstructPayload.
type PayloadOptions struct {
	// ColumnMapping maps schema field names to source column names. Fields not
	// mentioned are looked up under their own name.
	ColumnMapping map[string]string
	// ClientName and ClientVersion identify the sender. Empty values fall back
	// to "optly_api" and "0.1".
	ClientName    string
	ClientVersion string
	// EnrichDecisions asks the Event API to fill in decision data.
	EnrichDecisions bool
	// SendEvents posts the payload to the Event API.
	SendEvents bool
	// ConvertToTimestamps parses the timestamp column as date-time text and
	// converts it to Unix milliseconds.
	ConvertToTimestamps bool
	// GenerateUUIDs assigns a fresh UUID to every event instead of reading the
	// uuid column.
	GenerateUUIDs bool
}

// DefaultPayloadOptions returns the options used when none are given.
func DefaultPayloadOptions() *PayloadOptions {
	return &PayloadOptions{
		ClientName:      constants.DefaultClientName,
		ClientVersion:   constants.DefaultClientVersion,
		EnrichDecisions: true,
	}
}

// EventPayload is the Event API request body.
type EventPayload struct {
	AccountID       string    `json:"account_id"`
	Visitors        []Visitor `json:"visitors"`
	AnonymizeIP     bool      `json:"anonymize_ip"`
	ClientName      string    `json:"client_name"`
	ClientVersion   string    `json:"client_version"`
	EnrichDecisions bool      `json:"enrich_decisions"`
}

// Visitor groups the events of one visitor (and attribute set).
type Visitor struct {
	VisitorID  string      `json:"visitor_id"`
	Attributes interface{} `json:"attributes,omitempty"`
	Snapshots  []Snapshot  `json:"snapshots"`
}

// Snapshot carries a visitor's decisions and events.
type Snapshot struct {
	Decisions []Decision `json:"decisions"`
	Events    []Event    `json:"events"`
}

// Decision records a bucketing decision. Payloads built here always leave the
// list empty and rely on enrich_decisions.
type Decision struct {
	CampaignID         string `json:"campaign_id"`
	ExperimentID       string `json:"experiment_id"`
	VariationID        string `json:"variation_id"`
	IsCampaignHoldback bool   `json:"is_campaign_holdback"`
}

// Event is a single conversion event.
type Event struct {
	EntityID  string      `json:"entity_id"`
	Timestamp int64       `json:"timestamp"`
	UUID      string      `json:"uuid"`
	Revenue   *int64      `json:"revenue,omitempty"`
	Value     *float64    `json:"value,omitempty"`
	Tags      interface{} `json:"tags,omitempty"`
}

// ConstructPayload builds the Event API payload from a tabular result and
// returns it as JSON text together with a status: PayloadNotSent, or
// "Status Code: N" when SendEvents is set and the payload was posted. The
// result's table is left untouched.
func (r *Result) ConstructPayload(ctx context.Context, opts *PayloadOptions) (string, string, error) {
	if opts == nil {
		opts = DefaultPayloadOptions()
	}

	payload, err := r.BuildPayload(opts)
	if err != nil {
		return "", "", err
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", "", fmt.Errorf("encoding payload: %w", err)
	}

	if !opts.SendEvents {
		return PayloadNotSent, string(data), nil
	}

	if r.dispatcher == nil {
		return "", string(data), ErrNoEventDispatcher
	}

	statusCode, err := r.dispatcher.DispatchEvents(ctx, data)
	if err != nil {
		return "", string(data), fmt.Errorf("sending payload: %w", err)
	}

	return fmt.Sprintf("Status Code: %d", statusCode), string(data), nil
}

// BuildPayload is ConstructPayload without serialization or sending.
func (r *Result) BuildPayload(opts *PayloadOptions) (*EventPayload, error) {
	if r.err != nil {
		return nil, r.err
	}

	if r.table == nil {
		return nil, ErrNotTabular
	}

	if opts == nil {
		opts = DefaultPayloadOptions()
	}

	table := r.table.Clone()

	renames, err := invertMapping(opts.ColumnMapping)
	if err != nil {
		return nil, err
	}

	if err := table.Rename(renames); err != nil {
		return nil, err
	}

	for _, field := range []string{FieldVisitorID, FieldEntityID, FieldTimestamp} {
		if !table.Has(field) {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, field)
		}
	}

	if !opts.GenerateUUIDs && !table.Has(FieldUUID) {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumn, FieldUUID)
	}

	if opts.ConvertToTimestamps {
		if err := convertTimestamps(table); err != nil {
			return nil, err
		}
	}

	visitors, err := buildVisitors(table, opts.GenerateUUIDs)
	if err != nil {
		return nil, err
	}

	clientName := opts.ClientName
	if clientName == "" {
		clientName = constants.DefaultClientName
	}

	clientVersion := opts.ClientVersion
	if clientVersion == "" {
		clientVersion = constants.DefaultClientVersion
	}

	return &EventPayload{
		AccountID:       strconv.FormatInt(r.accountID, 10),
		Visitors:        visitors,
		AnonymizeIP:     true,
		ClientName:      clientName,
		ClientVersion:   clientVersion,
		EnrichDecisions: opts.EnrichDecisions,
	}, nil
}

// invertMapping turns a field→column mapping, seeded with the identity for
// every schema field, into the column→field renames to apply.
func invertMapping(mapping map[string]string) (map[string]string, error) {
	merged := make(map[string]string, len(mapping)+len(SchemaFields()))
	for _, field := range SchemaFields() {
		merged[field] = field
	}

	for field, column := range mapping {
		merged[field] = column
	}

	renames := make(map[string]string, len(merged))

	for field, column := range merged {
		if other, exists := renames[column]; exists {
			return nil, fmt.Errorf("%w: column %q mapped to both %q and %q", ErrDuplicateColumn, column, other, field)
		}

		renames[column] = field
	}

	return renames, nil
}

func convertTimestamps(table *Table) error {
	for row := 0; row < table.Len(); row++ {
		text, ok := table.Cell(row, FieldTimestamp)
		if !ok {
			continue
		}

		parsed, err := cast.ToTimeE(text)
		if err != nil {
			return fmt.Errorf("%w: row %d timestamp %q: %w", ErrInvalidValue, row+1, text, err)
		}

		table.Set(row, FieldTimestamp, strconv.FormatInt(parsed.UnixMilli(), 10))
	}

	return nil
}

type visitorGroup struct {
	visitorID  string
	attributes string
	hasAttrs   bool
	rows       []int
}

func groupRows(table *Table) ([]*visitorGroup, error) {
	useAttributes := !table.AllNull(FieldAttributes)

	index := make(map[string]*visitorGroup)
	groups := make([]*visitorGroup, 0)

	for row := 0; row < table.Len(); row++ {
		visitorID, ok := table.Cell(row, FieldVisitorID)
		if !ok {
			return nil, fmt.Errorf("%w: row %d has no %s", ErrMissingValue, row+1, FieldVisitorID)
		}

		var (
			attrs    string
			hasAttrs bool
		)

		if useAttributes {
			attrs, hasAttrs = table.Cell(row, FieldAttributes)
			if !hasAttrs {
				attrs = ""
			}
		}

		key := visitorID + "\x00" + strconv.FormatBool(hasAttrs) + "\x00" + attrs

		group, exists := index[key]
		if !exists {
			group = &visitorGroup{visitorID: visitorID, attributes: attrs, hasAttrs: hasAttrs}
			index[key] = group
			groups = append(groups, group)
		}

		group.rows = append(group.rows, row)
	}

	return groups, nil
}

func buildVisitors(table *Table, generateUUIDs bool) ([]Visitor, error) {
	groups, err := groupRows(table)
	if err != nil {
		return nil, err
	}

	visitors := make([]Visitor, 0, len(groups))

	for _, group := range groups {
		visitor := Visitor{VisitorID: group.visitorID}

		if group.hasAttrs {
			attributes, err := decodeJSONCell(group.attributes)
			if err != nil {
				return nil, fmt.Errorf("%w: attributes of visitor %s: %w", ErrInvalidValue, group.visitorID, err)
			}

			visitor.Attributes = attributes
		}

		events := make([]Event, 0, len(group.rows))

		for _, row := range group.rows {
			event, err := buildEvent(table, row, generateUUIDs)
			if err != nil {
				return nil, err
			}

			events = append(events, event)
		}

		visitor.Snapshots = []Snapshot{{Decisions: []Decision{}, Events: events}}
		visitors = append(visitors, visitor)
	}

	return visitors, nil
}

func buildEvent(table *Table, row int, generateUUIDs bool) (Event, error) {
	var event Event

	entityID, ok := table.Cell(row, FieldEntityID)
	if !ok {
		return event, fmt.Errorf("%w: row %d has no %s", ErrMissingValue, row+1, FieldEntityID)
	}

	event.EntityID = entityID

	timestamp, ok := table.Cell(row, FieldTimestamp)
	if !ok {
		return event, fmt.Errorf("%w: row %d has no %s", ErrMissingValue, row+1, FieldTimestamp)
	}

	ts, err := castInteger(timestamp)
	if err != nil {
		return event, fmt.Errorf("%w: row %d %s: %w", ErrInvalidValue, row+1, FieldTimestamp, err)
	}

	event.Timestamp = ts

	if generateUUIDs {
		id, err := uuid.NewUUID()
		if err != nil {
			return event, fmt.Errorf("generating uuid: %w", err)
		}

		event.UUID = id.String()
	} else {
		id, ok := table.Cell(row, FieldUUID)
		if !ok {
			return event, fmt.Errorf("%w: row %d has no %s", ErrMissingValue, row+1, FieldUUID)
		}

		event.UUID = id
	}

	if text, ok := table.Cell(row, FieldRevenue); ok {
		revenue, err := castInteger(text)
		if err != nil {
			return event, fmt.Errorf("%w: row %d %s: %w", ErrInvalidValue, row+1, FieldRevenue, err)
		}

		event.Revenue = &revenue
	}

	if text, ok := table.Cell(row, FieldValue); ok {
		value, err := cast.ToFloat64E(text)
		if err != nil {
			return event, fmt.Errorf("%w: row %d %s %q", ErrInvalidValue, row+1, FieldValue, text)
		}

		event.Value = &value
	}

	if text, ok := table.Cell(row, FieldTags); ok {
		tags, err := decodeJSONCell(text)
		if err != nil {
			return event, fmt.Errorf("%w: row %d %s: %w", ErrInvalidValue, row+1, FieldTags, err)
		}

		event.Tags = tags
	}

	return event, nil
}

// castInteger accepts integer or decimal text and truncates toward zero.
// Values outside the int64 range are rejected.
func castInteger(text string) (int64, error) {
	if n, err := strconv.ParseInt(text, 10, 64); err == nil {
		return n, nil
	}

	f, err := cast.ToFloat64E(text)
	if err != nil {
		return 0, err
	}

	if math.IsNaN(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, fmt.Errorf("%w: %s", ErrOutOfRange, text)
	}

	return int64(f), nil
}

// decodeJSONCell decodes a cell holding exactly one JSON document.
func decodeJSONCell(text string) (interface{}, error) {
	if !json.Valid([]byte(text)) {
		return nil, fmt.Errorf("%w: %q", ErrMalformedJSON, text)
	}

	decoder := json.NewDecoder(bytes.NewReader([]byte(text)))
	decoder.UseNumber()

	var value interface{}
	if err := decoder.Decode(&value); err != nil {
		return nil, err
	}

	return value, nil
}
