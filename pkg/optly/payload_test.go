package optly_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fivetwenty-io/optly/pkg/optly"
)

var errDispatchFailed = errors.New("connection refused")

type recordingDispatcher struct {
	calls   int
	payload []byte
	status  int
	err     error
}

func (d *recordingDispatcher) DispatchEvents(ctx context.Context, payload []byte) (int, error) {
	d.calls++
	d.payload = payload

	return d.status, d.err
}

func tableResult(t *testing.T, csv string, dispatcher optly.EventDispatcher) *optly.Result {
	t.Helper()

	table, err := optly.ReadTable(strings.NewReader(csv), ',')
	require.NoError(t, err)

	return optly.NewTableResult(table, 9876, dispatcher)
}

func TestBuildPayload_GroupsByVisitor(t *testing.T) {
	t.Parallel()

	csv := "visitor_id,entity_id,timestamp,uuid\n" +
		"v1,100,1000,u-1\n" +
		"v2,100,2000,u-2\n" +
		"v1,200,3000,u-3\n"

	payload, err := tableResult(t, csv, nil).BuildPayload(nil)
	require.NoError(t, err)

	require.Len(t, payload.Visitors, 2)
	assert.Equal(t, "v1", payload.Visitors[0].VisitorID)
	assert.Equal(t, "v2", payload.Visitors[1].VisitorID)

	require.Len(t, payload.Visitors[0].Snapshots, 1)
	events := payload.Visitors[0].Snapshots[0].Events
	require.Len(t, events, 2)
	assert.Equal(t, "100", events[0].EntityID)
	assert.Equal(t, int64(1000), events[0].Timestamp)
	assert.Equal(t, "u-1", events[0].UUID)
	assert.Equal(t, "200", events[1].EntityID)
	assert.Equal(t, "u-3", events[1].UUID)
	assert.Empty(t, payload.Visitors[0].Snapshots[0].Decisions)
	assert.Nil(t, payload.Visitors[0].Attributes)

	assert.Equal(t, "9876", payload.AccountID)
	assert.True(t, payload.AnonymizeIP)
	assert.Equal(t, "optly_api", payload.ClientName)
	assert.Equal(t, "0.1", payload.ClientVersion)
	assert.True(t, payload.EnrichDecisions)
}

func TestBuildPayload_AttributesPartitionVisitors(t *testing.T) {
	t.Parallel()

	csv := "visitor_id,entity_id,timestamp,uuid,attributes\n" +
		`v1,1,10,a,"[{""key"":""plan"",""value"":""pro""}]"` + "\n" +
		`v1,2,20,b,"[{""key"":""plan"",""value"":""free""}]"` + "\n" +
		`v1,3,30,c,"[{""key"":""plan"",""value"":""pro""}]"` + "\n" +
		"v2,4,40,d,\n"

	payload, err := tableResult(t, csv, nil).BuildPayload(nil)
	require.NoError(t, err)

	require.Len(t, payload.Visitors, 3)
	assert.Len(t, payload.Visitors[0].Snapshots[0].Events, 2)
	assert.Len(t, payload.Visitors[1].Snapshots[0].Events, 1)
	assert.Equal(t, "v2", payload.Visitors[2].VisitorID)
	assert.Nil(t, payload.Visitors[2].Attributes)

	attrs, ok := payload.Visitors[0].Attributes.([]interface{})
	require.True(t, ok)
	require.Len(t, attrs, 1)
	assert.Equal(t, "pro", attrs[0].(map[string]interface{})["value"])
}

func TestBuildPayload_EmptyAttributesColumnIgnored(t *testing.T) {
	t.Parallel()

	csv := "visitor_id,entity_id,timestamp,uuid,attributes\nv1,1,10,a,\nv1,2,20,b,\n"

	payload, err := tableResult(t, csv, nil).BuildPayload(nil)
	require.NoError(t, err)
	require.Len(t, payload.Visitors, 1)
	assert.Len(t, payload.Visitors[0].Snapshots[0].Events, 2)
}

func TestBuildPayload_OptionalFields(t *testing.T) {
	t.Parallel()

	csv := "visitor_id,entity_id,timestamp,uuid,revenue,value,tags\n" +
		`v1,1,10,a,5,2.5,"{""a"":1}"` + "\n" +
		"v1,2,20.9,b,,,\n" +
		"v1,3,30,c,7.8,3,\n"

	payload, err := tableResult(t, csv, nil).BuildPayload(nil)
	require.NoError(t, err)

	events := payload.Visitors[0].Snapshots[0].Events
	require.Len(t, events, 3)

	require.NotNil(t, events[0].Revenue)
	assert.Equal(t, int64(5), *events[0].Revenue)
	require.NotNil(t, events[0].Value)
	assert.InDelta(t, 2.5, *events[0].Value, 1e-9)
	assert.Equal(t, map[string]interface{}{"a": json.Number("1")}, events[0].Tags)

	assert.Nil(t, events[1].Revenue)
	assert.Nil(t, events[1].Value)
	assert.Nil(t, events[1].Tags)
	assert.Equal(t, int64(20), events[1].Timestamp)

	require.NotNil(t, events[2].Revenue)
	assert.Equal(t, int64(7), *events[2].Revenue)
}

func TestConstructPayload_JSONShape(t *testing.T) {
	t.Parallel()

	csv := "visitor_id,entity_id,timestamp,uuid,revenue,value,tags\n" +
		`v1,42,1600000000000,u-1,5,2.5,"{""a"":1}"` + "\n"

	status, payload, err := tableResult(t, csv, nil).ConstructPayload(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, optly.PayloadNotSent, status)

	expected := `{
		"account_id": "9876",
		"visitors": [{
			"visitor_id": "v1",
			"snapshots": [{
				"decisions": [],
				"events": [{
					"entity_id": "42",
					"timestamp": 1600000000000,
					"uuid": "u-1",
					"revenue": 5,
					"value": 2.5,
					"tags": {"a": 1}
				}]
			}]
		}],
		"anonymize_ip": true,
		"client_name": "optly_api",
		"client_version": "0.1",
		"enrich_decisions": true
	}`
	assert.JSONEq(t, expected, payload)
}

func TestConstructPayload_NotSentMakesNoCall(t *testing.T) {
	t.Parallel()

	dispatcher := &recordingDispatcher{status: 204}
	result := tableResult(t, "visitor_id,entity_id,timestamp,uuid\nv1,1,1,a\n", dispatcher)

	opts := optly.DefaultPayloadOptions()
	opts.SendEvents = false

	status, payload, err := result.ConstructPayload(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, "Payload not sent", status)
	assert.NotEmpty(t, payload)
	assert.Equal(t, 0, dispatcher.calls)
}

func TestConstructPayload_Send(t *testing.T) {
	t.Parallel()

	dispatcher := &recordingDispatcher{status: 204}
	result := tableResult(t, "visitor_id,entity_id,timestamp,uuid\nv1,1,1,a\n", dispatcher)

	opts := optly.DefaultPayloadOptions()
	opts.SendEvents = true

	status, payload, err := result.ConstructPayload(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, "Status Code: 204", status)
	assert.Equal(t, 1, dispatcher.calls)
	assert.Equal(t, payload, string(dispatcher.payload))
}

func TestConstructPayload_SendErrors(t *testing.T) {
	t.Parallel()

	opts := optly.DefaultPayloadOptions()
	opts.SendEvents = true

	csv := "visitor_id,entity_id,timestamp,uuid\nv1,1,1,a\n"

	_, _, err := tableResult(t, csv, nil).ConstructPayload(context.Background(), opts)
	require.ErrorIs(t, err, optly.ErrNoEventDispatcher)

	failing := &recordingDispatcher{err: errDispatchFailed}
	_, _, err = tableResult(t, csv, failing).ConstructPayload(context.Background(), opts)
	require.ErrorIs(t, err, errDispatchFailed)
}

func TestBuildPayload_ColumnMapping(t *testing.T) {
	t.Parallel()

	csv := "user,event_id,ts,event_uuid,extra\nv1,77,5,u-1,ignored\n"

	opts := optly.DefaultPayloadOptions()
	opts.ColumnMapping = map[string]string{
		"visitor_id": "user",
		"entity_id":  "event_id",
		"timestamp":  "ts",
		"uuid":       "event_uuid",
	}

	payload, err := tableResult(t, csv, nil).BuildPayload(opts)
	require.NoError(t, err)

	event := payload.Visitors[0].Snapshots[0].Events[0]
	assert.Equal(t, "v1", payload.Visitors[0].VisitorID)
	assert.Equal(t, "77", event.EntityID)
	assert.Equal(t, int64(5), event.Timestamp)
	assert.Equal(t, "u-1", event.UUID)
}

func TestBuildPayload_ColumnMappingConflict(t *testing.T) {
	t.Parallel()

	opts := optly.DefaultPayloadOptions()
	opts.ColumnMapping = map[string]string{"entity_id": "visitor_id"}

	_, err := tableResult(t, "visitor_id,entity_id,timestamp,uuid\nv1,1,1,a\n", nil).BuildPayload(opts)
	require.ErrorIs(t, err, optly.ErrDuplicateColumn)
}

func TestBuildPayload_DoesNotModifyTable(t *testing.T) {
	t.Parallel()

	result := tableResult(t, "user,entity_id,timestamp,uuid\nv1,1,2021-01-01T00:00:00Z,a\n", nil)

	opts := optly.DefaultPayloadOptions()
	opts.ColumnMapping = map[string]string{"visitor_id": "user"}
	opts.ConvertToTimestamps = true

	_, err := result.BuildPayload(opts)
	require.NoError(t, err)

	assert.Equal(t, []string{"user", "entity_id", "timestamp", "uuid"}, result.Table().Columns())
	assert.Equal(t, []string{"2021-01-01T00:00:00Z"}, result.Table().Column("timestamp"))
}

func TestBuildPayload_ConvertToTimestamps(t *testing.T) {
	t.Parallel()

	csv := "visitor_id,entity_id,timestamp,uuid\n" +
		"v1,1,2021-01-01T00:00:00Z,a\n" +
		"v1,2,2021-01-01 00:00:01,b\n"

	opts := optly.DefaultPayloadOptions()
	opts.ConvertToTimestamps = true

	payload, err := tableResult(t, csv, nil).BuildPayload(opts)
	require.NoError(t, err)

	events := payload.Visitors[0].Snapshots[0].Events
	assert.Equal(t, int64(1609459200000), events[0].Timestamp)
	assert.Equal(t, int64(1609459201000), events[1].Timestamp)

	_, err = tableResult(t, "visitor_id,entity_id,timestamp,uuid\nv1,1,yesterday,a\n", nil).BuildPayload(opts)
	require.ErrorIs(t, err, optly.ErrInvalidValue)
}

func TestBuildPayload_GenerateUUIDs(t *testing.T) {
	t.Parallel()

	opts := optly.DefaultPayloadOptions()
	opts.GenerateUUIDs = true

	payload, err := tableResult(t, "visitor_id,entity_id,timestamp\nv1,1,1\nv1,2,2\n", nil).BuildPayload(opts)
	require.NoError(t, err)

	events := payload.Visitors[0].Snapshots[0].Events
	require.Len(t, events, 2)
	assert.NotEqual(t, events[0].UUID, events[1].UUID)

	for _, event := range events {
		parsed, err := uuid.Parse(event.UUID)
		require.NoError(t, err)
		assert.Equal(t, uuid.Version(1), parsed.Version())
	}
}

func TestBuildPayload_ClientOverrides(t *testing.T) {
	t.Parallel()

	opts := &optly.PayloadOptions{ClientName: "importer", ClientVersion: "2.0"}

	payload, err := tableResult(t, "visitor_id,entity_id,timestamp,uuid\nv1,1,1,a\n", nil).BuildPayload(opts)
	require.NoError(t, err)
	assert.Equal(t, "importer", payload.ClientName)
	assert.Equal(t, "2.0", payload.ClientVersion)
	assert.False(t, payload.EnrichDecisions)
}

func TestBuildPayload_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		csv     string
		wantErr error
	}{
		{name: "missing visitor column", csv: "entity_id,timestamp,uuid\n1,1,a\n", wantErr: optly.ErrMissingColumn},
		{name: "missing uuid column", csv: "visitor_id,entity_id,timestamp\nv1,1,1\n", wantErr: optly.ErrMissingColumn},
		{name: "null visitor", csv: "visitor_id,entity_id,timestamp,uuid\n,1,1,a\n", wantErr: optly.ErrMissingValue},
		{name: "null entity", csv: "visitor_id,entity_id,timestamp,uuid\nv1,,1,a\n", wantErr: optly.ErrMissingValue},
		{name: "null uuid", csv: "visitor_id,entity_id,timestamp,uuid\nv1,1,1,NA\n", wantErr: optly.ErrMissingValue},
		{name: "bad timestamp", csv: "visitor_id,entity_id,timestamp,uuid\nv1,1,soon,a\n", wantErr: optly.ErrInvalidValue},
		{name: "bad revenue", csv: "visitor_id,entity_id,timestamp,uuid,revenue\nv1,1,1,a,lots\n", wantErr: optly.ErrInvalidValue},
		{name: "bad value", csv: "visitor_id,entity_id,timestamp,uuid,value\nv1,1,1,a,high\n", wantErr: optly.ErrInvalidValue},
		{name: "bad tags", csv: "visitor_id,entity_id,timestamp,uuid,tags\nv1,1,1,a,{oops\n", wantErr: optly.ErrInvalidValue},
		{name: "bad attributes", csv: "visitor_id,entity_id,timestamp,uuid,attributes\nv1,1,1,a,[\n", wantErr: optly.ErrInvalidValue},
		{name: "trailing data after tags", csv: "visitor_id,entity_id,timestamp,uuid,tags\nv1,1,1,a,\"{\"\"a\"\":1} garbage\"\n", wantErr: optly.ErrMalformedJSON},
		{name: "two attribute documents", csv: "visitor_id,entity_id,timestamp,uuid,attributes\nv1,1,1,a,\"{} {}\"\n", wantErr: optly.ErrMalformedJSON},
		{name: "revenue out of range", csv: "visitor_id,entity_id,timestamp,uuid,revenue\nv1,1,1,a,1e20\n", wantErr: optly.ErrOutOfRange},
		{name: "timestamp out of range", csv: "visitor_id,entity_id,timestamp,uuid\nv1,1,-1e19,a\n", wantErr: optly.ErrOutOfRange},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := tableResult(t, tt.csv, nil).BuildPayload(nil)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestBuildPayload_NotTabular(t *testing.T) {
	t.Parallel()

	_, err := optly.NewListResult(nil).BuildPayload(nil)
	require.ErrorIs(t, err, optly.ErrNotTabular)

	_, _, err = optly.NewListResult(nil).ConstructPayload(context.Background(), nil)
	require.ErrorIs(t, err, optly.ErrNotTabular)
}

func TestSchemaFields(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{
		"visitor_id", "entity_id", "type", "timestamp", "revenue", "value", "uuid", "attributes", "tags",
	}, optly.SchemaFields())
}
