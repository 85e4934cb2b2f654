//go:build integration

package integration

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/suite"
)

const workflowEvents = `visitor_id,entity_id,timestamp,attributes
visitor-1,3001,2021-01-01T00:00:00Z,"[{""entity_id"":""9"",""key"":""plan"",""type"":""custom"",""value"":""pro""}]"
visitor-1,3002,2021-01-01T00:05:00Z,"[{""entity_id"":""9"",""key"":""plan"",""type"":""custom"",""value"":""pro""}]"
visitor-2,3001,2021-01-02T10:00:00Z,
`

// WorkflowTestSuite drives the optly binary against a fake Optimizely API
type WorkflowTestSuite struct {
	suite.Suite

	config     *TestConfig
	runner     *CommandRunner
	server     *httptest.Server
	eventPosts atomic.Int32
}

func (s *WorkflowTestSuite) SetupSuite() {
	s.config = LoadTestConfig(s.T())
	s.config.SkipIfMissingBinary(s.T())

	s.server = httptest.NewServer(http.HandlerFunc(s.serve))
	s.runner = NewCommandRunner(s.config, s.T()).WithEnv(
		"OPTLY_API="+s.server.URL,
		"OPTLY_EVENTS_ENDPOINT="+s.server.URL+"/v1/events",
		"OPTLY_PROJECT_ID=77",
		"OPTLY_ACCOUNT_ID=88",
		"OPTLY_TOKEN=workflow-token",
	)
}

func (s *WorkflowTestSuite) TearDownSuite() {
	if s.server != nil {
		s.server.Close()
	}
}

func (s *WorkflowTestSuite) serve(writer http.ResponseWriter, request *http.Request) {
	writer.Header().Set("Content-Type", "application/json")

	switch request.URL.Path {
	case "/v2/search":
		if request.Header.Get("Authorization") != "Bearer workflow-token" {
			writer.WriteHeader(http.StatusUnauthorized)
			_, _ = writer.Write([]byte(`{"code": "UNAUTHORIZED", "message": "bad token"}`))

			return
		}

		page, _ := strconv.Atoi(request.URL.Query().Get("page"))
		archived := request.URL.Query().Get("archived") == "True"

		switch {
		case archived:
			_, _ = writer.Write([]byte(`[{"id": 900, "name": "Old test", "type": "experiment", "status": "archived"}]`))
		case page == 1:
			writer.Header().Set("Link", `<`+s.server.URL+`/v2/search?page=2>; rel="last"`)
			_, _ = writer.Write([]byte(`[{"id": 100, "name": "Hero", "type": "experiment", "status": "running"}]`))
		default:
			_, _ = writer.Write([]byte(`[{"id": 200, "name": "Footer", "type": "experiment", "status": "paused"}]`))
		}
	case "/v1/events":
		s.eventPosts.Add(1)
		writer.WriteHeader(http.StatusNoContent)
	default:
		writer.WriteHeader(http.StatusNotFound)
	}
}

func (s *WorkflowTestSuite) TestVersion() {
	stdout, _, err := s.runner.Run("version", "--output", "json")
	s.Require().NoError(err)
	s.Contains(stdout, `"version"`)
}

func (s *WorkflowTestSuite) TestListAssets() {
	stdout, _, err := s.runner.Run("assets", "list", "--type", "experiments", "--include-archived", "--ids", "id", "--output", "json")
	s.Require().NoError(err)

	var ids []string
	s.Require().NoError(json.Unmarshal([]byte(stdout), &ids))
	s.Equal([]string{"100", "900", "200"}, ids)
}

func (s *WorkflowTestSuite) TestFilterAssets() {
	stdout, _, err := s.runner.Run("assets", "list", "--type", "experiment", "--filter", "status=paused", "--ids", "id")
	s.Require().NoError(err)
	s.Equal("200\n", stdout)
}

func (s *WorkflowTestSuite) TestBuildAndSendEvents() {
	stdout, stderr, err := s.runner.RunWithInput(workflowEvents,
		"events", "build", "-", "--convert-timestamps", "--generate-uuids", "--send")
	s.Require().NoError(err)
	s.Contains(stderr, "Status Code: 204")
	s.Equal(int32(1), s.eventPosts.Load())

	var payload struct {
		AccountID string `json:"account_id"`
		Visitors  []struct {
			VisitorID string `json:"visitor_id"`
		} `json:"visitors"`
	}
	s.Require().NoError(json.Unmarshal([]byte(strings.TrimSpace(stdout)), &payload))
	s.Equal("88", payload.AccountID)
	s.Len(payload.Visitors, 2)
}

func (s *WorkflowTestSuite) TestConfigSetTokenAndShow() {
	_, _, err := s.runner.RunWithInput("2:stored-secret\n", "config", "set-token", "--expires-in", "1h")
	s.Require().NoError(err)

	stdout, stderr, err := s.runner.Run("config", "show", "--output", "yaml")
	s.Require().NoError(err)
	s.NotContains(stdout, "stored-secret")
	s.Contains(stderr, "Warning: access token expires")
}

func TestWorkflowSuite(t *testing.T) {
	suite.Run(t, new(WorkflowTestSuite))
}

// LiveTestSuite runs read-only commands against the real API
type LiveTestSuite struct {
	suite.Suite

	runner *CommandRunner
}

func (s *LiveTestSuite) SetupSuite() {
	config := LoadTestConfig(s.T())
	config.SkipIfMissingBinary(s.T())
	config.SkipIfMissingCredentials(s.T())

	s.runner = NewCommandRunner(config, s.T()).WithEnv(
		"OPTLY_TOKEN="+config.Token,
		"OPTLY_PROJECT_ID="+strconv.FormatInt(config.ProjectID, 10),
	)
}

func (s *LiveTestSuite) TestListEvents() {
	stdout, _, err := s.runner.Run("assets", "list", "--type", "events", "--output", "json")
	s.Require().NoError(err)

	var assets []map[string]interface{}
	s.Require().NoError(json.Unmarshal([]byte(stdout), &assets))
}

func TestLiveSuite(t *testing.T) {
	suite.Run(t, new(LiveTestSuite))
}
