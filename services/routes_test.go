package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"triage-copilot/models"
)

func strPtr(s string) *string { return &s }

func TestBuildRouteGitHub(t *testing.T) {
	issue := &models.Issue{
		Source:      "github",
		ExternalKey: "acme/widgets#7",
		Repo:        strPtr("acme/widgets"),
	}
	info := BuildRoute(issue)
	require.NotNil(t, info)
	assert.Equal(t, "/gh/acme/widgets/issues/7", info.Route)
	require.NotNil(t, info.OriginURL)
	assert.Equal(t, "https://github.com/acme/widgets/issues/7", *info.OriginURL)
}

func TestBuildRouteGitHubRepoFromRawPayload(t *testing.T) {
	issue := &models.Issue{
		Source:      "github",
		ExternalKey: "acme/widgets#3",
		RawJSON:     []byte(`{"repository": {"full_name": "acme/widgets"}}`),
	}
	info := BuildRoute(issue)
	require.NotNil(t, info)
	assert.Equal(t, "/gh/acme/widgets/issues/3", info.Route)
}

func TestBuildRouteGitHubRepoFallback(t *testing.T) {
	issue := &models.Issue{
		Source:      "github",
		ExternalKey: "#5",
	}
	info := BuildRoute(issue)
	require.NotNil(t, info)
	assert.Equal(t, "/gh/sandbox/sandbox/issues/5", info.Route)
}

func TestBuildRouteGitHubNumberFromRawPayload(t *testing.T) {
	issue := &models.Issue{
		Source:      "github",
		ExternalKey: "123456",
		RawJSON:     []byte(`{"repository": {"full_name": "acme/widgets"}, "issue": {"number": 9}}`),
	}
	info := BuildRoute(issue)
	require.NotNil(t, info)
	assert.Equal(t, "/gh/acme/widgets/issues/9", info.Route)
}

func TestBuildRouteGitHubUnaddressable(t *testing.T) {
	// keine Issue-Nummer ableitbar: keine Route, keine Teil-Route
	issue := &models.Issue{
		Source:      "github",
		ExternalKey: "123456",
		Repo:        strPtr("acme/widgets"),
	}
	assert.Nil(t, BuildRoute(issue))
}

func TestBuildRouteJira(t *testing.T) {
	issue := &models.Issue{
		Source:      "jira",
		ExternalKey: "ABC-42",
		RawJSON:     []byte(`{"issue": {"self": "https://acme.atlassian.net/rest/api/2/issue/10002"}}`),
	}
	info := BuildRoute(issue)
	require.NotNil(t, info)
	assert.Equal(t, "/jira/acme/ABC/ABC-42", info.Route)
	require.NotNil(t, info.OriginURL)
	assert.Equal(t, "https://acme.atlassian.net/browse/ABC-42", *info.OriginURL)
}

func TestBuildRouteJiraSiteFallback(t *testing.T) {
	issue := &models.Issue{
		Source:      "jira",
		ExternalKey: "OPS-1",
	}
	info := BuildRoute(issue)
	require.NotNil(t, info)
	assert.Equal(t, "/jira/jira/OPS/OPS-1", info.Route)
}

func TestBuildRouteJiraInvalidKey(t *testing.T) {
	issue := &models.Issue{
		Source:      "jira",
		ExternalKey: "not a key",
	}
	assert.Nil(t, BuildRoute(issue))
}

func TestBuildRouteUnknownSource(t *testing.T) {
	assert.Nil(t, BuildRoute(&models.Issue{Source: "gitlab", ExternalKey: "x#1"}))
	assert.Nil(t, BuildRoute(nil))
}

func TestBuildRouteIsDeterministic(t *testing.T) {
	issue := &models.Issue{
		Source:      "github",
		ExternalKey: "acme/widgets#7",
		Repo:        strPtr("acme/widgets"),
	}
	first := BuildRoute(issue)
	second := BuildRoute(issue)
	require.NotNil(t, first)
	require.NotNil(t, second)
	assert.Equal(t, first.Route, second.Route)
}

func TestParseRoute(t *testing.T) {
	source, key, ok := ParseRoute("/gh/acme/widgets/issues/7")
	require.True(t, ok)
	assert.Equal(t, "github", source)
	assert.Equal(t, "acme/widgets#7", key)

	source, key, ok = ParseRoute("/jira/acme/ABC/ABC-42")
	require.True(t, ok)
	assert.Equal(t, "jira", source)
	assert.Equal(t, "ABC-42", key)
}

func TestParseRouteRejectsGarbage(t *testing.T) {
	for _, route := range []string{
		"",
		"/",
		"/gh/acme/widgets/issues/notanumber",
		"/gh/acme/widgets/7",
		"/jira/acme/ABC/not a key",
		"/gitlab/a/b/1",
	} {
		_, _, ok := ParseRoute(route)
		assert.False(t, ok, "route %q should not parse", route)
	}
}
