package services

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"triage-copilot/models"
)

func TestLinkifyTextRewritesGitHubIssueURL(t *testing.T) {
	html := LinkifyText("see https://github.com/a/b/issues/5 for details")
	assert.Contains(t, html, `<a href="/gh/a/b/issues/5">/gh/a/b/issues/5</a>`)
	assert.NotContains(t, html, "github.com")
	assert.NotContains(t, html, "rel=")
}

func TestLinkifyTextRewritesJiraBrowseURL(t *testing.T) {
	html := LinkifyText("tracked in https://acme.atlassian.net/browse/ABC-42")
	assert.Contains(t, html, `<a href="/jira/acme/ABC/ABC-42">/jira/acme/ABC/ABC-42</a>`)
	assert.NotContains(t, html, "atlassian.net")
}

func TestLinkifyTextExternalURLGetsRelAttributes(t *testing.T) {
	html := LinkifyText("docs at https://example.com/docs")
	assert.Contains(t, html, `<a href="https://example.com/docs" rel="nofollow noopener noreferrer">https://example.com/docs</a>`)
}

func TestLinkifyTextPartialTrackerURLStaysExternal(t *testing.T) {
	// sieht aus wie ein Tracker-Link, parst aber nicht vollständig
	html := LinkifyText("https://github.com/a/b/issues/")
	assert.Contains(t, html, `rel="nofollow noopener noreferrer"`)
}

func TestLinkifyTextEscapesHTML(t *testing.T) {
	html := LinkifyText(`<script>alert("x")</script> & more`)
	assert.NotContains(t, html, "<script>")
	assert.Contains(t, html, "&lt;script&gt;")
	assert.Contains(t, html, "&amp; more")
}

func TestLinkifyTextParagraphsAndLineBreaks(t *testing.T) {
	html := LinkifyText("first paragraph\n\nsecond\nwith break")
	assert.Equal(t, 2, strings.Count(html, "<p>"))
	assert.Equal(t, 2, strings.Count(html, "</p>"))
	assert.Contains(t, html, "second<br>with break")
}

func TestLinkifyTextTrailingPunctuation(t *testing.T) {
	html := LinkifyText("read https://example.com/docs.")
	assert.Contains(t, html, `href="https://example.com/docs"`)
	assert.Contains(t, html, "</a>.")
}

func TestLinkifyTextEmpty(t *testing.T) {
	assert.Equal(t, "", LinkifyText(""))
	assert.Equal(t, "", LinkifyText("   \n\n  "))
}

func TestRenderIssueBasics(t *testing.T) {
	issue := &models.Issue{
		ID:          12,
		Source:      "github",
		ExternalKey: "acme/widgets#7",
		Repo:        strPtr("acme/widgets"),
		Title:       "Login broken",
		Body:        "see https://github.com/acme/widgets/issues/3",
		Status:      "open",
	}
	record := RenderIssue(issue, []string{"bug", "bug", "auth"})
	require.NotNil(t, record)
	assert.Equal(t, "/gh/acme/widgets/issues/7", record.Route)
	assert.Contains(t, record.BodyHTML, `<a href="/gh/acme/widgets/issues/3">`)
	assert.Equal(t, []string{"auth", "bug"}, record.Labels)
	require.NotNil(t, record.Status)
	assert.Equal(t, "open", *record.Status)
}

func TestRenderIssueUnaddressableReturnsNil(t *testing.T) {
	issue := &models.Issue{Source: "jira", ExternalKey: "not a key"}
	assert.Nil(t, RenderIssue(issue, nil))
}

func TestRenderIssueJiraPriority(t *testing.T) {
	issue := &models.Issue{
		Source:      "jira",
		ExternalKey: "ABC-1",
		RawJSON:     []byte(`{"fields": {"priority": {"name": "High"}}}`),
	}
	record := RenderIssue(issue, nil)
	require.NotNil(t, record)
	require.NotNil(t, record.Priority)
	assert.Equal(t, "High", *record.Priority)
}

func TestRenderIssueGitHubPriorityString(t *testing.T) {
	issue := &models.Issue{
		Source:      "github",
		ExternalKey: "a/b#1",
		RawJSON:     []byte(`{"issue": {"priority": "p1"}}`),
	}
	record := RenderIssue(issue, nil)
	require.NotNil(t, record)
	require.NotNil(t, record.Priority)
	assert.Equal(t, "p1", *record.Priority)
}

func TestRenderIssueComments(t *testing.T) {
	issue := &models.Issue{
		Source:      "jira",
		ExternalKey: "ABC-2",
		RawJSON: []byte(`{"fields": {"comment": {"comments": [
			{"author": {"displayName": "Dana"}, "body": "check https://example.com please", "created": "2026-01-02T10:00:00Z"}
		]}}}`),
	}
	record := RenderIssue(issue, nil)
	require.NotNil(t, record)
	require.Len(t, record.Comments, 1)
	assert.Equal(t, "Dana", record.Comments[0].Author)
	assert.Contains(t, record.Comments[0].BodyHTML, `rel="nofollow noopener noreferrer"`)
	assert.Equal(t, "2026-01-02T10:00:00Z", record.Comments[0].CreatedAt)
}

func TestRenderIssueCommentsDefaultEmpty(t *testing.T) {
	issue := &models.Issue{Source: "jira", ExternalKey: "ABC-3"}
	record := RenderIssue(issue, nil)
	require.NotNil(t, record)
	assert.NotNil(t, record.Comments)
	assert.Empty(t, record.Comments)
}

func TestDeterminismBanner(t *testing.T) {
	issue := &models.Issue{
		Source:      "github",
		ExternalKey: "a/b#1",
		RawJSON:     []byte(`{"determinism": {"seed": 1234, "generated_at": "2026-05-01T00:00:00Z"}}`),
	}
	record := RenderIssue(issue, nil)
	require.NotNil(t, record)
	assert.Equal(t, "Synthetic. Source: github. Seed: 1234. Generated: 2026-05-01T00:00:00Z.", record.Determinism)
}

func TestDeterminismBannerWithoutSeed(t *testing.T) {
	issue := &models.Issue{Source: "jira", ExternalKey: "ABC-9"}
	record := RenderIssue(issue, nil)
	require.NotNil(t, record)
	assert.Equal(t, "Synthetic. Source: jira.", record.Determinism)
}
