package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNextVersion(t *testing.T) {
	cases := map[string]string{
		"1.0":   "2.0",
		"2.5":   "3.5",
		"3":     "4.0",
		"":      "2.0",
		"draft": "2.0",
		" 1.0 ": "2.0",
	}
	for in, want := range cases {
		assert.Equal(t, want, NextVersion(in), "NextVersion(%q)", in)
	}
}

func TestEndpointsSplitsMethodToken(t *testing.T) {
	r := Report{URLs: "GET https://api.example.com/users\n\nhttps://example.com\npost /login\nGETTER /x"}
	eps := r.Endpoints()
	assert.Equal(t, []Endpoint{
		{Method: "GET", URL: "https://api.example.com/users"},
		{URL: "https://example.com"},
		{Method: "POST", URL: "/login"},
		{URL: "GETTER /x"},
	}, eps)
	assert.Equal(t, "POST /login", eps[2].String())
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	r := Report{
		ID:          "r1",
		ProjectName: "Portal",
		Version:     "1.0",
		Findings: []Finding{{
			Title:             "XSS",
			Severity:          SeverityHigh,
			Status:            StatusClosed,
			AffectedEndpoints: []string{"/a"},
		}},
	}
	s := r.Snapshot()
	r.Findings[0].Title = "changed"
	r.Findings[0].AffectedEndpoints[0] = "/b"

	assert.Equal(t, "XSS", s.Findings[0].Title)
	assert.Equal(t, []string{"/a"}, s.Findings[0].AffectedEndpoints)
	assert.Equal(t, StatusClosed, s.Findings[0].Status)
}

func TestSeverityRankAndMapping(t *testing.T) {
	for i, s := range Severities {
		assert.Equal(t, i, s.Rank())
		assert.True(t, s.Valid())
	}
	assert.False(t, SeverityNone.Valid())
	assert.Equal(t, SeverityCritical, MapSeverity("CRITICAL"))
	assert.Equal(t, SeverityInfo, MapSeverity("info"))
	assert.Equal(t, SeverityMedium, MapSeverity("moderate"))
	assert.False(t, MapSeverity("urgent").Valid())
}

func TestFindingIsOpenDefaultsToOpen(t *testing.T) {
	assert.True(t, (&Finding{}).IsOpen())
	assert.True(t, (&Finding{Status: StatusOpen}).IsOpen())
	assert.False(t, (&Finding{Status: StatusClosed}).IsOpen())
}
