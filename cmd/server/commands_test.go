package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

const governanceYAML = `
team:
  FE: {team_size: 10, efficiency: 1.0}
quotas: {client: 0.5, internal: 0.5}
`

const commitmentsYAML = `
- id: portal
  title: Portal
  portfolio: client
  role_fte: {FE: 4}
  planned_start: 2025-03-01
  planned_end: 2025-03-31
  activities: ["[FE] Shell | Simple", "[FE] Forms | Medium", "[FE] Launch | Simple"]
`

func TestCheckCmd_RejectsOverCapacity(t *testing.T) {
	// GIVEN: FE client capacity 5 with 4 committed in March
	dir := t.TempDir()
	gov := writeFile(t, dir, "governance.yaml", governanceYAML)
	commitments := writeFile(t, dir, "commitments.yaml", commitmentsYAML)
	proposal := writeFile(t, dir, "proposal.json", `{"portfolio": "client", "role_fte": {"FE": 2}}`)

	// WHEN: Checking 2 more FE in the week of 2025-03-03
	out, err := run(t, "check", proposal, "--governance", gov, "--commitments", commitments, "--as-of", "2025-03-03")

	// THEN: The decision is printed as REJECTED at 120%
	require.NoError(t, err)
	var res struct {
		Validation struct {
			Status      string            `json:"status"`
			BreachRoles []string          `json:"breach_roles"`
			Utilization map[string]string `json:"utilization_percentage"`
		} `json:"validation"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res), out)
	assert.Equal(t, "REJECTED", res.Validation.Status)
	assert.Equal(t, []string{"FE"}, res.Validation.BreachRoles)
	assert.Equal(t, "120.0%", res.Validation.Utilization["FE"])
}

func TestCheckCmd_StrictFailsOnRejection(t *testing.T) {
	dir := t.TempDir()
	gov := writeFile(t, dir, "governance.yaml", governanceYAML)
	proposal := writeFile(t, dir, "proposal.yaml", "portfolio: client\nrole_fte: {FE: 6}\n")

	_, err := run(t, "check", proposal, "--governance", gov, "--as-of", "2025-03-03", "--strict")
	assert.Error(t, err)
}

func TestCheckCmd_InputErrors(t *testing.T) {
	dir := t.TempDir()
	gov := writeFile(t, dir, "governance.yaml", governanceYAML)
	badPortfolio := writeFile(t, dir, "bad.yaml", "portfolio: partner\n")

	_, err := run(t, "check", badPortfolio, "--governance", gov)
	assert.Error(t, err)

	_, err = run(t, "check", badPortfolio)
	assert.Error(t, err, "governance flag is required")
}

func TestProjectCmd_SplitsActivities(t *testing.T) {
	dir := t.TempDir()
	commitments := writeFile(t, dir, "commitments.yaml", commitmentsYAML)

	out, err := run(t, "project", commitments, "--scheme", "calendar")

	require.NoError(t, err)
	var res []struct {
		Title      string  `json:"title"`
		Scheduled  bool    `json:"scheduled"`
		TotalWeeks float64 `json:"total_weeks"`
		Slices     []struct {
			Bucket string `json:"bucket"`
		} `json:"slices"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res), out)
	require.Len(t, res, 1)
	assert.Equal(t, "Portal", res[0].Title)
	assert.True(t, res[0].Scheduled)
	require.Len(t, res[0].Slices, 3)
	for _, s := range res[0].Slices {
		assert.Equal(t, "Q1", s.Bucket)
	}

	_, err = run(t, "project", commitments, "--scheme", "lunar")
	assert.Error(t, err)
}
