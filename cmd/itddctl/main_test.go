package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	appresolution "github.com/itdd/backend/internal/application/resolution"
	"github.com/itdd/backend/internal/domain/shared"
	"github.com/itdd/backend/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const batchYAML = `structured:
  - type: application
    name: Salesforce
    ownership_scope: target
    source_reference: "inventory.xlsx#Applications!A2"
    attributes:
      vendor: Salesforce
      cost: "120000"
      currency: USD
narrative:
  - item_text: Salesforce CRM
    type: application
    ownership_scope: target
    confidence: 0.8
    source_reference: "cim.pdf#p12"
    extracted_fields:
      vendor: Salesforce Inc
      user_count: 450
`

// testCLI points the CLI at a sqlite file in a fresh directory holding config.toml
type testCLI struct {
	dir string
}

func newTestCLI(t *testing.T) *testCLI {
	t.Helper()
	dir := t.TempDir()
	toml := fmt.Sprintf(`[database]
driver = "sqlite"
sqlite_path = %q

[log]
level = "error"
`, filepath.Join(dir, "itdd.db"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(toml), 0o644))
	return &testCLI{dir: dir}
}

func (tc *testCLI) run(args ...string) (string, error) {
	var out bytes.Buffer
	c := &cli{out: &out, load: config.LoadFrom}
	root := newRootCmd(c)
	root.SetArgs(append([]string{"--config-dir", tc.dir, "--log-level", "error"}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func (tc *testCLI) writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(tc.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestIngest_ConvergesAndPersists(t *testing.T) {
	tc := newTestCLI(t)
	deal := uuid.New().String()
	file := tc.writeFile(t, "batch.yaml", batchYAML)

	out, err := tc.run("ingest", file, "--deal", deal, "-o", "json")
	require.NoError(t, err, out)

	var result appresolution.BatchResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 1, result.Appended)
	assert.Equal(t, 0, result.Failed)
	require.Len(t, result.Items, 2)
	assert.Equal(t, result.Items[0].RecordID, result.Items[1].RecordID)

	out, err = tc.run("records", "list", "--deal", deal, "--scope", "target", "-o", "json")
	require.NoError(t, err, out)
	var views []appresolution.RecordView
	require.NoError(t, json.Unmarshal([]byte(out), &views))
	require.Len(t, views, 1)
	assert.Equal(t, "Salesforce", views[0].Vendor)
	assert.Equal(t, 2, views[0].ObservationCount)

	out, err = tc.run("records", "evidence", views[0].ID, "-o", "json")
	require.NoError(t, err, out)
	var chain appresolution.EvidenceChain
	require.NoError(t, json.Unmarshal([]byte(out), &chain))
	assert.Len(t, chain.Observations, 2)

	out, err = tc.run("records", "list", "--deal", deal, "--scope", "acquirer", "-o", "json")
	require.NoError(t, err)
	assert.JSONEq(t, "[]", out)
}

func TestIngest_JSONFileAndForeignDeal(t *testing.T) {
	tc := newTestCLI(t)
	deal := uuid.New().String()
	other := uuid.New().String()
	batch := appresolution.Batch{Structured: []appresolution.StructuredEvent{
		{Type: "application", Name: "Workday", OwnershipScope: "acquirer", SourceReference: "apps.csv#1"},
		{Type: "application", Name: "Okta", OwnershipScope: "acquirer", DealScope: other, SourceReference: "apps.csv#2"},
	}}
	raw, err := json.Marshal(batch)
	require.NoError(t, err)
	file := tc.writeFile(t, "batch.json", string(raw))

	out, err := tc.run("ingest", file, "--deal", deal, "--no-reconcile", "-o", "json")
	require.NoError(t, err, out)
	var result appresolution.BatchResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, 2, result.Created, "an explicit deal_scope is kept")
	assert.Empty(t, result.Reconcile)
}

func TestIngest_Errors(t *testing.T) {
	tc := newTestCLI(t)

	_, err := tc.run("ingest", filepath.Join(tc.dir, "missing.yaml"))
	assert.Error(t, err)

	empty := tc.writeFile(t, "empty.yaml", "structured: []\n")
	_, err = tc.run("ingest", empty, "--deal", uuid.New().String())
	assert.ErrorContains(t, err, "contains no events")

	file := tc.writeFile(t, "batch.yaml", batchYAML)
	_, err = tc.run("ingest", file, "--deal", "not-a-uuid")
	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "deal", verr.Field)
}

func TestReconcileAndExport(t *testing.T) {
	tc := newTestCLI(t)
	deal := uuid.New().String()
	file := tc.writeFile(t, "batch.yaml", batchYAML)
	_, err := tc.run("ingest", file, "--deal", deal, "--no-reconcile")
	require.NoError(t, err)

	out, err := tc.run("reconcile", "--deal", deal, "--scope", "target", "-o", "json")
	require.NoError(t, err, out)
	var report map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.EqualValues(t, 1, report["records_after"])

	out, err = tc.run("export", "--deal", deal, "--scope", "target")
	require.NoError(t, err)
	assert.Contains(t, out, "record_count: 1")
	assert.Contains(t, out, "Salesforce")

	target := filepath.Join(tc.dir, "export.json")
	_, err = tc.run("export", "--deal", deal, "--scope", "target", "--format", "json", "--file", target)
	require.NoError(t, err)
	raw, err := os.ReadFile(target)
	require.NoError(t, err)
	var snap appresolution.ScopeSnapshot
	require.NoError(t, json.Unmarshal(raw, &snap))
	assert.Equal(t, 1, snap.RecordCount)

	_, err = tc.run("export", "--deal", deal, "--scope", "target", "--publish")
	var derr *shared.DomainError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, "EXPORT_STORAGE_DISABLED", derr.Code)
}

func TestRootFlags(t *testing.T) {
	tc := newTestCLI(t)

	_, err := tc.run("records", "list", "--deal", uuid.New().String(), "--scope", "target", "-o", "xml")
	assert.ErrorContains(t, err, "--output")

	_, err = tc.run("records", "list", "--deal", uuid.New().String(), "--scope", "seller")
	assert.Error(t, err)

	_, err = tc.run("reconcile", "--scope", "target")
	assert.ErrorContains(t, err, "deal")
}

func TestReviews_ListEmptyAndUnknown(t *testing.T) {
	tc := newTestCLI(t)
	deal := uuid.New().String()

	out, err := tc.run("reviews", "list", "--deal", deal, "--scope", "target", "-o", "json")
	require.NoError(t, err, out)
	var page map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &page))
	assert.EqualValues(t, 0, page["total"])

	_, err = tc.run("reviews", "resolve", uuid.New().String(), "--decision", "reject", "--reviewer", "ana")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}
