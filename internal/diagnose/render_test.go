package diagnose

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleReport() *Report {
	results := []Result{
		{Index: 1, Name: StageRuntime, Status: StatusPass, Facts: []Fact{{"Runtime version", "0.6.2"}}},
		{Index: 2, Name: StageLoadProbe, Status: StatusFail, Kind: KindPolicy, Detail: "refused", Notes: []string{PolicyNote}},
		{Index: 3, Name: StageAssets, Status: StatusPass, Items: []Item{{Label: "Video", OK: true, Detail: "sun.mp4 (1.2 MB)"}}},
	}
	summary := summaryStage(nil, results)
	summary.Index, summary.Name = 4, StageSummary
	return &Report{Results: append(results, summary), Summary: Summarize(results)}
}

func TestTextRenderer(t *testing.T) {
	var buf bytes.Buffer
	r := NewTextRenderer(&buf, 3, false)
	for _, res := range sampleReport().Results {
		r.Result(res)
	}
	out := buf.String()

	assert.Contains(t, out, "[1/3] Runtime and backend...\n  Runtime version: 0.6.2\n")
	assert.Contains(t, out, "  ✗ Error: refused\n  Note: expected due to runtime security defaults\n")
	assert.Contains(t, out, "  ✓ Video: sun.mp4 (1.2 MB)\n")
	assert.Contains(t, out, "Summary:\n")
	assert.Contains(t, out, "✗ [2] Model load probe\n")
	assert.Contains(t, out, "Not ready: 1 of 3 checks failed (Model load probe)\n")
	assert.NotContains(t, out, "\x1b[")
}

func TestTextRenderer_FatalAndColor(t *testing.T) {
	var buf bytes.Buffer
	r := NewTextRenderer(&buf, 5, true)
	r.Result(Result{Index: 2, Name: StageExtension, Status: StatusFail, Fatal: true, Detail: "born-ops: library born_ops: missing"})

	out := buf.String()
	assert.Contains(t, out, "[2/5] Native extension...")
	assert.Contains(t, out, "Stopping: Native extension is required for inference")
	assert.Contains(t, out, "\x1b[31m")
}

func TestWriteJSON(t *testing.T) {
	report := sampleReport()
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, report))

	var decoded struct {
		Report Report `json:"report"`
		Digest string `json:"digest"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, *report, decoded.Report)

	digest, err := Digest(report)
	require.NoError(t, err)
	assert.Equal(t, digest, decoded.Digest)
	assert.Len(t, digest, 64)

	// Canonical form sorts keys, so "halted" precedes "results".
	assert.Less(t, strings.Index(buf.String(), `"halted"`), strings.Index(buf.String(), `"results"`))
}

func TestDigest_ChangesWithContent(t *testing.T) {
	a := sampleReport()
	b := sampleReport()
	b.Results[0].Facts[0].Value = "0.7.0"

	da, err := Digest(a)
	require.NoError(t, err)
	db, err := Digest(b)
	require.NoError(t, err)
	assert.NotEqual(t, da, db)
}
