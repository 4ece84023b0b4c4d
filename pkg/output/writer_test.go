package output

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSONLWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "run-123")

	assert.NotNil(t, w)
	assert.Equal(t, "run-123", w.runID)
}

func TestJSONLWriter_WriteStage(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "run-123")

	stage := &StageRecord{
		RunID:    "run-123",
		Stage:    1,
		Label:    "tables",
		Status:   "completed",
		Errors:   3,
		Warnings: 7,
		Duration: 1500 * time.Millisecond,
	}

	err := w.WriteStage(context.Background(), stage)
	require.NoError(t, err)

	// Parse the output
	var record Record
	err = json.Unmarshal(buf.Bytes(), &record)
	require.NoError(t, err)

	assert.Equal(t, TypeStage, record.Type)
	assert.Equal(t, "run-123", record.RunID)
	assert.False(t, record.TS.IsZero())

	// Parse the data payload
	var stageData StageRecord
	err = json.Unmarshal(record.Data, &stageData)
	require.NoError(t, err)

	assert.Equal(t, 1, stageData.Stage)
	assert.Equal(t, "tables", stageData.Label)
	assert.Equal(t, "completed", stageData.Status)
	assert.Equal(t, 3, stageData.Errors)
	assert.Equal(t, 7, stageData.Warnings)
}

func TestJSONLWriter_WriteProgress(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "run-123")

	remaining := 90 * time.Second
	prog := &ProgressRecord{
		Stage:          2,
		Label:          "geometry",
		Percent:        40,
		ProcessedUnits: 400,
		TotalUnits:     1000,
		Remaining:      &remaining,
		Confidence:     0.7,
		Display:        "~1m30s remaining",
	}

	err := w.WriteProgress(context.Background(), prog)
	require.NoError(t, err)

	var record Record
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, TypeProgress, record.Type)

	var progData ProgressRecord
	require.NoError(t, json.Unmarshal(record.Data, &progData))
	require.NotNil(t, progData.Remaining)
	assert.Equal(t, remaining, *progData.Remaining)
	assert.Equal(t, "~1m30s remaining", progData.Display)
}

func TestJSONLWriter_WriteSummary(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "run-123")

	sum := NewSummaryRecord("run-123", "completed", 5, 12, 42*time.Second)
	err := w.WriteSummary(context.Background(), sum)
	require.NoError(t, err)

	var record Record
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, TypeSummary, record.Type)

	var sumData SummaryRecord
	require.NoError(t, json.Unmarshal(record.Data, &sumData))
	assert.Equal(t, "completed", sumData.Status)
	assert.Equal(t, 5, sumData.Errors)
	assert.Equal(t, "42s", sumData.DurationHuman)
}

func TestJSONLWriter_OneLinePerRecord(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "run-123")

	require.NoError(t, w.WriteStage(context.Background(), &StageRecord{Stage: 0, Status: "completed"}))
	require.NoError(t, w.WriteError(context.Background(), &ErrorRecord{Code: ErrCodeStageFailed, Message: "boom"}))
	require.NoError(t, w.WriteSummary(context.Background(), NewSummaryRecord("run-123", "completed", 0, 0, time.Second)))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	for _, line := range lines {
		var record Record
		assert.NoError(t, json.Unmarshal([]byte(line), &record),
			"each line must be a self-contained JSON record")
	}
}

func TestJSONLWriter_ClosedRejectsWrites(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "run-123")

	require.NoError(t, w.Close())

	err := w.WriteStage(context.Background(), &StageRecord{Stage: 0})
	assert.ErrorIs(t, err, ErrWriterClosed)
}

func TestJSONLWriter_CancelledContext(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "run-123")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := w.WriteStage(ctx, &StageRecord{Stage: 0})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, buf.Len())
}

// shortWriter writes at most n bytes per call to exercise short-write
// handling.
type shortWriter struct {
	buf bytes.Buffer
	n   int
}

func (sw *shortWriter) Write(p []byte) (int, error) {
	if len(p) > sw.n {
		p = p[:sw.n]
	}
	return sw.buf.Write(p)
}

func TestJSONLWriter_HandlesShortWrites(t *testing.T) {
	sw := &shortWriter{n: 7}
	w := NewJSONLWriter(sw, "run-123")

	require.NoError(t, w.WriteStage(context.Background(), &StageRecord{Stage: 3, Label: "attributes", Status: "completed"}))

	var record Record
	assert.NoError(t, json.Unmarshal(sw.buf.Bytes(), &record))
}

// failingWriter always errors.
type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) {
	return 0, errors.New("disk full")
}

func TestJSONLWriter_WrapsWriteErrors(t *testing.T) {
	w := NewJSONLWriter(failingWriter{}, "run-123")

	err := w.WriteStage(context.Background(), &StageRecord{Stage: 0})
	require.Error(t, err)

	var werr *WriteError
	require.ErrorAs(t, err, &werr)
	assert.Equal(t, "write", werr.Op)
}

func TestJSONLWriter_ConcurrentWrites(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "run-123")

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_ = w.WriteProgress(context.Background(), &ProgressRecord{Stage: n % 6, Percent: float64(n)})
		}(i)
	}
	wg.Wait()

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	assert.Len(t, lines, 16)
	for _, line := range lines {
		var record Record
		assert.NoError(t, json.Unmarshal([]byte(line), &record),
			"concurrent writes must not interleave")
	}
}
