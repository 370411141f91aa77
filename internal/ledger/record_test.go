package ledger

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/iotest"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var entryCmp = cmp.Options{
	cmp.Comparer(func(a, b decimal.Decimal) bool { return a.Equal(b) }),
	cmp.Comparer(func(a, b time.Time) bool { return a.Equal(b) }),
}

func TestSaveLoadRoundTrip(t *testing.T) {
	l := New(WithClock(fixedClock))
	_, _ = l.Income(dec("50.00"), "coffee")
	_, _ = l.Out(dec("20.125"), "snack, chips and a drink")
	_, _ = l.Out(dec("3"), "line\nbreak")

	path := filepath.Join(t.TempDir(), "ledger.csv")
	require.NoError(t, l.SaveFile(path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, ""+
		"IN,2025-09-17,50,uncategorized,coffee\n"+
		"OUT,2025-09-17,20.125,uncategorized,snack  chips and a drink\n"+
		"OUT,2025-09-17,3,uncategorized,line break\n", string(raw))

	restored := New()
	report, err := restored.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, LoadReport{Loaded: 3}, report)

	want := l.Entries()
	for i := range want {
		want[i].Description = fieldSanitizer.Replace(want[i].Description)
	}
	if diff := cmp.Diff(want, restored.Entries(), entryCmp); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
	assert.True(t, restored.Balance().Equal(l.Balance()))
}

func TestLoadKeepsCategory(t *testing.T) {
	l := New()
	report, err := l.Load(strings.NewReader("OUT,2025-01-02,9.99,food,pizza, extra cheese\n"))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Loaded)

	e := l.Entries()[0]
	assert.Equal(t, "food", e.Category)
	assert.Equal(t, "pizza, extra cheese", e.Description)
	assert.Equal(t, "OUT | 2025-01-02 | 9.99 | food: pizza, extra cheese", FormatLine(e))
}

func TestLoadSkipsMalformedRecords(t *testing.T) {
	input := strings.Join([]string{
		"IN,2025-01-01,10,uncategorized,ok one",
		"IN,2025-01-01,10",
		"XX,2025-01-01,10,uncategorized,bad kind",
		"OUT,01/02/2025,4,uncategorized,bad date",
		"",
		"OUT,2025-01-02,four,uncategorized,bad amount",
		"OUT,2025-01-02,-4,uncategorized,negative amount",
		"OUT,2025-01-03,4,uncategorized,ok two",
	}, "\n")

	l := New()
	_, _ = l.Income(dec("999"), "replaced")
	report, err := l.Load(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, 2, report.Loaded)
	assert.Equal(t, 5, report.Skipped)
	assert.Equal(t, []int{2, 3, 4, 6, 7}, report.SkippedLines)
	assert.Equal(t, "6", l.Balance().String())
}

func TestLoadFileMissingLeavesLedgerUntouched(t *testing.T) {
	l := New()
	_, _ = l.Income(dec("5"), "keep")
	_, err := l.LoadFile(filepath.Join(t.TempDir(), "missing.csv"))
	require.Error(t, err)
	assert.Equal(t, 1, l.Len())
}

func TestSaveEmptyLedger(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, New().Save(&buf))
	assert.Empty(t, buf.String())
}

func TestLoadHandlesVeryLongLines(t *testing.T) {
	longDesc := strings.Repeat("d", 100_000)
	input := strings.Join([]string{
		"IN,2025-01-01,10,uncategorized,first",
		strings.Repeat("x", 70_000),
		"OUT,2025-01-02,4,uncategorized," + longDesc,
		"OUT,2025-01-03,1,uncategorized,last",
	}, "\r\n")

	l := New()
	report, err := l.Load(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, 3, report.Loaded)
	assert.Equal(t, []int{2}, report.SkippedLines)
	assert.Equal(t, "7", l.Balance().String())
	assert.Equal(t, longDesc, l.Entries()[1].Description)
}

func TestLoadReadErrorLeavesLedgerUntouched(t *testing.T) {
	l := New()
	_, _ = l.Income(dec("5"), "keep")

	r := io.MultiReader(
		strings.NewReader("IN,2025-01-01,10,uncategorized,partial\n"),
		iotest.ErrReader(errors.New("disk gone")),
	)
	_, err := l.Load(r)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk gone")
	require.Equal(t, 1, l.Len())
	assert.Equal(t, "keep", l.Entries()[0].Description)
}
