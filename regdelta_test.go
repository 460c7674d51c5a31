package regdelta

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/regdelta/regdelta/pkg/changelog"
	"github.com/regdelta/regdelta/pkg/differ"
	"github.com/regdelta/regdelta/pkg/errors"
	"github.com/regdelta/regdelta/pkg/logging"
	"github.com/regdelta/regdelta/pkg/registry"
	"github.com/regdelta/regdelta/pkg/snapshot"
)

const testSchemaYAML = `
name: companies
fields:
  - name: cin
    kind: string
    key: true
  - name: company_name
    kind: string
  - name: company_status
    kind: string
  - name: authorized_capital
    kind: number
  - name: snapshot_date
    kind: date
    metadata: true
`

func testSchema(t *testing.T) *registry.Schema {
	t.Helper()
	s, err := registry.ParseSchema([]byte(testSchemaYAML))
	require.NoError(t, err)
	return s
}

func date(t *testing.T, s string) registry.Date {
	t.Helper()
	d, err := registry.ParseDate(s)
	require.NoError(t, err)
	return d
}

func writeSnapshot(t *testing.T, dir string, d registry.Date, rows string) {
	t.Helper()
	header := "cin,company_name,company_status,authorized_capital,snapshot_date\n"
	path := filepath.Join(dir, snapshot.Filename(d))
	require.NoError(t, os.WriteFile(path, []byte(header+rows), 0o644))
}

func newTestTracker(t *testing.T, snapDir string) *Tracker {
	t.Helper()
	tracker, err := New(
		WithSchema(testSchema(t)),
		WithSnapshotDir(snapDir),
		WithChangesDir(t.TempDir()),
		WithDBPath(":memory:"),
		WithLogger(logging.NewTestLogger(t).Logger),
		WithWorkers(2),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tracker.Close() })
	return tracker
}

func TestDetectFirstRunMarksAllNew(t *testing.T) {
	dir := t.TempDir()
	d := date(t, "2024-03-01")
	writeSnapshot(t, dir, d,
		"U100,Acme Ltd,Active,100000,2024-03-01\n"+
			"U200,Beta Ltd,Active,500000,2024-03-01\n")

	tracker := newTestTracker(t, dir)
	report, err := tracker.Detect(context.Background(), d)
	require.NoError(t, err)

	assert.True(t, report.PriorMissing)
	assert.Equal(t, 2, report.Summary.New)
	assert.Zero(t, report.Summary.Modified)
	assert.Zero(t, report.Summary.Deleted)
	assert.True(t, report.OK())
	assert.NotEmpty(t, report.RunID)
}

func TestDetectEndToEnd(t *testing.T) {
	dir := t.TempDir()
	day1 := date(t, "2024-03-01")
	day2 := date(t, "2024-03-02")
	writeSnapshot(t, dir, day1,
		"U100,Acme Ltd,Active,100000,2024-03-01\n"+
			"U200,Beta Ltd,Active,500000,2024-03-01\n"+
			"U300,Gamma Ltd,Active,200000,2024-03-01\n")
	writeSnapshot(t, dir, day2,
		"U100,Acme Ltd,Strike Off,100000,2024-03-02\n"+ // modified
			"U200,Beta Ltd,Active,500000,2024-03-02\n"+ // unchanged
			"U400,Delta Ltd,Active,300000,2024-03-02\n") // new; U300 deleted

	tracker := newTestTracker(t, dir)
	_, err := tracker.Detect(context.Background(), day1)
	require.NoError(t, err)

	report, err := tracker.Detect(context.Background(), day2)
	require.NoError(t, err)

	assert.False(t, report.PriorMissing)
	assert.Equal(t, day1, report.PriorDate)
	assert.Equal(t, 1, report.Summary.New)
	assert.Equal(t, 1, report.Summary.Modified)
	assert.Equal(t, 1, report.Summary.Deleted)
	assert.Equal(t, 1, report.Summary.Unchanged)
	assert.Equal(t, 3, report.Rows)
	assert.False(t, report.HasAnomalies())
	assert.Equal(t, changelog.StatusOK, report.Status())
	assert.Equal(t, 3, report.Persist.Inserted)

	// The queryable store and the artifact agree on what was written.
	records, err := tracker.Query().ByDateRange(context.Background(), day2, day2)
	require.NoError(t, err)
	require.Len(t, records, 3)

	var modified *differ.ChangeRecord
	for i := range records {
		if records[i].Kind == differ.KindModified {
			modified = &records[i]
		}
	}
	require.NotNil(t, modified)
	assert.Equal(t, "U100", modified.Key)
	assert.Equal(t, []string{"company_status"}, modified.ChangedFields)
	assert.Equal(t, "Active", modified.OldValues["company_status"])
	assert.Equal(t, "Strike Off", modified.NewValues["company_status"])
}

func TestDetectIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	day1 := date(t, "2024-03-01")
	day2 := date(t, "2024-03-02")
	writeSnapshot(t, dir, day1, "U100,Acme Ltd,Active,100000,2024-03-01\n")
	writeSnapshot(t, dir, day2, "U100,Acme Ltd,Strike Off,100000,2024-03-02\n")

	tracker := newTestTracker(t, dir)
	ctx := context.Background()
	_, err := tracker.Detect(ctx, day1)
	require.NoError(t, err)

	first, err := tracker.Detect(ctx, day2)
	require.NoError(t, err)
	second, err := tracker.Detect(ctx, day2)
	require.NoError(t, err)
	assert.Equal(t, first.Summary, second.Summary)

	records, err := tracker.Query().ByDateRange(ctx, day2, day2)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestDetectReportsAnomalies(t *testing.T) {
	dir := t.TempDir()
	d := date(t, "2024-03-01")
	writeSnapshot(t, dir, d,
		"U100,Acme Ltd,Active,100000,2024-03-01\n"+
			"U100,Acme Dupe,Active,100000,2024-03-01\n"+ // duplicate key
			",Nameless,Active,0,2024-03-01\n") // empty key, dropped

	tracker := newTestTracker(t, dir)
	report, err := tracker.Detect(context.Background(), d)
	require.NoError(t, err)

	assert.True(t, report.HasAnomalies())
	assert.Equal(t, []string{"U100"}, report.DuplicateKeys)
	assert.Equal(t, 1, report.Duplicates)
	assert.Equal(t, 1, report.Dropped)
	assert.Equal(t, 1, report.Summary.New)
	assert.True(t, report.OK())
}

func TestDetectMissingSnapshot(t *testing.T) {
	tracker := newTestTracker(t, t.TempDir())
	_, err := tracker.Detect(context.Background(), date(t, "2024-03-01"))
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestDetectSkipsGapDays(t *testing.T) {
	dir := t.TempDir()
	day1 := date(t, "2024-03-01")
	day5 := date(t, "2024-03-05")
	writeSnapshot(t, dir, day1, "U100,Acme Ltd,Active,100000,2024-03-01\n")
	writeSnapshot(t, dir, day5, "U100,Acme Ltd,Strike Off,100000,2024-03-05\n")

	tracker := newTestTracker(t, dir)
	ctx := context.Background()
	_, err := tracker.Detect(ctx, day1)
	require.NoError(t, err)

	report, err := tracker.Detect(ctx, day5)
	require.NoError(t, err)
	assert.False(t, report.PriorMissing)
	assert.Equal(t, day1, report.PriorDate)
	assert.Equal(t, 1, report.Summary.Modified)
}

func TestCompareWithoutPersisting(t *testing.T) {
	dir := t.TempDir()
	day1 := date(t, "2024-03-01")
	day2 := date(t, "2024-03-02")
	writeSnapshot(t, dir, day1, "U100,Acme Ltd,Active,100000,2024-03-01\n")
	writeSnapshot(t, dir, day2, "U100,Acme Ltd,Active,250000,2024-03-02\n")

	tracker := newTestTracker(t, dir)
	ctx := context.Background()

	changeset, err := tracker.Compare(ctx, day1, day2)
	require.NoError(t, err)
	require.Len(t, changeset.Records, 1)
	assert.Equal(t, differ.KindModified, changeset.Records[0].Kind)
	assert.Equal(t, []string{"authorized_capital"}, changeset.Records[0].ChangedFields)

	// Nothing was written to either sink.
	records, err := tracker.Query().ByDateRange(ctx, day1, day2)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestCompareRejectsReversedDates(t *testing.T) {
	tracker := newTestTracker(t, t.TempDir())
	_, err := tracker.Compare(context.Background(), date(t, "2024-03-02"), date(t, "2024-03-01"))
	require.Error(t, err)
	assert.True(t, errors.IsValidationError(err))
}

func TestCompareMissingOldSnapshot(t *testing.T) {
	dir := t.TempDir()
	day2 := date(t, "2024-03-02")
	writeSnapshot(t, dir, day2, "U100,Acme Ltd,Active,100000,2024-03-02\n")

	tracker := newTestTracker(t, dir)
	_, err := tracker.Compare(context.Background(), date(t, "2024-03-01"), day2)
	require.ErrorIs(t, err, errors.ErrMissingPriorSnapshot)
}

func TestPurge(t *testing.T) {
	dir := t.TempDir()
	tracker := newTestTracker(t, dir)
	ctx := context.Background()

	old := registry.Today().AddDays(-30)
	recent := registry.Today().AddDays(-1)
	writeSnapshot(t, dir, old, "U100,Acme Ltd,Active,100000,"+old.String()+"\n")
	writeSnapshot(t, dir, recent, "U100,Acme Ltd,Strike Off,100000,"+recent.String()+"\n")

	_, err := tracker.Detect(ctx, old)
	require.NoError(t, err)
	_, err = tracker.Detect(ctx, recent)
	require.NoError(t, err)

	result, err := tracker.Purge(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Artifacts)
	assert.Equal(t, 1, result.Rows)

	// The recent change log is still queryable.
	records, err := tracker.Query().ByDateRange(ctx, recent, recent)
	require.NoError(t, err)
	assert.Len(t, records, 1)

	// The old one is gone from both sinks.
	records, err = tracker.Query().ByDateRange(ctx, old, old)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestNewWithExternalDB(t *testing.T) {
	db, err := sqlx.Connect("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	defer db.Close()

	tracker, err := New(
		WithSchema(testSchema(t)),
		WithSnapshotDir(t.TempDir()),
		WithChangesDir(t.TempDir()),
		WithDB(db),
		WithLogger(logging.NewTestLogger(t).Logger),
	)
	require.NoError(t, err)

	// Close leaves the caller-owned handle open.
	require.NoError(t, tracker.Close())
	assert.NoError(t, db.Ping())
}

func TestNewRejectsBadOptions(t *testing.T) {
	_, err := New(WithWorkers(0))
	require.Error(t, err)

	_, err = New(WithSnapshotDir(""))
	require.Error(t, err)
}
