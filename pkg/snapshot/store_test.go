package snapshot

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/regdelta/regdelta/pkg/errors"
	"github.com/regdelta/regdelta/pkg/registry"
)

func testSchema(t *testing.T) *registry.Schema {
	t.Helper()
	s, err := registry.ParseSchema([]byte(
		"name: t\nfields:\n" +
			"  - name: cin\n    kind: string\n    key: true\n" +
			"  - name: company_name\n    kind: string\n" +
			"  - name: company_status\n    kind: string\n" +
			"  - name: paidup_capital\n    kind: number\n" +
			"  - name: snapshot_date\n    kind: date\n    metadata: true\n",
	))
	require.NoError(t, err)
	return s
}

func writeSnapshot(t *testing.T, dir string, date string, content string) registry.Date {
	t.Helper()
	d, err := registry.ParseDate(date)
	require.NoError(t, err)
	path := filepath.Join(dir, Filename(d))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return d
}

func TestFileStoreLoad(t *testing.T) {
	dir := t.TempDir()
	schema := testSchema(t)

	date := writeSnapshot(t, dir, "2025-01-02",
		"cin,company_name,company_status,paidup_capital\n"+
			"K1,Acme,Active,1000\n"+
			"K2,Globex,Closed,2000\n")

	store, err := NewFileStore(dir, schema)
	require.NoError(t, err)

	ix, err := store.Load(context.Background(), date)
	require.NoError(t, err)
	assert.Equal(t, 2, ix.Len())
	assert.Equal(t, 2, ix.Rows)
	assert.Zero(t, ix.Dropped)
	assert.Equal(t, "Acme", ix.Records["K1"]["company_name"])
}

func TestFileStoreNotFound(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), testSchema(t))
	require.NoError(t, err)

	d, _ := registry.ParseDate("2025-01-02")
	_, err = store.Load(context.Background(), d)
	assert.True(t, errors.IsNotFound(err))
	assert.False(t, store.Exists(d))
}

func TestFileStoreDates(t *testing.T) {
	dir := t.TempDir()
	schema := testSchema(t)

	writeSnapshot(t, dir, "2025-01-03", "cin\nK1\n")
	writeSnapshot(t, dir, "2025-01-01", "cin\nK1\n")
	writeSnapshot(t, dir, "2025-01-02", "cin\nK1\n")
	// Stray files are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "snapshot_bogus.csv"), []byte("x"), 0o644))

	store, err := NewFileStore(dir, schema)
	require.NoError(t, err)

	dates, err := store.Dates()
	require.NoError(t, err)
	require.Len(t, dates, 3)
	assert.Equal(t, "2025-01-01", dates[0].String())
	assert.Equal(t, "2025-01-03", dates[2].String())
}

func TestReaderSchemaMismatch(t *testing.T) {
	dir := t.TempDir()
	schema := testSchema(t)

	date := writeSnapshot(t, dir, "2025-01-02", "company_name,company_status\nAcme,Active\n")

	store, err := NewFileStore(dir, schema)
	require.NoError(t, err)

	_, err = store.Open(context.Background(), date)
	require.Error(t, err)
	assert.True(t, errors.IsSchemaMismatch(err))
}

func TestReaderCorruptRowsCounted(t *testing.T) {
	dir := t.TempDir()
	schema := testSchema(t)

	// Second row is too short, third has no key, fourth is fine.
	date := writeSnapshot(t, dir, "2025-01-02",
		"cin,company_name,company_status,paidup_capital\n"+
			"K1,Acme,Active,1000\n"+
			"short,row\n"+
			",NoKey,Active,1\n"+
			"K2,Globex,Closed,2000\n")

	store, err := NewFileStore(dir, schema)
	require.NoError(t, err)

	ix, err := store.Load(context.Background(), date)
	require.NoError(t, err)
	assert.Equal(t, 2, ix.Len())
	assert.Equal(t, 2, ix.Dropped)
	assert.Equal(t, 4, ix.Rows)
}

func TestBuildIndexDuplicateKeys(t *testing.T) {
	dir := t.TempDir()
	schema := testSchema(t)

	date := writeSnapshot(t, dir, "2025-01-02",
		"cin,company_name,company_status,paidup_capital\n"+
			"K1,First,Active,1\n"+
			"K1,Second,Active,2\n"+
			"K1,Third,Active,3\n"+
			"K2,Other,Active,4\n")

	store, err := NewFileStore(dir, schema)
	require.NoError(t, err)

	ix, err := store.Load(context.Background(), date)
	require.NoError(t, err)

	// First occurrence wins; the two extras are counted.
	assert.Equal(t, "First", ix.Records["K1"]["company_name"])
	assert.Equal(t, []string{"K1"}, ix.DuplicateKeys)
	assert.Equal(t, 2, ix.Duplicates)
	assert.Equal(t, 2, ix.Len())
}

func TestReaderStreams(t *testing.T) {
	dir := t.TempDir()
	schema := testSchema(t)

	date := writeSnapshot(t, dir, "2025-01-02",
		"cin,company_name,company_status,paidup_capital\n"+
			"K1,Acme,Active,1000\n"+
			"K2,Globex,Closed,2000\n")

	store, err := NewFileStore(dir, schema)
	require.NoError(t, err)

	r, err := store.Open(context.Background(), date)
	require.NoError(t, err)
	defer r.Close()

	var keys []string
	for {
		rec, err := r.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		keys = append(keys, rec.Key(schema))
	}
	assert.Equal(t, []string{"K1", "K2"}, keys)
}

func TestBuildIndexCancellation(t *testing.T) {
	dir := t.TempDir()
	schema := testSchema(t)

	date := writeSnapshot(t, dir, "2025-01-02", "cin\nK1\n")

	store, err := NewFileStore(dir, schema)
	require.NoError(t, err)

	r, err := store.Open(context.Background(), date)
	require.NoError(t, err)
	defer r.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = BuildIndex(ctx, date, r)
	assert.ErrorIs(t, err, errors.ErrCanceled)
}

func TestUndeclaredColumnsIgnored(t *testing.T) {
	dir := t.TempDir()
	schema := testSchema(t)

	date := writeSnapshot(t, dir, "2025-01-02",
		"cin,company_name,mystery_column\nK1,Acme,42\n")

	store, err := NewFileStore(dir, schema)
	require.NoError(t, err)

	ix, err := store.Load(context.Background(), date)
	require.NoError(t, err)
	_, ok := ix.Records["K1"]["mystery_column"]
	assert.False(t, ok)
}
