package store

import (
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCSV(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestOpenRejectsNonCSV(t *testing.T) {
	_, err := Open("table.txt")
	require.Error(t, err)
}

func TestOpenMissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "absent.csv"))
	require.Error(t, err)
}

func TestCreateWritesHeaderOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.csv")

	tbl, err := Create(path, []string{ColRegPhone, ColTelegramID, ColWhatsAppID})
	require.NoError(t, err)

	require.NoError(t, tbl.Append(Row{ColRegPhone: "7-916-123-45-67", ColTelegramID: "42"}))

	// Reopening must not truncate existing data.
	tbl, err = Create(path, []string{ColRegPhone, ColTelegramID, ColWhatsAppID})
	require.NoError(t, err)
	n, err := tbl.Len()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestValueExists(t *testing.T) {
	path := writeCSV(t, "db.csv", "phone,tg_user_id,wh_user_id\n7-916-123-45-67,42,\n")
	tbl, err := Open(path)
	require.NoError(t, err)

	ok, err := tbl.ValueExists("42", ColTelegramID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = tbl.ValueExists("43", ColTelegramID)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = tbl.ValueExists("42", "nope")
	assert.ErrorIs(t, err, ErrUnknownColumn)
}

func TestAppendAndGetByKey(t *testing.T) {
	path := writeCSV(t, "db.csv", "phone,tg_user_id,wh_user_id\n")
	tbl, err := Open(path)
	require.NoError(t, err)

	require.NoError(t, tbl.Append(Row{ColRegPhone: "7-916-123-45-67", ColTelegramID: "42"}))
	require.NoError(t, tbl.Append(Row{ColRegPhone: "7-916-000-00-00", ColWhatsAppID: "79160000000@c.us"}))

	id, found, err := tbl.GetByKey(ColRegPhone, "7-916-123-45-67", ColTelegramID)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "42", id)

	// Unpopulated transport column comes back empty but found.
	id, found, err = tbl.GetByKey(ColRegPhone, "7-916-000-00-00", ColTelegramID)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Empty(t, id)

	_, found, err = tbl.GetByKey(ColRegPhone, "7-000-000-00-00", ColTelegramID)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestFindAndReplace(t *testing.T) {
	path := writeCSV(t, "tomorrow.csv",
		"Телефон,ДатаНачала,Подтверждение\n7-916-123-45-67,2026-09-01 10:00,\n7-916-000-00-00,2026-09-01 11:00,\n")
	tbl, err := Open(path)
	require.NoError(t, err)

	found, err := tbl.FindAndReplace(ColPhone, "7-916-123-45-67", ColConfirmation, FlagSet)
	require.NoError(t, err)
	assert.True(t, found)

	v, _, err := tbl.GetByKey(ColPhone, "7-916-123-45-67", ColConfirmation)
	require.NoError(t, err)
	assert.Equal(t, FlagSet, v)

	// Other rows are untouched.
	v, _, err = tbl.GetByKey(ColPhone, "7-916-000-00-00", ColConfirmation)
	require.NoError(t, err)
	assert.Empty(t, v)

	// Silent no-op on a miss.
	found, err = tbl.FindAndReplace(ColPhone, "7-000-000-00-00", ColConfirmation, FlagSet)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCreateColumn(t *testing.T) {
	path := writeCSV(t, "reviews.csv", "Телефон\n7-916-123-45-67\n")
	tbl, err := Open(path)
	require.NoError(t, err)

	require.NoError(t, tbl.CreateColumn(ColReview))
	require.NoError(t, tbl.CreateColumn(ColReview)) // idempotent

	rows, err := tbl.Rows()
	require.NoError(t, err)
	require.Len(t, rows, 1)
	v, ok := rows[0][ColReview]
	assert.True(t, ok)
	assert.Empty(t, v)
}

func TestRowsSnapshotIsACopy(t *testing.T) {
	path := writeCSV(t, "tomorrow.csv", "Телефон,Подтверждение\n7-916-123-45-67,\n")
	tbl, err := Open(path)
	require.NoError(t, err)

	rows, err := tbl.Rows()
	require.NoError(t, err)
	rows[0][ColConfirmation] = FlagSet

	v, _, err := tbl.GetByKey(ColPhone, "7-916-123-45-67", ColConfirmation)
	require.NoError(t, err)
	assert.Empty(t, v)
}

func TestShortRowsPadded(t *testing.T) {
	path := writeCSV(t, "reviews.csv", "Телефон,Отзыв\n7-916-123-45-67\n")
	tbl, err := Open(path)
	require.NoError(t, err)

	v, found, err := tbl.GetByKey(ColPhone, "7-916-123-45-67", ColReview)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Empty(t, v)
}

func TestConcurrentAppendsAllLand(t *testing.T) {
	path := writeCSV(t, "db.csv", "phone,tg_user_id,wh_user_id\n")
	tbl, err := Open(path)
	require.NoError(t, err)

	const n = 20
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			_ = tbl.Append(Row{ColRegPhone: "7-916-000-00-" + strconv.Itoa(10+i), ColTelegramID: strconv.Itoa(i)})
		}(i)
	}
	wg.Wait()

	count, err := tbl.Len()
	require.NoError(t, err)
	assert.Equal(t, n, count)
}

func TestOpenTables(t *testing.T) {
	dir := t.TempDir()
	for _, f := range []struct{ name, content string }{
		{"tomorrow.csv", "Телефон,ДатаНачала,Подтверждение\n"},
		{"2hours.csv", "Телефон,ДатаНачала\n"},
		{"Reviews.csv", "Телефон,Отзыв\n"},
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, f.name), []byte(f.content), 0o600))
	}

	tables, err := OpenTables(Paths{
		Users:    filepath.Join(dir, "db.csv"),
		Tomorrow: filepath.Join(dir, "tomorrow.csv"),
		TwoHours: filepath.Join(dir, "2hours.csv"),
		Reviews:  filepath.Join(dir, "Reviews.csv"),
	})
	require.NoError(t, err)

	// Registration table was created with its header.
	ok, err := tables.Users.ValueExists("anything", ColRegPhone)
	require.NoError(t, err)
	assert.False(t, ok)
}
