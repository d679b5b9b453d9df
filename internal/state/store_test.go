package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memFiles struct {
	files   map[string][]byte
	readErr error
}

func (m *memFiles) Name() string { return "Memory" }

func (m *memFiles) ReadFile(_ context.Context, path string) ([]byte, error) {
	if m.readErr != nil {
		return nil, m.readErr
	}
	data, ok := m.files[path]
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	return data, nil
}

func (m *memFiles) WriteFile(_ context.Context, path string, data []byte) error {
	if m.files == nil {
		m.files = map[string][]byte{}
	}
	m.files[path] = data
	return nil
}

func TestDatastore_RoundTrip(t *testing.T) {
	files := &memFiles{}
	ds := NewDatastore[RunState](files, "/gmailer_state.json")
	ctx := context.Background()

	_, err := ds.Current(ctx)
	assert.True(t, errors.Is(err, ErrNotFound))

	sent := time.Date(2018, time.June, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, ds.Store(ctx, RunState{LastEmailSent: NewTimestamp(sent), EmailContents: "New email data"}))
	assert.JSONEq(t,
		`{"lastEmailSent":"2018-06-01T00:00:00Z","emailContents":"New email data"}`,
		string(files.files["/gmailer_state.json"]))

	got, err := ds.Current(ctx)
	require.NoError(t, err)
	assert.True(t, got.LastEmailSent.Equal(sent))
	assert.Equal(t, "New email data", got.EmailContents)
	assert.Equal(t, "Memory", ds.Backend())
	assert.Equal(t, "/gmailer_state.json", ds.Path())
}

func TestDatastore_ReadErrorIsNotNotFound(t *testing.T) {
	ds := NewDatastore[RunState](&memFiles{readErr: errors.New("boom")}, "/x.json")

	_, err := ds.Current(context.Background())
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestDatastore_CorruptFile(t *testing.T) {
	files := &memFiles{files: map[string][]byte{"/x.json": []byte("{not json")}}
	ds := NewDatastore[RunState](files, "/x.json")

	_, err := ds.Current(context.Background())
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestParseTimestamp(t *testing.T) {
	london, err := time.LoadLocation("Europe/London")
	require.NoError(t, err)

	testCases := []struct {
		input    string
		expected time.Time
		location *time.Location
	}{
		{"2018-06-01T00:00:00Z", time.Date(2018, 6, 1, 0, 0, 0, 0, time.UTC), nil},
		{"2018-06-01T00:00Z", time.Date(2018, 6, 1, 0, 0, 0, 0, time.UTC), nil},
		{"2018-06-01T00:00:00.5+02:00", time.Date(2018, 5, 31, 22, 0, 0, 500_000_000, time.UTC), nil},
		{"2018-06-01T00:00+01:00[Europe/London]", time.Date(2018, 5, 31, 23, 0, 0, 0, time.UTC), london},
		{"2018-06-01T00:00Z[UTC]", time.Date(2018, 6, 1, 0, 0, 0, 0, time.UTC), nil},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			got, err := ParseTimestamp(tc.input)
			require.NoError(t, err)
			assert.True(t, tc.expected.Equal(got), "got %s", got)
			if tc.location != nil {
				assert.Equal(t, tc.location.String(), got.Location().String())
			}
		})
	}

	_, err = ParseTimestamp("1st of June")
	assert.Error(t, err)
}

func TestTimestamp_JSON(t *testing.T) {
	var s RunState
	require.NoError(t, json.Unmarshal([]byte(`{"lastEmailSent":"2018-06-01T00:00Z","emailContents":"x"}`), &s))
	assert.Equal(t, 2018, s.LastEmailSent.Year())

	err := json.Unmarshal([]byte(`{"lastEmailSent":12}`), &s)
	assert.Error(t, err)
}

func TestNewsletterState_LastRanIn(t *testing.T) {
	s := NewsletterState{LastRanOn: "2026-10-16"}
	got, err := s.LastRanIn(time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC), got)

	_, err = NewsletterState{LastRanOn: "16/10/2026"}.LastRanIn(time.UTC)
	assert.Error(t, err)
}
