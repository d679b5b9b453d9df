package state

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox"
	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox/files"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockDropbox struct {
	mock.Mock
}

func (m *mockDropbox) Download(arg *files.DownloadArg) (*files.FileMetadata, io.ReadCloser, error) {
	args := m.Called(arg.Path)
	var body io.ReadCloser
	if b, ok := args.Get(0).([]byte); ok {
		body = io.NopCloser(bytes.NewReader(b))
	}
	return &files.FileMetadata{}, body, args.Error(1)
}

func (m *mockDropbox) Upload(arg *files.UploadArg, content io.Reader) (*files.FileMetadata, error) {
	data, _ := io.ReadAll(content)
	args := m.Called(arg.Path, arg.Mode.Tag, string(data))
	return &files.FileMetadata{}, args.Error(0)
}

func notFoundError() error {
	return files.DownloadAPIError{
		APIError: dropbox.APIError{ErrorSummary: "path/not_found/"},
		EndpointError: &files.DownloadError{
			Tagged: dropbox.Tagged{Tag: files.DownloadErrorPath},
			Path:   &files.LookupError{Tagged: dropbox.Tagged{Tag: files.LookupErrorNotFound}},
		},
	}
}

func newTestDropbox(api dropboxFiles) *DropboxClient {
	return &DropboxClient{api: api, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func TestDropboxClient_ReadFile(t *testing.T) {
	api := &mockDropbox{}
	api.On("Download", "/gmailer_state.json").Return([]byte(`{"emailContents":"x"}`), nil)
	client := newTestDropbox(api)

	data, err := client.ReadFile(context.Background(), "/gmailer_state.json")
	require.NoError(t, err)
	assert.Equal(t, `{"emailContents":"x"}`, string(data))
	api.AssertExpectations(t)
}

func TestDropboxClient_ReadFileNotFound(t *testing.T) {
	api := &mockDropbox{}
	api.On("Download", "/missing.json").Return(nil, notFoundError())
	client := newTestDropbox(api)

	_, err := client.ReadFile(context.Background(), "/missing.json")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestDropboxClient_ReadFileOtherError(t *testing.T) {
	api := &mockDropbox{}
	api.On("Download", "/gmailer_state.json").Return(nil, errors.New("401 unauthorized"))
	client := newTestDropbox(api)

	_, err := client.ReadFile(context.Background(), "/gmailer_state.json")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestDropboxClient_WriteFileOverwrites(t *testing.T) {
	api := &mockDropbox{}
	api.On("Upload", "/gmailer_state.json", files.WriteModeOverwrite, "payload").Return(nil)
	client := newTestDropbox(api)

	require.NoError(t, client.WriteFile(context.Background(), "/gmailer_state.json", []byte("payload")))
	api.AssertExpectations(t)
}

func TestDropboxClient_CancelledContext(t *testing.T) {
	client := newTestDropbox(&mockDropbox{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.ReadFile(ctx, "/x")
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, client.WriteFile(ctx, "/x", nil), context.Canceled)
}

func TestNewDropboxClient_RequiresToken(t *testing.T) {
	_, err := NewDropboxClient("", nil)
	assert.Error(t, err)

	c, err := NewDropboxClient("token", nil)
	require.NoError(t, err)
	assert.Equal(t, "Dropbox", c.Name())
}
