package state

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox"
	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox/files"
)

// dropboxFiles is the part of files.Client the state store uses.
type dropboxFiles interface {
	Download(arg *files.DownloadArg) (*files.FileMetadata, io.ReadCloser, error)
	Upload(arg *files.UploadArg, content io.Reader) (*files.FileMetadata, error)
}

// DropboxClient implements FileClient on a Dropbox app folder.
type DropboxClient struct {
	api    dropboxFiles
	logger *slog.Logger
}

// NewDropboxClient authenticates with a long-lived access token.
func NewDropboxClient(accessToken string, logger *slog.Logger) (*DropboxClient, error) {
	if accessToken == "" {
		return nil, fmt.Errorf("dropbox access token is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	api := files.New(dropbox.Config{Token: accessToken, LogLevel: dropbox.LogOff})
	return &DropboxClient{api: api, logger: logger.With("backend", "dropbox")}, nil
}

func (c *DropboxClient) Name() string { return "Dropbox" }

// ReadFile downloads path. A lookup/not_found error maps to ErrNotFound.
func (c *DropboxClient) ReadFile(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	_, content, err := c.api.Download(files.NewDownloadArg(path))
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
		}
		return nil, fmt.Errorf("downloading %s: %w", path, err)
	}
	defer content.Close()

	data, err := io.ReadAll(content)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	c.logger.Debug("Downloaded state file", "path", path, "bytes", len(data))
	return data, nil
}

// WriteFile uploads data to path in overwrite mode.
func (c *DropboxClient) WriteFile(ctx context.Context, path string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	arg := files.NewUploadArg(path)
	arg.Mode = &files.WriteMode{Tagged: dropbox.Tagged{Tag: files.WriteModeOverwrite}}
	arg.Mute = true

	meta, err := c.api.Upload(arg, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("uploading %s: %w", path, err)
	}
	c.logger.Debug("Uploaded state file", "path", meta.PathDisplay, "rev", meta.Rev)
	return nil
}

func isNotFound(err error) bool {
	var apiErr files.DownloadAPIError
	if !errors.As(err, &apiErr) || apiErr.EndpointError == nil {
		return false
	}
	lookup := apiErr.EndpointError.Path
	return apiErr.EndpointError.Tag == files.DownloadErrorPath &&
		lookup != nil && lookup.Tag == files.LookupErrorNotFound
}
