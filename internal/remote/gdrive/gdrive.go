// Package gdrive adapts a Drive v3 style files API to remote.Directory. Objects
// are tagged through appProperties so they can be found again by unique id.
package gdrive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/imroc/req/v3"
	"github.com/openmined/mirrorbox/internal/pathid"
	"github.com/openmined/mirrorbox/internal/remote"
	"github.com/openmined/mirrorbox/internal/version"
)

const (
	DefaultBaseURL = "https://www.googleapis.com"
	DefaultTimeout = 30 * time.Second

	filesPath  = "/drive/v3/files"
	uploadPath = "/upload/drive/v3/files"
)

var ErrNoToken = errors.New("gdrive: access token missing")

type Config struct {
	BaseURL string        `mapstructure:"base_url" yaml:"base_url"`
	Token   string        `mapstructure:"token" yaml:"token"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout,omitempty"`
}

type Client struct {
	client *req.Client
}

// New builds a client. Token acquisition and refresh happen elsewhere; the
// token is used as is.
func New(cfg Config) (*Client, error) {
	if cfg.Token == "" {
		return nil, ErrNoToken
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	client := req.C().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetUserAgent(version.Get().UserAgent()).
		SetCommonBearerAuthToken(cfg.Token).
		SetCommonErrorResult(&APIError{}).
		SetJsonMarshal(jsonMarshal).
		SetJsonUnmarshal(jsonUnmarshal)

	return &Client{client: client}, nil
}

func (c *Client) FindByIdentity(ctx context.Context, id pathid.UniqueID) (remote.Match, error) {
	files, err := c.list(ctx, identityQuery(id, nil))
	if err != nil {
		return remote.Match{}, err
	}
	if len(files) == 0 {
		return remote.Match{}, nil
	}
	return remote.Match{ID: remote.ID(files[0].ID), Count: len(files)}, nil
}

func (c *Client) CreateDirectory(ctx context.Context, name string, parent *remote.ID, id pathid.UniqueID) (remote.ID, error) {
	created, err := c.create(ctx, newDriveFile(name, folderMimeType, parent, id))
	if err != nil {
		return "", err
	}
	slog.Debug("gdrive mkdir", "name", name, "id", created.ID)
	return remote.ID(created.ID), nil
}

// UploadFile creates the file metadata (or reuses the live file carrying the
// same id under parent) and then sends the content as a media upload.
func (c *Client) UploadFile(ctx context.Context, localPath string, parent *remote.ID, id pathid.UniqueID) (remote.ID, error) {
	info, err := os.Stat(localPath)
	if err != nil {
		return "", fmt.Errorf("%w: gdrive stat: %w", remote.ErrRemoteUnavailable, err)
	}

	existing, err := c.list(ctx, identityQuery(id, parent))
	if err != nil {
		return "", err
	}

	var fileID string
	if len(existing) > 0 {
		fileID = existing[0].ID
	} else {
		created, err := c.create(ctx, newDriveFile(filepath.Base(localPath), "", parent, id))
		if err != nil {
			return "", err
		}
		fileID = created.ID
	}

	file, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("%w: gdrive open: %w", remote.ErrRemoteUnavailable, err)
	}
	defer file.Close()

	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("uploadType", "media").
		SetPathParam("fileId", fileID).
		SetContentType("application/octet-stream").
		SetBody(file).
		Patch(uploadPath + "/{fileId}")
	if err := handleAPIError(resp, err, "upload media"); err != nil {
		return "", err
	}

	slog.Debug("gdrive upload", "path", localPath, "id", fileID, "size", humanize.Bytes(uint64(info.Size())))
	return remote.ID(fileID), nil
}

func (c *Client) list(ctx context.Context, query string) ([]driveFile, error) {
	var files []driveFile
	pageToken := ""
	for {
		var page fileList
		r := c.client.R().
			SetContext(ctx).
			SetQueryParam("q", query).
			SetQueryParam("fields", "nextPageToken,files(id,name)").
			SetQueryParam("orderBy", "createdTime").
			SetSuccessResult(&page)
		if pageToken != "" {
			r.SetQueryParam("pageToken", pageToken)
		}

		resp, err := r.Get(filesPath)
		if err := handleAPIError(resp, err, "list files"); err != nil {
			return nil, err
		}

		files = append(files, page.Files...)
		if page.NextPageToken == "" {
			return files, nil
		}
		pageToken = page.NextPageToken
	}
}

func (c *Client) create(ctx context.Context, file *driveFile) (*driveFile, error) {
	var created driveFile
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("fields", "id").
		SetBody(file).
		SetSuccessResult(&created).
		Post(filesPath)
	if err := handleAPIError(resp, err, "create file"); err != nil {
		return nil, err
	}
	if created.ID == "" {
		return nil, fmt.Errorf("%w: gdrive create file: empty id in response", remote.ErrRemoteUnavailable)
	}
	return &created, nil
}

func newDriveFile(name string, mimeType string, parent *remote.ID, id pathid.UniqueID) *driveFile {
	f := &driveFile{
		Name:          name,
		MimeType:      mimeType,
		AppProperties: map[string]string{remote.MetadataKey: string(id)},
	}
	if parent != nil {
		f.Parents = []string{string(*parent)}
	}
	return f
}

func identityQuery(id pathid.UniqueID, parent *remote.ID) string {
	q := fmt.Sprintf("appProperties has { key='%s' and value='%s' } and trashed = false",
		remote.MetadataKey, escapeQuery(string(id)))
	if parent != nil {
		q += fmt.Sprintf(" and '%s' in parents", escapeQuery(string(*parent)))
	}
	return q
}

func escapeQuery(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}

func handleAPIError(resp *req.Response, requestErr error, operation string) error {
	if requestErr != nil {
		return fmt.Errorf("%w: gdrive %s: %w", remote.ErrRemoteUnavailable, operation, requestErr)
	}

	if resp.IsErrorState() {
		if apiErr, ok := resp.ErrorResult().(*APIError); ok && apiErr.Body.Code != 0 {
			return fmt.Errorf("%w: gdrive %s: %w", remote.ErrRemoteUnavailable, operation, apiErr)
		}
		return fmt.Errorf("%w: gdrive %s: status %d", remote.ErrRemoteUnavailable, operation, resp.StatusCode)
	}

	return nil
}

var _ remote.Directory = (*Client)(nil)
