package gdrive

import "fmt"

const folderMimeType = "application/vnd.google-apps.folder"

type driveFile struct {
	ID            string            `json:"id,omitempty"`
	Name          string            `json:"name,omitempty"`
	MimeType      string            `json:"mimeType,omitempty"`
	Parents       []string          `json:"parents,omitempty"`
	AppProperties map[string]string `json:"appProperties,omitempty"`
}

type fileList struct {
	Files         []driveFile `json:"files"`
	NextPageToken string      `json:"nextPageToken,omitempty"`
}

// APIError is the error body returned by the files API
type APIError struct {
	Body struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("drive api error: %d - %s", e.Body.Code, e.Body.Message)
}
