package onepanel

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// DefaultUploadDir is where image archives are staged on the host.
const DefaultUploadDir = "/opt/1panel/tmp"

// UploadFile uploads a local file into dir on the host and returns the
// remote path. When the panel does not report a path, it is taken to be
// dir/filename.
func (c *Client) UploadFile(ctx context.Context, localPath, dir string) (string, error) {
	const path = "/files/upload"
	if dir == "" {
		dir = DefaultUploadDir
	}

	f, err := os.Open(localPath)
	if err != nil {
		return "", NewRequestError("UploadFile", http.MethodPost, path, 0, "open local file", err)
	}
	filename := filepath.Base(localPath)

	// Stream the form so large archives are never held in memory
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		defer f.Close()
		pw.CloseWithError(writeUploadForm(mw, f, filename, dir))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, pr)
	if err != nil {
		pr.CloseWithError(err)
		return "", NewRequestError("UploadFile", http.MethodPost, path, 0, "create request", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	c.logger.Info("uploading file", "file", filename, "dir", dir)
	env, err := c.do("UploadFile", path, req, c.transferClient)
	if err != nil {
		return "", err
	}

	if remote, ok := env.Data.Text(); ok && remote != "" {
		return remote, nil
	}
	return strings.TrimSuffix(dir, "/") + "/" + filename, nil
}

func writeUploadForm(mw *multipart.Writer, src io.Reader, filename, dir string) error {
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, src); err != nil {
		return fmt.Errorf("copy file: %w", err)
	}
	if err := mw.WriteField("path", dir); err != nil {
		return err
	}
	if err := mw.WriteField("overwrite", "true"); err != nil {
		return err
	}
	return mw.Close()
}
