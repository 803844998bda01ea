// ABOUTME: Draft save endpoint: multipart PUT of the post content and, when changed, its images
// ABOUTME: The server's canonical image list and post id come back in the JSON response

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"

	"github.com/2389/coven-compose/internal/autosave"
)

// NewPostID is substituted into the draft path for a post the server has not seen yet.
const NewPostID = "new"

// SaveDraft implements autosave.Saver.
func (c *Client) SaveDraft(ctx context.Context, req autosave.Request) (*autosave.Result, error) {
	body, contentType, err := encodeDraft(req)
	if err != nil {
		return nil, err
	}

	id := req.PostID
	if id == "" {
		id = NewPostID
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPut, c.endpoint(c.paths.DraftPath, id), body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	header, err := c.header()
	if err != nil {
		return nil, err
	}
	httpReq.Header = header
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sending draft: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, decodeError(resp)
	}

	var result autosave.Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding draft response: %w", err)
	}

	c.logger.Debug("draft saved",
		"post_id", req.PostID,
		"server_id", result.ID,
		"images_changed", req.ImagesChanged,
		"images", len(result.Images))
	return &result, nil
}

// encodeDraft writes the multipart form. content is always present; files
// and existing_images only when the images changed.
func encodeDraft(req autosave.Request) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if err := w.WriteField("content", req.Content); err != nil {
		return nil, "", fmt.Errorf("writing content field: %w", err)
	}

	if req.ImagesChanged {
		for _, f := range req.Files {
			part, err := w.CreateFormFile("files", f.Name)
			if err != nil {
				return nil, "", fmt.Errorf("creating file part: %w", err)
			}
			if _, err := part.Write(f.Data); err != nil {
				return nil, "", fmt.Errorf("writing file part: %w", err)
			}
		}
		for _, u := range req.ExistingImages {
			if err := w.WriteField("existing_images", u); err != nil {
				return nil, "", fmt.Errorf("writing existing image: %w", err)
			}
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("closing multipart body: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

var _ autosave.Saver = (*Client)(nil)
