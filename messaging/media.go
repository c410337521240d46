// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
)

// UploadMedia uploads content to the homeserver's media repository and
// returns the mxc:// URI identifying it. contentType should be the MIME
// type of the content; filename is attached as metadata and may be
// empty.
func (s *DirectSession) UploadMedia(ctx context.Context, contentType, filename string, content io.Reader) (string, error) {
	var query url.Values
	if filename != "" {
		query = url.Values{"filename": []string{filename}}
	}
	body, err := s.client.doRequestRaw(ctx, http.MethodPost, "/_matrix/media/v3/upload", s.accessToken, contentType, content, query)
	if err != nil {
		return "", fmt.Errorf("messaging: uploading media: %w", err)
	}
	var response UploadResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("messaging: parsing upload response: %w", err)
	}
	if response.ContentURI == "" {
		return "", fmt.Errorf("messaging: upload response missing content URI")
	}
	return response.ContentURI, nil
}

// DownloadMedia streams the content behind an mxc:// URI. The caller
// must close the returned reader. contentType is the server-reported
// MIME type, which may be empty.
//
// Attachments can be large; callers should io.Copy into a file rather
// than buffer the stream in memory.
func (s *DirectSession) DownloadMedia(ctx context.Context, mxcURI string) (io.ReadCloser, string, error) {
	serverName, mediaID, err := ParseMXC(mxcURI)
	if err != nil {
		return nil, "", err
	}
	path := "/_matrix/media/v3/download/" + url.PathEscape(serverName) + "/" + url.PathEscape(mediaID)
	response, err := s.client.doRequestStream(ctx, path, s.accessToken)
	if err != nil {
		return nil, "", fmt.Errorf("messaging: downloading %s: %w", mxcURI, err)
	}
	return response.Body, response.Header.Get("Content-Type"), nil
}

// ThumbnailMedia streams a server-rendered thumbnail of the content
// behind an mxc:// URI, scaled to fit within width x height pixels.
// The caller must close the returned reader.
func (s *DirectSession) ThumbnailMedia(ctx context.Context, mxcURI string, width, height int) (io.ReadCloser, string, error) {
	serverName, mediaID, err := ParseMXC(mxcURI)
	if err != nil {
		return nil, "", err
	}
	query := url.Values{
		"width":  []string{strconv.Itoa(width)},
		"height": []string{strconv.Itoa(height)},
		"method": []string{"scale"},
	}
	path := "/_matrix/media/v3/thumbnail/" + url.PathEscape(serverName) + "/" +
		url.PathEscape(mediaID) + "?" + query.Encode()
	response, err := s.client.doRequestStream(ctx, path, s.accessToken)
	if err != nil {
		return nil, "", fmt.Errorf("messaging: thumbnailing %s: %w", mxcURI, err)
	}
	return response.Body, response.Header.Get("Content-Type"), nil
}
