package api

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"

	"github.com/h2non/filetype"
)

// ListUsers returns every registered user. Admin only.
func (c *Client) ListUsers(ctx context.Context) ([]AdminUser, error) {
	var resp userList
	err := c.do(ctx, request{
		op:      "admin_list_users",
		method:  http.MethodGet,
		path:    "/admin/users",
		failMsg: "Failed to load users",
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Users, nil
}

// ListUserQueries returns one page of a user's query history. Admin only.
func (c *Client) ListUserQueries(ctx context.Context, userID string, skip, limit int) (*QueryList, error) {
	var resp QueryList
	err := c.do(ctx, request{
		op:      "admin_list_user_queries",
		method:  http.MethodGet,
		path:    pathf("/admin/users/%s/queries", userID),
		query:   pageQuery(skip, limit),
		failMsg: "Failed to load query history",
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetUserQuery returns one of a user's queries with feedback. Admin only.
func (c *Client) GetUserQuery(ctx context.Context, userID, queryID string) (*StoredQuery, error) {
	var resp StoredQuery
	err := c.do(ctx, request{
		op:      "admin_get_user_query",
		method:  http.MethodGet,
		path:    pathf("/admin/users/%s/queries/%s", userID, queryID),
		failMsg: "Failed to load query",
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListDocuments returns a user's uploaded documents. Admin only.
// user is the email the documents are filed under.
func (c *Client) ListDocuments(ctx context.Context, user string) ([]Document, error) {
	var resp documentList
	err := c.do(ctx, request{
		op:      "admin_list_documents",
		method:  http.MethodGet,
		path:    pathf("/admin/users/%s/documents", user),
		failMsg: "Failed to load user data",
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Documents, nil
}

// DocumentQuota returns a user's document quota. Admin only.
func (c *Client) DocumentQuota(ctx context.Context, user string) (*DocumentQuota, error) {
	var resp DocumentQuota
	err := c.do(ctx, request{
		op:      "admin_document_quota",
		method:  http.MethodGet,
		path:    pathf("/admin/users/%s/documents/quota", user),
		failMsg: "Failed to load user data",
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// DeleteDocument removes one of a user's documents. Admin only.
func (c *Client) DeleteDocument(ctx context.Context, user, docID string) error {
	return c.do(ctx, request{
		op:      "admin_delete_document",
		method:  http.MethodDelete,
		path:    pathf("/admin/users/%s/documents/%s", user, docID),
		failMsg: "Failed to delete document",
	}, nil)
}

// UploadDocuments uploads files for a user as one multipart request with
// a "files" part per file. Admin only. The body is streamed; callers keep
// ownership of the readers.
func (c *Client) UploadDocuments(ctx context.Context, user string, files []UploadFile) (*UploadResult, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		pw.CloseWithError(writeParts(mw, files))
	}()

	var resp UploadResult
	err := c.do(ctx, request{
		op:          "admin_upload_documents",
		method:      http.MethodPost,
		path:        pathf("/admin/users/%s/documents", user),
		failMsg:     "Upload failed. Please try again.",
		raw:         pr,
		contentType: mw.FormDataContentType(),
	}, &resp)
	// Unblock the writer if the request ended before the body was consumed.
	pr.Close()
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func writeParts(mw *multipart.Writer, files []UploadFile) error {
	for _, f := range files {
		br := bufio.NewReaderSize(f.Content, 512)
		// Peek returns what it can on short files; the error is not fatal.
		head, _ := br.Peek(261)

		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename=%q`, f.Name))
		h.Set("Content-Type", sniffContentType(head))

		part, err := mw.CreatePart(h)
		if err != nil {
			return fmt.Errorf("failed to create part for %s: %w", f.Name, err)
		}
		if _, err := io.Copy(part, br); err != nil {
			return fmt.Errorf("failed to write %s: %w", f.Name, err)
		}
	}
	return mw.Close()
}

// sniffContentType detects the MIME type from the file's magic bytes.
func sniffContentType(head []byte) string {
	kind, err := filetype.Match(head)
	if err != nil || kind == filetype.Unknown {
		return "application/octet-stream"
	}
	return kind.MIME.Value
}
