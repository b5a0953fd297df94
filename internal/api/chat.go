package api

import (
	"context"
	"net/http"
)

// SendChat posts a message. The response holds the thread's complete,
// server-ordered message list.
func (c *Client) SendChat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	var resp ChatResponse
	err := c.do(ctx, request{
		op:      "send_chat",
		method:  http.MethodPost,
		path:    "/chat/",
		failMsg: "Failed to send message",
		body:    req,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListThreads returns the signed-in user's threads.
func (c *Client) ListThreads(ctx context.Context) ([]ThreadSummary, error) {
	var resp threadList
	err := c.do(ctx, request{
		op:      "list_threads",
		method:  http.MethodGet,
		path:    "/chat/threads",
		failMsg: "Failed to load conversations",
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Threads, nil
}

// GetThread returns every message of a thread.
func (c *Client) GetThread(ctx context.Context, threadID string) (*ChatResponse, error) {
	var resp ChatResponse
	err := c.do(ctx, request{
		op:      "get_thread",
		method:  http.MethodGet,
		path:    pathf("/chat/threads/%s", threadID),
		failMsg: "Failed to load conversation",
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// DeleteThread deletes a thread.
func (c *Client) DeleteThread(ctx context.Context, threadID string) error {
	return c.do(ctx, request{
		op:      "delete_thread",
		method:  http.MethodDelete,
		path:    pathf("/chat/threads/%s", threadID),
		failMsg: "Failed to delete conversation",
	}, nil)
}

// SubmitChatFeedback rates an agent message.
func (c *Client) SubmitChatFeedback(ctx context.Context, fb ChatFeedbackRequest) error {
	return c.do(ctx, request{
		op:      "submit_chat_feedback",
		method:  http.MethodPost,
		path:    "/chat_feedback/",
		failMsg: "Failed to submit feedback",
		body:    fb,
	}, nil)
}
