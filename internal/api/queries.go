package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
)

// AskQuestion submits a question and returns the generated answers.
func (c *Client) AskQuestion(ctx context.Context, question string) (*AskResponse, error) {
	var resp AskResponse
	err := c.do(ctx, request{
		op:      "ask_question",
		method:  http.MethodPost,
		path:    "/user_query/",
		failMsg: "Failed to get an answer",
		body:    map[string]string{"question": question},
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListQueries returns one page of the signed-in user's query history.
func (c *Client) ListQueries(ctx context.Context, skip, limit int) (*QueryList, error) {
	var resp QueryList
	err := c.do(ctx, request{
		op:      "list_queries",
		method:  http.MethodGet,
		path:    "/user_query/list",
		query:   pageQuery(skip, limit),
		failMsg: "Failed to load query history",
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetQuery returns a stored query with its feedback.
func (c *Client) GetQuery(ctx context.Context, queryID string) (*StoredQuery, error) {
	var resp StoredQuery
	err := c.do(ctx, request{
		op:      "get_query",
		method:  http.MethodGet,
		path:    pathf("/user_query/%s", queryID),
		failMsg: "Failed to load query",
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// SubmitFeedback posts legacy single-answer feedback.
func (c *Client) SubmitFeedback(ctx context.Context, fb FeedbackRequest) error {
	return c.do(ctx, request{
		op:      "submit_feedback",
		method:  http.MethodPost,
		path:    "/feedback/",
		failMsg: "Failed to submit feedback",
		body:    fb,
	}, nil)
}

// SubmitExperimentFeedback posts per-configuration feedback in one call.
func (c *Client) SubmitExperimentFeedback(ctx context.Context, fb ExperimentFeedbackRequest) (*ExperimentFeedbackResponse, error) {
	if fb.Feedbacks == nil {
		// the backend rejects null; an empty submission is still a submission
		fb.Feedbacks = []ConfigurationFeedbackEntry{}
	}
	var resp ExperimentFeedbackResponse
	err := c.do(ctx, request{
		op:      "submit_experiment_feedback",
		method:  http.MethodPost,
		path:    "/feedback/experiment",
		failMsg: "Failed to submit feedback",
		body:    fb,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func pageQuery(skip, limit int) url.Values {
	return url.Values{
		"skip":  {strconv.Itoa(skip)},
		"limit": {strconv.Itoa(limit)},
	}
}
