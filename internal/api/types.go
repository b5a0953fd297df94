package api

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"
)

// Credentials are sent to login and registration.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

// UserInfo identifies the signed-in user.
type UserInfo struct {
	Email   string `json:"email"`
	UserID  string `json:"user_id"`
	IsAdmin bool   `json:"is_admin"`
}

// Reference is a citation backing a summary.
type Reference struct {
	Title string  `json:"title"`
	URL   string  `json:"url"`
	Score float64 `json:"score"`
	Chunk string  `json:"chunk"`
}

// Configuration describes the answer-generation variant behind a response.
type Configuration struct {
	ConfigurationID string  `json:"configuration_id"`
	Name            string  `json:"name"`
	LLMModel        string  `json:"llm_model,omitempty"`
	EmbeddingModel  string  `json:"embedding_model"`
	CollectionName  string  `json:"collection_name"`
	Temperature     float64 `json:"temperature"`
	Limit           int     `json:"limit"`
}

// ConfigurationResponse is one variant's answer to a question.
type ConfigurationResponse struct {
	ConfigurationID string         `json:"configuration_id"`
	References      []Reference    `json:"references"`
	Summary         *string        `json:"summary,omitempty"`
	Configuration   *Configuration `json:"configuration,omitempty"`
}

// SummaryText returns the summary or "" when absent.
func (r ConfigurationResponse) SummaryText() string {
	if r.Summary == nil {
		return ""
	}
	return *r.Summary
}

// Field types declared by FeedbackFieldConfig.
const (
	FieldRadio = "radio"
	FieldText  = "text"
)

// FeedbackOption is one choice of a radio field.
type FeedbackOption struct {
	Value int    `json:"value"`
	Label string `json:"label"`
}

// FeedbackFieldConfig is a server-declared feedback input.
type FeedbackFieldConfig struct {
	FieldID   string           `json:"field_id"`
	FieldType string           `json:"field_type"`
	Label     string           `json:"label"`
	Required  bool             `json:"required"`
	Options   []FeedbackOption `json:"options,omitempty"`
	Tooltip   string           `json:"tooltip,omitempty"`
}

// FeedbackConfig is the feedback form schema of an experiment.
type FeedbackConfig struct {
	Fields []FeedbackFieldConfig `json:"fields"`
}

// AskResponse is returned by the question endpoint. Older backends answer
// with the legacy shape: References and Summary instead of Responses.
type AskResponse struct {
	QueryID        string                  `json:"query_id"`
	ExperimentID   string                  `json:"experiment_id,omitempty"`
	Responses      []ConfigurationResponse `json:"responses,omitempty"`
	FeedbackConfig *FeedbackConfig         `json:"feedback_config,omitempty"`
	References     []Reference             `json:"references,omitempty"`
	Summary        *string                 `json:"summary,omitempty"`
}

// Timestamp is a backend time. The backend stores times without a zone,
// so offset-less ISO 8601 values are read as UTC; RFC 3339 is also accepted.
type Timestamp struct {
	time.Time
}

// naiveLayout is how the backend serializes zone-less datetimes.
const naiveLayout = "2006-01-02T15:04:05.999999999"

// At wraps t.
func At(t time.Time) Timestamp {
	return Timestamp{Time: t}
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*t = Timestamp{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp must be a string: %s", data)
	}
	if s == "" {
		*t = Timestamp{}
		return nil
	}
	if parsed, err := time.Parse(time.RFC3339Nano, s); err == nil {
		t.Time = parsed
		return nil
	}
	parsed, err := time.ParseInLocation(naiveLayout, s, time.UTC)
	if err != nil {
		return fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	t.Time = parsed
	return nil
}

// QueryListItem is one row of the query history.
type QueryListItem struct {
	QueryID   string    `json:"query_id"`
	Question  string    `json:"question"`
	CreatedAt Timestamp `json:"created_at"`
	Summary   string    `json:"summary"`
}

// QueryList is a page of query history.
type QueryList struct {
	Queries    []QueryListItem `json:"queries"`
	TotalCount int             `json:"total_count"`
}

// StoredQuery is a previously asked question with any recorded feedback.
// ExperimentResponses, when non-empty, takes precedence over the legacy
// Summary and References.
type StoredQuery struct {
	QueryID             string                  `json:"query_id"`
	Question            string                  `json:"question"`
	References          []Reference             `json:"references,omitempty"`
	Summary             *string                 `json:"summary,omitempty"`
	Feedback            *StoredFeedback         `json:"feedback,omitempty"`
	ExperimentResponses []ConfigurationResponse `json:"experiment_responses,omitempty"`
	FeedbackConfig      *FeedbackConfig         `json:"feedback_config,omitempty"`
}

// FeedbackValue is a radio option value or free text.
type FeedbackValue struct {
	num   int
	text  string
	isNum bool
}

// NumberValue returns a radio FeedbackValue.
func NumberValue(n int) FeedbackValue { return FeedbackValue{num: n, isNum: true} }

// TextValue returns a free-text FeedbackValue.
func TextValue(s string) FeedbackValue { return FeedbackValue{text: s} }

// Number returns the radio value and whether the value is numeric.
func (v FeedbackValue) Number() (int, bool) { return v.num, v.isNum }

// Text returns the free-text value; numeric values render as digits.
func (v FeedbackValue) Text() string {
	if v.isNum {
		return strconv.Itoa(v.num)
	}
	return v.text
}

// IsEmpty reports whether the value carries nothing worth submitting.
// Numeric values are never empty; zero is a valid option.
func (v FeedbackValue) IsEmpty() bool {
	return !v.isNum && v.text == ""
}

func (v FeedbackValue) MarshalJSON() ([]byte, error) {
	if v.isNum {
		return json.Marshal(v.num)
	}
	return json.Marshal(v.text)
}

func (v *FeedbackValue) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		*v = NumberValue(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("feedback value must be a number or string: %s", data)
	}
	*v = TextValue(s)
	return nil
}

// ConfigurationFeedbackEntry is one field value for one configuration.
type ConfigurationFeedbackEntry struct {
	ConfigurationID string        `json:"configuration_id"`
	FieldID         string        `json:"field_id"`
	Value           FeedbackValue `json:"value"`
}

// ExperimentFeedbackRequest submits multi-configuration feedback.
type ExperimentFeedbackRequest struct {
	QueryID   string                       `json:"query_id"`
	Feedbacks []ConfigurationFeedbackEntry `json:"feedbacks"`
}

// ExperimentFeedbackResponse acknowledges experiment feedback.
type ExperimentFeedbackResponse struct {
	FeedbackID string `json:"feedback_id"`
}

// Legacy reference and summary ratings.
const (
	FeedbackUseful    = 10
	FeedbackNotUseful = 0
	FeedbackDontKnow  = -1
)

// LegacyFeedbackLabel names a legacy rating.
func LegacyFeedbackLabel(v int) string {
	switch v {
	case FeedbackUseful:
		return "Useful"
	case FeedbackNotUseful:
		return "Not Useful"
	case FeedbackDontKnow:
		return "Don't Know"
	default:
		return "Unknown"
	}
}

// FeedbackRequest submits legacy single-answer feedback.
type FeedbackRequest struct {
	QueryID            string `json:"query_id"`
	ReferencesFeedback []int  `json:"references_feedback"`
	SummaryFeedback    int    `json:"summary_feedback"`
	Feedback           string `json:"feedback"`
}

// ReferenceFeedback is a stored rating of one reference. Older records
// hold a bare integer instead of an object.
type ReferenceFeedback struct {
	Feedback       int    `json:"feedback"`
	FeedbackReason string `json:"feedback_reason,omitempty"`
}

func (r *ReferenceFeedback) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		*r = ReferenceFeedback{Feedback: n}
		return nil
	}
	type plain ReferenceFeedback
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = ReferenceFeedback(p)
	return nil
}

// FieldValue is a stored experiment feedback value.
type FieldValue struct {
	FieldID string        `json:"field_id"`
	Value   FeedbackValue `json:"value"`
}

// ExperimentFeedback holds stored values keyed by configuration id.
type ExperimentFeedback struct {
	ConfigurationFeedbacks map[string][]FieldValue `json:"configuration_feedbacks"`
}

// StoredFeedback is feedback recorded for a query, in either shape.
type StoredFeedback struct {
	ReferencesFeedback []ReferenceFeedback `json:"references_feedback,omitempty"`
	SummaryFeedback    *int                `json:"summary_feedback,omitempty"`
	Feedback           string              `json:"feedback,omitempty"`
	ExperimentFeedback *ExperimentFeedback `json:"experiment_feedback,omitempty"`
}

// HasExperimentValues reports whether any per-configuration value exists.
func (f *StoredFeedback) HasExperimentValues() bool {
	if f == nil || f.ExperimentFeedback == nil {
		return false
	}
	for _, values := range f.ExperimentFeedback.ConfigurationFeedbacks {
		if len(values) > 0 {
			return true
		}
	}
	return false
}

// Message authors.
const (
	FromUser  = "user"
	FromAgent = "agent"
)

// ChatMessage is one turn of a thread.
type ChatMessage struct {
	Message     string      `json:"message"`
	MessageFrom string      `json:"message_from"`
	MessageID   string      `json:"message_id,omitempty"`
	References  []Reference `json:"references,omitempty"`
}

// ChatRequest sends a message; an empty ThreadID starts a new thread.
type ChatRequest struct {
	Message  string `json:"message"`
	ThreadID string `json:"thread_id,omitempty"`
}

// ChatResponse carries the authoritative message list of a thread.
type ChatResponse struct {
	ChatMessages []ChatMessage `json:"chat_messages"`
	ThreadID     string        `json:"thread_id"`
}

// ThreadSummary is one row of the thread list.
type ThreadSummary struct {
	ThreadID        string    `json:"thread_id"`
	LastMessage     string    `json:"last_message"`
	LastMessageTime Timestamp `json:"last_message_time"`
	MessageCount    int       `json:"message_count"`
}

type threadList struct {
	Threads []ThreadSummary `json:"threads"`
}

// Chat reactions.
const (
	ThumbsDown = 0
	ThumbsUp   = 1
)

// ChatFeedbackRequest rates one agent message.
type ChatFeedbackRequest struct {
	ThreadID        string `json:"thread_id"`
	MessageID       string `json:"message_id"`
	FeedbackMessage string `json:"feedback_message"`
	Feedback        int    `json:"feedback"`
}

// AdminUser is a row of the admin user list.
type AdminUser struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	IsAdmin   bool      `json:"is_admin"`
	CreatedAt Timestamp `json:"created_at"`
}

type userList struct {
	Users []AdminUser `json:"users"`
}

// Document is an uploaded user document.
type Document struct {
	DocID            string    `json:"doc_id"`
	Filename         string    `json:"filename"`
	FileSize         int64     `json:"file_size"`
	CreatedAt        Timestamp `json:"created_at"`
	ProcessingStatus string    `json:"processing_status"`
}

type documentList struct {
	Documents []Document `json:"documents"`
}

// DocumentQuota reports how many more documents a user may upload.
type DocumentQuota struct {
	CurrentDocumentCount int `json:"current_document_count"`
	MaxDocuments         int `json:"max_documents"`
	RemainingQuota       int `json:"remaining_quota"`
}

// UploadResult is returned by a document upload.
type UploadResult struct {
	UploadedDocuments []Document `json:"uploaded_documents"`
	TotalUploaded     int        `json:"total_uploaded"`
	UserDocumentCount int        `json:"user_document_count"`
	RemainingQuota    int        `json:"remaining_quota"`
}

// UploadFile is one file of a multipart upload.
type UploadFile struct {
	Name    string
	Size    int64
	Content io.Reader
}
