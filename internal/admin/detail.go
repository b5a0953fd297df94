package admin

import (
	"strconv"

	"github.com/fyrsmithlabs/aicacia/internal/api"
	"github.com/fyrsmithlabs/aicacia/internal/query"
)

// Detail is one stored query with the feedback its owner gave. It is
// immutable; Review swaps in a changed copy on tab or toggle changes.
type Detail struct {
	Payload   *query.Payload
	Feedback  *api.StoredFeedback
	ActiveTab int

	expanded map[string]bool
}

// NewDetail normalizes a stored query. Experiment responses win over the
// legacy fields when both are present.
func NewDetail(q *api.StoredQuery) *Detail {
	return &Detail{
		Payload:  query.FromStored(q),
		Feedback: q.Feedback,
		expanded: map[string]bool{},
	}
}

func (d *Detail) clone() *Detail {
	c := *d
	c.expanded = make(map[string]bool, len(d.expanded))
	for k, v := range d.expanded {
		c.expanded[k] = v
	}
	return &c
}

func (d *Detail) withTab(i int) *Detail {
	if i < 0 || i >= len(d.Payload.Responses) {
		return d
	}
	c := d.clone()
	c.ActiveTab = i
	return c
}

func (d *Detail) withToggled(configurationID string) *Detail {
	c := d.clone()
	if c.expanded[configurationID] {
		delete(c.expanded, configurationID)
	} else {
		c.expanded[configurationID] = true
	}
	return c
}

// IsExperiment reports whether the query has per-configuration answers.
func (d *Detail) IsExperiment() bool {
	return d.Payload.Kind == query.Experiment
}

// Expanded reports whether the configuration details are shown.
func (d *Detail) Expanded(configurationID string) bool {
	return d.expanded[configurationID]
}

// FieldLabel returns the declared label of fieldID, or the id itself.
func (d *Detail) FieldLabel(fieldID string) string {
	if f, ok := d.Payload.Field(fieldID); ok && f.Label != "" {
		return f.Label
	}
	return fieldID
}

// FieldTooltip returns the declared tooltip of fieldID, if any.
func (d *Detail) FieldTooltip(fieldID string) string {
	f, _ := d.Payload.Field(fieldID)
	return f.Tooltip
}

// OptionLabel renders a stored value. Radio values show the label of the
// matching option; anything else shows as is.
func (d *Detail) OptionLabel(fieldID string, v api.FeedbackValue) string {
	f, ok := d.Payload.Field(fieldID)
	n, isNum := v.Number()
	if ok && f.FieldType == api.FieldRadio && isNum {
		for _, opt := range f.Options {
			if opt.Value == n {
				return opt.Label
			}
		}
	}
	return v.Text()
}

// FeedbackLine is one rendered feedback value.
type FeedbackLine struct {
	Label   string
	Tooltip string
	Value   string
}

// ResponseFeedback returns the stored values for response i, in the order
// they were recorded.
func (d *Detail) ResponseFeedback(i int) []FeedbackLine {
	if !d.IsExperiment() || i < 0 || i >= len(d.Payload.Responses) {
		return nil
	}
	if d.Feedback == nil || d.Feedback.ExperimentFeedback == nil {
		return nil
	}
	values := d.Feedback.ExperimentFeedback.ConfigurationFeedbacks[d.Payload.Responses[i].ConfigurationID]
	lines := make([]FeedbackLine, 0, len(values))
	for _, fv := range values {
		lines = append(lines, FeedbackLine{
			Label:   d.FieldLabel(fv.FieldID),
			Tooltip: d.FieldTooltip(fv.FieldID),
			Value:   d.OptionLabel(fv.FieldID, fv.Value),
		})
	}
	return lines
}

// ConfigurationName returns the display name of response i's
// configuration, falling back to its id.
func (d *Detail) ConfigurationName(i int) string {
	r := d.Payload.Responses[i]
	if r.Configuration != nil && r.Configuration.Name != "" {
		return r.Configuration.Name
	}
	return r.ConfigurationID
}

// ConfigurationRows returns label/value pairs describing response i's
// configuration, or nil when the backend sent none.
func (d *Detail) ConfigurationRows(i int) [][2]string {
	cfg := d.Payload.Responses[i].Configuration
	if cfg == nil {
		return nil
	}
	llm := cfg.LLMModel
	if llm == "" {
		llm = "(none)"
	}
	return [][2]string{
		{"ID", cfg.ConfigurationID},
		{"Name", cfg.Name},
		{"LLM Model", llm},
		{"Embedding Model", cfg.EmbeddingModel},
		{"Collection", cfg.CollectionName},
		{"Temperature", strconv.FormatFloat(cfg.Temperature, 'f', -1, 64)},
		{"Limit", strconv.Itoa(cfg.Limit)},
	}
}

// SummaryFeedback returns the label of the legacy summary rating.
func (d *Detail) SummaryFeedback() (string, bool) {
	if d.IsExperiment() || d.Feedback == nil || d.Feedback.SummaryFeedback == nil {
		return "", false
	}
	return api.LegacyFeedbackLabel(*d.Feedback.SummaryFeedback), true
}

// ReferenceFeedback returns the label of the legacy rating of reference i
// and its reason, if one was given.
func (d *Detail) ReferenceFeedback(i int) (label, reason string, ok bool) {
	if d.IsExperiment() || d.Feedback == nil || i < 0 || i >= len(d.Feedback.ReferencesFeedback) {
		return "", "", false
	}
	rf := d.Feedback.ReferencesFeedback[i]
	return api.LegacyFeedbackLabel(rf.Feedback), rf.FeedbackReason, true
}

// Comment returns the legacy free-text feedback.
func (d *Detail) Comment() string {
	if d.IsExperiment() || d.Feedback == nil {
		return ""
	}
	return d.Feedback.Feedback
}
