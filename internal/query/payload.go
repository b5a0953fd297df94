package query

import (
	"fmt"
	"strconv"

	"github.com/fyrsmithlabs/aicacia/internal/api"
)

// LegacyConfigurationID is the configuration id given to the single
// response of a legacy payload.
const LegacyConfigurationID = "legacy"

// Field ids of the feedback form built for legacy payloads.
const (
	LegacySummaryField = "summary"
	LegacyCommentField = "comment"
	legacyRefPrefix    = "reference_"
)

// Kind tells which backend shape a payload came from.
type Kind int

const (
	Legacy Kind = iota
	Experiment
)

func (k Kind) String() string {
	if k == Experiment {
		return "experiment"
	}
	return "legacy"
}

// Payload is a question with its answers, normalized so that both shapes
// render through Responses.
type Payload struct {
	Kind         Kind
	QueryID      string
	ExperimentID string
	Question     string
	// Responses holds one entry per configuration. A legacy answer is a
	// single entry with LegacyConfigurationID.
	Responses      []api.ConfigurationResponse
	FeedbackConfig *api.FeedbackConfig
}

// FromAsk normalizes the answer to a freshly asked question.
func FromAsk(question string, resp *api.AskResponse) *Payload {
	if len(resp.Responses) > 0 {
		return &Payload{
			Kind:           Experiment,
			QueryID:        resp.QueryID,
			ExperimentID:   resp.ExperimentID,
			Question:       question,
			Responses:      resp.Responses,
			FeedbackConfig: orEmpty(resp.FeedbackConfig),
		}
	}
	return legacyPayload(resp.QueryID, question, resp.Summary, resp.References)
}

// FromStored normalizes a stored query. A non-empty ExperimentResponses
// wins even when legacy fields are also present.
func FromStored(q *api.StoredQuery) *Payload {
	if len(q.ExperimentResponses) > 0 {
		return &Payload{
			Kind:           Experiment,
			QueryID:        q.QueryID,
			Question:       q.Question,
			Responses:      q.ExperimentResponses,
			FeedbackConfig: orEmpty(q.FeedbackConfig),
		}
	}
	return legacyPayload(q.QueryID, q.Question, q.Summary, q.References)
}

func legacyPayload(queryID, question string, summary *string, refs []api.Reference) *Payload {
	return &Payload{
		Kind:     Legacy,
		QueryID:  queryID,
		Question: question,
		Responses: []api.ConfigurationResponse{{
			ConfigurationID: LegacyConfigurationID,
			Summary:         summary,
			References:      refs,
		}},
		FeedbackConfig: LegacyFeedbackConfig(len(refs)),
	}
}

func orEmpty(cfg *api.FeedbackConfig) *api.FeedbackConfig {
	if cfg == nil {
		return &api.FeedbackConfig{}
	}
	return cfg
}

// legacyOptions are the ratings offered for legacy summaries and references.
var legacyOptions = []api.FeedbackOption{
	{Value: api.FeedbackUseful, Label: api.LegacyFeedbackLabel(api.FeedbackUseful)},
	{Value: api.FeedbackNotUseful, Label: api.LegacyFeedbackLabel(api.FeedbackNotUseful)},
	{Value: api.FeedbackDontKnow, Label: api.LegacyFeedbackLabel(api.FeedbackDontKnow)},
}

// LegacyFeedbackConfig is the form used for a legacy answer: a rating
// for the summary, one per reference and a free-text comment.
func LegacyFeedbackConfig(refs int) *api.FeedbackConfig {
	fields := []api.FeedbackFieldConfig{{
		FieldID:   LegacySummaryField,
		FieldType: api.FieldRadio,
		Label:     "Summary",
		Options:   legacyOptions,
	}}
	for i := 0; i < refs; i++ {
		fields = append(fields, api.FeedbackFieldConfig{
			FieldID:   LegacyReferenceField(i),
			FieldType: api.FieldRadio,
			Label:     fmt.Sprintf("Reference %d", i+1),
			Options:   legacyOptions,
		})
	}
	fields = append(fields, api.FeedbackFieldConfig{
		FieldID:   LegacyCommentField,
		FieldType: api.FieldText,
		Label:     "Overall feedback",
	})
	return &api.FeedbackConfig{Fields: fields}
}

// LegacyReferenceField is the field id rating reference i.
func LegacyReferenceField(i int) string {
	return legacyRefPrefix + strconv.Itoa(i)
}

// FieldKey identifies one feedback value: field fieldID of the response at
// responseIndex, answered by configurationID.
func FieldKey(responseIndex int, configurationID, fieldID string) string {
	return fmt.Sprintf("%d_%s_%s", responseIndex, configurationID, fieldID)
}

// Field returns the declared field with id, if any.
func (p *Payload) Field(id string) (api.FeedbackFieldConfig, bool) {
	if p.FeedbackConfig == nil {
		return api.FeedbackFieldConfig{}, false
	}
	for _, f := range p.FeedbackConfig.Fields {
		if f.FieldID == id {
			return f, true
		}
	}
	return api.FeedbackFieldConfig{}, false
}

// TabLabels returns "Answer 1", "Answer 2", ... one per response.
func (p *Payload) TabLabels() []string {
	labels := make([]string, len(p.Responses))
	for i := range p.Responses {
		labels[i] = fmt.Sprintf("Answer %d", i+1)
	}
	return labels
}

// storedValues maps previously recorded feedback onto field keys.
func (p *Payload) storedValues(fb *api.StoredFeedback) map[string]api.FeedbackValue {
	values := make(map[string]api.FeedbackValue)
	if fb == nil {
		return values
	}

	if p.Kind == Experiment {
		if fb.ExperimentFeedback == nil {
			return values
		}
		for i, resp := range p.Responses {
			for _, fv := range fb.ExperimentFeedback.ConfigurationFeedbacks[resp.ConfigurationID] {
				values[FieldKey(i, resp.ConfigurationID, fv.FieldID)] = fv.Value
			}
		}
		return values
	}

	if fb.SummaryFeedback != nil {
		values[FieldKey(0, LegacyConfigurationID, LegacySummaryField)] = api.NumberValue(*fb.SummaryFeedback)
	}
	for i, rf := range fb.ReferencesFeedback {
		values[FieldKey(0, LegacyConfigurationID, LegacyReferenceField(i))] = api.NumberValue(rf.Feedback)
	}
	if fb.Feedback != "" {
		values[FieldKey(0, LegacyConfigurationID, LegacyCommentField)] = api.TextValue(fb.Feedback)
	}
	return values
}

// defaultValues pre-rates every legacy summary and reference as useful.
func (p *Payload) defaultValues() map[string]api.FeedbackValue {
	values := make(map[string]api.FeedbackValue)
	if p.Kind != Legacy {
		return values
	}
	for _, f := range p.FeedbackConfig.Fields {
		if f.FieldType == api.FieldRadio {
			values[FieldKey(0, LegacyConfigurationID, f.FieldID)] = api.NumberValue(api.FeedbackUseful)
		}
	}
	return values
}
