package predictor

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/xhad/yesno/internal/models"
	"github.com/xhad/yesno/internal/types"
)

const predictionTemplate = `
Here is some additional background information that may be relevant to the question:
<additional_information> {ADDITIONAL_INFORMATION} </additional_information>

A user has asked the following:

<user_prompt> {USER_PROMPT} </user_prompt>

Carefully consider the user's question and the additional information provided. Think through the likelihood of the event the user asked about actually happening in the future, based on the details given. Write out your reasoning and analysis in a section.

Now, based on your analysis above, provide a prediction of the probability the event will happen, as p_yes between 0 and 1. Also provide the probability it will not happen, as p_no between 0 and 1. The two probabilities should sum to 1.

p_yes: p_no:

How useful was the additional information in allowing you to make a prediction? Provide your rating as info_utility, a number between 0 and 1.

info_utility:

Finally, considering everything, what is your overall confidence in your prediction? Provide your confidence as a number between 0 and 1.

confidence:

Make sure the values you provide are between 0 and 1. And p_yes and p_no should sum to 1.

Your response should be structured as follows:
<p_yes></p_yes>
<p_no></p_no>
<info_utility></info_utility>
<confidence></confidence>
<analysis></analysis>
`

var quoted = regexp.MustCompile(`"(.*?)"`)

// ExtractQuestion returns the first double quoted substring of prompt, or
// the whole prompt when it has none.
func ExtractQuestion(prompt string) string {
	if m := quoted.FindStringSubmatch(prompt); m != nil && m[1] != "" {
		return m[1]
	}
	return prompt
}

// FormatAdditionalInformation renders the selected documents as numbered
// articles for the prediction prompt.
func FormatAdditionalInformation(docs []models.Document) string {
	articles := make([]string, len(docs))
	for i, doc := range docs {
		articles[i] = fmt.Sprintf("ARTICLE %d, URL: %s, CONTENT: %s\n", i, doc.URL, doc.Text)
	}
	return strings.Join(articles, "\n")
}

// PredictionPrompt fills the prediction template.
func PredictionPrompt(additionalInformation, question string) string {
	return strings.NewReplacer(
		"{ADDITIONAL_INFORMATION}", additionalInformation,
		"{USER_PROMPT}", question,
	).Replace(predictionTemplate)
}

// ParsePrediction reads the four tagged probability fields from a model
// response. The first missing or non-numeric field is reported as a
// *types.ParseError.
func ParsePrediction(response string) (models.Prediction, error) {
	var p models.Prediction
	fields := []struct {
		key string
		dst *float64
	}{
		{"p_yes", &p.PYes},
		{"p_no", &p.PNo},
		{"info_utility", &p.InfoUtility},
		{"confidence", &p.Confidence},
	}

	for _, f := range fields {
		raw, err := tagged(response, f.key)
		if err != nil {
			return models.Prediction{}, &types.ParseError{Field: f.key, Err: err}
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return models.Prediction{}, &types.ParseError{Field: f.key, Err: err}
		}
		*f.dst = v
	}

	return p, nil
}

func tagged(s, key string) (string, error) {
	open, closing := "<"+key+">", "</"+key+">"

	start := strings.Index(s, open)
	if start < 0 {
		return "", fmt.Errorf("missing %s tag", open)
	}
	rest := s[start+len(open):]

	end := strings.Index(rest, closing)
	if end < 0 {
		return "", fmt.Errorf("missing %s tag", closing)
	}
	return strings.TrimSpace(rest[:end]), nil
}
