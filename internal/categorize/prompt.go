// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package categorize

import (
	"bytes"
	"encoding/json"
	"text/template"
)

var batchPromptTmpl = template.Must(template.New("batch").Parse(`You categorize free-text survey answers.

Assign each answer to exactly one of these categories:
{{range .Categories}}- {{.}}
{{end}}
If no category fits, use "{{.Fallback}}".

Answers (JSON array of objects with "id" and "text"):
{{.Records}}

Respond with only a JSON array, one object per answer, in the form:
[{"id": "<answer id>", "category": "<category>", "confidence": <0.0-1.0>}]
Use the ids exactly as given. Do not include any text outside the JSON array.`))

func renderBatchPrompt(categories []string, fallback string, records []Record) (string, error) {
	if records == nil {
		records = []Record{}
	}
	data, err := json.Marshal(records)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	err = batchPromptTmpl.Execute(&buf, struct {
		Categories []string
		Fallback   string
		Records    string
	}{categories, fallback, string(data)})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}
