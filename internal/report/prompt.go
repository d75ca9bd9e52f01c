// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package report

import (
	"bytes"
	"text/template"
)

// sectionTasks holds the task instruction of each section kind.
var sectionTasks = map[Section]string{
	Introduction: "Write a contextual introduction based on the available data. Mention the scope of the analysis and the main variables.",
	Summary:      "Synthesise the main findings observable in the data. Include key figures and relevant distributions.",
	Observation:  "Describe patterns, trends and distributions identifiable in the data. Present percentages and values where relevant.",
	Conclusion:   "Summarise the data presented objectively, highlighting the main characteristics of the dataset.",
}

var sectionPromptTmpl = template.Must(template.New("section").Parse(`You are a data analyst specialised in writing professional technical reports on educational projects.

PROJECT CONTEXT:
{{if .Context}}{{.Context}}{{else}}Analysis of educational project data{{end}}

DATASET INFORMATION:
Dimensions: {{.Rows}} records, {{.Cols}} variables
Columns: {{.Columns}}

TASK:
{{.Task}}

STRICT GUIDELINES:
1. OBJECTIVITY: describe only what is observable in the data, without causal interpretation
2. DO NOT infer success or failure from demographic distributions
3. DO NOT establish correlations that are not evidenced
4. USE technical, formal and neutral language
5. INCLUDE specific values where relevant (percentages, totals)
6. AVOID evaluative adjectives (successful, deficient, promising)
7. WRITE in the third person

PROHIBITIONS:
- DO NOT use phrases like "this indicates/suggests/demonstrates success"
- DO NOT relate gender, age or other demographic variables to quality
- DO NOT make recommendations
- DO NOT use speculative expressions

DATA TO ANALYSE:
{{.Data}}

OUTPUT FORMAT:
- At most 3 paragraphs
- Each paragraph of 2-4 sentences
- Professional, technical language
- No bullets or lists
- Continuous, formal prose
- Written in {{.Language}}

Generate only the text requested for the '{{.Section}}' section of the report.`))

var insightPromptTmpl = template.Must(template.New("insights").Parse(`Based on the following introduction, project information and partial conclusions, produce a structured summary in JSON that highlights the main findings and insights by dimension or category.

Introduction:
{{.Intro}}

Projects:
{{.Projects}}

Partial conclusions:
{{.Items}}

Output format (return only valid JSON):
{
  "General Context of the Diagnosis": [
    "Insight 1",
    "Insight 2",
    "Insight 3"
  ],
  "Key Findings and Relevant Correlations": {
    "<Category name>": [
      "Insight 1",
      "Insight 2",
      "Insight 3",
      "Implication: ..."
    ]
  },
  "Prioritised Challenges Identified": [
    {
      "Axis": "Name of the axis",
      "Challenge": "Description of the challenge",
      "Relevance": "Why it matters"
    }
  ],
  "Other Relevant Sections": {
    "Section title": [
      "Insight 1",
      "Insight 2",
      "Insight 3"
    ]
  },
  "Programme Relevance": [
    "Point 1 on programme impact",
    "Point 2",
    "Point 3"
  ]
}

Instructions:
- Do not include any text outside the JSON and make sure the JSON is valid.
- If a section does not apply, omit it (do not leave empty fields).
- Use category or section names that arise naturally from the analysis.
- Write clearly and concisely, in {{.Language}}.
- Implications should reflect possible lines of action or interpretations of the data.`))

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
