package validation

const classificationSchema = `{
  "type": "object",
  "required": ["intent"],
  "properties": {
    "intent": {"type": "string", "minLength": 1},
    "api_call_details": {
      "type": ["object", "null"],
      "properties": {
        "child_id": {"type": ["string", "null"]},
        "api_type": {"type": ["string", "array", "null"], "items": {"type": ["string", "null"]}},
        "themes": {"type": ["string", "array", "null"], "items": {"type": ["string", "null"]}},
        "time_unit": {"type": ["string", "null"]},
        "num_periods": {"type": ["integer", "null"]},
        "start_date": {"type": ["string", "null"]},
        "end_date": {"type": ["string", "null"]},
        "api_call_reason": {"type": ["string", "null"]}
      }
    }
  }
}`

const storySchema = `{
  "type": "object",
  "required": ["title", "scene"],
  "properties": {
    "title": {"type": "string", "minLength": 1},
    "themes": {"type": ["array", "null"], "items": {"type": "string"}},
    "age_group": {"type": ["string", "integer", "null"]},
    "maximum_point": {"type": ["integer", "null"]},
    "characters": {
      "type": ["array", "null"],
      "items": {
        "type": "object",
        "required": ["name"],
        "properties": {
          "name": {"type": "string"},
          "description": {"type": "string"}
        }
      }
    },
    "scene": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["scene_id", "type", "content"],
        "properties": {
          "scene_id": {"type": "integer", "minimum": 1},
          "type": {"enum": ["narrative", "decision_point", "ending"]},
          "img_description": {"type": ["string", "null"]},
          "content": {"type": "string"},
          "next_scene": {"type": ["integer", "null"]},
          "lesson_learned": {"type": ["string", "null"]},
          "branch": {
            "type": ["array", "null"],
            "items": {
              "type": "object",
              "required": ["choice", "next_scene"],
              "properties": {
                "choice": {"type": "string", "minLength": 1},
                "teks": {"type": "string"},
                "moral_value": {"type": ["string", "null"]},
                "point": {"type": "integer"},
                "next_scene": {"type": "integer", "minimum": 1}
              }
            }
          }
        }
      }
    }
  }
}`

const analysisSchema = `{
  "type": "object",
  "required": ["summary"],
  "properties": {
    "summary": {"type": "string"},
    "insights": {"type": "array", "items": {"type": "string"}},
    "recommendations": {"type": "array", "items": {"type": "string"}}
  }
}`

var (
	// ClassificationSchema checks the intent classifier's JSON answer.
	ClassificationSchema = MustSchema("intent-classification", classificationSchema)

	// StorySchema checks the shape of a generated story before graph validation.
	StorySchema = MustSchema("story", storySchema)

	// AnalysisSchema checks the optional structured chat analysis.
	AnalysisSchema = MustSchema("chat-analysis", analysisSchema)
)
