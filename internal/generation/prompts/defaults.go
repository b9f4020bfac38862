package prompts

// Built-in templates. Every stage instructs the model to answer with a single
// JSON object and nothing else; the parse package handles the cases where it
// doesn't comply anyway.
var defaults = map[string]Template{
	StageOutline: {
		System: "You are an expert curriculum designer. You design well-paced, coherent " +
			"courses from source material. Respond with a single JSON object and no other " +
			"text, no markdown fences, no commentary.",
		User: "Design a course outline.\n\n" +
			"Course title: {{title}}\n" +
			"Description: {{description}}\n" +
			"Level: {{level}}\n" +
			"Target audience: {{target_audience}}\n" +
			"Duration: {{duration}}\n" +
			"Learning objectives:\n{{objectives}}\n\n" +
			"Source material quality: {{quality_summary}}\n" +
			"Relevant excerpts from the source material:\n{{excerpts}}\n\n" +
			"Return JSON with this shape:\n" +
			`{"title": string, "description": string, "sessions": [{"title": string, ` +
			`"topics": [string], "objectives": [string], "duration_minutes": number}]}` + "\n" +
			"Every learning objective above must be covered by at least one session.",
	},
	StageSessionDetail: {
		System: "You are an expert instructional designer expanding one course session " +
			"into a full lesson plan. Respond with a single JSON object and no other text.",
		User: "Expand this session of the course \"{{title}}\" ({{level}}).\n\n" +
			"Session {{position}}: {{session_title}}\n" +
			"Topics: {{session_topics}}\n" +
			"Session objectives:\n{{session_objectives}}\n\n" +
			"Relevant excerpts from the source material:\n{{excerpts}}\n\n" +
			"Return JSON with this shape:\n" +
			`{"title": string, "overview": string, "topics": [string], "objectives": [string], ` +
			`"duration_minutes": number, "activities": [{"kind": string, "title": string, ` +
			`"description": string, "duration_minutes": number}], "materials": [string]}` + "\n" +
			"Include at least one activity and at least one objective.",
	},
	StageAssessments: {
		System: "You are an expert assessment designer. You write assessments that measure " +
			"the stated learning objectives. Respond with a single JSON object and no other text.",
		User: "Design assessments for the course \"{{title}}\" ({{level}}).\n\n" +
			"Learning objectives:\n{{objectives}}\n" +
			"Sessions:\n{{session_summaries}}\n\n" +
			"Return JSON with this shape:\n" +
			`{"quizzes": [{"session_position": number, "title": string, "questions": ` +
			`[{"prompt": string, "options": [string], "answer_index": number, "explanation": string}]}], ` +
			`"assignments": [{"title": string, "description": string, "deliverables": [string]}], ` +
			`"final_exam": {"title": string, "description": string, "duration_minutes": number, ` +
			`"passing_score": number}}` + "\n" +
			"Write at least one quiz and a final exam.",
	},
	StageActivities: {
		System: "You are an expert learning-experience designer. You propose varied, " +
			"hands-on activities. Respond with a single JSON object and no other text.",
		User: "Propose additional activities for session \"{{session_title}}\" of the course " +
			"\"{{title}}\".\n\nTopics: {{session_topics}}\n" +
			"Existing activities:\n{{existing_activities}}\n\n" +
			"Return JSON with this shape:\n" +
			`{"activities": [{"kind": string, "title": string, "description": string, ` +
			`"duration_minutes": number}]}`,
	},
}
