package rag

// Citation is a derived reference to a source section. Citations are built
// per response from the units supplied to the model, never persisted.
type Citation struct {
	SectionTitle string `json:"section_title"`
	SourcePath   string `json:"source_path"`
	AnchorURL    string `json:"anchor_url"`
}

// QueryResult is the composed answer for one query.
type QueryResult struct {
	AnswerText string
	Citations  []Citation // always empty for selection mode
	UnitsUsed  int
	ElapsedMs  int64
}
