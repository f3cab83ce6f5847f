package search

// Result is a single question hit returned to the caller.
type Result struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Snippet      string `json:"snippet"`
	DepartmentID string `json:"departmentId,omitempty"`
	Status       string `json:"status"`
}

// Query describes a search request over questions.
type Query struct {
	Text               string
	FilterDepartmentID string
	FilterStatus       string
	Limit              int
	Offset             int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search over questions.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// QuestionRecord is the data we index for a question. Author identity is
// never indexed, so anonymous questions cannot leak through search.
type QuestionRecord struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Content      string `json:"content"`
	DepartmentID string `json:"departmentId"`
	Status       string `json:"status"`
}
