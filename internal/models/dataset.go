package models

// DatasetEntry is one labeled example. A nil ID marks a local draft that the
// backend has never acknowledged.
type DatasetEntry struct {
	ID       *int64 `json:"id"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Schema   string `json:"schema"`
}

// IsDraft reports whether the entry has not been persisted yet.
func (e DatasetEntry) IsDraft() bool { return e.ID == nil }

// Field returns the value of a named column.
func (e DatasetEntry) Field(name string) (string, bool) {
	switch name {
	case "question":
		return e.Question, true
	case "answer":
		return e.Answer, true
	case "schema":
		return e.Schema, true
	}
	return "", false
}

// SetField replaces the value of a named column.
func (e *DatasetEntry) SetField(name, value string) bool {
	switch name {
	case "question":
		e.Question = value
	case "answer":
		e.Answer = value
	case "schema":
		e.Schema = value
	default:
		return false
	}
	return true
}

// NewDatasetEntry is the body of POST /add-data/{task_kind}.
type NewDatasetEntry struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Schema   string `json:"schema"`
}

// UpdateDatasetEntry is the body of POST /update-data/{task_kind}.
type UpdateDatasetEntry struct {
	ID       int64  `json:"id"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Schema   string `json:"schema"`
}

// DeleteDatasetEntry is the body of POST /delete-data/{task_kind}.
type DeleteDatasetEntry struct {
	ID int64 `json:"id"`
}
