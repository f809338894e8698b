// Package models defines the data exchanged with the fine-tuning backend and
// the records the dev backend persists.
package models

import (
	"fmt"
	"strings"
)

// TaskKind is the training objective. It decides which dataset columns and
// which configuration defaults apply.
type TaskKind string

const (
	TaskTextToSQL TaskKind = "text-to-sql"
	TaskOAQnA     TaskKind = "oa-qna"
)

// TaskKinds returns every supported task kind in display order.
func TaskKinds() []TaskKind {
	return []TaskKind{TaskTextToSQL, TaskOAQnA}
}

// ParseTaskKind validates s as a task kind.
func ParseTaskKind(s string) (TaskKind, error) {
	k := TaskKind(strings.TrimSpace(s))
	switch k {
	case TaskTextToSQL, TaskOAQnA:
		return k, nil
	}
	return "", fmt.Errorf("unknown task kind %q (want one of: %s, %s)", s, TaskTextToSQL, TaskOAQnA)
}

// Valid reports whether k is a known task kind.
func (k TaskKind) Valid() bool {
	_, err := ParseTaskKind(string(k))
	return err == nil
}

// UsesSchema reports whether dataset rows of this kind carry a schema column.
func (k TaskKind) UsesSchema() bool {
	return k == TaskTextToSQL
}

// Columns returns the editable dataset columns for this kind.
func (k TaskKind) Columns() []string {
	if k.UsesSchema() {
		return []string{"question", "answer", "schema"}
	}
	return []string{"question", "answer"}
}

// UploadPath returns the multipart upload endpoint for this kind.
func (k TaskKind) UploadPath() string {
	return "/upload-" + string(k) + "-data"
}

// DefaultSystemMessage is the system prompt a new session starts with.
func (k TaskKind) DefaultSystemMessage() string {
	switch k {
	case TaskOAQnA:
		return "You are an office assistant. Answer the user's question accurately and concisely."
	default:
		return "You are an text to SQL query translator. Users will ask you questions and you will generate a SQL query based on the provided SCHEMA.\nSCHEMA:\n{schema}"
	}
}

// String implements fmt.Stringer.
func (k TaskKind) String() string { return string(k) }
