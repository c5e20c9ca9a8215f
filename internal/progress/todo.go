package progress

import (
	"encoding/json"
	"fmt"
	"strings"
)

// TodoStatus mirrors the four-state lifecycle the `updatetodos` tool
// reports.
type TodoStatus string

const (
	TodoPending    TodoStatus = "TODO_STATUS_PENDING"
	TodoInProgress TodoStatus = "TODO_STATUS_IN_PROGRESS"
	TodoCompleted  TodoStatus = "TODO_STATUS_COMPLETED"
	TodoBlocked    TodoStatus = "TODO_STATUS_BLOCKED"
)

var todoCheckbox = map[TodoStatus]string{
	TodoPending:    "⬜️",
	TodoInProgress: "⏳",
	TodoCompleted:  "✅",
	TodoBlocked:    "⚠️",
}

// Todo is one entry of the session-scoped todo list.
type Todo struct {
	ID      string
	Content string
	Status  TodoStatus
}

// mergeTodoPayload parses the raw result/input JSON the `updatetodos`
// tool carries and folds it into the renderer's todo list, overwriting
// when merge is false and merging field-by-field otherwise.
func (r *Renderer) mergeTodoPayload(raw string) {
	if strings.TrimSpace(raw) == "" {
		return
	}

	var parsed any
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		r.log.Warn("failed to parse updatetodos payload", "error", err)
		return
	}

	items := extractTodoItems(parsed)
	if len(items) == 0 {
		return
	}

	if !r.merge {
		r.todos = make(map[string]*Todo)
		r.todoOrder = nil
	}

	for _, item := range items {
		id, _ := item["id"].(string)
		if id == "" {
			if content, ok := item["content"].(string); ok {
				id = content
			}
		}
		if id == "" {
			continue
		}

		status := TodoPending
		if s, ok := item["status"].(string); ok && s != "" {
			status = TodoStatus(s)
		}
		content := id
		if c, ok := item["content"].(string); ok && c != "" {
			content = c
		}

		if existing, ok := r.todos[id]; ok {
			existing.Status = status
			existing.Content = content
		} else {
			r.todos[id] = &Todo{ID: id, Content: content, Status: status}
			r.todoOrder = append(r.todoOrder, id)
		}
	}
}

// extractTodoItems normalizes the several shapes the tool payload may
// take: a bare list of todo objects, or a dict carrying "todos"/"items",
// or a single todo object.
func extractTodoItems(payload any) []map[string]any {
	switch v := payload.(type) {
	case []any:
		out := make([]map[string]any, 0, len(v))
		for _, it := range v {
			if m, ok := it.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	case map[string]any:
		if list, ok := v["todos"].([]any); ok {
			return extractTodoItems(list)
		}
		if list, ok := v["items"].([]any); ok {
			return extractTodoItems(list)
		}
		if _, ok := v["id"]; ok {
			return []map[string]any{v}
		}
	}
	return nil
}

// renderTodos renders the todo list as a checkbox list, strikethrough
// on completed items.
func (r *Renderer) renderTodos() string {
	if len(r.todoOrder) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("📋 TODO\n")
	for _, id := range r.todoOrder {
		todo, ok := r.todos[id]
		if !ok {
			continue
		}
		checkbox := todoCheckbox[todo.Status]
		if checkbox == "" {
			checkbox = "⬜️"
		}
		content := todo.Content
		if todo.Status == TodoCompleted {
			content = "~" + content + "~"
		}
		b.WriteString("- " + checkbox + " " + content + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func jsonPreview(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
