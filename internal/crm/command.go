package crm

import (
	"encoding/json"
	"strings"

	"github.com/go-playground/validator/v10"

	"pipedrive-agent/internal/domain"
)

var validate = validator.New()

// ParseCommand turns an LLM-produced "METHOD /path" string into a Command.
// A trailing "with {json}" clause becomes the request body.
func ParseCommand(raw string) (domain.Command, error) {
	line := firstLine(raw)
	if line == "" {
		return domain.Command{}, &CommandError{Raw: raw, Reason: "missing method and path"}
	}

	var body map[string]any
	if head, clause, ok := splitBody(line); ok {
		line = head
		if err := json.Unmarshal([]byte(clause), &body); err != nil {
			return domain.Command{}, &CommandError{Raw: raw, Reason: "body is not a JSON object"}
		}
	}

	method, path, _ := strings.Cut(line, " ")
	cmd := domain.Command{
		Method: strings.ToUpper(strings.TrimSpace(method)),
		Path:   strings.TrimSpace(path),
		Body:   body,
	}
	if err := Validate(cmd); err != nil {
		if ce, ok := err.(*CommandError); ok {
			ce.Raw = raw
		}
		return domain.Command{}, err
	}
	return cmd, nil
}

// splitBody finds the first " with " followed by an opening brace. A "with"
// inside a query term stays part of the path.
func splitBody(line string) (head, clause string, ok bool) {
	for rest, offset := line, 0; ; {
		i := strings.Index(rest, " with ")
		if i < 0 {
			return line, "", false
		}
		after := strings.TrimSpace(rest[i+len(" with "):])
		if strings.HasPrefix(after, "{") {
			return strings.TrimSpace(line[:offset+i]), after, true
		}
		offset += i + len(" with ")
		rest = rest[i+len(" with "):]
	}
}

// Validate checks the method/path shape of a command.
func Validate(cmd domain.Command) error {
	if err := validate.Struct(cmd); err != nil {
		var reasons []string
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				reasons = append(reasons, strings.ToLower(fe.Field())+" "+describeTag(fe.Tag()))
			}
		} else {
			reasons = append(reasons, err.Error())
		}
		return &CommandError{Reason: strings.Join(reasons, ", ")}
	}
	lower := strings.ToLower(cmd.Path)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") || strings.HasPrefix(cmd.Path, "//") {
		return &CommandError{Reason: "path must be relative to the API base"}
	}
	return nil
}

func describeTag(tag string) string {
	switch tag {
	case "required":
		return "is missing"
	case "oneof":
		return "must be one of GET, POST, PATCH, DELETE"
	}
	return "is invalid"
}

func firstLine(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	for _, line := range strings.Split(s, "\n") {
		line = strings.Trim(strings.TrimSpace(line), "\"'`")
		if line != "" && !isFenceLanguage(line) {
			return line
		}
	}
	return ""
}

func isFenceLanguage(line string) bool {
	switch strings.ToLower(line) {
	case "http", "text", "plaintext", "bash", "sh":
		return true
	}
	return false
}
