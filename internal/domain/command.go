package domain

import "net/http"

// Command describes one CRM API call. Path is relative to the API base and
// carries any query parameters.
type Command struct {
	Method string         `validate:"required,oneof=GET POST PATCH DELETE"`
	Path   string         `validate:"required"`
	Body   map[string]any `validate:"-"`
}

func Get(path string) Command {
	return Command{Method: http.MethodGet, Path: path}
}

func Post(path string, body map[string]any) Command {
	return Command{Method: http.MethodPost, Path: path, Body: body}
}

func (c Command) String() string {
	return c.Method + " " + c.Path
}
