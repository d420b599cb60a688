package openai

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"pipedrive-agent/internal/domain"
)

// ---------------------------------------------------------------------------
// endpointURL helper
// ---------------------------------------------------------------------------

func TestEndpointURL(t *testing.T) {
	cases := []struct {
		base, op, version string
		want              string
	}{
		{"https://api.openai.com/v1", "chat/completions", "", "https://api.openai.com/v1/chat/completions"},
		{"https://api.openai.com/v1/", "chat/completions", "", "https://api.openai.com/v1/chat/completions"},
		{"http://localhost:8080", "chat/completions", "", "http://localhost:8080/v1/chat/completions"},
		{"", "audio/transcriptions", "", "https://api.openai.com/v1/audio/transcriptions"},
		{
			"https://acme.openai.azure.com/openai/deployments/gpt-4o", "chat/completions", "2024-08-01-preview",
			"https://acme.openai.azure.com/openai/deployments/gpt-4o/chat/completions?api-version=2024-08-01-preview",
		},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, endpointURL(tc.base, tc.op, tc.version), "base=%q", tc.base)
	}
}

// ---------------------------------------------------------------------------
// NewClient
// ---------------------------------------------------------------------------

func TestNewClient_NilGetter(t *testing.T) {
	_, err := NewClient(nil, "/pipedrive-agent")
	require.Error(t, err)
	require.Contains(t, err.Error(), "nil")
}

func TestNewClient_EmptyPrefix(t *testing.T) {
	_, err := NewClient(&fakeGetter{}, " ")
	require.Error(t, err)
	require.Contains(t, err.Error(), "prefix")
}

func TestNewClient_Valid(t *testing.T) {
	c, err := NewClient(&fakeGetter{}, "/pipedrive-agent/")
	require.NoError(t, err)
	require.Equal(t, "https://api.openai.com/v1", c.baseURL)
	require.Equal(t, "/pipedrive-agent/open-ai-token", c.tokenParameterName())
}

func TestNewClient_TokenParameter(t *testing.T) {
	c, err := NewClient(&fakeGetter{}, "/pipedrive-agent", WithTokenParameter("/whisper-token"))
	require.NoError(t, err)
	require.Equal(t, "/pipedrive-agent/whisper-token", c.tokenParameterName())
}

// ---------------------------------------------------------------------------
// resolveAPIKey, SSM caching behaviour
// ---------------------------------------------------------------------------

// fakeGetter is a minimal paramstore.Getter stub for use within this package.
type fakeGetter struct {
	val    string
	err    error
	names  []string
	onCall func()
}

func (f *fakeGetter) GetParameter(_ context.Context, name string) (string, error) {
	f.names = append(f.names, name)
	if f.onCall != nil {
		f.onCall()
	}
	return f.val, f.err
}

func TestResolveAPIKey_FetchedOnFirstCall(t *testing.T) {
	calls := 0
	g := &fakeGetter{val: `{"token":"sk-from-ssm"}`}
	g.onCall = func() { calls++ }
	c, err := NewClient(g, "/pipedrive-agent")
	require.NoError(t, err)

	key, err := c.resolveAPIKey(context.Background())
	require.NoError(t, err)
	require.Equal(t, "sk-from-ssm", key)
	require.Equal(t, []string{"/pipedrive-agent/open-ai-token"}, g.names)

	_, _ = c.resolveAPIKey(context.Background())
	_, _ = c.resolveAPIKey(context.Background())
	require.Equal(t, 1, calls, "a resolved key is reused")
}

func TestResolveAPIKey_FailureIsNotCached(t *testing.T) {
	g := &fakeGetter{err: errors.New("context canceled")}
	c, err := NewClient(g, "/pipedrive-agent")
	require.NoError(t, err)

	_, err = c.resolveAPIKey(context.Background())
	require.ErrorContains(t, err, "context canceled")

	g.err = nil
	g.val = `{"token":"sk-later"}`
	key, err := c.resolveAPIKey(context.Background())
	require.NoError(t, err)
	require.Equal(t, "sk-later", key)

	_, _ = c.resolveAPIKey(context.Background())
	require.Len(t, g.names, 2)
}

func TestResolveAPIKey_Errors(t *testing.T) {
	cases := []struct {
		name string
		g    *fakeGetter
		want string
	}{
		{"getter error", &fakeGetter{err: errors.New("ssm unavailable")}, "ssm unavailable"},
		{"malformed", &fakeGetter{val: `{"broken`}, "unmarshal"},
		{"missing field", &fakeGetter{val: `{"other":"value"}`}, "empty"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, err := NewClient(tc.g, "/pipedrive-agent")
			require.NoError(t, err)
			_, err = c.resolveAPIKey(context.Background())
			require.Error(t, err)
			require.Contains(t, err.Error(), "openai:")
			require.Contains(t, err.Error(), tc.want)
		})
	}
}

// ---------------------------------------------------------------------------
// Client.Chat
// ---------------------------------------------------------------------------

func newTestClient(t *testing.T, srv *httptest.Server, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{
		WithBaseURL(srv.URL),
		WithHTTPClient(&http.Client{Timeout: 2 * time.Second}),
	}, opts...)
	c, err := NewClient(&fakeGetter{val: `{"token":"sk-test"}`}, "/pipedrive-agent", opts...)
	require.NoError(t, err)
	return c
}

func TestClient_Chat_HappyPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		reqBody, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.Contains(t, string(reqBody), `"model":"gpt-mock"`)
		require.Contains(t, string(reqBody), `"max_tokens":150`)
		require.NotContains(t, string(reqBody), "response_format")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(200)
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-123",
			"object": "chat.completion",
			"created": 1670000000,
			"choices": [{
				"index": 0,
				"message": { "role": "assistant", "content": "GET /deals?status=open" }
			}]
		}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	resp, err := c.Chat(context.Background(), "gpt-mock", []domain.ChatMessage{domain.UserMessage("show open deals")}, 150)
	require.NoError(t, err)
	require.Equal(t, "GET /deals?status=open", resp)
}

func TestClient_Chat_AzureDeployment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/openai/deployments/gpt-4o/chat/completions", r.URL.Path)
		require.Equal(t, "2024-08-01-preview", r.URL.Query().Get("api-version"))
		require.Equal(t, "sk-test", r.Header.Get("api-key"))
		require.Empty(t, r.Header.Get("Authorization"))
		reqBody, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NotContains(t, string(reqBody), `"model"`)
		w.WriteHeader(200)
		_, _ = w.Write([]byte(`{"choices":[{"index":0,"message":{"role":"assistant","content":"ok"}}]}`))
	}))
	defer srv.Close()

	c, err := NewClient(
		&fakeGetter{val: `{"token":"sk-test"}`},
		"/pipedrive-agent",
		WithBaseURL(srv.URL+"/openai/deployments/gpt-4o"),
		WithAPIVersion("2024-08-01-preview"),
		WithAzureAuth(),
	)
	require.NoError(t, err)
	resp, err := c.Chat(context.Background(), "", []domain.ChatMessage{domain.UserMessage("hi")}, 0)
	require.NoError(t, err)
	require.Equal(t, "ok", resp)
}

func TestClient_Chat_StatusErrors(t *testing.T) {
	for _, status := range []int{400, 429, 500} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":"nope"}`))
		}))

		c := newTestClient(t, srv)
		_, err := c.Chat(context.Background(), "gpt-mock", nil, 0)
		srv.Close()

		require.Error(t, err)
		require.Contains(t, err.Error(), "unexpected status")
		var se *HTTPStatusError
		require.ErrorAs(t, err, &se)
		require.Equal(t, status, se.HTTPStatusCode())
	}
}

func TestClient_Chat_InvalidJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
		_, _ = w.Write([]byte(`not-a-json`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	_, err := c.Chat(context.Background(), "gpt-mock", nil, 0)
	require.Error(t, err)
	require.Contains(t, err.Error(), "decode response")
}

func TestClient_Chat_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	_, err := c.Chat(context.Background(), "gpt-mock", nil, 0)
	require.Error(t, err)
	require.Contains(t, err.Error(), "no choices")
}

func TestClient_Chat_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(200)
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	c.httpClient = &http.Client{Timeout: 50 * time.Millisecond}
	_, err := c.Chat(context.Background(), "gpt-mock", nil, 0)
	require.Error(t, err)
	require.Contains(t, err.Error(), "request failed")
}

func TestClient_Chat_EmptyModel(t *testing.T) {
	c, err := NewClient(&fakeGetter{val: `{"token":"sk-test"}`}, "/pipedrive-agent")
	require.NoError(t, err)
	_, err = c.Chat(context.Background(), "", nil, 0)
	require.Error(t, err)
	require.Contains(t, err.Error(), "model")
}

// ---------------------------------------------------------------------------
// Client.Transcribe
// ---------------------------------------------------------------------------

func TestClient_Transcribe_HappyPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/audio/transcriptions", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		require.Equal(t, "whisper-1", r.FormValue("model"))

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer func() { _ = file.Close() }()
		require.Equal(t, "recording.m4a", header.Filename)
		require.Equal(t, "audio/m4a", header.Header.Get("Content-Type"))
		data, err := io.ReadAll(file)
		require.NoError(t, err)
		require.Equal(t, "RIFF", string(data))

		w.WriteHeader(200)
		_, _ = w.Write([]byte(`{"text":"  show open deals \n"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	text, err := c.Transcribe(context.Background(), "whisper-1", domain.Audio{Data: []byte("RIFF")})
	require.NoError(t, err)
	require.Equal(t, "show open deals", text)
}

func TestClient_Transcribe_EmptyAudio(t *testing.T) {
	c, err := NewClient(&fakeGetter{val: `{"token":"sk-test"}`}, "/pipedrive-agent")
	require.NoError(t, err)
	_, err = c.Transcribe(context.Background(), "whisper-1", domain.Audio{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "audio is empty")
}

func TestClient_Transcribe_Non200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(415)
		_, _ = w.Write([]byte(`{"error":"unsupported format"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	_, err := c.Transcribe(context.Background(), "whisper-1", domain.Audio{Data: []byte("x"), Filename: "a.ogg", ContentType: "audio/ogg"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "transcription request failed")
	require.Contains(t, err.Error(), "415")
}

func TestClient_Transcribe_MalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
		_, _ = w.Write([]byte(`not-json`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	_, err := c.Transcribe(context.Background(), "whisper-1", domain.Audio{Data: []byte("x")})
	require.Error(t, err)
	require.Contains(t, err.Error(), "decode transcription response")
}

func TestClient_Transcribe_NetworkError(t *testing.T) {
	c, err := NewClient(&fakeGetter{val: `{"token":"sk-test"}`}, "/pipedrive-agent")
	require.NoError(t, err)
	c.baseURL = "http://127.0.0.1:1"
	c.httpClient = &http.Client{Timeout: 100 * time.Millisecond}

	_, err = c.Transcribe(context.Background(), "whisper-1", domain.Audio{Data: []byte("x")})
	require.Error(t, err)
	require.Contains(t, err.Error(), "transcription request failed")
}
