package extract

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"go.uber.org/zap"
)

func TestSchemaMarshalScalar(t *testing.T) {
	out, err := json.Marshal(Scalar(KindURL))
	require.NoError(t, err)
	assert.Equal(t, `"url"`, string(out))
}

func TestSchemaMarshalList(t *testing.T) {
	out, err := json.Marshal(List(Scalar(KindString)))
	require.NoError(t, err)
	assert.Equal(t, `["string"]`, string(out))
}

func TestSchemaMarshalObject(t *testing.T) {
	s := Object(map[string]Schema{
		"name": Scalar(KindString),
		"offices": List(Object(map[string]Schema{
			"address": Scalar(KindString),
			"phone":   Scalar(KindString),
		})),
	})
	out, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Equal(t, `{"name":"string","offices":[{"address":"string","phone":"string"}]}`, string(out))
}

func TestSchemaMarshalEmpty(t *testing.T) {
	_, err := json.Marshal(Schema{})
	require.Error(t, err)
}

func TestTollFacilitySchemaShape(t *testing.T) {
	out, err := json.Marshal(TollFacilitySchema())
	require.NoError(t, err)

	var decoded map[string]string
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.Equal(t, "boolean", decoded["Is_Reversible"])
	assert.Equal(t, "url", decoded["Toll_Rate"])
}

type fakePages struct {
	body []byte
	err  error
}

func (f *fakePages) FetchPage(ctx context.Context, url string) ([]byte, error) {
	return f.body, f.err
}

type fakeModel struct {
	response string
	err      error
	messages []llms.MessageContent
}

func (f *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	f.messages = messages
	if f.err != nil {
		return nil, f.err
	}
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: f.response}},
	}, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return f.response, f.err
}

func TestExtractDecodesModelResponse(t *testing.T) {
	model := &fakeModel{response: `{"name": "Golden Gate Bridge", "Is_Reversible": false}`}
	e, err := NewLLMExtractorWithModel(model, &fakePages{body: []byte("<html>bridge tolls</html>")}, zap.NewNop())
	require.NoError(t, err)

	result, err := e.Extract(context.Background(), "http://example.com/tolls", TollFacilitySchema())
	require.NoError(t, err)
	assert.Equal(t, "Golden Gate Bridge", result["name"])
	assert.Equal(t, false, result["Is_Reversible"])

	require.Len(t, model.messages, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, model.messages[0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, model.messages[1].Role)
}

func TestExtractStripsCodeFences(t *testing.T) {
	model := &fakeModel{response: "```json\n{\"name\": \"I-90 Tunnel\"}\n```"}
	e, err := NewLLMExtractorWithModel(model, &fakePages{body: []byte("page")}, zap.NewNop())
	require.NoError(t, err)

	result, err := e.Extract(context.Background(), "http://example.com", TollFacilitySchema())
	require.NoError(t, err)
	assert.Equal(t, "I-90 Tunnel", result["name"])
}

func TestExtractPageFailure(t *testing.T) {
	e, err := NewLLMExtractorWithModel(&fakeModel{}, &fakePages{err: errors.New("unreachable")}, zap.NewNop())
	require.NoError(t, err)

	_, err = e.Extract(context.Background(), "http://example.com", TollFacilitySchema())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch page")
}

func TestExtractMalformedResponse(t *testing.T) {
	model := &fakeModel{response: "the page describes a bridge"}
	e, err := NewLLMExtractorWithModel(model, &fakePages{body: []byte("page")}, zap.NewNop())
	require.NoError(t, err)

	_, err = e.Extract(context.Background(), "http://example.com", TollFacilitySchema())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode extraction response")
}

func TestExtractPromptEmbedsSchema(t *testing.T) {
	model := &fakeModel{response: `{}`}
	e, err := NewLLMExtractorWithModel(model, &fakePages{body: []byte("page")}, zap.NewNop())
	require.NoError(t, err)

	_, err = e.Extract(context.Background(), "http://example.com", TollFacilitySchema())
	require.NoError(t, err)

	system := model.messages[0].Parts[0].(llms.TextContent).Text
	assert.Contains(t, system, `"Toll_Rate":"url"`)
}

func TestCollyPageFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>toll schedule</html>"))
	}))
	defer srv.Close()

	f := NewCollyPageFetcher("scraiper-test", 5*time.Second)
	body, err := f.FetchPage(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "toll schedule"))
}

func TestCollyPageFetcherCancelAbortsRequest(t *testing.T) {
	started := make(chan struct{})
	requestDone := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-r.Context().Done()
		close(requestDone)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := NewCollyPageFetcher("scraiper-test", 30*time.Second)

	errCh := make(chan error, 1)
	go func() {
		_, err := f.FetchPage(ctx, srv.URL)
		errCh <- err
	}()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("request never reached the server")
	}
	cancel()

	select {
	case err := <-errCh:
		require.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("fetch did not return after cancellation")
	}
	select {
	case <-requestDone:
	case <-time.After(5 * time.Second):
		t.Fatal("in-flight request was not aborted")
	}
}

func TestCollyPageFetcherError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := NewCollyPageFetcher("scraiper-test", 5*time.Second)
	_, err := f.FetchPage(context.Background(), srv.URL)
	require.Error(t, err)
}
