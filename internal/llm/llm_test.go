package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	responses []string
	calls     int
}

func (f *fakeClient) Complete(ctx context.Context, req Request) (Response, error) {
	resp := f.responses[f.calls]
	f.calls++
	return Response{Content: resp}, nil
}

func TestCompleteWithSchemaSucceedsFirstTry(t *testing.T) {
	client := &fakeClient{responses: []string{`{"title":"ok"}`}}
	out, err := CompleteWithSchema(context.Background(), client, Request{MaxRetry: 5}, func(content string) (bool, string) {
		return content == `{"title":"ok"}`, "bad"
	})
	require.NoError(t, err)
	assert.Equal(t, `{"title":"ok"}`, out)
	assert.Equal(t, 1, client.calls)
}

func TestCompleteWithSchemaRetriesWithCorrection(t *testing.T) {
	client := &fakeClient{responses: []string{"garbage", `{"title":"ok"}`}}
	out, err := CompleteWithSchema(context.Background(), client, Request{MaxRetry: 5}, func(content string) (bool, string) {
		return content == `{"title":"ok"}`, "must be valid json"
	})
	require.NoError(t, err)
	assert.Equal(t, `{"title":"ok"}`, out)
	assert.Equal(t, 2, client.calls)
}

func TestCompleteWithSchemaFailsAfterMaxRetries(t *testing.T) {
	client := &fakeClient{responses: []string{"bad", "bad", "bad"}}
	_, err := CompleteWithSchema(context.Background(), client, Request{MaxRetry: 3}, func(content string) (bool, string) {
		return false, "never valid"
	})
	require.Error(t, err)
	assert.Equal(t, 3, client.calls)
}

func TestRenderSimpleSubstitutesPlaceholders(t *testing.T) {
	out := RenderSimple("hello {{name}}, you are {{age}}", map[string]string{"name": "ada", "age": "36"})
	assert.Equal(t, "hello ada, you are 36", out)
}

func TestErrAPIKeyNotFoundMessage(t *testing.T) {
	err := &ErrAPIKeyNotFound{EnvVar: "OPENAI_API_KEY"}
	assert.Contains(t, err.Error(), "OPENAI_API_KEY")
}
