package transcribe

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_FallsBackToStub(t *testing.T) {
	g := New(Config{}, zerolog.Nop())
	assert.Equal(t, "stub", g.Name())

	text, err := g.Transcribe(context.Background(), []byte("audio"), "audio/webm")
	require.NoError(t, err)
	assert.Equal(t, StubTranscript, text)

	_, err = g.Transcribe(context.Background(), nil, "audio/webm")
	assert.ErrorIs(t, err, ErrEmptyAudio)
}

func TestWhisperGateway_Transcribe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/audio/transcriptions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			return
		}
		assert.Equal(t, "whisper-1", r.FormValue("model"))

		f, hdr, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		defer f.Close()
		assert.Equal(t, "recording.webm", hdr.Filename)
		data, _ := io.ReadAll(f)
		assert.Equal(t, "voice", string(data))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":"  I feel anxious about work  "}`))
	}))
	defer server.Close()

	g := NewWhisperGateway(Config{APIKey: "test-key", BaseURL: server.URL}, zerolog.Nop())
	text, err := g.Transcribe(context.Background(), []byte("voice"), "audio/webm")
	require.NoError(t, err)
	assert.Equal(t, "I feel anxious about work", text)
}

func TestWhisperGateway_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, `{"error":"boom"}`},
		{"empty text", http.StatusOK, `{"text":"   "}`},
		{"bad json", http.StatusOK, `not json`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			g := NewWhisperGateway(Config{APIKey: "k", BaseURL: server.URL}, zerolog.Nop())
			_, err := g.Transcribe(context.Background(), []byte("voice"), "audio/wav")
			assert.Error(t, err)
		})
	}
}
