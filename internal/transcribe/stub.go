package transcribe

import "context"

// StubGateway returns a fixed transcript so the pipeline keeps working
// without a provider.
type StubGateway struct{}

const StubTranscript = "Today I took a few minutes to check in with myself and notice how I am feeling."

func (StubGateway) Name() string { return "stub" }

func (StubGateway) Transcribe(ctx context.Context, audio []byte, _ string) (string, error) {
	if len(audio) == 0 {
		return "", ErrEmptyAudio
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return StubTranscript, nil
}
