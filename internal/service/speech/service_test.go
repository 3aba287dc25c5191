package speech

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/objectionlab/voicecall/backend/internal/model/speech"
)

type fakeTranscriber struct {
	text string
	err  error
	wait bool
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, in speech.AudioInput) (speech.Transcript, error) {
	if f.wait {
		<-ctx.Done()
		return speech.Transcript{}, ctx.Err()
	}
	if f.err != nil {
		return speech.Transcript{}, f.err
	}
	return speech.Transcript{SessionID: in.SessionID, Text: f.text}, nil
}

type fakeSynthesizer struct {
	audio []byte
	err   error
}

func (f *fakeSynthesizer) Synthesize(_ context.Context, in speech.SynthesisInput) (speech.Audio, error) {
	if f.err != nil {
		return speech.Audio{}, f.err
	}
	return speech.Audio{SessionID: in.SessionID, Data: f.audio, Format: "mp3"}, nil
}

func TestServiceNotConfigured(t *testing.T) {
	svc := NewService(nil, nil, time.Second, zerolog.Nop())

	assert.False(t, svc.CanTranscribe())
	assert.False(t, svc.CanSynthesize())

	_, err := svc.Transcribe(context.Background(), speech.AudioInput{Data: []byte{1}})
	require.ErrorIs(t, err, ErrTranscription)
	require.ErrorIs(t, err, ErrNotConfigured)

	_, err = svc.Synthesize(context.Background(), speech.SynthesisInput{Text: "hi"})
	require.ErrorIs(t, err, ErrSynthesis)
	require.ErrorIs(t, err, ErrNotConfigured)
}

func TestServiceTranscribe(t *testing.T) {
	svc := NewService(&fakeTranscriber{text: "hey there"}, nil, time.Second, zerolog.Nop())

	result, err := svc.Transcribe(context.Background(), speech.AudioInput{SessionID: "c1", Data: []byte("RIFF")})
	require.NoError(t, err)
	assert.Equal(t, "hey there", result.Text)
	assert.Equal(t, "c1", result.SessionID)
}

func TestServiceTranscribeFailures(t *testing.T) {
	tests := []struct {
		name        string
		transcriber *fakeTranscriber
		data        []byte
	}{
		{name: "empty audio", transcriber: &fakeTranscriber{text: "x"}, data: nil},
		{name: "no speech", transcriber: &fakeTranscriber{text: ""}, data: []byte{1}},
		{name: "provider error", transcriber: &fakeTranscriber{err: errors.New("boom")}, data: []byte{1}},
		{name: "timeout", transcriber: &fakeTranscriber{wait: true}, data: []byte{1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(tt.transcriber, nil, 20*time.Millisecond, zerolog.Nop())
			_, err := svc.Transcribe(context.Background(), speech.AudioInput{Data: tt.data})
			require.ErrorIs(t, err, ErrTranscription)
		})
	}
}

func TestServiceSynthesize(t *testing.T) {
	svc := NewService(nil, &fakeSynthesizer{audio: []byte("ID3")}, time.Second, zerolog.Nop())

	audio, err := svc.Synthesize(context.Background(), speech.SynthesisInput{Text: "sure"})
	require.NoError(t, err)
	assert.Equal(t, []byte("ID3"), audio.Data)

	svc = NewService(nil, &fakeSynthesizer{}, time.Second, zerolog.Nop())
	_, err = svc.Synthesize(context.Background(), speech.SynthesisInput{Text: "sure"})
	require.ErrorIs(t, err, ErrSynthesis)

	wrapped := errors.New("upstream 500")
	svc = NewService(nil, &fakeSynthesizer{err: wrapped}, time.Second, zerolog.Nop())
	_, err = svc.Synthesize(context.Background(), speech.SynthesisInput{Text: "sure"})
	require.ErrorIs(t, err, ErrSynthesis)
	require.ErrorIs(t, err, wrapped)
}

func TestNormalizeAudioFormat(t *testing.T) {
	cases := map[string]string{
		"":           "wav",
		"MP3":        "mp3",
		"audio/mpeg": "mp3",
		"clip.webm":  "webm",
		"m4a":        "m4a",
		"x-wav":      "wav",
		"aiff":       "wav",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeAudioFormat(in), "input %q", in)
	}
}

func TestSpeakerCandidates(t *testing.T) {
	assert.Equal(t,
		[]string{"custom_voice", "en_male_glen_emo_v2_mars_bigtts", defaultVolcengineVoice},
		speakerCandidates("custom_voice", "en_male"))

	assert.Equal(t, []string{defaultVolcengineVoice}, speakerCandidates("", ""))

	assert.Equal(t,
		[]string{"Custom", defaultVolcengineVoice},
		speakerCandidates("Custom", "custom"))
}

func TestResourceCandidates(t *testing.T) {
	assert.Equal(t, []string{resourceMega}, resourceCandidates("S_clone_speaker"))
	assert.Equal(t, []string{resourceSeed, resourceStandard}, resourceCandidates("en_male_corey_emo_v2_mars_bigtts"))
	assert.Equal(t, []string{resourceStandard, resourceSeed}, resourceCandidates("en_male_organizer"))
}
