package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/turnkit/voicecore/pkg/orchestrator"
)

type DeepgramSTT struct {
	apiKey string
	url    string
}

func NewDeepgramSTT(apiKey string) *DeepgramSTT {
	return &DeepgramSTT{
		apiKey: apiKey,
		url:    "https://api.deepgram.com/v1/listen",
	}
}

func (s *DeepgramSTT) Name() string {
	return "deepgram-stt"
}

func (s *DeepgramSTT) Transcribe(ctx context.Context, audioPCM []byte, lang orchestrator.Language) (string, error) {
	u, err := url.Parse(s.url)
	if err != nil {
		return "", err
	}

	params := u.Query()
	params.Set("model", "nova-2")
	params.Set("smart_format", "true")
	if lang != "" {
		params.Set("language", string(lang))
	}
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, "POST", u.String(), bytes.NewReader(audioPCM))
	if err != nil {
		return "", err
	}

	req.Header.Set("Authorization", "Token "+s.apiKey)
	req.Header.Set("Content-Type", "audio/l16; rate=44100; channels=1") // Adjust rate based on usage or inject it

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("deepgram error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Results struct {
			Channels []struct {
				Alternatives []struct {
					Transcript string `json:"transcript"`
				} `json:"alternatives"`
			} `json:"channels"`
		} `json:"results"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}

	if len(result.Results.Channels) == 0 || len(result.Results.Channels[0].Alternatives) == 0 {
		return "", nil
	}

	return result.Results.Channels[0].Alternatives[0].Transcript, nil
}

type deepgramStreamResult struct {
	IsFinal bool `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// StreamTranscribe satisfies orchestrator.StreamingSTTProvider against
// Deepgram's live listen websocket. The returned channel accepts raw PCM
// frames; onTranscript is invoked inline on the read goroutine for every
// interim and final result Deepgram emits.
func (s *DeepgramSTT) StreamTranscribe(ctx context.Context, lang orchestrator.Language, onTranscript func(transcript string, isFinal bool) error) (chan<- []byte, error) {
	u, err := url.Parse(s.url)
	if err != nil {
		return nil, err
	}
	u.Scheme = "wss"

	params := u.Query()
	params.Set("model", "nova-2")
	params.Set("smart_format", "true")
	params.Set("interim_results", "true")
	params.Set("encoding", "linear16")
	params.Set("sample_rate", "16000")
	if lang != "" {
		params.Set("language", string(lang))
	}
	u.RawQuery = params.Encode()

	header := http.Header{}
	header.Set("Authorization", "Token "+s.apiKey)
	conn, _, err := websocket.Dial(ctx, u.String(), &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return nil, fmt.Errorf("deepgram stream dial: %w", err)
	}

	frames := make(chan []byte, 32)

	go func() {
		defer conn.Close(websocket.StatusNormalClosure, "")
		for {
			select {
			case <-ctx.Done():
				return
			case data, ok := <-frames:
				if !ok {
					return
				}
				if err := conn.Write(ctx, websocket.MessageBinary, data); err != nil {
					return
				}
			}
		}
	}()

	go func() {
		for {
			var result deepgramStreamResult
			if err := wsjson.Read(ctx, conn, &result); err != nil {
				return
			}
			if len(result.Channel.Alternatives) == 0 {
				continue
			}
			transcript := result.Channel.Alternatives[0].Transcript
			if transcript == "" {
				continue
			}
			if onTranscript(transcript, result.IsFinal) != nil {
				return
			}
		}
	}()

	return frames, nil
}
