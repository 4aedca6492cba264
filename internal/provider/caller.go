package provider

import (
	"context"
	"encoding/json"
	"log"

	"github.com/replaykit/replayd/internal/domain"
	"github.com/replaykit/replayd/internal/errs"
	"github.com/replaykit/replayd/internal/recorder"
)

// Request describes one provider call. Requests with the same prompt, schema
// shape, options, and tools share a recording hash.
type Request struct {
	Prompt  string                 `json:"prompt"`
	Schema  json.RawMessage        `json:"schema,omitempty"`
	Options map[string]interface{} `json:"options,omitempty"`
	Tools   []Tool                 `json:"tools,omitempty"`
}

// Hash returns the deterministic recording key for the request.
func (r Request) Hash() (string, error) {
	var schema interface{}
	if len(r.Schema) > 0 {
		if err := json.Unmarshal(r.Schema, &schema); err != nil {
			return "", errs.Wrap(errs.CodeValidation, "schema is not valid JSON", err)
		}
	}
	return recorder.RequestHash(r.Prompt, schema, r.Options, r.Tools)
}

// Usage holds token usage for a completed call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Result is the terminal outcome of a provider call.
type Result struct {
	Text  string `json:"text"`
	Model string `json:"model,omitempty"`
	Usage *Usage `json:"usage,omitempty"`
}

// StreamFunc receives each streamed provider event as raw JSON.
type StreamFunc func(event json.RawMessage) error

// Caller executes provider requests.
type Caller interface {
	// Call executes the request, forwarding stream events to onEvent
	// (which may be nil), and returns the final result.
	Call(ctx context.Context, req Request, onEvent StreamFunc) (*Result, error)
	// Name identifies the underlying provider.
	Name() string
}

// ForMode selects the caller for the process-wide provider mode, fixed once
// at startup so recording and replay behavior cannot diverge within one run.
func ForMode(mode domain.ProviderMode, live Caller, rec *recorder.Recorder) Caller {
	if mode == domain.ProviderModePlayback {
		return &playbackCaller{rec: rec, name: live.Name()}
	}
	return &recordingCaller{live: live, rec: rec}
}

// recordingCaller calls the live provider and captures the stream
// incrementally: every event is persisted before it is forwarded, so a crash
// mid-stream loses at most the tail. The capture is finalized only on a
// successful result; a cancelled or failed call leaves an in-progress entry
// that Load will never return.
type recordingCaller struct {
	live Caller
	rec  *recorder.Recorder
}

func (c *recordingCaller) Name() string { return c.live.Name() }

func (c *recordingCaller) Call(ctx context.Context, req Request, onEvent StreamFunc) (*Result, error) {
	hash, err := req.Hash()
	if err != nil {
		return nil, err
	}

	recordingID, err := c.rec.Start(ctx, hash, domain.RecordingMeta{
		Prompt:   req.Prompt,
		Provider: c.live.Name(),
	})
	if err != nil {
		return nil, err
	}

	result, err := c.live.Call(ctx, req, func(event json.RawMessage) error {
		if err := c.rec.Append(ctx, recordingID, event); err != nil {
			return err
		}
		if onEvent != nil {
			return onEvent(event)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	resultJSON, err := json.Marshal(result)
	if err != nil {
		return nil, errs.Wrap(errs.CodeProvider, "marshal result", err)
	}
	if err := c.rec.Finalize(ctx, recordingID, resultJSON); err != nil {
		// The call succeeded; losing the capture is not worth failing it.
		log.Printf("ERROR: failed to finalize recording %s: %v", recordingID, err)
	}
	return result, nil
}

// playbackCaller replays finalized recordings and never calls a live
// provider. A request with no recording fails: determinism is the point.
type playbackCaller struct {
	rec  *recorder.Recorder
	name string
}

func (c *playbackCaller) Name() string { return c.name }

func (c *playbackCaller) Call(ctx context.Context, req Request, onEvent StreamFunc) (*Result, error) {
	hash, err := req.Hash()
	if err != nil {
		return nil, err
	}

	rec, err := c.rec.Load(ctx, hash)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, errs.New(errs.CodeRecordingMissing, "no recording for request hash %s", hash)
	}

	for _, event := range rec.Events {
		if onEvent != nil {
			if err := onEvent(event); err != nil {
				return nil, err
			}
		}
	}

	var result Result
	if len(rec.Result) > 0 {
		if err := json.Unmarshal(rec.Result, &result); err != nil {
			return nil, errs.Wrap(errs.CodeProvider, "decode recorded result", err)
		}
	}
	return &result, nil
}
