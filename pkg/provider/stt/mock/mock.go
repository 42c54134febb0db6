// Package mock provides a test double for the stt.Provider interface.
//
// Responses are consumed in order; once exhausted, the last response is
// repeated. Example:
//
//	p := &mock.Provider{Responses: []mock.Response{{Text: "quiero registrarme"}}}
//	tr, _ := p.Transcribe(ctx, stt.Request{PCM: pcm, SampleRate: 16000, Channels: 1})
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/vozbraille/pkg/provider/stt"
)

var _ stt.Provider = (*Provider)(nil)

// Response is one scripted Transcribe result.
type Response struct {
	Text string
	Err  error
}

// TranscribeCall records a single invocation of Transcribe.
type TranscribeCall struct {
	// Request is the request passed to Transcribe. PCM is copied.
	Request stt.Request
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Responses are returned in order by Transcribe.
	Responses []Response

	// OnTranscribe, if set, is called with each request before a response is
	// chosen. It must not call back into the Provider.
	OnTranscribe func(stt.Request)

	next  int
	calls []TranscribeCall
}

// Transcribe records the call and returns the next scripted response.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (stt.Transcript, error) {
	p.mu.Lock()
	cp := req
	cp.PCM = append([]byte(nil), req.PCM...)
	p.calls = append(p.calls, TranscribeCall{Request: cp})

	var resp Response
	if n := len(p.Responses); n > 0 {
		i := min(p.next, n-1)
		resp = p.Responses[i]
		p.next++
	}
	hook := p.OnTranscribe
	p.mu.Unlock()

	if hook != nil {
		hook(cp)
	}
	if err := ctx.Err(); err != nil {
		return stt.Transcript{}, err
	}
	if resp.Err != nil {
		return stt.Transcript{}, resp.Err
	}
	return stt.Transcript{Text: resp.Text}, nil
}

// Calls returns a copy of every recorded Transcribe call.
func (p *Provider) Calls() []TranscribeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]TranscribeCall, len(p.calls))
	copy(out, p.calls)
	return out
}

// Reset clears recorded calls and rewinds the scripted responses.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = nil
	p.next = 0
}
