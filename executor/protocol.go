package executor

import (
	"bytes"
	"encoding/base64"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
)

// Session protocol frames, written by the guest driver to stderr.
// Format: \x00ANCHOR_<KIND>:<base64 payload>\x00
const (
	framePrefix = "\x00ANCHOR_"
	frameSuffix = "\x00"
)

type frameKind string

const (
	frameReady frameKind = "READY"
	frameDone  frameKind = "DONE"
	frameError frameKind = "ERROR"
	frameFatal frameKind = "FATAL"
)

type frame struct {
	kind    frameKind
	payload string
}

// findNextFrame returns the index of the next frame start in content, or -1.
func findNextFrame(content string) int {
	return strings.Index(content, framePrefix)
}

// extractFrame parses the frame starting at idx. ok is false when the frame
// is not complete yet.
func extractFrame(content string, idx int) (f frame, remaining string, ok bool, err error) {
	body := content[idx+len(framePrefix):]
	end := strings.Index(body, frameSuffix)
	if end == -1 {
		return frame{}, content, false, nil
	}
	remaining = body[end+len(frameSuffix):]

	kind, encoded, found := strings.Cut(body[:end], ":")
	if !found {
		return frame{}, remaining, true, errors.Newf("malformed frame %q", body[:end])
	}

	payload, decErr := base64.StdEncoding.DecodeString(encoded)
	if decErr != nil {
		return frame{}, remaining, true, errors.Wrapf(decErr, "decode %s frame", kind)
	}

	return frame{kind: frameKind(kind), payload: string(payload)}, remaining, true, nil
}

// evalResult is the guest's answer to one exec request.
type evalResult struct {
	value   string
	message string
	failed  bool
}

// sessionProtocol intercepts the guest's stderr. Frames drive the session;
// everything else is kept as diagnostics.
type sessionProtocol struct {
	buf         bytes.Buffer
	diagnostics bytes.Buffer

	readyCh chan struct{}
	doneCh  chan evalResult
	ready   bool
	fatal   string

	mu sync.Mutex
}

func newSessionProtocol() *sessionProtocol {
	return &sessionProtocol{
		readyCh: make(chan struct{}),
		doneCh:  make(chan evalResult, 1),
	}
}

func (p *sessionProtocol) Write(data []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(data)
	p.buf.Write(data)

	for {
		content := p.buf.String()

		idx := findNextFrame(content)
		if idx == -1 {
			// Keep a possible partial prefix for the next write.
			keep := partialPrefixLen(content)
			p.diagnostics.WriteString(content[:len(content)-keep])
			p.buf.Reset()
			p.buf.WriteString(content[len(content)-keep:])
			break
		}

		f, remaining, ok, err := extractFrame(content, idx)
		if !ok {
			if idx > 0 {
				p.diagnostics.WriteString(content[:idx])
				p.buf.Reset()
				p.buf.WriteString(content[idx:])
			}
			break
		}

		p.diagnostics.WriteString(content[:idx])
		p.buf.Reset()
		p.buf.WriteString(remaining)

		if err != nil {
			p.diagnostics.WriteString(err.Error())
			continue
		}
		p.handleFrame(f)
	}

	return n, nil
}

func (p *sessionProtocol) handleFrame(f frame) {
	switch f.kind {
	case frameReady:
		if !p.ready {
			p.ready = true
			close(p.readyCh)
		}
	case frameDone:
		p.deliver(evalResult{value: f.payload})
	case frameError:
		p.deliver(evalResult{message: f.payload, failed: true})
	case frameFatal:
		p.fatal = f.payload
	}
}

func (p *sessionProtocol) deliver(r evalResult) {
	select {
	case p.doneCh <- r:
	default:
	}
}

// partialPrefixLen reports how many trailing bytes of content could be the
// start of a frame prefix split across writes.
func partialPrefixLen(content string) int {
	for n := len(framePrefix) - 1; n > 0; n-- {
		if strings.HasSuffix(content, framePrefix[:n]) {
			return n
		}
	}
	return 0
}

func (p *sessionProtocol) Ready() <-chan struct{} {
	return p.readyCh
}

func (p *sessionProtocol) Done() <-chan evalResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.doneCh
}

// ResetExec drops any stale result and diagnostics before a new request.
func (p *sessionProtocol) ResetExec() {
	p.mu.Lock()
	defer p.mu.Unlock()

	select {
	case <-p.doneCh:
	default:
	}
	p.doneCh = make(chan evalResult, 1)
	p.diagnostics.Reset()
}

func (p *sessionProtocol) Fatal() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fatal
}

func (p *sessionProtocol) Diagnostics() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.diagnostics.String()
}
