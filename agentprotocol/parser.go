package agentprotocol

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/h4mn/skybridge/logger"
)

const (
	openTag  = "<skybridge_command>"
	closeTag = "</skybridge_command>"

	// DefaultMaxFrameSize is the default cap on a single control frame's
	// byte length before it is dropped as oversized.
	DefaultMaxFrameSize = 50000
)

var (
	commandRe   = regexp.MustCompile(`(?s)<command>(.*?)</command>`)
	parametroRe = regexp.MustCompile(`(?s)<parametro\s+name="([^"]*)">(.*?)</parametro>`)

	entityUnescaper = strings.NewReplacer(
		"&lt;", "<",
		"&gt;", ">",
		"&amp;", "&",
		"&quot;", `"`,
		"&apos;", "'",
	)
)

// Parser is an io.Writer-fed state machine: feed it stdout chunks of
// arbitrary size via Write, and read parsed Events from the channel
// returned by Events().
type Parser struct {
	log          logger.Logger
	maxFrameSize int

	buf    bytes.Buffer
	events chan Event
}

// New returns a Parser that emits Events on an internal channel, closed
// once Close is called. maxFrameSize of 0 uses DefaultMaxFrameSize.
func New(l logger.Logger, maxFrameSize int) *Parser {
	if maxFrameSize <= 0 {
		maxFrameSize = DefaultMaxFrameSize
	}
	return &Parser{
		log:          l,
		maxFrameSize: maxFrameSize,
		events:       make(chan Event, 64),
	}
}

// Events returns the ordered stream of parsed events.
func (p *Parser) Events() <-chan Event { return p.events }

// Close signals that no more input will arrive, flushing any trailing text
// as a final TextChunk and closing the event channel.
func (p *Parser) Close() {
	if p.buf.Len() > 0 {
		p.emitText(p.buf.String())
		p.buf.Reset()
	}
	close(p.events)
}

// Write feeds a chunk of subprocess stdout into the parser. It never
// returns an error; malformed input is logged and skipped rather than
// treated as fatal, per the protocol's tolerance requirements.
func (p *Parser) Write(chunk []byte) (int, error) {
	p.buf.Write(chunk)
	p.drain()
	return len(chunk), nil
}

// drain repeatedly extracts complete frames and text runs from the
// accumulated buffer until no more progress can be made without more input.
func (p *Parser) drain() {
	for {
		data := p.buf.Bytes()
		idx := bytes.Index(data, []byte(openTag))

		if idx == -1 {
			// No frame opener pending. Keep a small tail in case it's the
			// prefix of an opener split across reads, and keep any
			// unfinished line so a JSON line is never split; flush the
			// complete lines before that.
			safe := len(data) - (len(openTag) - 1)
			if safe > 0 {
				if nl := bytes.LastIndexByte(data[:safe], '\n'); nl >= 0 {
					p.emitText(string(data[:nl+1]))
					p.buf.Next(nl + 1)
				}
			}
			return
		}

		if idx > 0 {
			p.emitText(string(data[:idx]))
			p.buf.Next(idx)
			data = p.buf.Bytes()
		}

		closeIdx := bytes.Index(data, []byte(closeTag))
		if closeIdx == -1 {
			if len(data) > p.maxFrameSize {
				p.log.Warn("agentprotocol: frame exceeds %d bytes without terminator, dropping and resynchronizing", p.maxFrameSize)
				// Drop the opener itself and look for the next one.
				p.buf.Next(len(openTag))
				continue
			}
			return // wait for more data
		}

		frameEnd := closeIdx + len(closeTag)
		if frameEnd > p.maxFrameSize {
			p.log.Warn("agentprotocol: frame of %d bytes exceeds max %d, dropping", frameEnd, p.maxFrameSize)
			p.buf.Next(frameEnd)
			continue
		}

		body := string(data[len(openTag):closeIdx])
		p.buf.Next(frameEnd)
		p.parseFrame(body)
	}
}

// parseFrame decodes one <skybridge_command> body into a typed Event.
func (p *Parser) parseFrame(body string) {
	nameMatch := commandRe.FindStringSubmatch(body)
	if nameMatch == nil {
		p.log.Warn("agentprotocol: control frame missing <command>, skipping")
		return
	}
	name := strings.TrimSpace(unescape(nameMatch[1]))

	params := make(map[string]string)
	for _, m := range parametroRe.FindAllStringSubmatch(body, -1) {
		params[m[1]] = unescape(m[2])
	}

	switch name {
	case "log":
		p.events <- Event{Kind: KindLog, LogMessage: params["mensagem"], LogLevel: params["nivel"]}
	case "progress":
		pct, _ := strconv.ParseFloat(params["porcentagem"], 64)
		p.events <- Event{Kind: KindProgress, ProgressPercent: pct, ProgressMessage: params["mensagem"]}
	case "checkpoint":
		p.events <- Event{Kind: KindCheckpoint, CheckpointMessage: params["mensagem"]}
	case "error":
		p.events <- Event{Kind: KindError, ErrorMessage: params["mensagem"], ErrorType: params["tipo"]}
	default:
		p.log.Warn("agentprotocol: unrecognized command %q, skipping", name)
	}
}

// emitText splits plain stdout text into either a FinalResult (if a whole
// line is a valid JSON object) or TextChunk events.
func (p *Parser) emitText(text string) {
	text = strings.ToValidUTF8(text, "�")
	if strings.TrimSpace(text) == "" {
		return
	}

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if looksLikeFinalResult(trimmed) {
			p.events <- Event{Kind: KindFinalResult, FinalResultJSON: []byte(trimmed)}
			continue
		}
		p.events <- Event{Kind: KindTextChunk, Text: line}
	}
}

func looksLikeFinalResult(s string) bool {
	if !strings.HasPrefix(s, "{") || !strings.HasSuffix(s, "}") {
		return false
	}
	return json.Valid([]byte(s))
}

func unescape(s string) string {
	return entityUnescaper.Replace(s)
}
