// Package protocol implements the line-oriented chat protocol: decoding
// client lines into commands and encoding server replies.
package protocol

import (
	"strings"

	e "github.com/life-stream-dev/life-stream-go-chat-broker/internal/errors"
)

// CommandType tags a decoded client line.
type CommandType byte

const (
	BadRequest CommandType = iota
	Register
	Leave
	Send
	Close
	ListTopics
)

var CommandTypeMap = map[CommandType]string{
	BadRequest: "BAD_REQUEST",
	Register:   "REGISTER",
	Leave:      "LEAVE",
	Send:       "SEND",
	Close:      "CLOSE",
	ListTopics: "LIST_TOPICS",
}

func (t CommandType) String() string {
	return CommandTypeMap[t]
}

// TopicsQuery is the out-of-band request for the caller's own subscriptions.
const TopicsQuery = "getRegisterTopics"

// Command is one decoded client line. Topic is set for Register, Leave and
// Send; Content only for Send; Err only for BadRequest.
type Command struct {
	Type    CommandType
	Topic   string
	Content string
	Raw     string
	Err     *e.ProtocolError
}

func badRequest(line, reason string) Command {
	return Command{Type: BadRequest, Raw: line, Err: &e.ProtocolError{Line: line, Reason: reason}}
}

// Decode never fails: anything it cannot interpret becomes BadRequest.
func Decode(line string) Command {
	line = strings.TrimRight(line, "\r\n")
	trimmed := strings.TrimSpace(line)

	if strings.EqualFold(trimmed, TopicsQuery) {
		return Command{Type: ListTopics, Raw: line}
	}
	if trimmed == "" {
		return badRequest(line, "empty line")
	}

	tokens := strings.Split(line, " ")
	verb := strings.ToUpper(strings.TrimSpace(tokens[0]))

	switch verb {
	case "REGISTER", "LEAVE":
		// Trailing blanks are not an extra token.
		args := strings.Split(strings.TrimRight(line, " \t"), " ")
		if len(args) < 2 || args[1] == "" {
			return badRequest(line, "missing topic")
		}
		if len(args) > 2 {
			return badRequest(line, "topic must be a single token")
		}
		t := Register
		if verb == "LEAVE" {
			t = Leave
		}
		return Command{Type: t, Topic: args[1], Raw: line}
	case "SEND":
		if len(tokens) < 2 || tokens[1] == "" {
			return badRequest(line, "missing topic")
		}
		return Command{Type: Send, Topic: tokens[1], Content: strings.Join(tokens[2:], " "), Raw: line}
	case "CLOSE":
		if strings.TrimSpace(strings.Join(tokens[1:], " ")) != "" {
			return badRequest(line, "CLOSE takes no arguments")
		}
		return Command{Type: Close, Raw: line}
	default:
		return badRequest(line, "unknown command "+tokens[0])
	}
}

// EncodeCommand builds the client line for a command.
func EncodeCommand(c Command) string {
	switch c.Type {
	case Register, Leave:
		return c.Type.String() + " " + c.Topic + "\n"
	case Send:
		return "SEND " + c.Topic + " " + c.Content + "\n"
	case Close:
		return "CLOSE\n"
	case ListTopics:
		return TopicsQuery + "\n"
	default:
		return c.Raw + "\n"
	}
}

// ValidTopic reports whether topic is a non-empty token without whitespace.
func ValidTopic(topic string) bool {
	return topic != "" && !strings.ContainsAny(topic, " \t\r\n")
}
