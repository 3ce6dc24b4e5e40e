package client

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/life-stream-dev/life-stream-go-chat-broker/internal/protocol"
)

// Renderer prints server lines for a human.
type Renderer struct {
	out     io.Writer
	success *color.Color
	failure *color.Color
	topic   *color.Color
	notice  *color.Color
}

func NewRenderer(out io.Writer) *Renderer {
	return &Renderer{
		out:     out,
		success: color.New(color.FgGreen),
		failure: color.New(color.FgRed),
		topic:   color.New(color.FgCyan, color.Bold),
		notice:  color.New(color.FgYellow),
	}
}

// Render prints reply, phrasing OK and ERROR after action.
func (r *Renderer) Render(reply protocol.Reply, action Action) {
	switch reply.Type {
	case protocol.TopicList:
		if len(reply.Topics) > 0 {
			_, _ = fmt.Fprintf(r.out, "registered topics: %s\n", strings.Join(reply.Topics, ","))
		}
	case protocol.Ok:
		switch action {
		case Register:
			_, _ = r.success.Fprintln(r.out, "OK - topic registered successfully")
		case Leave:
			_, _ = r.success.Fprintln(r.out, "OK - topic unregistered successfully")
		default:
			_, _ = r.success.Fprintln(r.out, "OK - Command executed successfully")
		}
	case protocol.Error:
		switch action {
		case Register:
			_, _ = r.failure.Fprintln(r.out, "ERROR - you tried to register topic twice")
		case Leave:
			_, _ = r.failure.Fprintln(r.out, "ERROR - you tried to leave unregistered topic")
		default:
			_, _ = r.failure.Fprintln(r.out, "ERROR - An error occurred while executing the command")
		}
	case protocol.Forwarded:
		_, _ = fmt.Fprintf(r.out, "%s %s %s - %s\n",
			r.topic.Sprintf("( %s )", reply.Topic), reply.Origin, reply.Timestamp, reply.Content)
	case protocol.ClosedAck:
		_, _ = r.notice.Fprintln(r.out, "Connection closed by server")
	default:
		_, _ = fmt.Fprintln(r.out, reply.Raw)
	}
}
