package protocol

import (
	"sort"
	"strings"
	"time"

	"github.com/life-stream-dev/life-stream-go-chat-broker/internal/utils"
)

// ReplyType tags a server line.
type ReplyType byte

const (
	Unknown ReplyType = iota
	Ok
	Error
	TopicList
	Forwarded
	ClosedAck
)

var ReplyTypeMap = map[ReplyType]string{
	Unknown:   "UNKNOWN",
	Ok:        "OK",
	Error:     "ERROR",
	TopicList: "TOPIC_LIST",
	Forwarded: "FORWARDED",
	ClosedAck: "CLOSE",
}

func (t ReplyType) String() string {
	return ReplyTypeMap[t]
}

const (
	topicsPrefix = "*topics-"
	emptyTopics  = "empty"
)

// Reply is one server line.
type Reply struct {
	Type      ReplyType
	Topics    []string // TopicList
	Topic     string   // Forwarded
	Origin    string   // Forwarded: ip:port of the publisher
	Timestamp string   // Forwarded: HH:mm:ss
	Content   string   // Forwarded
	Raw       string   // as received, for Unknown
}

func NewOk() Reply        { return Reply{Type: Ok} }
func NewError() Reply     { return Reply{Type: Error} }
func NewClosedAck() Reply { return Reply{Type: ClosedAck} }

// NewTopicList copies and sorts topics.
func NewTopicList(topics []string) Reply {
	list := append([]string(nil), topics...)
	sort.Strings(list)
	return Reply{Type: TopicList, Topics: list}
}

func NewForwarded(topic, origin string, at time.Time, content string) Reply {
	return Reply{
		Type:      Forwarded,
		Topic:     topic,
		Origin:    origin,
		Timestamp: utils.TimeStamp(at),
		Content:   content,
	}
}

// Encode serialises the reply as a single newline-terminated line.
func (r Reply) Encode() string {
	switch r.Type {
	case Ok:
		return "OK\n"
	case Error:
		return "ERROR\n"
	case ClosedAck:
		return "CLOSE\n"
	case TopicList:
		if len(r.Topics) == 0 {
			return topicsPrefix + emptyTopics + "\n"
		}
		return topicsPrefix + strings.Join(r.Topics, ",") + "\n"
	case Forwarded:
		return "( " + r.Topic + " ) " + r.Origin + " " + r.Timestamp + " - " + r.Content + "\n"
	default:
		return r.Raw + "\n"
	}
}

// ParseReply interprets a server line on the client side. Lines that match
// no known shape come back as Unknown with Raw set.
func ParseReply(line string) Reply {
	line = strings.TrimRight(line, "\r\n")
	trimmed := strings.TrimSpace(line)

	switch strings.ToUpper(trimmed) {
	case "OK":
		return Reply{Type: Ok, Raw: line}
	case "ERROR":
		return Reply{Type: Error, Raw: line}
	case "CLOSE":
		return Reply{Type: ClosedAck, Raw: line}
	}

	if list, found := strings.CutPrefix(trimmed, topicsPrefix); found {
		r := Reply{Type: TopicList, Raw: line}
		if list != emptyTopics && list != "" {
			r.Topics = strings.Split(list, ",")
		}
		return r
	}

	// ( topic ) origin HH:mm:ss - content
	parts := strings.SplitN(line, " ", 7)
	if len(parts) == 7 && parts[0] == "(" && parts[2] == ")" && parts[5] == "-" {
		return Reply{
			Type:      Forwarded,
			Topic:     parts[1],
			Origin:    parts[3],
			Timestamp: parts[4],
			Content:   parts[6],
			Raw:       line,
		}
	}

	return Reply{Type: Unknown, Raw: line}
}
