package connection

import (
	"io"

	"github.com/life-stream-dev/life-stream-go-chat-broker/internal/logger"
)

// Send writes all of data to w, retrying short writes.
func Send(w io.Writer, data []byte, connID string) error {
	total := 0
	for total < len(data) {
		n, err := w.Write(data[total:])
		if err != nil {
			logger.ErrorF("[%s] Fail to send data, details: %v", connID, err)
			return err
		}
		total += n
	}
	logger.DebugF("[%s] Send %d bytes to client", connID, total)
	return nil
}
