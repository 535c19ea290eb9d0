package logging

import (
	"fmt"
	"io"

	"github.com/aphistic/golf"
	"github.com/rs/zerolog"

	"kstor/internal/jsonw"
)

// GraylogWriter re-encodes zerolog's JSON lines as GELF messages and
// forwards them to a Graylog server, adapted from
// utils/grayzero/writer.go.
type GraylogWriter struct {
	logger      *golf.Logger
	client      *golf.Client
	nextWriter  io.Writer
	serviceName string
	instanceID  string
}

func NewGraylogWriter(url string, nextWriter io.Writer, serviceName, instanceID string) (*GraylogWriter, error) {
	c, err := golf.NewClient()
	if err != nil {
		return nil, err
	}
	if err := c.Dial(url); err != nil {
		return nil, err
	}
	l, err := c.NewLogger()
	if err != nil {
		return nil, err
	}

	return &GraylogWriter{
		logger:      l,
		client:      c,
		nextWriter:  nextWriter,
		serviceName: serviceName,
		instanceID:  instanceID,
	}, nil
}

func (w *GraylogWriter) Write(p []byte) (int, error) {
	var evt map[string]any
	if err := jsonw.Unmarshal(p, &evt); err != nil {
		return 0, fmt.Errorf("cannot decode event: %w", err)
	}

	fields := make(map[string]any, len(evt)+2)
	if w.serviceName != "" {
		fields["_service"] = w.serviceName
	}
	if w.instanceID != "" {
		fields["_instance"] = w.instanceID
	}

	var message, level string
	for k, v := range evt {
		switch k {
		case zerolog.LevelFieldName:
			level, _ = v.(string)
		case zerolog.MessageFieldName:
			message, _ = v.(string)
		case zerolog.TimestampFieldName:
			continue
		}
		fields[k] = v
	}

	msg := w.logger.NewMessage()
	msg.ShortMessage = message
	msg.Attrs = fields

	switch level {
	case "trace", "debug":
		msg.Level = golf.LEVEL_DBG
	case "info":
		msg.Level = golf.LEVEL_INFO
	case "warn":
		msg.Level = golf.LEVEL_WARN
	case "error":
		msg.Level = golf.LEVEL_ERR
	case "fatal":
		msg.Level = golf.LEVEL_CRIT
	case "panic":
		msg.Level = golf.LEVEL_EMERG
	default:
		msg.Level = golf.LEVEL_NOTICE
	}

	if err := w.client.QueueMsg(msg); err != nil {
		return 0, err
	}

	if w.nextWriter != nil {
		return w.nextWriter.Write(p)
	}
	return len(p), nil
}

func (w *GraylogWriter) Close() error {
	return w.client.Close()
}
