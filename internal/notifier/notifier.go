package notifier

import (
	"context"
	"time"

	"github.com/mkarev/document-analysis-service/internal/models"
	"github.com/mkarev/document-analysis-service/internal/utils"
)

// DocumentReader is the read-only slice of the repository the notifier needs.
type DocumentReader interface {
	GetByID(ctx context.Context, id string) (*models.Document, error)
}

// StatusSink receives the terminal document projection. Satisfied by
// *websocket.Conn.
type StatusSink interface {
	WriteJSON(v interface{}) error
}

// Notifier runs one polling loop per subscribed connection. There is no
// shared registry of connections: each subscription owns its document id
// and its own loop, so no registration or cleanup is required.
type Notifier struct {
	reader   DocumentReader
	logger   *utils.Logger
	interval time.Duration
}

func New(reader DocumentReader, interval time.Duration, logger *utils.Logger) *Notifier {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Notifier{
		reader:   reader,
		logger:   logger.Component("notifier"),
		interval: interval,
	}
}

// Stream re-reads the document on a fixed interval and pushes the full
// projection once the status becomes terminal, then returns. While the
// document is still processing nothing is sent. Returns when the context
// is cancelled (client gone), the document disappears, or after the
// terminal push.
func (n *Notifier) Stream(ctx context.Context, sink StatusSink, documentID string) error {
	ticker := time.NewTicker(n.interval)
	defer ticker.Stop()

	for {
		doc, err := n.reader.GetByID(ctx, documentID)
		if err != nil {
			n.logger.Error("Failed to read document", "document_id", documentID, "error", err)
			return err
		}
		if doc == nil {
			n.logger.Warn("Subscribed document not found", "document_id", documentID)
			return nil
		}

		if models.IsTerminal(doc.Status) {
			if err := sink.WriteJSON(doc); err != nil {
				return err
			}
			n.logger.Info("Pushed terminal status", "document_id", documentID, "status", doc.Status)
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
