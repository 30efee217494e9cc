package franchise

import (
	"context"
	"fmt"

	domainFranchise "github.com/turtacn/toda-franchise/internal/domain/franchise"
	"github.com/turtacn/toda-franchise/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/toda-franchise/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/toda-franchise/pkg/errors"
	"github.com/turtacn/toda-franchise/pkg/types/common"
)

// Notice is one owner-facing message derived from a lifecycle event.
type Notice struct {
	EventID string
	Topic   string
	OwnerID int64
	Subject string
	Body    string
	Change  kafka.StatusChangedPayload
}

// Notifier delivers notices to franchise owners.
type Notifier interface {
	Notify(ctx context.Context, n Notice) error
}

// ConsumerMetrics records consumed events (prometheus.AppMetrics in production).
type ConsumerMetrics interface {
	RecordEventConsumed(topic string, err error)
}

// LogNotifier writes notices to the log. It is the delivery channel until an
// SMS gateway is wired in.
type LogNotifier struct {
	logger logging.Logger
}

func NewLogNotifier(logger logging.Logger) *LogNotifier {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, notice Notice) error {
	n.logger.Info("owner notified",
		logging.String("event_id", notice.EventID),
		logging.String("topic", notice.Topic),
		logging.Int64("owner_id", notice.OwnerID),
		logging.String("subject", notice.Subject),
		logging.String("body", notice.Body),
	)
	return nil
}

// StatusEventHandler turns franchise.status_changed and franchise.issued
// messages into notices. Malformed messages are returned as errors so the
// consumer can retry and dead-letter them.
func StatusEventHandler(notifier Notifier, metrics ConsumerMetrics, logger logging.Logger) common.MessageHandler {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return func(ctx context.Context, msg *common.Message) (err error) {
		if metrics != nil {
			defer func() { metrics.RecordEventConsumed(msg.Topic, err) }()
		}

		env, err := kafka.MessageToEventEnvelope(msg)
		if err != nil {
			return err
		}
		var change kafka.StatusChangedPayload
		if err = env.DecodePayload(&change); err != nil {
			return err
		}
		if change.RecordID == 0 || change.To == "" {
			err = errors.Newf(errors.ErrCodeValidation, "event %s carries no status change", env.EventID)
			return err
		}

		notice := buildNotice(msg.Topic, env.EventID, change)
		if err = notifier.Notify(ctx, notice); err != nil {
			logger.Warn("notification failed",
				logging.String("event_id", env.EventID),
				logging.Int64("owner_id", change.OwnerID),
				logging.Err(err),
			)
			return err
		}
		return nil
	}
}

func buildNotice(topic, eventID string, c kafka.StatusChangedPayload) Notice {
	n := Notice{EventID: eventID, Topic: topic, OwnerID: c.OwnerID, Change: c}
	record := "franchise"
	if c.Kind == string(domainFranchise.KindRenewal) {
		record = "franchise renewal"
	}

	switch {
	case topic == kafka.TopicIssued && c.ExpiryDate != nil:
		n.Subject = fmt.Sprintf("%s issued for %s", record, c.PlateNo)
		n.Body = fmt.Sprintf("Your %s for plate %s is approved and valid until %s.",
			record, c.PlateNo, c.ExpiryDate.Format("January 2, 2006"))
	case topic == kafka.TopicIssued:
		n.Subject = fmt.Sprintf("%s issued for %s", record, c.PlateNo)
		n.Body = fmt.Sprintf("Your %s for plate %s is approved.", record, c.PlateNo)
	default:
		n.Subject = fmt.Sprintf("%s %s", record, c.To)
		n.Body = fmt.Sprintf("Your %s for plate %s moved from %s to %s.", record, c.PlateNo, c.From, c.To)
	}
	return n
}
