package consumerWorker

import (
	"context"
	"encoding/json"

	"attendly/internal/dto"
	"attendly/internal/mailer"
	"attendly/internal/rabbit"

	"github.com/wb-go/wbf/zlog"
)

// Reader drains attendance events off RabbitMQ and turns each one into
// a staff notification email. Email failures are logged and the message
// acked anyway; a dead SMTP server must not back up the queue.
type Reader struct {
	RMQ    *rabbit.Client
	mail   mailer.Config
	done   chan struct{}
	cancel context.CancelFunc
}

func NewReader(rmq *rabbit.Client, mail mailer.Config) *Reader {
	return &Reader{
		RMQ:  rmq,
		mail: mail,
		done: make(chan struct{}),
	}
}

func (r *Reader) Start(ctx context.Context) {
	cctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	zlog.Logger.Info().Msg("attendance event reader started")

	go func() {
		defer close(r.done)

		handler := func(body []byte) error {
			var msg dto.AttendanceEventMessage
			if err := json.Unmarshal(body, &msg); err != nil {
				zlog.Logger.Error().
					Err(err).
					Msgf("Failed to unmarshal message: %s", string(body))
				return err
			}

			zlog.Logger.Info().
				Int64("aid", msg.AID).
				Str("attend_date", msg.AttendDate).
				Str("action", msg.Action).
				Msg("Received attendance event")

			if err := mailer.SendAttendanceEmail(
				&zlog.Logger,
				r.mail,
				msg.Action,
				msg.StudentID,
				msg.AttendDate,
			); err != nil {
				zlog.Logger.Warn().
					Err(err).
					Int64("aid", msg.AID).
					Msg("Failed to send staff notification")
			}

			return nil
		}

		if err := r.RMQ.Consume(handler); err != nil {
			zlog.Logger.Error().Err(err).Msg("Failed to start consuming")
			return
		}

		<-cctx.Done()
		zlog.Logger.Info().Msg("attendance event reader stopped by context")
	}()
}

func (r *Reader) Stop() {
	if r.cancel != nil {
		r.cancel()
		<-r.done
	}
}
