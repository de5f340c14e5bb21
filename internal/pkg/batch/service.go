package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amessages "github.com/airenas/async-api/pkg/messages"
	"github.com/airenas/go-app/pkg/goapp"
	"github.com/vgarvardt/gue/v5"

	"github.com/airenas/meetnotes/internal/pkg/api"
	"github.com/airenas/meetnotes/internal/pkg/guard"
	"github.com/airenas/meetnotes/internal/pkg/messages"
	"github.com/airenas/meetnotes/internal/pkg/pipeline"
	"github.com/airenas/meetnotes/internal/pkg/speakers"
	"github.com/airenas/meetnotes/internal/pkg/utils"
	"github.com/airenas/meetnotes/internal/pkg/utils/handler"
)

// MsgSender provides send msg functionality
type MsgSender interface {
	SendMessage(context.Context, amessages.Message, string) error
}

// ServiceData keeps data required for service work
type ServiceData struct {
	GueClient   *gue.Client
	WorkerCount int
	MsgSender   MsgSender
	Pipeline    *pipeline.Data
	Testing     bool
}

// StartWorkerService starts the batch queue listener,
// returns channel for tracking if all jobs are finished
func StartWorkerService(ctx context.Context, data *ServiceData) (chan struct{}, error) {
	if err := validate(data); err != nil {
		return nil, err
	}
	goapp.Log.Info().Int("workers", data.WorkerCount).Msg("Starting listen for messages")
	if data.Testing {
		goapp.Log.Warn().Msg("SERVICE IN TEST MODE")
	}

	wm := gue.WorkMap{
		messages.Batch: handler.Create(data, handleBatch, handler.DefaultOpts[messages.BatchMessage]().
			WithTimeout(time.Hour).WithBackoff(handler.DefaultBackoffOrTest(data.Testing)).
			WithGiveUp(func(ctx context.Context, m *messages.BatchMessage, err error) { giveUp(ctx, m, err, data) })),
	}

	pool, err := gue.NewWorkerPool(
		data.GueClient, wm, data.WorkerCount,
		gue.WithPoolQueue(messages.Batch),
		gue.WithPoolLogger(utils.NewGueLoggerAdapter()),
		gue.WithPoolPollInterval(500*time.Millisecond),
		gue.WithPoolPollStrategy(gue.RunAtPollStrategy),
		gue.WithPoolID("batch-worker"),
	)
	if err != nil {
		return nil, fmt.Errorf("could not build gue workers pool: %w", err)
	}
	res := make(chan struct{}, 1)
	go func() {
		goapp.Log.Info().Msg("Starting workers")
		if err := pool.Run(ctx); err != nil {
			goapp.Log.Error().Err(err).Msg("pool error")
		}
		goapp.Log.Info().Msg("Pool workers finished")
		res <- struct{}{}
	}()
	return res, nil
}

// handleBatch runs the missing pipeline stages of a stored meeting.
// A retried job skips the stages already persisted
func handleBatch(ctx context.Context, msg *messages.BatchMessage, data *ServiceData) error {
	goapp.Log.Info().Str("ID", msg.ID).Msg("handling batch")
	em := &queueEmitter{sender: data.MsgSender, meetingID: msg.ID, userID: msg.UserID}

	m, err := data.Pipeline.DB.LoadMeeting(ctx, msg.ID, msg.UserID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			goapp.Log.Warn().Str("ID", msg.ID).Msg("meeting gone, skip")
			return nil
		}
		return fmt.Errorf("can't load meeting: %w", err)
	}

	var segments []api.Segment
	if !hasJSON(m.Transcription) {
		job, err := pipeline.PrepareStored(ctx, data.Pipeline, m)
		if err != nil {
			if errors.Is(err, guard.ErrLocked) {
				goapp.Log.Info().Str("ID", m.ID).Msg("meeting busy, retry later")
				return err
			}
			if utils.IsWrongInput(err) || errors.Is(err, utils.ErrNotFound) {
				goapp.Log.Error().Err(err).Str("ID", m.ID).Msg("can't transcribe, skip")
				return em.Emit(ctx, api.Event{Error: "Transcription failed", Details: err.Error(), MeetingID: m.ID})
			}
			return fmt.Errorf("can't prepare transcription: %w", err)
		}
		out, err := pipeline.RunTranscription(ctx, data.Pipeline, job, em)
		job.Close()
		if err != nil {
			return fmt.Errorf("transcription: %w", err)
		}
		if !out.Saved {
			return errors.New("transcription not saved")
		}
		segments = out.Segments
	} else {
		goapp.Log.Info().Str("ID", m.ID).Msg("transcription exists")
		if segments, err = speakers.Segments(m); err != nil {
			return err
		}
	}

	if m.Summary.Valid {
		goapp.Log.Info().Str("ID", m.ID).Msg("summary exists")
		return nil
	}
	out, err := pipeline.RunSummary(ctx, data.Pipeline, m.UserID, &api.SummarizeRequest{Transcript: segments, MeetingID: m.ID}, em)
	if err != nil {
		return fmt.Errorf("summary: %w", err)
	}
	if out != nil && out.Result != nil && !out.Result.Empty() && !out.Saved {
		return errors.New("summary not saved")
	}
	goapp.Log.Info().Str("ID", m.ID).Msg("batch done")
	return nil
}

func giveUp(ctx context.Context, m *messages.BatchMessage, err error, data *ServiceData) {
	em := &queueEmitter{sender: data.MsgSender, meetingID: m.ID, userID: m.UserID}
	_ = em.Emit(ctx, api.Event{Error: "Batch processing failed", Details: err.Error(), MeetingID: m.ID})
}

func hasJSON(b []byte) bool {
	return len(b) > 0 && string(b) != "null"
}

// queueEmitter forwards pipeline events to the event queue for live subscribers
type queueEmitter struct {
	sender    MsgSender
	meetingID string
	userID    string
}

func (e *queueEmitter) Emit(ctx context.Context, ev api.Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("can't marshal event: %w", err)
	}
	msg := &messages.EventMessage{QueueMessage: amessages.QueueMessage{ID: e.meetingID}, UserID: e.userID, Event: b}
	if err := e.sender.SendMessage(ctx, msg, messages.Event); err != nil {
		// subscribers are optional, the pipeline keeps going
		goapp.Log.Warn().Err(err).Str("ID", e.meetingID).Msg("can't send event")
	}
	return nil
}

func validate(data *ServiceData) error {
	if data.GueClient == nil {
		return fmt.Errorf("no gue client")
	}
	if data.WorkerCount < 1 {
		return fmt.Errorf("no worker count provided")
	}
	if data.MsgSender == nil {
		return fmt.Errorf("no msg sender")
	}
	if data.Pipeline == nil {
		return fmt.Errorf("no pipeline")
	}
	if err := data.Pipeline.Validate(); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	return nil
}
