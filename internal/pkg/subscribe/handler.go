package subscribe

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/meetnotes/internal/pkg/messages"
	"github.com/airenas/meetnotes/internal/pkg/utils"
	"github.com/airenas/meetnotes/internal/pkg/utils/handler"
	"github.com/vgarvardt/gue/v5"
)

// EventSender delivers an event to live subscribers
type EventSender interface {
	Send(meetingID, userID string, event interface{}) int
}

// HandlerData keeps data required for the event handler
type HandlerData struct {
	GueClient   *gue.Client
	WorkerCount int
	Sender      EventSender
}

// StartEventHandler starts the batch event queue listener,
// returns channel for tracking when the pool exits
func StartEventHandler(ctx context.Context, data *HandlerData) (chan struct{}, error) {
	if err := validateHandler(data); err != nil {
		return nil, err
	}
	goapp.Log.Info().Msg("Starting listen for events")

	wm := gue.WorkMap{
		messages.Event: handler.Create(data, handleEvent, handler.DefaultOpts[messages.EventMessage]().
			WithTimeout(10*time.Second).WithFailure(skipFailure)),
	}

	pool, err := gue.NewWorkerPool(
		data.GueClient, wm, data.WorkerCount,
		gue.WithPoolQueue(messages.Event),
		gue.WithPoolLogger(utils.NewGueLoggerAdapter()),
		gue.WithPoolPollInterval(200*time.Millisecond),
		gue.WithPoolPollStrategy(gue.RunAtPollStrategy),
		gue.WithPoolID("event-worker"),
	)
	if err != nil {
		return nil, fmt.Errorf("could not build gue workers pool: %w", err)
	}
	res := make(chan struct{}, 1)
	go func() {
		goapp.Log.Info().Msg("Starting event workers")
		if err := pool.Run(ctx); err != nil {
			goapp.Log.Error().Err(err).Msg("pool error")
		}
		goapp.Log.Info().Msg("Event workers finished")
		res <- struct{}{}
	}()
	return res, nil
}

func handleEvent(ctx context.Context, m *messages.EventMessage, data *HandlerData) error {
	if len(m.Event) == 0 {
		return fmt.Errorf("no event for ID %s", m.ID)
	}
	n := data.Sender.Send(m.ID, m.UserID, json.RawMessage(m.Event))
	goapp.Log.Debug().Str("ID", m.ID).Int("receivers", n).Msg("event delivered")
	return nil
}

// events are live only, a late retry is worthless
func skipFailure(_ context.Context, _ *messages.EventMessage, _ error, _ *gue.Job) (bool, time.Duration) {
	return false, 0
}

func validateHandler(data *HandlerData) error {
	if data.GueClient == nil {
		return fmt.Errorf("no gue client")
	}
	if data.WorkerCount < 1 {
		return fmt.Errorf("no worker count provided")
	}
	if data.Sender == nil {
		return fmt.Errorf("no sender")
	}
	return nil
}
