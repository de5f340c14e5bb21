package ingest

import (
	"errors"
	"net/http"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/labstack/echo/v4"

	"github.com/airenas/meetnotes/internal/pkg/api"
	"github.com/airenas/meetnotes/internal/pkg/pipeline"
	"github.com/airenas/meetnotes/internal/pkg/sse"
)

func transcribe(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("transcribe method")()
		userID, err := authenticate(c, data)
		if err != nil {
			return err
		}
		var req api.TranscribeRequest
		if err := decodeJSON(c, &req); err != nil {
			return err
		}
		ctx := c.Request().Context()
		job, err := pipeline.PrepareTranscription(ctx, data.Pipeline, userID, &req)
		if err != nil {
			return mapErr(err)
		}
		defer job.Close()

		w, err := sse.Start(c.Response())
		if err != nil {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusInternalServerError, "Streaming unsupported")
		}
		_, err = pipeline.RunTranscription(ctx, data.Pipeline, job, w)
		return endStream(job.Meeting.ID, w, err)
	}
}

func summarize(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("summarize method")()
		userID, err := authenticate(c, data)
		if err != nil {
			return err
		}
		var req api.SummarizeRequest
		if err := decodeJSON(c, &req); err != nil {
			return err
		}
		w, err := sse.Start(c.Response())
		if err != nil {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusInternalServerError, "Streaming unsupported")
		}
		_, err = pipeline.RunSummary(c.Request().Context(), data.Pipeline, userID, &req, w)
		return endStream(req.MeetingID, w, err)
	}
}

// endStream closes the event stream. A stream failure aborts the response,
// so the client sees a broken stream instead of a normal end
func endStream(id string, w *sse.Writer, err error) error {
	if err == nil {
		goapp.Log.Info().Str("ID", id).Int("events", w.Count()).Msg("stream completed")
		return nil
	}
	var se *pipeline.StreamError
	if errors.As(err, &se) {
		goapp.Log.Error().Err(err).Str("ID", id).Int("events", w.Count()).Msg("stream failed")
		panic(http.ErrAbortHandler)
	}
	goapp.Log.Warn().Err(err).Str("ID", id).Int("events", w.Count()).Msg("stream closed")
	return nil
}
