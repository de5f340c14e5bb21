package ingest

import (
	"context"
	"errors"
	"io/fs"
	"mime"
	"net/http"
	"path"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/multierr"

	"github.com/airenas/meetnotes/internal/pkg/api"
	"github.com/airenas/meetnotes/internal/pkg/filer"
	"github.com/airenas/meetnotes/internal/pkg/persistence"
	"github.com/airenas/meetnotes/internal/pkg/speakers"
	"github.com/airenas/meetnotes/internal/pkg/utils"
)

type speakersResult struct {
	MeetingID    string                   `json:"meetingId"`
	SpeakerNames persistence.SpeakerNames `json:"speakerNames"`
}

func updateSpeakers(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("speakers method")()
		userID, err := authenticate(c, data)
		if err != nil {
			return err
		}
		id := c.Param("id")
		var req api.SpeakersRequest
		if err := decodeJSON(c, &req); err != nil {
			return err
		}
		res, err := speakers.Update(c.Request().Context(), data.DB, userID, id, req.SpeakerContacts)
		if err != nil {
			return mapErr(err)
		}
		return c.JSON(http.StatusOK, speakersResult{MeetingID: id, SpeakerNames: res})
	}
}

func transcriptView(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("transcript method")()
		userID, err := authenticate(c, data)
		if err != nil {
			return err
		}
		res, err := speakers.Transcript(c.Request().Context(), data.DB, userID, c.Param("id"))
		if err != nil {
			return mapErr(err)
		}
		return c.JSON(http.StatusOK, res)
	}
}

func audio(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("audio method")()
		userID, err := authenticate(c, data)
		if err != nil {
			return err
		}
		m, err := data.DB.LoadMeeting(c.Request().Context(), c.Param("id"), userID)
		if err != nil {
			return mapErr(err)
		}
		if m.AudioFilePath == "" {
			return echo.NewHTTPError(http.StatusNotFound, "No audio")
		}
		return serveFile(c, data, m.AudioFilePath, m.OriginalFileName)
	}
}

func serveFile(c echo.Context, data *Data, name, fileName string) error {
	goapp.Log.Info().Str("file", name).Msg("loading")
	file, err := data.Loader.LoadFile(c.Request().Context(), name)
	if err != nil {
		goapp.Log.Error().Err(err).Str("storage", filer.Describe(err)).Send()
		if filer.IsNotFound(err) {
			return echo.NewHTTPError(http.StatusNotFound, "Audio not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "Can't get file")
	}
	defer file.Close()
	stGetter, ok := file.(interface{ Stat() (fs.FileInfo, error) })
	if !ok {
		goapp.Log.Error().Msg(`file does not implement "interface{ Stat() (fs.FileInfo, error)"`)
		return echo.NewHTTPError(http.StatusInternalServerError, "Can't get file stat")
	}
	stat, err := stGetter.Stat()
	if err != nil {
		goapp.Log.Error().Err(err).Str("storage", filer.Describe(err)).Send()
		if filer.IsNotFound(err) {
			return echo.NewHTTPError(http.StatusNotFound, "Audio not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "Can't get file stat")
	}
	if fileName == "" {
		fileName = path.Base(stat.Name())
	}
	w := c.Response()
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": fileName}))
	http.ServeContent(w, c.Request(), stat.Name(), stat.ModTime(), file)
	return nil
}

func deleteMeeting(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("delete method")()
		userID, err := authenticate(c, data)
		if err != nil {
			return err
		}
		ctx := c.Request().Context()
		m, err := data.DB.LoadMeeting(ctx, c.Param("id"), userID)
		if err != nil {
			return mapErr(err)
		}
		err = multierr.Append(data.DB.DeleteMeeting(ctx, m.ID, userID), deleteAudio(ctx, data, m.AudioFilePath))
		if err != nil {
			if errors.Is(err, utils.ErrNotFound) {
				return mapErr(err)
			}
			goapp.Log.Error().Err(err).Str("ID", m.ID).Msg("delete failed")
			return echo.NewHTTPError(http.StatusInternalServerError, "Internal server error")
		}
		goapp.Log.Info().Str("ID", m.ID).Str("user", userID).Msg("deleted")
		return c.NoContent(http.StatusNoContent)
	}
}

func deleteAudio(ctx context.Context, data *Data, name string) error {
	if name == "" {
		return nil
	}
	if err := data.Files.Delete(ctx, name); err != nil && !filer.IsNotFound(err) {
		return err
	}
	return nil
}

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	}}

func subscribeHandler(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		userID, err := authenticate(c, data)
		if err != nil {
			return err
		}
		ws, err := wsUpgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			goapp.Log.Error().Err(err).Send()
			return nil
		}
		defer ws.Close()

		return data.WSHandler.HandleConnection(c.Request().Context(), ws, userID)
	}
}
