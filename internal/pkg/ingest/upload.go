package ingest

import (
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"path"
	"path/filepath"
	"strconv"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/airenas/meetnotes/internal/pkg/api"
	"github.com/airenas/meetnotes/internal/pkg/messages"
	"github.com/airenas/meetnotes/internal/pkg/persistence"
	"github.com/airenas/meetnotes/internal/pkg/utils"
)

const maxBatchFiles = 10

func upload(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("upload method")()
		userID, err := authenticate(c, data)
		if err != nil {
			return err
		}
		ctx := c.Request().Context()

		form, err := c.MultipartForm()
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "no multipart form data")
		}
		defer cleanFiles(form)

		file, fh, err := takeFile(form, api.PrmFile)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "no file")
		}
		defer file.Close()

		name, err := saveFile(ctx, data, userID, file, fh)
		if err != nil {
			return uploadErr(err)
		}
		return c.JSON(http.StatusOK, api.UploadResult{FilePath: name, OriginalFileName: fh.Filename})
	}
}

func batch(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("batch method")()
		userID, err := authenticate(c, data)
		if err != nil {
			return err
		}
		ctx := c.Request().Context()

		form, err := c.MultipartForm()
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "no multipart form data")
		}
		defer cleanFiles(form)
		if err := validateFormFiles(form); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		meetingAt, err := takeTime(form, api.PrmMeetingAt)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}

		files, fHeaders, err := takeFiles(form, api.PrmFile)
		for _, f := range files {
			fInt := f
			defer fInt.Close()
		}
		if err != nil {
			goapp.Log.Warn().Err(err).Send()
			return echo.NewHTTPError(http.StatusBadRequest, "wrong input form")
		}
		for _, h := range fHeaders {
			if err := validateFile(h); err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, err.Error())
			}
		}

		res := api.BatchResult{MeetingIDs: make([]string, 0, len(files))}
		for i, f := range files {
			name, err := saveFile(ctx, data, userID, f, fHeaders[i])
			if err != nil {
				return uploadErr(err)
			}
			m := &persistence.Meeting{ID: data.id(), UserID: userID, AudioFilePath: name,
				OriginalFileName: fHeaders[i].Filename, MeetingAt: meetingAt}
			if err := data.DB.InsertMeeting(ctx, m); err != nil {
				goapp.Log.Error().Err(err).Send()
				return echo.NewHTTPError(http.StatusInternalServerError, "Internal server error")
			}
			if err := data.Sender.SendMessage(ctx, messages.NewBatchMessage(m.ID, userID), messages.Batch); err != nil {
				goapp.Log.Error().Err(err).Send()
				return echo.NewHTTPError(http.StatusInternalServerError, "Internal server error")
			}
			goapp.Log.Info().Str("ID", m.ID).Str("user", userID).Msg("queued")
			res.MeetingIDs = append(res.MeetingIDs, m.ID)
		}
		return c.JSON(http.StatusOK, res)
	}
}

func uploadErr(err error) error {
	if utils.IsWrongInput(err) {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	goapp.Log.Error().Err(err).Send()
	return echo.NewHTTPError(http.StatusInternalServerError, "Internal server error")
}

// saveFile stores the audio at <user>/<uuid>/<sanitized name>
func saveFile(ctx context.Context, data *Data, userID string, f multipart.File, fh *multipart.FileHeader) (string, error) {
	if err := validateFile(fh); err != nil {
		return "", err
	}
	name, err := utils.MakeValidateFileName(path.Join(userID, data.id()), fh.Filename)
	if err != nil {
		return "", utils.WrapErrWrongInput("wrong file name: "+goapp.Sanitize(fh.Filename), err)
	}
	if err := data.Files.SaveFile(ctx, name, f, fh.Size); err != nil {
		return "", fmt.Errorf("can't save '%s': %w", name, err)
	}
	goapp.Log.Info().Str("file", name).Int64("size", fh.Size).Msg("saved")
	return name, nil
}

func validateFile(fh *multipart.FileHeader) error {
	if fh.Filename == "" {
		return utils.NewErrWrongInput("no file name in multipart")
	}
	ext := filepath.Ext(fh.Filename)
	if !utils.SupportAudioExt(ext) {
		return utils.NewErrWrongInput("wrong file extension: " + goapp.Sanitize(ext))
	}
	return nil
}

func takeTime(form *multipart.Form, name string) (*time.Time, error) {
	v := takeFirst(form.Value[name], "")
	if v == "" {
		return nil, nil
	}
	res, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, errors.Errorf("wrong '%s' value, want RFC3339", name)
	}
	return &res, nil
}

func cleanFiles(f *multipart.Form) {
	if f != nil {
		_ = f.RemoveAll()
	}
}

func takeFirst[K interface{}](a []K, d K) K {
	if len(a) > 0 {
		return a[0]
	}
	return d
}

func validateFormFiles(form *multipart.Form) error {
	check := make(map[string]bool)
	for k := range form.File {
		check[k] = true
	}
	if !check[api.PrmFile] {
		return errors.New("no form file parameter 'file'")
	}
	delete(check, api.PrmFile)
	for i := 2; i <= maxBatchFiles; i++ {
		pn := api.PrmFile + strconv.Itoa(i)
		if !check[pn] {
			break
		}
		delete(check, pn)
	}
	for k := range check {
		return errors.Errorf("unexpected form file parameter '%s'", goapp.Sanitize(k))
	}
	return nil
}

func takeFiles(form *multipart.Form, paramName string) ([]multipart.File, []*multipart.FileHeader, error) {
	file, handler, err := takeFile(form, paramName)
	if err != nil {
		return nil, nil, fmt.Errorf("no form param file: %w", err)
	}
	fRes := []multipart.File{file}
	fhRes := []*multipart.FileHeader{handler}
	for i := 2; i <= maxBatchFiles; i++ {
		file, handler, err := takeFile(form, paramName+strconv.Itoa(i))
		if err == http.ErrMissingFile {
			break
		}
		if err != nil {
			return fRes, nil, fmt.Errorf("error reading form param '%s': %w", paramName+strconv.Itoa(i), err)
		}
		fRes = append(fRes, file)
		fhRes = append(fhRes, handler)
	}
	return fRes, fhRes, nil
}

func takeFile(form *multipart.Form, paramName string) (multipart.File, *multipart.FileHeader, error) {
	handler := takeFirst(form.File[paramName], nil)
	if handler == nil {
		return nil, nil, http.ErrMissingFile
	}
	file, err := handler.Open()
	return file, handler, err
}
