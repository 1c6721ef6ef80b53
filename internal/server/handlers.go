package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/RyanBlaney/song-popularity/internal/app"
	"github.com/RyanBlaney/song-popularity/pkg/audio/decoder"
	"github.com/RyanBlaney/song-popularity/pkg/audio/extractors"
	"github.com/RyanBlaney/song-popularity/pkg/common"
	"github.com/RyanBlaney/song-popularity/pkg/logging"
	"github.com/RyanBlaney/song-popularity/pkg/model"
)

// multipartMemory is how much of an upload is held in memory before the
// multipart reader spills to disk
const multipartMemory = 8 << 20

// Route is an http.Handler that knows the pattern and methods under which
// it is registered
type Route interface {
	http.Handler

	Pattern() string
	Methods() []string
}

// HealthHandler answers liveness checks
type HealthHandler struct {
	pattern string
}

// NewHealthHandler serves the health body at pattern
func NewHealthHandler(pattern string) *HealthHandler {
	return &HealthHandler{pattern: pattern}
}

func (h *HealthHandler) Pattern() string   { return h.pattern }
func (h *HealthHandler) Methods() []string { return []string{http.MethodGet} }

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

// GenresHandler publishes the accepted genre vocabulary
type GenresHandler struct{}

func NewGenresHandler() *GenresHandler { return &GenresHandler{} }

func (*GenresHandler) Pattern() string   { return "/genres" }
func (*GenresHandler) Methods() []string { return []string{http.MethodGet} }

func (*GenresHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, model.Genres())
}

// PredictHandler scores a structured feature record
type PredictHandler struct {
	app       *app.Context
	maxUpload int64
	log       logging.Logger
}

// NewPredictHandler builds a PredictHandler
func NewPredictHandler(a *app.Context, logger logging.Logger) *PredictHandler {
	return &PredictHandler{
		app:       a,
		maxUpload: a.Config.Server.MaxUploadBytes,
		log:       logger,
	}
}

func (*PredictHandler) Pattern() string   { return "/predict" }
func (*PredictHandler) Methods() []string { return []string{http.MethodPost} }

func (h *PredictHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := requestLogger(r, h.log)

	raw, err := app.DecodeFeaturesJSON(http.MaxBytesReader(w, r.Body, h.maxUpload))
	if err != nil {
		writeError(w, logger, err)
		return
	}

	prediction, err := h.app.PredictFeatures(r.Context(), *raw)
	if err != nil {
		writeError(w, logger, err)
		return
	}

	writeJSON(w, http.StatusOK, prediction)
}

// upload is a validated multipart audio submission
type upload struct {
	audio    []byte
	filename string
	opts     extractors.ExtractOptions
}

// readUpload validates genre, explicit and extension before reading the
// file, so bad requests are rejected without touching the audio
func readUpload(w http.ResponseWriter, r *http.Request, a *app.Context, maxUpload int64) (*upload, error) {
	if r.ContentLength > maxUpload {
		return nil, errUploadTooLarge
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUpload)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			return nil, errUploadTooLarge
		}
		return nil, common.NewInvalidInputError("malformed multipart form", err)
	}

	genre := r.FormValue("track_genre")
	if err := a.ValidateGenre(genre); err != nil {
		return nil, err
	}

	explicit, err := parseExplicit(r.FormValue("explicit"))
	if err != nil {
		return nil, err
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, common.NewInvalidInputError("missing file field", err)
	}
	defer file.Close()

	if !decoder.IsAllowedExtension(header.Filename) {
		return nil, common.NewInvalidInputError(fmt.Sprintf(
			"unsupported file type %q. Allowed: %s",
			filepath.Ext(header.Filename), strings.Join(decoder.AllowedExtensions, ", ")), nil)
	}

	audio, err := io.ReadAll(file)
	if err != nil {
		return nil, common.NewInvalidInputError("failed to read upload", err)
	}

	return &upload{
		audio:    audio,
		filename: header.Filename,
		opts: extractors.ExtractOptions{
			Explicit:   explicit,
			TrackGenre: genre,
		},
	}, nil
}

func parseExplicit(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	if b, err := strconv.ParseBool(v); err == nil {
		if b {
			return 1, nil
		}
		return 0, nil
	}
	return 0, common.NewInvalidInputError(fmt.Sprintf("explicit must be 0 or 1, got %q", v), nil)
}

// PredictFileHandler extracts features from an uploaded file and scores them
type PredictFileHandler struct {
	app       *app.Context
	maxUpload int64
	log       logging.Logger
}

// NewPredictFileHandler builds a PredictFileHandler
func NewPredictFileHandler(a *app.Context, logger logging.Logger) *PredictFileHandler {
	return &PredictFileHandler{
		app:       a,
		maxUpload: a.Config.Server.MaxUploadBytes,
		log:       logger,
	}
}

func (*PredictFileHandler) Pattern() string   { return "/predict_file" }
func (*PredictFileHandler) Methods() []string { return []string{http.MethodPost} }

func (h *PredictFileHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := requestLogger(r, h.log)

	up, err := readUpload(w, r, h.app, h.maxUpload)
	if err != nil {
		writeError(w, logger, err)
		return
	}

	logger.Debug("Upload accepted", logging.Fields{
		"filename":    up.filename,
		"bytes":       len(up.audio),
		"track_genre": up.opts.TrackGenre,
	})

	prediction, err := h.app.PredictAudio(r.Context(), up.audio, up.opts)
	if err != nil {
		writeError(w, logger, err)
		return
	}

	writeJSON(w, http.StatusOK, prediction)
}

// ExtractHandler returns the raw feature record of an uploaded file
type ExtractHandler struct {
	app       *app.Context
	maxUpload int64
	log       logging.Logger
}

// NewExtractHandler builds an ExtractHandler
func NewExtractHandler(a *app.Context, logger logging.Logger) *ExtractHandler {
	return &ExtractHandler{
		app:       a,
		maxUpload: a.Config.Server.MaxUploadBytes,
		log:       logger,
	}
}

func (*ExtractHandler) Pattern() string   { return "/extract" }
func (*ExtractHandler) Methods() []string { return []string{http.MethodPost} }

func (h *ExtractHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := requestLogger(r, h.log)

	up, err := readUpload(w, r, h.app, h.maxUpload)
	if err != nil {
		writeError(w, logger, err)
		return
	}

	features, err := h.app.Extract(r.Context(), up.audio, up.opts)
	if err != nil {
		writeError(w, logger, err)
		return
	}

	writeJSON(w, http.StatusOK, features)
}
