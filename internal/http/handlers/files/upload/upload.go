// Package upload реализует HTTP-обработчик загрузки исходного изображения
// в объектное хранилище.
package upload

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/vibeboost/backend/internal/filestore"
	"github.com/vibeboost/backend/internal/http/middlewarectx"
	"github.com/vibeboost/backend/internal/http/response"
	"github.com/vibeboost/backend/internal/lib/sl"
)

// maxUploadBytes ограничивает размер загружаемого изображения.
const maxUploadBytes = 32 << 20

// Handler управляет HTTP-запросами на загрузку файлов.
type Handler struct {
	log   *slog.Logger
	store FileStore
}

// FileStore описывает интерфейс объектного хранилища для загрузки.
type FileStore interface {
	Upload(ctx context.Context, userUID string, data []byte, contentType string) (string, error)
}

// New создаёт новый Handler с переданным логгером и хранилищем файлов.
func New(log *slog.Logger, store FileStore) *Handler {
	return &Handler{
		log:   log,
		store: store,
	}
}

// ServeHTTP godoc
// @Summary Загрузка изображения
// @Description Принимает изображение в multipart-форме (поле file) и сохраняет его в хранилище пользователя.
// @Tags Files
// @Accept  mpfd
// @Produce  json
// @Param file formData file true "Файл изображения (png, jpeg, webp)"
// @Success 200 {object} response.Response{data=map[string]string} "Идентификатор загруженного файла"
// @Failure 400 {object} response.ErrorResponse "Некорректная multipart-форма"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 415 {object} response.ErrorResponse "Неподдерживаемый тип файла"
// @Failure 500 {object} response.ErrorResponse "Ошибка сохранения файла"
// @Security BearerAuth
// @Router /files/upload [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.files.upload"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	userUID, ok := r.Context().Value(middlewarectx.User).(string)
	if !ok || userUID == "" {
		log.Error("user uid not found in context")
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		log.Error("failed to read multipart form", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid multipart form, expected field 'file'"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		log.Error("failed to read uploaded file", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("could not read uploaded file"))
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	fileID, err := h.store.Upload(r.Context(), userUID, data, contentType)
	if err != nil {
		if errors.Is(err, filestore.ErrUnsupportedType) {
			log.Warn("unsupported content type", slog.String("content_type", contentType))
			w.WriteHeader(http.StatusUnsupportedMediaType)
			render.JSON(w, r, response.Error("unsupported file type, expected png, jpeg or webp"))
			return
		}
		log.Error("failed to store uploaded file", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not store file"))
		return
	}

	log.Info("file uploaded",
		slog.String("file_id", fileID),
		slog.Int("size", len(data)))
	render.JSON(w, r, response.StatusOKWithData(map[string]string{
		"file_id": fileID,
	}))
}
