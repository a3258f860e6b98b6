// Package download реализует HTTP-обработчик получения подписанной
// ссылки на сгенерированный файл пользователя.
package download

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/vibeboost/backend/internal/filestore"
	"github.com/vibeboost/backend/internal/http/middlewarectx"
	"github.com/vibeboost/backend/internal/http/response"
	"github.com/vibeboost/backend/internal/lib/sl"
)

// Handler управляет HTTP-запросами на скачивание файлов.
type Handler struct {
	log   *slog.Logger
	store FileStore
}

// FileStore описывает интерфейс хранилища для выдачи подписанных ссылок.
type FileStore interface {
	PresignDownload(ctx context.Context, userUID, filename string) (string, error)
}

// New создаёт новый Handler с переданным логгером и хранилищем файлов.
func New(log *slog.Logger, store FileStore) *Handler {
	return &Handler{
		log:   log,
		store: store,
	}
}

// ServeHTTP godoc
// @Summary Скачивание сгенерированного файла
// @Description Возвращает временную подписанную ссылку на сгенерированный файл пользователя.
// @Tags Files
// @Produce  json
// @Param filename path string true "Имя сгенерированного файла"
// @Success 200 {object} response.Response{data=map[string]string} "Подписанная ссылка"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 404 {object} response.ErrorResponse "Файл не найден"
// @Failure 500 {object} response.ErrorResponse "Ошибка хранилища"
// @Security BearerAuth
// @Router /files/{filename} [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.files.download"

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

	filename := chi.URLParam(r, "filename")
	if filename == "" {
		log.Error("filename not found in url")
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("filename is required"))
		return
	}

	url, err := h.store.PresignDownload(r.Context(), userUID, filename)
	if err != nil {
		if errors.Is(err, filestore.ErrNotFound) {
			log.Warn("file not found", slog.String("filename", filename))
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error("file not found"))
			return
		}
		log.Error("failed to presign download url", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not get download url"))
		return
	}

	log.Info("download url presigned", slog.String("filename", filename))
	render.JSON(w, r, response.StatusOKWithData(map[string]string{
		"url": url,
	}))
}
