// Package filestore содержит объектное хранилище файлов пользователей
// поверх S3-совместимого API. Принадлежность файла кодируется префиксом
// ключа: uploads/<user_uid>/ для исходников, generated/<user_uid>/
// для результатов генерации. Доступ к чужому префиксу невозможен,
// потому что ключ всегда строится из идентификатора владельца.
package filestore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/vibeboost/backend/internal/models"
)

var (
	// ErrUnsupportedType тип содержимого не входит в список разрешённых.
	ErrUnsupportedType = errors.New("unsupported content type")
	// ErrNotFound файл отсутствует в префиксе пользователя.
	ErrNotFound = errors.New("file not found")
)

// maxDownloadBytes предел размера скачиваемого результата генерации.
const maxDownloadBytes = 32 << 20

// Config параметры подключения к S3-совместимому хранилищу.
type Config struct {
	Endpoint     string
	Region       string
	AccessKey    string
	SecretKey    string
	Bucket       string
	UsePathStyle bool
	PresignTTL   time.Duration
}

// Store объектное хранилище файлов.
type Store struct {
	cfg        Config
	client     *s3.Client
	presign    *s3.PresignClient
	httpClient *http.Client
}

// New создаёт хранилище и проверяет конфигурацию.
func New(cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}
	if cfg.Region == "" {
		return nil, errors.New("s3 region is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, errors.New("s3 credentials are required")
	}
	if cfg.PresignTTL <= 0 {
		cfg.PresignTTL = 15 * time.Minute
	}

	options := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: cfg.UsePathStyle,
	}
	if cfg.Endpoint != "" {
		options.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	client := s3.New(options)

	return &Store{
		cfg:        cfg,
		client:     client,
		presign:    s3.NewPresignClient(client),
		httpClient: &http.Client{Timeout: time.Minute},
	}, nil
}

// Upload сохраняет исходный файл пользователя и возвращает его идентификатор.
func (s *Store) Upload(ctx context.Context, userUID string, data []byte, contentType string) (string, error) {
	const op = "filestore.Upload"

	if len(data) == 0 {
		return "", fmt.Errorf("%s: no data to upload", op)
	}
	ext, err := extensionFromContentType(contentType)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	fileID := uuid.NewString()
	key := uploadKey(userUID, fileID, ext)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return fileID, nil
}

// ResolveUpload находит исходный файл пользователя по идентификатору
// и возвращает подписанный URL для чтения. Файлы других пользователей
// не видны: поиск идёт только в префиксе владельца.
func (s *Store) ResolveUpload(ctx context.Context, userUID, fileID string) (string, error) {
	const op = "filestore.ResolveUpload"

	key, err := s.findUploadKey(ctx, userUID, fileID)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.cfg.PresignTTL))
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return req.URL, nil
}

// SaveGenerated скачивает результат генерации по URL и сохраняет его
// в префикс пользователя. Возвращает имя файла и подписанный URL.
func (s *Store) SaveGenerated(ctx context.Context, userUID, sourceURL string) (*models.GeneratedImage, error) {
	const op = "filestore.SaveGenerated"

	data, contentType, err := s.download(ctx, sourceURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	ext, err := extensionFromContentType(contentType)
	if err != nil {
		ext = ".png"
	}

	filename := uuid.NewString() + ext
	key := generatedKey(userUID, filename)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.cfg.PresignTTL))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &models.GeneratedImage{Filename: filename, URL: req.URL}, nil
}

// PresignDownload возвращает подписанный URL сгенерированного файла пользователя.
func (s *Store) PresignDownload(ctx context.Context, userUID, filename string) (string, error) {
	const op = "filestore.PresignDownload"

	key := generatedKey(userUID, path.Base(filename))
	if _, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	}); err != nil {
		return "", fmt.Errorf("%s: %w", op, ErrNotFound)
	}

	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.cfg.PresignTTL))
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return req.URL, nil
}

// findUploadKey ищет объект по префиксу владельца: расширение исходника
// неизвестно, поэтому нужен листинг по uploads/<uid>/<file_id>.
func (s *Store) findUploadKey(ctx context.Context, userUID, fileID string) (string, error) {
	prefix := path.Join("uploads", userUID, fileID)
	out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.cfg.Bucket),
		Prefix:  aws.String(prefix),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return "", err
	}
	if len(out.Contents) == 0 {
		return "", ErrNotFound
	}
	return aws.ToString(out.Contents[0].Key), nil
}

func (s *Store) download(ctx context.Context, sourceURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes))
	if err != nil {
		return nil, "", err
	}
	return data, resp.Header.Get("Content-Type"), nil
}

func uploadKey(userUID, fileID, ext string) string {
	return path.Join("uploads", userUID, fileID+ext)
}

func generatedKey(userUID, filename string) string {
	return path.Join("generated", userUID, filename)
}

func extensionFromContentType(contentType string) (string, error) {
	switch strings.ToLower(contentType) {
	case "image/png":
		return ".png", nil
	case "image/jpeg", "image/jpg":
		return ".jpg", nil
	case "image/webp":
		return ".webp", nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, contentType)
	}
}
