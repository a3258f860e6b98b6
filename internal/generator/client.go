// Package generator содержит клиент внешнего сервиса генерации изображений.
// API асинхронный: создаётся задача, затем её статус опрашивается
// до завершения или исчерпания попыток.
package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var (
	// ErrTaskFailed генератор сообщил о сбое задачи.
	ErrTaskFailed = errors.New("generation task failed")
	// ErrTaskTimeout задача не завершилась за отведённое число опросов.
	ErrTaskTimeout = errors.New("generation task timed out")
)

const (
	createTaskPath = "/api/v1/jobs/createTask"
	taskStatusPath = "/api/v1/jobs/recordInfo"

	maxPollAttempts = 60
	pollInterval    = 2 * time.Second
)

// Client клиент API генерации изображений.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewClient создаёт новый клиент генератора.
func NewClient(baseURL, apiKey, model string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Client{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Generate запускает генерацию quantity изображений по исходному изображению
// и промпту, дожидается завершения и возвращает URL результатов.
func (c *Client) Generate(ctx context.Context, sourceURL, prompt string, quantity int) ([]string, error) {
	const op = "generator.Generate"

	payload := map[string]any{
		"model": c.model,
		"input": map[string]any{
			"prompt":        prompt,
			"image_input":   []string{sourceURL},
			"num_images":    quantity,
			"output_format": "png",
		},
	}

	taskID, err := c.createTask(ctx, payload)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	urls, err := c.awaitTask(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return urls, nil
}

func (c *Client) createTask(ctx context.Context, payload map[string]any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+createTaskPath, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("post create task: %w", err)
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncateBody(rawBody))
	}

	var createResp struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
		Data struct {
			TaskID string `json:"taskId"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rawBody, &createResp); err != nil {
		return "", fmt.Errorf("decode create task response: %w", err)
	}
	if createResp.Code != 200 {
		return "", fmt.Errorf("create task failed: code=%d msg=%s", createResp.Code, createResp.Msg)
	}
	if createResp.Data.TaskID == "" {
		return "", errors.New("empty taskId in response")
	}
	return createResp.Data.TaskID, nil
}

func (c *Client) awaitTask(ctx context.Context, taskID string) ([]string, error) {
	params := url.Values{}
	params.Set("taskId", taskID)
	statusURL := c.baseURL + taskStatusPath + "?" + params.Encode()

	for attempt := 0; attempt < maxPollAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(pollInterval):
			}
		}

		state, resultJSON, failMsg, err := c.taskStatus(ctx, statusURL)
		if err != nil {
			return nil, err
		}

		switch state {
		case "success":
			return parseResultURLs(resultJSON)
		case "fail":
			if failMsg == "" {
				failMsg = "unknown error"
			}
			return nil, fmt.Errorf("%w: %s", ErrTaskFailed, failMsg)
		case "waiting", "queued", "queueing", "generating", "processing":
			continue
		default:
			return nil, fmt.Errorf("unknown task state: %s", state)
		}
	}
	return nil, ErrTaskTimeout
}

func (c *Client) taskStatus(ctx context.Context, statusURL string) (state, resultJSON, failMsg string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, statusURL, nil)
	if err != nil {
		return "", "", "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", "", "", fmt.Errorf("get task status: %w", err)
	}
	rawBody, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return "", "", "", fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode >= 300 {
		return "", "", "", fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncateBody(rawBody))
	}

	var statusResp struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
		Data struct {
			State      string `json:"state"`
			ResultJSON string `json:"resultJson"`
			FailMsg    string `json:"failMsg"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rawBody, &statusResp); err != nil {
		return "", "", "", fmt.Errorf("decode status response: %w", err)
	}
	if statusResp.Code != 200 {
		return "", "", "", fmt.Errorf("get task status failed: code=%d msg=%s", statusResp.Code, statusResp.Msg)
	}
	return statusResp.Data.State, statusResp.Data.ResultJSON, statusResp.Data.FailMsg, nil
}

func parseResultURLs(resultJSON string) ([]string, error) {
	if resultJSON == "" {
		return nil, errors.New("empty result in success response")
	}
	var result struct {
		ResultURLs []string `json:"resultUrls"`
	}
	if err := json.Unmarshal([]byte(resultJSON), &result); err != nil {
		return nil, fmt.Errorf("parse result: %w", err)
	}
	if len(result.ResultURLs) == 0 {
		return nil, errors.New("no result urls")
	}
	return result.ResultURLs, nil
}

func truncateBody(body []byte) string {
	const limit = 512
	s := strings.TrimSpace(string(body))
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
