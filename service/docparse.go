package service

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/AnTengye/contractledger/model"
)

// DocParseConfig configures the remote document parsing API.
type DocParseConfig struct {
	APIURL       string
	APIToken     string
	ModelVersion string
}

// DocParseClient submits documents to the remote parsing API. Documents are
// staged in object storage and handed to the API as presigned URLs.
type DocParseClient struct {
	config     DocParseConfig
	staging    ObjectStore
	httpClient *http.Client
	logger     *slog.Logger
}

// TaskRequest represents the request to create an extraction task
type TaskRequest struct {
	URL          string `json:"url"`
	ModelVersion string `json:"model_version"`
	DataID       string `json:"data_id,omitempty"`
}

// TaskResponse represents the response from task creation
type TaskResponse struct {
	Code    int    `json:"code"`
	Message string `json:"msg"`
	Data    struct {
		TaskID string `json:"task_id"`
	} `json:"data"`
}

// TaskStatusResponse represents the task status query response
type TaskStatusResponse struct {
	Code    int    `json:"code"`
	Message string `json:"msg"`
	TraceID string `json:"trace_id"`
	Data    struct {
		TaskID          string `json:"task_id"`
		DataID          string `json:"data_id"`
		State           string `json:"state"` // pending, running, converting, done, failed, canceled, expired
		FullZipURL      string `json:"full_zip_url,omitempty"`
		ErrorMsg        string `json:"err_msg,omitempty"`
		ExtractProgress struct {
			ExtractedPages int `json:"extracted_pages"`
			TotalPages     int `json:"total_pages"`
		} `json:"extract_progress,omitempty"`
	} `json:"data"`
}

// resultFiles are the archive entries that carry structured contract fields,
// in order of preference.
var resultFiles = []string{"contract.json", "fields.json", "result.json"}

func NewDocParseClient(cfg DocParseConfig, staging ObjectStore, logger *slog.Logger) *DocParseClient {
	return &DocParseClient{
		config:  cfg,
		staging: staging,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: logger,
	}
}

// Submit stages the document and creates a remote task for it. When task
// creation fails the staged object is removed before returning.
func (c *DocParseClient) Submit(ctx context.Context, document []byte, contentType string) (*model.JobHandle, error) {
	dataID := uuid.NewString()
	stagingPath := path.Join("staging", dataID+".pdf")

	if err := c.staging.Put(ctx, stagingPath, document, contentType); err != nil {
		return nil, fmt.Errorf("failed to stage document: %w", err)
	}

	docURL, err := c.staging.PresignedURL(ctx, stagingPath)
	if err == nil {
		var taskID string
		taskID, err = c.createTask(ctx, docURL, dataID)
		if err == nil {
			return &model.JobHandle{JobID: taskID, StagingPath: stagingPath}, nil
		}
	}

	if delErr := c.staging.Delete(context.WithoutCancel(ctx), stagingPath); delErr != nil {
		c.logger.Warn("failed to remove staged document", "path", stagingPath, "error", delErr)
	}
	return nil, err
}

func (c *DocParseClient) createTask(ctx context.Context, docURL, dataID string) (string, error) {
	jsonData, err := json.Marshal(TaskRequest{
		URL:          docURL,
		ModelVersion: c.config.ModelVersion,
		DataID:       dataID,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.APIURL+"/extract/task", bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var result TaskResponse
	if err := c.do(req, &result); err != nil {
		return "", err
	}
	if result.Code != 0 {
		return "", fmt.Errorf("extraction API error: %s", result.Message)
	}
	if result.Data.TaskID == "" {
		return "", errors.New("extraction API returned no task id")
	}
	return result.Data.TaskID, nil
}

// Poll queries the task once. A completed task has its result archive downloaded.
func (c *DocParseClient) Poll(ctx context.Context, jobID string) (*model.PollResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/extract/task/%s", c.config.APIURL, jobID), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	var status TaskStatusResponse
	if err := c.do(req, &status); err != nil {
		return nil, err
	}
	if status.Code != 0 {
		return nil, fmt.Errorf("extraction API error: %s", status.Message)
	}

	result := &model.PollResult{
		Message:        status.Data.ErrorMsg,
		ExtractedPages: status.Data.ExtractProgress.ExtractedPages,
		TotalPages:     status.Data.ExtractProgress.TotalPages,
	}

	switch status.Data.State {
	case "pending", "running", "converting":
		result.Status = model.JobProcessing
	case "done":
		if status.Data.FullZipURL == "" {
			return nil, errors.New("completed task has no result archive")
		}
		payload, err := c.fetchResult(ctx, status.Data.FullZipURL)
		if err != nil {
			return nil, err
		}
		result.Status = model.JobCompleted
		result.Payload = payload
	case "failed":
		result.Status = model.JobFailed
	case "canceled", "cancelled":
		result.Status = model.JobCancelled
	case "expired":
		result.Status = model.JobExpired
	default:
		c.logger.Warn("unknown extraction state", "job_id", jobID, "state", status.Data.State)
		result.Status = model.JobProcessing
	}
	return result, nil
}

// Release deletes the remote task and the staged document.
func (c *DocParseClient) Release(ctx context.Context, handle *model.JobHandle) error {
	var errs []error

	if handle.JobID != "" {
		req, err := http.NewRequestWithContext(ctx, http.MethodDelete, fmt.Sprintf("%s/extract/task/%s", c.config.APIURL, handle.JobID), nil)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to create request: %w", err))
		} else if err := c.do(req, nil); err != nil {
			errs = append(errs, fmt.Errorf("failed to delete task: %w", err))
		}
	}
	if handle.StagingPath != "" {
		if err := c.staging.Delete(ctx, handle.StagingPath); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *DocParseClient) do(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+c.config.APIToken)
	req.Header.Set("Accept", "*/*")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("extraction API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// fetchResult downloads the result archive and returns the structured JSON
// document inside it.
func (c *DocParseClient) fetchResult(ctx context.Context, zipURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, zipURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download result: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("result download returned %d", resp.StatusCode)
	}
	zipData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read result: %w", err)
	}
	c.logger.Debug("result archive downloaded", "size", len(zipData))

	return extractJSON(zipData)
}

func extractJSON(zipData []byte) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(zipData), int64(len(zipData)))
	if err != nil {
		return nil, fmt.Errorf("failed to open result archive: %w", err)
	}

	for _, name := range resultFiles {
		for _, f := range zr.File {
			if path.Base(f.Name) == name {
				if data, ok := readJSONEntry(f); ok {
					return data, nil
				}
			}
		}
	}
	for _, f := range zr.File {
		if strings.HasSuffix(f.Name, ".json") {
			if data, ok := readJSONEntry(f); ok {
				return data, nil
			}
		}
	}
	return nil, errors.New("no valid JSON file found in result archive")
}

func readJSONEntry(f *zip.File) ([]byte, bool) {
	rc, err := f.Open()
	if err != nil {
		return nil, false
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil || !json.Valid(data) {
		return nil, false
	}
	return data, true
}
