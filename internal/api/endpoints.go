package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"

	"github.com/zulandar/modelyard/internal/models"
	"go.uber.org/zap"
)

// TrainingResult is the accepted outcome of a training run.
type TrainingResult struct {
	Message string
	Logs    string
}

// Login exchanges an access token for a backend-side session.
func (c *Client) Login(ctx context.Context, token string) (string, error) {
	env, err := c.postJSON(ctx, "login", "/huggingface/login", c.timeouts.Default, map[string]string{"hf_token": token})
	if err != nil {
		return "", err
	}
	return env.Message, nil
}

// ListDataset returns every labeled example of kind.
func (c *Client) ListDataset(ctx context.Context, kind models.TaskKind) ([]models.DatasetEntry, error) {
	env, err := c.get(ctx, "list dataset", "/data-entries?file_type="+url.QueryEscape(string(kind)))
	if err != nil {
		return nil, err
	}
	entries := []models.DatasetEntry{}
	if err := c.decodeData("list dataset", env, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// AddDataset creates a new labeled example.
func (c *Client) AddDataset(ctx context.Context, kind models.TaskKind, e models.NewDatasetEntry) error {
	_, err := c.postJSON(ctx, "add dataset entry", "/add-data/"+url.PathEscape(string(kind)), c.timeouts.Default, e)
	return err
}

// UpdateDataset replaces an existing labeled example.
func (c *Client) UpdateDataset(ctx context.Context, kind models.TaskKind, e models.UpdateDatasetEntry) error {
	_, err := c.postJSON(ctx, "update dataset entry", "/update-data/"+url.PathEscape(string(kind)), c.timeouts.Default, e)
	return err
}

// DeleteDataset removes a labeled example.
func (c *Client) DeleteDataset(ctx context.Context, kind models.TaskKind, id int64) error {
	_, err := c.postJSON(ctx, "delete dataset entry", "/delete-data/"+url.PathEscape(string(kind)), c.timeouts.Default, models.DeleteDatasetEntry{ID: id})
	return err
}

// UploadDataset sends a dataset file as a multipart form.
func (c *Client) UploadDataset(ctx context.Context, kind models.TaskKind, filename string, r io.Reader) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filepath.Base(filename))
	if err != nil {
		return "", fmt.Errorf("api: upload: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return "", fmt.Errorf("api: upload: read %s: %w", filename, err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("api: upload: %w", err)
	}

	env, err := c.do(ctx, request{
		op:          "upload dataset",
		method:      http.MethodPost,
		path:        kind.UploadPath(),
		body:        &buf,
		contentType: mw.FormDataContentType(),
		timeout:     c.timeouts.Default,
	})
	if err != nil {
		return "", err
	}
	return env.Message, nil
}

// StartTraining runs one training job. The call blocks until the backend
// finishes and returns its logs inline.
func (c *Client) StartTraining(ctx context.Context, cfg models.TrainingConfiguration) (TrainingResult, error) {
	env, err := c.postJSON(ctx, "start training", "/start_training_test", c.timeouts.Training, cfg)
	if err != nil {
		return TrainingResult{}, err
	}
	return TrainingResult{Message: env.Message, Logs: env.Logs}, nil
}

// ListModels returns every registered artifact.
func (c *Client) ListModels(ctx context.Context) ([]models.ModelArtifact, error) {
	env, err := c.get(ctx, "list models", "/api/models")
	if err != nil {
		return nil, err
	}
	artifacts := []models.ModelArtifact{}
	if err := c.decodeData("list models", env, &artifacts); err != nil {
		return nil, err
	}
	for _, a := range artifacts {
		if a.TrainingDate.Unparsed != "" {
			c.log.Warn("unrecognized training date", zap.String("job_id", a.JobID), zap.String("training_date", a.TrainingDate.Unparsed))
		}
	}
	return artifacts, nil
}

// ActivateModel deploys jobID, retiring the previously deployed artifact.
func (c *Client) ActivateModel(ctx context.Context, jobID string) (string, error) {
	env, err := c.postJSON(ctx, "activate model", "/api/models/activate", c.timeouts.Default, models.ModelAction{JobID: jobID})
	if err != nil {
		return "", err
	}
	return env.Message, nil
}

// DeleteModel removes jobID and its backing files.
func (c *Client) DeleteModel(ctx context.Context, jobID string) (string, error) {
	env, err := c.postJSON(ctx, "delete model", "/api/models/delete", c.timeouts.Default, models.ModelAction{JobID: jobID})
	if err != nil {
		return "", err
	}
	return env.Message, nil
}

// RunInference asks the backend for one prediction. The returned pointer is
// nil when the response carried no prediction.
func (c *Client) RunInference(ctx context.Context, req models.InferenceRequest) (*string, error) {
	env, err := c.postJSON(ctx, "run inference", "/run_inference", c.timeouts.Inference, req)
	if err != nil {
		return nil, err
	}
	return env.PredictedSQL, nil
}
