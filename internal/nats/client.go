// Package nats publishes job status updates to the platform over NATS.
package nats

import (
	"encoding/json"
	"fmt"

	"github.com/dante-gpu/dante-backend/llama4-task/internal/config"
	"github.com/dante-gpu/dante-backend/llama4-task/internal/models"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Client holds the NATS connection used for status reporting.
type Client struct {
	nc     *nats.Conn
	logger *zap.Logger
	cfg    config.StatusSettings
}

// NewClient connects to NATS. A job is short-lived, so the connection is not retried.
func NewClient(cfg config.StatusSettings, clientName string, logger *zap.Logger) (*Client, error) {
	logger = logger.Named("nats")

	nc, err := nats.Connect(
		cfg.URL,
		nats.Name(clientName),
		nats.Timeout(cfg.ConnectTimeout),
		nats.MaxReconnects(5),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			logger.Error("NATS async error", zap.Error(err))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.URL, err)
	}

	logger.Info("Connected to NATS", zap.String("url", nc.ConnectedUrl()))
	return &Client{nc: nc, logger: logger, cfg: cfg}, nil
}

// Subject returns the subject status updates for jobID are published on.
func (c *Client) Subject(jobID string) string {
	return fmt.Sprintf("%s.%s", c.cfg.SubjectPrefix, jobID)
}

// PublishStatus sends a TaskStatusUpdate and waits for the server to acknowledge the flush.
func (c *Client) PublishStatus(statusUpdate *models.TaskStatusUpdate) error {
	if c.nc == nil || !c.nc.IsConnected() {
		return fmt.Errorf("NATS client not connected, cannot publish status for job %s", statusUpdate.JobID)
	}

	statusJSON, err := json.Marshal(statusUpdate)
	if err != nil {
		return fmt.Errorf("failed to marshal status update: %w", err)
	}

	subject := c.Subject(statusUpdate.JobID)
	c.logger.Debug("Publishing task status update",
		zap.String("subject", subject),
		zap.String("job_id", statusUpdate.JobID),
		zap.String("status", string(statusUpdate.Status)),
		zap.String("state", statusUpdate.State),
	)

	if err := c.nc.Publish(subject, statusJSON); err != nil {
		return fmt.Errorf("failed to publish status update to NATS: %w", err)
	}
	if err := c.nc.FlushTimeout(c.cfg.FlushTimeout); err != nil {
		return fmt.Errorf("failed to flush status update: %w", err)
	}
	return nil
}

// Stop flushes pending messages and closes the connection.
func (c *Client) Stop() {
	if c.nc == nil || c.nc.IsClosed() {
		return
	}
	if err := c.nc.FlushTimeout(c.cfg.FlushTimeout); err != nil {
		c.logger.Warn("Error flushing NATS connection", zap.Error(err))
	}
	c.nc.Close()
	c.logger.Debug("NATS connection closed")
}
