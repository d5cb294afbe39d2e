package faceapi

import (
	"context"
	"net/http"
	"time"
)

// TrainPoller follows a group training job.
type TrainPoller struct {
	client  *Client
	groupID string
}

// GroupID returns the group being trained.
func (p *TrainPoller) GroupID() string {
	return p.groupID
}

// Status fetches the current training status once.
func (p *TrainPoller) Status(ctx context.Context) (*TrainingStatus, error) {
	var status TrainingStatus
	if err := p.client.doJSON(ctx, http.MethodGet, groupPath(p.groupID, "training"), nil, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Wait polls at a fixed interval until training succeeds or fails.
func (p *TrainPoller) Wait(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Second
	}
	for {
		status, err := p.Status(ctx)
		if err != nil {
			return err
		}
		switch status.Status {
		case TrainingSucceeded:
			return nil
		case TrainingFailed:
			return &TrainingFailedError{GroupID: p.groupID, Message: status.Message}
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
