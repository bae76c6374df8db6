package config

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
)

// RebuildEvent is published when a rebuild run reaches a terminal state.
type RebuildEvent struct {
	RunId         string         `json:"run_id"`
	Status        string         `json:"status"`
	TermFilter    string         `json:"term_filter"`
	Processed     int            `json:"processed"`
	Successful    int            `json:"successful"`
	Failed        int            `json:"failed"`
	Skipped       int            `json:"skipped"`
	ErrorCounts   map[string]int `json:"error_counts"`
	ArtifactURIs  []string       `json:"artifact_uris"`
	FinishedAt    time.Time      `json:"finished_at"`
	CorrelationId string         `json:"correlation_id"`
}

var (
	pubsubClient   *pubsub.Client
	pubsubClientMu sync.Mutex
)

func getPubSubProjectID() string {
	if v := os.Getenv("PUBSUB_PROJECT_ID"); v != "" {
		return v
	}
	if v := os.Getenv("GOOGLE_CLOUD_PROJECT"); v != "" {
		return v
	}
	if v := os.Getenv("GCP_PROJECT"); v != "" {
		return v
	}
	return ""
}

// RebuildTopic returns the topic for run events; empty disables publishing.
func RebuildTopic() string {
	return os.Getenv("REBUILD_PUBSUB_TOPIC")
}

func getPubSubClient(ctx context.Context) (*pubsub.Client, error) {
	pubsubClientMu.Lock()
	defer pubsubClientMu.Unlock()
	if pubsubClient != nil {
		return pubsubClient, nil
	}

	projectID := getPubSubProjectID()
	if projectID == "" {
		return nil, errors.New("PUBSUB_PROJECT_ID/GOOGLE_CLOUD_PROJECT not set")
	}

	var (
		c   *pubsub.Client
		err error
	)
	if credJSON := os.Getenv("PUBSUB_CREDENTIALS_JSON"); credJSON != "" {
		c, err = pubsub.NewClient(ctx, projectID, option.WithCredentialsJSON([]byte(credJSON)))
	} else {
		c, err = pubsub.NewClient(ctx, projectID)
	}
	if err != nil {
		return nil, err
	}
	log.Printf("pubsub client ready (project_id=%s)", projectID)
	pubsubClient = c
	return c, nil
}

// PublishRebuildEvent publishes evt to REBUILD_PUBSUB_TOPIC and returns the server message id.
func PublishRebuildEvent(ctx context.Context, evt RebuildEvent) (string, error) {
	topicName := RebuildTopic()
	if topicName == "" {
		return "", errors.New("REBUILD_PUBSUB_TOPIC is required")
	}
	client, err := getPubSubClient(ctx)
	if err != nil {
		return "", err
	}

	t := client.Topic(topicName)
	defer t.Stop()
	data, err := json.Marshal(evt)
	if err != nil {
		return "", err
	}
	result := t.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"run_id": evt.RunId,
			"status": evt.Status,
		},
	})
	return result.Get(ctx)
}
