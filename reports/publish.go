package reports

import (
	"context"
	"fmt"

	"bitbucket.org/mmdatafocus/ledger_rebuild/config"
	"bitbucket.org/mmdatafocus/ledger_rebuild/utils"
	"github.com/sirupsen/logrus"
)

// Publisher ships finished artifacts to GCS and announces the run on
// Pub/Sub. An empty Bucket or Topic disables that half.
type Publisher struct {
	Bucket string
	Topic  string
	Upload func(ctx context.Context, bucket, prefix string, files ...string) ([]string, error)
	Notify func(ctx context.Context, evt config.RebuildEvent) (string, error)
	Logger *logrus.Logger
}

// NewPublisher reads REPORT_GCS_BUCKET and REBUILD_PUBSUB_TOPIC.
func NewPublisher(logger *logrus.Logger) *Publisher {
	return &Publisher{
		Bucket: utils.ReportBucket(),
		Topic:  config.RebuildTopic(),
		Upload: utils.UploadFilesToGCS,
		Notify: config.PublishRebuildEvent,
		Logger: logger,
	}
}

func (p *Publisher) Enabled() bool {
	return p.Bucket != "" || p.Topic != ""
}

// Publish uploads artifacts and then sends the run event with their URIs.
// Failures are logged and returned; they never change the run's status.
func (p *Publisher) Publish(ctx context.Context, report *Report, artifacts Artifacts, correlationId string) ([]string, error) {
	var uris []string
	if p.Bucket != "" {
		var err error
		uris, err = p.Upload(ctx, p.Bucket, fmt.Sprintf("receipt-rebuild/%s", report.RunId), artifacts.Paths()...)
		if err != nil {
			config.LogError(p.Logger, "publish.go", "Publish", "upload artifacts", report.RunId, err)
			return uris, err
		}
		p.Logger.WithFields(logrus.Fields{"run_id": report.RunId, "objects": len(uris)}).Info("report artifacts uploaded")
	}
	if p.Topic == "" {
		return uris, nil
	}

	evt := config.RebuildEvent{
		RunId:         report.RunId,
		Status:        report.Status,
		TermFilter:    report.TermFilter,
		Processed:     report.Counts.Processed,
		Successful:    report.Counts.Successful,
		Failed:        report.Counts.Failed,
		Skipped:       report.Counts.Skipped,
		ErrorCounts:   map[string]int{},
		ArtifactURIs:  uris,
		FinishedAt:    report.GeneratedAt,
		CorrelationId: correlationId,
	}
	for _, c := range report.Categories {
		evt.ErrorCounts[string(c.Category)] = c.Count
	}
	msgId, err := p.Notify(ctx, evt)
	if err != nil {
		config.LogError(p.Logger, "publish.go", "Publish", "publish run event", report.RunId, err)
		return uris, err
	}
	p.Logger.WithFields(logrus.Fields{"run_id": report.RunId, "message_id": msgId}).Info("run event published")
	return uris, nil
}
