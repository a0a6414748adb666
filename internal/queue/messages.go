package queue

import (
	"encoding/json"

	"github.com/rabbitmq/amqp091-go"
)

// IngestJobMsg asks the worker to extract one document and resolve its
// entities into the partition's graph. DocumentID must be stable per
// document so replays are idempotent.
type IngestJobMsg struct {
	Partition    string   `json:"partition"`
	DocumentID   string   `json:"document_id"`
	DocumentName string   `json:"document_name"`
	Text         string   `json:"text"`
	EntityTypes  []string `json:"entity_types,omitempty"`
}

// DetectJobMsg asks the worker to recompute the partition's community
// hierarchy. When Summarize is set a summarization job is chained after a
// successful detection.
type DetectJobMsg struct {
	Partition  string  `json:"partition"`
	Resolution float64 `json:"resolution,omitempty"`
	Summarize  bool    `json:"summarize,omitempty"`
}

// SummarizeJobMsg asks the worker to summarize the partition's hierarchy
// bottom-up.
type SummarizeJobMsg struct {
	Partition string `json:"partition"`
}

// DeleteJobMsg asks the worker to drop all graph data for the partition.
type DeleteJobMsg struct {
	Partition string `json:"partition"`
}

func publishJSON(ch *amqp091.Channel, queueName string, msg any) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return PublishFIFO(ch, queueName, body)
}

// EnqueueIngest queues a document ingestion job.
func EnqueueIngest(ch *amqp091.Channel, msg IngestJobMsg) error {
	return publishJSON(ch, IngestQueue, msg)
}

// EnqueueDetect queues a community detection job.
func EnqueueDetect(ch *amqp091.Channel, msg DetectJobMsg) error {
	return publishJSON(ch, DetectQueue, msg)
}

// EnqueueSummarize queues a summarization job.
func EnqueueSummarize(ch *amqp091.Channel, msg SummarizeJobMsg) error {
	return publishJSON(ch, SummarizeQueue, msg)
}

// EnqueueDelete queues a partition deletion job.
func EnqueueDelete(ch *amqp091.Channel, msg DeleteJobMsg) error {
	return publishJSON(ch, DeleteQueue, msg)
}
