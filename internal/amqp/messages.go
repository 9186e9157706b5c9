package amqp

import (
	"encoding/json"
	"errors"
	"time"
)

// ReportPublishMessage asks the worker to recompute a variance report and
// publish it. The ID matches the publication recorded when the request was
// accepted.
type ReportPublishMessage struct {
	ID         string    `json:"id"`
	Period1    string    `json:"period_1"`
	Period2    string    `json:"period_2"`
	ShowDetail bool      `json:"show_detail"`
	Timestamp  time.Time `json:"timestamp"`
}

func NewReportPublishMessage(id, period1, period2 string, showDetail bool) *ReportPublishMessage {
	return &ReportPublishMessage{
		ID:         id,
		Period1:    period1,
		Period2:    period2,
		ShowDetail: showDetail,
		Timestamp:  time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *ReportPublishMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ReportPublishMessageFromJSON decodes a message. A message without an ID
// is rejected.
func ReportPublishMessageFromJSON(data []byte) (*ReportPublishMessage, error) {
	var msg ReportPublishMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.ID == "" {
		return nil, errors.New("report publish message without id")
	}
	return &msg, nil
}
