// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/jeranaias/streamchat/internal/model"
)

// JSONExporter exports conversations to JSON. The output always carries the
// full turn list so it can be read back with ParseJSON.
type JSONExporter struct {
	options *Options
}

// NewJSONExporter creates a JSON exporter.
func NewJSONExporter(opts *Options) *JSONExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &JSONExporter{options: opts}
}

// Export converts a conversation to indented JSON.
func (e *JSONExporter) Export(conv Conversation) ([]byte, error) {
	if conv.ExportedAt.IsZero() {
		conv.ExportedAt = time.Now()
	}
	if conv.Turns == nil {
		conv.Turns = []model.Turn{}
	}
	data, err := json.MarshalIndent(conv, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "encode conversation")
	}
	return append(data, '\n'), nil
}

// FileExtension returns ".json".
func (e *JSONExporter) FileExtension() string {
	return ".json"
}

// MimeType returns the JSON MIME type.
func (e *JSONExporter) MimeType() string {
	return "application/json"
}

// ParseJSON reads a conversation written by JSONExporter.
func ParseJSON(data []byte) (Conversation, error) {
	var conv Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return Conversation{}, errors.Wrap(err, "decode conversation")
	}
	return conv, nil
}
