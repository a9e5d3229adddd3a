// Package export writes annotation documents as one CSV row per turn.
package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/raphaelgruber/turnmark/internal/models"
	"github.com/raphaelgruber/turnmark/internal/store"
)

// Header is the first CSV row.
var Header = []string{
	"customerId",
	"conversationId",
	"turnIndex",
	"utteranceStart",
	"utteranceEnd",
	"segmentStart",
	"segmentEnd",
	"intent",
	"turnSlots",
	"dialogueSlots",
}

// Source is the subset of store.Store the exporter needs.
type Source interface {
	List(ctx context.Context) ([]models.ConversationKey, error)
	Load(ctx context.Context, key models.ConversationKey) (*models.DialogueAnnotation, error)
}

// BulkSource is a Source that can read every document in one call.
// WriteStore prefers it over List followed by one Load per key.
type BulkSource interface {
	Source
	LoadAll(ctx context.Context) ([]*models.DialogueAnnotation, error)
}

// Stats summarizes an export.
type Stats struct {
	Conversations int `json:"conversations"`
	Rows          int `json:"rows"`
}

// WriteCSV writes the header followed by one row per turn of every document
// in docs, in order. Fields containing commas, quotes or newlines are quoted
// with doubled inner quotes.
func WriteCSV(w io.Writer, docs []*models.DialogueAnnotation) (Stats, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return Stats{}, fmt.Errorf("write header: %w", err)
	}

	var stats Stats
	for _, doc := range docs {
		n, err := writeDocument(cw, doc)
		if err != nil {
			return stats, err
		}
		stats.Conversations++
		stats.Rows += n
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return stats, fmt.Errorf("flush: %w", err)
	}
	return stats, nil
}

// WriteStore exports every document of src, sorted by key. Documents that
// vanish between List and Load are skipped.
func WriteStore(ctx context.Context, w io.Writer, src Source) (Stats, error) {
	if bulk, ok := src.(BulkSource); ok {
		docs, err := bulk.LoadAll(ctx)
		if err != nil {
			return Stats{}, fmt.Errorf("load all: %w", err)
		}
		return WriteCSV(w, docs)
	}

	keys, err := src.List(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("list: %w", err)
	}

	docs := make([]*models.DialogueAnnotation, 0, len(keys))
	for _, key := range keys {
		doc, err := src.Load(ctx, key)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return Stats{}, fmt.Errorf("load %s: %w", key, err)
		}
		docs = append(docs, doc)
	}
	return WriteCSV(w, docs)
}

func writeDocument(cw *csv.Writer, doc *models.DialogueAnnotation) (int, error) {
	dialogueSlots, err := encodeSlots(doc.DialogueSlots)
	if err != nil {
		return 0, fmt.Errorf("%s: dialogue slots: %w", doc.Key(), err)
	}

	for i, turn := range doc.Turns {
		turnSlots, err := encodeSlots(turn.Slots)
		if err != nil {
			return i, fmt.Errorf("%s turn %d: slots: %w", doc.Key(), i, err)
		}

		span, _ := turn.Span()
		var seg models.Segment
		if len(turn.Segments) > 0 {
			seg = turn.Segments[0]
		}

		record := []string{
			doc.CustomerID,
			doc.ConversationID,
			strconv.Itoa(i),
			formatSeconds(span.Start),
			formatSeconds(span.End),
			formatSeconds(seg.Start),
			formatSeconds(seg.End),
			turn.Intent,
			turnSlots,
			dialogueSlots,
		}
		if err := cw.Write(record); err != nil {
			return i, fmt.Errorf("%s turn %d: %w", doc.Key(), i, err)
		}
	}
	return len(doc.Turns), nil
}

func encodeSlots(slots []models.SlotValue) (string, error) {
	if slots == nil {
		slots = []models.SlotValue{}
	}
	b, err := json.Marshal(slots)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
