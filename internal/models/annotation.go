// Package models defines the data structures shared by the annotation engine,
// the persistence backends and the export.
package models

import "time"

// Segment is a time interval [Start, End) on the audio timeline, in seconds.
type Segment struct {
	Start float64 `json:"start" yaml:"start"`
	End   float64 `json:"end" yaml:"end"`
}

// Duration returns the length of the segment in seconds.
func (s Segment) Duration() float64 {
	return s.End - s.Start
}

// SlotValue is a single key/value annotation.
type SlotValue struct {
	Key   string `json:"key" yaml:"key"`
	Value string `json:"value" yaml:"value"`
}

// Turn binds one utterance segment to its dialogue act and slots.
// Turns are associated with committed segments purely by position.
type Turn struct {
	Segments []Segment   `json:"segments" yaml:"segments"`
	Intent   string      `json:"intent" yaml:"intent"`
	Slots    []SlotValue `json:"slots" yaml:"slots"`
}

// Span returns the utterance extent covered by all segments of the turn.
// ok is false when the turn has no segments.
func (t Turn) Span() (span Segment, ok bool) {
	if len(t.Segments) == 0 {
		return Segment{}, false
	}
	span = t.Segments[0]
	for _, s := range t.Segments[1:] {
		if s.Start < span.Start {
			span.Start = s.Start
		}
		if s.End > span.End {
			span.End = s.End
		}
	}
	return span, true
}

// DialogueAnnotation is the persisted annotation of one conversation.
type DialogueAnnotation struct {
	CustomerID     string      `json:"customerId" yaml:"customerId"`
	ConversationID string      `json:"conversationId" yaml:"conversationId"`
	Turns          []Turn      `json:"turns" yaml:"turns"`
	DialogueSlots  []SlotValue `json:"dialogueSlots" yaml:"dialogueSlots"`
}

// Key returns the persistence key of the annotation.
func (a *DialogueAnnotation) Key() ConversationKey {
	return ConversationKey{CustomerID: a.CustomerID, ConversationID: a.ConversationID}
}

// NewDialogueAnnotation returns an empty annotation for a conversation.
func NewDialogueAnnotation(key ConversationKey) *DialogueAnnotation {
	return &DialogueAnnotation{
		CustomerID:     key.CustomerID,
		ConversationID: key.ConversationID,
		Turns:          []Turn{},
		DialogueSlots:  []SlotValue{},
	}
}

// ConversationKey identifies a conversation across persistence and export.
type ConversationKey struct {
	CustomerID     string `json:"customerId"`
	ConversationID string `json:"conversationId"`
}

// String renders the key as "customer/conversation".
func (k ConversationKey) String() string {
	return k.CustomerID + "/" + k.ConversationID
}

// Conversation is an entry of the audio catalog.
type Conversation struct {
	Key       ConversationKey `json:"key"`
	AudioPath string          `json:"audioPath"`
	Size      int64           `json:"size"`
	Modified  time.Time       `json:"modified"`
}
