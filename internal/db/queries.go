package db

import (
	"context"
	"fmt"
	"time"

	"github.com/raphaelgruber/turnmark/internal/models"
	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// AnnotationRecord is one row of the annotation table.
type AnnotationRecord struct {
	ID             surrealmodels.RecordID `json:"id"`
	CustomerID     string                 `json:"customer_id"`
	ConversationID string                 `json:"conversation_id"`
	Document       string                 `json:"document"`
	TurnCount      int                    `json:"turn_count"`
	Created        time.Time              `json:"created,omitempty"`
	Updated        time.Time              `json:"updated,omitempty"`
}

// Key returns the conversation the record belongs to, decoded from its
// record ID.
func (r AnnotationRecord) Key() (models.ConversationKey, error) {
	id, err := models.RecordIDString(r.ID)
	if err != nil {
		return models.ConversationKey{}, err
	}
	return models.ParseRecordID(id)
}

// QueryUpsertAnnotation creates or replaces the document of a conversation.
func (c *Client) QueryUpsertAnnotation(ctx context.Context, key models.ConversationKey, document string, turnCount int) (*AnnotationRecord, error) {
	sql := `
		UPSERT type::record("annotation", $id) SET
			customer_id = $customer,
			conversation_id = $conversation,
			document = $document,
			turn_count = $turns,
			updated = time::now()
		RETURN AFTER
	`
	results, err := surrealdb.Query[[]AnnotationRecord](ctx, c.db, sql, map[string]any{
		"id":           key.RecordID(),
		"customer":     key.CustomerID,
		"conversation": key.ConversationID,
		"document":     document,
		"turns":        turnCount,
	})
	if err != nil {
		return nil, fmt.Errorf("upsert annotation: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("upsert annotation: no result returned")
	}
	return &(*results)[0].Result[0], nil
}

// QueryGetAnnotation retrieves the record of a conversation.
// Returns ErrNotFound if it was never saved.
func (c *Client) QueryGetAnnotation(ctx context.Context, key models.ConversationKey) (*AnnotationRecord, error) {
	results, err := surrealdb.Query[[]AnnotationRecord](ctx, c.db, `
		SELECT * FROM type::record("annotation", $id)
	`, map[string]any{"id": key.RecordID()})
	if err != nil {
		return nil, fmt.Errorf("get annotation: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return &(*results)[0].Result[0], nil
}

// QueryListAnnotations returns all records ordered by customer then
// conversation. withDocuments=false skips the document payload.
func (c *Client) QueryListAnnotations(ctx context.Context, withDocuments bool) ([]AnnotationRecord, error) {
	fields := "id, customer_id, conversation_id, turn_count, created, updated"
	if withDocuments {
		fields += ", document"
	}
	sql := fmt.Sprintf(`
		SELECT %s FROM annotation
		ORDER BY customer_id, conversation_id
	`, fields)

	results, err := surrealdb.Query[[]AnnotationRecord](ctx, c.db, sql, nil)
	if err != nil {
		return nil, fmt.Errorf("list annotations: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 {
		return []AnnotationRecord{}, nil
	}
	return (*results)[0].Result, nil
}

// QueryDeleteAnnotation deletes the record of a conversation.
// Returns whether a record existed.
func (c *Client) QueryDeleteAnnotation(ctx context.Context, key models.ConversationKey) (bool, error) {
	results, err := surrealdb.Query[[]AnnotationRecord](ctx, c.db, `
		DELETE type::record("annotation", $id) RETURN BEFORE
	`, map[string]any{"id": key.RecordID()})
	if err != nil {
		return false, fmt.Errorf("delete annotation: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 {
		return false, nil
	}
	return len((*results)[0].Result) > 0, nil
}
