package models

import (
	"fmt"
	"strings"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// keySeparator joins customer and conversation IDs into a single record ID.
const keySeparator = "|"

// RecordID returns the SurrealDB record ID string for a conversation key.
func (k ConversationKey) RecordID() string {
	return k.CustomerID + keySeparator + k.ConversationID
}

// ParseRecordID is the inverse of ConversationKey.RecordID.
func ParseRecordID(id string) (ConversationKey, error) {
	customer, conversation, ok := strings.Cut(id, keySeparator)
	if !ok || customer == "" || conversation == "" {
		return ConversationKey{}, fmt.Errorf("malformed conversation record id: %q", id)
	}
	return ConversationKey{CustomerID: customer, ConversationID: conversation}, nil
}

// Validate checks that both parts are present and safe to use as
// path segments and record IDs.
func (k ConversationKey) Validate() error {
	for name, v := range map[string]string{"customer id": k.CustomerID, "conversation id": k.ConversationID} {
		if v == "" {
			return fmt.Errorf("%s is empty", name)
		}
		if v == "." || v == ".." || strings.ContainsAny(v, `/\`+keySeparator) {
			return fmt.Errorf("%s %q contains reserved characters", name, v)
		}
	}
	return nil
}

// RecordIDString safely extracts the string ID from a SurrealDB RecordID.
// Returns an error if the ID is not a string type.
func RecordIDString(id surrealmodels.RecordID) (string, error) {
	s, ok := id.ID.(string)
	if !ok {
		return "", fmt.Errorf("unexpected ID type: %T (expected string)", id.ID)
	}
	return s, nil
}
