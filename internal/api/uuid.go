package api

import (
	"fmt"

	"github.com/google/uuid"
)

// maxBatchContacts bounds one preview or send request.
const maxBatchContacts = 100

// parseUUID parses a single id from a request.
func parseUUID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

// parseContactIDs parses a batch of contact ids. The returned message is
// suitable for a 400 response.
func parseContactIDs(raw []string) ([]uuid.UUID, string) {
	if len(raw) == 0 {
		return nil, "No contacts selected."
	}
	if len(raw) > maxBatchContacts {
		return nil, fmt.Sprintf("At most %d contacts can be processed at once.", maxBatchContacts)
	}
	ids := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		id, err := parseUUID(s)
		if err != nil {
			return nil, err.Error()
		}
		ids = append(ids, id)
	}
	return ids, ""
}
