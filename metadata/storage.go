package metadata

import "github.com/mohitkumar/flowfirst/persistence"

// MetadataStorage is where flow definitions live. Gets of missing flows
// return an error wrapping persistence.ErrNotFound.
type MetadataStorage interface {
	persistence.FlowStorage
}
