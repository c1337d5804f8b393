package preference

import "context"

type Repo interface {
	// GetOrCreate returns the user's row, inserting defaults when missing.
	GetOrCreate(ctx context.Context, userID int64) (*Preference, error)
	Update(ctx context.Context, userID int64, patch Patch) (*Preference, error)
}
