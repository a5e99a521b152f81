//go:build integration

package mongo

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"milkbook/internal/records"
	"milkbook/internal/records/recordstest"
)

// Requires MILKBOOK_TEST_MONGO_URI pointing at a disposable deployment.
func TestMongoStoreContract(t *testing.T) {
	uri := os.Getenv("MILKBOOK_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("MILKBOOK_TEST_MONGO_URI not set")
	}
	recordstest.Run(t, func(t *testing.T) records.Store {
		ctx := context.Background()
		s, err := Open(ctx, Config{
			URI:        uri,
			Database:   "milkbook_test",
			Collection: fmt.Sprintf("milk_%d", time.Now().UnixNano()),
		}, nil)
		require.NoError(t, err)
		t.Cleanup(func() {
			_ = s.coll.Drop(context.Background())
			_ = s.Close()
		})
		return s
	})
}
