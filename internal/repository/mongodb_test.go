//go:build !integration

package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestCleanupIndex_KeyOrder(t *testing.T) {
	for i := 0; i < 20; i++ {
		keys, ok := cleanupIndex().Keys.(bson.D)
		require.True(t, ok, "index keys must be ordered")
		assert.Equal(t, bson.D{{Key: "cleaned", Value: 1}, {Key: "timestamp", Value: -1}}, keys)
	}
}
