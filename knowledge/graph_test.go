package knowledge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabfab/ragconsole/archive"
)

func TestGraphRecorderNilDriver(t *testing.T) {
	g := NewGraphRecorder(nil)
	ctx := context.Background()

	require.Error(t, g.RecordIngestion(ctx, archive.IngestionRecord{}))
	require.Error(t, g.RecordQuery(ctx, archive.QueryRecord{}))
	require.Error(t, g.Purge(ctx))
	_, err := g.TopSources(ctx, 5)
	require.Error(t, err)
}

func TestToInt(t *testing.T) {
	assert.Equal(t, 3, toInt(int64(3)))
	assert.Equal(t, 4, toInt(int32(4)))
	assert.Equal(t, 5, toInt(5.0))
	assert.Equal(t, 0, toInt("x"))
}
