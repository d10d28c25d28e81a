package export

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/scrapedeck/scrapedeck/internal/hash/sha256"
	"github.com/scrapedeck/scrapedeck/internal/scrape"
)

func TestKeyIsDeterministic(t *testing.T) {
	t.Parallel()

	require.Equal(t, "exports/task-1.json", Key("exports", "task-1"))
	require.Equal(t, "exports/task-1.json", Key("/exports/", "task-1"))
	require.Equal(t, "task-1.json", Key("", "task-1"))
	require.Equal(t, Key("exports", "task-1"), Key("exports", "task-1"))
}

func TestBuildEmbedsChecksum(t *testing.T) {
	t.Parallel()

	items := []scrape.ResultItem{
		{ID: "p1", TaskID: "task-1", URL: "https://example.com/p/1", Caption: "one", LikesCount: 5},
	}
	at := time.Unix(1700000000, 0).UTC()

	bundle, data, err := Build("task-1", "acme", items, at, sha256.New())
	require.NoError(t, err)
	require.Equal(t, "task-1", bundle.TaskID)
	require.Equal(t, "acme", bundle.Source)
	require.NotEmpty(t, bundle.Checksum)

	var decoded Bundle
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, bundle.Checksum, decoded.Checksum)
	require.Len(t, decoded.Items, 1)
	require.True(t, at.Equal(decoded.GeneratedAt))
}

func TestBuildIsDeterministic(t *testing.T) {
	t.Parallel()

	items := []scrape.ResultItem{{ID: "p1", TaskID: "task-1", URL: "u"}}
	at := time.Unix(1700000000, 0).UTC()

	_, first, err := Build("task-1", "acme", items, at, sha256.New())
	require.NoError(t, err)
	_, second, err := Build("task-1", "acme", items, at, sha256.New())
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestBuildWithoutHasher(t *testing.T) {
	t.Parallel()

	bundle, _, err := Build("task-1", "acme", nil, time.Unix(0, 0).UTC(), nil)
	require.NoError(t, err)
	require.Empty(t, bundle.Checksum)
}
