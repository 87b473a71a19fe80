package store

import (
	"testing"

	pb "github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/pai/internal/models"
)

func TestChunkMetadataRoundTrip(t *testing.T) {
	c := models.Chunk{
		ID:         "id-1",
		DocumentID: "report.pdf",
		Index:      7,
		Content:    "body",
		Metadata:   map[string]string{models.MetaFilename: "report.pdf", "bad": "ok\xff"},
	}

	meta := chunkMetadata(c)
	assert.Equal(t, "report.pdf", meta[models.MetaDocumentID])
	assert.Equal(t, "7", meta[models.MetaChunkIndex])
	assert.Equal(t, "ok", meta["bad"])

	back := chunkFromMetadata(c.ID, c.Content, meta)
	assert.Equal(t, c.DocumentID, back.DocumentID)
	assert.Equal(t, 7, back.Index)
	assert.Equal(t, "body", back.Content)
}

func TestChunkPayloadRoundTrip(t *testing.T) {
	c := models.Chunk{DocumentID: "doc", Index: 2, Content: "text", Metadata: map[string]string{"type": "pdf"}}

	payload := chunkPayload(c)
	payload["ignored"] = &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: 3}}

	back := chunkFromPayload("pid", payload)
	assert.Equal(t, "pid", back.ID)
	assert.Equal(t, "doc", back.DocumentID)
	assert.Equal(t, 2, back.Index)
	assert.Equal(t, "text", back.Content)
	assert.Equal(t, "pdf", back.Metadata["type"])
	assert.NotContains(t, back.Metadata, "content")
	assert.NotContains(t, back.Metadata, "ignored")
}

func TestDocumentFilter(t *testing.T) {
	assert.Nil(t, documentFilter(""))

	f := documentFilter("doc")
	require.Len(t, f.Must, 1)
	field := f.Must[0].GetField()
	require.NotNil(t, field)
	assert.Equal(t, models.MetaDocumentID, field.Key)
	assert.Equal(t, "doc", field.Match.GetKeyword())
}

func TestChunkIDs(t *testing.T) {
	chunks := []models.Chunk{{ID: "given"}, {}}
	ids := chunkIDs(chunks)

	assert.Equal(t, "given", ids[0])
	assert.Len(t, ids[1], 36)
	assert.Equal(t, ids[1], chunks[1].ID)
}

func TestSanitizeUTF8(t *testing.T) {
	assert.Equal(t, "hello", sanitizeUTF8("hello"))
	assert.Equal(t, "héllo", sanitizeUTF8("h\xffé\xfello"))
}
