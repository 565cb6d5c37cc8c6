package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bogachat/boga/internal/chat"
	"github.com/bogachat/boga/internal/conversation"
	"github.com/bogachat/boga/internal/log"
)

func TestConversationHandler_Get(t *testing.T) {
	t.Parallel()

	conv := conversation.NewManager(8)
	id := conv.GetOrCreate("")
	conv.Append(id, conversation.Message{Role: conversation.RoleUser, Content: "hello"})
	conv.Append(id, conversation.Message{Role: conversation.RoleAssistant, Content: "hi!"})

	s := NewServer(ServerConfig{
		Chat:          &fakeChatService{result: &chat.Result{}},
		Conversations: conv,
		Ingestor:      &fakeIngestor{},
		Documents:     &fakeDocumentStore{},
		Searcher:      &fakeSearcher{},
		Logger:        log.NewNop(),
	})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	t.Run("known conversation", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/conversations/" + id)
		require.NoError(t, err)
		defer resp.Body.Close()

		require.Equal(t, http.StatusOK, resp.StatusCode)

		var got conversationResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
		assert.Equal(t, id, got.ConversationID)
		require.Len(t, got.Messages, 2)
		assert.Equal(t, conversation.RoleUser, got.Messages[0].Role)
		assert.Equal(t, "hello", got.Messages[0].Content)
		assert.Equal(t, conversation.RoleAssistant, got.Messages[1].Role)
	})

	t.Run("unknown conversation yields 404", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/conversations/never-seen")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("known but empty conversation", func(t *testing.T) {
		empty := conv.GetOrCreate("")
		resp, err := http.Get(ts.URL + "/conversations/" + empty)
		require.NoError(t, err)
		defer resp.Body.Close()

		require.Equal(t, http.StatusOK, resp.StatusCode)
		var got conversationResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
		assert.NotNil(t, got.Messages)
		assert.Empty(t, got.Messages)
	})
}
