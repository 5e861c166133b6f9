package understand

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mrmoe28/permitscout/internal/permits"
)

// chatReply wraps model output in the chat-completions envelope.
func chatReply(content string) []byte {
	quoted, _ := json.Marshal(content)
	return []byte(`{"choices": [{"message": {"content": ` + string(quoted) + `}}]}`)
}

func TestNewClientRequiresCredential(t *testing.T) {
	_, err := NewClient(Config{}, nil)
	require.ErrorIs(t, err, ErrNoCredential)
}

func TestExtractPermitDataParsesValidatedPayload(t *testing.T) {
	const modelOutput = `{
		"permits": [
			{"name": "Building Permit", "category": "building", "description": "New construction"},
			{"name": "  ", "category": "electrical"}
		],
		"forms": [
			{"name": "Application B-1", "url": "https://springfield.gov/forms/b1.pdf", "required": true},
			{"name": "Hallucinated", "url": "/forms/x.pdf"}
		],
		"fees": [
			{"type": "Plan Review", "amount": 75.5, "unit": "flat"},
			{"type": "No Amount"},
			{"type": "Negative", "amount": -3}
		],
		"contact": {"department": "Building Division", "phone": "(217) 555-0183"},
		"requirements": ["Two sets of plans", "   "],
		"processing_times": {"building": "2-3 weeks", "": "dropped"},
		"quality": 0.85
	}`

	var gotPath, gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(chatReply(modelOutput))
	}))
	defer server.Close()

	client, err := NewClient(Config{APIKey: "test-key", BaseURL: server.URL}, nil)
	require.NoError(t, err)

	u, err := client.ExtractPermitData(context.Background(),
		"Building permits require plan review.", "https://springfield.gov/permits")
	require.NoError(t, err)

	require.Equal(t, "/chat/completions", gotPath)
	require.Equal(t, "Bearer test-key", gotAuth)

	require.Len(t, u.Permits, 1)
	require.Equal(t, permits.CategoryBuilding, u.Permits[0].Category)

	require.Len(t, u.Forms, 1, "forms without an absolute URL are dropped")
	require.Equal(t, permits.FilePDF, u.Forms[0].FileType)
	require.True(t, u.Forms[0].IsRequired)

	require.Len(t, u.Fees, 1, "fees without a non-negative amount are dropped")
	require.Equal(t, 75.5, u.Fees[0].Amount)

	require.Equal(t, "Building Division", u.Contact.Department)
	require.Equal(t, []string{"Two sets of plans"}, u.Requirements)
	require.Equal(t, map[string]string{"building": "2-3 weeks"}, u.ProcessingTimes)
	require.Equal(t, 0.85, u.Quality)
}

func TestExtractPermitDataSurvivesFencedOutput(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(chatReply("Here is the data:\n```json\n{\"quality\": 0.4}\n```\nLet me know if you need more."))
	}))
	defer server.Close()

	client, err := NewClient(Config{APIKey: "k", BaseURL: server.URL}, nil)
	require.NoError(t, err)

	u, err := client.ExtractPermitData(context.Background(), "some page text", "https://springfield.gov")
	require.NoError(t, err)
	require.Equal(t, 0.4, u.Quality)
}

func TestExtractPermitDataRejectsEmptyText(t *testing.T) {
	client, err := NewClient(Config{APIKey: "k", BaseURL: "http://127.0.0.1:0"}, nil)
	require.NoError(t, err)

	_, err = client.ExtractPermitData(context.Background(), "   ", "https://springfield.gov")
	require.Error(t, err)
}

func TestExtractPermitDataSurfacesEndpointErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": {"message": "rate limited", "type": "rate_limit_exceeded"}}`))
	}))
	defer server.Close()

	client, err := NewClient(Config{APIKey: "k", BaseURL: server.URL}, nil)
	require.NoError(t, err)

	_, err = client.ExtractPermitData(context.Background(), "page text", "https://springfield.gov")
	require.ErrorContains(t, err, "rate limited")
}

func TestExtractPermitDataTruncatesInput(t *testing.T) {
	var gotUser string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req chatRequest
		if err := json.Unmarshal(body, &req); err == nil && len(req.Messages) == 2 {
			gotUser = req.Messages[1].Content
		}
		_, _ = w.Write(chatReply("{}"))
	}))
	defer server.Close()

	client, err := NewClient(Config{APIKey: "k", BaseURL: server.URL, MaxChars: 50}, nil)
	require.NoError(t, err)

	_, err = client.ExtractPermitData(context.Background(),
		strings.Repeat("a", 500), "https://springfield.gov")
	require.NoError(t, err)

	prefix := "Source: https://springfield.gov\n\n"
	require.Len(t, gotUser, len(prefix)+50)
}

func TestCrossReferenceClampsConfidence(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(chatReply(`{"confidence": 1.7, "issues": ["fee looks high"]}`))
	}))
	defer server.Close()

	client, err := NewClient(Config{APIKey: "k", BaseURL: server.URL}, nil)
	require.NoError(t, err)

	v, err := client.CrossReference(context.Background(), &permits.AcquisitionResult{ID: "a1"})
	require.NoError(t, err)
	require.Equal(t, 1.0, v.Confidence)
	require.Equal(t, []string{"fee looks high"}, v.Issues)
}
