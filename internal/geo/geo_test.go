package geo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mrmoe28/permitscout/internal/permits"
)

func TestNewClientRequiresBaseURL(t *testing.T) {
	_, err := NewClient(Config{}, nil)
	require.ErrorIs(t, err, ErrNotConfigured)

	_, err = NewClient(Config{BaseURL: "   "}, nil)
	require.ErrorIs(t, err, ErrNotConfigured)
}

func TestGeocodeEnrichesAddress(t *testing.T) {
	var gotPath, gotQuery, gotKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query().Get("q")
		gotKey = r.URL.Query().Get("key")
		_, _ = w.Write([]byte(`{
			"results": [{
				"components": {
					"street": "123 Main St",
					"city": "Springfield",
					"state": "IL",
					"zip": "62701",
					"county": "Sangamon"
				},
				"location": {"lat": 39.7817, "lng": -89.6501}
			}]
		}`))
	}))
	defer server.Close()

	client, err := NewClient(Config{BaseURL: server.URL, APIKey: "geo-key"}, nil)
	require.NoError(t, err)

	out, err := client.Geocode(context.Background(), permits.Address{
		Street: "123 main street",
		City:   "springfield",
		State:  "il",
	})
	require.NoError(t, err)

	require.Equal(t, "/geocode", gotPath)
	require.Equal(t, "123 main street, springfield, il", gotQuery)
	require.Equal(t, "geo-key", gotKey)

	require.Equal(t, "123 Main St", out.Street)
	require.Equal(t, "Springfield", out.City)
	require.Equal(t, "IL", out.State)
	require.Equal(t, "62701", out.Zip)
	require.Equal(t, "Sangamon", out.County)
	require.NotNil(t, out.Latitude)
	require.Equal(t, 39.7817, *out.Latitude)
	require.NotNil(t, out.Longitude)
	require.Equal(t, -89.6501, *out.Longitude)
}

func TestGeocodeKeepsCallerFieldsOnSparseResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"results": [{"components": {"county": "Sangamon"}}]}`))
	}))
	defer server.Close()

	client, err := NewClient(Config{BaseURL: server.URL}, nil)
	require.NoError(t, err)

	out, err := client.Geocode(context.Background(), permits.Address{
		Street: "123 Main St",
		City:   "Springfield",
		State:  "IL",
	})
	require.NoError(t, err)
	require.Equal(t, "123 Main St", out.Street, "empty component keeps the caller value")
	require.Equal(t, "Sangamon", out.County)
	require.Nil(t, out.Latitude, "zero location is not treated as coordinates")
}

func TestGeocodeNoMatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"results": []}`))
	}))
	defer server.Close()

	client, err := NewClient(Config{BaseURL: server.URL}, nil)
	require.NoError(t, err)

	_, err = client.Geocode(context.Background(), permits.Address{City: "Nowhere"})
	require.ErrorContains(t, err, "no match")
}

func TestGeocodeRejectsEmptyAddress(t *testing.T) {
	client, err := NewClient(Config{BaseURL: "http://127.0.0.1:0"}, nil)
	require.NoError(t, err)

	_, err = client.Geocode(context.Background(), permits.Address{})
	require.Error(t, err)
}

func TestNearbyOfficesDropsUnnamedEntries(t *testing.T) {
	var gotType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotType = r.URL.Query().Get("type")
		_, _ = w.Write([]byte(`{
			"results": [
				{"name": "Springfield Building Department", "website": "https://springfield.gov/building", "phone": "(217) 555-0183"},
				{"name": "   ", "website": "https://example.com"},
				{"name": "Sangamon County Clerk", "phone": "(217) 555-0190"}
			]
		}`))
	}))
	defer server.Close()

	client, err := NewClient(Config{BaseURL: server.URL}, nil)
	require.NoError(t, err)

	offices, err := client.NearbyOffices(context.Background(), permits.Address{City: "Springfield", State: "IL"})
	require.NoError(t, err)

	require.Equal(t, "government", gotType)
	require.Len(t, offices, 2)
	require.Equal(t, "Springfield Building Department", offices[0].Name)
	require.Equal(t, "https://springfield.gov/building", offices[0].Website)
	require.Equal(t, "Sangamon County Clerk", offices[1].Name)
	require.Empty(t, offices[1].Website)
}

func TestNearbyOfficesSurfacesServiceErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream unavailable"))
	}))
	defer server.Close()

	client, err := NewClient(Config{BaseURL: server.URL}, nil)
	require.NoError(t, err)

	_, err = client.NearbyOffices(context.Background(), permits.Address{City: "Springfield"})
	require.ErrorContains(t, err, "502")
}
