package registry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewValidatesEagerly(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
	}{
		{"empty base URL", []Option{WithBaseURL("")}},
		{"non-http base URL", []Option{WithBaseURL("ftp://example.com")}},
		{"negative retries", []Option{WithMaxRetries(-1)}},
		{"zero timeout", []Option{WithTimeout(0)}},
		{"bad jitter", []Option{WithBackoff(time.Second, 30*time.Second, 2.0, 1.5)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.opts...)
			require.Error(t, err)
			assert.True(t, IsValidation(err), "err = %v", err)
		})
	}
}

func TestNewDefaults(t *testing.T) {
	c, err := New()
	require.NoError(t, err)

	assert.Equal(t, "https://api.fda.gov", c.cfg.BaseURL)
	assert.Equal(t, 3, c.cfg.MaxRetries)
	assert.Equal(t, 30*time.Second, c.cfg.Timeout)
	assert.NotNil(t, c.cache, "cache enabled by default")
	assert.NotNil(t, c.orch.flights, "deduplication enabled by default")

	// Keyless quota applies without an API key.
	assert.Equal(t, keylessRateLimit, c.limiter.Snapshot().MaxRequests)
}

func TestNewKeyedRateLimit(t *testing.T) {
	c, err := New(WithAPIKey("secret"))
	require.NoError(t, err)
	assert.Equal(t, keyedRateLimit, c.limiter.Snapshot().MaxRequests)
}

func searchServer(t *testing.T, payload string, capture *http.Request) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if capture != nil {
			*capture = *r
		}
		w.Write([]byte(payload))
	}))
}

func TestSearchPredicates(t *testing.T) {
	var captured http.Request
	srv := searchServer(t, `{
		"meta": {"results": {"total": 2}},
		"results": [
			{"k_number": "K123456", "device_name": "Pulse Oximeter", "product_code": "DQA"},
			{"k_number": "K234567", "device_name": "Finger Oximeter", "product_code": "DQA"}
		]
	}`, &captured)
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	records, err := c.SearchPredicates(context.Background(), PredicateSearch{
		DeviceName:  "oximeter",
		ProductCode: "dqa",
		Limit:       25,
	})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "K123456", records[0].Identifier)

	q := captured.URL.Query()
	assert.Equal(t, `device_name:"oximeter" AND product_code:"DQA"`, q.Get("search"))
	assert.Equal(t, "25", q.Get("limit"))
}

func TestSearchPredicatesDiscardsIncompleteEntries(t *testing.T) {
	srv := searchServer(t, `{
		"results": [
			{"k_number": "K123456", "device_name": "Pulse Oximeter"},
			{"k_number": "K999999"},
			{"device_name": "Nameless"}
		]
	}`, nil)
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	records, err := c.SearchPredicates(context.Background(), PredicateSearch{DeviceName: "oximeter"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "K123456", records[0].Identifier)
}

func TestSearchPredicatesEmptyResultsIsNotFound(t *testing.T) {
	srv := searchServer(t, `{"results": []}`, nil)
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.SearchPredicates(context.Background(), PredicateSearch{DeviceName: "oximeter"})
	assert.True(t, IsNotFound(err), "err = %v", err)
}

func TestSearchPredicatesValidation(t *testing.T) {
	c := newTestClient(t, "http://localhost:0")

	_, err := c.SearchPredicates(context.Background(), PredicateSearch{})
	assert.True(t, IsValidation(err), "empty search: %v", err)

	_, err = c.SearchPredicates(context.Background(), PredicateSearch{ProductCode: "TOOLONG"})
	assert.True(t, IsValidation(err), "bad product code: %v", err)
}

func TestSearchPredicatesLimitClamping(t *testing.T) {
	var captured http.Request
	srv := searchServer(t, `{"results": [{"k_number": "K1", "device_name": "X"}]}`, &captured)
	defer srv.Close()

	c := newTestClient(t, srv.URL, WithoutCache(), WithoutDeduplication())

	_, err := c.SearchPredicates(context.Background(), PredicateSearch{DeviceName: "x", Limit: 0})
	require.NoError(t, err)
	assert.Equal(t, "10", captured.URL.Query().Get("limit"))

	_, err = c.SearchPredicates(context.Background(), PredicateSearch{DeviceName: "x", Limit: 5000})
	require.NoError(t, err)
	assert.Equal(t, "100", captured.URL.Query().Get("limit"))
}

func TestGetRecordByIdentifier(t *testing.T) {
	var captured http.Request
	srv := searchServer(t, `{
		"results": [{"k_number": "K123456", "device_name": "Pulse Oximeter", "decision_date": "2019-04-17"}]
	}`, &captured)
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	rec, err := c.GetRecordByIdentifier(context.Background(), " k123456 ")
	require.NoError(t, err)
	assert.Equal(t, "K123456", rec.Identifier)
	assert.Equal(t, `k_number:"K123456"`, captured.URL.Query().Get("search"))
}

func TestGetRecordByIdentifierValidation(t *testing.T) {
	c := newTestClient(t, "http://localhost:0")

	for _, id := range []string{"", "12345", "K12", "KABCDEF", "device name"} {
		_, err := c.GetRecordByIdentifier(context.Background(), id)
		assert.True(t, IsValidation(err), "identifier %q: %v", id, err)
	}
}

func TestGetRecordByIdentifierNotFound(t *testing.T) {
	srv := searchServer(t, `{"results": []}`, nil)
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.GetRecordByIdentifier(context.Background(), "K000001")
	assert.True(t, IsNotFound(err), "err = %v", err)
}

func TestLookupClassification(t *testing.T) {
	var captured http.Request
	srv := searchServer(t, `{
		"results": [{
			"product_code": "DQA",
			"device_name": "Oximeter",
			"device_class": "2",
			"regulation_number": "870.2700"
		}]
	}`, &captured)
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	rec, err := c.LookupClassification(context.Background(), "dqa")
	require.NoError(t, err)
	assert.Equal(t, "2", rec.DeviceClass)
	assert.Equal(t, `product_code:"DQA"`, captured.URL.Query().Get("search"))
	assert.Contains(t, captured.URL.Path, "classification")
}

func TestSearchEvents(t *testing.T) {
	var captured http.Request
	srv := searchServer(t, `{
		"results": [{
			"report_number": "1234567-2020-00001",
			"event_type": "Malfunction",
			"device": [{"brand_name": "Acme Monitor"}]
		}]
	}`, &captured)
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	records, err := c.SearchEvents(context.Background(), EventSearch{DeviceName: "Acme Monitor"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Malfunction", records[0].EventType)
	assert.Equal(t, `device.brand_name:"Acme Monitor"`, captured.URL.Query().Get("search"))
}

func TestSearchEventsEmptyIsNotAnError(t *testing.T) {
	srv := searchServer(t, `{"results": []}`, nil)
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	records, err := c.SearchEvents(context.Background(), EventSearch{DeviceName: "unheard of"})
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestSearchEventsUpstream404IsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error": {"code": "NOT_FOUND", "message": "No matches found!"}}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	records, err := c.SearchEvents(context.Background(), EventSearch{ProductCode: "DQA"})
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestMalformedResponse(t *testing.T) {
	srv := searchServer(t, `<html>not json</html>`, nil)
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.SearchPredicates(context.Background(), PredicateSearch{DeviceName: "x"})
	assert.True(t, IsTransport(err), "err = %v", err)
}
