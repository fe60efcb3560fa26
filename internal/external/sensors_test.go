package external

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"thermostat/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingReporter captures health reports for assertions.
type recordingReporter struct {
	mu        sync.Mutex
	successes []string
	errors    map[string]string
}

func newRecordingReporter() *recordingReporter {
	return &recordingReporter{errors: make(map[string]string)}
}

func (r *recordingReporter) ReportSuccess(apiID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.successes = append(r.successes, apiID)
}

func (r *recordingReporter) ReportError(apiID, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors[apiID] = msg
}

var fixedNow = time.Date(2026, 1, 15, 8, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

func newAwair(t *testing.T, handler http.HandlerFunc, reporter HealthReporter) *AwairClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewAwairClient(newTestBase(), AwairConfig{
		Token:    "awair-token",
		DeviceID: "4242",
		BaseURL:  server.URL,
		Reporter: reporter,
		Now:      fixedClock,
	})
}

func TestAwair_SensorsArrayPayload(t *testing.T) {
	reporter := newRecordingReporter()
	client := newAwair(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users/self/devices/awair-element/4242/air-data/latest", r.URL.Path)
		assert.Equal(t, "Bearer awair-token", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"data":[{"timestamp":"2026-01-15T08:00:00.000Z","score":90,
			"sensors":[{"comp":"temp","value":20},{"comp":"humid","value":41.5},
			{"comp":"co2","value":612},{"comp":"voc","value":180},{"comp":"pm25","value":3}]}]}`))
	}, reporter)

	r := client.FetchReading(context.Background())

	require.NotNil(t, r)
	assert.Equal(t, types.SourceAwair, r.Source)
	assert.Equal(t, fixedNow, r.Timestamp)
	assert.InDelta(t, 68.0, *r.Temperature, 1e-9)
	assert.InDelta(t, 41.5, *r.Humidity, 1e-9)
	require.NotNil(t, r.AirQuality)
	assert.Equal(t, 612.0, *r.AirQuality.CO2)
	assert.Equal(t, 180.0, *r.AirQuality.VOC)
	assert.Equal(t, 3.0, *r.AirQuality.PM25)
	assert.Nil(t, r.AirQuality.Radon)
	assert.Equal(t, []string{types.APIAwair}, reporter.successes)
}

func TestAwair_FlatPayload(t *testing.T) {
	client := newAwair(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"temp":22.5,"humid":38,"co2":700}]}`))
	}, nil)

	r := client.FetchReading(context.Background())

	require.NotNil(t, r)
	assert.InDelta(t, 72.5, *r.Temperature, 1e-9)
	assert.Equal(t, 38.0, *r.Humidity)
	assert.Equal(t, 700.0, *r.AirQuality.CO2)
}

func TestAwair_Failures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		payload string
	}{
		{"http error", http.StatusForbidden, `{"message":"forbidden"}`},
		{"empty data", http.StatusOK, `{"data":[]}`},
		{"missing temperature", http.StatusOK, `{"data":[{"sensors":[{"comp":"humid","value":40}]}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reporter := newRecordingReporter()
			client := newAwair(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.payload))
			}, reporter)

			assert.Nil(t, client.FetchReading(context.Background()))
			assert.NotEmpty(t, reporter.errors[types.APIAwair])
			assert.Empty(t, reporter.successes)
		})
	}
}

func TestAwair_UnconfiguredSkipsSilently(t *testing.T) {
	reporter := newRecordingReporter()
	client := NewAwairClient(newTestBase(), AwairConfig{Reporter: reporter})

	assert.False(t, client.IsConfigured())
	assert.Nil(t, client.FetchReading(context.Background()))
	assert.Empty(t, reporter.errors)
	assert.Empty(t, reporter.successes)
}

// airthingsFixture serves both the token endpoint and the samples endpoint.
func airthingsFixture(t *testing.T, samples http.HandlerFunc) (*AirthingsClient, *recordingReporter) {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"access_token":"at-1","expires_in":10800}`))
	})
	mux.HandleFunc("/v1/devices/2930000001/latest-samples", samples)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	creds := newTestCache(newFakeClock())
	creds.Register(types.APIAirthings, ClientCredentialsGrant(server.URL+"/token", "id", "secret", "read:device:current_values"))

	reporter := newRecordingReporter()
	client := NewAirthingsClient(newTestBase(), creds, AirthingsConfig{
		DeviceID: "2930000001",
		BaseURL:  server.URL + "/v1",
		Reporter: reporter,
		Now:      fixedClock,
	})
	return client, reporter
}

func TestAirthings_FetchReading(t *testing.T) {
	client, reporter := airthingsFixture(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer at-1", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"data":{"temp":21,"humidity":44,"voc":120,"co2":580,"pm25":2,"radonShortTermAvg":35}}`))
	})

	r := client.FetchReading(context.Background())

	require.NotNil(t, r)
	assert.Equal(t, types.SourceAirthings, r.Source)
	assert.InDelta(t, 69.8, *r.Temperature, 1e-9)
	assert.Equal(t, 44.0, *r.Humidity)
	assert.Equal(t, 35.0, *r.AirQuality.Radon)
	assert.Equal(t, 120.0, *r.AirQuality.VOC)
	assert.Equal(t, []string{types.APIAirthings}, reporter.successes)
}

func TestAirthings_MissingTemperature(t *testing.T) {
	client, reporter := airthingsFixture(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"humidity":44}}`))
	})

	assert.Nil(t, client.FetchReading(context.Background()))
	assert.Contains(t, reporter.errors[types.APIAirthings], "no temperature")
}

func TestAirthings_TokenFailureReported(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	creds := newTestCache(newFakeClock())
	creds.Register(types.APIAirthings, ClientCredentialsGrant(server.URL, "id", "bad", ""))
	reporter := newRecordingReporter()
	client := NewAirthingsClient(newTestBase(), creds, AirthingsConfig{
		DeviceID: "x", BaseURL: server.URL, Reporter: reporter,
	})

	assert.Nil(t, client.FetchReading(context.Background()))
	assert.Contains(t, reporter.errors[types.APIAirthings], "auth_token_exchange_failed")
}
