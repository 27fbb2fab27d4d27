package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crosswalk-io/crosswalk/internal/api"
	"github.com/crosswalk-io/crosswalk/internal/dispatch"
	"github.com/crosswalk-io/crosswalk/internal/mapping"
	"github.com/crosswalk-io/crosswalk/internal/store"
	"github.com/crosswalk-io/crosswalk/pkg/models"
)

type fakeMappingService struct {
	lastRequest mapping.Request
	acceptErr   error
	job         *models.Job
}

func (f *fakeMappingService) Accept(_ context.Context, req mapping.Request) (*mapping.Accepted, error) {
	f.lastRequest = req
	if f.acceptErr != nil {
		return nil, f.acceptErr
	}
	return &mapping.Accepted{
		MappingID:          "test-id",
		Status:             "ACCEPTED",
		StatusURL:          "/api/v1/mappings/test-id",
		ControlKey:         req.ControlKey,
		TargetFrameworkKey: req.TargetFrameworkKey,
	}, nil
}

func (f *fakeMappingService) Status(_ context.Context, mappingID string) (*models.Job, error) {
	if mappingID == "" {
		return nil, &mapping.ValidationError{Field: "mappingId", Message: "must not be empty"}
	}
	if f.job == nil || f.job.JobID != mappingID {
		return nil, store.ErrNotFound
	}
	return f.job, nil
}

type fakeRedriver struct {
	result *dispatch.RedriveResult
	err    error
	got    dispatch.RedriveRequest
}

func (f *fakeRedriver) Run(_ context.Context, req dispatch.RedriveRequest) (*dispatch.RedriveResult, error) {
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func newTestRouter(svc MappingService, redriver Redriver) http.Handler {
	return api.NewRouter(api.Dependencies{
		CreateMappingHandler: NewCreateMappingHandler(svc),
		StatusHandler:        NewStatusHandler(svc),
		RedriveHandler:       NewRedriveHandler(redriver),
	})
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCreateMapping_Accepted(t *testing.T) {
	svc := &fakeMappingService{}
	h := newTestRouter(svc, &fakeRedriver{})

	rec := doJSON(t, h, http.MethodPost, "/api/v1/mappings",
		`{"control_key":"AWS.ControlCatalog#1.0#API_GW_CACHE_ENABLED","target_framework_key":"NIST-SP-800-53#R5"}`)

	require.Equal(t, http.StatusAccepted, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "test-id", body["mappingId"])
	assert.Equal(t, "ACCEPTED", body["status"])
	assert.Equal(t, "/api/v1/mappings/test-id", body["statusUrl"])
	assert.Equal(t, "AWS.ControlCatalog#1.0#API_GW_CACHE_ENABLED", body["controlKey"])
	assert.Equal(t, "NIST-SP-800-53#R5", body["targetFrameworkKey"])
}

func TestCreateMapping_LegacyAliases(t *testing.T) {
	svc := &fakeMappingService{}
	h := newTestRouter(svc, &fakeRedriver{})

	rec := doJSON(t, h, http.MethodPost, "/api/v1/mappings",
		`{"controlKey":"A#1#X","targetFrameworkKey":"B#2","targetControlIds":["SC-8"]}`)

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "A#1#X", svc.lastRequest.ControlKey)
	assert.Equal(t, "B#2", svc.lastRequest.TargetFrameworkKey)
	assert.Equal(t, []string{"SC-8"}, svc.lastRequest.TargetControlIDs)
}

func TestCreateMapping_ValidationError(t *testing.T) {
	svc := &fakeMappingService{
		acceptErr: &mapping.ValidationError{Field: "control_key", Message: "must match <framework>#<version>#<control-id>"},
	}
	h := newTestRouter(svc, &fakeRedriver{})

	rec := doJSON(t, h, http.MethodPost, "/api/v1/mappings", `{"control_key":"bad"}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body struct {
		Error struct {
			Code  string `json:"code"`
			Field string `json:"field"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "INVALID_REQUEST", body.Error.Code)
	assert.Equal(t, "control_key", body.Error.Field)
}

func TestCreateMapping_UnknownControl(t *testing.T) {
	svc := &fakeMappingService{
		acceptErr: &mapping.NotFoundError{
			Resource:   "control",
			Key:        "A#1#BOGUS",
			Suggestion: "Framework 'A#1' exists.",
		},
	}
	h := newTestRouter(svc, &fakeRedriver{})

	rec := doJSON(t, h, http.MethodPost, "/api/v1/mappings",
		`{"control_key":"A#1#BOGUS","target_framework_key":"B#2"}`)

	require.Equal(t, http.StatusNotFound, rec.Code)
	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "CONTROL_NOT_FOUND", body.Error.Code)
	assert.Contains(t, body.Error.Message, "Framework 'A#1' exists.")
}

func TestCreateMapping_BadJSON(t *testing.T) {
	h := newTestRouter(&fakeMappingService{}, &fakeRedriver{})
	rec := doJSON(t, h, http.MethodPost, "/api/v1/mappings", `{nope`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatus_Completed(t *testing.T) {
	done := time.Date(2026, 8, 1, 10, 30, 45, 0, time.UTC)
	svc := &fakeMappingService{job: &models.Job{
		JobID:              "known",
		Status:             models.JobStatusCompleted,
		ControlKey:         "A#1#X",
		TargetFrameworkKey: "B#2",
		Mappings: []models.MappingCandidate{
			{TargetControlKey: "B#2#SC-8", RerankScore: 0.9, Reasoning: "overlap"},
		},
		CompletedAt: &done,
	}}
	h := newTestRouter(svc, &fakeRedriver{})

	rec := doJSON(t, h, http.MethodGet, "/api/v1/mappings/known", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "known", body["mappingId"])
	assert.Equal(t, "COMPLETED", body["status"])
	result, ok := body["result"].(map[string]any)
	require.True(t, ok)
	assert.Len(t, result["mappings"], 1)
}

func TestStatus_NotFound(t *testing.T) {
	h := newTestRouter(&fakeMappingService{}, &fakeRedriver{})
	rec := doJSON(t, h, http.MethodGet, "/api/v1/mappings/unknown", "")

	require.Equal(t, http.StatusNotFound, rec.Code)
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "MAPPING_NOT_FOUND", body.Error.Code)
}

func TestRedrive_DryRun(t *testing.T) {
	rd := &fakeRedriver{result: &dispatch.RedriveResult{
		StatusCode:      200,
		Message:         "dry run: 4 message(s) in the dead-letter queue",
		DLQMessageCount: 4,
		DryRun:          true,
	}}
	h := newTestRouter(&fakeMappingService{}, rd)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/admin/redrive", `{"dry_run":true,"max_messages":10}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, rd.got.DryRun, "dry_run in the request body must be honored")
	assert.Equal(t, 10, rd.got.MaxMessages)
	var body dispatch.RedriveResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 4, body.DLQMessageCount)
	assert.Equal(t, 200, body.StatusCode)
	assert.Contains(t, rec.Body.String(), `"statusCode"`)
	assert.Contains(t, rec.Body.String(), `"dlq_message_count"`)
}

func TestRedrive_PartialFailureStatus(t *testing.T) {
	rd := &fakeRedriver{result: &dispatch.RedriveResult{
		StatusCode:       207,
		MessagesRedriven: 2,
		Errors:           []string{"resend msg-3: throttled"},
	}}
	h := newTestRouter(&fakeMappingService{}, rd)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/admin/redrive", `{}`)
	assert.Equal(t, http.StatusMultiStatus, rec.Code)
}

func TestRedrive_EmptyBodyAllowed(t *testing.T) {
	rd := &fakeRedriver{result: &dispatch.RedriveResult{StatusCode: 200}}
	h := newTestRouter(&fakeMappingService{}, rd)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/admin/redrive", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, rd.got.DryRun)
}

func TestRedrive_NoDLQConfigured(t *testing.T) {
	rd := &fakeRedriver{err: errors.New("no dead-letter queue configured")}
	h := newTestRouter(&fakeMappingService{}, rd)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/admin/redrive", `{}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func TestHealth(t *testing.T) {
	h := api.NewRouter(api.Dependencies{
		HealthHandler: NewHealthHandler(map[string]Pinger{
			"dynamodb": fakePinger{},
			"redis":    fakePinger{},
		}),
	})
	rec := doJSON(t, h, http.MethodGet, "/api/v1/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	h = api.NewRouter(api.Dependencies{
		HealthHandler: NewHealthHandler(map[string]Pinger{
			"dynamodb": fakePinger{},
			"redis":    fakePinger{err: errors.New("connection refused")},
		}),
	})
	rec = doJSON(t, h, http.MethodGet, "/api/v1/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "degraded")
}
