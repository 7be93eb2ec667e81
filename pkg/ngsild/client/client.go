package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"strings"

	"github.com/diwise/ngsild-client/pkg/ngsild"
	ngsierrors "github.com/diwise/ngsild-client/pkg/ngsild/errors"
	"github.com/diwise/ngsild-client/pkg/ngsild/types/entities"
	"github.com/diwise/ngsild-client/pkg/ngsild/urn"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

//go:generate moq -rm -out ../../test/contextbrokerclient_mock.go . ContextBrokerClient

type ContextBrokerClient interface {
	CreateEntity(ctx context.Context, entity *entities.Entity, options ...RequestOption) (*entities.Entity, error)
	RetrieveEntity(ctx context.Context, entityID string, options ...RequestOption) (*entities.Entity, error)
	RetrieveEntityAsMap(ctx context.Context, entityID string, options ...RequestOption) (map[string]any, error)
	UpdateEntity(ctx context.Context, entity *entities.Entity, options ...RequestOption) (*entities.Entity, error)
	UpsertEntity(ctx context.Context, entity *entities.Entity, options ...RequestOption) (*entities.Entity, error)
	DeleteEntity(ctx context.Context, entityID string) (bool, error)
	EntityExists(ctx context.Context, entityID string) (bool, error)
	QueryEntities(ctx context.Context, entityType, query string, options ...RequestOption) (*ngsild.QueryEntitiesResult, error)
	CountEntities(ctx context.Context, entityType, query string, options ...RequestOption) (int64, error)
}

// DefaultNGSITenant is the implicit tenant. No NGSILD-Tenant header is
// sent for it.
const DefaultNGSITenant string = "default"

const (
	entitiesPath      string = "/ngsi-ld/v1/entities"
	jsonLDContextRel  string = "http://www.w3.org/ns/json-ld#context"
	applicationLDJSON string = "application/ld+json"
)

func Debug(enabled string) func(*cbClient) {
	return func(c *cbClient) {
		c.debug = (enabled == "true")
	}
}

func Tenant(tenant string) func(*cbClient) {
	return func(c *cbClient) {
		c.tenant = tenant
	}
}

// Overwrite makes conflicting creates replace the remote entity by
// default, instead of failing with an already exists error.
func Overwrite() func(*cbClient) {
	return func(c *cbClient) {
		c.overwrite = true
	}
}

// IgnoreErrors downgrades broker protocol anomalies, such as a missing
// or mismatched Location header, from errors to warnings.
func IgnoreErrors() func(*cbClient) {
	return func(c *cbClient) {
		c.ignoreErrors = true
	}
}

func NewContextBrokerClient(broker string, options ...func(*cbClient)) ContextBrokerClient {
	c := &cbClient{
		baseURL: broker,
		tenant:  DefaultNGSITenant,
		debug:   false,
	}

	for _, option := range options {
		option(c)
	}

	return c
}

const (
	TraceAttributeEntityID     string = "entity-id"
	TraceAttributeNGSILDTenant string = "ngsild-tenant"
)

var tracer = otel.Tracer("ngsild-client")

type cbClient struct {
	baseURL      string
	tenant       string
	debug        bool
	overwrite    bool
	ignoreErrors bool
}

func (c cbClient) CreateEntity(ctx context.Context, entity *entities.Entity, options ...RequestOption) (*entities.Entity, error) {
	var err error

	ctx, span := tracer.Start(ctx, "create-entity",
		trace.WithAttributes(attribute.String(TraceAttributeNGSILDTenant, c.tenant)),
		trace.WithAttributes(attribute.String(TraceAttributeEntityID, entity.ID())),
	)
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	cfg := newRequestConfig(options...)

	var result *entities.Entity
	result, err = c.createEntity(ctx, entity, cfg, true)
	return result, err
}

// createEntity posts the entity to the broker. Conflict resolution is
// only allowed on the first attempt, so that a replace can never loop.
func (c cbClient) createEntity(ctx context.Context, entity *entities.Entity, cfg *requestConfig, resolveConflicts bool) (*entities.Entity, error) {
	payload, err := entity.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("entity could not be serialized: %s (%w)", err.Error(), ngsierrors.ErrInvalidRequest)
	}

	response, responseBody, err := c.callBroker(
		ctx, http.MethodPost, c.baseURL+entitiesPath, bytes.NewBuffer(payload), cfg,
	)
	if err != nil {
		return nil, err
	}

	contentType := response.Header.Get("Content-Type")

	if response.StatusCode == http.StatusConflict && resolveConflicts {
		if cfg.skipOnConflict {
			return nil, nil
		}

		if cfg.overwriteOnConflict || c.overwrite {
			return c.replaceEntity(ctx, entity, cfg)
		}
	}

	if response.StatusCode >= http.StatusBadRequest {
		return nil, ngsierrors.NewErrorFromProblemReport(response.StatusCode, contentType, responseBody)
	}

	if response.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("unexpected response code %d (%w)", response.StatusCode, ngsierrors.ErrInternal)
	}

	location := response.Header.Get("Location")
	createdID := entityIDFromLocation(location)

	if createdID != entity.ID() {
		log := logging.GetFromContext(ctx)
		log.Warn("broker location header does not match the submitted entity",
			"location", location, "entity-id", entity.ID(),
		)

		if !c.ignoreErrors {
			if location == "" {
				return nil, ngsierrors.NewBadResponseError("broker did not return a location for the created entity")
			}
			return nil, ngsierrors.NewBadResponseError(
				fmt.Sprintf("broker created %s instead of %s", createdID, entity.ID()),
			)
		}

		return nil, nil
	}

	return entity, nil
}

// replaceEntity removes any remote entity with the same id and creates
// the local one in its place.
func (c cbClient) replaceEntity(ctx context.Context, entity *entities.Entity, cfg *requestConfig) (*entities.Entity, error) {
	_, err := c.DeleteEntity(ctx, entity.ID())
	if err != nil && !errors.Is(err, ngsierrors.ErrNotFound) {
		return nil, err
	}

	return c.createEntity(ctx, entity, cfg, false)
}

func (c cbClient) RetrieveEntity(ctx context.Context, entityID string, options ...RequestOption) (*entities.Entity, error) {
	var err error

	entityID = urn.Prefix(entityID)

	ctx, span := tracer.Start(ctx, "retrieve-entity",
		trace.WithAttributes(attribute.String(TraceAttributeNGSILDTenant, c.tenant)),
		trace.WithAttributes(attribute.String(TraceAttributeEntityID, entityID)),
	)
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	cfg := newRequestConfig(options...)
	cfg.contentType = ""

	var responseBody []byte
	responseBody, err = c.retrieveEntityBody(ctx, entityID, cfg)
	if err != nil {
		return nil, err
	}

	var e *entities.Entity
	e, err = entities.NewFromJSON(responseBody)
	return e, err
}

func (c cbClient) RetrieveEntityAsMap(ctx context.Context, entityID string, options ...RequestOption) (map[string]any, error) {
	var err error

	entityID = urn.Prefix(entityID)

	ctx, span := tracer.Start(ctx, "retrieve-entity",
		trace.WithAttributes(attribute.String(TraceAttributeNGSILDTenant, c.tenant)),
		trace.WithAttributes(attribute.String(TraceAttributeEntityID, entityID)),
	)
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	cfg := newRequestConfig(options...)
	cfg.contentType = ""

	var responseBody []byte
	responseBody, err = c.retrieveEntityBody(ctx, entityID, cfg)
	if err != nil {
		return nil, err
	}

	asMap := map[string]any{}
	err = json.Unmarshal(responseBody, &asMap)
	if err != nil {
		return nil, ngsierrors.NewBadResponseError(
			fmt.Sprintf("failed to unmarshal entity %s: %s", entityID, err.Error()),
		)
	}

	return asMap, nil
}

func (c cbClient) retrieveEntityBody(ctx context.Context, entityID string, cfg *requestConfig) ([]byte, error) {
	response, responseBody, err := c.callBroker(
		ctx, http.MethodGet, c.baseURL+entitiesPath+"/"+url.QueryEscape(entityID), nil, cfg,
	)
	if err != nil {
		return nil, err
	}

	if response.StatusCode != http.StatusOK {
		contentType := response.Header.Get("Content-Type")
		if response.StatusCode >= http.StatusBadRequest && response.StatusCode <= http.StatusInternalServerError {
			return nil, ngsierrors.NewErrorFromProblemReport(response.StatusCode, contentType, responseBody)
		}

		return nil, fmt.Errorf("unexpected response code %d (%w)", response.StatusCode, ngsierrors.ErrInternal)
	}

	return responseBody, nil
}

func (c cbClient) UpdateEntity(ctx context.Context, entity *entities.Entity, options ...RequestOption) (*entities.Entity, error) {
	var err error

	ctx, span := tracer.Start(ctx, "update-entity",
		trace.WithAttributes(attribute.String(TraceAttributeNGSILDTenant, c.tenant)),
		trace.WithAttributes(attribute.String(TraceAttributeEntityID, entity.ID())),
	)
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	cfg := newRequestConfig(options...)

	if cfg.checkExists {
		var exists bool
		exists, err = c.EntityExists(ctx, entity.ID())
		if err != nil {
			return nil, err
		}

		if !exists {
			return nil, nil
		}
	}

	var result *entities.Entity
	result, err = c.replaceEntity(ctx, entity, cfg)
	return result, err
}

func (c cbClient) UpsertEntity(ctx context.Context, entity *entities.Entity, options ...RequestOption) (*entities.Entity, error) {
	var err error

	ctx, span := tracer.Start(ctx, "upsert-entity",
		trace.WithAttributes(attribute.String(TraceAttributeNGSILDTenant, c.tenant)),
		trace.WithAttributes(attribute.String(TraceAttributeEntityID, entity.ID())),
	)
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	cfg := newRequestConfig(options...)
	cfg.overwriteOnConflict = true
	cfg.skipOnConflict = false

	var result *entities.Entity
	result, err = c.createEntity(ctx, entity, cfg, true)
	return result, err
}

func (c cbClient) DeleteEntity(ctx context.Context, entityID string) (bool, error) {
	var err error

	entityID = urn.Prefix(entityID)

	ctx, span := tracer.Start(ctx, "delete-entity",
		trace.WithAttributes(attribute.String(TraceAttributeNGSILDTenant, c.tenant)),
		trace.WithAttributes(attribute.String(TraceAttributeEntityID, entityID)),
	)
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	cfg := newRequestConfig()
	cfg.accept = ""
	cfg.contentType = ""

	var response *http.Response
	var responseBody []byte
	response, responseBody, err = c.callBroker(
		ctx, http.MethodDelete, c.baseURL+entitiesPath+"/"+url.QueryEscape(entityID), nil, cfg,
	)
	if err != nil {
		return false, err
	}

	if response.StatusCode != http.StatusNoContent && response.StatusCode != http.StatusOK {
		contentType := response.Header.Get("Content-Type")
		if response.StatusCode >= http.StatusBadRequest && response.StatusCode <= http.StatusInternalServerError {
			err = ngsierrors.NewErrorFromProblemReport(response.StatusCode, contentType, responseBody)
			return false, err
		}

		err = fmt.Errorf("unexpected response code %d (%w)", response.StatusCode, ngsierrors.ErrInternal)
		return false, err
	}

	return true, nil
}

// EntityExists probes the broker for an entity with the given id. A
// response that fails to parse, or parses but carries no @context, is
// treated as nonexistence rather than an error.
func (c cbClient) EntityExists(ctx context.Context, entityID string) (bool, error) {
	var err error

	entityID = urn.Prefix(entityID)

	ctx, span := tracer.Start(ctx, "entity-exists",
		trace.WithAttributes(attribute.String(TraceAttributeNGSILDTenant, c.tenant)),
		trace.WithAttributes(attribute.String(TraceAttributeEntityID, entityID)),
	)
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	cfg := newRequestConfig()
	cfg.contentType = ""

	var response *http.Response
	var responseBody []byte
	response, responseBody, err = c.callBroker(
		ctx, http.MethodGet, c.baseURL+entitiesPath+"/"+url.QueryEscape(entityID), nil, cfg,
	)
	if err != nil {
		return false, err
	}

	if response.StatusCode != http.StatusOK {
		return false, nil
	}

	payload := map[string]any{}
	if json.Unmarshal(responseBody, &payload) != nil {
		return false, nil
	}

	_, hasContext := payload["@context"]
	return hasContext, nil
}

func (c cbClient) QueryEntities(ctx context.Context, entityType, query string, options ...RequestOption) (*ngsild.QueryEntitiesResult, error) {
	var err error

	ctx, span := tracer.Start(ctx, "query-entities",
		trace.WithAttributes(attribute.String(TraceAttributeNGSILDTenant, c.tenant)),
	)
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	cfg := newRequestConfig(options...)
	cfg.contentType = ""

	var params []string
	params, err = queryParams(entityType, query, cfg)
	if err != nil {
		return nil, err
	}

	var response *http.Response
	var responseBody []byte
	response, responseBody, err = c.callBroker(
		ctx, http.MethodGet, c.baseURL+entitiesPath+"?"+strings.Join(params, "&"), nil, cfg,
	)
	if err != nil {
		return nil, err
	}

	if response.StatusCode != http.StatusOK {
		contentType := response.Header.Get("Content-Type")
		if response.StatusCode >= http.StatusBadRequest && response.StatusCode <= http.StatusInternalServerError {
			err = ngsierrors.NewErrorFromProblemReport(response.StatusCode, contentType, responseBody)
			return nil, err
		}

		err = fmt.Errorf("unexpected response code %d (%w)", response.StatusCode, ngsierrors.ErrInternal)
		return nil, err
	}

	var found []*entities.Entity
	found, err = entities.NewFromSlice(responseBody)
	if err != nil {
		if c.debug && len(responseBody) < 1000 {
			err = fmt.Errorf("unmarshaling of %s failed with err %s", string(responseBody), err.Error())
		}

		return nil, err
	}

	qer := ngsild.NewQueryEntitiesResult()

	if totalCount, ok := extractNGSILDResultsCount(response); ok {
		qer.TotalCount = totalCount
	}

	go func() {
		for idx := range found {
			qer.Found <- found[idx]
		}
		qer.Found <- nil
	}()
	return qer, nil
}

func (c cbClient) CountEntities(ctx context.Context, entityType, query string, options ...RequestOption) (int64, error) {
	var err error

	ctx, span := tracer.Start(ctx, "count-entities",
		trace.WithAttributes(attribute.String(TraceAttributeNGSILDTenant, c.tenant)),
	)
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	cfg := newRequestConfig(options...)
	cfg.accept = "application/json"
	cfg.contentType = ""

	var params []string
	params, err = queryParams(entityType, query, cfg)
	if err != nil {
		return 0, err
	}

	params = append(params, "limit=0", "count=true")

	var response *http.Response
	var responseBody []byte
	response, responseBody, err = c.callBroker(
		ctx, http.MethodGet, c.baseURL+entitiesPath+"?"+strings.Join(params, "&"), nil, cfg,
	)
	if err != nil {
		return 0, err
	}

	if response.StatusCode != http.StatusOK {
		contentType := response.Header.Get("Content-Type")
		if response.StatusCode >= http.StatusBadRequest && response.StatusCode <= http.StatusInternalServerError {
			err = ngsierrors.NewErrorFromProblemReport(response.StatusCode, contentType, responseBody)
			return 0, err
		}

		err = fmt.Errorf("unexpected response code %d (%w)", response.StatusCode, ngsierrors.ErrInternal)
		return 0, err
	}

	count, ok := extractNGSILDResultsCount(response)
	if !ok {
		err = ngsierrors.NewBadResponseError("broker did not return a valid NGSILD-Results-Count header")
		return 0, err
	}

	return count, nil
}

func queryParams(entityType, query string, cfg *requestConfig) ([]string, error) {
	if entityType == "" && query == "" {
		return nil, ngsierrors.NewInvalidRequestError("entity queries must constrain on a type or a query string")
	}

	params := make([]string, 0, len(cfg.params)+2)
	if entityType != "" {
		params = append(params, "type="+url.QueryEscape(entityType))
	}
	if query != "" {
		params = append(params, "q="+url.QueryEscape(query))
	}

	return append(params, cfg.params...), nil
}

func (c cbClient) callBroker(ctx context.Context, method, endpoint string, body io.Reader, cfg *requestConfig) (*http.Response, []byte, error) {
	httpClient := http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %s (%w)", err.Error(), ngsierrors.ErrInternal)
	}

	if c.tenant != DefaultNGSITenant {
		req.Header.Add("NGSILD-Tenant", c.tenant)
	}

	if cfg.accept != "" {
		req.Header.Add("Accept", cfg.accept)
	}

	if cfg.contentType != "" {
		req.Header.Add("Content-Type", cfg.contentType)
	}

	if cfg.contextLink != "" {
		req.Header.Add("Link",
			fmt.Sprintf(`<%s>; rel="%s"; type="application/ld+json"`, cfg.contextLink, jsonLDContextRel),
		)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to send request: %s (%w)", err.Error(), ngsierrors.ErrRequest)
	}

	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read response body: %s (%w)", err.Error(), ngsierrors.ErrBadResponse)
	}

	if c.debug {
		if resp.StatusCode == http.StatusPartialContent || resp.StatusCode >= http.StatusBadRequest {
			if resp.StatusCode != http.StatusUnauthorized && resp.StatusCode != http.StatusNotFound {
				reqbytes, _ := httputil.DumpRequest(req, false)
				respbytes, _ := httputil.DumpResponse(resp, false)

				log := logging.GetFromContext(ctx)
				if resp.StatusCode >= http.StatusBadRequest {
					log.Error("request failed", "request", string(reqbytes), "response", string(respbytes))
				} else {
					log.Warn("unexpected response", "request", string(reqbytes), "response", string(respbytes))
				}
			}
		}
	}

	return resp, respBody, nil
}

// entityIDFromLocation pulls the trailing path segment from a Location
// header and unescapes it.
func entityIDFromLocation(location string) string {
	if location == "" {
		return ""
	}

	segment := location[strings.LastIndex(location, "/")+1:]
	if unescaped, err := url.QueryUnescape(segment); err == nil {
		return unescaped
	}

	return segment
}

func extractNGSILDResultsCount(r *http.Response) (int64, bool) {
	val, ok := r.Header[http.CanonicalHeaderKey("NGSILD-Results-Count")]
	if !ok || len(val) == 0 {
		return -1, false
	}

	count, err := strconv.ParseInt(val[0], 10, 64)
	if err != nil {
		return -1, false
	}

	return count, true
}
