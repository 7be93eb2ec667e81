package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	ngsierrors "github.com/diwise/ngsild-client/pkg/ngsild/errors"
	"github.com/diwise/ngsild-client/pkg/ngsild/types/entities"
	testutils "github.com/diwise/service-chassis/pkg/test/http"
	"github.com/diwise/service-chassis/pkg/test/http/expects"
	"github.com/diwise/service-chassis/pkg/test/http/response"

	"github.com/matryer/is"
)

var Expects = testutils.Expects
var Returns = testutils.Returns
var anyInput = expects.AnyInput
var method = expects.RequestMethod
var path = expects.RequestPath
var body = expects.RequestBody

const roomJSON string = `{"id":"urn:ngsi-ld:Room:R1","type":"Room","temperature":{"type":"Property","value":21.2},"@context":["https://schema.lab.fiware.org/ld/context","https://uri.etsi.org/ngsi-ld/v1/ngsi-ld-core-context.jsonld"]}`

func TestCreateEntity(t *testing.T) {
	is := is.New(t)

	s := testutils.NewMockServiceThat(
		Expects(
			is,
			method(http.MethodPost),
			path("/ngsi-ld/v1/entities"),
			body(`{"id":"urn:ngsi-ld:Room:R1","type":"Room","@context":["https://schema.lab.fiware.org/ld/context","https://uri.etsi.org/ngsi-ld/v1/ngsi-ld-core-context.jsonld"]}`),
		),
		Returns(
			response.ContentType("application/ld+json"),
			response.Location("/ngsi-ld/v1/entities/urn:ngsi-ld:Room:R1"),
			response.Code(http.StatusCreated),
		),
	)
	defer s.Close()

	c := NewContextBrokerClient(s.URL())

	result, err := c.CreateEntity(context.Background(), testEntity("Room", "Room:R1"))

	is.NoErr(err)
	is.Equal(result.ID(), "urn:ngsi-ld:Room:R1")
}

func TestCreateEntityFailsOnMissingLocationHeader(t *testing.T) {
	is := is.New(t)

	s := testutils.NewMockServiceThat(
		Expects(is, anyInput()),
		Returns(
			response.ContentType("application/ld+json"),
			response.Code(http.StatusCreated),
		),
	)
	defer s.Close()

	c := NewContextBrokerClient(s.URL())

	_, err := c.CreateEntity(context.Background(), testEntity("Room", "Room:R1"))

	is.True(err != nil)
	is.True(errors.Is(err, ngsierrors.ErrBadResponse))
}

func TestCreateEntityFailsOnMismatchedLocationHeader(t *testing.T) {
	is := is.New(t)

	s := testutils.NewMockServiceThat(
		Expects(is, anyInput()),
		Returns(
			response.ContentType("application/ld+json"),
			response.Location("/ngsi-ld/v1/entities/urn:ngsi-ld:Room:R2"),
			response.Code(http.StatusCreated),
		),
	)
	defer s.Close()

	c := NewContextBrokerClient(s.URL())

	_, err := c.CreateEntity(context.Background(), testEntity("Room", "Room:R1"))

	is.True(err != nil)
	is.True(errors.Is(err, ngsierrors.ErrBadResponse))
}

func TestCreateEntityIgnoresLocationAnomaliesWhenAsked(t *testing.T) {
	is := is.New(t)

	s := testutils.NewMockServiceThat(
		Expects(is, anyInput()),
		Returns(
			response.ContentType("application/ld+json"),
			response.Code(http.StatusCreated),
		),
	)
	defer s.Close()

	c := NewContextBrokerClient(s.URL(), IgnoreErrors())

	result, err := c.CreateEntity(context.Background(), testEntity("Room", "Room:R1"))

	is.NoErr(err)
	is.True(result == nil)
}

func TestCreateEntityThrowsErrorOnNon201Success(t *testing.T) {
	is := is.New(t)

	s := testutils.NewMockServiceThat(
		Expects(is, anyInput()),
		Returns(response.Code(http.StatusNoContent)),
	)
	defer s.Close()

	c := NewContextBrokerClient(s.URL())

	_, err := c.CreateEntity(context.Background(), testEntity("Room", "Room:R1"))

	is.True(err != nil)
	is.Equal(err.Error(), "unexpected response code 204 (internal error)")
}

func TestCreateEntityConflictReturnsAlreadyExists(t *testing.T) {
	is := is.New(t)

	pr := ngsierrors.NewAlreadyExists("already exists", "traceID")
	b, _ := json.Marshal(pr)

	s := testutils.NewMockServiceThat(
		Expects(is, anyInput()),
		Returns(
			response.ContentType("application/problem+json"),
			response.Code(http.StatusConflict),
			response.Body(b),
		),
	)
	defer s.Close()

	c := NewContextBrokerClient(s.URL())

	_, err := c.CreateEntity(context.Background(), testEntity("Room", "Room:R1"))

	is.True(err != nil)
	is.True(errors.Is(err, ngsierrors.ErrAlreadyExists))
}

func TestCreateEntityConflictWithEmptyBodyReturnsAlreadyExists(t *testing.T) {
	is := is.New(t)

	s := testutils.NewMockServiceThat(
		Expects(is, anyInput()),
		Returns(response.Code(http.StatusConflict)),
	)
	defer s.Close()

	c := NewContextBrokerClient(s.URL())

	_, err := c.CreateEntity(context.Background(), testEntity("Room", "Room:R1"))

	is.True(err != nil)
	is.True(errors.Is(err, ngsierrors.ErrAlreadyExists))
}

func TestCreateEntitySkipsOnConflictWhenAsked(t *testing.T) {
	is := is.New(t)

	s := testutils.NewMockServiceThat(
		Expects(is, anyInput()),
		Returns(response.Code(http.StatusConflict)),
	)
	defer s.Close()

	c := NewContextBrokerClient(s.URL())

	result, err := c.CreateEntity(context.Background(), testEntity("Room", "Room:R1"), SkipOnConflict())

	is.NoErr(err)
	is.True(result == nil)
	is.Equal(s.RequestCount(), 1)
}

func TestCreateEntityOverwritesOnConflictWhenAsked(t *testing.T) {
	is := is.New(t)

	s := newSequencedBroker(t, brokerCall{
		method: http.MethodPost, path: "/ngsi-ld/v1/entities", status: http.StatusConflict,
	}, brokerCall{
		method: http.MethodDelete, path: "/ngsi-ld/v1/entities/urn:ngsi-ld:Room:R1", status: http.StatusNoContent,
	}, brokerCall{
		method: http.MethodPost, path: "/ngsi-ld/v1/entities", status: http.StatusCreated,
		location: "/ngsi-ld/v1/entities/urn:ngsi-ld:Room:R1",
	})
	defer s.Close()

	c := NewContextBrokerClient(s.URL)

	result, err := c.CreateEntity(context.Background(), testEntity("Room", "Room:R1"), OverwriteOnConflict())

	is.NoErr(err)
	is.Equal(result.ID(), "urn:ngsi-ld:Room:R1")
	is.Equal(s.calls, 3)
}

func TestUpsertEntityMakesASingleCallWhenEntityIsNew(t *testing.T) {
	is := is.New(t)

	s := testutils.NewMockServiceThat(
		Expects(is, method(http.MethodPost), path("/ngsi-ld/v1/entities")),
		Returns(
			response.Location("/ngsi-ld/v1/entities/urn:ngsi-ld:Room:R1"),
			response.Code(http.StatusCreated),
		),
	)
	defer s.Close()

	c := NewContextBrokerClient(s.URL())

	result, err := c.UpsertEntity(context.Background(), testEntity("Room", "Room:R1"))

	is.NoErr(err)
	is.Equal(result.ID(), "urn:ngsi-ld:Room:R1")
	is.Equal(s.RequestCount(), 1)
}

func TestUpsertEntityReplacesConflictingEntity(t *testing.T) {
	is := is.New(t)

	s := newSequencedBroker(t, brokerCall{
		method: http.MethodPost, path: "/ngsi-ld/v1/entities", status: http.StatusConflict,
	}, brokerCall{
		method: http.MethodDelete, path: "/ngsi-ld/v1/entities/urn:ngsi-ld:Room:R1", status: http.StatusNoContent,
	}, brokerCall{
		method: http.MethodPost, path: "/ngsi-ld/v1/entities", status: http.StatusCreated,
		location: "/ngsi-ld/v1/entities/urn:ngsi-ld:Room:R1",
	})
	defer s.Close()

	c := NewContextBrokerClient(s.URL)

	result, err := c.UpsertEntity(context.Background(), testEntity("Room", "Room:R1"))

	is.NoErr(err)
	is.Equal(result.ID(), "urn:ngsi-ld:Room:R1")
	is.Equal(s.calls, 3)
}

func TestUpsertEntityDoesNotRetryMoreThanOnce(t *testing.T) {
	is := is.New(t)

	s := newSequencedBroker(t, brokerCall{
		method: http.MethodPost, path: "/ngsi-ld/v1/entities", status: http.StatusConflict,
	}, brokerCall{
		method: http.MethodDelete, path: "/ngsi-ld/v1/entities/urn:ngsi-ld:Room:R1", status: http.StatusNoContent,
	}, brokerCall{
		method: http.MethodPost, path: "/ngsi-ld/v1/entities", status: http.StatusConflict,
	})
	defer s.Close()

	c := NewContextBrokerClient(s.URL)

	_, err := c.UpsertEntity(context.Background(), testEntity("Room", "Room:R1"))

	is.True(err != nil)
	is.True(errors.Is(err, ngsierrors.ErrAlreadyExists))
	is.Equal(s.calls, 3)
}

func TestRetrieveEntity(t *testing.T) {
	is := is.New(t)

	s := testutils.NewMockServiceThat(
		Expects(
			is,
			method(http.MethodGet),
			path("/ngsi-ld/v1/entities/urn:ngsi-ld:Room:R1"),
		),
		Returns(
			response.ContentType("application/ld+json"),
			response.Code(http.StatusOK),
			response.Body([]byte(roomJSON)),
		),
	)
	defer s.Close()

	c := NewContextBrokerClient(s.URL())

	e, err := c.RetrieveEntity(context.Background(), "Room:R1")

	is.NoErr(err)
	is.Equal(e.ID(), "urn:ngsi-ld:Room:R1")
	is.Equal(e.Type(), "Room")
}

func TestRetrieveEntitySendsLinkHeaderForContextOverride(t *testing.T) {
	is := is.New(t)

	s := testutils.NewMockServiceThat(
		Expects(
			is,
			HeaderEquals("Link", `<https://example.org/ctx.jsonld>; rel="http://www.w3.org/ns/json-ld#context"; type="application/ld+json"`),
			HeaderEquals("Accept", "application/ld+json"),
		),
		Returns(
			response.ContentType("application/ld+json"),
			response.Code(http.StatusOK),
			response.Body([]byte(roomJSON)),
		),
	)
	defer s.Close()

	c := NewContextBrokerClient(s.URL())

	_, err := c.RetrieveEntity(context.Background(), "urn:ngsi-ld:Room:R1", ContextLink("https://example.org/ctx.jsonld"))

	is.NoErr(err)
}

func TestRetrieveEntityNotFound(t *testing.T) {
	is := is.New(t)

	pr := ngsierrors.NewNotFound("not found", "traceID")
	b, _ := json.Marshal(pr)

	s := testutils.NewMockServiceThat(
		Expects(is, anyInput()),
		Returns(
			response.ContentType("application/problem+json"),
			response.Code(http.StatusNotFound),
			response.Body(b),
		),
	)
	defer s.Close()

	c := NewContextBrokerClient(s.URL())

	_, err := c.RetrieveEntity(context.Background(), "urn:ngsi-ld:Room:R1")

	is.True(err != nil)
	is.True(errors.Is(err, ngsierrors.ErrNotFound))
}

func TestRetrieveEntityAsMap(t *testing.T) {
	is := is.New(t)

	s := testutils.NewMockServiceThat(
		Expects(is, anyInput()),
		Returns(
			response.ContentType("application/ld+json"),
			response.Code(http.StatusOK),
			response.Body([]byte(roomJSON)),
		),
	)
	defer s.Close()

	c := NewContextBrokerClient(s.URL())

	e, err := c.RetrieveEntityAsMap(context.Background(), "urn:ngsi-ld:Room:R1")

	is.NoErr(err)
	is.Equal(e["id"], "urn:ngsi-ld:Room:R1")
	is.Equal(e["type"], "Room")
}

func TestDeleteEntity(t *testing.T) {
	is := is.New(t)

	s := testutils.NewMockServiceThat(
		Expects(
			is,
			method(http.MethodDelete),
			path("/ngsi-ld/v1/entities/urn:ngsi-ld:Room:R1"),
			body(""),
		),
		Returns(response.Code(http.StatusNoContent)),
	)
	defer s.Close()

	c := NewContextBrokerClient(s.URL())

	confirmed, err := c.DeleteEntity(context.Background(), "Room:R1")

	is.NoErr(err)
	is.True(confirmed)
	is.Equal(s.RequestCount(), 1)
}

func TestDeleteEntityNotFound(t *testing.T) {
	is := is.New(t)

	pr := ngsierrors.NewNotFound("not found", "traceID")
	b, _ := json.Marshal(pr)

	s := testutils.NewMockServiceThat(
		Expects(is, anyInput()),
		Returns(
			response.ContentType("application/problem+json"),
			response.Code(http.StatusNotFound),
			response.Body(b),
		),
	)
	defer s.Close()

	c := NewContextBrokerClient(s.URL())

	confirmed, err := c.DeleteEntity(context.Background(), "urn:ngsi-ld:Room:R1")

	is.True(!confirmed)
	is.True(errors.Is(err, ngsierrors.ErrNotFound))
}

func TestEntityExists(t *testing.T) {
	is := is.New(t)

	s := testutils.NewMockServiceThat(
		Expects(is, anyInput()),
		Returns(
			response.ContentType("application/ld+json"),
			response.Code(http.StatusOK),
			response.Body([]byte(roomJSON)),
		),
	)
	defer s.Close()

	c := NewContextBrokerClient(s.URL())

	exists, err := c.EntityExists(context.Background(), "urn:ngsi-ld:Room:R1")

	is.NoErr(err)
	is.True(exists)
}

func TestEntityExistsIsFalseOnNotFound(t *testing.T) {
	is := is.New(t)

	s := testutils.NewMockServiceThat(
		Expects(is, anyInput()),
		Returns(response.Code(http.StatusNotFound)),
	)
	defer s.Close()

	c := NewContextBrokerClient(s.URL())

	exists, err := c.EntityExists(context.Background(), "urn:ngsi-ld:Room:R1")

	is.NoErr(err)
	is.True(!exists)
}

func TestEntityExistsIsFalseWithoutContextInResponse(t *testing.T) {
	is := is.New(t)

	s := testutils.NewMockServiceThat(
		Expects(is, anyInput()),
		Returns(
			response.ContentType("application/json"),
			response.Code(http.StatusOK),
			response.Body([]byte(`{"id":"urn:ngsi-ld:Room:R1","type":"Room"}`)),
		),
	)
	defer s.Close()

	c := NewContextBrokerClient(s.URL())

	exists, err := c.EntityExists(context.Background(), "urn:ngsi-ld:Room:R1")

	is.NoErr(err)
	is.True(!exists)
}

func TestUpdateEntityIsANoOpWhenEntityIsAbsent(t *testing.T) {
	is := is.New(t)

	s := testutils.NewMockServiceThat(
		Expects(is, method(http.MethodGet)),
		Returns(response.Code(http.StatusNotFound)),
	)
	defer s.Close()

	c := NewContextBrokerClient(s.URL())

	result, err := c.UpdateEntity(context.Background(), testEntity("Room", "Room:R1"))

	is.NoErr(err)
	is.True(result == nil)
	is.Equal(s.RequestCount(), 1)
}

func TestUpdateEntityReplacesWhenEntityIsPresent(t *testing.T) {
	is := is.New(t)

	s := newSequencedBroker(t, brokerCall{
		method: http.MethodGet, path: "/ngsi-ld/v1/entities/urn:ngsi-ld:Room:R1",
		status: http.StatusOK, body: roomJSON,
	}, brokerCall{
		method: http.MethodDelete, path: "/ngsi-ld/v1/entities/urn:ngsi-ld:Room:R1", status: http.StatusNoContent,
	}, brokerCall{
		method: http.MethodPost, path: "/ngsi-ld/v1/entities", status: http.StatusCreated,
		location: "/ngsi-ld/v1/entities/urn:ngsi-ld:Room:R1",
	})
	defer s.Close()

	c := NewContextBrokerClient(s.URL)

	result, err := c.UpdateEntity(context.Background(), testEntity("Room", "Room:R1"))

	is.NoErr(err)
	is.Equal(result.ID(), "urn:ngsi-ld:Room:R1")
	is.Equal(s.calls, 3)
}

func TestUpdateEntityWithoutExistenceCheckSkipsTheProbe(t *testing.T) {
	is := is.New(t)

	s := newSequencedBroker(t, brokerCall{
		method: http.MethodDelete, path: "/ngsi-ld/v1/entities/urn:ngsi-ld:Room:R1", status: http.StatusNoContent,
	}, brokerCall{
		method: http.MethodPost, path: "/ngsi-ld/v1/entities", status: http.StatusCreated,
		location: "/ngsi-ld/v1/entities/urn:ngsi-ld:Room:R1",
	})
	defer s.Close()

	c := NewContextBrokerClient(s.URL)

	result, err := c.UpdateEntity(context.Background(), testEntity("Room", "Room:R1"), WithoutExistenceCheck())

	is.NoErr(err)
	is.Equal(result.ID(), "urn:ngsi-ld:Room:R1")
	is.Equal(s.calls, 2)
}

func TestQueryEntities(t *testing.T) {
	is := is.New(t)

	s := testutils.NewMockServiceThat(
		Expects(
			is,
			method(http.MethodGet),
			QueryParamEquals("type", "Room"),
			QueryParamEquals("q", "temperature>20"),
		),
		Returns(
			response.ContentType("application/ld+json"),
			response.Code(http.StatusOK),
			response.Body([]byte("["+roomJSON+"]")),
		),
	)
	defer s.Close()

	c := NewContextBrokerClient(s.URL())

	result, err := c.QueryEntities(context.Background(), "Room", "temperature>20")
	is.NoErr(err)

	count := 0
	for e := range result.Found {
		if e == nil {
			break
		}
		is.Equal(e.Type(), "Room")
		count++
	}

	is.Equal(count, 1)
}

func TestQueryEntitiesRequiresAConstraint(t *testing.T) {
	is := is.New(t)

	c := NewContextBrokerClient("http://hostdoesnotexist:1234")

	_, err := c.QueryEntities(context.Background(), "", "")

	is.True(err != nil)
	is.True(errors.Is(err, ngsierrors.ErrInvalidRequest))
}

func TestCountEntities(t *testing.T) {
	is := is.New(t)

	s := newSequencedBroker(t, brokerCall{
		method: http.MethodGet, path: "/ngsi-ld/v1/entities", status: http.StatusOK,
		body: "[]", headers: map[string]string{"NGSILD-Results-Count": "42"},
	})
	defer s.Close()

	c := NewContextBrokerClient(s.URL)

	count, err := c.CountEntities(context.Background(), "Room", "")

	is.NoErr(err)
	is.Equal(count, int64(42))
	is.Equal(s.requests[0].URL.Query().Get("limit"), "0")
	is.Equal(s.requests[0].URL.Query().Get("count"), "true")
}

func TestCountEntitiesFailsWithoutResultsCountHeader(t *testing.T) {
	is := is.New(t)

	s := testutils.NewMockServiceThat(
		Expects(is, anyInput()),
		Returns(
			response.ContentType("application/json"),
			response.Code(http.StatusOK),
			response.Body([]byte("[]")),
		),
	)
	defer s.Close()

	c := NewContextBrokerClient(s.URL())

	_, err := c.CountEntities(context.Background(), "Room", "")

	is.True(err != nil)
	is.True(errors.Is(err, ngsierrors.ErrBadResponse))
}

func TestTenantHeaderIsSentForNonDefaultTenants(t *testing.T) {
	is := is.New(t)

	s := testutils.NewMockServiceThat(
		Expects(is, HeaderEquals("NGSILD-Tenant", "smartcity")),
		Returns(response.Code(http.StatusNotFound)),
	)
	defer s.Close()

	c := NewContextBrokerClient(s.URL(), Tenant("smartcity"))

	_, err := c.EntityExists(context.Background(), "urn:ngsi-ld:Room:R1")
	is.NoErr(err)
}

func testEntity(entityType, entityID string) *entities.Entity {
	e, _ := entities.New(entityID, entityType)
	return e
}

type brokerCall struct {
	method   string
	path     string
	status   int
	location string
	body     string
	headers  map[string]string
}

type sequencedBroker struct {
	*httptest.Server
	URL      string
	calls    int
	requests []*http.Request
}

// newSequencedBroker serves a fixed sequence of canned responses and
// records the requests it saw, so that multi call protocols like upsert
// can be asserted step by step.
func newSequencedBroker(t *testing.T, sequence ...brokerCall) *sequencedBroker {
	b := &sequencedBroker{}

	b.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if b.calls >= len(sequence) {
			t.Errorf("unexpected extra request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		call := sequence[b.calls]
		b.calls++
		b.requests = append(b.requests, r.Clone(context.Background()))

		if r.Method != call.method || r.URL.Path != call.path {
			t.Errorf("call %d: expected %s %s, got %s %s", b.calls, call.method, call.path, r.Method, r.URL.Path)
		}

		for header, value := range call.headers {
			w.Header().Set(header, value)
		}
		if call.location != "" {
			w.Header().Set("Location", call.location)
		}
		w.WriteHeader(call.status)
		if call.body != "" {
			w.Write([]byte(call.body))
		}
	}))

	b.URL = b.Server.URL
	return b
}

func HeaderEquals(name, value string) func(*is.I, *http.Request) {
	return func(is *is.I, r *http.Request) {
		is.Equal(r.Header.Get(name), value) // header should match
	}
}

func QueryParamEquals(name, value string) func(*is.I, *http.Request) {
	return func(is *is.I, r *http.Request) {
		is.True(r.URL.Query().Has(name))         // query param should exist
		is.Equal(r.URL.Query().Get(name), value) // query param should match
	}
}
