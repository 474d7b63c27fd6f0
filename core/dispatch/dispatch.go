/*Package dispatch is the request dispatcher: the root component that
resolves routes, authenticates, authorizes, validates, paginates and
filters, invokes the persistence backend, and renders the response
envelope.

Request handling is stateless; the only cross-request state is the
immutable route registry and the authenticator's key cache. Construction
follows the builder pattern:

	d := dispatch.New(&dispatch.Builder{
		Registry:      registry,
		Validator:     validator,
		Store:         store,
		Router:        router,
		Authenticator: authenticator,
	})
*/
package dispatch

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/mediora-tech/mediora/core"
	"github.com/mediora-tech/mediora/core/access"
	"github.com/mediora-tech/mediora/core/envelope"
	"github.com/mediora-tech/mediora/core/logger"
	"github.com/mediora-tech/mediora/core/routes"
	"github.com/mediora-tech/mediora/core/schema"
)

// Builder collects the dispatcher's collaborators.
type Builder struct {
	// Registry is the static route table. Mandatory.
	Registry *routes.Registry
	// Validator holds the entity schemas. Mandatory.
	Validator *schema.Validator
	// Store is the persistence backend. Mandatory.
	Store Store
	// Router is a mux router the dispatcher adds its routes to. Mandatory.
	Router *mux.Router
	// Authenticator resolves principals. Optional; without it only
	// principals pre-injected into the request context authenticate,
	// which is what the in-process client does.
	Authenticator *access.Authenticator
	// Notifier receives change notifications for successful mutations.
	// Optional.
	Notifier core.Notifier
}

// Dispatcher orchestrates the request pipeline.
type Dispatcher struct {
	registry      *routes.Registry
	validator     *schema.Validator
	store         Store
	authenticator *access.Authenticator
	notifier      core.Notifier
}

// New wires the dispatcher and registers its routes. The route table is
// static, so configuration errors are programming errors and panic.
func New(b *Builder) *Dispatcher {
	if b.Registry == nil {
		panic("Registry is missing")
	}
	if b.Validator == nil {
		panic("Validator is missing")
	}
	if b.Store == nil {
		panic("Store is missing")
	}
	if b.Router == nil {
		panic("Router is missing")
	}
	for _, def := range b.Registry.Definitions() {
		if !b.Validator.HasSchema(def.SchemaID) {
			panic(fmt.Sprintf("entity %s: schema %s is unknown", def.EntityKey, def.SchemaID))
		}
	}

	d := &Dispatcher{
		registry:      b.Registry,
		validator:     b.Validator,
		store:         b.Store,
		authenticator: b.Authenticator,
		notifier:      b.Notifier,
	}

	nillog := logger.FromContext(nil)
	for _, def := range b.Registry.Definitions() {
		nillog.Debugln("handle routes:", "/"+def.PublicName, "GET,POST,PUT,DELETE")
	}

	handleCompression(b.Router)
	methods := []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete}
	b.Router.HandleFunc("/{route}", d.handle).Methods(methods...)
	b.Router.HandleFunc("/{route}/{id}", d.handle).Methods(methods...)
	b.Router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fail(w, r, errRouteNotFound())
	})
	return d
}

func fail(w http.ResponseWriter, r *http.Request, apiErr *apiError) {
	envelope.Write(w, r, envelope.Negotiate(r), apiErr.status, envelope.Failure(apiErr.message, apiErr.details))
}

func (d *Dispatcher) handle(w http.ResponseWriter, r *http.Request) {
	rlog := logger.FromContext(r.Context())
	rlog.Debugln("called route for", r.URL, r.Method)

	defer func() {
		if p := recover(); p != nil {
			rlog.Errorf("panic while handling %s %s: %v", r.Method, r.URL.Path, p)
			fail(w, r, errInternal())
		}
	}()

	status, env, apiErr := d.serve(r)
	if apiErr != nil {
		fail(w, r, apiErr)
		return
	}
	envelope.Write(w, r, envelope.Negotiate(r), status, env)
}

// serve runs the pipeline: route resolve, authenticate, authorize,
// identifier and pagination checks, body validation for mutations, then
// the backend operation. It returns either a success envelope or a
// terminal apiError.
func (d *Dispatcher) serve(r *http.Request) (int, envelope.Envelope, *apiError) {
	params := mux.Vars(r)
	routeName := params["route"]
	idString := params["id"]

	def, ok := d.registry.ByPublicName(routeName)
	if !ok {
		return 0, envelope.Envelope{}, errRouteNotFound()
	}

	op, ok := core.OperationForMethod(r.Method, idString != "")
	if !ok {
		return 0, envelope.Envelope{}, errRouteNotFound()
	}

	principal, apiErr := d.authenticate(r)
	if apiErr != nil {
		return 0, envelope.Envelope{}, apiErr
	}
	ctx, _ := logger.ContextWithLoggerIdentity(r.Context(), principal.ID.String())
	r = r.WithContext(ctx)

	if !d.registry.IsAllowed(def.EntityKey, principal.Role, op) {
		return 0, envelope.Envelope{}, errForbidden()
	}

	var id uuid.UUID
	if idString != "" {
		if op == core.OperationCreate {
			return 0, envelope.Envelope{}, errUnexpectedIdentifier(def.PublicName)
		}
		var err error
		id, err = uuid.Parse(idString)
		if err != nil {
			return 0, envelope.Envelope{}, errInvalidIdentifier()
		}
	} else if op == core.OperationUpdate || op == core.OperationDelete {
		return 0, envelope.Envelope{}, errMissingIdentifier(def.PublicName)
	}

	var body Object
	if op.IsMutation() {
		raw, err := io.ReadAll(r.Body)
		if err != nil || len(raw) == 0 {
			return 0, envelope.Envelope{}, errValidation([]envelope.Detail{
				{Code: "invalid_json", Message: "body is not a JSON object", Path: ""},
			})
		}
		var fieldErrs []schema.FieldError
		body, fieldErrs = d.validator.Validate(def.SchemaID, op, raw)
		if len(fieldErrs) > 0 {
			details := make([]envelope.Detail, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				details = append(details, envelope.Detail{Code: fe.Code, Message: fe.Message, Path: fe.Path})
			}
			return 0, envelope.Envelope{}, errValidation(details)
		}
	}

	switch op {
	case core.OperationList:
		return d.executeList(r, def)
	case core.OperationRead:
		return d.executeRead(r, def, id)
	case core.OperationCreate:
		return d.executeCreate(r, def, body)
	case core.OperationUpdate:
		return d.executeUpdate(r, def, id, body)
	case core.OperationDelete:
		return d.executeDelete(r, def, id)
	}
	return 0, envelope.Envelope{}, errRouteNotFound()
}

func (d *Dispatcher) authenticate(r *http.Request) (access.Principal, *apiError) {
	if p, ok := access.PrincipalFromContext(r.Context()); ok {
		return p, nil
	}
	if d.authenticator == nil {
		return access.Principal{}, errUnauthorized()
	}
	p, err := d.authenticator.Authenticate(r)
	if err != nil {
		return access.Principal{}, errUnauthorized()
	}
	return p, nil
}

// listParameters parses pagination and filters from the query string. The
// page and limit keys are removed first so they are never mistaken for
// filter predicates; every remaining parameter must name a filterable
// field of the entity.
func listParameters(r *http.Request, def *routes.RouteDefinition) (Pagination, []Filter, *apiError) {
	page := Pagination{Page: 1, Limit: 10}
	query := r.URL.Query()

	for _, key := range []string{"page", "limit"} {
		array, ok := query[key]
		if !ok {
			continue
		}
		if len(array) > 1 {
			return page, nil, errBadParameter(key, "illegal parameter array")
		}
		value, err := strconv.Atoi(array[0])
		if err != nil || value < 1 {
			return page, nil, errBadParameter(key, "must be a number greater than zero")
		}
		if key == "page" {
			page.Page = value
		} else {
			page.Limit = value
		}
		delete(query, key)
	}

	var filters []Filter
	for key, array := range query {
		if len(array) > 1 {
			return page, nil, errBadParameter(key, "illegal parameter array")
		}
		if !def.IsFilterable(key) {
			return page, nil, errBadParameter(key, "unknown filter property")
		}
		filters = append(filters, Filter{Field: key, Contains: array[0]})
	}
	return page, filters, nil
}

func (d *Dispatcher) executeList(r *http.Request, def *routes.RouteDefinition) (int, envelope.Envelope, *apiError) {
	page, filters, apiErr := listParameters(r, def)
	if apiErr != nil {
		return 0, envelope.Envelope{}, apiErr
	}
	objects, total, err := d.store.List(r.Context(), def.EntityKey, filters, page)
	if err != nil {
		return 0, envelope.Envelope{}, d.storeFault(r, def, core.OperationList, err)
	}
	if objects == nil {
		// an empty result set is success, rendered as an empty array
		objects = []Object{}
	}
	totalPages := 0
	if total > 0 {
		totalPages = (total + page.Limit - 1) / page.Limit
	}
	return http.StatusOK, envelope.Success(objects, &envelope.Pagination{
		CurrentPage:  page.Page,
		TotalPages:   totalPages,
		TotalItems:   total,
		ItemsPerPage: page.Limit,
	}), nil
}

func (d *Dispatcher) executeRead(r *http.Request, def *routes.RouteDefinition, id uuid.UUID) (int, envelope.Envelope, *apiError) {
	object, err := d.store.Read(r.Context(), def.EntityKey, id)
	if err != nil {
		return 0, envelope.Envelope{}, d.storeFault(r, def, core.OperationRead, err)
	}
	return http.StatusOK, envelope.Success(object, nil), nil
}

func (d *Dispatcher) executeCreate(r *http.Request, def *routes.RouteDefinition, body Object) (int, envelope.Envelope, *apiError) {
	object, err := d.store.Create(r.Context(), def.EntityKey, body)
	if err != nil {
		return 0, envelope.Envelope{}, d.storeFault(r, def, core.OperationCreate, err)
	}
	d.notify(def.EntityKey, core.OperationCreate, object)
	return http.StatusCreated, envelope.Success(object, nil), nil
}

func (d *Dispatcher) executeUpdate(r *http.Request, def *routes.RouteDefinition, id uuid.UUID, body Object) (int, envelope.Envelope, *apiError) {
	object, err := d.store.Update(r.Context(), def.EntityKey, id, body)
	if err != nil {
		return 0, envelope.Envelope{}, d.storeFault(r, def, core.OperationUpdate, err)
	}
	d.notify(def.EntityKey, core.OperationUpdate, object)
	return http.StatusOK, envelope.Success(object, nil), nil
}

func (d *Dispatcher) executeDelete(r *http.Request, def *routes.RouteDefinition, id uuid.UUID) (int, envelope.Envelope, *apiError) {
	if err := d.store.Delete(r.Context(), def.EntityKey, id); err != nil {
		return 0, envelope.Envelope{}, d.storeFault(r, def, core.OperationDelete, err)
	}
	d.notify(def.EntityKey, core.OperationDelete, Object{"id": id.String()})
	return http.StatusOK, envelope.Success(Object{
		"message": def.PublicName + " deleted",
		"id":      id.String(),
	}, nil), nil
}

// storeFault maps backend failures to the error taxonomy. Internal causes
// are logged with route and verb for correlation; the response never
// carries backend-specific wording.
func (d *Dispatcher) storeFault(r *http.Request, def *routes.RouteDefinition, op core.Operation, err error) *apiError {
	if err == ErrNotFound {
		return errResourceNotFound(def.PublicName)
	}
	if integrity, ok := err.(*IntegrityError); ok {
		return errIntegrity(integrity)
	}
	logger.FromContext(r.Context()).WithError(err).Errorf("backend failure: %s %s", op, def.PublicName)
	return errInternal()
}

func (d *Dispatcher) notify(entityKey string, op core.Operation, object Object) {
	if d.notifier == nil {
		return
	}
	payload, err := json.MarshalWithOption(object, json.DisableHTMLEscape())
	if err != nil {
		return
	}
	d.notifier.Notify(entityKey, op, payload)
}
