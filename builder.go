package apistub

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"reflect"
	"slices"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/broady/apistub"

// BodyPolicy decides what happens to a body parameter declared without an
// explicit serialization method.
type BodyPolicy int

const (
	// StringsAsIs sends string, []byte and io.Reader bodies unchanged and
	// serializes everything else.
	StringsAsIs BodyPolicy = iota
	// SerializeAll sends every body through the content serializer.
	SerializeAll
)

// AuthorizationFunc supplies the token for a static Authorization header
// that names only a scheme, such as "Authorization: Bearer".
type AuthorizationFunc func(ctx context.Context, d *RequestDescriptor) (string, error)

// settings holds the validated scalar configuration of a RequestBuilder.
type settings struct {
	BaseURL    string           `validate:"omitempty,url"`
	Collection CollectionFormat `validate:"gte=1,lte=6"`
	Escaping   URLEscaping      `validate:"gte=0,lte=1"`
	BodyPolicy BodyPolicy       `validate:"gte=0,lte=1"`
}

// RequestBuilder turns a RequestDescriptor and call arguments into an
// *http.Request. Configure it with the With methods before first use; after
// that it is read-only and safe for concurrent use by any number of stubs.
type RequestBuilder struct {
	settings      settings
	serializer    ContentSerializer
	urlFormatter  URLFormatter
	formFormatter FormFormatter
	providers     []PropertyProvider
	interceptors  []Interceptor
	auth          AuthorizationFunc
	logger        *slog.Logger
	tracer        trace.Tracer
	cache         *TypeCache
	validate      *validator.Validate

	initOnce sync.Once
	initErr  error
}

// NewRequestBuilder creates a builder with JSON content, multi-valued query
// collections and escaped query strings.
func NewRequestBuilder() *RequestBuilder {
	return &RequestBuilder{
		settings: settings{
			Collection: CollectionMulti,
			Escaping:   EscapeDataString,
			BodyPolicy: StringsAsIs,
		},
		serializer:   JSONSerializer{},
		urlFormatter: DefaultURLFormatter{},
	}
}

var defaultBuilder = sync.OnceValue(NewRequestBuilder)

// DefaultRequestBuilder returns the shared builder used when a stub is
// constructed with a nil builder.
func DefaultRequestBuilder() *RequestBuilder {
	return defaultBuilder()
}

// WithBaseURL sets the URL every descriptor path is appended to.
func (b *RequestBuilder) WithBaseURL(base string) *RequestBuilder {
	b.settings.BaseURL = base
	return b
}

// WithSerializer sets the content serializer. Default: JSONSerializer.
func (b *RequestBuilder) WithSerializer(s ContentSerializer) *RequestBuilder {
	b.serializer = s
	return b
}

// WithURLFormatter sets how path and query values become strings.
func (b *RequestBuilder) WithURLFormatter(f URLFormatter) *RequestBuilder {
	b.urlFormatter = f
	return b
}

// WithFormFormatter sets how form bodies are encoded.
// Default: DefaultFormFormatter using the configured serializer's field names.
func (b *RequestBuilder) WithFormFormatter(f FormFormatter) *RequestBuilder {
	b.formFormatter = f
	return b
}

// WithCollectionFormat sets the format used by query bindings that do not declare one.
func (b *RequestBuilder) WithCollectionFormat(c CollectionFormat) *RequestBuilder {
	b.settings.Collection = c
	return b
}

// WithEscaping sets the query string escaping mode.
func (b *RequestBuilder) WithEscaping(e URLEscaping) *RequestBuilder {
	b.settings.Escaping = e
	return b
}

// WithBodyPolicy sets the handling of bodies without an explicit method.
func (b *RequestBuilder) WithBodyPolicy(p BodyPolicy) *RequestBuilder {
	b.settings.BodyPolicy = p
	return b
}

// WithPropertyProvider adds a provider called once per request.
// Providers run in the order added, after the built-in descriptor provider.
func (b *RequestBuilder) WithPropertyProvider(p PropertyProvider) *RequestBuilder {
	if p != nil {
		b.providers = append(b.providers, p)
	}
	return b
}

// WithInterceptor adds an interceptor around the transport.
// Interceptors are executed in the order they are added.
func (b *RequestBuilder) WithInterceptor(i Interceptor) *RequestBuilder {
	b.interceptors = append(b.interceptors, i)
	return b
}

// WithAuthorization sets the token source for scheme-only Authorization headers.
func (b *RequestBuilder) WithAuthorization(fn AuthorizationFunc) *RequestBuilder {
	b.auth = fn
	return b
}

// WithLogger sets the logger for request lifecycle events. Default: slog.Default().
func (b *RequestBuilder) WithLogger(logger *slog.Logger) *RequestBuilder {
	b.logger = logger
	return b
}

// WithTracerProvider sets the OpenTelemetry provider for client spans.
// Default: the global provider.
func (b *RequestBuilder) WithTracerProvider(tp trace.TracerProvider) *RequestBuilder {
	b.tracer = tp.Tracer(tracerName)
	return b
}

// WithCache shares a TypeCache between builders.
func (b *RequestBuilder) WithCache(c *TypeCache) *RequestBuilder {
	b.cache = c
	return b
}

// WithValidation validates struct bodies with v before sending.
// Failures are returned as *ArgumentError wrapping validator.ValidationErrors.
func (b *RequestBuilder) WithValidation(v *validator.Validate) *RequestBuilder {
	b.validate = v
	return b
}

// Serializer returns the configured content serializer.
func (b *RequestBuilder) Serializer() ContentSerializer {
	return b.serializer
}

// init validates settings and fills unset collaborators. It runs once.
func (b *RequestBuilder) init() error {
	b.initOnce.Do(func() {
		if err := validator.New().Struct(b.settings); err != nil {
			b.initErr = configErrors(err)
			return
		}
		if b.serializer == nil {
			b.serializer = JSONSerializer{}
		}
		if b.urlFormatter == nil {
			b.urlFormatter = DefaultURLFormatter{}
		}
		if b.cache == nil {
			b.cache = NewTypeCache()
		}
		if b.formFormatter == nil {
			b.formFormatter = DefaultFormFormatter{
				Serializer: b.serializer,
				Formatter:  b.urlFormatter,
				Collection: b.settings.Collection,
				cache:      b.cache,
			}
		}
		if b.logger == nil {
			b.logger = slog.Default()
		}
		if b.tracer == nil {
			b.tracer = otel.GetTracerProvider().Tracer(tracerName)
		}
	})
	return b.initErr
}

// Validate reports invalid settings. Build calls it implicitly.
func (b *RequestBuilder) Validate() error {
	return b.init()
}

// Build assembles the request for one call of d. args holds one value per
// descriptor parameter, in order. iface may be nil.
//
// Nil path arguments and malformed type witnesses are reported as
// *ArgumentError. An argument count that does not match the descriptor, or a
// descriptor with two bodies, is a programming error and panics.
func (b *RequestBuilder) Build(ctx context.Context, d *RequestDescriptor, iface reflect.Type, args []any) (*http.Request, error) {
	req, _, err := b.build(ctx, d, iface, args)
	return req, err
}

func (b *RequestBuilder) build(ctx context.Context, d *RequestDescriptor, iface reflect.Type, args []any) (*http.Request, *Content, error) {
	if err := b.init(); err != nil {
		return nil, nil, err
	}
	if len(args) != len(d.Params) {
		panic(fmt.Sprintf("apistub: %s called with %d arguments, descriptor has %d parameters", d.Name(), len(args), len(d.Params)))
	}
	d.BodyIndex()

	tmpl, err := b.cache.template(d.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", d.Name(), err)
	}

	var (
		props      = Properties{}
		pathValues = make(map[string]string)
		header     = http.Header{}
		typeArgs   map[string]reflect.Type
		body       any
		bodyParam  Param
		parts      []partValue
		q          = &flattener{
			cache:      b.cache,
			serializer: b.serializer,
			formatter:  b.urlFormatter,
			collection: b.settings.Collection,
		}
	)
	for _, h := range d.Headers {
		header.Set(h.Name, h.Value)
	}

	for i, p := range d.Params {
		arg := args[i]
		switch p.Role {
		case RoleContext:
		case RolePath:
			rv, ok := indirect(reflect.ValueOf(arg))
			if !ok {
				return nil, nil, &ArgumentError{Method: d.Name(), Param: p.Name, Message: "path parameter cannot be nil"}
			}
			pathValues[p.WireName()] = b.urlFormatter.FormatValue(rv.Interface(), p.Format)
		case RoleQuery:
			rv, ok := indirect(reflect.ValueOf(arg))
			if !ok {
				continue
			}
			q.addValue(queryKey(p, rv), p, rv)
		case RoleHeader:
			rv, ok := indirect(reflect.ValueOf(arg))
			if !ok {
				header.Del(p.WireName())
				continue
			}
			header.Set(p.WireName(), b.urlFormatter.FormatValue(rv.Interface(), p.Format))
		case RoleHeaderCollection:
			b.applyHeaderCollection(header, arg)
		case RoleAuthorize:
			rv, ok := indirect(reflect.ValueOf(arg))
			if !ok {
				continue
			}
			scheme := p.Scheme
			if scheme == "" {
				scheme = "Bearer"
			}
			header.Set("Authorization", scheme+" "+b.urlFormatter.FormatValue(rv.Interface(), p.Format))
		case RoleBody:
			if !isNil(arg) {
				body, bodyParam = arg, p
			}
		case RoleProperty:
			props[p.WireName()] = arg
		case RoleTypeWitness:
			t, ok := arg.(reflect.Type)
			if !ok || t == nil {
				return nil, nil, &ArgumentError{Method: d.Name(), Param: p.Name, Message: fmt.Sprintf("malformed type witness %T", arg)}
			}
			if typeArgs == nil {
				typeArgs = make(map[string]reflect.Type)
			}
			typeArgs[p.Name] = t
		case RolePart:
			if !isNil(arg) {
				parts = append(parts, partValue{param: p, value: arg})
			}
		default:
			panic(fmt.Sprintf("apistub: %s: parameter %s has unknown role %v", d.Name(), p.Name, p.Role))
		}
	}

	path, err := tmpl.Expand(pathValues)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", d.Name(), err)
	}
	u, err := b.resolve(path)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", d.Name(), err)
	}
	u.RawQuery = encodeQuery(u.RawQuery, q.pairs, b.settings.Escaping)

	if typeArgs != nil {
		props[PropertyTypeArguments] = typeArgs
	}
	DescriptorProvider.Provide(props, d, iface)
	for _, p := range b.providers {
		p.Provide(props, d, iface)
	}
	ctx = newCallContext(ctx, &CallInfo{Descriptor: d, Interface: iface}, props)

	if body != nil && b.validate != nil {
		if rv, ok := indirect(reflect.ValueOf(body)); ok && rv.Kind() == reflect.Struct {
			if err := b.validate.StructCtx(ctx, body); err != nil {
				return nil, nil, &ArgumentError{Method: d.Name(), Param: bodyParam.Name, Message: "invalid body", Err: err}
			}
		}
	}

	var content *Content
	switch {
	case d.Multipart:
		content, err = b.multipartContent(d, parts)
	case body != nil:
		content, err = b.bodyContent(bodyParam, body)
	}
	if err != nil {
		return nil, nil, err
	}

	var req *http.Request
	if content != nil {
		req, err = http.NewRequestWithContext(ctx, d.Verb, u.String(), content.Body)
	} else {
		req, err = http.NewRequestWithContext(ctx, d.Verb, u.String(), nil)
	}
	if err != nil {
		content.abort(err)
		return nil, nil, fmt.Errorf("%s: %w", d.Name(), err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	if content != nil {
		if req.Header.Get("Content-Type") == "" && content.ContentType != "" {
			req.Header.Set("Content-Type", content.ContentType)
		}
		switch {
		case content.Length >= 0:
			req.ContentLength = content.Length
		case req.ContentLength == 0:
			req.ContentLength = -1
		}
	}
	if id, ok := props[PropertyRequestID].(string); ok && req.Header.Get("X-Request-Id") == "" {
		req.Header.Set("X-Request-Id", id)
	}
	if err := b.authorize(ctx, d, req); err != nil {
		content.abort(err)
		return nil, nil, err
	}
	return req, content, nil
}

// resolve joins the base URL and an expanded path.
func (b *RequestBuilder) resolve(path string) (*url.URL, error) {
	base := b.settings.BaseURL
	if base == "" {
		return url.Parse(path)
	}
	if path != "" && !strings.HasPrefix(path, "/") && !strings.HasPrefix(path, "?") {
		path = "/" + path
	}
	return url.Parse(strings.TrimRight(base, "/") + path)
}

func (b *RequestBuilder) applyHeaderCollection(header http.Header, arg any) {
	rv, ok := indirect(reflect.ValueOf(arg))
	if !ok || rv.Kind() != reflect.Map {
		return
	}
	keys := make([]string, 0, rv.Len())
	values := make(map[string]reflect.Value, rv.Len())
	for _, k := range rv.MapKeys() {
		name := b.urlFormatter.FormatValue(k.Interface(), "")
		keys = append(keys, name)
		values[name] = rv.MapIndex(k)
	}
	slices.Sort(keys)
	for _, name := range keys {
		ev, ok := indirect(values[name])
		if !ok {
			header.Del(name)
			continue
		}
		header.Set(name, b.urlFormatter.FormatValue(ev.Interface(), ""))
	}
}

// authorize completes a scheme-only Authorization header with a token.
func (b *RequestBuilder) authorize(ctx context.Context, d *RequestDescriptor, req *http.Request) error {
	if b.auth == nil {
		return nil
	}
	scheme := strings.TrimSpace(req.Header.Get("Authorization"))
	if scheme == "" || strings.ContainsRune(scheme, ' ') {
		return nil
	}
	token, err := b.auth(ctx, d)
	if err != nil {
		return fmt.Errorf("%s: authorization: %w", d.Name(), err)
	}
	req.Header.Set("Authorization", scheme+" "+token)
	return nil
}
