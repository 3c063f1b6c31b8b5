package apistub

import (
	"context"
	"net/http"
	"reflect"

	"github.com/google/uuid"
)

// Well-known property bag keys.
const (
	PropertyRequestDescriptor = "apistub.RequestDescriptor" // *RequestDescriptor
	PropertyInterfaceType     = "apistub.InterfaceType"     // reflect.Type of the declaring interface
	PropertyTypeArguments     = "apistub.TypeArguments"     // map[string]reflect.Type keyed by type parameter name
	PropertyRequestID         = "apistub.RequestID"         // string, also sent as X-Request-Id
)

// Properties is the extensible metadata attached to an outgoing request.
// It travels in the request context, never on the wire.
type Properties map[string]any

// PropertyProvider enriches the property bag once per request.
type PropertyProvider interface {
	Provide(props Properties, d *RequestDescriptor, iface reflect.Type)
}

// PropertyProviderFunc adapts a function to PropertyProvider.
type PropertyProviderFunc func(props Properties, d *RequestDescriptor, iface reflect.Type)

func (f PropertyProviderFunc) Provide(props Properties, d *RequestDescriptor, iface reflect.Type) {
	f(props, d, iface)
}

// DescriptorProvider records the request descriptor and interface type.
// It is always installed.
var DescriptorProvider = PropertyProviderFunc(func(props Properties, d *RequestDescriptor, iface reflect.Type) {
	props[PropertyRequestDescriptor] = d
	if iface != nil {
		props[PropertyInterfaceType] = iface
	}
})

// RequestIDProvider attaches a random UUID as the request ID unless a
// property parameter already supplied one.
func RequestIDProvider() PropertyProvider {
	return PropertyProviderFunc(func(props Properties, _ *RequestDescriptor, _ reflect.Type) {
		if _, ok := props[PropertyRequestID]; !ok {
			props[PropertyRequestID] = uuid.NewString()
		}
	})
}

var propertiesKey = &contextKey{"properties"}

// PropertiesFromContext returns the property bag of the request being built or sent.
func PropertiesFromContext(ctx context.Context) Properties {
	if p, ok := ctx.Value(propertiesKey).(Properties); ok {
		return p
	}
	return nil
}

// PropertiesFromRequest returns the property bag attached to r.
func PropertiesFromRequest(r *http.Request) Properties {
	return PropertiesFromContext(r.Context())
}

// TypeArgument returns the runtime type bound to a type parameter of a generic interface.
func (p Properties) TypeArgument(name string) (reflect.Type, bool) {
	m, _ := p[PropertyTypeArguments].(map[string]reflect.Type)
	t, ok := m[name]
	return t, ok
}
