// Package openapi generates the OpenAPI 3.0 description of the HTTP API by
// reflecting on the request and response types of registered endpoints.
package openapi

import (
	"encoding/json"
	"net/http"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
)

// =============================================================================
// Generator
// =============================================================================

// Generator produces an OpenAPI 3.0 document from registered endpoints.
type Generator struct {
	title       string
	version     string
	description string
	servers     []string
	endpoints   []Endpoint
	mu          sync.RWMutex
	cachedSpec  *openapi3.T
}

// Endpoint describes one route.
type Endpoint struct {
	Method   string   // e.g. http.MethodGet
	Path     string   // router pattern, e.g. "/api/servers/{id}"
	ID       string   // operationId
	Summary  string
	Tag      string
	Query    []string // query parameter names
	Request  any      // JSON body model, nil for none
	Response any      // success body model, nil for none
	Status   int      // success status, default 200
}

// Option configures the generator.
type Option func(*Generator)

// WithTitle sets the API title.
func WithTitle(title string) Option {
	return func(g *Generator) {
		g.title = title
	}
}

// WithVersion sets the API version.
func WithVersion(version string) Option {
	return func(g *Generator) {
		g.version = version
	}
}

// WithDescription sets the API description.
func WithDescription(description string) Option {
	return func(g *Generator) {
		g.description = description
	}
}

// WithServer adds a server URL.
func WithServer(url string) Option {
	return func(g *Generator) {
		g.servers = append(g.servers, url)
	}
}

// NewGenerator creates a new OpenAPI generator.
func NewGenerator(opts ...Option) *Generator {
	g := &Generator{
		title:       "panelship API",
		version:     "1.0.0",
		description: "Build images locally and roll them out to 1Panel hosts",
	}

	for _, opt := range opts {
		opt(g)
	}

	return g
}

// Register adds endpoints to the document.
func (g *Generator) Register(endpoints ...Endpoint) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.endpoints = append(g.endpoints, endpoints...)
	g.cachedSpec = nil // Invalidate cache
}

// Generate produces the complete OpenAPI 3.0 document.
func (g *Generator) Generate() *openapi3.T {
	g.mu.RLock()
	if g.cachedSpec != nil {
		spec := g.cachedSpec
		g.mu.RUnlock()
		return spec
	}
	g.mu.RUnlock()

	g.mu.Lock()
	defer g.mu.Unlock()

	// Double-check after acquiring write lock
	if g.cachedSpec != nil {
		return g.cachedSpec
	}

	spec := &openapi3.T{
		OpenAPI: "3.0.3",
		Info: &openapi3.Info{
			Title:       g.title,
			Version:     g.version,
			Description: g.description,
		},
		Servers: make(openapi3.Servers, 0, len(g.servers)),
		Paths:   openapi3.NewPaths(),
		Components: &openapi3.Components{
			Schemas: make(openapi3.Schemas),
		},
	}

	for _, url := range g.servers {
		spec.Servers = append(spec.Servers, &openapi3.Server{URL: url})
	}

	g.addCommonSchemas(spec)

	for _, e := range g.endpoints {
		g.addEndpoint(spec, e)
	}

	g.cachedSpec = spec
	return spec
}

// Handler returns an HTTP handler that serves the document.
func (g *Generator) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		spec := g.Generate()

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Access-Control-Allow-Origin", "*")

		if err := json.NewEncoder(w).Encode(spec); err != nil {
			http.Error(w, "Failed to encode OpenAPI spec", http.StatusInternalServerError)
		}
	}
}

// =============================================================================
// Schema Generation
// =============================================================================

// addCommonSchemas adds the error body shared by every endpoint.
func (g *Generator) addCommonSchemas(spec *openapi3.T) {
	str := func() *openapi3.SchemaRef {
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}}
	}
	spec.Components.Schemas["Error"] = &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"error": str(),
				"code":  str(),
				"stage": str(),
			},
			Required: []string{"error", "code"},
		},
	}
}

var pathParam = regexp.MustCompile(`\{([^}/]+)\}`)

// addEndpoint adds the operation for e, creating its path item on first use.
func (g *Generator) addEndpoint(spec *openapi3.T, e Endpoint) {
	item := spec.Paths.Value(e.Path)
	if item == nil {
		item = &openapi3.PathItem{}
		for _, m := range pathParam.FindAllStringSubmatch(e.Path, -1) {
			item.Parameters = append(item.Parameters, &openapi3.ParameterRef{
				Value: &openapi3.Parameter{
					Name:     m[1],
					In:       "path",
					Required: true,
					Schema: &openapi3.SchemaRef{
						Value: &openapi3.Schema{Type: &openapi3.Types{"string"}},
					},
				},
			})
		}
		spec.Paths.Set(e.Path, item)
	}

	op := &openapi3.Operation{
		OperationID: e.ID,
		Summary:     e.Summary,
		Responses:   openapi3.NewResponses(),
	}
	if e.Tag != "" {
		op.Tags = []string{e.Tag}
	}

	for _, name := range e.Query {
		op.Parameters = append(op.Parameters, &openapi3.ParameterRef{
			Value: &openapi3.Parameter{
				Name: name,
				In:   "query",
				Schema: &openapi3.SchemaRef{
					Value: &openapi3.Schema{Type: &openapi3.Types{"string"}},
				},
			},
		})
	}

	if e.Request != nil {
		op.RequestBody = &openapi3.RequestBodyRef{
			Value: openapi3.NewRequestBody().
				WithRequired(true).
				WithJSONSchemaRef(g.schemaFor(spec, reflect.TypeOf(e.Request))),
		}
	}

	status := e.Status
	if status == 0 {
		status = http.StatusOK
	}
	success := openapi3.NewResponse().WithDescription(http.StatusText(status))
	if e.Response != nil {
		success = success.WithJSONSchemaRef(g.schemaFor(spec, reflect.TypeOf(e.Response)))
	}
	op.Responses.Set(strconv.Itoa(status), &openapi3.ResponseRef{Value: success})
	op.Responses.Set("default", &openapi3.ResponseRef{
		Value: openapi3.NewResponse().
			WithDescription("Error").
			WithJSONSchemaRef(&openapi3.SchemaRef{Ref: "#/components/schemas/Error"}),
	})

	item.SetOperation(e.Method, op)
}

// schemaFor returns a schema for t. Named structs become components and are
// referenced.
func (g *Generator) schemaFor(spec *openapi3.T, t reflect.Type) *openapi3.SchemaRef {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	switch t.Kind() {
	case reflect.String:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}}

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int32"}}

	case reflect.Int64:
		if t == reflect.TypeOf(time.Duration(0)) {
			return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int64", Description: "nanoseconds"}}
		}
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int64"}}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}}}

	case reflect.Float32:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"number"}, Format: "float"}}

	case reflect.Float64:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"number"}, Format: "double"}}

	case reflect.Bool:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"boolean"}}}

	case reflect.Slice, reflect.Array:
		// json.RawMessage and []byte
		if t.Elem().Kind() == reflect.Uint8 {
			return &openapi3.SchemaRef{Value: &openapi3.Schema{}}
		}
		return &openapi3.SchemaRef{
			Value: &openapi3.Schema{
				Type:  &openapi3.Types{"array"},
				Items: g.schemaFor(spec, t.Elem()),
			},
		}

	case reflect.Map:
		return &openapi3.SchemaRef{
			Value: &openapi3.Schema{
				Type:                 &openapi3.Types{"object"},
				AdditionalProperties: openapi3.AdditionalProperties{Schema: g.schemaFor(spec, t.Elem())},
			},
		}

	case reflect.Struct:
		if t == reflect.TypeOf(time.Time{}) {
			return &openapi3.SchemaRef{
				Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Format: "date-time"},
			}
		}
		if t.Name() == "" {
			return &openapi3.SchemaRef{Value: g.structSchema(spec, t)}
		}
		name := componentName(t)
		if _, ok := spec.Components.Schemas[name]; !ok {
			// Reserve the name first so self-references terminate
			spec.Components.Schemas[name] = &openapi3.SchemaRef{Value: &openapi3.Schema{}}
			spec.Components.Schemas[name].Value = g.structSchema(spec, t)
		}
		return &openapi3.SchemaRef{Ref: "#/components/schemas/" + name}

	default:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"object"}}}
	}
}

// structSchema extracts an object schema from the exported fields of t,
// named by their JSON tags. Embedded structs are flattened.
func (g *Generator) structSchema(spec *openapi3.T, t reflect.Type) *openapi3.Schema {
	schema := &openapi3.Schema{
		Type:       &openapi3.Types{"object"},
		Properties: make(openapi3.Schemas),
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)

		if !field.IsExported() {
			continue
		}

		jsonTag := field.Tag.Get("json")
		if jsonTag == "-" {
			continue
		}

		name := field.Name
		parts := strings.Split(jsonTag, ",")
		if parts[0] != "" {
			name = parts[0]
		} else if field.Anonymous && field.Type.Kind() == reflect.Struct {
			embedded := g.structSchema(spec, field.Type)
			for k, v := range embedded.Properties {
				schema.Properties[k] = v
			}
			continue
		}

		schema.Properties[name] = g.schemaFor(spec, field.Type)
	}

	return schema
}

// componentName qualifies a type name with its package, e.g. "DeployResult".
func componentName(t reflect.Type) string {
	pkg := t.PkgPath()
	if i := strings.LastIndex(pkg, "/"); i >= 0 {
		pkg = pkg[i+1:]
	}
	if pkg == "" || pkg == "api" {
		return t.Name()
	}
	return capitalize(pkg) + t.Name()
}

// capitalize returns the string with the first letter capitalized.
func capitalize(s string) string {
	if s == "" {
		return ""
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
