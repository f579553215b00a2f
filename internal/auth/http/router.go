package http

import (
	"log/slog"
	"net/http"
	"time"

	httpSwagger "github.com/swaggo/http-swagger"

	_ "github.com/aussiebroadwan/tokensmith/api/auth" // Swagger docs
	"github.com/aussiebroadwan/tokensmith/internal/auth/service"
	"github.com/aussiebroadwan/tokensmith/pkg/httpx"
	"github.com/aussiebroadwan/tokensmith/pkg/jwtx"
	"github.com/aussiebroadwan/tokensmith/pkg/policy"
	"github.com/aussiebroadwan/tokensmith/pkg/slogx"
)

// Admin route policies. The write/read split follows the scopes the
// trusted client is seeded with.
var (
	adminWritePolicy = policy.MustCompile("hasRole('TRUSTED_CLIENT') and hasScope('write')")
	adminReadPolicy  = policy.MustCompile("hasRole('TRUSTED_CLIENT') and hasScope('read')")
	callerPolicy     = policy.MustCompile("isAuthenticated()")
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	keys         *jwtx.KeyManager
	verifier     jwtx.Verifier
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger
	store        Pinger
	metrics      *Metrics

	AuthorizationService *service.AuthorizationService
	ClientService        *service.ClientService
	KeyRotationService   *service.KeyRotationService
}

// NewRouter builds a router. verifier guards the bearer protected routes;
// metrics may be nil to disable instrumentation and /metrics.
func NewRouter(
	keys *jwtx.KeyManager,
	verifier jwtx.Verifier,
	buildVersion string,
	st Pinger,
	metrics *Metrics,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		keys:         keys,
		verifier:     verifier,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		metrics:      metrics,
		logger:       logger,
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerOAuth2()
	r.registerResource()
	r.registerClients()
	r.registerKeyRotation()
	r.registerSystem()

	r.Mux.Handle("/swagger/", httpSwagger.Handler())
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			Tokensmith Authorization Server API
//	@version		0.1.0
//	@description	OAuth2 authorization server for machine-to-machine clients. Issues signed JWT access tokens for the client_credentials grant.
//	@description
//	@description				Tokens can be verified offline with the JWKS endpoint or online with check_token and introspection.
//
//	@contact.name				AussieBroadWAN Team
//	@contact.url				https://github.com/aussiebroadwan/tokensmith
//
//	@license.name				MIT
//	@license.url				https://opensource.org/licenses/MIT
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@schemes					http https
//
//	@securityDefinitions.basic	BasicAuth
//	@description				Client credentials: client_id as the user name and client_secret as the password.
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				JWT access token. Format: "Bearer {token}".
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

// handle registers h under pattern, instrumented with the pattern as its
// route label.
func (r *Router) handle(pattern string, h http.Handler, mws ...httpx.Middleware) {
	if r.metrics != nil {
		mws = append([]httpx.Middleware{r.metrics.Instrument(pattern)}, mws...)
	}
	r.Mux.Handle(pattern, httpx.Chain(h, mws...))
}

func (r *Router) registerOAuth2() {
	// Token endpoint: strict limit per IP and claimed client id against
	// secret guessing.
	tokenHandler := &TokenHandler{Auth: r.AuthorizationService}
	for _, pattern := range []string{"POST /oauth/token", "POST /v1/oauth2/token"} {
		r.handle(pattern, tokenHandler,
			httpx.RateLimitByIPAndClientID(httpx.StrictLimit),
		)
	}

	clientAuth := httpx.ClientAuthentication(r.AuthorizationService)

	r.handle("GET /oauth/token_key", TokenKeyHandler(r.AuthorizationService),
		httpx.RateLimitByIP(httpx.PublicLimit),
		clientAuth,
	)

	checkToken := &CheckTokenHandler{Auth: r.AuthorizationService}
	for _, pattern := range []string{"GET /oauth/check_token", "POST /oauth/check_token"} {
		r.handle(pattern, checkToken,
			httpx.RateLimitByIP(httpx.ModerateLimit),
			clientAuth,
		)
	}

	r.handle("POST /v1/oauth2/introspect", &IntrospectHandler{Auth: r.AuthorizationService},
		httpx.RateLimitByIP(httpx.ModerateLimit),
		clientAuth,
	)

	r.handle("GET /.well-known/jwks.json", JWKSHandler(r.keys),
		httpx.RateLimitByIP(httpx.PublicLimit),
	)
}

func (r *Router) registerResource() {
	r.handle("GET /api/me", MeHandler(),
		httpx.ResourceGuard(r.verifier),
		httpx.RequirePolicy(callerPolicy),
		httpx.RateLimitByClient(httpx.LenientLimit),
	)
}

func (r *Router) registerClients() {
	h := &ClientsHandler{ClientService: r.ClientService}

	r.handle("POST /v1/clients", http.HandlerFunc(h.HandleCreate), r.admin(adminWritePolicy)...)
	r.handle("GET /v1/clients", http.HandlerFunc(h.HandleList), r.admin(adminReadPolicy)...)
	r.handle("DELETE /v1/clients/{id}", http.HandlerFunc(h.HandleDelete), r.admin(adminWritePolicy)...)
}

func (r *Router) registerKeyRotation() {
	// Available in every key mode; static deployments answer 409.
	h := &KeyRotationHandler{KeyRotationService: r.KeyRotationService}

	r.handle("POST /v1/keys/rotate", http.HandlerFunc(h.HandleRotate), r.admin(adminWritePolicy)...)
	r.handle("GET /v1/keys", http.HandlerFunc(h.HandleListKeys), r.admin(adminReadPolicy)...)
	r.handle("POST /v1/keys/{kid}/retire", http.HandlerFunc(h.HandleRetireKey), r.admin(adminWritePolicy)...)
}

// admin is the middleware stack of the bearer protected admin routes.
func (r *Router) admin(p *policy.Policy) []httpx.Middleware {
	return []httpx.Middleware{
		httpx.ResourceGuard(r.verifier),
		httpx.RateLimitByClient(httpx.ModerateLimit),
		httpx.RequirePolicy(p),
	}
}

func (r *Router) registerSystem() {
	// Health check endpoints - lenient rate limits (monitoring systems may poll frequently)
	r.handle("GET /livez", LivezHandler(r.startTime, r.buildVersion),
		httpx.RateLimitByIP(httpx.LenientLimit),
	)
	r.handle("GET /readyz", ReadyzHandler(r.startTime, r.buildVersion, r.store, r.keys),
		httpx.RateLimitByIP(httpx.LenientLimit),
	)

	if r.metrics != nil {
		r.Mux.Handle("GET /metrics", httpx.Chain(r.metrics.Handler(),
			httpx.RateLimitByIP(httpx.LenientLimit),
		))
	}
}
