package httpapi

import "net/http"

// NewMux returns the raw mux so main() can attach more routes before wrapping it.
func NewMux(d Deps) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: HealthHandler{DB: d.DB}.Health,
	}))

	// Sources
	sh := SourcesHandler{DB: d.DB, Engine: d.Engine, Hub: d.Hub, Now: d.now}
	mux.HandleFunc("/sources", methodMux(map[string]http.HandlerFunc{
		http.MethodGet:  sh.List,
		http.MethodPost: sh.Create,
	}))
	mux.HandleFunc("/sources/validate", methodMux(map[string]http.HandlerFunc{
		http.MethodPost: sh.Validate,
	}))
	mux.HandleFunc("/sources/", sh.ByPath) // /sources/{id}[/sync|/jobs]
	mux.HandleFunc("/source-types", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: sh.Types,
	}))

	// Jobs
	jh := JobsHandler{DB: d.DB, Hub: d.Hub, Now: d.now}
	mux.HandleFunc("/jobs", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: jh.List,
	}))
	mux.HandleFunc("/jobs/", jh.ByPath) // /jobs/{id}[/status|/technologies]
	mux.HandleFunc("/owners/", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: jh.OwnerJobs, // /owners/{id}/jobs
	}))
	mux.HandleFunc("/technologies", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: jh.Technologies,
	}))

	// Sync-all
	syh := SyncHandler{Poller: d.Poller}
	mux.HandleFunc("/sync/status", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: syh.Status,
	}))
	mux.HandleFunc("/sync/run", methodMux(map[string]http.HandlerFunc{
		http.MethodPost: syh.Run,
	}))

	// Config
	ch := ConfigHandler{
		CfgVal:      d.CfgVal,
		UserCfgPath: d.UserCfgPath,
		LoadCfg:     d.LoadCfg,
	}
	mux.HandleFunc("/config", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: ch.Get,
		http.MethodPut: ch.Put,
	}))
	mux.HandleFunc("/config/path", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: ch.Path,
	}))
	mux.HandleFunc("/config/validate", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: ch.Validate,
	}))

	// Secrets
	tokens := d.Tokens
	if tokens == nil {
		tokens = keychainTokens{}
	}
	sec := SecretsHandler{Tokens: tokens}
	mux.HandleFunc("/api/secrets/source-token", methodMux(map[string]http.HandlerFunc{
		http.MethodGet:    sec.HasSourceToken,
		http.MethodPost:   sec.SetSourceToken,
		http.MethodDelete: sec.DeleteSourceToken,
	}))

	// SSE events
	eh := EventsHandler{Hub: d.Hub}
	mux.HandleFunc("/events", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: eh.ServeSSE,
	}))

	return mux
}

// NewHandler is the mux wrapped in the standard middleware chain.
func NewHandler(d Deps) http.Handler {
	return Chain(NewMux(d), RequestID, Recover, AccessLog, Cors)
}
