package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"sync"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stackDawg/skylark2/internal/domain"
	"github.com/stackDawg/skylark2/internal/engine"
	"github.com/stackDawg/skylark2/internal/events"
	"github.com/stackDawg/skylark2/internal/seed"
	"github.com/stackDawg/skylark2/internal/store"
)

// Config for the HTTP API handler.
type Config struct {
	Engine engine.Engine
	// Seeder backs the create endpoints. Nil leaves them unregistered.
	Seeder store.Seeder
	// Journal backs GET /events. Nil leaves it unregistered.
	Journal  *events.Writer
	Stream   *Stream
	Gatherer prometheus.Gatherer
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"assignment_blocked"`
	Message string         `json:"message" example:"assignment blocked by conflicts"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

type requestKey struct{}
type bodyBytesKey struct{}

// apiError is the {error:{code,message,details}} body every failure uses.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

type output[T any] struct {
	Body T `json:"body"`
}

func respond[T any](body T) *output[T] { return &output[T]{Body: body} }

// New returns an HTTP handler exposing the Skylark API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors are plain bad requests.
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			ctx = context.WithValue(ctx, bodyBytesKey{}, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("Skylark API", "0.2.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerPilots(group, cfg.Engine, cfg.Seeder)
	registerDrones(group, cfg.Engine, cfg.Seeder)
	registerMissions(group, cfg.Engine, cfg.Seeder)
	registerConflicts(group, cfg.Engine)
	registerAssignments(group, cfg.Engine)
	registerReassignments(group, cfg.Engine, newPlanRegistry())
	if cfg.Journal != nil {
		registerEvents(group, *cfg.Journal)
	}
	if cfg.Stream != nil {
		router.Get(path.Join(basePath, "stream"), cfg.Stream.ServeHTTP)
	}
	if cfg.Gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func badRequest(err error) huma.StatusError {
	return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var nf *store.NotFoundError
	if errors.As(err, &nf) {
		return newAPIError(http.StatusNotFound, "not_found", nf.Error(), map[string]any{"entity": nf.Entity, "id": nf.ID})
	}
	msg := err.Error()
	switch {
	case errors.Is(err, store.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", msg, nil)
	case errors.Is(err, store.ErrVersionConflict):
		return newAPIError(http.StatusConflict, "version_conflict", msg, nil)
	case errors.Is(err, store.ErrDuplicate):
		return newAPIError(http.StatusConflict, "duplicate", msg, nil)
	case errors.Is(err, engine.ErrAlreadyExecuted), errors.Is(err, engine.ErrStageOrder):
		return newAPIError(http.StatusConflict, "plan_conflict", msg, nil)
	case errors.Is(err, store.ErrInvalid), errors.Is(err, engine.ErrInvalidRequest), errors.Is(err, engine.ErrNotInPlan):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

// blockedError reports a validation that stopped an assignment. Missing
// records are 404; conflicts are 409.
func blockedError(v engine.Validation) huma.StatusError {
	details := map[string]any{"validation": validationResponse(v)}
	if v.NotFound() {
		return newAPIError(http.StatusNotFound, "not_found", "referenced record not found", details)
	}
	return newAPIError(http.StatusConflict, "assignment_blocked", "assignment blocked by conflicts", details)
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var (
		once sync.Once
		doc  []byte
	)
	r.Get(path.Join(basePath, "openapi.json"), func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			applyAuthSecurity(oas, basePath)
			doc, _ = json.Marshal(oas)
		})
		w.Header().Set("Content-Type", "application/json")
		w.Write(doc)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	security := []map[string][]string{{"bearerAuth": {}}}
	oas.Security = security
	healthPath := path.Join("/", basePath, "health")
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if route == healthPath {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	docURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Skylark API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; when the server runs with a JWT secret.
    </p>
  </body>
</html>`, docURL)
}

var writeErrors = []int{
	http.StatusBadRequest,
	http.StatusNotFound,
	http.StatusConflict,
	http.StatusInternalServerError,
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*output[map[string]string], error) {
		return respond(map[string]string{"status": "ok"}), nil
	})
}

func registerPilots(api huma.API, e engine.Engine, seeder store.Seeder) {
	if seeder != nil {
		huma.Register(api, huma.Operation{
			OperationID:   "create-pilot",
			Method:        http.MethodPost,
			Path:          "/pilots",
			Summary:       "Create pilot",
			DefaultStatus: http.StatusCreated,
			Errors:        writeErrors,
		}, func(ctx context.Context, input *struct {
			Body CreatePilotRequest `json:"body"`
		}) (*output[PilotResponse], error) {
			if len(bodyBytes(ctx)) == 0 {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
			}
			pilots, _, _, err := seed.File{Pilots: []seed.PilotRecord{input.Body.record()}}.Fleet()
			if err != nil {
				return nil, badRequest(err)
			}
			p, err := seeder.CreatePilot(ctx, pilots[0])
			if err != nil {
				return nil, handleError(err)
			}
			return respond(pilotResponse(p)), nil
		})
	}

	huma.Register(api, huma.Operation{
		OperationID: "list-pilots",
		Method:      http.MethodGet,
		Path:        "/pilots",
		Summary:     "List pilots",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Skill         string `query:"skill"`
		Certification string `query:"certification"`
		Location      string `query:"location"`
		Status        string `query:"status"`
	}) (*output[[]PilotResponse], error) {
		f := store.PilotFilter{Skill: input.Skill, Certification: input.Certification, Location: input.Location}
		if input.Status != "" {
			st, err := domain.ParsePilotStatus(input.Status)
			if err != nil {
				return nil, badRequest(err)
			}
			f.Status = st
		}
		items, err := e.Store.ListPilots(ctx, f)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(mapPilots(items)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-pilot",
		Method:      http.MethodGet,
		Path:        "/pilots/{id}",
		Summary:     "Get pilot",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*output[PilotResponse], error) {
		p, err := e.Store.GetPilot(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(pilotResponse(p)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-pilot-status",
		Method:      http.MethodPatch,
		Path:        "/pilots/{id}/status",
		Summary:     "Update pilot status",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		ID   string        `path:"id"`
		Body StatusRequest `json:"body"`
	}) (*output[PilotResponse], error) {
		st, err := domain.ParsePilotStatus(input.Body.Status)
		if err != nil {
			return nil, badRequest(err)
		}
		p, err := e.UpdatePilotStatus(ctx, input.ID, st, actorIDFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return respond(pilotResponse(p)), nil
	})
}

func registerDrones(api huma.API, e engine.Engine, seeder store.Seeder) {
	if seeder != nil {
		huma.Register(api, huma.Operation{
			OperationID:   "create-drone",
			Method:        http.MethodPost,
			Path:          "/drones",
			Summary:       "Create drone",
			DefaultStatus: http.StatusCreated,
			Errors:        writeErrors,
		}, func(ctx context.Context, input *struct {
			Body CreateDroneRequest `json:"body"`
		}) (*output[DroneResponse], error) {
			if len(bodyBytes(ctx)) == 0 {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
			}
			_, drones, _, err := seed.File{Drones: []seed.DroneRecord{input.Body.record()}}.Fleet()
			if err != nil {
				return nil, badRequest(err)
			}
			d, err := seeder.CreateDrone(ctx, drones[0])
			if err != nil {
				return nil, handleError(err)
			}
			return respond(droneResponse(d)), nil
		})
	}

	huma.Register(api, huma.Operation{
		OperationID: "list-drones",
		Method:      http.MethodGet,
		Path:        "/drones",
		Summary:     "List drones",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Capability string `query:"capability"`
		Location   string `query:"location"`
		Status     string `query:"status"`
	}) (*output[[]DroneResponse], error) {
		f := store.DroneFilter{Capability: input.Capability, Location: input.Location}
		if input.Status != "" {
			st, err := domain.ParseDroneStatus(input.Status)
			if err != nil {
				return nil, badRequest(err)
			}
			f.Status = st
		}
		items, err := e.Store.ListDrones(ctx, f)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(mapDrones(items)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-drone",
		Method:      http.MethodGet,
		Path:        "/drones/{id}",
		Summary:     "Get drone",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*output[DroneResponse], error) {
		d, err := e.Store.GetDrone(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(droneResponse(d)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-drone-status",
		Method:      http.MethodPatch,
		Path:        "/drones/{id}/status",
		Summary:     "Update drone status",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		ID   string        `path:"id"`
		Body StatusRequest `json:"body"`
	}) (*output[DroneResponse], error) {
		st, err := domain.ParseDroneStatus(input.Body.Status)
		if err != nil {
			return nil, badRequest(err)
		}
		d, err := e.UpdateDroneStatus(ctx, input.ID, st, actorIDFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return respond(droneResponse(d)), nil
	})
}

func registerMissions(api huma.API, e engine.Engine, seeder store.Seeder) {
	if seeder != nil {
		huma.Register(api, huma.Operation{
			OperationID:   "create-mission",
			Method:        http.MethodPost,
			Path:          "/missions",
			Summary:       "Create mission",
			DefaultStatus: http.StatusCreated,
			Errors:        writeErrors,
		}, func(ctx context.Context, input *struct {
			Body CreateMissionRequest `json:"body"`
		}) (*output[MissionResponse], error) {
			if len(bodyBytes(ctx)) == 0 {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
			}
			_, _, missions, err := seed.File{Missions: []seed.MissionRecord{input.Body.record()}}.Fleet()
			if err != nil {
				return nil, badRequest(err)
			}
			m, err := seeder.CreateMission(ctx, missions[0])
			if err != nil {
				return nil, handleError(err)
			}
			return respond(missionResponse(m)), nil
		})
	}

	huma.Register(api, huma.Operation{
		OperationID: "list-missions",
		Method:      http.MethodGet,
		Path:        "/missions",
		Summary:     "List missions",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Status   string `query:"status"`
		Priority string `query:"priority"`
		PilotID  string `query:"pilot_id"`
		DroneID  string `query:"drone_id"`
		Active   bool   `query:"active"`
	}) (*output[[]MissionResponse], error) {
		f := store.MissionFilter{PilotID: input.PilotID, DroneID: input.DroneID, ActiveOnly: input.Active}
		if input.Status != "" {
			st, err := domain.ParseMissionStatus(input.Status)
			if err != nil {
				return nil, badRequest(err)
			}
			f.Status = st
		}
		if input.Priority != "" {
			pr, err := domain.ParsePriority(input.Priority)
			if err != nil {
				return nil, badRequest(err)
			}
			f.Priority = pr
		}
		items, err := e.Store.ListMissions(ctx, f)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(mapMissions(items)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-mission",
		Method:      http.MethodGet,
		Path:        "/missions/{id}",
		Summary:     "Get mission",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*output[MissionResponse], error) {
		m, err := e.Store.GetMission(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(missionResponse(m)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-mission-status",
		Method:      http.MethodPatch,
		Path:        "/missions/{id}/status",
		Summary:     "Update mission status",
		Description: "Completing or cancelling a mission releases its pilot and drone.",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		ID   string        `path:"id"`
		Body StatusRequest `json:"body"`
	}) (*output[MissionResponse], error) {
		st, err := domain.ParseMissionStatus(input.Body.Status)
		if err != nil {
			return nil, badRequest(err)
		}
		m, err := e.UpdateMissionStatus(ctx, input.ID, st, actorIDFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return respond(missionResponse(m)), nil
	})
}

func registerConflicts(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "scan-conflicts",
		Method:      http.MethodGet,
		Path:        "/conflicts",
		Summary:     "Scan the fleet for conflicts",
		Errors:      []int{http.StatusInternalServerError},
	}, func(ctx context.Context, _ *struct{}) (*output[ConflictReport], error) {
		conflicts, err := e.ScanConflicts(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(conflictReport(conflicts)), nil
	})
}

func registerAssignments(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "validate-assignment",
		Method:      http.MethodPost,
		Path:        "/missions/{id}/validate",
		Summary:     "Check a pilot or drone against a mission without committing",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		ID   string          `path:"id"`
		Body ResourceRequest `json:"body"`
	}) (*output[engine.Validation], error) {
		kind, err := domain.ParseResourceKind(input.Body.Kind)
		if err != nil {
			return nil, badRequest(err)
		}
		v, err := e.ValidateAssignment(ctx, kind, trimmed(input.Body.ResourceID), input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(validationResponse(v)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "rank-candidates",
		Method:      http.MethodGet,
		Path:        "/missions/{id}/candidates",
		Summary:     "Rank pilots or drones for a mission",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID    string `path:"id"`
		Kind  string `query:"kind" default:"pilot"`
		Limit int    `query:"limit"`
	}) (*output[CandidateList], error) {
		kind, err := domain.ParseResourceKind(input.Kind)
		if err != nil {
			return nil, badRequest(err)
		}
		cands, err := e.RankCandidates(ctx, input.ID, kind)
		if err != nil {
			return nil, handleError(err)
		}
		if input.Limit > 0 && len(cands) > input.Limit {
			cands = cands[:input.Limit]
		}
		return respond(CandidateList{MissionID: input.ID, Kind: string(kind), Candidates: nonNilSlice(cands)}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "assign",
		Method:      http.MethodPost,
		Path:        "/missions/{id}/assign",
		Summary:     "Validate and commit an assignment",
		Description: "Error-severity conflicts block the assignment with 409 unless force is set.",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		ID   string        `path:"id"`
		Body AssignRequest `json:"body"`
	}) (*output[AssignResponse], error) {
		kind, err := domain.ParseResourceKind(input.Body.Kind)
		if err != nil {
			return nil, badRequest(err)
		}
		res, err := e.Assign(ctx, engine.AssignRequest{
			Kind:       kind,
			ResourceID: trimmed(input.Body.ResourceID),
			MissionID:  input.ID,
			Force:      input.Body.Force,
			ActorID:    actorIDFromContext(ctx),
		})
		if err != nil {
			return nil, handleError(err)
		}
		if !res.Committed {
			return nil, blockedError(res.Validation)
		}
		return respond(assignResponse(res)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "unassign",
		Method:      http.MethodPost,
		Path:        "/missions/{id}/unassign",
		Summary:     "Clear a mission's pilot or drone",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		ID   string          `path:"id"`
		Body UnassignRequest `json:"body"`
	}) (*output[MissionResponse], error) {
		kind, err := domain.ParseResourceKind(input.Body.Kind)
		if err != nil {
			return nil, badRequest(err)
		}
		m, err := e.Unassign(ctx, kind, input.ID, actorIDFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return respond(missionResponse(m)), nil
	})
}

func registerReassignments(api huma.API, e engine.Engine, plans *planRegistry) {
	huma.Register(api, huma.Operation{
		OperationID:   "plan-reassignment",
		Method:        http.MethodPost,
		Path:          "/reassignments",
		Summary:       "Propose an urgent reassignment",
		Description:   "Optionally marks the pilot or drone unavailable, then ranks replacements for every affected mission. Nothing is reassigned until confirmed.",
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct {
		Body ReassignmentRequest `json:"body"`
	}) (*output[PlanResponse], error) {
		plan, err := e.PlanUrgentReassignment(ctx, engine.UrgentRequest{
			PilotID:         trimmed(input.Body.PilotID),
			DroneID:         trimmed(input.Body.DroneID),
			Reason:          input.Body.Reason,
			MarkUnavailable: input.Body.MarkUnavailable,
			ActorID:         actorIDFromContext(ctx),
		})
		if err != nil {
			return nil, handleError(err)
		}
		plans.put(plan)
		return respond(planResponse(plan)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-reassignment",
		Method:      http.MethodGet,
		Path:        "/reassignments/{plan_id}",
		Summary:     "Get a proposed reassignment plan",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		PlanID string `path:"plan_id"`
	}) (*output[PlanResponse], error) {
		plan, err := plans.get(input.PlanID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(planResponse(plan)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "confirm-reassignment",
		Method:      http.MethodPost,
		Path:        "/reassignments/confirm",
		Summary:     "Commit one proposed replacement",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		Body ConfirmRequest `json:"body"`
	}) (*output[ConfirmResponse], error) {
		kind, err := domain.ParseResourceKind(input.Body.Kind)
		if err != nil {
			return nil, badRequest(err)
		}
		res, plan, err := plans.confirm(ctx, e, trimmed(input.Body.PlanID), engine.Choice{
			MissionID:   trimmed(input.Body.MissionID),
			Kind:        kind,
			CandidateID: trimmed(input.Body.CandidateID),
			Force:       input.Body.Force,
			ActorID:     actorIDFromContext(ctx),
		})
		if err != nil {
			return nil, handleError(err)
		}
		if !res.Committed {
			return nil, blockedError(res.Validation)
		}
		return respond(ConfirmResponse{Result: assignResponse(res), Plan: planResponse(plan)}), nil
	})
}

func registerEvents(api huma.API, journal events.Writer) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent events",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind" enum:"pilot,drone,mission,plan"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
	}) (*output[[]events.Event], error) {
		items, err := journal.Latest(ctx, normalizeLimit(input.Limit), input.Type, input.EntityKind, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(nonNilSlice(items)), nil
	})
}

func bodyBytes(ctx context.Context) []byte {
	if buf, ok := ctx.Value(bodyBytesKey{}).([]byte); ok {
		return buf
	}
	req, ok := ctx.Value(requestKey{}).(*http.Request)
	if !ok || req == nil {
		return nil
	}
	data, _ := io.ReadAll(req.Body)
	return data
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}
