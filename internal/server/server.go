package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"helpline/internal/auth"
	"helpline/internal/domain"
	"helpline/internal/engine"
	"helpline/internal/repo"
	"helpline/internal/status"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"version_conflict"`
	Message string         `json:"message" example:"conversation was modified by another user"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"current_version\":4}"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Helpline API. The LINE webhook
// is mounted at /webhook/line outside the versioned base path.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
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
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("Helpline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerConversations(group, cfg.Engine)
	registerMessages(group, cfg.Engine)
	registerTags(group, cfg.Engine)
	registerUsers(group, cfg.Engine)
	registerAuditLogs(group, cfg.Engine)
	registerStats(group, cfg.Engine)
	registerRules(group, cfg.Engine)
	registerContacts(group, cfg.Engine)
	registerLineWebhook(router, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	startAuditDispatcher(cfg.Engine)

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

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var se huma.StatusError
	if errors.As(err, &se) {
		return se
	}
	var fe auth.ForbiddenError
	if errors.As(err, &fe) {
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), map[string]any{"permission": fe.Permission})
	}
	var ce engine.ConflictError
	if errors.As(err, &ce) {
		return newAPIError(http.StatusConflict, "version_conflict", err.Error(), map[string]any{
			"current_version": ce.CurrentVersion,
			"current_status":  ce.CurrentStatus,
		})
	}
	var te engine.InvalidTransitionError
	if errors.As(err, &te) {
		return newAPIError(http.StatusBadRequest, "invalid_transition", err.Error(), map[string]any{
			"current_status":   te.From,
			"requested_status": te.To,
		})
	}
	if errors.Is(err, engine.ErrNoMessages) {
		return newAPIError(http.StatusUnprocessableEntity, "no_messages", err.Error(), nil)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "required") || strings.Contains(lowered, "cannot update"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
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
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			spec, _ = json.Marshal(api.OpenAPI())
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Helpline API Docs</title>
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
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerConversations(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-conversations",
		Method:      http.MethodGet,
		Path:        "/conversations",
		Summary:     "List conversations",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Status      string `query:"status"`
		AssignedTo  string `query:"assigned_to"`
		IsComplaint string `query:"is_complaint" enum:",true,false"`
		Limit       int    `query:"limit" default:"50"`
	}) (*struct {
		Body []ConversationResponse `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, auth.PermViewInbox); err != nil {
			return nil, handleError(err)
		}
		opts := repo.ListOptions{AssignedTo: input.AssignedTo, Limit: input.Limit}
		if input.Status != "" {
			st := domain.Status(input.Status)
			if !st.Valid() {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid status filter", map[string]any{"status": input.Status})
			}
			opts.Status = st
		}
		if input.IsComplaint != "" {
			v := input.IsComplaint == "true"
			opts.IsComplaint = &v
		}
		items, err := e.Repo.ListConversations(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []ConversationResponse `json:"body"`
		}{Body: mapConversations(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "needs-action",
		Method:      http.MethodGet,
		Path:        "/conversations/needs-action",
		Summary:     "Conversations awaiting a reply",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Limit int `query:"limit" default:"50"`
	}) (*struct {
		Body []ConversationResponse `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, auth.PermViewInbox); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListNeedsAction(ctx, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []ConversationResponse `json:"body"`
		}{Body: mapConversations(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-conversation",
		Method:      http.MethodGet,
		Path:        "/conversations/{id}",
		Summary:     "Get conversation",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body ConversationResponse `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, auth.PermViewInbox); err != nil {
			return nil, handleError(err)
		}
		c, err := e.Repo.GetConversation(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		tags, err := e.Repo.ListConversationTags(ctx, c.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ConversationResponse `json:"body"`
		}{Body: conversationResponse(c, tags)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "available-transitions",
		Method:      http.MethodGet,
		Path:        "/conversations/{id}/transitions",
		Summary:     "Statuses reachable from the current one",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body []TransitionResponse `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, auth.PermViewInbox); err != nil {
			return nil, handleError(err)
		}
		c, err := e.Repo.GetConversation(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []TransitionResponse `json:"body"`
		}{Body: transitionResponses(c.Status)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-status",
		Method:      http.MethodPatch,
		Path:        "/conversations/{id}/status",
		Summary:     "Update conversation status",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ID   string              `path:"id"`
		Body UpdateStatusRequest `json:"body"`
	}) (*struct {
		Body ConversationResponse `json:"body"`
	}, error) {
		principal, err := requirePermission(ctx, auth.PermUpdateStatus)
		if err != nil {
			return nil, handleError(err)
		}
		if input.Body.Status == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "status is required", nil)
		}
		c, err := e.ChangeStatus(ctx, input.ID, input.Body.Status, input.Body.ExpectedVersion, principal.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ConversationResponse `json:"body"`
		}{Body: conversationResponse(c, nil)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "bulk-update-status",
		Method:      http.MethodPost,
		Path:        "/conversations/bulk-status",
		Summary:     "Update status of many conversations",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
		},
	}, func(ctx context.Context, input *struct {
		Body BulkUpdateStatusRequest `json:"body"`
	}) (*struct {
		Body BulkUpdateResponse `json:"body"`
	}, error) {
		principal, err := requirePermission(ctx, auth.PermUpdateStatus)
		if err != nil {
			return nil, handleError(err)
		}
		updated, err := e.BulkChangeStatus(ctx, input.Body.ConversationIDs, input.Body.Status, principal.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body BulkUpdateResponse `json:"body"`
		}{Body: BulkUpdateResponse{Updated: updated}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "retriage-conversation",
		Method:      http.MethodPost,
		Path:        "/conversations/{id}/retriage",
		Summary:     "Re-run triage over recent inbound messages",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body TriageResultResponse `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, auth.PermTriage); err != nil {
			return nil, handleError(err)
		}
		result, err := e.Retriage(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TriageResultResponse `json:"body"`
		}{Body: triageResultResponse(result)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "assign-conversation",
		Method:      http.MethodPost,
		Path:        "/conversations/{id}/assign",
		Summary:     "Assign conversation to a user",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ID   string        `path:"id"`
		Body AssignRequest `json:"body"`
	}) (*struct {
		Body ConversationResponse `json:"body"`
	}, error) {
		principal, err := requirePermission(ctx, auth.PermAssign)
		if err != nil {
			return nil, handleError(err)
		}
		if input.Body.UserID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "user_id is required", nil)
		}
		if _, err := e.Repo.GetUser(ctx, input.Body.UserID); err != nil {
			return nil, handleError(err)
		}
		c, err := e.Assign(ctx, input.ID, input.Body.UserID, principal.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ConversationResponse `json:"body"`
		}{Body: conversationResponse(c, nil)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "override-priority",
		Method:      http.MethodPatch,
		Path:        "/conversations/{id}/priority",
		Summary:     "Manually set priority and urgency",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ID   string                  `path:"id"`
		Body OverridePriorityRequest `json:"body"`
	}) (*struct {
		Body ConversationResponse `json:"body"`
	}, error) {
		principal, err := requirePermission(ctx, auth.PermTriage)
		if err != nil {
			return nil, handleError(err)
		}
		c, err := e.OverridePriority(ctx, input.ID, input.Body.Priority, input.Body.Urgency, principal.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ConversationResponse `json:"body"`
		}{Body: conversationResponse(c, nil)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "override-complaint",
		Method:      http.MethodPatch,
		Path:        "/conversations/{id}/complaint",
		Summary:     "Manually set the complaint flag",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ID   string                   `path:"id"`
		Body OverrideComplaintRequest `json:"body"`
	}) (*struct {
		Body ConversationResponse `json:"body"`
	}, error) {
		principal, err := requirePermission(ctx, auth.PermTriage)
		if err != nil {
			return nil, handleError(err)
		}
		c, err := e.OverrideComplaint(ctx, input.ID, input.Body.IsComplaint, input.Body.ComplaintType, principal.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ConversationResponse `json:"body"`
		}{Body: conversationResponse(c, nil)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "add-conversation-tag",
		Method:      http.MethodPost,
		Path:        "/conversations/{id}/tags",
		Summary:     "Attach a tag",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ID   string        `path:"id"`
		Body AddTagRequest `json:"body"`
	}) (*struct {
		Body []domain.Tag `json:"body"`
	}, error) {
		principal, err := requirePermission(ctx, auth.PermManageTags)
		if err != nil {
			return nil, handleError(err)
		}
		if input.Body.TagID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "tag_id is required", nil)
		}
		if err := e.AddTag(ctx, input.ID, input.Body.TagID, principal.UserID); err != nil {
			return nil, handleError(err)
		}
		tags, err := e.Repo.ListConversationTags(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Tag `json:"body"`
		}{Body: tags}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "remove-conversation-tag",
		Method:      http.MethodDelete,
		Path:        "/conversations/{id}/tags/{tag_id}",
		Summary:     "Detach a tag",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ID    string `path:"id"`
		TagID string `path:"tag_id"`
	}) (*struct{}, error) {
		principal, err := requirePermission(ctx, auth.PermManageTags)
		if err != nil {
			return nil, handleError(err)
		}
		if err := e.RemoveTag(ctx, input.ID, input.TagID, principal.UserID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerMessages(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-messages",
		Method:      http.MethodGet,
		Path:        "/conversations/{id}/messages",
		Summary:     "List conversation messages",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID    string `path:"id"`
		Limit int    `query:"limit"`
	}) (*struct {
		Body []domain.Message `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, auth.PermViewInbox); err != nil {
			return nil, handleError(err)
		}
		if _, err := e.Repo.GetConversation(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListMessages(ctx, input.ID, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Message `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "reply-conversation",
		Method:        http.MethodPost,
		Path:          "/conversations/{id}/reply",
		Summary:       "Send an outbound reply",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusBadGateway,
		},
	}, func(ctx context.Context, input *struct {
		ID   string       `path:"id"`
		Body ReplyRequest `json:"body"`
	}) (*struct {
		Body domain.Message `json:"body"`
	}, error) {
		principal, err := requirePermission(ctx, auth.PermReply)
		if err != nil {
			return nil, handleError(err)
		}
		if strings.TrimSpace(input.Body.Text) == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "text is required", nil)
		}
		msg, err := e.Reply(ctx, input.ID, input.Body.Text, principal.UserID)
		if err != nil {
			if strings.Contains(err.Error(), "push message") {
				return nil, newAPIError(http.StatusBadGateway, "push_failed", err.Error(), nil)
			}
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Message `json:"body"`
		}{Body: msg}, nil
	})
}

func registerTags(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-tags",
		Method:      http.MethodGet,
		Path:        "/tags",
		Summary:     "List tag catalog",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Tag `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, auth.PermViewInbox); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListTags(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Tag `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-tag",
		Method:        http.MethodPost,
		Path:          "/tags",
		Summary:       "Create tag",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateTagRequest `json:"body"`
	}) (*struct {
		Body domain.Tag `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, auth.PermManageTags); err != nil {
			return nil, handleError(err)
		}
		if strings.TrimSpace(input.Body.Name) == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "name is required", nil)
		}
		t := domain.Tag{
			ID:        uuid.New().String(),
			Name:      strings.TrimSpace(input.Body.Name),
			Color:     input.Body.Color,
			CreatedAt: time.Now().UTC().Format(time.RFC3339),
		}
		if err := e.Repo.InsertTag(ctx, t); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Tag `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-tag",
		Method:      http.MethodDelete,
		Path:        "/tags/{id}",
		Summary:     "Delete tag",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		if _, err := requirePermission(ctx, auth.PermManageTags); err != nil {
			return nil, handleError(err)
		}
		if err := e.Repo.DeleteTag(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerUsers(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-users",
		Method:      http.MethodGet,
		Path:        "/users",
		Summary:     "List users",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.User `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, auth.PermManageUsers); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListUsers(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.User `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-user",
		Method:        http.MethodPost,
		Path:          "/users",
		Summary:       "Create user",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateUserRequest `json:"body"`
	}) (*struct {
		Body domain.User `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, auth.PermManageUsers); err != nil {
			return nil, handleError(err)
		}
		if input.Body.Email == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "email is required", nil)
		}
		if !input.Body.Role.Valid() {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid role", map[string]any{"role": input.Body.Role})
		}
		u := domain.User{
			ID:        uuid.New().String(),
			Email:     input.Body.Email,
			Name:      input.Body.Name,
			Role:      input.Body.Role,
			CreatedAt: time.Now().UTC().Format(time.RFC3339),
		}
		if err := e.Repo.InsertUser(ctx, u); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.User `json:"body"`
		}{Body: u}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-user-role",
		Method:      http.MethodPatch,
		Path:        "/users/{id}/role",
		Summary:     "Change a user's role",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ID   string                `path:"id"`
		Body UpdateUserRoleRequest `json:"body"`
	}) (*struct {
		Body domain.User `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, auth.PermManageUsers); err != nil {
			return nil, handleError(err)
		}
		if !input.Body.Role.Valid() {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid role", map[string]any{"role": input.Body.Role})
		}
		if err := e.Repo.UpdateUserRole(ctx, input.ID, input.Body.Role); err != nil {
			return nil, handleError(err)
		}
		u, err := e.Repo.GetUser(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.User `json:"body"`
		}{Body: u}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-api-key",
		Method:        http.MethodPost,
		Path:          "/users/{id}/api-keys",
		Summary:       "Issue an API key for a user",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id"`
		Body struct {
			Name string `json:"name,omitempty"`
		} `json:"body"`
	}) (*struct {
		Body APIKeyResponse `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, auth.PermManageUsers); err != nil {
			return nil, handleError(err)
		}
		if _, err := e.Repo.GetUser(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		secret := uuid.New().String()
		key := domain.APIKey{
			ID:        uuid.New().String(),
			UserID:    input.ID,
			Name:      input.Body.Name,
			KeyHash:   repo.HashAPIKey(secret),
			CreatedAt: time.Now().UTC().Format(time.RFC3339),
		}
		if err := e.Repo.InsertAPIKey(ctx, key); err != nil {
			return nil, handleError(err)
		}
		resp := apiKeyResponse(key)
		resp.Key = secret
		return &struct {
			Body APIKeyResponse `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-api-key",
		Method:      http.MethodDelete,
		Path:        "/api-keys/{id}",
		Summary:     "Revoke an API key",
		Errors: []int{
			http.StatusForbidden,
		},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		if _, err := requirePermission(ctx, auth.PermManageUsers); err != nil {
			return nil, handleError(err)
		}
		if err := e.Repo.DeleteAPIKey(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerAuditLogs(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-audit-logs",
		Method:      http.MethodGet,
		Path:        "/audit-logs",
		Summary:     "List audit log entries",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		ConversationID string `query:"conversation_id"`
		UserID         string `query:"user_id"`
		Action         string `query:"action"`
		Limit          int    `query:"limit" default:"100"`
		Offset         int    `query:"offset"`
	}) (*struct {
		Body []AuditLogResponse `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, auth.PermViewAuditLogs); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListAuditLogs(ctx, repo.AuditFilter{
			ConversationID: input.ConversationID,
			UserID:         input.UserID,
			Action:         input.Action,
			Limit:          input.Limit,
			Offset:         input.Offset,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []AuditLogResponse `json:"body"`
		}{Body: mapAuditLogs(items)}, nil
	})
}

func registerStats(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "conversation-stats",
		Method:      http.MethodGet,
		Path:        "/stats",
		Summary:     "Conversation counts by status",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body StatsResponse `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, auth.PermViewInbox); err != nil {
			return nil, handleError(err)
		}
		counts, err := e.Repo.CountByStatus(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		total := 0
		byStatus := make(map[domain.Status]int, len(domain.Statuses()))
		for _, s := range domain.Statuses() {
			byStatus[s] = counts[s]
			total += counts[s]
		}
		return &struct {
			Body StatsResponse `json:"body"`
		}{Body: StatsResponse{Total: total, ByStatus: byStatus}}, nil
	})
}

func registerRules(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "triage-rules",
		Method:      http.MethodGet,
		Path:        "/triage/rules",
		Summary:     "Active triage keyword tables",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body RulesResponse `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, auth.PermViewInbox); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RulesResponse `json:"body"`
		}{Body: rulesResponse(e.Classifier.Rules())}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "status-metadata",
		Method:      http.MethodGet,
		Path:        "/statuses",
		Summary:     "Status display metadata",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []TransitionResponse `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, auth.PermViewInbox); err != nil {
			return nil, handleError(err)
		}
		res := make([]TransitionResponse, 0, len(domain.Statuses()))
		for _, s := range domain.Statuses() {
			res = append(res, TransitionResponse{Status: s, DisplayName: status.DisplayName(s), Color: status.Color(s)})
		}
		return &struct {
			Body []TransitionResponse `json:"body"`
		}{Body: res}, nil
	})
}

func registerContacts(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-contacts",
		Method:      http.MethodGet,
		Path:        "/contacts",
		Summary:     "List contacts",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Contact `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, auth.PermViewInbox); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListContacts(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Contact `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-contact",
		Method:      http.MethodGet,
		Path:        "/contacts/{id}",
		Summary:     "Get contact",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body domain.Contact `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, auth.PermViewInbox); err != nil {
			return nil, handleError(err)
		}
		c, err := e.Repo.GetContact(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Contact `json:"body"`
		}{Body: c}, nil
	})
}
