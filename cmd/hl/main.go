package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"helpline/internal/config"
	"helpline/internal/db"
	"helpline/internal/domain"
	"helpline/internal/engine"
	"helpline/internal/line"
	"helpline/internal/migrate"
	"helpline/internal/repo"
	"helpline/internal/server"
	"helpline/internal/status"
)

var rootCmd = &cobra.Command{
	Use:   "hl",
	Short: "Helpline CLI",
	Long: `Helpline is a customer-support inbox for LINE messaging.
Inbound messages arrive on the webhook, get grouped into conversations per
contact, and run through keyword triage that escalates priority, urgency, and
the complaint flag. Agents work the inbox over the HTTP API or this CLI:
reply, change status, assign, tag, and audit every change.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("HELPLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("user-id", "local-admin", "acting user identifier")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("user-id", rootCmd.PersistentFlags().Lookup("user-id"))
}

func registerCommands() {
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(conversationCmd())
	rootCmd.AddCommand(inboxCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(tagCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(triageCmd())
	rootCmd.AddCommand(serveCmd())
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Manage workspace config",
		Long:  "Config lives in helpline.yml: channel credentials, triage keyword tables, and outbound webhooks.",
	}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default helpline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing config")
	return cmd
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show loaded config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSONOrTable(cfg)
		},
	}
	return cmd
}

func configValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate workspace config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("workspace"))
			if err == nil {
				err = cfg.Validate()
			}
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
	return cmd
}

func conversationCmd() *cobra.Command {
	conv := &cobra.Command{
		Use:     "conversation",
		Aliases: []string{"conv"},
		Short:   "Manage conversations",
		Long:    "Conversations group a contact's messages. They flow NEW -> WORKING -> PENDING -> RESOLVED -> CLOSED, with NO_ACTION_NEEDED as an exit; CLOSED can reopen to WORKING.",
	}
	conv.AddCommand(conversationListCmd())
	conv.AddCommand(conversationShowCmd())
	conv.AddCommand(conversationMessagesCmd())
	conv.AddCommand(conversationStatusCmd())
	conv.AddCommand(conversationAssignCmd())
	conv.AddCommand(conversationReplyCmd())
	conv.AddCommand(conversationRetriageCmd())
	conv.AddCommand(conversationPriorityCmd())
	conv.AddCommand(conversationComplaintCmd())
	conv.AddCommand(conversationTagCmd())
	return conv
}

func conversationListCmd() *cobra.Command {
	var statusFilter, assignedTo string
	var complaintsOnly bool
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List conversations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				opts := repo.ListOptions{AssignedTo: assignedTo, Limit: limit}
				if statusFilter != "" {
					st := domain.Status(statusFilter)
					if !st.Valid() {
						return fmt.Errorf("invalid status %q", statusFilter)
					}
					opts.Status = st
				}
				if complaintsOnly {
					v := true
					opts.IsComplaint = &v
				}
				items, err := e.Repo.ListConversations(ctx, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				renderConversations(items)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&statusFilter, "status", "", "status filter")
	cmd.Flags().StringVar(&assignedTo, "assigned-to", "", "assignee filter")
	cmd.Flags().BoolVar(&complaintsOnly, "complaints", false, "complaints only")
	cmd.Flags().IntVar(&limit, "limit", 50, "max rows")
	return cmd
}

func conversationShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.Repo.GetConversation(ctx, args[0])
				if err != nil {
					return err
				}
				tags, err := e.Repo.ListConversationTags(ctx, c.ID)
				if err != nil {
					return err
				}
				out := map[string]any{
					"conversation":          c,
					"status_display_name":   status.DisplayName(c.Status),
					"available_transitions": status.AvailableTransitions(c.Status),
					"tags":                  tags,
				}
				return printJSONOrTable(out)
			})
		},
	}
	return cmd
}

func conversationMessagesCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "messages <id>",
		Short: "List conversation messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if _, err := e.Repo.GetConversation(ctx, args[0]); err != nil {
					return err
				}
				items, err := e.Repo.ListMessages(ctx, args[0], limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				for _, m := range items {
					arrow := "<-"
					if m.Direction == domain.DirectionOutbound {
						arrow = "->"
					}
					fmt.Printf("%s %s %s\n", m.Timestamp, arrow, m.Text)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "max rows")
	return cmd
}

func conversationStatusCmd() *cobra.Command {
	var to string
	var expectedVersion int64
	cmd := &cobra.Command{
		Use:   "set-status <id>",
		Short: "Change conversation status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				var version *int64
				if cmd.Flags().Changed("expected-version") {
					version = &expectedVersion
				}
				c, err := e.ChangeStatus(ctx, args[0], domain.Status(to), version, viper.GetString("user-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&to, "status", "", "new status")
	cmd.Flags().Int64Var(&expectedVersion, "expected-version", 0, "fail if the stored version differs")
	_ = cmd.MarkFlagRequired("status")
	return cmd
}

func conversationAssignCmd() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "assign <id>",
		Short: "Assign conversation (moves it to WORKING)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.Assign(ctx, args[0], userID, viper.GetString("user-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&userID, "to", "", "assignee user id")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func conversationReplyCmd() *cobra.Command {
	var text string
	cmd := &cobra.Command{
		Use:   "reply <id>",
		Short: "Send an outbound reply",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				msg, err := e.Reply(ctx, args[0], text, viper.GetString("user-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(msg)
			})
		},
	}
	cmd.Flags().StringVar(&text, "text", "", "message text")
	_ = cmd.MarkFlagRequired("text")
	return cmd
}

func conversationRetriageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retriage <id>",
		Short: "Re-run triage over recent inbound messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				result, err := e.Retriage(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(result)
			})
		},
	}
	return cmd
}

func conversationPriorityCmd() *cobra.Command {
	var priority, urgency string
	cmd := &cobra.Command{
		Use:   "set-priority <id>",
		Short: "Manually set priority and urgency",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.OverridePriority(ctx, args[0], domain.Priority(priority), domain.Urgency(urgency), viper.GetString("user-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&priority, "priority", "", "LOW, MEDIUM, or HIGH")
	cmd.Flags().StringVar(&urgency, "urgency", "", "ANYTIME, THIS_WEEK, TODAY, or NOW")
	_ = cmd.MarkFlagRequired("priority")
	_ = cmd.MarkFlagRequired("urgency")
	return cmd
}

func conversationComplaintCmd() *cobra.Command {
	var isComplaint bool
	var complaintType string
	cmd := &cobra.Command{
		Use:   "set-complaint <id>",
		Short: "Manually set the complaint flag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				var ct *domain.ComplaintType
				if complaintType != "" {
					v := domain.ComplaintType(complaintType)
					ct = &v
				}
				c, err := e.OverrideComplaint(ctx, args[0], isComplaint, ct, viper.GetString("user-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().BoolVar(&isComplaint, "complaint", true, "complaint flag")
	cmd.Flags().StringVar(&complaintType, "type", "", "BILLING, QUALITY, DELAY, ATTITUDE, or OTHER")
	return cmd
}

func conversationTagCmd() *cobra.Command {
	var add, remove string
	cmd := &cobra.Command{
		Use:   "tag <id>",
		Short: "Attach or detach a tag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if add == "" && remove == "" {
				return fmt.Errorf("--add or --remove required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				userID := viper.GetString("user-id")
				if add != "" {
					if err := e.AddTag(ctx, args[0], add, userID); err != nil {
						return err
					}
				}
				if remove != "" {
					if err := e.RemoveTag(ctx, args[0], remove, userID); err != nil {
						return err
					}
				}
				tags, err := e.Repo.ListConversationTags(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(tags)
			})
		},
	}
	cmd.Flags().StringVar(&add, "add", "", "tag id to attach")
	cmd.Flags().StringVar(&remove, "remove", "", "tag id to detach")
	return cmd
}

func inboxCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "inbox",
		Short: "Conversations awaiting a reply",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListNeedsAction(ctx, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				renderConversations(items)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "max rows")
	return cmd
}

func statsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Conversation counts by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				counts, err := e.Repo.CountByStatus(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(counts)
				}
				for _, s := range domain.Statuses() {
					fmt.Printf("  %s (%s): %d\n", s, status.DisplayName(s), counts[s])
				}
				return nil
			})
		},
	}
	return cmd
}

func tagCmd() *cobra.Command {
	tag := &cobra.Command{Use: "tag", Short: "Manage the tag catalog"}
	tag.AddCommand(tagListCmd())
	tag.AddCommand(tagCreateCmd())
	tag.AddCommand(tagDeleteCmd())
	return tag
}

func tagListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tags",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListTags(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	return cmd
}

func tagCreateCmd() *cobra.Command {
	var name, color string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create tag",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				t := domain.Tag{
					ID:        uuid.New().String(),
					Name:      name,
					Color:     color,
					CreatedAt: time.Now().UTC().Format(time.RFC3339),
				}
				if err := r.InsertTag(ctx, t); err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "tag name")
	cmd.Flags().StringVar(&color, "color", "", "display color")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func tagDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete tag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteTag(ctx, args[0])
			})
		},
	}
	return cmd
}

func userCmd() *cobra.Command {
	user := &cobra.Command{Use: "user", Short: "Manage dashboard users"}
	user.AddCommand(userListCmd())
	user.AddCommand(userCreateCmd())
	user.AddCommand(userSetRoleCmd())
	return user
}

func userListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListUsers(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	return cmd
}

func userCreateCmd() *cobra.Command {
	var email, name, role string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create user",
		RunE: func(cmd *cobra.Command, args []string) error {
			r := domain.Role(role)
			if !r.Valid() {
				return fmt.Errorf("invalid role %q", role)
			}
			return withRepo(cmd.Context(), func(ctx context.Context, rp repo.Repo) error {
				u := domain.User{
					ID:        uuid.New().String(),
					Email:     email,
					Name:      name,
					Role:      r,
					CreatedAt: time.Now().UTC().Format(time.RFC3339),
				}
				if err := rp.InsertUser(ctx, u); err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&role, "role", string(domain.RoleAgent), "ADMIN, AGENT, or VIEWER")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func userSetRoleCmd() *cobra.Command {
	var role string
	cmd := &cobra.Command{
		Use:   "set-role <id>",
		Short: "Change a user's role",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r := domain.Role(role)
			if !r.Valid() {
				return fmt.Errorf("invalid role %q", role)
			}
			return withRepo(cmd.Context(), func(ctx context.Context, rp repo.Repo) error {
				if err := rp.UpdateUserRole(ctx, args[0], r); err != nil {
					return err
				}
				u, err := rp.GetUser(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	cmd.Flags().StringVar(&role, "role", "", "new role")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}

func apikeyCmd() *cobra.Command {
	key := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	key.AddCommand(apikeyCreateCmd())
	key.AddCommand(apikeyListCmd())
	key.AddCommand(apikeyDeleteCmd())
	return key
}

func apikeyCreateCmd() *cobra.Command {
	var userID, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Issue an API key",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if _, err := r.GetUser(ctx, userID); err != nil {
					return err
				}
				secret := uuid.New().String()
				key := domain.APIKey{
					ID:        uuid.New().String(),
					UserID:    userID,
					Name:      name,
					KeyHash:   repo.HashAPIKey(secret),
					CreatedAt: time.Now().UTC().Format(time.RFC3339),
				}
				if err := r.InsertAPIKey(ctx, key); err != nil {
					return err
				}
				// The plaintext secret is shown once and never stored.
				return printJSONOrTable(map[string]string{
					"id":      key.ID,
					"user_id": key.UserID,
					"name":    key.Name,
					"key":     secret,
				})
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "owning user id")
	cmd.Flags().StringVar(&name, "name", "", "key label")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListAPIKeys(ctx, userID)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "filter by user id")
	return cmd
}

func apikeyDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteAPIKey(ctx, args[0])
			})
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	logc := &cobra.Command{
		Use:   "log",
		Short: "Audit log",
		Long:  "The append-only diary of the inbox: status changes, triage escalations, replies, assignments.",
	}
	logc.AddCommand(logTailCmd())
	return logc
}

func logTailCmd() *cobra.Command {
	var n int
	var conversationID, userID, action string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail audit entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListAuditLogs(ctx, repo.AuditFilter{
					ConversationID: conversationID,
					UserID:         userID,
					Action:         action,
					Limit:          n,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of entries")
	cmd.Flags().StringVar(&conversationID, "conversation", "", "conversation filter")
	cmd.Flags().StringVar(&userID, "user", "", "user filter")
	cmd.Flags().StringVar(&action, "action", "", "action filter")
	return cmd
}

func triageCmd() *cobra.Command {
	var text string
	cmd := &cobra.Command{
		Use:   "triage",
		Short: "Classify a text against the active rules (dry run)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return printJSONOrTable(e.Classifier.Classify(text))
			})
		},
	}
	cmd.Flags().StringVar(&text, "text", "", "message text")
	_ = cmd.MarkFlagRequired("text")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfg, err := config.Load(workspace)
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			if cfg.Channel.AccessToken != "" {
				e.Messenger = line.NewClient(cfg.Channel.Secret, cfg.Channel.AccessToken, cfg.Channel.APIBase)
			}
			authCfg := server.AuthConfig{JWTSecret: os.Getenv("HELPLINE_JWT_SECRET")}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("HELPLINE_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Helpline API on http://%s%s (webhook at /webhook/line, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cfg, err := config.Load(workspace)
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg)
	if cfg.Channel.AccessToken != "" {
		e.Messenger = line.NewClient(cfg.Channel.Secret, cfg.Channel.AccessToken, cfg.Channel.APIBase)
	}
	return fn(ctx, e)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

func renderConversations(items []domain.Conversation) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Status", "Priority", "Urgency", "Complaint", "Assignee", "Last message"})
	for _, c := range items {
		assignee := ""
		if c.AssignedUserID != nil {
			assignee = *c.AssignedUserID
		}
		complaint := ""
		if c.IsComplaint {
			complaint = "yes"
			if c.ComplaintType != nil {
				complaint = string(*c.ComplaintType)
			}
		}
		tw.AppendRow(table.Row{c.ID, c.Status, c.Priority, c.Urgency, complaint, assignee, c.LastMessagePreview})
	}
	tw.Render()
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
