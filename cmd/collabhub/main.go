package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"collabhub/internal/app"
	"collabhub/internal/config"
	"collabhub/internal/db"
	"collabhub/internal/domain"
	"collabhub/internal/engine"
	"collabhub/internal/events"
	"collabhub/internal/metrics"
)

var rootCmd = &cobra.Command{
	Use:   "collabhub",
	Short: "Collabhub CLI",
	Long: `Collabhub lets organizations publish projects, commit to each other's tasks
and pick the collaborator that performs each one.
- Organization: owns projects; only cloud-registered organizations receive collaboration.
- Project: a dated plan with tasks; moves active -> execution -> finished.
- Commitment: an organization's offer to perform a task; the owner selects one, the rest are rejected.
- Observation: feedback on a project in execution, accepted by the owner.
- Event log: every state change, view with 'collabhub log tail'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_, err := db.EnsureWorkspace(viper.GetString("workspace"))
		return err
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	_ = godotenv.Load(filepath.Join(viper.GetString("workspace"), ".env"))
	viper.SetEnvPrefix("COLLABHUB")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("as", "", "username performing the operation")
	rootCmd.PersistentFlags().Bool("debug", false, "development logging")
	for _, name := range []string{"workspace", "json", "as", "debug"} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(orgCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(observationCmd())
	rootCmd.AddCommand(metricsCmd())
	rootCmd.AddCommand(logCmd())
}

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the workspace database and collabhub.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil && !force {
				fmt.Printf("Config already exists at %s (use --force to overwrite)\n", path)
			} else {
				if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
					return err
				}
				fmt.Printf("Wrote %s\n", path)
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				fmt.Printf("Database ready at %s\n", db.Path(workspace))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		Long:  "Serves the API. Secrets come from COLLABHUB_LOCAL_JWT_SECRET and COLLABHUB_CLOUD_JWT_SECRET (env or workspace .env).",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return withApp(ctx, func(ctx context.Context, a *app.App) error {
				srv, err := a.HTTPServer(app.Secrets{
					Local: viper.GetString("local-jwt-secret"),
					Cloud: viper.GetString("cloud-jwt-secret"),
				})
				if err != nil {
					return err
				}
				if addr != "" {
					srv.Addr = addr
				}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				a.Logger.Info("serving collabhub api",
					zap.String("addr", srv.Addr),
					zap.String("base_path", a.Config.Server.BasePath),
					zap.Bool("cloud_delegated", a.Config.Cloud.BaseURL != ""))
				fmt.Printf("Serving Collabhub API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", srv.Addr, a.Config.Server.BasePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}

func orgCmd() *cobra.Command {
	org := &cobra.Command{Use: "org", Short: "Manage organizations"}

	var name string
	var cloud bool
	create := &cobra.Command{
		Use:   "create",
		Short: "Create organization",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				actor, err := optionalUser(ctx, a)
				if err != nil {
					return err
				}
				o, err := a.Engine.CreateOrg(ctx, name, cloud, actor)
				if err != nil {
					return err
				}
				return printJSONOrTable(o)
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "organization name")
	create.Flags().BoolVar(&cloud, "cloud", false, "registered on the cloud tier")
	_ = create.MarkFlagRequired("name")

	list := &cobra.Command{
		Use:   "list",
		Short: "List organizations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Engine.Repo.ListOrgs(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable(table.Row{"ID", "Name", "Cloud", "Created"})
				for _, o := range items {
					tw.AppendRow(table.Row{o.ID, o.Name, o.CloudRegistered, o.CreatedAt})
				}
				fmt.Println(tw.Render())
				return nil
			})
		},
	}
	show := &cobra.Command{
		Use:   "show <name>",
		Short: "Show organization by name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				o, err := a.Engine.Repo.GetOrgByName(ctx, args[0])
				if err != nil {
					return fmt.Errorf("organization %q: %w", args[0], err)
				}
				return printJSONOrTable(o)
			})
		},
	}
	emails := &cobra.Command{
		Use:   "emails <org-id>",
		Short: "List member emails of an organization",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid organization id %q", args[0])
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				u, err := currentUser(ctx, a)
				if err != nil {
					return err
				}
				list, err := a.Engine.MemberEmails(ctx, id, u)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(list)
				}
				for _, e := range list {
					fmt.Println(e)
				}
				return nil
			})
		},
	}
	org.AddCommand(create, list, show, emails)
	return org
}

func userCmd() *cobra.Command {
	user := &cobra.Command{Use: "user", Short: "Manage users"}

	var in engine.RegisterInput
	create := &cobra.Command{
		Use:   "create",
		Short: "Register user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				u, err := a.Engine.RegisterUser(ctx, in)
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	create.Flags().StringVar(&in.Username, "username", "", "username")
	create.Flags().StringVar(&in.Email, "email", "", "email")
	create.Flags().StringVar(&in.Password, "password", "", "password")
	create.Flags().BoolVar(&in.IsManager, "manager", false, "may create organizations")
	create.Flags().Int64SliceVar(&in.OrgIDs, "org", nil, "organization ids (repeatable)")

	var userID, orgID int64
	addMember := &cobra.Command{
		Use:   "add-member",
		Short: "Add user to organization",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				actor, err := optionalUser(ctx, a)
				if err != nil {
					return err
				}
				if err := a.Engine.AddMember(ctx, userID, orgID, actor); err != nil {
					return err
				}
				fmt.Printf("User %d added to organization %d\n", userID, orgID)
				return nil
			})
		},
	}
	addMember.Flags().Int64Var(&userID, "user-id", 0, "user id")
	addMember.Flags().Int64Var(&orgID, "org-id", 0, "organization id")

	removeMember := &cobra.Command{
		Use:   "remove-member",
		Short: "Remove user from organization",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				actor, err := optionalUser(ctx, a)
				if err != nil {
					return err
				}
				if err := a.Engine.RemoveMember(ctx, userID, orgID, actor); err != nil {
					return err
				}
				fmt.Printf("User %d removed from organization %d\n", userID, orgID)
				return nil
			})
		},
	}
	removeMember.Flags().Int64Var(&userID, "user-id", 0, "user id")
	removeMember.Flags().Int64Var(&orgID, "org-id", 0, "organization id")

	whoami := &cobra.Command{
		Use:   "whoami",
		Short: "Show the --as user with memberships",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				u, err := currentUser(ctx, a)
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	list := &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				actor, err := optionalUser(ctx, a)
				if err != nil {
					return err
				}
				users, err := a.Engine.ListUsers(ctx, actor)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(users)
				}
				tw := newTable(table.Row{"ID", "Username", "Email", "Manager", "Orgs"})
				for _, u := range users {
					names := make([]string, 0, len(u.Orgs))
					for _, o := range u.Orgs {
						names = append(names, o.Name)
					}
					tw.AppendRow(table.Row{u.ID, u.Username, u.Email, u.IsManager, strings.Join(names, ", ")})
				}
				fmt.Println(tw.Render())
				return nil
			})
		},
	}

	remove := &cobra.Command{
		Use:   "delete <user-id>",
		Short: "Delete user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid user id %q", args[0])
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				actor, err := optionalUser(ctx, a)
				if err != nil {
					return err
				}
				if err := a.Engine.DeleteUser(ctx, id, actor); err != nil {
					return err
				}
				fmt.Printf("User %d deleted\n", id)
				return nil
			})
		},
	}
	user.AddCommand(create, list, remove, addMember, removeMember, whoami)
	return user
}

// projectFile is the YAML layout accepted by project create --file.
type projectFile struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	StartDate   string `yaml:"start_date"`
	EndDate     string `yaml:"end_date"`
	OwnerID     int64  `yaml:"owner_id"`
	Tasks       []struct {
		Title            string `yaml:"title"`
		Necessity        string `yaml:"necessity"`
		Quantity         string `yaml:"quantity"`
		StartDate        string `yaml:"start_date"`
		EndDate          string `yaml:"end_date"`
		ResolvesByItself bool   `yaml:"resolves_by_itself"`
	} `yaml:"tasks"`
}

func (f projectFile) input() engine.ProjectInput {
	in := engine.ProjectInput{
		Name:        f.Name,
		Description: f.Description,
		StartDate:   f.StartDate,
		EndDate:     f.EndDate,
		OwnerID:     f.OwnerID,
	}
	for _, t := range f.Tasks {
		in.Tasks = append(in.Tasks, engine.TaskInput{
			Title:            t.Title,
			Necessity:        t.Necessity,
			Quantity:         t.Quantity,
			StartDate:        t.StartDate,
			EndDate:          t.EndDate,
			ResolvesByItself: t.ResolvesByItself,
		})
	}
	return in
}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}

	var file string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create project with tasks from a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			var pf projectFile
			if err := yaml.Unmarshal(data, &pf); err != nil {
				return fmt.Errorf("invalid project file: %w", err)
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				u, err := currentUser(ctx, a)
				if err != nil {
					return err
				}
				p, err := a.Engine.CreateProject(ctx, pf.input(), u)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	create.Flags().StringVarP(&file, "file", "f", "", "project YAML file")
	_ = create.MarkFlagRequired("file")

	var collab bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List own projects, or collaboration candidates with --collab",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				u, err := currentUser(ctx, a)
				if err != nil {
					return err
				}
				var items []domain.Project
				if collab {
					items, err = a.Engine.CollaborationCandidates(ctx, u)
				} else {
					items, err = a.Engine.MyProjects(ctx, u)
				}
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable(table.Row{"ID", "Name", "Owner", "Status", "Start", "End", "Tasks"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.ID, p.Name, p.OwnerID, p.Status, p.StartDate, p.EndDate, len(p.Tasks)})
				}
				fmt.Println(tw.Render())
				return nil
			})
		},
	}
	list.Flags().BoolVar(&collab, "collab", false, "list active projects of other organizations with open tasks")

	var showID int64
	show := &cobra.Command{
		Use:   "show",
		Short: "Show project with tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				p, err := a.Engine.Repo.GetProject(ctx, showID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(p)
				}
				fmt.Printf("Project %d: %s [%s] %s..%s owner=%d\n", p.ID, p.Name, p.Status, p.StartDate, p.EndDate, p.OwnerID)
				tw := newTable(table.Row{"ID", "Title", "Necessity", "Quantity", "Self", "Status"})
				for _, t := range p.Tasks {
					tw.AppendRow(table.Row{t.ID, t.Title, t.Necessity, t.Quantity, t.ResolvesByItself, t.Status})
				}
				fmt.Println(tw.Render())
				return nil
			})
		},
	}
	show.Flags().Int64Var(&showID, "id", 0, "project id")

	var advID int64
	var status string
	advance := &cobra.Command{
		Use:   "advance",
		Short: "Advance project status (active -> execution -> finished)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				u, err := currentUser(ctx, a)
				if err != nil {
					return err
				}
				p, err := a.Engine.AdvanceProjectStatus(ctx, advID, status, u)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	advance.Flags().Int64Var(&advID, "id", 0, "project id")
	advance.Flags().StringVar(&status, "status", "", "execution|finished")

	var delID int64
	del := &cobra.Command{
		Use:   "delete",
		Short: "Delete a project without commitments",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				u, err := currentUser(ctx, a)
				if err != nil {
					return err
				}
				if err := a.Engine.DeleteProject(ctx, delID, u); err != nil {
					return err
				}
				fmt.Printf("Project %d deleted\n", delID)
				return nil
			})
		},
	}
	del.Flags().Int64Var(&delID, "id", 0, "project id")

	prj.AddCommand(create, list, show, advance, del)
	return prj
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{Use: "task", Short: "Commit to tasks and select collaborators"}

	commitment := func(use, short string, run func(context.Context, engine.Engine, engine.CommitmentInput, domain.User) (any, error)) *cobra.Command {
		var in engine.CommitmentInput
		cmd := &cobra.Command{
			Use:   use,
			Short: short,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
					u, err := currentUser(ctx, a)
					if err != nil {
						return err
					}
					out, err := run(ctx, a.Engine, in, u)
					if err != nil {
						return err
					}
					return printJSONOrTable(out)
				})
			},
		}
		cmd.Flags().Int64Var(&in.ProjectID, "project", 0, "project id")
		cmd.Flags().Int64Var(&in.TaskID, "task", 0, "task id")
		cmd.Flags().Int64Var(&in.OngID, "org", 0, "organization id")
		return cmd
	}
	commit := commitment("commit", "Commit an organization to a task",
		func(ctx context.Context, e engine.Engine, in engine.CommitmentInput, u domain.User) (any, error) {
			return e.Commit(ctx, in, u)
		})
	sel := commitment("select", "Select the organization that performs a task",
		func(ctx context.Context, e engine.Engine, in engine.CommitmentInput, u domain.User) (any, error) {
			return e.Select(ctx, in, u)
		})

	var f engine.CommitmentFilter
	compromises := &cobra.Command{
		Use:   "compromises",
		Short: "List commitments",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Engine.ViewCompromises(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable(table.Row{"ID", "Project", "Task", "Org", "Status", "Selected"})
				for _, c := range items {
					selected := ""
					if c.SelectedAt != nil {
						selected = *c.SelectedAt
					}
					tw.AppendRow(table.Row{c.ID, c.ProjectID, c.TaskID, c.OngID, c.Status, selected})
				}
				fmt.Println(tw.Render())
				return nil
			})
		},
	}
	compromises.Flags().Int64Var(&f.TaskID, "task", 0, "task id")
	compromises.Flags().Int64Var(&f.ProjectID, "project", 0, "project id")
	compromises.Flags().Int64Var(&f.OngID, "org", 0, "organization id")
	compromises.Flags().StringVar(&f.Status, "status", "", "interested|selected|rejected")

	task.AddCommand(commit, sel, compromises)
	return task
}

func observationCmd() *cobra.Command {
	obs := &cobra.Command{Use: "observation", Short: "Send and review observations"}

	var in engine.ObservationInput
	send := &cobra.Command{
		Use:   "send",
		Short: "Send an observation on a project in execution",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				u, err := currentUser(ctx, a)
				if err != nil {
					return err
				}
				o, err := a.Engine.SendObservation(ctx, in, u)
				if err != nil {
					return err
				}
				return printJSONOrTable(o)
			})
		},
	}
	send.Flags().StringVar(&in.Content, "content", "", "observation text")
	send.Flags().Int64Var(&in.ProjectID, "project", 0, "project id")
	send.Flags().StringVar(&in.ProjectName, "project-name", "", "project name (with --owner when ambiguous)")
	send.Flags().Int64Var(&in.OngID, "owner", 0, "owner organization id for --project-name")

	var id int64
	accept := &cobra.Command{
		Use:   "accept",
		Short: "Accept an observation",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				u, err := currentUser(ctx, a)
				if err != nil {
					return err
				}
				o, err := a.Engine.AcceptObservation(ctx, id, u)
				if err != nil {
					return err
				}
				return printJSONOrTable(o)
			})
		},
	}
	accept.Flags().Int64Var(&id, "id", 0, "observation id")

	var sent bool
	list := &cobra.Command{
		Use:   "list",
		Short: "Observations on own projects, or authored ones with --sent",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				u, err := currentUser(ctx, a)
				if err != nil {
					return err
				}
				var items []domain.Observation
				if sent {
					items, err = a.Engine.ObservationsByAuthor(ctx, u)
				} else {
					items, err = a.Engine.ObservationsForOwner(ctx, u)
				}
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable(table.Row{"ID", "Project", "Author", "Status", "Content"})
				for _, o := range items {
					tw.AppendRow(table.Row{o.ID, o.ProjectName, o.Username, o.Status, o.Content})
				}
				fmt.Println(tw.Render())
				return nil
			})
		},
	}
	list.Flags().BoolVar(&sent, "sent", false, "list observations written by the --as user")

	obs.AddCommand(send, accept, list)
	return obs
}

func metricsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "metrics",
		Short: "Show dashboard indicators",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				d, err := metrics.Aggregator{Repo: a.Engine.Repo, TopN: a.Config.Metrics.TopN, Logger: a.Logger}.Dashboard(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(d)
				}
				fmt.Printf("Finished on time: %.1f%%\n", d.SuccessfulOnTimeAvg)
				fmt.Printf("Without collaboration: %d of %d (%.1f%%)\n",
					d.NoCollaboration.ProjectsNoCollab, d.NoCollaboration.TotalProjects, d.NoCollaboration.Percent)
				tw := newTable(table.Row{"Organization", "Activity"})
				for _, act := range d.TopOngs {
					tw.AppendRow(table.Row{act.Name, act.Total})
				}
				fmt.Println(tw.Render())
				return nil
			})
		},
	}
}

func logCmd() *cobra.Command {
	lg := &cobra.Command{Use: "log", Short: "Event log"}
	var f events.Filters
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Engine.Events.List(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable(table.Row{"ID", "TS", "Type", "Project", "Entity", "Actor", "Payload"})
				for _, ev := range items {
					tw.AppendRow(table.Row{ev.ID, ev.TS, ev.Type, ev.ProjectID, fmt.Sprintf("%s:%d", ev.EntityKind, ev.EntityID), ev.ActorID, ev.Payload})
				}
				fmt.Println(tw.Render())
				return nil
			})
		},
	}
	tail.Flags().IntVar(&f.Limit, "n", 20, "number of events")
	tail.Flags().StringVar(&f.Type, "type", "", "event type filter")
	tail.Flags().Int64Var(&f.ProjectID, "project", 0, "project id")
	tail.Flags().Int64Var(&f.AfterID, "after", 0, "only events after this id")
	lg.AddCommand(tail)
	return lg
}

// --- helpers ---

func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	logger, err := app.NewLogger(viper.GetBool("debug"))
	if err != nil {
		return err
	}
	defer logger.Sync()
	a, err := app.Open(ctx, viper.GetString("workspace"), logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func currentUser(ctx context.Context, a *app.App) (domain.User, error) {
	name := strings.TrimSpace(viper.GetString("as"))
	if name == "" {
		return domain.User{}, fmt.Errorf("--as <username> required")
	}
	u, err := a.Engine.Repo.GetUserByUsername(ctx, name)
	if err != nil {
		return domain.User{}, fmt.Errorf("user %q: %w", name, err)
	}
	return u, nil
}

// optionalUser resolves --as when given. Without it the CLI acts as the system.
func optionalUser(ctx context.Context, a *app.App) (*domain.User, error) {
	if strings.TrimSpace(viper.GetString("as")) == "" {
		return nil, nil
	}
	u, err := currentUser(ctx, a)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func newTable(header table.Row) table.Writer {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(header)
	return tw
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
