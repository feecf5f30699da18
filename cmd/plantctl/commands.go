package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/user"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/plantdesk/plantdesk/internal/model"
	"github.com/plantdesk/plantdesk/internal/service"
	"github.com/spf13/cobra"
)

// opener builds the service a command runs against. The returned func
// releases whatever it opened.
type opener func(ctx context.Context) (*service.AuthService, func(), error)

type cli struct {
	open   opener
	actor  string
	asJSON bool
}

func newRootCmd(open opener) *cobra.Command {
	c := &cli{open: open}

	root := &cobra.Command{
		Use:           "plantctl",
		Short:         "Administer plantdesk accounts",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&c.actor, "actor", defaultActor(), "administrator recorded in the audit log")
	root.PersistentFlags().BoolVar(&c.asJSON, "json", false, "print results as JSON")

	root.AddCommand(
		c.unlockCmd(),
		c.registerCmd(),
		c.setRoleCmd(),
		c.setActiveCmd(),
		c.resetPasswordCmd(),
		c.lockStatusCmd(),
		c.auditCmd(),
	)
	return root
}

func defaultActor() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "plantctl"
}

// run opens the service for the duration of fn
func (c *cli) run(cmd *cobra.Command, fn func(ctx context.Context, svc *service.AuthService) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	svc, closeFn, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer closeFn()
	return describe(fn(ctx, svc))
}

// describe turns service errors into operator-facing messages
func describe(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, service.ErrNotFound):
		return errors.New("account not found")
	case errors.Is(err, service.ErrUsernameTaken):
		return errors.New("username is already taken")
	case errors.Is(err, service.ErrSystemBusy):
		return errors.New("database is busy, try again")
	}
	return err
}

func (c *cli) print(w io.Writer, v interface{}, text string) error {
	if c.asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	_, err := fmt.Fprintln(w, text)
	return err
}

// readPassword takes the password from the flag, or the first line of stdin
func readPassword(cmd *cobra.Command, flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("password is required")
	}
	return line, nil
}

func (c *cli) unlockCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unlock <username>",
		Short: "Clear the lockout on an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, svc *service.AuthService) error {
				if err := svc.ForceUnlock(ctx, args[0], c.actor); err != nil {
					return err
				}
				return c.print(cmd.OutOrStdout(), map[string]string{"username": args[0], "status": "unlocked"},
					fmt.Sprintf("Account %s unlocked", args[0]))
			})
		},
	}
}

func (c *cli) registerCmd() *cobra.Command {
	var (
		password string
		role     string
		req      service.RegisterRequest
	)
	cmd := &cobra.Command{
		Use:   "register <username>",
		Short: "Create an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := model.ParseRole(role)
			if err != nil {
				return err
			}
			pw, err := readPassword(cmd, password)
			if err != nil {
				return err
			}
			req.Username = args[0]
			req.Password = pw
			req.Role = parsed
			return c.run(cmd, func(ctx context.Context, svc *service.AuthService) error {
				if err := svc.Register(ctx, req); err != nil {
					return err
				}
				return c.print(cmd.OutOrStdout(), map[string]string{"username": req.Username, "role": parsed.String()},
					fmt.Sprintf("Account %s created with role %s", req.Username, parsed))
			})
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "initial password (read from stdin when empty)")
	cmd.Flags().StringVar(&role, "role", model.RoleUser.String(), "ADMIN, SUPERVISOR, OPERATOR or USER")
	cmd.Flags().StringVar(&req.FullName, "full-name", "", "display name")
	cmd.Flags().StringVar(&req.Email, "email", "", "contact email")
	cmd.Flags().StringVar(&req.Department, "department", "", "department")
	return cmd
}

func (c *cli) setRoleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-role <username> <role>",
		Short: "Change an account's role",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			role, err := model.ParseRole(args[1])
			if err != nil {
				return err
			}
			return c.run(cmd, func(ctx context.Context, svc *service.AuthService) error {
				if err := svc.SetRole(ctx, args[0], role, c.actor); err != nil {
					return err
				}
				return c.print(cmd.OutOrStdout(), map[string]string{"username": args[0], "role": role.String()},
					fmt.Sprintf("Account %s now has role %s", args[0], role))
			})
		},
	}
}

func (c *cli) setActiveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-active <username> <true|false>",
		Short: "Activate or deactivate an account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			active, err := strconv.ParseBool(args[1])
			if err != nil {
				return fmt.Errorf("active must be true or false: %w", err)
			}
			return c.run(cmd, func(ctx context.Context, svc *service.AuthService) error {
				if err := svc.SetActive(ctx, args[0], active, c.actor); err != nil {
					return err
				}
				state := "deactivated"
				if active {
					state = "activated"
				}
				return c.print(cmd.OutOrStdout(), map[string]interface{}{"username": args[0], "active": active},
					fmt.Sprintf("Account %s %s", args[0], state))
			})
		},
	}
}

func (c *cli) resetPasswordCmd() *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "reset-password <username>",
		Short: "Set a new password and clear any lockout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := readPassword(cmd, password)
			if err != nil {
				return err
			}
			return c.run(cmd, func(ctx context.Context, svc *service.AuthService) error {
				if err := svc.ResetPassword(ctx, args[0], pw, c.actor); err != nil {
					return err
				}
				return c.print(cmd.OutOrStdout(), map[string]string{"username": args[0], "status": "password_reset"},
					fmt.Sprintf("Password for %s reset", args[0]))
			})
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "new password (read from stdin when empty)")
	return cmd
}

func (c *cli) lockStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lock-status <username>",
		Short: "Show an account's lockout state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, svc *service.AuthService) error {
				state, err := svc.LockStatus(ctx, args[0])
				if err != nil {
					return err
				}
				text := fmt.Sprintf("%s: %d failed attempts, not locked", state.Username, state.FailedAttempts)
				if state.Locked && state.LockExpiry != nil {
					text = fmt.Sprintf("%s: %d failed attempts, locked until %s",
						state.Username, state.FailedAttempts, state.LockExpiry.Format(time.RFC3339))
				}
				return c.print(cmd.OutOrStdout(), state, text)
			})
		},
	}
}

func (c *cli) auditCmd() *cobra.Command {
	var (
		filter model.AuditFilter
		kind   string
	)
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "List recent audit events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter.Kind = model.AuditKind(strings.ToUpper(kind))
			return c.run(cmd, func(ctx context.Context, svc *service.AuthService) error {
				events, err := svc.AuditTrail(ctx, filter)
				if err != nil {
					return err
				}
				if c.asJSON {
					if events == nil {
						events = []model.AuditEvent{}
					}
					return c.print(cmd.OutOrStdout(), events, "")
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "TIME\tACTOR\tKIND\tOK\tDETAIL")
				for _, e := range events {
					fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\n",
						e.CreatedAt.Format(time.RFC3339), e.Actor, e.Kind, e.Success, e.Detail)
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&filter.Actor, "user", "", "only events for this account")
	cmd.Flags().StringVar(&kind, "kind", "", "only events of this kind, e.g. LOGIN_FAILED")
	cmd.Flags().IntVar(&filter.Limit, "limit", 0, "maximum number of events (default 100, max 1000)")
	return cmd
}
