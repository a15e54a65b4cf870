package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/berry-13/vicsam-group-sub002/internal/di"
	"github.com/berry-13/vicsam-group-sub002/internal/repository"
)

func newKeysCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{Use: "keys", Short: "Manage JWT signing keys"}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List keys that still verify tokens",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return opts.withAdmin(cmd.Context(), func(a *di.Admin) error {
					rows, err := a.Store.SigningKeys().ListVerifiable(cmd.Context())
					if err != nil {
						return err
					}
					return writeJSON(cmd.OutOrStdout(), rows)
				})
			},
		},
		&cobra.Command{
			Use:   "rotate",
			Short: "Create a new active signing key",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return opts.withAdmin(cmd.Context(), func(a *di.Admin) error {
					if err := a.Keys.Init(cmd.Context()); err != nil {
						return err
					}
					kid, err := a.Keys.Rotate(cmd.Context())
					if err != nil {
						return err
					}
					return writeJSON(cmd.OutOrStdout(), map[string]string{"kid": kid})
				})
			},
		},
		&cobra.Command{
			Use:   "retire <kid>",
			Short: "Stop a non-active key from verifying tokens",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return opts.withAdmin(cmd.Context(), func(a *di.Admin) error {
					if err := a.Keys.Retire(cmd.Context(), args[0]); err != nil {
						return err
					}
					return writeJSON(cmd.OutOrStdout(), map[string]string{"retired": args[0]})
				})
			},
		},
	)
	return cmd
}

func newLegacyCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{Use: "legacy", Short: "Manage the legacy static token"}
	cmd.AddCommand(&cobra.Command{
		Use:   "rotate",
		Short: "Issue a new legacy token; earlier tokens stay valid until they age out",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withAdmin(cmd.Context(), func(a *di.Admin) error {
				token, err := a.Legacy.Rotate(cmd.Context())
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), map[string]string{"token": token})
			})
		},
	})
	return cmd
}

func newSessionsCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{Use: "sessions", Short: "Session maintenance"}
	cmd.AddCommand(&cobra.Command{
		Use:   "cleanup",
		Short: "Deactivate expired sessions and revoke expired refresh tokens",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withAdmin(cmd.Context(), func(a *di.Admin) error {
				sessions, tokens, err := a.Auth.CleanupExpired(cmd.Context())
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), map[string]int64{"sessions": sessions, "refresh_tokens": tokens})
			})
		},
	})
	return cmd
}

func newUsersCommand(opts *options) *cobra.Command {
	var expires time.Duration
	assign := &cobra.Command{
		Use:   "assign-role <user-id> <role>",
		Short: "Grant a role to a user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			var expiresAt *time.Time
			if expires > 0 {
				at := time.Now().Add(expires).UTC()
				expiresAt = &at
			}
			return opts.withAdmin(cmd.Context(), func(a *di.Admin) error {
				if err := a.Auth.AssignRole(cmd.Context(), id, args[1], expiresAt, nil); err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), map[string]any{"user_id": id, "role": args[1]})
			})
		},
	}
	assign.Flags().DurationVar(&expires, "expires-in", 0, "expire the assignment after this duration")

	cmd := &cobra.Command{Use: "users", Short: "User administration"}
	cmd.AddCommand(
		userAction(opts, "unlock", "Clear a lockout and the failed login counter", func(a *di.Admin, cmd *cobra.Command, id uint) error {
			return a.Auth.UnlockUser(cmd.Context(), id)
		}),
		userAction(opts, "deactivate", "Disable a user and revoke their sessions", func(a *di.Admin, cmd *cobra.Command, id uint) error {
			return a.Auth.DeactivateUser(cmd.Context(), id)
		}),
		assign,
	)
	return cmd
}

func userAction(opts *options, name, short string, fn func(*di.Admin, *cobra.Command, uint) error) *cobra.Command {
	return &cobra.Command{
		Use:   name + " <user-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			return opts.withAdmin(cmd.Context(), func(a *di.Admin) error {
				if err := fn(a, cmd, id); err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), map[string]any{"user_id": id, name: true})
			})
		},
	}
}

func newAuditCommand(opts *options) *cobra.Command {
	var (
		page, size int
		userID     uint
		action     string
		since      time.Duration
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "Page through the audit log, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			q := repository.AuditListQuery{
				PageRequest: repository.PageRequest{Page: page, PageSize: size},
				Action:      action,
			}
			if userID > 0 {
				q.UserID = &userID
			}
			if since > 0 {
				at := time.Now().Add(-since).UTC()
				q.Since = &at
			}
			return opts.withAdmin(cmd.Context(), func(a *di.Admin) error {
				res, err := a.Store.Audit().ListPaged(cmd.Context(), q)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), res)
			})
		},
	}
	list.Flags().IntVar(&page, "page", repository.DefaultPage, "page number")
	list.Flags().IntVar(&size, "page-size", repository.DefaultPageSize, "entries per page")
	list.Flags().UintVar(&userID, "user", 0, "filter by user id")
	list.Flags().StringVar(&action, "action", "", "filter by action")
	list.Flags().DurationVar(&since, "since", 0, "only entries newer than this")

	cmd := &cobra.Command{Use: "audit", Short: "Inspect the audit log"}
	cmd.AddCommand(list)
	return cmd
}

func parseUserID(raw string) (uint, error) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid user id %q", raw)
	}
	return uint(id), nil
}
