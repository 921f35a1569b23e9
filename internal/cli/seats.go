package cli

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/thehansentribe/honorsfest/internal/model"
	"github.com/thehansentribe/honorsfest/pkg/client"
)

func newClient(opts *RootOptions) *client.Client {
	var copts []client.Option
	if opts.Language != "" {
		copts = append(copts, client.WithLanguage(opts.Language))
	}
	return client.New(opts.Server, copts...)
}

func parseID(kind, raw string) (int64, error) {
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n <= 0 {
		return 0, NewExitError(ExitCommandError, fmt.Sprintf("invalid %s id %q", kind, raw))
	}
	return n, nil
}

// requestError maps client errors to exit codes: refusals by the server are
// failures, anything else is a command error.
func requestError(err error) error {
	var (
		httpErr  *client.HTTPError
		conflict *client.ConflictError
		partial  *client.PartialFailureError
	)
	switch {
	case errors.As(err, &conflict), errors.As(err, &partial):
		return WrapExitError(ExitFailure, "refused", err)
	case errors.As(err, &httpErr) && httpErr.StatusCode < 500:
		return WrapExitError(ExitFailure, "refused", err)
	}
	return WrapExitError(ExitCommandError, "request failed", err)
}

// NewCountsCommand creates the counts command.
func NewCountsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "counts <class-id>",
		Short: "Show enrolled, waitlisted and capacity of a class",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("class", args[0])
			if err != nil {
				return err
			}
			counts, err := newClient(rootOpts).Counts(cmd.Context(), model.ClassID(id))
			if err != nil {
				return requestError(err)
			}
			return emit(cmd.OutOrStdout(), rootOpts, counts, func(w io.Writer) {
				fmt.Fprintf(w, "class %d: %d/%d enrolled, %d waitlisted\n",
					counts.ClassID, counts.Enrolled, counts.Capacity, counts.Waitlisted)
			})
		},
	}
}

// NewRegisterCommand creates the register command.
func NewRegisterCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		admin   bool
		resolve int64
	)

	cmd := &cobra.Command{
		Use:   "register <user-id> <class-id>",
		Short: "Register a user for a class",
		Long: `Register a user for a class.

A timeslot conflict exits 1 and prints the conflicting registration; pass
it with --resolve to withdraw it and register in one step.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseID("user", args[0])
			if err != nil {
				return err
			}
			classID, err := parseID("class", args[1])
			if err != nil {
				return err
			}
			c := newClient(rootOpts)
			var res *model.RegisterResult
			if resolve > 0 {
				res, err = c.ResolveConflict(cmd.Context(), model.UserID(userID), model.ClassID(classID), model.RegistrationID(resolve), admin)
			} else {
				res, err = c.Register(cmd.Context(), model.UserID(userID), model.ClassID(classID), admin)
			}

			var conflict *client.ConflictError
			if errors.As(err, &conflict) {
				_ = emit(cmd.OutOrStdout(), rootOpts, conflict.Conflict, func(w io.Writer) {
					fmt.Fprintf(w, "conflict: already in %q (registration %d); retry with --resolve %d\n",
						conflict.ConflictClassName, conflict.ConflictRegistrationID, conflict.ConflictRegistrationID)
				})
				return NewExitError(ExitFailure, "timeslot conflict")
			}
			if err != nil {
				return requestError(err)
			}
			return emit(cmd.OutOrStdout(), rootOpts, res, func(w io.Writer) {
				for _, r := range res.Registrations {
					fmt.Fprintf(w, "registration %d: class %d %s", r.ID, r.ClassID, r.Status)
					if r.Status == model.StatusWaitlisted {
						fmt.Fprintf(w, " (#%d)", r.WaitlistOrder)
					}
					fmt.Fprintln(w)
				}
			})
		},
	}
	cmd.Flags().BoolVar(&admin, "admin", false, "use the administrative policy")
	cmd.Flags().Int64Var(&resolve, "resolve", 0, "conflicting registration id to withdraw first")

	return cmd
}

// NewWithdrawCommand creates the withdraw command.
func NewWithdrawCommand(rootOpts *RootOptions) *cobra.Command {
	var admin bool

	cmd := &cobra.Command{
		Use:   "withdraw <registration-id>",
		Short: "Withdraw a registration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("registration", args[0])
			if err != nil {
				return err
			}
			withdrawn, err := newClient(rootOpts).Withdraw(cmd.Context(), model.RegistrationID(id), admin)
			if err != nil {
				return requestError(err)
			}
			return emit(cmd.OutOrStdout(), rootOpts, withdrawn, func(w io.Writer) {
				for _, r := range withdrawn {
					fmt.Fprintf(w, "withdrew registration %d from class %d\n", r.ID, r.ClassID)
				}
			})
		},
	}
	cmd.Flags().BoolVar(&admin, "admin", false, "remove as staff")

	return cmd
}
