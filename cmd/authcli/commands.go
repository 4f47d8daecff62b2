package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/raga-mitra/raga_mitra/internal/autherr"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "authcli",
		Short:         "Raga-Mitra phone sign-in",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		verifyCmd("register", "Verify your phone and choose a PIN", false),
		verifyCmd("reset", "Verify your phone and replace a forgotten PIN", true),
		loginCmd(),
		whoamiCmd(),
		logoutCmd(),
	)
	return root
}

func withApp(cmd *cobra.Command, run func(a *app) error) error {
	a, err := newApp(cmd.OutOrStdout())
	if err != nil {
		return err
	}
	return run(a)
}

func verifyCmd(use, short string, reset bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <phone>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app) error {
				ctx := cmd.Context()
				request := a.machine.RequestCode
				if reset {
					request = a.machine.RequestReset
				}
				h, err := request(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "A %d-digit code was sent to %s.\n", a.cfg.CodeLength, h.Phone)

				for {
					code, err := a.prompt("Code: ")
					if err != nil {
						return err
					}
					err = a.machine.SubmitCode(ctx, h, code)
					if err == nil {
						break
					}
					switch autherr.KindOf(err) {
					case autherr.KindInvalidCode, autherr.KindInvalidInput:
						fmt.Fprintln(a.out, describe(err))
						continue
					}
					return err
				}

				for {
					pin, err := a.secret(fmt.Sprintf("New %d-digit PIN: ", a.cfg.PINLength))
					if err != nil {
						return err
					}
					err = a.machine.SetPin(ctx, pin)
					if autherr.KindOf(err) == autherr.KindInvalidInput {
						fmt.Fprintln(a.out, describe(err))
						continue
					}
					if err != nil {
						return err
					}
					return printSession(a)
				}
			})
		},
	}
}

func loginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login <phone>",
		Short: "Sign in with your PIN",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app) error {
				for {
					pin, err := a.secret("PIN: ")
					if err != nil {
						return err
					}
					err = a.machine.VerifyPin(cmd.Context(), args[0], pin)
					if err == nil {
						return printSession(a)
					}
					if autherr.KindOf(err) == autherr.KindInvalidCredential {
						fmt.Fprintln(a.out, describe(err))
						continue
					}
					return err
				}
			})
		},
	}
}

func whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(a *app) error {
				ok, err := a.machine.Resume(cmd.Context())
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(a.out, "Not signed in.")
					return nil
				}
				s, _ := a.machine.Session().Current()
				if _, err := a.api.Me(cmd.Context(), s.Token); errors.Is(err, autherr.ErrInvalidCredential) {
					fmt.Fprintln(a.out, "The stored session was revoked, sign in again.")
					return a.machine.Logout(cmd.Context())
				}
				return printSession(a)
			})
		},
	}
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out on every device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(a *app) error {
				ok, err := a.machine.Resume(cmd.Context())
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(a.out, "Not signed in.")
					return nil
				}
				if err := a.machine.Logout(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(a.out, "Signed out.")
				return nil
			})
		},
	}
}

func printSession(a *app) error {
	s, ok := a.machine.Session().Current()
	if !ok {
		return errors.New("no active session")
	}
	_, err := fmt.Fprintf(a.out, "Signed in as %s (user %s), session valid until %s.\n",
		s.User.Phone, s.User.ID, s.ExpiresAt.Local().Format("2006-01-02 15:04"))
	return err
}
