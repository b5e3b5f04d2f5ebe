package cli

import (
	"errors"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/contaconmigo/contaconmigo-go/token"
)

func cmdToken(a *app) *cobra.Command {
	c := &cobra.Command{
		Use:   "token",
		Short: "Inspect the stored access token",
	}
	c.AddCommand(cmdTokenInfo(a))
	return c
}

type tokenInfo struct {
	Subject         string    `json:"subject,omitempty"`
	Email           string    `json:"email,omitempty"`
	ExpiresAt       time.Time `json:"expires_at,omitzero"`
	Expired         bool      `json:"expired"`
	SecondsToExpiry int64     `json:"seconds_to_expiry"`
	ExpiringSoon    bool      `json:"expiring_soon"`
}

func cmdTokenInfo(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Decode the access token and report its expiry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := a.store.AccessToken(cmd.Context())
			if err != nil {
				return err
			}
			if raw == "" {
				return errors.New("no access token stored")
			}

			in := token.NewInspector(token.WithThreshold(a.cfg.Client.ExpiryThreshold))
			info := in.Info(raw)
			if info.Claims == nil {
				return errors.New("stored access token cannot be decoded")
			}
			out := tokenInfo{
				Subject:         info.Claims.Subject,
				Email:           info.Claims.Email,
				Expired:         info.Expired,
				SecondsToExpiry: info.SecondsToExpiry,
				ExpiringSoon:    info.ExpiresWithinThreshold,
			}
			if info.Claims.ExpiresAt != nil {
				out.ExpiresAt = info.Claims.ExpiresAt.Time
			}

			return a.print(cmd, out, func(w io.Writer) {
				row(w, "subject", out.Subject)
				row(w, "email", out.Email)
				if out.ExpiresAt.IsZero() {
					row(w, "expires", "never set")
				} else {
					row(w, "expires", out.ExpiresAt.Local().Format(time.RFC3339))
				}
				row(w, "expired", out.Expired)
				row(w, "expiring soon", out.ExpiringSoon)
				if !out.Expired {
					row(w, "remaining", (time.Duration(out.SecondsToExpiry) * time.Second).String())
				}
			})
		},
	}
}
