package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/irandargah/irandargah-payments/config"
	"github.com/irandargah/irandargah-payments/internal/adapters/irandargah"
	"github.com/irandargah/irandargah-payments/internal/adapters/store"
	"github.com/irandargah/irandargah-payments/internal/core/domain"
	"github.com/irandargah/irandargah-payments/internal/core/service"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func openStore(ctx context.Context) (store.Store, func(), *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, err
	}
	s, closeFn, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DSN)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to open %s store: %w", cfg.Store.Driver, err)
	}
	return s, closeFn, cfg, nil
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the order store schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, closeFn, cfg, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			if err := s.Migrate(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Schema applied to %s store\n", cfg.Store.Driver)
			return nil
		},
	}
}

// settingsView is the printable gateway configuration.
type settingsView struct {
	Title            string `yaml:"title"`
	MerchantID       string `yaml:"merchant_id"`
	Sandbox          bool   `yaml:"sandbox"`
	ConnectionMethod string `yaml:"connection_method"`
	EffectiveMethod  string `yaml:"effective_method"`
	Currency         string `yaml:"currency"`
	Available        bool   `yaml:"available"`
	PaymentURL       string `yaml:"payment_url"`
	VerificationURL  string `yaml:"verification_url"`
	StartPayURL      string `yaml:"start_pay_url"`
	RetryAttempts    int    `yaml:"retry_attempts"`
	Timeout          string `yaml:"timeout"`
	CallbackAck      string `yaml:"callback_ack"`
	CallbackSigned   bool   `yaml:"callback_signed"`
}

func settingsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "settings",
		Short: "Print the effective gateway settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			settings, err := cfg.Gateway.Settings(cmd.Context())
			if err != nil {
				return err
			}
			endpoints := domain.EndpointsFor(cfg.Gateway.BaseURL, settings.EffectiveMethod() == domain.MethodSandbox)

			out, err := yaml.Marshal(settingsView{
				Title:            settings.Title,
				MerchantID:       mask(settings.MerchantID),
				Sandbox:          settings.Sandbox,
				ConnectionMethod: string(settings.ConnectionMethod),
				EffectiveMethod:  string(settings.EffectiveMethod()),
				Currency:         string(settings.Currency),
				Available:        settings.IsAvailable(),
				PaymentURL:       endpoints.PaymentURL,
				VerificationURL:  endpoints.VerificationURL,
				StartPayURL:      endpoints.StartPayURL,
				RetryAttempts:    cfg.Gateway.RetryAttempts,
				Timeout:          cfg.Gateway.Timeout.String(),
				CallbackAck:      cfg.Gateway.CallbackAck,
				CallbackSigned:   cfg.Security.CallbackSecret != "",
			})
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}

// mask hides all but the last four characters.
func mask(s string) string {
	if len(s) <= 4 {
		return s
	}
	b := []byte(s)
	for i := 0; i < len(b)-4; i++ {
		b[i] = '*'
	}
	return string(b)
}

func orderCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "order",
		Short: "Inspect and seed orders in the local store",
	}
	cmd.AddCommand(orderCreateCmd())
	cmd.AddCommand(orderShowCmd())
	return cmd
}

func orderCreateCmd() *cobra.Command {
	var (
		id       int64
		customer string
		total    string
		currency string
		phone    string
		first    string
		last     string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a pending order",
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := decimal.NewFromString(total)
			if err != nil {
				return fmt.Errorf("invalid total %q: %w", total, err)
			}

			s, closeFn, _, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			newID, err := s.CreateOrder(cmd.Context(), &domain.Order{
				ID:               id,
				CustomerID:       customer,
				Total:            amount,
				Currency:         currency,
				BillingPhone:     phone,
				BillingFirstName: first,
				BillingLastName:  last,
				Status:           domain.StatusPending,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created order %d\n", newID)
			return nil
		},
	}

	cmd.Flags().Int64Var(&id, "id", 0, "order id (assigned when 0)")
	cmd.Flags().StringVarP(&customer, "customer", "c", "", "customer id")
	cmd.Flags().StringVarP(&total, "total", "t", "", "order total")
	cmd.Flags().StringVar(&currency, "currency", "IRR", "order currency")
	cmd.Flags().StringVar(&phone, "phone", "", "billing phone")
	cmd.Flags().StringVar(&first, "first-name", "", "billing first name")
	cmd.Flags().StringVar(&last, "last-name", "", "billing last name")
	_ = cmd.MarkFlagRequired("total")

	return cmd
}

// orderView is the printable order.
type orderView struct {
	ID            int64             `yaml:"id"`
	Customer      string            `yaml:"customer"`
	Total         string            `yaml:"total"`
	Currency      string            `yaml:"currency"`
	Status        string            `yaml:"status"`
	TransactionID string            `yaml:"transaction_id,omitempty"`
	Meta          map[string]string `yaml:"meta,omitempty"`
	Notes         []string          `yaml:"notes,omitempty"`
}

func orderShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [order-id]",
		Short: "Print an order with its meta and notes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid order id %q", args[0])
			}

			s, closeFn, _, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			order, err := s.GetOrder(cmd.Context(), id)
			if err != nil {
				return err
			}
			notes, err := s.Notes(cmd.Context(), id)
			if err != nil {
				return err
			}

			out, err := yaml.Marshal(orderView{
				ID:            order.ID,
				Customer:      order.CustomerID,
				Total:         order.Total.String(),
				Currency:      order.Currency,
				Status:        string(order.Status),
				TransactionID: order.TransactionID,
				Meta:          order.Metadata,
				Notes:         notes,
			})
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}

func callbackURLCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "callback-url [order-id]",
		Short: "Print the signed callback URL for an order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid order id %q", args[0])
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			signer := irandargah.NewCallbackSigner(cfg.Security.CallbackSecret)
			fmt.Fprintln(cmd.OutOrStdout(), service.BuildCallbackURL(cfg.Host.CallbackURL, id, signer.Sign(id)))
			return nil
		},
	}
}
